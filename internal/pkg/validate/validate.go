// Package validate holds small input checks shared by the services.
package validate

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

func Required(value string) bool {
	return strings.TrimSpace(value) != ""
}

// Email is deliberately loose; the mailbox is verified by sending to
// it, not by parsing.
func Email(value string) bool {
	value = strings.TrimSpace(value)
	at := strings.Index(value, "@")
	return at > 0 && at < len(value)-1
}

// Date reports whether value is a calendar date in YYYY-MM-DD form.
func Date(value string) bool {
	_, err := time.Parse(dateLayout, strings.TrimSpace(value))
	return err == nil
}
