package readings

import (
	"errors"
	"fmt"
)

var ErrInvalidInput = errors.New("invalid reading input")

// RateLimitedError carries the wait hint for a throttled generation
// attempt. No credit is consumed when this is returned.
type RateLimitedError struct {
	RetryAfterSec int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("reading generation rate limited, retry in %ds", e.RetryAfterSec)
}

type PersonDetails struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
}

type CompatibilityInput struct {
	FirstPerson  PersonDetails `json:"first_person"`
	SecondPerson PersonDetails `json:"second_person"`
}

type BirthChartInput struct {
	Name       string `json:"name"`
	BirthDate  string `json:"birth_date"`
	BirthTime  string `json:"birth_time"`
	BirthPlace string `json:"birth_place"`
}

type MoonReadingInput struct {
	Date  string `json:"date"`
	Focus string `json:"focus"`
}
