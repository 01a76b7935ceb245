package readings

import (
	"fmt"
	"strings"
	"time"
)

const systemPrompt = "You are an experienced astrologer writing warm, specific readings. " +
	"Answer in flowing prose, 300-500 words, without markdown headers."

func compatibilityPrompt(in CompatibilityInput) string {
	return fmt.Sprintf(
		"Write a romantic compatibility reading for two people.\n"+
			"Person one: %s, born %s.\n"+
			"Person two: %s, born %s.\n"+
			"Cover emotional connection, communication style and long-term potential.",
		in.FirstPerson.Name, in.FirstPerson.BirthDate,
		in.SecondPerson.Name, in.SecondPerson.BirthDate,
	)
}

func birthChartPrompt(in BirthChartInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a natal birth chart reading for %s, born %s", in.Name, in.BirthDate)
	if in.BirthTime != "" {
		fmt.Fprintf(&b, " at %s", in.BirthTime)
	}
	if in.BirthPlace != "" {
		fmt.Fprintf(&b, " in %s", in.BirthPlace)
	}
	b.WriteString(".\nCover sun, moon and rising signs, core strengths and growth areas.")
	return b.String()
}

func moonReadingPrompt(in MoonReadingInput, now time.Time) string {
	date := in.Date
	if date == "" {
		date = now.UTC().Format("2006-01-02")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a moon reading for %s.", date)
	if in.Focus != "" {
		fmt.Fprintf(&b, " The reader wants guidance about: %s.", in.Focus)
	}
	b.WriteString("\nDescribe the lunar phase energy and what it supports right now.")
	return b.String()
}
