package dto

import "time"

type PersonPayload struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
}

type CompatibilityRequest struct {
	FirstPerson  PersonPayload `json:"first_person"`
	SecondPerson PersonPayload `json:"second_person"`
}

type BirthChartRequest struct {
	Name       string `json:"name"`
	BirthDate  string `json:"birth_date"`
	BirthTime  string `json:"birth_time"`
	BirthPlace string `json:"birth_place"`
}

type MoonReadingRequest struct {
	Date  string `json:"date"`
	Focus string `json:"focus"`
}

type ReadingResponse struct {
	ID        int64          `json:"id"`
	Kind      string         `json:"kind"`
	Subject   map[string]any `json:"subject,omitempty"`
	Body      string         `json:"body"`
	CreatedAt time.Time      `json:"created_at"`
}

type ReadingsListResponse struct {
	Readings []ReadingResponse `json:"readings"`
}

type DeleteReadingResponse struct {
	OK bool `json:"ok"`
}
