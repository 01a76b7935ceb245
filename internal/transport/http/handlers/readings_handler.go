package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/astraweb/lunaria/backend/internal/domain/enums"
	"github.com/astraweb/lunaria/backend/internal/domain/model"
	pgrepo "github.com/astraweb/lunaria/backend/internal/repo/postgres"
	creditssvc "github.com/astraweb/lunaria/backend/internal/services/credits"
	readingssvc "github.com/astraweb/lunaria/backend/internal/services/readings"
	"github.com/astraweb/lunaria/backend/internal/transport/http/dto"
	httperrors "github.com/astraweb/lunaria/backend/internal/transport/http/errors"
)

type ReadingsHandler struct {
	service *readingssvc.Service
}

func NewReadingsHandler(service *readingssvc.Service) *ReadingsHandler {
	return &ReadingsHandler{service: service}
}

func (h *ReadingsHandler) CreateCompatibility(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req dto.CompatibilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	reading, err := h.service.CreateCompatibility(r.Context(), identity.UserID, readingssvc.CompatibilityInput{
		FirstPerson:  readingssvc.PersonDetails{Name: req.FirstPerson.Name, BirthDate: req.FirstPerson.BirthDate},
		SecondPerson: readingssvc.PersonDetails{Name: req.SecondPerson.Name, BirthDate: req.SecondPerson.BirthDate},
	})
	if err != nil {
		handleReadingError(w, err)
		return
	}

	httperrors.Write(w, http.StatusCreated, toReadingResponse(reading))
}

func (h *ReadingsHandler) CreateBirthChart(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req dto.BirthChartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	reading, err := h.service.CreateBirthChart(r.Context(), identity.UserID, readingssvc.BirthChartInput{
		Name:       req.Name,
		BirthDate:  req.BirthDate,
		BirthTime:  req.BirthTime,
		BirthPlace: req.BirthPlace,
	})
	if err != nil {
		handleReadingError(w, err)
		return
	}

	httperrors.Write(w, http.StatusCreated, toReadingResponse(reading))
}

func (h *ReadingsHandler) CreateMoonReading(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req dto.MoonReadingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	reading, err := h.service.CreateMoonReading(r.Context(), identity.UserID, readingssvc.MoonReadingInput{
		Date:  req.Date,
		Focus: req.Focus,
	})
	if err != nil {
		handleReadingError(w, err)
		return
	}

	httperrors.Write(w, http.StatusCreated, toReadingResponse(reading))
}

func (h *ReadingsHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	kind, ok := enums.ParseFeatureType(chi.URLParam(r, "kind"))
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "unknown reading kind")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "VALIDATION_ERROR", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	list, err := h.service.List(r.Context(), identity.UserID, kind, limit)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to list readings")
		return
	}

	resp := dto.ReadingsListResponse{Readings: make([]dto.ReadingResponse, 0, len(list))}
	for _, reading := range list {
		resp.Readings = append(resp.Readings, toReadingResponse(reading))
	}

	httperrors.Write(w, http.StatusOK, resp)
}

func (h *ReadingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	readingID, err := strconv.ParseInt(chi.URLParam(r, "readingID"), 10, 64)
	if err != nil || readingID <= 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid reading id")
		return
	}

	reading, err := h.service.Get(r.Context(), identity.UserID, readingID)
	if err != nil {
		handleReadingError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, toReadingResponse(reading))
}

func (h *ReadingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	readingID, err := strconv.ParseInt(chi.URLParam(r, "readingID"), 10, 64)
	if err != nil || readingID <= 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid reading id")
		return
	}

	if err := h.service.Delete(r.Context(), identity.UserID, readingID); err != nil {
		handleReadingError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.DeleteReadingResponse{OK: true})
}

func handleReadingError(w http.ResponseWriter, err error) {
	var (
		noCredits *creditssvc.NoCreditsError
		limited   *readingssvc.RateLimitedError
	)
	switch {
	case errors.Is(err, readingssvc.ErrInvalidInput):
		writeBadRequest(w, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, creditssvc.ErrNotSubscribed):
		writePaymentRequired(w, "SUBSCRIPTION_REQUIRED", "an active subscription is required", nil)
	case errors.As(err, &noCredits):
		writePaymentRequired(w, "NO_CREDITS", "no credits remaining for this feature", resetAtPtr(noCredits.ResetAt))
	case errors.As(err, &limited):
		httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
			Code:          "RATE_LIMITED",
			Message:       "too many reading requests",
			RetryAfterSec: limited.RetryAfterSec,
		})
	case errors.Is(err, pgrepo.ErrReadingNotFound):
		writeNotFound(w, "NOT_FOUND", "reading not found")
	default:
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}

func toReadingResponse(reading model.Reading) dto.ReadingResponse {
	return dto.ReadingResponse{
		ID:        reading.ID,
		Kind:      string(reading.Kind),
		Subject:   reading.Subject,
		Body:      reading.Body,
		CreatedAt: reading.CreatedAt,
	}
}
