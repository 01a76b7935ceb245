package readings

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/astraweb/lunaria/backend/internal/domain/enums"
	"github.com/astraweb/lunaria/backend/internal/domain/model"
	"github.com/astraweb/lunaria/backend/internal/pkg/validate"
	pgrepo "github.com/astraweb/lunaria/backend/internal/repo/postgres"
	"github.com/astraweb/lunaria/backend/internal/services/credits"
)

type ReadingStore interface {
	Create(ctx context.Context, userID int64, kind enums.FeatureType, subject map[string]any, body string) (pgrepo.ReadingRecord, error)
	FindByID(ctx context.Context, userID, readingID int64) (pgrepo.ReadingRecord, error)
	ListByKind(ctx context.Context, userID int64, kind enums.FeatureType, limit int) ([]pgrepo.ReadingRecord, error)
	Delete(ctx context.Context, userID, readingID int64) error
}

type CreditMeter interface {
	CheckAndConsume(ctx context.Context, userID int64, feature enums.FeatureType, related *int64) (credits.ConsumeResult, error)
	Refund(ctx context.Context, userID int64, feature enums.FeatureType, related *int64) error
}

// Interpreter produces the reading text. Satisfied by the oracle
// client; tests substitute a stub.
type Interpreter interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

type ReadingLimiter interface {
	AllowReading(ctx context.Context, userID int64) (int64, bool, error)
}

// Service generates paid readings. A credit is consumed before the
// text is generated; if generation or persistence fails afterward,
// the credit is refunded so the user never pays for nothing.
type Service struct {
	store       ReadingStore
	meter       CreditMeter
	interpreter Interpreter
	limiter     ReadingLimiter
	log         *zap.Logger

	now func() time.Time
}

func NewService(store ReadingStore, meter CreditMeter, interpreter Interpreter, limiter ReadingLimiter, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		store:       store,
		meter:       meter,
		interpreter: interpreter,
		limiter:     limiter,
		log:         log,
		now:         time.Now,
	}
}

func (s *Service) CreateCompatibility(ctx context.Context, userID int64, in CompatibilityInput) (model.Reading, error) {
	if err := validatePerson(in.FirstPerson, "first person"); err != nil {
		return model.Reading{}, err
	}
	if err := validatePerson(in.SecondPerson, "second person"); err != nil {
		return model.Reading{}, err
	}

	subject := map[string]any{
		"first_person":  in.FirstPerson,
		"second_person": in.SecondPerson,
	}
	return s.create(ctx, userID, enums.FeatureCompatibility, subject, compatibilityPrompt(in))
}

func (s *Service) CreateBirthChart(ctx context.Context, userID int64, in BirthChartInput) (model.Reading, error) {
	if !validate.Required(in.Name) {
		return model.Reading{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !validate.Date(in.BirthDate) {
		return model.Reading{}, fmt.Errorf("%w: birth date must be YYYY-MM-DD", ErrInvalidInput)
	}

	subject := map[string]any{
		"name":        in.Name,
		"birth_date":  in.BirthDate,
		"birth_time":  in.BirthTime,
		"birth_place": in.BirthPlace,
	}
	return s.create(ctx, userID, enums.FeatureBirthChart, subject, birthChartPrompt(in))
}

func (s *Service) CreateMoonReading(ctx context.Context, userID int64, in MoonReadingInput) (model.Reading, error) {
	subject := map[string]any{
		"date":  in.Date,
		"focus": in.Focus,
	}
	return s.create(ctx, userID, enums.FeatureMoonReading, subject, moonReadingPrompt(in, s.now()))
}

// create is the shared consume-generate-persist pipeline. Order
// matters: the credit gate runs first so an out-of-credits user never
// triggers a model call, and everything after a successful consume is
// compensated on failure.
func (s *Service) create(ctx context.Context, userID int64, kind enums.FeatureType, subject map[string]any, prompt string) (model.Reading, error) {
	if s.limiter != nil {
		retryAfter, ok, err := s.limiter.AllowReading(ctx, userID)
		if err != nil {
			return model.Reading{}, fmt.Errorf("reading rate check: %w", err)
		}
		if !ok {
			return model.Reading{}, &RateLimitedError{RetryAfterSec: retryAfter}
		}
	}

	res, err := s.meter.CheckAndConsume(ctx, userID, kind, nil)
	if err != nil {
		return model.Reading{}, err
	}

	body, err := s.interpreter.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		s.compensate(ctx, userID, kind, res.Unmetered)
		return model.Reading{}, fmt.Errorf("generate %s reading: %w", kind, err)
	}

	rec, err := s.store.Create(ctx, userID, kind, subject, body)
	if err != nil {
		s.compensate(ctx, userID, kind, res.Unmetered)
		return model.Reading{}, fmt.Errorf("store %s reading: %w", kind, err)
	}

	return toModel(rec), nil
}

// compensate refunds the consumed credit after a failed creation. A
// refund failure is not returned to the caller, who already has the
// original error; it is logged loudly instead because it leaves the
// user one credit short.
func (s *Service) compensate(ctx context.Context, userID int64, kind enums.FeatureType, unmetered bool) {
	if unmetered {
		return
	}
	if err := s.meter.Refund(ctx, userID, kind, nil); err != nil {
		s.log.Error("credit refund after failed reading",
			zap.Int64("user_id", userID),
			zap.String("feature", string(kind)),
			zap.Error(err))
	}
}

func (s *Service) Get(ctx context.Context, userID, readingID int64) (model.Reading, error) {
	rec, err := s.store.FindByID(ctx, userID, readingID)
	if err != nil {
		return model.Reading{}, err
	}
	return toModel(rec), nil
}

func (s *Service) List(ctx context.Context, userID int64, kind enums.FeatureType, limit int) ([]model.Reading, error) {
	records, err := s.store.ListByKind(ctx, userID, kind, limit)
	if err != nil {
		return nil, err
	}

	out := make([]model.Reading, 0, len(records))
	for _, rec := range records {
		out = append(out, toModel(rec))
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, userID, readingID int64) error {
	return s.store.Delete(ctx, userID, readingID)
}

func validatePerson(p PersonDetails, label string) error {
	if !validate.Required(p.Name) {
		return fmt.Errorf("%w: %s name is required", ErrInvalidInput, label)
	}
	if !validate.Date(p.BirthDate) {
		return fmt.Errorf("%w: %s birth date must be YYYY-MM-DD", ErrInvalidInput, label)
	}
	return nil
}

func toModel(rec pgrepo.ReadingRecord) model.Reading {
	return model.Reading{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Kind:      rec.Kind,
		Subject:   rec.Subject,
		Body:      rec.Body,
		CreatedAt: rec.CreatedAt,
	}
}
