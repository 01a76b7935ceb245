package readings

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/astraweb/lunaria/backend/internal/domain/enums"
	pgrepo "github.com/astraweb/lunaria/backend/internal/repo/postgres"
	"github.com/astraweb/lunaria/backend/internal/services/credits"
)

type storeStub struct {
	records  []pgrepo.ReadingRecord
	nextID   int64
	failNext bool
}

func (s *storeStub) Create(_ context.Context, userID int64, kind enums.FeatureType, subject map[string]any, body string) (pgrepo.ReadingRecord, error) {
	if s.failNext {
		s.failNext = false
		return pgrepo.ReadingRecord{}, errors.New("insert failed")
	}
	s.nextID++
	rec := pgrepo.ReadingRecord{
		ID:        s.nextID,
		UserID:    userID,
		Kind:      kind,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now(),
	}
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *storeStub) FindByID(_ context.Context, userID, readingID int64) (pgrepo.ReadingRecord, error) {
	for _, rec := range s.records {
		if rec.ID == readingID && rec.UserID == userID {
			return rec, nil
		}
	}
	return pgrepo.ReadingRecord{}, pgrepo.ErrReadingNotFound
}

func (s *storeStub) ListByKind(_ context.Context, userID int64, kind enums.FeatureType, limit int) ([]pgrepo.ReadingRecord, error) {
	var out []pgrepo.ReadingRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.UserID == userID && rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *storeStub) Delete(_ context.Context, userID, readingID int64) error {
	out := s.records[:0]
	for _, rec := range s.records {
		if rec.ID == readingID && rec.UserID == userID {
			continue
		}
		out = append(out, rec)
	}
	s.records = out
	return nil
}

type meterStub struct {
	consumed   []enums.FeatureType
	refunded   []enums.FeatureType
	consumeErr error
	unmetered  bool
}

func (m *meterStub) CheckAndConsume(_ context.Context, _ int64, feature enums.FeatureType, _ *int64) (credits.ConsumeResult, error) {
	if m.consumeErr != nil {
		return credits.ConsumeResult{}, m.consumeErr
	}
	m.consumed = append(m.consumed, feature)
	return credits.ConsumeResult{Remaining: 1, Unmetered: m.unmetered}, nil
}

func (m *meterStub) Refund(_ context.Context, _ int64, feature enums.FeatureType, _ *int64) error {
	m.refunded = append(m.refunded, feature)
	return nil
}

type interpreterStub struct {
	body string
	err  error
}

func (i *interpreterStub) Complete(_ context.Context, _, _ string) (string, error) {
	if i.err != nil {
		return "", i.err
	}
	return i.body, nil
}

type limiterStub struct {
	denied     bool
	retryAfter int64
}

func (l *limiterStub) AllowReading(_ context.Context, _ int64) (int64, bool, error) {
	if l.denied {
		return l.retryAfter, false, nil
	}
	return 0, true, nil
}

func newReadingsServiceForTest() (*Service, *storeStub, *meterStub, *interpreterStub, *limiterStub) {
	store := &storeStub{}
	meter := &meterStub{}
	interp := &interpreterStub{body: "the stars align"}
	limiter := &limiterStub{}
	svc := NewService(store, meter, interp, limiter, zap.NewNop())
	return svc, store, meter, interp, limiter
}

func compatibilityInput() CompatibilityInput {
	return CompatibilityInput{
		FirstPerson:  PersonDetails{Name: "Vera", BirthDate: "1993-04-11"},
		SecondPerson: PersonDetails{Name: "Ilya", BirthDate: "1991-12-02"},
	}
}

func TestCreateCompatibilityConsumesAndPersists(t *testing.T) {
	svc, store, meter, _, _ := newReadingsServiceForTest()

	reading, err := svc.CreateCompatibility(context.Background(), 1, compatibilityInput())
	if err != nil {
		t.Fatal(err)
	}
	if reading.Kind != enums.FeatureCompatibility || reading.Body != "the stars align" {
		t.Fatalf("unexpected reading: %+v", reading)
	}
	if len(store.records) != 1 {
		t.Fatalf("reading not persisted")
	}
	if len(meter.consumed) != 1 || meter.consumed[0] != enums.FeatureCompatibility {
		t.Fatalf("credit not consumed: %+v", meter.consumed)
	}
	if len(meter.refunded) != 0 {
		t.Fatalf("unexpected refund: %+v", meter.refunded)
	}
}

func TestCreateRefundsWhenGenerationFails(t *testing.T) {
	svc, store, meter, interp, _ := newReadingsServiceForTest()
	interp.err = errors.New("model unavailable")

	_, err := svc.CreateBirthChart(context.Background(), 1, BirthChartInput{Name: "Vera", BirthDate: "1993-04-11"})
	if err == nil || !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected generation error, got %v", err)
	}
	if len(meter.consumed) != 1 || len(meter.refunded) != 1 {
		t.Fatalf("expected consume then refund, got %+v / %+v", meter.consumed, meter.refunded)
	}
	if len(store.records) != 0 {
		t.Fatalf("failed generation persisted a reading")
	}
}

func TestCreateRefundsWhenPersistFails(t *testing.T) {
	svc, store, meter, _, _ := newReadingsServiceForTest()
	store.failNext = true

	_, err := svc.CreateMoonReading(context.Background(), 1, MoonReadingInput{Focus: "career"})
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if len(meter.refunded) != 1 || meter.refunded[0] != enums.FeatureMoonReading {
		t.Fatalf("expected refund after failed insert: %+v", meter.refunded)
	}
}

func TestCreateDoesNotRefundUnmetered(t *testing.T) {
	svc, _, meter, interp, _ := newReadingsServiceForTest()
	meter.unmetered = true
	interp.err = errors.New("model unavailable")

	_, err := svc.CreateMoonReading(context.Background(), 9, MoonReadingInput{})
	if err == nil {
		t.Fatal("expected generation error")
	}
	if len(meter.refunded) != 0 {
		t.Fatalf("unmetered consume must not be refunded: %+v", meter.refunded)
	}
}

func TestCreateStopsOnCreditDenial(t *testing.T) {
	svc, store, meter, _, _ := newReadingsServiceForTest()
	meter.consumeErr = &credits.NoCreditsError{FeatureType: enums.FeatureCompatibility}

	_, err := svc.CreateCompatibility(context.Background(), 1, compatibilityInput())
	var noCredits *credits.NoCreditsError
	if !errors.As(err, &noCredits) {
		t.Fatalf("expected NoCreditsError passthrough, got %v", err)
	}
	if len(store.records) != 0 {
		t.Fatalf("denied request produced a reading")
	}
}

func TestCreateRateLimited(t *testing.T) {
	svc, _, meter, _, limiter := newReadingsServiceForTest()
	limiter.denied = true
	limiter.retryAfter = 42

	_, err := svc.CreateCompatibility(context.Background(), 1, compatibilityInput())
	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if limited.RetryAfterSec != 42 {
		t.Fatalf("unexpected retry after: %d", limited.RetryAfterSec)
	}
	if len(meter.consumed) != 0 {
		t.Fatalf("rate limited request consumed a credit")
	}
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _, meter, _, _ := newReadingsServiceForTest()

	in := compatibilityInput()
	in.SecondPerson.BirthDate = " "
	if _, err := svc.CreateCompatibility(context.Background(), 1, in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.CreateBirthChart(context.Background(), 1, BirthChartInput{BirthDate: "1990-01-01"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatal("expected ErrInvalidInput for missing name")
	}
	if len(meter.consumed) != 0 {
		t.Fatalf("invalid input consumed a credit")
	}
}

func TestListAndGetAndDelete(t *testing.T) {
	svc, _, _, _, _ := newReadingsServiceForTest()
	ctx := context.Background()

	first, err := svc.CreateCompatibility(ctx, 1, compatibilityInput())
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.CreateCompatibility(ctx, 1, compatibilityInput())
	if err != nil {
		t.Fatal(err)
	}

	list, err := svc.List(ctx, 1, enums.FeatureCompatibility, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Fatalf("unexpected list: %+v", list)
	}

	got, err := svc.Get(ctx, 1, first.ID)
	if err != nil || got.ID != first.ID {
		t.Fatalf("get failed: %+v %v", got, err)
	}
	if _, err := svc.Get(ctx, 2, first.ID); !errors.Is(err, pgrepo.ErrReadingNotFound) {
		t.Fatalf("cross-user get should be not found, got %v", err)
	}

	if err := svc.Delete(ctx, 1, first.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, 1, first.ID); !errors.Is(err, pgrepo.ErrReadingNotFound) {
		t.Fatalf("deleted reading still readable: %v", err)
	}
}
