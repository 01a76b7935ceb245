package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astraweb/lunaria/backend/internal/domain/enums"
)

var ErrReadingNotFound = errors.New("reading not found")

type ReadingRecord struct {
	ID        int64
	UserID    int64
	Kind      enums.FeatureType
	Subject   map[string]any
	Body      string
	CreatedAt time.Time
}

type ReadingRepo struct {
	pool *pgxpool.Pool
}

func NewReadingRepo(pool *pgxpool.Pool) *ReadingRepo {
	return &ReadingRepo{pool: pool}
}

func (r *ReadingRepo) Create(ctx context.Context, userID int64, kind enums.FeatureType, subject map[string]any, body string) (ReadingRecord, error) {
	if userID <= 0 || kind == "" || body == "" {
		return ReadingRecord{}, fmt.Errorf("invalid reading create payload")
	}
	if r.pool == nil {
		return ReadingRecord{}, fmt.Errorf("postgres pool is nil")
	}

	subjectJSON, err := json.Marshal(subject)
	if err != nil {
		return ReadingRecord{}, fmt.Errorf("marshal reading subject: %w", err)
	}

	rec := ReadingRecord{
		UserID:  userID,
		Kind:    kind,
		Subject: subject,
		Body:    body,
	}
	err = r.pool.QueryRow(ctx, `
INSERT INTO readings (user_id, kind, subject, body, created_at)
VALUES ($1, $2, $3::jsonb, $4, NOW())
RETURNING id, created_at
`, userID, string(kind), subjectJSON, body).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return ReadingRecord{}, fmt.Errorf("create reading: %w", err)
	}

	return rec, nil
}

func (r *ReadingRepo) FindByID(ctx context.Context, userID, readingID int64) (ReadingRecord, error) {
	if userID <= 0 || readingID <= 0 {
		return ReadingRecord{}, fmt.Errorf("invalid reading lookup payload")
	}
	if r.pool == nil {
		return ReadingRecord{}, fmt.Errorf("postgres pool is nil")
	}

	var (
		rec         ReadingRecord
		subjectJSON []byte
	)
	err := r.pool.QueryRow(ctx, `
SELECT id, user_id, kind, subject, body, created_at
FROM readings
WHERE id = $1 AND user_id = $2
LIMIT 1
`, readingID, userID).Scan(&rec.ID, &rec.UserID, &rec.Kind, &subjectJSON, &rec.Body, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReadingRecord{}, ErrReadingNotFound
		}
		return ReadingRecord{}, fmt.Errorf("find reading: %w", err)
	}

	if len(subjectJSON) > 0 {
		if err := json.Unmarshal(subjectJSON, &rec.Subject); err != nil {
			return ReadingRecord{}, fmt.Errorf("unmarshal reading subject: %w", err)
		}
	}

	return rec, nil
}

func (r *ReadingRepo) ListByKind(ctx context.Context, userID int64, kind enums.FeatureType, limit int) ([]ReadingRecord, error) {
	if userID <= 0 || kind == "" {
		return nil, fmt.Errorf("invalid reading list payload")
	}
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, kind, subject, body, created_at
FROM readings
WHERE user_id = $1 AND kind = $2
ORDER BY created_at DESC, id DESC
LIMIT $3
`, userID, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer rows.Close()

	var records []ReadingRecord
	for rows.Next() {
		var (
			rec         ReadingRecord
			subjectJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Kind, &subjectJSON, &rec.Body, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		if len(subjectJSON) > 0 {
			if err := json.Unmarshal(subjectJSON, &rec.Subject); err != nil {
				return nil, fmt.Errorf("unmarshal reading subject: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}

	return records, nil
}

// DeleteOlderThan prunes readings created before the cutoff,
// regardless of owner. Used by the retention job only.
func (r *ReadingRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
DELETE FROM readings
WHERE created_at < $1
`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete stale readings: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Delete removes a reading the user owns. Consumed credits are not
// restored; deletion only affects history.
func (r *ReadingRepo) Delete(ctx context.Context, userID, readingID int64) error {
	if userID <= 0 || readingID <= 0 {
		return fmt.Errorf("invalid reading delete payload")
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
DELETE FROM readings
WHERE id = $1 AND user_id = $2
`, readingID, userID); err != nil {
		return fmt.Errorf("delete reading: %w", err)
	}

	return nil
}
