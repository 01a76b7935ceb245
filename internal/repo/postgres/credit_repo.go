package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astraweb/lunaria/backend/internal/domain/enums"
)

var (
	ErrBalanceNotFound     = errors.New("credit balance not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

type CreditBalanceRecord struct {
	UserID      int64
	FeatureType enums.FeatureType
	Remaining   int
	Used        int
	ResetAt     time.Time
	UpdatedAt   time.Time
}

type CreditRepo struct {
	pool *pgxpool.Pool
}

func NewCreditRepo(pool *pgxpool.Pool) *CreditRepo {
	return &CreditRepo{pool: pool}
}

func (r *CreditRepo) GetBalance(ctx context.Context, userID int64, feature enums.FeatureType) (CreditBalanceRecord, error) {
	if r.pool == nil {
		return CreditBalanceRecord{}, fmt.Errorf("postgres pool is nil")
	}
	return getBalance(ctx, r.pool, userID, feature)
}

// GetBalanceTx reads the balance inside an open transaction with a row
// lock, so the reset decision and the decrement that follow are made
// from the row state as of this transaction. Without the lock, two
// consumes straddling a period boundary can both observe the stale row
// and the later reset upsert erases the earlier decrement.
func (r *CreditRepo) GetBalanceTx(ctx context.Context, tx pgx.Tx, userID int64, feature enums.FeatureType) (CreditBalanceRecord, error) {
	if tx == nil {
		return CreditBalanceRecord{}, fmt.Errorf("transaction is required")
	}
	if userID <= 0 || feature == "" {
		return CreditBalanceRecord{}, fmt.Errorf("invalid balance lookup payload")
	}

	var rec CreditBalanceRecord
	err := tx.QueryRow(ctx, `
SELECT user_id, feature_type, remaining, used, reset_at, updated_at
FROM entitlement_balances
WHERE user_id = $1 AND feature_type = $2
LIMIT 1
FOR UPDATE
`, userID, string(feature)).Scan(
		&rec.UserID,
		&rec.FeatureType,
		&rec.Remaining,
		&rec.Used,
		&rec.ResetAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreditBalanceRecord{}, ErrBalanceNotFound
		}
		return CreditBalanceRecord{}, fmt.Errorf("get credit balance for update: %w", err)
	}

	return rec, nil
}

func getBalance(ctx context.Context, pool *pgxpool.Pool, userID int64, feature enums.FeatureType) (CreditBalanceRecord, error) {
	if userID <= 0 || feature == "" {
		return CreditBalanceRecord{}, fmt.Errorf("invalid balance lookup payload")
	}

	var rec CreditBalanceRecord
	err := pool.QueryRow(ctx, `
SELECT user_id, feature_type, remaining, used, reset_at, updated_at
FROM entitlement_balances
WHERE user_id = $1 AND feature_type = $2
LIMIT 1
`, userID, string(feature)).Scan(
		&rec.UserID,
		&rec.FeatureType,
		&rec.Remaining,
		&rec.Used,
		&rec.ResetAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreditBalanceRecord{}, ErrBalanceNotFound
		}
		return CreditBalanceRecord{}, fmt.Errorf("get credit balance: %w", err)
	}

	return rec, nil
}

func (r *CreditRepo) ListBalances(ctx context.Context, userID int64) ([]CreditBalanceRecord, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT user_id, feature_type, remaining, used, reset_at, updated_at
FROM entitlement_balances
WHERE user_id = $1
ORDER BY feature_type
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list credit balances: %w", err)
	}
	defer rows.Close()

	var records []CreditBalanceRecord
	for rows.Next() {
		var rec CreditBalanceRecord
		if err := rows.Scan(&rec.UserID, &rec.FeatureType, &rec.Remaining, &rec.Used, &rec.ResetAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan credit balance: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credit balances: %w", err)
	}

	return records, nil
}

// UpsertBalance writes the target balance state for one feature type.
// Idempotent: replaying the same values is a no-op beyond updated_at.
// Used by both first-time initialization and period resets, so the row
// count invariant (one per user+feature) holds by construction.
func (r *CreditRepo) UpsertBalance(ctx context.Context, tx pgx.Tx, userID int64, feature enums.FeatureType, remaining, used int, resetAt time.Time) error {
	if userID <= 0 || feature == "" || remaining < 0 || used < 0 {
		return fmt.Errorf("invalid balance upsert payload")
	}
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO entitlement_balances (
	user_id,
	feature_type,
	remaining,
	used,
	reset_at,
	updated_at
) VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (user_id, feature_type) DO UPDATE SET
	remaining = EXCLUDED.remaining,
	used = EXCLUDED.used,
	reset_at = EXCLUDED.reset_at,
	updated_at = NOW()
`, userID, string(feature), remaining, used, resetAt.UTC()); err != nil {
		return fmt.Errorf("upsert credit balance: %w", err)
	}

	return nil
}

// ConsumeCredit is the only sanctioned consumption path: one
// conditional update, decrement guarded by remaining > 0. Concurrent
// callers racing over the last unit serialize on the row lock and the
// loser gets ErrInsufficientCredits.
func (r *CreditRepo) ConsumeCredit(ctx context.Context, tx pgx.Tx, userID int64, feature enums.FeatureType) (int, error) {
	if userID <= 0 || feature == "" {
		return 0, fmt.Errorf("invalid credit consume payload")
	}
	if tx == nil {
		return 0, fmt.Errorf("transaction is required")
	}

	var remaining int
	err := tx.QueryRow(ctx, `
UPDATE entitlement_balances
SET
	remaining = remaining - 1,
	used = used + 1,
	updated_at = NOW()
WHERE
	user_id = $1
	AND feature_type = $2
	AND remaining > 0
RETURNING remaining
`, userID, string(feature)).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrInsufficientCredits
		}
		return 0, fmt.Errorf("consume credit: %w", err)
	}

	return remaining, nil
}

// RefundCredit compensates a consumed unit after a failed resource
// creation. Used never drops below zero even if replayed.
func (r *CreditRepo) RefundCredit(ctx context.Context, tx pgx.Tx, userID int64, feature enums.FeatureType) error {
	if userID <= 0 || feature == "" {
		return fmt.Errorf("invalid credit refund payload")
	}
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	if _, err := tx.Exec(ctx, `
UPDATE entitlement_balances
SET
	remaining = remaining + 1,
	used = GREATEST(used - 1, 0),
	updated_at = NOW()
WHERE user_id = $1 AND feature_type = $2
`, userID, string(feature)); err != nil {
		return fmt.Errorf("refund credit: %w", err)
	}

	return nil
}

// ZeroRemaining clears remaining units on the user's balance rows that
// still hold any, leaving used and reset_at untouched. Returns only the
// feature types actually changed so the caller audits each zero-out
// once; a replay finds nothing left to clear and returns no rows.
func (r *CreditRepo) ZeroRemaining(ctx context.Context, tx pgx.Tx, userID int64) ([]enums.FeatureType, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction is required")
	}

	rows, err := tx.Query(ctx, `
UPDATE entitlement_balances
SET
	remaining = 0,
	updated_at = NOW()
WHERE user_id = $1 AND remaining > 0
RETURNING feature_type
`, userID)
	if err != nil {
		return nil, fmt.Errorf("zero credit balances: %w", err)
	}
	defer rows.Close()

	var features []enums.FeatureType
	for rows.Next() {
		var feature enums.FeatureType
		if err := rows.Scan(&feature); err != nil {
			return nil, fmt.Errorf("scan zeroed feature type: %w", err)
		}
		features = append(features, feature)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate zeroed balances: %w", err)
	}

	return features, nil
}
