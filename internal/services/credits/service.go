package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astraweb/lunaria/backend/internal/domain/enums"
	"github.com/astraweb/lunaria/backend/internal/domain/model"
	"github.com/astraweb/lunaria/backend/internal/domain/rules"
	pgrepo "github.com/astraweb/lunaria/backend/internal/repo/postgres"
)

type BalanceStore interface {
	GetBalance(ctx context.Context, userID int64, feature enums.FeatureType) (pgrepo.CreditBalanceRecord, error)
	GetBalanceTx(ctx context.Context, tx pgx.Tx, userID int64, feature enums.FeatureType) (pgrepo.CreditBalanceRecord, error)
	ListBalances(ctx context.Context, userID int64) ([]pgrepo.CreditBalanceRecord, error)
	UpsertBalance(ctx context.Context, tx pgx.Tx, userID int64, feature enums.FeatureType, remaining, used int, resetAt time.Time) error
	ConsumeCredit(ctx context.Context, tx pgx.Tx, userID int64, feature enums.FeatureType) (int, error)
	RefundCredit(ctx context.Context, tx pgx.Tx, userID int64, feature enums.FeatureType) error
	ZeroRemaining(ctx context.Context, tx pgx.Tx, userID int64) ([]enums.FeatureType, error)
}

type LedgerStore interface {
	Append(ctx context.Context, tx pgx.Tx, entry pgrepo.LedgerEntryRecord) error
	ListRecent(ctx context.Context, userID int64, action enums.LedgerAction, limit int) ([]pgrepo.LedgerEntryRecord, error)
}

type UserStore interface {
	FindByID(ctx context.Context, userID int64) (pgrepo.UserRecord, error)
}

// Service owns every credit balance mutation. Nothing else in the
// codebase touches entitlement_balances or usage_ledger directly.
type Service struct {
	balances   BalanceStore
	ledger     LedgerStore
	users      UserStore
	allotments map[enums.FeatureType]int

	runTx func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
	now   func() time.Time
}

type Dependencies struct {
	Pool       *pgxpool.Pool
	Balances   BalanceStore
	Ledger     LedgerStore
	Users      UserStore
	Allotments map[enums.FeatureType]int
}

func NewService(deps Dependencies) *Service {
	pool := deps.Pool
	return &Service{
		balances:   deps.Balances,
		ledger:     deps.Ledger,
		users:      deps.Users,
		allotments: deps.Allotments,
		runTx: func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
			return pgrepo.WithTx(ctx, pool, fn)
		},
		now: time.Now,
	}
}

// Evaluate answers "may this user use this feature right now" without
// consuming anything. A balance whose period has lapsed is judged as
// if the rollover had already happened; the actual rewrite is deferred
// to the next consume.
func (s *Service) Evaluate(ctx context.Context, userID int64, feature enums.FeatureType) (Access, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return Access{}, err
	}

	if enums.Role(user.Role) == enums.RoleAdmin {
		return Access{Allowed: true, Unmetered: true}, nil
	}

	if !subscribed(user) {
		return Access{Reason: DenyNotSubscribed}, nil
	}

	now := s.now()

	balance, err := s.balances.GetBalance(ctx, userID, feature)
	if err != nil {
		if errors.Is(err, pgrepo.ErrBalanceNotFound) {
			return Access{Reason: DenyNoCredits, ResetAt: rules.NextMonthStart(now)}, nil
		}
		return Access{}, err
	}

	if rules.PeriodExpired(now, balance.ResetAt) {
		allotment := s.allotments[feature]
		if allotment <= 0 {
			return Access{Reason: DenyNoCredits, ResetAt: rules.NextMonthStart(now)}, nil
		}
		return Access{Allowed: true, Remaining: allotment, ResetAt: rules.NextMonthStart(now)}, nil
	}

	if balance.Remaining <= 0 {
		return Access{Reason: DenyNoCredits, ResetAt: balance.ResetAt}, nil
	}

	return Access{Allowed: true, Remaining: balance.Remaining, ResetAt: balance.ResetAt}, nil
}

// CheckAndConsume atomically takes one credit for the feature. The
// lazy period rollover and the decrement share one transaction, so a
// stale balance can never satisfy a consume and a rollover can never
// be lost to a racing request. Admins pass through unmetered with no
// balance row and no ledger entry.
func (s *Service) CheckAndConsume(ctx context.Context, userID int64, feature enums.FeatureType, related *int64) (ConsumeResult, error) {
	if _, ok := enums.ParseFeatureType(string(feature)); !ok {
		return ConsumeResult{}, fmt.Errorf("unknown feature type %q", feature)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return ConsumeResult{}, err
	}

	if enums.Role(user.Role) == enums.RoleAdmin {
		return ConsumeResult{Unmetered: true}, nil
	}

	if !subscribed(user) {
		return ConsumeResult{}, ErrNotSubscribed
	}

	var result ConsumeResult
	err = s.runTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		now := s.now()

		balance, err := s.balances.GetBalanceTx(ctx, tx, userID, feature)
		if err != nil {
			if errors.Is(err, pgrepo.ErrBalanceNotFound) {
				return &NoCreditsError{FeatureType: feature, ResetAt: rules.NextMonthStart(now)}
			}
			return err
		}

		resetAt := balance.ResetAt
		if rules.PeriodExpired(now, resetAt) {
			allotment := s.allotments[feature]
			resetAt = rules.NextMonthStart(now)

			if err := s.balances.UpsertBalance(ctx, tx, userID, feature, allotment, 0, resetAt); err != nil {
				return err
			}
			if err := s.ledger.Append(ctx, tx, pgrepo.LedgerEntryRecord{
				UserID:      userID,
				FeatureType: feature,
				Action:      enums.LedgerActionReset,
				Amount:      allotment,
				Description: "monthly credit reset",
			}); err != nil {
				return err
			}
		}

		remaining, err := s.balances.ConsumeCredit(ctx, tx, userID, feature)
		if err != nil {
			if errors.Is(err, pgrepo.ErrInsufficientCredits) {
				return &NoCreditsError{FeatureType: feature, ResetAt: resetAt}
			}
			return err
		}

		if err := s.ledger.Append(ctx, tx, pgrepo.LedgerEntryRecord{
			UserID:      userID,
			FeatureType: feature,
			Action:      enums.LedgerActionConsumed,
			Amount:      1,
			Description: "used 1 credit",
			RelatedID:   related,
		}); err != nil {
			return err
		}

		result = ConsumeResult{Remaining: remaining}
		return nil
	})
	if err != nil {
		return ConsumeResult{}, err
	}

	return result, nil
}

// Refund compensates a consumed credit after the resource it paid for
// failed to materialize. The restored unit lands in the current
// balance row even if a rollover happened in between; the ledger entry
// keeps the audit trail honest either way.
func (s *Service) Refund(ctx context.Context, userID int64, feature enums.FeatureType, related *int64) error {
	if _, ok := enums.ParseFeatureType(string(feature)); !ok {
		return fmt.Errorf("unknown feature type %q", feature)
	}
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	return s.runTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.balances.RefundCredit(ctx, tx, userID, feature); err != nil {
			return err
		}
		return s.ledger.Append(ctx, tx, pgrepo.LedgerEntryRecord{
			UserID:      userID,
			FeatureType: feature,
			Action:      enums.LedgerActionAdded,
			Amount:      1,
			Description: "compensating refund",
			RelatedID:   related,
		})
	})
}

// GrantMonthlyAllotment writes a full fresh allotment for every
// metered feature. Called on subscription activation and on each
// renewal invoice. Replaying it lands on the same balance state, so a
// webhook retry is harmless.
func (s *Service) GrantMonthlyAllotment(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	return s.runTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		resetAt := rules.NextMonthStart(s.now())

		for _, feature := range enums.AllFeatureTypes() {
			allotment := s.allotments[feature]
			if err := s.balances.UpsertBalance(ctx, tx, userID, feature, allotment, 0, resetAt); err != nil {
				return err
			}
			if err := s.ledger.Append(ctx, tx, pgrepo.LedgerEntryRecord{
				UserID:      userID,
				FeatureType: feature,
				Action:      enums.LedgerActionAdded,
				Amount:      allotment,
				Description: "monthly credit allocation",
			}); err != nil {
				return err
			}
		}

		return nil
	})
}

// ZeroAllBalances revokes every remaining credit, leaving used counts
// and the audit trail intact. Called when a subscription ends. Safe to
// replay: the second run touches rows already at zero and records that
// it did so.
func (s *Service) ZeroAllBalances(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	return s.runTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		features, err := s.balances.ZeroRemaining(ctx, tx, userID)
		if err != nil {
			return err
		}

		for _, feature := range features {
			if err := s.ledger.Append(ctx, tx, pgrepo.LedgerEntryRecord{
				UserID:      userID,
				FeatureType: feature,
				Action:      enums.LedgerActionReset,
				Amount:      0,
				Description: "subscription canceled",
			}); err != nil {
				return err
			}
		}

		return nil
	})
}

// Overview assembles the balances view for the account page. Lapsed
// periods are projected forward the same way Evaluate does, so the
// numbers shown always match what a consume would find.
func (s *Service) Overview(ctx context.Context, userID int64) (Overview, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return Overview{}, err
	}

	ov := Overview{
		Subscribed: subscribed(user),
		Unmetered:  enums.Role(user.Role) == enums.RoleAdmin,
	}

	records, err := s.balances.ListBalances(ctx, userID)
	if err != nil {
		return Overview{}, err
	}

	now := s.now()
	for _, rec := range records {
		fb := FeatureBalance{
			FeatureType: rec.FeatureType,
			Remaining:   rec.Remaining,
			Used:        rec.Used,
			Allotment:   s.allotments[rec.FeatureType],
			ResetAt:     rec.ResetAt,
		}
		if rules.PeriodExpired(now, rec.ResetAt) && ov.Subscribed {
			fb.Remaining = fb.Allotment
			fb.Used = 0
			fb.ResetAt = rules.NextMonthStart(now)
		}
		fb.DaysUntilReset = rules.DaysUntil(now, fb.ResetAt)
		ov.Balances = append(ov.Balances, fb)
	}

	return ov, nil
}

// History returns recent ledger entries, newest first. An empty action
// returns all entry kinds.
func (s *Service) History(ctx context.Context, userID int64, action enums.LedgerAction, limit int) ([]model.LedgerEntry, error) {
	records, err := s.ledger.ListRecent(ctx, userID, action, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]model.LedgerEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, model.LedgerEntry{
			ID:          rec.ID,
			UserID:      rec.UserID,
			FeatureType: rec.FeatureType,
			Action:      rec.Action,
			Amount:      rec.Amount,
			Description: rec.Description,
			RelatedID:   rec.RelatedID,
			CreatedAt:   rec.CreatedAt,
		})
	}

	return entries, nil
}

func subscribed(user pgrepo.UserRecord) bool {
	return user.BillingSubscriptionID != nil && *user.BillingSubscriptionID != ""
}
