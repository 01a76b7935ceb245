package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"go.uber.org/zap"

	"github.com/astraweb/lunaria/backend/internal/config"
	pgrepo "github.com/astraweb/lunaria/backend/internal/repo/postgres"
)

var (
	ErrNotConfigured    = errors.New("billing is not configured")
	ErrNoBillingAccount = errors.New("no billing account for user")
)

type UserStore interface {
	FindByID(ctx context.Context, userID int64) (pgrepo.UserRecord, error)
	FindByBillingCustomerID(ctx context.Context, customerID string) (pgrepo.UserRecord, error)
	SetBillingCustomerID(ctx context.Context, userID int64, customerID string) error
	SetSubscriptionRef(ctx context.Context, userID int64, subscriptionID string) error
	ClearSubscriptionRef(ctx context.Context, userID int64) error
}

type CreditGranter interface {
	GrantMonthlyAllotment(ctx context.Context, userID int64) error
	ZeroAllBalances(ctx context.Context, userID int64) error
}

// Service reconciles the local subscription state with the billing
// provider. Webhook events are the source of truth; the local columns
// and credit balances follow them.
type Service struct {
	users   UserStore
	credits CreditGranter
	cfg     config.StripeConfig
	log     *zap.Logger

	newCustomer func(params *stripe.CustomerParams) (*stripe.Customer, error)
	newCheckout func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	newPortal   func(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

func NewService(users UserStore, credits CreditGranter, cfg config.StripeConfig, log *zap.Logger) *Service {
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		users:       users,
		credits:     credits,
		cfg:         cfg,
		log:         log,
		newCustomer: customer.New,
		newCheckout: session.New,
		newPortal:   portal.New,
	}
}

// HandleEvent applies one verified webhook event. Business no-ops
// (unknown event types, customers we have no user for, statuses we do
// not track) return nil so the provider sees a 200 and stops
// retrying; only store failures surface as errors.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		return s.handleSubscriptionUpsert(ctx, event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_succeeded":
		return s.handleInvoicePaid(ctx, event)
	default:
		s.log.Debug("ignoring billing event", zap.String("type", string(event.Type)))
		return nil
	}
}

func (s *Service) handleSubscriptionUpsert(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("unmarshal subscription event: %w", err)
	}

	user, ok, err := s.resolveCustomer(ctx, customerID(sub.Customer), event.Type)
	if err != nil || !ok {
		return err
	}

	if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
		s.log.Debug("ignoring subscription status",
			zap.Int64("user_id", user.ID),
			zap.String("status", string(sub.Status)))
		return nil
	}

	if err := s.users.SetSubscriptionRef(ctx, user.ID, sub.ID); err != nil {
		return fmt.Errorf("set subscription ref: %w", err)
	}
	if err := s.credits.GrantMonthlyAllotment(ctx, user.ID); err != nil {
		return fmt.Errorf("grant credits on activation: %w", err)
	}

	s.log.Info("subscription activated",
		zap.Int64("user_id", user.ID),
		zap.String("subscription_id", sub.ID))
	return nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("unmarshal subscription event: %w", err)
	}

	user, ok, err := s.resolveCustomer(ctx, customerID(sub.Customer), event.Type)
	if err != nil || !ok {
		return err
	}

	if err := s.users.ClearSubscriptionRef(ctx, user.ID); err != nil {
		return fmt.Errorf("clear subscription ref: %w", err)
	}
	if err := s.credits.ZeroAllBalances(ctx, user.ID); err != nil {
		return fmt.Errorf("zero credits on cancellation: %w", err)
	}

	s.log.Info("subscription ended", zap.Int64("user_id", user.ID))
	return nil
}

func (s *Service) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("unmarshal invoice event: %w", err)
	}

	// Only renewal invoices refresh credits. The first invoice of a
	// subscription is covered by the subscription.created grant.
	if inv.BillingReason != stripe.InvoiceBillingReasonSubscriptionCycle {
		s.log.Debug("ignoring invoice billing reason", zap.String("reason", string(inv.BillingReason)))
		return nil
	}

	user, ok, err := s.resolveCustomer(ctx, customerID(inv.Customer), event.Type)
	if err != nil || !ok {
		return err
	}

	if err := s.credits.GrantMonthlyAllotment(ctx, user.ID); err != nil {
		return fmt.Errorf("grant credits on renewal: %w", err)
	}

	s.log.Info("credits refreshed on renewal", zap.Int64("user_id", user.ID))
	return nil
}

// resolveCustomer maps the provider customer reference to a local
// user. A missing mapping is logged and swallowed: failing the webhook
// would only make the provider retry an event we can never apply.
func (s *Service) resolveCustomer(ctx context.Context, custID string, eventType stripe.EventType) (pgrepo.UserRecord, bool, error) {
	if custID == "" {
		s.log.Warn("billing event without customer id", zap.String("type", string(eventType)))
		return pgrepo.UserRecord{}, false, nil
	}

	user, err := s.users.FindByBillingCustomerID(ctx, custID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			s.log.Warn("billing event for unknown customer",
				zap.String("type", string(eventType)),
				zap.String("customer_id", custID))
			return pgrepo.UserRecord{}, false, nil
		}
		return pgrepo.UserRecord{}, false, fmt.Errorf("resolve billing customer: %w", err)
	}

	return user, true, nil
}

// CreateCheckoutSession returns a hosted checkout URL for the premium
// plan, creating the billing customer on first use.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID int64) (string, error) {
	frontendURL := strings.TrimRight(s.cfg.FrontendURL, "/")
	if s.cfg.PriceIDPremium == "" || frontendURL == "" {
		return "", ErrNotConfigured
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}

	custID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	sess, err := s.newCheckout(&stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(custID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.cfg.PriceIDPremium),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(frontendURL + "/billing/success"),
		CancelURL:  stripe.String(frontendURL + "/billing/cancel"),
	})
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}

	return sess.URL, nil
}

// CreatePortalSession returns a hosted billing portal URL. The user
// must already have a billing customer.
func (s *Service) CreatePortalSession(ctx context.Context, userID int64) (string, error) {
	frontendURL := strings.TrimRight(s.cfg.FrontendURL, "/")
	if frontendURL == "" {
		return "", ErrNotConfigured
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.BillingCustomerID == nil || *user.BillingCustomerID == "" {
		return "", ErrNoBillingAccount
	}

	sess, err := s.newPortal(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*user.BillingCustomerID),
		ReturnURL: stripe.String(frontendURL + "/account/billing"),
	})
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}

	return sess.URL, nil
}

func (s *Service) ensureCustomer(ctx context.Context, user pgrepo.UserRecord) (string, error) {
	if user.BillingCustomerID != nil && *user.BillingCustomerID != "" {
		return *user.BillingCustomerID, nil
	}

	cust, err := s.newCustomer(&stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Metadata: map[string]string{
			"user_id": fmt.Sprintf("%d", user.ID),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create billing customer: %w", err)
	}

	if err := s.users.SetBillingCustomerID(ctx, user.ID, cust.ID); err != nil {
		return "", fmt.Errorf("store billing customer id: %w", err)
	}

	return cust.ID, nil
}

func customerID(cust *stripe.Customer) string {
	if cust == nil {
		return ""
	}
	return cust.ID
}
