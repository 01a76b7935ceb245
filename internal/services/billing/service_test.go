package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"github.com/astraweb/lunaria/backend/internal/config"
	pgrepo "github.com/astraweb/lunaria/backend/internal/repo/postgres"
)

type userStoreStub struct {
	byID         map[int64]pgrepo.UserRecord
	byCustomer   map[string]int64
	failSetRef   bool
	setRefs      map[int64]string
	clearedRefs  []int64
	setCustomers map[int64]string
}

func newUserStoreStub() *userStoreStub {
	return &userStoreStub{
		byID:         make(map[int64]pgrepo.UserRecord),
		byCustomer:   make(map[string]int64),
		setRefs:      make(map[int64]string),
		setCustomers: make(map[int64]string),
	}
}

func (s *userStoreStub) add(userID int64, customerID string) {
	rec := pgrepo.UserRecord{ID: userID, Email: fmt.Sprintf("u%d@example.com", userID), Role: "user"}
	if customerID != "" {
		rec.BillingCustomerID = &customerID
		s.byCustomer[customerID] = userID
	}
	s.byID[userID] = rec
}

func (s *userStoreStub) FindByID(_ context.Context, userID int64) (pgrepo.UserRecord, error) {
	rec, ok := s.byID[userID]
	if !ok {
		return pgrepo.UserRecord{}, pgrepo.ErrUserNotFound
	}
	return rec, nil
}

func (s *userStoreStub) FindByBillingCustomerID(_ context.Context, customerID string) (pgrepo.UserRecord, error) {
	userID, ok := s.byCustomer[customerID]
	if !ok {
		return pgrepo.UserRecord{}, pgrepo.ErrUserNotFound
	}
	return s.byID[userID], nil
}

func (s *userStoreStub) SetBillingCustomerID(_ context.Context, userID int64, customerID string) error {
	rec := s.byID[userID]
	rec.BillingCustomerID = &customerID
	s.byID[userID] = rec
	s.byCustomer[customerID] = userID
	s.setCustomers[userID] = customerID
	return nil
}

func (s *userStoreStub) SetSubscriptionRef(_ context.Context, userID int64, subscriptionID string) error {
	if s.failSetRef {
		return errors.New("store down")
	}
	s.setRefs[userID] = subscriptionID
	return nil
}

func (s *userStoreStub) ClearSubscriptionRef(_ context.Context, userID int64) error {
	s.clearedRefs = append(s.clearedRefs, userID)
	delete(s.setRefs, userID)
	return nil
}

type granterStub struct {
	granted []int64
	zeroed  []int64
}

func (g *granterStub) GrantMonthlyAllotment(_ context.Context, userID int64) error {
	g.granted = append(g.granted, userID)
	return nil
}

func (g *granterStub) ZeroAllBalances(_ context.Context, userID int64) error {
	g.zeroed = append(g.zeroed, userID)
	return nil
}

func newBillingServiceForTest() (*Service, *userStoreStub, *granterStub) {
	users := newUserStoreStub()
	granter := &granterStub{}
	cfg := config.StripeConfig{
		PriceIDPremium: "price_premium",
		FrontendURL:    "https://lunaria.example/",
	}
	return NewService(users, granter, cfg, zap.NewNop()), users, granter
}

func subscriptionEvent(eventType, subID, custID, status string) stripe.Event {
	raw, _ := json.Marshal(map[string]any{
		"id":       subID,
		"customer": custID,
		"status":   status,
	})
	return stripe.Event{
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func invoiceEvent(custID, billingReason string) stripe.Event {
	raw, _ := json.Marshal(map[string]any{
		"customer":       custID,
		"billing_reason": billingReason,
	})
	return stripe.Event{
		Type: "invoice.payment_succeeded",
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventActivatesSubscription(t *testing.T) {
	svc, users, granter := newBillingServiceForTest()
	users.add(1, "cus_1")

	event := subscriptionEvent("customer.subscription.created", "sub_1", "cus_1", "active")
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatal(err)
	}

	if users.setRefs[1] != "sub_1" {
		t.Fatalf("subscription ref not stored: %+v", users.setRefs)
	}
	if len(granter.granted) != 1 || granter.granted[0] != 1 {
		t.Fatalf("credits not granted: %+v", granter.granted)
	}
}

func TestHandleEventTrialingCountsAsActive(t *testing.T) {
	svc, users, granter := newBillingServiceForTest()
	users.add(1, "cus_1")

	event := subscriptionEvent("customer.subscription.updated", "sub_1", "cus_1", "trialing")
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatal(err)
	}
	if users.setRefs[1] != "sub_1" || len(granter.granted) != 1 {
		t.Fatalf("trialing subscription not activated")
	}
}

func TestHandleEventIgnoresUntrackedStatus(t *testing.T) {
	svc, users, granter := newBillingServiceForTest()
	users.add(1, "cus_1")

	event := subscriptionEvent("customer.subscription.updated", "sub_1", "cus_1", "past_due")
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatal(err)
	}
	if len(users.setRefs) != 0 || len(granter.granted) != 0 {
		t.Fatalf("past_due subscription should not activate")
	}
}

func TestHandleEventDeletedClearsAndZeroes(t *testing.T) {
	svc, users, granter := newBillingServiceForTest()
	users.add(1, "cus_1")

	event := subscriptionEvent("customer.subscription.deleted", "sub_1", "cus_1", "canceled")
	for i := 0; i < 2; i++ {
		if err := svc.HandleEvent(context.Background(), event); err != nil {
			t.Fatalf("replay %d: %v", i+1, err)
		}
	}

	if len(users.clearedRefs) != 2 {
		t.Fatalf("subscription ref not cleared on each delivery: %+v", users.clearedRefs)
	}
	if len(granter.zeroed) != 2 {
		t.Fatalf("balances not zeroed on each delivery: %+v", granter.zeroed)
	}
	if len(granter.granted) != 0 {
		t.Fatalf("deletion must not grant credits")
	}
}

func TestHandleEventRenewalInvoiceGrants(t *testing.T) {
	svc, users, granter := newBillingServiceForTest()
	users.add(1, "cus_1")
	ctx := context.Background()

	if err := svc.HandleEvent(ctx, invoiceEvent("cus_1", "subscription_cycle")); err != nil {
		t.Fatal(err)
	}
	if len(granter.granted) != 1 {
		t.Fatalf("renewal invoice did not grant: %+v", granter.granted)
	}

	if err := svc.HandleEvent(ctx, invoiceEvent("cus_1", "subscription_create")); err != nil {
		t.Fatal(err)
	}
	if len(granter.granted) != 1 {
		t.Fatalf("non-cycle invoice granted credits: %+v", granter.granted)
	}
}

func TestHandleEventUnknownCustomerIsSwallowed(t *testing.T) {
	svc, _, granter := newBillingServiceForTest()

	event := subscriptionEvent("customer.subscription.created", "sub_1", "cus_missing", "active")
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown customer should not fail the webhook: %v", err)
	}
	if len(granter.granted) != 0 {
		t.Fatalf("unknown customer granted credits")
	}
}

func TestHandleEventUnknownTypeIsNoOp(t *testing.T) {
	svc, _, granter := newBillingServiceForTest()

	event := stripe.Event{Type: "charge.refunded", Data: &stripe.EventData{Raw: json.RawMessage(`{}`)}}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatal(err)
	}
	if len(granter.granted)+len(granter.zeroed) != 0 {
		t.Fatalf("unknown event mutated state")
	}
}

func TestHandleEventStoreFailureSurfaces(t *testing.T) {
	svc, users, _ := newBillingServiceForTest()
	users.add(1, "cus_1")
	users.failSetRef = true

	event := subscriptionEvent("customer.subscription.created", "sub_1", "cus_1", "active")
	if err := svc.HandleEvent(context.Background(), event); err == nil {
		t.Fatal("expected store failure to surface")
	}
}

func TestCreateCheckoutSessionCreatesCustomerOnce(t *testing.T) {
	svc, users, _ := newBillingServiceForTest()
	users.add(1, "")

	created := 0
	svc.newCustomer = func(params *stripe.CustomerParams) (*stripe.Customer, error) {
		created++
		return &stripe.Customer{ID: "cus_new"}, nil
	}
	svc.newCheckout = func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		if got := *params.Customer; got != "cus_new" {
			t.Fatalf("checkout for wrong customer: %s", got)
		}
		return &stripe.CheckoutSession{URL: "https://checkout.example/s1"}, nil
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		url, err := svc.CreateCheckoutSession(ctx, 1)
		if err != nil {
			t.Fatalf("checkout %d: %v", i+1, err)
		}
		if url != "https://checkout.example/s1" {
			t.Fatalf("unexpected url: %s", url)
		}
	}

	if created != 1 {
		t.Fatalf("customer created %d times", created)
	}
	if users.setCustomers[1] != "cus_new" {
		t.Fatalf("customer id not persisted: %+v", users.setCustomers)
	}
}

func TestCreateCheckoutSessionRequiresConfig(t *testing.T) {
	users := newUserStoreStub()
	users.add(1, "")
	svc := NewService(users, &granterStub{}, config.StripeConfig{}, zap.NewNop())

	if _, err := svc.CreateCheckoutSession(context.Background(), 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCreatePortalSessionRequiresCustomer(t *testing.T) {
	svc, users, _ := newBillingServiceForTest()
	users.add(1, "")

	if _, err := svc.CreatePortalSession(context.Background(), 1); !errors.Is(err, ErrNoBillingAccount) {
		t.Fatalf("expected ErrNoBillingAccount, got %v", err)
	}

	users.add(2, "cus_2")
	svc.newPortal = func(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
		return &stripe.BillingPortalSession{URL: "https://portal.example/p1"}, nil
	}
	url, err := svc.CreatePortalSession(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://portal.example/p1" {
		t.Fatalf("unexpected portal url: %s", url)
	}
}
