package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	billingsvc "github.com/astraweb/lunaria/backend/internal/services/billing"
	"github.com/astraweb/lunaria/backend/internal/transport/http/dto"
	httperrors "github.com/astraweb/lunaria/backend/internal/transport/http/errors"
)

const maxWebhookBodyBytes = int64(65536)

type BillingHandler struct {
	service       *billingsvc.Service
	webhookSecret string
	log           *zap.Logger
}

func NewBillingHandler(service *billingsvc.Service, webhookSecret string, log *zap.Logger) *BillingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &BillingHandler{service: service, webhookSecret: webhookSecret, log: log}
}

func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	url, err := h.service.CreateCheckoutSession(r.Context(), identity.UserID)
	if err != nil {
		h.handleBillingError(w, err, "checkout")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.CheckoutSessionResponse{URL: url})
}

func (h *BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	url, err := h.service.CreatePortalSession(r.Context(), identity.UserID)
	if err != nil {
		h.handleBillingError(w, err, "portal")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.PortalSessionResponse{URL: url})
}

// Webhook verifies the provider signature and applies the event. The
// response code is what drives the provider's retry loop: anything in
// the event we choose not to act on is still a 200.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret == "" {
		h.log.Error("billing webhook called without configured secret")
		writeInternal(w, "WEBHOOK_NOT_CONFIGURED", "webhook is not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "unreadable payload")
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		r.Header.Get("Stripe-Signature"),
		h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		h.log.Warn("billing webhook signature rejected", zap.Error(err))
		writeBadRequest(w, "INVALID_SIGNATURE", "signature verification failed")
		return
	}

	if err := h.service.HandleEvent(r.Context(), event); err != nil {
		h.log.Error("billing webhook processing failed",
			zap.String("type", string(event.Type)),
			zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to process event")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.WebhookAckResponse{Received: true})
}

func (h *BillingHandler) handleBillingError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, billingsvc.ErrNotConfigured):
		writeInternal(w, "BILLING_NOT_CONFIGURED", "billing is not configured")
	case errors.Is(err, billingsvc.ErrNoBillingAccount):
		writeBadRequest(w, "NO_BILLING_ACCOUNT", "no billing account for this user")
	default:
		h.log.Error("billing operation failed", zap.String("op", op), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}
