package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/astraweb/lunaria/backend/internal/domain/enums"
	creditssvc "github.com/astraweb/lunaria/backend/internal/services/credits"
	"github.com/astraweb/lunaria/backend/internal/transport/http/dto"
	httperrors "github.com/astraweb/lunaria/backend/internal/transport/http/errors"
)

type CreditsHandler struct {
	service *creditssvc.Service
}

func NewCreditsHandler(service *creditssvc.Service) *CreditsHandler {
	return &CreditsHandler{service: service}
}

// Overview serves the account credits panel.
func (h *CreditsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	ov, err := h.service.Overview(r.Context(), identity.UserID)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to load credits")
		return
	}

	resp := dto.CreditsOverviewResponse{
		Subscribed: ov.Subscribed,
		Unmetered:  ov.Unmetered,
		Balances:   make([]dto.CreditBalanceResponse, 0, len(ov.Balances)),
	}
	for _, fb := range ov.Balances {
		resp.Balances = append(resp.Balances, dto.CreditBalanceResponse{
			FeatureType:    string(fb.FeatureType),
			Remaining:      fb.Remaining,
			Used:           fb.Used,
			Allotment:      fb.Allotment,
			ResetAt:        fb.ResetAt,
			DaysUntilReset: fb.DaysUntilReset,
		})
	}

	httperrors.Write(w, http.StatusOK, resp)
}

// Access answers a pre-flight gate check without consuming anything.
// The frontend calls it to decide whether to show the paywall before
// the user fills in a form.
func (h *CreditsHandler) Access(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	feature, ok := enums.ParseFeatureType(r.URL.Query().Get("feature"))
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "unknown feature type")
		return
	}

	access, err := h.service.Evaluate(r.Context(), identity.UserID, feature)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to evaluate access")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.AccessResponse{
		Allowed:   access.Allowed,
		Unmetered: access.Unmetered,
		Reason:    string(access.Reason),
		Remaining: access.Remaining,
		ResetAt:   resetAtPtr(access.ResetAt),
	})
}

func (h *CreditsHandler) History(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var action enums.LedgerAction
	if raw := r.URL.Query().Get("action"); raw != "" {
		switch enums.LedgerAction(raw) {
		case enums.LedgerActionAdded, enums.LedgerActionConsumed, enums.LedgerActionReset:
			action = enums.LedgerAction(raw)
		default:
			writeBadRequest(w, "VALIDATION_ERROR", "unknown ledger action")
			return
		}
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

	entries, err := h.service.History(r.Context(), identity.UserID, action, limit)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to load credit history")
		return
	}

	resp := dto.CreditHistoryResponse{Entries: make([]dto.LedgerEntryResponse, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, dto.LedgerEntryResponse{
			ID:          entry.ID,
			FeatureType: string(entry.FeatureType),
			Action:      string(entry.Action),
			Amount:      entry.Amount,
			Description: entry.Description,
			RelatedID:   entry.RelatedID,
			CreatedAt:   entry.CreatedAt,
		})
	}

	httperrors.Write(w, http.StatusOK, resp)
}

func resetAtPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
