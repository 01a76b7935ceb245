package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	creditssvc "github.com/astraweb/lunaria/backend/internal/services/credits"
	httperrors "github.com/astraweb/lunaria/backend/internal/transport/http/errors"
)

// AdminHandler exposes support operations on user credits. Routes
// using it must sit behind the admin role middleware.
type AdminHandler struct {
	credits *creditssvc.Service
	log     *zap.Logger
}

func NewAdminHandler(credits *creditssvc.Service, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{credits: credits, log: log}
}

// GrantCredits gives the target user a fresh monthly allotment, the
// same write a renewal invoice triggers.
func (h *AdminHandler) GrantCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := targetUserID(w, r)
	if !ok {
		return
	}

	if err := h.credits.GrantMonthlyAllotment(r.Context(), userID); err != nil {
		h.log.Error("admin credit grant failed", zap.Int64("target_user_id", userID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to grant credits")
		return
	}

	httperrors.Write(w, http.StatusOK, map[string]bool{"ok": true})
}

// RevokeCredits zeroes the target user's remaining credits.
func (h *AdminHandler) RevokeCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := targetUserID(w, r)
	if !ok {
		return
	}

	if err := h.credits.ZeroAllBalances(r.Context(), userID); err != nil {
		h.log.Error("admin credit revoke failed", zap.Int64("target_user_id", userID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to revoke credits")
		return
	}

	httperrors.Write(w, http.StatusOK, map[string]bool{"ok": true})
}

func targetUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid user id")
		return 0, false
	}
	return userID, true
}
