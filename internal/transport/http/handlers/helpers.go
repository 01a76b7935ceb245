package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	authsvc "github.com/astraweb/lunaria/backend/internal/services/auth"
	httperrors "github.com/astraweb/lunaria/backend/internal/transport/http/errors"
)

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (authsvc.Identity, bool) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return authsvc.Identity{}, false
	}
	return identity, true
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{Code: code, Message: message})
}

func writeNotFound(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusNotFound, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}

func writePaymentRequired(w http.ResponseWriter, code, message string, resetAt *time.Time) {
	httperrors.Write(w, http.StatusPaymentRequired, httperrors.PaymentRequiredError{
		Code:    code,
		Message: message,
		ResetAt: resetAt,
	})
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
