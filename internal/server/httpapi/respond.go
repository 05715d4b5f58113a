package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/palette/internal/common"
	"github.com/dmitrijs2005/palette/internal/server/entitlement"
	"github.com/dmitrijs2005/palette/internal/server/services"
)

type errorBody struct {
	Error       string              `json:"error"`
	Upgrade     bool                `json:"upgrade,omitempty"`
	Entitlement *entitlement.Status `json:"entitlement,omitempty"`
}

// respondWithError maps domain errors to status codes. Anything unknown is
// logged and reported as a bare 500.
func (h *Handler) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var qe *services.QuotaError
	switch {
	case errors.As(err, &qe):
		st := qe.Status
		respondWithJSON(w, http.StatusPaymentRequired, errorBody{
			Error:       "generation quota exhausted",
			Upgrade:     true,
			Entitlement: &st,
		})
	case errors.Is(err, common.ErrQuotaExceeded):
		respondWithJSON(w, http.StatusPaymentRequired, errorBody{Error: "generation quota exhausted", Upgrade: true})
	case errors.Is(err, common.ErrInvalidPalette), errors.Is(err, common.ErrUnknownPrice):
		respondWithJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		respondWithJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	case errors.Is(err, common.ErrorNotFound):
		respondWithJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, common.ErrTransientStore):
		h.log.Warn(r.Context(), "request failed on a busy store", "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", "1")
		respondWithJSON(w, http.StatusServiceUnavailable, errorBody{Error: "temporarily unavailable, retry"})
	case errors.Is(err, common.ErrBillingNotConfigured):
		respondWithJSON(w, http.StatusServiceUnavailable, errorBody{Error: "billing not configured"})
	default:
		h.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		respondWithJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
