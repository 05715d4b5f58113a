package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/palette/internal/server/auth"
)

// authenticate resolves the bearer token, makes sure the user row exists
// and stores the identity in the request context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			respondWithJSON(w, http.StatusUnauthorized, errorBody{Error: "missing token"})
			return
		}

		id, err := h.verifier.Verify(r.Context(), token)
		if err != nil {
			h.log.Debug(r.Context(), "token rejected", "remote_addr", r.RemoteAddr, "error", err)
			respondWithJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token"})
			return
		}

		if _, err := h.users.Ensure(r.Context(), id); err != nil {
			h.respondWithError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.log.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}
