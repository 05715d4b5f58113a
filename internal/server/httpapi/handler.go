// Package httpapi is the JSON-over-HTTP surface of the palette server and
// the endpoint that receives payment webhooks.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/palette/internal/common"
	"github.com/dmitrijs2005/palette/internal/logging"
	"github.com/dmitrijs2005/palette/internal/server/auth"
	"github.com/dmitrijs2005/palette/internal/server/billing"
	"github.com/dmitrijs2005/palette/internal/server/entitlement"
	"github.com/dmitrijs2005/palette/internal/server/models"
)

const maxWebhookBytes = int64(65536)

// The handler depends on these narrow interfaces so tests can stub them.
type (
	UserService interface {
		Ensure(ctx context.Context, id auth.Identity) (*models.User, error)
	}

	GenerationService interface {
		Status(ctx context.Context, userID string) (entitlement.Status, error)
		Generate(ctx context.Context, userID string, colors []string, harmony string) (*models.Generation, error)
		List(ctx context.Context, userID string, limit int) ([]*models.Generation, error)
	}

	ExportService interface {
		Export(ctx context.Context, userID, generationID string) (string, error)
	}

	CheckoutService interface {
		CreateCheckout(ctx context.Context, userID, kind, priceID string) (string, error)
		CreatePortal(ctx context.Context, userID string) (string, error)
	}

	Reconciler interface {
		Apply(ctx context.Context, payload []byte, signature string) (billing.Result, error)
	}
)

// Handler serves the REST API.
type Handler struct {
	verifier    auth.Verifier
	users       UserService
	generations GenerationService
	exports     ExportService
	checkout    CheckoutService
	reconciler  Reconciler
	log         logging.Logger
}

func NewHandler(v auth.Verifier, us UserService, gs GenerationService, es ExportService, cs CheckoutService, r Reconciler, log logging.Logger) *Handler {
	return &Handler{
		verifier:    v,
		users:       us,
		generations: gs,
		exports:     es,
		checkout:    cs,
		reconciler:  r,
		log:         log.With("module", "http"),
	}
}

// Routes builds the router. instrument, when non-nil, wraps every route.
// /metrics is mounted only when metricsHandler is non-nil.
func (h *Handler) Routes(instrument func(http.Handler) http.Handler, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	if instrument != nil {
		r.Use(instrument)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Post("/api/stripe/webhook", h.StripeWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(h.authenticate)

		r.Get("/entitlement", h.GetEntitlement)
		r.Post("/generations", h.CreateGeneration)
		r.Get("/generations", h.ListGenerations)
		r.Post("/generations/{id}/export", h.ExportGeneration)
		r.Post("/billing/checkout", h.CreateCheckout)
		r.Post("/billing/portal", h.CreatePortal)
	})

	return r
}

type generationView struct {
	ID        string    `json:"id"`
	Colors    []string  `json:"colors"`
	Harmony   string    `json:"harmony"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

func newGenerationView(g *models.Generation) generationView {
	return generationView{ID: g.ID, Colors: g.Colors, Harmony: g.Harmony, Source: g.Source, CreatedAt: g.CreatedAt}
}

func (h *Handler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	st, err := h.generations.Status(r.Context(), id.UserID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}

type generateRequest struct {
	Colors  []string `json:"colors"`
	Harmony string   `json:"harmony"`
}

func (h *Handler) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	g, err := h.generations.Generate(r.Context(), id.UserID, req.Colors, req.Harmony)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, newGenerationView(g))
}

func (h *Handler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondWithJSON(w, http.StatusBadRequest, errorBody{Error: "invalid limit"})
			return
		}
		limit = n
	}

	gens, err := h.generations.List(r.Context(), id.UserID, limit)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	out := make([]generationView, 0, len(gens))
	for _, g := range gens {
		out = append(out, newGenerationView(g))
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *Handler) ExportGeneration(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	url, err := h.exports.Export(r.Context(), id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"url": url})
}

type checkoutRequest struct {
	Kind    string `json:"kind"`
	PriceID string `json:"priceId"`
}

func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	url, err := h.checkout.CreateCheckout(r.Context(), id.UserID, req.Kind, req.PriceID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	url, err := h.checkout.CreatePortal(r.Context(), id.UserID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"url": url})
}

// StripeWebhook acknowledges every verified delivery, including ones that
// are skipped, unreadable, duplicated or waiting for a customer mapping.
// Only a failed signature answers 400. Store failures answer 5xx so the
// processor redelivers.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.Warn(r.Context(), "webhook body unreadable", "remote_addr", r.RemoteAddr, "error", err)
		respondWithJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload"})
		return
	}

	res, err := h.reconciler.Apply(r.Context(), payload, r.Header.Get(common.StripeSignatureHeader))
	if err != nil {
		if errors.Is(err, common.ErrSignatureVerificationFailed) {
			h.log.Warn(r.Context(), "webhook signature verification failed", "remote_addr", r.RemoteAddr, "error", err)
			respondWithJSON(w, http.StatusBadRequest, errorBody{Error: "signature verification failed"})
			return
		}
		h.respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"received": true, "outcome": res.Outcome})
}
