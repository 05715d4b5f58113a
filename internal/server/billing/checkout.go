package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/dmitrijs2005/palette/internal/common"
	"github.com/dmitrijs2005/palette/internal/logging"
	"github.com/dmitrijs2005/palette/internal/server/config"
	"github.com/dmitrijs2005/palette/internal/server/repositories/repomanager"
)

// Checkout kinds accepted by CreateCheckout.
const (
	KindSubscription = "subscription"
	KindCredits      = "credits"
)

// Gateway is the part of the payment processor API the server calls.
type Gateway interface {
	CreateCustomer(ctx context.Context, userID, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, in CheckoutRequest) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// CheckoutRequest describes a hosted checkout page to open.
type CheckoutRequest struct {
	CustomerID string
	UserID     string
	PriceID    string
	Mode       string
	SuccessURL string
	CancelURL  string
}

// StripeGateway implements Gateway with an injected API client.
type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(api *client.API) *StripeGateway {
	return &StripeGateway{api: api}
}

// NewStripeClient builds an API client for key.
func NewStripeClient(key string) *client.API {
	sc := &client.API{}
	sc.Init(key, nil)
	return sc
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata(MetadataUserID, userID)

	cust, err := g.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return cust.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, in CheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(in.Mode),
		Customer: stripe.String(in.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata(MetadataPriceID, in.PriceID)
	params.AddMetadata(MetadataUserID, in.UserID)

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := g.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}

// CheckoutService opens checkout and portal pages for local users.
type CheckoutService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	gateway     Gateway
	cfg         *config.Config
	log         logging.Logger
}

func NewCheckoutService(db *sql.DB, m repomanager.RepositoryManager, gw Gateway, cfg *config.Config, log logging.Logger) *CheckoutService {
	return &CheckoutService{
		db:          db,
		repomanager: m,
		gateway:     gw,
		cfg:         cfg,
		log:         log.With("module", "checkout"),
	}
}

// EnsureCustomer returns the processor customer of userID, creating one
// tagged with the user id when the sync tables have none.
func (s *CheckoutService) EnsureCustomer(ctx context.Context, userID string) (string, error) {
	if s.gateway == nil {
		return "", common.ErrBillingNotConfigured
	}

	c, err := s.repomanager.StripeMirror(s.db).CustomerForUser(ctx, userID)
	if err == nil {
		return c.CustomerID, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return "", err
	}

	u, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("user %s: %w", userID, err)
	}

	id, err := s.gateway.CreateCustomer(ctx, userID, u.Email)
	if err != nil {
		return "", err
	}
	s.log.Info(ctx, "billing customer created", "user_id", userID, "customer_id", id)
	return id, nil
}

// CreateCheckout returns the URL of a checkout page for kind. An empty
// priceID selects the configured default for the kind.
func (s *CheckoutService) CreateCheckout(ctx context.Context, userID, kind, priceID string) (string, error) {
	mode, priceID, err := s.checkoutPrice(kind, priceID)
	if err != nil {
		return "", err
	}
	frontend := strings.TrimRight(s.cfg.FrontendURL, "/")
	if frontend == "" {
		return "", common.ErrBillingNotConfigured
	}

	customerID, err := s.EnsureCustomer(ctx, userID)
	if err != nil {
		return "", err
	}

	return s.gateway.CreateCheckoutSession(ctx, CheckoutRequest{
		CustomerID: customerID,
		UserID:     userID,
		PriceID:    priceID,
		Mode:       mode,
		SuccessURL: frontend + "/billing/success",
		CancelURL:  frontend + "/billing/cancel",
	})
}

func (s *CheckoutService) checkoutPrice(kind, priceID string) (string, string, error) {
	switch kind {
	case KindSubscription:
		if priceID == "" {
			priceID = s.cfg.ProPriceID
		}
		if _, ok := s.cfg.Plans[priceID]; !ok {
			return "", "", fmt.Errorf("%w: %q", common.ErrUnknownPrice, priceID)
		}
		return string(stripe.CheckoutSessionModeSubscription), priceID, nil
	case KindCredits:
		if priceID == "" {
			priceID = s.cfg.CreditsPriceID
		}
		if s.cfg.CreditPacks[priceID] <= 0 {
			return "", "", fmt.Errorf("%w: %q", common.ErrUnknownPrice, priceID)
		}
		return string(stripe.CheckoutSessionModePayment), priceID, nil
	}
	return "", "", fmt.Errorf("%w: unknown checkout kind %q", common.ErrUnknownPrice, kind)
}

// CreatePortal returns the URL of the customer's self-service portal.
func (s *CheckoutService) CreatePortal(ctx context.Context, userID string) (string, error) {
	frontend := strings.TrimRight(s.cfg.FrontendURL, "/")
	if frontend == "" {
		return "", common.ErrBillingNotConfigured
	}
	customerID, err := s.EnsureCustomer(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.gateway.CreatePortalSession(ctx, customerID, frontend+"/settings/billing")
}
