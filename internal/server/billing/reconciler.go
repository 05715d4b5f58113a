package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/palette/internal/common"
	"github.com/dmitrijs2005/palette/internal/dbx"
	"github.com/dmitrijs2005/palette/internal/logging"
	"github.com/dmitrijs2005/palette/internal/server/config"
	"github.com/dmitrijs2005/palette/internal/server/models"
	"github.com/dmitrijs2005/palette/internal/server/repositories/repomanager"
)

// Outcome is what happened to a delivered event.
type Outcome string

const (
	OutcomeRejected   Outcome = "rejected"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeApplied    Outcome = "applied"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeUnresolved Outcome = "unresolved"
)

// Result describes an applied or acknowledged event.
type Result struct {
	Outcome Outcome
	EventID string
	UserID  string
	Credits int64
	Balance int64
}

// Observer receives one call per processed delivery.
type Observer interface {
	BillingEvent(outcome string)
}

type noopObserver struct{}

func (noopObserver) BillingEvent(string) {}

const retryBatch = 100

// Reconciler applies verified billing events to credit balances.
type Reconciler struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	verifier    *Verifier
	packs       map[string]int64
	observer    Observer
	log         logging.Logger

	withTx func(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx dbx.DBTX) error) error
}

func NewReconciler(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *Reconciler {
	return &Reconciler{
		db:          db,
		repomanager: m,
		verifier:    NewVerifier(cfg.StripeWebhookSecret),
		packs:       cfg.CreditPacks,
		observer:    noopObserver{},
		log:         log.With("module", "billing"),
		withTx:      dbx.WithTx,
	}
}

// WithObserver sets the counters sink and returns r.
func (r *Reconciler) WithObserver(o Observer) *Reconciler {
	if o != nil {
		r.observer = o
	}
	return r
}

// Apply verifies a raw webhook delivery and applies it.
//
// A bad signature returns OutcomeRejected with ErrSignatureVerificationFailed
// and leaves no trace in the store. Every verified event is recorded once;
// redeliveries report OutcomeDuplicate. A signed body that cannot be decoded
// is recorded as skipped and acknowledged. A credit purchase whose customer
// has no user yet is stored as unresolved and picked up again by
// RetryUnresolved. Store failures are returned so the sender redelivers.
func (r *Reconciler) Apply(ctx context.Context, payload []byte, signature string) (Result, error) {
	if err := r.verifier.Verify(payload, signature); err != nil {
		r.observer.BillingEvent(string(OutcomeRejected))
		return Result{Outcome: OutcomeRejected}, err
	}

	ev, err := DecodePayload(payload)
	if err != nil {
		return r.skipUnreadable(ctx, payload, err)
	}

	res, err := r.apply(ctx, ev, payload)
	if err != nil {
		r.log.Error(ctx, "billing event failed", "event_id", ev.ID(), "type", ev.Type(), "error", err)
		return res, err
	}
	r.observer.BillingEvent(string(res.Outcome))
	r.log.Info(ctx, "billing event processed", "event_id", ev.ID(), "type", ev.Type(), "outcome", res.Outcome)
	return res, nil
}

// skipUnreadable records an authenticated body that did not decode so that
// redeliveries are reported as duplicates. Without an event id there is
// nothing to key the log on and the delivery is only acknowledged.
func (r *Reconciler) skipUnreadable(ctx context.Context, payload []byte, cause error) (Result, error) {
	var head struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	_ = json.Unmarshal(payload, &head)
	r.log.Warn(ctx, "signed billing event is unreadable", "event_id", head.ID, "type", head.Type, "error", cause)

	res := Result{Outcome: OutcomeSkipped, EventID: head.ID}
	if head.ID != "" {
		inserted, err := r.record(ctx, r.db, Ignored{EventID: head.ID, Kind: head.Type}, payload, models.EventSkipped, cause.Error())
		if err != nil {
			return Result{EventID: head.ID}, err
		}
		if !inserted {
			res.Outcome = OutcomeDuplicate
		}
	}
	r.observer.BillingEvent(string(res.Outcome))
	return res, nil
}

// RetryUnresolved re-applies stored events whose customer mapping was
// missing and returns how many were applied this time. An event that fails
// is logged, its attempt is recorded and the batch moves on.
func (r *Reconciler) RetryUnresolved(ctx context.Context) (int, error) {
	events := r.repomanager.Events(r.db)
	pending, err := events.ListUnresolved(ctx, retryBatch)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, stored := range pending {
		if ctx.Err() != nil {
			return applied, ctx.Err()
		}

		ev, err := DecodePayload(stored.Payload)
		if err == nil {
			var res Result
			res, err = r.apply(ctx, ev, stored.Payload)
			if err == nil {
				if res.Outcome == OutcomeApplied {
					applied++
					r.observer.BillingEvent(string(res.Outcome))
					r.log.Info(ctx, "unresolved billing event applied", "event_id", stored.ID, "user_id", res.UserID)
				}
				continue
			}
		}

		r.log.Error(ctx, "retrying billing event failed", "event_id", stored.ID, "attempts", stored.Attempts+1, "error", err)
		if rerr := events.RecordAttempt(ctx, stored.ID, err.Error()); rerr != nil {
			r.log.Error(ctx, "recording billing event attempt", "event_id", stored.ID, "error", rerr)
		}
	}
	return applied, nil
}

func (r *Reconciler) apply(ctx context.Context, ev Event, payload []byte) (Result, error) {
	res := Result{EventID: ev.ID()}

	err := r.withTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		checkout, ok := ev.(CheckoutCompleted)
		amount := r.packs[checkout.PriceID]
		if !ok || !checkout.IsOneTimePaid() || amount <= 0 {
			if ok && checkout.IsOneTimePaid() {
				r.log.Warn(ctx, "paid checkout for unknown credit pack", "event_id", ev.ID(), "price_id", checkout.PriceID)
			}
			inserted, err := r.record(ctx, tx, ev, payload, models.EventSkipped, "")
			if err != nil {
				return err
			}
			res.Outcome = OutcomeSkipped
			if !inserted {
				res.Outcome = OutcomeDuplicate
			}
			return nil
		}

		return r.grant(ctx, tx, checkout, payload, amount, &res)
	})
	if err != nil {
		return Result{EventID: ev.ID()}, err
	}
	return res, nil
}

func (r *Reconciler) grant(ctx context.Context, tx dbx.DBTX, ev CheckoutCompleted, payload []byte, amount int64, res *Result) error {
	userID, err := r.resolveUser(ctx, tx, ev.Customer)
	unresolved := errors.Is(err, common.ErrMappingUnresolved)
	if err != nil && !unresolved {
		return err
	}

	status, lastError := models.EventApplied, ""
	if unresolved {
		status, lastError = models.EventUnresolved, err.Error()
	}

	events := r.repomanager.Events(tx)
	inserted, err := r.record(ctx, tx, ev, payload, status, lastError)
	if err != nil {
		return err
	}
	if !inserted {
		existing, err := events.GetForUpdate(ctx, ev.ID())
		if err != nil {
			return err
		}
		if existing.Status != models.EventUnresolved {
			res.Outcome = OutcomeDuplicate
			return nil
		}
		if err := events.UpdateStatus(ctx, ev.ID(), status, lastError); err != nil {
			return err
		}
	}

	if unresolved {
		r.log.Warn(ctx, "billing customer has no user yet", "event_id", ev.ID(), "customer_id", ev.Customer)
		res.Outcome = OutcomeUnresolved
		return nil
	}

	fresh, err := r.repomanager.Grants(tx).Insert(ctx, &models.CreditGrant{
		PaymentID: ev.PaymentID,
		EventID:   ev.ID(),
		UserID:    userID,
		PriceID:   ev.PriceID,
		Amount:    amount,
	})
	if err != nil {
		return err
	}
	if !fresh {
		res.Outcome = OutcomeDuplicate
		return events.UpdateStatus(ctx, ev.ID(), models.EventSkipped, "payment already granted")
	}

	balance, err := r.repomanager.Credits(tx).Grant(ctx, userID, amount)
	if err != nil {
		return err
	}

	res.Outcome = OutcomeApplied
	res.UserID = userID
	res.Credits = amount
	res.Balance = balance
	return nil
}

func (r *Reconciler) record(ctx context.Context, tx dbx.DBTX, ev Event, payload []byte, status, lastError string) (bool, error) {
	return r.repomanager.Events(tx).Record(ctx, &models.BillingEvent{
		ID:         ev.ID(),
		Type:       ev.Type(),
		Status:     status,
		CustomerID: ev.CustomerID(),
		Payload:    payload,
		LastError:  lastError,
	})
}

func (r *Reconciler) resolveUser(ctx context.Context, tx dbx.DBTX, customerID string) (string, error) {
	if customerID == "" {
		return "", fmt.Errorf("%w: checkout without customer", common.ErrMappingUnresolved)
	}
	userID, err := r.repomanager.StripeMirror(tx).UserIDForCustomer(ctx, customerID)
	if errors.Is(err, common.ErrorNotFound) {
		return "", fmt.Errorf("%w: customer %s", common.ErrMappingUnresolved, customerID)
	}
	if err != nil {
		return "", err
	}

	// Customer metadata may name a user this server has not seen yet.
	_, err = r.repomanager.Users(tx).GetByID(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		return "", fmt.Errorf("%w: customer %s maps to unknown user %s", common.ErrMappingUnresolved, customerID, userID)
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}
