// Package billing turns payment processor webhooks into credit grants and
// starts checkout and customer portal sessions.
//
// Incoming events are verified against the endpoint secret, decoded into one
// of the Event variants and applied at most once: the processed-event log is
// keyed by event id and the credit ledger by payment id, and both are written
// in the transaction that increments the balance.
package billing

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v79"
)

// Webhook event types the reconciler understands.
const (
	TypeCheckoutCompleted   = "checkout.session.completed"
	TypeSubscriptionCreated = "customer.subscription.created"
	TypeSubscriptionUpdated = "customer.subscription.updated"
	TypeSubscriptionDeleted = "customer.subscription.deleted"
)

// Checkout metadata keys written by CheckoutService.
const (
	MetadataPriceID = "price_id"
	MetadataUserID  = "user_id"
)

// Event is a verified webhook event. It is one of CheckoutCompleted,
// SubscriptionChanged or Ignored.
type Event interface {
	ID() string
	Type() string
	CustomerID() string
}

// CheckoutCompleted is a finished checkout session.
type CheckoutCompleted struct {
	EventID       string
	SessionID     string
	PaymentID     string
	Customer      string
	PriceID       string
	Mode          string
	PaymentStatus string
}

func (e CheckoutCompleted) ID() string         { return e.EventID }
func (e CheckoutCompleted) Type() string       { return TypeCheckoutCompleted }
func (e CheckoutCompleted) CustomerID() string { return e.Customer }

// IsOneTimePaid reports whether the session is a settled one-time payment.
func (e CheckoutCompleted) IsOneTimePaid() bool {
	return e.Mode == string(stripe.CheckoutSessionModePayment) &&
		e.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid)
}

// SubscriptionChanged is any subscription lifecycle event. Entitlement is
// read from the sync tables, so these are only acknowledged.
type SubscriptionChanged struct {
	EventID        string
	Kind           string
	SubscriptionID string
	Customer       string
	Status         string
}

func (e SubscriptionChanged) ID() string         { return e.EventID }
func (e SubscriptionChanged) Type() string       { return e.Kind }
func (e SubscriptionChanged) CustomerID() string { return e.Customer }

// Ignored is an event type the reconciler has no use for.
type Ignored struct {
	EventID string
	Kind    string
}

func (e Ignored) ID() string         { return e.EventID }
func (e Ignored) Type() string       { return e.Kind }
func (e Ignored) CustomerID() string { return "" }

// Decode converts a processor event into its variant.
func Decode(ev stripe.Event) (Event, error) {
	if ev.ID == "" {
		return nil, fmt.Errorf("event without id")
	}

	switch string(ev.Type) {
	case TypeCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := unmarshalObject(ev, &sess); err != nil {
			return nil, err
		}
		out := CheckoutCompleted{
			EventID:       ev.ID,
			SessionID:     sess.ID,
			PaymentID:     sess.ID,
			Mode:          string(sess.Mode),
			PaymentStatus: string(sess.PaymentStatus),
			PriceID:       sess.Metadata[MetadataPriceID],
		}
		if sess.Customer != nil {
			out.Customer = sess.Customer.ID
		}
		if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
			out.PaymentID = sess.PaymentIntent.ID
		}
		return out, nil

	case TypeSubscriptionCreated, TypeSubscriptionUpdated, TypeSubscriptionDeleted:
		var sub stripe.Subscription
		if err := unmarshalObject(ev, &sub); err != nil {
			return nil, err
		}
		out := SubscriptionChanged{
			EventID:        ev.ID,
			Kind:           string(ev.Type),
			SubscriptionID: sub.ID,
			Status:         string(sub.Status),
		}
		if sub.Customer != nil {
			out.Customer = sub.Customer.ID
		}
		return out, nil
	}

	return Ignored{EventID: ev.ID, Kind: string(ev.Type)}, nil
}

// DecodePayload decodes a raw event body that was verified earlier, such as
// one stored in the processed-event log.
func DecodePayload(payload []byte) (Event, error) {
	var ev stripe.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return Decode(ev)
}

func unmarshalObject(ev stripe.Event, v any) error {
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return fmt.Errorf("event %s has no data object", ev.ID)
	}
	if err := json.Unmarshal(ev.Data.Raw, v); err != nil {
		return fmt.Errorf("decode %s object: %w", ev.Type, err)
	}
	return nil
}
