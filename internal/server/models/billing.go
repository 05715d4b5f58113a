package models

import "time"

// Subscription status values mirrored from the payment processor.
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionPastDue  = "past_due"
	SubscriptionUnpaid   = "unpaid"
	SubscriptionCanceled = "canceled"
)

// Subscription is read from the sync engine tables.
type Subscription struct {
	ID         string
	CustomerID string
	Status     string
	PriceID    string
	Created    time.Time
}

// BillingCustomer links a processor customer to a local user.
type BillingCustomer struct {
	CustomerID string
	UserID     string
	Email      string
}

// Billing event processing states.
const (
	EventApplied    = "applied"
	EventSkipped    = "skipped"
	EventUnresolved = "unresolved"
)

// BillingEvent is the processed-event log entry keyed by the processor's
// event id.
type BillingEvent struct {
	ID         string
	Type       string
	Status     string
	CustomerID string
	Payload    []byte
	Attempts   int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreditGrant is the ledger row keyed by payment id that makes a grant
// happen at most once.
type CreditGrant struct {
	PaymentID string
	EventID   string
	UserID    string
	PriceID   string
	Amount    int64
	CreatedAt time.Time
}
