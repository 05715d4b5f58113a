package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/dmitrijs2005/palette/internal/common"
	"github.com/dmitrijs2005/palette/internal/logging"
	"github.com/dmitrijs2005/palette/internal/server/config"
	"github.com/dmitrijs2005/palette/internal/server/models"
)

const testSecret = "whsec_test"

type countingObserver struct {
	mu   sync.Mutex
	seen map[string]int
}

func (o *countingObserver) BillingEvent(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen == nil {
		o.seen = map[string]int{}
	}
	o.seen[outcome]++
}

func (o *countingObserver) count(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seen[outcome]
}

func newReconciler(t *testing.T, l *ledger) (*Reconciler, sqlmock.Sqlmock, *countingObserver) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.StripeWebhookSecret = testSecret
	cfg.CreditPacks = map[string]int64{"price_pack10": 10, "price_pack3": 3}

	obs := &countingObserver{}
	r := NewReconciler(db, fakeManager{l}, cfg, logging.NewDiscard()).WithObserver(obs)
	r.withTx = l.inTx
	return r, mock, obs
}

func sign(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
	}).Header
}

func checkoutPayload(eventID, customer, paymentIntent, mode, paymentStatus, priceID string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "api_version": "2024-06-20",
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": "cs_%s",
      "object": "checkout.session",
      "customer": %q,
      "payment_intent": %q,
      "mode": %q,
      "payment_status": %q,
      "metadata": {"price_id": %q}
    }
  }
}`, eventID, eventID, customer, paymentIntent, mode, paymentStatus, priceID))
}

func creditPayload(eventID, customer, paymentIntent string) []byte {
	return checkoutPayload(eventID, customer, paymentIntent, "payment", "paid", "price_pack10")
}

func subscriptionPayload(eventID, customer, status string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "type": "customer.subscription.updated",
  "data": {"object": {"id": "sub_1", "object": "subscription", "customer": %q, "status": %q}}
}`, eventID, customer, status))
}

func expectTx(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

func TestApply_CreditPackGrantedOnce(t *testing.T) {
	l := newLedger()
	l.mapCustomer("cus_1", "user-1")
	r, mock, obs := newReconciler(t, l)
	expectTx(mock, 3)

	payload := creditPayload("evt_1", "cus_1", "pi_1")
	ctx := context.Background()

	res, err := r.Apply(ctx, payload, sign(payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, "user-1", res.UserID)
	assert.EqualValues(t, 10, res.Credits)
	assert.EqualValues(t, 10, res.Balance)

	for i := 0; i < 2; i++ {
		res, err = r.Apply(ctx, payload, sign(payload))
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, res.Outcome)
	}

	assert.EqualValues(t, 10, l.balance("user-1"))
	assert.Equal(t, models.EventApplied, l.event("evt_1").Status)
	assert.Equal(t, 1, obs.count("applied"))
	assert.Equal(t, 2, obs.count("duplicate"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_SamePaymentUnderNewEventID(t *testing.T) {
	l := newLedger()
	l.mapCustomer("cus_1", "user-1")
	r, mock, _ := newReconciler(t, l)
	expectTx(mock, 2)

	first := creditPayload("evt_1", "cus_1", "pi_1")
	second := creditPayload("evt_2", "cus_1", "pi_1")

	res, err := r.Apply(context.Background(), first, sign(first))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	res, err = r.Apply(context.Background(), second, sign(second))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	assert.EqualValues(t, 10, l.balance("user-1"))
	assert.Equal(t, models.EventSkipped, l.event("evt_2").Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_BadSignature(t *testing.T) {
	l := newLedger()
	r, mock, obs := newReconciler(t, l)

	payload := creditPayload("evt_1", "cus_1", "pi_1")
	tampered := creditPayload("evt_1", "cus_1", "pi_2")

	tests := []struct {
		name      string
		signature string
	}{
		{"empty header", ""},
		{"garbage header", "t=1,v1=deadbeef"},
		{"signature of another body", sign(tampered)},
		{"wrong secret", webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload: payload, Secret: "whsec_other", Timestamp: time.Now(),
		}).Header},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Apply(context.Background(), payload, tt.signature)
			require.ErrorIs(t, err, common.ErrSignatureVerificationFailed)
			assert.Equal(t, OutcomeRejected, res.Outcome)
		})
	}

	assert.Empty(t, l.events)
	assert.Equal(t, len(tests), obs.count("rejected"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_MissingSecretRejects(t *testing.T) {
	l := newLedger()
	r, _, _ := newReconciler(t, l)
	r.verifier = NewVerifier("")

	payload := creditPayload("evt_1", "cus_1", "pi_1")
	_, err := r.Apply(context.Background(), payload, sign(payload))
	require.ErrorIs(t, err, common.ErrSignatureVerificationFailed)
}

func TestApply_SkippedEvents(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"subscription checkout", checkoutPayload("evt_s", "cus_1", "", "subscription", "paid", "price_pro")},
		{"unpaid checkout", checkoutPayload("evt_u", "cus_1", "pi_1", "payment", "unpaid", "price_pack10")},
		{"unknown price", checkoutPayload("evt_p", "cus_1", "pi_1", "payment", "paid", "price_mystery")},
		{"subscription change", subscriptionPayload("evt_c", "cus_1", "past_due")},
		{"unrelated type", []byte(`{"id":"evt_i","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger()
			l.mapCustomer("cus_1", "user-1")
			r, mock, _ := newReconciler(t, l)
			expectTx(mock, 2)

			res, err := r.Apply(context.Background(), tt.payload, sign(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, OutcomeSkipped, res.Outcome)

			res, err = r.Apply(context.Background(), tt.payload, sign(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, OutcomeDuplicate, res.Outcome)

			assert.Zero(t, l.balance("user-1"))
			assert.Empty(t, l.grants)
			require.Len(t, l.events, 1)
			for _, ev := range l.events {
				assert.Equal(t, models.EventSkipped, ev.Status)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestApply_UnresolvedThenRetried(t *testing.T) {
	l := newLedger()
	r, mock, obs := newReconciler(t, l)
	expectTx(mock, 3)

	payload := creditPayload("evt_1", "cus_late", "pi_1")
	ctx := context.Background()

	res, err := r.Apply(ctx, payload, sign(payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnresolved, res.Outcome)

	ev := l.event("evt_1")
	require.NotNil(t, ev)
	assert.Equal(t, models.EventUnresolved, ev.Status)
	assert.Contains(t, ev.LastError, "cus_late")
	assert.Empty(t, l.grants)

	// Still unmapped: stays unresolved, attempt is counted.
	n, err := r.RetryUnresolved(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, l.event("evt_1").Attempts)

	l.mapCustomer("cus_late", "user-9")
	n, err = r.RetryUnresolved(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.EqualValues(t, 10, l.balance("user-9"))
	assert.Equal(t, models.EventApplied, l.event("evt_1").Status)
	assert.Equal(t, 1, obs.count("unresolved"))
	assert.Equal(t, 1, obs.count("applied"))

	n, err = r.RetryUnresolved(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_UnresolvedThenRedelivered(t *testing.T) {
	l := newLedger()
	r, mock, _ := newReconciler(t, l)
	expectTx(mock, 3)

	payload := creditPayload("evt_1", "cus_late", "pi_1")
	ctx := context.Background()

	res, err := r.Apply(ctx, payload, sign(payload))
	require.NoError(t, err)
	require.Equal(t, OutcomeUnresolved, res.Outcome)

	l.mapCustomer("cus_late", "user-9")
	res, err = r.Apply(ctx, payload, sign(payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	res, err = r.Apply(ctx, payload, sign(payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	assert.EqualValues(t, 10, l.balance("user-9"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_OrderIndependent(t *testing.T) {
	a := creditPayload("evt_a", "cus_1", "pi_a")
	b := checkoutPayload("evt_b", "cus_1", "pi_b", "payment", "paid", "price_pack3")
	c := subscriptionPayload("evt_c", "cus_1", "active")

	orders := [][][]byte{{a, b, c}, {c, b, a}, {b, a, c, a, b}}
	for i, order := range orders {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			l := newLedger()
			l.mapCustomer("cus_1", "user-1")
			r, mock, _ := newReconciler(t, l)
			expectTx(mock, len(order))

			for _, p := range order {
				_, err := r.Apply(context.Background(), p, sign(p))
				require.NoError(t, err)
			}
			assert.EqualValues(t, 13, l.balance("user-1"))
			assert.Len(t, l.grants, 2)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestApply_StoreFailureRollsBack(t *testing.T) {
	l := newLedger()
	l.mapCustomer("cus_1", "user-1")
	l.grantErr = errors.New("db error: connection reset")
	r, mock, obs := newReconciler(t, l)

	mock.ExpectBegin()
	mock.ExpectRollback()

	payload := creditPayload("evt_1", "cus_1", "pi_1")
	_, err := r.Apply(context.Background(), payload, sign(payload))
	require.ErrorContains(t, err, "connection reset")
	assert.Zero(t, obs.count("applied"))
	assert.Nil(t, l.event("evt_1"), "event row rolled back with the grant")
	assert.Empty(t, l.grants)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryUnresolved_FailingEventDoesNotBlockOthers(t *testing.T) {
	l := newLedger()
	r, mock, obs := newReconciler(t, l)
	ctx := context.Background()

	older := creditPayload("evt_a", "cus_a", "pi_a")
	newer := creditPayload("evt_b", "cus_b", "pi_b")
	expectTx(mock, 2)
	for _, p := range [][]byte{older, newer} {
		res, err := r.Apply(ctx, p, sign(p))
		require.NoError(t, err)
		require.Equal(t, OutcomeUnresolved, res.Outcome)
	}

	l.mapCustomer("cus_a", "user-bad")
	l.mapCustomer("cus_b", "user-ok")
	l.grantErrs["user-bad"] = errors.New(`db error: insert or update on table "credit_balances" violates foreign key constraint`)

	// evt_a is listed first, fails and rolls back; evt_b still gets applied.
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	n, err := r.RetryUnresolved(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 10, l.balance("user-ok"))
	assert.Equal(t, models.EventApplied, l.event("evt_b").Status)

	failed := l.event("evt_a")
	assert.Equal(t, models.EventUnresolved, failed.Status)
	assert.Contains(t, failed.LastError, "foreign key")
	assert.Equal(t, 2, failed.Attempts)
	assert.Zero(t, l.balance("user-bad"))
	assert.NotContains(t, l.grants, "pi_a")

	// Next tick only the failing event is left and it keeps being counted.
	mock.ExpectBegin()
	mock.ExpectRollback()

	n, err = r.RetryUnresolved(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, l.event("evt_a").Attempts)
	assert.Equal(t, 1, obs.count("applied"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_CustomerMappedToUnknownUser(t *testing.T) {
	l := newLedger()
	l.linkCustomer("cus_1", "ghost")
	r, mock, _ := newReconciler(t, l)
	expectTx(mock, 2)

	payload := creditPayload("evt_1", "cus_1", "pi_1")
	ctx := context.Background()

	res, err := r.Apply(ctx, payload, sign(payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnresolved, res.Outcome)
	assert.Contains(t, l.event("evt_1").LastError, "ghost")
	assert.Empty(t, l.grants)

	l.mapCustomer("cus_1", "ghost")
	n, err := r.RetryUnresolved(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 10, l.balance("ghost"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_SignedButUnreadable(t *testing.T) {
	l := newLedger()
	r, mock, obs := newReconciler(t, l)
	ctx := context.Background()

	noObject := []byte(`{"id":"evt_m","object":"event","type":"checkout.session.completed"}`)
	res, err := r.Apply(ctx, noObject, sign(noObject))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, "evt_m", res.EventID)

	ev := l.event("evt_m")
	require.NotNil(t, ev)
	assert.Equal(t, models.EventSkipped, ev.Status)
	assert.Contains(t, ev.LastError, "no data object")

	res, err = r.Apply(ctx, noObject, sign(noObject))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	notJSON := []byte(`not json`)
	res, err = r.Apply(ctx, notJSON, sign(notJSON))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Len(t, l.events, 1)

	assert.Zero(t, obs.count("rejected"))
	assert.Equal(t, 2, obs.count("skipped"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_BeginFailureIsTransient(t *testing.T) {
	l := newLedger()
	r, mock, _ := newReconciler(t, l)

	mock.ExpectBegin().WillReturnError(context.DeadlineExceeded)

	payload := creditPayload("evt_1", "cus_1", "pi_1")
	_, err := r.Apply(context.Background(), payload, sign(payload))
	require.ErrorIs(t, err, common.ErrTransientStore)
}
