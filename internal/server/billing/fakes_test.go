package billing

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/palette/internal/common"
	"github.com/dmitrijs2005/palette/internal/dbx"
	"github.com/dmitrijs2005/palette/internal/server/models"
	"github.com/dmitrijs2005/palette/internal/server/repositories/credits"
	"github.com/dmitrijs2005/palette/internal/server/repositories/events"
	"github.com/dmitrijs2005/palette/internal/server/repositories/generations"
	"github.com/dmitrijs2005/palette/internal/server/repositories/grants"
	"github.com/dmitrijs2005/palette/internal/server/repositories/stripemirror"
	"github.com/dmitrijs2005/palette/internal/server/repositories/users"
)

// ledger backs every fake repository. Writes land immediately; inTx undoes
// them when the surrounding transaction rolls back.
type ledger struct {
	mu        sync.Mutex
	clock     time.Time
	events    map[string]*models.BillingEvent
	grants    map[string]*models.CreditGrant
	balances  map[string]int64
	customers map[string]string
	users     map[string]*models.User

	grantErr  error
	grantErrs map[string]error
}

func newLedger() *ledger {
	return &ledger{
		clock:     time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		events:    map[string]*models.BillingEvent{},
		grants:    map[string]*models.CreditGrant{},
		balances:  map[string]int64{},
		customers: map[string]string{},
		users:     map[string]*models.User{},
		grantErrs: map[string]error{},
	}
}

type ledgerState struct {
	events   map[string]models.BillingEvent
	grants   map[string]models.CreditGrant
	balances map[string]int64
}

func (l *ledger) snapshot() ledgerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := ledgerState{
		events:   make(map[string]models.BillingEvent, len(l.events)),
		grants:   make(map[string]models.CreditGrant, len(l.grants)),
		balances: make(map[string]int64, len(l.balances)),
	}
	for k, v := range l.events {
		st.events[k] = *v
	}
	for k, v := range l.grants {
		st.grants[k] = *v
	}
	for k, v := range l.balances {
		st.balances[k] = v
	}
	return st
}

func (l *ledger) restore(st ledgerState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = make(map[string]*models.BillingEvent, len(st.events))
	for k, v := range st.events {
		l.events[k] = &v
	}
	l.grants = make(map[string]*models.CreditGrant, len(st.grants))
	for k, v := range st.grants {
		l.grants[k] = &v
	}
	l.balances = st.balances
}

// inTx runs the real transaction against sqlmock and drops the ledger's
// writes when it does not commit.
func (l *ledger) inTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	st := l.snapshot()
	err := dbx.WithTx(ctx, db, opts, fn)
	if err != nil {
		l.restore(st)
	}
	return err
}

// tick advances the fake clock; callers hold l.mu.
func (l *ledger) tick() time.Time {
	l.clock = l.clock.Add(time.Second)
	return l.clock
}

func (l *ledger) balance(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *ledger) event(id string) *models.BillingEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[id]
}

// mapCustomer links a customer to a known user.
func (l *ledger) mapCustomer(customerID, userID string) {
	l.mu.Lock()
	if _, ok := l.users[userID]; !ok {
		l.users[userID] = &models.User{ID: userID}
	}
	l.mu.Unlock()
	l.linkCustomer(customerID, userID)
}

// linkCustomer sets the customer's user id without creating the user.
func (l *ledger) linkCustomer(customerID, userID string) {
	l.mu.Lock()
	l.customers[customerID] = userID
	l.mu.Unlock()
}

type fakeManager struct{ l *ledger }

func (m fakeManager) RunMigrations(context.Context, *sql.DB) error  { return nil }
func (m fakeManager) Users(dbx.DBTX) users.Repository               { return fakeUsers{m.l} }
func (m fakeManager) Generations(dbx.DBTX) generations.Repository   { return nil }
func (m fakeManager) Credits(dbx.DBTX) credits.Repository           { return fakeCredits{m.l} }
func (m fakeManager) Events(dbx.DBTX) events.Repository             { return fakeEvents{m.l} }
func (m fakeManager) Grants(dbx.DBTX) grants.Repository             { return fakeGrants{m.l} }
func (m fakeManager) StripeMirror(dbx.DBTX) stripemirror.Repository { return fakeMirror{m.l} }

type fakeUsers struct{ l *ledger }

func (r fakeUsers) Upsert(_ context.Context, id, email string) (*models.User, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	u := &models.User{ID: id, Email: email}
	r.l.users[id] = u
	return u, nil
}

func (r fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	u, ok := r.l.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (r fakeUsers) LockForUpdate(context.Context, string) error { return nil }

type fakeEvents struct{ l *ledger }

func (r fakeEvents) Record(_ context.Context, ev *models.BillingEvent) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if _, ok := r.l.events[ev.ID]; ok {
		return false, nil
	}
	cp := *ev
	cp.Attempts = 1
	cp.CreatedAt = r.l.tick()
	cp.UpdatedAt = cp.CreatedAt
	r.l.events[ev.ID] = &cp
	return true, nil
}

func (r fakeEvents) GetForUpdate(_ context.Context, id string) (*models.BillingEvent, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	ev, ok := r.l.events[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *ev
	return &cp, nil
}

func (r fakeEvents) UpdateStatus(_ context.Context, id, status, lastError string) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	ev, ok := r.l.events[id]
	if !ok {
		return common.ErrorNotFound
	}
	ev.Status = status
	ev.LastError = lastError
	ev.Attempts++
	ev.UpdatedAt = r.l.tick()
	return nil
}

func (r fakeEvents) RecordAttempt(_ context.Context, id, lastError string) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	ev, ok := r.l.events[id]
	if !ok || ev.Status != models.EventUnresolved {
		return nil
	}
	ev.LastError = lastError
	ev.Attempts++
	ev.UpdatedAt = r.l.tick()
	return nil
}

func (r fakeEvents) ListUnresolved(_ context.Context, limit int) ([]*models.BillingEvent, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var out []*models.BillingEvent
	for _, ev := range r.l.events {
		if ev.Status == models.EventUnresolved {
			cp := *ev
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeGrants struct{ l *ledger }

func (r fakeGrants) Insert(_ context.Context, g *models.CreditGrant) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if _, ok := r.l.grants[g.PaymentID]; ok {
		return false, nil
	}
	cp := *g
	r.l.grants[g.PaymentID] = &cp
	return true, nil
}

func (r fakeGrants) ListByUser(_ context.Context, userID string) ([]*models.CreditGrant, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var out []*models.CreditGrant
	for _, g := range r.l.grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

type fakeCredits struct{ l *ledger }

func (r fakeCredits) Balance(_ context.Context, userID string) (int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	return r.l.balances[userID], nil
}

func (r fakeCredits) Consume(_ context.Context, userID string) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if r.l.balances[userID] <= 0 {
		return false, nil
	}
	r.l.balances[userID]--
	return true, nil
}

func (r fakeCredits) Grant(_ context.Context, userID string, amount int64) (int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if r.l.grantErr != nil {
		return 0, r.l.grantErr
	}
	if err := r.l.grantErrs[userID]; err != nil {
		return 0, err
	}
	r.l.balances[userID] += amount
	return r.l.balances[userID], nil
}

type fakeMirror struct{ l *ledger }

func (r fakeMirror) UserIDForCustomer(_ context.Context, customerID string) (string, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	id, ok := r.l.customers[customerID]
	if !ok {
		return "", common.ErrorNotFound
	}
	return id, nil
}

func (r fakeMirror) CustomerForUser(_ context.Context, userID string) (*models.BillingCustomer, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for c, u := range r.l.customers {
		if u == userID {
			return &models.BillingCustomer{CustomerID: c, UserID: u}, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakeMirror) SubscriptionForUser(context.Context, string) (*models.Subscription, error) {
	return nil, common.ErrorNotFound
}
