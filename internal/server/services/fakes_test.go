package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
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

// memStore backs every fake repository. Transactions run against sqlmock;
// writes land immediately and inTx undoes them on rollback.
type memStore struct {
	mu       sync.Mutex
	now      time.Time
	seq      int
	users    map[string]*models.User
	gens     []*models.Generation
	balances map[string]int64
	subs     map[string]*models.Subscription

	lockErrs     []error
	createErr    error
	consumeFails bool
}

func newMemStore(now time.Time) *memStore {
	return &memStore{
		now:      now,
		users:    map[string]*models.User{},
		balances: map[string]int64{},
		subs:     map[string]*models.Subscription{},
	}
}

type memState struct {
	gens     []*models.Generation
	balances map[string]int64
}

// inTx runs the real transaction and restores the generations and balances
// when it does not commit. Writers touching the same rows are serialized by
// the service's user lock, so a whole-store snapshot is enough here.
func (s *memStore) inTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	s.mu.Lock()
	st := memState{gens: append([]*models.Generation(nil), s.gens...), balances: make(map[string]int64, len(s.balances))}
	for k, v := range s.balances {
		st.balances[k] = v
	}
	s.mu.Unlock()

	err := dbx.WithTx(ctx, db, opts, fn)
	if err != nil {
		s.mu.Lock()
		s.gens, s.balances = st.gens, st.balances
		s.mu.Unlock()
	}
	return err
}

func (s *memStore) clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *memStore) setNow(t time.Time) {
	s.mu.Lock()
	s.now = t
	s.mu.Unlock()
}

func (s *memStore) addUser(id string) {
	s.mu.Lock()
	s.users[id] = &models.User{ID: id}
	s.mu.Unlock()
}

func (s *memStore) addGenerations(userID string, n int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.seq++
		s.gens = append(s.gens, &models.Generation{ID: "seed-" + strconv.Itoa(s.seq), UserID: userID, CreatedAt: at})
	}
}

func (s *memStore) countFor(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, g := range s.gens {
		if g.UserID == userID {
			n++
		}
	}
	return n
}

func (s *memStore) balance(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID]
}

type memManager struct{ s *memStore }

func (m memManager) RunMigrations(context.Context, *sql.DB) error  { return nil }
func (m memManager) Users(dbx.DBTX) users.Repository               { return memUsers{m.s} }
func (m memManager) Generations(dbx.DBTX) generations.Repository   { return memGens{m.s} }
func (m memManager) Credits(dbx.DBTX) credits.Repository           { return memCredits{m.s} }
func (m memManager) Events(dbx.DBTX) events.Repository             { return nil }
func (m memManager) Grants(dbx.DBTX) grants.Repository             { return nil }
func (m memManager) StripeMirror(dbx.DBTX) stripemirror.Repository { return memMirror{m.s} }

type memUsers struct{ s *memStore }

func (r memUsers) Upsert(_ context.Context, id, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		u = &models.User{ID: id, CreatedAt: r.s.now}
		r.s.users[id] = u
	}
	if email != "" {
		u.Email = email
	}
	return u, nil
}

func (r memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (r memUsers) LockForUpdate(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if len(r.s.lockErrs) > 0 {
		err := r.s.lockErrs[0]
		r.s.lockErrs = r.s.lockErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := r.s.users[id]; !ok {
		return common.ErrorNotFound
	}
	return nil
}

type memGens struct{ s *memStore }

func (r memGens) Create(_ context.Context, g *models.Generation) (*models.Generation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.createErr != nil {
		return nil, r.s.createErr
	}
	r.s.seq++
	g.ID = "gen-" + strconv.Itoa(r.s.seq)
	g.CreatedAt = r.s.now
	r.s.gens = append(r.s.gens, g)
	return g, nil
}

func (r memGens) CountSince(_ context.Context, userID string, since time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, g := range r.s.gens {
		if g.UserID == userID && !g.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r memGens) ListByUser(_ context.Context, userID string, limit int) ([]*models.Generation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Generation
	for _, g := range r.s.gens {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memGens) Get(_ context.Context, userID, id string) (*models.Generation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, g := range r.s.gens {
		if g.ID == id && g.UserID == userID {
			return g, nil
		}
	}
	return nil, common.ErrorNotFound
}

type memCredits struct{ s *memStore }

func (r memCredits) Balance(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.balances[userID], nil
}

func (r memCredits) Consume(_ context.Context, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.consumeFails || r.s.balances[userID] <= 0 {
		return false, nil
	}
	r.s.balances[userID]--
	return true, nil
}

func (r memCredits) Grant(_ context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, errors.New("amount must be positive")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.balances[userID] += amount
	return r.s.balances[userID], nil
}

type memMirror struct{ s *memStore }

func (r memMirror) UserIDForCustomer(context.Context, string) (string, error) {
	return "", common.ErrorNotFound
}

func (r memMirror) CustomerForUser(context.Context, string) (*models.BillingCustomer, error) {
	return nil, common.ErrorNotFound
}

func (r memMirror) SubscriptionForUser(_ context.Context, userID string) (*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subs[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return sub, nil
}
