package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/palette/internal/common"
	"github.com/dmitrijs2005/palette/internal/dbx"
	"github.com/dmitrijs2005/palette/internal/keylock"
	"github.com/dmitrijs2005/palette/internal/logging"
	"github.com/dmitrijs2005/palette/internal/palette"
	"github.com/dmitrijs2005/palette/internal/server/config"
	"github.com/dmitrijs2005/palette/internal/server/entitlement"
	"github.com/dmitrijs2005/palette/internal/server/models"
	"github.com/dmitrijs2005/palette/internal/server/repositories/repomanager"
)

// QuotaError reports a refused generation together with the entitlement
// that refused it, so callers can render an upgrade prompt.
type QuotaError struct {
	Status entitlement.Status
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: %d generations remaining", e.Status.RemainingGenerations)
}

func (e *QuotaError) Unwrap() error { return common.ErrQuotaExceeded }

// GenerationObserver receives generation counters.
type GenerationObserver interface {
	GenerationRecorded(source string)
	QuotaExceeded()
}

type noopObserver struct{}

func (noopObserver) GenerationRecorded(string) {}
func (noopObserver) QuotaExceeded()            {}

const maxHistory = 100

// GenerationService computes entitlements and records generations.
type GenerationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	locks       *keylock.Locker
	calc        entitlement.Calculator
	plans       map[string]int64
	lockTimeout time.Duration
	attempts    uint64
	backoff     time.Duration
	now         func() time.Time
	observer    GenerationObserver
	log         logging.Logger

	withTx func(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx dbx.DBTX) error) error
}

func NewGenerationService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *GenerationService {
	attempts := cfg.GenerateAttempts
	if attempts == 0 {
		attempts = 1
	}
	backoff := cfg.GenerateBackoff
	if backoff <= 0 {
		backoff = 10 * time.Millisecond
	}
	return &GenerationService{
		db:          db,
		repomanager: m,
		locks:       keylock.New(),
		calc:        entitlement.Calculator{FreeAllowance: cfg.FreeAllowance},
		plans:       cfg.Plans,
		lockTimeout: cfg.LockTimeout,
		attempts:    attempts,
		backoff:     backoff,
		now:         time.Now,
		observer:    noopObserver{},
		log:         log.With("module", "generation"),
		withTx:      dbx.WithTx,
	}
}

// WithObserver sets the counters sink and returns s.
func (s *GenerationService) WithObserver(o GenerationObserver) *GenerationService {
	if o != nil {
		s.observer = o
	}
	return s
}

// Status computes the user's entitlement from current counts. It reads only.
func (s *GenerationService) Status(ctx context.Context, userID string) (entitlement.Status, error) {
	gens := s.repomanager.Generations(s.db)

	lifetime, err := gens.CountSince(ctx, userID, time.Time{})
	if err != nil {
		return entitlement.Status{}, err
	}
	monthly, err := gens.CountSince(ctx, userID, entitlement.MonthStart(s.now()))
	if err != nil {
		return entitlement.Status{}, err
	}
	balance, err := s.repomanager.Credits(s.db).Balance(ctx, userID)
	if err != nil {
		return entitlement.Status{}, err
	}
	sub, err := s.subscription(ctx, userID)
	if err != nil {
		return entitlement.Status{}, err
	}

	return s.calc.Compute(entitlement.Inputs{
		Lifetime:     lifetime,
		Monthly:      monthly,
		Credits:      balance,
		Subscription: sub,
	}), nil
}

func (s *GenerationService) subscription(ctx context.Context, userID string) (entitlement.SubscriptionInfo, error) {
	sub, err := s.repomanager.StripeMirror(s.db).SubscriptionForUser(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		return entitlement.SubscriptionInfo{}, nil
	}
	if err != nil {
		return entitlement.SubscriptionInfo{}, err
	}

	limit, known := s.plans[sub.PriceID]
	if !known {
		s.log.Warn(ctx, "subscription price has no configured plan", "user_id", userID, "price_id", sub.PriceID)
	}
	return entitlement.SubscriptionInfo{
		Found:     true,
		Status:    sub.Status,
		PlanID:    sub.PriceID,
		PlanKnown: known,
		Limit:     limit,
	}, nil
}

// Write re-checks q under the user's lock and records the generation.
//
// Callers with the same user id are serialized twice: in process by a keyed
// lock, and across processes by a row lock on the user taken inside the
// transaction, so it is released on commit, rollback or connection loss.
// The count is re-read in the window q was computed for. Credit-funded
// generations take one credit in the same transaction.
func (s *GenerationService) Write(ctx context.Context, userID string, q entitlement.Quota, colors []string, harmony string) (*models.Generation, error) {
	lockCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	unlock, err := s.locks.Lock(lockCtx, userID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: user lock: %w", common.ErrTransientStore, err)
	}
	defer unlock()

	var created *models.Generation
	err = s.withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := dbx.SetLockTimeout(ctx, tx, s.lockTimeout); err != nil {
			return err
		}
		if err := s.repomanager.Users(tx).LockForUpdate(ctx, userID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return fmt.Errorf("user %s: %w", userID, err)
			}
			return err
		}

		if !q.Unlimited {
			remaining, err := s.remaining(ctx, tx, userID, q)
			if err != nil {
				return err
			}
			if remaining <= 0 {
				return common.ErrQuotaExceeded
			}
		}

		g, err := s.repomanager.Generations(tx).Create(ctx, &models.Generation{
			UserID:  userID,
			Colors:  colors,
			Harmony: harmony,
			Source:  string(q.Source),
		})
		if err != nil {
			return err
		}

		if q.Source == entitlement.SourceCredits {
			ok, err := s.repomanager.Credits(tx).Consume(ctx, userID)
			if err != nil {
				return err
			}
			if !ok {
				return common.ErrQuotaExceeded
			}
		}

		created = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *GenerationService) remaining(ctx context.Context, tx dbx.DBTX, userID string, q entitlement.Quota) (int64, error) {
	switch q.Source {
	case entitlement.SourceCredits:
		return s.repomanager.Credits(tx).Balance(ctx, userID)
	case entitlement.SourceSubscription:
		used, err := s.repomanager.Generations(tx).CountSince(ctx, userID, entitlement.MonthStart(s.now()))
		return q.Max - used, err
	default:
		used, err := s.repomanager.Generations(tx).CountSince(ctx, userID, time.Time{})
		return q.Max - used, err
	}
}

// Generate validates the payload and records a generation if the user is
// entitled. Transient store failures repeat the whole status and write
// sequence a bounded number of times. A refusal is a *QuotaError.
func (s *GenerationService) Generate(ctx context.Context, userID string, colors []string, harmony string) (*models.Generation, error) {
	normalized, err := palette.Normalize(colors)
	if err != nil {
		return nil, err
	}
	h, err := palette.ParseHarmony(harmony)
	if err != nil {
		return nil, err
	}

	var created *models.Generation
	backoff := retry.WithMaxRetries(s.attempts-1, retry.NewExponential(s.backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		st, err := s.Status(ctx, userID)
		if err != nil {
			return retryable(err)
		}
		if !st.Allowed() {
			return &QuotaError{Status: st}
		}

		g, err := s.Write(ctx, userID, st.Quota(), normalized, string(h))
		switch {
		case errors.Is(err, common.ErrQuotaExceeded):
			return s.quotaError(ctx, userID, st)
		case dbx.IsTransient(err):
			s.log.Warn(ctx, "generation write contended, retrying", "user_id", userID, "error", err)
			return retry.RetryableError(dbx.Classify(err))
		case err != nil:
			return err
		}
		created = g
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrQuotaExceeded) {
			s.observer.QuotaExceeded()
		}
		return nil, err
	}

	s.observer.GenerationRecorded(created.Source)
	s.log.Info(ctx, "generation recorded", "user_id", userID, "generation_id", created.ID, "source", created.Source)
	return created, nil
}

// quotaError reports the entitlement as it is after the refused write.
func (s *GenerationService) quotaError(ctx context.Context, userID string, fallback entitlement.Status) error {
	st, err := s.Status(ctx, userID)
	if err != nil {
		st = fallback
		st.RemainingGenerations = 0
	}
	return &QuotaError{Status: st}
}

func retryable(err error) error {
	if dbx.IsTransient(err) {
		return retry.RetryableError(dbx.Classify(err))
	}
	return err
}

// List returns the user's most recent generations.
func (s *GenerationService) List(ctx context.Context, userID string, limit int) ([]*models.Generation, error) {
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}
	return s.repomanager.Generations(s.db).ListByUser(ctx, userID, limit)
}
