package billing

import (
	"context"
	"time"

	"github.com/dmitrijs2005/palette/internal/logging"
)

// RetryWorker periodically re-applies unresolved events.
type RetryWorker struct {
	reconciler *Reconciler
	interval   time.Duration
	timeout    time.Duration
	log        logging.Logger
}

func NewRetryWorker(r *Reconciler, interval time.Duration, log logging.Logger) *RetryWorker {
	return &RetryWorker{
		reconciler: r,
		interval:   interval,
		timeout:    30 * time.Second,
		log:        log.With("module", "billing-retry"),
	}
}

// Run blocks until ctx is cancelled. A non-positive interval disables it.
func (w *RetryWorker) Run(ctx context.Context) {
	if w.interval <= 0 {
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *RetryWorker) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	n, err := w.reconciler.RetryUnresolved(ctx)
	if err != nil {
		w.log.Error(ctx, "retrying unresolved billing events", "error", err)
	}
	if n > 0 {
		w.log.Info(ctx, "unresolved billing events applied", "count", n)
	}
}
