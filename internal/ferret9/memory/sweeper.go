package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper periodically removes silent histories from a Store so channels
// that are never read again do not hold memory forever.
type Sweeper struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger

	stopMu sync.Mutex
	stopCh chan struct{}
}

// NewSweeper creates a Sweeper for store. A non-positive interval uses the
// store's SweepInterval. If logger is nil, the default slog logger is used.
func NewSweeper(store *Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = store.Config().SweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Run sweeps on every tick until ctx is cancelled or Stop is called. It
// blocks; call it in a goroutine.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.stopMu.Lock()
	stop := w.stopCh
	w.stopMu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (w *Sweeper) Stop() {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

func (w *Sweeper) sweep() {
	n := w.store.SweepExpired()
	if n == 0 {
		return
	}
	w.logger.Debug("memory sweeper: dropped silent conversations",
		"count", n,
		"remaining", w.store.Len(),
	)
}
