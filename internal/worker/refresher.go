package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/highscore-api/internal/config"
)

// Leaderboards is the slice of the service the refresher needs.
type Leaderboards interface {
	ActiveGames(ctx context.Context, since time.Time) ([]int64, error)
	WarmLeaderboard(ctx context.Context, gameID int64) error
}

// Refresher periodically recomputes and re-caches the default leaderboard
// page for recently active games, so reads stay warm between the bursts of
// cache invalidation that heavy submission traffic causes.
type Refresher struct {
	service Leaderboards
	config  *config.WorkerConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewRefresher creates a new cache refresher
func NewRefresher(service Leaderboards, cfg *config.WorkerConfig, logger *slog.Logger) *Refresher {
	return &Refresher{
		service: service,
		config:  cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background refresh loop
func (w *Refresher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("cache refresher started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background refresh loop
func (w *Refresher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("cache refresher stopped")
	return nil
}

// run is the main worker loop
func (w *Refresher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.refreshAll(ctx)
		}
	}
}

// refreshAll warms the leaderboard cache for every recently active game
func (w *Refresher) refreshAll(ctx context.Context) {
	startTime := time.Now()

	cycleCtx, cancel := context.WithTimeout(ctx, w.config.RefreshTimeout)
	defer cancel()

	games, err := w.service.ActiveGames(cycleCtx, startTime.Add(-w.config.ActiveWindow))
	if err != nil {
		w.logger.Error("failed to list active games", "error", err)
		return
	}

	refreshed := 0
	failed := 0
	for _, gameID := range games {
		if err := w.service.WarmLeaderboard(cycleCtx, gameID); err != nil {
			w.logger.Warn("failed to warm leaderboard", "game_id", gameID, "error", err)
			failed++
		} else {
			refreshed++
		}
	}

	if refreshed > 0 || failed > 0 {
		w.logger.Info("refresh cycle completed",
			"duration", time.Since(startTime),
			"refreshed", refreshed,
			"failed", failed,
		)
	}
}

// IsRunning returns whether the worker is currently running
func (w *Refresher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single refresh cycle (useful for manual triggers)
func (w *Refresher) RunOnce(ctx context.Context) {
	w.refreshAll(ctx)
}
