package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/highscore-api/internal/config"
)

type fakeLeaderboards struct {
	mu       sync.Mutex
	active   []int64
	warmed   []int64
	listErr  error
	warmErrs map[int64]error
}

func (f *fakeLeaderboards) ActiveGames(ctx context.Context, since time.Time) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.listErr
}

func (f *fakeLeaderboards) WarmLeaderboard(ctx context.Context, gameID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.warmErrs[gameID]; err != nil {
		return err
	}
	f.warmed = append(f.warmed, gameID)
	return nil
}

func (f *fakeLeaderboards) warmedGames() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.warmed...)
}

func testConfig() *config.WorkerConfig {
	return &config.WorkerConfig{
		Interval:       10 * time.Millisecond,
		ActiveWindow:   10 * time.Minute,
		RefreshTimeout: time.Second,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnceWarmsActiveGames(t *testing.T) {
	fake := &fakeLeaderboards{active: []int64{1, 2, 3}}
	w := NewRefresher(fake, testConfig(), testLogger())

	w.RunOnce(context.Background())

	warmed := fake.warmedGames()
	if len(warmed) != 3 {
		t.Fatalf("warmed %d games, want 3", len(warmed))
	}
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	fake := &fakeLeaderboards{
		active:   []int64{1, 2, 3},
		warmErrs: map[int64]error{2: errors.New("warm failed")},
	}
	w := NewRefresher(fake, testConfig(), testLogger())

	w.RunOnce(context.Background())

	warmed := fake.warmedGames()
	if len(warmed) != 2 {
		t.Fatalf("warmed %d games, want 2 (failure must not stop the cycle)", len(warmed))
	}
}

func TestRunOnceListFailure(t *testing.T) {
	fake := &fakeLeaderboards{listErr: errors.New("db down")}
	w := NewRefresher(fake, testConfig(), testLogger())

	w.RunOnce(context.Background())

	if len(fake.warmedGames()) != 0 {
		t.Error("warmed games despite list failure")
	}
}

func TestStartStop(t *testing.T) {
	fake := &fakeLeaderboards{active: []int64{1}}
	w := NewRefresher(fake, testConfig(), testLogger())

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !w.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	// Let at least one tick fire.
	deadline := time.After(time.Second)
	for len(fake.warmedGames()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no refresh cycle ran within a second")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if w.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	fake := &fakeLeaderboards{}
	w := NewRefresher(fake, testConfig(), testLogger())

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}
