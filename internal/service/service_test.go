package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/highscore-api/internal/auth"
	"github.com/highscore-api/internal/config"
	"github.com/highscore-api/internal/domain"
)

func newTestService(t *testing.T, store *fakeStore, cache *fakeCache) *Service {
	t.Helper()
	cfg := &config.LeaderboardConfig{
		DefaultLimit: 10,
		MaxLimit:     100,
		CacheTTL:     5 * time.Second,
		Timezone:     "UTC",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(store, cache, cfg, domain.DefaultLimits(), logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc
}

func registerGame(t *testing.T, svc *Service) (*domain.Game, string) {
	t.Helper()
	reg, err := svc.RegisterGame(context.Background(), domain.RegisterGameRequest{
		Name: "Space Shooter",
	})
	if err != nil {
		t.Fatalf("RegisterGame() error = %v", err)
	}
	game, err := svc.Authorize(context.Background(), reg.APIKey)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	return game, reg.APIKey
}

func submitAt(t *testing.T, svc *Service, game *domain.Game, player string, score int64, at time.Time) {
	t.Helper()
	svc.clock = func() time.Time { return at }
	if _, err := svc.SubmitScore(context.Background(), game, domain.ScoreSubmission{
		PlayerName: player,
		Score:      score,
	}); err != nil {
		t.Fatalf("SubmitScore(%s, %d) error = %v", player, score, err)
	}
}

func TestRegisterGameStoresOnlyKeyHash(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, newFakeCache())

	reg, err := svc.RegisterGame(context.Background(), domain.RegisterGameRequest{
		Name:        "Puzzle Quest",
		Description: "a puzzle game",
	})
	if err != nil {
		t.Fatalf("RegisterGame() error = %v", err)
	}
	if !auth.WellFormed(reg.APIKey) {
		t.Errorf("RegisterGame() key %q is not well formed", reg.APIKey)
	}

	stored := store.games[reg.ID]
	if stored == nil {
		t.Fatal("game was not persisted")
	}
	if stored.APIKeyHash == reg.APIKey {
		t.Error("plaintext key was persisted")
	}
	if stored.APIKeyHash != auth.HashKey(reg.APIKey) {
		t.Error("persisted hash does not match issued key")
	}
}

func TestRegisterGameValidation(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCache())

	tests := []struct {
		name string
		req  domain.RegisterGameRequest
	}{
		{"empty name", domain.RegisterGameRequest{Name: ""}},
		{"whitespace name", domain.RegisterGameRequest{Name: "   "}},
		{"invalid characters", domain.RegisterGameRequest{Name: "game<script>"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterGame(context.Background(), tt.req)
			if !domain.IsValidationError(err) {
				t.Errorf("RegisterGame() error = %v, want validation error", err)
			}
		})
	}
}

func TestAuthorizeFailuresAreUniform(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCache())
	game, key := registerGame(t, svc)
	_ = game

	neverIssued, err := auth.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"malformed", "not-a-key"},
		{"wrong prefix", "token_" + key[len("game_"):]},
		{"tampered", key[:len(key)-1] + "x"},
		{"never issued", neverIssued},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authorize(context.Background(), tt.key)
			if !errors.Is(err, domain.ErrUnauthorized) {
				t.Errorf("Authorize(%q) error = %v, want ErrUnauthorized", tt.key, err)
			}
		})
	}
}

func TestRotateKeyInvalidatesOldKey(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCache())
	game, oldKey := registerGame(t, svc)

	newKey, err := svc.RotateKey(context.Background(), game)
	if err != nil {
		t.Fatalf("RotateKey() error = %v", err)
	}
	if newKey == oldKey {
		t.Fatal("RotateKey() returned the old key")
	}

	if _, err := svc.Authorize(context.Background(), oldKey); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("old key error = %v, want ErrUnauthorized", err)
	}
	got, err := svc.Authorize(context.Background(), newKey)
	if err != nil {
		t.Fatalf("new key error = %v", err)
	}
	if got.ID != game.ID {
		t.Errorf("new key resolved game %d, want %d", got.ID, game.ID)
	}
}

func TestSubmitScoreValidation(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCache())
	game, _ := registerGame(t, svc)

	longName := make([]byte, 51)
	for i := range longName {
		longName[i] = 'a'
	}

	tests := []struct {
		name string
		sub  domain.ScoreSubmission
	}{
		{"empty player", domain.ScoreSubmission{PlayerName: "", Score: 10}},
		{"whitespace player", domain.ScoreSubmission{PlayerName: "   ", Score: 10}},
		{"player too long", domain.ScoreSubmission{PlayerName: string(longName), Score: 10}},
		{"invalid characters", domain.ScoreSubmission{PlayerName: "bad<name>", Score: 10}},
		{"negative score", domain.ScoreSubmission{PlayerName: "alice", Score: -1}},
		{"score too large", domain.ScoreSubmission{PlayerName: "alice", Score: 1000000000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SubmitScore(context.Background(), game, tt.sub)
			if !domain.IsValidationError(err) {
				t.Errorf("SubmitScore() error = %v, want validation error", err)
			}
		})
	}
}

func TestSubmitScoreVisibleAfterWrite(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	svc := newTestService(t, store, cache)
	game, _ := registerGame(t, svc)

	// Warm the cache with a page that predates the submission.
	if _, err := svc.Leaderboard(context.Background(), game, 0, domain.PeriodAll); err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}

	submitAt(t, svc, game, "alice", 500, time.Now())

	lb, err := svc.Leaderboard(context.Background(), game, 0, domain.PeriodAll)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].PlayerName != "alice" {
		t.Fatalf("Leaderboard() entries = %+v, want alice visible after write", lb.Entries)
	}
	if cache.invalidates == 0 {
		t.Error("cache was not invalidated on write")
	}
}

func TestLeaderboardOrderingAndTieBreak(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCache())
	game, _ := registerGame(t, svc)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	submitAt(t, svc, game, "alice", 100, base)
	submitAt(t, svc, game, "bob", 100, base.Add(time.Minute))
	submitAt(t, svc, game, "carol", 200, base.Add(2*time.Minute))

	lb, err := svc.Leaderboard(context.Background(), game, 0, domain.PeriodAll)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}

	want := []struct {
		rank   int64
		player string
	}{
		{1, "carol"},
		{2, "alice"}, // equal scores rank by earlier submission
		{3, "bob"},
	}
	if len(lb.Entries) != len(want) {
		t.Fatalf("Leaderboard() returned %d entries, want %d", len(lb.Entries), len(want))
	}
	for i, w := range want {
		got := lb.Entries[i]
		if got.Rank != w.rank || got.PlayerName != w.player {
			t.Errorf("entry %d = rank %d player %s, want rank %d player %s",
				i, got.Rank, got.PlayerName, w.rank, w.player)
		}
	}
}

func TestLeaderboardBestScorePerPlayer(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCache())
	game, _ := registerGame(t, svc)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	submitAt(t, svc, game, "alice", 50, base)
	submitAt(t, svc, game, "alice", 300, base.Add(time.Minute))
	submitAt(t, svc, game, "alice", 100, base.Add(2*time.Minute))

	lb, err := svc.Leaderboard(context.Background(), game, 0, domain.PeriodAll)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(lb.Entries) != 1 {
		t.Fatalf("Leaderboard() returned %d entries, want 1", len(lb.Entries))
	}
	if lb.Entries[0].Score != 300 {
		t.Errorf("entry score = %d, want best score 300", lb.Entries[0].Score)
	}
	if lb.TotalEntries != 1 {
		t.Errorf("TotalEntries = %d, want 1", lb.TotalEntries)
	}
}

func TestLeaderboardLimitClamping(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCache())
	game, _ := registerGame(t, svc)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	players := []string{"p1", "p2", "p3", "p4", "p5"}
	for i, p := range players {
		submitAt(t, svc, game, p, int64(100-i), base.Add(time.Duration(i)*time.Second))
	}

	lb, err := svc.Leaderboard(context.Background(), game, 3, domain.PeriodAll)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(lb.Entries) != 3 {
		t.Errorf("limit 3 returned %d entries", len(lb.Entries))
	}
	if lb.TotalEntries != int64(len(players)) {
		t.Errorf("TotalEntries = %d, want %d", lb.TotalEntries, len(players))
	}

	// Over-large limits clamp to MaxLimit rather than erroring.
	lb, err = svc.Leaderboard(context.Background(), game, 10000, domain.PeriodAll)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(lb.Entries) != len(players) {
		t.Errorf("clamped limit returned %d entries, want %d", len(lb.Entries), len(players))
	}
}

func TestLeaderboardPeriodWindow(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCache())
	game, _ := registerGame(t, svc)

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	submitAt(t, svc, game, "yesterday", 900, now.Add(-20*time.Hour)) // prior calendar day
	submitAt(t, svc, game, "today", 100, now.Add(-time.Hour))
	svc.clock = func() time.Time { return now }

	lb, err := svc.Leaderboard(context.Background(), game, 0, domain.PeriodToday)
	if err != nil {
		t.Fatalf("Leaderboard(today) error = %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].PlayerName != "today" {
		t.Fatalf("Leaderboard(today) entries = %+v, want only today's submission", lb.Entries)
	}

	lb, err = svc.Leaderboard(context.Background(), game, 0, domain.PeriodWeek)
	if err != nil {
		t.Fatalf("Leaderboard(week) error = %v", err)
	}
	if len(lb.Entries) != 2 {
		t.Errorf("Leaderboard(week) returned %d entries, want 2", len(lb.Entries))
	}
}

func TestLeaderboardEmptyWindow(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCache())
	game, _ := registerGame(t, svc)

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	submitAt(t, svc, game, "alice", 100, now.AddDate(0, 0, -2))
	svc.clock = func() time.Time { return now }

	lb, err := svc.Leaderboard(context.Background(), game, 0, domain.PeriodToday)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if lb.Entries == nil {
		t.Fatal("Entries is nil, want empty slice")
	}
	if len(lb.Entries) != 0 || lb.TotalEntries != 0 {
		t.Errorf("empty window returned %d entries, total %d", len(lb.Entries), lb.TotalEntries)
	}
}

func TestPlayerStats(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCache())
	game, _ := registerGame(t, svc)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	submitAt(t, svc, game, "alice", 100, base)
	submitAt(t, svc, game, "alice", 300, base.Add(time.Hour))
	submitAt(t, svc, game, "alice", 200, base.Add(2*time.Hour))
	submitAt(t, svc, game, "bob", 400, base.Add(3*time.Hour))

	stats, err := svc.PlayerStats(context.Background(), game, "alice")
	if err != nil {
		t.Fatalf("PlayerStats() error = %v", err)
	}
	if stats.TotalScores != 3 {
		t.Errorf("TotalScores = %d, want 3", stats.TotalScores)
	}
	if stats.BestScore != 300 || stats.WorstScore != 100 {
		t.Errorf("best/worst = %d/%d, want 300/100", stats.BestScore, stats.WorstScore)
	}
	if stats.AverageScore != 200 {
		t.Errorf("AverageScore = %v, want 200", stats.AverageScore)
	}
	if stats.Rank != 2 {
		t.Errorf("Rank = %d, want 2", stats.Rank)
	}
	if !stats.FirstPlayed.Equal(base) || !stats.LastPlayed.Equal(base.Add(2*time.Hour)) {
		t.Errorf("first/last played = %v/%v", stats.FirstPlayed, stats.LastPlayed)
	}
}

func TestPlayerStatsSingleScore(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCache())
	game, _ := registerGame(t, svc)

	submitAt(t, svc, game, "solo", 42, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	stats, err := svc.PlayerStats(context.Background(), game, "solo")
	if err != nil {
		t.Fatalf("PlayerStats() error = %v", err)
	}
	if stats.BestScore != 42 || stats.WorstScore != 42 || stats.AverageScore != 42 {
		t.Errorf("single score stats = best %d worst %d avg %v, want all 42",
			stats.BestScore, stats.WorstScore, stats.AverageScore)
	}
}

func TestPlayerStatsUnknownPlayer(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCache())
	game, _ := registerGame(t, svc)

	_, err := svc.PlayerStats(context.Background(), game, "nobody")
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Errorf("PlayerStats() error = %v, want ErrPlayerNotFound", err)
	}
}

func TestSubmitScoreBatchPartialFailure(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCache())
	game, _ := registerGame(t, svc)

	results := svc.SubmitScoreBatch(context.Background(), game, domain.BatchScoreSubmission{
		Scores: []domain.ScoreSubmission{
			{PlayerName: "alice", Score: 100},
			{PlayerName: "", Score: 200},
			{PlayerName: "bob", Score: 300},
		},
	})
	if len(results) != 3 {
		t.Fatalf("batch returned %d results, want 3", len(results))
	}
	if results[0].Error != "" || results[0].Score == nil {
		t.Errorf("result 0 = %+v, want success", results[0])
	}
	if results[1].Error == "" || results[1].Score != nil {
		t.Errorf("result 1 = %+v, want validation failure", results[1])
	}
	if results[2].Error != "" || results[2].Score == nil {
		t.Errorf("result 2 = %+v, want success", results[2])
	}
}

func TestLeaderboardRetriesTransientReadFailure(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, newFakeCache())
	game, _ := registerGame(t, svc)
	submitAt(t, svc, game, "alice", 100, time.Now())

	store.failReads = 1
	if _, err := svc.Leaderboard(context.Background(), game, 0, domain.PeriodAll); err != nil {
		t.Fatalf("Leaderboard() with one transient failure error = %v", err)
	}

	svc.cache.(*fakeCache).pages = make(map[string]*domain.Leaderboard)
	store.failReads = 2
	_, err := svc.Leaderboard(context.Background(), game, 0, domain.PeriodAll)
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Errorf("Leaderboard() with persistent failure error = %v, want ErrStorageUnavailable", err)
	}
}

func TestIngestScore(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCache())
	game, _ := registerGame(t, svc)

	err := svc.IngestScore(context.Background(), game.ID, domain.ScoreSubmission{
		PlayerName: "kafka-player",
		Score:      777,
	})
	if err != nil {
		t.Fatalf("IngestScore() error = %v", err)
	}

	lb, err := svc.Leaderboard(context.Background(), game, 0, domain.PeriodAll)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].PlayerName != "kafka-player" {
		t.Errorf("ingested score missing from leaderboard: %+v", lb.Entries)
	}

	if err := svc.IngestScore(context.Background(), 9999, domain.ScoreSubmission{
		PlayerName: "ghost", Score: 1,
	}); !errors.Is(err, domain.ErrGameNotFound) {
		t.Errorf("IngestScore(unknown game) error = %v, want ErrGameNotFound", err)
	}
}

func TestQueryScoresFilters(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCache())
	game, _ := registerGame(t, svc)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	submitAt(t, svc, game, "alice", 100, base)
	submitAt(t, svc, game, "bob", 200, base.Add(time.Minute))
	submitAt(t, svc, game, "alice", 300, base.Add(2*time.Minute))

	scores, err := svc.QueryScores(context.Background(), game, domain.PeriodAll, "alice", 0)
	if err != nil {
		t.Fatalf("QueryScores() error = %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("QueryScores(alice) returned %d scores, want 2", len(scores))
	}
	for _, s := range scores {
		if s.PlayerName != "alice" {
			t.Errorf("filtered query returned score for %s", s.PlayerName)
		}
	}
}
