package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/highscore-api/internal/domain"
)

// fakeStore is an in-memory Store with the same ordering semantics as the
// SQL layer: best score per player, score descending, created_at ascending.
type fakeStore struct {
	mu          sync.Mutex
	games       map[int64]*domain.Game
	scores      []domain.Score
	nextGameID  int64
	nextScoreID int64

	// failReads makes the next N read calls fail with a storage error.
	failReads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{games: make(map[int64]*domain.Game)}
}

func (f *fakeStore) readFailure() error {
	if f.failReads > 0 {
		f.failReads--
		return fmt.Errorf("fake: %w", domain.ErrStorageUnavailable)
	}
	return nil
}

func (f *fakeStore) CreateGame(ctx context.Context, name, description, keyHash string) (*domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextGameID++
	game := &domain.Game{
		ID:          f.nextGameID,
		Name:        name,
		Description: description,
		APIKeyHash:  keyHash,
		CreatedAt:   time.Now().UTC(),
	}
	f.games[game.ID] = game
	return game, nil
}

func (f *fakeStore) GetGame(ctx context.Context, id int64) (*domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readFailure(); err != nil {
		return nil, err
	}
	game, ok := f.games[id]
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	return game, nil
}

func (f *fakeStore) GetGameByKeyHash(ctx context.Context, keyHash string) (*domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, game := range f.games {
		if game.APIKeyHash == keyHash {
			return game, nil
		}
	}
	return nil, domain.ErrGameNotFound
}

func (f *fakeStore) RotateGameKey(ctx context.Context, gameID int64, keyHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	game, ok := f.games[gameID]
	if !ok {
		return domain.ErrGameNotFound
	}
	game.APIKeyHash = keyHash
	return nil
}

func (f *fakeStore) InsertScore(ctx context.Context, score *domain.Score) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.games[score.GameID]; !ok {
		return domain.ErrGameNotFound
	}
	f.nextScoreID++
	score.ID = f.nextScoreID
	f.scores = append(f.scores, *score)
	return nil
}

func (f *fakeStore) QueryScores(ctx context.Context, gameID int64, filter domain.ScoreFilter) ([]domain.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readFailure(); err != nil {
		return nil, err
	}
	var out []domain.Score
	for _, s := range f.scores {
		if s.GameID != gameID {
			continue
		}
		if filter.Since != nil && s.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.PlayerName != "" && s.PlayerName != filter.PlayerName {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// bestPerPlayer returns each player's best score in the window, ordered by
// (score desc, created_at asc).
func (f *fakeStore) bestPerPlayer(gameID int64, since *time.Time) []domain.LeaderboardEntry {
	best := make(map[string]domain.LeaderboardEntry)
	for _, s := range f.scores {
		if s.GameID != gameID {
			continue
		}
		if since != nil && s.CreatedAt.Before(*since) {
			continue
		}
		cur, ok := best[s.PlayerName]
		if !ok || s.Score > cur.Score || (s.Score == cur.Score && s.CreatedAt.Before(cur.CreatedAt)) {
			best[s.PlayerName] = domain.LeaderboardEntry{
				PlayerName: s.PlayerName,
				Score:      s.Score,
				CreatedAt:  s.CreatedAt,
			}
		}
	}
	entries := make([]domain.LeaderboardEntry, 0, len(best))
	for _, e := range best {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries
}

func (f *fakeStore) Leaderboard(ctx context.Context, gameID int64, since *time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readFailure(); err != nil {
		return nil, err
	}
	entries := f.bestPerPlayer(gameID, since)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (f *fakeStore) CountPlayers(ctx context.Context, gameID int64, since *time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readFailure(); err != nil {
		return 0, err
	}
	return int64(len(f.bestPerPlayer(gameID, since))), nil
}

func (f *fakeStore) PlayerStats(ctx context.Context, gameID int64, playerName string) (*domain.PlayerStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readFailure(); err != nil {
		return nil, err
	}
	stats := &domain.PlayerStats{PlayerName: playerName, GameID: gameID}
	var sum int64
	for _, s := range f.scores {
		if s.GameID != gameID || s.PlayerName != playerName {
			continue
		}
		if stats.TotalScores == 0 {
			stats.BestScore = s.Score
			stats.WorstScore = s.Score
			stats.FirstPlayed = s.CreatedAt
			stats.LastPlayed = s.CreatedAt
		}
		if s.Score > stats.BestScore {
			stats.BestScore = s.Score
		}
		if s.Score < stats.WorstScore {
			stats.WorstScore = s.Score
		}
		if s.CreatedAt.Before(stats.FirstPlayed) {
			stats.FirstPlayed = s.CreatedAt
		}
		if s.CreatedAt.After(stats.LastPlayed) {
			stats.LastPlayed = s.CreatedAt
		}
		sum += s.Score
		stats.TotalScores++
	}
	if stats.TotalScores == 0 {
		return nil, domain.ErrPlayerNotFound
	}
	stats.AverageScore = float64(sum) / float64(stats.TotalScores)
	return stats, nil
}

func (f *fakeStore) PlayerRank(ctx context.Context, gameID int64, playerName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readFailure(); err != nil {
		return 0, err
	}
	for _, e := range f.bestPerPlayer(gameID, nil) {
		if e.PlayerName == playerName {
			return e.Rank, nil
		}
	}
	return 0, domain.ErrPlayerNotFound
}

func (f *fakeStore) ActiveGames(ctx context.Context, since time.Time) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[int64]bool)
	var ids []int64
	for _, s := range f.scores {
		if s.CreatedAt.Before(since) || seen[s.GameID] {
			continue
		}
		seen[s.GameID] = true
		ids = append(ids, s.GameID)
	}
	return ids, nil
}

// fakeCache is an in-memory Cache recording hits and invalidations.
type fakeCache struct {
	mu          sync.Mutex
	pages       map[string]*domain.Leaderboard
	sets        int
	invalidates int
}

func newFakeCache() *fakeCache {
	return &fakeCache{pages: make(map[string]*domain.Leaderboard)}
}

func cacheKey(gameID int64, period domain.Period, limit int) string {
	return fmt.Sprintf("%d:%s:%d", gameID, period.String(), limit)
}

func (f *fakeCache) GetLeaderboard(ctx context.Context, gameID int64, period domain.Period, limit int) (*domain.Leaderboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[cacheKey(gameID, period, limit)], nil
}

func (f *fakeCache) SetLeaderboard(ctx context.Context, lb *domain.Leaderboard, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[cacheKey(lb.GameID, lb.Period, limit)] = lb
	f.sets++
	return nil
}

func (f *fakeCache) InvalidateGame(ctx context.Context, gameID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := fmt.Sprintf("%d:", gameID)
	for key := range f.pages {
		if strings.HasPrefix(key, prefix) {
			delete(f.pages, key)
		}
	}
	f.invalidates++
	return nil
}
