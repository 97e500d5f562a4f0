package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/highscore-api/internal/domain"
)

// SubmitScore validates and persists one score. The record is fully durable
// and visible to leaderboard reads before this returns: the insert commits
// first, then every cached page for the game is dropped.
func (s *Service) SubmitScore(ctx context.Context, game *domain.Game, sub domain.ScoreSubmission) (*domain.Score, error) {
	if err := sub.Validate(s.limits); err != nil {
		return nil, err
	}

	score := &domain.Score{
		GameID:     game.ID,
		PlayerName: sub.PlayerName,
		Score:      sub.Score,
		Metadata:   sub.Metadata,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.store.InsertScore(ctx, score); err != nil {
		return nil, fmt.Errorf("persisting score: %w", err)
	}

	if err := s.cache.InvalidateGame(ctx, game.ID); err != nil {
		// The TTL bounds staleness if invalidation fails; the write itself
		// is already durable.
		s.logger.Warn("failed to invalidate leaderboard cache", "game_id", game.ID, "error", err)
	}

	s.notifySubscribers(game)

	return score, nil
}

// SubmitScoreBatch validates and persists each entry independently and
// reports per-entry outcomes. One bad entry never blocks the rest.
func (s *Service) SubmitScoreBatch(ctx context.Context, game *domain.Game, batch domain.BatchScoreSubmission) []domain.BatchScoreResult {
	results := make([]domain.BatchScoreResult, len(batch.Scores))
	for i, sub := range batch.Scores {
		results[i].Index = i
		score, err := s.SubmitScore(ctx, game, sub)
		if err != nil {
			if domain.IsValidationError(err) {
				results[i].Error = err.Error()
			} else {
				s.logger.Error("batch score submission failed",
					"game_id", game.ID,
					"player_name", sub.PlayerName,
					"error", err,
				)
				results[i].Error = domain.ErrInternal.Error()
			}
			continue
		}
		results[i].Score = score
	}
	return results
}

// IngestScore submits a score on behalf of an internal producer that carries
// a game id instead of an API key (the Kafka path).
func (s *Service) IngestScore(ctx context.Context, gameID int64, sub domain.ScoreSubmission) error {
	var game *domain.Game
	err := s.withReadRetry(func() error {
		var err error
		game, err = s.store.GetGame(ctx, gameID)
		return err
	})
	if err != nil {
		return fmt.Errorf("resolving game %d: %w", gameID, err)
	}
	_, err = s.SubmitScore(ctx, game, sub)
	return err
}

// Leaderboard returns the ranked view of a game's scores for the period.
// limit is clamped to [1, MaxLimit] with the configured default when zero.
// An empty window yields an empty page with TotalEntries 0, not an error.
func (s *Service) Leaderboard(ctx context.Context, game *domain.Game, limit int, period domain.Period) (*domain.Leaderboard, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	cached, err := s.cache.GetLeaderboard(ctx, game.ID, period, limit)
	if err != nil {
		s.logger.Warn("leaderboard cache read failed", "game_id", game.ID, "error", err)
	} else if cached != nil {
		return cached, nil
	}

	lb, err := s.computeLeaderboard(ctx, game, limit, period)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetLeaderboard(ctx, lb, limit); err != nil {
		s.logger.Warn("leaderboard cache write failed", "game_id", game.ID, "error", err)
	}
	return lb, nil
}

// computeLeaderboard builds a page from storage, bypassing the cache.
func (s *Service) computeLeaderboard(ctx context.Context, game *domain.Game, limit int, period domain.Period) (*domain.Leaderboard, error) {
	since := s.windowStart(period)

	var entries []domain.LeaderboardEntry
	var total int64
	err := s.withReadRetry(func() error {
		var err error
		entries, err = s.store.Leaderboard(ctx, game.ID, since, limit)
		if err != nil {
			return err
		}
		total, err = s.store.CountPlayers(ctx, game.ID, since)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("computing leaderboard: %w", err)
	}

	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	return &domain.Leaderboard{
		GameID:       game.ID,
		GameName:     game.Name,
		Entries:      entries,
		TotalEntries: total,
		Period:       period,
	}, nil
}

// PlayerStats aggregates one player's scores within the game. The rank is
// the player's best score's position in the unwindowed leaderboard.
func (s *Service) PlayerStats(ctx context.Context, game *domain.Game, playerName string) (*domain.PlayerStats, error) {
	var stats *domain.PlayerStats
	err := s.withReadRetry(func() error {
		var err error
		stats, err = s.store.PlayerStats(ctx, game.ID, playerName)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrPlayerNotFound) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("aggregating stats: %w", err)
	}

	err = s.withReadRetry(func() error {
		var err error
		stats.Rank, err = s.store.PlayerRank(ctx, game.ID, playerName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ranking player: %w", err)
	}
	return stats, nil
}

// QueryScores returns a game's raw score records, filterable by period and
// player.
func (s *Service) QueryScores(ctx context.Context, game *domain.Game, period domain.Period, playerName string, limit int) ([]domain.Score, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	filter := domain.ScoreFilter{
		Since:      s.windowStart(period),
		PlayerName: playerName,
		Limit:      limit,
	}

	var scores []domain.Score
	err := s.withReadRetry(func() error {
		var err error
		scores, err = s.store.QueryScores(ctx, game.ID, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying scores: %w", err)
	}
	if scores == nil {
		scores = []domain.Score{}
	}
	return scores, nil
}

// ActiveGames lists games with submissions since the given time.
func (s *Service) ActiveGames(ctx context.Context, since time.Time) ([]int64, error) {
	return s.store.ActiveGames(ctx, since)
}

// WarmLeaderboard recomputes and re-caches the default all-time page for a
// game. Used by the background refresher.
func (s *Service) WarmLeaderboard(ctx context.Context, gameID int64) error {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	lb, err := s.computeLeaderboard(ctx, game, s.cfg.DefaultLimit, domain.PeriodAll)
	if err != nil {
		return err
	}
	return s.cache.SetLeaderboard(ctx, lb, s.cfg.DefaultLimit)
}

// notifySubscribers pushes a fresh default page to websocket subscribers.
// Best effort, off the request path.
func (s *Service) notifySubscribers(game *domain.Game) {
	if s.hub == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		lb, err := s.computeLeaderboard(ctx, game, s.cfg.DefaultLimit, domain.PeriodAll)
		if err != nil {
			s.logger.Warn("failed to compute leaderboard for broadcast", "game_id", game.ID, "error", err)
			return
		}
		s.hub.BroadcastLeaderboard(game.ID, lb)
	}()
}
