// Package service implements the leaderboard business logic on top of the
// storage and cache layers: game registration and key authorization, score
// submission, ranked leaderboard queries and player statistics.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/highscore-api/internal/auth"
	"github.com/highscore-api/internal/config"
	"github.com/highscore-api/internal/domain"
)

// Store is the persistence surface the service depends on.
type Store interface {
	CreateGame(ctx context.Context, name, description, keyHash string) (*domain.Game, error)
	GetGame(ctx context.Context, id int64) (*domain.Game, error)
	GetGameByKeyHash(ctx context.Context, keyHash string) (*domain.Game, error)
	RotateGameKey(ctx context.Context, gameID int64, keyHash string) error
	InsertScore(ctx context.Context, score *domain.Score) error
	QueryScores(ctx context.Context, gameID int64, filter domain.ScoreFilter) ([]domain.Score, error)
	Leaderboard(ctx context.Context, gameID int64, since *time.Time, limit int) ([]domain.LeaderboardEntry, error)
	CountPlayers(ctx context.Context, gameID int64, since *time.Time) (int64, error)
	PlayerStats(ctx context.Context, gameID int64, playerName string) (*domain.PlayerStats, error)
	PlayerRank(ctx context.Context, gameID int64, playerName string) (int64, error)
	ActiveGames(ctx context.Context, since time.Time) ([]int64, error)
}

// Cache holds rendered leaderboard pages. GetLeaderboard returns (nil, nil)
// on a miss.
type Cache interface {
	GetLeaderboard(ctx context.Context, gameID int64, period domain.Period, limit int) (*domain.Leaderboard, error)
	SetLeaderboard(ctx context.Context, lb *domain.Leaderboard, limit int) error
	InvalidateGame(ctx context.Context, gameID int64) error
}

// Broadcaster pushes leaderboard updates to live subscribers.
type Broadcaster interface {
	BroadcastLeaderboard(gameID int64, lb *domain.Leaderboard)
}

// Service provides the leaderboard business logic.
type Service struct {
	store  Store
	cache  Cache
	cfg    *config.LeaderboardConfig
	limits domain.Limits
	loc    *time.Location
	logger *slog.Logger
	hub    Broadcaster
	clock  func() time.Time
}

// New creates a new Service. The time zone in cfg governs period window
// boundaries.
func New(store Store, cache Cache, cfg *config.LeaderboardConfig, limits domain.Limits, logger *slog.Logger) (*Service, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", cfg.Timezone, err)
	}
	return &Service{
		store:  store,
		cache:  cache,
		cfg:    cfg,
		limits: limits,
		loc:    loc,
		logger: logger,
		clock:  time.Now,
	}, nil
}

// SetBroadcaster wires the live-update hub. Optional.
func (s *Service) SetBroadcaster(hub Broadcaster) {
	s.hub = hub
}

// RegisterGame creates a game and returns its plaintext API key exactly once.
// Only the key's hash is persisted.
func (s *Service) RegisterGame(ctx context.Context, req domain.RegisterGameRequest) (*domain.GameRegistration, error) {
	if err := req.Validate(s.limits); err != nil {
		return nil, err
	}

	key, err := auth.GenerateKey()
	if err != nil {
		return nil, err
	}

	game, err := s.store.CreateGame(ctx, req.Name, req.Description, auth.HashKey(key))
	if err != nil {
		return nil, fmt.Errorf("creating game: %w", err)
	}

	s.logger.Info("game registered", "game_id", game.ID, "name", game.Name)

	return &domain.GameRegistration{
		ID:          game.ID,
		Name:        game.Name,
		Description: game.Description,
		APIKey:      key,
		CreatedAt:   game.CreatedAt,
	}, nil
}

// Authorize resolves a presented API key to its game. Missing, malformed,
// never-issued and rotated-away keys all fail with the same error.
func (s *Service) Authorize(ctx context.Context, presentedKey string) (*domain.Game, error) {
	if !auth.WellFormed(presentedKey) {
		return nil, domain.ErrUnauthorized
	}

	game, err := s.store.GetGameByKeyHash(ctx, auth.HashKey(presentedKey))
	if err != nil {
		if errors.Is(err, domain.ErrGameNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("authorizing key: %w", err)
	}
	return game, nil
}

// RotateKey issues a new API key for the game and invalidates the old one.
// The new plaintext key is returned exactly once.
func (s *Service) RotateKey(ctx context.Context, game *domain.Game) (string, error) {
	key, err := auth.GenerateKey()
	if err != nil {
		return "", err
	}
	if err := s.store.RotateGameKey(ctx, game.ID, auth.HashKey(key)); err != nil {
		return "", fmt.Errorf("rotating key: %w", err)
	}
	s.logger.Info("API key rotated", "game_id", game.ID)
	return key, nil
}

// withReadRetry runs a read once more if it failed on a transient storage
// error. Writes are never retried.
func (s *Service) withReadRetry(fn func() error) error {
	err := fn()
	if err != nil && errors.Is(err, domain.ErrStorageUnavailable) {
		s.logger.Warn("retrying read after storage failure", "error", err)
		return fn()
	}
	return err
}

// windowStart resolves a period to its inclusive lower bound at the current
// server time, or nil for all-time.
func (s *Service) windowStart(period domain.Period) *time.Time {
	start, ok := period.WindowStart(s.clock(), s.loc)
	if !ok {
		return nil
	}
	return &start
}
