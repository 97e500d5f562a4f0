package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/highscore-api/internal/config"
	"github.com/highscore-api/internal/domain"
)

// Repository provides PostgreSQL-backed persistence for games and scores.
// Scores are append-only; the composite index on (game_id, score DESC,
// created_at ASC) is the incrementally maintained rank order, so top-N reads
// never sort the full history.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// storageErr tags an error as a transient storage failure while keeping the
// underlying detail in the message for logs.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStorageUnavailable, err)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			description VARCHAR(500),
			api_key_hash VARCHAR(64) UNIQUE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS scores (
			id BIGSERIAL PRIMARY KEY,
			game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			player_name VARCHAR(50) NOT NULL,
			score BIGINT NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_games_api_key_hash ON games(api_key_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_rank ON scores(game_id, score DESC, created_at ASC)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_player ON scores(game_id, player_name)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_created ON scores(game_id, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// CreateGame persists a new game with its key hash and returns the record.
func (r *Repository) CreateGame(ctx context.Context, name, description, keyHash string) (*domain.Game, error) {
	query := `
		INSERT INTO games (name, description, api_key_hash, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`
	game := &domain.Game{
		Name:        name,
		Description: description,
		APIKeyHash:  keyHash,
	}
	err := r.pool.QueryRow(ctx, query, name, description, keyHash).Scan(&game.ID, &game.CreatedAt)
	if err != nil {
		return nil, storageErr("creating game", err)
	}
	return game, nil
}

// GetGame retrieves a game by ID
func (r *Repository) GetGame(ctx context.Context, id int64) (*domain.Game, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), api_key_hash, created_at
		FROM games
		WHERE id = $1
	`
	var game domain.Game
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&game.ID, &game.Name, &game.Description, &game.APIKeyHash, &game.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrGameNotFound
		}
		return nil, storageErr("getting game", err)
	}
	return &game, nil
}

// GetGameByKeyHash retrieves a game by the hash of its API key. A miss means
// the key was never issued or has been rotated away; callers surface both the
// same way.
func (r *Repository) GetGameByKeyHash(ctx context.Context, keyHash string) (*domain.Game, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), api_key_hash, created_at
		FROM games
		WHERE api_key_hash = $1
	`
	var game domain.Game
	err := r.pool.QueryRow(ctx, query, keyHash).Scan(
		&game.ID, &game.Name, &game.Description, &game.APIKeyHash, &game.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrGameNotFound
		}
		return nil, storageErr("getting game by key hash", err)
	}
	return &game, nil
}

// RotateGameKey replaces a game's API key hash, invalidating the old key.
func (r *Repository) RotateGameKey(ctx context.Context, gameID int64, keyHash string) error {
	query := `UPDATE games SET api_key_hash = $2 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, gameID, keyHash)
	if err != nil {
		return storageErr("rotating game key", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrGameNotFound
	}
	return nil
}

// InsertScore persists a new score record and fills in its assigned id. The
// caller sets created_at so the tie-break order matches ingestion order.
func (r *Repository) InsertScore(ctx context.Context, score *domain.Score) error {
	var metadataJSON []byte
	var err error
	if score.Metadata != nil {
		metadataJSON, err = json.Marshal(score.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
	}

	query := `
		INSERT INTO scores (game_id, player_name, score, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err = r.pool.QueryRow(ctx, query,
		score.GameID, score.PlayerName, score.Score, metadataJSON, score.CreatedAt,
	).Scan(&score.ID)
	if err != nil {
		return storageErr("inserting score", err)
	}
	return nil
}

// QueryScores returns score records matching the filter, newest first.
func (r *Repository) QueryScores(ctx context.Context, gameID int64, filter domain.ScoreFilter) ([]domain.Score, error) {
	query := `
		SELECT id, game_id, player_name, score, metadata, created_at
		FROM scores
		WHERE game_id = $1
	`
	args := []any{gameID}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.PlayerName != "" {
		args = append(args, filter.PlayerName)
		query += fmt.Sprintf(" AND player_name = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("querying scores", err)
	}
	defer rows.Close()

	var scores []domain.Score
	for rows.Next() {
		var s domain.Score
		var metadataJSON []byte
		if err := rows.Scan(&s.ID, &s.GameID, &s.PlayerName, &s.Score, &metadataJSON, &s.CreatedAt); err != nil {
			return nil, storageErr("scanning score", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &s.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata: %w", err)
			}
		}
		scores = append(scores, s)
	}
	return scores, nil
}

// Leaderboard returns up to limit ranked entries for a game: each player's
// best score within the window, ordered by score descending with ties broken
// by the earliest submission that achieved the score.
func (r *Repository) Leaderboard(ctx context.Context, gameID int64, since *time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	where := "game_id = $1"
	args := []any{gameID}
	if since != nil {
		args = append(args, *since)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT player_name, score, created_at FROM (
			SELECT DISTINCT ON (player_name) player_name, score, created_at
			FROM scores
			WHERE %s
			ORDER BY player_name, score DESC, created_at ASC
		) best
		ORDER BY score DESC, created_at ASC
		LIMIT $%d
	`, where, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("querying leaderboard", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.PlayerName, &entry.Score, &entry.CreatedAt); err != nil {
			return nil, storageErr("scanning leaderboard entry", err)
		}
		entry.Rank = int64(len(entries) + 1)
		entries = append(entries, entry)
	}
	return entries, nil
}

// CountPlayers returns the number of distinct players with a score in the
// window.
func (r *Repository) CountPlayers(ctx context.Context, gameID int64, since *time.Time) (int64, error) {
	query := `SELECT COUNT(DISTINCT player_name) FROM scores WHERE game_id = $1`
	args := []any{gameID}
	if since != nil {
		args = append(args, *since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}

	var count int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, storageErr("counting players", err)
	}
	return count, nil
}

// PlayerStats aggregates a player's scores within a game. Rank is filled in
// by the caller.
func (r *Repository) PlayerStats(ctx context.Context, gameID int64, playerName string) (*domain.PlayerStats, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(MAX(score), 0),
		       COALESCE(AVG(score), 0),
		       COALESCE(MIN(score), 0),
		       COALESCE(MIN(created_at), NOW()),
		       COALESCE(MAX(created_at), NOW())
		FROM scores
		WHERE game_id = $1 AND player_name = $2
	`
	stats := &domain.PlayerStats{
		PlayerName: playerName,
		GameID:     gameID,
	}
	err := r.pool.QueryRow(ctx, query, gameID, playerName).Scan(
		&stats.TotalScores,
		&stats.BestScore,
		&stats.AverageScore,
		&stats.WorstScore,
		&stats.FirstPlayed,
		&stats.LastPlayed,
	)
	if err != nil {
		return nil, storageErr("aggregating player stats", err)
	}
	if stats.TotalScores == 0 {
		return nil, domain.ErrPlayerNotFound
	}
	return stats, nil
}

// PlayerRank returns the position of the player's best score in the full
// unwindowed leaderboard, consistent with Leaderboard's ordering.
func (r *Repository) PlayerRank(ctx context.Context, gameID int64, playerName string) (int64, error) {
	query := `
		WITH best AS (
			SELECT DISTINCT ON (player_name) player_name, score, created_at
			FROM scores
			WHERE game_id = $1
			ORDER BY player_name, score DESC, created_at ASC
		), ranked AS (
			SELECT player_name,
			       ROW_NUMBER() OVER (ORDER BY score DESC, created_at ASC) AS rank
			FROM best
		)
		SELECT rank FROM ranked WHERE player_name = $2
	`
	var rank int64
	err := r.pool.QueryRow(ctx, query, gameID, playerName).Scan(&rank)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, domain.ErrPlayerNotFound
		}
		return 0, storageErr("ranking player", err)
	}
	return rank, nil
}

// ActiveGames returns the ids of games with at least one score since the
// given time. Used by the cache refresher.
func (r *Repository) ActiveGames(ctx context.Context, since time.Time) ([]int64, error) {
	query := `SELECT DISTINCT game_id FROM scores WHERE created_at >= $1`
	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, storageErr("listing active games", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scanning game id", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
