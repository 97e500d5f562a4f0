package domain

import "time"

// LeaderboardEntry is one ranked row, derived per query and never stored.
// Ranks are 1-based and dense; ordering is score descending with ties broken
// by created_at ascending, so the earlier submission ranks higher.
type LeaderboardEntry struct {
	Rank       int64     `json:"rank"`
	PlayerName string    `json:"player_name"`
	Score      int64     `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
}

// Leaderboard is a ranked view of a game's scores, one entry per player
// carrying that player's best score in the window.
type Leaderboard struct {
	GameID       int64              `json:"game_id"`
	GameName     string             `json:"game_name"`
	Entries      []LeaderboardEntry `json:"entries"`
	TotalEntries int64              `json:"total_entries"`
	Period       Period             `json:"period,omitempty"`
}

// PlayerStats aggregates a player's scores within a game. Rank is the
// position of the player's best score in the unwindowed leaderboard.
type PlayerStats struct {
	PlayerName   string    `json:"player_name"`
	GameID       int64     `json:"game_id"`
	TotalScores  int64     `json:"total_scores"`
	BestScore    int64     `json:"best_score"`
	AverageScore float64   `json:"average_score"`
	WorstScore   int64     `json:"worst_score"`
	Rank         int64     `json:"rank"`
	FirstPlayed  time.Time `json:"first_played"`
	LastPlayed   time.Time `json:"last_played"`
}
