package domain

import (
	"regexp"
	"strings"
	"time"
)

// Limits bounds client-supplied input. Zero values are never used directly;
// callers pass DefaultLimits or the configured equivalent.
type Limits struct {
	MaxPlayerNameLength  int
	MaxGameNameLength    int
	MaxDescriptionLength int
	MaxScoreValue        int64
	MaxMetadataBytes     int
}

// DefaultLimits returns the standard input limits.
func DefaultLimits() Limits {
	return Limits{
		MaxPlayerNameLength:  50,
		MaxGameNameLength:    100,
		MaxDescriptionLength: 500,
		MaxScoreValue:        999999999,
		MaxMetadataBytes:     10240,
	}
}

// Score represents one immutable submission of a player's result for a game.
// Records are never updated or deleted once created.
type Score struct {
	ID         int64     `json:"id"`
	GameID     int64     `json:"game_id"`
	PlayerName string    `json:"player_name"`
	Score      int64     `json:"score"`
	Metadata   Metadata  `json:"game_metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScoreSubmission is the payload for submitting a score.
type ScoreSubmission struct {
	PlayerName string   `json:"player_name"`
	Score      int64    `json:"score"`
	Metadata   Metadata `json:"game_metadata,omitempty"`
}

// BatchScoreSubmission represents multiple score submissions.
type BatchScoreSubmission struct {
	Scores []ScoreSubmission `json:"scores"`
}

// BatchScoreResult reports the outcome of one entry in a batch submission.
type BatchScoreResult struct {
	Index int    `json:"index"`
	Score *Score `json:"score,omitempty"`
	Error string `json:"error,omitempty"`
}

var playerNamePattern = regexp.MustCompile(`^[\w\s\-._@]+$`)

// Validate checks the submission against the configured limits and trims the
// player name in place.
func (s *ScoreSubmission) Validate(limits Limits) error {
	s.PlayerName = strings.TrimSpace(s.PlayerName)
	if s.PlayerName == "" {
		return NewValidationError("player_name", "must not be empty")
	}
	if len(s.PlayerName) > limits.MaxPlayerNameLength {
		return NewValidationError("player_name", "too long")
	}
	if !playerNamePattern.MatchString(s.PlayerName) {
		return NewValidationError("player_name", "contains invalid characters")
	}
	if s.Score < 0 || s.Score > limits.MaxScoreValue {
		return NewValidationError("score", "out of range")
	}
	if err := s.Metadata.Validate(limits.MaxMetadataBytes); err != nil {
		return err
	}
	return nil
}

// ScoreFilter narrows a score query.
type ScoreFilter struct {
	Since      *time.Time
	PlayerName string
	Limit      int
}
