package domain

import (
	"regexp"
	"strings"
	"time"
)

// Game represents a registered tenant owning its own scores and API key.
// Only the one-way hash of the API key is ever stored.
type Game struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	APIKeyHash  string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// GameInfo is the public view of a game, without key material.
type GameInfo struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Info returns the public view of the game.
func (g *Game) Info() GameInfo {
	return GameInfo{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		CreatedAt:   g.CreatedAt,
	}
}

// GameRegistration is returned on registration. The plaintext APIKey appears
// here exactly once and is never retrievable again.
type GameRegistration struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	APIKey      string    `json:"api_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// RegisterGameRequest is the payload for creating a new game.
type RegisterGameRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

var (
	gameNamePattern    = regexp.MustCompile(`^[\w\s\-.,!?()]+$`)
	descriptionPattern = regexp.MustCompile(`^[\w\s\-.,!?()"':;]+$`)
)

// Validate checks the request against the configured limits and normalizes
// whitespace in place.
func (r *RegisterGameRequest) Validate(limits Limits) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return NewValidationError("name", "must not be empty")
	}
	if len(r.Name) > limits.MaxGameNameLength {
		return NewValidationError("name", "too long")
	}
	if !gameNamePattern.MatchString(r.Name) {
		return NewValidationError("name", "contains invalid characters")
	}

	r.Description = strings.TrimSpace(r.Description)
	if len(r.Description) > limits.MaxDescriptionLength {
		return NewValidationError("description", "too long")
	}
	if r.Description != "" && !descriptionPattern.MatchString(r.Description) {
		return NewValidationError("description", "contains invalid characters")
	}
	return nil
}
