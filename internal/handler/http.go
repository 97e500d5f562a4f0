package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/highscore-api/internal/config"
	"github.com/highscore-api/internal/domain"
	"github.com/highscore-api/internal/service"
	"github.com/highscore-api/internal/websocket"
)

// Limiter enforces named fixed-window rate limits per subject.
type Limiter interface {
	Allow(ctx context.Context, name, subject string, rate config.Rate) (bool, error)
}

// Handler provides HTTP handlers for the leaderboard API
type Handler struct {
	service *service.Service
	hub     *websocket.Hub
	limiter Limiter
	cfg     *config.Config
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler. hub and limiter may be nil.
func NewHandler(svc *service.Service, hub *websocket.Hub, limiter Limiter, cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		service: svc,
		hub:     hub,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)
	r.Use(securityHeaders)
	r.Use(bodyLimit(h.cfg.Server.MaxRequestBody))

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Get("/ws", h.HandleWebSocket)

	rl := h.cfg.RateLimit
	r.Route("/api/v1", func(r chi.Router) {
		r.With(h.rateLimit("create_game", rl.CreateGame)).Post("/games", h.RegisterGame)

		// Everything below requires an API key.
		r.Group(func(r chi.Router) {
			r.Use(h.requireAPIKey)

			r.With(h.rateLimit("default", rl.Default)).Get("/games/me", h.GetCurrentGame)
			r.With(h.rateLimit("default", rl.Default)).Post("/games/rotate-key", h.RotateKey)

			r.With(h.rateLimit("submit_score", rl.SubmitScore)).Post("/scores", h.SubmitScore)
			r.With(h.rateLimit("submit_score", rl.SubmitScore)).Post("/scores/batch", h.SubmitScoreBatch)
			r.With(h.rateLimit("default", rl.Default)).Get("/scores", h.QueryScores)

			r.With(h.rateLimit("get_leaderboard", rl.Leaderboard)).Get("/leaderboard", h.GetLeaderboard)
			r.With(h.rateLimit("player_stats", rl.PlayerStats)).Get("/players/{playerName}/stats", h.GetPlayerStats)
		})
	})

	return r
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response. Internal detail never reaches
// the body; callers log it first.
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// handleServiceError maps domain errors to status codes, hiding internals.
func (h *Handler) handleServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrUnauthorized):
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
	case domain.IsNotFoundError(err):
		if errors.Is(err, domain.ErrPlayerNotFound) {
			h.writeError(w, http.StatusNotFound, domain.ErrPlayerNotFound)
		} else {
			h.writeError(w, http.StatusNotFound, domain.ErrGameNotFound)
		}
	case errors.Is(err, domain.ErrStorageUnavailable):
		h.logger.Error(op, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrStorageUnavailable)
	default:
		h.logger.Error(op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternal)
	}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.writeError(w, http.StatusNotFound, domain.ErrInvalidRequest)
		return
	}
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// RegisterGame creates a game and returns its API key exactly once.
func (h *Handler) RegisterGame(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	reg, err := h.service.RegisterGame(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, "failed to register game", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: reg})
}

// GetCurrentGame returns the authorized game's info, without key material.
func (h *Handler) GetCurrentGame(w http.ResponseWriter, r *http.Request) {
	game, ok := gameFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return
	}
	h.writeSuccess(w, game.Info())
}

// RotateKey re-issues the calling game's API key.
func (h *Handler) RotateKey(w http.ResponseWriter, r *http.Request) {
	game, ok := gameFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return
	}

	key, err := h.service.RotateKey(r.Context(), game)
	if err != nil {
		h.handleServiceError(w, "failed to rotate key", err)
		return
	}
	h.writeSuccess(w, map[string]string{"api_key": key})
}

// SubmitScore persists one score for the authorized game.
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	game, ok := gameFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return
	}

	var sub domain.ScoreSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	score, err := h.service.SubmitScore(r.Context(), game, sub)
	if err != nil {
		h.handleServiceError(w, "failed to submit score", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: score})
}

// SubmitScoreBatch persists multiple scores, reporting per-entry outcomes.
func (h *Handler) SubmitScoreBatch(w http.ResponseWriter, r *http.Request) {
	game, ok := gameFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return
	}

	var batch domain.BatchScoreSubmission
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if len(batch.Scores) == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	results := h.service.SubmitScoreBatch(r.Context(), game, batch)
	h.writeSuccess(w, map[string]interface{}{
		"received": len(batch.Scores),
		"results":  results,
	})
}

// QueryScores returns raw score records for the authorized game.
func (h *Handler) QueryScores(w http.ResponseWriter, r *http.Request) {
	game, ok := gameFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return
	}

	period, err := domain.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := queryInt(r, "limit", 0)

	scores, err := h.service.QueryScores(r.Context(), game, period, r.URL.Query().Get("player"), limit)
	if err != nil {
		h.handleServiceError(w, "failed to query scores", err)
		return
	}
	h.writeSuccess(w, scores)
}

// GetLeaderboard returns the ranked leaderboard for the authorized game.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	game, ok := gameFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return
	}

	period, err := domain.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := queryInt(r, "limit", 0)

	lb, err := h.service.Leaderboard(r.Context(), game, limit, period)
	if err != nil {
		h.handleServiceError(w, "failed to get leaderboard", err)
		return
	}
	h.writeSuccess(w, lb)
}

// GetPlayerStats returns aggregates for one player in the authorized game.
func (h *Handler) GetPlayerStats(w http.ResponseWriter, r *http.Request) {
	game, ok := gameFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return
	}

	playerName := chi.URLParam(r, "playerName")
	if playerName == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	stats, err := h.service.PlayerStats(r.Context(), game, playerName)
	if err != nil {
		h.handleServiceError(w, "failed to get player stats", err)
		return
	}
	h.writeSuccess(w, stats)
}

// queryInt parses an integer query parameter, falling back on absence or
// garbage.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
