package handler

import (
	"context"
	"net/http"

	"github.com/highscore-api/internal/config"
	"github.com/highscore-api/internal/domain"
)

type contextKey string

const gameContextKey contextKey = "game"

// gameFrom returns the authorized game stored on the request context.
func gameFrom(ctx context.Context) (*domain.Game, bool) {
	game, ok := ctx.Value(gameContextKey).(*domain.Game)
	return game, ok
}

// requireAPIKey authorizes the X-API-Key header and stores the game on the
// context. Every failure mode produces the same 401 body.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		game, err := h.service.Authorize(r.Context(), r.Header.Get("X-API-Key"))
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), gameContextKey, game)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit enforces a named fixed-window limit, keyed by game when the
// request is authorized and by client address otherwise.
func (h *Handler) rateLimit(name string, rate config.Rate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			subject := r.RemoteAddr
			if game, ok := gameFrom(r.Context()); ok {
				subject = "game:" + itoa(game.ID)
			}
			allowed, err := h.limiter.Allow(r.Context(), name, subject, rate)
			if err != nil {
				// Fail open: a limiter outage must not take down the API.
				h.logger.Warn("rate limiter unavailable", "error", err)
				allowed = true
			}
			if !allowed {
				h.writeError(w, http.StatusTooManyRequests, domain.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bodyLimit caps request body size before decoding.
func bodyLimit(max int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-API-Key, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// securityHeaders adds standard hardening headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("X-Content-Type-Options", "nosniff")
		header.Set("X-Frame-Options", "DENY")
		header.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		header.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}
