package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pulseout/pulse-service/internal/ratelimit"
	"github.com/pulseout/pulse-service/internal/utils/response"
)

type RateLimitConfig struct {
	redisClient *redis.Client
	limiters    map[string]*ratelimit.TokenBucket
	limits      map[string]int64
}

func NewRateLimitConfig(redisClient *redis.Client, pingBudget int64) *RateLimitConfig {
	config := &RateLimitConfig{
		redisClient: redisClient,
		limiters:    make(map[string]*ratelimit.TokenBucket),
		limits:      make(map[string]int64),
	}

	// Configure rate limits for different actions
	// POST /pings: the daily ping budget, refilled over 24h
	config.limiters["pings"] = ratelimit.NewTokenBucket(redisClient, pingBudget, pingBudget, 24*time.Hour)
	config.limits["pings"] = pingBudget

	// POST /posts: 20/min per user
	config.limiters["posts"] = ratelimit.NewTokenBucket(redisClient, 20, 20, time.Minute)
	config.limits["posts"] = 20

	return config
}

func (rlc *RateLimitConfig) RateLimitMiddleware(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Get user ID from context (assumes auth middleware ran first)
			userID, ok := GetUserIDFromContext(r.Context())
			if !ok {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(
					errors.New("user not authenticated")))
				return
			}

			// Get the appropriate rate limiter
			limiter, exists := rlc.limiters[action]
			if !exists {
				// If no rate limiter configured for this action, allow the request
				next.ServeHTTP(w, r)
				return
			}

			// Check if user is allowed to perform this action
			allowed, err := limiter.Allow(r.Context(), userID, action)
			if err != nil {
				response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(
					fmt.Errorf("rate limit check failed: %w", err)))
				return
			}

			// Get remaining tokens for rate limit headers
			remaining, _ := limiter.GetRemaining(r.Context(), userID, action)

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(rlc.limits[action], 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				response.WriteJSON(w, http.StatusTooManyRequests, response.GeneralError(
					errors.New("rate limit exceeded")))
				return
			}

			// Allow the request to proceed
			next.ServeHTTP(w, r)
		})
	}
}

// Remaining returns the remaining budget for a user action, for surfacing
// counters like the daily ping balance in API responses.
func (rlc *RateLimitConfig) Remaining(r *http.Request, userID, action string) int64 {
	limiter, exists := rlc.limiters[action]
	if !exists {
		return 0
	}
	remaining, err := limiter.GetRemaining(r.Context(), userID, action)
	if err != nil {
		return 0
	}
	return remaining
}

// RateLimitedHandler wraps a handler with rate limiting for a specific action
func (rlc *RateLimitConfig) RateLimitedHandler(action string, handler http.HandlerFunc) http.Handler {
	return rlc.RateLimitMiddleware(action)(http.HandlerFunc(handler))
}
