package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"riderx/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Redis        *redis.Client
	Requests     int           // Number of requests allowed
	Window       time.Duration // Time window
	KeyPrefix    string        // Redis key prefix
	SkipPaths    []string      // Paths to skip rate limiting
	ErrorMessage string
}

// RateLimitStrategy defines different rate limiting strategies
type RateLimitStrategy string

const (
	StrategyIP        RateLimitStrategy = "ip"
	StrategyRider     RateLimitStrategy = "rider"
	StrategyRiderOrIP RateLimitStrategy = "rider_or_ip"
)

// RateLimiter is a sliding window log limiter backed by Redis sorted sets.
type RateLimiter struct {
	config   RateLimitConfig
	strategy RateLimitStrategy
}

func NewRateLimiter(config RateLimitConfig, strategy RateLimitStrategy) *RateLimiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "rate_limit"
	}
	if config.ErrorMessage == "" {
		config.ErrorMessage = "Rate limit exceeded"
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	return &RateLimiter{
		config:   config,
		strategy: strategy,
	}
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.shouldSkipPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		key := rl.getKey(c)
		if key == "" {
			c.Next()
			return
		}

		allowed, resetTime, remaining, err := rl.Allow(c.Request.Context(), key)
		if err != nil {
			logrus.Errorf("Rate limit check failed: %v", err)
			// Allow request to proceed on error
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			rl.handleRateLimitExceeded(c, resetTime)
			return
		}

		c.Next()
	}
}

// Allow records one request for key and reports whether it fits the window.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (allowed bool, resetTime time.Time, remaining int, err error) {
	now := time.Now()
	window := rl.config.Window
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())

	pipe := rl.config.Redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", now.Add(-window).UnixNano()))
	card := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: member,
	})
	pipe.Expire(ctx, key, window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, time.Time{}, 0, err
	}

	// count before this request
	currentCount := card.Val()
	resetTime = now.Add(window)
	allowed = currentCount < int64(rl.config.Requests)

	remaining = rl.config.Requests - int(currentCount) - 1
	if remaining < 0 {
		remaining = 0
	}

	if !allowed {
		rl.config.Redis.ZRem(ctx, key, member)
	}

	return allowed, resetTime, remaining, nil
}

func (rl *RateLimiter) getKey(c *gin.Context) string {
	prefix := rl.config.KeyPrefix

	switch rl.strategy {
	case StrategyRider:
		riderID := utils.GetRiderID(c)
		if riderID == "" {
			return ""
		}
		return fmt.Sprintf("%s:rider:%s", prefix, riderID)

	case StrategyRiderOrIP:
		if riderID := utils.GetRiderID(c); riderID != "" {
			return fmt.Sprintf("%s:rider:%s", prefix, riderID)
		}
		return fmt.Sprintf("%s:ip:%s", prefix, c.ClientIP())

	default:
		return fmt.Sprintf("%s:ip:%s", prefix, c.ClientIP())
	}
}

func (rl *RateLimiter) handleRateLimitExceeded(c *gin.Context, resetTime time.Time) {
	retryAfter := time.Until(resetTime).Seconds()
	if retryAfter < 0 {
		retryAfter = 0
	}

	c.Header("Retry-After", strconv.Itoa(int(retryAfter)))

	logrus.WithFields(logrus.Fields{
		"client_ip":   c.ClientIP(),
		"rider_id":    utils.GetRiderID(c),
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"retry_after": retryAfter,
	}).Warn("Rate limit exceeded")

	utils.ErrorResponse(c, http.StatusTooManyRequests, rl.config.ErrorMessage, gin.H{
		"retryAfter": int(retryAfter),
		"resetTime":  resetTime.Unix(),
	})
	c.Abort()
}

func (rl *RateLimiter) shouldSkipPath(path string) bool {
	for _, skipPath := range rl.config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

// APIRateLimit limits each rider (or anonymous IP) to requests per window.
func APIRateLimit(redis *redis.Client, requests int, window time.Duration) gin.HandlerFunc {
	limiter := NewRateLimiter(RateLimitConfig{
		Redis:        redis,
		Requests:     requests,
		Window:       window,
		KeyPrefix:    "api_rate_limit",
		ErrorMessage: "API rate limit exceeded. Please try again later.",
		SkipPaths: []string{
			"/health",
		},
	}, StrategyRiderOrIP)
	return limiter.Middleware()
}

// CrashReportRateLimit keeps a faulty device from flooding contacts.
func CrashReportRateLimit(redis *redis.Client) gin.HandlerFunc {
	limiter := NewRateLimiter(RateLimitConfig{
		Redis:        redis,
		Requests:     5,
		Window:       time.Minute,
		KeyPrefix:    "crash_rate_limit",
		ErrorMessage: "Crash report rate limit exceeded.",
	}, StrategyRider)
	return limiter.Middleware()
}

// WebSocketRateLimit limits connection attempts per IP
func WebSocketRateLimit(redis *redis.Client) gin.HandlerFunc {
	limiter := NewRateLimiter(RateLimitConfig{
		Redis:        redis,
		Requests:     10,
		Window:       time.Minute,
		KeyPrefix:    "ws_rate_limit",
		ErrorMessage: "WebSocket connection rate limit exceeded.",
	}, StrategyIP)
	return limiter.Middleware()
}
