package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hugopriorizen/Base/internal/core/port"
	"github.com/hugopriorizen/Base/internal/infra/logger"
)

const (
	rateLimitProblemType  = "https://identity.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// IdentifierFunc extracts the key a rule counts attempts under. Returning false skips the rule.
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule is a sliding-window budget of Limit attempts per Window.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// ProblemDetails is the RFC 9457 body returned with 429.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// RateLimiter throttles login, registration and password reset attempts. Store failures fail
// open so a Redis outage never locks users out.
type RateLimiter struct {
	store    port.RateLimitStore
	logger   *zap.Logger
	now      func() time.Time
	rejected *prometheus.CounterVec
}

// window is the state of one rule for one identifier after the current request.
type window struct {
	rule      RateLimitRule
	allowed   bool
	remaining int
	reset     time.Time
	now       time.Time
}

func (w window) retryAfter() int {
	seconds := int(math.Ceil(w.reset.Sub(w.now).Seconds()))
	if seconds < 0 {
		return 0
	}
	return seconds
}

// tighter reports whether w should drive the response headers instead of other.
func (w window) tighter(other window) bool {
	if w.allowed != other.allowed {
		return !w.allowed
	}
	if w.remaining != other.remaining {
		return w.remaining < other.remaining
	}
	return w.reset.Before(other.reset)
}

// NewRateLimiter builds a limiter over store.
func NewRateLimiter(store port.RateLimitStore, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: log, now: time.Now}
}

// WithClock overrides the time source (primarily for tests).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// WithMetrics counts rejections per rule.
func (rl *RateLimiter) WithMetrics(m *HTTPMetrics) *RateLimiter {
	if m != nil {
		rl.rejected = m.RateLimited
	}
	return rl
}

// ClientIPIdentifier counts attempts per client address.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// AccountIdentifier counts attempts per authenticated account. Anonymous requests are not
// counted.
func AccountIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		return GetAuthenticatedUserID(c)
	}
}

// RateLimit enforces every usable rule. The first exhausted rule rejects the request; otherwise
// the tightest window is reported in the X-RateLimit headers.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		now := rl.now()
		var reported *window

		for _, rule := range active {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			w, err := rl.consume(ctx, rule, rule.Name+":"+identifier, now)
			if err != nil {
				logger.WithContext(ctx, rl.logger).Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.Error(err),
				)
				continue
			}

			if !w.allowed {
				rl.reject(c, w)
				return
			}
			if reported == nil || w.tighter(*reported) {
				snapshot := w
				reported = &snapshot
			}
		}

		if reported != nil {
			setRateLimitHeaders(c, *reported)
		}
		c.Next()
	}
}

// consume checks the window and records the attempt when it still fits.
func (rl *RateLimiter) consume(ctx context.Context, rule RateLimitRule, key string, now time.Time) (window, error) {
	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return window{}, err
	}

	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return window{}, err
	}

	oldest, hasAttempts, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return window{}, err
	}

	w := window{rule: rule, now: now, reset: now.Add(rule.Window)}
	if hasAttempts {
		w.reset = oldest.Add(rule.Window)
	}

	if count >= rule.Limit {
		return w, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return window{}, err
	}

	w.allowed = true
	w.remaining = rule.Limit - count - 1
	return w, nil
}

func setRateLimitHeaders(c *gin.Context, w window) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(w.rule.Limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(w.remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(w.reset.Unix(), 10))
	if !w.allowed {
		headers.Set("Retry-After", strconv.Itoa(w.retryAfter()))
	}
}

func (rl *RateLimiter) reject(c *gin.Context, w window) {
	if rl.rejected != nil {
		rl.rejected.WithLabelValues(w.rule.Name).Inc()
	}

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	logger.WithContext(c.Request.Context(), rl.logger).Info("rate limit exceeded",
		zap.String("rule", w.rule.Name),
		zap.String("route", instance),
		zap.String("client_ip", logger.MaskIP(c.ClientIP())),
	)

	setRateLimitHeaders(c, w)
	retry := w.retryAfter()
	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", retry),
		Instance:   instance,
		RetryAfter: retry,
		TraceID:    GetTraceID(c),
	})
}
