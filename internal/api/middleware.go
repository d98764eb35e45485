package api

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gcoo-labs/pinch/internal/telemetry"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// SetupMiddleware configures all middleware for the application
func SetupMiddleware(app *fiber.App, cfg *Config) {
	// Request ID middleware
	app.Use(requestid.New())

	// Recover middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !cfg.IsProduction(),
	}))

	// Structured access log
	app.Use(telemetry.FiberLoggingMiddleware())

	// Request metrics and tracing span
	if cfg.TelemetryEnabled {
		app.Use(telemetry.FiberMetricsMiddleware())
	}

	// CORS middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: cfg.CORSOrigins != "*",
	}))

	// Timing middleware
	app.Use(timingMiddleware())
}

// ErrorHandler renders errors that escape handlers in the response envelope
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	if code >= fiber.StatusInternalServerError {
		telemetry.WithContext(c.UserContext()).WithError(err).WithFields(map[string]interface{}{
			"path":   c.Path(),
			"method": c.Method(),
		}).Error("Unhandled error")
	}

	return fail(c, code, message)
}

// timingMiddleware adds request timing headers
func timingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		c.Set("X-Response-Time", fmt.Sprintf("%d ms", time.Since(start).Milliseconds()))

		return err
	}
}

// RateLimiter is a per-IP token bucket limiter. Idle buckets expire so the
// set of tracked clients stays bounded.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewRateLimiter allows rps requests per second per client with the given
// burst
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](10000, nil, 10*time.Minute),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters.Add(key, l)
	return l
}

// Handler returns the rate limiting middleware handler
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		l := rl.limiter(c.IP())

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
		if !l.Allow() {
			rateLimited.Inc()
			c.Set(fiber.HeaderRetryAfter, "1")
			return fail(c, fiber.StatusTooManyRequests, "Rate limit exceeded")
		}
		c.Set("X-RateLimit-Remaining", strconv.Itoa(int(l.Tokens())))

		return c.Next()
	}
}
