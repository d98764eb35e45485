package api

import (
	"time"

	"github.com/gcoo-labs/pinch/internal/telemetry"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, handler *Handler, cfg *Config) {
	// Liveness, health and metrics endpoints (not rate limited)
	app.Get("/load/ping", handler.Ping)
	app.Get("/health", handler.Health)
	if cfg.TelemetryEnabled {
		metrics := fasthttpadaptor.NewFastHTTPHandler(telemetry.PrometheusHandler())
		app.Get(cfg.MetricsPath, func(c *fiber.Ctx) error {
			metrics(c.Context())
			return nil
		})
	}

	api := app.Group("/api")

	if cfg.RateLimitRPS > 0 {
		api.Use(NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Handler())
	}

	// Record endpoints
	records := api.Group("/airtable")
	records.Get("/", handler.GetRecords)
	records.Post("/", handler.CreateRecord)
	records.Patch("/", handler.UpdateRecord)
	records.Delete("/", handler.DeleteRecord)

	// Map widget configuration
	api.Get("/map", handler.GetMap)

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "pinch-api",
			"version": handler.version,
			"status":  "running",
			"endpoints": fiber.Map{
				"records": fiber.Map{
					"list":   "GET /api/airtable?maxRecords=n",
					"get":    "GET /api/airtable?recordId=id",
					"create": "POST /api/airtable",
					"update": "PATCH /api/airtable",
					"delete": "DELETE /api/airtable?recordId=id",
				},
				"map":     "GET /api/map",
				"ping":    "GET /load/ping",
				"health":  "GET /health",
				"metrics": "GET " + cfg.MetricsPath,
			},
		})
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return fail(c, fiber.StatusNotFound, "Endpoint not found")
	})
}

// NewApp builds the configured Fiber application
func NewApp(cfg *Config, handler *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "pinch-api",
		ErrorHandler:          ErrorHandler,
		ReadTimeout:           cfg.RequestTimeout,
		WriteTimeout:          cfg.RequestTimeout,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
	})
	SetupMiddleware(app, cfg)
	SetupRoutes(app, handler, cfg)
	return app
}
