package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gcoo-labs/pinch/internal/airtable"
	"github.com/gcoo-labs/pinch/internal/api"
	"github.com/gcoo-labs/pinch/internal/cache"
	"github.com/gcoo-labs/pinch/internal/events"
	"github.com/gcoo-labs/pinch/internal/maps"
	"github.com/gcoo-labs/pinch/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}

	telemetryCfg := telemetry.NewConfigFromEnv()
	telemetryCfg.ServiceVersion = version
	if err := telemetry.Init(telemetryCfg); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize telemetry")
	}
	log := telemetry.WithFields(logrus.Fields{"component": "api"})

	// Load API configuration
	cfg, err := api.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	cfg.TelemetryEnabled = cfg.TelemetryEnabled && telemetryCfg.EnableMetrics

	recordsCfg, err := airtable.NewConfigFromEnv()
	if err != nil {
		log.WithError(err).Fatal("Failed to load upstream configuration")
	}
	if recordsCfg.BaseID == "" || recordsCfg.APIKey == "" {
		log.Warn("AIRTABLE_BASE_ID or AIRTABLE_API_KEY is not set; upstream calls will fail")
	}
	records := airtable.NewFactory(recordsCfg, telemetry.UpstreamObserver{})
	defer records.Close()

	checks := map[string]api.HealthCheck{}

	// Response cache: Redis when configured, in-process otherwise
	respCache := newResponseCache(log)
	defer respCache.Close()
	checks["cache"] = respCache.Ping

	// Mutation events
	var publisher events.Publisher = events.NoopPublisher{}
	eventsCfg := events.NewConfigFromEnv()
	if eventsCfg.Enabled() {
		bus, err := events.NewNATSBus(eventsCfg)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to NATS")
		}
		defer bus.Close()
		publisher = bus
		checks["nats"] = func(context.Context) error {
			if !bus.Healthy() {
				return errors.New("not connected")
			}
			return nil
		}
		log.WithField("url", eventsCfg.URL).Info("Publishing mutation events")
	}

	// Map widget
	var naver *maps.Naver
	if cfg.NaverMapClientID != "" {
		naver = maps.NewNaver(maps.DefaultNaverConfig(cfg.NaverMapClientID))
		if err := naver.Load(context.Background()); err != nil {
			log.WithError(err).Fatal("Failed to load map widget")
		}
	} else {
		log.Warn("NAVER_MAP_CLIENT_ID is not set; /api/map is unavailable")
	}

	handler := api.NewHandler(api.Dependencies{
		Records:  records,
		Cache:    respCache,
		CacheTTL: cfg.ResponseCacheTTL,
		Events:   publisher,
		Map:      naver,
		Checks:   checks,
		Version:  version,
	})

	app := api.NewApp(cfg, handler)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down gracefully...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.WithError(err).Error("Server forced to shutdown")
		}
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Failed to shut down telemetry")
		}
	}()

	log.WithFields(logrus.Fields{
		"addr":     cfg.Address(),
		"upstream": recordsCfg.ResourceRoot(),
		"forward":  recordsCfg.ForwardAuth,
	}).Info("pinch API listening")

	if err := app.Listen(cfg.Address()); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}

func newResponseCache(log *logrus.Entry) cache.Cache {
	if os.Getenv("REDIS_HOST") == "" {
		log.Info("REDIS_HOST is not set; using in-process response cache")
		return cache.NewMemoryCache(1024, 30*time.Second)
	}

	cacheCfg, err := cache.NewConfigFromEnv()
	if err != nil {
		log.WithError(err).Fatal("Failed to load cache configuration")
	}
	redisCache, err := cache.NewRedisCache(cacheCfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable; using in-process response cache")
		return cache.NewMemoryCache(1024, cacheCfg.DefaultTTL)
	}
	log.WithField("addr", cacheCfg.Address()).Info("Connected to Redis")

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if stats := redisCache.Stats(); stats != nil {
				telemetry.UpdateRedisConnections(int(stats.TotalConns))
			}
		}
	}()

	return redisCache
}
