package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

var (
	metricsOnce sync.Once

	// Response cache metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total number of response cache hits",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total number of response cache misses",
	})
	cacheOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cache_operation_duration_seconds",
		Help:    "Duration of cache operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	// API metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "active_connections",
		Help: "Number of in-flight HTTP requests",
	})

	// Upstream access client metrics
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_requests_total",
		Help: "Total number of calls made through the access client",
	}, []string{"method", "outcome"})
	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upstream_request_duration_seconds",
		Help:    "Duration of access client calls in seconds, retries included",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
	upstreamRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_retries_total",
		Help: "Total number of retried access client attempts",
	}, []string{"method"})

	// Query cache metrics
	queryFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "query_fetches_total",
		Help: "Total number of query fetches by outcome",
	}, []string{"status"})
	queryInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "query_invalidations_total",
		Help: "Total number of query entries marked stale",
	})

	// Mutation event metrics
	mutationEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mutation_events_total",
		Help: "Total number of mutation events by direction and status",
	}, []string{"direction", "status"})

	// State store metrics
	storePersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_persist_failures_total",
		Help: "Total number of failed state store snapshot writes",
	}, []string{"store"})

	// System metrics
	serviceUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "service_up",
		Help: "Whether the service is up (1) or down (0)",
	})
	redisConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_connections_active",
		Help: "Number of active Redis connections",
	})
)

// InitMetrics starts the OTLP metric pipeline and marks the service up.
// Prometheus collectors are registered at package init.
func InitMetrics(cfg *Config) error {
	var err error
	metricsOnce.Do(func() {
		if cfg.EnableMetrics && !cfg.ExportToFile {
			err = initOTELMetrics(cfg)
		}
		serviceUp.Set(1)
	})
	return err
}

func initOTELMetrics(cfg *Config) error {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				exporter,
				sdkmetric.WithInterval(time.Duration(cfg.MetricsInterval)*time.Second),
			),
		),
	)

	otel.SetMeterProvider(provider)
	return nil
}

// CloseMetrics flushes and stops the OTLP meter provider, if one is set
func CloseMetrics(ctx context.Context) error {
	serviceUp.Set(0)
	if mp, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider); ok {
		return mp.Shutdown(ctx)
	}
	return nil
}

// RecordCacheHit records a response cache hit
func RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss records a response cache miss
func RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordCacheOperation records a cache operation duration
func RecordCacheOperation(operation string, status string, duration time.Duration) {
	cacheOperationDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordUpstreamRequest records one access client call
func RecordUpstreamRequest(method, outcome string, duration time.Duration) {
	upstreamRequestsTotal.WithLabelValues(method, outcome).Inc()
	upstreamRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordUpstreamRetry records a retried access client attempt
func RecordUpstreamRetry(method string) {
	upstreamRetriesTotal.WithLabelValues(method).Inc()
}

// RecordQueryFetch records a query fetch outcome ("success", "error" or
// "cached")
func RecordQueryFetch(status string) {
	queryFetchesTotal.WithLabelValues(status).Inc()
}

// RecordQueryInvalidations records n query entries marked stale
func RecordQueryInvalidations(n int) {
	queryInvalidationsTotal.Add(float64(n))
}

// RecordMutationEvent records a published or received mutation event
func RecordMutationEvent(direction, status string) {
	mutationEventsTotal.WithLabelValues(direction, status).Inc()
}

// RecordStorePersistFailure records a failed snapshot write for store
func RecordStorePersistFailure(store string) {
	storePersistFailures.WithLabelValues(store).Inc()
}

// IncActiveConnections increments the in-flight request gauge
func IncActiveConnections() {
	activeConnections.Inc()
}

// DecActiveConnections decrements the in-flight request gauge
func DecActiveConnections() {
	activeConnections.Dec()
}

// UpdateRedisConnections updates the Redis connections metric
func UpdateRedisConnections(count int) {
	redisConnectionsActive.Set(float64(count))
}
