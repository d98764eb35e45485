package api

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gcoo-labs/pinch/internal/airtable"
	"github.com/gcoo-labs/pinch/internal/cache"
	"github.com/gcoo-labs/pinch/internal/events"
	"github.com/gcoo-labs/pinch/internal/maps"
	"github.com/gcoo-labs/pinch/internal/telemetry"
	"github.com/gcoo-labs/pinch/sdk"
	"github.com/gofiber/fiber/v2"
)

const (
	recordsResource = "airtable"
	cachePrefix     = "airtable:"
)

// recordsQueryKey is the query-cache key front ends hold the record list
// under; mutation events ask them to invalidate it.
var recordsQueryKey = []string{"airtable", "records"}

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators of Handler. Only Records is required.
type Dependencies struct {
	Records  *airtable.Factory
	Cache    cache.Cache
	CacheTTL time.Duration
	Events   events.Publisher
	Map      *maps.Naver
	Checks   map[string]HealthCheck
	Version  string
}

// Handler holds all dependencies for API handlers
type Handler struct {
	records  *airtable.Factory
	cache    cache.Cache
	cacheTTL time.Duration
	events   events.Publisher
	maps     *maps.Naver
	checks   map[string]HealthCheck
	version  string
}

// NewHandler creates a new handler instance
func NewHandler(deps Dependencies) *Handler {
	h := &Handler{
		records:  deps.Records,
		cache:    deps.Cache,
		cacheTTL: deps.CacheTTL,
		events:   deps.Events,
		maps:     deps.Map,
		checks:   deps.Checks,
		version:  deps.Version,
	}
	if h.events == nil {
		h.events = events.NoopPublisher{}
	}
	if h.version == "" {
		h.version = "dev"
	}
	return h
}

// client builds the upstream client for this request. The caller's token is
// captured from the authToken cookie or the Authorization header.
func (h *Handler) client(c *fiber.Ctx) (*airtable.Client, error) {
	tokens := sdk.NewRequestTokenSource(c.Cookies(sdk.TokenKey), c.Get(fiber.HeaderAuthorization))
	return h.records.ForRequest(tokens)
}

// cacheable reports whether responses are identical for every caller
func (h *Handler) cacheable() bool {
	return h.cache != nil && !h.records.Config().ForwardAuth
}

// GetRecords handles GET /api/airtable
func (h *Handler) GetRecords(c *fiber.Ctx) error {
	ctx := c.UserContext()
	recordID := c.Query("recordId")

	maxRecords, err := strconv.Atoi(c.Query("maxRecords", DefaultMaxRecords))
	if err != nil || maxRecords <= 0 {
		return fail(c, fiber.StatusBadRequest, MsgInvalidMaxRecords)
	}

	key := cachePrefix + "list:" + strconv.Itoa(maxRecords)
	if recordID != "" {
		key = cachePrefix + "record:" + recordID
	}
	if data, hit := h.cached(ctx, key); hit {
		c.Set("X-Cache", "HIT")
		return ok(c, data)
	}

	client, err := h.client(c)
	if err != nil {
		return h.upstreamFailure(c, "build client", err)
	}
	defer client.Close()

	var data any
	if recordID != "" {
		data, err = client.Get(ctx, recordID)
	} else {
		data, err = client.List(ctx, maxRecords)
	}
	if err != nil {
		return h.upstreamFailure(c, "fetch records", err)
	}

	RecordOperation("fetch records", "success")
	h.store(ctx, key, data)
	return ok(c, data)
}

// CreateRecord handles POST /api/airtable
func (h *Handler) CreateRecord(c *fiber.Ctx) error {
	var req CreateRecordRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fail(c, fiber.StatusBadRequest, MsgInvalidBody)
	}
	if req.Fields == nil {
		return fail(c, fiber.StatusBadRequest, MsgFieldsRequired)
	}

	client, err := h.client(c)
	if err != nil {
		return h.upstreamFailure(c, "build client", err)
	}
	defer client.Close()

	record, err := client.Create(c.UserContext(), req.Fields)
	if err != nil {
		return h.upstreamFailure(c, "create record", err)
	}

	RecordOperation("create record", "success")
	h.afterMutation(c.UserContext(), events.EventCreated, record.ID)
	return ok(c, record)
}

// UpdateRecord handles PATCH /api/airtable
func (h *Handler) UpdateRecord(c *fiber.Ctx) error {
	var req UpdateRecordRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fail(c, fiber.StatusBadRequest, MsgInvalidBody)
	}
	if req.RecordID == "" || req.Fields == nil {
		return fail(c, fiber.StatusBadRequest, MsgRecordAndFieldsMissing)
	}

	client, err := h.client(c)
	if err != nil {
		return h.upstreamFailure(c, "build client", err)
	}
	defer client.Close()

	record, err := client.Update(c.UserContext(), req.RecordID, req.Fields)
	if err != nil {
		return h.upstreamFailure(c, "update record", err)
	}

	RecordOperation("update record", "success")
	h.afterMutation(c.UserContext(), events.EventUpdated, req.RecordID)
	return ok(c, record)
}

// DeleteRecord handles DELETE /api/airtable
func (h *Handler) DeleteRecord(c *fiber.Ctx) error {
	recordID := c.Query("recordId")
	if recordID == "" {
		return fail(c, fiber.StatusBadRequest, MsgRecordIDRequired)
	}

	client, err := h.client(c)
	if err != nil {
		return h.upstreamFailure(c, "build client", err)
	}
	defer client.Close()

	resp, err := client.Delete(c.UserContext(), recordID)
	if err != nil {
		return h.upstreamFailure(c, "delete record", err)
	}

	RecordOperation("delete record", "success")
	h.afterMutation(c.UserContext(), events.EventDeleted, recordID)
	return ok(c, resp)
}

// GetMap handles GET /api/map
func (h *Handler) GetMap(c *fiber.Ctx) error {
	if h.maps == nil {
		return fail(c, fiber.StatusServiceUnavailable, maps.ErrNotLoaded.Error())
	}
	widget, err := h.maps.Widget()
	if err != nil {
		return fail(c, fiber.StatusServiceUnavailable, err.Error())
	}
	return ok(c, widget)
}

// Ping handles GET /load/ping
func (h *Handler) Ping(c *fiber.Ctx) error {
	return c.SendString("pong")
}

// Health handles GET /health
func (h *Handler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	status := "healthy"
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			status = "unhealthy"
			UpdateHealthMetric(name, false)
			continue
		}
		checks[name] = "healthy"
		UpdateHealthMetric(name, true)
	}

	statusCode := fiber.StatusOK
	if status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(&HealthResponse{
		Status:  status,
		Service: "pinch-api",
		Version: h.version,
		Uptime:  time.Since(startTime).String(),
		Checks:  checks,
	})
}

// cached returns the cached upstream payload for key
func (h *Handler) cached(ctx context.Context, key string) (json.RawMessage, bool) {
	if !h.cacheable() {
		return nil, false
	}
	done := telemetry.TimeOperation(ctx, "cache.get")
	v, err := h.cache.Get(ctx, key)
	switch {
	case err == nil:
		done("hit")
		telemetry.RecordCacheHit()
		return json.RawMessage(v), true
	case errors.Is(err, cache.ErrKeyNotFound):
		done("miss")
	default:
		done("error")
		telemetry.WithContext(ctx).WithError(err).WithField("key", key).Warn("Response cache read failed")
	}
	telemetry.RecordCacheMiss()
	return nil, false
}

func (h *Handler) store(ctx context.Context, key string, data any) {
	if !h.cacheable() {
		return
	}
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, key, b, h.cacheTTL); err != nil {
		telemetry.WithContext(ctx).WithError(err).WithField("key", key).Warn("Response cache write failed")
	}
}

// afterMutation drops cached reads and announces the write. Neither step
// fails the request.
func (h *Handler) afterMutation(ctx context.Context, eventType events.EventType, recordID string) {
	if h.cache != nil {
		if _, err := h.cache.DeletePrefix(ctx, cachePrefix); err != nil {
			telemetry.WithContext(ctx).WithError(err).Warn("Response cache invalidation failed")
		}
	}

	event := events.NewMutationEvent(eventType, recordsResource, recordID).WithKeys(recordsQueryKey)
	if err := h.events.Publish(ctx, event); err != nil {
		telemetry.WithContext(ctx).WithError(err).WithField("event_id", event.ID).Warn("Failed to publish mutation event")
	}
}

// upstreamFailure logs err and answers 500 with its message
func (h *Handler) upstreamFailure(c *fiber.Ctx, op string, err error) error {
	telemetry.WithContext(c.UserContext()).WithError(err).WithFields(map[string]interface{}{
		"operation": op,
		"status":    sdk.StatusCode(err),
	}).Error("Upstream request failed")
	RecordOperation(op, "error")
	return fail(c, fiber.StatusInternalServerError, errorMessage(err))
}

// errorMessage strips the request URL the access layer adds to its errors
func errorMessage(err error) string {
	var sdkErr *sdk.Error
	if errors.As(err, &sdkErr) && sdkErr.Message != "" {
		return sdkErr.Message
	}
	return err.Error()
}
