package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gcoo-labs/pinch/internal/airtable"
	"github.com/gcoo-labs/pinch/internal/cache"
	"github.com/gcoo-labs/pinch/internal/events"
	"github.com/gcoo-labs/pinch/internal/maps"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstreamCall struct {
	method string
	uri    string
	auth   string
	body   string
}

type fakeUpstream struct {
	mu     sync.Mutex
	calls  []upstreamCall
	status int
	reply  string
}

func (u *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	u.mu.Lock()
	u.calls = append(u.calls, upstreamCall{r.Method, r.URL.RequestURI(), r.Header.Get("Authorization"), string(body)})
	status, reply := u.status, u.reply
	u.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, reply)
}

func (u *fakeUpstream) Calls() []upstreamCall {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]upstreamCall(nil), u.calls...)
}

func (u *fakeUpstream) Reply(status int, reply string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status, u.reply = status, reply
}

type testServer struct {
	app      *fiber.App
	upstream *fakeUpstream
	cache    cache.Cache
	bus      *events.MemoryBus
	config   *Config
	records  *airtable.Config
}

type serverOption func(*Config, *airtable.Config, *Dependencies)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	up := &fakeUpstream{status: http.StatusOK, reply: `{"records":[{"id":"rec1","fields":{"Name":"a"}}]}`}
	server := httptest.NewServer(up)
	t.Cleanup(server.Close)

	cfg := &Config{
		RequestTimeout:   5 * time.Second,
		ResponseCacheTTL: time.Minute,
		CORSOrigins:      "*",
		Environment:      "test",
		MetricsPath:      "/metrics",
	}
	recordsCfg := &airtable.Config{
		BaseURL: server.URL + "/v0",
		BaseID:  "appTEST",
		Table:   "Table1",
		APIKey:  "key123",
		Timeout: 5 * time.Second,
	}

	bus := events.NewMemoryBus()
	t.Cleanup(func() { _ = bus.Close() })
	memCache := cache.NewMemoryCache(100, time.Minute)

	deps := Dependencies{
		Cache:    memCache,
		CacheTTL: cfg.ResponseCacheTTL,
		Events:   bus,
	}
	for _, opt := range opts {
		opt(cfg, recordsCfg, &deps)
	}

	factory := airtable.NewFactory(recordsCfg, nil)
	t.Cleanup(factory.Close)
	deps.Records = factory

	return &testServer{
		app:      NewApp(cfg, NewHandler(deps)),
		upstream: up,
		cache:    deps.Cache,
		bus:      bus,
		config:   cfg,
		records:  recordsCfg,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (s *testServer) do(t *testing.T, method, target, body string, header ...string) (*http.Response, envelope) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func TestGetRecords_ListDefaultsToTen(t *testing.T) {
	s := newTestServer(t)

	resp, env := s.do(t, http.MethodGet, "/api/airtable", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"records":[{"id":"rec1","fields":{"Name":"a"}}]}`, string(env.Data))

	calls := s.upstream.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].method)
	assert.Equal(t, "/v0/appTEST/Table1?maxRecords=10", calls[0].uri)
	assert.Equal(t, "Bearer key123", calls[0].auth)
}

func TestGetRecords_ByID(t *testing.T) {
	s := newTestServer(t)
	s.upstream.Reply(http.StatusOK, `{"id":"rec9","fields":{"Name":"z"}}`)

	resp, env := s.do(t, http.MethodGet, "/api/airtable?recordId=rec9&maxRecords=3", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)

	calls := s.upstream.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/v0/appTEST/Table1/rec9", calls[0].uri)
}

func TestGetRecords_InvalidMaxRecords(t *testing.T) {
	s := newTestServer(t)

	for _, q := range []string{"0", "-1", "ten"} {
		resp, env := s.do(t, http.MethodGet, "/api/airtable?maxRecords="+q, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		assert.False(t, env.Success)
		assert.Equal(t, MsgInvalidMaxRecords, env.Error)
	}
	assert.Empty(t, s.upstream.Calls())
}

func TestGetRecords_ResponseCache(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodGet, "/api/airtable?maxRecords=5", "")
	assert.Empty(t, resp.Header.Get("X-Cache"))

	resp, env := s.do(t, http.MethodGet, "/api/airtable?maxRecords=5", "")
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"records":[{"id":"rec1","fields":{"Name":"a"}}]}`, string(env.Data))
	assert.Len(t, s.upstream.Calls(), 1)

	// a successful mutation drops cached reads
	s.upstream.Reply(http.StatusOK, `{"id":"rec2","fields":{"Name":"b"}}`)
	resp, _ = s.do(t, http.MethodPost, "/api/airtable", `{"fields":{"Name":"b"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/api/airtable?maxRecords=5", "")
	assert.Empty(t, resp.Header.Get("X-Cache"))
	assert.Len(t, s.upstream.Calls(), 3)
}

func TestCreateRecord(t *testing.T) {
	s := newTestServer(t)
	s.upstream.Reply(http.StatusOK, `{"id":"rec2","fields":{"Name":"b"}}`)

	var (
		mu  sync.Mutex
		got []*events.MutationEvent
	)
	_, err := s.bus.Subscribe(func(e *events.MutationEvent) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	require.NoError(t, err)

	resp, env := s.do(t, http.MethodPost, "/api/airtable", `{"fields":{"Name":"b"}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"id":"rec2","fields":{"Name":"b"}}`, string(env.Data))

	calls := s.upstream.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].method)
	assert.Equal(t, "/v0/appTEST/Table1", calls[0].uri)
	assert.JSONEq(t, `{"fields":{"Name":"b"}}`, calls[0].body)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, events.EventCreated, got[0].Type)
	assert.Equal(t, "rec2", got[0].RecordID)
	assert.Equal(t, [][]string{{"airtable", "records"}}, got[0].Keys)
}

func TestCreateRecord_Validation(t *testing.T) {
	s := newTestServer(t)

	resp, env := s.do(t, http.MethodPost, "/api/airtable", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, MsgFieldsRequired, env.Error)

	resp, env = s.do(t, http.MethodPost, "/api/airtable", `{"fields":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, MsgInvalidBody, env.Error)

	// an empty field set is still a field set
	resp, _ = s.do(t, http.MethodPost, "/api/airtable", `{"fields":{}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, s.upstream.Calls(), 1)
}

func TestUpdateRecord(t *testing.T) {
	s := newTestServer(t)
	s.upstream.Reply(http.StatusOK, `{"id":"rec1","fields":{"Name":"c"}}`)

	resp, env := s.do(t, http.MethodPatch, "/api/airtable", `{"recordId":"rec1","fields":{"Name":"c"}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)

	calls := s.upstream.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPatch, calls[0].method)
	assert.Equal(t, "/v0/appTEST/Table1/rec1", calls[0].uri)
	assert.JSONEq(t, `{"fields":{"Name":"c"}}`, calls[0].body)

	for _, body := range []string{`{"fields":{"Name":"c"}}`, `{"recordId":"rec1"}`} {
		resp, env = s.do(t, http.MethodPatch, "/api/airtable", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, MsgRecordAndFieldsMissing, env.Error)
	}
}

func TestDeleteRecord(t *testing.T) {
	s := newTestServer(t)
	s.upstream.Reply(http.StatusOK, `{"deleted":true,"id":"rec1"}`)

	resp, env := s.do(t, http.MethodDelete, "/api/airtable", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, MsgRecordIDRequired, env.Error)

	resp, env = s.do(t, http.MethodDelete, "/api/airtable?recordId=rec1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"deleted":true,"id":"rec1"}`, string(env.Data))

	calls := s.upstream.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodDelete, calls[0].method)
	assert.Equal(t, "/v0/appTEST/Table1/rec1", calls[0].uri)
}

func TestUpstreamFailure(t *testing.T) {
	s := newTestServer(t)
	s.upstream.Reply(http.StatusUnprocessableEntity, `{"message":"Unknown field name: Nmae"}`)

	resp, env := s.do(t, http.MethodPost, "/api/airtable", `{"fields":{"Nmae":"x"}}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "Unknown field name: Nmae", env.Error)

	s.upstream.Reply(http.StatusNotFound, `not here`)
	resp, env = s.do(t, http.MethodGet, "/api/airtable?recordId=missing", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Request failed with status 404", env.Error)
}

func TestForwardAuth(t *testing.T) {
	s := newTestServer(t, func(_ *Config, rc *airtable.Config, _ *Dependencies) {
		rc.ForwardAuth = true
	})

	s.do(t, http.MethodGet, "/api/airtable", "", "Cookie", "authToken=cookie-token")
	s.do(t, http.MethodGet, "/api/airtable", "", "Authorization", "Bearer header-token")
	s.do(t, http.MethodGet, "/api/airtable", "")

	calls := s.upstream.Calls()
	require.Len(t, calls, 3, "responses are not cached when credentials are forwarded")
	assert.Equal(t, "Bearer cookie-token", calls[0].auth)
	assert.Equal(t, "Bearer header-token", calls[1].auth)
	assert.Equal(t, "Bearer key123", calls[2].auth)
}

type failingCache struct {
	cache.Cache
}

func (failingCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (failingCache) DeletePrefix(context.Context, string) (int, error) {
	return 0, errors.New("connection refused")
}

func TestCacheFailuresDoNotFailRequests(t *testing.T) {
	s := newTestServer(t, func(_ *Config, _ *airtable.Config, d *Dependencies) {
		d.Cache = failingCache{Cache: cache.NewMemoryCache(10, time.Minute)}
	})

	resp, env := s.do(t, http.MethodGet, "/api/airtable", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)

	resp, _ = s.do(t, http.MethodDelete, "/api/airtable?recordId=rec1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetMap(t *testing.T) {
	s := newTestServer(t)
	resp, env := s.do(t, http.MethodGet, "/api/map", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, maps.ErrNotLoaded.Error(), env.Error)

	naver := maps.NewNaver(maps.DefaultNaverConfig("client-1"))
	require.NoError(t, naver.Load(context.Background()))
	s = newTestServer(t, func(_ *Config, _ *airtable.Config, d *Dependencies) {
		d.Map = naver
	})

	resp, env = s.do(t, http.MethodGet, "/api/map", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var widget maps.Widget
	require.NoError(t, json.Unmarshal(env.Data, &widget))
	assert.Equal(t, "naver", widget.Provider)
	assert.Contains(t, widget.ScriptURL, "ncpKeyId=client-1")
	assert.Equal(t, maps.DefaultCenter, widget.Map.Center)
}

func TestPingAndHealth(t *testing.T) {
	s := newTestServer(t, func(_ *Config, _ *airtable.Config, d *Dependencies) {
		d.Checks = map[string]HealthCheck{
			"cache": func(ctx context.Context) error { return nil },
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/load/ping", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "pong", string(body))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err = s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Checks["cache"])

	s = newTestServer(t, func(_ *Config, _ *airtable.Config, d *Dependencies) {
		d.Checks = map[string]HealthCheck{
			"nats": func(ctx context.Context) error { return errors.New("disconnected") },
		}
	})
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err = s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t)
	resp, env := s.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "Endpoint not found", env.Error)
}
