package airtable

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gcoo-labs/pinch/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seen struct {
	method string
	uri    string
	auth   string
	body   string
}

func upstream(t *testing.T, status int, reply string) (*Config, func() []seen) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []seen
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, seen{r.Method, r.URL.RequestURI(), r.Header.Get("Authorization"), string(body)})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(server.Close)

	return &Config{
		BaseURL: server.URL + "/v0",
		BaseID:  "appTEST",
		Table:   "Table1",
		APIKey:  "key123",
		Timeout: time.Second,
		Retry:   0,
	}, func() []seen {
		mu.Lock()
		defer mu.Unlock()
		return append([]seen(nil), reqs...)
	}
}

func TestClient_CRUDPaths(t *testing.T) {
	cfg, reqs := upstream(t, http.StatusOK, `{"id":"rec1","fields":{"Name":"a"},"records":[{"id":"rec1"}],"deleted":true}`)
	f := NewFactory(cfg, nil)
	defer f.Close()

	c, err := f.ForRequest(nil)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	list, err := c.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list.Records, 1)

	rec, err := c.Get(ctx, "rec1")
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Fields["Name"])

	_, err = c.Create(ctx, map[string]any{"Name": "b"})
	require.NoError(t, err)
	_, err = c.Update(ctx, "rec1", map[string]any{"Name": "c"})
	require.NoError(t, err)
	del, err := c.Delete(ctx, "rec1")
	require.NoError(t, err)
	assert.True(t, del.Deleted)

	got := reqs()
	require.Len(t, got, 5)
	assert.Equal(t, seen{"GET", "/v0/appTEST/Table1?maxRecords=10", "Bearer key123", ""}, got[0])
	assert.Equal(t, "/v0/appTEST/Table1/rec1", got[1].uri)
	assert.Equal(t, "POST", got[2].method)
	assert.Equal(t, "/v0/appTEST/Table1", got[2].uri)
	assert.JSONEq(t, `{"fields":{"Name":"b"}}`, got[2].body)
	assert.Equal(t, "PATCH", got[3].method)
	assert.JSONEq(t, `{"fields":{"Name":"c"}}`, got[3].body)
	assert.Equal(t, "DELETE", got[4].method)
	assert.Equal(t, "/v0/appTEST/Table1/rec1", got[4].uri)
}

func TestFactory_ForwardAuth(t *testing.T) {
	cfg, reqs := upstream(t, http.StatusOK, `{"records":[]}`)
	caller := sdk.NewRequestTokenSource("caller-token", "")

	f := NewFactory(cfg, nil)
	c, err := f.ForRequest(caller)
	require.NoError(t, err)
	_, err = c.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Bearer key123", reqs()[0].auth, "caller token ignored unless forwarding")

	cfg.ForwardAuth = true
	c, err = f.ForRequest(caller)
	require.NoError(t, err)
	_, err = c.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Bearer caller-token", reqs()[1].auth)

	c, err = f.ForRequest(sdk.NewRequestTokenSource("", ""))
	require.NoError(t, err)
	_, err = c.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Bearer key123", reqs()[2].auth, "falls back to the API key without a caller token")
}

func TestClient_UpstreamError(t *testing.T) {
	cfg, _ := upstream(t, http.StatusNotFound, `{"error":{"type":"NOT_FOUND"},"message":"Could not find record"}`)
	f := NewFactory(cfg, nil)
	c, err := f.ForRequest(nil)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "missing")
	require.Error(t, err)

	apiErr, ok := sdk.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Could not find record", apiErr.Message)

	data, _ := json.Marshal(apiErr.Data)
	assert.Contains(t, string(data), "NOT_FOUND")
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("AIRTABLE_BASE_ID", "appX")
	t.Setenv("AIRTABLE_TABLE_NAME", "")
	t.Setenv("REQUEST_TIMEOUT", "5")
	t.Setenv("FORWARD_AUTH", "true")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "Table1", cfg.Table)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.Retry)
	assert.True(t, cfg.ForwardAuth)
	assert.Equal(t, "https://api.airtable.com/v0/appX", cfg.ResourceRoot())

	t.Setenv("UPSTREAM_RETRY", "many")
	_, err = NewConfigFromEnv()
	assert.Error(t, err)
}
