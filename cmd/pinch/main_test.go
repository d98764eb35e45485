package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gcoo-labs/pinch/internal/maps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bffCall struct {
	method string
	uri    string
	auth   string
	body   string
}

type fakeBFF struct {
	mu    sync.Mutex
	calls []bffCall
}

func (f *fakeBFF) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, bffCall{r.Method, r.URL.RequestURI(), r.Header.Get("Authorization"), string(body)})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/api/map":
		_, _ = io.WriteString(w, `{"success":true,"data":{"provider":"naver","scriptUrl":"https://oapi.map.naver.com/openapi/v3/maps.js?ncpKeyId=x","callback":"initNaverMap","map":{"elementId":"map","center":{"lat":37.3595704,"lng":127.105399},"zoom":10}}}`)
	case r.URL.Path != "/api/airtable":
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"success":false,"error":"Endpoint not found"}`)
	case r.Method == http.MethodGet && r.URL.Query().Get("recordId") != "":
		_, _ = io.WriteString(w, `{"success":true,"data":{"id":"`+r.URL.Query().Get("recordId")+`","fields":{"Name":"a"}}}`)
	case r.Method == http.MethodGet:
		_, _ = io.WriteString(w, `{"success":true,"data":{"records":[{"id":"rec1","fields":{"Name":"a"}},{"id":"rec2","fields":{"Name":"b"}}]}}`)
	case r.Method == http.MethodPost, r.Method == http.MethodPatch:
		_, _ = io.WriteString(w, `{"success":true,"data":{"id":"rec9","fields":{"Name":"Seoul"}}}`)
	case r.Method == http.MethodDelete:
		_, _ = io.WriteString(w, `{"success":true,"data":{"deleted":true,"id":"`+r.URL.Query().Get("recordId")+`"}}`)
	}
}

func (f *fakeBFF) Calls() []bffCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bffCall(nil), f.calls...)
}

type harness struct {
	bff       *fakeBFF
	url       string
	configDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	bff := &fakeBFF{}
	server := httptest.NewServer(bff)
	t.Cleanup(server.Close)
	return &harness{bff: bff, url: server.URL + "/api", configDir: t.TempDir()}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd, _ := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--config-dir", h.configDir, "--api", h.url}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestLoginAndList(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "login", "tok-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in")

	out, err = h.run(t, "records", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "rec1")
	assert.Contains(t, out, "rec2")

	calls := h.bff.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].method)
	assert.Equal(t, "/api/airtable?maxRecords=10", calls[0].uri)
	assert.Equal(t, "Bearer tok-1", calls[0].auth)

	_, err = h.run(t, "logout")
	require.NoError(t, err)
	_, err = h.run(t, "records", "list", "-n", "3")
	require.NoError(t, err)

	calls = h.bff.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/api/airtable?maxRecords=3", calls[1].uri)
	assert.Empty(t, calls[1].auth)
}

func TestRecordsGet(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "--json", "records", "get", "rec 7")
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "rec 7", records[0]["id"])

	calls := h.bff.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/api/airtable?recordId=rec+7", calls[0].uri)
}

func TestCreatePersistsLastRecord(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "records", "create", "Name=Seoul", "Visits=3")
	require.NoError(t, err)
	assert.Contains(t, out, "rec9")

	calls := h.bff.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].method)
	assert.Equal(t, "/api/airtable", calls[0].uri)
	assert.JSONEq(t, `{"fields":{"Name":"Seoul","Visits":3}}`, calls[0].body)

	// a later invocation sees the state written by this one
	out, err = h.run(t, "state")
	require.NoError(t, err)
	var state cliState
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, "rec9", state.LastRecordID)

	_, err = h.run(t, "state", "reset")
	require.NoError(t, err)
	out, err = h.run(t, "state")
	require.NoError(t, err)
	assert.JSONEq(t, `{"recordCount":0}`, out)
}

func TestUpdateAndDelete(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "records", "update", "rec1", "Name=Busan")
	require.NoError(t, err)

	out, err := h.run(t, "records", "delete", "rec1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted rec1")

	calls := h.bff.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPatch, calls[0].method)
	assert.JSONEq(t, `{"recordId":"rec1","fields":{"Name":"Busan"}}`, calls[0].body)
	assert.Equal(t, http.MethodDelete, calls[1].method)
	assert.Equal(t, "/api/airtable?recordId=rec1", calls[1].uri)
	assert.Empty(t, calls[1].body)
}

func TestListSyncsState(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "records", "list")
	require.NoError(t, err)

	out, err := h.run(t, "state")
	require.NoError(t, err)
	var state cliState
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, 2, state.RecordCount)
	require.NotNil(t, state.LastSyncedAt)
	assert.False(t, state.LastSyncedAt.IsZero())
}

func TestMap(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "map")
	require.NoError(t, err)
	assert.Contains(t, out, "provider: naver")
	assert.Contains(t, out, "zoom:     10")

	out, err = h.run(t, "map", "--center", "37.5665, 126.978")
	require.NoError(t, err)
	assert.Contains(t, out, "center:   37.5665, 126.978")

	// the center is remembered
	out, err = h.run(t, "--json", "map")
	require.NoError(t, err)
	var widget maps.Widget
	require.NoError(t, json.Unmarshal([]byte(out), &widget))
	assert.Equal(t, maps.LatLng{Lat: 37.5665, Lng: 126.978}, widget.Map.Center)

	_, err = h.run(t, "map", "--center", "91,0")
	assert.ErrorIs(t, err, maps.ErrInvalidCoordinate)
}

func TestUpstreamErrorsSurface(t *testing.T) {
	h := newHarness(t)
	h.url = strings.TrimSuffix(h.url, "/api") + "/nope"

	_, err := h.run(t, "records", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Request failed with status 404")
}

func TestUnknownStateBackend(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "--state-backend", "floppy", "state")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown state backend")
}

func TestMemoryStateBackend(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "--state-backend", "memory", "records", "create", "Name=x")
	require.NoError(t, err)

	out, err := h.run(t, "--state-backend", "memory", "state")
	require.NoError(t, err)
	assert.NotContains(t, out, "rec9", "memory state does not outlive the invocation")
}

func TestWatchRequiresNATS(t *testing.T) {
	t.Setenv("NATS_URL", "")
	t.Setenv("PINCH_NATS_URL", "")
	h := newHarness(t)

	_, err := h.run(t, "records", "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no NATS server configured")
}

func TestParseFields(t *testing.T) {
	fields, err := parseFields([]string{"Name=Seoul", "Visits=3", "Open=true", `Tags=["a"]`, "Note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"Name":   "Seoul",
		"Visits": float64(3),
		"Open":   true,
		"Tags":   []any{"a"},
		"Note":   "a=b",
	}, fields)

	_, err = parseFields([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseFields([]string{"=x"})
	assert.Error(t, err)
}

func TestParseLatLng(t *testing.T) {
	p, err := parseLatLng("37.3595704,127.105399")
	require.NoError(t, err)
	assert.Equal(t, maps.DefaultCenter, p)

	for _, bad := range []string{"", "37.5", "a,1", "1,b", "0,181"} {
		_, err := parseLatLng(bad)
		assert.Error(t, err, bad)
	}
}
