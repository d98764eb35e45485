package sdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector(t *testing.T) {
	m := NewMetricsCollector()

	m.OnRequestStart("GET", "/a")
	m.OnRequestEnd("GET", "/a", 10*time.Millisecond, nil)
	m.OnRequestStart("GET", "/a")
	m.OnRetryAttempt("GET", "/a", 1, time.Millisecond, errors.New("x"))
	m.OnRequestEnd("GET", "/a", 20*time.Millisecond, errors.New("x"))

	assert.Equal(t, int64(2), m.Requests("GET /a"))
	assert.Equal(t, int64(1), m.Errors("GET /a"))
	assert.Equal(t, int64(1), m.Retries("GET /a"))
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, m.Latencies("GET /a"))
}

type panickingObserver struct{ NoopObserver }

func (panickingObserver) OnRequestStart(string, string) { panic("observer bug") }

func TestCompositeObserver(t *testing.T) {
	a := NewMetricsCollector()
	b := NewMetricsCollector()
	composite := NewCompositeObserver(a, panickingObserver{}, b)

	composite.OnRequestStart("POST", "/r")
	composite.OnRequestEnd("POST", "/r", time.Millisecond, nil)
	composite.OnRetryAttempt("POST", "/r", 1, 0, nil)

	for _, m := range []*MetricsCollector{a, b} {
		assert.Equal(t, int64(1), m.Requests("POST /r"))
		assert.Equal(t, int64(1), m.Retries("POST /r"))
	}
}

func TestObserverIntegration(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	metrics := NewMetricsCollector()
	config := fastConfig(server.URL).WithObserver(metrics)
	client, err := NewClient(config)
	require.NoError(t, err)

	require.NoError(t, client.Get(context.Background(), "records", nil))

	assert.Equal(t, int64(1), metrics.Requests("GET records"))
	assert.Equal(t, int64(1), metrics.Retries("GET records"))
	assert.Equal(t, int64(0), metrics.Errors("GET records"))
}
