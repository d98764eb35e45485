package sdk

import (
	"sync"
	"time"
)

// Observer receives notifications about client operations. Implementations
// must be safe for concurrent use and should return quickly.
//
// Example:
//
//	type LogObserver struct{}
//
//	func (LogObserver) OnRequestStart(method, path string) {
//	    log.Printf("-> %s %s", method, path)
//	}
//	func (LogObserver) OnRequestEnd(method, path string, d time.Duration, err error) {
//	    log.Printf("<- %s %s %v %v", method, path, d, err)
//	}
//	func (LogObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {}
type Observer interface {
	// OnRequestStart is called once per call, before the first attempt.
	OnRequestStart(method, path string)

	// OnRequestEnd is called once per call with the terminal outcome.
	OnRequestEnd(method, path string, duration time.Duration, err error)

	// OnRetryAttempt is called before waiting for retry number attempt.
	OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error)
}

// NoopObserver is an Observer that does nothing.
type NoopObserver struct{}

// OnRequestStart does nothing
func (NoopObserver) OnRequestStart(string, string) {}

// OnRequestEnd does nothing
func (NoopObserver) OnRequestEnd(string, string, time.Duration, error) {}

// OnRetryAttempt does nothing
func (NoopObserver) OnRetryAttempt(string, string, int, time.Duration, error) {}

// MetricsCollector counts calls, errors and retries per "METHOD path".
// It keeps everything in memory and is meant for tests and debugging.
type MetricsCollector struct {
	mu           sync.RWMutex
	requestCount map[string]int64
	errorCount   map[string]int64
	retryCount   map[string]int64
	latencies    map[string][]time.Duration
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		retryCount:   make(map[string]int64),
		latencies:    make(map[string][]time.Duration),
	}
}

// OnRequestStart increments request count
func (m *MetricsCollector) OnRequestStart(method, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[method+" "+path]++
}

// OnRequestEnd records request duration and errors
func (m *MetricsCollector) OnRequestEnd(method, path string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + " " + path
	m.latencies[key] = append(m.latencies[key], duration)
	if err != nil {
		m.errorCount[key]++
	}
}

// OnRetryAttempt increments retry count
func (m *MetricsCollector) OnRetryAttempt(method, path string, _ int, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryCount[method+" "+path]++
}

// Requests returns the number of calls made for key ("METHOD path").
func (m *MetricsCollector) Requests(key string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount[key]
}

// Errors returns the number of failed calls for key.
func (m *MetricsCollector) Errors(key string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorCount[key]
}

// Retries returns the number of retries for key.
func (m *MetricsCollector) Retries(key string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.retryCount[key]
}

// Latencies returns a copy of the recorded durations for key.
func (m *MetricsCollector) Latencies(key string) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Duration(nil), m.latencies[key]...)
}

// CompositeObserver fans notifications out to several observers in order.
// A panicking observer does not stop the others.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an observer that delegates to observers.
func NewCompositeObserver(observers ...Observer) Observer {
	return &CompositeObserver{observers: observers}
}

// OnRequestStart notifies all observers
func (c *CompositeObserver) OnRequestStart(method, path string) {
	for _, o := range c.observers {
		safeCall(func() { o.OnRequestStart(method, path) })
	}
}

// OnRequestEnd notifies all observers
func (c *CompositeObserver) OnRequestEnd(method, path string, duration time.Duration, err error) {
	for _, o := range c.observers {
		safeCall(func() { o.OnRequestEnd(method, path, duration, err) })
	}
}

// OnRetryAttempt notifies all observers
func (c *CompositeObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	for _, o := range c.observers {
		safeCall(func() { o.OnRetryAttempt(method, path, attempt, delay, err) })
	}
}

func safeCall(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}
