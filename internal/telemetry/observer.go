package telemetry

import (
	"errors"
	"time"

	"github.com/gcoo-labs/pinch/sdk"
	"github.com/sirupsen/logrus"
)

// UpstreamObserver reports access client activity to Prometheus and the log
type UpstreamObserver struct{}

var _ sdk.Observer = UpstreamObserver{}

// OnRequestStart does nothing; the call is recorded when it ends
func (UpstreamObserver) OnRequestStart(string, string) {}

// OnRequestEnd records the call outcome
func (UpstreamObserver) OnRequestEnd(method, path string, duration time.Duration, err error) {
	outcome := Outcome(err)
	RecordUpstreamRequest(method, outcome, duration)

	if err != nil {
		WithFields(logrus.Fields{
			"method":   method,
			"path":     path,
			"outcome":  outcome,
			"duration": duration.Milliseconds(),
		}).WithError(err).Warn("Upstream request failed")
	}
}

// OnRetryAttempt records the retry
func (UpstreamObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	RecordUpstreamRetry(method)
	WithFields(logrus.Fields{
		"method":  method,
		"path":    path,
		"attempt": attempt,
		"delay":   delay.Milliseconds(),
	}).WithError(err).Debug("Retrying upstream request")
}

// Outcome labels err by access layer error type, or "success" for nil
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	var sdkErr *sdk.Error
	if errors.As(err, &sdkErr) {
		return sdkErr.Type.String()
	}
	return "unknown"
}
