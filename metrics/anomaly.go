package metrics

import (
	"sync"
	"time"

	"github.com/jmcleod/chiralgate/session"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertVerificationFailureSpike AlertType = "verification_failure_spike"
	AlertProviderOutage           AlertType = "captcha_provider_outage"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType     `json:"type"`
	Message   string        `json:"message"`
	Count     int           `json:"count"`
	Threshold int           `json:"threshold"`
	Window    time.Duration `json:"window"`
	Timestamp time.Time     `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected. It runs
// with the detector locked and must not call back into it.
type AlertFunc func(AlertEvent)

const (
	DefaultFailureWindow     = 10 * time.Minute
	DefaultFailureThreshold  = 10
	DefaultProviderWindow    = 5 * time.Minute
	DefaultProviderThreshold = 3
)

// Detector tracks sliding window counters for anomaly detection: a burst of
// failed or expired verifications, which hints at a raid or a broken
// question set, and repeated captcha provider failures.
type Detector struct {
	mu  sync.Mutex
	now func() time.Time

	failures         []time.Time
	FailureWindow    time.Duration
	FailureThreshold int

	providerErrors    []time.Time
	ProviderWindow    time.Duration
	ProviderThreshold int

	alertFn AlertFunc
}

// NewDetector returns a detector with the default windows and thresholds.
func NewDetector(alertFn AlertFunc) *Detector {
	return &Detector{
		now:               time.Now,
		FailureWindow:     DefaultFailureWindow,
		FailureThreshold:  DefaultFailureThreshold,
		ProviderWindow:    DefaultProviderWindow,
		ProviderThreshold: DefaultProviderThreshold,
		alertFn:           alertFn,
	}
}

// RecordOutcome counts failed and expired outcomes.
func (d *Detector) RecordOutcome(kind session.OutcomeKind) {
	if d == nil || d.alertFn == nil {
		return
	}
	if kind != session.OutcomeFailed && kind != session.OutcomeExpired {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = d.bump(d.failures, d.FailureWindow, d.FailureThreshold, AlertVerificationFailureSpike,
		"failed or expired verifications exceed threshold")
}

// RecordProviderFailure counts a failed captcha fetch.
func (d *Detector) RecordProviderFailure() {
	if d == nil || d.alertFn == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providerErrors = d.bump(d.providerErrors, d.ProviderWindow, d.ProviderThreshold, AlertProviderOutage,
		"captcha provider failures exceed threshold")
}

func (d *Detector) bump(times []time.Time, window time.Duration, threshold int, typ AlertType, msg string) []time.Time {
	now := d.now()
	times = append(times, now)
	times = trimWindow(times, now, window)
	if len(times) < threshold {
		return times
	}
	d.alertFn(AlertEvent{
		Type:      typ,
		Message:   msg,
		Count:     len(times),
		Threshold: threshold,
		Window:    window,
		Timestamp: now,
	})
	// Reset to avoid repeated alerts within the same spike.
	return times[:0]
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
