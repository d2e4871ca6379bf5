// Package metrics exposes Prometheus collectors for the verification gate
// and a sliding window anomaly detector.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmcleod/chiralgate/captcha"
	"github.com/jmcleod/chiralgate/gate"
	"github.com/jmcleod/chiralgate/session"
)

const namespace = "chiralgate"

// Metrics holds the gate's collectors.
type Metrics struct {
	outcomes     *prom.CounterVec
	fetches      *prom.CounterVec
	fetchSeconds prom.Histogram
	dropped      prom.Counter
	detector     *Detector
}

// New registers the collectors on reg. live reports the current number of
// live sessions; detector may be nil.
func New(reg prom.Registerer, live func() int, detector *Detector) (*Metrics, error) {
	m := &Metrics{
		outcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Terminal verification outcomes by kind.",
		}, []string{"kind"}),
		fetches: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "captcha_fetch_total",
			Help:      "Captcha provider calls by result.",
		}, []string{"result"}),
		fetchSeconds: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "captcha_fetch_seconds",
			Help:      "Captcha provider call latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		dropped: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Chat events dropped because a worker queue was full.",
		}),
		detector: detector,
	}
	collectors := []prom.Collector{m.outcomes, m.fetches, m.fetchSeconds, m.dropped}
	if live != nil {
		collectors = append(collectors, prom.NewGaugeFunc(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions",
			Help:      "Verification sessions currently awaiting an answer.",
		}, func() float64 { return float64(live()) }))
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Record counts a terminal outcome.
func (m *Metrics) Record(_ context.Context, o session.Outcome) {
	m.outcomes.WithLabelValues(string(o.Kind)).Inc()
	m.detector.RecordOutcome(o.Kind)
}

// EventDropped counts a dropped chat event.
func (m *Metrics) EventDropped() {
	m.dropped.Inc()
}

// InstrumentProvider wraps p so every fetch is timed and counted.
func (m *Metrics) InstrumentProvider(p gate.Provider) gate.Provider {
	return &instrumentedProvider{next: p, m: m}
}

type instrumentedProvider struct {
	next gate.Provider
	m    *Metrics
}

func (p *instrumentedProvider) Fetch(ctx context.Context) (captcha.Question, error) {
	start := time.Now()
	q, err := p.next.Fetch(ctx)
	p.m.fetchSeconds.Observe(time.Since(start).Seconds())

	result := "ok"
	switch {
	case errors.Is(err, captcha.ErrProviderMalformed):
		result = "malformed"
	case err != nil:
		result = "unavailable"
	}
	p.m.fetches.WithLabelValues(result).Inc()
	if err != nil {
		p.m.detector.RecordProviderFailure()
	}
	return q, err
}

// Handler serves the metrics gathered by g.
func Handler(g prom.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
