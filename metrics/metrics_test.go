package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/chiralgate/captcha"
	"github.com/jmcleod/chiralgate/session"
)

type stubProvider struct {
	err error
}

func (p stubProvider) Fetch(context.Context) (captcha.Question, error) {
	return captcha.Question{ID: "q"}, p.err
}

func value(t *testing.T, c prom.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, c.Write(&pb))
	return pb.GetCounter().GetValue()
}

func TestMetrics(t *testing.T) {
	reg := prom.NewRegistry()
	log := &alertLog{}
	d := NewDetector(log.fn)
	d.ProviderThreshold = 1

	m, err := New(reg, func() int { return 3 }, d)
	require.NoError(t, err)

	ctx := context.Background()
	m.Record(ctx, session.Outcome{Kind: session.OutcomePassed})
	m.Record(ctx, session.Outcome{Kind: session.OutcomePassed})
	m.Record(ctx, session.Outcome{Kind: session.OutcomeExpired})
	m.EventDropped()

	assert.Equal(t, 2.0, value(t, m.outcomes.WithLabelValues("passed")))
	assert.Equal(t, 1.0, value(t, m.outcomes.WithLabelValues("expired")))
	assert.Equal(t, 1.0, value(t, m.dropped))

	_, err = m.InstrumentProvider(stubProvider{}).Fetch(ctx)
	require.NoError(t, err)
	_, err = m.InstrumentProvider(stubProvider{err: captcha.ErrProviderMalformed}).Fetch(ctx)
	require.ErrorIs(t, err, captcha.ErrProviderMalformed)
	_, err = m.InstrumentProvider(stubProvider{err: captcha.ErrProviderUnavailable}).Fetch(ctx)
	require.ErrorIs(t, err, captcha.ErrProviderUnavailable)

	assert.Equal(t, 1.0, value(t, m.fetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, value(t, m.fetches.WithLabelValues("malformed")))
	assert.Equal(t, 1.0, value(t, m.fetches.WithLabelValues("unavailable")))
	assert.Len(t, log.get(), 2, "each provider failure alerts at threshold 1")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "chiralgate_live_sessions 3")
	assert.Contains(t, string(body), `chiralgate_outcomes_total{kind="passed"} 2`)
	assert.Contains(t, string(body), "chiralgate_captcha_fetch_seconds_count 3")
}

func TestMetrics_DoubleRegister(t *testing.T) {
	reg := prom.NewRegistry()
	_, err := New(reg, nil, nil)
	require.NoError(t, err)
	_, err = New(reg, nil, nil)
	assert.Error(t, err)
}
