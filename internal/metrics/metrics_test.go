package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value reads a counter or gauge sample from c.
func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestObserverRecords(t *testing.T) {
	o := New()
	o.Tick()
	o.Tick()
	o.Decision("skip")
	o.Order("BUY", "filled")
	o.Trade("win", 2.5)
	o.Trade("loss", -4)
	o.SessionPnL(-1.5)
	o.BreakerTrip()
	o.Basis(12.5)
	o.Balance(100)

	assert.Equal(t, 2.0, value(t, o.ticks))
	assert.Equal(t, 1.0, value(t, o.decisions.WithLabelValues("skip")))
	assert.Equal(t, 1.0, value(t, o.orders.WithLabelValues("BUY", "filled")))
	assert.Equal(t, 1.0, value(t, o.trades.WithLabelValues("loss")))
	assert.Equal(t, 2.5, value(t, o.realizedPnL))
	assert.Equal(t, -1.5, value(t, o.sessionPnL))
	assert.Equal(t, 1.0, value(t, o.breakerTrips))
	assert.Equal(t, 12.5, value(t, o.basis))
	assert.Equal(t, 100.0, value(t, o.balance))
}

func TestHandlerExposesMetrics(t *testing.T) {
	o := New()
	o.Tick()

	srv := httptest.NewServer(o.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "updown_ticks_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
