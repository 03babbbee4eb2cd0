package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	metrics := NewMetrics("test", prometheus.NewRegistry())

	metrics.ObserveQuote("ok")
	metrics.ObserveQuote("ok")
	metrics.ObserveQuote("revert")
	metrics.IncPlayerFetchFailure()
	metrics.SetRankedPlayers(3)
	metrics.ObserveRPCCall("getPlayer", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.QuoteRequests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QuoteRequests.WithLabelValues("revert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PlayerFetchFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RankedPlayers))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var metrics *Metrics

	assert.NotPanics(t, func() {
		metrics.ObserveQuote("ok")
		metrics.IncQuoteRetry()
		metrics.ObserveRPCCall("getPlayers", time.Second)
		metrics.IncPlayerFetchFailure()
		metrics.SetRankedPlayers(1)
		metrics.ObserveSnapshot("ok")
	})
}
