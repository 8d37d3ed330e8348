// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestRecordCacheLookup(t *testing.T) {
	c := cacheLookups.WithLabelValues(LayerSegment, "hit")
	before := counterValue(t, c)

	RecordCacheLookup(LayerSegment, "hit")
	RecordCacheLookup(LayerSegment, "hit")

	assert.Equal(t, before+2, counterValue(t, c))
}

func TestDetachedTaskAccounting(t *testing.T) {
	before := gaugeValue(t, detachedInFlight)
	failures := counterValue(t, detachedTasks.WithLabelValues("views.increment", "error"))

	DetachedStarted()
	assert.Equal(t, before+1, gaugeValue(t, detachedInFlight))
	DetachedFinished("views.increment", "error")

	assert.Equal(t, before, gaugeValue(t, detachedInFlight))
	assert.Equal(t, failures+1, counterValue(t, detachedTasks.WithLabelValues("views.increment", "error")))
}

func TestSetCircuitBreakerState_OneHot(t *testing.T) {
	SetCircuitBreakerState("objectstore", "open")

	assert.Equal(t, 1.0, gaugeValue(t, circuitBreakerState.WithLabelValues("objectstore", "open")))
	assert.Equal(t, 0.0, gaugeValue(t, circuitBreakerState.WithLabelValues("objectstore", "closed")))
	assert.Equal(t, 0.0, gaugeValue(t, circuitBreakerState.WithLabelValues("objectstore", "half-open")))
}

func TestPromhttpExposure(t *testing.T) {
	RecordPrefetch("ahead", PrefetchWarmed)

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "vodpipe_prefetch_segments_total")
}
