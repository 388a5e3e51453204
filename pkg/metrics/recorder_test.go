package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNopRecorder(t *testing.T) {
	rec := Nop()
	// Must accept all observations without side effects.
	rec.ObserveCall("sess-1", "get_locations", "success", 10*time.Millisecond)
	rec.IncCacheHit("sess-1", "get_locations")
	rec.ObserveTurn("done", "", 2, time.Second)
	rec.ObservePlanner("anthropic", "success", 200*time.Millisecond)
	rec.IncThrottle("anthropic", "rate_limit")
}

// PrometheusRecorder registers into the default registry, so it is constructed
// exactly once across the whole test binary.
func TestPrometheusRecorder(t *testing.T) {
	rec := NewPrometheusRecorder()

	rec.ObserveCall("sess-1", "get_devices_by_location", "success", 25*time.Millisecond)
	rec.ObserveCall("sess-1", "get_devices_by_location", "success", 30*time.Millisecond)
	rec.ObserveCall("sess-1", "get_devices_by_location", "timeout", 10*time.Second)
	rec.IncCacheHit("sess-1", "get_devices_by_location")
	rec.ObserveTurn("aborted", "round_limit", 6, 3*time.Second)
	rec.ObservePlanner("openai", "error", 100*time.Millisecond)
	rec.IncThrottle("openai", "rate_limit")

	assert.InDelta(t, 2.0, testutil.ToFloat64(
		rec.callsTotal.WithLabelValues("sess-1", "get_devices_by_location", "success")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(
		rec.callsTotal.WithLabelValues("sess-1", "get_devices_by_location", "timeout")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(
		rec.cacheHitsTotal.WithLabelValues("sess-1", "get_devices_by_location")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(
		rec.turnsTotal.WithLabelValues("aborted", "round_limit")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(
		rec.plannerTotal.WithLabelValues("openai", "error")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(
		rec.throttlesTotal.WithLabelValues("openai", "rate_limit")), 0.001)
}
