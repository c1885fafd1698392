package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()

	r.RecordTask("nightly_scan", "success", 2*time.Second)
	r.RecordTask("nightly_scan", "success", time.Second)
	r.RecordTask("nightly_scan", "failure", time.Second)
	r.RecordExit("stop_loss")
	r.SetHeldPositions(3)
	r.RecordCandidates("ranked", 7)

	assert.InDelta(t, 2, testutil.ToFloat64(r.taskRuns.WithLabelValues("nightly_scan", "success")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(r.taskRuns.WithLabelValues("nightly_scan", "failure")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(r.exits.WithLabelValues("stop_loss")), 1e-9)
	assert.InDelta(t, 3, testutil.ToFloat64(r.heldPositions), 1e-9)
	assert.InDelta(t, 7, testutil.ToFloat64(r.candidates.WithLabelValues("ranked")), 1e-9)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.RecordTask("x", "success", time.Second)
		r.RecordExit("hold")
		r.SetHeldPositions(1)
		r.RecordPriceUpdate()
		r.RecordReconnect()
		r.RecordStaleFallback()
		r.RecordGapDecision("kept")
		r.RecordOrder("entry", "FILLED")
		r.RecordScan(10, 1)
		r.RecordCandidates("filtered", 1)
	})
	assert.Nil(t, r.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.RecordReconnect()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "argo_batch_stream_reconnects_total 1")
}
