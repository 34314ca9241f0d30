package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordNotification_Increments(t *testing.T) {
	before := testutil.ToFloat64(notificationsTotal.WithLabelValues("sent"))
	RecordNotification("sent")
	assert.Equal(t, before+1, testutil.ToFloat64(notificationsTotal.WithLabelValues("sent")))
}

func TestRecordStoreSave_SplitsOutcome(t *testing.T) {
	okBefore := testutil.ToFloat64(storeSavesTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(storeSavesTotal.WithLabelValues("error"))

	RecordStoreSave(nil)
	RecordStoreSave(errors.New("disk full"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(storeSavesTotal.WithLabelValues("ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(storeSavesTotal.WithLabelValues("error")))
}

func TestGauges(t *testing.T) {
	SetTrackedRequests(7)
	SetBackedOffRequests(2)
	assert.Equal(t, float64(7), testutil.ToFloat64(trackedRequests))
	assert.Equal(t, float64(2), testutil.ToFloat64(backedOffRequests))

	SetBreakerState("course_page", 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(breakerState.WithLabelValues("course_page")))
}

func TestMetricsHandler_Exposes(t *testing.T) {
	RecordSweep("ok", time.Second)
	RecordFetch("class", "available", 200*time.Millisecond)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "seatwatch_sweeps_total")
	assert.Contains(t, rec.Body.String(), "seatwatch_fetches_total")
}
