package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun_IncrementsCounterForOutcome(t *testing.T) {
	before := testutil.ToFloat64(runsTotal.WithLabelValues("success"))

	ObserveRun("success")

	after := testutil.ToFloat64(runsTotal.WithLabelValues("success"))
	assert.Equal(t, before+1, after)
}

func TestObserveStage_RecordsHistogramObservation(t *testing.T) {
	ObserveStage("rpm-stage-test", 0.25)

	assert.GreaterOrEqual(t, testutil.CollectAndCount(stageDuration), 1)
}

func TestHandler_ServesPrometheusExpositionFormat(t *testing.T) {
	ObserveRun("success")

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}
