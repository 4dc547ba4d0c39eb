package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	RunsTotal.WithLabelValues(ResultOK).Inc()
	FramesProcessedTotal.Add(3)

	srv := httptest.NewServer(NewHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `avinpaint_runs_total{result="ok"}`)
	require.Contains(t, string(body), "avinpaint_frames_processed_total")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(StageFailuresTotal.WithLabelValues("masking"))
	StageFailuresTotal.WithLabelValues("masking").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(StageFailuresTotal.WithLabelValues("masking")))
}
