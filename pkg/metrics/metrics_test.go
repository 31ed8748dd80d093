package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	before := testutil.ToFloat64(RunsStartedTotal.WithLabelValues("metrics-test"))
	RunsStartedTotal.WithLabelValues("metrics-test").Inc()
	RunsCompletedTotal.WithLabelValues("metrics-test", "finished").Inc()
	RunDuration.WithLabelValues("metrics-test").Observe(12)
	assert.Equal(t, before+1, testutil.ToFloat64(RunsStartedTotal.WithLabelValues("metrics-test")))

	path := filepath.Join(t.TempDir(), "biosim.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `biosim_runs_started_total{engine="metrics-test"}`)
	assert.Contains(t, text, `biosim_runs_completed_total{engine="metrics-test",state="finished"} 1`)
	assert.Contains(t, text, "biosim_run_duration_seconds_bucket")
}
