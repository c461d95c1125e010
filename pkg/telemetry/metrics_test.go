package telemetry

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

func TestRecordJob(t *testing.T) {
	Register()

	before := testutil.ToFloat64(jobsCounter.WithLabelValues("l1", "fit_estimator", OutcomeSuccess))
	RecordJob("l1", "fit_estimator", 3*time.Millisecond, nil)
	RecordJob("l1", "fit_estimator", 5*time.Millisecond, errors.New("boom"))

	assert.Equal(t, before+1, testutil.ToFloat64(jobsCounter.WithLabelValues("l1", "fit_estimator", OutcomeSuccess)))
	assert.GreaterOrEqual(t, testutil.ToFloat64(jobsCounter.WithLabelValues("l1", "fit_estimator", OutcomeFailure)), 1.0)
}

func TestRecordWaitAndCache(t *testing.T) {
	Register()

	RecordWait("l1", WaitWarned, time.Second)
	RecordCacheOp(CacheSave, nil)
	RecordCacheHit()

	assert.GreaterOrEqual(t, testutil.ToFloat64(waitCounter.WithLabelValues("l1", WaitWarned)), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(cacheCounter.WithLabelValues(CacheHit, OutcomeSuccess)), 1.0)
}

func TestWriteText(t *testing.T) {
	Register()
	RecordJob("l2", "predict_full", time.Millisecond, nil)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf))
	assert.Contains(t, buf.String(), "mlstack_layer_jobs_total")
	assert.Contains(t, buf.String(), `kind="predict_full"`)

	mfs, err := Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}
