package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordFlush(t *testing.T) {
	m := NewUnregisteredMetrics()
	m.RecordFlush(FlushTriggerThreshold, 10)
	m.RecordFlush(FlushTriggerFinalize, 3)
	m.RecordFlush(FlushTriggerFinalize, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushes.WithLabelValues(string(FlushTriggerThreshold))))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.flushes.WithLabelValues(string(FlushTriggerFinalize))))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.flushedRecords))
}

func TestRecordSinkCallAndCompletion(t *testing.T) {
	m := NewUnregisteredMetrics()
	m.RecordSinkCall(SinkOutcomeSuccess)
	m.RecordSinkCall(SinkOutcomeTransient)
	m.RecordSinkCall(SinkOutcomeSuccess)
	m.RecordCompletion(CompleteModeCompress)
	m.RecordLockConflict()
	m.RecordFlushError()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sinkCalls.WithLabelValues(string(SinkOutcomeSuccess))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sinkCalls.WithLabelValues(string(SinkOutcomeTransient))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues(string(CompleteModeCompress))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushErrors))
}

func TestGetIsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}
