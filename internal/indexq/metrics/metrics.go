package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type (
	SinkOutcome  string
	FlushTrigger string
	CompleteMode string
)

const (
	SinkOutcomeSuccess   SinkOutcome = "success"
	SinkOutcomeDeclined  SinkOutcome = "declined"
	SinkOutcomeTransient SinkOutcome = "transient"
	SinkOutcomeRejected  SinkOutcome = "rejected"

	FlushTriggerThreshold   FlushTrigger = "threshold"
	FlushTriggerFinalize    FlushTrigger = "finalize"
	FlushTriggerPassThrough FlushTrigger = "passthrough"

	CompleteModeMove     CompleteMode = "move"
	CompleteModeCompress CompleteMode = "compress"
)

const IndexQMetricsPrefix = "indexq_"

type Metrics struct {
	flushes        *prometheus.CounterVec
	flushedRecords prometheus.Counter
	flushErrors    prometheus.Counter
	completions    *prometheus.CounterVec
	sinkCalls      *prometheus.CounterVec
	lockConflicts  prometheus.Counter
}

func NewMetrics(prefix string) *Metrics {
	return newMetrics(prefix, promauto.With(prometheus.DefaultRegisterer))
}

// NewUnregisteredMetrics returns metrics that are not exported; useful in tests that build many queues.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics(IndexQMetricsPrefix, promauto.With(nil))
}

func newMetrics(prefix string, factory promauto.Factory) *Metrics {
	flushesOpts := prometheus.CounterOpts{
		Name: prefix + "buffer_flushes",
		Help: "Number of batch files written, grouped by what triggered the write",
	}
	flushedRecordsOpts := prometheus.CounterOpts{
		Name: prefix + "buffer_flushed_records",
		Help: "Number of records written to batch files",
	}
	flushErrorsOpts := prometheus.CounterOpts{
		Name: prefix + "buffer_flush_errors",
		Help: "Number of failed attempts to persist the buffer",
	}
	completionsOpts := prometheus.CounterOpts{
		Name: prefix + "completions",
		Help: "Number of batch files moved from todo to done, grouped by mode",
	}
	sinkCallsOpts := prometheus.CounterOpts{
		Name: prefix + "sink_calls",
		Help: "Number of sink invocations grouped by outcome",
	}
	lockConflictsOpts := prometheus.CounterOpts{
		Name: prefix + "lock_conflicts",
		Help: "Number of dequeue attempts rejected because the queue was locked",
	}
	return &Metrics{
		flushes:        factory.NewCounterVec(flushesOpts, []string{"trigger"}),
		flushedRecords: factory.NewCounter(flushedRecordsOpts),
		flushErrors:    factory.NewCounter(flushErrorsOpts),
		completions:    factory.NewCounterVec(completionsOpts, []string{"mode"}),
		sinkCalls:      factory.NewCounterVec(sinkCallsOpts, []string{"outcome"}),
		lockConflicts:  factory.NewCounter(lockConflictsOpts),
	}
}

func (m *Metrics) RecordFlush(trigger FlushTrigger, records int) {
	m.flushes.With(map[string]string{"trigger": string(trigger)}).Inc()
	m.flushedRecords.Add(float64(records))
}

func (m *Metrics) RecordFlushError() {
	m.flushErrors.Inc()
}

func (m *Metrics) RecordCompletion(mode CompleteMode) {
	m.completions.With(map[string]string{"mode": string(mode)}).Inc()
}

func (m *Metrics) RecordSinkCall(outcome SinkOutcome) {
	m.sinkCalls.With(map[string]string{"outcome": string(outcome)}).Inc()
}

func (m *Metrics) RecordLockConflict() {
	m.lockConflicts.Inc()
}

var m = NewMetrics(IndexQMetricsPrefix)

// Get returns the process wide, registered metrics.
func Get() *Metrics {
	return m
}
