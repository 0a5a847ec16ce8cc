package buffer

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/indexq/internal/common/indexqerrors"
	"github.com/G-Research/indexq/internal/indexq/metrics"
	"github.com/G-Research/indexq/internal/indexq/model"
)

// DefaultFillRatio is the fraction of capacity above which the buffer is written out.
const DefaultFillRatio = 0.90

// Writer persists a serialised batch and returns the path it was written to.
type Writer interface {
	Write(content []byte) (string, error)
}

// FlushCallback is invoked with the path of every file written by Add. Its errors are logged, never returned.
type FlushCallback func(path string) error

// AddResult is the outcome of Add: either the path of a freshly written file, or the size estimate of
// the records still pending.
type AddResult struct {
	Path string
	Size int
}

// Flushed reports whether the call wrote a file.
func (r AddResult) Flushed() bool {
	return r.Path != ""
}

// Buffer accumulates records in memory and writes them out as one batch file once the estimated size
// crosses fillRatio * capacity, or when asked to finalize.
//
// The size estimate is the length of a crude string rendering of the added items, so thresholds are
// approximate.
type Buffer struct {
	lock      sync.Locker
	writer    Writer
	capacity  int
	fillRatio float64
	metrics   *metrics.Metrics

	pending []model.Record
	size    int
}

// New returns a Buffer that is safe for concurrent use. A capacity of zero or less is treated as one byte,
// so every non-empty Add writes a file.
func New(writer Writer, capacityBytes int, fillRatio float64, m *metrics.Metrics) *Buffer {
	return newBuffer(writer, capacityBytes, fillRatio, m, &sync.Mutex{})
}

// NewExclusive returns a Buffer without internal locking. It must be owned by a single goroutine.
func NewExclusive(writer Writer, capacityBytes int, fillRatio float64, m *metrics.Metrics) *Buffer {
	return newBuffer(writer, capacityBytes, fillRatio, m, noopLocker{})
}

func newBuffer(writer Writer, capacityBytes int, fillRatio float64, m *metrics.Metrics, lock sync.Locker) *Buffer {
	if capacityBytes < 1 {
		capacityBytes = 1
	}
	if fillRatio <= 0 {
		fillRatio = DefaultFillRatio
	}
	log.Debugf("Starting buffer with capacity of %d bytes", capacityBytes)
	return &Buffer{
		lock:      lock,
		writer:    writer,
		capacity:  capacityBytes,
		fillRatio: fillRatio,
		metrics:   m,
	}
}

// Add queues item, which may be a single record, a slice of records, or a pre-serialised string.
// Strings bypass the buffer and are written immediately. A nil item or an empty string adds nothing; with
// finalize set it flushes whatever is pending.
func (b *Buffer) Add(item interface{}, finalize bool, onFlush FlushCallback) (AddResult, error) {
	if s, ok := item.(string); ok {
		if s != "" {
			return b.passThrough(s, onFlush)
		}
		item = nil
	}

	records, err := toRecords(item)
	if err != nil {
		return AddResult{}, err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	if len(records) > 0 {
		b.pending = append(b.pending, records...)
		b.size += estimateSize(records)
		log.Debugf("Added %d records to buffer, new buffer size is %d", len(records), b.size)
	}

	thresholdReached := float64(b.size)/float64(b.capacity) > b.fillRatio
	if !thresholdReached && !(finalize && len(b.pending) > 0) {
		return AddResult{Size: b.size}, nil
	}

	trigger := metrics.FlushTriggerFinalize
	if thresholdReached {
		trigger = metrics.FlushTriggerThreshold
	}
	path, err := b.flush(trigger)
	if err != nil {
		return AddResult{Size: b.size}, err
	}
	notify(onFlush, path)
	return AddResult{Path: path}, nil
}

// Pending returns the number of buffered records.
func (b *Buffer) Pending() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.pending)
}

// Size returns the current size estimate of the buffered records.
func (b *Buffer) Size() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.size
}

// flush must be called with the lock held. On failure the pending records are kept.
func (b *Buffer) flush(trigger metrics.FlushTrigger) (string, error) {
	if trigger == metrics.FlushTriggerFinalize {
		log.Debugf("Finalize requested, writing out %d records", len(b.pending))
	} else {
		log.Debugf("Buffer filled, writing out %d records", len(b.pending))
	}

	content, err := model.MarshalRecords(b.pending)
	if err == nil {
		var path string
		path, err = b.writer.Write(content)
		if err == nil {
			b.metrics.RecordFlush(trigger, len(b.pending))
			b.pending = nil
			b.size = 0
			return path, nil
		}
	}
	b.metrics.RecordFlushError()
	return "", errors.WithStack(&indexqerrors.ErrFlushFailure{Records: len(b.pending), Cause: err})
}

func (b *Buffer) passThrough(content string, onFlush FlushCallback) (AddResult, error) {
	path, err := b.writer.Write([]byte(content))
	if err != nil {
		b.metrics.RecordFlushError()
		return AddResult{}, errors.WithStack(&indexqerrors.ErrFlushFailure{Cause: err})
	}
	b.metrics.RecordFlush(metrics.FlushTriggerPassThrough, 0)
	notify(onFlush, path)
	return AddResult{Path: path}, nil
}

func notify(onFlush FlushCallback, path string) {
	if onFlush == nil {
		return
	}
	if err := onFlush(path); err != nil {
		log.WithError(err).Warnf("Flush callback failed for %s", path)
	}
}

func toRecords(item interface{}) ([]model.Record, error) {
	switch v := item.(type) {
	case nil:
		return nil, nil
	case model.Record:
		if v == nil {
			return nil, errors.WithStack(&indexqerrors.ErrInvalidInput{Name: "item", Value: item, Message: "nil record"})
		}
		return []model.Record{v}, nil
	case []model.Record:
		for i, r := range v {
			if r == nil {
				return nil, errors.WithStack(&indexqerrors.ErrInvalidInput{
					Name:    "item",
					Value:   item,
					Message: fmt.Sprintf("element %d is a nil record", i),
				})
			}
		}
		return v, nil
	case []interface{}:
		records := make([]model.Record, len(v))
		for i, e := range v {
			r, ok := e.(model.Record)
			if !ok || r == nil {
				return nil, errors.WithStack(&indexqerrors.ErrInvalidInput{
					Name:    "item",
					Value:   item,
					Message: fmt.Sprintf("element %d is %T, all elements must be records", i, e),
				})
			}
			records[i] = r
		}
		return records, nil
	default:
		return nil, errors.WithStack(&indexqerrors.ErrInvalidInput{
			Name:    "item",
			Value:   item,
			Message: "expected a record, a list of records or a string",
		})
	}
}

// estimateSize is cheap and inexact; it is not the byte count of the final serialisation.
func estimateSize(records []model.Record) int {
	return len(fmt.Sprint(records))
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}
