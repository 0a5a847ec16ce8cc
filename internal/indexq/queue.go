// Package indexq buffers records on local disk and hands them to a consumer in durable batches.
//
// Each queue is laid out as
//
//	{root}/{name}/todo/
//	{root}/{name}/done/
//	{root}/{name}/index.lock
//
// Producers Add records, which are buffered in memory and written to todo as batch files. A single
// consumer (guarded by the lock file) walks todo with GetTodoItems and moves each processed file to done
// with Complete.
package indexq

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/indexq/internal/common/indexqerrors"
	"github.com/G-Research/indexq/internal/indexq/buffer"
	"github.com/G-Research/indexq/internal/indexq/lock"
	"github.com/G-Research/indexq/internal/indexq/metrics"
	"github.com/G-Research/indexq/internal/indexq/model"
	"github.com/G-Research/indexq/internal/indexq/queuestore"
)

// Options configures a Queue. The zero value gives an uncompressed queue that writes every Add immediately.
type Options struct {
	// Compress batch files as they are written to todo.
	Compress bool
	// Compress batch files as they are moved to done.
	CompressOnComplete bool
	// Buffer capacity in bytes. Zero writes every Add straight to disk.
	BufferSizeBytes int
	// Fraction of BufferSizeBytes above which the buffer is written out. Defaults to 0.90.
	FillRatio float64
	// Used to detect stale locks. Nil means any existing lock file blocks.
	Liveness lock.ProcessLivenessChecker
	// Defaults to the process wide metrics.
	Metrics *metrics.Metrics
}

// DefaultOptions returns options with stale lock detection enabled.
func DefaultOptions() Options {
	return Options{
		FillRatio: buffer.DefaultFillRatio,
		Liveness:  lock.UnixLivenessChecker{},
	}
}

type Queue struct {
	store              *queuestore.Store
	buffer             *buffer.Buffer
	lock               *lock.Lock
	bufferSize         int
	compressOnComplete bool
	fillRatio          float64
	metrics            *metrics.Metrics
}

// New opens (creating if necessary) the queue called name under root.
func New(root string, name string, opts Options) (*Queue, error) {
	store, err := queuestore.New(root, name, opts.Compress)
	if err != nil {
		return nil, err
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Get()
	}
	log.Infof("Opening queue %s", name)
	return &Queue{
		store:              store,
		buffer:             buffer.New(store, opts.BufferSizeBytes, opts.FillRatio, m),
		lock:               lock.New(store.LockPath(), opts.Liveness),
		bufferSize:         opts.BufferSizeBytes,
		compressOnComplete: opts.CompressOnComplete,
		fillRatio:          opts.FillRatio,
		metrics:            m,
	}, nil
}

func (q *Queue) Name() string { return q.store.Name() }

// Store exposes the on-disk layout.
func (q *Queue) Store() *queuestore.Store { return q.store }

// Add queues a record, a slice of records or a pre-serialised JSON string. See buffer.Buffer.Add.
func (q *Queue) Add(item interface{}, finalize bool, onFlush buffer.FlushCallback) (buffer.AddResult, error) {
	return q.buffer.Add(item, finalize, onFlush)
}

// Flush writes out any buffered records.
func (q *Queue) Flush() (buffer.AddResult, error) {
	return q.buffer.Add(nil, true, nil)
}

// Read returns the uncompressed JSON content of a batch file.
func (q *Queue) Read(path string) ([]byte, error) {
	return q.store.Read(path)
}

// ReadRecords reads and parses a batch file belonging to this queue.
func (q *Queue) ReadRecords(path string) ([]model.Record, error) {
	return q.store.ReadRecords(path)
}

// GetAllAsList lists the batch files in todo or done, oldest first, without taking the lock.
func (q *Queue) GetAllAsList(dir string) ([]string, error) {
	path, err := q.dirPath(dir)
	if err != nil {
		return nil, err
	}
	return q.store.List(path)
}

// GetAllJSON returns every record stored in todo or done, in file order.
func (q *Queue) GetAllJSON(dir string) ([]model.Record, error) {
	paths, err := q.GetAllAsList(dir)
	if err != nil {
		return nil, err
	}
	var all []model.Record
	for _, path := range paths {
		records, err := q.store.ReadRecords(path)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}

// IsLocked reports whether a live consumer holds the queue lock.
func (q *Queue) IsLocked() (bool, error) {
	return q.lock.IsLocked()
}

// LockHolder returns the process id recorded in the lock file.
func (q *Queue) LockHolder() (int, error) {
	return q.lock.Holder()
}

// Unlock releases the queue lock. Unlocking an unlocked queue succeeds.
func (q *Queue) Unlock() (bool, error) {
	return q.lock.Release()
}

func (q *Queue) dirPath(dir string) (string, error) {
	switch dir {
	case queuestore.TodoDir:
		return q.store.TodoDir(), nil
	case queuestore.DoneDir:
		return q.store.DoneDir(), nil
	default:
		return "", errors.WithStack(&indexqerrors.ErrInvalidInput{
			Name:    "dir",
			Value:   dir,
			Message: "must be todo or done",
		})
	}
}
