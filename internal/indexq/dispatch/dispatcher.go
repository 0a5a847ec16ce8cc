// Package dispatch drains a queue into a sink, completing each file the sink accepts.
package dispatch

import (
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/G-Research/indexq/internal/common/indexqcontext"
	"github.com/G-Research/indexq/internal/common/indexqerrors"
	"github.com/G-Research/indexq/internal/common/logging"
	"github.com/G-Research/indexq/internal/indexq"
	"github.com/G-Research/indexq/internal/indexq/metrics"
	"github.com/G-Research/indexq/internal/indexq/sink"
)

type Options struct {
	// Files sent at once. Values below 2 dispatch sequentially, oldest first.
	Concurrency int
	// Passed to Complete for every accepted file.
	Rotate indexq.RotateFunc
	// Defaults to the process wide metrics.
	Metrics *metrics.Metrics
}

// Result summarises a dispatch run.
type Result struct {
	mu sync.Mutex
	// Paths of completed files, now under done
	Completed []string
	// Pending files the sink declined; they remain in todo
	Declined []string
}

func (r *Result) completed(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Completed = append(r.Completed, path)
}

func (r *Result) declined(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Declined = append(r.Declined, path)
}

type Dispatcher struct {
	queue       *indexq.Queue
	sink        sink.Sink
	concurrency int
	rotate      indexq.RotateFunc
	metrics     *metrics.Metrics
}

func New(queue *indexq.Queue, s sink.Sink, opts Options) *Dispatcher {
	m := opts.Metrics
	if m == nil {
		m = metrics.Get()
	}
	return &Dispatcher{
		queue:       queue,
		sink:        s,
		concurrency: opts.Concurrency,
		rotate:      opts.Rotate,
		metrics:     m,
	}
}

// Index locks the queue and offers every pending file to the sink. Accepted files are completed. Declined
// files stay in todo and the run carries on. Any error stops the run: files not yet completed stay in todo,
// the lock is released and the error is returned together with what was done so far.
//
// When running concurrently, files are completed in no particular order.
func (d *Dispatcher) Index(ctx *indexqcontext.Context, mode Mode) (*Result, error) {
	if mode == nil {
		return nil, errors.WithStack(&indexqerrors.ErrInvalidInput{Name: "mode", Message: "a dispatch mode is required"})
	}
	ctx = indexqcontext.WithLogFields(ctx, logrus.Fields{
		"queue":       d.queue.Name(),
		"dispatchRun": uuid.NewString(),
	})

	it, err := d.queue.GetTodoItems()
	if err != nil {
		return nil, err
	}
	ctx.Log.Infof("Dispatching %d pending files", it.Remaining())

	result := &Result{}
	if d.concurrency > 1 {
		err = d.parallel(ctx, it, mode, result)
	} else {
		err = d.sequential(ctx, it, mode, result)
	}
	if err != nil {
		if _, uerr := it.Release(); uerr != nil {
			ctx.Log.WithError(uerr).Warn("Failed to release queue lock after aborted dispatch")
		}
		logging.WithStacktrace(ctx.Log, err).Errorf(
			"Dispatch aborted after completing %d files; remaining files are left pending", len(result.Completed))
		return result, err
	}
	ctx.Log.Infof("Dispatch finished: %d completed, %d declined", len(result.Completed), len(result.Declined))
	return result, nil
}

func (d *Dispatcher) sequential(ctx *indexqcontext.Context, it *indexq.TodoIterator, mode Mode, result *Result) error {
	for path, ok := it.Next(); ok; path, ok = it.Next() {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		if err := d.process(ctx, mode, path, result); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) parallel(ctx *indexqcontext.Context, it *indexq.TodoIterator, mode Mode, result *Result) error {
	g, gctx := indexqcontext.ErrGroup(ctx, d.concurrency)
	// Next is only called while files remain; exhausting the iterator would drop the lock under running workers.
	for it.Remaining() > 0 && gctx.Err() == nil {
		path, _ := it.Next()
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil
			}
			return d.process(gctx, mode, path, result)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}
	_, _ = it.Next()
	return nil
}

func (d *Dispatcher) process(ctx *indexqcontext.Context, mode Mode, path string, result *Result) error {
	logger := ctx.Log.WithField("file", filepath.Base(path))
	accepted, err := mode.deliver(ctx, d, path)
	if err != nil {
		return err
	}
	if !accepted {
		logger.Warn("Sink declined file, leaving it pending")
		result.declined(path)
		return nil
	}
	dest, err := d.queue.Complete(path, d.rotate)
	if err != nil {
		return err
	}
	result.completed(dest)
	return nil
}

// send invokes the sink and records the outcome.
func (d *Dispatcher) send(ctx *indexqcontext.Context, destination string, batch sink.Batch) (bool, error) {
	ok, err := d.sink.Send(ctx, destination, batch)
	if err != nil {
		err = sink.Classify(err, destination, batch.Path)
		if indexqerrors.IsTransient(err) {
			d.metrics.RecordSinkCall(metrics.SinkOutcomeTransient)
		} else {
			d.metrics.RecordSinkCall(metrics.SinkOutcomeRejected)
		}
		return false, err
	}
	if !ok {
		d.metrics.RecordSinkCall(metrics.SinkOutcomeDeclined)
		return false, nil
	}
	d.metrics.RecordSinkCall(metrics.SinkOutcomeSuccess)
	return true, nil
}
