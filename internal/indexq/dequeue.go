package indexq

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/indexq/internal/common/indexqerrors"
)

// TodoIterator yields pending batch files one at a time, oldest first. It holds the queue lock until
// Next reports exhaustion or Release is called; abandoning it early leaves the lock held.
type TodoIterator struct {
	queue    *Queue
	paths    []string
	pos      int
	released bool
}

// GetTodoItems locks the queue and returns an iterator over the files currently in todo.
// It fails with ErrAlreadyLocked if another live consumer holds the lock.
func (q *Queue) GetTodoItems() (*TodoIterator, error) {
	acquired, err := q.lock.Acquire()
	if err != nil {
		return nil, err
	}
	if !acquired {
		q.metrics.RecordLockConflict()
		holder, _ := q.lock.Holder()
		return nil, errors.WithStack(&indexqerrors.ErrAlreadyLocked{Path: q.lock.Path(), Pid: holder})
	}

	paths, err := q.store.List(q.store.TodoDir())
	if err != nil {
		// Nothing was handed out, so nobody else can release this lock for us.
		if _, uerr := q.lock.Release(); uerr != nil {
			log.WithError(uerr).Warn("Failed to release queue lock after listing error")
		}
		return nil, err
	}
	log.Debugf("Found %d pending files in %s", len(paths), q.store.TodoDir())
	return &TodoIterator{queue: q, paths: paths}, nil
}

// Next returns the next pending path. When the sequence is exhausted it releases the lock and returns false.
func (it *TodoIterator) Next() (string, bool) {
	if it.pos < len(it.paths) {
		path := it.paths[it.pos]
		it.pos++
		return path, true
	}
	if _, err := it.Release(); err != nil {
		log.WithError(err).Warn("Failed to release queue lock at end of iteration")
	}
	return "", false
}

// Remaining is the number of paths not yet returned by Next.
func (it *TodoIterator) Remaining() int {
	return len(it.paths) - it.pos
}

// Release gives up the queue lock. Subsequent calls do nothing.
func (it *TodoIterator) Release() (bool, error) {
	if it.released {
		return true, nil
	}
	released, err := it.queue.lock.Release()
	if err == nil {
		it.released = true
	}
	return released, err
}
