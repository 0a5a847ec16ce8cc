// Package sink defines the contract between the dispatcher and whatever durably ingests batches downstream.
package sink

import (
	"github.com/pkg/errors"

	"github.com/G-Research/indexq/internal/common/indexqcontext"
	"github.com/G-Research/indexq/internal/common/indexqerrors"
	"github.com/G-Research/indexq/internal/indexq/model"
)

// Batch is the unit handed to a Sink.
type Batch struct {
	// Pending batch file the data came from.
	Path string
	// Set when the dispatcher has already parsed the file, e.g. a single destination partition.
	// Nil means the whole file at Path should be ingested.
	Records []model.Record
}

// Sink ingests a batch for a destination. Returning false with a nil error declines the batch, which then
// stays pending. Errors should be wrapped with Permanent or Transient; unclassified errors are treated as
// transient.
type Sink interface {
	Send(ctx *indexqcontext.Context, destination string, batch Batch) (bool, error)
}

// Func adapts a function to the Sink interface.
type Func func(ctx *indexqcontext.Context, destination string, batch Batch) (bool, error)

func (f Func) Send(ctx *indexqcontext.Context, destination string, batch Batch) (bool, error) {
	return f(ctx, destination, batch)
}

// Permanent marks err as a failure that resending the same data will not fix.
func Permanent(err error) error {
	return errors.WithStack(&indexqerrors.ErrSinkRejected{Cause: err})
}

// Transient marks err as a failure that may succeed on a later run.
func Transient(err error) error {
	return errors.WithStack(&indexqerrors.ErrSinkTransient{Cause: err})
}

// Classify returns err as a typed sink error carrying destination and path. Errors that are not already
// classified become transient.
func Classify(err error, destination string, path string) error {
	if err == nil {
		return nil
	}
	{
		var e *indexqerrors.ErrSinkRejected
		if errors.As(err, &e) {
			fill(&e.Destination, &e.Path, destination, path)
			return err
		}
	}
	{
		var e *indexqerrors.ErrSinkTransient
		if errors.As(err, &e) {
			fill(&e.Destination, &e.Path, destination, path)
			return err
		}
	}
	return errors.WithStack(&indexqerrors.ErrSinkTransient{Destination: destination, Path: path, Cause: err})
}

func fill(dstDestination *string, dstPath *string, destination string, path string) {
	if *dstDestination == "" {
		*dstDestination = destination
	}
	if *dstPath == "" {
		*dstPath = path
	}
}
