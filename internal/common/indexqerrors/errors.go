// Package indexqerrors contains the errors returned by the queue, its consumers and the dispatcher.
// Callers should look for the error types defined in this file with errors.As, or use KindFromError
// to classify an arbitrary error chain.
//
// If multiple errors occur in some function (e.g., several destination partitions fail), that
// function returns an error of type multierror.Error from package
// github.com/hashicorp/go-multierror that encapsulates those individual errors.
package indexqerrors

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Kind classifies an error for operator triage.
type Kind string

const (
	KindUnknown         Kind = "unknown"
	KindInvalidInput    Kind = "invalid_input"
	KindAlreadyLocked   Kind = "already_locked"
	KindNotFound        Kind = "not_found"
	KindFlushFailure    Kind = "flush_failure"
	KindSinkRejected    Kind = "sink_rejected"
	KindSinkTransient   Kind = "sink_transient"
	KindRotationFailure Kind = "rotation_failure"
)

// ErrInvalidInput is returned when an argument passed to the queue is malformed.
type ErrInvalidInput struct {
	Name    string      // Name of the argument, e.g., "item"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidInput) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value of type %T is invalid for %q", err.Value, err.Name)
	} else {
		return fmt.Sprintf("value of type %T is invalid for %q; %s", err.Value, err.Name, err.Message)
	}
}

// ErrAlreadyLocked is returned when a consumer tries to dequeue while another live process holds the lock.
type ErrAlreadyLocked struct {
	Path string // Lock file path
	Pid  int    // Holder recorded in the lock file, 0 if unreadable
}

func (err *ErrAlreadyLocked) Error() string {
	if err.Pid > 0 {
		return fmt.Sprintf("queue lock %q is held by process %d", err.Path, err.Pid)
	}
	return fmt.Sprintf("queue lock %q is held", err.Path)
}

// ErrNotFound is returned whenever a batch file isn't found.
type ErrNotFound struct {
	Path    string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	s = fmt.Sprintf("batch file %q does not exist", err.Path)
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	} else {
		return s
	}
}

// ErrFlushFailure is returned when the buffer could not be persisted. The buffer keeps its contents.
type ErrFlushFailure struct {
	Records int
	Cause   error
}

func (err *ErrFlushFailure) Error() string {
	return fmt.Sprintf("failed to flush %d buffered records: %s", err.Records, err.Cause)
}

func (err *ErrFlushFailure) Unwrap() error { return err.Cause }

// ErrSinkRejected is a permanent ingestion failure; retrying the same payload will not help.
type ErrSinkRejected struct {
	Destination string
	Path        string
	Cause       error
}

func (err *ErrSinkRejected) Error() string {
	return fmt.Sprintf("sink rejected %q for destination %q: %s", err.Path, err.Destination, causeString(err.Cause))
}

func (err *ErrSinkRejected) Unwrap() error { return err.Cause }

// ErrSinkTransient is a recoverable ingestion failure; the file stays pending and the run may be repeated.
type ErrSinkTransient struct {
	Destination string
	Path        string
	Cause       error
}

func (err *ErrSinkTransient) Error() string {
	return fmt.Sprintf("transient sink failure for %q on destination %q: %s", err.Path, err.Destination, causeString(err.Cause))
}

func (err *ErrSinkTransient) Unwrap() error { return err.Cause }

// ErrRotationFailure is returned when the caller supplied rotation function fails.
type ErrRotationFailure struct {
	Path  string
	Cause error
}

func (err *ErrRotationFailure) Error() string {
	return fmt.Sprintf("rotation failed for %q: %s", err.Path, causeString(err.Cause))
}

func (err *ErrRotationFailure) Unwrap() error { return err.Cause }

func causeString(err error) string {
	if err == nil {
		return "no cause given"
	}
	return err.Error()
}

// KindFromError maps error types to a Kind.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
// For a multierror the first classifiable error wins, with permanent sink failures taking precedence over transient ones.
func KindFromError(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var merr *multierror.Error
	if errors.As(err, &merr) {
		kind := KindUnknown
		for _, e := range merr.Errors {
			switch k := KindFromError(e); {
			case k == KindSinkRejected:
				return k
			case kind == KindUnknown:
				kind = k
			}
		}
		return kind
	}

	// Using {} scopes just to re-use the "e" variable name for each case.
	{
		var e *ErrInvalidInput
		if errors.As(err, &e) {
			return KindInvalidInput
		}
	}
	{
		var e *ErrAlreadyLocked
		if errors.As(err, &e) {
			return KindAlreadyLocked
		}
	}
	{
		var e *ErrNotFound
		if errors.As(err, &e) {
			return KindNotFound
		}
	}
	{
		var e *ErrFlushFailure
		if errors.As(err, &e) {
			return KindFlushFailure
		}
	}
	{
		var e *ErrSinkRejected
		if errors.As(err, &e) {
			return KindSinkRejected
		}
	}
	{
		var e *ErrSinkTransient
		if errors.As(err, &e) {
			return KindSinkTransient
		}
	}
	{
		var e *ErrRotationFailure
		if errors.As(err, &e) {
			return KindRotationFailure
		}
	}

	return KindUnknown
}

// IsTransient reports whether a dispatch run that failed with err can be safely repeated as is.
func IsTransient(err error) bool {
	return KindFromError(err) == KindSinkTransient
}
