package logging

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const StacktraceField = "stacktrace"

// Implemented by errors created with github.com/pkg/errors.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

type causer interface {
	Cause() error
}

// WithStacktrace adds err to entry, together with the innermost pkg/errors stack trace found in its cause chain.
func WithStacktrace(entry *logrus.Entry, err error) *logrus.Entry {
	entry = entry.WithError(err)
	if stack := ExtractStack(err); stack != nil {
		entry = entry.WithField(StacktraceField, stack)
	}
	return entry
}

// ExtractStack returns the first stack trace recorded along err's cause chain, or nil.
func ExtractStack(err error) errors.StackTrace {
	for err != nil {
		if st, ok := err.(stackTracer); ok {
			return st.StackTrace()
		}
		c, ok := err.(causer)
		if !ok {
			return nil
		}
		err = c.Cause()
	}
	return nil
}
