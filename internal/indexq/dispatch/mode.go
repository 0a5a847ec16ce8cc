package dispatch

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/G-Research/indexq/internal/common/indexqcontext"
	"github.com/G-Research/indexq/internal/common/indexqerrors"
	"github.com/G-Research/indexq/internal/indexq/model"
	"github.com/G-Research/indexq/internal/indexq/sink"
)

// Mode decides how a pending file is handed to the sink. It is either WholeFile or Dynamic.
type Mode interface {
	// deliver sends the file at path and reports whether it may be completed.
	deliver(ctx *indexqcontext.Context, d *Dispatcher, path string) (bool, error)
}

// WholeFile sends each pending file to a single destination without parsing it.
type WholeFile struct {
	Destination string
}

func (m WholeFile) deliver(ctx *indexqcontext.Context, d *Dispatcher, path string) (bool, error) {
	return d.send(ctx, m.Destination, sink.Batch{Path: path})
}

// Resolver maps a record to the destination it belongs to.
type Resolver func(record model.Record) (string, error)

// Dynamic parses each pending file and sends one partition per destination. The file is completed only
// if every partition is accepted, so a retry resends partitions that already succeeded.
type Dynamic struct {
	Resolver Resolver
}

func (m Dynamic) deliver(ctx *indexqcontext.Context, d *Dispatcher, path string) (bool, error) {
	if m.Resolver == nil {
		return false, errors.WithStack(&indexqerrors.ErrInvalidInput{
			Name:    "Resolver",
			Value:   m.Resolver,
			Message: "dynamic dispatch needs a resolver",
		})
	}
	records, err := d.queue.ReadRecords(path)
	if err != nil {
		return false, err
	}

	partitions := make(map[string][]model.Record)
	for i, record := range records {
		destination, err := m.Resolver(record)
		if err != nil {
			return false, errors.WithMessagef(err, "resolving destination of record %d in %s", i, path)
		}
		partitions[destination] = append(partitions[destination], record)
	}

	destinations := maps.Keys(partitions)
	slices.Sort(destinations)
	ctx.Log.Debugf("Split %s into %d partitions", path, len(destinations))

	var result *multierror.Error
	accepted := true
	for _, destination := range destinations {
		ok, err := d.send(ctx, destination, sink.Batch{Path: path, Records: partitions[destination]})
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		accepted = accepted && ok
	}
	if err := result.ErrorOrNil(); err != nil {
		return false, err
	}
	return accepted, nil
}

// ByField resolves the destination from the value of a record field. Records without the field fail.
func ByField(field string) Resolver {
	return func(record model.Record) (string, error) {
		value, ok := record[field]
		if !ok || value == nil {
			return "", errors.Errorf("record has no %q field", field)
		}
		if s, ok := value.(string); ok {
			return s, nil
		}
		return fmt.Sprint(value), nil
	}
}
