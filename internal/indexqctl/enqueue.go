package indexqctl

import (
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/indexq/internal/common/indexqcontext"
	"github.com/G-Research/indexq/internal/common/indexqerrors"
	"github.com/G-Research/indexq/internal/indexq/model"
)

// Enqueue reads records from JSON files and adds them to the queue. Each file holds either a single object
// or an array of objects. Files are parsed concurrently and funnelled through one bridge, which flushes
// everything before Enqueue returns.
func (a *App) Enqueue(ctx *indexqcontext.Context, paths []string) error {
	q, err := a.openQueue()
	if err != nil {
		return err
	}
	c := a.Params.Config
	b := q.GetMultiQueue(c.BridgeCapacity, c.BridgeIdleWait)

	var total int64
	g, _ := indexqcontext.ErrGroup(ctx, c.Concurrency)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			records, err := readRecordFile(path)
			if err != nil {
				return err
			}
			for _, record := range records {
				if err := b.Put(record); err != nil {
					return err
				}
			}
			atomic.AddInt64(&total, int64(len(records)))
			log.Debugf("Queued %d records from %s", len(records), path)
			return nil
		})
	}
	readErr := g.Wait()
	// Whatever was handed over is flushed even if some files failed to parse
	if err := b.Close(); err != nil {
		return errors.WithMessage(err, "flushing queued records")
	}
	if readErr != nil {
		return readErr
	}
	a.printf("Queued %d records from %d files into %s\n", total, len(paths), q.Name())
	return nil
}

func readRecordFile(path string) ([]model.Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var parsed interface{}
	if err := model.DecodeJSON(b, &parsed); err != nil {
		return nil, errors.WithMessagef(err, "parsing %s", path)
	}
	switch v := parsed.(type) {
	case map[string]interface{}:
		return []model.Record{v}, nil
	case []interface{}:
		records := make([]model.Record, 0, len(v))
		for _, item := range v {
			record, ok := item.(map[string]interface{})
			if !ok {
				return nil, errors.WithStack(&indexqerrors.ErrInvalidInput{
					Name:    path,
					Value:   item,
					Message: "every element must be a JSON object",
				})
			}
			records = append(records, record)
		}
		return records, nil
	default:
		return nil, errors.WithStack(&indexqerrors.ErrInvalidInput{
			Name:    path,
			Value:   v,
			Message: "expected a JSON object or an array of objects",
		})
	}
}
