// Package indexqctl contains the logic behind the indexq command line.
package indexqctl

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/G-Research/indexq/internal/common/config"
	"github.com/G-Research/indexq/internal/indexq"
	"github.com/G-Research/indexq/internal/indexq/configuration"
	"github.com/G-Research/indexq/internal/indexq/lock"
	"github.com/G-Research/indexq/internal/indexq/metrics"
	"github.com/G-Research/indexq/internal/indexq/sink"
)

// App encapsulates command-line interface business logic.
type App struct {
	// Parameters passed to the CLI by the user.
	Params *Params
	// Out is the writer results are printed to. Logging goes elsewhere.
	Out io.Writer
}

// Params struct holds all user-customizable parameters.
// Using a single struct for all CLI commands simplifies the interface between cobra and the app.
type Params struct {
	Config configuration.QueueConfiguration
	// Delivers batches during drain. Nil means POST to Config.Sink.URL.
	Sink sink.Sink
	// Nil uses the process wide metrics.
	Metrics *metrics.Metrics
}

// New instantiates an App with default parameters, including standard output.
func New() *App {
	return &App{
		Params: &Params{Config: configuration.Default()},
		Out:    os.Stdout,
	}
}

// validate checks the configuration, logging each invalid field.
func (a *App) validate() error {
	if err := a.Params.Config.Validate(); err != nil {
		return errors.WithMessage(config.LogValidationErrors(err), "invalid configuration")
	}
	return nil
}

func (a *App) openQueue() (*indexq.Queue, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	c := a.Params.Config
	root, err := c.RootDir()
	if err != nil {
		return nil, errors.WithMessagef(err, "resolving queue root %s", c.Root)
	}
	return indexq.New(root, c.Name, indexq.Options{
		Compress:           c.Compress,
		CompressOnComplete: c.CompressOnComplete,
		BufferSizeBytes:    c.BufferSizeBytes(),
		FillRatio:          c.FillRatio,
		Liveness:           lock.UnixLivenessChecker{},
		Metrics:            a.Params.Metrics,
	})
}

func (a *App) sink(q *indexq.Queue) (sink.Sink, error) {
	if a.Params.Sink != nil {
		return a.Params.Sink, nil
	}
	if a.Params.Config.Sink.URL == "" {
		return nil, errors.New("no sink configured; set sink.url")
	}
	return sink.NewHTTPSink(a.Params.Config.Sink, q), nil
}

func (a *App) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.Out, format, args...)
}
