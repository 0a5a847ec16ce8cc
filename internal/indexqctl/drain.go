package indexqctl

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/weaveworks/promrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/indexq/internal/common"
	"github.com/G-Research/indexq/internal/common/indexqcontext"
	"github.com/G-Research/indexq/internal/common/indexqerrors"
	"github.com/G-Research/indexq/internal/common/logging"
	"github.com/G-Research/indexq/internal/common/task"
	"github.com/G-Research/indexq/internal/indexq"
	"github.com/G-Research/indexq/internal/indexq/dispatch"
	"github.com/G-Research/indexq/internal/indexq/metrics"
)

type DrainOptions struct {
	// Destination for whole file mode. Defaults to the queue name.
	Destination string
	// Partition records by this field and send each partition to the destination it names.
	DynamicField string
	// Move completed files into a done/YYYY-MM-DD subdirectory.
	RotateByDate bool
	// Repeat the drain at this interval until ctx is cancelled. Zero drains once.
	Interval time.Duration
}

// Drain dispatches the pending files of the queue to the sink.
func (a *App) Drain(ctx *indexqcontext.Context, opts DrainOptions) error {
	q, err := a.openQueue()
	if err != nil {
		return err
	}
	s, err := a.sink(q)
	if err != nil {
		return err
	}
	c := a.Params.Config

	dispatchOpts := dispatch.Options{Concurrency: c.Concurrency, Metrics: a.Params.Metrics}
	if opts.RotateByDate {
		dispatchOpts.Rotate = indexq.RotateByDate(clock.RealClock{})
	}
	d := dispatch.New(q, s, dispatchOpts)

	var mode dispatch.Mode = dispatch.WholeFile{Destination: q.Name()}
	if opts.Destination != "" {
		mode = dispatch.WholeFile{Destination: opts.Destination}
	}
	if opts.DynamicField != "" {
		mode = dispatch.Dynamic{Resolver: dispatch.ByField(opts.DynamicField)}
	}

	if c.MetricsPort > 0 {
		log.AddHook(promrus.MustNewPrometheusHook())
		shutdownMetricServer := common.ServeMetrics(c.MetricsPort)
		defer shutdownMetricServer()
	}

	if opts.Interval <= 0 {
		return a.drainOnce(ctx, d, mode)
	}

	taskManager := task.NewBackgroundTaskManager(metrics.IndexQMetricsPrefix, prometheus.DefaultRegisterer)
	taskManager.Register(func() {
		err := a.drainOnce(ctx, d, mode)
		if err != nil && ctx.Err() == nil {
			logging.WithStacktrace(ctx.Log, err).Warnf("Drain failed (%s), will retry in %s", indexqerrors.KindFromError(err), opts.Interval)
		}
	}, opts.Interval, "drain")
	<-ctx.Done()
	ctx.Log.Info("Stopping drain")
	if taskManager.StopAll(time.Minute) {
		ctx.Log.Warn("Timed out waiting for the last drain to finish")
	}
	return nil
}

func (a *App) drainOnce(ctx *indexqcontext.Context, d *dispatch.Dispatcher, mode dispatch.Mode) error {
	result, err := d.Index(ctx, mode)
	if result != nil {
		a.printf("Completed %d files, %d declined\n", len(result.Completed), len(result.Declined))
	}
	return err
}
