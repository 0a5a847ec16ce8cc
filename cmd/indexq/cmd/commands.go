package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/indexq/internal/common/app"
	"github.com/G-Research/indexq/internal/common/indexqcontext"
	"github.com/G-Research/indexq/internal/indexqctl"
)

func enqueueCmd() *cobra.Command {
	a := indexqctl.New()
	cmd := &cobra.Command{
		Use:   "enqueue <file.json>...",
		Short: "Add the records in JSON files to the queue",
		Long: `Each file holds a JSON object or an array of JSON objects. Records are buffered and written
to the queue's todo directory in batches; everything is flushed before the command exits.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Enqueue(indexqcontext.Background(), args)
		},
	}
	return cmd
}

func drainCmd() *cobra.Command {
	a := indexqctl.New()
	opts := indexqctl.DrainOptions{}
	var watch bool
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Send pending files to the configured sink",
		Long: `Locks the queue and sends every pending file to the sink, moving accepted files to done.
With --dynamic-field, records are grouped by the value of that field and each group is sent
to the destination it names; a file is only completed once every group has been accepted.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initParams(cmd, a.Params); err != nil {
				return err
			}
			if watch && !cmd.Flags().Changed("interval") {
				opts.Interval = a.Params.Config.DrainInterval
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Drain(app.CreateContextWithShutdown(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.Destination, "destination", "", "Destination for whole file mode (defaults to the queue name)")
	cmd.Flags().StringVar(&opts.DynamicField, "dynamic-field", "", "Partition records by this field and send each partition to the destination it names")
	cmd.Flags().BoolVar(&opts.RotateByDate, "rotate-by-date", false, "Move completed files into a dated subdirectory of done")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "Keep draining at this interval until interrupted")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep draining at the configured drainInterval until interrupted")
	return cmd
}

func statusCmd() *cobra.Command {
	a := indexqctl.New()
	var records bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending and completed file counts and the lock holder",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Status(records)
		},
	}
	cmd.Flags().BoolVar(&records, "records", false, "Also count pending records (reads every pending file)")
	return cmd
}

func unlockCmd() *cobra.Command {
	a := indexqctl.New()
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Remove the queue lock, whoever holds it",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Unlock()
		},
	}
	return cmd
}

func versionCmd() *cobra.Command {
	a := indexqctl.New()
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print client version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Version()
		},
	}
	return cmd
}
