package cmd

import (
	"github.com/spf13/cobra"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "indexq",
		Short:        "indexq buffers records on local disk and drains them to a sink in batches.",
		SilenceUsage: true,
	}

	addConfigFlags(cmd)

	cmd.AddCommand(
		enqueueCmd(),
		drainCmd(),
		statusCmd(),
		unlockCmd(),
		versionCmd(),
	)

	return cmd
}
