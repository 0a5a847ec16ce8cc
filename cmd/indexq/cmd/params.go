package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/G-Research/indexq/internal/common"
	"github.com/G-Research/indexq/internal/indexqctl"
)

const (
	configFlag = "config"
	rootFlag   = "root"
	nameFlag   = "name"
	debugFlag  = "debug"

	// Directory searched for config.yaml before any --config files are merged
	defaultConfigPath = "./config/indexq"
)

func addConfigFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringSlice(configFlag, []string{}, "Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	cmd.PersistentFlags().String(rootFlag, "", "Directory holding the queues")
	cmd.PersistentFlags().String(nameFlag, "", "Name of the queue")
	cmd.PersistentFlags().Bool(debugFlag, false, "Log at debug level")
}

// initParams loads configuration files into the app parameters and applies any flags the user set.
func initParams(cmd *cobra.Command, params *indexqctl.Params) error {
	flags := cmd.Flags()
	configPaths, err := flags.GetStringSlice(configFlag)
	if err != nil {
		return err
	}
	if _, err := common.LoadConfig(&params.Config, defaultConfigPath, configPaths); err != nil {
		return err
	}

	if err := applyFlagOverrides(flags, params); err != nil {
		return err
	}
	common.SetDebug(params.Config.Debug)
	return nil
}

// applyFlagOverrides copies flags the user set explicitly over the loaded configuration.
func applyFlagOverrides(flags *pflag.FlagSet, params *indexqctl.Params) error {
	var err error
	if flags.Changed(rootFlag) {
		if params.Config.Root, err = flags.GetString(rootFlag); err != nil {
			return err
		}
	}
	if flags.Changed(nameFlag) {
		if params.Config.Name, err = flags.GetString(nameFlag); err != nil {
			return err
		}
	}
	if flags.Changed(debugFlag) {
		if params.Config.Debug, err = flags.GetBool(debugFlag); err != nil {
			return err
		}
	}
	return nil
}
