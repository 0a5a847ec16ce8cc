package common

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	commonconfig "github.com/G-Research/indexq/internal/common/config"
)

const baseConfigFileName = "config"

// EnvPrefix is prepended to environment variables that override configuration, e.g. INDEXQ_SINK_URL.
const EnvPrefix = "INDEXQ"

// LoadConfig reads config.yaml from defaultPath, if present, then merges each of userSpecifiedConfigs over it
// and unmarshals the result into config. Fields not mentioned in any file keep the value already in config.
func LoadConfig(config interface{}, defaultPath string, userSpecifiedConfigs []string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(baseConfigFileName)
	v.AddConfigPath(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.WithMessagef(err, "reading base config from %s", defaultPath)
		}
		log.Debugf("No base config found in %s", defaultPath)
	} else {
		log.Infof("Read base config from %s", v.ConfigFileUsed())
	}

	for _, configPath := range userSpecifiedConfigs {
		v.SetConfigFile(configPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.WithMessagef(err, "merging config from %s", configPath)
		}
		log.Infof("Merged config from %s", configPath)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.Unmarshal(config, commonconfig.CustomHooks...); err != nil {
		return nil, errors.WithStack(err)
	}
	return v, nil
}

func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
}

// ConfigureCommandLineLogging keeps CLI output terse; the command's own results go to stdout.
func ConfigureCommandLineLogging() {
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true, DisableLevelTruncation: true})
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
}

// SetDebug raises the standard logger to debug level when debug is set.
func SetDebug(debug bool) {
	if debug {
		log.SetLevel(log.DebugLevel)
	}
}
