package configuration

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"k8s.io/apimachinery/pkg/api/resource"
)

type QueueConfiguration struct {
	// Directory holding every queue. A leading ~ is expanded to the user's home directory
	Root string `validate:"required"`
	// Queue name, used as the directory and file name prefix
	Name string `validate:"required,excludesall=/\\"`
	// Gzip batch files when they are written
	Compress bool
	// Gzip batch files when they are moved to done
	CompressOnComplete bool
	// In-memory buffer capacity, e.g. "1M". Zero writes every add straight to disk
	BufferSize resource.Quantity
	// Fraction of BufferSize above which the buffer is written out
	FillRatio float64 `validate:"gt=0,lte=1"`
	// Number of files dispatched concurrently. One dispatches sequentially
	Concurrency int `validate:"gte=1"`
	// Capacity of the channel between producers and the bridge consumer
	BridgeCapacity int `validate:"gte=0"`
	// How long the bridge consumer waits on an empty channel before checking for the stop sentinel again
	BridgeIdleWait time.Duration
	// Port the prometheus endpoint is served on. Zero disables it
	MetricsPort uint16
	// Pause between dispatch runs when draining continuously
	DrainInterval time.Duration
	// Log at debug level
	Debug bool
	Sink  SinkConfig
}

type SinkConfig struct {
	// Endpoint batches are POSTed to. {destination} is replaced with the destination key
	URL         string
	Timeout     time.Duration
	MaxAttempts uint `validate:"gte=1"`
	RetryDelay  time.Duration
}

// Default is the configuration used for anything not set in config files or flags.
func Default() QueueConfiguration {
	return QueueConfiguration{
		Root:           "queues",
		Name:           "default",
		BufferSize:     resource.MustParse("1M"),
		FillRatio:      0.90,
		Concurrency:    1,
		BridgeCapacity: 1000,
		BridgeIdleWait: 100 * time.Millisecond,
		DrainInterval:  30 * time.Second,
		Sink: SinkConfig{
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
			RetryDelay:  time.Second,
		},
	}
}

// BufferSizeBytes is the buffer capacity as a byte count.
func (c QueueConfiguration) BufferSizeBytes() int {
	return int(c.BufferSize.Value())
}

// RootDir returns Root with a leading ~ expanded.
func (c QueueConfiguration) RootDir() (string, error) {
	return homedir.Expand(c.Root)
}

func (c QueueConfiguration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}
