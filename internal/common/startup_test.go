package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/indexq/internal/indexq/configuration"
)

func writeConfig(t *testing.T, dir string, name string, content string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `
name: products
bufferSize: 2Mi
bridgeIdleWait: 250ms
sink:
  url: http://localhost:8983/{destination}/update
`)
	override := writeConfig(t, dir, "override.yaml", `
concurrency: 4
sink:
  maxAttempts: 5
`)

	config := configuration.Default()
	_, err := LoadConfig(&config, dir, []string{override})
	require.NoError(t, err)

	assert.Equal(t, "products", config.Name)
	assert.Equal(t, 2*1024*1024, config.BufferSizeBytes())
	assert.Equal(t, 250*time.Millisecond, config.BridgeIdleWait)
	assert.Equal(t, 4, config.Concurrency)
	assert.Equal(t, "http://localhost:8983/{destination}/update", config.Sink.URL)
	assert.Equal(t, uint(5), config.Sink.MaxAttempts)
	// Untouched fields keep their defaults
	assert.Equal(t, 0.90, config.FillRatio)
	assert.Equal(t, 30*time.Second, config.Sink.Timeout)
}

func TestLoadConfig_NoBaseConfig(t *testing.T) {
	config := configuration.Default()
	_, err := LoadConfig(&config, t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, configuration.Default().Name, config.Name)
}

func TestLoadConfig_MissingOverride(t *testing.T) {
	config := configuration.Default()
	_, err := LoadConfig(&config, t.TempDir(), []string{"/does/not/exist.yaml"})
	assert.Error(t, err)
}

func TestLoadConfig_InvalidQuantity(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "bufferSize: lots\n")
	config := configuration.Default()
	_, err := LoadConfig(&config, dir, nil)
	assert.Error(t, err)
}
