package compress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressAndDecompressGiveOriginalValue(t *testing.T) {
	compressor, err := NewGzipCompressor(0)
	require.NoError(t, err)
	decompressor := NewGzipDecompressor()

	input := []byte(`[{"id":"1"},{"id":"2"}]`)

	compressed, err := compressor.Compress(input)
	require.NoError(t, err)
	assert.NotEqual(t, input, compressed)

	decompressed, err := decompressor.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, input, decompressed)
}

func TestCompressStream(t *testing.T) {
	compressor, err := NewGzipCompressor(9)
	require.NoError(t, err)

	var out bytes.Buffer
	n, err := compressor.CompressStream(&out, strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	decompressed, err := NewGzipDecompressor().Decompress(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(decompressed))
}

func TestNewGzipCompressor_InvalidLevel(t *testing.T) {
	_, err := NewGzipCompressor(42)
	assert.Error(t, err)
}

func TestDecompress_NotGzip(t *testing.T) {
	_, err := NewGzipDecompressor().Decompress([]byte("plain"))
	assert.Error(t, err)
}

func TestDecompressorFor(t *testing.T) {
	tests := map[string]struct {
		name     string
		expected Decompressor
	}{
		"gzip":  {"q_2022-1-2-3-4-5-6.json.gz", NewGzipDecompressor()},
		"plain": {"q_2022-1-2-3-4-5-6.json", &NoOpDecompressor{}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, DecompressorFor(tc.name))
		})
	}
}

func TestNoOp(t *testing.T) {
	c := &NoOpCompressor{}
	b, err := c.Compress([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), b)
	assert.Equal(t, "", c.Extension())
}
