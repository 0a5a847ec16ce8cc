package compress

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/pkg/errors"
)

// Compressor is a fast, single threaded compressor.
type Compressor interface {
	// Compress compresses the byte array
	Compress(b []byte) ([]byte, error)
	// Extension is the filename suffix of data produced by this compressor, e.g. ".gz"
	Extension() string
}

// NoOpCompressor is a Compressor that does nothing.
type NoOpCompressor struct{}

func (c *NoOpCompressor) Compress(b []byte) ([]byte, error) {
	return b, nil
}

func (c *NoOpCompressor) Extension() string {
	return ""
}

// GzipCompressor compresses to gzip
type GzipCompressor struct {
	level int
}

func NewGzipCompressor(level int) (*GzipCompressor, error) {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return nil, errors.Errorf("invalid gzip compression level %d", level)
	}
	return &GzipCompressor{level: level}, nil
}

func (c *GzipCompressor) Compress(b []byte) ([]byte, error) {
	var out bytes.Buffer
	if _, err := c.CompressStream(&out, bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// CompressStream copies src into dst through a gzip writer, returning the number of uncompressed bytes read.
func (c *GzipCompressor) CompressStream(dst io.Writer, src io.Reader) (int64, error) {
	w, err := gzip.NewWriterLevel(dst, c.level)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := io.Copy(w, src)
	if err != nil {
		_ = w.Close()
		return n, errors.WithStack(err)
	}
	if err := w.Close(); err != nil {
		return n, errors.WithStack(err)
	}
	return n, nil
}

func (c *GzipCompressor) Extension() string {
	return GzipExtension
}
