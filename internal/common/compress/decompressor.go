package compress

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const GzipExtension = ".gz"

// Decompressor is a fast, single threaded decompressor.
type Decompressor interface {
	// Decompress decompresses the byte array
	Decompress(b []byte) ([]byte, error)
}

// NoOpDecompressor is a Decompressor that does nothing.
type NoOpDecompressor struct{}

func (c *NoOpDecompressor) Decompress(b []byte) ([]byte, error) {
	return b, nil
}

// GzipDecompressor decompresses gzip
type GzipDecompressor struct{}

func NewGzipDecompressor() *GzipDecompressor {
	return &GzipDecompressor{}
}

func (d *GzipDecompressor) Decompress(b []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer reader.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, reader); err != nil {
		return nil, errors.WithStack(err)
	}
	return out.Bytes(), nil
}

// IsCompressed reports whether a file name carries a compressed extension.
func IsCompressed(name string) bool {
	return strings.HasSuffix(name, GzipExtension)
}

// DecompressorFor picks the decompressor matching the file name's extension.
func DecompressorFor(name string) Decompressor {
	if IsCompressed(name) {
		return NewGzipDecompressor()
	}
	return &NoOpDecompressor{}
}
