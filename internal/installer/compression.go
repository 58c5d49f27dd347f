package installer

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// Compression selects the installer archive format.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionGzip Compression = "gz"
	CompressionXZ   Compression = "xz"
	CompressionZstd Compression = "zst"
)

// ParseCompression accepts the archive suffixes and a few common aliases.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "gz", "gzip", "tgz":
		return CompressionGzip, nil
	case "xz":
		return CompressionXZ, nil
	case "zst", "zstd":
		return CompressionZstd, nil
	}
	return CompressionNone, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
}

// Extension returns the archive file suffix, e.g. ".tar.zst".
func (c Compression) Extension() string {
	if c == CompressionNone {
		return ""
	}
	return ".tar." + string(c)
}

func newCompressor(c Compression, w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CompressionGzip:
		return pgzip.NewWriterLevel(w, pgzip.BestCompression)
	case CompressionXZ:
		return xz.NewWriter(w)
	case CompressionZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, string(c))
}
