package fetch

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/ulikunitz/xz"
)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte("BZh")
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// Decompress wraps r with the right decompressor based on magic bytes, falling
// back to the Content-Encoding header for formats without a reliable signature
// (brotli). Plain input passes through untouched. The returned string names
// the detected format for reporting.
func Decompress(r io.Reader, contentEncoding string) (io.Reader, string, error) {
	if contentEncoding == "br" {
		return brotli.NewReader(r), "brotli", nil
	}

	br := bufio.NewReader(r)
	head, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF {
		return nil, "", err
	}

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, "", err
		}
		return zr, "gzip", nil
	case bytes.HasPrefix(head, bzip2Magic):
		return bzip2.NewReader(br), "bzip2", nil
	case bytes.HasPrefix(head, xzMagic):
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, "", err
		}
		return xr, "xz", nil
	}
	// A Content-Encoding header without matching magic is ignored; the bytes
	// decide.
	return br, "none", nil
}

// DetectCompression classifies a byte prefix without consuming a stream.
// Probe uses this to report what a source serves.
func DetectCompression(head []byte) string {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return "gzip"
	case bytes.HasPrefix(head, bzip2Magic):
		return "bzip2"
	case bytes.HasPrefix(head, xzMagic):
		return "xz"
	}
	return "none"
}
