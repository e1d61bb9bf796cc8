package vfs

import (
	"archive/zip"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ZstdMethod is the zip compression method id Carton uses for
// Zstd-compressed entries (§4.7 step 7: "Zip the whole tree with Zstd
// compression"). 93 is the de facto id several zip implementations (7-Zip
// among them) have converged on for Zstd; there is no IANA-registered id.
const ZstdMethod = 93

var registerOnce sync.Once

// RegisterZstd wires a Zstd compressor/decompressor pair into the
// archive/zip package under ZstdMethod. Safe to call more than once; the
// registration only happens on the first call.
func RegisterZstd() {
	registerOnce.Do(func() {
		zip.RegisterCompressor(ZstdMethod, func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w)
		})
		zip.RegisterDecompressor(ZstdMethod, func(r io.Reader) io.ReadCloser {
			zr, err := zstd.NewReader(r)
			if err != nil {
				return errReadCloser{err}
			}
			return zstdReadCloser{zr}
		})
	})
}

type errReadCloser struct{ err error }

func (e errReadCloser) Read([]byte) (int, error) { return 0, e.err }
func (e errReadCloser) Close() error             { return nil }

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
