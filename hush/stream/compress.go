package stream

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
)

var (
	ErrCompressionFailed   = errors.New("stream: compression failed")
	ErrDecompressionFailed = errors.New("stream: decompression failed")
)

// Compressed chunks carry a one-byte marker ahead of the data.
const (
	chunkStored     byte = 0
	chunkCompressed byte = 1
)

// compressorPool reuses LZ4 writers to reduce allocations.
var compressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewWriter(nil)
	},
}

// decompressorPool reuses LZ4 readers.
var decompressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewReader(nil)
	},
}

// chunkLevel is the LZ4 level used for body chunks.
const chunkLevel = lz4.Fast

func compress(data []byte, level lz4.CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	w := compressorPool.Get().(*lz4.Writer)
	defer compressorPool.Put(w)

	w.Reset(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(level)); err != nil {
		return nil, ErrCompressionFailed
	}

	if _, err := w.Write(data); err != nil {
		return nil, ErrCompressionFailed
	}
	if err := w.Close(); err != nil {
		return nil, ErrCompressionFailed
	}
	return buf.Bytes(), nil
}

// decompress inflates data, refusing output larger than limit.
func decompress(data []byte, limit int) ([]byte, error) {
	r := decompressorPool.Get().(*lz4.Reader)
	defer decompressorPool.Put(r)

	r.Reset(bytes.NewReader(data))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r, int64(limit)+1)); err != nil {
		return nil, ErrDecompressionFailed
	}
	if buf.Len() > limit {
		return nil, ErrDecompressionFailed
	}
	return buf.Bytes(), nil
}

// packChunk prefixes chunk with a marker, compressing it when that helps.
// The result is appended to dst.
func packChunk(dst, chunk []byte) []byte {
	if len(chunk) > 0 {
		if c, err := compress(chunk, chunkLevel); err == nil && len(c) < len(chunk) {
			dst = append(dst, chunkCompressed)
			return append(dst, c...)
		}
	}
	dst = append(dst, chunkStored)
	return append(dst, chunk...)
}

// unpackChunk reverses packChunk.
func unpackChunk(packed []byte, limit int) ([]byte, error) {
	if len(packed) == 0 {
		return nil, ErrDecompressionFailed
	}
	switch packed[0] {
	case chunkStored:
		return packed[1:], nil
	case chunkCompressed:
		return decompress(packed[1:], limit)
	default:
		return nil, ErrDecompressionFailed
	}
}
