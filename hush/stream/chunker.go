package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math/bits"
	"sync"
)

// Every sealed chunk is written as a record:
//
//	4 bytes: last flag (top bit) | sealed length (big endian)
//	N bytes: sealed chunk
//
// The last flag is also bound into the chunk nonce, so flipping it fails
// authentication.
const (
	recordHeaderSize = 4
	recordLastFlag   = 1 << 31
	recordLenMask    = recordLastFlag - 1
)

var errShortRecord = errors.New("stream: truncated chunk record")

// chunkReader splits a plaintext reader into fixed-size chunks and reports
// which one is last by peeking one byte ahead.
type chunkReader struct {
	r   *bufio.Reader
	buf []byte
}

func newChunkReader(r io.Reader, buf []byte) *chunkReader {
	return &chunkReader{r: bufio.NewReader(r), buf: buf}
}

// next returns the next chunk (valid until the following call) and whether it
// is the final one. An empty source yields a single empty final chunk.
func (c *chunkReader) next() ([]byte, bool, error) {
	n, err := io.ReadFull(c.r, c.buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return c.buf[:n], true, nil
	}
	if err != nil {
		return nil, false, err
	}
	if _, err := c.r.Peek(1); err != nil {
		if err == io.EOF {
			return c.buf[:n], true, nil
		}
		return nil, false, err
	}
	return c.buf[:n], false, nil
}

func writeRecord(w io.Writer, sealed []byte, last bool) error {
	var hdr [recordHeaderSize]byte
	v := uint32(len(sealed))
	if last {
		v |= recordLastFlag
	}
	binary.BigEndian.PutUint32(hdr[:], v)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(sealed)
	return err
}

// readRecord reads one record into buf. maxLen bounds the sealed length; a
// larger value cannot come from a valid encryptor. Running out of input inside
// a record returns errShortRecord; a clean EOF before a record returns io.EOF.
func readRecord(r io.Reader, buf []byte, maxLen int) ([]byte, bool, error) {
	var hdr [recordHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, false, errShortRecord
		}
		return nil, false, err
	}
	v := binary.BigEndian.Uint32(hdr[:])
	last := v&recordLastFlag != 0
	n := int(v & recordLenMask)
	if n > maxLen || n > cap(buf) {
		return nil, false, errShortRecord
	}
	sealed := buf[:n]
	if _, err := io.ReadFull(r, sealed); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, false, errShortRecord
		}
		return nil, false, err
	}
	return sealed, last, nil
}

// ChunkPool provides reusable byte buffers for chunk operations.
type ChunkPool struct {
	pool sync.Pool
	size int
}

// NewChunkPool creates a pool of reusable chunk buffers.
func NewChunkPool(chunkSize int) *ChunkPool {
	return &ChunkPool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, chunkSize)
				return &buf
			},
		},
		size: chunkSize,
	}
}

// Get returns a buffer from the pool.
func (p *ChunkPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool.
func (p *ChunkPool) Put(buf *[]byte) {
	if len(*buf) == p.size {
		p.pool.Put(buf)
	}
}

var pools sync.Map // size class -> *ChunkPool

// sizeClass rounds n up to a power of two. Pools are keyed by class, so
// headers carrying arbitrary chunk sizes add at most one pool per class.
func sizeClass(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// poolFor returns the shared pool whose buffers hold at least size bytes.
// Buffers are sizeClass(size) long; slice them to the length needed.
func poolFor(size int) *ChunkPool {
	class := sizeClass(size)
	if p, ok := pools.Load(class); ok {
		return p.(*ChunkPool)
	}
	p, _ := pools.LoadOrStore(class, NewChunkPool(class))
	return p.(*ChunkPool)
}
