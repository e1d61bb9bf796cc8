// Package transport implements the length-framed record protocol of §4.3:
// a size-prefixed, deterministically-serialized record carried over any
// io.Reader/io.Writer pair (in practice, one half of a socketpair handed
// across process boundaries by package comms).
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/shamaton/msgpack/v2"
)

// maxRecordSize bounds a single record to guard against a corrupt or
// malicious length prefix causing an unbounded allocation.
const maxRecordSize = 1 << 30 // 1 GiB

// Framed wraps a byte-stream connection with the size-prefixed record
// protocol. Reads and writes of whole records are safe to call
// concurrently with each other (one reader goroutine, one writer
// goroutine is the expected usage — see Conn for the typed queue version).
type Framed struct {
	r  io.Reader
	w  *bufio.Writer
	rm sync.Mutex
	wm sync.Mutex
}

func New(rw io.ReadWriter) *Framed {
	return &Framed{r: rw, w: bufio.NewWriter(rw)}
}

// WriteRecord serializes v and writes it as one length-prefixed record.
func (f *Framed) WriteRecord(v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", err)
	}
	f.wm.Lock()
	defer f.wm.Unlock()
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	if _, err := f.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("transport: write length: %w", err)
	}
	if _, err := f.w.Write(payload); err != nil {
		return fmt.Errorf("transport: write payload: %w", err)
	}
	return f.w.Flush()
}

// ReadRecord reads one length-prefixed record and deserializes it into v.
func (f *Framed) ReadRecord(v any) error {
	f.rm.Lock()
	defer f.rm.Unlock()
	var lenBuf [8]byte
	if _, err := io.ReadFull(f.r, lenBuf[:]); err != nil {
		return err
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	if n > maxRecordSize {
		return fmt.Errorf("transport: record of %d bytes exceeds maximum of %d", n, maxRecordSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		return fmt.Errorf("transport: read payload: %w", err)
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("transport: unmarshal: %w", err)
	}
	return nil
}
