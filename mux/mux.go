// Package mux implements the stream multiplexer of §4.4: many logical
// streams of a single payload type carried over one transport.Conn,
// dispatched to per-stream receiver queues by stream id.
package mux

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/carton-ml/carton/transport"
)

// Frame is the wire record carried by the underlying transport.Conn: a
// stream id plus one payload of the multiplexer's fixed type T.
type Frame[T any] struct {
	StreamID uint64
	Payload  T
}

// Stream is a single logical channel within a Multiplexer: a bounded
// receive queue fed by the multiplexer's dispatch loop, and a Send method
// that tags outgoing payloads with this stream's id.
type Stream[T any] struct {
	ID  uint64
	In  <-chan T
	mux *Multiplexer[T]
}

func (s *Stream[T]) Send(v T) error {
	return s.mux.send(s.ID, v)
}

// Multiplexer dispatches inbound frames to per-stream queues and tags
// outbound payloads with their stream's id. It does not itself provide
// flow control beyond each stream's bounded queue (§4.4): callers must
// avoid interleavings that would deadlock one stream on another.
type Multiplexer[T any] struct {
	conn *transport.Conn[Frame[T], Frame[T]]

	nextID atomic.Uint64 // even/odd parity, like comms.idGenerator

	mu      sync.Mutex
	streams map[uint64]chan T
	closed  bool
}

// New wraps rw with a multiplexer. primary determines this side's id
// parity, mirroring comms' primary/secondary split so two multiplexer
// endpoints minting stream ids independently never collide.
func New[T any](rw io.ReadWriter, primary bool) *Multiplexer[T] {
	m := &Multiplexer[T]{
		conn:    transport.NewConn[Frame[T], Frame[T]](rw),
		streams: map[uint64]chan T{},
	}
	if !primary {
		m.nextID.Store(1)
	}
	go m.dispatchLoop()
	return m
}

func (m *Multiplexer[T]) dispatchLoop() {
	for frame := range m.conn.In {
		m.mu.Lock()
		ch, ok := m.streams[frame.StreamID]
		m.mu.Unlock()
		if !ok {
			// No receiver registered for this stream id: drop it rather
			// than block the single dispatch loop indefinitely.
			continue
		}
		ch <- frame.Payload
	}
	m.mu.Lock()
	for _, ch := range m.streams {
		close(ch)
	}
	m.streams = map[uint64]chan T{}
	m.mu.Unlock()
}

// GetNewStream mints a fresh stream id local to this side and registers
// its receive queue.
func (m *Multiplexer[T]) GetNewStream() *Stream[T] {
	id := m.nextID.Add(2) - 2
	return m.registerStream(id)
}

// GetStreamForID registers a receive queue for a peer-allocated id. Both
// sides of a stream must agree on the id out of band (typically the side
// that minted it via GetNewStream communicates it as part of a higher
// level RPC).
func (m *Multiplexer[T]) GetStreamForID(id uint64) *Stream[T] {
	return m.registerStream(id)
}

func (m *Multiplexer[T]) registerStream(id uint64) *Stream[T] {
	ch := make(chan T, 32)
	m.mu.Lock()
	m.streams[id] = ch
	m.mu.Unlock()
	return &Stream[T]{ID: id, In: ch, mux: m}
}

func (m *Multiplexer[T]) send(streamID uint64, v T) error {
	m.conn.Out <- Frame[T]{StreamID: streamID, Payload: v}
	return nil
}

// CloseStream deregisters a stream's receive queue. It does not notify
// the peer; higher-level protocols (vfsrpc) signal end-of-stream with an
// in-band message.
func (m *Multiplexer[T]) CloseStream(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.streams[id]; ok {
		delete(m.streams, id)
		close(ch)
	}
}

func (m *Multiplexer[T]) Close() error {
	m.conn.Close()
	return nil
}
