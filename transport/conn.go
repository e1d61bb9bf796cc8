package transport

import (
	"io"
	"log/slog"
)

// defaultQueueCapacity bounds the typed queues between the read/write
// loops and their callers (§5 "Backpressure": "capacity on the order of a
// few tens of messages; producers await on full queues").
const defaultQueueCapacity = 32

// Conn pairs a Framed transport with typed inbound/outbound queues: a
// reader loop deserializes into In, a writer loop drains Out (§4.3).
type Conn[In, Out any] struct {
	framed *Framed

	In  chan In
	Out chan Out

	done chan struct{}
	err  error
}

// NewConn starts the reader and writer loops over rw and returns the
// typed queue pair.
func NewConn[In, Out any](rw io.ReadWriter) *Conn[In, Out] {
	c := &Conn[In, Out]{
		framed: New(rw),
		In:     make(chan In, defaultQueueCapacity),
		Out:    make(chan Out, defaultQueueCapacity),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

func (c *Conn[In, Out]) readLoop() {
	defer close(c.In)
	for {
		var v In
		if err := c.framed.ReadRecord(&v); err != nil {
			if err != io.EOF {
				slog.Debug("transport: read loop exiting", "error", err)
				c.err = err
			}
			return
		}
		select {
		case c.In <- v:
		case <-c.done:
			return
		}
	}
}

func (c *Conn[In, Out]) writeLoop() {
	for {
		select {
		case v, ok := <-c.Out:
			if !ok {
				return
			}
			if err := c.framed.WriteRecord(v); err != nil {
				slog.Debug("transport: write loop exiting", "error", err)
				c.err = err
				return
			}
		case <-c.done:
			return
		}
	}
}

// Err returns the error (if any) that caused a loop to exit. EOF on the
// inbound side is not an error.
func (c *Conn[In, Out]) Err() error { return c.err }

// Close stops both loops. The underlying rw is not closed here; callers
// own its lifetime (usually an *os.File from comms.GetChannel).
func (c *Conn[In, Out]) Close() {
	close(c.done)
}
