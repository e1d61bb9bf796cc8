package rpc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/carton-ml/carton/transport"
)

// Client issues requests over conn's Rpc channel and correlates
// responses by id (§8 "RPC correlation": "the response delivered to the
// future for request N has id == N"). A dropped channel (the runner
// process exited or closed the socket) resolves every outstanding
// request to an error rather than hanging forever (§5 "Cancellation").
type Client struct {
	conn *transport.Conn[Envelope, Envelope]

	nextID atomic.Uint64
	mu     sync.Mutex
	wait   map[uint64]chan Envelope // buffered; closed once the final (complete) envelope is delivered
}

func NewClient(conn *transport.Conn[Envelope, Envelope]) *Client {
	c := &Client{conn: conn, wait: map[uint64]chan Envelope{}}
	go c.loop()
	return c
}

func (c *Client) loop() {
	for env := range c.conn.In {
		c.mu.Lock()
		ch, ok := c.wait[env.ID]
		if ok && env.Complete {
			delete(c.wait, env.ID)
		}
		c.mu.Unlock()
		if !ok {
			continue // unknown id: dropped without affecting other inflight RPCs (§8)
		}
		ch <- env
		if env.Complete {
			close(ch)
		}
	}
	c.failAll(fmt.Errorf("rpc: channel closed"))
}

func (c *Client) failAll(err error) {
	c.mu.Lock()
	pending := c.wait
	c.wait = map[uint64]chan Envelope{}
	c.mu.Unlock()
	for id, ch := range pending {
		ch <- Envelope{ID: id, Complete: true, Response: &Response{Error: &ErrorResponse{Message: err.Error()}}}
		close(ch)
	}
}

// stream registers id and sends req, returning the channel of response
// envelopes; the channel closes after the envelope with Complete=true.
func (c *Client) stream(req *Request) (<-chan Envelope, error) {
	id := c.nextID.Add(1)
	ch := make(chan Envelope, 8)
	c.mu.Lock()
	c.wait[id] = ch
	c.mu.Unlock()

	if err := c.send(id, req); err != nil {
		c.mu.Lock()
		delete(c.wait, id)
		c.mu.Unlock()
		return nil, err
	}
	return ch, nil
}

func (c *Client) send(id uint64, req *Request) error {
	c.conn.Out <- Envelope{ID: id, Request: req}
	return nil
}

// call issues a non-streaming request and waits for its single
// complete response.
func (c *Client) call(req *Request) (*Response, error) {
	ch, err := c.stream(req)
	if err != nil {
		return nil, err
	}
	env, ok := <-ch
	if !ok {
		return nil, fmt.Errorf("rpc: channel closed before response")
	}
	if env.Response != nil && env.Response.Error != nil {
		return nil, &RunnerError{Message: env.Response.Error.Message}
	}
	return env.Response, nil
}

// RunnerError wraps an Error response payload returned by the runner
// (§7 "Propagation": "surface as Runner on the client").
type RunnerError struct{ Message string }

func (e *RunnerError) Error() string { return "rpc: runner error: " + e.Message }

func (c *Client) Load(req *LoadRequest) (*LoadResponse, error) {
	resp, err := c.call(&Request{Load: req})
	if err != nil {
		return nil, err
	}
	return resp.Load, nil
}

func (c *Client) Pack(req *PackRequest) (*PackResponse, error) {
	resp, err := c.call(&Request{Pack: req})
	if err != nil {
		return nil, err
	}
	return resp.Pack, nil
}

func (c *Client) Seal(req *SealRequest) (*SealResponse, error) {
	resp, err := c.call(&Request{Seal: req})
	if err != nil {
		return nil, err
	}
	return resp.Seal, nil
}

// InferWithTensors delivers partial Infer responses to fn until the final
// (complete) one; fn's last call has complete=true. A Runner error
// payload surfaces as a *RunnerError returned from InferWithTensors /
// InferWithHandle themselves, not passed to fn.
func (c *Client) InferWithTensors(req *InferWithTensorsRequest, fn func(*InferResponse, bool) error) error {
	ch, err := c.stream(&Request{InferWithTensors: req})
	if err != nil {
		return err
	}
	return drainInfer(ch, fn)
}

func (c *Client) InferWithHandle(req *InferWithHandleRequest, fn func(*InferResponse, bool) error) error {
	ch, err := c.stream(&Request{InferWithHandle: req})
	if err != nil {
		return err
	}
	return drainInfer(ch, fn)
}

func drainInfer(ch <-chan Envelope, fn func(*InferResponse, bool) error) error {
	for env := range ch {
		if env.Response != nil && env.Response.Error != nil {
			return &RunnerError{Message: env.Response.Error.Message}
		}
		var infer *InferResponse
		if env.Response != nil {
			infer = env.Response.Infer
		}
		if err := fn(infer, env.Complete); err != nil {
			return err
		}
	}
	return nil
}
