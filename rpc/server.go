package rpc

import (
	"log/slog"

	"github.com/carton-ml/carton/transport"
)

// Handler implements the runner side of the protocol (§4.9): one method
// per request variant. InferWithTensors and InferWithHandle drive emit
// themselves so they can produce a streaming sequence of responses; emit
// must be called at least once, with complete=true on the last call.
type Handler interface {
	Load(req *LoadRequest) (*LoadResponse, error)
	Pack(req *PackRequest) (*PackResponse, error)
	Seal(req *SealRequest) (*SealResponse, error)
	InferWithTensors(req *InferWithTensorsRequest, emit func(*InferResponse, bool) error) error
	InferWithHandle(req *InferWithHandleRequest, emit func(*InferResponse, bool) error) error
}

// Server dispatches inbound Envelopes on conn's Rpc channel to a Handler.
// Each request runs in its own goroutine so that a slow streaming Infer
// does not block unrelated requests (§5 "per RPC channel... order of
// completion across requests is unspecified").
type Server struct {
	conn    *transport.Conn[Envelope, Envelope]
	handler Handler
}

// Serve starts the dispatch loop and returns immediately; it runs until
// conn's inbound queue closes (the peer went away).
func Serve(conn *transport.Conn[Envelope, Envelope], handler Handler) *Server {
	s := &Server{conn: conn, handler: handler}
	go s.loop()
	return s
}

func (s *Server) loop() {
	for env := range s.conn.In {
		if env.Request == nil {
			continue
		}
		go s.dispatch(env.ID, env.Request)
	}
}

func (s *Server) dispatch(id uint64, req *Request) {
	switch {
	case req.Load != nil:
		resp, err := s.handler.Load(req.Load)
		s.sendOne(id, &Response{Load: resp}, err)
	case req.Pack != nil:
		resp, err := s.handler.Pack(req.Pack)
		s.sendOne(id, &Response{Pack: resp}, err)
	case req.Seal != nil:
		resp, err := s.handler.Seal(req.Seal)
		s.sendOne(id, &Response{Seal: resp}, err)
	case req.InferWithTensors != nil:
		err := s.handler.InferWithTensors(req.InferWithTensors, s.emitter(id))
		if err != nil {
			s.send(id, &Response{Error: &ErrorResponse{Message: err.Error()}}, true)
		}
	case req.InferWithHandle != nil:
		err := s.handler.InferWithHandle(req.InferWithHandle, s.emitter(id))
		if err != nil {
			s.send(id, &Response{Error: &ErrorResponse{Message: err.Error()}}, true)
		}
	default:
		s.send(id, &Response{Error: &ErrorResponse{Message: "rpc: empty request"}}, true)
	}
}

// emitter adapts a streaming handler's partial-response callback into
// wire sends, folding a send failure into the callback's own error
// return so the handler can stop producing further tensors.
func (s *Server) emitter(id uint64) func(*InferResponse, bool) error {
	return func(resp *InferResponse, complete bool) error {
		return s.send(id, &Response{Infer: resp}, complete)
	}
}

func (s *Server) sendOne(id uint64, resp *Response, err error) {
	if err != nil {
		s.send(id, &Response{Error: &ErrorResponse{Message: err.Error()}}, true)
		return
	}
	s.send(id, resp, true)
}

// send blocks on the bounded Out queue (§5 "Backpressure": "producers
// await on full queues") rather than dropping a response.
func (s *Server) send(id uint64, resp *Response, complete bool) error {
	s.conn.Out <- Envelope{ID: id, Complete: complete, Response: resp}
	if err := s.conn.Err(); err != nil {
		slog.Debug("rpc: sent response after connection error", "id", id, "error", err)
		return err
	}
	return nil
}
