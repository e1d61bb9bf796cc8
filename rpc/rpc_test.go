package rpc

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/carton-ml/carton/transport"
)

type fakeHandler struct {
	sealed map[uint64]bool
	nextH  uint64
}

func (h *fakeHandler) Load(req *LoadRequest) (*LoadResponse, error) { return &LoadResponse{}, nil }

func (h *fakeHandler) Pack(req *PackRequest) (*PackResponse, error) {
	return &PackResponse{OutputPath: req.TempFolder + "/out.carton"}, nil
}

func (h *fakeHandler) Seal(req *SealRequest) (*SealResponse, error) {
	h.nextH++
	if h.sealed == nil {
		h.sealed = map[uint64]bool{}
	}
	h.sealed[h.nextH] = true
	return &SealResponse{Handle: h.nextH}, nil
}

func (h *fakeHandler) InferWithTensors(req *InferWithTensorsRequest, emit func(*InferResponse, bool) error) error {
	if req.Streaming {
		if err := emit(&InferResponse{Tensors: req.Tensors}, false); err != nil {
			return err
		}
		return emit(&InferResponse{Tensors: req.Tensors}, true)
	}
	return emit(&InferResponse{Tensors: req.Tensors}, true)
}

func (h *fakeHandler) InferWithHandle(req *InferWithHandleRequest, emit func(*InferResponse, bool) error) error {
	if !h.sealed[req.Handle] {
		return fmt.Errorf("unknown handle %d", req.Handle)
	}
	delete(h.sealed, req.Handle)
	return emit(&InferResponse{}, true)
}

func newClientServer(t *testing.T) (*Client, *fakeHandler) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	serverConn := transport.NewConn[Envelope, Envelope](a)
	clientConn := transport.NewConn[Envelope, Envelope](b)
	t.Cleanup(func() { serverConn.Close(); clientConn.Close() })

	h := &fakeHandler{}
	Serve(serverConn, h)
	return NewClient(clientConn), h
}

func TestLoadPackSeal(t *testing.T) {
	client, _ := newClientServer(t)

	if _, err := client.Load(&LoadRequest{RunnerName: "noop"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	pack, err := client.Pack(&PackRequest{TempFolder: "/tmp/x"})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if pack.OutputPath != "/tmp/x/out.carton" {
		t.Fatalf("unexpected output path: %s", pack.OutputPath)
	}
	seal, err := client.Seal(&SealRequest{Tensors: map[string]TensorHandle{}})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if seal.Handle == 0 {
		t.Fatal("expected non-zero handle")
	}
}

func TestSealConsumedOnce(t *testing.T) {
	client, _ := newClientServer(t)

	seal, err := client.Seal(&SealRequest{Tensors: map[string]TensorHandle{}})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	var calls int
	err = client.InferWithHandle(&InferWithHandleRequest{Handle: seal.Handle}, func(*InferResponse, bool) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("first InferWithHandle: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 callback, got %d", calls)
	}

	err = client.InferWithHandle(&InferWithHandleRequest{Handle: seal.Handle}, func(*InferResponse, bool) error { return nil })
	if err == nil {
		t.Fatal("expected second InferWithHandle to fail")
	}
	if _, ok := err.(*RunnerError); !ok {
		t.Fatalf("expected *RunnerError, got %T: %v", err, err)
	}
}

func TestStreamingInferDeliversPartialsThenComplete(t *testing.T) {
	client, _ := newClientServer(t)

	var completions []bool
	err := client.InferWithTensors(&InferWithTensorsRequest{Streaming: true}, func(resp *InferResponse, complete bool) error {
		completions = append(completions, complete)
		return nil
	})
	if err != nil {
		t.Fatalf("InferWithTensors: %v", err)
	}
	if len(completions) != 2 || completions[0] != false || completions[1] != true {
		t.Fatalf("unexpected completion sequence: %+v", completions)
	}
}

func TestConcurrentRequestsCorrelateIndependently(t *testing.T) {
	client, _ := newClientServer(t)

	n := 20
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			resp, err := client.Pack(&PackRequest{TempFolder: fmt.Sprintf("/tmp/%d", i)})
			if err != nil {
				done <- err
				return
			}
			want := fmt.Sprintf("/tmp/%d/out.carton", i)
			if resp.OutputPath != want {
				done <- fmt.Errorf("got %q want %q", resp.OutputPath, want)
				return
			}
			done <- nil
		}()
	}
	for i := 0; i < n; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Fatal(err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
	}
}
