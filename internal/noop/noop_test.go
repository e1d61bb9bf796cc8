package noop

import (
	"encoding/binary"
	"math"
	"net"
	"testing"

	"github.com/carton-ml/carton/rpc"
	"github.com/carton-ml/carton/transport"
)

func f32Scalar(v float32) rpc.TensorHandle {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	return rpc.TensorHandle{ByValue: &rpc.ByValueTensorHandle{DType: "f32", Shape: []int64{}, Bytes: b}}
}

func f32Value(h rpc.TensorHandle) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(h.ByValue.Bytes))
}

func newClient(t *testing.T) *rpc.Client {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	serverConn := transport.NewConn[rpc.Envelope, rpc.Envelope](a)
	clientConn := transport.NewConn[rpc.Envelope, rpc.Envelope](b)
	t.Cleanup(func() { serverConn.Close(); clientConn.Close() })
	rpc.Serve(serverConn, New())
	return rpc.NewClient(clientConn)
}

// Scenario A: infer on a minimal model doubles a f32 scalar.
func TestInferDoublesScalar(t *testing.T) {
	client := newClient(t)

	var result rpc.TensorHandle
	err := client.InferWithTensors(&rpc.InferWithTensorsRequest{
		Tensors: map[string]rpc.TensorHandle{"x": f32Scalar(1.5)},
	}, func(resp *rpc.InferResponse, complete bool) error {
		if complete {
			result = resp.Tensors["x"]
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InferWithTensors: %v", err)
	}
	if got := f32Value(result); got != 3.0 {
		t.Fatalf("got %v, want 3.0", got)
	}
}

// Scenario E: a sealed handle may be consumed by InferWithHandle exactly
// once; a second consumption fails with a Runner error.
func TestSealHandleSingleUse(t *testing.T) {
	client := newClient(t)

	seal, err := client.Seal(&rpc.SealRequest{Tensors: map[string]rpc.TensorHandle{"x": f32Scalar(1.0)}})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	var result rpc.TensorHandle
	err = client.InferWithHandle(&rpc.InferWithHandleRequest{Handle: seal.Handle}, func(resp *rpc.InferResponse, complete bool) error {
		if complete {
			result = resp.Tensors["x"]
		}
		return nil
	})
	if err != nil {
		t.Fatalf("first InferWithHandle: %v", err)
	}
	if got := f32Value(result); got != 2.0 {
		t.Fatalf("got %v, want 2.0", got)
	}

	err = client.InferWithHandle(&rpc.InferWithHandleRequest{Handle: seal.Handle}, func(*rpc.InferResponse, bool) error { return nil })
	if err == nil {
		t.Fatal("expected second InferWithHandle to fail")
	}
	if _, ok := err.(*rpc.RunnerError); !ok {
		t.Fatalf("expected *rpc.RunnerError, got %T: %v", err, err)
	}
}
