// Package noop implements a test-double runner protocol used by the
// Carton test suite for the pack-load-infer and seal/single-use
// end-to-end scenarios (§8 scenarios A and E): every numeric tensor
// passed to Infer is returned doubled element-wise; string tensors pass
// through unchanged.
package noop

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/carton-ml/carton/rpc"
)

// Handler is an rpc.Handler that doubles numeric tensor values. Load and
// Pack are accepted unconditionally; Seal mints single-use handles
// consumed by InferWithHandle.
type Handler struct {
	mu      sync.Mutex
	nextH   uint64
	sealed  map[uint64]map[string]rpc.TensorHandle
}

func New() *Handler {
	return &Handler{sealed: map[uint64]map[string]rpc.TensorHandle{}}
}

func (h *Handler) Load(req *rpc.LoadRequest) (*rpc.LoadResponse, error) {
	return &rpc.LoadResponse{}, nil
}

func (h *Handler) Pack(req *rpc.PackRequest) (*rpc.PackResponse, error) {
	return &rpc.PackResponse{OutputPath: req.TempFolder + "/packed.carton"}, nil
}

func (h *Handler) Seal(req *rpc.SealRequest) (*rpc.SealResponse, error) {
	h.mu.Lock()
	h.nextH++
	id := h.nextH
	h.sealed[id] = req.Tensors
	h.mu.Unlock()
	return &rpc.SealResponse{Handle: id}, nil
}

func (h *Handler) InferWithTensors(req *rpc.InferWithTensorsRequest, emit func(*rpc.InferResponse, bool) error) error {
	out, err := doubleAll(req.Tensors)
	if err != nil {
		return err
	}
	return emit(&rpc.InferResponse{Tensors: out}, true)
}

func (h *Handler) InferWithHandle(req *rpc.InferWithHandleRequest, emit func(*rpc.InferResponse, bool) error) error {
	h.mu.Lock()
	tensors, ok := h.sealed[req.Handle]
	if ok {
		delete(h.sealed, req.Handle)
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("noop: unknown handle %d", req.Handle)
	}
	out, err := doubleAll(tensors)
	if err != nil {
		return err
	}
	return emit(&rpc.InferResponse{Tensors: out}, true)
}

func doubleAll(in map[string]rpc.TensorHandle) (map[string]rpc.TensorHandle, error) {
	out := make(map[string]rpc.TensorHandle, len(in))
	for name, h := range in {
		d, err := double(h)
		if err != nil {
			return nil, fmt.Errorf("noop: doubling %q: %w", name, err)
		}
		out[name] = d
	}
	return out, nil
}

// double only handles the by-value encoding: the noop runner is a test
// double driven directly over an in-process rpc.Client, never over a
// real SHM-backed comms channel.
func double(h rpc.TensorHandle) (rpc.TensorHandle, error) {
	if h.SHM != nil {
		return rpc.TensorHandle{}, fmt.Errorf("noop: SHM-backed tensors are not supported by this test double")
	}
	bv := h.ByValue
	if bv == nil {
		return rpc.TensorHandle{}, fmt.Errorf("noop: empty tensor handle")
	}
	if bv.DType == "string" {
		return h, nil
	}
	out := &rpc.ByValueTensorHandle{
		DType:   bv.DType,
		Shape:   bv.Shape,
		Strides: bv.Strides,
		Bytes:   make([]byte, len(bv.Bytes)),
	}
	if err := doubleBytes(bv.DType, bv.Bytes, out.Bytes); err != nil {
		return rpc.TensorHandle{}, err
	}
	return rpc.TensorHandle{ByValue: out}, nil
}

func doubleBytes(dtype string, src, dst []byte) error {
	switch dtype {
	case "f32":
		for i := 0; i+4 <= len(src); i += 4 {
			v := math.Float32frombits(binary.LittleEndian.Uint32(src[i:]))
			binary.LittleEndian.PutUint32(dst[i:], math.Float32bits(v*2))
		}
	case "f64":
		for i := 0; i+8 <= len(src); i += 8 {
			v := math.Float64frombits(binary.LittleEndian.Uint64(src[i:]))
			binary.LittleEndian.PutUint64(dst[i:], math.Float64bits(v*2))
		}
	case "i8", "u8":
		for i := range src {
			dst[i] = src[i] * 2
		}
	case "i16", "u16":
		for i := 0; i+2 <= len(src); i += 2 {
			v := binary.LittleEndian.Uint16(src[i:])
			binary.LittleEndian.PutUint16(dst[i:], v*2)
		}
	case "i32", "u32":
		for i := 0; i+4 <= len(src); i += 4 {
			v := binary.LittleEndian.Uint32(src[i:])
			binary.LittleEndian.PutUint32(dst[i:], v*2)
		}
	case "i64", "u64":
		for i := 0; i+8 <= len(src); i += 8 {
			v := binary.LittleEndian.Uint64(src[i:])
			binary.LittleEndian.PutUint64(dst[i:], v*2)
		}
	default:
		return fmt.Errorf("noop: unsupported dtype %q", dtype)
	}
	return nil
}

var _ rpc.Handler = (*Handler)(nil)
