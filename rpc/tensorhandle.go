package rpc

import (
	"fmt"

	"github.com/carton-ml/carton/comms"
	"github.com/carton-ml/carton/tensor"
)

// TensorHandle is the wire encoding of one tensor argument or result
// (§4.9 "Tensor-handle encoding"). Exactly one of SHM or ByValue is set.
// A SHM handle's RegionFDID names an fd already (or about to be) sent
// out-of-band over the owning comms.Comms; ByValue carries the bytes (or
// string elements) inline for inline-backed numeric tensors and for
// string tensors, which are never SHM-backed.
type TensorHandle struct {
	SHM     *SHMTensorHandle
	ByValue *ByValueTensorHandle
}

type SHMTensorHandle struct {
	RegionFDID uint64
	Offset     int64
	Shape      []int64
	Strides    []int64 // nil means row-major contiguous
	DType      string
}

type ByValueTensorHandle struct {
	DType   string
	Shape   []int64
	Strides []int64
	Bytes   []byte   // numeric dtypes
	Elems   []string // DType == "string"
}

// EncodeTensorHandle converts an in-memory tensor into its wire handle.
// For SHM-backed storage it mints and sends the region's fd over c so the
// receiver's DecodeTensorHandle can upgrade RegionFDID into a live
// mapping; it does not wait for the receiver to consume it.
func EncodeTensorHandle(c *comms.Comms, t *tensor.Tensor) (TensorHandle, error) {
	switch s := t.Storage.(type) {
	case *tensor.SHMStorage:
		fdID, err := c.SendFD(int(s.Region.FD()))
		if err != nil {
			return TensorHandle{}, fmt.Errorf("rpc: sending SHM region fd: %w", err)
		}
		return TensorHandle{SHM: &SHMTensorHandle{
			RegionFDID: fdID,
			Offset:     s.Offset,
			Shape:      []int64(t.Shape),
			Strides:    t.Strides,
			DType:      t.DType.String(),
		}}, nil
	case nil:
		if t.DType == tensor.String {
			return TensorHandle{ByValue: &ByValueTensorHandle{
				DType:   "string",
				Shape:   []int64(t.Shape),
				Strides: t.Strides,
				Elems:   t.StringStorage.Elems,
			}}, nil
		}
		return TensorHandle{}, fmt.Errorf("rpc: tensor has no storage and is not a string tensor")
	default:
		// Inline-backed: serialize by value (§4.9).
		return TensorHandle{ByValue: &ByValueTensorHandle{
			DType:   t.DType.String(),
			Shape:   []int64(t.Shape),
			Strides: t.Strides,
			Bytes:   append([]byte(nil), s.Bytes()...),
		}}, nil
	}
}

// DecodeTensorHandle reconstructs a tensor from its wire handle. For a
// SHM handle it blocks until the corresponding fd arrives over c, mmaps
// it, and returns a tensor whose Release drops that mapping's reference
// (§4.9: "the receiver upgrades fd-id handles into tensors whose storage
// mmaps the received fd and holds the strong SHM-region handle keeping
// the mapping alive").
func DecodeTensorHandle(c *comms.Comms, h TensorHandle) (*tensor.Tensor, error) {
	switch {
	case h.SHM != nil:
		fd, err := c.WaitForFD(h.SHM.RegionFDID)
		if err != nil {
			return nil, fmt.Errorf("rpc: waiting for SHM region fd: %w", err)
		}
		dt, err := tensor.ParseDType(h.SHM.DType)
		if err != nil {
			return nil, err
		}
		region, err := tensor.ImportRegion(fd)
		if err != nil {
			return nil, fmt.Errorf("rpc: importing SHM region: %w", err)
		}
		length := tensor.Shape(h.SHM.Shape).NumElements() * int64(dt.ElemSize())
		return &tensor.Tensor{
			DType:   dt,
			Shape:   tensor.Shape(h.SHM.Shape),
			Strides: h.SHM.Strides,
			Storage: &tensor.SHMStorage{Region: region, Offset: h.SHM.Offset, Len: length},
		}, nil
	case h.ByValue != nil:
		bv := h.ByValue
		if bv.DType == "string" {
			return &tensor.Tensor{
				DType:         tensor.String,
				Shape:         tensor.Shape(bv.Shape),
				Strides:       bv.Strides,
				StringStorage: &tensor.StringStorage{Elems: bv.Elems},
			}, nil
		}
		dt, err := tensor.ParseDType(bv.DType)
		if err != nil {
			return nil, err
		}
		t, err := tensor.AllocTensorNoPool(dt, tensor.Shape(bv.Shape))
		if err != nil {
			return nil, err
		}
		copy(t.Storage.Bytes(), bv.Bytes)
		t.Strides = bv.Strides
		return t, nil
	default:
		return nil, fmt.Errorf("rpc: tensor handle has neither SHM nor by-value payload")
	}
}
