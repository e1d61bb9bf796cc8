package tensor

import "unsafe"

// ArrayView is a caller-owned numeric buffer with an explicit shape and
// optional strides — e.g. a view into a framework's own tensor. It is the
// Go analogue of the ndarray ArrayView the SHM allocator converts from
// (§4.1 "SHM variant").
type ArrayView struct {
	Data    []byte
	DType   DType
	Shape   Shape
	Strides []int64 // element strides; nil means standard (row-major) layout
}

// ToSHMStorage converts v into SHM-backed storage. If v.Data already lies
// inside a registered region, the conversion is zero-copy: a new Tensor
// references that region at the computed offset with v's own strides.
// Otherwise a fresh region is allocated and the data copied in — row-major
// straight copy when v is standard layout, element-wise otherwise.
func (v ArrayView) ToSHMStorage() (*Tensor, error) {
	if len(v.Data) == 0 {
		return AllocSHMTensor(v.DType, v.Shape)
	}
	ptr := uintptr(unsafe.Pointer(&v.Data[0]))
	if region, ok := shmRegistry.Lookup(ptr); ok {
		start, _ := region.Addr()
		offset := int64(ptr - start)
		region.retain()
		return &Tensor{
			DType:   v.DType,
			Shape:   v.Shape.Clone(),
			Strides: cloneStrides(v.Strides),
			Storage: &SHMStorage{
				Region: region,
				Offset: offset,
				Len:    int64(len(v.Data)),
			},
		}, nil
	}

	t, err := AllocSHMTensor(v.DType, v.Shape)
	if err != nil {
		return nil, err
	}
	dst := t.Storage.Bytes()
	if v.Strides == nil {
		copy(dst, v.Data)
	} else {
		copyElementwise(dst, v.Data, v.DType.ElemSize(), v.Shape, v.Strides)
	}
	return t, nil
}

func cloneStrides(s []int64) []int64 {
	if s == nil {
		return nil
	}
	out := make([]int64, len(s))
	copy(out, s)
	return out
}

// copyElementwise walks a non-standard-layout source according to its
// strides and writes a row-major-contiguous destination, element by
// element, rather than assuming the source is a single contiguous run.
func copyElementwise(dst, src []byte, elemSize int, shape Shape, strides []int64) {
	n := int(shape.NumElements())
	idx := make([]int64, len(shape))
	for i := 0; i < n; i++ {
		srcOff := int64(0)
		for d, s := range strides {
			srcOff += idx[d] * s * int64(elemSize)
		}
		copy(dst[i*elemSize:(i+1)*elemSize], src[srcOff:srcOff+int64(elemSize)])

		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
}
