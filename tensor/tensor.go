package tensor

import "strconv"

// Tensor is the tagged variant over numeric element types, String, and
// NestedTensor described in §3. Exactly one of Storage, StringStorage, or
// Children is set, selected by DType.
type Tensor struct {
	DType   DType
	Shape   Shape
	Strides []int64 // optional; nil means row-major contiguous

	Storage       Storage        // numeric
	StringStorage *StringStorage // DType == String
	Children      []*Tensor      // DType == Nested
}

// Validate checks the §3 invariant: shape.product()*elem_size ==
// storage_len, unless strides are present (in which case the backing
// region may be larger than the logical view).
func (t *Tensor) Validate() error {
	switch t.DType {
	case Nested:
		if t.Storage != nil || t.StringStorage != nil {
			return &Error{Op: "validate", Msg: "nested tensor must not carry its own storage"}
		}
		for i, c := range t.Children {
			if c.DType == Nested {
				return &Error{Op: "validate", Msg: "nested tensors may not nest recursively"}
			}
			if err := c.Validate(); err != nil {
				return &Error{Op: "validate", Msg: "child " + strconv.Itoa(i) + ": " + err.Error()}
			}
		}
		return nil
	case String:
		if t.StringStorage == nil {
			return &Error{Op: "validate", Msg: "string tensor missing storage"}
		}
		if int64(len(t.StringStorage.Elems)) != t.Shape.NumElements() {
			return &Error{Op: "validate", Msg: "string tensor element count does not match shape"}
		}
		return nil
	default:
		if !t.DType.IsNumeric() {
			return &Error{Op: "validate", Msg: "unknown dtype"}
		}
		if t.Storage == nil {
			return &Error{Op: "validate", Msg: "numeric tensor missing storage"}
		}
		if t.Strides == nil {
			want := t.Shape.NumElements() * int64(t.DType.ElemSize())
			if int64(len(t.Storage.Bytes())) != want {
				return &Error{Op: "validate", Msg: "storage length does not match shape*elemsize"}
			}
		}
		return nil
	}
}

// Release releases the tensor's backing storage (and, transitively, any
// children's storage) back to its pool or SHM registry.
func (t *Tensor) Release() {
	if t == nil {
		return
	}
	if t.Storage != nil {
		t.Storage.Release()
	}
	for _, c := range t.Children {
		c.Release()
	}
}
