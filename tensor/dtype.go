// Package tensor implements Carton's tensor storage and allocator pools
// (§4.1 and §3 "Tensor"/"SHM region"): typed, shape-carrying buffers
// backed either by pooled inline byte slices or by shared-memory regions
// that can be handed across the process boundary without a copy.
package tensor

import "fmt"

// DType is the closed set of element types a Tensor may carry.
type DType int

const (
	DTypeInvalid DType = iota
	Float32
	Float64
	String
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	// Nested marks a Tensor whose Children holds other tensors rather than
	// numeric/string data of its own.
	Nested
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	case String:
		return "string"
	case Int8:
		return "i8"
	case Int16:
		return "i16"
	case Int32:
		return "i32"
	case Int64:
		return "i64"
	case Uint8:
		return "u8"
	case Uint16:
		return "u16"
	case Uint32:
		return "u32"
	case Uint64:
		return "u64"
	case Nested:
		return "nested"
	default:
		return "invalid"
	}
}

// ElemSize returns the size in bytes of one element of a numeric dtype.
// It panics for String and Nested, which are not fixed-width.
func (d DType) ElemSize() int {
	switch d {
	case Float32, Int32, Uint32:
		return 4
	case Float64, Int64, Uint64:
		return 8
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	default:
		panic(fmt.Sprintf("tensor: %s has no fixed element size", d))
	}
}

// IsNumeric reports whether d is one of the fixed-width numeric dtypes.
func (d DType) IsNumeric() bool {
	switch d {
	case Float32, Float64, Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64:
		return true
	default:
		return false
	}
}

// ParseDType parses the wire/toml representation of a dtype (e.g. "f32",
// "string", "u8").
func ParseDType(s string) (DType, error) {
	for d := Float32; d <= Nested; d++ {
		if d.String() == s {
			return d, nil
		}
	}
	return DTypeInvalid, fmt.Errorf("tensor: unknown dtype %q", s)
}
