package pack

import (
	"fmt"

	"github.com/carton-ml/carton/tensor"
)

// DType is the closed set of tensor element types (§3 "Tensor").
type DType string

const (
	DTypeF32    DType = "f32"
	DTypeF64    DType = "f64"
	DTypeString DType = "string"
	DTypeI8     DType = "i8"
	DTypeI16    DType = "i16"
	DTypeI32    DType = "i32"
	DTypeI64    DType = "i64"
	DTypeU8     DType = "u8"
	DTypeU16    DType = "u16"
	DTypeU32    DType = "u32"
	DTypeU64    DType = "u64"
)

// TensorSpec describes one named input or output tensor slot (§3 "Info
// document").
type TensorSpec struct {
	Name  string
	DType DType
	Shape ShapeSpec
}

// RunnerInfo is the runner block of carton.toml: the name, the
// framework's required version range, the runner's own compat version,
// and an opaque opt map forwarded to the runner at load time.
type RunnerInfo struct {
	Name                     string
	RequiredFrameworkVersion string // semver range, e.g. ">=1.0.0 <2.0.0"
	RunnerCompatVersion      string
	Opts                     map[string]any
}

// LazyFile is a deferred byte source: Open reads the bytes only when
// called, matching §4.7 Load's "construct a lazy loader that opens the
// file on demand" for misc/ entries.
type LazyFile func() ([]byte, error)

// LazyTensor is a deferred tensor load: reads and deserializes a
// tensor_data/ entry only when called, for self-test/example tensor
// references (§4.7 Load).
type LazyTensor func() (*tensor.Tensor, error)

// CartonInfo is the in-memory form of carton.toml plus the lazily loaded
// misc-files and self-test/example tensor references it names (§3 "Info
// document").
type CartonInfo struct {
	SpecVersion       int
	ModelName         string
	ShortDescription  string
	Description       string
	RequiredPlatforms []string

	Inputs  []TensorSpec
	Outputs []TensorSpec

	SelfTests []SelfTest
	Examples  []Example

	// MiscFiles maps a logical key to a lazy loader for the corresponding
	// misc/ entry.
	MiscFiles map[string]LazyFile

	Runner RunnerInfo
}

// SelfTest names a tensor-in/tensor-out example packed for self-testing;
// tensor values are stored in tensor_data/ and loaded lazily.
type SelfTest struct {
	Name    string
	Inputs  map[string]LazyTensor
	Outputs map[string]LazyTensor
}

// Example is a human-facing usage sample, shaped like SelfTest but never
// used to drive automated checks.
type Example struct {
	Name    string
	Inputs  map[string]LazyTensor
	Outputs map[string]LazyTensor
}

// Validate enforces §4.7 Save step 1: a present short_description must
// be at most 100 characters.
func (c *CartonInfo) Validate() error {
	if n := len([]rune(c.ShortDescription)); c.ShortDescription != "" && n > 100 {
		return fmt.Errorf("pack: short_description is %d characters, must be <= 100", n)
	}
	return nil
}
