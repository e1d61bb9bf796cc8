package pack

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/carton-ml/carton/tensor"
	"github.com/carton-ml/carton/vfs"
)

func mustScalarF32(t *testing.T, v float32) *tensor.Tensor {
	t.Helper()
	tv, err := tensor.AllocTensorNoPool(tensor.Float32, tensor.Shape{})
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint32(tv.Storage.Bytes(), math.Float32bits(v))
	return tv
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "blob.bin"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	in := &SaveInput{
		ModelName: "m",
		ModelDir:  dir,
		Runner:    RunnerInfo{Name: "noop"},
	}
	var buf bytes.Buffer
	digest, err := Save(&buf, in)
	if err != nil {
		t.Fatal(err)
	}
	if len(digest) != 64 {
		t.Fatalf("expected 64-char hex digest, got %q", digest)
	}

	zfs, err := vfs.NewZip(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}

	result, err := Load(zfs)
	if err != nil {
		t.Fatal(err)
	}
	if result.ManifestSHA256 != digest {
		t.Fatalf("manifest sha256 mismatch: %s vs %s", result.ManifestSHA256, digest)
	}
	if result.Info.ModelName != "m" {
		t.Fatalf("model name mismatch: %q", result.Info.ModelName)
	}
	if result.Info.Runner.Name != "noop" {
		t.Fatalf("runner name mismatch: %q", result.Info.Runner.Name)
	}

	modelBlob, err := zfs.Read("model/blob.bin")
	if err != nil {
		t.Fatal(err)
	}
	if string(modelBlob) != "hello" {
		t.Fatalf("model blob content mismatch: %q", modelBlob)
	}
}

func TestSaveWithSelfTestTensor(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "blob.bin"), []byte("x"), 0o644)

	in := &SaveInput{
		ModelName: "m",
		ModelDir:  dir,
		Runner:    RunnerInfo{Name: "noop"},
		SelfTests: []SaveTest{
			{
				Name:    "doubles",
				Inputs:  map[string]*tensor.Tensor{"x": mustScalarF32(t, 1.5)},
				Outputs: map[string]*tensor.Tensor{"x": mustScalarF32(t, 3.0)},
			},
		},
	}
	var buf bytes.Buffer
	if _, err := Save(&buf, in); err != nil {
		t.Fatal(err)
	}

	zfs, err := vfs.NewZip(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	result, err := Load(zfs)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Info.SelfTests) != 1 {
		t.Fatalf("expected 1 self-test, got %d", len(result.Info.SelfTests))
	}
	st := result.Info.SelfTests[0]
	inTensor, err := st.Inputs["x"]()
	if err != nil {
		t.Fatal(err)
	}
	if inTensor.DType != tensor.Float32 {
		t.Fatalf("expected f32, got %s", inTensor.DType)
	}
}

func TestShortDescriptionTooLong(t *testing.T) {
	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	in := &SaveInput{ModelName: "m", ShortDescription: string(long)}
	var buf bytes.Buffer
	if _, err := Save(&buf, in); err == nil {
		t.Fatal("expected error for over-length short_description")
	}
}

func TestShapeSpecWireRoundTrip(t *testing.T) {
	cases := []ShapeSpec{
		WildcardShape(),
		SymbolShape("batch"),
		DimsShape(FixedDim(1), SymbolDim("n"), WildcardDim()),
	}
	for _, want := range cases {
		wire := want.ToWire()
		got, err := ShapeSpecFromWire(wire)
		if err != nil {
			t.Fatal(err)
		}
		if got.Kind != want.Kind {
			t.Fatalf("kind mismatch: %v vs %v", got.Kind, want.Kind)
		}
	}
}
