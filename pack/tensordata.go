package pack

import (
	"errors"
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"github.com/carton-ml/carton/tensor"
)

// ErrBigEndianHost is returned instead of writing raw numeric tensor
// bytes on a big-endian host: §9 "Endianness" requires implementations
// that cannot produce the little-endian wire format to refuse to write
// rather than silently emit a carton mislabeled as little-endian.
var ErrBigEndianHost = errors.New("pack: refusing to write numeric tensor data on a big-endian host")

// tensorIndex is tensor_data/index.toml's wire shape: a flat map from
// tensor key to its serialization record (§4.7 step 3).
type tensorIndex struct {
	Tensors map[string]tensorIndexEntry `toml:"tensors"`
}

type tensorIndexEntry struct {
	DType    string   `toml:"dtype"`
	Shape    []int64  `toml:"shape,omitempty"`
	File     string   `toml:"file,omitempty"`
	Children []string `toml:"children,omitempty"`
}

// tensorWriter accumulates tensor_data/ files during Save: every gathered
// tensor is assigned a unique synthetic key `_tensor_N` (§4.7 step 3) and
// serialized immediately.
type tensorWriter struct {
	files   map[string][]byte // tensor_data/-relative path -> content
	index   map[string]tensorIndexEntry
	counter int
}

func newTensorWriter() *tensorWriter {
	return &tensorWriter{files: map[string][]byte{}, index: map[string]tensorIndexEntry{}}
}

// Put serializes t and returns its synthetic key within tensor_data/.
func (w *tensorWriter) Put(t *tensor.Tensor) (string, error) {
	name := fmt.Sprintf("_tensor_%d", w.counter)
	w.counter++
	if err := w.putNamed(name, t); err != nil {
		return "", err
	}
	return name, nil
}

func (w *tensorWriter) putNamed(name string, t *tensor.Tensor) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("pack: tensor %q: %w", name, err)
	}
	switch t.DType {
	case tensor.Nested:
		children := make([]string, len(t.Children))
		for i, c := range t.Children {
			childName := fmt.Sprintf("%s_child_%d", name, i)
			if err := w.putNamed(childName, c); err != nil {
				return err
			}
			children[i] = childName
		}
		w.index[name] = tensorIndexEntry{DType: "nested", Children: children}
		return nil
	case tensor.String:
		file := name + ".toml"
		data, err := toml.Marshal(struct {
			Elems []string `toml:"elems"`
		}{Elems: t.StringStorage.Elems})
		if err != nil {
			return fmt.Errorf("pack: marshaling string tensor %q: %w", name, err)
		}
		w.files["tensor_data/"+file] = data
		w.index[name] = tensorIndexEntry{DType: "string", Shape: []int64(t.Shape), File: file}
		return nil
	default:
		if !t.DType.IsNumeric() {
			return fmt.Errorf("pack: tensor %q: dtype %s cannot be serialized", name, t.DType)
		}
		if !tensor.HostIsLittleEndian() {
			return fmt.Errorf("pack: tensor %q: %w", name, ErrBigEndianHost)
		}
		file := name + ".bin"
		w.files["tensor_data/"+file] = append([]byte(nil), t.Storage.Bytes()...)
		w.index[name] = tensorIndexEntry{DType: t.DType.String(), Shape: []int64(t.Shape), File: file}
		return nil
	}
}

func (w *tensorWriter) buildIndex() ([]byte, error) {
	return toml.Marshal(tensorIndex{Tensors: w.index})
}

// tensorReader loads tensors out of a parsed index plus a file-content
// accessor (used by both in-archive Load and, indirectly, a future
// Shrink-aware overlay VFS).
type tensorReader struct {
	index tensorIndex
	read  func(path string) ([]byte, error)
}

func newTensorReader(indexData []byte, read func(string) ([]byte, error)) (*tensorReader, error) {
	var idx tensorIndex
	if err := toml.Unmarshal(indexData, &idx); err != nil {
		return nil, fmt.Errorf("pack: parsing tensor_data/index.toml: %w", err)
	}
	return &tensorReader{index: idx, read: read}, nil
}

func (r *tensorReader) Get(name string) (*tensor.Tensor, error) {
	entry, ok := r.index.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("pack: tensor_data: unknown tensor %q", name)
	}
	if entry.DType == "nested" {
		children := make([]*tensor.Tensor, len(entry.Children))
		for i, childName := range entry.Children {
			c, err := r.Get(childName)
			if err != nil {
				return nil, err
			}
			children[i] = c
		}
		return &tensor.Tensor{DType: tensor.Nested, Children: children}, nil
	}
	if entry.DType == "string" {
		data, err := r.read("tensor_data/" + entry.File)
		if err != nil {
			return nil, err
		}
		var decoded struct {
			Elems []string `toml:"elems"`
		}
		if err := toml.Unmarshal(data, &decoded); err != nil {
			return nil, fmt.Errorf("pack: parsing %s: %w", entry.File, err)
		}
		return &tensor.Tensor{
			DType:         tensor.String,
			Shape:         tensor.Shape(entry.Shape),
			StringStorage: &tensor.StringStorage{Elems: decoded.Elems},
		}, nil
	}
	dt, err := tensor.ParseDType(entry.DType)
	if err != nil {
		return nil, err
	}
	data, err := r.read("tensor_data/" + entry.File)
	if err != nil {
		return nil, err
	}
	shape := tensor.Shape(entry.Shape)
	want := int(shape.NumElements()) * dt.ElemSize()
	if len(data) != want {
		return nil, fmt.Errorf("pack: tensor_data: %s has %d bytes, want %d", entry.File, len(data), want)
	}
	t, err := tensor.AllocTensorNoPool(dt, shape)
	if err != nil {
		return nil, err
	}
	copy(t.Storage.Bytes(), data)
	return t, nil
}

// Tensor element bytes are written and read verbatim, which satisfies
// §4.7 step 3's "raw little-endian elements" requirement on the
// little-endian hosts Carton targets; putNamed refuses to write on a
// big-endian host instead (ErrBigEndianHost) rather than mislabel the
// output.
