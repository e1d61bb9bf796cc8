package pack

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/carton-ml/carton/tensor"
	"github.com/carton-ml/carton/vfs"
)

// SaveTest is a self-test or example's tensor-in/tensor-out fixture,
// supplied by value since Save is the point at which tensors get
// serialized (§4.7 step 3).
type SaveTest struct {
	Name    string
	Inputs  map[string]*tensor.Tensor
	Outputs map[string]*tensor.Tensor
}

// SaveInput bundles everything §4.7 Save takes as input: the metadata,
// the model tree to embed verbatim, and any attached misc-files or
// self-test/example tensors.
type SaveInput struct {
	ModelName         string
	ShortDescription  string
	Description       string
	RequiredPlatforms []string
	Inputs            []TensorSpec
	Outputs           []TensorSpec
	Runner            RunnerInfo

	ModelDir string // on-disk directory copied verbatim under model/

	MiscFiles map[string][]byte // logical key -> content

	SelfTests []SaveTest
	Examples  []SaveTest
}

func init() {
	vfs.RegisterZstd()
}

// Save packages in into a zip archive written to w, implementing §4.7
// "Save" steps 1-7. It returns the hex sha256 of the MANIFEST bytes,
// which doubles as the package's content-addressed identity.
func Save(w io.Writer, in *SaveInput) (string, error) {
	if n := len([]rune(in.ShortDescription)); in.ShortDescription != "" && n > 100 {
		return "", fmt.Errorf("pack: short_description is %d characters, must be <= 100", n)
	}

	entries := map[string][]byte{}

	miscPaths := map[string]string{}
	for key, data := range in.MiscFiles {
		if err := validateRelPath(key); err != nil {
			return "", fmt.Errorf("pack: misc file %q: %w", key, err)
		}
		p := "misc/" + key
		entries[p] = data
		miscPaths[key] = p
	}

	tw := newTensorWriter()
	selfTestDocs, err := gatherTests(tw, in.SelfTests)
	if err != nil {
		return "", err
	}
	exampleDocs, err := gatherTests(tw, in.Examples)
	if err != nil {
		return "", err
	}
	for p, data := range tw.files {
		entries[p] = data
	}
	if len(tw.index) > 0 {
		indexData, err := tw.buildIndex()
		if err != nil {
			return "", err
		}
		entries["tensor_data/index.toml"] = indexData
	}

	info := &CartonInfo{
		ModelName:         in.ModelName,
		ShortDescription:  in.ShortDescription,
		Description:       in.Description,
		RequiredPlatforms: in.RequiredPlatforms,
		Inputs:            in.Inputs,
		Outputs:           in.Outputs,
		Runner:            in.Runner,
	}
	doc, err := toDoc(info, miscPaths, selfTestDocs, exampleDocs)
	if err != nil {
		return "", err
	}
	cartonToml, err := marshalDoc(doc)
	if err != nil {
		return "", err
	}
	entries["carton.toml"] = cartonToml

	if in.ModelDir != "" {
		if err := addModelDir(entries, in.ModelDir); err != nil {
			return "", err
		}
	}

	manifest := NewManifest()
	for p, data := range entries {
		manifest.Add(p, SHA256Hex(data))
	}
	manifestBytes := manifest.Marshal()
	digest := SHA256Hex(manifestBytes)

	zw := zip.NewWriter(w)
	if err := writeEntry(zw, "MANIFEST", manifestBytes, zip.Store); err != nil {
		return "", err
	}
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := writeEntry(zw, p, entries[p], vfs.ZstdMethod); err != nil {
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return digest, nil
}

func writeEntry(zw *zip.Writer, name string, data []byte, method uint16) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return err
	}
	_, err = fw.Write(data)
	return err
}

func gatherTests(tw *tensorWriter, tests []SaveTest) ([]tomlTest, error) {
	docs := make([]tomlTest, 0, len(tests))
	for _, t := range tests {
		doc := tomlTest{Name: t.Name, Inputs: map[string]string{}, Outputs: map[string]string{}}
		for name, tv := range t.Inputs {
			key, err := tw.Put(tv)
			if err != nil {
				return nil, fmt.Errorf("pack: self-test %q input %q: %w", t.Name, name, err)
			}
			doc.Inputs[name] = key
		}
		for name, tv := range t.Outputs {
			key, err := tw.Put(tv)
			if err != nil {
				return nil, fmt.Errorf("pack: self-test %q output %q: %w", t.Name, name, err)
			}
			doc.Outputs[name] = key
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// validateRelPath enforces §4.7 step 2: misc-file keys must be
// normalized relative paths with no parent-directory references.
func validateRelPath(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if path.IsAbs(key) {
		return fmt.Errorf("must be relative, got %q", key)
	}
	clean := path.Clean(key)
	if clean != key || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("must be a normalized path with no parent references, got %q", key)
	}
	return nil
}

// addModelDir walks dir following symlinks (§4.7 step 5) and adds every
// regular file under model/, keyed by its slash-separated path relative
// to dir. rel is the model/-relative prefix already accumulated when
// descending into a symlinked subdirectory.
func addModelDir(entries map[string][]byte, dir string) error {
	return walkModelDir(entries, dir, "")
}

func walkModelDir(entries map[string][]byte, dir, rel string) error {
	children, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, child := range children {
		p := filepath.Join(dir, child.Name())
		childRel := path.Join(rel, child.Name())

		fi, err := os.Stat(p) // follows symlinks
		if err != nil {
			return fmt.Errorf("pack: %q: %w", p, err)
		}
		if fi.IsDir() {
			if err := walkModelDir(entries, p, childRel); err != nil {
				return err
			}
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		entries["model/"+childRel] = data
	}
	return nil
}
