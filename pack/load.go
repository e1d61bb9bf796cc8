package pack

import (
	"fmt"

	"github.com/carton-ml/carton/tensor"
	"github.com/carton-ml/carton/vfs"
)

// LoadResult is §4.7 Load's output: the decoded info document plus the
// manifest hash the runner sees as model identity.
type LoadResult struct {
	Info           *CartonInfo
	ManifestSHA256 string
}

// Load parses carton.toml off fs, hashes MANIFEST, and wires up lazy
// loaders for misc/ entries and self-test/example tensor references
// (§4.7 "Load").
func Load(fs vfs.FS) (*LoadResult, error) {
	manifestBytes, err := fs.Read("MANIFEST")
	if err != nil {
		return nil, fmt.Errorf("pack: not a valid carton: missing MANIFEST: %w", err)
	}
	manifestSHA256 := SHA256Hex(manifestBytes)

	cartonTomlBytes, err := fs.Read("carton.toml")
	if err != nil {
		return nil, fmt.Errorf("pack: not a valid carton: missing carton.toml: %w", err)
	}
	doc, err := parseDoc(cartonTomlBytes)
	if err != nil {
		return nil, err
	}

	info := &CartonInfo{
		SpecVersion:       doc.SpecVersion,
		ModelName:         doc.ModelName,
		ShortDescription:  doc.ShortDescription,
		Description:       doc.Description,
		RequiredPlatforms: doc.RequiredPlatforms,
		MiscFiles:         map[string]LazyFile{},
		Runner: RunnerInfo{
			Name:                     doc.Runner.Name,
			RequiredFrameworkVersion: doc.Runner.RequiredFrameworkVersion,
			RunnerCompatVersion:      doc.Runner.RunnerCompatVersion,
			Opts:                     doc.Runner.Opts,
		},
	}
	for _, in := range doc.Inputs {
		spec, err := tensorSpecFromWire(in)
		if err != nil {
			return nil, err
		}
		info.Inputs = append(info.Inputs, spec)
	}
	for _, out := range doc.Outputs {
		spec, err := tensorSpecFromWire(out)
		if err != nil {
			return nil, err
		}
		info.Outputs = append(info.Outputs, spec)
	}

	for key, p := range doc.MiscFiles {
		p := p // capture per iteration for the closure below
		info.MiscFiles[key] = func() ([]byte, error) { return fs.Read(p) }
	}

	var tr *tensorReader
	if indexData, err := fs.Read("tensor_data/index.toml"); err == nil {
		tr, err = newTensorReader(indexData, fs.Read)
		if err != nil {
			return nil, err
		}
	}

	toLazy := func(testName, argName, key string) (LazyTensor, error) {
		if tr == nil {
			return nil, fmt.Errorf("pack: %q references tensor %q but no tensor_data/index.toml is present", testName, argName)
		}
		key := key
		return func() (*tensor.Tensor, error) { return tr.Get(key) }, nil
	}

	buildTest := func(d tomlTest) (name string, inputs, outputs map[string]LazyTensor, err error) {
		inputs = map[string]LazyTensor{}
		outputs = map[string]LazyTensor{}
		for argName, key := range d.Inputs {
			lt, err := toLazy(d.Name, argName, key)
			if err != nil {
				return "", nil, nil, err
			}
			inputs[argName] = lt
		}
		for argName, key := range d.Outputs {
			lt, err := toLazy(d.Name, argName, key)
			if err != nil {
				return "", nil, nil, err
			}
			outputs[argName] = lt
		}
		return d.Name, inputs, outputs, nil
	}

	for _, d := range doc.SelfTests {
		name, inputs, outputs, err := buildTest(d)
		if err != nil {
			return nil, err
		}
		info.SelfTests = append(info.SelfTests, SelfTest{Name: name, Inputs: inputs, Outputs: outputs})
	}
	for _, d := range doc.Examples {
		name, inputs, outputs, err := buildTest(d)
		if err != nil {
			return nil, err
		}
		info.Examples = append(info.Examples, Example{Name: name, Inputs: inputs, Outputs: outputs})
	}

	return &LoadResult{Info: info, ManifestSHA256: manifestSHA256}, nil
}
