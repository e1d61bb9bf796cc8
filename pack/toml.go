package pack

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// tomlDoc is carton.toml's wire shape. Tensor shapes are declared `any`
// rather than a concrete Go type because §4.7 step 4 requires them to
// serialize as one of three different TOML value shapes (a bare string,
// or a heterogeneous array) depending on ShapeSpec.Kind; go-toml/v2
// marshals and unmarshals `any` fields structurally, so the wildcard-ness
// lives entirely in ShapeSpec.ToWire/ShapeSpecFromWire rather than in a
// custom Marshaler.
type tomlDoc struct {
	SpecVersion       int      `toml:"spec_version"`
	ModelName         string   `toml:"model_name"`
	ShortDescription  string   `toml:"short_description,omitempty"`
	Description       string   `toml:"description,omitempty"`
	RequiredPlatforms []string `toml:"required_platforms,omitempty"`

	Inputs  []tomlTensorSpec `toml:"inputs,omitempty"`
	Outputs []tomlTensorSpec `toml:"outputs,omitempty"`

	SelfTests []tomlTest `toml:"self_tests,omitempty"`
	Examples  []tomlTest `toml:"examples,omitempty"`

	MiscFiles map[string]string `toml:"misc_files,omitempty"`

	Runner tomlRunner `toml:"runner"`
}

type tomlTensorSpec struct {
	Name  string `toml:"name"`
	DType string `toml:"dtype"`
	Shape any    `toml:"shape"`
}

type tomlTest struct {
	Name    string            `toml:"name"`
	Inputs  map[string]string `toml:"inputs,omitempty"`
	Outputs map[string]string `toml:"outputs,omitempty"`
}

type tomlRunner struct {
	Name                     string         `toml:"name"`
	RequiredFrameworkVersion string         `toml:"required_framework_version,omitempty"`
	RunnerCompatVersion      string         `toml:"runner_compat_version,omitempty"`
	Opts                     map[string]any `toml:"opts,omitempty"`
}

func tensorSpecToWire(t TensorSpec) tomlTensorSpec {
	return tomlTensorSpec{Name: t.Name, DType: string(t.DType), Shape: t.Shape.ToWire()}
}

func tensorSpecFromWire(t tomlTensorSpec) (TensorSpec, error) {
	shape, err := ShapeSpecFromWire(t.Shape)
	if err != nil {
		return TensorSpec{}, fmt.Errorf("pack: tensor %q: %w", t.Name, err)
	}
	return TensorSpec{Name: t.Name, DType: DType(t.DType), Shape: shape}, nil
}

// toDoc builds the wire document for carton.toml. Misc-file and
// self-test/example tensor values are keyed by their on-disk path rather
// than inlined — callers resolve those paths against tensor_data/ or
// misc/ separately (§4.7 step 2-3).
func toDoc(info *CartonInfo, miscPaths map[string]string, selfTestPaths, examplePaths []tomlTest) (*tomlDoc, error) {
	doc := &tomlDoc{
		SpecVersion:       1,
		ModelName:         info.ModelName,
		ShortDescription:  info.ShortDescription,
		Description:       info.Description,
		RequiredPlatforms: info.RequiredPlatforms,
		MiscFiles:         miscPaths,
		SelfTests:         selfTestPaths,
		Examples:          examplePaths,
		Runner: tomlRunner{
			Name:                     info.Runner.Name,
			RequiredFrameworkVersion: info.Runner.RequiredFrameworkVersion,
			RunnerCompatVersion:      info.Runner.RunnerCompatVersion,
			Opts:                     info.Runner.Opts,
		},
	}
	for _, in := range info.Inputs {
		doc.Inputs = append(doc.Inputs, tensorSpecToWire(in))
	}
	for _, out := range info.Outputs {
		doc.Outputs = append(doc.Outputs, tensorSpecToWire(out))
	}
	return doc, nil
}

func marshalDoc(doc *tomlDoc) ([]byte, error) {
	return toml.Marshal(doc)
}

func parseDoc(data []byte) (*tomlDoc, error) {
	var doc tomlDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("pack: parsing carton.toml: %w", err)
	}
	if doc.SpecVersion != 1 {
		return nil, fmt.Errorf("pack: unsupported spec_version %d", doc.SpecVersion)
	}
	return &doc, nil
}
