package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	"gopkg.in/yaml.v3"

	"github.com/picogrid/biosim/pkg/protocol"
	"github.com/picogrid/biosim/pkg/simerr"
)

// Load reads a pipeline from a .yaml, .yml or .hcl file. Relative stage work
// directories and config files are resolved against the file's directory.
func Load(path string) (*Pipeline, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	case ".hcl":
		return LoadHCL(path)
	}
	return nil, fmt.Errorf("%w: unknown pipeline file type %q", simerr.ErrValidation, filepath.Ext(path))
}

type yamlFile struct {
	Name    string      `yaml:"name"`
	WorkDir string      `yaml:"work_dir"`
	Stages  []yamlStage `yaml:"stages"`
}

type yamlStage struct {
	Name       string         `yaml:"name"`
	Engine     string         `yaml:"engine"`
	WorkDir    string         `yaml:"work_dir"`
	Platform   string         `yaml:"platform"`
	Executable string         `yaml:"executable"`
	Seed       *int64         `yaml:"seed"`
	Protocol   map[string]any `yaml:"protocol"`
}

// LoadYAML reads a pipeline with a top-level stages list:
//
//	name: prepare
//	stages:
//	  - name: minimise
//	    engine: somd
//	    protocol:
//	      protocol: minimisation
//	      steps: 500
func LoadYAML(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read pipeline file: %v", simerr.ErrIO, err)
	}
	var file yamlFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", simerr.ErrValidation, path, err)
	}

	dir := filepath.Dir(path)
	p := &Pipeline{Name: file.Name, WorkDir: resolve(dir, file.WorkDir)}
	if p.Name == "" {
		p.Name = baseName(path)
	}
	for i, s := range file.Stages {
		if s.Protocol == nil {
			return nil, fmt.Errorf("%w: stage %d has no protocol", simerr.ErrValidation, i+1)
		}
		proto, err := decodeProtocol(s.Protocol, dir)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", s.Name, err)
		}
		p.Stages = append(p.Stages, Stage{
			Name:       s.Name,
			Engine:     s.Engine,
			WorkDir:    resolve(dir, s.WorkDir),
			Platform:   s.Platform,
			Executable: s.Executable,
			Seed:       s.Seed,
			Protocol:   proto,
		})
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

type hclFile struct {
	Name    string      `hcl:"name,optional"`
	WorkDir string      `hcl:"work_dir,optional"`
	Stages  []*hclStage `hcl:"stage,block"`
}

type hclStage struct {
	Name       string      `hcl:"name,label"`
	Engine     string      `hcl:"engine"`
	WorkDir    string      `hcl:"work_dir,optional"`
	Platform   string      `hcl:"platform,optional"`
	Executable string      `hcl:"executable,optional"`
	Seed       *int64      `hcl:"seed,optional"`
	Protocol   hclProtocol `hcl:"protocol,block"`
}

type hclProtocol struct {
	Kind string   `hcl:"kind,label"`
	Body hcl.Body `hcl:",remain"`
}

// LoadHCL reads a pipeline of stage blocks:
//
//	stage "minimise" {
//	  engine = "somd"
//	  protocol "minimisation" {
//	    steps = 500
//	  }
//	}
func LoadHCL(path string) (*Pipeline, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to parse HCL file %s: %v", simerr.ErrValidation, path, diags)
	}

	var file hclFile
	if diags := gohcl.DecodeBody(f.Body, nil, &file); diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to decode HCL file %s: %v", simerr.ErrValidation, path, diags)
	}

	dir := filepath.Dir(path)
	p := &Pipeline{Name: file.Name, WorkDir: resolve(dir, file.WorkDir)}
	if p.Name == "" {
		p.Name = baseName(path)
	}
	for _, s := range file.Stages {
		params, err := protocolParams(s.Protocol)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", s.Name, err)
		}
		proto, err := decodeProtocol(params, dir)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", s.Name, err)
		}
		p.Stages = append(p.Stages, Stage{
			Name:       s.Name,
			Engine:     s.Engine,
			WorkDir:    resolve(dir, s.WorkDir),
			Platform:   s.Platform,
			Executable: s.Executable,
			Seed:       s.Seed,
			Protocol:   proto,
		})
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// protocolParams evaluates the attributes of a protocol block. The block
// label names the protocol kind.
func protocolParams(block hclProtocol) (map[string]any, error) {
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %v", simerr.ErrValidation, diags)
	}
	params := map[string]any{protocol.KindKey: block.Kind}
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%w: %v", simerr.ErrValidation, diags)
		}
		native, err := ctyToNative(val)
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %q: %v", simerr.ErrValidation, name, err)
		}
		params[name] = native
	}
	return params, nil
}

// ctyToNative converts a cty value to plain Go values. Whole numbers become
// int64 so integer protocol fields decode without loss.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			var i int64
			if err := gocty.FromCtyValue(v, &i); err == nil {
				return i, nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			n, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %s", ty.FriendlyName())
}

func decodeProtocol(params map[string]any, dir string) (protocol.Protocol, error) {
	if err := protocol.ResolveConfigFile(params, dir); err != nil {
		return nil, err
	}
	return protocol.Decode(params)
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
