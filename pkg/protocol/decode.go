package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/units"
)

// KindKey is the parameter naming the protocol variant.
const KindKey = "protocol"

// configFileKey points a custom protocol at a file of config lines.
const configFileKey = "config_file"

func isNone(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && (strings.EqualFold(s, "none") || strings.TrimSpace(s) == "")
}

// Decode builds a protocol from loosely typed parameters such as those read
// from YAML, HCL or the command line. Missing parameters keep their defaults.
// Quantities are given as strings with units, e.g. "2 fs" or "300 K".
func Decode(params map[string]any) (Protocol, error) {
	raw, ok := params[KindKey]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q parameter", simerr.ErrValidation, KindKey)
	}
	name, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %q must be a string, got %T", simerr.ErrValidation, KindKey, raw)
	}
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	p, err := New(kind)
	if err != nil {
		return nil, err
	}

	rest := make(map[string]any, len(params))
	clearPressure := false
	for k, v := range params {
		switch {
		case k == KindKey:
		case k == "pressure" && isNone(v):
			clearPressure = true
		case k == "config":
			if s, ok := v.(string); ok {
				v = splitLines(s)
			}
			rest[k] = v
		default:
			rest[k] = v
		}
	}

	// mapstructure writes lists into an existing slice by index, so a given
	// schedule must start from an empty one to replace the default.
	if fe, ok := p.(*FreeEnergy); ok {
		if _, ok := rest["lambda_values"]; ok {
			fe.LambdaValues = nil
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           p,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(rest); err != nil {
		return nil, fmt.Errorf("%w: invalid %s protocol: %v", simerr.ErrValidation, kind, unwrapDecode(err))
	}

	if clearPressure {
		switch v := p.(type) {
		case *Equilibration:
			v.Pressure = nil
		case *Production:
			v.Pressure = nil
		case *FreeEnergy:
			v.Pressure = nil
		default:
			return nil, fmt.Errorf("%w: %s protocol has no pressure", simerr.ErrValidation, kind)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// unwrapDecode surfaces the first validation error raised by a unit hook, so
// the message names the offending value rather than the decoder internals.
func unwrapDecode(err error) error {
	var merr *mapstructure.Error
	if errors.As(err, &merr) && len(merr.Errors) == 1 {
		return errors.New(merr.Errors[0])
	}
	return err
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		out = append(out, strings.TrimRight(line, "\r"))
	}
	return out
}

// Load reads a protocol from a YAML file. A custom protocol may name a
// config_file relative to the protocol file.
func Load(path string) (Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read protocol file: %v", simerr.ErrIO, err)
	}
	var params map[string]any
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", simerr.ErrValidation, path, err)
	}
	if params == nil {
		return nil, fmt.Errorf("%w: %s is empty", simerr.ErrValidation, path)
	}
	if err := ResolveConfigFile(params, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return Decode(params)
}

// ResolveConfigFile replaces a config_file parameter with the lines of the
// file it names. Relative paths are resolved against dir.
func ResolveConfigFile(params map[string]any, dir string) error {
	v, ok := params[configFileKey]
	if !ok {
		return nil
	}
	delete(params, configFileKey)
	name, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: %q must be a path", simerr.ErrValidation, configFileKey)
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(dir, name)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("%w: failed to read config file: %v", simerr.ErrIO, err)
	}
	params["config"] = splitLines(string(data))
	return nil
}

// Marshal renders a protocol as YAML in the form Load reads.
func Marshal(p Protocol) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s: %s\n", KindKey, p.Kind())
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Summary returns the main parameters of a protocol as ordered key/value
// pairs for display.
func Summary(p Protocol) [][2]string {
	pressure := func(pr *units.Pressure) string {
		if pr == nil {
			return "none"
		}
		return pr.String()
	}
	switch v := p.(type) {
	case *Minimisation:
		return [][2]string{{"steps", fmt.Sprint(v.Steps)}}
	case *Equilibration:
		return [][2]string{
			{"timestep", v.Timestep.String()},
			{"runtime", v.Runtime.String()},
			{"temperature_start", v.TemperatureStart.String()},
			{"temperature_end", v.TemperatureEnd.String()},
			{"pressure", pressure(v.Pressure)},
			{"frames", fmt.Sprint(v.Frames)},
			{"restraint", string(v.Restraint)},
		}
	case *Production:
		return [][2]string{
			{"timestep", v.Timestep.String()},
			{"runtime", v.Runtime.String()},
			{"temperature", v.Temperature.String()},
			{"pressure", pressure(v.Pressure)},
			{"frames", fmt.Sprint(v.Frames)},
			{"restart", fmt.Sprint(v.Restart)},
		}
	case *FreeEnergy:
		return [][2]string{
			{"timestep", v.Timestep.String()},
			{"runtime", v.Runtime.String()},
			{"temperature", v.Temperature.String()},
			{"pressure", pressure(v.Pressure)},
			{"frames", fmt.Sprint(v.Frames)},
			{"lambda", fmt.Sprint(v.Lambda)},
			{"lambda_values", fmt.Sprint(v.LambdaValues)},
		}
	case *Custom:
		return [][2]string{{"config", fmt.Sprintf("%d lines", len(v.Config))}}
	}
	return nil
}
