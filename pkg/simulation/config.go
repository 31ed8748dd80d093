package simulation

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/picogrid/biosim/pkg/protocol"
)

// Descriptor describes the parameters of a protocol kind, for prompting and
// listing
type Descriptor struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Category    string      `yaml:"category"`
	Parameters  []Parameter `yaml:"parameters"`
}

// Parameter defines a configurable protocol parameter
type Parameter struct {
	Name        string      `yaml:"name"`
	Type        string      `yaml:"type"` // integer, float, float_list, quantity, string, boolean
	Description string      `yaml:"description"`
	Default     interface{} `yaml:"default"`
	Required    bool        `yaml:"required"`
	Min         interface{} `yaml:"min,omitempty"`
	Max         interface{} `yaml:"max,omitempty"`
	Options     []string    `yaml:"options,omitempty"` // For string enums
}

var kindDescriptions = map[protocol.Kind]string{
	protocol.KindMinimisation:  "Energy minimisation",
	protocol.KindEquilibration: "Equilibration, optionally heating or restrained",
	protocol.KindProduction:    "Production molecular dynamics",
	protocol.KindFreeEnergy:    "One lambda window of an alchemical free-energy perturbation",
	protocol.KindCustom:        "Hand-written engine configuration",
}

var paramDescriptions = map[string]string{
	"steps":             "Maximum number of minimisation steps",
	"timestep":          "Integration timestep (e.g. 2 fs)",
	"runtime":           "Simulation run time (e.g. 1 ns)",
	"temperature":       "Temperature (e.g. 300 K)",
	"temperature_start": "Starting temperature",
	"temperature_end":   "Final temperature",
	"pressure":          "Pressure (e.g. 1 atm), or none for constant volume",
	"frames":            "Number of trajectory frames to record",
	"restraint":         "Atoms to restrain",
	"restart":           "Continue from the velocities of the previous run",
	"lambda_values":     "Lambda schedule, comma separated",
	"lambda":            "Lambda value of this window",
	"config_file":       "Path to the engine config file",
}

var quantityParams = map[string]bool{
	"timestep": true, "runtime": true, "temperature": true,
	"temperature_start": true, "temperature_end": true, "pressure": true,
}

// Describe lists the parameters of kind with the defaults of its protocol.
func Describe(kind protocol.Kind) (Descriptor, error) {
	desc := Descriptor{
		Name:        string(kind),
		Description: kindDescriptions[kind],
		Category:    "protocol",
	}
	if kind == protocol.KindCustom {
		desc.Parameters = []Parameter{{
			Name:        "config_file",
			Type:        "string",
			Description: paramDescriptions["config_file"],
			Required:    true,
		}}
		return desc, nil
	}

	p, err := protocol.New(kind)
	if err != nil {
		return Descriptor{}, err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to describe %s: %w", kind, err)
	}
	// Decoding into a node keeps the field order of the protocol struct.
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return Descriptor{}, fmt.Errorf("failed to describe %s: %w", kind, err)
	}
	fields := node.Content[0].Content
	for i := 0; i+1 < len(fields); i += 2 {
		var value interface{}
		if err := fields[i+1].Decode(&value); err != nil {
			return Descriptor{}, fmt.Errorf("failed to describe %s: %w", kind, err)
		}
		desc.Parameters = append(desc.Parameters, parameter(fields[i].Value, value))
	}
	return desc, nil
}

func parameter(name string, value interface{}) Parameter {
	param := Parameter{
		Name:        name,
		Description: paramDescriptions[name],
		Default:     value,
	}
	switch v := value.(type) {
	case int:
		param.Type = "integer"
		param.Min = 1
	case float64:
		param.Type = "float"
	case bool:
		param.Type = "boolean"
	case []interface{}:
		param.Type = "float_list"
	case nil:
		param.Type = "quantity"
		param.Default = "none"
	default:
		param.Type = "string"
		param.Default = fmt.Sprint(v)
	}
	if quantityParams[name] {
		param.Type = "quantity"
	}
	// YAML writes whole floats without a decimal point.
	if name == "lambda" {
		param.Type = "float"
		param.Default = toFloat64(value)
		param.Min, param.Max = 0.0, 1.0
	}
	if name == "restraint" {
		param.Options = []string{"none", "backbone", "heavy", "all"}
	}
	return param
}

// Descriptors describes every protocol kind, sorted by name.
func Descriptors() ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(protocol.Kinds))
	for _, kind := range protocol.Kinds {
		d, err := Describe(kind)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func toFloat64(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	default:
		return 0
	}
}
