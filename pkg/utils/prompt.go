package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"golang.org/x/term"

	"github.com/picogrid/biosim/pkg/simulation"
	"github.com/picogrid/biosim/pkg/units"
)

// EnvPrefix prefixes parameter overrides, e.g. BIOSIM_RUNTIME="2 ns".
const EnvPrefix = "BIOSIM_"

// SkipPromptsEnv disables interactive prompts when set to true.
const SkipPromptsEnv = "BIOSIM_SKIP_PROMPTS"

// Interactive reports whether prompts may be shown: stdin and stdout are
// terminals and BIOSIM_SKIP_PROMPTS is not true.
func Interactive() bool {
	if skip, _ := strconv.ParseBool(os.Getenv(SkipPromptsEnv)); skip {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// PromptForParameters prompts the user for protocol parameters. Values
// already in preset are kept without prompting.
func PromptForParameters(params []simulation.Parameter, preset map[string]interface{}) (map[string]interface{}, error) {
	return promptAll(params, preset, Interactive())
}

func promptAll(params []simulation.Parameter, preset map[string]interface{}, interactive bool) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(params))
	for k, v := range preset {
		result[k] = v
	}

	for _, param := range params {
		if _, ok := result[param.Name]; ok {
			continue
		}
		value, err := promptForParameter(param, interactive)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", param.Name, err)
		}
		if value != nil {
			result[param.Name] = value
		}
	}

	return result, nil
}

func envKey(param simulation.Parameter) string {
	return EnvPrefix + strings.ToUpper(param.Name)
}

// promptForParameter prompts for a single parameter
func promptForParameter(param simulation.Parameter, interactive bool) (interface{}, error) {
	if envValue := os.Getenv(envKey(param)); envValue != "" {
		parsed, err := parseValue(envValue, param)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", envKey(param), err)
		}
		if !interactive {
			return parsed, nil
		}
		param.Default = parsed
	}

	if !interactive {
		if param.Default != nil {
			return param.Default, nil
		}
		if param.Required {
			return nil, fmt.Errorf("required parameter %s not provided and no default available", param.Name)
		}
		return nil, nil
	}

	switch param.Type {
	case "integer":
		return promptInteger(param)
	case "float":
		return promptFloat(param)
	case "float_list":
		return promptFloatList(param)
	case "quantity":
		return promptQuantity(param)
	case "string":
		return promptString(param)
	case "boolean":
		return promptBoolean(param)
	default:
		return nil, fmt.Errorf("unsupported parameter type: %s", param.Type)
	}
}

// parseValue parses a text value according to the parameter type
func parseValue(value string, param simulation.Parameter) (interface{}, error) {
	switch param.Type {
	case "integer":
		v, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, err
		}
		return v, checkRange(float64(v), param)
	case "float":
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, err
		}
		return v, checkRange(v, param)
	case "float_list":
		return parseFloatList(value)
	case "quantity":
		return value, validateQuantity(param.Name, value)
	case "string":
		if len(param.Options) > 0 && !contains(param.Options, value) {
			return nil, fmt.Errorf("must be one of %s", strings.Join(param.Options, ", "))
		}
		return value, nil
	case "boolean":
		return strconv.ParseBool(value)
	default:
		return nil, fmt.Errorf("unsupported parameter type: %s", param.Type)
	}
}

func parseFloatList(value string) ([]float64, error) {
	var out []float64
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", field)
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("list is empty")
	}
	return out, nil
}

// validateQuantity checks that value parses as the quantity the parameter
// holds. Pressure also accepts "none".
func validateQuantity(name, value string) error {
	var err error
	switch {
	case name == "pressure":
		if strings.EqualFold(strings.TrimSpace(value), "none") {
			return nil
		}
		_, err = units.ParsePressure(value)
	case strings.HasPrefix(name, "temperature"):
		_, err = units.ParseTemperature(value)
	default:
		_, err = units.ParseTime(value)
	}
	return err
}

func checkRange(value float64, param simulation.Parameter) error {
	if param.Min != nil {
		if minRange := toFloat64(param.Min); value < minRange {
			return fmt.Errorf("value must be at least %g", minRange)
		}
	}
	if param.Max != nil {
		if maxRange := toFloat64(param.Max); value > maxRange {
			return fmt.Errorf("value must be at most %g", maxRange)
		}
	}
	return nil
}

// validator adapts parseValue to a survey validator
func validator(param simulation.Parameter) survey.Validator {
	return func(val interface{}) error {
		s, _ := val.(string)
		_, err := parseValue(s, param)
		return err
	}
}

func defaultString(param simulation.Parameter) string {
	switch v := param.Default.(type) {
	case nil:
		return ""
	case []float64:
		parts := make([]string, len(v))
		for i, f := range v {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strings.Join(parts, ", ")
	case []interface{}:
		parts := make([]string, len(v))
		for i, f := range v {
			parts[i] = fmt.Sprint(f)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func askInput(param simulation.Parameter, help string) (string, error) {
	prompt := &survey.Input{
		Message: param.Description,
		Default: defaultString(param),
		Help:    help,
	}
	var result string
	opts := []survey.AskOpt{survey.WithValidator(validator(param))}
	if param.Required {
		opts = append(opts, survey.WithValidator(survey.Required))
	}
	if err := survey.AskOne(prompt, &result, opts...); err != nil {
		return "", err
	}
	return result, nil
}

func promptInteger(param simulation.Parameter) (interface{}, error) {
	result, err := askInput(param, "")
	if err != nil {
		return nil, err
	}
	return parseValue(result, param)
}

func promptFloat(param simulation.Parameter) (interface{}, error) {
	result, err := askInput(param, "")
	if err != nil {
		return nil, err
	}
	return parseValue(result, param)
}

func promptFloatList(param simulation.Parameter) (interface{}, error) {
	result, err := askInput(param, "Comma separated numbers, e.g. 0.0, 0.5, 1.0")
	if err != nil {
		return nil, err
	}
	return parseFloatList(result)
}

func promptQuantity(param simulation.Parameter) (interface{}, error) {
	return askInput(param, "A value with units, e.g. 2 fs, 300 K or 1 atm")
}

func promptString(param simulation.Parameter) (interface{}, error) {
	// If options are provided, use a select prompt
	if len(param.Options) > 0 {
		prompt := &survey.Select{
			Message: param.Description,
			Options: param.Options,
			Default: defaultString(param),
		}
		var result string
		if err := survey.AskOne(prompt, &result); err != nil {
			return nil, err
		}
		return result, nil
	}
	return askInput(param, "")
}

func promptBoolean(param simulation.Parameter) (interface{}, error) {
	defaultBool := false
	switch v := param.Default.(type) {
	case bool:
		defaultBool = v
	case string:
		defaultBool = v == "true" || v == "yes" || v == "1"
	}

	prompt := &survey.Confirm{
		Message: param.Description,
		Default: defaultBool,
	}

	var result bool
	if err := survey.AskOne(prompt, &result); err != nil {
		return false, err
	}

	return result, nil
}

// Select asks the user to pick one of options. Without a terminal the
// default is returned, or an error when there is none.
func Select(message string, options []string, def string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("nothing to choose from")
	}
	if !Interactive() {
		if def != "" {
			return def, nil
		}
		if len(options) == 1 {
			return options[0], nil
		}
		return "", fmt.Errorf("%s: no default and prompts are disabled", strings.TrimSuffix(message, ":"))
	}
	prompt := &survey.Select{Message: message, Options: options}
	if def != "" {
		prompt.Default = def
	}
	var selected string
	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	return selected, nil
}

// Confirm asks a yes/no question. Without a terminal it returns def.
func Confirm(message string, def bool) (bool, error) {
	if !Interactive() {
		return def, nil
	}
	var ok bool
	if err := survey.AskOne(&survey.Confirm{Message: message, Default: def}, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Input asks for a line of text. Without a terminal it returns def, or an
// error when required and there is no default.
func Input(message, def string, required bool) (string, error) {
	if !Interactive() {
		if required && def == "" {
			return "", fmt.Errorf("%s: no value and prompts are disabled", strings.TrimSuffix(message, ":"))
		}
		return def, nil
	}
	var result string
	var opts []survey.AskOpt
	if required {
		opts = append(opts, survey.WithValidator(survey.Required))
	}
	if err := survey.AskOne(&survey.Input{Message: message, Default: def}, &result, opts...); err != nil {
		return "", err
	}
	return result, nil
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

// Helper functions
func toFloat64(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}
