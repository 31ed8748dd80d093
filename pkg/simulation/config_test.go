package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/biosim/pkg/protocol"
)

func paramByName(t *testing.T, d Descriptor, name string) Parameter {
	t.Helper()
	for _, p := range d.Parameters {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("parameter %s not found in %s", name, d.Name)
	return Parameter{}
}

func TestDescribeEquilibration(t *testing.T) {
	d, err := Describe(protocol.KindEquilibration)
	require.NoError(t, err)

	names := make([]string, len(d.Parameters))
	for i, p := range d.Parameters {
		names[i] = p.Name
	}
	assert.Equal(t, []string{
		"timestep", "runtime", "temperature_start", "temperature_end",
		"pressure", "frames", "restraint",
	}, names)

	ts := paramByName(t, d, "timestep")
	assert.Equal(t, "quantity", ts.Type)
	assert.Equal(t, "2 fs", ts.Default)

	pressure := paramByName(t, d, "pressure")
	assert.Equal(t, "quantity", pressure.Type)
	assert.Equal(t, "none", pressure.Default)

	frames := paramByName(t, d, "frames")
	assert.Equal(t, "integer", frames.Type)
	assert.Equal(t, 20, frames.Default)

	restraint := paramByName(t, d, "restraint")
	assert.Equal(t, []string{"none", "backbone", "heavy", "all"}, restraint.Options)
}

func TestDescribeFreeEnergy(t *testing.T) {
	d, err := Describe(protocol.KindFreeEnergy)
	require.NoError(t, err)

	lambda := paramByName(t, d, "lambda")
	assert.Equal(t, "float", lambda.Type)
	assert.Equal(t, 0.0, lambda.Default)
	assert.Equal(t, "float_list", paramByName(t, d, "lambda_values").Type)
}

func TestDescriptors(t *testing.T) {
	all, err := Descriptors()
	require.NoError(t, err)
	require.Len(t, all, len(protocol.Kinds))
	assert.Equal(t, "custom", all[0].Name)
	assert.True(t, all[0].Parameters[0].Required)
}
