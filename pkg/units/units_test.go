package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/biosim/pkg/simerr"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		mag  float64
		unit TimeUnit
	}{
		{"2 fs", 2, Femtosecond},
		{"0.2 ns", 0.2, Nanosecond},
		{"0.2 nanoseconds", 0.2, Nanosecond},
		{"4NS", 4, Nanosecond},
		{"1e-3 ps", 1e-3, Picosecond},
		{"3 hours", 3, Hour},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.mag, got.Magnitude)
			assert.Equal(t, tt.unit, got.Unit)
		})
	}
}

func TestParseTimeRejectsUnknownUnit(t *testing.T) {
	_, err := ParseTime("2 fortnights")
	assert.ErrorIs(t, err, simerr.ErrValidation)

	_, err = ParseTime("fs")
	assert.ErrorIs(t, err, simerr.ErrValidation)

	_, err = ParseTime("12")
	assert.ErrorIs(t, err, simerr.ErrValidation)
}

func TestTimeConversions(t *testing.T) {
	ts := NewTime(2, Femtosecond)
	assert.InDelta(t, 0.002, ts.Picoseconds(), 1e-15)
	assert.InDelta(t, 2e-6, ts.Nanoseconds(), 1e-18)

	rt := NewTime(0.2, Nanosecond)
	assert.InDelta(t, 200000, rt.Femtoseconds(), 1e-6)
	assert.InDelta(t, 100000, rt.Femtoseconds()/ts.Femtoseconds(), 1e-6)
}

func TestRoundTrips(t *testing.T) {
	for _, u := range timeOrder {
		orig := NewTime(1.2345, u)
		back := NewTime(orig.Femtoseconds(), Femtosecond).In(u)
		assert.InEpsilon(t, orig.Magnitude, back, 1e-9, "time unit %s", u)
	}
	for _, u := range temperatureOrder {
		orig := MustTemperature(310.5, Kelvin).To(u)
		back, err := NewTemperature(orig.Kelvin(), Kelvin)
		require.NoError(t, err)
		assert.InEpsilon(t, orig.Magnitude, back.In(u), 1e-9, "temperature unit %s", u)
	}
	for _, u := range pressureOrder {
		orig := NewPressure(1.5, u)
		back := NewPressure(orig.Atm(), Atmosphere).In(u)
		assert.InEpsilon(t, orig.Magnitude, back, 1e-9, "pressure unit %s", u)
	}
	for _, u := range lengthOrder {
		orig := NewLength(12.5, u)
		back := NewLength(orig.Angstroms(), Angstrom).In(u)
		assert.InEpsilon(t, orig.Magnitude, back, 1e-9, "length unit %s", u)
	}
}

func TestTemperature(t *testing.T) {
	c, err := ParseTemperature("25 degrees celsius")
	require.NoError(t, err)
	assert.Equal(t, Celsius, c.Unit)
	assert.InDelta(t, 298.15, c.Kelvin(), 1e-9)

	f, err := ParseTemperature("32 F")
	require.NoError(t, err)
	assert.InDelta(t, 273.15, f.Kelvin(), 1e-9)

	_, err = NewTemperature(-1, Kelvin)
	assert.ErrorIs(t, err, simerr.ErrValidation)

	_, err = ParseTemperature("-300 C")
	assert.ErrorIs(t, err, simerr.ErrValidation)

	zero, err := NewTemperature(0, Kelvin)
	require.NoError(t, err)
	assert.Zero(t, zero.Kelvin())
}

func TestTemperatureArithmetic(t *testing.T) {
	base := MustTemperature(300, Kelvin)

	sum, err := base.Add(MustTemperature(10, Kelvin))
	require.NoError(t, err)
	assert.Equal(t, Kelvin, sum.Unit)
	assert.InDelta(t, 310.0, sum.Magnitude, 1e-9)

	sum, err = base.Add(MustTemperature(-263.15, Celsius))
	require.NoError(t, err)
	assert.InDelta(t, 310.0, sum.Kelvin(), 1e-9)

	diff, err := base.Sub(MustTemperature(100, Kelvin))
	require.NoError(t, err)
	assert.InDelta(t, 200.0, diff.Kelvin(), 1e-9)

	_, err = base.Sub(MustTemperature(301, Kelvin))
	assert.ErrorIs(t, err, simerr.ErrValidation)

	half, err := base.Scale(0.5)
	require.NoError(t, err)
	assert.InDelta(t, 150.0, half.Kelvin(), 1e-9)

	_, err = base.Scale(-1)
	assert.ErrorIs(t, err, simerr.ErrValidation)

	warm := MustTemperature(25, Celsius)
	_, err = warm.Add(base)
	assert.ErrorIs(t, err, simerr.ErrValidation)
	_, err = warm.Scale(2)
	assert.ErrorIs(t, err, simerr.ErrValidation)
}

func TestPressureAndLength(t *testing.T) {
	p, err := ParsePressure("1.01325 bar")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p.Atm(), 1e-12)

	l, err := ParseLength("1 nm")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, l.Angstroms(), 1e-12)
}

func TestTextMarshalling(t *testing.T) {
	var ts Time
	require.NoError(t, ts.UnmarshalText([]byte("2 femtoseconds")))
	text, err := ts.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2 fs", string(text))

	var temp Temperature
	assert.Error(t, temp.UnmarshalText([]byte("-5 K")))
	require.NoError(t, temp.UnmarshalText([]byte("300 kelvin")))
	assert.Equal(t, "300 K", temp.String())
}
