package results

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/biosim/pkg/molio"
	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/system"
)

func appendFile(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestGradientSeriesIsIncremental(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradients.dat")
	s := NewGradientSeries(path)

	vals, err := s.Values()
	require.NoError(t, err)
	assert.Empty(t, vals)
	_, ok, err := s.Last()
	require.NoError(t, err)
	assert.False(t, ok)

	appendFile(t, path, "# lambda 0.5\n#   step   energy   gradient\n100 -10.0 1.5\n200 -11.0 2.5\n")
	vals, err = s.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5}, vals)

	// A half-written line is held back until it is complete.
	appendFile(t, path, "300 -12.0 3.5\n400 -13.0 4")
	vals, err = s.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5, 3.5}, vals)

	appendFile(t, path, ".5\n500 -14.0 5.5\n")
	vals, err = s.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5, 3.5, 4.5, 5.5}, vals)

	last, ok, err := s.Last()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5.5, last)
}

func TestSeriesResetsOnTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradients.dat")
	require.NoError(t, os.WriteFile(path, []byte("1 1.0\n2 2.0\n3 3.0\n"), 0o644))
	s := NewGradientSeries(path)
	vals, err := s.Values()
	require.NoError(t, err)
	assert.Len(t, vals, 3)

	require.NoError(t, os.WriteFile(path, []byte("1 9.0\n"), 0o644))
	vals, err = s.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{9}, vals)
}

func TestSeriesRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradients.dat")
	require.NoError(t, os.WriteFile(path, []byte("1 abc\n"), 0o644))
	_, err := NewGradientSeries(path).Values()
	assert.ErrorIs(t, err, simerr.ErrIO)
}

func TestSeriesKeepsBatchOnParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradients.dat")
	s := NewGradientSeries(path)
	appendFile(t, path, "1 1.0\n")
	vals, err := s.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, vals)

	appendFile(t, path, "2 2.0\n3 abc\n4 4.0\n")
	_, err = s.Values()
	assert.ErrorIs(t, err, simerr.ErrIO)
	_, err = s.Values()
	assert.ErrorIs(t, err, simerr.ErrIO)

	// Rewriting the bad line lets the whole batch through.
	require.NoError(t, os.WriteFile(path, []byte("1 1.0\n2 2.0\n3 3.0\n4 4.0\n"), 0o644))
	vals, err = s.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, vals)
}

const mdout = `
          -------------------------------------------------------
          Amber 20 SANDER                              2020
          -------------------------------------------------------

Here is the input file:

  &cntrl
   imin=0, nstlim=1000, dt=0.002,
  /

   2.  CONTROL  DATA  FOR  THE  RUN
     ntx     =       1, irest   =       0, ntrx    =       1

   4.  RESULTS

 NSTEP =      500   TIME(PS) =       1.000  TEMP(K) =   299.12  PRESS =     0.0
 Etot   =     -1234.5678  EKtot   =       567.8901  EPtot      =     -1802.4579
 BOND   =        12.3456  ANGLE   =        34.5678  DIHED      =        56.7890
 1-4 NB =         4.5000  1-4 EEL =        50.2500  VDWAALS    =       100.0000
 EELEC  =     -2061.0000  EHBOND  =         0.0000  RESTRAINT  =         0.0000
 ------------------------------------------------------------------------------

 NSTEP =     1000   TIME(PS) =       2.000  TEMP(K) =   301.50  PRESS =     0.0
 Etot   =     -1230.0000  EKtot   =       570.0000  EPtot      =     -1800.0000
 BOND   =        12.0000  ANGLE   =        34.0000  DIHED      =        56.0000
 ------------------------------------------------------------------------------

      A V E R A G E S   O V E R    2 S T E P S

 NSTEP =     1000   TIME(PS) =       2.000  TEMP(K) =   300.31  PRESS =     0.0
 Etot   =     -1232.0000  EKtot   =       568.9000  EPtot      =     -1801.2000
`

func TestAmberEnergyMD(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amber.out")
	e := NewAmberEnergy(path)

	etot, err := e.Series("Etot")
	require.NoError(t, err)
	assert.Empty(t, etot)

	require.NoError(t, os.WriteFile(path, []byte(mdout), 0o644))
	etot, err = e.Series("Etot")
	require.NoError(t, err)
	assert.Equal(t, []float64{-1234.5678, -1230}, etot)

	times, err := e.Series("TIME(PS)")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, times)

	nb, err := e.Series("1-4 NB")
	require.NoError(t, err)
	assert.Equal(t, []float64{4.5}, nb)

	keys, err := e.Keys()
	require.NoError(t, err)
	assert.Contains(t, keys, "TEMP(K)")
	assert.Contains(t, keys, "EPtot")
}

const minout = `
   NSTEP       ENERGY          RMS            GMAX         NAME    NUMBER
      1      -1.0000E+03     1.2000E+01     5.0000E+01     O         123

 BOND    =       12.3456  ANGLE   =       34.5678  DIHED      =       56.7890

   NSTEP       ENERGY          RMS            GMAX         NAME    NUMBER
     50      -2.0000E+03     2.0000E+00     1.0000E+01     C1         45

 BOND    =       10.0000  ANGLE   =       30.0000  DIHED      =       50.0000
`

func TestAmberEnergyMinimisation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amber.out")
	require.NoError(t, os.WriteFile(path, []byte(minout), 0o644))
	e := NewAmberEnergy(path)

	// The second record is still open until something follows it.
	energy, err := e.Series("ENERGY")
	require.NoError(t, err)
	assert.Equal(t, []float64{-1000}, energy)

	appendFile(t, path, "\n                    FINAL RESULTS\n")
	energy, err = e.Series("ENERGY")
	require.NoError(t, err)
	assert.Equal(t, []float64{-1000, -2000}, energy)

	bond, err := e.Series("BOND")
	require.NoError(t, err)
	assert.Equal(t, []float64{12.3456, 10}, bond)
}

const mdlog = `
           Step           Time
              0        0.00000

   Energies (kJ/mol)
          Angle    Proper Dih. Ryckaert-Bell.          LJ-14     Coulomb-14
    2.01011e+03    1.33440e+02    3.31330e+02    6.43190e+02    8.38547e+03
        LJ (SR)   Coulomb (SR)      Potential    Kinetic En.   Total Energy
    1.00000e+04   -1.00000e+05   -8.00000e+04    1.50000e+04   -6.50000e+04

           Step           Time
            500        1.00000

   Energies (kJ/mol)
          Angle    Proper Dih. Ryckaert-Bell.          LJ-14     Coulomb-14
    2.00000e+03    1.30000e+02    3.30000e+02    6.40000e+02    8.30000e+03
        LJ (SR)   Coulomb (SR)      Potential    Kinetic En.   Total Energy
    1.10000e+04   -1.10000e+05   -8.10000e+04    1.60000e+04   -6.60000e+04

	<======  ###############  ==>
	<====  A V E R A G E S  ====>
`

func TestGromacsLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gromacs.log")
	require.NoError(t, os.WriteFile(path, []byte(mdlog), 0o644))
	g := NewGromacsLog(path)

	times, err := g.Series("Time")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, times)

	pot, err := g.Series("Potential")
	require.NoError(t, err)
	assert.Equal(t, []float64{-80000, -81000}, pot)

	total, err := g.Series("Total Energy")
	require.NoError(t, err)
	assert.Equal(t, []float64{-65000, -66000}, total)
}

func TestFramesNotYetAvailable(t *testing.T) {
	dir := t.TempDir()

	_, ok, err := DCDFrame(filepath.Join(dir, "traj000000001.dcd"))
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := DCDFrames(filepath.Join(dir, "traj000000001.dcd"))
	require.NoError(t, err)
	assert.Zero(t, n)

	partial := filepath.Join(dir, "amber.crd")
	require.NoError(t, os.WriteFile(partial, []byte("amber\n    3\n   1.0000000"), 0o644))
	_, ok, err = RestartFrame(partial)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = GROFrame(filepath.Join(dir, "missing.gro"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDCDFrameAndMerge(t *testing.T) {
	sys := system.New("pair")
	sys.Molecules = []*system.Molecule{{Number: 1, Residues: []system.Residue{
		{Name: "LIG", Number: 1, Atoms: []system.Atom{{Name: "C1"}, {Name: "C2"}}},
	}}}

	frames := []system.Frame{
		{Positions: []system.Vec3{{0, 0, 0}, {1, 1, 1}}},
		{Positions: []system.Vec3{{2, 2, 2}, {3, 3, 3}}},
	}
	var buf bytes.Buffer
	require.NoError(t, molio.WriteDCD(&buf, frames, 500, 0.002))
	path := filepath.Join(t.TempDir(), "traj000000001.dcd")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	frame, ok, err := DCDFrame(path)
	require.NoError(t, err)
	require.True(t, ok)

	merged, err := Merge(sys, frame)
	require.NoError(t, err)
	assert.Equal(t, "C2", merged.Molecules[0].Residues[0].Atoms[1].Name)
	assert.Equal(t, system.Vec3{3, 3, 3}, merged.Molecules[0].Residues[0].Atoms[1].Position)
	assert.Equal(t, system.Vec3{}, sys.Molecules[0].Residues[0].Atoms[1].Position)

	_, err = Merge(sys, system.Frame{Positions: frames[0].Positions[:1]})
	assert.ErrorIs(t, err, simerr.ErrValidation)
}
