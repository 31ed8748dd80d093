package results

import (
	"errors"
	"io/fs"
	"os"

	"github.com/picogrid/biosim/pkg/molio"
	"github.com/picogrid/biosim/pkg/system"
	"github.com/picogrid/biosim/pkg/units"
)

// Extractor reads the output of one engine run.
type Extractor interface {
	// Frame returns the latest complete coordinates. ok is false when none
	// have been written yet.
	Frame() (frame system.Frame, ok bool, err error)

	// Times returns the simulation time of every record written so far.
	Times() ([]units.Time, error)
}

// GradientReader is implemented by extractors of free-energy runs.
type GradientReader interface {
	Gradients() ([]float64, error)
}

// EnergyReader is implemented by extractors that parse energy records.
type EnergyReader interface {
	Energies(key string) ([]float64, error)
}

// None is the extractor of a run that writes nothing readable.
type None struct{}

func (None) Frame() (system.Frame, bool, error) { return system.Frame{}, false, nil }
func (None) Times() ([]units.Time, error)       { return nil, nil }

func notYet(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, molio.ErrIncomplete)
}

// DCDFrames returns the number of complete frames in a DCD trajectory.
func DCDFrames(path string) (int, error) {
	d, err := molio.OpenDCD(path)
	if notYet(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return d.NFrames()
}

// DCDFrame returns the last complete frame of a DCD trajectory.
func DCDFrame(path string) (system.Frame, bool, error) {
	d, err := molio.OpenDCD(path)
	if notYet(err) {
		return system.Frame{}, false, nil
	}
	if err != nil {
		return system.Frame{}, false, err
	}
	frame, ok, err := d.LastFrame()
	if notYet(err) {
		return system.Frame{}, false, nil
	}
	return frame, ok, err
}

// RestartFrame reads coordinates from an AMBER restart file. Engines rewrite
// restarts in place, so a file that does not parse is treated as still being
// written.
func RestartFrame(path string) (system.Frame, bool, error) {
	f, err := os.Open(path)
	if notYet(err) {
		return system.Frame{}, false, nil
	}
	if err != nil {
		return system.Frame{}, false, err
	}
	defer f.Close()
	rst, err := molio.ReadRST7(f)
	if err != nil {
		return system.Frame{}, false, nil
	}
	return rst.Frame(), true, nil
}

// GROFrame reads coordinates from a Gro87 file, with the same partial-file
// rule as RestartFrame.
func GROFrame(path string) (system.Frame, bool, error) {
	f, err := os.Open(path)
	if notYet(err) {
		return system.Frame{}, false, nil
	}
	if err != nil {
		return system.Frame{}, false, err
	}
	defer f.Close()
	sys, err := molio.ReadGRO(f)
	if err != nil {
		return system.Frame{}, false, nil
	}
	return system.Frame{Positions: sys.Positions(), Velocities: sys.Velocities, Box: sys.Box}, true, nil
}

// Merge copies frame onto a clone of sys, keeping the naming of sys.
func Merge(sys *system.System, frame system.Frame) (*system.System, error) {
	out := sys.Clone()
	if err := out.UpdateCoordinates(frame); err != nil {
		return nil, err
	}
	return out, nil
}
