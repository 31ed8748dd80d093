package molio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/system"
)

// ErrIncomplete is returned for trajectory files whose header has not been
// completely written yet.
var ErrIncomplete = errors.New("molio: file is incomplete")

// DCD is a CHARMM/OpenMM binary trajectory opened for reading. The file may
// still be growing; only complete frames are counted.
type DCD struct {
	path        string
	order       binary.ByteOrder
	NAtoms      int
	HasUnitCell bool
	// Interval is the number of integration steps between saved frames.
	Interval int
	// Timestep is the integration step in AKMA time units as written by the engine.
	Timestep float32

	headerSize int64
	frameSize  int64
}

func readRecord(r io.Reader, order binary.ByteOrder) ([]byte, error) {
	var n int32
	if err := binary.Read(r, order, &n); err != nil {
		return nil, err
	}
	if n < 0 || n > 1<<30 {
		return nil, fmt.Errorf("%w: invalid record length %d", simerr.ErrIO, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	var tail int32
	if err := binary.Read(r, order, &tail); err != nil {
		return nil, err
	}
	if tail != n {
		return nil, fmt.Errorf("%w: record markers disagree (%d != %d)", simerr.ErrIO, n, tail)
	}
	return buf, nil
}

// OpenDCD reads the header of a DCD file.
func OpenDCD(path string) (*DCD, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var first [4]byte
	if _, err := io.ReadFull(f, first[:]); err != nil {
		return nil, ErrIncomplete
	}
	d := &DCD{path: path}
	switch {
	case binary.LittleEndian.Uint32(first[:]) == 84:
		d.order = binary.LittleEndian
	case binary.BigEndian.Uint32(first[:]) == 84:
		d.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: %s is not a DCD file", simerr.ErrIO, path)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	hdr, err := readRecord(f, d.order)
	if err != nil {
		return nil, incomplete(err)
	}
	if string(hdr[:4]) != "CORD" {
		return nil, fmt.Errorf("%w: %s has no CORD signature", simerr.ErrIO, path)
	}
	icntrl := make([]int32, 20)
	if err := binary.Read(bytes.NewReader(hdr[4:]), d.order, icntrl); err != nil {
		return nil, fmt.Errorf("%w: invalid DCD header: %v", simerr.ErrIO, err)
	}
	d.Interval = int(icntrl[2])
	d.Timestep = math.Float32frombits(uint32(icntrl[9]))
	d.HasUnitCell = icntrl[10] != 0

	title, err := readRecord(f, d.order)
	if err != nil {
		return nil, incomplete(err)
	}
	natoms, err := readRecord(f, d.order)
	if err != nil {
		return nil, incomplete(err)
	}
	if len(natoms) != 4 {
		return nil, fmt.Errorf("%w: invalid atom count record", simerr.ErrIO)
	}
	d.NAtoms = int(d.order.Uint32(natoms))

	d.headerSize = int64(len(hdr)+8) + int64(len(title)+8) + 12
	d.frameSize = 3 * int64(4*d.NAtoms+8)
	if d.HasUnitCell {
		d.frameSize += 48 + 8
	}
	return d, nil
}

func incomplete(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrIncomplete
	}
	return err
}

// NFrames returns the number of complete frames currently on disk.
func (d *DCD) NFrames() (int, error) {
	st, err := os.Stat(d.path)
	if err != nil {
		return 0, err
	}
	if st.Size() < d.headerSize {
		return 0, nil
	}
	return int((st.Size() - d.headerSize) / d.frameSize), nil
}

// Frame reads frame i. Positions are in angstrom.
func (d *DCD) Frame(i int) (system.Frame, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return system.Frame{}, err
	}
	defer f.Close()
	if _, err := f.Seek(d.headerSize+int64(i)*d.frameSize, io.SeekStart); err != nil {
		return system.Frame{}, err
	}

	var frame system.Frame
	if d.HasUnitCell {
		rec, err := readRecord(f, d.order)
		if err != nil {
			return system.Frame{}, incomplete(err)
		}
		cell := make([]float64, 6)
		if err := binary.Read(bytes.NewReader(rec), d.order, cell); err != nil {
			return system.Frame{}, fmt.Errorf("%w: invalid unit cell record: %v", simerr.ErrIO, err)
		}
		frame.Box = unitCellBox(cell)
	}

	frame.Positions = make([]system.Vec3, d.NAtoms)
	for axis := 0; axis < 3; axis++ {
		rec, err := readRecord(f, d.order)
		if err != nil {
			return system.Frame{}, incomplete(err)
		}
		vals := make([]float32, d.NAtoms)
		if err := binary.Read(bytes.NewReader(rec), d.order, vals); err != nil {
			return system.Frame{}, fmt.Errorf("%w: invalid coordinate record: %v", simerr.ErrIO, err)
		}
		for j, v := range vals {
			frame.Positions[j][axis] = float64(v)
		}
	}
	return frame, nil
}

// LastFrame returns the last complete frame. ok is false when no frame has
// been written yet.
func (d *DCD) LastFrame() (frame system.Frame, ok bool, err error) {
	n, err := d.NFrames()
	if err != nil || n == 0 {
		return system.Frame{}, false, err
	}
	frame, err = d.Frame(n - 1)
	if err != nil {
		return system.Frame{}, false, err
	}
	return frame, true, nil
}

// unitCellBox decodes the CHARMM cell layout [A, gamma, B, beta, alpha, C].
// Angles within [-1, 1] are cosines.
func unitCellBox(cell []float64) *system.Box {
	angles := []float64{cell[4], cell[3], cell[1]}
	cosines := true
	for _, a := range angles {
		if math.Abs(a) > 1 {
			cosines = false
		}
	}
	if cosines {
		for i, a := range angles {
			angles[i] = math.Acos(a) * 180 / math.Pi
		}
	}
	return &system.Box{
		Lengths: system.Vec3{cell[0], cell[2], cell[5]},
		Angles:  system.Vec3{angles[0], angles[1], angles[2]},
	}
}

// WriteDCD writes frames as a little-endian DCD trajectory. Unit cells are
// written when the first frame has a box; angles are stored as cosines.
func WriteDCD(w io.Writer, frames []system.Frame, interval int, timestep float32) error {
	if len(frames) == 0 {
		return fmt.Errorf("%w: no frames to write", simerr.ErrValidation)
	}
	natoms := len(frames[0].Positions)
	hasCell := frames[0].Box != nil
	le := binary.LittleEndian

	record := func(payload any) error {
		var buf bytes.Buffer
		if err := binary.Write(&buf, le, payload); err != nil {
			return err
		}
		n := int32(buf.Len())
		if err := binary.Write(w, le, n); err != nil {
			return err
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return err
		}
		return binary.Write(w, le, n)
	}

	icntrl := make([]int32, 20)
	icntrl[0] = int32(len(frames))
	icntrl[2] = int32(interval)
	icntrl[3] = int32(interval * len(frames))
	icntrl[9] = int32(math.Float32bits(timestep))
	if hasCell {
		icntrl[10] = 1
	}
	icntrl[19] = 24
	hdr := append([]byte("CORD"), make([]byte, 80)...)
	for i, v := range icntrl {
		le.PutUint32(hdr[4+4*i:], uint32(v))
	}
	if err := record(hdr); err != nil {
		return err
	}

	title := make([]byte, 84)
	le.PutUint32(title, 1)
	copy(title[4:], fmt.Sprintf("%-80s", "Created by biosim"))
	if err := record(title); err != nil {
		return err
	}
	if err := record(int32(natoms)); err != nil {
		return err
	}

	for i, fr := range frames {
		if len(fr.Positions) != natoms {
			return fmt.Errorf("%w: frame %d has %d atoms, expected %d", simerr.ErrValidation, i, len(fr.Positions), natoms)
		}
		if hasCell {
			b := fr.Box
			if b == nil {
				b = frames[0].Box
			}
			rad := math.Pi / 180
			cell := []float64{
				b.Lengths[0], math.Cos(b.Angles[2] * rad), b.Lengths[1],
				math.Cos(b.Angles[1] * rad), math.Cos(b.Angles[0] * rad), b.Lengths[2],
			}
			if err := record(cell); err != nil {
				return err
			}
		}
		for axis := 0; axis < 3; axis++ {
			vals := make([]float32, natoms)
			for j, p := range fr.Positions {
				vals[j] = float32(p[axis])
			}
			if err := record(vals); err != nil {
				return err
			}
		}
	}
	return nil
}
