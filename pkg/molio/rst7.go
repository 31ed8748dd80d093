package molio

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/system"
)

// Restart holds the contents of an AMBER ASCII restart file.
type Restart struct {
	Title      string
	Time       float64
	Positions  []system.Vec3
	Velocities []system.Vec3
	Box        *system.Box
}

// amberVelocityScale converts AMBER restart velocities, stored in angstrom
// per 1/20.455 ps, to angstrom/ps.
const amberVelocityScale = 20.455

// Frame returns the restart coordinates with velocities in angstrom/ps.
func (r *Restart) Frame() system.Frame {
	frame := system.Frame{Positions: r.Positions, Box: r.Box}
	if r.Velocities != nil {
		frame.Velocities = make([]system.Vec3, len(r.Velocities))
		for i, v := range r.Velocities {
			frame.Velocities[i] = system.Vec3{
				v[0] * amberVelocityScale, v[1] * amberVelocityScale, v[2] * amberVelocityScale,
			}
		}
	}
	return frame
}

// splitFixed cuts line into width-sized fields and drops blank ones.
func splitFixed(line string, width int) []string {
	var out []string
	for i := 0; i < len(line); i += width {
		end := min(i+width, len(line))
		if f := strings.TrimSpace(line[i:end]); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	return lines, scanner.Err()
}

// ReadRST7 parses an AMBER ASCII restart file.
func ReadRST7(r io.Reader) (*Restart, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read restart file: %v", simerr.ErrIO, err)
	}
	if len(lines) < 2 {
		return nil, fmt.Errorf("%w: restart file is truncated", simerr.ErrIO)
	}

	rst := &Restart{Title: strings.TrimSpace(lines[0])}
	header := strings.Fields(lines[1])
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: restart file has no atom count", simerr.ErrIO)
	}
	natoms, err := strconv.Atoi(header[0])
	if err != nil || natoms < 0 {
		return nil, fmt.Errorf("%w: invalid atom count %q in restart file", simerr.ErrIO, header[0])
	}
	if len(header) > 1 {
		rst.Time, _ = strconv.ParseFloat(header[1], 64)
	}

	perBlock := int(math.Ceil(float64(3*natoms) / 6))
	body := lines[2:]
	// Drop trailing blank lines.
	for len(body) > 0 && strings.TrimSpace(body[len(body)-1]) == "" {
		body = body[:len(body)-1]
	}
	if len(body) < perBlock {
		return nil, fmt.Errorf("%w: restart file has %d coordinate lines, expected %d",
			simerr.ErrIO, len(body), perBlock)
	}

	rst.Positions, err = readVectors(body[:perBlock], natoms)
	if err != nil {
		return nil, err
	}
	rest := body[perBlock:]

	switch {
	case len(rest) >= perBlock+1 && perBlock > 0:
		rst.Velocities, err = readVectors(rest[:perBlock], natoms)
		if err != nil {
			return nil, err
		}
		rest = rest[perBlock:]
	case len(rest) == perBlock && perBlock > 1:
		rst.Velocities, err = readVectors(rest, natoms)
		if err != nil {
			return nil, err
		}
		rest = nil
	}

	if len(rest) > 0 {
		vals, err := parseFloats(splitFixed(rest[0], 12))
		if err != nil || len(vals) < 3 {
			return nil, fmt.Errorf("%w: invalid box line %q in restart file", simerr.ErrIO, rest[0])
		}
		box := &system.Box{Lengths: system.Vec3{vals[0], vals[1], vals[2]}, Angles: system.Vec3{90, 90, 90}}
		if len(vals) >= 6 {
			box.Angles = system.Vec3{vals[3], vals[4], vals[5]}
		}
		rst.Box = box
	}
	return rst, nil
}

func readVectors(lines []string, n int) ([]system.Vec3, error) {
	vals := make([]float64, 0, 3*n)
	for _, line := range lines {
		v, err := parseFloats(splitFixed(line, 12))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid coordinate line %q: %v", simerr.ErrIO, line, err)
		}
		vals = append(vals, v...)
	}
	if len(vals) < 3*n {
		return nil, fmt.Errorf("%w: expected %d values, found %d", simerr.ErrIO, 3*n, len(vals))
	}
	out := make([]system.Vec3, n)
	for i := range out {
		out[i] = system.Vec3{vals[3*i], vals[3*i+1], vals[3*i+2]}
	}
	return out, nil
}

// WriteRST7 writes the system coordinates, velocities when the system has
// them, and box as an AMBER ASCII restart file.
func WriteRST7(w io.Writer, sys *system.System) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n", sys.Name)
	if n := sys.NAtoms(); n > 99999 {
		fmt.Fprintf(bw, "%6d\n", n)
	} else {
		fmt.Fprintf(bw, "%5d\n", n)
	}
	writeSix(bw, sys.Positions())
	if sys.HasVelocities() {
		vels := make([]system.Vec3, len(sys.Velocities))
		for i, v := range sys.Velocities {
			vels[i] = system.Vec3{v[0] / amberVelocityScale, v[1] / amberVelocityScale, v[2] / amberVelocityScale}
		}
		writeSix(bw, vels)
	}
	if sys.Box != nil {
		b := sys.Box
		fmt.Fprintf(bw, "%12.7f%12.7f%12.7f%12.7f%12.7f%12.7f\n",
			b.Lengths[0], b.Lengths[1], b.Lengths[2], b.Angles[0], b.Angles[1], b.Angles[2])
	}
	return bw.Flush()
}

func writeSix(w *bufio.Writer, vecs []system.Vec3) {
	col := 0
	for _, v := range vecs {
		for _, x := range v {
			fmt.Fprintf(w, "%12.7f", x)
			col++
			if col == 6 {
				w.WriteByte('\n')
				col = 0
			}
		}
	}
	if col != 0 {
		w.WriteByte('\n')
	}
}
