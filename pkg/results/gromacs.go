package results

import (
	"strconv"
	"strings"
	"sync"
)

// GromacsLog follows a GROMACS md.log and collects the step, time and
// energy terms printed at every nstlog step.
type GromacsLog struct {
	mu      sync.Mutex
	tail    *Tail
	records []map[string]float64
	pending map[string]float64

	expectStep bool
	inEnergies bool
	header     []string
	done       bool
}

// NewGromacsLog follows the log file at path.
func NewGromacsLog(path string) *GromacsLog {
	return &GromacsLog{tail: NewTail(path)}
}

func (g *GromacsLog) commit() {
	if len(g.pending) > 0 {
		g.records = append(g.records, g.pending)
	}
	g.pending = nil
	g.inEnergies = false
	g.header = nil
}

func (g *GromacsLog) update() error {
	lines, reset, err := g.tail.Lines()
	if err != nil {
		return err
	}
	if reset {
		g.records, g.pending, g.header = nil, nil, nil
		g.expectStep, g.inEnergies, g.done = false, false, false
	}
	for _, line := range lines {
		if g.done {
			break
		}
		g.parseLine(line)
	}
	return nil
}

// splitColumns cuts a right-aligned header line into 15-character columns.
func splitColumns(line string) []string {
	var out []string
	for i := 0; i < len(line); i += 15 {
		if f := strings.TrimSpace(line[i:min(i+15, len(line))]); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func (g *GromacsLog) parseLine(line string) {
	fields := strings.Fields(line)
	switch {
	case strings.Contains(line, "A V E R A G E S"):
		g.commit()
		g.done = true
	case len(fields) == 2 && fields[0] == "Step" && fields[1] == "Time":
		g.commit()
		g.expectStep = true
	case g.expectStep:
		g.expectStep = false
		if len(fields) < 2 {
			return
		}
		step, err1 := strconv.ParseFloat(fields[0], 64)
		t, err2 := strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil {
			return
		}
		g.pending = map[string]float64{"Step": step, "Time": t}
	case g.pending != nil && strings.TrimSpace(line) == "Energies (kJ/mol)":
		g.inEnergies = true
	case g.inEnergies && len(fields) == 0:
		g.commit()
	case g.inEnergies && g.header == nil:
		g.header = splitColumns(line)
	case g.inEnergies:
		for i, f := range fields {
			if i >= len(g.header) {
				break
			}
			if v, err := strconv.ParseFloat(f, 64); err == nil {
				g.pending[g.header[i]] = v
			}
		}
		g.header = nil
	}
}

// Series returns the value of key in every complete record.
func (g *GromacsLog) Series(key string) ([]float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.update(); err != nil {
		return nil, err
	}
	var out []float64
	for _, rec := range g.records {
		if v, ok := rec[key]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}
