package results

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var amberPair = regexp.MustCompile(`(\S+(?: \S+)?)\s+=\s+(\S+)`)

// AmberEnergy follows an AMBER mdout file and collects the energy record
// printed every ntpr steps. Molecular dynamics records are keyed as printed
// (NSTEP, TIME(PS), TEMP(K), Etot, EPtot, ...). Minimisation records also
// carry ENERGY, RMS and GMAX from the step table.
type AmberEnergy struct {
	mu        sync.Mutex
	tail      *Tail
	records   []map[string]float64
	pending   map[string]float64
	expectMin bool
	done      bool
}

// NewAmberEnergy follows the mdout file at path.
func NewAmberEnergy(path string) *AmberEnergy {
	return &AmberEnergy{tail: NewTail(path)}
}

func (a *AmberEnergy) commit() {
	if len(a.pending) > 0 {
		a.records = append(a.records, a.pending)
	}
	a.pending = nil
}

func (a *AmberEnergy) update() error {
	lines, reset, err := a.tail.Lines()
	if err != nil {
		return err
	}
	if reset {
		a.records, a.pending, a.expectMin, a.done = nil, nil, false, false
	}
	for _, line := range lines {
		if a.done {
			break
		}
		a.parseLine(line)
	}
	return nil
}

func (a *AmberEnergy) parseLine(line string) {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.Contains(line, "A V E R A G E S") || strings.Contains(line, "FINAL RESULTS"):
		a.commit()
		a.done = true
	case strings.HasPrefix(trimmed, "NSTEP") && strings.Contains(trimmed, "ENERGY") && strings.Contains(trimmed, "GMAX"):
		a.commit()
		a.expectMin = true
	case a.expectMin:
		fields := strings.Fields(trimmed)
		if len(fields) < 4 {
			return
		}
		rec := make(map[string]float64)
		for i, key := range []string{"NSTEP", "ENERGY", "RMS", "GMAX"} {
			if v, err := strconv.ParseFloat(fields[i], 64); err == nil {
				rec[key] = v
			}
		}
		a.pending = rec
		a.expectMin = false
	case strings.HasPrefix(trimmed, "NSTEP ="):
		a.commit()
		a.pending = make(map[string]float64)
		a.addPairs(line)
	case strings.HasPrefix(trimmed, "-----"):
		a.commit()
	case a.pending != nil:
		a.addPairs(line)
	}
}

func (a *AmberEnergy) addPairs(line string) {
	for _, m := range amberPair.FindAllStringSubmatch(line, -1) {
		if v, err := strconv.ParseFloat(m[2], 64); err == nil {
			a.pending[m[1]] = v
		}
	}
}

// Series returns the value of key in every complete record, in step order.
func (a *AmberEnergy) Series(key string) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.update(); err != nil {
		return nil, err
	}
	var out []float64
	for _, rec := range a.records {
		if v, ok := rec[key]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Keys returns the record keys seen so far, sorted.
func (a *AmberEnergy) Keys() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.update(); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, rec := range a.records {
		for k := range rec {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
