package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/picogrid/biosim/pkg/logger"
	"github.com/picogrid/biosim/pkg/molio"
)

// SystemFiles are the molecular files in a directory that share a base name
type SystemFiles struct {
	Name    string
	Files   []string
	Formats []string
}

// topologyFormats can start a system on their own
var topologyFormats = map[string]bool{"PRM7": true, "Gro87": true}

// DiscoverSystems finds loadable systems in dir. Files are grouped by base
// name, e.g. complex.prm7 and complex.rst7, and groups without a topology
// are skipped.
func DiscoverSystems(dir string) ([]SystemFiles, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for systems: %w", err)
	}

	groups := make(map[string]*SystemFiles)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == "" {
			continue
		}
		format, err := molio.FormatForExtension(ext)
		if err != nil {
			// Not a molecular file
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), ext)
		g, ok := groups[stem]
		if !ok {
			g = &SystemFiles{Name: stem}
			groups[stem] = g
		}
		g.Files = append(g.Files, filepath.Join(dir, entry.Name()))
		g.Formats = append(g.Formats, format.Name)
	}

	var systems []SystemFiles
	for _, g := range groups {
		if !hasTopology(g.Formats) {
			logger.Debugf("Skipping %s: no topology among %s", g.Name, strings.Join(g.Formats, ", "))
			continue
		}
		systems = append(systems, *g)
	}
	sort.Slice(systems, func(i, j int) bool { return systems[i].Name < systems[j].Name })
	return systems, nil
}

func hasTopology(formats []string) bool {
	for _, f := range formats {
		if topologyFormats[f] {
			return true
		}
	}
	return false
}
