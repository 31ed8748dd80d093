package molio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/system"
)

// WriteFile creates path, hands a buffered writer to fn and closes the file
// whatever fn returns.
func WriteFile(path string, fn func(w io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", simerr.ErrIO, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %v", simerr.ErrIO, cerr)
		}
	}()
	bw := bufio.NewWriter(f)
	if err := fn(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", simerr.ErrIO, err)
	}
	return nil
}

func readFile(path string, fn func(r io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", simerr.ErrIO, err)
	}
	defer f.Close()
	return fn(bufio.NewReader(f))
}

// Load reads a system from one or more files. A topology or structure file
// (PRM7 or Gro87) provides the naming; RST7 coordinates and PERT data are
// applied on top of it. The loaded formats are recorded in the "fileformat"
// property.
func Load(files ...string) (*system.System, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no input files", simerr.ErrValidation)
	}

	byFormat := make(map[string]string)
	for _, path := range files {
		f, err := formatForPath(path)
		if err != nil {
			return nil, err
		}
		byFormat[formatKey(f.Name)] = path
	}

	var sys *system.System
	var err error
	switch {
	case byFormat["PRM7"] != "":
		err = readFile(byFormat["PRM7"], func(r io.Reader) error {
			sys, err = ReadPRM7(r)
			return err
		})
	case byFormat["GRO87"] != "":
		err = readFile(byFormat["GRO87"], func(r io.Reader) error {
			sys, err = ReadGRO(r)
			return err
		})
	default:
		return nil, fmt.Errorf("%w: failed to include a topology file among %s", simerr.ErrIO, strings.Join(files, ", "))
	}
	if err != nil {
		return nil, err
	}
	if sys.Name == "" {
		base := filepath.Base(files[0])
		sys.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if path := byFormat["RST7"]; path != "" {
		err := readFile(path, func(r io.Reader) error {
			rst, err := ReadRST7(r)
			if err != nil {
				return err
			}
			if err := sys.UpdateCoordinates(rst.Frame()); err != nil {
				return fmt.Errorf("%w: %s does not match the topology: %v", simerr.ErrIO, path, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if path := byFormat["GROTOP"]; path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", simerr.ErrIO, err)
		}
		sys.Topologies["TOP"] = string(raw)
	}

	if path := byFormat["PERT"]; path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", simerr.ErrIO, err)
		}
		if err := applyPerturbation(sys, string(raw)); err != nil {
			return nil, err
		}
	}

	loaded := make([]string, 0, len(byFormat))
	for _, f := range table.order {
		if _, ok := byFormat[formatKey(f.Name)]; ok {
			loaded = append(loaded, f.Name)
		}
	}
	sys.Properties["fileformat"] = strings.Join(loaded, ",")
	return sys, nil
}

// Save writes the system to base.<ext> for each format and returns the paths
// written, in the order requested.
func Save(base string, sys *system.System, formats ...string) ([]string, error) {
	if len(formats) == 0 {
		return nil, fmt.Errorf("%w: no output formats", simerr.ErrValidation)
	}
	if dir := filepath.Dir(base); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", simerr.ErrIO, err)
		}
	}

	var paths []string
	for _, name := range formats {
		f, err := FormatInfo(name)
		if err != nil {
			return nil, err
		}
		path := base + "." + f.Extensions[0]
		var write func(w io.Writer) error
		switch formatKey(f.Name) {
		case "RST7":
			write = func(w io.Writer) error { return WriteRST7(w, sys) }
		case "GRO87":
			write = func(w io.Writer) error { return WriteGRO(w, sys) }
		case "PRM7":
			write = rawTopology(sys, "PRM7")
		case "GROTOP":
			write = rawTopology(sys, "TOP")
		case "PERT":
			write = func(w io.Writer) error {
				pert, err := SinglePerturbation(sys)
				if err != nil {
					return err
				}
				_, err = io.WriteString(w, pert)
				return err
			}
		default:
			return nil, fmt.Errorf("%w: writing %s files is not supported", simerr.ErrValidation, f.Name)
		}
		if err := WriteFile(path, write); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func rawTopology(sys *system.System, key string) func(w io.Writer) error {
	return func(w io.Writer) error {
		text, ok := sys.Topologies[key]
		if !ok {
			return fmt.Errorf("%w: system %q carries no %s topology", simerr.ErrIO, sys.Name, key)
		}
		_, err := io.WriteString(w, text)
		return err
	}
}

// SinglePerturbation returns the perturbation text of the one perturbable
// molecule in the system.
func SinglePerturbation(sys *system.System) (string, error) {
	mols := sys.PerturbableMolecules()
	if len(mols) != 1 {
		return "", fmt.Errorf("%w: system must contain exactly one perturbable molecule, found %d",
			simerr.ErrValidation, len(mols))
	}
	return mols[0].Perturbation, nil
}
