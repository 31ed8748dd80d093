package molio

import (
	"fmt"
	"strings"

	"github.com/picogrid/biosim/pkg/simerr"
	"github.com/picogrid/biosim/pkg/system"
)

// pertMoleculeName returns the molecule name declared by a perturbation file.
func pertMoleculeName(text string) (string, error) {
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "molecule" {
			return fields[1], nil
		}
	}
	return "", fmt.Errorf("%w: perturbation file declares no molecule", simerr.ErrIO)
}

// applyPerturbation attaches perturbation text to the molecule it names.
func applyPerturbation(sys *system.System, text string) error {
	name, err := pertMoleculeName(text)
	if err != nil {
		return err
	}
	for _, m := range sys.Molecules {
		if strings.EqualFold(m.Name(), name) {
			m.Perturbation = text
			return nil
		}
	}
	return fmt.Errorf("%w: perturbation file names molecule %q which is not in the system", simerr.ErrIO, name)
}
