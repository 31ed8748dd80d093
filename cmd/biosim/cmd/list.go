package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/picogrid/biosim/pkg/engine"
	"github.com/picogrid/biosim/pkg/simulation"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List engines and protocols",
	Long:  `List the registered simulation engines and the protocols they run`,
	RunE:  listEngines,
}

func listEngines(cmd *cobra.Command, args []string) error {
	names := engine.DefaultRegistry.List()
	if len(names) == 0 {
		fmt.Println("No engines registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ENGINE\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "------\t-----------")
	for _, name := range names {
		e, err := engine.DefaultRegistry.Get(name)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", e.Name(), e.Description())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	descs, err := simulation.Descriptors()
	if err != nil {
		return fmt.Errorf("failed to describe protocols: %w", err)
	}

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROTOCOL\tPARAMETERS\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "--------\t----------\t-----------")
	for _, d := range descs {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", d.Name, len(d.Parameters), d.Description)
	}
	return w.Flush()
}
