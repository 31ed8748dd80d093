package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/picogrid/biosim/pkg/logger"
	"github.com/picogrid/biosim/pkg/molio"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported file formats",
	RunE:  listFormats,
}

func listFormats(cmd *cobra.Command, args []string) error {
	formats, err := molio.Formats()
	if err != nil {
		return fmt.Errorf("failed to list formats: %w", err)
	}

	table := logger.NewTable("FORMAT", "EXTENSIONS", "DESCRIPTION")
	for _, f := range formats {
		table.AddRow(f.Name, strings.Join(f.Extensions, ", "), f.Description)
	}
	table.Print()
	return nil
}
