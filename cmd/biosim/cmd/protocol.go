package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/picogrid/biosim/pkg/logger"
	"github.com/picogrid/biosim/pkg/protocol"
	"github.com/picogrid/biosim/pkg/simulation"
	"github.com/picogrid/biosim/pkg/utils"
)

var protocolCmd = &cobra.Command{
	Use:   "protocol",
	Short: "Inspect and write protocol files",
}

var protocolShowCmd = &cobra.Command{
	Use:   "show [kind]",
	Short: "Show the parameters of a protocol kind or file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  showProtocol,
}

var protocolInitCmd = &cobra.Command{
	Use:   "init <kind>",
	Short: "Write a protocol file",
	Long: `Write a protocol file for the given kind. Parameters are prompted for,
or taken from their defaults and BIOSIM_<PARAMETER> variables when prompts
are disabled.`,
	Args: cobra.ExactArgs(1),
	RunE: initProtocol,
}

func init() {
	protocolCmd.AddCommand(protocolShowCmd)
	protocolCmd.AddCommand(protocolInitCmd)

	protocolShowCmd.Flags().StringP("file", "f", "", "protocol file to summarise")
	protocolInitCmd.Flags().StringP("output", "o", "", "file to write (default: stdout)")
}

func showProtocol(cmd *cobra.Command, args []string) error {
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		p, err := protocol.Load(path)
		if err != nil {
			return err
		}
		logger.LogSection(fmt.Sprintf("Protocol: %s", p.Kind()))
		for _, kv := range protocol.Summary(p) {
			logger.LogKeyValue(kv[0], kv[1])
		}
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("give a protocol kind or --file")
	}
	kind, err := protocol.ParseKind(args[0])
	if err != nil {
		return err
	}
	desc, err := simulation.Describe(kind)
	if err != nil {
		return err
	}

	logger.LogSection(fmt.Sprintf("Protocol: %s", desc.Name))
	fmt.Fprintln(logger.Writer(), desc.Description)
	fmt.Fprintln(logger.Writer())

	table := logger.NewTable("PARAMETER", "TYPE", "DEFAULT", "DESCRIPTION")
	for _, p := range desc.Parameters {
		def := fmt.Sprint(p.Default)
		if p.Default == nil {
			def = "-"
		}
		if len(p.Options) > 0 {
			def = fmt.Sprintf("%s %v", def, p.Options)
		}
		table.AddRow(p.Name, p.Type, def, p.Description)
	}
	table.Print()
	return nil
}

func initProtocol(cmd *cobra.Command, args []string) error {
	kind, err := protocol.ParseKind(args[0])
	if err != nil {
		return err
	}
	desc, err := simulation.Describe(kind)
	if err != nil {
		return err
	}
	params, err := utils.PromptForParameters(desc.Parameters, map[string]interface{}{protocol.KindKey: string(kind)})
	if err != nil {
		return err
	}
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	if err := protocol.ResolveConfigFile(params, wd); err != nil {
		return err
	}
	p, err := protocol.Decode(params)
	if err != nil {
		return err
	}
	data, err := protocol.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to render protocol: %w", err)
	}

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write protocol file: %w", err)
	}
	logger.Successf("Wrote %s protocol to %s", kind, out)
	return nil
}
