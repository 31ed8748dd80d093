package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/picogrid/biosim/pkg/config"
	"github.com/picogrid/biosim/pkg/engine"
	"github.com/picogrid/biosim/pkg/logger"
	"github.com/picogrid/biosim/pkg/utils"
)

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Manage engine profiles",
	Long:  `Manage the engine profiles stored in engines.yaml: which binary and platform each engine uses`,
}

var engineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List engine profiles",
	RunE:  listProfiles,
}

var engineAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an engine profile",
	RunE:  addProfile,
}

var engineRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove an engine profile",
	Args:  cobra.MaximumNArgs(1),
	RunE:  removeProfile,
}

var engineDefaultCmd = &cobra.Command{
	Use:   "default <name>",
	Short: "Set the default engine profile",
	Args:  cobra.ExactArgs(1),
	RunE:  setDefaultProfile,
}

func init() {
	engineCmd.AddCommand(engineListCmd)
	engineCmd.AddCommand(engineAddCmd)
	engineCmd.AddCommand(engineRemoveCmd)
	engineCmd.AddCommand(engineDefaultCmd)

	engineAddCmd.Flags().String("name", "", "profile name")
	engineAddCmd.Flags().String("engine", "", "engine the profile drives")
	engineAddCmd.Flags().String("executable", "", "engine binary")
	engineAddCmd.Flags().String("platform", "", "compute platform")
	engineRemoveCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}

func listProfiles(cmd *cobra.Command, args []string) error {
	profiles, err := config.LoadProfiles()
	if err != nil {
		return fmt.Errorf("failed to load engine profiles: %w", err)
	}

	if len(profiles.Profiles) == 0 {
		fmt.Println("No engine profiles configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tENGINE\tEXECUTABLE\tPLATFORM\tDEFAULT")
	_, _ = fmt.Fprintln(w, "----\t------\t----------\t--------\t-------")

	for _, p := range profiles.Profiles {
		exe := p.Executable
		if exe == "" {
			exe = "(engine default)"
		}
		def := ""
		if p.Name == profiles.Default {
			def = "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.Engine, exe, p.Platform, def)
	}

	return w.Flush()
}

func addProfile(cmd *cobra.Command, args []string) error {
	profiles, err := config.LoadProfiles()
	if err != nil {
		return fmt.Errorf("failed to load engine profiles: %w", err)
	}

	var p config.Profile
	p.Name, _ = cmd.Flags().GetString("name")
	p.Engine, _ = cmd.Flags().GetString("engine")
	p.Executable, _ = cmd.Flags().GetString("executable")
	p.Platform, _ = cmd.Flags().GetString("platform")

	if p.Name == "" {
		if p.Name, err = utils.Input("Profile name:", "", true); err != nil {
			return err
		}
	}
	if _, err := profiles.Find(p.Name); err == nil {
		return fmt.Errorf("engine profile %s already exists", p.Name)
	}

	if p.Engine == "" {
		if p.Engine, err = utils.Select("Engine:", engine.DefaultRegistry.List(), ""); err != nil {
			return err
		}
	}
	if _, err := engine.DefaultRegistry.Get(p.Engine); err != nil {
		return err
	}

	if !cmd.Flags().Changed("executable") {
		if p.Executable, err = utils.Input("Executable (empty for the engine default):", "", false); err != nil {
			return err
		}
	}
	if !cmd.Flags().Changed("platform") {
		if p.Platform, err = utils.Input("Platform (empty for the engine default):", "", false); err != nil {
			return err
		}
	}

	if err := profiles.Add(p); err != nil {
		return err
	}
	if err := config.SaveProfiles(profiles); err != nil {
		return fmt.Errorf("failed to save engine profiles: %w", err)
	}

	logger.Successf("Engine profile %s added", p.Name)
	return nil
}

func removeProfile(cmd *cobra.Command, args []string) error {
	profiles, err := config.LoadProfiles()
	if err != nil {
		return fmt.Errorf("failed to load engine profiles: %w", err)
	}

	if len(profiles.Profiles) == 0 {
		fmt.Println("No engine profiles to remove")
		return nil
	}

	var selected string
	if len(args) == 1 {
		selected = args[0]
	} else {
		names := make([]string, len(profiles.Profiles))
		for i, p := range profiles.Profiles {
			names[i] = p.Name
		}
		if selected, err = utils.Select("Select engine profile to remove:", names, ""); err != nil {
			return err
		}
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		confirm, err := utils.Confirm(fmt.Sprintf("Are you sure you want to remove %s?", selected), false)
		if err != nil {
			return err
		}
		if !confirm {
			fmt.Println("Removal cancelled")
			return nil
		}
	}

	if err := profiles.Remove(selected); err != nil {
		return err
	}
	if err := config.SaveProfiles(profiles); err != nil {
		return fmt.Errorf("failed to save engine profiles: %w", err)
	}

	logger.Successf("Engine profile %s removed", selected)
	return nil
}

func setDefaultProfile(cmd *cobra.Command, args []string) error {
	profiles, err := config.LoadProfiles()
	if err != nil {
		return fmt.Errorf("failed to load engine profiles: %w", err)
	}
	if _, err := profiles.Find(args[0]); err != nil {
		return err
	}
	profiles.Default = args[0]
	if err := config.SaveProfiles(profiles); err != nil {
		return fmt.Errorf("failed to save engine profiles: %w", err)
	}
	logger.Successf("Default engine profile set to %s", args[0])
	return nil
}
