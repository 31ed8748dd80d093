package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/picogrid/biosim/pkg/ledger"
	"github.com/picogrid/biosim/pkg/logger"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run ledger",
	Long:  `List, show and forget engine runs recorded in the configured ledger`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE:  listRuns,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  showRun,
}

var runsRemoveCmd = &cobra.Command{
	Use:     "rm <id>...",
	Aliases: []string{"remove"},
	Short:   "Forget recorded runs",
	Long:    `Remove runs from the ledger. Working directories are left in place.`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    removeRuns,
}

func init() {
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsRemoveCmd)

	runsListCmd.Flags().String("pipeline", "", "only show runs of this pipeline")
	runsListCmd.Flags().String("state", "", "only show runs in this state")
}

func listRuns(cmd *cobra.Command, args []string) error {
	store, release, err := openLedger()
	if err != nil {
		return err
	}
	defer release()

	records, err := store.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	pipeline, _ := cmd.Flags().GetString("pipeline")
	state, _ := cmd.Flags().GetString("state")

	table := logger.NewTable("ID", "NAME", "ENGINE", "PROTOCOL", "STATE", "STARTED", "ELAPSED", "PIPELINE")
	for _, r := range records {
		if pipeline != "" && r.Pipeline != pipeline {
			continue
		}
		if state != "" && r.State != state {
			continue
		}
		started := "-"
		if !r.StartedAt.IsZero() {
			started = r.StartedAt.Local().Format(time.DateTime)
		}
		table.AddRow(shortID(r.ID), r.Name, r.Engine, r.Protocol, r.State, started, r.Elapsed.Round(time.Second).String(), r.Pipeline)
	}
	if table.Len() == 0 {
		fmt.Println("No runs recorded")
		return nil
	}
	table.Print()
	return nil
}

func showRun(cmd *cobra.Command, args []string) error {
	store, release, err := openLedger()
	if err != nil {
		return err
	}
	defer release()

	id, err := resolveRunID(cmd.Context(), store, args[0])
	if err != nil {
		return err
	}
	r, err := store.Get(cmd.Context(), id)
	if err != nil {
		return err
	}

	logger.LogSection(fmt.Sprintf("Run %s", r.ID))
	logger.LogKeyValue("Name", r.Name)
	logger.LogKeyValue("Engine", r.Engine)
	logger.LogKeyValue("Protocol", r.Protocol)
	logger.LogKeyValue("State", r.State)
	logger.LogKeyValue("Exit code", r.ExitCode)
	logger.LogKeyValue("Working directory", r.WorkDir)
	if !r.StartedAt.IsZero() {
		logger.LogKeyValue("Started", r.StartedAt.Local().Format(time.RFC1123))
	}
	logger.LogKeyValue("Elapsed", r.Elapsed)
	if r.Pipeline != "" {
		logger.LogKeyValue("Pipeline", r.Pipeline)
	}
	return nil
}

func removeRuns(cmd *cobra.Command, args []string) error {
	store, release, err := openLedger()
	if err != nil {
		return err
	}
	defer release()

	for _, arg := range args {
		id, err := resolveRunID(cmd.Context(), store, arg)
		if err != nil {
			return err
		}
		if err := store.Delete(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to remove run %s: %w", id, err)
		}
		logger.Successf("Removed run %s", id)
	}
	return nil
}

// resolveRunID expands a unique ID prefix, as printed by runs list
func resolveRunID(ctx context.Context, store ledger.Store, prefix string) (string, error) {
	records, err := store.List(ctx)
	if err != nil {
		return "", err
	}
	var match string
	for _, r := range records {
		if r.ID == prefix {
			return r.ID, nil
		}
		if prefix != "" && strings.HasPrefix(r.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("run ID %s is ambiguous", prefix)
			}
			match = r.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("run %s not found", prefix)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
