package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/picogrid/biosim/pkg/logger"
	"github.com/picogrid/biosim/pkg/molio"
	"github.com/picogrid/biosim/pkg/pipeline"
	"github.com/picogrid/biosim/pkg/simulation"
	"github.com/picogrid/biosim/pkg/system"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run chained protocol stages",
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a pipeline file",
	Long: `Run the stages of a pipeline file (.yaml or .hcl) in order. Each stage
starts from the coordinates written by the previous one.`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

var pipelineShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Validate a pipeline file and print its stages",
	Args:  cobra.ExactArgs(1),
	RunE:  showPipeline,
}

func init() {
	pipelineCmd.AddCommand(pipelineRunCmd)
	pipelineCmd.AddCommand(pipelineShowCmd)

	flags := pipelineRunCmd.Flags()
	flags.StringSliceP("input", "i", nil, "system files (default: discover in the current directory)")
	flags.StringP("output", "o", "", "write the final system to this base path")
	flags.StringSlice("format", nil, "output formats (default: the input formats)")
	flags.Bool("save-stages", false, "also save the system after each stage into its working directory")
}

func showPipeline(cmd *cobra.Command, args []string) error {
	p, err := pipeline.Load(args[0])
	if err != nil {
		return err
	}
	logger.LogSection(fmt.Sprintf("Pipeline: %s", p.Name))
	if p.WorkDir != "" {
		logger.LogKeyValue("Working directory", p.WorkDir)
	}
	table := logger.NewTable("#", "STAGE", "ENGINE", "PROTOCOL", "PLATFORM")
	for i, st := range p.Stages {
		table.AddRow(fmt.Sprint(i+1), st.Name, st.Engine, string(st.Protocol.Kind()), st.Platform)
	}
	table.Print()
	return nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.Load(args[0])
	if err != nil {
		return err
	}

	inputs, _ := cmd.Flags().GetStringSlice("input")
	sys, err := loadSystem(inputs)
	if err != nil {
		return err
	}

	store, release, err := openLedger()
	if err != nil {
		return err
	}
	defer release()

	saveStages, _ := cmd.Flags().GetBool("save-stages")
	formats, _ := cmd.Flags().GetStringSlice("format")
	if len(formats) == 0 {
		formats = strings.Split(sys.Properties["fileformat"], ",")
	}

	logger.LogSection(fmt.Sprintf("Pipeline: %s", p.Name))
	logger.LogKeyValue("System", sys)
	logger.LogKeyValue("Stages", len(p.Stages))

	bar := logger.NewProgressBar(len(p.Stages), p.Name)
	var saveErr error
	hooks := pipeline.Hooks{
		BeforeStage: func(i int, st pipeline.Stage, run *simulation.Run) {
			logger.Debugf("Stage %s: %s", st.Name, run.Command())
		},
		AfterStage: func(i int, st pipeline.Stage, run *simulation.Run, out *system.System) {
			bar.Increment()
			if !saveStages || saveErr != nil {
				return
			}
			_, saveErr = molio.Save(filepath.Join(run.WorkDir(), st.Name+"_out"), out, formats...)
		},
	}

	final, err := p.Execute(ctx, sys, hooks, simulation.WithLedger(store))
	bar.Finish()
	if err != nil {
		return err
	}
	if saveErr != nil {
		logger.Warnf("Failed to save stage output: %v", saveErr)
	}
	logger.Successf("Pipeline %s finished", p.Name)

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		return nil
	}
	return saveSystem(cmd, out, final, sys)
}
