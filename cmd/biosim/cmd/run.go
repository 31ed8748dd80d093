package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/picogrid/biosim/pkg/config"
	"github.com/picogrid/biosim/pkg/engine"
	"github.com/picogrid/biosim/pkg/logger"
	"github.com/picogrid/biosim/pkg/molio"
	"github.com/picogrid/biosim/pkg/protocol"
	"github.com/picogrid/biosim/pkg/simulation"
	"github.com/picogrid/biosim/pkg/system"
	"github.com/picogrid/biosim/pkg/utils"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a protocol on an engine",
	Long: `Run a protocol on a molecular system with one of the registered engines.

Missing choices are prompted for interactively. Set BIOSIM_SKIP_PROMPTS=true
to use defaults instead; protocol parameters can then be given as
BIOSIM_<PARAMETER> environment variables, e.g. BIOSIM_RUNTIME="2 ns".`,
	RunE: runSimulation,
}

func init() {
	flags := runCmd.Flags()
	flags.StringSliceP("input", "i", nil, "system files, e.g. complex.prm7,complex.rst7 (default: discover in the current directory)")
	flags.StringP("profile", "P", "", "engine profile from engines.yaml")
	flags.StringP("engine", "e", "", "engine name (overrides the profile engine)")
	flags.StringP("protocol", "p", "", "protocol file (YAML)")
	flags.StringP("kind", "k", "", "protocol kind to configure interactively")
	flags.String("work-dir", "", "working directory (default: a new temporary directory)")
	flags.String("name", "", "base name of the run files (default: engine name)")
	flags.String("platform", "", "compute platform, e.g. CPU or CUDA")
	flags.String("executable", "", "engine binary (overrides the profile)")
	flags.Int64("seed", 0, "random number seed")
	flags.StringP("output", "o", "", "write the final system to this base path")
	flags.StringSlice("format", nil, "output formats (default: the input formats)")
	flags.Bool("show-config", false, "print the generated engine config before running")
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputs, _ := cmd.Flags().GetStringSlice("input")
	sys, err := loadSystem(inputs)
	if err != nil {
		return err
	}

	profile, err := selectProfile(cmd)
	if err != nil {
		return fmt.Errorf("failed to select engine: %w", err)
	}

	proto, err := selectProtocol(cmd)
	if err != nil {
		return fmt.Errorf("failed to configure protocol: %w", err)
	}

	store, release, err := openLedger()
	if err != nil {
		return err
	}
	defer release()

	opts := []simulation.Option{simulation.WithLedger(store)}
	if dir, _ := cmd.Flags().GetString("work-dir"); dir != "" {
		opts = append(opts, simulation.WithWorkDir(dir))
	} else if settings.WorkRoot != "" {
		dir, err := os.MkdirTemp(settings.WorkRoot, "biosim-"+profile.Engine+"-")
		if err != nil {
			return fmt.Errorf("failed to create working directory: %w", err)
		}
		opts = append(opts, simulation.WithWorkDir(dir))
	}
	if name, _ := cmd.Flags().GetString("name"); name != "" {
		opts = append(opts, simulation.WithName(name))
	}
	if profile.Executable != "" {
		opts = append(opts, simulation.WithExecutable(profile.Executable))
	}
	if profile.Platform != "" {
		opts = append(opts, simulation.WithPlatform(profile.Platform))
	}
	if cmd.Flags().Changed("seed") {
		seed, _ := cmd.Flags().GetInt64("seed")
		opts = append(opts, simulation.WithSeed(seed))
	}

	run, err := simulation.New(ctx, sys, proto, profile.Engine, opts...)
	if err != nil {
		return err
	}

	logger.LogSection(fmt.Sprintf("%s %s", strings.ToUpper(run.Engine()), proto.Kind()))
	logger.LogKeyValue("System", sys)
	for _, kv := range protocol.Summary(proto) {
		logger.LogKeyValue(kv[0], kv[1])
	}
	logger.LogKeyValue("Working directory", run.WorkDir())
	logger.LogKeyValue("Command", run.Command())
	if show, _ := cmd.Flags().GetBool("show-config"); show {
		logger.LogSubSection("Config")
		for _, line := range run.Config().Lines() {
			fmt.Fprintln(logger.Writer(), line)
		}
	}

	logger.Launchf("Starting %s", run.Engine())
	if err := run.Start(ctx); err != nil {
		return err
	}

	err = logger.WithSpinner(fmt.Sprintf("Running %s", run.Engine()), func() error {
		return run.Wait(ctx)
	})
	if errors.Is(err, context.Canceled) {
		logger.Warnf("Stopped waiting; the engine keeps running in %s", run.WorkDir())
		return nil
	}
	if err != nil {
		return err
	}

	if run.IsError() {
		logger.Errorf("%s failed after %s", run.Engine(), run.ElapsedTime())
		if lines, _ := run.Stdout(10); len(lines) > 0 {
			logger.LogList("Last lines of output:", lines)
		}
		if lines, _ := run.Stderr(10); len(lines) > 0 {
			logger.LogList("Last lines of error output:", lines)
		}
		return fmt.Errorf("%s run failed, see %s", run.Engine(), run.WorkDir())
	}

	return reportRun(ctx, cmd, run, sys)
}

func reportRun(ctx context.Context, cmd *cobra.Command, run *simulation.Run, input *system.System) error {
	logger.Successf("%s finished in %s", run.Engine(), run.ElapsedTime())
	if t, ok, err := run.Time(ctx, false); err == nil && ok {
		logger.LogKeyValue("Simulation time", t)
	}
	if g, ok, err := run.Gradient(ctx, false); err == nil && ok {
		logger.LogKeyValue("Gradient", g)
	}

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		return nil
	}
	final, ok, err := run.System(ctx, false)
	if err != nil {
		return err
	}
	if !ok {
		logger.Warn("The engine wrote no coordinates; nothing to save")
		return nil
	}
	return saveSystem(cmd, out, final, input)
}

func saveSystem(cmd *cobra.Command, base string, sys, input *system.System) error {
	formats, _ := cmd.Flags().GetStringSlice("format")
	if len(formats) == 0 {
		formats = strings.Split(input.Properties["fileformat"], ",")
	}
	paths, err := molio.Save(base, sys, formats...)
	if err != nil {
		return err
	}
	logger.LogList("Saved system:", paths)
	return nil
}

// loadSystem reads the given files, or lets the user pick a system from the
// current directory
func loadSystem(inputs []string) (*system.System, error) {
	if len(inputs) == 0 {
		systems, err := utils.DiscoverSystems(".")
		if err != nil {
			return nil, err
		}
		if len(systems) == 0 {
			return nil, fmt.Errorf("no system files found in the current directory, use --input")
		}
		names := make([]string, len(systems))
		for i, s := range systems {
			names[i] = s.Name
		}
		selected, err := utils.Select("Select system:", names, "")
		if err != nil {
			return nil, err
		}
		for _, s := range systems {
			if s.Name == selected {
				inputs = s.Files
			}
		}
	}

	var sys *system.System
	err := logger.WithSpinner("Loading system", func() error {
		var err error
		sys, err = molio.Load(inputs...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sys, nil
}

// selectProfile resolves the engine profile from flags, engines.yaml and
// prompts
func selectProfile(cmd *cobra.Command) (config.Profile, error) {
	profiles, err := config.LoadProfiles()
	if err != nil {
		return config.Profile{}, err
	}

	name, _ := cmd.Flags().GetString("profile")
	engineName, _ := cmd.Flags().GetString("engine")

	var profile config.Profile
	switch {
	case name != "":
		if profile, err = profiles.Find(name); err != nil {
			return config.Profile{}, err
		}
	case engineName != "":
		profile = config.Profile{Name: engineName, Engine: engineName}
		if p, err := profiles.Find(engineName); err == nil && p.Engine == engineName {
			profile = p
		}
	default:
		names := make([]string, len(profiles.Profiles))
		for i, p := range profiles.Profiles {
			names[i] = p.Name
		}
		selected, err := utils.Select("Select engine profile:", names, profiles.Default)
		if err != nil {
			return config.Profile{}, err
		}
		if profile, err = profiles.Find(selected); err != nil {
			return config.Profile{}, err
		}
	}

	if engineName != "" {
		profile.Engine = engineName
	}
	if exe, _ := cmd.Flags().GetString("executable"); exe != "" {
		profile.Executable = exe
	}
	if platform, _ := cmd.Flags().GetString("platform"); platform != "" {
		profile.Platform = platform
	}
	if _, err := engine.DefaultRegistry.Get(profile.Engine); err != nil {
		return config.Profile{}, fmt.Errorf("%w (available: %s)", err, strings.Join(engine.DefaultRegistry.List(), ", "))
	}
	return profile, nil
}

// selectProtocol loads a protocol file or prompts for the parameters of a
// protocol kind
func selectProtocol(cmd *cobra.Command) (protocol.Protocol, error) {
	if path, _ := cmd.Flags().GetString("protocol"); path != "" {
		return protocol.Load(path)
	}

	kindName, _ := cmd.Flags().GetString("kind")
	if kindName == "" {
		kinds := make([]string, len(protocol.Kinds))
		for i, k := range protocol.Kinds {
			kinds[i] = string(k)
		}
		var err error
		if kindName, err = utils.Select("Select protocol:", kinds, string(protocol.KindProduction)); err != nil {
			return nil, err
		}
	}
	kind, err := protocol.ParseKind(kindName)
	if err != nil {
		return nil, err
	}

	desc, err := simulation.Describe(kind)
	if err != nil {
		return nil, err
	}
	params, err := utils.PromptForParameters(desc.Parameters, map[string]interface{}{protocol.KindKey: string(kind)})
	if err != nil {
		return nil, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if err := protocol.ResolveConfigFile(params, wd); err != nil {
		return nil, err
	}
	return protocol.Decode(params)
}
