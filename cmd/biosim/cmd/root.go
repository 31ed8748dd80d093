package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/picogrid/biosim/pkg/config"
	"github.com/picogrid/biosim/pkg/ledger"
	"github.com/picogrid/biosim/pkg/logger"
	"github.com/picogrid/biosim/pkg/metrics"
)

var (
	cfgFile  string
	settings *config.Settings
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "biosim",
	Short: "Molecular simulation runner",
	Long: `biosim prepares molecular systems for simulation engines (SOMD, AMBER,
GROMACS), runs the engine as a supervised process and reads the results
back onto the system.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  initConfig,
	PersistentPostRunE: writeMetrics,
}

func init() {
	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.biosim/config.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("no-color", false, "disable colored output")
	flags.String("metrics-file", "", "write a Prometheus textfile snapshot here on exit")

	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("no_color", flags.Lookup("no-color"))
	_ = viper.BindPFlag("metrics_file", flags.Lookup("metrics-file"))

	// Add commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(protocolCmd)
	rootCmd.AddCommand(engineCmd)
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(runsCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// initConfig reads in config file and ENV variables if set
func initConfig(cmd *cobra.Command, _ []string) error {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else if dir, err := config.Dir(); err == nil {
		// Search for config in the biosim directory
		viper.AddConfigPath(dir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	s, err := config.LoadSettings(viper.GetViper())
	if err != nil {
		return err
	}
	settings = s

	// Configure logger based on flags
	logger.SetLevel(logger.ParseLevel(s.LogLevel))
	if s.NoColor {
		color.NoColor = true
		logger.SetNoColor(true)
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debugf("Using config file %s", used)
	}
	return nil
}

func writeMetrics(cmd *cobra.Command, _ []string) error {
	if settings == nil || settings.MetricsFile == "" {
		return nil
	}
	path, err := filepath.Abs(settings.MetricsFile)
	if err != nil {
		return err
	}
	if err := metrics.WriteTextfile(path); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	logger.Debugf("Wrote metrics to %s", path)
	return nil
}

// openLedger opens the configured run ledger. The returned function
// releases it.
func openLedger() (ledger.Store, func(), error) {
	store, err := settings.Ledger.OpenLedger()
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if c, ok := store.(io.Closer); ok {
			_ = c.Close()
		}
	}
	return store, release, nil
}
