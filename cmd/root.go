package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/platewatch/cmd/blacklist"
	"github.com/tphakala/platewatch/cmd/export"
	"github.com/tphakala/platewatch/cmd/notify"
	"github.com/tphakala/platewatch/cmd/run"
	"github.com/tphakala/platewatch/cmd/search"
	"github.com/tphakala/platewatch/cmd/stats"
	"github.com/tphakala/platewatch/internal/buildinfo"
	"github.com/tphakala/platewatch/internal/conf"
	"github.com/tphakala/platewatch/internal/logger"
)

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "platewatch",
		Short:         "License plate identity resolution and alerting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	versionCmd := versionCommand()
	rootCmd.AddCommand(
		run.Command(settings),
		notify.Command(settings),
		blacklist.Command(settings),
		search.Command(settings),
		stats.Command(settings),
		export.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(configFile, settings)
	}

	return rootCmd
}

// initialize loads the configuration and installs the global logger.
func initialize(configFile string, settings *conf.Settings) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	return nil
}

func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search standard locations)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("database", "", "SQLite database path")

	if err := viper.BindPFlag("debug", flags.Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("database.sqlite.path", flags.Lookup("database")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			build := buildinfo.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "platewatch %s (built %s)\n", build.GetVersion(), build.GetBuildDate())
		},
	}
}
