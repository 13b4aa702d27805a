package main

import (
	"fmt"
	"os"

	"TSNSpectra/internal/config"
	"TSNSpectra/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configFile string
	v          = config.NewViper()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tsn-analyzer",
		Short: "Infer CBS and TAS shaper configurations from packet timing",
		Long: `tsn-analyzer observes VLAN-tagged traffic on a link, live or from a capture
file, and infers the credit-based shaper parameters of every traffic class and
the gate control list of a time-aware shaper.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file path")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().Float64("link-speed", 1e9, "Link speed in bits per second")
	rootCmd.PersistentFlags().String("gap", "500us", "Inter-packet gap that separates bursts")
	rootCmd.PersistentFlags().String("cycle", "", "Use this TAS cycle instead of detecting one (e.g. 10ms)")
	rootCmd.PersistentFlags().String("mode", "both", "Shapers to infer (cbs, tas, both)")

	rootCmd.AddCommand(newRunCmd(), newPcapCmd(), newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var persistentBindings = map[string]string{
	"log.level":               "log-level",
	"log.format":              "log-format",
	"analysis.link_speed_bps": "link-speed",
	"analysis.gap_threshold":  "gap",
	"analysis.cycle_override": "cycle",
	"analysis.mode":           "mode",
}

// bindFlags maps viper keys onto the flags of the command being executed.
func bindFlags(flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// loadConfig reads the config file, if any, and applies flag and TSN_*
// environment overrides.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, *logrus.Logger, error) {
	if err := bindFlags(cmd.Flags(), persistentBindings); err != nil {
		return nil, nil, err
	}
	if err := bindFlags(cmd.Flags(), bindings); err != nil {
		return nil, nil, err
	}

	cfg := config.Default()
	if configFile != "" {
		var err error
		cfg, err = config.LoadConfig(configFile)
		if err != nil {
			return nil, nil, err
		}
	}
	if err := config.Overlay(cfg, v); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	if configFile != "" {
		logger.Infof("Configuration loaded from %s", configFile)
	}
	return cfg, logger, nil
}
