package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/abusehawk/internal/config"
	"github.com/telhawk-systems/abusehawk/internal/logging"
)

var (
	cfgFile     string
	togglesFile string
)

var rootCmd = &cobra.Command{
	Use:   "abusehawk",
	Short: "Stateful streaming abuse detection engine",
	Long: `abusehawk evaluates normalized security events against stateful abuse
heuristics: request threshold baselining, geographic velocity, account
creation abuse, and login failure bursts, emitting deduplicated alerts.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&togglesFile, "toggles", "", "detector toggles overlay file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads, overlays, and validates the configuration, and installs
// the configured logger. Any failure here is fatal before event processing
// starts.
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if togglesFile != "" {
		t, err := config.LoadToggles(togglesFile)
		if err != nil {
			return nil, nil, err
		}
		t.Apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log := logging.New(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	logging.SetDefault(log)
	return cfg, log, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
