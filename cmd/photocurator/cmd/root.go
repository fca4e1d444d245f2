// Package cmd implements the CLI commands for photocurator.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tmattsson/photocurator/internal/version"
)

var (
	cfgFile       string
	logLevelFlag  string
	logFormatFlag string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "photocurator",
	Short:   "Photo library enrichment pipeline",
	Version: version.Short(),
	Long: `photocurator indexes a photo library and enriches each item through a
restart-safe, multi-stage pipeline: EXIF extraction, reverse geocoding,
thumbnail generation, motion photo detection, perceptual hashing, face
detection and clustering, AI captioning, and time/location event grouping.

It watches the library for live changes, supports on-demand and scheduled
rescans, and exposes a REST + Server-Sent Events control and read API.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, /etc/photocurator, $HOME/.photocurator)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override logging.level from config (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "override logging.format from config (json, text)")
}
