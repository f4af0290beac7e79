package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tmr-array/tmrsim/internal/config"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "tmrsim",
		Short: "TMR rotary sensor array simulator",
		Long: `tmrsim simulates vernier-coded TMR rotary sensor arrays.

It synthesizes multi-harmonic sensor signals, demodulates them back into
an absolute shaft angle, and runs Monte Carlo campaigns that characterize
accuracy under component tolerance, noise, and sensor failure.`,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Campaign configuration file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "Log verbosity: info, debug, trace")

	// Add subcommands
	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newSweepCmd(),
		newCampaignCmd(),
		newArchiveCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "tmrsim version %s\n", version)
			}
		},
	}
}

// loadCampaignConfig resolves the campaign descriptor from the --config file
// and applies the --log-level override.
func loadCampaignConfig(cmd *cobra.Command) (*config.Campaign, error) {
	path, _ := cmd.Flags().GetString("config")
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		c.Logging.Level = level
	}
	return c, nil
}
