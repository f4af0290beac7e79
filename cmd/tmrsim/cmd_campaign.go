package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmr-array/tmrsim/internal/logging"
	"github.com/tmr-array/tmrsim/internal/montecarlo"
	"github.com/tmr-array/tmrsim/internal/store"
)

func newCampaignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Run a Monte Carlo sensitivity campaign",
		Long: `Run the full Monte Carlo campaign described by the configuration:
for every (ring, fault scenario) pair, many randomized full-rotation
sweeps on a parallel worker pool, reduced into per-scenario statistics.

Results can be archived to a SQLite database with --archive and inspected
later with 'tmrsim archive'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCampaignConfig(cmd)
			if err != nil {
				return err
			}

			opts := cfg.Options()
			if runs, _ := cmd.Flags().GetInt("runs"); runs > 0 {
				opts.NumRuns = runs
			}
			if steps, _ := cmd.Flags().GetInt("steps"); steps > 0 {
				opts.Steps = steps
			}
			if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
				opts.Workers = workers
			}
			if cmd.Flags().Changed("seed") {
				opts.Seed, _ = cmd.Flags().GetUint64("seed")
			}
			if cmd.Flags().Changed("rpm") {
				opts.RPM, _ = cmd.Flags().GetFloat64("rpm")
			}
			if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
				opts.Timeout = timeout
			}
			if ring, _ := cmd.Flags().GetString("ring"); ring != "" {
				var kept []montecarlo.RingSpec
				for _, r := range opts.Rings {
					if r.Name == ring {
						kept = append(kept, r)
					}
				}
				if len(kept) == 0 {
					return fmt.Errorf("no ring named %q in the configuration", ring)
				}
				opts.Rings = kept
			}

			opts.Logger = logging.NewLogger(cfg.Logging.Level, os.Stderr)

			traceDir, _ := cmd.Flags().GetString("trace-dir")
			runLog := logging.NewRunLogger(traceDir, cfg.Logging.Level)
			defer runLog.Close()

			campaign, err := montecarlo.New(opts)
			if err != nil {
				return err
			}

			res, err := campaign.Run(cmd.Context())
			if err != nil {
				return err
			}

			for _, sc := range res.Scenarios {
				runLog.Log(logging.ScenarioEvent{
					Campaign:     res.ID,
					Ring:         sc.Ring.Name,
					Fault:        sc.Fault.Name,
					Runs:         len(sc.Runs),
					Excluded:     sc.Excluded,
					Valid:        sc.Valid,
					MeanErrorMax: sc.Stats[montecarlo.MetricErrorMax].Mean,
				})
			}

			if archivePath, _ := cmd.Flags().GetString("archive"); archivePath != "" {
				a, err := store.Open(archivePath)
				if err != nil {
					return fmt.Errorf("failed to open archive: %w", err)
				}
				defer a.Close()
				if err := a.SaveResult(cmd.Context(), res); err != nil {
					return fmt.Errorf("failed to archive result: %w", err)
				}
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
			}
			printCampaignResult(cmd, res)
			return nil
		},
	}

	cmd.Flags().Int("runs", 0, "Override the configured Monte Carlo run count")
	cmd.Flags().Int("steps", 0, "Override the configured angle samples per sweep")
	cmd.Flags().Int("workers", 0, "Override the configured worker count")
	cmd.Flags().Uint64("seed", 0, "Override the configured campaign seed")
	cmd.Flags().Float64("rpm", 0, "Override the configured shaft speed")
	cmd.Flags().Duration("timeout", 0, "Override the configured campaign timeout")
	cmd.Flags().String("ring", "", "Run only the named ring configuration")
	cmd.Flags().String("archive", "", "Archive the result to this SQLite database")
	cmd.Flags().String("trace-dir", ".", "Directory for the per-scenario trace log (debug level and below)")

	return cmd
}

func printCampaignResult(cmd *cobra.Command, res *montecarlo.Result) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Campaign %s (%s), seed %d, took %s\n\n",
		res.ID, res.StateName, res.Seed, res.Elapsed.Round(time.Millisecond))

	for _, sc := range res.Scenarios {
		status := "OK"
		if !sc.Valid {
			status = "BELOW THRESHOLD"
		}
		fmt.Fprintf(out, "%s / %s (%d sensors, %d pole pairs): %s\n",
			sc.Ring.Name, sc.Fault.Name, sc.Ring.Sensors, sc.Ring.PolePairs, status)
		fmt.Fprintf(out, "  runs: %d", len(sc.Runs))
		if sc.Excluded > 0 {
			fmt.Fprintf(out, " (%d excluded)", sc.Excluded)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  error max:  mean %.4f deg, worst %.4f deg\n",
			sc.Stats[montecarlo.MetricErrorMax].Mean, sc.Stats[montecarlo.MetricErrorMax].Max)
		fmt.Fprintf(out, "  resolution: mean %.2f bits @p99 (min %.2f)\n",
			sc.Stats[montecarlo.MetricResolutionBitsP99].Mean,
			sc.Stats[montecarlo.MetricResolutionBitsP99].Min)
		fmt.Fprintln(out)
	}

	if len(res.Skipped) > 0 {
		fmt.Fprintf(out, "Skipped scenarios: %v\n", res.Skipped)
	}
	if res.Excluded > 0 {
		fmt.Fprintf(out, "Excluded runs across all scenarios: %d\n", res.Excluded)
	}
}
