package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/tmr-array/tmrsim/internal/array"
	"github.com/tmr-array/tmrsim/internal/frontend"
	"github.com/tmr-array/tmrsim/internal/montecarlo"
	"github.com/tmr-array/tmrsim/internal/signal"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one full-rotation sweep of a single array configuration",
		Long: `Simulate one full mechanical rotation of a sensor ring with nominal
parameters and report the angle error and resolution statistics.

Useful for a quick look at a geometry before committing to a campaign.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sensors, _ := cmd.Flags().GetInt("sensors")
			polePairs, _ := cmd.Flags().GetInt("pole-pairs")
			failures, _ := cmd.Flags().GetInt("failures")
			positionTol, _ := cmd.Flags().GetFloat64("position-tolerance")
			noise, _ := cmd.Flags().GetFloat64("noise")
			steps, _ := cmd.Flags().GetInt("steps")
			seed, _ := cmd.Flags().GetUint64("seed")
			rpm, _ := cmd.Flags().GetFloat64("rpm")
			conditioning, _ := cmd.Flags().GetBool("conditioning")
			jsonOut, _ := cmd.Flags().GetBool("json")

			ring, err := array.New(sensors, polePairs)
			if err != nil {
				return err
			}

			rng := rand.New(rand.NewPCG(seed, 0))
			if positionTol > 0 {
				ring.ApplyPositionTolerance(positionTol, rng)
			}
			if failures > 0 {
				if err := ring.MarkRandomFailures(failures, rng); err != nil {
					return err
				}
			}

			params := signal.DefaultParameters()
			if noise >= 0 {
				params.NoiseLevel = noise
			}

			opts := montecarlo.SweepOptions{Steps: steps, RPM: rpm}
			if conditioning {
				fe := frontend.DefaultConfig()
				opts.Frontend = &fe
			}

			summary, err := montecarlo.Sweep(ring, params, opts, rng)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(summary)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Ring: %d sensors, %d pole pairs", sensors, polePairs)
			if failures > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " (%d failed)", failures)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "Steps: %d, noise: %g, seed: %d\n\n", steps, params.NoiseLevel, seed)
			fmt.Fprintf(cmd.OutOrStdout(), "Error mean:      %+.5f deg\n", summary.ErrorMean)
			fmt.Fprintf(cmd.OutOrStdout(), "Error std:       %.5f deg\n", summary.ErrorStd)
			fmt.Fprintf(cmd.OutOrStdout(), "Error max:       %.5f deg\n", summary.ErrorMax)
			fmt.Fprintf(cmd.OutOrStdout(), "Error p99:       %.5f deg\n", summary.ErrorP99)
			fmt.Fprintf(cmd.OutOrStdout(), "Resolution @max: %.2f bits\n", summary.ResolutionBitsMax)
			fmt.Fprintf(cmd.OutOrStdout(), "Resolution @p99: %.2f bits\n", summary.ResolutionBitsP99)
			if summary.Latency != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Latency @%g RPM: %.4f deg (processing %.4f, sampling %.4f)\n",
					rpm, summary.Latency.TotalDeg,
					summary.Latency.ProcessingDelayDeg, summary.Latency.SamplingDelayDeg)
			}
			return nil
		},
	}

	cmd.Flags().Int("sensors", 8, "Number of sensors on the ring")
	cmd.Flags().Int("pole-pairs", 7, "Magnetic pole pairs of the harmonic track")
	cmd.Flags().Int("failures", 0, "Number of randomly failed sensors")
	cmd.Flags().Float64("position-tolerance", 0, "Sensor placement tolerance in degrees")
	cmd.Flags().Float64("noise", -1, "Noise level override (negative keeps the nominal value)")
	cmd.Flags().Int("steps", 3600, "Angle samples per rotation")
	cmd.Flags().Uint64("seed", 1, "Random seed")
	cmd.Flags().Float64("rpm", 0, "Shaft speed (0 disables speed effects)")
	cmd.Flags().Bool("conditioning", false, "Route signals through the analog front-end and ADC model")

	return cmd
}
