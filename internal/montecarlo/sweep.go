package montecarlo

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/tmr-array/tmrsim/internal/array"
	"github.com/tmr-array/tmrsim/internal/demod"
	"github.com/tmr-array/tmrsim/internal/frontend"
	"github.com/tmr-array/tmrsim/internal/signal"
)

// LatencyMetrics quantify the angle lag introduced by processing and ADC
// sampling delay at non-zero shaft speed.
type LatencyMetrics struct {
	ProcessingDelayDeg float64 `json:"processing_delay_deg"`
	SamplingDelayDeg   float64 `json:"sampling_delay_deg"`
	TotalDeg           float64 `json:"total_deg"`
}

// RunSummary aggregates the error and resolution statistics of one
// full-angle sweep for one parameter draw.
type RunSummary struct {
	RunIndex int `json:"run_index"`

	Params signal.RunParameters `json:"params"`

	ErrorMean float64 `json:"error_mean"`
	ErrorStd  float64 `json:"error_std"`
	ErrorMax  float64 `json:"error_max"`
	ErrorP99  float64 `json:"error_p99"`

	ResolutionBitsMax float64 `json:"resolution_bits_max"`
	ResolutionBitsP99 float64 `json:"resolution_bits_p99"`

	Latency *LatencyMetrics `json:"latency,omitempty"`
}

// SweepOptions control one full-rotation sweep.
type SweepOptions struct {
	// Steps is the number of angle samples, spaced over [0, 360).
	Steps int

	// RPM is the shaft speed; zero disables speed effects.
	RPM float64

	// Frontend, when non-nil, routes every sample through the analog
	// conditioning and ADC model before demodulation.
	Frontend *frontend.Config
}

// Sweep simulates a full mechanical rotation: at each of opts.Steps angles
// it synthesizes the sensor vector, optionally conditions and digitizes it,
// demodulates, and accumulates error statistics into a RunSummary.
func Sweep(ring *array.Config, params signal.RunParameters, opts SweepOptions, rng *rand.Rand) (RunSummary, error) {
	if opts.Steps < 1 {
		return RunSummary{}, fmt.Errorf("montecarlo: sweep needs at least 1 step, got %d", opts.Steps)
	}

	synth := signal.NewSynthesizer(ring)
	dm := demod.NewDemodulator(ring)
	var pipeline *frontend.Pipeline
	if opts.Frontend != nil {
		pipeline = frontend.NewPipeline(ring, *opts.Frontend)
	}

	errs := make([]float64, 0, opts.Steps)
	absErrs := make([]float64, 0, opts.Steps)
	for i := 0; i < opts.Steps; i++ {
		theta := 360 * float64(i) / float64(opts.Steps)

		vec := synth.Generate(theta, params, opts.RPM, rng)
		if pipeline != nil {
			vec = pipeline.Condition(vec, params, rng)
			vec = pipeline.Digitize(vec, params.ADCResolution, params.SupplyVoltage)
		}

		res, err := dm.DemodulateActive(vec, theta)
		if err != nil {
			return RunSummary{}, fmt.Errorf("montecarlo: sweep at theta=%.3f: %w", theta, err)
		}
		if math.IsNaN(res.Error) || math.IsInf(res.Error, 0) {
			return RunSummary{}, fmt.Errorf("montecarlo: sweep at theta=%.3f: non-finite error", theta)
		}
		errs = append(errs, res.Error)
		absErrs = append(absErrs, math.Abs(res.Error))
	}

	summary := RunSummary{
		Params:            params,
		ErrorMean:         mean(errs),
		ErrorStd:          stddev(errs),
		ErrorMax:          maxOf(absErrs),
		ErrorP99:          Percentile(absErrs, 99),
		ResolutionBitsMax: demod.ResolutionBits(maxOf(absErrs)),
		ResolutionBitsP99: demod.ResolutionBits(Percentile(absErrs, 99)),
	}

	if opts.RPM > 0 {
		// Degrees of lag at this speed: processing delay plus, on average,
		// half an ADC sampling period.
		degPerSec := opts.RPM * 6
		processing := degPerSec * params.ProcessingDelay
		sampling := degPerSec / params.ADCSamplingRate / 2
		summary.Latency = &LatencyMetrics{
			ProcessingDelayDeg: processing,
			SamplingDelayDeg:   sampling,
			TotalDeg:           processing + sampling,
		}
	}

	return summary, nil
}
