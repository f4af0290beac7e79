// Package montecarlo statistically characterizes the sensor array's accuracy
// under component tolerance, sensor failure, and noise. A campaign runs many
// randomized full-rotation sweeps per (ring, fault scenario) pair on a
// parallel worker pool and reduces the per-run summaries into campaign
// statistics.
//
// Runs are independent: each draws its parameters and failures from a random
// stream seeded deterministically by (campaign seed, scenario, run index),
// so results are reproducible and independent of batch completion order.
package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tmr-array/tmrsim/internal/array"
	"github.com/tmr-array/tmrsim/internal/frontend"
	"github.com/tmr-array/tmrsim/internal/signal"
)

// ErrCampaignState indicates a campaign method was called in the wrong
// lifecycle state.
var ErrCampaignState = errors.New("montecarlo: invalid campaign state")

// State is the campaign lifecycle state.
type State int

const (
	StateConfigured State = iota
	StateRunning
	StateAggregating
	StateComplete

	// StatePartial is the terminal state reached when a worker batch was
	// abandoned (timeout or cancellation). Completed runs are still
	// reported; per-run failures never cause this state.
	StatePartial
)

// String returns the lifecycle state name.
func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateAggregating:
		return "aggregating"
	case StateComplete:
		return "complete"
	case StatePartial:
		return "partial"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseState maps a state name back to its State value.
func ParseState(name string) (State, error) {
	switch name {
	case "configured":
		return StateConfigured, nil
	case "running":
		return StateRunning, nil
	case "aggregating":
		return StateAggregating, nil
	case "complete":
		return StateComplete, nil
	case "partial":
		return StatePartial, nil
	default:
		return 0, fmt.Errorf("montecarlo: unknown state %q", name)
	}
}

// RingSpec names one array geometry to evaluate.
type RingSpec struct {
	Name                 string  `yaml:"name" json:"name"`
	Sensors              int     `yaml:"sensors" json:"sensors"`
	PolePairs            int     `yaml:"pole_pairs" json:"pole_pairs"`
	PositionToleranceDeg float64 `yaml:"position_tolerance_deg" json:"position_tolerance_deg"`
}

// FaultScenario names a number of randomly failed sensors.
type FaultScenario struct {
	Name     string `yaml:"name" json:"name"`
	Failures int    `yaml:"failures" json:"failures"`
}

// Thresholds are the externally supplied acceptance criteria a scenario's
// aggregate resolution is validated against.
type Thresholds struct {
	// MinHealthyBits is the minimum mean p99 resolution with zero failures.
	MinHealthyBits float64 `yaml:"min_healthy_bits" json:"min_healthy_bits"`

	// MinDegradedBits is the minimum mean p99 resolution with failures.
	MinDegradedBits float64 `yaml:"min_degraded_bits" json:"min_degraded_bits"`
}

// Options configure a campaign.
type Options struct {
	Rings  []RingSpec
	Faults []FaultScenario

	// NumRuns is the number of Monte Carlo draws per (ring, fault) pair.
	NumRuns int

	// Steps is the number of angle samples per full-rotation sweep.
	Steps int

	// Workers caps the parallel worker count; zero means GOMAXPROCS.
	Workers int

	// Seed is the campaign master seed all run streams derive from.
	Seed uint64

	// RPM is the shaft speed applied to every sweep; zero disables speed
	// effects.
	RPM float64

	Tolerances ToleranceSet

	// Frontend, when non-nil, enables the analog conditioning stage.
	Frontend *frontend.Config

	// Thresholds, when non-nil, sets the validation flag per scenario.
	Thresholds *Thresholds

	// Timeout bounds the whole campaign; on expiry pending batches are
	// abandoned and the campaign ends PARTIAL.
	Timeout time.Duration

	Logger *slog.Logger
}

// ScenarioResult aggregates all runs of one (ring, fault scenario) pair.
type ScenarioResult struct {
	Ring  RingSpec      `json:"ring"`
	Fault FaultScenario `json:"fault"`

	Runs []RunSummary `json:"runs"`

	// Excluded counts runs whose sweep failed and which were therefore
	// left out of the aggregate statistics.
	Excluded int `json:"excluded"`

	// Stats holds cross-run statistics keyed by metric name.
	Stats map[string]Summary `json:"stats"`

	// Valid reports whether the scenario meets the supplied thresholds.
	// Always true when no thresholds were supplied.
	Valid bool `json:"valid"`
}

// Result is the finalized outcome of one campaign: a plain serializable
// record handed to external reporting code.
type Result struct {
	ID        string           `json:"id"`
	State     State            `json:"-"`
	StateName string           `json:"state"`
	Seed      uint64           `json:"seed"`
	Scenarios []ScenarioResult `json:"scenarios"`

	// Skipped lists (ring, fault) pairs not evaluated because the ring is
	// too small for the failure count to be meaningful.
	Skipped []string `json:"skipped,omitempty"`

	// Excluded is the total failed-run count across all scenarios.
	Excluded int `json:"excluded"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

// Campaign orchestrates the Monte Carlo sensitivity analysis. Create one
// with New, run it once with Run.
type Campaign struct {
	opts    Options
	nominal signal.RunParameters
	log     *slog.Logger

	mu    sync.Mutex
	state State
}

// New validates the options and returns a configured campaign. Every ring
// and fault scenario is checked up front so configuration errors surface
// before any run is scheduled.
func New(opts Options) (*Campaign, error) {
	if len(opts.Rings) == 0 {
		return nil, fmt.Errorf("%w: no rings to evaluate", array.ErrConfiguration)
	}
	if len(opts.Faults) == 0 {
		opts.Faults = []FaultScenario{{Name: "no failures", Failures: 0}}
	}
	if opts.NumRuns < 1 {
		return nil, fmt.Errorf("%w: num_runs must be at least 1, got %d", array.ErrConfiguration, opts.NumRuns)
	}
	if opts.Steps < 1 {
		return nil, fmt.Errorf("%w: steps must be at least 1, got %d", array.ErrConfiguration, opts.Steps)
	}
	for _, ring := range opts.Rings {
		if _, err := array.New(ring.Sensors, ring.PolePairs); err != nil {
			return nil, fmt.Errorf("ring %q: %w", ring.Name, err)
		}
		for _, fault := range opts.Faults {
			if fault.Failures < 0 || fault.Failures >= ring.Sensors {
				return nil, fmt.Errorf("%w: ring %q cannot lose %d of %d sensors",
					array.ErrConfiguration, ring.Name, fault.Failures, ring.Sensors)
			}
		}
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Campaign{
		opts:    opts,
		nominal: signal.DefaultParameters(),
		log:     log,
		state:   StateConfigured,
	}, nil
}

// State returns the campaign's current lifecycle state.
func (c *Campaign) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Campaign) transition(from, to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return fmt.Errorf("%w: %s -> %s not allowed from %s", ErrCampaignState, from, to, c.state)
	}
	c.state = to
	return nil
}

func (c *Campaign) setState(to State) {
	c.mu.Lock()
	c.state = to
	c.mu.Unlock()
}

// Run executes every (ring, fault scenario) pair and aggregates the
// results. It can be called once per campaign.
func (c *Campaign) Run(ctx context.Context) (*Result, error) {
	if err := c.transition(StateConfigured, StateRunning); err != nil {
		return nil, err
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	result := &Result{
		ID:   uuid.NewString(),
		Seed: c.opts.Seed,
	}

	partial := false
	scenarioIdx := 0
	for _, ring := range c.opts.Rings {
		for _, fault := range c.opts.Faults {
			// A ring barely larger than the failure count has no headroom
			// worth characterizing.
			if fault.Failures > 0 && ring.Sensors <= fault.Failures+3 {
				result.Skipped = append(result.Skipped,
					fmt.Sprintf("%s/%s", ring.Name, fault.Name))
				c.log.Debug("skipping scenario",
					"ring", ring.Name, "fault", fault.Name, "sensors", ring.Sensors)
				continue
			}

			c.log.Info("running scenario",
				"ring", ring.Name, "fault", fault.Name, "runs", c.opts.NumRuns)

			sr, lost := c.runScenario(ctx, ring, fault, scenarioIdx)
			result.Scenarios = append(result.Scenarios, sr)
			result.Excluded += sr.Excluded
			if lost {
				partial = true
			}
			scenarioIdx++
		}
	}

	c.setState(StateAggregating)
	thresholds := c.opts.Thresholds
	for i := range result.Scenarios {
		sr := &result.Scenarios[i]
		sr.Stats = aggregate(sr.Runs)
		sr.Valid = validate(sr, thresholds)
	}

	result.Elapsed = time.Since(start)
	if partial {
		c.setState(StatePartial)
	} else {
		c.setState(StateComplete)
	}
	result.State = c.State()
	result.StateName = result.State.String()

	c.log.Info("campaign finished",
		"state", result.State.String(),
		"scenarios", len(result.Scenarios),
		"excluded", result.Excluded,
		"elapsed", result.Elapsed)
	return result, nil
}

// runScenario distributes a scenario's runs over worker batches and gathers
// the completed summaries. lost reports whether any batch was abandoned
// before finishing.
func (c *Campaign) runScenario(ctx context.Context, ring RingSpec, fault FaultScenario, scenarioIdx int) (ScenarioResult, bool) {
	workers := c.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	batchSize := c.opts.NumRuns / workers
	if batchSize < 1 {
		batchSize = 1
	}
	numBatches := (c.opts.NumRuns + batchSize - 1) / batchSize

	batchRuns := make([][]RunSummary, numBatches)
	excluded := make([]int, numBatches)

	eg, egCtx := errgroup.WithContext(ctx)
	// Ceil division above can produce one batch more than workers; the
	// limit keeps the concurrency cap honest either way.
	eg.SetLimit(workers)
	for b := 0; b < numBatches; b++ {
		eg.Go(func() error {
			first := b * batchSize
			last := first + batchSize
			if last > c.opts.NumRuns {
				last = c.opts.NumRuns
			}
			for runIdx := first; runIdx < last; runIdx++ {
				if err := egCtx.Err(); err != nil {
					return err
				}
				summary, err := c.runOne(ring, fault, scenarioIdx, runIdx)
				if err != nil {
					// A failed run is excluded from statistics but never
					// aborts the batch.
					excluded[b]++
					c.log.Debug("run excluded",
						"ring", ring.Name, "fault", fault.Name, "run", runIdx, "err", err)
					continue
				}
				batchRuns[b] = append(batchRuns[b], summary)
			}
			return nil
		})
	}
	lost := eg.Wait() != nil

	sr := ScenarioResult{Ring: ring, Fault: fault}
	for b := range batchRuns {
		sr.Runs = append(sr.Runs, batchRuns[b]...)
		sr.Excluded += excluded[b]
	}
	// Gather order depends on batch timing; canonical order does not.
	sort.Slice(sr.Runs, func(i, j int) bool { return sr.Runs[i].RunIndex < sr.Runs[j].RunIndex })
	return sr, lost
}

// runOne executes a single Monte Carlo draw: a fresh ring with position
// tolerance and random failures applied, a fresh parameter draw, one full
// sweep. The random stream is derived from (campaign seed, scenario, run
// index) alone.
func (c *Campaign) runOne(spec RingSpec, fault FaultScenario, scenarioIdx, runIdx int) (RunSummary, error) {
	rng := rand.New(rand.NewPCG(c.opts.Seed, runKey(scenarioIdx, runIdx)))

	ring, err := array.New(spec.Sensors, spec.PolePairs)
	if err != nil {
		return RunSummary{}, err
	}
	ring.ApplyPositionTolerance(spec.PositionToleranceDeg, rng)
	if err := ring.MarkRandomFailures(fault.Failures, rng); err != nil {
		return RunSummary{}, err
	}

	params := c.opts.Tolerances.Draw(c.nominal, rng)

	summary, err := Sweep(ring, params, SweepOptions{
		Steps:    c.opts.Steps,
		RPM:      c.opts.RPM,
		Frontend: c.opts.Frontend,
	}, rng)
	if err != nil {
		return RunSummary{}, err
	}
	summary.RunIndex = runIdx
	return summary, nil
}

// runKey folds scenario and run index into the second PCG seed word.
func runKey(scenarioIdx, runIdx int) uint64 {
	return uint64(scenarioIdx)<<32 | uint64(uint32(runIdx))
}

// Metric names used as Stats keys.
const (
	MetricErrorMean         = "error_mean"
	MetricErrorStd          = "error_std"
	MetricErrorMax          = "error_max"
	MetricErrorP99          = "error_p99"
	MetricResolutionBitsMax = "resolution_bits_max"
	MetricResolutionBitsP99 = "resolution_bits_p99"
)

func aggregate(runs []RunSummary) map[string]Summary {
	pick := func(f func(RunSummary) float64) []float64 {
		vals := make([]float64, len(runs))
		for i, r := range runs {
			vals[i] = f(r)
		}
		return vals
	}
	return map[string]Summary{
		MetricErrorMean:         Summarize(pick(func(r RunSummary) float64 { return r.ErrorMean })),
		MetricErrorStd:          Summarize(pick(func(r RunSummary) float64 { return r.ErrorStd })),
		MetricErrorMax:          Summarize(pick(func(r RunSummary) float64 { return r.ErrorMax })),
		MetricErrorP99:          Summarize(pick(func(r RunSummary) float64 { return r.ErrorP99 })),
		MetricResolutionBitsMax: Summarize(pick(func(r RunSummary) float64 { return r.ResolutionBitsMax })),
		MetricResolutionBitsP99: Summarize(pick(func(r RunSummary) float64 { return r.ResolutionBitsP99 })),
	}
}

func validate(sr *ScenarioResult, thresholds *Thresholds) bool {
	if thresholds == nil || len(sr.Runs) == 0 {
		return thresholds == nil
	}
	floor := thresholds.MinHealthyBits
	if sr.Fault.Failures > 0 {
		floor = thresholds.MinDegradedBits
	}
	return sr.Stats[MetricResolutionBitsP99].Mean >= floor
}
