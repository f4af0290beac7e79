package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/tmr-array/tmrsim/internal/montecarlo"
)

// ErrNotFound indicates the requested campaign is not in the archive.
var ErrNotFound = errors.New("store: campaign not found")

// Archive persists campaign results in a SQLite database.
type Archive struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// CampaignRecord is a one-row summary of an archived campaign.
type CampaignRecord struct {
	ID        string        `json:"id"`
	State     string        `json:"state"`
	Seed      uint64        `json:"seed"`
	Scenarios int           `json:"scenarios"`
	Excluded  int           `json:"excluded"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	CreatedAt time.Time     `json:"created_at"`
}

// Open opens (or creates) the campaign archive at path.
func Open(path string) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Archive{db: db, path: path}, nil
}

// SaveResult archives a finished campaign result, including every scenario
// and per-run summary, in one transaction.
func (a *Archive) SaveResult(ctx context.Context, res *montecarlo.Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if res == nil || res.ID == "" {
		return fmt.Errorf("store: result has no ID")
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	skippedJSON, err := json.Marshal(res.Skipped)
	if err != nil {
		return fmt.Errorf("failed to marshal skipped list: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO campaigns (id, state, seed, excluded, elapsed_ns, skipped, created_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))`,
		res.ID, res.StateName, int64(res.Seed), res.Excluded,
		res.Elapsed.Nanoseconds(), string(skippedJSON)); err != nil {
		return fmt.Errorf("failed to insert campaign: %w", err)
	}

	for _, sc := range res.Scenarios {
		statsJSON, err := json.Marshal(sc.Stats)
		if err != nil {
			return fmt.Errorf("failed to marshal scenario stats: %w", err)
		}

		var scenarioID int64
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO scenarios (campaign_id, ring_name, sensors, pole_pairs,
			                       position_tolerance_deg, fault_name, failures,
			                       excluded, valid, stats)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			res.ID, sc.Ring.Name, sc.Ring.Sensors, sc.Ring.PolePairs,
			sc.Ring.PositionToleranceDeg, sc.Fault.Name, sc.Fault.Failures,
			sc.Excluded, boolToInt(sc.Valid), string(statsJSON)).Scan(&scenarioID); err != nil {
			return fmt.Errorf("failed to insert scenario: %w", err)
		}

		for _, run := range sc.Runs {
			paramsJSON, err := json.Marshal(run.Params)
			if err != nil {
				return fmt.Errorf("failed to marshal run params: %w", err)
			}
			var latencyJSON any
			if run.Latency != nil {
				b, err := json.Marshal(run.Latency)
				if err != nil {
					return fmt.Errorf("failed to marshal run latency: %w", err)
				}
				latencyJSON = string(b)
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO runs (scenario_id, run_index, params,
				                  error_mean, error_std, error_max, error_p99,
				                  resolution_bits_max, resolution_bits_p99, latency)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				scenarioID, run.RunIndex, string(paramsJSON),
				run.ErrorMean, run.ErrorStd, run.ErrorMax, run.ErrorP99,
				run.ResolutionBitsMax, run.ResolutionBitsP99, latencyJSON); err != nil {
				return fmt.Errorf("failed to insert run %d: %w", run.RunIndex, err)
			}
		}
	}

	return tx.Commit()
}

// ListCampaigns returns one summary record per archived campaign, newest
// first.
func (a *Archive) ListCampaigns(ctx context.Context) ([]CampaignRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rows, err := a.db.QueryContext(ctx, `
		SELECT c.id, c.state, c.seed, c.excluded, c.elapsed_ns, c.created_at,
		       (SELECT COUNT(*) FROM scenarios s WHERE s.campaign_id = c.id)
		FROM campaigns c
		ORDER BY c.created_at DESC, c.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	var records []CampaignRecord
	for rows.Next() {
		var rec CampaignRecord
		var seed int64
		var elapsed int64
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.State, &seed, &rec.Excluded,
			&elapsed, &createdAt, &rec.Scenarios); err != nil {
			return nil, fmt.Errorf("failed to scan campaign row: %w", err)
		}
		rec.Seed = uint64(seed)
		rec.Elapsed = time.Duration(elapsed)
		if t, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			rec.CreatedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LoadResult reconstructs a full campaign result from the archive.
func (a *Archive) LoadResult(ctx context.Context, id string) (*montecarlo.Result, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	res := &montecarlo.Result{ID: id}

	var seed, elapsed int64
	var skippedJSON sql.NullString
	err := a.db.QueryRowContext(ctx, `
		SELECT state, seed, excluded, elapsed_ns, skipped
		FROM campaigns WHERE id = ?`, id).
		Scan(&res.StateName, &seed, &res.Excluded, &elapsed, &skippedJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	res.Seed = uint64(seed)
	res.Elapsed = time.Duration(elapsed)
	if state, err := montecarlo.ParseState(res.StateName); err == nil {
		res.State = state
	}
	if skippedJSON.Valid && skippedJSON.String != "" {
		if err := json.Unmarshal([]byte(skippedJSON.String), &res.Skipped); err != nil {
			return nil, fmt.Errorf("failed to parse skipped list: %w", err)
		}
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, ring_name, sensors, pole_pairs, position_tolerance_deg,
		       fault_name, failures, excluded, valid, stats
		FROM scenarios WHERE campaign_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	defer rows.Close()

	var scenarioIDs []int64
	for rows.Next() {
		var sc montecarlo.ScenarioResult
		var scenarioID int64
		var valid int
		var statsJSON sql.NullString
		if err := rows.Scan(&scenarioID, &sc.Ring.Name, &sc.Ring.Sensors,
			&sc.Ring.PolePairs, &sc.Ring.PositionToleranceDeg,
			&sc.Fault.Name, &sc.Fault.Failures, &sc.Excluded, &valid,
			&statsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan scenario row: %w", err)
		}
		sc.Valid = valid != 0
		if statsJSON.Valid && statsJSON.String != "" {
			if err := json.Unmarshal([]byte(statsJSON.String), &sc.Stats); err != nil {
				return nil, fmt.Errorf("failed to parse scenario stats: %w", err)
			}
		}
		res.Scenarios = append(res.Scenarios, sc)
		scenarioIDs = append(scenarioIDs, scenarioID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, scenarioID := range scenarioIDs {
		runs, err := a.loadRuns(ctx, scenarioID)
		if err != nil {
			return nil, err
		}
		res.Scenarios[i].Runs = runs
	}

	return res, nil
}

// loadRuns loads the per-run summaries of one scenario in run order.
func (a *Archive) loadRuns(ctx context.Context, scenarioID int64) ([]montecarlo.RunSummary, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT run_index, params, error_mean, error_std, error_max, error_p99,
		       resolution_bits_max, resolution_bits_p99, latency
		FROM runs WHERE scenario_id = ? ORDER BY run_index`, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []montecarlo.RunSummary
	for rows.Next() {
		var run montecarlo.RunSummary
		var paramsJSON string
		var latencyJSON sql.NullString
		if err := rows.Scan(&run.RunIndex, &paramsJSON,
			&run.ErrorMean, &run.ErrorStd, &run.ErrorMax, &run.ErrorP99,
			&run.ResolutionBitsMax, &run.ResolutionBitsP99, &latencyJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
			return nil, fmt.Errorf("failed to parse run params: %w", err)
		}
		if latencyJSON.Valid && latencyJSON.String != "" {
			run.Latency = &montecarlo.LatencyMetrics{}
			if err := json.Unmarshal([]byte(latencyJSON.String), run.Latency); err != nil {
				return nil, fmt.Errorf("failed to parse run latency: %w", err)
			}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteCampaign removes a campaign and all its scenarios and runs.
func (a *Archive) DeleteCampaign(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	result, err := a.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
