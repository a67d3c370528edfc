package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/autorewarder/internal/types"
)

// DistributionSummary aggregates every stored cycle.
type DistributionSummary struct {
	TotalCycles      int         `json:"total_cycles"`
	CompletedCycles  int         `json:"completed_cycles"`
	TooEarlyCycles   int         `json:"too_early_cycles"`
	StaleInfoCycles  int         `json:"stale_info_cycles"`
	FailedCycles     int         `json:"failed_cycles"`
	TotalDistributed sdkmath.Int `json:"total_distributed"`
	TotalDust        sdkmath.Int `json:"total_dust"`
	LastCycleAt      *time.Time  `json:"last_cycle_at,omitempty"`
}

const snapshotColumns = `
	snapshot_id, cycle_number, cycle_id, snapshot_timestamp, params_id,
	rewards_per_day::TEXT, network_ratio::TEXT, scaled_rewards_per_day::TEXT,
	vault_count, collected_count, collect_failures,
	total_strategy_rewards_usd::TEXT, payouts, distributed_total::TEXT, dust::TEXT, transaction_hashes,
	outcome, COALESCE(error, ''), duration_ms`

func scanSnapshot(row rowScanner) (types.CycleSnapshot, error) {
	var (
		cycle                                     types.CycleSnapshot
		paramsID                                  sql.NullInt64
		rewards, ratio, scaled, total, paid, dust string
		failuresJSON, payoutsJSON                 []byte
		outcome                                   string
	)
	if err := row.Scan(
		&cycle.SnapshotID, &cycle.CycleNumber, &cycle.CycleID, &cycle.Timestamp, &paramsID,
		&rewards, &ratio, &scaled,
		&cycle.VaultCount, &cycle.CollectedCount, &failuresJSON,
		&total, &payoutsJSON, &paid, &dust, pq.Array(&cycle.TransactionHashes), // Use pq.Array for PostgreSQL array
		&outcome, &cycle.Error, &cycle.DurationMs,
	); err != nil {
		return types.CycleSnapshot{}, err
	}

	if paramsID.Valid {
		id := paramsID.Int64
		cycle.ParamsID = &id
	}
	cycle.Timestamp = cycle.Timestamp.UTC()
	cycle.Outcome = types.CycleOutcome(outcome)

	var err error
	for _, f := range []struct {
		column string
		raw    string
		dst    *sdkmath.Int
	}{
		{"rewards_per_day", rewards, &cycle.RewardsPerDay},
		{"scaled_rewards_per_day", scaled, &cycle.ScaledRewardsPerDay},
		{"total_strategy_rewards_usd", total, &cycle.TotalStrategyRewardsUSD},
		{"distributed_total", paid, &cycle.DistributedTotal},
		{"dust", dust, &cycle.Dust},
	} {
		if *f.dst, err = parseNumeric(f.column, f.raw); err != nil {
			return types.CycleSnapshot{}, err
		}
	}
	if cycle.NetworkRatio, err = parseDec("network_ratio", ratio); err != nil {
		return types.CycleSnapshot{}, err
	}

	if err := unmarshalJSONFields(&cycle, failuresJSON, payoutsJSON); err != nil {
		return types.CycleSnapshot{}, err
	}
	return cycle, nil
}

// unmarshalJSONFields unmarshals JSON fields for a cycle snapshot
func unmarshalJSONFields(cycle *types.CycleSnapshot, failuresJSON, payoutsJSON []byte) error {
	if len(failuresJSON) > 0 {
		if err := json.Unmarshal(failuresJSON, &cycle.CollectFailures); err != nil {
			return fmt.Errorf("failed to unmarshal collect failures: %w", err)
		}
	}
	if len(payoutsJSON) > 0 {
		if err := json.Unmarshal(payoutsJSON, &cycle.Payouts); err != nil {
			return fmt.Errorf("failed to unmarshal payouts: %w", err)
		}
	}
	return nil
}

// GetRecentCycles retrieves recent cycle snapshots, newest first.
func GetRecentCycles(ctx context.Context, limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	rows, err := DB.QueryContext(ctx, `SELECT `+snapshotColumns+`
		FROM cycle_snapshots
		ORDER BY snapshot_timestamp DESC, snapshot_id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	var cycles []types.CycleSnapshot
	for rows.Next() {
		cycle, err := scanSnapshot(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan cycle row")
			continue // Skip this row and continue with others
		}
		cycles = append(cycles, cycle)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(cycles)).Int("limit", limit).Msg("Retrieved recent cycles")
	return cycles, nil
}

// GetCycleByID retrieves a specific cycle by its snapshot ID.
func GetCycleByID(ctx context.Context, snapshotID int64) (*types.CycleSnapshot, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	row := DB.QueryRowContext(ctx, `SELECT `+snapshotColumns+`
		FROM cycle_snapshots
		WHERE snapshot_id = $1`, snapshotID)

	cycle, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: cycle with ID %d", ErrNotFound, snapshotID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle by ID: %w", err)
	}
	return &cycle, nil
}

// GetLatestCycle returns the most recent snapshot.
func GetLatestCycle(ctx context.Context) (*types.CycleSnapshot, error) {
	cycles, err := GetRecentCycles(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, fmt.Errorf("%w: no cycles recorded", ErrNotFound)
	}
	return &cycles[0], nil
}

// GetDistributionSummary aggregates outcomes and amounts over all cycles.
func GetDistributionSummary(ctx context.Context) (*DistributionSummary, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	var (
		summary     DistributionSummary
		paid, dust  string
		lastCycleAt sql.NullTime
	)
	err := DB.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE outcome = $1),
			COUNT(*) FILTER (WHERE outcome = $2),
			COUNT(*) FILTER (WHERE outcome = $3),
			COUNT(*) FILTER (WHERE outcome = $4),
			COALESCE(SUM(distributed_total), 0)::TEXT,
			COALESCE(SUM(dust) FILTER (WHERE outcome = $1), 0)::TEXT,
			MAX(snapshot_timestamp)
		FROM cycle_snapshots`,
		string(types.CycleOutcomeCompleted), string(types.CycleOutcomeTooEarly),
		string(types.CycleOutcomeInfoTooOld), string(types.CycleOutcomeFailed),
	).Scan(
		&summary.TotalCycles, &summary.CompletedCycles, &summary.TooEarlyCycles,
		&summary.StaleInfoCycles, &summary.FailedCycles, &paid, &dust, &lastCycleAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get distribution summary: %w", err)
	}

	if summary.TotalDistributed, err = parseNumeric("distributed_total", paid); err != nil {
		return nil, err
	}
	if summary.TotalDust, err = parseNumeric("dust", dust); err != nil {
		return nil, err
	}
	if lastCycleAt.Valid {
		t := lastCycleAt.Time.UTC()
		summary.LastCycleAt = &t
	}
	return &summary, nil
}
