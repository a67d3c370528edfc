// ./internal/state/snapshot_store.go
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/elys-network/autorewarder/internal/types"
)

// SaveCycleSnapshot saves a complete cycle snapshot to the database.
func SaveCycleSnapshot(ctx context.Context, snapshot types.CycleSnapshot) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	failuresJSON, err := json.Marshal(snapshot.CollectFailures)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal collect_failures: %w", err)
	}
	payoutsJSON, err := json.Marshal(snapshot.Payouts)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payouts: %w", err)
	}

	query := `
		INSERT INTO cycle_snapshots (
			cycle_number, cycle_id, snapshot_timestamp, params_id,
			rewards_per_day, network_ratio, scaled_rewards_per_day,
			vault_count, collected_count, collect_failures,
			total_strategy_rewards_usd, payouts, distributed_total, dust, transaction_hashes,
			outcome, error, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRowContext(ctx,
		query,
		snapshot.CycleNumber, snapshot.CycleID, snapshot.Timestamp, snapshot.ParamsID,
		numericArg(snapshot.RewardsPerDay), decArg(snapshot.NetworkRatio), numericArg(snapshot.ScaledRewardsPerDay),
		snapshot.VaultCount, snapshot.CollectedCount, failuresJSON,
		numericArg(snapshot.TotalStrategyRewardsUSD), payoutsJSON, numericArg(snapshot.DistributedTotal),
		numericArg(snapshot.Dust), pq.Array(snapshot.TransactionHashes),
		string(snapshot.Outcome), snapshot.Error, snapshot.DurationMs,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save cycle snapshot: %w", err)
	}

	log.Info().
		Int64("snapshotID", snapshotID).
		Int("cycleNumber", snapshot.CycleNumber).
		Str("outcome", string(snapshot.Outcome)).
		Str("distributedTotal", numericArg(snapshot.DistributedTotal)).
		Msg("Cycle snapshot saved to database")

	return snapshotID, nil
}
