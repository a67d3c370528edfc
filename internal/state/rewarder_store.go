package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/autorewarder/internal/types"
)

// SaveRewarderState checkpoints the registry, collected infos, cursor and last payouts in one
// transaction. Parameters are versioned separately in reward_parameters.
func SaveRewarderState(ctx context.Context, st types.RewarderState) (err error) {
	if DB == nil {
		return ErrDBNotInitialized
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	// The registry is append-only, so existing positions never change.
	for i, v := range st.Vaults {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO rewarder_vaults (position, vault) VALUES ($1, $2) ON CONFLICT (position) DO NOTHING;`,
			i, v.String(),
		); err != nil {
			return fmt.Errorf("failed to save vault %s: %w", v, err)
		}
	}

	for _, info := range st.Infos {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO vault_infos (vault, strategy_rewards_usd, collected_at) VALUES ($1, $2, $3)
			ON CONFLICT (vault) DO UPDATE
			SET strategy_rewards_usd = EXCLUDED.strategy_rewards_usd, collected_at = EXCLUDED.collected_at;`,
			info.Vault.String(), numericArg(info.StrategyRewardsUSD), info.CollectedAt,
		); err != nil {
			return fmt.Errorf("failed to save info for %s: %w", info.Vault, err)
		}
	}

	d := st.Distribution
	sharesJSON, err := json.Marshal(d.CycleShares)
	if err != nil {
		return fmt.Errorf("failed to marshal cycle_shares: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO distribution_state (
			id, last_distributed_id, distributed_total, cycle_started_at,
			total_strategy_rewards_usd, cycle_size, oldest_info_at, cycle_shares, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			last_distributed_id = EXCLUDED.last_distributed_id,
			distributed_total = EXCLUDED.distributed_total,
			cycle_started_at = EXCLUDED.cycle_started_at,
			total_strategy_rewards_usd = EXCLUDED.total_strategy_rewards_usd,
			cycle_size = EXCLUDED.cycle_size,
			oldest_info_at = EXCLUDED.oldest_info_at,
			cycle_shares = EXCLUDED.cycle_shares,
			updated_at = CURRENT_TIMESTAMP;`,
		d.LastDistributedID, numericArg(d.DistributedTotal), nullTime(d.CycleStartedAt),
		numericArg(d.TotalStrategyRewardsUSD), d.CycleSize, nullTime(d.OldestInfoAt), sharesJSON,
	); err != nil {
		return fmt.Errorf("failed to save distribution state: %w", err)
	}

	for vault, amount := range st.LastAmounts {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO last_distributed_amounts (vault, amount, updated_at) VALUES ($1, $2, CURRENT_TIMESTAMP)
			ON CONFLICT (vault) DO UPDATE SET amount = EXCLUDED.amount, updated_at = CURRENT_TIMESTAMP;`,
			vault.String(), numericArg(amount),
		); err != nil {
			return fmt.Errorf("failed to save last distributed amount for %s: %w", vault, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Debug().
		Int("vaults", len(st.Vaults)).
		Int("infos", len(st.Infos)).
		Int("lastDistributedID", d.LastDistributedID).
		Msg("Rewarder state checkpointed")
	return nil
}

// LoadRewarderState reads the last checkpoint. found is false on a fresh database.
// The returned Parameters are left empty.
func LoadRewarderState(ctx context.Context) (st types.RewarderState, found bool, err error) {
	if DB == nil {
		return st, false, ErrDBNotInitialized
	}

	st.Distribution = types.NewDistributionState()
	st.LastAmounts = make(map[types.VaultID]sdkmath.Int)

	if st.Vaults, err = loadVaults(ctx); err != nil {
		return st, false, err
	}
	if st.Infos, err = loadInfos(ctx); err != nil {
		return st, false, err
	}

	var (
		distributed, total string
		started, oldest    sql.NullTime
		sharesJSON         []byte
	)
	err = DB.QueryRowContext(ctx, `
		SELECT last_distributed_id, distributed_total::TEXT, cycle_started_at,
			total_strategy_rewards_usd::TEXT, cycle_size, oldest_info_at, cycle_shares
		FROM distribution_state WHERE id = 1;`,
	).Scan(&st.Distribution.LastDistributedID, &distributed, &started, &total, &st.Distribution.CycleSize, &oldest, &sharesJSON)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return st, len(st.Vaults) > 0, nil
	case err != nil:
		return st, false, fmt.Errorf("failed to load distribution state: %w", err)
	}

	if st.Distribution.DistributedTotal, err = parseNumeric("distributed_total", distributed); err != nil {
		return st, false, err
	}
	if st.Distribution.TotalStrategyRewardsUSD, err = parseNumeric("total_strategy_rewards_usd", total); err != nil {
		return st, false, err
	}
	st.Distribution.CycleStartedAt = timeOrZero(started)
	st.Distribution.OldestInfoAt = timeOrZero(oldest)
	if len(sharesJSON) > 0 && string(sharesJSON) != "null" {
		if err = json.Unmarshal(sharesJSON, &st.Distribution.CycleShares); err != nil {
			return st, false, fmt.Errorf("failed to unmarshal cycle_shares: %w", err)
		}
	}

	if st.LastAmounts, err = loadLastAmounts(ctx); err != nil {
		return st, false, err
	}
	return st, true, nil
}

func loadVaults(ctx context.Context) ([]types.VaultID, error) {
	rows, err := DB.QueryContext(ctx, `SELECT vault FROM rewarder_vaults ORDER BY position ASC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vaults: %w", err)
	}
	defer rows.Close()

	var out []types.VaultID
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan vault: %w", err)
		}
		out = append(out, types.VaultID(v))
	}
	return out, rows.Err()
}

func loadInfos(ctx context.Context) ([]types.VaultInfo, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT i.vault, i.strategy_rewards_usd::TEXT, i.collected_at
		FROM vault_infos i JOIN rewarder_vaults v ON v.vault = i.vault
		ORDER BY v.position ASC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vault infos: %w", err)
	}
	defer rows.Close()

	var out []types.VaultInfo
	for rows.Next() {
		var vault, value string
		var info types.VaultInfo
		if err := rows.Scan(&vault, &value, &info.CollectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vault info: %w", err)
		}
		info.Vault = types.VaultID(vault)
		info.CollectedAt = info.CollectedAt.UTC()
		if info.StrategyRewardsUSD, err = parseNumeric("strategy_rewards_usd", value); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func loadLastAmounts(ctx context.Context) (map[types.VaultID]sdkmath.Int, error) {
	rows, err := DB.QueryContext(ctx, `SELECT vault, amount::TEXT FROM last_distributed_amounts;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query last distributed amounts: %w", err)
	}
	defer rows.Close()

	out := make(map[types.VaultID]sdkmath.Int)
	for rows.Next() {
		var vault, value string
		if err := rows.Scan(&vault, &value); err != nil {
			return nil, fmt.Errorf("failed to scan last distributed amount: %w", err)
		}
		amount, err := parseNumeric("amount", value)
		if err != nil {
			return nil, err
		}
		out[types.VaultID(vault)] = amount
	}
	return out, rows.Err()
}
