// ./internal/state/parameters_store.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/autorewarder/internal/types"
)

// DefaultConfigName is the parameter set used by the operator.
const DefaultConfigName = "default"

// ParameterVersion is one stored version of the reward parameters.
type ParameterVersion struct {
	ParamsID    int64                  `json:"params_id"`
	Version     int                    `json:"version"`
	ConfigName  string                 `json:"config_name"`
	IsActive    bool                   `json:"is_active"`
	ActivatedAt time.Time              `json:"activated_at"`
	UpdatedBy   string                 `json:"updated_by"`
	Parameters  types.RewardParameters `json:"parameters"`
}

// SaveRewardParameters stores params as the next version of configName. When makeActive is set
// the previous active version is deactivated in the same transaction.
func SaveRewardParameters(ctx context.Context, params types.RewardParameters, configName, updatedBy string, makeActive bool) (id int64, err error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback()
		}
	}()

	var version int
	if err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM reward_parameters WHERE config_name = $1;`,
		configName,
	).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to compute next parameters version for %s: %w", configName, err)
	}

	if makeActive {
		if _, err = tx.ExecContext(ctx,
			`UPDATE reward_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`,
			configName,
		); err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	now := time.Now()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO reward_parameters (
			version, config_name, is_active, activated_at, created_at, updated_by,
			rewards_per_day, network_ratio, min_cycle_period_ms, max_info_age_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING params_id;`,
		version, configName, makeActive, now, now, updatedBy,
		numericArg(params.RewardsPerDay), decArg(params.NetworkRatio),
		params.MinCyclePeriod.Milliseconds(), params.MaxInfoAge.Milliseconds(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert reward parameters: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("paramsID", id).
		Bool("active", makeActive).
		Str("updatedBy", updatedBy).
		Msg("Saved reward parameters")
	return id, nil
}

const parameterColumns = `
	params_id, version, config_name, is_active, activated_at, updated_by,
	rewards_per_day::TEXT, network_ratio::TEXT, min_cycle_period_ms, max_info_age_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParameterVersion(row rowScanner) (ParameterVersion, error) {
	var (
		pv                    ParameterVersion
		rewards, ratio        string
		minPeriodMs, maxAgeMs int64
	)
	if err := row.Scan(
		&pv.ParamsID, &pv.Version, &pv.ConfigName, &pv.IsActive, &pv.ActivatedAt, &pv.UpdatedBy,
		&rewards, &ratio, &minPeriodMs, &maxAgeMs,
	); err != nil {
		return ParameterVersion{}, err
	}

	var err error
	if pv.Parameters.RewardsPerDay, err = parseNumeric("rewards_per_day", rewards); err != nil {
		return ParameterVersion{}, err
	}
	if pv.Parameters.NetworkRatio, err = parseDec("network_ratio", ratio); err != nil {
		return ParameterVersion{}, err
	}
	pv.Parameters.MinCyclePeriod = time.Duration(minPeriodMs) * time.Millisecond
	pv.Parameters.MaxInfoAge = time.Duration(maxAgeMs) * time.Millisecond
	return pv, nil
}

// LoadActiveRewardParameters loads the active version of configName. ErrNotFound is returned
// when nothing has been activated yet.
func LoadActiveRewardParameters(ctx context.Context, configName string) (*ParameterVersion, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	row := DB.QueryRowContext(ctx, `SELECT `+parameterColumns+`
		FROM reward_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`, configName)

	pv, err := scanParameterVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no active reward parameters for config '%s'", ErrNotFound, configName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan active reward parameters for config '%s': %w", configName, err)
	}

	log.Debug().Str("config", configName).Int("version", pv.Version).Msg("Loaded active reward parameters")
	return &pv, nil
}

// GetActiveRewardParametersID returns the params_id of the active version, or nil when there is none.
func GetActiveRewardParametersID(ctx context.Context, configName string) (*int64, error) {
	pv, err := LoadActiveRewardParameters(ctx, configName)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pv.ParamsID, nil
}

// ListRewardParameterHistory returns the most recent versions of configName, newest first.
func ListRewardParameterHistory(ctx context.Context, configName string, limit int) ([]ParameterVersion, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := DB.QueryContext(ctx, `SELECT `+parameterColumns+`
		FROM reward_parameters
		WHERE config_name = $1
		ORDER BY version DESC
		LIMIT $2;`, configName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reward parameter history: %w", err)
	}
	defer rows.Close()

	var out []ParameterVersion
	for rows.Next() {
		pv, err := scanParameterVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward parameters: %w", err)
		}
		out = append(out, pv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
