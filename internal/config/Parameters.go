/*

This file contains the default reward parameters for the rewarder.

They are used when no active parameters are stored in the database. Each value can be
overridden from the environment at startup and through the governance API at runtime.

*/

package config

import (
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/autorewarder/internal/types"
	"github.com/elys-network/autorewarder/internal/utils"
)

// DefaultRewardParameters provides the baseline budget and cycle timing.
var DefaultRewardParameters = types.RewardParameters{
	RewardsPerDay: sdkmath.NewIntWithDecimal(1000, utils.RewardDecimals), // 1000 reward tokens per day.
	// Rationale: conservative bootstrap budget. Governance raises it once the funding account is topped up.

	NetworkRatio: sdkmath.LegacyMustNewDecFromStr("0.231"), // Release 23.1% of the nominal budget.
	// Rationale: matches the share of emissions currently allocated to strategy vaults.

	MinCyclePeriod: 24 * time.Hour, // One cycle per day.
	// Rationale: the budget is expressed per day, so arming more often would overspend it.

	MaxInfoAge: 24 * time.Hour, // Strategy rewards older than a day are not used.
	// Rationale: a cycle must be weighted by data from the same day it pays for.
}

// LoadRewardParameters returns DefaultRewardParameters with any environment overrides applied.
// REWARDS_PER_DAY is given in whole tokens and may carry decimals.
func LoadRewardParameters() (types.RewardParameters, error) {
	params := DefaultRewardParameters

	if raw := getEnvOrDefault("REWARDS_PER_DAY", ""); raw != "" {
		amount, err := utils.ParseUnits(raw, utils.RewardDecimals)
		if err != nil {
			return types.RewardParameters{}, errors.New("environment variable REWARDS_PER_DAY must be a non-negative decimal, got: " + raw)
		}
		params.RewardsPerDay = amount
	}

	if raw := getEnvOrDefault("NETWORK_RATIO", ""); raw != "" {
		ratio, err := utils.ParseRatio(raw)
		if err != nil {
			return types.RewardParameters{}, errors.New("environment variable NETWORK_RATIO must be a decimal in [0, 1], got: " + raw)
		}
		params.NetworkRatio = ratio
	}

	var err error
	if params.MinCyclePeriod, err = getEnvAsDurationOrDefault("MIN_CYCLE_PERIOD", params.MinCyclePeriod); err != nil {
		return types.RewardParameters{}, err
	}
	if params.MaxInfoAge, err = getEnvAsDurationOrDefault("MAX_INFO_AGE", params.MaxInfoAge); err != nil {
		return types.RewardParameters{}, err
	}

	return params, nil
}
