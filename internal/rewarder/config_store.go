package rewarder

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/autorewarder/internal/types"
	"github.com/elys-network/autorewarder/internal/utils"
)

// configStore holds the reward parameters. Setters validate before assigning so a
// rejected value never leaves a partial update behind.
type configStore struct {
	params types.RewardParameters
}

func newConfigStore(params types.RewardParameters) (*configStore, error) {
	if err := validateParameters(params); err != nil {
		return nil, err
	}
	return &configStore{params: params}, nil
}

func (c *configStore) setRewardsPerDay(amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	c.params.RewardsPerDay = amount
	return nil
}

func (c *configStore) setNetworkRatio(ratio sdkmath.LegacyDec) error {
	if err := utils.ValidateRatio(ratio); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRatio, err)
	}
	c.params.NetworkRatio = ratio
	return nil
}

func (c *configStore) set(params types.RewardParameters) error {
	if err := validateParameters(params); err != nil {
		return err
	}
	c.params = params
	return nil
}

func (c *configStore) scaledRewardsPerDay() sdkmath.Int {
	return c.params.ScaledRewardsPerDay()
}

func validateParameters(p types.RewardParameters) error {
	if p.RewardsPerDay.IsNil() || p.RewardsPerDay.IsNegative() {
		return ErrInvalidAmount
	}
	if err := utils.ValidateRatio(p.NetworkRatio); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRatio, err)
	}
	if p.MinCyclePeriod <= 0 || p.MaxInfoAge <= 0 {
		return ErrInvalidPeriod
	}
	return nil
}
