/*

This file contains the types for the reward distribution cycle: the persisted cursor state,
the tunable reward parameters and the payouts produced by each paginated step.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// RewardParameters holds the governance controlled budget and the cycle timing rules.
type RewardParameters struct {
	RewardsPerDay  sdkmath.Int       `json:"rewards_per_day"`  // base daily budget in the smallest reward unit
	NetworkRatio   sdkmath.LegacyDec `json:"network_ratio"`    // fraction of the budget released, in [0, 1]
	MinCyclePeriod time.Duration     `json:"min_cycle_period"` // minimum time between two cycle starts
	MaxInfoAge     time.Duration     `json:"max_info_age"`     // maximum age of a VaultInfo used in a cycle
}

// ScaledRewardsPerDay is the amount a full cycle distributes: RewardsPerDay x NetworkRatio, truncated.
func (p RewardParameters) ScaledRewardsPerDay() sdkmath.Int {
	if p.RewardsPerDay.IsNil() || p.NetworkRatio.IsNil() {
		return sdkmath.ZeroInt()
	}
	return p.NetworkRatio.MulInt(p.RewardsPerDay).TruncateInt()
}

// DistributionState is the cursor over the vault registry plus the frozen snapshot of the running cycle.
type DistributionState struct {
	LastDistributedID       int                     `json:"last_distributed_id"`
	DistributedTotal        sdkmath.Int             `json:"distributed_total"`
	CycleStartedAt          time.Time               `json:"cycle_started_at"`
	TotalStrategyRewardsUSD sdkmath.Int             `json:"total_strategy_rewards_usd"`
	CycleSize               int                     `json:"cycle_size"`
	OldestInfoAt            time.Time               `json:"oldest_info_at"`
	CycleShares             map[VaultID]sdkmath.Int `json:"cycle_shares,omitempty"`
}

// NewDistributionState returns an idle state with zeroed amounts.
func NewDistributionState() DistributionState {
	return DistributionState{
		DistributedTotal:        sdkmath.ZeroInt(),
		TotalStrategyRewardsUSD: sdkmath.ZeroInt(),
		CycleShares:             make(map[VaultID]sdkmath.Int),
	}
}

// InProgress reports whether a cycle has been armed and not yet traversed completely.
func (s DistributionState) InProgress() bool {
	return s.LastDistributedID > 0
}

// Clone returns a deep copy so callers cannot mutate the engine's maps.
func (s DistributionState) Clone() DistributionState {
	out := s
	out.CycleShares = make(map[VaultID]sdkmath.Int, len(s.CycleShares))
	for k, v := range s.CycleShares {
		out.CycleShares[k] = v
	}
	return out
}

// Payout is a single reward transfer to a vault.
type Payout struct {
	Vault  VaultID     `json:"vault"`
	Amount sdkmath.Int `json:"amount"`
}

// DistributeResult describes one successful distribute step.
type DistributeResult struct {
	From                    int         `json:"from"`
	To                      int         `json:"to"`
	Payouts                 []Payout    `json:"payouts"`
	Paid                    sdkmath.Int `json:"paid"`
	Armed                   bool        `json:"armed"`
	CycleStartedAt          time.Time   `json:"cycle_started_at"`
	CycleCompleted          bool        `json:"cycle_completed"`
	DistributedInCycle      sdkmath.Int `json:"distributed_in_cycle"`
	ScaledRewardsPerDay     sdkmath.Int `json:"scaled_rewards_per_day"`
	TotalStrategyRewardsUSD sdkmath.Int `json:"total_strategy_rewards_usd"`
}

// SumPayouts adds up the amounts of a payout list.
func SumPayouts(payouts []Payout) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, p := range payouts {
		if p.Amount.IsNil() {
			continue
		}
		total = total.Add(p.Amount)
	}
	return total
}
