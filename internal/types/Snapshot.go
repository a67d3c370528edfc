/*

This file contains the types persisted or reported after each operator cycle,
and the exportable state of the rewarder used for checkpoints and dry runs.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// CycleOutcome summarizes how an operator cycle ended.
type CycleOutcome string

const (
	CycleOutcomeCompleted  CycleOutcome = "completed"   // every vault of the cycle was paid
	CycleOutcomePartial    CycleOutcome = "partial"     // some slices paid, cycle still in progress
	CycleOutcomeTooEarly   CycleOutcome = "too_early"   // minimum cycle period not elapsed yet
	CycleOutcomeInfoTooOld CycleOutcome = "info_too_old"
	CycleOutcomeFailed     CycleOutcome = "failed"
)

// CycleSnapshot captures one operator cycle for auditing and the dashboard.
type CycleSnapshot struct {
	SnapshotID  int64     `json:"snapshot_id"`
	CycleNumber int       `json:"cycle_number"`
	CycleID     string    `json:"cycle_id"`
	Timestamp   time.Time `json:"timestamp"`
	ParamsID    *int64    `json:"params_id,omitempty"`

	// Parameters in force
	RewardsPerDay       sdkmath.Int       `json:"rewards_per_day"`
	NetworkRatio        sdkmath.LegacyDec `json:"network_ratio"`
	ScaledRewardsPerDay sdkmath.Int       `json:"scaled_rewards_per_day"`

	// Collection phase
	VaultCount      int             `json:"vault_count"`
	CollectedCount  int             `json:"collected_count"`
	CollectFailures []CollectResult `json:"collect_failures"`

	// Distribution phase
	TotalStrategyRewardsUSD sdkmath.Int `json:"total_strategy_rewards_usd"`
	Payouts                 []Payout    `json:"payouts"`
	DistributedTotal        sdkmath.Int `json:"distributed_total"`
	Dust                    sdkmath.Int `json:"dust"`
	TransactionHashes       []string    `json:"transaction_hashes"`

	Outcome    CycleOutcome `json:"outcome"`
	Error      string       `json:"error,omitempty"`
	DurationMs int64        `json:"duration_ms"`
}

// RewarderState is the full exportable state of the rewarder.
type RewarderState struct {
	Vaults       []VaultID               `json:"vaults"`
	Infos        []VaultInfo             `json:"infos"`
	Distribution DistributionState       `json:"distribution"`
	LastAmounts  map[VaultID]sdkmath.Int `json:"last_amounts"`
	Parameters   RewardParameters        `json:"parameters"`
}

// SimulationReport is the outcome of a dry-run cycle over a copy of the state.
type SimulationReport struct {
	SimulatedAt             time.Time   `json:"simulated_at"`
	BatchSize               int         `json:"batch_size"`
	Steps                   int         `json:"steps"`
	Payouts                 []Payout    `json:"payouts"`
	ScaledRewardsPerDay     sdkmath.Int `json:"scaled_rewards_per_day"`
	TotalStrategyRewardsUSD sdkmath.Int `json:"total_strategy_rewards_usd"`
	Distributed             sdkmath.Int `json:"distributed"`
	Dust                    sdkmath.Int `json:"dust"`
	Completed               bool        `json:"completed"`
	Error                   string      `json:"error,omitempty"`
}
