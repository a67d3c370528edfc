/*

This file contains the types describing the registered vaults and the metric snapshots collected for them.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// VaultID identifies a reward recipient. On chain this is the vault's bech32 address.
type VaultID string

func (v VaultID) String() string {
	return string(v)
}

// VaultInfo is the latest strategy-rewards snapshot collected for a vault.
type VaultInfo struct {
	Vault              VaultID     `json:"vault"`
	StrategyRewardsUSD sdkmath.Int `json:"strategy_rewards_usd"` // 18-decimal fixed point USD
	CollectedAt        time.Time   `json:"collected_at"`         // zero when never collected
}

// IsCollected reports whether a successful collection ever happened for the vault.
func (v VaultInfo) IsCollected() bool {
	return !v.CollectedAt.IsZero()
}

// IsFreshAt reports whether the info may take part in a cycle armed at now.
func (v VaultInfo) IsFreshAt(now time.Time, maxAge time.Duration) bool {
	if !v.IsCollected() {
		return false
	}
	return !v.CollectedAt.Before(now.Add(-maxAge))
}

// CollectErrorKind classifies why a single vault failed to collect.
type CollectErrorKind string

const (
	CollectErrorNone         CollectErrorKind = ""
	CollectErrorUnknownVault CollectErrorKind = "unknown_vault"
	CollectErrorSource       CollectErrorKind = "source_error"
	CollectErrorInvalidValue CollectErrorKind = "invalid_value"
	CollectErrorPanic        CollectErrorKind = "panic"
)

// CollectResult is the per-vault outcome of a collect batch.
type CollectResult struct {
	Vault     VaultID          `json:"vault"`
	OK        bool             `json:"ok"`
	ErrorKind CollectErrorKind `json:"error_kind,omitempty"`
	Error     string           `json:"error,omitempty"`
	Value     sdkmath.Int      `json:"value"`
}

// CollectReport aggregates the results of one collect call.
type CollectReport struct {
	Results     []CollectResult `json:"results"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	Registered  int             `json:"registered"` // vaults appended to the registry by this call
	CollectedAt time.Time       `json:"collected_at"`
}

// Failures returns only the failed results, in input order.
func (r CollectReport) Failures() []CollectResult {
	failures := make([]CollectResult, 0, r.Failed)
	for _, res := range r.Results {
		if !res.OK {
			failures = append(failures, res)
		}
	}
	return failures
}
