package rewarder

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/autorewarder/internal/types"
	"github.com/elys-network/autorewarder/internal/utils"
	"github.com/elys-network/autorewarder/internal/vault"
)

// engine owns the distribution cursor and the per-vault amounts of the last cycle.
//
// A cycle is armed by the first distribute call after the previous one completed.
// Arming freezes the cycle size and each vault's USD share, so collections made
// while the cycle is running only affect the next cycle.
type engine struct {
	state       types.DistributionState
	lastAmounts map[types.VaultID]sdkmath.Int
}

func newEngine() *engine {
	return &engine{
		state:       types.NewDistributionState(),
		lastAmounts: make(map[types.VaultID]sdkmath.Int),
	}
}

func (e *engine) lastAmount(vault types.VaultID) sdkmath.Int {
	if amount, ok := e.lastAmounts[vault]; ok {
		return amount
	}
	return sdkmath.ZeroInt()
}

// snapshot computes the state a cycle armed at now would run with.
// Stale or never collected infos are left out and their vaults receive nothing.
// It fails with ErrInfoTooOld only when infos exist but none of them is fresh.
func snapshot(now time.Time, reg *registry, infos *infoStore, maxAge time.Duration) (types.DistributionState, error) {
	st := types.NewDistributionState()
	st.CycleStartedAt = now
	st.CycleSize = reg.size()

	collected := 0
	for _, v := range reg.slice(0, st.CycleSize) {
		info := infos.get(v)
		if !info.IsCollected() {
			continue
		}
		collected++
		if !info.IsFreshAt(now, maxAge) {
			continue
		}
		st.CycleShares[v] = info.StrategyRewardsUSD
		st.TotalStrategyRewardsUSD = st.TotalStrategyRewardsUSD.Add(info.StrategyRewardsUSD)
		if st.OldestInfoAt.IsZero() || info.CollectedAt.Before(st.OldestInfoAt) {
			st.OldestInfoAt = info.CollectedAt
		}
	}

	if collected > 0 && len(st.CycleShares) == 0 {
		return types.DistributionState{}, fmt.Errorf("%w: %d collected infos are all older than %s", ErrInfoTooOld, collected, maxAge)
	}
	return st, nil
}

// payoutFor computes scaled * share / total with truncation. Vaults outside the snapshot get zero.
func payoutFor(st types.DistributionState, vault types.VaultID, scaled sdkmath.Int) (sdkmath.Int, error) {
	share, ok := st.CycleShares[vault]
	if !ok || st.TotalStrategyRewardsUSD.IsZero() || share.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	return utils.MulDiv(scaled, share, st.TotalStrategyRewardsUSD)
}

// distribute pays the next slice of at most count vaults. All checks run, and the sink
// is called, before anything is written; a failure at any point leaves the engine as it was.
func (e *engine) distribute(
	ctx context.Context,
	count int,
	now time.Time,
	reg *registry,
	infos *infoStore,
	params types.RewardParameters,
	sink vault.RewardSink,
) (types.DistributeResult, error) {
	if count <= 0 {
		return types.DistributeResult{}, fmt.Errorf("%w: got %d", ErrInvalidCount, count)
	}

	working := e.state
	armed := false

	if !working.InProgress() {
		if reg.size() == 0 {
			return types.DistributeResult{}, ErrNoVaults
		}
		if !working.CycleStartedAt.IsZero() {
			nextAllowed := working.CycleStartedAt.Add(params.MinCyclePeriod)
			if now.Before(nextAllowed) {
				return types.DistributeResult{}, fmt.Errorf("%w: next cycle allowed at %s", ErrTooEarly, nextAllowed.UTC().Format(time.RFC3339))
			}
		}
		st, err := snapshot(now, reg, infos, params.MaxInfoAge)
		if err != nil {
			return types.DistributeResult{}, err
		}
		working = st
		armed = true
	}

	if !working.OldestInfoAt.IsZero() && now.Sub(working.OldestInfoAt) > params.MaxInfoAge {
		return types.DistributeResult{}, fmt.Errorf("%w: cycle snapshot taken from info collected at %s",
			ErrInfoTooOld, working.OldestInfoAt.UTC().Format(time.RFC3339))
	}

	// Clamp before adding: from+count overflows for counts near math.MaxInt.
	from := working.LastDistributedID
	to := from + min(count, working.CycleSize-from)

	scaled := params.ScaledRewardsPerDay()
	payouts := make([]types.Payout, 0, to-from)
	for _, v := range reg.slice(from, to) {
		amount, err := payoutFor(working, v, scaled)
		if err != nil {
			return types.DistributeResult{}, fmt.Errorf("failed to compute payout for %s: %w", v, err)
		}
		payouts = append(payouts, types.Payout{Vault: v, Amount: amount})
	}

	if err := sink.Fund(ctx, payouts); err != nil {
		return types.DistributeResult{}, fmt.Errorf("%w: slice [%d, %d): %w", ErrPayoutFailed, from, to, err)
	}

	// Commit.
	paid := types.SumPayouts(payouts)
	for _, p := range payouts {
		e.lastAmounts[p.Vault] = p.Amount
	}
	working.LastDistributedID = to
	working.DistributedTotal = working.DistributedTotal.Add(paid)

	result := types.DistributeResult{
		From:                    from,
		To:                      to,
		Payouts:                 payouts,
		Paid:                    paid,
		Armed:                   armed,
		CycleStartedAt:          working.CycleStartedAt,
		DistributedInCycle:      working.DistributedTotal,
		ScaledRewardsPerDay:     scaled,
		TotalStrategyRewardsUSD: working.TotalStrategyRewardsUSD,
	}

	if working.LastDistributedID >= working.CycleSize {
		result.CycleCompleted = true
		working.LastDistributedID = 0
		working.DistributedTotal = sdkmath.ZeroInt()
		working.CycleShares = make(map[types.VaultID]sdkmath.Int)
	}

	e.state = working
	return result, nil
}

// abandon drops the running cycle. The start time is kept so the too-early rule still applies.
func (e *engine) abandon() bool {
	if !e.state.InProgress() {
		return false
	}
	e.state.LastDistributedID = 0
	e.state.DistributedTotal = sdkmath.ZeroInt()
	e.state.CycleShares = make(map[types.VaultID]sdkmath.Int)
	return true
}

// preview returns the payouts of a full cycle armed at now, without gating on the too-early rule.
func preview(now time.Time, reg *registry, infos *infoStore, params types.RewardParameters) ([]types.Payout, types.DistributionState, error) {
	st, err := snapshot(now, reg, infos, params.MaxInfoAge)
	if err != nil {
		return nil, types.DistributionState{}, err
	}
	scaled := params.ScaledRewardsPerDay()
	payouts := make([]types.Payout, 0, st.CycleSize)
	for _, v := range reg.slice(0, st.CycleSize) {
		amount, err := payoutFor(st, v, scaled)
		if err != nil {
			return nil, types.DistributionState{}, err
		}
		payouts = append(payouts, types.Payout{Vault: v, Amount: amount})
	}
	return payouts, st, nil
}

// validateRestoredState checks a persisted distribution state against the registry it was saved with.
func validateRestoredState(st types.DistributionState, registrySize int) error {
	if st.LastDistributedID < 0 || st.CycleSize < 0 {
		return fmt.Errorf("%w: negative cursor or cycle size", ErrInvalidState)
	}
	if st.CycleSize > registrySize {
		return fmt.Errorf("%w: cycle size %d exceeds %d registered vaults", ErrInvalidState, st.CycleSize, registrySize)
	}
	if st.InProgress() && st.LastDistributedID >= st.CycleSize {
		return fmt.Errorf("%w: cursor %d not below cycle size %d", ErrInvalidState, st.LastDistributedID, st.CycleSize)
	}
	if st.DistributedTotal.IsNil() || st.DistributedTotal.IsNegative() {
		return fmt.Errorf("%w: distributed total must be non-negative", ErrInvalidState)
	}
	if st.TotalStrategyRewardsUSD.IsNil() || st.TotalStrategyRewardsUSD.IsNegative() {
		return fmt.Errorf("%w: total strategy rewards must be non-negative", ErrInvalidState)
	}
	return nil
}
