package rewarder

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/autorewarder/internal/types"
)

// infoStore keeps the latest VaultInfo per vault. Missing entries read as never collected.
type infoStore struct {
	infos map[types.VaultID]types.VaultInfo
}

func newInfoStore() *infoStore {
	return &infoStore{infos: make(map[types.VaultID]types.VaultInfo)}
}

func (s *infoStore) get(vault types.VaultID) types.VaultInfo {
	info, ok := s.infos[vault]
	if !ok {
		return types.VaultInfo{Vault: vault, StrategyRewardsUSD: sdkmath.ZeroInt()}
	}
	return info
}

func (s *infoStore) put(vault types.VaultID, value sdkmath.Int, at time.Time) {
	s.infos[vault] = types.VaultInfo{Vault: vault, StrategyRewardsUSD: value, CollectedAt: at}
}

// list returns the infos of the given vaults in the same order.
func (s *infoStore) list(vaults []types.VaultID) []types.VaultInfo {
	out := make([]types.VaultInfo, 0, len(vaults))
	for _, v := range vaults {
		out = append(out, s.get(v))
	}
	return out
}

// freshTotal sums the infos of the given vaults that are fresh at now.
func (s *infoStore) freshTotal(vaults []types.VaultID, now time.Time, maxAge time.Duration) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, v := range vaults {
		info := s.get(v)
		if info.IsFreshAt(now, maxAge) {
			total = total.Add(info.StrategyRewardsUSD)
		}
	}
	return total
}
