/*

This file defines where per-vault strategy rewards come from. The rewarder only needs
one USD figure per vault; how it is obtained is left to the source implementation.

*/

package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/autorewarder/internal/types"
)

var (
	ErrVaultNotSupported = errors.New("vault strategy not supported")
	ErrInvalidRewardData = errors.New("invalid strategy rewards data received")
	ErrAPIConfiguration  = errors.New("API configuration error")
)

// StrategyRewardsSource reports the strategy rewards of a vault, in 18-decimal USD.
type StrategyRewardsSource interface {
	StrategyRewardsUSD(ctx context.Context, vault types.VaultID) (sdkmath.Int, error)
}

// BatchSource is a source that fetches many vaults in one call. Every requested vault
// gets exactly one result; failures are reported per vault.
type BatchSource interface {
	StrategyRewardsSource
	FetchBatch(ctx context.Context, vaults []types.VaultID) []FetchResult
}

// FetchResult is the outcome of one vault in a batch fetch.
type FetchResult struct {
	Vault types.VaultID
	Value sdkmath.Int
	Err   error
}

// StaticSource serves fixed values. Vaults without a value fail with ErrVaultNotSupported.
type StaticSource struct {
	mu     sync.RWMutex
	values map[types.VaultID]sdkmath.Int
	errs   map[types.VaultID]error
}

// NewStaticSource creates a source seeded with the given values.
func NewStaticSource(values map[types.VaultID]sdkmath.Int) *StaticSource {
	s := &StaticSource{
		values: make(map[types.VaultID]sdkmath.Int, len(values)),
		errs:   make(map[types.VaultID]error),
	}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Set replaces the value reported for a vault and clears any configured failure.
func (s *StaticSource) Set(vault types.VaultID, value sdkmath.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[vault] = value
	delete(s.errs, vault)
}

// Fail makes every subsequent read of the vault return err.
func (s *StaticSource) Fail(vault types.VaultID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[vault] = err
}

func (s *StaticSource) StrategyRewardsUSD(ctx context.Context, vault types.VaultID) (sdkmath.Int, error) {
	if err := ctx.Err(); err != nil {
		return sdkmath.Int{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.errs[vault]; ok {
		return sdkmath.Int{}, err
	}
	value, ok := s.values[vault]
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: %s", ErrVaultNotSupported, vault)
	}
	return value, nil
}
