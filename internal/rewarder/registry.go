package rewarder

import (
	"fmt"
	"strings"

	"github.com/elys-network/autorewarder/internal/types"
)

// registry is the ordered, append-only list of vaults. Indices are stable for the lifetime of the rewarder.
type registry struct {
	vaults []types.VaultID
	index  map[types.VaultID]int
}

func newRegistry() *registry {
	return &registry{index: make(map[types.VaultID]int)}
}

func validVaultID(vault types.VaultID) bool {
	return strings.TrimSpace(string(vault)) != ""
}

func (r *registry) register(vault types.VaultID) error {
	if !validVaultID(vault) {
		return ErrInvalidVault
	}
	if _, exists := r.index[vault]; exists {
		return fmt.Errorf("%w: %s", ErrVaultExists, vault)
	}
	r.index[vault] = len(r.vaults)
	r.vaults = append(r.vaults, vault)
	return nil
}

func (r *registry) size() int {
	return len(r.vaults)
}

func (r *registry) at(i int) (types.VaultID, error) {
	if i < 0 || i >= len(r.vaults) {
		return "", fmt.Errorf("%w: %d (size %d)", ErrIndexOutOfRange, i, len(r.vaults))
	}
	return r.vaults[i], nil
}

func (r *registry) contains(vault types.VaultID) bool {
	_, ok := r.index[vault]
	return ok
}

// slice returns vaults [from, to) clamped to the registry bounds.
func (r *registry) slice(from, to int) []types.VaultID {
	if from < 0 {
		from = 0
	}
	if to > len(r.vaults) {
		to = len(r.vaults)
	}
	if from >= to {
		return nil
	}
	out := make([]types.VaultID, to-from)
	copy(out, r.vaults[from:to])
	return out
}

func (r *registry) all() []types.VaultID {
	return r.slice(0, len(r.vaults))
}
