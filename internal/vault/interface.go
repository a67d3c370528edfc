package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/autorewarder/internal/types"
)

// RewardSink defines the interface for delivering rewards to vaults.
// This interface abstracts away how a payout reaches the vault,
// allowing for different implementations (live bank transfers, dry runs, etc.).
type RewardSink interface {
	// Fund transfers every payout of a slice. It must be all-or-nothing:
	// on error no payout of the slice may have been applied.
	// Zero amounts are skipped.
	Fund(ctx context.Context, payouts []types.Payout) error
}

// FundingSource is implemented by sinks that can report the balance left to distribute.
type FundingSource interface {
	// AvailableRewards returns the reward-token balance the sink can still pay out.
	AvailableRewards(ctx context.Context) (sdkmath.Int, error)
}

// TxRecorder is implemented by sinks that produce transaction hashes.
type TxRecorder interface {
	// DrainTxHashes returns the hashes broadcast since the previous call.
	DrainTxHashes() []string
}
