package rewarder

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/elys-network/autorewarder/internal/datafetcher"
	"github.com/elys-network/autorewarder/internal/types"
)

const defaultFetchConcurrency = 4

var errNegativeValue = errors.New("strategy rewards value is negative")

// collector reads strategy rewards for a batch of vaults. Each vault is isolated:
// an error or panic from the source only marks that vault's result as failed.
type collector struct {
	source      datafetcher.StrategyRewardsSource
	concurrency int
	logger      zerolog.Logger
}

type fetchOutcome struct {
	value sdkmath.Int
	kind  types.CollectErrorKind
	err   error
}

// fetch queries the source for every vault. Results are indexed like vaults. Sources that
// batch their own requests are used as a whole, others get bounded concurrency here.
func (c *collector) fetch(ctx context.Context, vaults []types.VaultID) []fetchOutcome {
	if len(vaults) == 0 {
		return nil
	}
	if bs, ok := c.source.(datafetcher.BatchSource); ok {
		return c.fetchBatch(ctx, bs, vaults)
	}

	out := make([]fetchOutcome, len(vaults))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, vault := range vaults {
		g.Go(func() error {
			out[i] = c.fetchOne(ctx, vault)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (c *collector) fetchBatch(ctx context.Context, bs datafetcher.BatchSource, vaults []types.VaultID) (out []fetchOutcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("source panicked: %v", r)
			out = make([]fetchOutcome, len(vaults))
			for i := range out {
				out[i] = fetchOutcome{kind: types.CollectErrorPanic, err: err}
			}
		}
	}()

	results := bs.FetchBatch(ctx, vaults)
	byVault := make(map[types.VaultID]datafetcher.FetchResult, len(results))
	for _, res := range results {
		byVault[res.Vault] = res
	}

	out = make([]fetchOutcome, len(vaults))
	for i, v := range vaults {
		res, ok := byVault[v]
		if !ok {
			out[i] = fetchOutcome{kind: types.CollectErrorSource, err: fmt.Errorf("batch response is missing vault %s", v)}
			continue
		}
		out[i] = checkValue(res.Value, res.Err)
	}
	return out
}

func (c *collector) fetchOne(ctx context.Context, vault types.VaultID) (outcome fetchOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = fetchOutcome{kind: types.CollectErrorPanic, err: fmt.Errorf("source panicked: %v", r)}
		}
	}()

	return checkValue(c.source.StrategyRewardsUSD(ctx, vault))
}

func checkValue(value sdkmath.Int, err error) fetchOutcome {
	if err != nil {
		return fetchOutcome{kind: types.CollectErrorSource, err: err}
	}
	if value.IsNil() {
		return fetchOutcome{kind: types.CollectErrorInvalidValue, err: errors.New("strategy rewards value is nil")}
	}
	if value.IsNegative() {
		return fetchOutcome{kind: types.CollectErrorInvalidValue, err: fmt.Errorf("%w: %s", errNegativeValue, value)}
	}
	return fetchOutcome{value: value}
}

// logFailure records an isolated per-vault failure.
func (c *collector) logFailure(res types.CollectResult) {
	c.logger.Warn().
		Str("vault", res.Vault.String()).
		Str("errorKind", string(res.ErrorKind)).
		Str("error", res.Error).
		Msg("Strategy rewards collection failed for vault, keeping previous info")
}
