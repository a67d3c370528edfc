package simulations

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/jonboulle/clockwork"

	"github.com/elys-network/autorewarder/internal/datafetcher"
	"github.com/elys-network/autorewarder/internal/logger"
	"github.com/elys-network/autorewarder/internal/rewarder"
	"github.com/elys-network/autorewarder/internal/types"
	"github.com/elys-network/autorewarder/internal/vault"
)

var ErrInvalidBatchSize = errors.New("simulation batch size must be positive")

// StateExporter is satisfied by *rewarder.Rewarder.
type StateExporter interface {
	Export() types.RewarderState
}

// SimulateCycle replays the distribution of the current (or next) cycle against a copy of
// the exported state, at the given time, with a recording sink. The live rewarder is not touched.
func SimulateCycle(ctx context.Context, src StateExporter, at time.Time, batchSize int) (types.SimulationReport, error) {
	simLogger := logger.GetForComponent("cycle_simulator")

	if batchSize <= 0 {
		return types.SimulationReport{}, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, batchSize)
	}

	st := src.Export()
	sink := vault.NewDryRunSink()
	sim, err := rewarder.New(rewarder.Config{
		Source:      datafetcher.NewStaticSource(nil),
		Sink:        sink,
		Parameters:  st.Parameters,
		Clock:       clockwork.NewFakeClockAt(at),
		SkipMetrics: true,
	})
	if err != nil {
		return types.SimulationReport{}, fmt.Errorf("failed to create simulated rewarder: %w", err)
	}
	if err := sim.Restore(st); err != nil {
		return types.SimulationReport{}, fmt.Errorf("failed to restore state into simulation: %w", err)
	}

	report := types.SimulationReport{
		SimulatedAt:             at,
		BatchSize:               batchSize,
		Payouts:                 make([]types.Payout, 0, len(st.Vaults)),
		ScaledRewardsPerDay:     st.Parameters.ScaledRewardsPerDay(),
		TotalStrategyRewardsUSD: st.Distribution.TotalStrategyRewardsUSD,
		Distributed:             sdkmath.ZeroInt(),
		Dust:                    sdkmath.ZeroInt(),
	}
	if report.TotalStrategyRewardsUSD.IsNil() {
		report.TotalStrategyRewardsUSD = sdkmath.ZeroInt()
	}

	// Every successful step moves the cursor forward, so this bound is never hit by a healthy run.
	maxSteps := len(st.Vaults)/batchSize + 2
	for report.Steps < maxSteps {
		res, err := sim.Distribute(ctx, batchSize)
		if err != nil {
			report.Error = err.Error()
			simLogger.Debug().Err(err).Int("steps", report.Steps).Msg("Simulation stopped")
			break
		}
		report.Steps++
		report.Payouts = append(report.Payouts, res.Payouts...)
		report.TotalStrategyRewardsUSD = res.TotalStrategyRewardsUSD
		report.ScaledRewardsPerDay = res.ScaledRewardsPerDay
		if res.CycleCompleted {
			report.Completed = true
			report.Dust = res.ScaledRewardsPerDay.Sub(res.DistributedInCycle)
			break
		}
	}
	report.Distributed = sink.Total()

	simLogger.Info().
		Int("steps", report.Steps).
		Bool("completed", report.Completed).
		Str("distributed", report.Distributed.String()).
		Str("dust", report.Dust.String()).
		Msg("Cycle simulation finished")

	return report, nil
}
