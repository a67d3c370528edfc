package operator

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/elys-network/autorewarder/internal/logger"
	"github.com/elys-network/autorewarder/internal/metrics"
	"github.com/elys-network/autorewarder/internal/rewarder"
	"github.com/elys-network/autorewarder/internal/types"
	"github.com/elys-network/autorewarder/internal/vault"
)

var ErrInsufficientFunds = errors.New("reward balance below the amount left to distribute")

// Store persists what the operator produces. Implemented by state.PostgresStore and state.MemoryStore.
type Store interface {
	NextCycleNumber(ctx context.Context) (int, error)
	ActiveParametersID(ctx context.Context) (*int64, error)
	SaveState(ctx context.Context, st types.RewarderState) error
	SaveSnapshot(ctx context.Context, snapshot types.CycleSnapshot) (int64, error)
}

// Operator drives the rewarder on a schedule: collect every vault in batches, then
// distribute slice by slice until the cycle completes or a gate stops it.
type Operator struct {
	logger   zerolog.Logger
	rewarder *rewarder.Rewarder
	sink     vault.RewardSink
	store    Store
	clock    clockwork.Clock

	vaults    []types.VaultID
	batchSize int

	abandonStale bool

	// Runtime state
	cycleCount int
}

// Config holds the configuration for creating a new Operator instance
type Config struct {
	Rewarder  *rewarder.Rewarder
	Sink      vault.RewardSink
	Store     Store
	Clock     clockwork.Clock
	Vaults    []types.VaultID // synchronized into the registry at the start of every cycle
	BatchSize int

	// AbandonStaleCycles drops a running cycle whose frozen snapshot is older than the max
	// info age and re-arms from the infos collected in the same run. Without it such a cycle
	// blocks every run until it is abandoned by hand.
	AbandonStaleCycles bool
}

// New creates an operator with dependency injection
func New(cfg Config) (*Operator, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("operator configuration validation failed: %w", err)
	}

	op := &Operator{
		logger:    logger.GetForComponent("operator"),
		rewarder:  cfg.Rewarder,
		sink:      cfg.Sink,
		store:     cfg.Store,
		clock:     cfg.Clock,
		vaults:    append([]types.VaultID(nil), cfg.Vaults...),
		batchSize: cfg.BatchSize,

		abandonStale: cfg.AbandonStaleCycles,
	}

	op.logger.Info().
		Int("configuredVaults", len(op.vaults)).
		Int("batchSize", op.batchSize).
		Bool("abandonStaleCycles", op.abandonStale).
		Msg("Operator instance created")

	return op, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Rewarder == nil {
		return fmt.Errorf("rewarder cannot be nil")
	}
	if cfg.Sink == nil {
		return fmt.Errorf("reward sink cannot be nil")
	}
	if cfg.Store == nil {
		return fmt.Errorf("store cannot be nil")
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// RunLoop runs a cycle immediately and then once per interval until ctx is cancelled.
func (o *Operator) RunLoop(ctx context.Context, interval time.Duration) {
	o.logger.Info().
		Dur("interval", interval).
		Msg("Starting operator main loop")

	ticker := o.clock.NewTicker(interval)
	defer ticker.Stop()

	o.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("Operator loop stopped due to context cancellation")
			return
		case <-ticker.Chan():
			o.runOnce(ctx)
		}
	}
}

func (o *Operator) runOnce(ctx context.Context) {
	o.cycleCount++
	o.logger.Info().Int("cycle", o.cycleCount).Msg("Initiating operator cycle")
	snapshot, err := o.RunCycle(ctx)
	if err != nil {
		o.logger.Error().Err(err).Int("cycle", o.cycleCount).Msg("Operator cycle failed")
		return
	}
	o.logger.Info().Int("cycle", o.cycleCount).Str("outcome", string(snapshot.Outcome)).Msg("Operator cycle completed")
}

// RunCycle executes one full operator cycle and returns its snapshot. The snapshot is
// persisted whatever the outcome; the error is non-nil only for a failed cycle.
func (o *Operator) RunCycle(ctx context.Context) (types.CycleSnapshot, error) {
	cycleStartTime := o.clock.Now()

	// Unique cycle ID for tracing logs across the entire cycle
	cycleID := uuid.New().String()
	cycleLogger := o.logger.With().Str("cycle_id", cycleID).Logger()

	cycleLogger.Info().Msg("--- Starting Operator Cycle ---")

	params := o.rewarder.Parameters()
	snapshot := types.CycleSnapshot{
		CycleNumber:             o.getCycleNumber(ctx),
		CycleID:                 cycleID,
		Timestamp:               cycleStartTime,
		ParamsID:                o.getParamsID(ctx),
		RewardsPerDay:           params.RewardsPerDay,
		NetworkRatio:            params.NetworkRatio,
		ScaledRewardsPerDay:     params.ScaledRewardsPerDay(),
		CollectFailures:         make([]types.CollectResult, 0),
		Payouts:                 make([]types.Payout, 0),
		TotalStrategyRewardsUSD: sdkmath.ZeroInt(),
		DistributedTotal:        sdkmath.ZeroInt(),
		Dust:                    sdkmath.ZeroInt(),
		TransactionHashes:       make([]string, 0),
	}

	cycleErr := o.runSteps(ctx, &snapshot, cycleLogger)
	if cycleErr != nil {
		snapshot.Outcome = types.CycleOutcomeFailed
		snapshot.Error = cycleErr.Error()
	}

	// --- Step 5: Checkpoint ---
	// Persist even when ctx was cancelled mid-cycle, so paid slices are never forgotten.
	persistCtx := context.WithoutCancel(ctx)
	if recorder, ok := o.sink.(vault.TxRecorder); ok {
		snapshot.TransactionHashes = append(snapshot.TransactionHashes, recorder.DrainTxHashes()...)
	}
	if err := o.store.SaveState(persistCtx, o.rewarder.Export()); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to checkpoint rewarder state")
		if snapshot.Error == "" {
			snapshot.Error = fmt.Sprintf("checkpoint failed: %v", err)
		}
	}

	duration := o.clock.Since(cycleStartTime)
	snapshot.DurationMs = duration.Milliseconds()
	o.saveCycleSnapshot(persistCtx, snapshot, cycleLogger)

	metrics.OperatorCyclesTotal.WithLabelValues(string(snapshot.Outcome)).Inc()
	metrics.OperatorCycleDuration.Observe(duration.Seconds())

	cycleLogger.Info().
		Str("outcome", string(snapshot.Outcome)).
		Str("distributedTotal", snapshot.DistributedTotal.String()).
		Int("payouts", len(snapshot.Payouts)).
		Int("transactions", len(snapshot.TransactionHashes)).
		Str("cycleDuration", duration.String()).
		Msg("--- Operator Cycle Finished ---")

	return snapshot, cycleErr
}

func (o *Operator) runSteps(ctx context.Context, snapshot *types.CycleSnapshot, cycleLogger zerolog.Logger) error {
	// --- Step 1: Vault registry ---
	// Rewarders that register on collect take the configured vaults in step 2 instead.
	cycleLogger.Info().Msg("Step 1: Synchronizing vault registry...")
	added := 0
	if !o.rewarder.RegistersOnCollect() {
		var err error
		if added, err = o.rewarder.SyncVaults(o.vaults); err != nil {
			return fmt.Errorf("failed to synchronize vaults: %w", err)
		}
	}
	targets := o.rewarder.CollectionTargets(o.vaults)
	cycleLogger.Info().Int("added", added).Int("collectionTargets", len(targets)).Msg("Step 1: Vault registry synchronized.")
	if len(targets) == 0 {
		return rewarder.ErrNoVaults
	}

	// --- Step 2: Collection ---
	cycleLogger.Info().Msg("Step 2: Collecting strategy rewards...")
	for start := 0; start < len(targets); start += o.batchSize {
		end := min(start+o.batchSize, len(targets))
		report, err := o.rewarder.Collect(ctx, targets[start:end])
		if err != nil {
			return fmt.Errorf("collect batch [%d, %d) failed: %w", start, end, err)
		}
		snapshot.CollectedCount += report.Succeeded
		snapshot.CollectFailures = append(snapshot.CollectFailures, report.Failures()...)
	}
	snapshot.VaultCount = o.rewarder.VaultsSize()
	cycleLogger.Info().
		Int("collected", snapshot.CollectedCount).
		Int("failed", len(snapshot.CollectFailures)).
		Int("vaultsSize", snapshot.VaultCount).
		Msg("Step 2: Collection complete.")
	if snapshot.VaultCount == 0 {
		return rewarder.ErrNoVaults
	}

	// --- Step 3: Funding check ---
	if o.tooEarly() {
		snapshot.Outcome = types.CycleOutcomeTooEarly
		cycleLogger.Info().Msg("Step 3: Minimum cycle period not elapsed, skipping distribution.")
		return nil
	}
	if err := o.checkFunding(ctx, cycleLogger); err != nil {
		return err
	}

	// --- Step 4: Distribution ---
	cycleLogger.Info().Msg("Step 4: Distributing rewards...")
	return o.distribute(ctx, snapshot, cycleLogger)
}

// distribute calls the rewarder until the cycle completes. Every successful call moves
// the cursor forward, so the loop ends after at most ceil(vaults / batch) steps.
func (o *Operator) distribute(ctx context.Context, snapshot *types.CycleSnapshot, cycleLogger zerolog.Logger) error {
	steps := 0
	staleAbandoned := false
	for {
		if err := ctx.Err(); err != nil {
			return o.stopDistribution(snapshot, err, steps, cycleLogger)
		}

		res, err := o.rewarder.Distribute(ctx, o.batchSize)
		if err != nil {
			switch {
			case errors.Is(err, rewarder.ErrTooEarly):
				snapshot.Outcome = types.CycleOutcomeTooEarly
				cycleLogger.Info().Err(err).Msg("Step 4: Distribution gated.")
				return nil
			case errors.Is(err, rewarder.ErrInfoTooOld):
				if !staleAbandoned && o.abandonStaleCycle(cycleLogger, err) {
					staleAbandoned = true
					continue
				}
				snapshot.Outcome = types.CycleOutcomeInfoTooOld
				snapshot.Error = err.Error()
				cycleLogger.Warn().Err(err).Msg("Step 4: Distribution stopped, collected info is too old.")
				return nil
			default:
				return o.stopDistribution(snapshot, err, steps, cycleLogger)
			}
		}
		steps++

		snapshot.Payouts = append(snapshot.Payouts, res.Payouts...)
		snapshot.DistributedTotal = snapshot.DistributedTotal.Add(res.Paid)
		snapshot.TotalStrategyRewardsUSD = res.TotalStrategyRewardsUSD
		snapshot.ScaledRewardsPerDay = res.ScaledRewardsPerDay

		cycleLogger.Debug().
			Int("from", res.From).
			Int("to", res.To).
			Str("paid", res.Paid.String()).
			Msg("Distributed slice")

		if res.CycleCompleted {
			snapshot.Outcome = types.CycleOutcomeCompleted
			snapshot.Dust = res.ScaledRewardsPerDay.Sub(res.DistributedInCycle)
			if snapshot.Dust.IsNegative() {
				snapshot.Dust = sdkmath.ZeroInt()
			}
			cycleLogger.Info().
				Int("steps", steps).
				Str("distributedInCycle", res.DistributedInCycle.String()).
				Str("dust", snapshot.Dust.String()).
				Msg("Step 4: Distribution cycle completed.")
			return nil
		}
	}
}

// abandonStaleCycle drops a running cycle that can no longer progress because its
// snapshot aged out. Re-collecting cannot help such a cycle: its shares are frozen.
func (o *Operator) abandonStaleCycle(cycleLogger zerolog.Logger, cause error) bool {
	st := o.rewarder.DistributionState()
	if !st.InProgress() {
		return false
	}
	if !o.abandonStale {
		cycleLogger.Error().
			Err(cause).
			Int("lastDistributedID", st.LastDistributedID).
			Int("cycleSize", st.CycleSize).
			Msg("Running cycle is stuck on a stale snapshot; abandon it to resume distribution")
		return false
	}
	if !o.rewarder.AbandonCycle() {
		return false
	}
	metrics.StaleCyclesAbandonedTotal.Inc()
	cycleLogger.Error().
		Err(cause).
		Int("lastDistributedID", st.LastDistributedID).
		Int("cycleSize", st.CycleSize).
		Str("distributedInCycle", st.DistributedTotal.String()).
		Msg("Abandoned running cycle with a stale snapshot, vaults after the cursor were not paid")
	return true
}

// stopDistribution records an interrupted distribution. Slices already paid make the
// cycle partial rather than failed: the cursor keeps them and the next run resumes.
func (o *Operator) stopDistribution(snapshot *types.CycleSnapshot, err error, steps int, cycleLogger zerolog.Logger) error {
	cycleLogger.Error().Err(err).Int("steps", steps).Msg("Step 4: Distribution failed.")
	if steps == 0 {
		return err
	}
	snapshot.Outcome = types.CycleOutcomePartial
	snapshot.Error = err.Error()
	return nil
}

// tooEarly reports whether arming a new cycle now would be rejected. A running cycle is never too early.
func (o *Operator) tooEarly() bool {
	st := o.rewarder.DistributionState()
	if st.InProgress() || st.CycleStartedAt.IsZero() {
		return false
	}
	return o.clock.Now().Before(st.CycleStartedAt.Add(o.rewarder.Parameters().MinCyclePeriod))
}

// checkFunding verifies the sink can pay what is left of the cycle. Sinks that cannot
// report a balance are trusted.
func (o *Operator) checkFunding(ctx context.Context, cycleLogger zerolog.Logger) error {
	source, ok := o.sink.(vault.FundingSource)
	if !ok {
		cycleLogger.Debug().Msg("Step 3: Sink does not report a balance, skipping funding check.")
		return nil
	}

	required := o.rewarder.RewardsPerDay().Sub(o.rewarder.Distributed())
	if required.IsNegative() {
		required = sdkmath.ZeroInt()
	}
	available, err := source.AvailableRewards(ctx)
	if err != nil {
		return fmt.Errorf("failed to query available rewards: %w", err)
	}
	if available.LT(required) {
		return fmt.Errorf("%w: available %s, required %s", ErrInsufficientFunds, available, required)
	}

	cycleLogger.Info().
		Str("available", available.String()).
		Str("required", required.String()).
		Msg("Step 3: Funding check passed.")
	return nil
}

// getCycleNumber takes the next global cycle number. Zero when the store cannot provide one.
func (o *Operator) getCycleNumber(ctx context.Context) int {
	n, err := o.store.NextCycleNumber(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Failed to get next cycle number, using 0")
		return 0
	}
	return n
}

func (o *Operator) getParamsID(ctx context.Context) *int64 {
	id, err := o.store.ActiveParametersID(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Failed to get active parameters ID")
		return nil
	}
	return id
}

// saveCycleSnapshot saves the cycle snapshot to the store
func (o *Operator) saveCycleSnapshot(ctx context.Context, snapshot types.CycleSnapshot, cycleLogger zerolog.Logger) {
	snapshotID, err := o.store.SaveSnapshot(ctx, snapshot)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to save cycle snapshot")
		return
	}
	cycleLogger.Info().Int64("snapshot_id", snapshotID).Msg("Cycle snapshot saved successfully")
}
