package rewarder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/elys-network/autorewarder/internal/datafetcher"
	"github.com/elys-network/autorewarder/internal/logger"
	"github.com/elys-network/autorewarder/internal/metrics"
	"github.com/elys-network/autorewarder/internal/types"
	"github.com/elys-network/autorewarder/internal/vault"
)

// Config holds the dependencies of a Rewarder.
type Config struct {
	Source     datafetcher.StrategyRewardsSource
	Sink       vault.RewardSink
	Parameters types.RewardParameters
	Clock      clockwork.Clock

	// FetchConcurrency bounds parallel source reads within one collect call.
	FetchConcurrency int

	// RegisterOnCollect appends an unregistered vault to the registry the first time it is
	// collected successfully. Without it such vaults are reported as unknown.
	RegisterOnCollect bool

	// SkipMetrics keeps throwaway rewarders, such as simulations, out of the process metrics.
	SkipMetrics bool
}

// Validate checks required dependencies and fills defaults.
func (cfg *Config) Validate() error {
	if cfg.Source == nil {
		return errors.New("strategy rewards source cannot be nil")
	}
	if cfg.Sink == nil {
		return errors.New("reward sink cannot be nil")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = defaultFetchConcurrency
	}
	return validateParameters(cfg.Parameters)
}

// Rewarder collects per-vault strategy rewards and distributes the daily reward budget
// in proportion to them, one bounded slice of vaults per Distribute call.
//
// Every operation is serialized: the rewarder behaves as a single shared ledger.
type Rewarder struct {
	mu sync.Mutex

	clock     clockwork.Clock
	sink      vault.RewardSink
	registry  *registry
	infos     *infoStore
	config    *configStore
	engine    *engine
	collector *collector
	logger    zerolog.Logger
	observe   bool

	registerOnCollect bool
}

// New creates a rewarder with an empty registry.
func New(cfg Config) (*Rewarder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rewarder configuration validation failed: %w", err)
	}
	cs, err := newConfigStore(cfg.Parameters)
	if err != nil {
		return nil, err
	}
	log := logger.GetForComponent("rewarder")
	return &Rewarder{
		clock:    cfg.Clock,
		sink:     cfg.Sink,
		registry: newRegistry(),
		infos:    newInfoStore(),
		config:   cs,
		engine:   newEngine(),
		collector: &collector{
			source:      cfg.Source,
			concurrency: cfg.FetchConcurrency,
			logger:      log,
		},
		logger:  log,
		observe: !cfg.SkipMetrics,

		registerOnCollect: cfg.RegisterOnCollect,
	}, nil
}

// RegisterVault appends a vault at the end of the registry.
func (r *Rewarder) RegisterVault(v types.VaultID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.registry.register(v); err != nil {
		return err
	}
	r.observeRegistry()
	r.logger.Info().Str("vault", v.String()).Int("index", r.registry.size()-1).Msg("Registered vault")
	return nil
}

// SyncVaults registers every vault not yet known, preserving the given order. It returns how many were added.
func (r *Rewarder) SyncVaults(vaults []types.VaultID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for _, v := range vaults {
		if r.registry.contains(v) {
			continue
		}
		if err := r.registry.register(v); err != nil {
			return added, err
		}
		added++
	}
	if added > 0 {
		r.observeRegistry()
		r.logger.Info().Int("added", added).Int("vaultsSize", r.registry.size()).Msg("Vault registry synchronized")
	}
	return added, nil
}

// Collect refreshes the strategy rewards of the given vaults. Per-vault failures are
// reported in the result and never fail the call; only an empty batch is rejected.
func (r *Rewarder) Collect(ctx context.Context, vaults []types.VaultID) (types.CollectReport, error) {
	if len(vaults) == 0 {
		return types.CollectReport{}, ErrEmptyBatch
	}

	r.mu.Lock()
	fetchIdx := make([]int, len(vaults))
	toFetch := make([]types.VaultID, 0, len(vaults))
	for i, v := range vaults {
		fetchIdx[i] = -1
		if r.registry.contains(v) || (r.registerOnCollect && validVaultID(v)) {
			fetchIdx[i] = len(toFetch)
			toFetch = append(toFetch, v)
		}
	}
	r.mu.Unlock()

	fetched := r.collector.fetch(ctx, toFetch)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	report := types.CollectReport{Results: make([]types.CollectResult, 0, len(vaults)), CollectedAt: now}
	for i, v := range vaults {
		var out fetchOutcome
		if fetchIdx[i] < 0 {
			out = fetchOutcome{kind: types.CollectErrorUnknownVault, err: fmt.Errorf("vault %s is not registered", v)}
		} else {
			out = fetched[fetchIdx[i]]
		}
		// The registry may have been replaced by Restore while the source was queried.
		if out.err == nil && !r.registry.contains(v) {
			if r.registerOnCollect {
				if err := r.registry.register(v); err != nil {
					out = fetchOutcome{kind: types.CollectErrorUnknownVault, err: err}
				} else {
					report.Registered++
				}
			} else {
				out = fetchOutcome{kind: types.CollectErrorUnknownVault, err: fmt.Errorf("vault %s is not registered", v)}
			}
		}

		res := types.CollectResult{Vault: v, Value: sdkmath.ZeroInt()}
		if out.err != nil {
			res.ErrorKind = out.kind
			res.Error = out.err.Error()
			report.Failed++
			r.collector.logFailure(res)
		} else {
			r.infos.put(v, out.value, now)
			res.OK = true
			res.Value = out.value
			report.Succeeded++
		}
		report.Results = append(report.Results, res)
	}

	if report.Registered > 0 {
		r.observeRegistry()
	}
	if r.observe {
		metrics.CollectionsTotal.WithLabelValues("success").Add(float64(report.Succeeded))
		metrics.CollectionsTotal.WithLabelValues("failure").Add(float64(report.Failed))
	}
	r.logger.Info().
		Int("requested", len(vaults)).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("registered", report.Registered).
		Msg("Collected strategy rewards")
	return report, nil
}

// RegistersOnCollect reports whether Collect appends vaults it has not seen before.
func (r *Rewarder) RegistersOnCollect() bool {
	return r.registerOnCollect
}

// CollectionTargets lists the registry in order. When collection registers vaults, the
// candidates not registered yet follow at the end.
func (r *Rewarder) CollectionTargets(candidates []types.VaultID) []types.VaultID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.registry.all()
	if !r.registerOnCollect {
		return out
	}
	seen := make(map[types.VaultID]struct{}, len(candidates))
	for _, v := range candidates {
		if _, dup := seen[v]; dup || r.registry.contains(v) || !validVaultID(v) {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Distribute pays the next slice of at most count vaults, arming a new cycle when none is running.
func (r *Rewarder) Distribute(ctx context.Context, count int) (types.DistributeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.engine.distribute(ctx, count, r.clock.Now(), r.registry, r.infos, r.config.params, r.sink)
	r.observeDistribute(res, err)
	if err != nil {
		return types.DistributeResult{}, err
	}

	ev := r.logger.Info()
	if res.Armed {
		ev = ev.Time("cycleStartedAt", res.CycleStartedAt).Str("totalStrategyRewardsUSD", res.TotalStrategyRewardsUSD.String())
	}
	ev.Int("from", res.From).
		Int("to", res.To).
		Str("paid", res.Paid.String()).
		Str("distributedInCycle", res.DistributedInCycle.String()).
		Bool("cycleCompleted", res.CycleCompleted).
		Msg("Distributed reward slice")
	return res, nil
}

func (r *Rewarder) observeDistribute(res types.DistributeResult, err error) {
	if !r.observe {
		return
	}
	metrics.DistributeCallsTotal.WithLabelValues(distributeOutcome(err)).Inc()
	if err != nil {
		return
	}
	metrics.ObservePaid(res.Paid)
	metrics.Cursor.Set(float64(r.engine.state.LastDistributedID))
	if res.CycleCompleted {
		metrics.CyclesCompletedTotal.Inc()
	}
}

func (r *Rewarder) observeRegistry() {
	if !r.observe {
		return
	}
	metrics.RegisteredVaults.Set(float64(r.registry.size()))
	metrics.Cursor.Set(float64(r.engine.state.LastDistributedID))
}

func distributeOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTooEarly):
		return "too_early"
	case errors.Is(err, ErrInfoTooOld):
		return "info_too_old"
	case errors.Is(err, ErrPayoutFailed):
		return "payout_failed"
	default:
		return "rejected"
	}
}

// AbandonCycle drops a running cycle so the next Distribute re-arms from fresh infos.
// Amounts already paid in the abandoned cycle stay paid.
func (r *Rewarder) AbandonCycle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	abandoned := r.engine.abandon()
	if abandoned {
		r.observeRegistry()
		r.logger.Warn().Msg("Abandoned running distribution cycle")
	}
	return abandoned
}

// SetRewardsPerDay changes the base daily budget. It applies to the next slice computed.
func (r *Rewarder) SetRewardsPerDay(amount sdkmath.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.config.setRewardsPerDay(amount); err != nil {
		return err
	}
	r.logger.Info().Str("rewardsPerDay", amount.String()).Msg("Rewards per day updated")
	return nil
}

// SetNetworkRatio changes the released fraction of the budget. It applies to the next slice computed.
func (r *Rewarder) SetNetworkRatio(ratio sdkmath.LegacyDec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.config.setNetworkRatio(ratio); err != nil {
		return err
	}
	r.logger.Info().Str("networkRatio", ratio.String()).Msg("Network ratio updated")
	return nil
}

// SetParameters replaces all reward parameters at once.
func (r *Rewarder) SetParameters(params types.RewardParameters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.set(params)
}

// VaultsSize returns the number of registered vaults.
func (r *Rewarder) VaultsSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry.size()
}

// Vault returns the vault registered at index i.
func (r *Rewarder) Vault(i int) (types.VaultID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry.at(i)
}

// Vaults returns all registered vaults in registry order.
func (r *Rewarder) Vaults() []types.VaultID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry.all()
}

// LastDistributedID returns the distribution cursor; zero when no cycle is running.
func (r *Rewarder) LastDistributedID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.state.LastDistributedID
}

// Distributed returns the amount paid so far in the running cycle.
func (r *Rewarder) Distributed() sdkmath.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.state.DistributedTotal
}

// LastDistributedAmount returns the amount the vault received in the last cycle that reached it.
func (r *Rewarder) LastDistributedAmount(v types.VaultID) sdkmath.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.lastAmount(v)
}

// LastInfo returns the latest collected info of the vault.
func (r *Rewarder) LastInfo(v types.VaultID) types.VaultInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infos.get(v)
}

// RewardsPerDay returns the amount one full cycle distributes, RewardsPerDay x NetworkRatio.
func (r *Rewarder) RewardsPerDay() sdkmath.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.scaledRewardsPerDay()
}

// BaseRewardsPerDay returns the configured budget before the network ratio is applied.
func (r *Rewarder) BaseRewardsPerDay() sdkmath.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.params.RewardsPerDay
}

// NetworkRatio returns the configured network ratio.
func (r *Rewarder) NetworkRatio() sdkmath.LegacyDec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.params.NetworkRatio
}

// Parameters returns a copy of the reward parameters.
func (r *Rewarder) Parameters() types.RewardParameters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.params
}

// DistributionState returns a copy of the distribution cursor state.
func (r *Rewarder) DistributionState() types.DistributionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.state.Clone()
}

// PendingStrategyRewardsUSD sums the infos a cycle armed now would use.
func (r *Rewarder) PendingStrategyRewardsUSD() sdkmath.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infos.freshTotal(r.registry.all(), r.clock.Now(), r.config.params.MaxInfoAge)
}

// PreviewCycle computes the payouts of a cycle armed now. Nothing is paid or recorded.
func (r *Rewarder) PreviewCycle() ([]types.Payout, types.DistributionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registry.size() == 0 {
		return nil, types.DistributionState{}, ErrNoVaults
	}
	return preview(r.clock.Now(), r.registry, r.infos, r.config.params)
}

// Export returns a deep copy of the full rewarder state.
func (r *Rewarder) Export() types.RewarderState {
	r.mu.Lock()
	defer r.mu.Unlock()

	vaults := r.registry.all()
	infos := make([]types.VaultInfo, 0, len(vaults))
	for _, info := range r.infos.list(vaults) {
		if info.IsCollected() {
			infos = append(infos, info)
		}
	}
	lastAmounts := make(map[types.VaultID]sdkmath.Int, len(r.engine.lastAmounts))
	for k, v := range r.engine.lastAmounts {
		lastAmounts[k] = v
	}
	return types.RewarderState{
		Vaults:       vaults,
		Infos:        infos,
		Distribution: r.engine.state.Clone(),
		LastAmounts:  lastAmounts,
		Parameters:   r.config.params,
	}
}

// Restore replaces the whole rewarder state. The state is validated first; on error nothing changes.
func (r *Rewarder) Restore(st types.RewarderState) error {
	reg := newRegistry()
	for _, v := range st.Vaults {
		if err := reg.register(v); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
	}
	infos := newInfoStore()
	for _, info := range st.Infos {
		if !reg.contains(info.Vault) {
			return fmt.Errorf("%w: info for unregistered vault %s", ErrInvalidState, info.Vault)
		}
		if info.StrategyRewardsUSD.IsNil() || info.StrategyRewardsUSD.IsNegative() {
			return fmt.Errorf("%w: invalid strategy rewards for %s", ErrInvalidState, info.Vault)
		}
		infos.put(info.Vault, info.StrategyRewardsUSD, info.CollectedAt)
	}
	if err := validateRestoredState(st.Distribution, reg.size()); err != nil {
		return err
	}
	cs, err := newConfigStore(st.Parameters)
	if err != nil {
		return err
	}

	eng := newEngine()
	eng.state = st.Distribution.Clone()
	for k, v := range st.LastAmounts {
		eng.lastAmounts[k] = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry = reg
	r.infos = infos
	r.config = cs
	r.engine = eng
	r.observeRegistry()
	r.logger.Info().
		Int("vaultsSize", reg.size()).
		Int("lastDistributedID", eng.state.LastDistributedID).
		Msg("Rewarder state restored")
	return nil
}
