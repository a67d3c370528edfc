package state

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/elys-network/autorewarder/internal/types"
)

func setupPostgres(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("rewarder"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(terminateCtx)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, Open(dsn))
	t.Cleanup(func() {
		CloseDB()
		DB = nil
	})

	require.NoError(t, EnsureSchema())
	require.NoError(t, EnsureSchema(), "schema must be idempotent")
}

func testParams() types.RewardParameters {
	return types.RewardParameters{
		RewardsPerDay:  sdkmath.NewIntWithDecimal(1000, 18),
		NetworkRatio:   sdkmath.LegacyMustNewDecFromStr("0.231"),
		MinCyclePeriod: 24 * time.Hour,
		MaxInfoAge:     24 * time.Hour,
	}
}

func TestPostgresStore(t *testing.T) {
	setupPostgres(t)
	ctx := context.Background()
	store := NewPostgresStore()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("cycle counter", func(t *testing.T) {
		n, err := GetCurrentCycleNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		n, err = store.NextCycleNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.NoError(t, ResetCycleNumber(ctx, 10))
		n, err = store.NextCycleNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, 11, n)

		require.Error(t, ResetCycleNumber(ctx, -1))
	})

	t.Run("parameters are versioned with one active", func(t *testing.T) {
		id, err := store.ActiveParametersID(ctx)
		require.NoError(t, err)
		assert.Nil(t, id)

		_, err = LoadActiveRewardParameters(ctx, DefaultConfigName)
		require.ErrorIs(t, err, ErrNotFound)

		first, err := store.SaveParameters(ctx, testParams(), "bootstrap")
		require.NoError(t, err)

		updated := testParams()
		updated.NetworkRatio = sdkmath.LegacyMustNewDecFromStr("0.5")
		second, err := store.SaveParameters(ctx, updated, "governance")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)

		active, err := LoadActiveRewardParameters(ctx, DefaultConfigName)
		require.NoError(t, err)
		assert.Equal(t, second, active.ParamsID)
		assert.Equal(t, 2, active.Version)
		assert.Equal(t, "governance", active.UpdatedBy)
		assert.True(t, active.Parameters.NetworkRatio.Equal(updated.NetworkRatio))
		assert.True(t, active.Parameters.RewardsPerDay.Equal(updated.RewardsPerDay))
		assert.Equal(t, 24*time.Hour, active.Parameters.MinCyclePeriod)

		history, err := ListRewardParameterHistory(ctx, DefaultConfigName, 10)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.True(t, history[0].IsActive)
		assert.False(t, history[1].IsActive)
	})

	t.Run("rewarder state checkpoint", func(t *testing.T) {
		_, found, err := LoadRewarderState(ctx)
		require.NoError(t, err)
		assert.False(t, found)

		st := types.RewarderState{
			Vaults: []types.VaultID{"elys1a", "elys1b", "elys1c"},
			Infos: []types.VaultInfo{
				{Vault: "elys1a", StrategyRewardsUSD: sdkmath.NewIntWithDecimal(100, 18), CollectedAt: base},
				{Vault: "elys1b", StrategyRewardsUSD: sdkmath.NewIntWithDecimal(300, 18), CollectedAt: base.Add(time.Minute)},
			},
			Distribution: types.DistributionState{
				LastDistributedID:       2,
				DistributedTotal:        sdkmath.NewInt(57),
				CycleStartedAt:          base.Add(time.Hour),
				TotalStrategyRewardsUSD: sdkmath.NewIntWithDecimal(400, 18),
				CycleSize:               3,
				OldestInfoAt:            base,
				CycleShares: map[types.VaultID]sdkmath.Int{
					"elys1a": sdkmath.NewIntWithDecimal(100, 18),
					"elys1b": sdkmath.NewIntWithDecimal(300, 18),
				},
			},
			LastAmounts: map[types.VaultID]sdkmath.Int{"elys1a": sdkmath.NewInt(57)},
		}
		require.NoError(t, store.SaveState(ctx, st))

		// Saving twice only moves the cursor forward.
		st.Distribution.LastDistributedID = 3
		require.NoError(t, store.SaveState(ctx, st))

		loaded, found, err := LoadRewarderState(ctx)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, st.Vaults, loaded.Vaults)
		require.Len(t, loaded.Infos, 2)
		assert.True(t, loaded.Infos[1].StrategyRewardsUSD.Equal(st.Infos[1].StrategyRewardsUSD))
		assert.True(t, loaded.Infos[1].CollectedAt.Equal(st.Infos[1].CollectedAt))

		d := loaded.Distribution
		assert.Equal(t, 3, d.LastDistributedID)
		assert.Equal(t, 3, d.CycleSize)
		assert.True(t, d.DistributedTotal.Equal(sdkmath.NewInt(57)))
		assert.True(t, d.CycleStartedAt.Equal(base.Add(time.Hour)))
		assert.True(t, d.OldestInfoAt.Equal(base))
		assert.True(t, d.CycleShares["elys1b"].Equal(sdkmath.NewIntWithDecimal(300, 18)))
		assert.True(t, loaded.LastAmounts["elys1a"].Equal(sdkmath.NewInt(57)))
	})

	t.Run("cycle snapshots and summary", func(t *testing.T) {
		paramsID, err := store.ActiveParametersID(ctx)
		require.NoError(t, err)

		completed := types.CycleSnapshot{
			CycleNumber:             12,
			CycleID:                 "c-1",
			Timestamp:               base,
			ParamsID:                paramsID,
			RewardsPerDay:           sdkmath.NewInt(1000),
			NetworkRatio:            sdkmath.LegacyMustNewDecFromStr("0.231"),
			ScaledRewardsPerDay:     sdkmath.NewInt(231),
			VaultCount:              3,
			CollectedCount:          2,
			CollectFailures:         []types.CollectResult{{Vault: "elys1c", ErrorKind: types.CollectErrorSource, Error: "boom"}},
			TotalStrategyRewardsUSD: sdkmath.NewInt(3),
			Payouts:                 []types.Payout{{Vault: "elys1a", Amount: sdkmath.NewInt(77)}},
			DistributedTotal:        sdkmath.NewInt(230),
			Dust:                    sdkmath.NewInt(1),
			TransactionHashes:       []string{"AA", "BB"},
			Outcome:                 types.CycleOutcomeCompleted,
			DurationMs:              1200,
		}
		id, err := store.SaveSnapshot(ctx, completed)
		require.NoError(t, err)

		tooEarly := completed
		tooEarly.CycleNumber = 13
		tooEarly.Timestamp = base.Add(time.Hour)
		tooEarly.ParamsID = nil
		tooEarly.Payouts = nil
		tooEarly.TransactionHashes = nil
		tooEarly.DistributedTotal = sdkmath.ZeroInt()
		tooEarly.Dust = sdkmath.ZeroInt()
		tooEarly.Outcome = types.CycleOutcomeTooEarly
		tooEarly.Error = "too early"
		_, err = store.SaveSnapshot(ctx, tooEarly)
		require.NoError(t, err)

		got, err := store.CycleByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "c-1", got.CycleID)
		assert.Equal(t, []string{"AA", "BB"}, got.TransactionHashes)
		assert.Equal(t, "0.231000000000000000", got.NetworkRatio.String())
		require.Len(t, got.Payouts, 1)
		assert.True(t, got.Payouts[0].Amount.Equal(sdkmath.NewInt(77)))
		require.Len(t, got.CollectFailures, 1)
		assert.Equal(t, types.CollectErrorSource, got.CollectFailures[0].ErrorKind)

		_, err = store.CycleByID(ctx, 9999)
		require.ErrorIs(t, err, ErrNotFound)

		recent, err := store.RecentCycles(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, 13, recent[0].CycleNumber)
		assert.Nil(t, recent[0].ParamsID)

		latest, err := GetLatestCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.CycleOutcomeTooEarly, latest.Outcome)

		summary, err := store.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.TotalCycles)
		assert.Equal(t, 1, summary.CompletedCycles)
		assert.Equal(t, 1, summary.TooEarlyCycles)
		assert.Equal(t, "230", summary.TotalDistributed.String())
		assert.Equal(t, "1", summary.TotalDust.String())
		require.NotNil(t, summary.LastCycleAt)
		assert.True(t, summary.LastCycleAt.Equal(base.Add(time.Hour)))
	})
}

func TestStore_NotInitialized(t *testing.T) {
	if DB != nil {
		t.Skip("global DB already open")
	}
	ctx := context.Background()
	_, err := IncrementCycleNumber(ctx)
	require.ErrorIs(t, err, ErrDBNotInitialized)
	require.ErrorIs(t, SaveRewarderState(ctx, types.RewarderState{}), ErrDBNotInitialized)
	_, _, err = LoadRewarderState(ctx)
	require.ErrorIs(t, err, ErrDBNotInitialized)
	_, err = GetRecentCycles(ctx, 5)
	require.ErrorIs(t, err, ErrDBNotInitialized)
	require.ErrorIs(t, EnsureSchema(), ErrDBNotInitialized)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	n, _ := m.NextCycleNumber(ctx)
	assert.Equal(t, 1, n)

	id, err := m.ActiveParametersID(ctx)
	require.NoError(t, err)
	assert.Nil(t, id)
	_, _ = m.SaveParameters(ctx, testParams(), "a")
	second, _ := m.SaveParameters(ctx, testParams(), "b")
	id, err = m.ActiveParametersID(ctx)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, second, *id)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, _ = m.SaveSnapshot(ctx, types.CycleSnapshot{Timestamp: base, Outcome: types.CycleOutcomeCompleted, DistributedTotal: sdkmath.NewInt(5), Dust: sdkmath.NewInt(1)})
	_, _ = m.SaveSnapshot(ctx, types.CycleSnapshot{Timestamp: base.Add(time.Hour), Outcome: types.CycleOutcomeFailed})

	recent, err := m.RecentCycles(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(2), recent[0].SnapshotID)

	_, err = m.CycleByID(ctx, 7)
	require.ErrorIs(t, err, ErrNotFound)

	summary, err := m.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalCycles)
	assert.Equal(t, 1, summary.FailedCycles)
	assert.Equal(t, "5", summary.TotalDistributed.String())
	assert.True(t, summary.LastCycleAt.Equal(base.Add(time.Hour)))

	_, ok := m.LastState()
	assert.False(t, ok)
	require.NoError(t, m.SaveState(ctx, types.RewarderState{Vaults: []types.VaultID{"a"}}))
	st, ok := m.LastState()
	require.True(t, ok)
	assert.Equal(t, []types.VaultID{"a"}, st.Vaults)
}

func TestNumericHelpers(t *testing.T) {
	assert.Equal(t, "0", numericArg(sdkmath.Int{}))
	v, err := parseNumeric("x", "123456789012345678901234567890")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", v.String())
	_, err = parseNumeric("x", "1.5")
	require.Error(t, err)

	assert.False(t, nullTime(time.Time{}).Valid)
	assert.True(t, timeOrZero(nullTime(time.Time{})).IsZero())
}
