package config

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/autorewarder/internal/types"
)

func TestLoadConfig_DryRunDefaults(t *testing.T) {
	t.Setenv("REWARDER_MODE", "")
	t.Setenv("REWARD_DENOM", "uelys")
	t.Setenv("VAULTS", " elys1a, elys1b,,elys1a ")
	t.Setenv("BATCH_SIZE", "")
	t.Setenv("LOOP_INTERVAL", "")
	t.Setenv("STRATEGY_API", "")
	t.Setenv("REGISTER_ON_COLLECT", "")
	t.Setenv("ABANDON_STALE_CYCLES", "")

	require.NoError(t, LoadConfig())
	assert.Equal(t, ModeDryRun, RewarderMode)
	assert.Equal(t, "uelys", RewardDenom)
	assert.Equal(t, []types.VaultID{"elys1a", "elys1b"}, Vaults)
	assert.Equal(t, 20, BatchSize)
	assert.Equal(t, 10*time.Minute, LoopInterval)
	assert.Equal(t, "http://localhost:8090", StrategyAPI)
	assert.False(t, RegisterOnCollect)
	assert.True(t, AbandonStaleCycles)

	t.Setenv("REGISTER_ON_COLLECT", "true")
	t.Setenv("ABANDON_STALE_CYCLES", "0")
	require.NoError(t, LoadConfig())
	assert.True(t, RegisterOnCollect)
	assert.False(t, AbandonStaleCycles)
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"mode":          {"REWARDER_MODE", "paper"},
		"batch":         {"BATCH_SIZE", "0"},
		"batch numeric": {"BATCH_SIZE", "ten"},
		"interval":      {"LOOP_INTERVAL", "-1m"},
		"register":      {"REGISTER_ON_COLLECT", "maybe"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("REWARD_DENOM", "uelys")
			t.Setenv(kv[0], kv[1])
			require.Error(t, LoadConfig())
		})
	}
}

func TestLoadConfig_LiveModeRequiresWallet(t *testing.T) {
	t.Setenv("REWARDER_MODE", ModeLive)
	t.Setenv("REWARD_DENOM", "uelys")
	t.Setenv("NODE_RPC", "http://localhost:26657")
	t.Setenv("NODE_GRPC", "localhost:9090")
	t.Setenv("KEYRING_BACKEND", "test")
	t.Setenv("KEYRING_DIR", "~/.elys")
	t.Setenv("KEYRING_KEY_NAME", "rewarder")
	t.Setenv("CHAIN_ID", "elys-1")
	t.Setenv("GAS_DEFAULT_LIMIT", "not-a-number")
	t.Setenv("GAS_ADJUSTMENT", "1.5")
	t.Setenv("GAS_PRICE_AMOUNT", "0.0003")
	t.Setenv("GAS_PRICE_DENOM", "uelys")

	err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GAS_DEFAULT_LIMIT")

	t.Setenv("GAS_DEFAULT_LIMIT", "300000")
	require.NoError(t, LoadConfig())
	assert.Equal(t, uint64(300000), DefaultGasLimit)
	assert.NotContains(t, KeyringDir, "~")
}

func TestLoadRewardParameters(t *testing.T) {
	t.Setenv("REWARDS_PER_DAY", "")
	t.Setenv("NETWORK_RATIO", "")
	t.Setenv("MIN_CYCLE_PERIOD", "")
	t.Setenv("MAX_INFO_AGE", "")

	params, err := LoadRewardParameters()
	require.NoError(t, err)
	assert.Equal(t, DefaultRewardParameters, params)

	t.Setenv("REWARDS_PER_DAY", "1000")
	t.Setenv("NETWORK_RATIO", "0.5")
	t.Setenv("MIN_CYCLE_PERIOD", "12h")
	params, err = LoadRewardParameters()
	require.NoError(t, err)
	assert.True(t, params.RewardsPerDay.Equal(sdkmath.NewIntWithDecimal(1000, 18)))
	assert.Equal(t, "0.500000000000000000", params.NetworkRatio.String())
	assert.Equal(t, 12*time.Hour, params.MinCyclePeriod)
	assert.Equal(t, 24*time.Hour, params.MaxInfoAge)

	t.Setenv("NETWORK_RATIO", "1.2")
	_, err = LoadRewardParameters()
	require.Error(t, err)

	t.Setenv("NETWORK_RATIO", "")
	t.Setenv("REWARDS_PER_DAY", "0.75")
	params, err = LoadRewardParameters()
	require.NoError(t, err)
	assert.True(t, params.RewardsPerDay.Equal(sdkmath.NewIntWithDecimal(75, 16)))

	t.Setenv("REWARDS_PER_DAY", "-3")
	_, err = LoadRewardParameters()
	require.Error(t, err)
}
