package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/autorewarder/internal/types"
)

const (
	ModeLive   = "live"
	ModeDryRun = "dry-run"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// RewarderMode selects the payout sink: "live" broadcasts bank transfers, "dry-run" only records them.
	RewarderMode string
	// RewardDenom is the denomination of the reward token paid to vaults.
	RewardDenom string
	// Vaults is the ordered list of vault addresses to register at startup.
	Vaults []types.VaultID

	// BatchSize is the number of vaults per collect and distribute call.
	BatchSize int
	// LoopInterval is the time between two operator cycles.
	LoopInterval time.Duration
	// FetchConcurrency bounds parallel strategy rewards requests within a batch.
	FetchConcurrency int
	// RegisterOnCollect lets collection append vaults missing from the registry once they report a value.
	RegisterOnCollect bool
	// AbandonStaleCycles lets the operator drop a running cycle whose snapshot aged past MAX_INFO_AGE.
	AbandonStaleCycles bool

	// WebPort is the port of the HTTP API and dashboard.
	WebPort string
	// APIToken protects the mutating HTTP endpoints. Empty disables them.
	APIToken string

	// KeyringBackend is the backend for the keyring (e.g., "os", "file", "test").
	KeyringBackend string
	// KeyringDir is the path to the keyring directory.
	KeyringDir string
	// KeyName is the name of the key within the keyring to use for signing.
	KeyName string

	// ChainID is the chain ID of the target network.
	ChainID string

	// DefaultGasLimit is the fallback gas limit if estimation fails.
	DefaultGasLimit uint64
	// GasAdjustment is the multiplier for simulated gas to ensure sufficient fees.
	GasAdjustment float64
	// GasPriceAmount is the amount of the gas fee denomination per unit of gas.
	GasPriceAmount string
	// GasPriceDenom is the denomination for gas fees.
	GasPriceDenom string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Wallet and node settings are only required in live mode.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	RewarderMode = getEnvOrDefault("REWARDER_MODE", ModeDryRun)
	if RewarderMode != ModeLive && RewarderMode != ModeDryRun {
		return errors.New("environment variable REWARDER_MODE must be 'live' or 'dry-run', got: " + RewarderMode)
	}

	RewardDenom, err = getEnv("REWARD_DENOM")
	if err != nil {
		return err
	}

	Vaults = parseVaultList(getEnvOrDefault("VAULTS", ""))

	if BatchSize, err = getEnvAsIntOrDefault("BATCH_SIZE", 20); err != nil {
		return err
	}
	if BatchSize <= 0 {
		return errors.New("environment variable BATCH_SIZE must be positive")
	}

	if LoopInterval, err = getEnvAsDurationOrDefault("LOOP_INTERVAL", 10*time.Minute); err != nil {
		return err
	}

	if FetchConcurrency, err = getEnvAsIntOrDefault("FETCH_CONCURRENCY", 4); err != nil {
		return err
	}

	if RegisterOnCollect, err = getEnvAsBoolOrDefault("REGISTER_ON_COLLECT", false); err != nil {
		return err
	}
	if AbandonStaleCycles, err = getEnvAsBoolOrDefault("ABANDON_STALE_CYCLES", true); err != nil {
		return err
	}

	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	APIToken = getEnvOrDefault("API_TOKEN", "")

	if err := loadEndpointConfig(); err != nil {
		return err
	}

	if RewarderMode == ModeLive {
		if err := loadWalletConfig(); err != nil {
			return err
		}
	}

	log.Debug().
		Str("RewarderMode", RewarderMode).
		Str("RewardDenom", RewardDenom).
		Int("Vaults", len(Vaults)).
		Int("BatchSize", BatchSize).
		Msg("Configuration loaded successfully.")

	return nil
}

func loadWalletConfig() error {
	var err error

	KeyringBackend, err = getEnv("KEYRING_BACKEND")
	if err != nil {
		return err
	}

	KeyringDir, err = getEnv("KEYRING_DIR")
	if err != nil {
		return err
	}

	KeyName, err = getEnv("KEYRING_KEY_NAME")
	if err != nil {
		return err
	}

	ChainID, err = getEnv("CHAIN_ID")
	if err != nil {
		return err
	}

	DefaultGasLimit, err = getEnvAsUint64("GAS_DEFAULT_LIMIT")
	if err != nil {
		return err
	}

	GasAdjustment, err = getEnvAsFloat64("GAS_ADJUSTMENT")
	if err != nil {
		return err
	}

	GasPriceAmount, err = getEnv("GAS_PRICE_AMOUNT")
	if err != nil {
		return err
	}

	GasPriceDenom, err = getEnv("GAS_PRICE_DENOM")
	if err != nil {
		return err
	}

	// Expand the tilde (~) in the keyring directory path to the user's home directory.
	if strings.HasPrefix(KeyringDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		KeyringDir = filepath.Join(home, KeyringDir[2:])
	}

	log.Debug().
		Str("ChainID", ChainID).
		Str("KeyName", KeyName).
		Msg("Wallet configuration loaded successfully.")
	return nil
}

// parseVaultList splits a comma separated list, dropping blanks and keeping the first occurrence of duplicates.
func parseVaultList(raw string) []types.VaultID {
	seen := make(map[string]struct{})
	var out []types.VaultID
	for _, part := range strings.Split(raw, ",") {
		v := strings.TrimSpace(part)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, types.VaultID(v))
	}
	return out
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64 retrieves an environment variable as a float64. Returns error if not set or invalid.
func getEnvAsFloat64(key string) (float64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsIntOrDefault(key string, defaultValue int) (int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) (bool, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a boolean, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration, got: " + valueStr)
	}
	return value, nil
}
