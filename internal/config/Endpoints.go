package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// NodeRPC is the RPC endpoint for the Elys node.
	NodeRPC string
	// NodeGRPC is the gRPC endpoint for the Elys node.
	NodeGRPC string
	// StrategyAPI is the base URL of the strategy rewards API.
	StrategyAPI string
	// StrategyAPIKey is sent as a bearer token to the strategy rewards API when set.
	StrategyAPIKey string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	StrategyAPI = getEnvOrDefault("STRATEGY_API", "http://localhost:8090")
	StrategyAPIKey = getEnvOrDefault("STRATEGY_API_KEY", "")

	if RewarderMode == ModeLive {
		NodeRPC, err = getEnv("NODE_RPC")
		if err != nil {
			return err
		}

		NodeGRPC, err = getEnv("NODE_GRPC")
		if err != nil {
			return err
		}
	}

	log.Debug().
		Str("NodeRPC", NodeRPC).
		Str("NodeGRPC", NodeGRPC).
		Str("StrategyAPI", StrategyAPI).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
