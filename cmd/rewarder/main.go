package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/elys-network/autorewarder/internal/config"
	"github.com/elys-network/autorewarder/internal/datafetcher"
	"github.com/elys-network/autorewarder/internal/logger"
	"github.com/elys-network/autorewarder/internal/rewarder"
	"github.com/elys-network/autorewarder/internal/state"
	"github.com/elys-network/autorewarder/internal/types"
	"github.com/elys-network/autorewarder/internal/vault"
	"github.com/elys-network/autorewarder/internal/wallet"
)

var cmdMain = &cobra.Command{
	Use:          "rewarder",
	Short:        "Distributes the daily reward budget to vaults in proportion to their strategy rewards",
	SilenceUsage: true,
}

func main() {
	if err := cmdMain.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds everything a command needs once the environment is loaded.
type app struct {
	rewarder *rewarder.Rewarder
	sink     vault.RewardSink
	store    *state.PostgresStore
	grpcConn *grpc.ClientConn
}

func (a *app) Close() {
	if a.grpcConn != nil {
		a.grpcConn.Close()
	}
	state.CloseDB()
}

// checkpoint persists the rewarder after a one-shot command changed it.
func (a *app) checkpoint(ctx context.Context) error {
	if err := a.store.SaveState(ctx, a.rewarder.Export()); err != nil {
		return fmt.Errorf("failed to checkpoint rewarder state: %w", err)
	}
	return nil
}

// bootstrap loads the environment, connects the database and restores the rewarder
// from its last checkpoint.
func bootstrap(ctx context.Context) (*app, error) {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE"))

	if err := config.LoadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	envParams, err := config.LoadRewardParameters()
	if err != nil {
		return nil, fmt.Errorf("failed to load reward parameters: %w", err)
	}

	dbCfg := state.DBConfig{
		Host: getenvOr("DB_HOST", "localhost"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: getenvOr("DB_SSLMODE", "disable"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &app{store: state.NewPostgresStore()}
	if err := state.EnsureSchema(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	params, err := activeParameters(ctx, envParams)
	if err != nil {
		a.Close()
		return nil, err
	}

	// --- 2. Strategy rewards source and payout sink ---
	source, err := datafetcher.NewHTTPSource(datafetcher.HTTPSourceConfig{
		BaseURL:    config.StrategyAPI,
		APIKey:     config.StrategyAPIKey,
		BatchLimit: config.FetchConcurrency,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create strategy rewards source: %w", err)
	}

	if err := a.initSink(); err != nil {
		a.Close()
		return nil, err
	}

	// --- 3. Rewarder ---
	r, err := rewarder.New(rewarder.Config{
		Source:            source,
		Sink:              a.sink,
		Parameters:        params,
		FetchConcurrency:  config.FetchConcurrency,
		RegisterOnCollect: config.RegisterOnCollect,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create rewarder: %w", err)
	}
	a.rewarder = r

	st, found, err := state.LoadRewarderState(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load rewarder checkpoint: %w", err)
	}
	if found {
		st.Parameters = params
		if err := r.Restore(st); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to restore rewarder checkpoint: %w", err)
		}
	} else {
		log.Info().Msg("No rewarder checkpoint found, starting with an empty registry")
	}

	if !config.RegisterOnCollect {
		if _, err := r.SyncVaults(config.Vaults); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to register configured vaults: %w", err)
		}
	}
	return a, nil
}

// activeParameters returns the stored active parameters, seeding the store from the
// environment on first start.
func activeParameters(ctx context.Context, envParams types.RewardParameters) (types.RewardParameters, error) {
	active, err := state.LoadActiveRewardParameters(ctx, state.DefaultConfigName)
	if err == nil {
		log.Info().Int("version", active.Version).Int64("paramsId", active.ParamsID).Msg("Reward parameters loaded from database")
		return active.Parameters, nil
	}
	if !errors.Is(err, state.ErrNotFound) {
		return types.RewardParameters{}, fmt.Errorf("failed to load active reward parameters: %w", err)
	}

	log.Warn().Msg("No active reward parameters found, saving the configured values")
	if _, err := state.SaveRewardParameters(ctx, envParams, state.DefaultConfigName, "system", true); err != nil {
		return types.RewardParameters{}, fmt.Errorf("failed to save initial reward parameters: %w", err)
	}
	return envParams, nil
}

// initSink selects the payout sink. Live mode requires a node connection and a signing key.
func (a *app) initSink() error {
	if config.RewarderMode != config.ModeLive {
		log.Warn().Msg("Running in DRY-RUN mode. Payouts are recorded, nothing is broadcast.")
		a.sink = vault.NewDryRunSink()
		return nil
	}

	log.Warn().Msg("Initializing rewarder in LIVE mode. Real transactions will be broadcast.")

	grpcEndpoint := config.NodeGRPC
	var creds grpc.DialOption
	if strings.Contains(grpcEndpoint, ":443") {
		creds = grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	grpcConn, err := grpc.Dial(grpcEndpoint, creds)
	if err != nil {
		return fmt.Errorf("gRPC connection error: %w", err)
	}
	a.grpcConn = grpcConn
	log.Info().Str("endpoint", grpcEndpoint).Msg("gRPC connected")

	client, err := wallet.NewSigningClient(grpcConn, wallet.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("failed to create signing client: %w", err)
	}
	builder, err := wallet.NewTransactionBuilder(client, config.RewardDenom, wallet.DefaultConfirmConfig())
	if err != nil {
		return fmt.Errorf("failed to create transaction builder: %w", err)
	}
	sink, err := vault.NewLiveSink(builder)
	if err != nil {
		return fmt.Errorf("failed to create live sink: %w", err)
	}
	a.sink = sink
	log.Info().Str("address", client.GetAddress().String()).Str("denom", config.RewardDenom).Msg("Live payout sink ready")
	return nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func getenvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
