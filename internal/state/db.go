// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

var (
	ErrDBNotInitialized = errors.New("database not initialized")
	ErrNotFound         = errors.New("record not found")
)

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (cfg DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	return Open(cfg.DSN())
}

// Open connects the global pool to dsn and pings it.
func Open(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	DB = db
	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// Amounts are NUMERIC(78, 0), wide enough for any uint256. Ratios keep 18 decimals like LegacyDec.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS reward_parameters (
		params_id SERIAL PRIMARY KEY,
		version INTEGER NOT NULL DEFAULT 1,
		config_name VARCHAR(255) NOT NULL DEFAULT 'default',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_by VARCHAR(255) NOT NULL DEFAULT 'system',
		rewards_per_day NUMERIC(78, 0) NOT NULL,
		network_ratio NUMERIC(38, 18) NOT NULL,
		min_cycle_period_ms BIGINT NOT NULL,
		max_info_age_ms BIGINT NOT NULL,
		CONSTRAINT uq_reward_parameters_config_version UNIQUE (config_name, version)
	);
	CREATE INDEX IF NOT EXISTS idx_reward_parameters_config_active_timestamp ON reward_parameters(config_name, is_active, activated_at DESC);

	CREATE TABLE IF NOT EXISTS rewarder_vaults (
		position INTEGER PRIMARY KEY,
		vault VARCHAR(128) NOT NULL UNIQUE,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS vault_infos (
		vault VARCHAR(128) PRIMARY KEY REFERENCES rewarder_vaults(vault),
		strategy_rewards_usd NUMERIC(78, 0) NOT NULL,
		collected_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS distribution_state (
		id INTEGER PRIMARY KEY DEFAULT 1,
		last_distributed_id INTEGER NOT NULL DEFAULT 0,
		distributed_total NUMERIC(78, 0) NOT NULL DEFAULT 0,
		cycle_started_at TIMESTAMPTZ,
		total_strategy_rewards_usd NUMERIC(78, 0) NOT NULL DEFAULT 0,
		cycle_size INTEGER NOT NULL DEFAULT 0,
		oldest_info_at TIMESTAMPTZ,
		cycle_shares JSONB,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT distribution_state_single_row CHECK (id = 1)
	);

	CREATE TABLE IF NOT EXISTS last_distributed_amounts (
		vault VARCHAR(128) PRIMARY KEY REFERENCES rewarder_vaults(vault),
		amount NUMERIC(78, 0) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS cycle_snapshots (
		snapshot_id SERIAL PRIMARY KEY,
		cycle_number INTEGER NOT NULL,
		cycle_id VARCHAR(64) NOT NULL,
		snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		params_id INTEGER REFERENCES reward_parameters(params_id),

		-- Parameters in force
		rewards_per_day NUMERIC(78, 0) NOT NULL,
		network_ratio NUMERIC(38, 18) NOT NULL,
		scaled_rewards_per_day NUMERIC(78, 0) NOT NULL,

		-- Collection
		vault_count INTEGER NOT NULL,
		collected_count INTEGER NOT NULL,
		collect_failures JSONB,

		-- Distribution
		total_strategy_rewards_usd NUMERIC(78, 0) NOT NULL,
		payouts JSONB,
		distributed_total NUMERIC(78, 0) NOT NULL,
		dust NUMERIC(78, 0) NOT NULL,
		transaction_hashes TEXT[], -- PostgreSQL array of strings for tx hashes

		outcome VARCHAR(32) NOT NULL,
		error TEXT,
		duration_ms BIGINT NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_timestamp ON cycle_snapshots(snapshot_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_cycle ON cycle_snapshots(cycle_number DESC);
	CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_outcome ON cycle_snapshots(outcome);

	-- Cycle counter table for persistent global cycle tracking
	CREATE TABLE IF NOT EXISTS cycle_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	INSERT INTO cycle_counter (id, current_cycle)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

// Tables lists every table owned by the rewarder, children first.
var Tables = []string{
	"cycle_snapshots",
	"reward_parameters",
	"last_distributed_amounts",
	"vault_infos",
	"distribution_state",
	"rewarder_vaults",
	"cycle_counter",
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema drops every rewarder table. Used by the reset script and tests.
func DropSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	for _, table := range Tables {
		if _, err := DB.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		log.Info().Str("table", table).Msg("Dropped table")
	}
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
