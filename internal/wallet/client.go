package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	sdkmath "cosmossdk.io/math"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/client/flags"
	"github.com/cosmos/cosmos-sdk/client/tx"
	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/crypto/keyring"
	"github.com/cosmos/cosmos-sdk/std"
	sdk "github.com/cosmos/cosmos-sdk/types"
	txtypes "github.com/cosmos/cosmos-sdk/types/tx"
	"github.com/cosmos/cosmos-sdk/types/tx/signing"
	authtx "github.com/cosmos/cosmos-sdk/x/auth/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/elys-network/autorewarder/internal/config"
	"github.com/elys-network/autorewarder/internal/logger"
)

var (
	ErrInvalidConfig          = errors.New("invalid configuration")
	ErrKeyringInit            = errors.New("keyring initialization failed")
	ErrKeyNotFound            = errors.New("signing key not found")
	ErrRPCConnectionFailed    = errors.New("RPC connection failed")
	ErrGRPCConnectionInvalid  = errors.New("gRPC connection is invalid")
	ErrTxBuildFailed          = errors.New("transaction build failed")
	ErrTxSignFailed           = errors.New("transaction signing failed")
	ErrTxBroadcastFailed      = errors.New("transaction broadcast failed")
	ErrSDKConfigFailed        = errors.New("SDK configuration failed")
	ErrAccountRetrievalFailed = errors.New("account retrieval failed")
	ErrBalanceQueryFailed     = errors.New("balance query failed")
)

const (
	AccountPrefix = "elys"
	gasBuffer     = 10000
)

// Thread-safe SDK configuration using sync.Once
var sdkConfigOnce sync.Once

// Config carries everything the signing client needs. ConfigFromEnv fills it from the loaded
// application configuration.
type Config struct {
	ChainID         string
	KeyName         string
	KeyringDir      string
	KeyringBackend  string
	NodeRPC         string
	DefaultGasLimit uint64
	GasAdjustment   float64
	GasPriceAmount  string
	GasPriceDenom   string
}

// ConfigFromEnv maps the package-level config values onto a wallet Config.
func ConfigFromEnv() Config {
	return Config{
		ChainID:         config.ChainID,
		KeyName:         config.KeyName,
		KeyringDir:      config.KeyringDir,
		KeyringBackend:  config.KeyringBackend,
		NodeRPC:         config.NodeRPC,
		DefaultGasLimit: config.DefaultGasLimit,
		GasAdjustment:   config.GasAdjustment,
		GasPriceAmount:  config.GasPriceAmount,
		GasPriceDenom:   config.GasPriceDenom,
	}
}

// GasPrices renders the configured gas price as an SDK dec-coin string.
func (c Config) GasPrices() string {
	return c.GasPriceAmount + c.GasPriceDenom
}

// Validate checks every field the client relies on.
func (c Config) Validate() error {
	if c.ChainID == "" {
		return errors.New("chain ID cannot be empty")
	}
	if c.KeyName == "" {
		return errors.New("key name cannot be empty")
	}
	if c.KeyringDir == "" {
		return errors.New("keyring directory cannot be empty")
	}
	if c.KeyringBackend == "" {
		return errors.New("keyring backend cannot be empty")
	}
	if c.NodeRPC == "" {
		return errors.New("node RPC endpoint cannot be empty")
	}
	if c.DefaultGasLimit == 0 {
		return errors.New("default gas limit cannot be zero")
	}
	if math.IsNaN(c.GasAdjustment) || math.IsInf(c.GasAdjustment, 0) {
		return errors.New("gas adjustment is not finite")
	}
	if c.GasAdjustment <= 0 || c.GasAdjustment > 10 {
		return errors.New("gas adjustment must be between 0 and 10")
	}
	if c.GasPriceAmount == "" {
		return errors.New("gas price amount cannot be empty")
	}
	if c.GasPriceDenom == "" {
		return errors.New("gas price denomination cannot be empty")
	}
	if _, err := sdk.ParseDecCoins(c.GasPrices()); err != nil {
		return fmt.Errorf("invalid gas price %q: %w", c.GasPrices(), err)
	}
	return nil
}

// EncodingConfig bundles the codecs needed to sign and decode bank transactions.
type EncodingConfig struct {
	InterfaceRegistry codectypes.InterfaceRegistry
	Codec             codec.Codec
	TxConfig          client.TxConfig
}

// MakeEncodingConfig registers the auth, bank and crypto interfaces on a fresh registry.
func MakeEncodingConfig() EncodingConfig {
	registry := codectypes.NewInterfaceRegistry()
	std.RegisterInterfaces(registry)
	authtypes.RegisterInterfaces(registry)
	banktypes.RegisterInterfaces(registry)

	cdc := codec.NewProtoCodec(registry)
	return EncodingConfig{
		InterfaceRegistry: registry,
		Codec:             cdc,
		TxConfig:          authtx.NewTxConfig(cdc, authtx.DefaultSignModes),
	}
}

// ConfigureSDK sets the elys bech32 prefixes once per process and seals the SDK config.
func ConfigureSDK() {
	sdkConfigOnce.Do(func() {
		sdkConfig := sdk.GetConfig()
		sdkConfig.SetBech32PrefixForAccount(AccountPrefix, AccountPrefix+"pub")
		sdkConfig.SetBech32PrefixForValidator(AccountPrefix+"valoper", AccountPrefix+"valoperpub")
		sdkConfig.SetBech32PrefixForConsensusNode(AccountPrefix+"valcons", AccountPrefix+"valconspub")
		sdkConfig.Seal()
	})
}

// SigningClient signs and broadcasts transactions from the rewarder's funding account.
type SigningClient struct {
	cfg         Config
	clientCtx   client.Context
	txFactory   tx.Factory
	grpcConn    *grpc.ClientConn
	fromAddress sdk.AccAddress
	logger      zerolog.Logger

	// serializes account sequence usage
	mu sync.Mutex
}

// NewSigningClient builds the keyring, client context and tx factory for cfg.
func NewSigningClient(grpcConn *grpc.ClientConn, cfg Config) (*SigningClient, error) {
	if grpcConn == nil {
		return nil, errors.Join(ErrGRPCConnectionInvalid, errors.New("gRPC connection cannot be nil"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	ConfigureSDK()
	encodingConfig := MakeEncodingConfig()

	kr, err := initializeKeyring(cfg, encodingConfig)
	if err != nil {
		return nil, errors.Join(ErrKeyringInit, err)
	}

	fromAddress, err := getAndValidateKey(kr, cfg.KeyName)
	if err != nil {
		return nil, errors.Join(ErrKeyNotFound, err)
	}

	rpcClient, err := rpchttp.New(cfg.NodeRPC, "/websocket")
	if err != nil {
		return nil, errors.Join(ErrRPCConnectionFailed, fmt.Errorf("failed to create RPC client: %w", err))
	}

	clientCtx := client.Context{}.
		WithCodec(encodingConfig.Codec).
		WithInterfaceRegistry(encodingConfig.InterfaceRegistry).
		WithTxConfig(encodingConfig.TxConfig).
		WithInput(os.Stdin).
		WithAccountRetriever(authtypes.AccountRetriever{}).
		WithBroadcastMode(flags.BroadcastSync).
		WithHomeDir(cfg.KeyringDir).
		WithKeyring(kr).
		WithChainID(cfg.ChainID).
		WithGRPCClient(grpcConn).
		WithClient(rpcClient).
		WithFromAddress(fromAddress).
		WithFromName(cfg.KeyName)

	txFactory := tx.Factory{}.
		WithChainID(cfg.ChainID).
		WithKeybase(kr).
		WithGas(cfg.DefaultGasLimit).
		WithGasAdjustment(cfg.GasAdjustment).
		WithGasPrices(cfg.GasPrices()).
		WithSignMode(signing.SignMode_SIGN_MODE_DIRECT).
		WithAccountRetriever(clientCtx.AccountRetriever).
		WithTxConfig(clientCtx.TxConfig)

	s := &SigningClient{
		cfg:         cfg,
		clientCtx:   clientCtx,
		txFactory:   txFactory,
		grpcConn:    grpcConn,
		fromAddress: fromAddress,
		logger:      logger.GetForComponent("wallet_client"),
	}

	s.logger.Info().
		Str("address", fromAddress.String()).
		Str("keyName", cfg.KeyName).
		Str("chainID", cfg.ChainID).
		Str("rpcEndpoint", cfg.NodeRPC).
		Msg("Signing client initialized")

	return s, nil
}

func initializeKeyring(cfg Config, encodingConfig EncodingConfig) (keyring.Keyring, error) {
	if err := os.MkdirAll(cfg.KeyringDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create keyring directory: %w", err)
	}

	kr, err := keyring.New("elysd", cfg.KeyringBackend, cfg.KeyringDir, os.Stdin, encodingConfig.Codec)
	if err != nil {
		return nil, fmt.Errorf("failed to create keyring: %w", err)
	}
	return kr, nil
}

func getAndValidateKey(kr keyring.Keyring, keyName string) (sdk.AccAddress, error) {
	keyInfo, err := kr.Key(keyName)
	if err != nil {
		return nil, fmt.Errorf("key '%s' not found in keyring: %w", keyName, err)
	}

	fromAddress, err := keyInfo.GetAddress()
	if err != nil {
		return nil, fmt.Errorf("failed to get address from key: %w", err)
	}
	if err := sdk.VerifyAddressFormat(fromAddress); err != nil {
		return nil, fmt.Errorf("invalid address format: %w", err)
	}
	return fromAddress, nil
}

// SignAndBroadcastTx simulates, signs and broadcasts msgs in a single transaction.
// A non-zero CheckTx code is returned as an error.
func (s *SigningClient) SignAndBroadcastTx(ctx context.Context, msgs ...sdk.Msg) (*sdk.TxResponse, error) {
	if len(msgs) == 0 {
		return nil, errors.Join(ErrTxBuildFailed, errors.New("messages cannot be empty"))
	}
	if err := validateMsgs(msgs); err != nil {
		return nil, errors.Join(ErrTxBuildFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.clientCtx.AccountRetriever.GetAccount(s.clientCtx, s.fromAddress)
	if err != nil {
		return nil, errors.Join(ErrAccountRetrievalFailed, fmt.Errorf("failed to get account info: %w", err))
	}

	factory := s.txFactory.
		WithAccountNumber(account.GetAccountNumber()).
		WithSequence(account.GetSequence())

	estimatedGas, err := s.calculateGas(ctx, factory, msgs...)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Gas estimation failed, using default gas limit")
		estimatedGas = s.cfg.DefaultGasLimit
	}
	factory = factory.WithGas(estimatedGas)

	s.logger.Debug().
		Int("messageCount", len(msgs)).
		Uint64("estimatedGas", estimatedGas).
		Uint64("accountNumber", account.GetAccountNumber()).
		Uint64("sequence", account.GetSequence()).
		Msg("Building transaction")

	txBuilder, err := factory.BuildUnsignedTx(msgs...)
	if err != nil {
		return nil, errors.Join(ErrTxBuildFailed, fmt.Errorf("failed to build unsigned tx: %w", err))
	}

	if err := tx.Sign(ctx, factory, s.clientCtx.GetFromName(), txBuilder, true); err != nil {
		return nil, errors.Join(ErrTxSignFailed, fmt.Errorf("failed to sign transaction: %w", err))
	}

	txBytes, err := s.clientCtx.TxConfig.TxEncoder()(txBuilder.GetTx())
	if err != nil {
		return nil, errors.Join(ErrTxBuildFailed, fmt.Errorf("failed to encode transaction: %w", err))
	}

	res, err := s.clientCtx.BroadcastTx(txBytes)
	if err != nil {
		return nil, errors.Join(ErrTxBroadcastFailed, fmt.Errorf("failed to broadcast transaction: %w", err))
	}
	if res == nil || res.TxHash == "" {
		return nil, errors.Join(ErrTxBroadcastFailed, errors.New("transaction response is empty"))
	}
	if res.Code != 0 {
		return res, errors.Join(ErrTxBroadcastFailed, fmt.Errorf("transaction %s rejected with code %d: %s", res.TxHash, res.Code, res.RawLog))
	}

	s.logger.Info().
		Str("txHash", res.TxHash).
		Int("messageCount", len(msgs)).
		Msg("Transaction broadcast successfully")

	return res, nil
}

func validateMsgs(msgs []sdk.Msg) error {
	for i, msg := range msgs {
		if msg == nil {
			return fmt.Errorf("message %d is nil", i)
		}
		if validator, ok := msg.(interface{ ValidateBasic() error }); ok {
			if err := validator.ValidateBasic(); err != nil {
				return fmt.Errorf("message %d validation failed: %w", i, err)
			}
		}
	}
	return nil
}

// calculateGas simulates the transaction and returns the adjusted gas with a fixed buffer.
func (s *SigningClient) calculateGas(ctx context.Context, factory tx.Factory, msgs ...sdk.Msg) (uint64, error) {
	txBytes, err := factory.WithGas(0).BuildSimTx(msgs...)
	if err != nil {
		return 0, fmt.Errorf("failed to build simulation transaction: %w", err)
	}

	simRes, err := txtypes.NewServiceClient(s.grpcConn).Simulate(ctx, &txtypes.SimulateRequest{TxBytes: txBytes})
	if err != nil {
		return 0, fmt.Errorf("gas simulation failed: %w", err)
	}
	if simRes == nil || simRes.GasInfo == nil || simRes.GasInfo.GasUsed == 0 {
		return 0, errors.New("simulation returned no gas usage")
	}

	return AdjustGas(simRes.GasInfo.GasUsed, factory.GasAdjustment()), nil
}

// AdjustGas scales simulated gas by the adjustment factor and adds a safety buffer.
func AdjustGas(simulated uint64, adjustment float64) uint64 {
	return uint64(adjustment*float64(simulated)) + gasBuffer
}

// QueryTxByHash queries a transaction by its hash to get its execution result.
func (s *SigningClient) QueryTxByHash(ctx context.Context, txHash string) (*sdk.TxResponse, error) {
	if txHash == "" {
		return nil, errors.New("transaction hash cannot be empty")
	}

	txResponse, err := authtx.QueryTx(s.clientCtx.WithCmdContext(ctx), txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction %s: %w", txHash, err)
	}
	if txResponse == nil {
		return nil, fmt.Errorf("transaction %s not found", txHash)
	}
	return txResponse, nil
}

// Balance returns the funding account's balance of denom.
func (s *SigningClient) Balance(ctx context.Context, denom string) (sdkmath.Int, error) {
	res, err := banktypes.NewQueryClient(s.grpcConn).Balance(ctx, &banktypes.QueryBalanceRequest{
		Address: s.fromAddress.String(),
		Denom:   denom,
	})
	if err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrBalanceQueryFailed, err)
	}
	if res.Balance == nil {
		return sdkmath.ZeroInt(), nil
	}
	return res.Balance.Amount, nil
}

// GetAddress returns the signing address.
func (s *SigningClient) GetAddress() sdk.AccAddress {
	return s.fromAddress
}
