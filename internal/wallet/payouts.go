package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/autorewarder/internal/logger"
	"github.com/elys-network/autorewarder/internal/types"
)

var (
	ErrInvalidDenom     = errors.New("token denomination is invalid")
	ErrInvalidRecipient = errors.New("payout recipient is invalid")
	ErrInvalidAmount    = errors.New("payout amount is invalid")
	ErrTxNotConfirmed   = errors.New("transaction was not confirmed")
	ErrTxFailed         = errors.New("transaction execution failed")
)

// txBroadcaster is the part of SigningClient the payout builder needs.
type txBroadcaster interface {
	SignAndBroadcastTx(ctx context.Context, msgs ...sdk.Msg) (*sdk.TxResponse, error)
	QueryTxByHash(ctx context.Context, txHash string) (*sdk.TxResponse, error)
	Balance(ctx context.Context, denom string) (sdkmath.Int, error)
	GetAddress() sdk.AccAddress
}

// ConfirmConfig controls how long SendPayouts waits for block inclusion.
type ConfirmConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultConfirmConfig polls for roughly one minute.
func DefaultConfirmConfig() ConfirmConfig {
	return ConfirmConfig{MaxAttempts: 20, Interval: 3 * time.Second}
}

// TransactionBuilder turns payout slices into bank transfers signed by the funding account.
type TransactionBuilder struct {
	client  txBroadcaster
	denom   string
	confirm ConfirmConfig
	logger  zerolog.Logger
}

// NewTransactionBuilder creates a builder paying rewards in denom.
func NewTransactionBuilder(client *SigningClient, denom string, confirm ConfirmConfig) (*TransactionBuilder, error) {
	return newTransactionBuilder(client, denom, confirm)
}

func newTransactionBuilder(client txBroadcaster, denom string, confirm ConfirmConfig) (*TransactionBuilder, error) {
	if err := sdk.ValidateDenom(denom); err != nil {
		return nil, errors.Join(ErrInvalidDenom, err)
	}
	if confirm.MaxAttempts <= 0 {
		confirm = DefaultConfirmConfig()
	}
	return &TransactionBuilder{
		client:  client,
		denom:   denom,
		confirm: confirm,
		logger:  logger.GetForComponent("transaction_builder"),
	}, nil
}

// BuildPayoutMsgs converts payouts into one MsgSend per vault. Zero amounts are skipped.
func BuildPayoutMsgs(from sdk.AccAddress, denom string, payouts []types.Payout) ([]sdk.Msg, error) {
	if err := sdk.ValidateDenom(denom); err != nil {
		return nil, errors.Join(ErrInvalidDenom, err)
	}

	msgs := make([]sdk.Msg, 0, len(payouts))
	for i, p := range payouts {
		if p.Amount.IsNil() || p.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: payout %d to %s", ErrInvalidAmount, i, p.Vault)
		}
		if p.Amount.IsZero() {
			continue
		}
		to, err := sdk.AccAddressFromBech32(p.Vault.String())
		if err != nil {
			return nil, errors.Join(ErrInvalidRecipient, fmt.Errorf("payout %d to %q: %w", i, p.Vault, err))
		}
		msgs = append(msgs, banktypes.NewMsgSend(from, to, sdk.NewCoins(sdk.NewCoin(denom, p.Amount))))
	}
	return msgs, nil
}

// SendPayouts broadcasts every non-zero payout in a single transaction and waits for it to be
// included in a block. It returns an empty hash when there was nothing to send.
func (tb *TransactionBuilder) SendPayouts(ctx context.Context, payouts []types.Payout) (string, error) {
	msgs, err := BuildPayoutMsgs(tb.client.GetAddress(), tb.denom, payouts)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", nil
	}

	res, err := tb.client.SignAndBroadcastTx(ctx, msgs...)
	if err != nil {
		return "", err
	}

	tb.logger.Info().
		Str("txHash", res.TxHash).
		Int("messageCount", len(msgs)).
		Str("total", types.SumPayouts(payouts).String()).
		Msg("Payout transaction broadcast, waiting for inclusion")

	if err := tb.WaitForInclusion(ctx, res.TxHash); err != nil {
		return res.TxHash, err
	}
	return res.TxHash, nil
}

// WaitForInclusion polls until the transaction is found. A failed DeliverTx is returned as ErrTxFailed.
func (tb *TransactionBuilder) WaitForInclusion(ctx context.Context, txHash string) error {
	ticker := time.NewTicker(tb.confirm.Interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= tb.confirm.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		txResponse, err := tb.client.QueryTxByHash(ctx, txHash)
		if err != nil {
			tb.logger.Debug().
				Err(err).
				Str("txHash", txHash).
				Int("attempt", attempt).
				Msg("Transaction not yet available, will retry")
			continue
		}
		if txResponse.Code != 0 {
			return fmt.Errorf("%w: %s code %d: %s", ErrTxFailed, txHash, txResponse.Code, txResponse.RawLog)
		}

		tb.logger.Info().
			Str("txHash", txHash).
			Int64("height", txResponse.Height).
			Int64("gasUsed", txResponse.GasUsed).
			Msg("Payout transaction included in block")
		return nil
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrTxNotConfirmed, txHash, tb.confirm.MaxAttempts)
}

// Balance returns the funding account's balance in the reward denom.
func (tb *TransactionBuilder) Balance(ctx context.Context) (sdkmath.Int, error) {
	return tb.client.Balance(ctx, tb.denom)
}
