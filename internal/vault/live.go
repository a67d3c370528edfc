package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/autorewarder/internal/logger"
	"github.com/elys-network/autorewarder/internal/types"
	"github.com/elys-network/autorewarder/internal/wallet"
)

var (
	ErrInvalidSender       = errors.New("payout sender is invalid")
	ErrUnresolvedPayout    = errors.New("a previous payout transaction is unresolved")
	ErrPayoutAlreadyLanded = errors.New("a previous payout transaction landed with different amounts")
)

// payoutSender is implemented by wallet.TransactionBuilder.
type payoutSender interface {
	SendPayouts(ctx context.Context, payouts []types.Payout) (string, error)
	WaitForInclusion(ctx context.Context, txHash string) error
	Balance(ctx context.Context) (sdkmath.Int, error)
}

type pendingTx struct {
	hash string
	key  string
}

// LiveSink pays rewards with bank transfers from the funding account.
//
// A slice whose transaction was broadcast but never confirmed is remembered. The next Fund call
// resolves it first so a slice retried by the engine is never paid twice.
type LiveSink struct {
	sender payoutSender

	mu      sync.Mutex
	hashes  []string
	pending *pendingTx
	logger  zerolog.Logger
}

// NewLiveSink wraps a wallet transaction builder.
func NewLiveSink(builder *wallet.TransactionBuilder) (*LiveSink, error) {
	if builder == nil {
		return nil, ErrInvalidSender
	}
	return newLiveSink(builder), nil
}

func newLiveSink(sender payoutSender) *LiveSink {
	return &LiveSink{
		sender: sender,
		logger: logger.GetForComponent("live_sink"),
	}
}

func (s *LiveSink) Fund(ctx context.Context, payouts []types.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := payoutKey(payouts)

	if s.pending != nil {
		done, err := s.resolvePending(ctx, key)
		if err != nil || done {
			return err
		}
	}

	hash, err := s.sender.SendPayouts(ctx, payouts)
	if err != nil {
		if hash != "" && errors.Is(err, wallet.ErrTxNotConfirmed) {
			s.pending = &pendingTx{hash: hash, key: key}
			s.logger.Warn().
				Str("txHash", hash).
				Msg("Payout transaction broadcast but not confirmed, will resolve before the next payout")
		}
		return err
	}
	if hash != "" {
		s.hashes = append(s.hashes, hash)
	}
	return nil
}

// resolvePending reports done=true when the pending transaction already paid this exact slice.
func (s *LiveSink) resolvePending(ctx context.Context, key string) (bool, error) {
	p := s.pending
	err := s.sender.WaitForInclusion(ctx, p.hash)
	switch {
	case err == nil:
		s.pending = nil
		s.hashes = append(s.hashes, p.hash)
		if p.key != key {
			return false, fmt.Errorf("%w: %s", ErrPayoutAlreadyLanded, p.hash)
		}
		s.logger.Info().Str("txHash", p.hash).Msg("Pending payout transaction confirmed")
		return true, nil
	case errors.Is(err, wallet.ErrTxFailed), errors.Is(err, wallet.ErrTxNotConfirmed):
		// Failed or dropped from the mempool, safe to send again.
		s.logger.Warn().Err(err).Str("txHash", p.hash).Msg("Pending payout transaction did not land")
		s.pending = nil
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s: %w", ErrUnresolvedPayout, p.hash, err)
	}
}

func (s *LiveSink) AvailableRewards(ctx context.Context) (sdkmath.Int, error) {
	return s.sender.Balance(ctx)
}

func (s *LiveSink) DrainTxHashes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.hashes
	s.hashes = nil
	return out
}

// payoutKey identifies the non-zero transfers of a slice.
func payoutKey(payouts []types.Payout) string {
	var b strings.Builder
	for _, p := range payouts {
		if p.Amount.IsNil() || p.Amount.IsZero() {
			continue
		}
		b.WriteString(p.Vault.String())
		b.WriteByte('=')
		b.WriteString(p.Amount.String())
		b.WriteByte(';')
	}
	return b.String()
}
