package vault

import (
	"context"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/autorewarder/internal/logger"
	"github.com/elys-network/autorewarder/internal/types"
)

// DryRunSink records payouts instead of transferring them. It is used for simulations,
// tests and the operator's dry-run mode.
type DryRunSink struct {
	mu       sync.Mutex
	payouts  []types.Payout
	received map[types.VaultID]sdkmath.Int
	failNext error
	logger   zerolog.Logger
}

// NewDryRunSink creates an empty recording sink.
func NewDryRunSink() *DryRunSink {
	return &DryRunSink{
		received: make(map[types.VaultID]sdkmath.Int),
		logger:   logger.GetForComponent("dry_run_sink"),
	}
}

// FailNext makes the next Fund call return err without recording anything.
func (s *DryRunSink) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *DryRunSink) Fund(ctx context.Context, payouts []types.Payout) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}

	for _, p := range payouts {
		if p.Amount.IsNil() || p.Amount.IsZero() {
			continue
		}
		s.payouts = append(s.payouts, p)
		prev, ok := s.received[p.Vault]
		if !ok {
			prev = sdkmath.ZeroInt()
		}
		s.received[p.Vault] = prev.Add(p.Amount)
	}

	s.logger.Debug().
		Int("payoutCount", len(payouts)).
		Msg("Recorded payouts without broadcasting")
	return nil
}

// Payouts returns every recorded non-zero payout in call order.
func (s *DryRunSink) Payouts() []types.Payout {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Payout, len(s.payouts))
	copy(out, s.payouts)
	return out
}

// Received returns the total a vault has been paid since creation.
func (s *DryRunSink) Received(vault types.VaultID) sdkmath.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount, ok := s.received[vault]; ok {
		return amount
	}
	return sdkmath.ZeroInt()
}

// Total returns the sum of every recorded payout.
func (s *DryRunSink) Total() sdkmath.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.SumPayouts(s.payouts)
}
