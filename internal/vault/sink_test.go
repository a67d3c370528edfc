package vault

import (
	"context"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/autorewarder/internal/types"
	"github.com/elys-network/autorewarder/internal/wallet"
)

type fakeSender struct {
	sendHash  string
	sendErr   error
	waitErr   error
	sent      int
	waited    []string
	available sdkmath.Int
}

func (f *fakeSender) SendPayouts(_ context.Context, _ []types.Payout) (string, error) {
	f.sent++
	return f.sendHash, f.sendErr
}

func (f *fakeSender) WaitForInclusion(_ context.Context, hash string) error {
	f.waited = append(f.waited, hash)
	return f.waitErr
}

func (f *fakeSender) Balance(_ context.Context) (sdkmath.Int, error) {
	return f.available, nil
}

var (
	_ RewardSink    = (*LiveSink)(nil)
	_ FundingSource = (*LiveSink)(nil)
	_ TxRecorder    = (*LiveSink)(nil)
	_ RewardSink    = (*DryRunSink)(nil)
)

func slice(amounts ...int64) []types.Payout {
	out := make([]types.Payout, len(amounts))
	for i, a := range amounts {
		out[i] = types.Payout{Vault: types.VaultID(string(rune('a' + i))), Amount: sdkmath.NewInt(a)}
	}
	return out
}

func TestDryRunSink_RecordsNonZeroPayouts(t *testing.T) {
	s := NewDryRunSink()
	require.NoError(t, s.Fund(context.Background(), slice(5, 0, 7)))
	require.NoError(t, s.Fund(context.Background(), slice(1)))

	assert.Len(t, s.Payouts(), 3)
	assert.Equal(t, int64(6), s.Received("a").Int64())
	assert.True(t, s.Received("b").IsZero())
	assert.Equal(t, int64(13), s.Total().Int64())
}

func TestDryRunSink_FailNextRecordsNothing(t *testing.T) {
	s := NewDryRunSink()
	s.FailNext(errors.New("boom"))
	require.EqualError(t, s.Fund(context.Background(), slice(5)), "boom")
	assert.Empty(t, s.Payouts())
	require.NoError(t, s.Fund(context.Background(), slice(5)))
	assert.Len(t, s.Payouts(), 1)
}

func TestLiveSink_RecordsHashes(t *testing.T) {
	f := &fakeSender{sendHash: "H1", available: sdkmath.NewInt(99)}
	s := newLiveSink(f)

	require.NoError(t, s.Fund(context.Background(), slice(5)))
	assert.Equal(t, []string{"H1"}, s.DrainTxHashes())
	assert.Empty(t, s.DrainTxHashes())

	available, err := s.AvailableRewards(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(99), available.Int64())
}

func TestLiveSink_UnconfirmedSliceIsNotPaidTwice(t *testing.T) {
	f := &fakeSender{sendHash: "H1", sendErr: wallet.ErrTxNotConfirmed}
	s := newLiveSink(f)

	err := s.Fund(context.Background(), slice(5, 6))
	require.ErrorIs(t, err, wallet.ErrTxNotConfirmed)
	assert.Empty(t, s.DrainTxHashes())

	// The engine retries the same slice; the earlier transaction has landed meanwhile.
	f.sendErr = nil
	require.NoError(t, s.Fund(context.Background(), slice(5, 6)))
	assert.Equal(t, 1, f.sent, "slice must not be broadcast again")
	assert.Equal(t, []string{"H1"}, f.waited)
	assert.Equal(t, []string{"H1"}, s.DrainTxHashes())
}

func TestLiveSink_DroppedPendingIsResent(t *testing.T) {
	f := &fakeSender{sendHash: "H1", sendErr: wallet.ErrTxNotConfirmed}
	s := newLiveSink(f)
	require.Error(t, s.Fund(context.Background(), slice(5)))

	f.sendErr = nil
	f.sendHash = "H2"
	f.waitErr = wallet.ErrTxNotConfirmed
	require.NoError(t, s.Fund(context.Background(), slice(5)))
	assert.Equal(t, 2, f.sent)
	assert.Equal(t, []string{"H2"}, s.DrainTxHashes())
}

func TestLiveSink_PendingLandedWithDifferentAmounts(t *testing.T) {
	f := &fakeSender{sendHash: "H1", sendErr: wallet.ErrTxNotConfirmed}
	s := newLiveSink(f)
	require.Error(t, s.Fund(context.Background(), slice(5)))

	f.sendErr = nil
	err := s.Fund(context.Background(), slice(8))
	require.ErrorIs(t, err, ErrPayoutAlreadyLanded)
	assert.Equal(t, 1, f.sent)
}

func TestLiveSink_UnresolvedPendingBlocks(t *testing.T) {
	f := &fakeSender{sendHash: "H1", sendErr: wallet.ErrTxNotConfirmed}
	s := newLiveSink(f)
	require.Error(t, s.Fund(context.Background(), slice(5)))

	f.waitErr = context.DeadlineExceeded
	err := s.Fund(context.Background(), slice(5))
	require.ErrorIs(t, err, ErrUnresolvedPayout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, f.sent)
}

func TestNewLiveSink_RequiresBuilder(t *testing.T) {
	_, err := NewLiveSink(nil)
	require.ErrorIs(t, err, ErrInvalidSender)
}
