package datafetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/autorewarder/internal/retry"
	"github.com/elys-network/autorewarder/internal/types"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) *HTTPSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	src, err := NewHTTPSource(HTTPSourceConfig{
		BaseURL:    srv.URL + "/",
		APIKey:     "secret",
		Retry:      retry.Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
		RatePerSec: 1000,
	})
	require.NoError(t, err)
	return src
}

func TestHTTPSource_ParsesDecimalUSD(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"1234.5": "1234500000000000000000",
		"0.5":    "500000000000000000",
		"0.231":  "231000000000000000",
		"007":    "7000000000000000000",
		"0":      "0",
	}
	for raw, want := range cases {
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/vaults/elys1abc/strategy-rewards", r.URL.Path)
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"vault":"elys1abc","strategy_rewards_usd":"` + raw + `"}`))
			})

			value, err := src.StrategyRewardsUSD(context.Background(), "elys1abc")
			require.NoError(t, err)
			assert.Equal(t, want, value.String())
		})
	}
}

func TestHTTPSource_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"strategy_rewards_usd":"2"}`))
	})

	value, err := src.StrategyRewardsUSD(context.Background(), "elys1abc")
	require.NoError(t, err)
	assert.True(t, value.Equal(sdkmath.NewIntWithDecimal(2, 18)))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPSource_NotFoundIsUnsupported(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	})

	_, err := src.StrategyRewardsUSD(context.Background(), "elys1abc")
	require.ErrorIs(t, err, ErrVaultNotSupported)
	assert.Equal(t, int32(1), calls.Load(), "not found must not be retried")
}

func TestHTTPSource_RejectsInvalidPayloads(t *testing.T) {
	t.Parallel()
	bodies := map[string]string{
		"negative":    `{"strategy_rewards_usd":"-5"}`,
		"garbage":     `{"strategy_rewards_usd":"lots"}`,
		"hex":         `{"strategy_rewards_usd":"0x10"}`,
		"separators":  `{"strategy_rewards_usd":"1_000"}`,
		"not json":    `<html>`,
		"other vault": `{"vault":"elys1zzz","strategy_rewards_usd":"1"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := src.StrategyRewardsUSD(context.Background(), "elys1abc")
			require.ErrorIs(t, err, ErrInvalidRewardData)
		})
	}
}

func TestHTTPSource_FetchBatchIsolatesFailures(t *testing.T) {
	t.Parallel()
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "broken") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"strategy_rewards_usd":"10"}`))
	})

	results := src.FetchBatch(context.Background(), []types.VaultID{"elys1a", "elys1broken", "elys1c"})
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.True(t, errors.Is(results[1].Err, ErrVaultNotSupported))
	assert.NoError(t, results[2].Err)
	assert.Equal(t, types.VaultID("elys1c"), results[2].Vault)
}

func TestNewHTTPSource_RequiresBaseURL(t *testing.T) {
	t.Parallel()
	_, err := NewHTTPSource(HTTPSourceConfig{})
	require.ErrorIs(t, err, ErrAPIConfiguration)
	_, err = NewHTTPSource(HTTPSourceConfig{BaseURL: "not a url"})
	require.ErrorIs(t, err, ErrAPIConfiguration)
}

func TestStaticSource(t *testing.T) {
	t.Parallel()
	src := NewStaticSource(map[types.VaultID]sdkmath.Int{"a": sdkmath.NewInt(3)})

	v, err := src.StrategyRewardsUSD(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Int64())

	_, err = src.StrategyRewardsUSD(context.Background(), "b")
	require.ErrorIs(t, err, ErrVaultNotSupported)

	src.Fail("a", errors.New("reverted"))
	_, err = src.StrategyRewardsUSD(context.Background(), "a")
	require.EqualError(t, err, "reverted")

	src.Set("a", sdkmath.NewInt(4))
	v, err = src.StrategyRewardsUSD(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int64(4), v.Int64())
}
