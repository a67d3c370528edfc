/*
This file is used to fetch per-vault strategy rewards from the strategy rewards API.

Endpoint: GET {base}/vaults/{vault}/strategy-rewards
Response: {"vault": "elys1...", "strategy_rewards_usd": "1234.56"}

The USD figure is a decimal string and is converted to 18-decimal fixed point.
*/

package datafetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/elys-network/autorewarder/internal/logger"
	"github.com/elys-network/autorewarder/internal/retry"
	"github.com/elys-network/autorewarder/internal/types"
	"github.com/elys-network/autorewarder/internal/utils"
)

const (
	TIMEOUT_SECONDS     = 30
	MAX_RESPONSE_BYTES  = 1 << 20
	DEFAULT_RATE_PER_S  = 10
	DEFAULT_BATCH_LIMIT = 8
)

type strategyRewardsResponse struct {
	Vault              string `json:"vault"`
	StrategyRewardsUSD string `json:"strategy_rewards_usd"`
}

// HTTPSourceConfig configures an HTTPSource.
type HTTPSourceConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Retry      retry.Config
	RatePerSec float64
	BatchLimit int
}

// HTTPSource reads strategy rewards from the strategy rewards API.
type HTTPSource struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	retry      retry.Config
	limiter    *rate.Limiter
	batchLimit int
	logger     zerolog.Logger
}

var _ BatchSource = (*HTTPSource)(nil)

// NewHTTPSource validates the configuration and builds a rate-limited source.
func NewHTTPSource(cfg HTTPSourceConfig) (*HTTPSource, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: strategy rewards API base URL is required", ErrAPIConfiguration)
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("%w: invalid base URL %q: %w", ErrAPIConfiguration, base, err)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: TIMEOUT_SECONDS * time.Second}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DEFAULT_RATE_PER_S
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DEFAULT_BATCH_LIMIT
	}

	return &HTTPSource{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		client:     cfg.HTTPClient,
		retry:      cfg.Retry,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.BatchLimit),
		batchLimit: cfg.BatchLimit,
		logger:     logger.GetForComponent("strategy_rewards_api"),
	}, nil
}

// StrategyRewardsUSD fetches one vault's strategy rewards, retrying transient failures.
func (s *HTTPSource) StrategyRewardsUSD(ctx context.Context, vault types.VaultID) (sdkmath.Int, error) {
	endpoint := fmt.Sprintf("%s/vaults/%s/strategy-rewards", s.baseURL, url.PathEscape(vault.String()))

	var value sdkmath.Int
	attempt := 0
	err := retry.Do(ctx, s.retry, func() error {
		attempt++
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		v, err := s.fetch(ctx, endpoint, vault)
		if err != nil {
			s.logger.Debug().
				Err(err).
				Str("vault", vault.String()).
				Int("attempt", attempt).
				Msg("Strategy rewards request failed")
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("failed to fetch strategy rewards for %s: %w", vault, err)
	}

	s.logger.Debug().
		Str("vault", vault.String()).
		Str("strategyRewardsUSD", utils.FormatUnits(value, utils.RewardDecimals)).
		Msg("Fetched strategy rewards")
	return value, nil
}

func (s *HTTPSource) fetch(ctx context.Context, endpoint string, vault types.VaultID) (sdkmath.Int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MAX_RESPONSE_BYTES))
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return sdkmath.Int{}, fmt.Errorf("%w: %s", ErrVaultNotSupported, vault)
	case resp.StatusCode != http.StatusOK:
		return sdkmath.Int{}, &retry.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload strategyRewardsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %w", ErrInvalidRewardData, err)
	}
	if payload.Vault != "" && payload.Vault != vault.String() {
		return sdkmath.Int{}, fmt.Errorf("%w: response is for vault %s", ErrInvalidRewardData, payload.Vault)
	}

	value, err := utils.ParseUnits(payload.StrategyRewardsUSD, utils.RewardDecimals)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %w", ErrInvalidRewardData, err)
	}
	return value, nil
}

// FetchBatch fetches several vaults concurrently. A failure is reported per vault and never cancels the others.
func (s *HTTPSource) FetchBatch(ctx context.Context, vaults []types.VaultID) []FetchResult {
	results := make([]FetchResult, len(vaults))

	var g errgroup.Group
	g.SetLimit(s.batchLimit)
	for i, v := range vaults {
		g.Go(func() error {
			value, err := s.StrategyRewardsUSD(ctx, v)
			results[i] = FetchResult{Vault: v, Value: value, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.logger.Info().
		Int("requested", len(vaults)).
		Int("failed", failed).
		Msg("Fetched strategy rewards batch")
	return results
}
