package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/autorewarder/internal/datafetcher"
	"github.com/elys-network/autorewarder/internal/rewarder"
	"github.com/elys-network/autorewarder/internal/state"
	"github.com/elys-network/autorewarder/internal/types"
	"github.com/elys-network/autorewarder/internal/vault"
)

const testToken = "s3cret"

var testStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	ws    *WebServer
	r     *rewarder.Rewarder
	store *state.MemoryStore
	sink  *vault.DryRunSink
	clock *clockwork.FakeClock
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()
	ts := &testServer{
		store: state.NewMemoryStore(),
		sink:  vault.NewDryRunSink(),
		clock: clockwork.NewFakeClockAt(testStart),
	}
	r, err := rewarder.New(rewarder.Config{
		Source: datafetcher.NewStaticSource(map[types.VaultID]sdkmath.Int{
			"elys1a": sdkmath.NewIntWithDecimal(1, 18),
			"elys1b": sdkmath.NewIntWithDecimal(3, 18),
		}),
		Sink: ts.sink,
		Parameters: types.RewardParameters{
			RewardsPerDay:  sdkmath.NewIntWithDecimal(100, 18),
			NetworkRatio:   sdkmath.LegacyOneDec(),
			MinCyclePeriod: 24 * time.Hour,
			MaxInfoAge:     24 * time.Hour,
		},
		Clock: ts.clock,
	})
	require.NoError(t, err)
	ts.r = r

	ws, err := NewWebServer(Config{Rewarder: r, Store: ts.store, Clock: ts.clock, APIToken: token, BatchSize: 10})
	require.NoError(t, err)
	ts.ws = ws
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.ws.Handler().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Header().Get("Content-Type") == "application/json" {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func TestNewWebServer_RequiresDependencies(t *testing.T) {
	_, err := NewWebServer(Config{})
	require.Error(t, err)
}

func TestHealthAndDashboard(t *testing.T) {
	ts := newTestServer(t, testToken)

	rec, body := ts.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])

	rec, _ = ts.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AutoRewarder")

	rec, _ = ts.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "autorewarder_http_requests_total")
}

func TestActions_RequireToken(t *testing.T) {
	disabled := newTestServer(t, "")
	rec, _ := disabled.do(t, http.MethodPost, "/api/cycle/abandon", nil, "anything")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	ts := newTestServer(t, testToken)
	rec, _ = ts.do(t, http.MethodPost, "/api/cycle/abandon", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = ts.do(t, http.MethodPost, "/api/cycle/abandon", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := ts.do(t, http.MethodPost, "/api/cycle/abandon", nil, testToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["abandoned"])
}

func TestRegisterCollectDistribute(t *testing.T) {
	ts := newTestServer(t, testToken)

	for _, v := range []string{"elys1a", "elys1b"} {
		rec, body := ts.do(t, http.MethodPost, "/api/vaults", map[string]string{"vault": v}, testToken)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, true, body["checkpointed"])
	}
	rec, _ := ts.do(t, http.MethodPost, "/api/vaults", map[string]string{"vault": "elys1a"}, testToken)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec, _ = ts.do(t, http.MethodPost, "/api/vaults", map[string]string{"vault": " "}, testToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	checkpoint, ok := ts.store.LastState()
	require.True(t, ok)
	assert.Equal(t, []types.VaultID{"elys1a", "elys1b"}, checkpoint.Vaults)

	rec, _ = ts.do(t, http.MethodPost, "/api/collect", map[string][]string{"vaults": {}}, testToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := ts.do(t, http.MethodPost, "/api/collect", map[string][]string{"vaults": {"elys1a", "elys1b", "elys1zzz"}}, testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["succeeded"])
	assert.EqualValues(t, 1, body["failed"])

	rec, _ = ts.do(t, http.MethodPost, "/api/distribute", map[string]int{"count": 0}, testToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = ts.do(t, http.MethodPost, "/api/distribute", map[string]int{"count": 10}, testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	result := body["result"].(map[string]interface{})
	assert.Equal(t, true, result["cycle_completed"])
	assert.Equal(t, "100000000000000000000", result["paid"])
	assert.True(t, sdkmath.NewIntWithDecimal(75, 18).Equal(ts.sink.Received("elys1b")))

	rec, _ = ts.do(t, http.MethodPost, "/api/distribute", map[string]int{"count": 10}, testToken)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = ts.do(t, http.MethodGet, "/api/vaults/elys1b", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "75000000000000000000", body["last_distributed_amount"])
	assert.Equal(t, true, body["fresh"])

	rec, _ = ts.do(t, http.MethodGet, "/api/vaults/elys1zzz", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = ts.do(t, http.MethodGet, "/api/vaults", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])

	rec, body = ts.do(t, http.MethodGet, "/api/state", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["last_distributed_id"])
	assert.Equal(t, false, body["in_progress"])
	assert.Contains(t, body, "next_cycle_at")
}

func TestDistribute_InfoTooOldIsConflict(t *testing.T) {
	ts := newTestServer(t, testToken)
	require.NoError(t, ts.r.RegisterVault("elys1a"))
	_, err := ts.r.Collect(context.Background(), []types.VaultID{"elys1a"})
	require.NoError(t, err)

	ts.clock.Advance(48 * time.Hour)
	rec, body := ts.do(t, http.MethodPost, "/api/distribute", map[string]int{"count": 1}, testToken)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, body["message"], "info too old")
}

func TestParameters(t *testing.T) {
	ts := newTestServer(t, testToken)

	rec, body := ts.do(t, http.MethodGet, "/api/parameters", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	params := body["parameters"].(map[string]interface{})
	assert.Equal(t, "24h0m0s", params["min_cycle_period"])

	rec, _ = ts.do(t, http.MethodPut, "/api/parameters", map[string]string{"network_ratio": "1.5"}, testToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = ts.do(t, http.MethodPut, "/api/parameters", map[string]string{"min_cycle_period": "0s"}, testToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = ts.do(t, http.MethodPut, "/api/parameters", map[string]string{"unknown": "x"}, testToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = ts.do(t, http.MethodPut, "/api/parameters", map[string]string{
		"network_ratio":   "0.25",
		"rewards_per_day": "200",
		"updated_by":      "ops",
	}, testToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["params_id"])
	assert.True(t, sdkmath.NewIntWithDecimal(50, 18).Equal(ts.r.RewardsPerDay()))
	assert.Equal(t, 24*time.Hour, ts.r.Parameters().MinCyclePeriod)

	id, err := ts.store.ActiveParametersID(context.Background())
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.EqualValues(t, 1, *id)
}

func TestCyclesAndSummary(t *testing.T) {
	ts := newTestServer(t, testToken)

	rec, _ := ts.do(t, http.MethodGet, "/api/cycles/latest", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for i, outcome := range []types.CycleOutcome{types.CycleOutcomeCompleted, types.CycleOutcomeTooEarly} {
		_, err := ts.store.SaveSnapshot(context.Background(), types.CycleSnapshot{
			CycleNumber:      i + 1,
			CycleID:          "cycle",
			Timestamp:        testStart.Add(time.Duration(i) * time.Hour),
			Outcome:          outcome,
			DistributedTotal: sdkmath.NewInt(10),
			Dust:             sdkmath.NewInt(1),
		})
		require.NoError(t, err)
	}

	rec, body := ts.do(t, http.MethodGet, "/api/cycles?limit=5", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])

	rec, body = ts.do(t, http.MethodGet, "/api/cycles/latest", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["cycle_number"])

	rec, body = ts.do(t, http.MethodGet, "/api/cycles/1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", body["outcome"])

	rec, _ = ts.do(t, http.MethodGet, "/api/cycles/99", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = ts.do(t, http.MethodGet, "/api/summary", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total_cycles"])
	assert.EqualValues(t, 1, body["completed_cycles"])
	assert.Equal(t, "20", body["total_distributed"])
	assert.Equal(t, "1", body["total_dust"])
}

func TestSimulate(t *testing.T) {
	ts := newTestServer(t, testToken)
	_, err := ts.r.SyncVaults([]types.VaultID{"elys1a", "elys1b"})
	require.NoError(t, err)
	_, err = ts.r.Collect(context.Background(), []types.VaultID{"elys1a", "elys1b"})
	require.NoError(t, err)

	rec, _ := ts.do(t, http.MethodGet, "/api/simulate?batch=0", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := ts.do(t, http.MethodGet, "/api/simulate?batch=1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["completed"])
	assert.EqualValues(t, 2, body["steps"])
	assert.Equal(t, "100000000000000000000", body["distributed"])
	assert.Equal(t, 0, ts.r.LastDistributedID())
	assert.True(t, ts.sink.Total().IsZero())
}
