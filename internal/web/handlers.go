package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"

	"github.com/elys-network/autorewarder/internal/rewarder"
	"github.com/elys-network/autorewarder/internal/simulations"
	"github.com/elys-network/autorewarder/internal/state"
	"github.com/elys-network/autorewarder/internal/types"
	"github.com/elys-network/autorewarder/internal/utils"
)

const maxRequestBody = 1 << 20

// parametersView renders reward parameters with readable durations.
type parametersView struct {
	RewardsPerDay       sdkmath.Int       `json:"rewards_per_day"`
	NetworkRatio        sdkmath.LegacyDec `json:"network_ratio"`
	ScaledRewardsPerDay sdkmath.Int       `json:"scaled_rewards_per_day"`
	MinCyclePeriod      string            `json:"min_cycle_period"`
	MaxInfoAge          string            `json:"max_info_age"`
}

func newParametersView(p types.RewardParameters) parametersView {
	return parametersView{
		RewardsPerDay:       p.RewardsPerDay,
		NetworkRatio:        p.NetworkRatio,
		ScaledRewardsPerDay: p.ScaledRewardsPerDay(),
		MinCyclePeriod:      p.MinCyclePeriod.String(),
		MaxInfoAge:          p.MaxInfoAge.String(),
	}
}

type vaultView struct {
	Index                 int           `json:"index"`
	Vault                 types.VaultID `json:"vault"`
	StrategyRewardsUSD    sdkmath.Int   `json:"strategy_rewards_usd"`
	CollectedAt           *time.Time    `json:"collected_at,omitempty"`
	Fresh                 bool          `json:"fresh"`
	LastDistributedAmount sdkmath.Int   `json:"last_distributed_amount"`
}

func (ws *WebServer) newVaultView(index int, v types.VaultID, now time.Time, maxAge time.Duration) vaultView {
	info := ws.rewarder.LastInfo(v)
	view := vaultView{
		Index:                 index,
		Vault:                 v,
		StrategyRewardsUSD:    info.StrategyRewardsUSD,
		Fresh:                 info.IsFreshAt(now, maxAge),
		LastDistributedAmount: ws.rewarder.LastDistributedAmount(v),
	}
	if view.StrategyRewardsUSD.IsNil() {
		view.StrategyRewardsUSD = sdkmath.ZeroInt()
	}
	if info.IsCollected() {
		t := info.CollectedAt
		view.CollectedAt = &t
	}
	return view
}

// handleHealth reports database reachability and the last cycle outcome.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if err := ws.store.Ping(r.Context()); err != nil {
		ws.logger.Warn().Err(err).Msg("Health check: store unreachable")
		dbHealthy = false
	}

	cycleInfo := map[string]interface{}{
		"current_cycle":      0,
		"last_cycle_time":    nil,
		"last_cycle_outcome": "unknown",
	}
	if cycles, err := ws.store.RecentCycles(r.Context(), 1); err == nil && len(cycles) > 0 {
		cycleInfo = map[string]interface{}{
			"current_cycle":      cycles[0].CycleNumber,
			"last_cycle_time":    cycles[0].Timestamp,
			"last_cycle_outcome": cycles[0].Outcome,
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"rewarder_status": map[string]interface{}{
			"database_healthy":    dbHealthy,
			"vaults_size":         ws.rewarder.VaultsSize(),
			"last_distributed_id": ws.rewarder.LastDistributedID(),
			"cycle_info":          cycleInfo,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleDashboard serves the main dashboard HTML
func (ws *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(dashboardHTML)
}

// handleGetState returns the distribution cursor and the running cycle snapshot.
func (ws *WebServer) handleGetState(w http.ResponseWriter, r *http.Request) {
	st := ws.rewarder.DistributionState()
	response := map[string]interface{}{
		"last_distributed_id":        st.LastDistributedID,
		"distributed":                st.DistributedTotal,
		"in_progress":                st.InProgress(),
		"cycle_size":                 st.CycleSize,
		"total_strategy_rewards_usd": st.TotalStrategyRewardsUSD,
		"pending_strategy_rewards":   ws.rewarder.PendingStrategyRewardsUSD(),
		"rewards_per_day":            ws.rewarder.RewardsPerDay(),
		"vaults_size":                ws.rewarder.VaultsSize(),
		"timestamp":                  ws.clock.Now().UTC(),
	}
	if !st.CycleStartedAt.IsZero() {
		response["cycle_started_at"] = st.CycleStartedAt
		response["next_cycle_at"] = st.CycleStartedAt.Add(ws.rewarder.Parameters().MinCyclePeriod)
	}
	if !st.OldestInfoAt.IsZero() {
		response["oldest_info_at"] = st.OldestInfoAt
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetVaults lists the registry in order with each vault's latest info.
func (ws *WebServer) handleGetVaults(w http.ResponseWriter, r *http.Request) {
	now := ws.clock.Now()
	maxAge := ws.rewarder.Parameters().MaxInfoAge
	vaults := ws.rewarder.Vaults()
	views := make([]vaultView, 0, len(vaults))
	for i, v := range vaults {
		views = append(views, ws.newVaultView(i, v, now, maxAge))
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"vaults": views,
		"count":  len(views),
	})
}

func (ws *WebServer) handleGetVault(w http.ResponseWriter, r *http.Request) {
	id := types.VaultID(mux.Vars(r)["vault"])
	for i, v := range ws.rewarder.Vaults() {
		if v == id {
			ws.writeJSONResponse(w, http.StatusOK, ws.newVaultView(i, v, ws.clock.Now(), ws.rewarder.Parameters().MaxInfoAge))
			return
		}
	}
	ws.writeErrorResponse(w, http.StatusNotFound, "Vault not registered")
}

func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"parameters": newParametersView(ws.rewarder.Parameters()),
		"timestamp":  time.Now().UTC(),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleSimulate dry-runs the current or next cycle at the present time.
func (ws *WebServer) handleSimulate(w http.ResponseWriter, r *http.Request) {
	batch := ws.batch
	if batchStr := r.URL.Query().Get("batch"); batchStr != "" {
		parsed, err := strconv.Atoi(batchStr)
		if err != nil || parsed <= 0 {
			ws.writeErrorResponse(w, http.StatusBadRequest, "batch must be a positive integer")
			return
		}
		batch = parsed
	}

	report, err := simulations.SimulateCycle(r.Context(), ws.rewarder, ws.clock.Now(), batch)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Simulation failed")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Simulation failed")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, report)
}

// handleGetCycles returns paginated cycle data
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	cycles, err := ws.store.RecentCycles(r.Context(), limit)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get recent cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}

	response := map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
		"limit":  limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetCycle returns a specific cycle by ID
func (ws *WebServer) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid cycle ID")
		return
	}

	cycle, err := ws.store.CycleByID(r.Context(), id)
	if errors.Is(err, state.ErrNotFound) {
		ws.writeErrorResponse(w, http.StatusNotFound, "Cycle not found")
		return
	}
	if err != nil {
		ws.logger.Error().Err(err).Int64("cycleId", id).Msg("Failed to get cycle")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycle")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, cycle)
}

// handleGetLatestCycle returns the most recent cycle
func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	cycles, err := ws.store.RecentCycles(r.Context(), 1)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get latest cycle")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}
	if len(cycles) == 0 {
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, cycles[0])
}

func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := ws.store.Summary(r.Context())
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get distribution summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve distribution summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// --- Operator actions ---

type registerVaultRequest struct {
	Vault string `json:"vault"`
}

type collectRequest struct {
	Vaults []string `json:"vaults"`
}

type distributeRequest struct {
	Count int `json:"count"`
}

// updateParametersRequest changes only the fields that are set.
// RewardsPerDay is in whole reward tokens, like the REWARDS_PER_DAY variable.
type updateParametersRequest struct {
	RewardsPerDay  *string `json:"rewards_per_day"`
	NetworkRatio   *string `json:"network_ratio"`
	MinCyclePeriod *string `json:"min_cycle_period"`
	MaxInfoAge     *string `json:"max_info_age"`
	UpdatedBy      string  `json:"updated_by"`
}

func (req updateParametersRequest) apply(params types.RewardParameters) (types.RewardParameters, error) {
	var err error
	if req.RewardsPerDay != nil {
		if params.RewardsPerDay, err = utils.ParseUnits(*req.RewardsPerDay, utils.RewardDecimals); err != nil {
			return params, err
		}
	}
	if req.NetworkRatio != nil {
		if params.NetworkRatio, err = utils.ParseRatio(*req.NetworkRatio); err != nil {
			return params, err
		}
	}
	if req.MinCyclePeriod != nil {
		if params.MinCyclePeriod, err = time.ParseDuration(*req.MinCyclePeriod); err != nil {
			return params, err
		}
	}
	if req.MaxInfoAge != nil {
		if params.MaxInfoAge, err = time.ParseDuration(*req.MaxInfoAge); err != nil {
			return params, err
		}
	}
	return params, nil
}

func (ws *WebServer) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// checkpoint persists the rewarder after a mutating action. The action already happened,
// so a failure is logged and reported but not rolled back.
func (ws *WebServer) checkpoint(r *http.Request) bool {
	if err := ws.store.SaveState(r.Context(), ws.rewarder.Export()); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to checkpoint rewarder state after API action")
		return false
	}
	return true
}

// statusForError maps rewarder errors onto HTTP codes: gates are conflicts, validation is the caller's fault.
func statusForError(err error) int {
	switch {
	case errors.Is(err, rewarder.ErrTooEarly), errors.Is(err, rewarder.ErrInfoTooOld), errors.Is(err, rewarder.ErrVaultExists):
		return http.StatusConflict
	case errors.Is(err, rewarder.ErrValidation), errors.Is(err, rewarder.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, rewarder.ErrPayoutFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (ws *WebServer) handleRegisterVault(w http.ResponseWriter, r *http.Request) {
	var req registerVaultRequest
	if !ws.decodeBody(w, r, &req) {
		return
	}
	if err := ws.rewarder.RegisterVault(types.VaultID(req.Vault)); err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"vault":        req.Vault,
		"index":        ws.rewarder.VaultsSize() - 1,
		"checkpointed": ws.checkpoint(r),
	})
}

func (ws *WebServer) handleCollect(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	if !ws.decodeBody(w, r, &req) {
		return
	}
	vaults := make([]types.VaultID, len(req.Vaults))
	for i, v := range req.Vaults {
		vaults[i] = types.VaultID(v)
	}

	report, err := ws.rewarder.Collect(r.Context(), vaults)
	if err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.checkpoint(r)
	ws.writeJSONResponse(w, http.StatusOK, report)
}

func (ws *WebServer) handleDistribute(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if !ws.decodeBody(w, r, &req) {
		return
	}

	res, err := ws.rewarder.Distribute(r.Context(), req.Count)
	if err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"result":       res,
		"checkpointed": ws.checkpoint(r),
	})
}

func (ws *WebServer) handleAbandonCycle(w http.ResponseWriter, r *http.Request) {
	abandoned := ws.rewarder.AbandonCycle()
	response := map[string]interface{}{"abandoned": abandoned}
	if abandoned {
		response["checkpointed"] = ws.checkpoint(r)
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleUpdateParameters applies new parameters and stores them as the active version.
// When storing fails the previous parameters are put back.
func (ws *WebServer) handleUpdateParameters(w http.ResponseWriter, r *http.Request) {
	var req updateParametersRequest
	if !ws.decodeBody(w, r, &req) {
		return
	}
	if req.UpdatedBy == "" {
		req.UpdatedBy = "api"
	}

	previous := ws.rewarder.Parameters()
	next, err := req.apply(previous)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ws.rewarder.SetParameters(next); err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}

	paramsID, err := ws.store.SaveParameters(r.Context(), next, req.UpdatedBy)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to store reward parameters, restoring previous values")
		if restoreErr := ws.rewarder.SetParameters(previous); restoreErr != nil {
			ws.logger.Error().Err(restoreErr).Msg("Failed to restore previous reward parameters")
		}
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to store reward parameters")
		return
	}

	ws.logger.Info().
		Int64("paramsId", paramsID).
		Str("updatedBy", req.UpdatedBy).
		Str("rewardsPerDay", next.RewardsPerDay.String()).
		Str("networkRatio", next.NetworkRatio.String()).
		Msg("Reward parameters updated via API")

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"params_id":  paramsID,
		"parameters": newParametersView(next),
	})
}
