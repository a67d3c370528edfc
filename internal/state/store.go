package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/autorewarder/internal/types"
)

// PostgresStore exposes the package functions through the interfaces used by the operator
// and the web server.
type PostgresStore struct {
	ConfigName string
}

// NewPostgresStore returns a store bound to the global DB and the default parameter set.
func NewPostgresStore() *PostgresStore {
	return &PostgresStore{ConfigName: DefaultConfigName}
}

func (s *PostgresStore) NextCycleNumber(ctx context.Context) (int, error) {
	return IncrementCycleNumber(ctx)
}

func (s *PostgresStore) ActiveParametersID(ctx context.Context) (*int64, error) {
	return GetActiveRewardParametersID(ctx, s.ConfigName)
}

func (s *PostgresStore) SaveState(ctx context.Context, st types.RewarderState) error {
	return SaveRewarderState(ctx, st)
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snapshot types.CycleSnapshot) (int64, error) {
	return SaveCycleSnapshot(ctx, snapshot)
}

func (s *PostgresStore) SaveParameters(ctx context.Context, params types.RewardParameters, updatedBy string) (int64, error) {
	return SaveRewardParameters(ctx, params, s.ConfigName, updatedBy, true)
}

func (s *PostgresStore) RecentCycles(ctx context.Context, limit int) ([]types.CycleSnapshot, error) {
	return GetRecentCycles(ctx, limit)
}

func (s *PostgresStore) CycleByID(ctx context.Context, id int64) (*types.CycleSnapshot, error) {
	return GetCycleByID(ctx, id)
}

func (s *PostgresStore) Summary(ctx context.Context) (*DistributionSummary, error) {
	return GetDistributionSummary(ctx)
}

func (s *PostgresStore) Ping(_ context.Context) error {
	return TestDBConnection()
}

// MemoryStore keeps everything in process. It backs simulations and tests.
type MemoryStore struct {
	mu        sync.Mutex
	cycle     int
	state     *types.RewarderState
	params    []ParameterVersion
	snapshots []types.CycleSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) NextCycleNumber(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycle++
	return m.cycle, nil
}

func (m *MemoryStore) ActiveParametersID(_ context.Context) (*int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.params) - 1; i >= 0; i-- {
		if m.params[i].IsActive {
			id := m.params[i].ParamsID
			return &id, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) SaveState(_ context.Context, st types.RewarderState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &st
	return nil
}

// LastState returns the last checkpoint, if any.
func (m *MemoryStore) LastState() (types.RewarderState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return types.RewarderState{}, false
	}
	return *m.state, true
}

func (m *MemoryStore) SaveSnapshot(_ context.Context, snapshot types.CycleSnapshot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot.SnapshotID = int64(len(m.snapshots) + 1)
	m.snapshots = append(m.snapshots, snapshot)
	return snapshot.SnapshotID, nil
}

func (m *MemoryStore) SaveParameters(_ context.Context, params types.RewardParameters, updatedBy string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.params {
		m.params[i].IsActive = false
	}
	pv := ParameterVersion{
		ParamsID:    int64(len(m.params) + 1),
		Version:     len(m.params) + 1,
		ConfigName:  DefaultConfigName,
		IsActive:    true,
		ActivatedAt: time.Now().UTC(),
		UpdatedBy:   updatedBy,
		Parameters:  params,
	}
	m.params = append(m.params, pv)
	return pv.ParamsID, nil
}

func (m *MemoryStore) RecentCycles(_ context.Context, limit int) ([]types.CycleSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	out := make([]types.CycleSnapshot, len(m.snapshots))
	copy(out, m.snapshots)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SnapshotID > out[j].SnapshotID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CycleByID(_ context.Context, id int64) (*types.CycleSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.snapshots {
		if s.SnapshotID == id {
			out := s
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: cycle with ID %d", ErrNotFound, id)
}

func (m *MemoryStore) Summary(_ context.Context) (*DistributionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summary := &DistributionSummary{
		TotalCycles:      len(m.snapshots),
		TotalDistributed: sdkmath.ZeroInt(),
		TotalDust:        sdkmath.ZeroInt(),
	}
	for _, s := range m.snapshots {
		switch s.Outcome {
		case types.CycleOutcomeCompleted:
			summary.CompletedCycles++
			if !s.Dust.IsNil() {
				summary.TotalDust = summary.TotalDust.Add(s.Dust)
			}
		case types.CycleOutcomeTooEarly:
			summary.TooEarlyCycles++
		case types.CycleOutcomeInfoTooOld:
			summary.StaleInfoCycles++
		case types.CycleOutcomeFailed:
			summary.FailedCycles++
		}
		if !s.DistributedTotal.IsNil() {
			summary.TotalDistributed = summary.TotalDistributed.Add(s.DistributedTotal)
		}
		if summary.LastCycleAt == nil || s.Timestamp.After(*summary.LastCycleAt) {
			t := s.Timestamp
			summary.LastCycleAt = &t
		}
	}
	return summary, nil
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }
