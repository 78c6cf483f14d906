package storage

import (
	"context"
	"sync"

	"nexchain/internal/application/port"
	"nexchain/internal/domain"
)

// Snapshot is one stored snapshot row.
type Snapshot struct {
	Ts      int64
	Payload string
}

// Memory is an in-memory repository. It backs tests and runs with every
// storage backend disabled.
type Memory struct {
	mu        sync.Mutex
	prices    map[string]domain.CoinPrice
	snapshots []Snapshot
	triggers  []port.TriggerRecord
}

func NewMemory() *Memory {
	return &Memory{prices: make(map[string]domain.CoinPrice)}
}

func (m *Memory) UpsertLatestPrice(ctx context.Context, p domain.CoinPrice) error {
	m.mu.Lock()
	m.prices[p.CoinID] = p
	m.mu.Unlock()
	return nil
}

func (m *Memory) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	m.mu.Lock()
	m.snapshots = append(m.snapshots, Snapshot{Ts: ts, Payload: payload})
	m.mu.Unlock()
	return nil
}

func (m *Memory) InsertTrigger(ctx context.Context, rec port.TriggerRecord) error {
	m.mu.Lock()
	m.triggers = append(m.triggers, rec)
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeleteSnapshotsBefore(ctx context.Context, ts int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.snapshots[:0]
	for _, s := range m.snapshots {
		if s.Ts >= ts {
			kept = append(kept, s)
		}
	}
	n := int64(len(m.snapshots) - len(kept))
	m.snapshots = kept
	return n, nil
}

// ListTriggers returns the user's triggers, newest first.
func (m *Memory) ListTriggers(ctx context.Context, userID string, limit int) ([]port.TriggerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []port.TriggerRecord
	for i := len(m.triggers) - 1; i >= 0; i-- {
		if m.triggers[i].UserID != userID {
			continue
		}
		out = append(out, m.triggers[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) LatestPrice(coinID string) (domain.CoinPrice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[coinID]
	return p, ok
}

func (m *Memory) Snapshots() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Snapshot(nil), m.snapshots...)
}

func (m *Memory) Triggers() []port.TriggerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]port.TriggerRecord(nil), m.triggers...)
}

var (
	_ port.Repository     = (*Memory)(nil)
	_ port.SnapshotPruner = (*Memory)(nil)
	_ port.TriggerLister  = (*Memory)(nil)
)
