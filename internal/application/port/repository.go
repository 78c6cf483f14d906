package port

import (
	"context"

	"nexchain/internal/domain"
)

// TriggerRecord is a backend-confirmed alert trigger kept for history.
type TriggerRecord struct {
	ID      string
	UserID  string
	AlertID string
	CoinID  string
	Price   float64
	Target  float64
	Ts      int64 // unix ms
	Payload string
}

type Repository interface {
	// Price operations
	UpsertLatestPrice(ctx context.Context, p domain.CoinPrice) error

	// Snapshot operations
	InsertSnapshot(ctx context.Context, ts int64, payload string) error

	// Alert trigger operations
	InsertTrigger(ctx context.Context, rec TriggerRecord) error

	// Connection management
	Close() error
}

// SnapshotPruner is implemented by repositories that keep snapshot history.
type SnapshotPruner interface {
	DeleteSnapshotsBefore(ctx context.Context, ts int64) (int64, error)
}

// TriggerLister is implemented by repositories that can read trigger history.
type TriggerLister interface {
	ListTriggers(ctx context.Context, userID string, limit int) ([]TriggerRecord, error)
}
