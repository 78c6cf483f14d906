package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"nexchain/internal/application/port"
	"nexchain/internal/domain"
)

func newRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRepoUpsertLatestPrice(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	p := domain.CoinPrice{CoinID: "bitcoin", Symbol: "btc", CurrentPrice: 65000.5, UpdatedAt: 1700000000000}
	if err := repo.UpsertLatestPrice(ctx, p); err != nil {
		t.Fatalf("UpsertLatestPrice failed: %v", err)
	}
	p.CurrentPrice = 65100
	p.UpdatedAt = 1700000001000
	if err := repo.UpsertLatestPrice(ctx, p); err != nil {
		t.Fatalf("second UpsertLatestPrice failed: %v", err)
	}

	price, ts, err := repo.LatestPrice(ctx, "bitcoin")
	if err != nil {
		t.Fatalf("LatestPrice failed: %v", err)
	}
	if price != 65100 || ts != 1700000001000 {
		t.Errorf("expected latest row to win, got price=%v ts=%d", price, ts)
	}

	if _, _, err := repo.LatestPrice(ctx, "ethereum"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestSQLiteRepoSnapshots(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	for _, ts := range []int64{1000, 2000, 3000} {
		if err := repo.InsertSnapshot(ctx, ts, `{"bitcoin":65000}`); err != nil {
			t.Fatalf("InsertSnapshot failed: %v", err)
		}
	}

	n, err := repo.DeleteSnapshotsBefore(ctx, 2500)
	if err != nil {
		t.Fatalf("DeleteSnapshotsBefore failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 pruned snapshots, got %d", n)
	}
}

func TestSQLiteRepoTriggers(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	recs := []port.TriggerRecord{
		{ID: "t1", UserID: "42", AlertID: "7", CoinID: "bitcoin", Price: 65000, Target: 64000, Ts: 1000, Payload: "{}"},
		{ID: "t2", UserID: "42", AlertID: "8", CoinID: "ethereum", Price: 3000, Target: 3100, Ts: 2000, Payload: "{}"},
		{ID: "t3", UserID: "7", AlertID: "9", CoinID: "solana", Price: 150, Target: 140, Ts: 3000, Payload: "{}"},
	}
	for _, rec := range recs {
		if err := repo.InsertTrigger(ctx, rec); err != nil {
			t.Fatalf("InsertTrigger failed: %v", err)
		}
	}
	// duplicate ids are ignored
	if err := repo.InsertTrigger(ctx, recs[0]); err != nil {
		t.Fatalf("duplicate InsertTrigger failed: %v", err)
	}

	got, err := repo.ListTriggers(ctx, "42", 10)
	if err != nil {
		t.Fatalf("ListTriggers failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "t2" || got[1].ID != "t1" {
		t.Errorf("expected [t2 t1], got %+v", got)
	}
}
