package svc

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"nexchain/internal/application/port"
	"nexchain/internal/application/port/porttest"
	"nexchain/internal/infrastructure/config"
	"nexchain/internal/infrastructure/pricefeed"
	"nexchain/internal/infrastructure/storage"
	sqliterepo "nexchain/internal/infrastructure/storage/sqlite"
)

func init() {
	pricefeed.Register("FAKE", func(opts pricefeed.Options) port.PriceFeed { return &porttest.Feed{} })
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Backend.BaseURL = "http://127.0.0.1:1"
	cfg.Feed.Name = "FAKE"
	cfg.Feed.WsURL = "ws://127.0.0.1:1"
	cfg.User.ID = "42"
	return cfg
}

func TestNewWithoutStorage(t *testing.T) {
	sc, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer sc.Close()

	if _, ok := sc.Repo.(*storage.Memory); !ok {
		t.Errorf("expected the in-memory repo, got %T", sc.Repo)
	}
	if sc.Feed.Name() != "FAKE" {
		t.Errorf("unexpected feed %s", sc.Feed.Name())
	}
	if u := sc.Store.User(); !u.LoggedIn || u.ID != "42" {
		t.Errorf("configured user not logged in: %+v", u)
	}
	if sc.CoinTable == nil || sc.Alerts == nil || sc.Watchlist == nil || sc.Trade == nil || sc.Portfolio == nil {
		t.Errorf("usecases not built")
	}
}

func TestNewWithSQLite(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.SQLite.Enabled = true
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "nexchain.db")

	sc, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := sc.Repo.(*sqliterepo.Repo); !ok {
		t.Errorf("expected the sqlite repo, got %T", sc.Repo)
	}
	if err := sc.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	// second Close is a no-op
	if err := sc.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestNewUnknownFeed(t *testing.T) {
	cfg := testConfig()
	cfg.Feed.Name = "NOPE"
	if _, err := New(context.Background(), cfg); !errors.Is(err, ErrUnknownFeed) {
		t.Errorf("expected ErrUnknownFeed, got %v", err)
	}
}

func TestNewBadSymbolTable(t *testing.T) {
	cfg := testConfig()
	cfg.Symbols.TableFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := New(context.Background(), cfg); err == nil {
		t.Errorf("expected an error for a missing symbol table")
	}
}
