package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"nexchain/internal/application/port"
	"nexchain/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS latest_prices (
  coin_id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  price REAL NOT NULL,
  pct_change_24h REAL NOT NULL,
  abs_change_24h REAL NOT NULL,
  ts_ms INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_latest_prices_ts ON latest_prices(ts_ms);

CREATE TABLE IF NOT EXISTS snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  payload TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts_ms);

CREATE TABLE IF NOT EXISTS alert_triggers (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  alert_id TEXT NOT NULL,
  coin_id TEXT NOT NULL,
  price REAL NOT NULL,
  target REAL NOT NULL,
  payload TEXT NOT NULL,
  ts_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_triggers_user ON alert_triggers(user_id);
CREATE INDEX IF NOT EXISTS idx_alert_triggers_ts ON alert_triggers(ts_ms);
`)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, p domain.CoinPrice) error {
	ts := p.UpdatedAt
	if ts <= 0 {
		ts = time.Now().UnixMilli()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_prices(coin_id, symbol, price, pct_change_24h, abs_change_24h, ts_ms, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(coin_id) DO UPDATE SET
		symbol=excluded.symbol, price=excluded.price, pct_change_24h=excluded.pct_change_24h,
		abs_change_24h=excluded.abs_change_24h, ts_ms=excluded.ts_ms, updated_at=excluded.updated_at
	`, p.CoinID, p.Symbol, p.CurrentPrice, p.PercentChange24h, p.AbsoluteChange24h, ts, time.Now().UnixMilli())
	return err
}

// LatestPrice returns the stored price of coinID, sql.ErrNoRows if none.
func (r *Repo) LatestPrice(ctx context.Context, coinID string) (price float64, ts int64, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT price, ts_ms FROM latest_prices WHERE coin_id=?`, coinID).
		Scan(&price, &ts)
	return
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO snapshots(ts_ms, payload, created_at) VALUES(?, ?, ?)`, ts, payload, ts)
	return err
}

// DeleteSnapshotsBefore prunes snapshots older than ts (unix ms).
func (r *Repo) DeleteSnapshotsBefore(ctx context.Context, ts int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE ts_ms < ?`, ts)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repo) InsertTrigger(ctx context.Context, rec port.TriggerRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_triggers(id, user_id, alert_id, coin_id, price, target, payload, ts_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.UserID, rec.AlertID, rec.CoinID, rec.Price, rec.Target, rec.Payload, rec.Ts)
	return err
}

// ListTriggers returns the most recent triggers of a user, newest first.
func (r *Repo) ListTriggers(ctx context.Context, userID string, limit int) ([]port.TriggerRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, alert_id, coin_id, price, target, payload, ts_ms
		FROM alert_triggers WHERE user_id=? ORDER BY ts_ms DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []port.TriggerRecord
	for rows.Next() {
		var rec port.TriggerRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.AlertID, &rec.CoinID, &rec.Price, &rec.Target, &rec.Payload, &rec.Ts); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

var (
	_ port.Repository     = (*Repo)(nil)
	_ port.SnapshotPruner = (*Repo)(nil)
	_ port.TriggerLister  = (*Repo)(nil)
)
