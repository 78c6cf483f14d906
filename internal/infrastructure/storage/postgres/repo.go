package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"nexchain/internal/application/port"
	"nexchain/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

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
  price DOUBLE PRECISION NOT NULL,
  pct_change_24h DOUBLE PRECISION NOT NULL,
  abs_change_24h DOUBLE PRECISION NOT NULL,
  ts_ms BIGINT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS snapshots (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts_ms);

CREATE TABLE IF NOT EXISTS alert_triggers (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  alert_id TEXT NOT NULL,
  coin_id TEXT NOT NULL,
  price DOUBLE PRECISION NOT NULL,
  target DOUBLE PRECISION NOT NULL,
  payload TEXT NOT NULL,
  ts_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_triggers_user ON alert_triggers(user_id, ts_ms DESC);
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
		VALUES($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT(coin_id) DO UPDATE SET
		symbol=EXCLUDED.symbol, price=EXCLUDED.price, pct_change_24h=EXCLUDED.pct_change_24h,
		abs_change_24h=EXCLUDED.abs_change_24h, ts_ms=EXCLUDED.ts_ms, updated_at=now()
	`, p.CoinID, p.Symbol, p.CurrentPrice, p.PercentChange24h, p.AbsoluteChange24h, ts)
	return err
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO snapshots(ts_ms, payload) VALUES($1, $2)`, ts, payload)
	return err
}

func (r *Repo) InsertTrigger(ctx context.Context, rec port.TriggerRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_triggers(id, user_id, alert_id, coin_id, price, target, payload, ts_ms)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.UserID, rec.AlertID, rec.CoinID, rec.Price, rec.Target, rec.Payload, rec.Ts)
	return err
}

func (r *Repo) DeleteSnapshotsBefore(ctx context.Context, ts int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE ts_ms < $1`, ts)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListTriggers returns the most recent triggers of a user, newest first.
func (r *Repo) ListTriggers(ctx context.Context, userID string, limit int) ([]port.TriggerRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, alert_id, coin_id, price, target, payload, ts_ms
		FROM alert_triggers WHERE user_id=$1 ORDER BY ts_ms DESC LIMIT $2
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
