package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"nexchain/internal/application/port"
	"nexchain/internal/domain"

	"github.com/redis/go-redis/v9"
)

// snapshotKeep bounds the snapshot list.
const snapshotKeep = 288

type Repo struct {
	rdb           *redis.Client
	prefix        string
	ttl           time.Duration
	keyLatest     string // prefix + ":latest"
	keySnapshots  string // prefix + ":snapshots"
	triggerStream string
	triggerChan   string
}

type LatestPrice struct {
	CoinID    string  `json:"coin_id"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	PctChange float64 `json:"pct_change_24h"`
	AbsChange float64 `json:"abs_change_24h"`
	Ts        int64   `json:"ts"`
}

type triggerMsg struct {
	ID      string  `json:"id"`
	UserID  string  `json:"user_id"`
	AlertID string  `json:"alert_id"`
	CoinID  string  `json:"coin_id"`
	Price   float64 `json:"price"`
	Target  float64 `json:"target"`
	Ts      int64   `json:"ts_ms"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, triggerStream, triggerChan string) *Repo {
	if strings.TrimSpace(triggerStream) == "" {
		triggerStream = prefix + ":alert-triggers"
	}
	if strings.TrimSpace(triggerChan) == "" {
		triggerChan = prefix + ":alert-triggers:pub"
	}
	return &Repo{
		rdb:           rdb,
		prefix:        prefix,
		ttl:           ttl,
		keyLatest:     prefix + ":latest",
		keySnapshots:  prefix + ":snapshots",
		triggerStream: triggerStream,
		triggerChan:   triggerChan,
	}
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, p domain.CoinPrice) error {
	if p.CurrentPrice <= 0 {
		return nil
	}
	lp := LatestPrice{
		CoinID:    p.CoinID,
		Symbol:    p.Symbol,
		Price:     p.CurrentPrice,
		PctChange: p.PercentChange24h,
		AbsChange: p.AbsoluteChange24h,
		Ts:        p.UpdatedAt,
	}
	b, _ := json.Marshal(lp)

	// Hash: field = coin id -> json
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, p.CoinID, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	pipe := r.rdb.Pipeline()
	pipe.LPush(ctx, r.keySnapshots, payload)
	pipe.LTrim(ctx, r.keySnapshots, 0, snapshotKeep-1)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) InsertTrigger(ctx context.Context, rec port.TriggerRecord) error {
	// 1) Stream: XADD <stream> * id user_id alert_id ...
	_, err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.triggerStream,
		Values: map[string]any{
			"id":       rec.ID,
			"user_id":  rec.UserID,
			"alert_id": rec.AlertID,
			"coin_id":  rec.CoinID,
			"price":    rec.Price,
			"target":   rec.Target,
			"ts_ms":    rec.Ts,
			"payload":  rec.Payload,
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	b, _ := json.Marshal(triggerMsg{
		ID:      rec.ID,
		UserID:  rec.UserID,
		AlertID: rec.AlertID,
		CoinID:  rec.CoinID,
		Price:   rec.Price,
		Target:  rec.Target,
		Ts:      rec.Ts,
	})
	return r.rdb.Publish(ctx, r.triggerChan, string(b)).Err()
}

// Close is a no-op: the client is owned and closed by the caller.
func (r *Repo) Close() error { return nil }

var _ port.Repository = (*Repo)(nil)
