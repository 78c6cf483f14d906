package kafka

import (
	"context"
	"encoding/json"
	"time"

	"nexchain/internal/application/port"
	"nexchain/internal/domain"

	"github.com/segmentio/kafka-go"
)

type Topics struct {
	Prices    string
	Triggers  string
	Snapshots string
}

// Repo publishes price, snapshot and trigger events. Nothing is read back.
type Repo struct {
	w      *kafka.Writer
	topics Topics
}

type priceEvent struct {
	CoinID    string  `json:"coin_id"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	PctChange float64 `json:"pct_change_24h"`
	AbsChange float64 `json:"abs_change_24h"`
	Ts        int64   `json:"ts"`
}

type snapshotEvent struct {
	Ts      int64           `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

type triggerEvent struct {
	ID      string  `json:"id"`
	UserID  string  `json:"user_id"`
	AlertID string  `json:"alert_id"`
	CoinID  string  `json:"coin_id"`
	Price   float64 `json:"price"`
	Target  float64 `json:"target"`
	Ts      int64   `json:"ts"`
}

func New(brokers []string, topics Topics, batchSize int, batchTimeout time.Duration) *Repo {
	return &Repo{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			BatchSize:    batchSize,
			BatchTimeout: batchTimeout,
			RequiredAcks: kafka.RequireOne,
			MaxAttempts:  3,
			WriteTimeout: 10 * time.Second,
			Async:        true,
		},
		topics: topics,
	}
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, p domain.CoinPrice) error {
	if p.CurrentPrice <= 0 {
		return nil
	}
	return r.publish(ctx, r.topics.Prices, p.CoinID, priceEvent{
		CoinID:    p.CoinID,
		Symbol:    p.Symbol,
		Price:     p.CurrentPrice,
		PctChange: p.PercentChange24h,
		AbsChange: p.AbsoluteChange24h,
		Ts:        p.UpdatedAt,
	})
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	raw := json.RawMessage(payload)
	if !json.Valid(raw) {
		b, _ := json.Marshal(payload)
		raw = b
	}
	return r.publish(ctx, r.topics.Snapshots, "", snapshotEvent{Ts: ts, Payload: raw})
}

func (r *Repo) InsertTrigger(ctx context.Context, rec port.TriggerRecord) error {
	return r.publish(ctx, r.topics.Triggers, rec.UserID, triggerEvent{
		ID:      rec.ID,
		UserID:  rec.UserID,
		AlertID: rec.AlertID,
		CoinID:  rec.CoinID,
		Price:   rec.Price,
		Target:  rec.Target,
		Ts:      rec.Ts,
	})
}

func (r *Repo) publish(ctx context.Context, topic, key string, v any) error {
	if topic == "" {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := kafka.Message{Topic: topic, Value: b}
	if key != "" {
		msg.Key = []byte(key)
	}
	return r.w.WriteMessages(ctx, msg)
}

func (r *Repo) Close() error { return r.w.Close() }

var _ port.Repository = (*Repo)(nil)
