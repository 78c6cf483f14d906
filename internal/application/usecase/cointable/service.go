package cointable

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"nexchain/internal/application/port"
	"nexchain/internal/application/state"
	"nexchain/internal/domain"
	"nexchain/internal/infrastructure/scheduler"

	"github.com/rs/zerolog/log"
)

type ServiceDeps struct {
	Feed          port.PriceFeed
	Backend       port.Backend
	Store         *state.Store // optional
	Sink          port.Sink
	Repo          port.Repository
	FallbackCoins []string // shown when the backend coin list is unavailable
	RefreshEvery  time.Duration
	SnapshotEvery time.Duration

	// SnapshotRetention bounds snapshot history on repos that can prune it.
	SnapshotRetention time.Duration
}

// Service keeps the coin table: the backend coin list refreshed on a timer,
// overlaid with live ticks from its own feed subscription.
type Service struct {
	deps   ServiceDeps
	prices *domain.LivePrices
	fmt    *Formatter

	// mu guards the table order and the subscription
	mu    sync.Mutex
	order []domain.CoinPrice
	ids   []string
	sub   port.Subscription

	pendMu  sync.Mutex
	pending map[string]struct{}
	dirty   chan struct{}
}

func NewService(deps ServiceDeps) *Service {
	if deps.RefreshEvery <= 0 {
		deps.RefreshEvery = 60 * time.Second
	}
	if deps.SnapshotEvery <= 0 {
		deps.SnapshotEvery = 5 * time.Minute
	}
	if deps.SnapshotRetention <= 0 {
		deps.SnapshotRetention = 24 * time.Hour
	}
	return &Service{
		deps:    deps,
		prices:  domain.NewLivePrices(nil),
		fmt:     NewFormatter("NEXCHAIN"),
		pending: make(map[string]struct{}),
		dirty:   make(chan struct{}, 1),
	}
}

func (s *Service) Run(ctx context.Context) error {
	if s.deps.Feed == nil {
		return errors.New("no price feed")
	}

	sched := scheduler.New(
		scheduler.Task{Name: "cointable.refresh", Interval: s.deps.RefreshEvery, Immediate: true, Fn: s.refresh},
		scheduler.Task{Name: "cointable.snapshot", Interval: s.deps.SnapshotEvery, Fn: s.snapshot},
	)
	sched.Start(ctx)
	defer s.teardown(sched)

	for {
		select {
		case <-ctx.Done():
			_ = s.deps.Sink.NewLine()
			return ctx.Err()
		case <-s.dirty:
			s.flush(ctx)
		}
	}
}

func (s *Service) teardown(sched *scheduler.Scheduler) {
	sched.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
	}
	s.ids = nil
	s.prices.Reset(nil)
}

// Prices returns a copy of the table's current price map.
func (s *Service) Prices() domain.PriceMap { return s.prices.Snapshot() }

// Channels returns the channels of the open subscription.
func (s *Service) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	return s.sub.Channels()
}

func (s *Service) refresh(ctx context.Context) {
	coins, err := s.deps.Backend.ListCoins(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("coin list refresh failed")
		s.mu.Lock()
		have := len(s.order) > 0
		s.mu.Unlock()
		if have {
			return
		}
		coins = fallbackCoins(s.deps.FallbackCoins)
	} else if s.deps.Store != nil {
		s.deps.Store.SetCoins(coins)
	}
	if len(coins) == 0 {
		return
	}

	ids := make([]string, 0, len(coins))
	for _, c := range coins {
		ids = append(ids, c.CoinID)
	}

	s.mu.Lock()
	s.order = coins
	if s.sub == nil || !domain.SameIDs(ids, s.ids) {
		s.resubscribe(ctx, ids)
	}
	s.mu.Unlock()

	for _, c := range coins {
		s.prices.Seed(c)
	}
	s.signal()
}

// resubscribe closes the current feed before opening one for ids.
// Caller holds s.mu.
func (s *Service) resubscribe(ctx context.Context, ids []string) {
	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
	}
	s.prices.Reset(ids)
	s.ids = append([]string(nil), ids...)

	sub, err := s.deps.Feed.Subscribe(ctx, ids)
	if err != nil {
		log.Warn().Str("feed", s.deps.Feed.Name()).Err(err).Msg("coin table subscribe failed")
		return
	}
	sub.OnTick(s.onTick)
	s.sub = sub
	log.Info().Str("feed", s.deps.Feed.Name()).Int("coins", len(ids)).Int("channels", len(sub.Channels())).Msg("coin table subscribed")
}

// onTick runs on the feed goroutine. It must not take s.mu: Close waits for
// it while resubscribe holds that lock.
func (s *Service) onTick(t domain.Tick) {
	if !s.prices.Apply(t) {
		return
	}
	s.pendMu.Lock()
	s.pending[t.CoinID] = struct{}{}
	s.pendMu.Unlock()
	s.signal()
}

func (s *Service) signal() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Service) flush(ctx context.Context) {
	s.pendMu.Lock()
	pending := s.pending
	s.pending = make(map[string]struct{})
	s.pendMu.Unlock()

	snap := s.prices.Snapshot()
	for id := range pending {
		p, ok := snap[id]
		if !ok || !p.Live {
			continue
		}
		if err := s.deps.Repo.UpsertLatestPrice(ctx, p); err != nil {
			log.Debug().Str("coin", id).Err(err).Msg("persist latest price failed")
		}
	}

	_ = s.deps.Sink.WriteLive(s.fmt.Render(s.table(), snap, RenderLive))
}

func (s *Service) snapshot(ctx context.Context) {
	order := s.table()
	if len(order) == 0 {
		return
	}
	snap := s.prices.Snapshot()
	now := time.Now()

	_ = s.deps.Sink.WriteSnapshot(now, s.fmt.Render(order, snap, RenderSnapshot))

	live := make(map[string]float64, len(snap))
	for id, p := range snap {
		if p.Live {
			live[id] = p.CurrentPrice
		}
	}
	payload, _ := json.Marshal(live)
	if err := s.deps.Repo.InsertSnapshot(ctx, now.UnixMilli(), string(payload)); err != nil {
		log.Debug().Err(err).Msg("persist snapshot failed")
	}

	if p, ok := s.deps.Repo.(port.SnapshotPruner); ok {
		cutoff := now.Add(-s.deps.SnapshotRetention).UnixMilli()
		if n, err := p.DeleteSnapshotsBefore(ctx, cutoff); err != nil {
			log.Debug().Err(err).Msg("prune snapshots failed")
		} else if n > 0 {
			log.Debug().Int64("rows", n).Msg("pruned old snapshots")
		}
	}
}

func (s *Service) table() []domain.CoinPrice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CoinPrice(nil), s.order...)
}

func fallbackCoins(ids []string) []domain.CoinPrice {
	out := make([]domain.CoinPrice, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.CoinPrice{CoinID: id})
	}
	return out
}
