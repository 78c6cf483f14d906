package watchlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"nexchain/internal/application/port"
	"nexchain/internal/application/usecase/cointable"
	"nexchain/internal/domain"
	"nexchain/internal/infrastructure/scheduler"
)

var ErrNoUser = errors.New("no user logged in")

type ServiceDeps struct {
	Feed          port.PriceFeed
	Backend       port.Backend
	Sink          port.Sink
	UserID        string
	RefreshEvery  time.Duration
	SnapshotEvery time.Duration
}

// Row is one watchlist entry with its live price, if one arrived.
type Row struct {
	Item  domain.WatchlistItem
	Price domain.CoinPrice
	Live  bool
}

// Service is the watchlist preview: the user's watchlist with prices from its
// own feed subscription.
type Service struct {
	deps   ServiceDeps
	prices *domain.LivePrices
	fmt    *cointable.Formatter
	kick   chan struct{}

	refreshMu sync.Mutex

	mu    sync.Mutex
	user  string
	items []domain.WatchlistItem
	ids   []string
	sub   port.Subscription
}

func NewService(deps ServiceDeps) *Service {
	if deps.RefreshEvery <= 0 {
		deps.RefreshEvery = 60 * time.Second
	}
	if deps.SnapshotEvery <= 0 {
		deps.SnapshotEvery = 5 * time.Minute
	}
	return &Service{
		deps:   deps,
		prices: domain.NewLivePrices(nil),
		fmt:    cointable.NewFormatter("WATCHLIST"),
		kick:   make(chan struct{}, 1),
		user:   strings.TrimSpace(deps.UserID),
	}
}

func (s *Service) SetUser(id string) {
	id = strings.TrimSpace(id)

	s.mu.Lock()
	if id == s.user {
		s.mu.Unlock()
		return
	}
	s.user = id
	s.items = nil
	s.resubscribeLocked(context.Background(), nil)
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Service) Run(ctx context.Context) error {
	if s.deps.Feed == nil {
		return errors.New("no price feed")
	}

	sched := scheduler.New(
		scheduler.Task{Name: "watchlist.refresh", Interval: s.deps.RefreshEvery, Immediate: true, Fn: s.refresh},
		scheduler.Task{Name: "watchlist.snapshot", Interval: s.deps.SnapshotEvery, Fn: s.snapshot},
	)
	sched.Start(ctx)
	defer func() {
		sched.Stop()
		s.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.kick:
			s.refresh(ctx)
		}
	}
}

// Rows returns the watchlist in backend order.
func (s *Service) Rows() []Row {
	s.mu.Lock()
	items := append([]domain.WatchlistItem(nil), s.items...)
	s.mu.Unlock()

	snap := s.prices.Snapshot()
	out := make([]Row, 0, len(items))
	for _, it := range items {
		r := Row{Item: it}
		if p, ok := snap[it.CoinID]; ok {
			r.Price, r.Live = p, p.Live
		}
		out = append(out, r)
	}
	return out
}

// Contains reports whether coinID is on the watchlist.
func (s *Service) Contains(coinID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return indexOf(s.items, coinID) >= 0
}

// Toggle adds item to the watchlist, or removes it when already present. The
// local list changes first; a backend failure rolls it back and notifies.
func (s *Service) Toggle(ctx context.Context, item domain.WatchlistItem) (added bool, err error) {
	item.CoinID = strings.TrimSpace(item.CoinID)
	if item.CoinID == "" {
		return false, errors.New("empty coin id")
	}

	s.mu.Lock()
	user := s.user
	if user == "" {
		s.mu.Unlock()
		return false, ErrNoUser
	}
	prev := append([]domain.WatchlistItem(nil), s.items...)
	if i := indexOf(s.items, item.CoinID); i >= 0 {
		s.items = append(s.items[:i:i], s.items[i+1:]...)
	} else {
		s.items = append(s.items, item)
		added = true
	}
	s.resubscribeLocked(ctx, itemIDs(s.items))
	s.mu.Unlock()

	if added {
		err = s.deps.Backend.AddToWatchlist(ctx, user, item)
	} else {
		err = s.deps.Backend.RemoveFromWatchlist(ctx, user, item.CoinID)
	}
	if err == nil {
		return added, nil
	}

	s.mu.Lock()
	if s.user == user {
		s.items = prev
		s.resubscribeLocked(ctx, itemIDs(prev))
	}
	s.mu.Unlock()

	verb := "remove"
	if added {
		verb = "add"
	}
	log.Warn().Str("coin", item.CoinID).Err(err).Msg("watchlist " + verb + " failed")
	_ = s.deps.Sink.Notify(port.LevelError, fmt.Sprintf("Could not %s %s: %v", verb, label(item), err))
	return added, fmt.Errorf("watchlist %s: %w", verb, err)
}

// SetWatched adds or removes item so that its presence matches watched.
// It reports whether the backend was called.
func (s *Service) SetWatched(ctx context.Context, item domain.WatchlistItem, watched bool) (bool, error) {
	if s.Contains(item.CoinID) == watched {
		return false, nil
	}
	_, err := s.Toggle(ctx, item)
	return true, err
}

// Refresh reloads the watchlist of the current user from the backend.
func (s *Service) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.Lock()
	user := s.user
	s.mu.Unlock()
	if user == "" {
		return ErrNoUser
	}

	items, err := s.deps.Backend.ListWatchlist(ctx, user)
	if err != nil {
		return fmt.Errorf("list watchlist: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != user {
		return nil
	}
	s.items = items
	s.resubscribeLocked(ctx, itemIDs(items))
	return nil
}

func (s *Service) refresh(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrNoUser) {
		log.Warn().Err(err).Msg("watchlist refresh failed")
	}
}

// Close drops the feed. Run does this on its own when it returns.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resubscribeLocked(context.Background(), nil)
}

// resubscribeLocked closes the feed and opens one for ids unless the set is
// unchanged. Caller holds s.mu.
func (s *Service) resubscribeLocked(ctx context.Context, ids []string) {
	if s.sub != nil && domain.SameIDs(ids, s.ids) {
		return
	}
	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
	}
	s.prices.Reset(ids)
	s.ids = ids
	if len(ids) == 0 || s.deps.Feed == nil {
		return
	}

	// the feed lives as long as the watchlist, not as long as the caller
	sub, err := s.deps.Feed.Subscribe(context.WithoutCancel(ctx), ids)
	if err != nil {
		log.Warn().Str("feed", s.deps.Feed.Name()).Err(err).Msg("watchlist subscribe failed")
		return
	}
	sub.OnTick(s.onTick)
	s.sub = sub
	log.Debug().Int("coins", len(ids)).Int("channels", len(sub.Channels())).Msg("watchlist subscribed")
}

// onTick must not take s.mu.
func (s *Service) onTick(t domain.Tick) {
	s.prices.Apply(t)
}

func (s *Service) snapshot(ctx context.Context) {
	rows := s.Rows()
	if len(rows) == 0 {
		return
	}
	order := make([]domain.CoinPrice, 0, len(rows))
	for _, r := range rows {
		p := r.Price
		p.CoinID = r.Item.CoinID
		if p.Symbol == "" {
			p.Symbol = r.Item.Symbol
		}
		order = append(order, p)
	}
	_ = s.deps.Sink.WriteSnapshot(time.Now(), s.fmt.Render(order, nil, cointable.RenderSnapshot))
}

func indexOf(items []domain.WatchlistItem, coinID string) int {
	for i, it := range items {
		if it.CoinID == coinID {
			return i
		}
	}
	return -1
}

func itemIDs(items []domain.WatchlistItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.CoinID)
	}
	return out
}

func label(it domain.WatchlistItem) string {
	if it.Symbol != "" {
		return strings.ToUpper(it.Symbol)
	}
	return it.CoinID
}
