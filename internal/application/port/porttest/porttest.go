// Package porttest provides in-memory fakes of the application ports for
// tests.
package porttest

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"nexchain/internal/application/port"
	"nexchain/internal/domain"
)

// Feed records every subscription it hands out.
type Feed struct {
	mu   sync.Mutex
	subs []*Sub
	Err  error
}

func (f *Feed) Name() string { return "FAKE" }

func (f *Feed) Subscribe(ctx context.Context, coinIDs []string) (port.Subscription, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	s := &Sub{ids: append([]string(nil), coinIDs...), done: make(chan struct{})}
	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()

	// like a real connection, the subscription ends with its context
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				_ = s.Close()
			case <-s.done:
			}
		}()
	}
	return s, nil
}

// Subs returns every subscription opened so far.
func (f *Feed) Subs() []*Sub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Sub(nil), f.subs...)
}

// Last returns the newest subscription or nil.
func (f *Feed) Last() *Sub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

// Sub is a subscription driven by Emit.
type Sub struct {
	mu     sync.Mutex
	cb     func(domain.Tick)
	closed bool
	ids    []string
	done   chan struct{}
}

func (s *Sub) OnTick(fn func(domain.Tick)) {
	s.mu.Lock()
	s.cb = fn
	s.mu.Unlock()
}

func (s *Sub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

func (s *Sub) Channels() []string    { return append([]string(nil), s.ids...) }
func (s *Sub) Done() <-chan struct{} { return s.done }

// CoinIDs returns the ids the subscription was opened with.
func (s *Sub) CoinIDs() []string { return s.Channels() }

func (s *Sub) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Emit delivers t like an inbound message would. It reports false when the
// subscription is closed or has no callback.
func (s *Sub) Emit(t domain.Tick) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.cb == nil {
		return false
	}
	if t.Ts == 0 {
		t.Ts = time.Now().UnixMilli()
	}
	s.cb(t)
	return true
}

// Backend answers from the configured funcs; unset funcs return zero values.
type Backend struct {
	ListAlertsFn          func(ctx context.Context, userID string) ([]domain.Alert, error)
	CheckAlertsFn         func(ctx context.Context, userID string, current map[string]float64) ([]domain.TriggeredAlert, error)
	CreateAlertFn         func(ctx context.Context, a port.NewAlert) (domain.Alert, error)
	DeleteAlertFn         func(ctx context.Context, id domain.ID) error
	ListWatchlistFn       func(ctx context.Context, userID string) ([]domain.WatchlistItem, error)
	AddToWatchlistFn      func(ctx context.Context, userID string, item domain.WatchlistItem) error
	RemoveFromWatchlistFn func(ctx context.Context, userID, coinID string) error
	BuyFn                 func(ctx context.Context, o port.Order) (port.OrderResult, error)
	SellFn                func(ctx context.Context, o port.Order) (port.OrderResult, error)
	BalanceFn             func(ctx context.Context, userID string) (decimal.Decimal, error)
	HoldingsFn            func(ctx context.Context, userID string) ([]domain.Holding, error)
	ListCoinsFn           func(ctx context.Context) ([]domain.CoinPrice, error)
	VerifyTwoFactorFn     func(ctx context.Context, userID, code string) error
}

func (b *Backend) ListAlerts(ctx context.Context, userID string) ([]domain.Alert, error) {
	if b.ListAlertsFn == nil {
		return nil, nil
	}
	return b.ListAlertsFn(ctx, userID)
}

func (b *Backend) CheckAlerts(ctx context.Context, userID string, current map[string]float64) ([]domain.TriggeredAlert, error) {
	if b.CheckAlertsFn == nil {
		return nil, nil
	}
	return b.CheckAlertsFn(ctx, userID, current)
}

func (b *Backend) CreateAlert(ctx context.Context, a port.NewAlert) (domain.Alert, error) {
	if b.CreateAlertFn == nil {
		return domain.Alert{CoinID: a.CoinID, TargetPrice: a.TargetPrice, Condition: a.Condition}, nil
	}
	return b.CreateAlertFn(ctx, a)
}

func (b *Backend) DeleteAlert(ctx context.Context, id domain.ID) error {
	if b.DeleteAlertFn == nil {
		return nil
	}
	return b.DeleteAlertFn(ctx, id)
}

func (b *Backend) ListWatchlist(ctx context.Context, userID string) ([]domain.WatchlistItem, error) {
	if b.ListWatchlistFn == nil {
		return nil, nil
	}
	return b.ListWatchlistFn(ctx, userID)
}

func (b *Backend) AddToWatchlist(ctx context.Context, userID string, item domain.WatchlistItem) error {
	if b.AddToWatchlistFn == nil {
		return nil
	}
	return b.AddToWatchlistFn(ctx, userID, item)
}

func (b *Backend) RemoveFromWatchlist(ctx context.Context, userID, coinID string) error {
	if b.RemoveFromWatchlistFn == nil {
		return nil
	}
	return b.RemoveFromWatchlistFn(ctx, userID, coinID)
}

func (b *Backend) Buy(ctx context.Context, o port.Order) (port.OrderResult, error) {
	if b.BuyFn == nil {
		return port.OrderResult{}, nil
	}
	return b.BuyFn(ctx, o)
}

func (b *Backend) Sell(ctx context.Context, o port.Order) (port.OrderResult, error) {
	if b.SellFn == nil {
		return port.OrderResult{}, nil
	}
	return b.SellFn(ctx, o)
}

func (b *Backend) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if b.BalanceFn == nil {
		return decimal.Zero, nil
	}
	return b.BalanceFn(ctx, userID)
}

func (b *Backend) Holdings(ctx context.Context, userID string) ([]domain.Holding, error) {
	if b.HoldingsFn == nil {
		return nil, nil
	}
	return b.HoldingsFn(ctx, userID)
}

func (b *Backend) ListCoins(ctx context.Context) ([]domain.CoinPrice, error) {
	if b.ListCoinsFn == nil {
		return nil, nil
	}
	return b.ListCoinsFn(ctx)
}

func (b *Backend) VerifyTwoFactor(ctx context.Context, userID, code string) error {
	if b.VerifyTwoFactorFn == nil {
		return nil
	}
	return b.VerifyTwoFactorFn(ctx, userID, code)
}

// Note is one Notify call.
type Note struct {
	Level port.Level
	Msg   string
}

// Sink keeps everything written to it.
type Sink struct {
	mu        sync.Mutex
	live      []string
	snapshots []string
	notes     []Note
}

func (s *Sink) WriteLive(line string) error {
	s.mu.Lock()
	s.live = append(s.live, line)
	s.mu.Unlock()
	return nil
}

func (s *Sink) WriteSnapshot(ts time.Time, line string) error {
	s.mu.Lock()
	s.snapshots = append(s.snapshots, line)
	s.mu.Unlock()
	return nil
}

func (s *Sink) Notify(level port.Level, msg string) error {
	s.mu.Lock()
	s.notes = append(s.notes, Note{Level: level, Msg: msg})
	s.mu.Unlock()
	return nil
}

func (s *Sink) NewLine() error { return nil }

func (s *Sink) Live() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.live...)
}

func (s *Sink) Snapshots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.snapshots...)
}

func (s *Sink) Notes() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Note(nil), s.notes...)
}

var (
	_ port.PriceFeed = (*Feed)(nil)
	_ port.Backend   = (*Backend)(nil)
	_ port.Sink      = (*Sink)(nil)
)
