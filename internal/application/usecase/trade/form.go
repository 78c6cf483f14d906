package trade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"nexchain/internal/application/port"
	"nexchain/internal/application/state"
	"nexchain/internal/domain"
)

var (
	ErrNoCoin             = errors.New("no coin selected")
	ErrNotLoggedIn        = errors.New("not logged in")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrNoPrice            = errors.New("no price available")
	ErrExceedsAvailable   = errors.New("amount exceeds available")
	ErrTwoFactorCancelled = errors.New("two-factor verification cancelled")
)

// TwoFactorRequest asks the user for a 2FA code. The answer goes to Response;
// an empty code cancels the order.
type TwoFactorRequest struct {
	UserID   string
	CoinID   string
	Response chan<- string
}

type Deps struct {
	Feed    port.PriceFeed
	Backend port.Backend
	Store   *state.Store
	Sink    port.Sink
}

// Form is the trade modal: one coin, a buy/sell mode, an order type and the
// USD/coin amount pair. It keeps its own live price subscription while open.
type Form struct {
	deps   Deps
	prices *domain.LivePrices
	twoFA  chan TwoFactorRequest

	mu        sync.Mutex
	coin      domain.CoinPrice
	mode      domain.TradeMode
	orderType domain.OrderType
	limit     domain.Amount
	qty       domain.TradeQuantityState
	sub       port.Subscription
}

func NewForm(deps Deps) *Form {
	return &Form{
		deps:      deps,
		prices:    domain.NewLivePrices(nil),
		twoFA:     make(chan TwoFactorRequest),
		mode:      domain.ModeBuy,
		orderType: domain.OrderMarket,
	}
}

// TwoFactorRequests delivers 2FA challenges raised by Submit.
func (f *Form) TwoFactorRequests() <-chan TwoFactorRequest { return f.twoFA }

// Open targets coin and subscribes to its live price. Both amount fields are
// cleared. The subscription stays open until Close or the next Open, whatever
// happens to ctx.
func (f *Form) Open(ctx context.Context, coin domain.CoinPrice) error {
	coin.CoinID = strings.TrimSpace(coin.CoinID)
	if coin.CoinID == "" {
		return ErrNoCoin
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.closeLocked()
	f.coin = coin
	f.limit = domain.Amount{}
	f.qty = domain.TradeQuantityState{}
	f.prices.Reset([]string{coin.CoinID})
	f.prices.Seed(coin)
	f.qty.SetReferencePrice(f.effectivePriceLocked())

	if f.deps.Feed == nil {
		return nil
	}
	sub, err := f.deps.Feed.Subscribe(context.WithoutCancel(ctx), []string{coin.CoinID})
	if err != nil {
		log.Warn().Str("coin", coin.CoinID).Err(err).Msg("trade price subscribe failed")
		return nil
	}
	sub.OnTick(f.onTick)
	f.sub = sub
	return nil
}

// Close hides the form: the feed is closed and the amounts are cleared.
func (f *Form) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
	f.qty.Reset()
}

func (f *Form) closeLocked() {
	if f.sub != nil {
		_ = f.sub.Close()
		f.sub = nil
	}
}

// onTick must not take f.mu. A tick never rewrites an amount field.
func (f *Form) onTick(t domain.Tick) {
	f.prices.Apply(t)
}

func (f *Form) SetMode(m domain.TradeMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m != domain.ModeSell {
		m = domain.ModeBuy
	}
	f.mode = m
}

func (f *Form) SetOrderType(t domain.OrderType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch t {
	case domain.OrderLimit, domain.OrderStopLimit:
		f.orderType = t
	default:
		f.orderType = domain.OrderMarket
	}
}

// SetLimitPrice records the limit (or alert target) price input.
func (f *Form) SetLimitPrice(input string) domain.Amount {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = domain.ParseAmount(input)
	return f.limit
}

func (f *Form) EditUSD(input string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qty.SetReferencePrice(f.effectivePriceLocked())
	f.qty.EditUSD(input)
}

func (f *Form) EditCoin(input string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qty.SetReferencePrice(f.effectivePriceLocked())
	f.qty.EditCoin(input)
}

// FillMax puts the largest tradable quantity, truncated to 8 digits, into the
// coin field.
func (f *Form) FillMax() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	avail := decimal.NewFromFloat(f.maxAvailableLocked()).Truncate(8).InexactFloat64()
	f.qty.SetReferencePrice(f.effectivePriceLocked())
	f.qty.SetCoinAmount(avail)
	return avail
}

// Quantity returns a copy of the amount pair.
func (f *Form) Quantity() domain.TradeQuantityState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.qty
}

// CurrentPrice is the live price once a tick arrived, else the fetched one.
func (f *Form) CurrentPrice() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentPriceLocked()
}

func (f *Form) EffectivePrice() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.effectivePriceLocked()
}

func (f *Form) MaxAvailable() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxAvailableLocked()
}

func (f *Form) currentPriceLocked() float64 {
	if p, ok := f.prices.Get(f.coin.CoinID); ok {
		return p.CurrentPrice
	}
	return f.coin.CurrentPrice
}

func (f *Form) effectivePriceLocked() float64 {
	return domain.EffectivePrice(f.orderType, f.limit, f.currentPriceLocked())
}

func (f *Form) maxAvailableLocked() float64 {
	var balance, held float64
	if f.deps.Store != nil {
		balance = f.deps.Store.Wallet().Balance.InexactFloat64()
		if h, ok := f.deps.Store.Holding(f.coin.CoinID); ok {
			held = h.TotalQuantity
		}
	}
	return domain.MaxAvailable(f.mode, balance, f.effectivePriceLocked(), held)
}

// Submit places the order in the form. A 2FA challenge from the backend is
// forwarded on TwoFactorRequests and the order resubmitted with the code. On
// success the wallet and portfolio are reloaded and the amounts cleared.
func (f *Form) Submit(ctx context.Context) (port.OrderResult, error) {
	order, mode, err := f.order()
	if err != nil {
		return port.OrderResult{}, err
	}

	res, err := f.place(ctx, mode, order)
	if errors.Is(err, port.ErrTwoFactorRequired) {
		var code string
		code, err = f.challenge(ctx, order)
		if err == nil {
			err = f.deps.Backend.VerifyTwoFactor(ctx, order.UserID, code)
		}
		if err == nil {
			order.TwoFACode = code
			res, err = f.place(ctx, mode, order)
		}
	}
	if err != nil {
		f.notify(port.LevelError, fmt.Sprintf("%s failed: %v", titleMode(mode), err))
		return port.OrderResult{}, fmt.Errorf("%s %s: %w", mode, order.CoinID, err)
	}

	msg := res.Message
	if msg == "" {
		msg = fmt.Sprintf("%s %s %s", titleMode(mode), order.Quantity.String(), strings.ToUpper(order.CoinSymbol))
	}
	f.notify(port.LevelSuccess, msg)
	f.reload(ctx, order.UserID, res)

	f.mu.Lock()
	f.qty.Reset()
	f.mu.Unlock()
	return res, nil
}

func (f *Form) order() (port.Order, domain.TradeMode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.coin.CoinID == "" {
		return port.Order{}, "", ErrNoCoin
	}
	var user state.User
	if f.deps.Store != nil {
		user = f.deps.Store.User()
	}
	if !user.LoggedIn {
		return port.Order{}, "", ErrNotLoggedIn
	}

	qty := f.qty.Coin()
	if !qty.Valid {
		return port.Order{}, "", ErrInvalidAmount
	}
	price := f.effectivePriceLocked()
	if price <= 0 {
		return port.Order{}, "", ErrNoPrice
	}
	if avail := f.maxAvailableLocked(); qty.Value > avail*(1+1e-9) {
		return port.Order{}, "", fmt.Errorf("%w: %s > %s", ErrExceedsAvailable, domain.FormatCoin(qty.Value), domain.FormatCoin(avail))
	}

	q := decimal.NewFromFloat(qty.Value).Round(8)
	p := decimal.NewFromFloat(price)
	return port.Order{
		UserID:     user.ID,
		CoinID:     f.coin.CoinID,
		CoinSymbol: f.coin.Symbol,
		CoinName:   f.coin.Name,
		Quantity:   q,
		Price:      p,
		TotalCost:  q.Mul(p).Round(2),
		OrderType:  f.orderType,
	}, f.mode, nil
}

func (f *Form) place(ctx context.Context, mode domain.TradeMode, o port.Order) (port.OrderResult, error) {
	if mode == domain.ModeSell {
		return f.deps.Backend.Sell(ctx, o)
	}
	return f.deps.Backend.Buy(ctx, o)
}

func (f *Form) challenge(ctx context.Context, o port.Order) (string, error) {
	resp := make(chan string, 1)
	req := TwoFactorRequest{UserID: o.UserID, CoinID: o.CoinID, Response: resp}

	select {
	case f.twoFA <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case code := <-resp:
		if code = strings.TrimSpace(code); code == "" {
			return "", ErrTwoFactorCancelled
		}
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// reload refreshes wallet and portfolio after an order. Failures only log.
func (f *Form) reload(ctx context.Context, userID string, res port.OrderResult) {
	if f.deps.Store == nil {
		return
	}
	if !res.Balance.IsZero() {
		f.deps.Store.SetBalance(res.Balance)
	} else if b, err := f.deps.Backend.Balance(ctx, userID); err != nil {
		log.Warn().Str("user", userID).Err(err).Msg("balance reload failed")
	} else {
		f.deps.Store.SetBalance(b)
	}

	if h, err := f.deps.Backend.Holdings(ctx, userID); err != nil {
		log.Warn().Str("user", userID).Err(err).Msg("holdings reload failed")
	} else {
		f.deps.Store.SetHoldings(h)
	}
}

// CreateAlert stores an alert for the form's coin at the limit price input.
func (f *Form) CreateAlert(ctx context.Context, cond domain.AlertCondition) (domain.Alert, error) {
	f.mu.Lock()
	coin, target := f.coin, f.limit
	f.mu.Unlock()

	if coin.CoinID == "" {
		return domain.Alert{}, ErrNoCoin
	}
	var user state.User
	if f.deps.Store != nil {
		user = f.deps.Store.User()
	}
	if !user.LoggedIn {
		return domain.Alert{}, ErrNotLoggedIn
	}
	if !target.Valid {
		return domain.Alert{}, ErrInvalidAmount
	}
	if cond != domain.ConditionAbove && cond != domain.ConditionBelow {
		return domain.Alert{}, fmt.Errorf("unknown alert condition %q", cond)
	}

	a, err := f.deps.Backend.CreateAlert(ctx, port.NewAlert{
		UserID:      user.ID,
		CoinID:      coin.CoinID,
		CoinSymbol:  coin.Symbol,
		TargetPrice: decimal.NewFromFloat(target.Value),
		Condition:   cond,
	})
	if err != nil {
		f.notify(port.LevelError, fmt.Sprintf("Could not create alert: %v", err))
		return domain.Alert{}, fmt.Errorf("create alert %s: %w", coin.CoinID, err)
	}
	f.notify(port.LevelSuccess, fmt.Sprintf("Alert set: %s %s $%s", strings.ToUpper(coin.Symbol), cond, domain.FormatUSD(target.Value)))
	return a, nil
}

func (f *Form) notify(level port.Level, msg string) {
	if f.deps.Sink != nil {
		_ = f.deps.Sink.Notify(level, msg)
	}
}

func titleMode(m domain.TradeMode) string {
	if m == domain.ModeSell {
		return "Sell"
	}
	return "Buy"
}
