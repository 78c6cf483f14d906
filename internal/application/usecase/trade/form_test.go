package trade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nexchain/internal/application/port"
	"nexchain/internal/application/port/porttest"
	"nexchain/internal/application/state"
	"nexchain/internal/domain"
)

var btc = domain.CoinPrice{CoinID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: 50}

func newForm(t *testing.T, backend *porttest.Backend) (*Form, *porttest.Feed, *state.Store, *porttest.Sink) {
	t.Helper()
	feed := &porttest.Feed{}
	store := state.NewStore()
	store.SetUser("42")
	store.SetBalance(decimal.NewFromInt(1000))
	store.SetHoldings([]domain.Holding{{CoinID: "bitcoin", TotalQuantity: 5}})
	sink := &porttest.Sink{}

	f := NewForm(Deps{Feed: feed, Backend: backend, Store: store, Sink: sink})
	if err := f.Open(context.Background(), btc); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return f, feed, store, sink
}

func TestMaxAvailable(t *testing.T) {
	f, _, _, _ := newForm(t, &porttest.Backend{})

	if got := f.MaxAvailable(); got != 19 {
		t.Errorf("buy max: expected 19, got %v", got)
	}
	f.SetMode(domain.ModeSell)
	if got := f.MaxAvailable(); got != 5 {
		t.Errorf("sell max: expected 5, got %v", got)
	}

	f.SetMode(domain.ModeBuy)
	f.SetOrderType(domain.OrderLimit)
	f.SetLimitPrice("100")
	if got := f.MaxAvailable(); got != 9.5 {
		t.Errorf("limit buy max: expected 9.5, got %v", got)
	}
}

func TestTickDoesNotRewriteAmounts(t *testing.T) {
	f, feed, _, _ := newForm(t, &porttest.Backend{})

	f.EditUSD("100")
	q := f.Quantity()
	if q.CoinText() != "2.000000" {
		t.Fatalf("expected 2.000000 coins at 50, got %q", q.CoinText())
	}

	feed.Last().Emit(domain.Tick{CoinID: "bitcoin", Price: 40})
	if got := f.CurrentPrice(); got != 40 {
		t.Fatalf("expected live price 40, got %v", got)
	}
	if q := f.Quantity(); q.CoinText() != "2.000000" || q.USDText() != "100" {
		t.Errorf("tick rewrote the amounts: usd=%q coin=%q", q.USDText(), q.CoinText())
	}

	// the next edit uses the live price
	f.EditUSD("100")
	if q := f.Quantity(); q.CoinText() != "2.500000" {
		t.Errorf("expected 2.500000 coins at 40, got %q", q.CoinText())
	}
}

func TestOpenResetsAndResubscribes(t *testing.T) {
	f, feed, _, _ := newForm(t, &porttest.Backend{})
	f.EditCoin("1")
	first := feed.Last()

	if err := f.Open(context.Background(), domain.CoinPrice{CoinID: "ethereum", Symbol: "eth", CurrentPrice: 3000}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !first.Closed() {
		t.Errorf("changing the coin must close the old feed")
	}
	if q := f.Quantity(); q.Coin().Valid || q.USD().Valid {
		t.Errorf("changing the coin must clear the amounts")
	}
	if got := feed.Last().CoinIDs(); len(got) != 1 || got[0] != "ethereum" {
		t.Errorf("unexpected subscription %v", got)
	}

	f.Close()
	if !feed.Last().Closed() {
		t.Errorf("Close must close the feed")
	}
}

func TestOpenFeedOutlivesCallerContext(t *testing.T) {
	f, feed, _, _ := newForm(t, &porttest.Backend{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := f.Open(ctx, domain.CoinPrice{CoinID: "ethereum", Symbol: "eth", CurrentPrice: 3000}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	cancel()
	time.Sleep(50 * time.Millisecond)

	sub := feed.Last()
	if sub.Closed() {
		t.Fatalf("trade feed must stay open until Close")
	}
	if !sub.Emit(domain.Tick{CoinID: "ethereum", Price: 3100}) {
		t.Errorf("tick not delivered after the Open context ended")
	}

	f.Close()
	if !sub.Closed() {
		t.Errorf("Close must close the feed")
	}
}

func TestSubmitValidation(t *testing.T) {
	f, _, _, _ := newForm(t, &porttest.Backend{})
	ctx := context.Background()

	if _, err := f.Submit(ctx); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}

	f.EditCoin("-1")
	if _, err := f.Submit(ctx); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for negative input, got %v", err)
	}

	f.EditCoin("20")
	if _, err := f.Submit(ctx); !errors.Is(err, ErrExceedsAvailable) {
		t.Errorf("expected ErrExceedsAvailable, got %v", err)
	}
}

func TestSubmitBuy(t *testing.T) {
	var placed port.Order
	backend := &porttest.Backend{
		BuyFn: func(ctx context.Context, o port.Order) (port.OrderResult, error) {
			placed = o
			return port.OrderResult{Message: "Purchase successful", Balance: decimal.NewFromInt(905)}, nil
		},
		HoldingsFn: func(ctx context.Context, userID string) ([]domain.Holding, error) {
			return []domain.Holding{{CoinID: "bitcoin", TotalQuantity: 6.9}}, nil
		},
	}
	f, _, store, sink := newForm(t, backend)

	if got := f.FillMax(); got != 19 {
		t.Fatalf("expected max 19, got %v", got)
	}
	f.EditCoin("1.9")
	res, err := f.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Message != "Purchase successful" {
		t.Errorf("unexpected result %+v", res)
	}
	if placed.UserID != "42" || placed.CoinID != "bitcoin" || placed.Quantity.String() != "1.9" || placed.TotalCost.String() != "95" {
		t.Errorf("unexpected order %+v", placed)
	}
	if placed.OrderType != domain.OrderMarket {
		t.Errorf("expected market order, got %s", placed.OrderType)
	}

	if !store.Wallet().Balance.Equal(decimal.NewFromInt(905)) {
		t.Errorf("balance not reloaded: %s", store.Wallet().Balance)
	}
	if h, _ := store.Holding("bitcoin"); h.TotalQuantity != 6.9 {
		t.Errorf("holdings not reloaded: %+v", h)
	}
	if f.Quantity().Coin().Valid {
		t.Errorf("amounts must be cleared after a successful order")
	}
	if notes := sink.Notes(); len(notes) != 1 || notes[0].Level != port.LevelSuccess {
		t.Errorf("unexpected notifications %+v", notes)
	}
}

func TestSubmitTwoFactor(t *testing.T) {
	var codes []string
	var verified string
	backend := &porttest.Backend{
		SellFn: func(ctx context.Context, o port.Order) (port.OrderResult, error) {
			codes = append(codes, o.TwoFACode)
			if o.TwoFACode == "" {
				return port.OrderResult{}, port.ErrTwoFactorRequired
			}
			return port.OrderResult{Message: "Sale successful"}, nil
		},
		VerifyTwoFactorFn: func(ctx context.Context, userID, code string) error {
			verified = userID + ":" + code
			return nil
		},
	}
	f, _, _, _ := newForm(t, backend)
	f.SetMode(domain.ModeSell)
	f.EditCoin("2")

	go func() {
		req := <-f.TwoFactorRequests()
		req.Response <- "123456"
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := f.Submit(ctx); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(codes) != 2 || codes[1] != "123456" {
		t.Errorf("expected a resubmission with the code, got %v", codes)
	}
	if verified != "42:123456" {
		t.Errorf("unexpected verification %q", verified)
	}
}

func TestSubmitTwoFactorCancelled(t *testing.T) {
	backend := &porttest.Backend{
		BuyFn: func(ctx context.Context, o port.Order) (port.OrderResult, error) {
			return port.OrderResult{}, port.ErrTwoFactorRequired
		},
	}
	f, _, _, sink := newForm(t, backend)
	f.EditCoin("1")

	go func() {
		req := <-f.TwoFactorRequests()
		req.Response <- ""
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := f.Submit(ctx); !errors.Is(err, ErrTwoFactorCancelled) {
		t.Fatalf("expected ErrTwoFactorCancelled, got %v", err)
	}
	if notes := sink.Notes(); len(notes) != 1 || notes[0].Level != port.LevelError {
		t.Errorf("expected an error notification, got %+v", notes)
	}
}

func TestCreateAlert(t *testing.T) {
	var got port.NewAlert
	backend := &porttest.Backend{
		CreateAlertFn: func(ctx context.Context, a port.NewAlert) (domain.Alert, error) {
			got = a
			return domain.Alert{ID: "9", CoinID: a.CoinID, TargetPrice: a.TargetPrice, Condition: a.Condition}, nil
		},
	}
	f, _, _, _ := newForm(t, backend)

	if _, err := f.CreateAlert(context.Background(), domain.ConditionAbove); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount without a target, got %v", err)
	}

	f.SetLimitPrice("70000")
	a, err := f.CreateAlert(context.Background(), domain.ConditionAbove)
	if err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}
	if a.ID != "9" || got.UserID != "42" || got.CoinSymbol != "btc" || got.TargetPrice.String() != "70000" {
		t.Errorf("unexpected alert %+v from request %+v", a, got)
	}
}
