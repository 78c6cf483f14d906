package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"nexchain/internal/application/port"
	"nexchain/internal/domain"
)

func newTestServer(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "secret", 0), srv
}

func TestListAlerts(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/alerts/42" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization %q", got)
		}
		if r.Header.Get("X-Request-ID") != "" {
			t.Errorf("GET must not carry a request id")
		}
		_, _ = io.WriteString(w, `{"success":true,"alerts":[{"id":1,"coin_id":"bitcoin","coin_symbol":"BTC","target_price":"70000","condition":"above","is_active":true}]}`)
	})

	alerts, err := c.ListAlerts(context.Background(), "42")
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != "1" || alerts[0].CoinID != "bitcoin" {
		t.Fatalf("unexpected alerts %+v", alerts)
	}
	if !alerts[0].TargetPrice.Equal(decimal.NewFromInt(70000)) {
		t.Errorf("unexpected target %s", alerts[0].TargetPrice)
	}
}

func TestCheckAlertsSendsLivePrices(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/alerts/check" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing request id")
		}
		var body struct {
			UserID        string                     `json:"user_id"`
			CurrentPrices map[string]decimal.Decimal `json:"current_prices"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.UserID != "42" || body.CurrentPrices["bitcoin"].String() != "65000.5" {
			t.Errorf("unexpected body %+v", body)
		}
		_, _ = io.WriteString(w, `{"success":true,"triggered":[{"id":"a1","coin_id":"bitcoin","target_price":65000,"condition":"above","current_price":65000.5}]}`)
	})

	trig, err := c.CheckAlerts(context.Background(), "42", map[string]float64{"bitcoin": 65000.5})
	if err != nil {
		t.Fatalf("CheckAlerts failed: %v", err)
	}
	if len(trig) != 1 || trig[0].ID != "a1" || trig[0].CoinID != "bitcoin" {
		t.Fatalf("unexpected triggered %+v", trig)
	}
	if trig[0].CurrentPrice.String() != "65000.5" {
		t.Errorf("unexpected current price %s", trig[0].CurrentPrice)
	}
}

func TestUnsuccessfulEnvelope(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"message":"Insufficient balance"}`)
	})

	_, err := c.Buy(context.Background(), port.Order{UserID: "42", CoinID: "bitcoin"})
	if !errors.Is(err, ErrUnsuccessful) {
		t.Fatalf("expected ErrUnsuccessful, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Insufficient balance" {
		t.Errorf("expected backend message, got %v", err)
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	if _, err := c.ListWatchlist(context.Background(), "42"); !errors.Is(err, ErrUnsuccessful) {
		t.Fatalf("expected ErrUnsuccessful, got %v", err)
	}
}

func TestBuyRequiresTwoFactor(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"success":false,"requires_2fa":true,"message":"2FA code required"}`)
	})

	_, err := c.Buy(context.Background(), port.Order{UserID: "42"})
	if !errors.Is(err, ErrTwoFactorRequired) {
		t.Fatalf("expected ErrTwoFactorRequired, got %v", err)
	}
}

func TestOrderResultBalance(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/purchases/sell" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"success":true,"message":"Sold","new_balance":"1234.56"}`)
	})

	res, err := c.Sell(context.Background(), port.Order{UserID: "42", CoinID: "bitcoin"})
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if res.Message != "Sold" || res.Balance.String() != "1234.56" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHoldingsNormalized(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/purchases/holdings/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"success":true,"holdings":[{"coinId":"bitcoin","totalQuantity":"2","averagePrice":100}]}`)
	})

	hs, err := c.Holdings(context.Background(), "42")
	if err != nil {
		t.Fatalf("Holdings failed: %v", err)
	}
	if len(hs) != 1 || hs[0].CoinID != "bitcoin" || hs[0].TotalQuantity != 2 || hs[0].RemainingInvestment != 200 {
		t.Errorf("unexpected holdings %+v", hs)
	}
}

func TestListCoinsShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bare array", `[{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":65000}]`},
		{"envelope", `{"success":true,"coins":[{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":65000}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})
			coins, err := c.ListCoins(context.Background())
			if err != nil {
				t.Fatalf("ListCoins failed: %v", err)
			}
			if len(coins) != 1 || coins[0].CoinID != "bitcoin" || coins[0].CurrentPrice != 65000 {
				t.Errorf("unexpected coins %+v", coins)
			}
		})
	}
}

func TestWatchlistRemove(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/watchlist/remove" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["user_id"] != "42" || body["coin_id"] != "ethereum" {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = io.WriteString(w, `{"success":true}`)
	})

	if err := c.RemoveFromWatchlist(context.Background(), "42", "ethereum"); err != nil {
		t.Fatalf("RemoveFromWatchlist failed: %v", err)
	}
}

func TestDeleteAlert(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/alerts/9" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" || r.Header.Get("X-Request-ID") == "" {
			t.Errorf("unexpected headers %v", r.Header)
		}
		_, _ = io.WriteString(w, `{"success":true}`)
	})

	if err := c.DeleteAlert(context.Background(), "9"); err != nil {
		t.Fatalf("DeleteAlert failed: %v", err)
	}
}

func TestDeleteAlertNotFound(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"success":false,"message":"Alert not found"}`)
	})

	err := c.DeleteAlert(context.Background(), "404")
	if !errors.Is(err, ErrUnsuccessful) {
		t.Fatalf("expected ErrUnsuccessful, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Message != "Alert not found" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestCreateAlertFallsBackToRequest(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"alert":{"id":9}}`)
	})

	a, err := c.CreateAlert(context.Background(), port.NewAlert{
		UserID:      "42",
		CoinID:      "bitcoin",
		CoinSymbol:  "BTC",
		TargetPrice: decimal.NewFromInt(70000),
		Condition:   domain.ConditionAbove,
	})
	if err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}
	if a.ID != "9" || a.CoinID != "bitcoin" || a.Condition != domain.ConditionAbove {
		t.Errorf("unexpected alert %+v", a)
	}
}
