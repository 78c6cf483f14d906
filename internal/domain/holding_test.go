package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSummarize(t *testing.T) {
	s := Summarize(Holding{CoinID: "bitcoin", TotalQuantity: 2, RemainingInvestment: 200}, 150)
	if s.CurrentValue != 300 {
		t.Errorf("expected current value 300, got %v", s.CurrentValue)
	}
	if s.ProfitLoss != 100 {
		t.Errorf("expected profit 100, got %v", s.ProfitLoss)
	}
	if s.ProfitLossPercentage != 50.0 {
		t.Errorf("expected 50%%, got %v", s.ProfitLossPercentage)
	}

	zero := Summarize(Holding{CoinID: "bitcoin", TotalQuantity: 1}, 10)
	if zero.ProfitLossPercentage != 0 {
		t.Errorf("no investment: expected 0%%, got %v", zero.ProfitLossPercentage)
	}
}

func TestNormalizeHoldingsShapes(t *testing.T) {
	payload := `[
		{"coin_id":"bitcoin","coin_symbol":"BTC","total_quantity":"0.5","average_price":60000,"remaining_investment":30000},
		{"coinId":"ethereum","symbol":"eth","totalQuantity":2,"averagePrice":"3000"},
		{"id":"solana","quantity":10,"avg_buy_price":100,"total_invested":900},
		{"symbol":"nocoin","quantity":1},
		{"coin_id":"bitcoin","quantity":0.5,"average_price":62000,"remaining_investment":31000}
	]`
	var raw []map[string]any
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}

	hs := NormalizeHoldings(raw)
	if len(hs) != 3 {
		t.Fatalf("expected 3 holdings, got %d: %+v", len(hs), hs)
	}

	btc := hs[0]
	if btc.CoinID != "bitcoin" || btc.Symbol != "btc" || btc.TotalQuantity != 1 || btc.RemainingInvestment != 61000 {
		t.Errorf("unexpected bitcoin holding: %+v", btc)
	}
	if btc.AveragePrice != 61000 {
		t.Errorf("expected merged average 61000, got %v", btc.AveragePrice)
	}

	eth := hs[1]
	if eth.CoinID != "ethereum" || eth.TotalQuantity != 2 || eth.RemainingInvestment != 6000 {
		t.Errorf("missing investment should be quantity*average: %+v", eth)
	}

	sol := hs[2]
	if sol.CoinID != "solana" || sol.AveragePrice != 100 || sol.RemainingInvestment != 900 {
		t.Errorf("unexpected solana holding: %+v", sol)
	}
}

func TestAlertIsMet(t *testing.T) {
	var a Alert
	if err := json.Unmarshal([]byte(`{"id":7,"coin_id":"bitcoin","target_price":"65000","condition":"above"}`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a.ID != "7" {
		t.Errorf("expected numeric id decoded as \"7\", got %q", a.ID)
	}
	if !a.IsMet(65000) || !a.IsMet(70000) || a.IsMet(64999.99) {
		t.Errorf("above condition evaluated incorrectly")
	}

	a.Condition = ConditionBelow
	if !a.IsMet(64000) || a.IsMet(65000.01) {
		t.Errorf("below condition evaluated incorrectly")
	}

	a.Triggered = true
	if a.IsMet(1) {
		t.Errorf("triggered alert must not be met again")
	}
}

func TestAlertCoinIDs(t *testing.T) {
	inactive := false
	alerts := []Alert{
		{CoinID: "bitcoin"},
		{CoinID: "ethereum"},
		{CoinID: "bitcoin"},
		{CoinID: "solana", IsActive: &inactive},
		{CoinID: "dogecoin", Triggered: true},
	}
	got := AlertCoinIDs(alerts)
	if len(got) != 2 || got[0] != "bitcoin" || got[1] != "ethereum" {
		t.Errorf("expected [bitcoin ethereum], got %v", got)
	}
}
