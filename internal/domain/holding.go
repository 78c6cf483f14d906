package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Holding is a user's aggregate position in one coin.
type Holding struct {
	CoinID              string  `json:"coin_id"`
	Symbol              string  `json:"coin_symbol"`
	Name                string  `json:"coin_name"`
	TotalQuantity       float64 `json:"total_quantity"`
	AveragePrice        float64 `json:"average_price"`
	RemainingInvestment float64 `json:"remaining_investment"`
}

// HoldingsSummary is derived from a holding and a current price; never stored.
type HoldingsSummary struct {
	CoinID               string
	TotalQuantity        float64
	AveragePrice         float64
	RemainingInvestment  float64
	CurrentPrice         float64
	CurrentValue         float64
	ProfitLoss           float64
	ProfitLossPercentage float64
}

func Summarize(h Holding, currentPrice float64) HoldingsSummary {
	value := h.TotalQuantity * currentPrice
	pl := value - h.RemainingInvestment
	pct := 0.0
	if h.RemainingInvestment > 0 {
		pct = pl / h.RemainingInvestment * 100
	}
	return HoldingsSummary{
		CoinID:               h.CoinID,
		TotalQuantity:        h.TotalQuantity,
		AveragePrice:         h.AveragePrice,
		RemainingInvestment:  h.RemainingInvestment,
		CurrentPrice:         currentPrice,
		CurrentValue:         value,
		ProfitLoss:           pl,
		ProfitLossPercentage: pct,
	}
}

// field aliases seen in backend payloads, in priority order
var (
	coinIDKeys     = []string{"coin_id", "coinId", "id"}
	symbolKeys     = []string{"coin_symbol", "coinSymbol", "symbol"}
	nameKeys       = []string{"coin_name", "coinName", "name"}
	quantityKeys   = []string{"total_quantity", "totalQuantity", "quantity"}
	avgPriceKeys   = []string{"average_price", "averagePrice", "avg_price", "avg_buy_price", "avgBuyPrice"}
	investmentKeys = []string{"remaining_investment", "remainingInvestment", "total_invested", "totalInvested", "total_cost"}
)

// NormalizeHolding maps any backend holding shape onto Holding. It fails only
// when no coin id is present.
func NormalizeHolding(raw map[string]any) (Holding, bool) {
	id := stringField(raw, coinIDKeys)
	if id == "" {
		return Holding{}, false
	}
	h := Holding{
		CoinID: id,
		Symbol: strings.ToLower(stringField(raw, symbolKeys)),
		Name:   stringField(raw, nameKeys),
	}
	h.TotalQuantity, _ = numberField(raw, quantityKeys)
	h.AveragePrice, _ = numberField(raw, avgPriceKeys)
	if inv, ok := numberField(raw, investmentKeys); ok {
		h.RemainingInvestment = inv
	} else {
		h.RemainingInvestment = h.TotalQuantity * h.AveragePrice
	}
	return h, true
}

// NormalizeHoldings drops entries without a coin id and merges duplicates.
func NormalizeHoldings(raw []map[string]any) []Holding {
	out := make([]Holding, 0, len(raw))
	idx := make(map[string]int, len(raw))
	for _, r := range raw {
		h, ok := NormalizeHolding(r)
		if !ok {
			continue
		}
		if i, seen := idx[h.CoinID]; seen {
			prev := &out[i]
			prev.TotalQuantity += h.TotalQuantity
			prev.RemainingInvestment += h.RemainingInvestment
			if prev.TotalQuantity > 0 {
				prev.AveragePrice = prev.RemainingInvestment / prev.TotalQuantity
			}
			continue
		}
		idx[h.CoinID] = len(out)
		out = append(out, h)
	}
	return out
}

func stringField(raw map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func numberField(raw map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
