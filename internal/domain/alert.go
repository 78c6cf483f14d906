package domain

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ID is a backend identifier that may arrive as a JSON string or number.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

type AlertCondition string

const (
	ConditionAbove AlertCondition = "above"
	ConditionBelow AlertCondition = "below"
)

// ParseCondition accepts the condition spellings used by the backend and forms.
func ParseCondition(s string) (AlertCondition, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "above", "up", ">=", "gte":
		return ConditionAbove, true
	case "below", "down", "<=", "lte":
		return ConditionBelow, true
	}
	return "", false
}

// Alert is a stored price alert.
type Alert struct {
	ID          ID              `json:"id"`
	UserID      ID              `json:"user_id"`
	CoinID      string          `json:"coin_id"`
	CoinSymbol  string          `json:"coin_symbol"`
	TargetPrice decimal.Decimal `json:"target_price"`
	Condition   AlertCondition  `json:"condition"`
	IsActive    *bool           `json:"is_active,omitempty"`
	Triggered   bool            `json:"is_triggered"`
}

// Active reports whether the alert still waits for its condition.
func (a Alert) Active() bool {
	if a.Triggered {
		return false
	}
	return a.IsActive == nil || *a.IsActive
}

// IsMet compares a live price with the target. The backend decides whether
// the alert actually fires.
func (a Alert) IsMet(price float64) bool {
	if !a.Active() || !finite(price) {
		return false
	}
	p := decimal.NewFromFloat(price)
	switch a.Condition {
	case ConditionAbove:
		return p.GreaterThanOrEqual(a.TargetPrice)
	case ConditionBelow:
		return p.LessThanOrEqual(a.TargetPrice)
	default:
		return false
	}
}

// TriggeredAlert is an alert the backend confirmed as fired.
type TriggeredAlert struct {
	Alert
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// AlertCoinIDs returns the distinct coin ids of the active alerts, in order.
func AlertCoinIDs(alerts []Alert) []string {
	seen := make(map[string]struct{}, len(alerts))
	out := make([]string, 0, len(alerts))
	for _, a := range alerts {
		if !a.Active() || a.CoinID == "" {
			continue
		}
		if _, ok := seen[a.CoinID]; ok {
			continue
		}
		seen[a.CoinID] = struct{}{}
		out = append(out, a.CoinID)
	}
	return out
}

// WatchlistItem is one coin on a user's watchlist.
type WatchlistItem struct {
	CoinID string `json:"coin_id"`
	Symbol string `json:"coin_symbol"`
	Name   string `json:"coin_name"`
}
