package domain

import "math"

// Direction represents the price movement direction
type Direction int

const (
	DirectionSame Direction = 0
	DirectionUp   Direction = +1
	DirectionDown Direction = -1
)

// CoinPrice is the latest known market price for one coin.
type CoinPrice struct {
	CoinID            string  `json:"id"`
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	CurrentPrice      float64 `json:"current_price"`
	PercentChange24h  float64 `json:"price_change_percentage_24h"`
	AbsoluteChange24h float64 `json:"price_change_24h"`

	Direction Direction `json:"-"`
	Live      bool      `json:"-"` // set once a stream tick has been merged
	UpdatedAt int64     `json:"-"` // unix ms
}

// Tick is one inbound streaming price update, already resolved to a coin id.
type Tick struct {
	CoinID            string
	Symbol            string // exchange symbol, e.g. "btcusdt"
	Price             float64
	PercentChange24h  float64
	AbsoluteChange24h float64
	Ts                int64 // unix ms
}

// Valid reports whether the tick carries a usable price for a coin.
func (t Tick) Valid() bool {
	return t.CoinID != "" && t.Price >= 0 && !math.IsNaN(t.Price) && !math.IsInf(t.Price, 0)
}

// PriceMap is a live price map keyed by coin id.
type PriceMap map[string]CoinPrice

// Merge stores t under t.CoinID and returns the map. Like append, the map
// passed in is updated in place and must be replaced by the result; a nil map
// is allocated. Only the tick's own key is written, every other entry is left
// exactly as it was. Invalid ticks return prev unchanged.
func Merge(prev PriceMap, t Tick) PriceMap {
	if !t.Valid() {
		return prev
	}
	if prev == nil {
		prev = make(PriceMap, 1)
	}

	next := CoinPrice{
		CoinID:            t.CoinID,
		CurrentPrice:      t.Price,
		PercentChange24h:  t.PercentChange24h,
		AbsoluteChange24h: t.AbsoluteChange24h,
		Direction:         DirectionSame,
		Live:              true,
		UpdatedAt:         t.Ts,
	}
	if old, ok := prev[t.CoinID]; ok {
		next.Symbol = old.Symbol
		next.Name = old.Name
		switch {
		case t.Price > old.CurrentPrice:
			next.Direction = DirectionUp
		case t.Price < old.CurrentPrice:
			next.Direction = DirectionDown
		}
	}
	prev[t.CoinID] = next
	return prev
}
