package domain

import (
	"strings"
	"sync"
)

// LivePrices is one consumer's private live price map. It only accepts ticks
// for coins of the subscription it was last reset to.
type LivePrices struct {
	mu      sync.RWMutex
	allowed map[string]struct{}
	prices  PriceMap
}

func NewLivePrices(coinIDs []string) *LivePrices {
	lp := &LivePrices{}
	lp.Reset(coinIDs)
	return lp
}

// Reset discards every price and switches to a new subscription set.
func (lp *LivePrices) Reset(coinIDs []string) {
	allowed := make(map[string]struct{}, len(coinIDs))
	for _, id := range coinIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		allowed[id] = struct{}{}
	}

	lp.mu.Lock()
	lp.allowed = allowed
	lp.prices = make(PriceMap, len(allowed))
	lp.mu.Unlock()
}

// Apply merges t and reports whether the visible price changed.
func (lp *LivePrices) Apply(t Tick) bool {
	if !t.Valid() {
		return false
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()

	if _, ok := lp.allowed[t.CoinID]; !ok {
		return false
	}
	old, had := lp.prices[t.CoinID]
	lp.prices = Merge(lp.prices, t)
	if !had || !old.Live {
		return true
	}
	return old.CurrentPrice != t.Price || old.PercentChange24h != t.PercentChange24h
}

// Seed stores a fetched (non-live) price. A live entry keeps its price and
// only takes the descriptive fields.
func (lp *LivePrices) Seed(p CoinPrice) {
	if p.CoinID == "" {
		return
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()

	if lp.prices == nil {
		lp.prices = make(PriceMap)
	}
	if old, ok := lp.prices[p.CoinID]; ok && old.Live {
		old.Symbol = p.Symbol
		old.Name = p.Name
		lp.prices[p.CoinID] = old
		return
	}
	p.Live = false
	p.Direction = DirectionSame
	lp.prices[p.CoinID] = p
}

func (lp *LivePrices) Get(coinID string) (CoinPrice, bool) {
	lp.mu.RLock()
	defer lp.mu.RUnlock()
	p, ok := lp.prices[coinID]
	return p, ok
}

// LivePrice returns the price only when it came from the stream.
func (lp *LivePrices) LivePrice(coinID string) (float64, bool) {
	p, ok := lp.Get(coinID)
	if !ok || !p.Live {
		return 0, false
	}
	return p.CurrentPrice, true
}

// CurrentPrices returns the live prices known for ids. Coins without a live
// price are left out.
func (lp *LivePrices) CurrentPrices(ids []string) map[string]float64 {
	lp.mu.RLock()
	defer lp.mu.RUnlock()

	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		if p, ok := lp.prices[id]; ok && p.Live {
			out[id] = p.CurrentPrice
		}
	}
	return out
}

func (lp *LivePrices) Snapshot() PriceMap {
	lp.mu.RLock()
	defer lp.mu.RUnlock()

	out := make(PriceMap, len(lp.prices))
	for k, v := range lp.prices {
		out[k] = v
	}
	return out
}

func (lp *LivePrices) Len() int {
	lp.mu.RLock()
	defer lp.mu.RUnlock()
	return len(lp.prices)
}

// SameIDs reports whether a and b hold the same set of coin ids, ignoring
// order and duplicates.
func SameIDs(a, b []string) bool {
	sa := make(map[string]struct{}, len(a))
	for _, id := range a {
		sa[id] = struct{}{}
	}
	sb := make(map[string]struct{}, len(b))
	for _, id := range b {
		if _, ok := sa[id]; !ok {
			return false
		}
		sb[id] = struct{}{}
	}
	return len(sa) == len(sb)
}
