package exchange

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultQuote is the quote asset every live channel is priced in.
const DefaultQuote = "usdt"

// tickerSuffix selects the 24h rolling ticker stream.
const tickerSuffix = "@ticker"

// defaultTable maps coin ids to exchange base assets.
var defaultTable = map[string]string{
	"bitcoin":       "btc",
	"ethereum":      "eth",
	"binancecoin":   "bnb",
	"solana":        "sol",
	"ripple":        "xrp",
	"cardano":       "ada",
	"dogecoin":      "doge",
	"polkadot":      "dot",
	"tron":          "trx",
	"avalanche-2":   "avax",
	"chainlink":     "link",
	"matic-network": "matic",
	"litecoin":      "ltc",
	"shiba-inu":     "shib",
	"uniswap":       "uni",
	"stellar":       "xlm",
	"cosmos":        "atom",
	"near":          "near",
	"aptos":         "apt",
	"arbitrum":      "arb",
}

// Mapper converts between coin ids ("bitcoin") and exchange symbols
// ("btcusdt"). Lookups are pure; a miss means the coin has no live feed.
type Mapper struct {
	quote  string
	toSym  map[string]string // coin id -> exchange symbol
	toCoin map[string]string // exchange symbol -> coin id
}

// NewMapper builds a mapper over the default table.
func NewMapper(quote string) *Mapper {
	q := strings.ToLower(strings.TrimSpace(quote))
	if q == "" {
		q = DefaultQuote
	}
	m := &Mapper{
		quote:  q,
		toSym:  make(map[string]string, len(defaultTable)),
		toCoin: make(map[string]string, len(defaultTable)),
	}
	for id, base := range defaultTable {
		m.add(id, base)
	}
	return m
}

// WithExtra adds or overrides coin id -> base asset entries.
func (m *Mapper) WithExtra(extra map[string]string) *Mapper {
	for id, base := range extra {
		m.add(id, base)
	}
	return m
}

func (m *Mapper) add(coinID, base string) {
	id := strings.TrimSpace(coinID)
	b := strings.ToLower(strings.TrimSpace(base))
	if id == "" || b == "" {
		return
	}
	if old, ok := m.toSym[id]; ok {
		delete(m.toCoin, old)
	}
	sym := b + m.quote
	m.toSym[id] = sym
	m.toCoin[sym] = id
}

func (m *Mapper) Quote() string { return m.quote }

// ToExchangeSymbol: bitcoin -> btcusdt
func (m *Mapper) ToExchangeSymbol(coinID string) (string, bool) {
	sym, ok := m.toSym[strings.TrimSpace(coinID)]
	return sym, ok
}

// ToCoinID: btcusdt / BTCUSDT -> bitcoin
func (m *Mapper) ToCoinID(symbol string) (string, bool) {
	id, ok := m.toCoin[strings.ToLower(strings.TrimSpace(symbol))]
	return id, ok
}

// Channel: bitcoin -> btcusdt@ticker
func (m *Mapper) Channel(coinID string) (string, bool) {
	sym, ok := m.ToExchangeSymbol(coinID)
	if !ok {
		return "", false
	}
	return sym + tickerSuffix, true
}

// CoinIDFromStream resolves a stream name such as "btcusdt@ticker".
func (m *Mapper) CoinIDFromStream(stream string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(stream))
	sym, ok := strings.CutSuffix(s, tickerSuffix)
	if !ok {
		return "", false
	}
	return m.ToCoinID(sym)
}

// Channels builds the channel list for coinIDs in input order. Unmapped ids
// and duplicates are left out.
func (m *Mapper) Channels(coinIDs []string) []string {
	out := make([]string, 0, len(coinIDs))
	seen := make(map[string]struct{}, len(coinIDs))
	for _, id := range coinIDs {
		ch, ok := m.Channel(id)
		if !ok {
			continue
		}
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	return out
}

// MappedIDs returns the ids of coinIDs that have a live feed.
func (m *Mapper) MappedIDs(coinIDs []string) []string {
	out := make([]string, 0, len(coinIDs))
	seen := make(map[string]struct{}, len(coinIDs))
	for _, id := range coinIDs {
		id = strings.TrimSpace(id)
		if _, ok := m.toSym[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type tableFile struct {
	Coins []struct {
		ID     string `yaml:"id"`
		Symbol string `yaml:"symbol"`
	} `yaml:"coins"`
}

// LoadTable reads extra coin id -> base asset entries from a YAML file:
//
//	coins:
//	  - id: pepe
//	    symbol: pepe
func LoadTable(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tf tableFile
	if err := yaml.Unmarshal(b, &tf); err != nil {
		return nil, fmt.Errorf("parse symbol table %s: %w", path, err)
	}

	out := make(map[string]string, len(tf.Coins))
	for _, c := range tf.Coins {
		id := strings.TrimSpace(c.ID)
		sym := strings.ToLower(strings.TrimSpace(c.Symbol))
		if id == "" || sym == "" {
			continue
		}
		out[id] = sym
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no coins found in symbol table %s", path)
	}
	return out, nil
}
