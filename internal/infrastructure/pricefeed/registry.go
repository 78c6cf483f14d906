package pricefeed

import (
	"sort"

	"nexchain/internal/application/port"
	"nexchain/internal/infrastructure/exchange"

	"github.com/rs/zerolog/log"
)

// Binance is the registry name of the Binance ticker feed.
const Binance = "BINANCE"

// Options 构造 price feed 所需的参数
type Options struct {
	WsURL     string
	Mapper    *exchange.Mapper
	Reconnect bool
}

// Factory builds a price feed from Options.
type Factory func(opts Options) port.PriceFeed

// registry maps feed names to their factories
var registry = make(map[string]Factory)

// Register 由各个交易所包的 init() 调用来自注册
func Register(name string, factory Factory) {
	if factory == nil {
		log.Warn().Str("feed", name).Msg("invalid price feed factory")
		return
	}
	if _, exists := registry[name]; exists {
		log.Warn().Str("feed", name).Msg("price feed factory already registered, overwriting")
	}
	registry[name] = factory
	log.Debug().Str("feed", name).Msg("price feed factory registered")
}

func Get(name string) (Factory, bool) {
	factory, ok := registry[name]
	return factory, ok
}

// Names lists registered feeds, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
