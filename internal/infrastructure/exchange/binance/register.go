package binance

import (
	"nexchain/internal/application/port"
	"nexchain/internal/infrastructure/pricefeed"
)

// init() registers the Binance ticker feed so the composition root
// can pick it by name.
func init() {
	pricefeed.Register(pricefeed.Binance, func(opts pricefeed.Options) port.PriceFeed {
		return NewTickerFeed(opts)
	})
}
