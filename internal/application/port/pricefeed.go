package port

import (
	"context"

	"nexchain/internal/domain"
)

// Subscription is one consumer's live connection to a price stream.
type Subscription interface {
	// OnTick registers the callback invoked once per parsed inbound message,
	// in arrival order. It must not call Close.
	OnTick(fn func(domain.Tick))
	// Close ends the connection. It is idempotent and synchronous: once it
	// returns, no callback runs again.
	Close() error
	// Channels lists the subscribed stream channels (empty for a no-op subscription).
	Channels() []string
	// Done is closed when the connection has stopped producing ticks.
	Done() <-chan struct{}
}

type PriceFeed interface {
	Name() string
	// Subscribe opens a connection for the mapped subset of coinIDs. When none
	// map to a symbol no connection is opened.
	Subscribe(ctx context.Context, coinIDs []string) (Subscription, error)
}
