package binance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nexchain/internal/application/port"
	"nexchain/internal/domain"
	"nexchain/internal/infrastructure/exchange"
	"nexchain/internal/infrastructure/pricefeed"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// TickerFeed opens one combined 24h ticker stream per subscription.
type TickerFeed struct {
	wsURL     string // e.g. wss://stream.binance.com:9443
	mapper    *exchange.Mapper
	reconnect bool
	dialer    *websocket.Dialer
}

func NewTickerFeed(opts pricefeed.Options) *TickerFeed {
	mapper := opts.Mapper
	if mapper == nil {
		mapper = exchange.NewMapper(exchange.DefaultQuote)
	}
	return &TickerFeed{
		wsURL:     strings.TrimSpace(opts.WsURL),
		mapper:    mapper,
		reconnect: opts.Reconnect,
		// no handshake timeout: the connection has no connect deadline
		dialer: &websocket.Dialer{Proxy: http.ProxyFromEnvironment},
	}
}

func (f *TickerFeed) Name() string { return pricefeed.Binance }

type tickerCombined struct {
	Stream string      `json:"stream"`
	Data   *tickerData `json:"data"`
}

// Keys differing only in case ("c"/"C", "e"/"E", "p"/"P") are all declared
// so encoding/json never folds one onto the other.
type tickerData struct {
	EventType     string `json:"e"`
	EventTime     int64  `json:"E"`
	Symbol        string `json:"s"`
	Close         string `json:"c"`
	CloseTime     int64  `json:"C"`
	PercentChange string `json:"P"`
	PriceChange   string `json:"p"`
}

func (f *TickerFeed) Subscribe(ctx context.Context, coinIDs []string) (port.Subscription, error) {
	channels := f.mapper.Channels(coinIDs)
	if len(channels) == 0 {
		log.Debug().Str("feed", f.Name()).Int("coins", len(coinIDs)).Msg("no mapped symbols, feed not opened")
		return newIdleSubscription(), nil
	}

	wsURL, err := buildCombinedURL(f.wsURL, channels)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]struct{}, len(channels))
	for _, id := range f.mapper.MappedIDs(coinIDs) {
		allowed[id] = struct{}{}
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &subscription{
		feed:      f.Name(),
		mapper:    f.mapper,
		channels:  channels,
		allowed:   allowed,
		reconnect: f.reconnect,
		dialer:    f.dialer,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.run(sctx, wsURL)
	return s, nil
}

func buildCombinedURL(base string, channels []string) (string, error) {
	if len(channels) == 0 {
		return "", errors.New("channels empty")
	}
	return exchange.BuildQueryURL(base, "/stream", "streams="+strings.Join(channels, "/"))
}

type subscription struct {
	feed      string
	mapper    *exchange.Mapper
	channels  []string
	allowed   map[string]struct{}
	reconnect bool
	dialer    *websocket.Dialer
	cancel    context.CancelFunc
	done      chan struct{}

	// mu serializes callbacks against Close
	mu     sync.Mutex
	cb     func(domain.Tick)
	conn   *websocket.Conn
	closed bool
}

func newIdleSubscription() *subscription {
	done := make(chan struct{})
	close(done)
	return &subscription{done: done, closed: true}
}

func (s *subscription) OnTick(fn func(domain.Tick)) {
	s.mu.Lock()
	s.cb = fn
	s.mu.Unlock()
}

func (s *subscription) Channels() []string {
	return append([]string(nil), s.channels...)
}

func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}
	log.Debug().Str("feed", s.feed).Int("channels", len(s.channels)).Msg("ws subscription closed")
	return nil
}

func (s *subscription) attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	return true
}

func (s *subscription) detach(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
}

func (s *subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// dispatch delivers one inbound message. Messages arriving after Close are dropped.
func (s *subscription) dispatch(b []byte) {
	t, ok := s.parse(b)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.cb == nil {
		return
	}
	s.cb(t)
}

func (s *subscription) parse(b []byte) (domain.Tick, bool) {
	var msg tickerCombined
	if err := json.Unmarshal(b, &msg); err != nil {
		log.Debug().Str("feed", s.feed).Err(err).Msg("malformed tick dropped")
		return domain.Tick{}, false
	}
	if msg.Data == nil || msg.Stream == "" {
		return domain.Tick{}, false
	}

	coinID, ok := s.mapper.CoinIDFromStream(msg.Stream)
	if !ok {
		return domain.Tick{}, false
	}
	if _, ok := s.allowed[coinID]; !ok {
		return domain.Tick{}, false
	}

	price, err1 := strconv.ParseFloat(strings.TrimSpace(msg.Data.Close), 64)
	pct, err2 := strconv.ParseFloat(strings.TrimSpace(msg.Data.PercentChange), 64)
	abs, err3 := strconv.ParseFloat(strings.TrimSpace(msg.Data.PriceChange), 64)
	if err := errors.Join(err1, err2, err3); err != nil {
		log.Debug().Str("feed", s.feed).Str("stream", msg.Stream).Err(err).Msg("malformed tick dropped")
		return domain.Tick{}, false
	}

	ts := msg.Data.EventTime
	if ts <= 0 {
		ts = time.Now().UnixMilli()
	}
	t := domain.Tick{
		CoinID:            coinID,
		Symbol:            strings.TrimSuffix(strings.ToLower(msg.Stream), "@ticker"),
		Price:             price,
		PercentChange24h:  pct,
		AbsoluteChange24h: abs,
		Ts:                ts,
	}
	if !t.Valid() {
		return domain.Tick{}, false
	}
	return t, true
}

func (s *subscription) run(ctx context.Context, wsURL string) {
	defer close(s.done)
	defer s.Close()

	backoff := exchange.NewBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		log.Info().Str("feed", s.feed).Int("channels", len(s.channels)).Msg("ws connecting")
		conn, _, err := s.dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			log.Error().Str("feed", s.feed).Err(err).Msg("ws dial failed")
			if !s.reconnect || !exchange.SleepCtx(ctx, backoff.Next()) {
				return
			}
			continue
		}
		if !s.attach(conn) {
			_ = conn.Close()
			return
		}

		backoff.Reset()
		log.Info().Str("feed", s.feed).Msg("ws connected")

		err = exchange.ReadWithPing(ctx, conn, s.dispatch)
		s.detach(conn)
		_ = conn.Close()

		if ctx.Err() != nil || s.isClosed() {
			return
		}

		if !s.reconnect {
			log.Warn().Str("feed", s.feed).Err(err).Msg("ws disconnected, feed stopped")
			return
		}
		log.Warn().Str("feed", s.feed).Err(err).Msg("ws disconnected, reconnecting")
		if !exchange.SleepCtx(ctx, backoff.Next()) {
			return
		}
	}
}
