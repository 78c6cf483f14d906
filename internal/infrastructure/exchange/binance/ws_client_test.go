package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nexchain/internal/domain"
	"nexchain/internal/infrastructure/exchange"
	"nexchain/internal/infrastructure/pricefeed"

	"github.com/gorilla/websocket"
)

func createMockWSServer(t *testing.T, handler func(*http.Request, *websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(r, conn)
	}))
}

func httpToWS(url string) string {
	return strings.Replace(url, "http://", "ws://", 1)
}

func newFeed(url string) *TickerFeed {
	return NewTickerFeed(pricefeed.Options{WsURL: url, Mapper: exchange.NewMapper(exchange.DefaultQuote)})
}

func TestBuildCombinedURL(t *testing.T) {
	got, err := buildCombinedURL("wss://stream.binance.com:9443", []string{"btcusdt@ticker", "ethusdt@ticker"})
	if err != nil {
		t.Fatalf("buildCombinedURL failed: %v", err)
	}
	want := "wss://stream.binance.com:9443/stream?streams=btcusdt@ticker/ethusdt@ticker"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	if _, err := buildCombinedURL("", []string{"btcusdt@ticker"}); err == nil {
		t.Errorf("expected error for empty base url")
	}
}

func TestSubscribeDeliversMappedTicks(t *testing.T) {
	gotQuery := make(chan string, 1)
	start := make(chan struct{})
	release := make(chan struct{})
	server := createMockWSServer(t, func(r *http.Request, conn *websocket.Conn) {
		gotQuery <- r.URL.Path + "?" + r.URL.RawQuery
		<-start
		msgs := []string{
			`{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","E":1700000000000,"s":"BTCUSDT","c":"65000.10","C":1700000000000,"P":"2.50","p":"1585.00"}}`,
			`not json`,
			`{"stream":"solusdt@ticker","data":{"E":1,"c":"150","P":"1","p":"1"}}`,
			`{"stream":"ethusdt@ticker","data":{"c":"abc","P":"1","p":"1"}}`,
			`{"stream":"ethusdt@ticker","data":{"e":"24hrTicker","E":1700000000500,"c":"3200","P":"-1.25","p":"-40.5"}}`,
		}
		for _, m := range msgs {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(m))
		}
		<-release
	})
	defer server.Close()
	defer close(release)

	sub, err := newFeed(httpToWS(server.URL)).Subscribe(context.Background(), []string{"bitcoin", "ethereum", "unknown-coin"})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	ticks := make(chan domain.Tick, 8)
	sub.OnTick(func(t domain.Tick) { ticks <- t })

	if ch := sub.Channels(); len(ch) != 2 {
		t.Fatalf("expected 2 channels, got %v", ch)
	}

	select {
	case q := <-gotQuery:
		if q != "/stream?streams=btcusdt@ticker/ethusdt@ticker" {
			t.Errorf("unexpected request %s", q)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw a connection")
	}
	close(start)

	var got []domain.Tick
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case tk := <-ticks:
			got = append(got, tk)
		case <-timeout:
			t.Fatalf("expected 2 ticks, got %d: %+v", len(got), got)
		}
	}

	if got[0].CoinID != "bitcoin" || got[0].Price != 65000.10 || got[0].PercentChange24h != 2.5 || got[0].AbsoluteChange24h != 1585 {
		t.Errorf("unexpected bitcoin tick %+v", got[0])
	}
	if got[0].Ts != 1700000000000 {
		t.Errorf("expected event time as timestamp, got %d", got[0].Ts)
	}
	if got[1].CoinID != "ethereum" || got[1].Price != 3200 || got[1].PercentChange24h != -1.25 {
		t.Errorf("unexpected ethereum tick %+v", got[1])
	}

	select {
	case tk := <-ticks:
		t.Errorf("unexpected extra tick %+v", tk)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	release := make(chan struct{})
	server := createMockWSServer(t, func(r *http.Request, conn *websocket.Conn) {
		tk := time.NewTicker(5 * time.Millisecond)
		defer tk.Stop()
		for {
			select {
			case <-release:
				return
			case <-tk.C:
				msg := `{"stream":"btcusdt@ticker","data":{"E":1,"c":"100","P":"0","p":"0"}}`
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return
				}
			}
		}
	})
	defer server.Close()
	defer close(release)

	sub, err := newFeed(httpToWS(server.URL)).Subscribe(context.Background(), []string{"bitcoin"})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	var count int32
	first := make(chan struct{}, 1)
	sub.OnTick(func(domain.Tick) {
		atomic.AddInt32(&count, 1)
		select {
		case first <- struct{}{}:
		default:
		}
	})

	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick before close")
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	after := atomic.LoadInt32(&count)
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&count); n != after {
		t.Errorf("callback invoked after Close: %d -> %d", after, n)
	}

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Error("subscription did not finish after Close")
	}
}

func TestDispatchAfterCloseIsDropped(t *testing.T) {
	var called int32
	s := &subscription{
		feed:    pricefeed.Binance,
		mapper:  exchange.NewMapper(exchange.DefaultQuote),
		allowed: map[string]struct{}{"bitcoin": {}},
		done:    make(chan struct{}),
	}
	s.OnTick(func(domain.Tick) { atomic.AddInt32(&called, 1) })

	msg := []byte(`{"stream":"btcusdt@ticker","data":{"c":"1","P":"0","p":"0"}}`)
	s.dispatch(msg)
	_ = s.Close()
	s.dispatch(msg)

	if called != 1 {
		t.Errorf("expected exactly one delivery, got %d", called)
	}
}

func TestSubscribeWithoutMappedCoins(t *testing.T) {
	sub, err := newFeed("ws://127.0.0.1:1").Subscribe(context.Background(), []string{"unknown-coin"})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if len(sub.Channels()) != 0 {
		t.Errorf("expected no channels, got %v", sub.Channels())
	}
	select {
	case <-sub.Done():
	default:
		t.Error("idle subscription should be done")
	}
	if err := sub.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestRegistered(t *testing.T) {
	f, ok := pricefeed.Get(pricefeed.Binance)
	if !ok {
		t.Fatal("binance feed not registered")
	}
	if f(pricefeed.Options{WsURL: "wss://example"}).Name() != pricefeed.Binance {
		t.Error("unexpected feed name")
	}
}
