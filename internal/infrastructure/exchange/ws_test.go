package exchange

import (
	"context"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	b := &Backoff{Min: time.Second, Max: 5 * time.Second}
	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, b.Next())
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	b.Reset()
	if d := b.Next(); d != time.Second {
		t.Errorf("expected reset to Min, got %v", d)
	}
}

func TestSleepCtxCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if SleepCtx(ctx, time.Hour) {
		t.Errorf("expected false for a cancelled context")
	}
	if !SleepCtx(context.Background(), time.Millisecond) {
		t.Errorf("expected true after the delay")
	}
}

func TestBuildQueryURL(t *testing.T) {
	got, err := BuildQueryURL("wss://stream.binance.com:9443/", "/stream", "streams=btcusdt@ticker")
	if err != nil {
		t.Fatalf("BuildQueryURL failed: %v", err)
	}
	if got != "wss://stream.binance.com:9443/stream?streams=btcusdt@ticker" {
		t.Errorf("unexpected url %s", got)
	}
	if _, err := BuildQueryURL(" ", "/stream", ""); err == nil {
		t.Errorf("expected an error for an empty base")
	}
}
