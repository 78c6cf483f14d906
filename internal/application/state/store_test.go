package state

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nexchain/internal/domain"
)

func recv(t *testing.T, ch <-chan Slice) Slice {
	t.Helper()
	select {
	case sl := <-ch:
		return sl
	case <-time.After(time.Second):
		t.Fatal("no change notification")
		return -1
	}
}

func TestStoreUserLifecycle(t *testing.T) {
	s := NewStore()
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.SetUser("42")
	if got := recv(t, ch); got != SliceUser {
		t.Fatalf("expected user change, got %v", got)
	}
	s.SetBalance(decimal.NewFromInt(1000))
	if got := recv(t, ch); got != SliceWallet {
		t.Fatalf("expected wallet change, got %v", got)
	}
	s.SetHoldings([]domain.Holding{{CoinID: "bitcoin", TotalQuantity: 5}})
	recv(t, ch)

	if h, ok := s.Holding("bitcoin"); !ok || h.TotalQuantity != 5 {
		t.Errorf("unexpected holding %+v", h)
	}

	s.Logout()
	if got := recv(t, ch); got != SliceUser {
		t.Errorf("expected user change on logout, got %v", got)
	}
	if s.User().LoggedIn || s.Wallet().Loaded || len(s.Portfolio().Holdings) != 0 {
		t.Errorf("logout must clear user, wallet and portfolio")
	}
}

func TestStoreSwitchUserClearsWallet(t *testing.T) {
	s := NewStore()
	s.SetUser("1")
	s.SetBalance(decimal.NewFromInt(10))

	s.SetUser("2")
	if s.Wallet().Loaded {
		t.Errorf("wallet of the previous user must be cleared")
	}
	if s.User().ID != "2" {
		t.Errorf("expected user 2, got %q", s.User().ID)
	}
}

func TestStoreReadsAreCopies(t *testing.T) {
	s := NewStore()
	s.SetCoins([]domain.CoinPrice{{CoinID: "bitcoin", CurrentPrice: 1}})

	c := s.Coins()
	c.List[0].CurrentPrice = 99
	if got, _ := s.Coin("bitcoin"); got.CurrentPrice != 1 {
		t.Errorf("store was mutated through a read copy")
	}
}

func TestStoreUnsubscribeClosesChannel(t *testing.T) {
	s := NewStore()
	ch, unsubscribe := s.Subscribe()
	unsubscribe()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Errorf("expected closed channel")
	}
	s.SetCoins(nil)
}
