package state

import (
	"sync"

	"github.com/shopspring/decimal"

	"nexchain/internal/domain"
)

// Slice names one part of the application state.
type Slice int

const (
	SliceUser Slice = iota
	SliceWallet
	SlicePortfolio
	SliceCoins
)

func (s Slice) String() string {
	switch s {
	case SliceUser:
		return "user"
	case SliceWallet:
		return "wallet"
	case SlicePortfolio:
		return "portfolio"
	case SliceCoins:
		return "coins"
	default:
		return "unknown"
	}
}

type User struct {
	ID       string
	LoggedIn bool
}

type Wallet struct {
	Balance decimal.Decimal
	Loaded  bool
}

type Portfolio struct {
	Holdings []domain.Holding
}

type Coins struct {
	List []domain.CoinPrice
}

// Store holds the shared application state. Every write goes through one of
// the Set methods and is announced to subscribers; reads return copies.
type Store struct {
	mu        sync.RWMutex
	user      User
	wallet    Wallet
	portfolio Portfolio
	coins     Coins

	subMu  sync.Mutex
	subs   map[int]chan Slice
	nextID int
}

func NewStore() *Store {
	return &Store{subs: make(map[int]chan Slice)}
}

// SetUser logs id in. Switching users clears wallet and portfolio.
func (s *Store) SetUser(id string) {
	s.mu.Lock()
	if s.user.LoggedIn && s.user.ID == id {
		s.mu.Unlock()
		return
	}
	switched := s.user.LoggedIn
	s.user = User{ID: id, LoggedIn: id != ""}
	if switched {
		s.wallet = Wallet{}
		s.portfolio = Portfolio{}
	}
	s.mu.Unlock()

	s.publish(SliceUser)
	if switched {
		s.publish(SliceWallet)
		s.publish(SlicePortfolio)
	}
}

// Logout clears the user and everything owned by them.
func (s *Store) Logout() {
	s.mu.Lock()
	if !s.user.LoggedIn {
		s.mu.Unlock()
		return
	}
	s.user = User{}
	s.wallet = Wallet{}
	s.portfolio = Portfolio{}
	s.mu.Unlock()

	s.publish(SliceUser)
	s.publish(SliceWallet)
	s.publish(SlicePortfolio)
}

func (s *Store) SetBalance(b decimal.Decimal) {
	s.mu.Lock()
	s.wallet = Wallet{Balance: b, Loaded: true}
	s.mu.Unlock()
	s.publish(SliceWallet)
}

func (s *Store) SetHoldings(h []domain.Holding) {
	s.mu.Lock()
	s.portfolio = Portfolio{Holdings: append([]domain.Holding(nil), h...)}
	s.mu.Unlock()
	s.publish(SlicePortfolio)
}

func (s *Store) SetCoins(c []domain.CoinPrice) {
	s.mu.Lock()
	s.coins = Coins{List: append([]domain.CoinPrice(nil), c...)}
	s.mu.Unlock()
	s.publish(SliceCoins)
}

func (s *Store) User() User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Store) Wallet() Wallet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wallet
}

func (s *Store) Portfolio() Portfolio {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Portfolio{Holdings: append([]domain.Holding(nil), s.portfolio.Holdings...)}
}

func (s *Store) Coins() Coins {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Coins{List: append([]domain.CoinPrice(nil), s.coins.List...)}
}

// Holding returns the holding of coinID, if any.
func (s *Store) Holding(coinID string) (domain.Holding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.portfolio.Holdings {
		if h.CoinID == coinID {
			return h, true
		}
	}
	return domain.Holding{}, false
}

// Coin returns the last fetched market entry of coinID.
func (s *Store) Coin(coinID string) (domain.CoinPrice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.coins.List {
		if c.CoinID == coinID {
			return c, true
		}
	}
	return domain.CoinPrice{}, false
}

// Subscribe returns a channel that receives the slice of every change and a
// func that unsubscribes. Slow subscribers miss notifications rather than
// block writers.
func (s *Store) Subscribe() (<-chan Slice, func()) {
	ch := make(chan Slice, 16)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) publish(sl Slice) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- sl:
		default:
		}
	}
}
