package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"nexchain/internal/application/port"
	"nexchain/internal/application/state"
	"nexchain/internal/domain"
	"nexchain/internal/infrastructure/scheduler"
)

type ServiceDeps struct {
	Backend   port.Backend
	Store     *state.Store
	SyncEvery time.Duration
}

// Service keeps the wallet and portfolio slices of the store in sync with the
// backend and derives holdings summaries from them.
type Service struct {
	deps ServiceDeps
}

func NewService(deps ServiceDeps) *Service {
	if deps.SyncEvery <= 0 {
		deps.SyncEvery = 60 * time.Second
	}
	return &Service{deps: deps}
}

func (s *Service) Run(ctx context.Context) error {
	if s.deps.Store == nil {
		return errors.New("no state store")
	}
	sched := scheduler.New(scheduler.Task{
		Name:      "portfolio.sync",
		Interval:  s.deps.SyncEvery,
		Immediate: true,
		Fn: func(ctx context.Context) {
			if err := s.Sync(ctx); err != nil {
				log.Warn().Err(err).Msg("portfolio sync failed")
			}
		},
	})
	sched.Start(ctx)
	defer sched.Stop()

	<-ctx.Done()
	return ctx.Err()
}

// Sync loads balance and holdings of the logged-in user into the store.
func (s *Service) Sync(ctx context.Context) error {
	user := s.deps.Store.User()
	if !user.LoggedIn {
		return nil
	}

	balance, err := s.deps.Backend.Balance(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	holdings, err := s.deps.Backend.Holdings(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("holdings: %w", err)
	}

	// the user may have changed while the requests ran
	if s.deps.Store.User() != user {
		return nil
	}
	s.deps.Store.SetBalance(balance)
	s.deps.Store.SetHoldings(holdings)
	return nil
}

// Summaries values every holding at the given prices, falling back to the
// last fetched coin list. Holdings without any price are valued at zero.
func (s *Service) Summaries(live domain.PriceMap) []domain.HoldingsSummary {
	holdings := s.deps.Store.Portfolio().Holdings
	out := make([]domain.HoldingsSummary, 0, len(holdings))
	for _, h := range holdings {
		var price float64
		if p, ok := live[h.CoinID]; ok {
			price = p.CurrentPrice
		} else if c, ok := s.deps.Store.Coin(h.CoinID); ok {
			price = c.CurrentPrice
		}
		out = append(out, domain.Summarize(h, price))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CurrentValue > out[j].CurrentValue })
	return out
}
