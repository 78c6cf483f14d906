package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"nexchain/internal/application/port"
	"nexchain/internal/domain"
	"nexchain/internal/infrastructure/scheduler"
)

// State is the evaluator's lifecycle position.
type State int

const (
	// StateIdle: no user or no active alerts, no feed open.
	StateIdle State = iota
	// StateSubscribed: feed open, no check has completed yet.
	StateSubscribed
	// StateEvaluating: checks run against the live prices.
	StateEvaluating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateEvaluating:
		return "evaluating"
	default:
		return "unknown"
	}
}

type ServiceDeps struct {
	Feed         port.PriceFeed
	Backend      port.Backend
	Sink         port.Sink
	Repo         port.Repository
	UserID       string
	RefreshEvery time.Duration
	CheckEvery   time.Duration
}

// Service polls the user's alerts, keeps a live feed over their coins and
// asks the backend which alerts fired. It never decides a trigger itself.
type Service struct {
	deps   ServiceDeps
	prices *domain.LivePrices
	kick   chan struct{}

	// refreshMu serializes alert refreshes from the timer and from kicks
	refreshMu sync.Mutex

	mu     sync.Mutex
	user   string
	alerts []domain.Alert
	ids    []string
	sub    port.Subscription
	state  State
}

func NewService(deps ServiceDeps) *Service {
	if deps.RefreshEvery <= 0 {
		deps.RefreshEvery = 30 * time.Second
	}
	if deps.CheckEvery <= 0 {
		deps.CheckEvery = 10 * time.Second
	}
	return &Service{
		deps:   deps,
		prices: domain.NewLivePrices(nil),
		kick:   make(chan struct{}, 1),
		user:   strings.TrimSpace(deps.UserID),
	}
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Alerts returns the last fetched alerts.
func (s *Service) Alerts() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Alert(nil), s.alerts...)
}

// SetUser switches the evaluator to another user. The old user's feed is
// closed at once; an empty id leaves it idle.
func (s *Service) SetUser(id string) {
	id = strings.TrimSpace(id)

	s.mu.Lock()
	if id == s.user {
		s.mu.Unlock()
		return
	}
	s.user = id
	s.dropLocked()
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Service) Run(ctx context.Context) error {
	if s.deps.Feed == nil {
		return errors.New("no price feed")
	}

	sched := scheduler.New(
		scheduler.Task{Name: "alerts.refresh", Interval: s.deps.RefreshEvery, Immediate: true, Fn: s.refresh},
		scheduler.Task{Name: "alerts.check", Interval: s.deps.CheckEvery, Fn: s.check},
	)
	sched.Start(ctx)
	defer func() {
		sched.Stop()
		s.mu.Lock()
		s.dropLocked()
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.kick:
			s.refresh(ctx)
		}
	}
}

// Delete removes an alert on the backend and reloads the list. Local state
// only changes through that reload.
func (s *Service) Delete(ctx context.Context, id domain.ID) error {
	if strings.TrimSpace(string(id)) == "" {
		return errors.New("empty alert id")
	}
	if err := s.deps.Backend.DeleteAlert(ctx, id); err != nil {
		_ = s.deps.Sink.Notify(port.LevelError, fmt.Sprintf("Failed to delete alert %s", id))
		return fmt.Errorf("delete alert %s: %w", id, err)
	}
	_ = s.deps.Sink.Notify(port.LevelSuccess, fmt.Sprintf("Alert %s deleted", id))

	select {
	case s.kick <- struct{}{}:
	default:
	}
	return nil
}

// dropLocked closes the feed and forgets alerts and prices. Caller holds s.mu.
func (s *Service) dropLocked() {
	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
	}
	s.alerts = nil
	s.ids = nil
	s.prices.Reset(nil)
	s.state = StateIdle
}

func (s *Service) refresh(ctx context.Context) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.Lock()
	user := s.user
	s.mu.Unlock()
	if user == "" {
		return
	}

	alerts, err := s.deps.Backend.ListAlerts(ctx, user)
	if err != nil {
		log.Warn().Str("user", user).Err(err).Msg("alert refresh failed")
		return
	}
	ids := domain.AlertCoinIDs(alerts)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != user {
		return
	}
	s.alerts = alerts

	if len(ids) == 0 {
		if s.state != StateIdle {
			log.Info().Str("user", user).Msg("no active alerts, alert feed closed")
		}
		s.dropLocked()
		s.alerts = alerts
		return
	}
	if s.sub != nil && domain.SameIDs(ids, s.ids) {
		return
	}

	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
	}
	s.prices.Reset(ids)
	s.ids = ids
	s.state = StateIdle

	sub, err := s.deps.Feed.Subscribe(ctx, ids)
	if err != nil {
		log.Warn().Str("feed", s.deps.Feed.Name()).Err(err).Msg("alert feed subscribe failed")
		return
	}
	sub.OnTick(s.onTick)
	s.sub = sub
	s.state = StateSubscribed
	log.Info().Str("user", user).Int("alerts", len(alerts)).Int("channels", len(sub.Channels())).Msg("alert feed subscribed")
}

// onTick must not take s.mu: Close waits for it while refresh holds that lock.
func (s *Service) onTick(t domain.Tick) {
	s.prices.Apply(t)
}

func (s *Service) check(ctx context.Context) {
	s.mu.Lock()
	user, ids, state := s.user, append([]string(nil), s.ids...), s.state
	alerts := append([]domain.Alert(nil), s.alerts...)
	s.mu.Unlock()
	if user == "" || state == StateIdle {
		return
	}

	current := s.prices.CurrentPrices(ids)
	if len(current) == 0 {
		return
	}

	s.mu.Lock()
	if s.user == user && s.state == StateSubscribed {
		s.state = StateEvaluating
	}
	s.mu.Unlock()

	// diagnostic only; CheckAlerts below decides what fires
	for _, a := range alerts {
		if p, ok := current[a.CoinID]; ok && a.IsMet(p) {
			log.Debug().Str("coin", a.CoinID).Str("alert", string(a.ID)).Float64("price", p).Msg("alert condition met locally")
		}
	}

	triggered, err := s.deps.Backend.CheckAlerts(ctx, user, current)
	if err != nil {
		log.Warn().Str("user", user).Err(err).Msg("alert check failed")
		return
	}
	if len(triggered) == 0 {
		return
	}

	for _, t := range triggered {
		_ = s.deps.Sink.Notify(port.LevelSuccess, triggerMessage(t))
		s.persist(ctx, user, t)
	}
	s.refresh(ctx)
}

func (s *Service) persist(ctx context.Context, user string, t domain.TriggeredAlert) {
	if s.deps.Repo == nil {
		return
	}
	payload, _ := json.Marshal(t)
	rec := port.TriggerRecord{
		ID:      uuid.NewString(),
		UserID:  user,
		AlertID: string(t.ID),
		CoinID:  t.CoinID,
		Price:   t.CurrentPrice.InexactFloat64(),
		Target:  t.TargetPrice.InexactFloat64(),
		Ts:      time.Now().UnixMilli(),
		Payload: string(payload),
	}
	if err := s.deps.Repo.InsertTrigger(ctx, rec); err != nil {
		log.Warn().Str("alert", rec.AlertID).Err(err).Msg("persist alert trigger failed")
	}
}

func triggerMessage(t domain.TriggeredAlert) string {
	sym := strings.ToUpper(t.CoinSymbol)
	if sym == "" {
		sym = t.CoinID
	}
	msg := fmt.Sprintf("Alert triggered: %s %s $%s", sym, t.Condition, t.TargetPrice.StringFixed(2))
	if !t.CurrentPrice.IsZero() {
		msg += fmt.Sprintf(" (now $%s)", t.CurrentPrice.StringFixed(2))
	}
	return msg
}
