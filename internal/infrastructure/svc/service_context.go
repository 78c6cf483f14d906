package svc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"nexchain/internal/application/port"
	"nexchain/internal/application/state"
	"nexchain/internal/application/usecase/alerts"
	"nexchain/internal/application/usecase/cointable"
	"nexchain/internal/application/usecase/portfolio"
	"nexchain/internal/application/usecase/trade"
	"nexchain/internal/application/usecase/watchlist"
	"nexchain/internal/infrastructure/backend"
	"nexchain/internal/infrastructure/config"
	"nexchain/internal/infrastructure/exchange"
	"nexchain/internal/infrastructure/pricefeed"
	"nexchain/internal/infrastructure/storage"
	"nexchain/internal/infrastructure/storage/composite"
	kafkarepo "nexchain/internal/infrastructure/storage/kafka"
	pgrepo "nexchain/internal/infrastructure/storage/postgres"
	redisrepo "nexchain/internal/infrastructure/storage/redis"
	sqliterepo "nexchain/internal/infrastructure/storage/sqlite"
	"nexchain/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层
	Mapper  *exchange.Mapper
	Feed    port.PriceFeed
	Backend port.Backend
	Repo    port.Repository
	Store   *state.Store

	// 输出端口
	Sink port.Sink

	// 应用业务组件
	CoinTable *cointable.Service
	Watchlist *watchlist.Service
	Alerts    *alerts.Service
	Portfolio *portfolio.Service
	Trade     *trade.Form

	// 资源管理
	closeOnce   sync.Once
	closerChain []func() error
}

// New builds every dependency in order. On failure the resources opened so
// far are released.
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Sink:        console.NewSink(),
		Store:       state.NewStore(),
		closerChain: make([]func() error, 0),
	}
	if err := sc.initializeComponents(); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	if err := sc.initializeMapper(); err != nil {
		return err
	}

	factory, ok := pricefeed.Get(sc.Config.Feed.Name)
	if !ok {
		return fmt.Errorf("%w %q (registered: %s)", ErrUnknownFeed, sc.Config.Feed.Name, strings.Join(pricefeed.Names(), ","))
	}
	sc.Feed = factory(pricefeed.Options{
		WsURL:     sc.Config.Feed.WsURL,
		Mapper:    sc.Mapper,
		Reconnect: sc.Config.Feed.Reconnect,
	})

	sc.Backend = backend.NewClient(
		sc.Config.Backend.BaseURL,
		sc.Config.Backend.Token,
		time.Duration(sc.Config.Backend.TimeoutSec)*time.Second,
	)
	if id := sc.Config.User.ID; id != "" {
		sc.Store.SetUser(id)
	}

	snapshotEvery := time.Duration(sc.Config.App.SnapshotEveryMin) * time.Minute
	sc.CoinTable = cointable.NewService(cointable.ServiceDeps{
		Feed:          sc.Feed,
		Backend:       sc.Backend,
		Store:         sc.Store,
		Sink:          sc.Sink,
		Repo:          sc.Repo,
		FallbackCoins: sc.Config.Symbols.Coins,
		RefreshEvery:  time.Duration(sc.Config.Consumers.CoinRefreshSec) * time.Second,
		SnapshotEvery: snapshotEvery,

		SnapshotRetention: time.Duration(sc.Config.App.SnapshotRetentionHours) * time.Hour,
	})
	sc.Watchlist = watchlist.NewService(watchlist.ServiceDeps{
		Feed:          sc.Feed,
		Backend:       sc.Backend,
		Sink:          sc.Sink,
		UserID:        sc.Config.User.ID,
		RefreshEvery:  time.Duration(sc.Config.Consumers.CoinRefreshSec) * time.Second,
		SnapshotEvery: snapshotEvery,
	})
	sc.Alerts = alerts.NewService(alerts.ServiceDeps{
		Feed:         sc.Feed,
		Backend:      sc.Backend,
		Sink:         sc.Sink,
		Repo:         sc.Repo,
		UserID:       sc.Config.User.ID,
		RefreshEvery: time.Duration(sc.Config.Alerts.RefreshSec) * time.Second,
		CheckEvery:   time.Duration(sc.Config.Alerts.CheckSec) * time.Second,
	})
	sc.Portfolio = portfolio.NewService(portfolio.ServiceDeps{
		Backend:   sc.Backend,
		Store:     sc.Store,
		SyncEvery: time.Duration(sc.Config.Consumers.CoinRefreshSec) * time.Second,
	})
	sc.Trade = trade.NewForm(trade.Deps{
		Feed:    sc.Feed,
		Backend: sc.Backend,
		Store:   sc.Store,
		Sink:    sc.Sink,
	})

	log.Info().
		Str("feed", sc.Feed.Name()).
		Str("backend", sc.Config.Backend.BaseURL).
		Strs("consumers", sc.Config.EnabledConsumers()).
		Msg("✓ All components initialized")
	return nil
}

func (sc *ServiceContext) initializeMapper() error {
	m := exchange.NewMapper(sc.Config.Symbols.Quote)
	if path := strings.TrimSpace(sc.Config.Symbols.TableFile); path != "" {
		extra, err := exchange.LoadTable(path)
		if err != nil {
			return fmt.Errorf("symbol table: %w", err)
		}
		m = m.WithExtra(extra)
		log.Info().Str("path", path).Int("coins", len(extra)).Msg("symbol table loaded")
	}
	sc.Mapper = m
	return nil
}

// initializeStorage opens every enabled backend and fans writes out to them.
// With none enabled an in-memory repo is used.
func (sc *ServiceContext) initializeStorage() error {
	var repos []port.Repository
	st := sc.Config.Storage

	if st.SQLite.Enabled {
		repo, err := sqliterepo.New(st.SQLite.Path)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		sc.addCloser("sqlite", repo.Close)
		repos = append(repos, repo)
		log.Info().Str("path", st.SQLite.Path).Msg("✓ SQLite initialized")
	}

	if st.Postgres.Enabled {
		repo, err := pgrepo.New(st.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		sc.addCloser("postgres", repo.Close)
		repos = append(repos, repo)
		log.Info().Msg("✓ Postgres initialized")
	}

	if st.Redis.Enabled {
		repo, err := sc.initRedis()
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		repos = append(repos, repo)
	}

	if st.Kafka.Enabled {
		repo := kafkarepo.New(st.Kafka.Brokers, kafkarepo.Topics{
			Prices:    st.Kafka.TopicPrices,
			Triggers:  st.Kafka.TopicTriggers,
			Snapshots: st.Kafka.TopicSnapshots,
		}, st.Kafka.BatchSize, time.Duration(st.Kafka.BatchTimeoutMs)*time.Millisecond)
		sc.addCloser("kafka", repo.Close)
		repos = append(repos, repo)
		log.Info().Strs("brokers", st.Kafka.Brokers).Msg("✓ Kafka writer initialized")
	}

	switch len(repos) {
	case 0:
		sc.Repo = storage.NewMemory()
		log.Info().Msg("no storage enabled, keeping records in memory")
	case 1:
		sc.Repo = repos[0]
	default:
		sc.Repo = composite.New(repos...)
	}
	return nil
}

func (sc *ServiceContext) initRedis() (*redisrepo.Repo, error) {
	cfg := sc.Config.Storage.Redis
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	sc.addCloser("redis", rdb.Close)

	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("✓ Redis initialized")
	return redisrepo.New(
		rdb,
		cfg.Prefix,
		time.Duration(cfg.TTLSeconds)*time.Second,
		cfg.TriggerStream,
		cfg.TriggerChannel,
	), nil
}

func (sc *ServiceContext) addCloser(name string, fn func() error) {
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msgf("closing %s connection", name)
		return fn()
	})
}

// Close 关闭所有资源（按后进先出顺序）
func (sc *ServiceContext) Close() error {
	var err error
	sc.closeOnce.Do(func() {
		for i := len(sc.closerChain) - 1; i >= 0; i-- {
			if e := sc.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("service context closed")
	})
	return err
}
