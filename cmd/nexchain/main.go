package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"nexchain/internal/application/port"
	"nexchain/internal/application/state"
	"nexchain/internal/application/usecase/trade"
	"nexchain/internal/domain"
	"nexchain/internal/infrastructure/config"
	_ "nexchain/internal/infrastructure/exchange/binance"
	"nexchain/internal/infrastructure/logger"
	"nexchain/internal/infrastructure/svc"
)

type oneShot struct {
	buy, sell, alert string
	amount, usd      string
	orderType        string
	price            string
	condition        string

	watch, unwatch string
	deleteAlert    string
}

func (o oneShot) active() bool { return o.buy != "" || o.sell != "" || o.alert != "" }

func (o oneShot) manage() bool { return o.watch != "" || o.unwatch != "" || o.deleteAlert != "" }

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	var shot oneShot
	flag.StringVar(&shot.buy, "buy", "", "buy this coin id and exit")
	flag.StringVar(&shot.sell, "sell", "", "sell this coin id and exit")
	flag.StringVar(&shot.alert, "alert", "", "create a price alert for this coin id and exit")
	flag.StringVar(&shot.amount, "amount", "", "order quantity in coin units (\"max\" for the largest available)")
	flag.StringVar(&shot.usd, "usd", "", "order size in USD")
	flag.StringVar(&shot.orderType, "type", "market", "order type: market, limit or stop_limit")
	flag.StringVar(&shot.price, "price", "", "limit price, or alert target price")
	flag.StringVar(&shot.condition, "condition", "above", "alert condition: above or below")
	flag.StringVar(&shot.watch, "watch", "", "add this coin id to the watchlist and exit")
	flag.StringVar(&shot.unwatch, "unwatch", "", "remove this coin id from the watchlist and exit")
	flag.StringVar(&shot.deleteAlert, "delete-alert", "", "delete the alert with this id and exit")
	history := flag.Int("history", 0, "print the last N alert triggers of the user and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Setup("info")
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service context initialization failed")
	}
	defer sc.Close()

	if *history > 0 {
		if err := printHistory(ctx, sc, *history); err != nil {
			log.Error().Err(err).Msg("history failed")
			_ = sc.Close()
			os.Exit(1)
		}
		return
	}

	if shot.manage() {
		if err := runManage(ctx, sc, shot); err != nil {
			log.Error().Err(err).Msg("command failed")
			_ = sc.Close()
			os.Exit(1)
		}
		return
	}

	if shot.active() {
		if err := runOneShot(ctx, sc, shot); err != nil {
			log.Error().Err(err).Msg("command failed")
			_ = sc.Close()
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, sc); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("nexchain exited")
	}
}

// run starts the enabled consumers and blocks until the context ends.
func run(ctx context.Context, sc *svc.ServiceContext) error {
	consumers := sc.Config.EnabledConsumers()
	if len(consumers) == 0 {
		return svc.ErrNoConsumersEnabled
	}

	log.Info().
		Strs("consumers", consumers).
		Str("user", sc.Store.User().ID).
		Int("snapshot_every_min", sc.Config.App.SnapshotEveryMin).
		Msg("nexchain started")

	g, gctx := errgroup.WithContext(ctx)
	if sc.Config.Consumers.CoinTable {
		g.Go(func() error { return sc.CoinTable.Run(gctx) })
	}
	if sc.Config.Consumers.Watchlist {
		g.Go(func() error { return sc.Watchlist.Run(gctx) })
	}
	if sc.Config.Consumers.Alerts {
		g.Go(func() error { return sc.Alerts.Run(gctx) })
	}
	g.Go(func() error { return sc.Portfolio.Run(gctx) })
	g.Go(func() error {
		followUser(gctx, sc)
		return nil
	})

	err := g.Wait()
	log.Info().Msg("nexchain stopped")
	return err
}

// followUser hands user switches from the store to the per-user consumers.
func followUser(ctx context.Context, sc *svc.ServiceContext) {
	changes, unsubscribe := sc.Store.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case sl, ok := <-changes:
			if !ok {
				return
			}
			if sl != state.SliceUser {
				continue
			}
			id := sc.Store.User().ID
			sc.Alerts.SetUser(id)
			sc.Watchlist.SetUser(id)
			log.Info().Str("user", id).Msg("user changed")
		}
	}
}

func runOneShot(ctx context.Context, sc *svc.ServiceContext, o oneShot) error {
	if !sc.Store.User().LoggedIn {
		return errors.New("user.id is required")
	}
	coinID, mode := o.buy, domain.ModeBuy
	switch {
	case o.sell != "":
		coinID, mode = o.sell, domain.ModeSell
	case o.alert != "":
		coinID = o.alert
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if err := sc.Portfolio.Sync(ctx); err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}
	coin := domain.CoinPrice{CoinID: coinID}
	if coins, err := sc.Backend.ListCoins(ctx); err == nil {
		sc.Store.SetCoins(coins)
		if c, ok := sc.Store.Coin(coinID); ok {
			coin = c
		}
	} else {
		log.Warn().Err(err).Msg("coin list unavailable, waiting for a live price")
	}

	form := sc.Trade
	if err := form.Open(ctx, coin); err != nil {
		return err
	}
	defer form.Close()
	if coin.CurrentPrice <= 0 {
		waitForPrice(ctx, form)
	}

	form.SetLimitPrice(o.price)
	if o.alert != "" {
		cond, ok := domain.ParseCondition(o.condition)
		if !ok {
			return fmt.Errorf("unknown condition %q", o.condition)
		}
		a, err := form.CreateAlert(ctx, cond)
		if err != nil {
			return err
		}
		log.Info().Str("alert", string(a.ID)).Str("coin", a.CoinID).Msg("alert created")
		return nil
	}

	form.SetMode(mode)
	form.SetOrderType(domain.OrderType(strings.ToLower(strings.TrimSpace(o.orderType))))
	switch {
	case strings.EqualFold(o.amount, "max"):
		form.FillMax()
	case o.amount != "":
		form.EditCoin(o.amount)
	default:
		form.EditUSD(o.usd)
	}

	go answerTwoFactor(ctx, form)
	res, err := form.Submit(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("coin", coinID).Str("balance", res.Balance.String()).Msg(res.Message)
	return nil
}

// runManage applies watchlist and alert edits that need no price feed.
func runManage(ctx context.Context, sc *svc.ServiceContext, o oneShot) error {
	if !sc.Store.User().LoggedIn {
		return errors.New("user.id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if o.deleteAlert != "" {
		if err := sc.Alerts.Delete(ctx, domain.ID(strings.TrimSpace(o.deleteAlert))); err != nil {
			return err
		}
		log.Info().Str("alert", o.deleteAlert).Msg("alert deleted")
	}
	if o.watch == "" && o.unwatch == "" {
		return nil
	}

	defer sc.Watchlist.Close()
	if err := sc.Watchlist.Refresh(ctx); err != nil {
		return err
	}
	for _, e := range []struct {
		coinID  string
		watched bool
	}{{o.watch, true}, {o.unwatch, false}} {
		coinID := strings.TrimSpace(e.coinID)
		if coinID == "" {
			continue
		}
		item := watchlistItem(ctx, sc, coinID)
		changed, err := sc.Watchlist.SetWatched(ctx, item, e.watched)
		if err != nil {
			return err
		}
		log.Info().Str("coin", coinID).Bool("watched", e.watched).Bool("changed", changed).Msg("watchlist updated")
	}
	return nil
}

func watchlistItem(ctx context.Context, sc *svc.ServiceContext, coinID string) domain.WatchlistItem {
	item := domain.WatchlistItem{CoinID: coinID}
	coins, err := sc.Backend.ListCoins(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("coin list unavailable, watching by id only")
		return item
	}
	sc.Store.SetCoins(coins)
	if c, ok := sc.Store.Coin(coinID); ok {
		item.Symbol, item.Name = c.Symbol, c.Name
	}
	return item
}

func printHistory(ctx context.Context, sc *svc.ServiceContext, limit int) error {
	lister, ok := sc.Repo.(port.TriggerLister)
	if !ok {
		return errors.New("configured storage keeps no trigger history")
	}
	recs, err := lister.ListTriggers(ctx, sc.Store.User().ID, limit)
	if err != nil {
		return err
	}
	for _, r := range recs {
		fmt.Printf("%s  %-12s price=%s target=%s alert=%s\n",
			time.UnixMilli(r.Ts).Format("2006-01-02 15:04:05"),
			r.CoinID, domain.FormatUSD(r.Price), domain.FormatUSD(r.Target), r.AlertID)
	}
	if len(recs) == 0 {
		fmt.Println("no alert triggers")
	}
	return nil
}

func waitForPrice(ctx context.Context, form *trade.Form) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(10 * time.Second)
	for form.CurrentPrice() <= 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
		}
	}
}

// answerTwoFactor prompts on stdin for every 2FA challenge.
func answerTwoFactor(ctx context.Context, form *trade.Form) {
	in := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-form.TwoFactorRequests():
			fmt.Fprintf(os.Stderr, "2FA code for user %s: ", req.UserID)
			line, _ := in.ReadString('\n')
			req.Response <- strings.TrimSpace(line)
		}
	}
}
