// Command spotarb scans OKX and KuCoin for spot price gaps, serves them over
// HTTP and websocket, and executes buy-low/sell-high trades on request.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"spotarb/internal/arbitrage"
	"spotarb/internal/balance"
	"spotarb/internal/cache"
	"spotarb/internal/config"
	"spotarb/internal/database"
	"spotarb/internal/exchange"
	"spotarb/internal/metrics"
	"spotarb/internal/notify"
	"spotarb/internal/scheduler"
	"spotarb/internal/server"
	"spotarb/internal/trade"
)

const balancePollInterval = time.Minute

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, &cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("spotarb stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("spotarb stopped")
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	m := metrics.New(prometheus.NewRegistry())

	clients := make([]exchange.ExchangeClient, 0, len(cfg.Exchanges))
	for _, name := range cfg.Venues() {
		exCfg := cfg.Exchanges[name]
		if !exCfg.HasCredentials() {
			logger.Warn("exchange credentials missing, trading disabled on venue", slog.String("exchange", name))
		}
		client, err := exchange.NewClient(name, logger, &exCfg, exchange.WithObserver(m.ObserveCall))
		if err != nil {
			return err
		}
		clients = append(clients, client)
	}

	store, closeStore, err := openStore(ctx, logger, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, closeLocker, err := openLocker(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	notifier := notify.NewNotifier(logger, senders...)

	sources := make([]balance.Source, len(clients))
	venues := make([]trade.Venue, len(clients))
	for i, c := range clients {
		sources[i] = c
		venues[i] = c
	}
	balances := balance.NewService(logger, sources...)

	scanner, err := arbitrage.NewScanner(logger, cfg)
	if err != nil {
		return err
	}
	monitor := arbitrage.NewMonitor(logger, scanner, clients[0], clients[1], decimal.NewFromFloat(cfg.Arbitrage.MaxPrice))

	hub := server.NewHub(logger, monitor.Latest)
	monitor.Subscribe(m.ObserveScan)
	monitor.Subscribe(hub.Publish)

	executor := trade.NewExecutor(logger, store, venues, trade.SettingsFromConfig(cfg),
		trade.WithLocker(locker),
		trade.WithAlerter(notifier),
		trade.WithRecorder(m),
		trade.WithRefresh(func(ctx context.Context) { balances.Refresh(ctx) }),
	)

	autoTrader := scheduler.NewAutoTrader(logger, monitor, executor, cfg.Scheduler.AutoTrade)

	srv := server.New(logger, cfg.Server, server.Deps{
		Scanner:   monitor,
		Executor:  executor,
		Trades:    store,
		Balances:  balances,
		AutoTrade: autoTrader,
		Hub:       hub,
		Metrics:   m.Handler(),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error {
		return scheduler.New(logger, cfg.Scheduler.PollInterval, monitor, autoTrader).Run(ctx)
	})
	g.Go(func() error {
		return scheduler.New(logger, balancePollInterval, balances).Run(ctx)
	})
	return g.Wait()
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.Format == "text" {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// openStore uses postgres when a host is configured, memory otherwise.
func openStore(ctx context.Context, logger *slog.Logger, cfg config.DatabaseConfig) (database.Repository, func(), error) {
	if cfg.Host == "" {
		logger.Warn("no database configured, trade history is kept in memory")
		return database.NewMemoryRepository(), func() {}, nil
	}

	repo, err := database.NewPostgresRepository(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, nil, err
	}
	logger.Info("trade history in postgres", slog.String("host", cfg.Host), slog.String("db", cfg.DBName))
	return repo, repo.Close, nil
}

// openLocker uses redis when an address is configured, an in-process lock
// otherwise.
func openLocker(ctx context.Context, logger *slog.Logger, cfg *config.Config) (trade.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		return trade.NewLocalLocker(), func() {}, nil
	}

	rdb, err := cache.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("venue locks in redis", slog.String("addr", cfg.Redis.Addr))
	return cache.NewRedisLocker(rdb, cfg.Execution.LockTTL), func() { _ = rdb.Close() }, nil
}
