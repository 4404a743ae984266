// Command bitage runs the rule-based strategy engine. It evaluates every
// configured plan against fresh market data on a fixed cadence and executes
// the resulting orders exactly once, surviving restarts mid-tick.
//
// Usage:
//
//	bitage --config config.yaml
//
// Required environment variables:
//
//	For Binance market data or execution: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit market data: BYBIT_API_KEY, BYBIT_API_SECRET
//	For Hyperliquid market data: HYPERLIQUID_PRIVATE_KEY
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bitage/bitage/config"
	engine "github.com/bitage/bitage/internal"
	"github.com/bitage/bitage/internal/clients"
	"github.com/bitage/bitage/internal/services/dispatcher"
	"github.com/bitage/bitage/internal/services/pricer"
	"github.com/bitage/bitage/internal/services/snapshot"
	"github.com/bitage/bitage/internal/services/trader"
	"github.com/bitage/bitage/internal/storage/athstate"
	"github.com/bitage/bitage/internal/storage/planstate"
	"github.com/bitage/bitage/internal/storage/records"
	"github.com/bitage/bitage/internal/web"

	athsvc "github.com/bitage/bitage/internal/services/ath"
)

const defaultHyperliquidURL = "https://api.hyperliquid.xyz"

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	providers, err := buildProviders(cfg)
	if err != nil {
		logger.Fatal("failed to build price providers", zap.Error(err))
	}

	cache, err := snapshot.NewCache(logger, providers,
		snapshot.WithFetchTimeout(cfg.FetchTimeout))
	if err != nil {
		logger.Fatal("failed to create snapshot cache", zap.Error(err))
	}

	exec, err := buildTrader(cfg, logger, providers[0])
	if err != nil {
		logger.Fatal("failed to build trader", zap.Error(err))
	}

	athStore, err := athstate.NewStore(cfg.StateDir)
	if err != nil {
		logger.Fatal("failed to open ath store", zap.Error(err))
	}
	tracker, err := athsvc.NewTracker(logger, athStore)
	if err != nil {
		logger.Fatal("failed to create ath tracker", zap.Error(err))
	}

	planStore, err := planstate.NewStore(cfg.StateDir)
	if err != nil {
		logger.Fatal("failed to open plan state store", zap.Error(err))
	}

	walStore, err := records.NewWALStore(cfg.WALDir)
	if err != nil {
		logger.Fatal("failed to open execution log", zap.Error(err))
	}
	defer walStore.Close()

	disp := dispatcher.New(logger, walStore, planStore, exec)

	eng, err := engine.NewEngine(logger, cfg.Plans, cache, tracker, disp,
		planStore, cfg.SnapshotMaxAge, cfg.FetchWorkers)
	if err != nil {
		logger.Fatal("failed to create engine", zap.Error(err))
	}

	scheduler := engine.NewScheduler(logger, eng, cfg.TickInterval)
	server := web.NewServer(logger, cfg.ListenAddr, eng, walStore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(ctx) })
	g.Go(func() error { return server.Start(ctx) })

	logger.Info("bitage started",
		zap.String("platform", cfg.Platform),
		zap.Duration("tick_interval", cfg.TickInterval),
		zap.Int("plans", len(cfg.Plans)))

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("engine stopped", zap.Error(err))
	}
	logger.Info("bitage stopped")
}

// buildProviders constructs the market data fallback chain in the configured
// order. With no providers configured, the execution platform doubles as the
// single data source.
func buildProviders(cfg *config.Config) ([]pricer.Pricer, error) {
	names := cfg.Providers
	if len(names) == 0 {
		switch cfg.Platform {
		case "simulate":
			names = []string{"binance"}
		default:
			names = []string{cfg.Platform}
		}
	}

	var providers []pricer.Pricer
	for _, name := range names {
		switch name {
		case "binance":
			if cfg.Platform == "simulate" {
				providers = append(providers,
					pricer.NewBinancePricer(clients.NewSimulateClient().GetBinanceClient()))
				continue
			}
			apiKey, apiSecret := os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET")
			providers = append(providers,
				pricer.NewBinancePricer(clients.NewBinanceClient(apiKey, apiSecret)))
		case "bybit":
			apiKey, apiSecret := os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET")
			providers = append(providers,
				pricer.NewBybitPricer(clients.NewBybitClient(apiKey, apiSecret)))
		case "hyperliquid":
			key := os.Getenv("HYPERLIQUID_PRIVATE_KEY")
			if key == "" {
				return nil, errors.New("HYPERLIQUID_PRIVATE_KEY environment variable must be set")
			}
			baseURL := os.Getenv("HYPERLIQUID_API_URL")
			if baseURL == "" {
				baseURL = defaultHyperliquidURL
			}
			client, err := clients.NewHyperliquidClient(key, baseURL)
			if err != nil {
				return nil, err
			}
			providers = append(providers,
				pricer.NewHyperliquidPricer(client.Exchange().Info()))
		default:
			return nil, errors.Errorf("unknown market data provider %q", name)
		}
	}
	return providers, nil
}

// buildTrader selects the execution venue. Simulate mode seeds a paper wallet
// with the quote allocation of every plan.
func buildTrader(cfg *config.Config, logger *zap.Logger, mark pricer.Pricer) (trader.Trader, error) {
	switch cfg.Platform {
	case "binance":
		apiKey, apiSecret := os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET")
		if apiKey == "" || apiSecret == "" {
			return nil, errors.New("BINANCE_API_KEY and BINANCE_API_SECRET environment variables must be set")
		}
		return trader.NewBinanceTrader(clients.NewBinanceClient(apiKey, apiSecret)), nil
	case "simulate":
		balances := make(map[string]decimal.Decimal)
		for _, plan := range cfg.Plans {
			balances[plan.Pair.To] = balances[plan.Pair.To].Add(plan.AllocationQuote)
		}
		opts := make([]trader.PaperOption, 0, len(balances))
		for currency, amount := range balances {
			opts = append(opts, trader.WithBalance(currency, amount))
		}
		return trader.NewPaperTrader(logger, mark, opts...)
	default:
		return nil, errors.Errorf("unsupported platform %q", cfg.Platform)
	}
}
