// Command foresight runs the research-economy core: it seeds agents,
// drives analysis cycles over the resource catalog, and settles
// micropayments through the local keystore.
//
// Usage:
//
//	foresight -config foresight.yaml run [-cycles N]
//	foresight -config foresight.yaml serve
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"foresight/internal/adapter/catalog"
	"foresight/internal/adapter/forecast"
	"foresight/internal/adapter/store"
	"foresight/internal/adapter/wallet"
	"foresight/internal/domain"
	"foresight/internal/infra/config"
	"foresight/internal/infra/logger"
	"foresight/internal/infra/tracer"
	"foresight/internal/usecase"
	"foresight/internal/usecase/eventbus"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	cycles := flag.Int("cycles", 1, "number of analysis cycles for the run command")
	flag.Parse()

	if err := run(*configPath, flag.Arg(0), *cycles); err != nil {
		fmt.Fprintln(os.Stderr, "foresight:", err)
		os.Exit(1)
	}
}

func run(configPath, command string, cycles int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	db, err := store.New(cfg.Store.Path, log)
	if err != nil {
		return err
	}
	defer db.Close()

	keys, err := wallet.NewKeystore(cfg.Wallet.Dir, cfg.Wallet.Passphrase, log)
	if err != nil {
		return err
	}

	staticCatalog, err := catalog.NewStaticProvider(cfg.Catalog)
	if err != nil {
		return err
	}
	resources := catalog.NewRateLimitedProvider(staticCatalog, cfg.Catalog.RateLimit, cfg.Catalog.Burst)

	forecaster := forecast.NewCircuitBreakerProvider(forecast.NewStubProvider(), forecast.CircuitBreakerConfig{}, log)

	bus := eventbus.New(log)
	defer bus.Close()

	ledger := usecase.NewLedger(usecase.PaymentLimits{
		MinAmount: domain.MustParseAmount(cfg.Payment.MinAmount),
		MaxAmount: domain.MustParseAmount(cfg.Payment.MaxAmount),
		Currency:  cfg.Payment.Currency,
	}, keys, log)

	allocator := usecase.NewAllocator(usecase.AllocatorConfig{
		TypeBonus:    cfg.Allocator.TypeBonus,
		PriceEpsilon: cfg.Allocator.PriceEpsilon,
	}, log)

	breeding := usecase.BreedingConfig{
		MutationRate:     cfg.Breeding.MutationRate,
		Cost:             domain.MustParseAmount(cfg.Breeding.Cost),
		MinPredictions:   cfg.Breeding.MinPredictions,
		OffspringBalance: domain.MustParseAmount(cfg.Breeding.OffspringBalance),
	}
	engine := usecase.NewGeneticEngine(breeding, time.Now().UnixNano(), log)

	manager := usecase.NewAgentManager(usecase.ManagerDeps{
		Catalog:   resources,
		Forecast:  forecaster,
		Ledger:    ledger,
		Allocator: allocator,
		Engine:    engine,
		Breeding:  breeding,
		Store:     db,
		Bus:       bus,
		Logger:    log,
	})

	// The keystore reports balances from live manager state.
	keys.BalanceFunc = func(agentID string) (domain.Amount, bool) {
		snap, err := manager.Snapshot(agentID)
		if err != nil {
			return 0, false
		}
		return snap.Balance, true
	}

	if err := restoreAgents(ctx, cfg, db, manager, keys, log); err != nil {
		return err
	}

	scheduler := usecase.NewScheduler(manager, usecase.SchedulerConfig{
		Spec:         cfg.Scheduler.Spec,
		Topic:        cfg.Scheduler.Topic,
		CycleTimeout: cfg.Scheduler.CycleTimeout,
	}, log)

	switch command {
	case "", "run":
		for i := 0; i < cycles; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			scheduler.RunOnce(ctx)
		}
		printScorecards(manager, log)
		return nil
	case "serve":
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		<-ctx.Done()
		scheduler.Stop()
		return nil
	default:
		return fmt.Errorf("unknown command %q (want run or serve)", command)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}

// restoreAgents adopts persisted agents from the store; when the store is
// empty the configured seed agents are created instead. Every agent ends
// up with a signing key.
func restoreAgents(ctx context.Context, cfg *config.Config, db *store.SQLiteStore, manager *usecase.AgentManager, keys *wallet.Keystore, log *slog.Logger) error {
	persisted, err := db.LoadAgents(ctx)
	if err != nil {
		return err
	}

	if len(persisted) > 0 {
		for _, agent := range persisted {
			if err := manager.Adopt(agent); err != nil {
				return err
			}
			if err := keys.EnsureKey(agent.ID); err != nil {
				return err
			}
		}
		log.Info("agents restored", "count", len(persisted))
		return nil
	}

	for i, seed := range cfg.Agents {
		strategy, err := seed.Strategy.ToProfile()
		if err != nil {
			return fmt.Errorf("agents[%d]: %w", i, err)
		}
		agent, err := manager.CreateAgent(ctx, strategy, domain.MustParseAmount(seed.Balance))
		if err != nil {
			return fmt.Errorf("agents[%d]: %w", i, err)
		}
		if err := keys.EnsureKey(agent.ID); err != nil {
			return err
		}
	}
	if len(cfg.Agents) > 0 {
		log.Info("agents seeded", "count", len(cfg.Agents))
	}
	return nil
}

func printScorecards(manager *usecase.AgentManager, log *slog.Logger) {
	for _, id := range manager.ActiveAgentIDs() {
		perf, err := manager.Performance(id)
		if err != nil {
			continue
		}
		log.Info("agent scorecard",
			"agent", perf.AgentID,
			"balance", perf.Balance.String(),
			"spent", perf.TotalSpent.String(),
			"purchases", perf.ResearchPurchases,
			"accuracy", perf.Accuracy,
			"generation", perf.Generation,
		)
	}
}
