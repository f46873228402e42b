// Command server runs the portfolio optimization and rebalancing engine
// behind an HTTP API, with scheduled drift monitoring.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/folio/internal/cache"
	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/history"
	"github.com/aristath/folio/internal/modules/drift"
	"github.com/aristath/folio/internal/modules/extraction"
	"github.com/aristath/folio/internal/modules/rebalancing"
	"github.com/aristath/folio/internal/modules/simulation"
	"github.com/aristath/folio/internal/modules/tax"
	"github.com/aristath/folio/internal/scheduler"
	"github.com/aristath/folio/internal/server"
	"github.com/aristath/folio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)

	historyDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "history.db"),
		Name: "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	store := history.NewStore(historyDB, log)
	if err := store.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history store")
	}

	calcCache := cache.New(cacheDB, log)
	if err := calcCache.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize calculation cache")
	}

	driftAnalyzer := drift.NewAnalyzer(log)
	snapshot := server.NewSnapshotKeeper()

	srv := server.New(server.Deps{
		Config:    cfg,
		Extractor: extraction.NewExtractor(log),
		History:   store,
		Cache:     calcCache,
		Drift:     driftAnalyzer,
		Rebalance: rebalancing.NewCalculator(cfg.MinTradeSize, log),
		Strategy:  rebalancing.NewStrategyService(log),
		Tax: tax.NewRebalancer(tax.Config{
			AnnualAllowance:  cfg.CGT.AnnualAllowance,
			TaxRate:          cfg.CGT.TaxRate,
			LossCarryForward: cfg.CGT.LossCarryForward,
		}, log),
		Simulator: simulation.NewSimulator(uint64(time.Now().UnixNano()), log),
		Snapshot:  snapshot,
		Log:       log,
	})

	sched := scheduler.New(log)
	if err := sched.Register("@hourly", scheduler.NewDriftMonitorJob(snapshot, driftAnalyzer, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register drift monitor job")
	}
	if err := sched.Register("0 3 * * *", scheduler.NewCachePurgeJob(calcCache, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache purge job")
	}
	sched.Start()
	defer sched.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}
