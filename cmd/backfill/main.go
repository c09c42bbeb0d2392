// Command backfill runs the balance engine once over an explicit date range
// and exits. Useful for recomputing history after an upstream correction
// without waiting for a hint, and for seeding a fresh deployment.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/OlympusDAO/token-holder-balances/pkg/balances"
	"github.com/OlympusDAO/token-holder-balances/pkg/config"
	"github.com/OlympusDAO/token-holder-balances/pkg/date"
	"github.com/OlympusDAO/token-holder-balances/pkg/logging"
	"github.com/OlympusDAO/token-holder-balances/pkg/records"
	"github.com/OlympusDAO/token-holder-balances/pkg/storage"
	"github.com/OlympusDAO/token-holder-balances/pkg/subgraph"
)

func main() {
	// -from can only rewind the run. Each day seeds from the previous day's
	// snapshot, so starting past the first missing snapshot would fold into
	// an empty predecessor and corrupt everything after it; the engine
	// starts at the first gap when that is earlier than -from.
	from := flag.String("from", "", "recompute from this day at the latest (YYYY-MM-DD); the run starts at the first missing snapshot when that is earlier")
	to := flag.String("to", "", "last day to compute (YYYY-MM-DD); empty runs to the current day")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.New()
	if err != nil {
		panic(err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	store, err := storage.NewFSStore(cfg.StorageDir)
	if err != nil {
		logger.Fatal("Unable to open object store", zap.Error(err))
	}

	source := subgraph.NewClient(logger, subgraph.Opts{URL: cfg.SubgraphURL})
	runner := &balances.Runner{
		Snapshots: balances.NewStore(store, cfg.BalancesPrefix, cfg.MirrorCSV, logger),
		Source:    records.NewCache(store, cfg.RecordsPrefix, source, logger),
		Logger:    logger,
		// No budget: a backfill runs on an operator's machine, not a
		// time-limited function host.
	}

	var hint *date.Day
	if *from != "" {
		day, err := date.Parse(*from)
		if err != nil {
			logger.Fatal("Invalid -from", zap.Error(err))
		}
		hint = &day
	}

	finish := date.Today(time.Now())
	if *to != "" {
		if finish, err = date.Parse(*to); err != nil {
			logger.Fatal("Invalid -to", zap.Error(err))
		}
	}

	outcome, err := runner.Run(ctx, cfg.EarliestDay, finish, hint)
	if err != nil {
		logger.Fatal("Backfill failed", zap.Error(err))
	}
	logger.Info("Backfill finished",
		zap.String("start_day", outcome.StartDay.String()),
		zap.String("last_day", outcome.LastDay.String()),
		zap.Int("days", outcome.DaysProcessed))
}
