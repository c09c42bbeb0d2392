// Package balances wires the balance engine into a long-running service:
// hourly cron runs, an HTTP trigger, the hint channel and the optional
// warehouse mirror.
package balances

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/OlympusDAO/token-holder-balances/pkg/balances"
	"github.com/OlympusDAO/token-holder-balances/pkg/config"
	"github.com/OlympusDAO/token-holder-balances/pkg/date"
	"github.com/OlympusDAO/token-holder-balances/pkg/logging"
	"github.com/OlympusDAO/token-holder-balances/pkg/notify"
	"github.com/OlympusDAO/token-holder-balances/pkg/records"
	"github.com/OlympusDAO/token-holder-balances/pkg/storage"
	"github.com/OlympusDAO/token-holder-balances/pkg/subgraph"
	"github.com/OlympusDAO/token-holder-balances/pkg/warehouse"
)

// ErrRunInProgress is returned when a trigger arrives while a run is active.
// Runs over the same snapshot prefix must not overlap; the engine enforces
// that at the process level with a single-flight guard.
var ErrRunInProgress = errors.New("a run is already in progress")

type App struct {
	Cfg    config.Config
	Logger *zap.Logger

	Source *subgraph.Client
	Runner *balances.Runner
	Hints  *notify.HintConsumer // nil when the hint channel is disabled

	Cron   *cron.Cron
	Server *http.Server

	running atomic.Bool
}

// Initialize builds the full application from the environment.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
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
	cache := records.NewCache(store, cfg.RecordsPrefix, source, logger)
	snapshots := balances.NewStore(store, cfg.BalancesPrefix, cfg.MirrorCSV, logger)

	var mirror balances.Mirror
	if cfg.ClickHouseAddr != "" {
		wh, err := warehouse.New(ctx, logger, warehouse.Opts{
			Addr:     []string{cfg.ClickHouseAddr},
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		})
		if err != nil {
			logger.Fatal("Unable to connect to warehouse", zap.Error(err))
		}
		mirror = wh
	}

	var hints *notify.HintConsumer
	if cfg.RedisAddr != "" {
		hints, err = notify.NewHintConsumer(ctx, logger, notify.Opts{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Stream:   cfg.HintStream,
			Group:    cfg.HintGroup,
			Consumer: cfg.HintConsumer,
		})
		if err != nil {
			logger.Fatal("Unable to connect to hint channel", zap.Error(err))
		}
	}

	app := &App{
		Cfg:    cfg,
		Logger: logger,
		Source: source,
		Hints:  hints,
		Runner: &balances.Runner{
			Snapshots:    snapshots,
			Source:       cache,
			Mirror:       mirror,
			Logger:       logger,
			Budget:       cfg.Budget,
			SafetyMargin: cfg.SafetyMargin,
		},
	}

	app.setupServer()
	if err := app.setupScheduler(ctx); err != nil {
		logger.Fatal("Unable to set up scheduler", zap.Error(err))
	}
	return app
}

func (a *App) setupScheduler(ctx context.Context) error {
	a.Cron = cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	_, err := a.Cron.AddFunc(a.Cfg.CronSpec, func() {
		if _, err := a.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
			a.Logger.Error("Scheduled run failed", zap.Error(err))
		}
	})
	return err
}

// RunOnce executes one full engine run: pull a hint, bound the range, drive
// the day loop. An early budget exit is a success; the next run resumes.
func (a *App) RunOnce(ctx context.Context) (balances.Outcome, error) {
	if !a.running.CompareAndSwap(false, true) {
		return balances.Outcome{}, ErrRunInProgress
	}
	defer a.running.Store(false)

	var hint *date.Day
	if a.Hints != nil {
		day, ok, err := a.Hints.PullHint(ctx)
		if err != nil {
			// A broken hint channel degrades to a hintless run.
			a.Logger.Warn("Unable to pull resume hint", zap.Error(err))
		} else if ok {
			hint = &day
		}
	}

	// Bound the run by the newest transaction the source knows about. An
	// empty source means there is nothing to compute, which is not an error.
	latest, err := a.Source.LatestTransactionDate(ctx)
	if errors.Is(err, subgraph.ErrNoTransactions) {
		a.Logger.Info("Source holds no transactions, nothing to do")
		return balances.Outcome{}, nil
	}
	if err != nil {
		return balances.Outcome{}, err
	}

	finish := date.Today(time.Now())
	if latest.Before(finish) {
		finish = latest
	}
	if !a.Cfg.CutoffDay.IsZero() && a.Cfg.CutoffDay.Before(finish) {
		finish = a.Cfg.CutoffDay
	}

	outcome, err := a.Runner.Run(ctx, a.Cfg.EarliestDay, finish, hint)
	if err != nil {
		return outcome, err
	}
	a.Logger.Info("Run finished",
		zap.String("start_day", outcome.StartDay.String()),
		zap.String("last_day", outcome.LastDay.String()),
		zap.Int("days", outcome.DaysProcessed),
		zap.Bool("terminated_early", outcome.TerminatedEarly))
	return outcome, nil
}

// Start starts the scheduler and HTTP server and blocks until the context is
// canceled.
func (a *App) Start(ctx context.Context) {
	a.Cron.Start()
	a.Logger.Info("Cron started", zap.String("cronSpec", a.Cfg.CronSpec))

	go func() {
		a.Logger.Info("HTTP server listening", zap.String("addr", a.Cfg.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	a.Stop()
}

// Stop shuts everything down.
func (a *App) Stop() {
	cronCtx := a.Cron.Stop()
	<-cronCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	if a.Hints != nil {
		if err := a.Hints.Close(); err != nil {
			a.Logger.Warn("Hint consumer close", zap.Error(err))
		}
	}
	a.Logger.Info("Shutdown complete")
}
