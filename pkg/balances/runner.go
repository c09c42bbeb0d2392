package balances

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/OlympusDAO/token-holder-balances/pkg/date"
	"github.com/OlympusDAO/token-holder-balances/pkg/model"
)

// TransactionSource yields every transaction belonging to a UTC day.
type TransactionSource interface {
	FetchDay(ctx context.Context, day date.Day) ([]model.Transaction, error)
}

// DayRefresher is implemented by transaction sources that cache fetched
// days. A resume hint means upstream amended history that may already be
// cached, so hinted runs read through RefreshDay instead of FetchDay and the
// amended data replaces the stale cache.
type DayRefresher interface {
	RefreshDay(ctx context.Context, day date.Day) ([]model.Transaction, error)
}

// SnapshotStore is the persistence surface the runner needs.
type SnapshotStore interface {
	Exists(ctx context.Context, day date.Day) (bool, error)
	Load(ctx context.Context, day date.Day) ([]model.BalanceRecord, error)
	Save(ctx context.Context, day date.Day, records []model.BalanceRecord) error
}

// Mirror receives a copy of each saved snapshot for downstream analytics.
// Mirror failures do not fail the run; the snapshot store is the source of
// truth.
type Mirror interface {
	WriteDay(ctx context.Context, day date.Day, records []model.BalanceRecord) error
}

// Outcome summarizes a completed run. A run that stops on its budget is a
// successful partial completion, not a failure.
type Outcome struct {
	StartDay        date.Day
	LastDay         date.Day
	DaysProcessed   int
	TerminatedEarly bool
}

// Runner drives the day-by-day balance computation across a date range. The
// loop is strictly sequential: each day's snapshot seeds from the previous
// day's persisted snapshot. Callers must not run two runners against the
// same snapshot prefix concurrently.
type Runner struct {
	Snapshots SnapshotStore
	Source    TransactionSource
	Mirror    Mirror // optional
	Logger    *zap.Logger

	// Budget bounds the wall-clock time of one run; the loop exits
	// voluntarily once elapsed time exceeds Budget - SafetyMargin, always
	// after a completed save. Zero disables the budget.
	Budget       time.Duration
	SafetyMargin time.Duration

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

// Run computes snapshots for every day in [start, finish] that needs one.
//
// The starting day is discovered by probing the snapshot store forward from
// earliest for the first day without a snapshot; when every day up to finish
// already has one, the run starts at finish, recomputing it (the current day
// accrues transactions until it is over). A hint wins over the discovered
// day only when it is strictly earlier, which is how retroactive upstream
// corrections re-enter history; a hint before earliest is clamped to
// earliest.
func (r *Runner) Run(ctx context.Context, earliest, finish date.Day, hint *date.Day) (Outcome, error) {
	runStart := r.now()

	startDay, err := r.discoverStartDay(ctx, earliest, finish)
	if err != nil {
		return Outcome{}, err
	}
	hinted := false
	if hint != nil && hint.Before(startDay) {
		hintDay := *hint
		if hintDay.Before(earliest) {
			hintDay = earliest
		}
		r.Logger.Info("resume hint precedes discovered start, recomputing",
			zap.String("discovered", startDay.String()),
			zap.String("hint", hintDay.String()))
		startDay = hintDay
		hinted = true
	}

	outcome := Outcome{StartDay: startDay}
	for day := startDay; !day.After(finish); day = day.Next() {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		if err := r.processDay(ctx, day, hinted); err != nil {
			return outcome, err
		}
		outcome.LastDay = day
		outcome.DaysProcessed++

		// The budget check runs only after a completed save so that a
		// resumed run finds the just-saved day and continues from the next.
		if r.Budget > 0 && r.now().Sub(runStart) > r.Budget-r.SafetyMargin {
			outcome.TerminatedEarly = !day.Equal(finish)
			if outcome.TerminatedEarly {
				r.Logger.Info("run budget reached, terminating early",
					zap.String("last_day", day.String()),
					zap.Duration("elapsed", r.now().Sub(runStart)))
			}
			return outcome, nil
		}
	}

	r.Logger.Info("run completed",
		zap.String("start_day", outcome.StartDay.String()),
		zap.String("last_day", outcome.LastDay.String()),
		zap.Int("days", outcome.DaysProcessed))
	return outcome, nil
}

func (r *Runner) processDay(ctx context.Context, day date.Day, refresh bool) error {
	previous, err := r.Snapshots.Load(ctx, day.Prev())
	if err != nil {
		return err
	}

	transactions, err := r.fetchDay(ctx, day, refresh)
	if err != nil {
		return err
	}

	snapshot, err := Accumulate(previous, transactions, day)
	if err != nil {
		return fmt.Errorf("accumulate %s: %w", day, err)
	}

	if err := r.Snapshots.Save(ctx, day, snapshot); err != nil {
		return err
	}

	r.Logger.Debug("processed day",
		zap.String("day", day.String()),
		zap.Int("transactions", len(transactions)),
		zap.Int("records", len(snapshot)))

	if r.Mirror != nil {
		if err := r.Mirror.WriteDay(ctx, day, snapshot); err != nil {
			r.Logger.Warn("warehouse mirror failed",
				zap.String("day", day.String()),
				zap.Error(err))
		}
	}
	return nil
}

// fetchDay reads the day's transactions, bypassing the source's cache during
// hinted recomputation so the amended upstream data is what gets folded in.
func (r *Runner) fetchDay(ctx context.Context, day date.Day, refresh bool) ([]model.Transaction, error) {
	if refresh {
		if refresher, ok := r.Source.(DayRefresher); ok {
			return refresher.RefreshDay(ctx, day)
		}
	}
	return r.Source.FetchDay(ctx, day)
}

// discoverStartDay probes forward from earliest for the first day without a
// snapshot. Probing forward terminates at the correct boundary even when the
// store contains gaps, because the first gap is exactly the day whose
// computation is missing.
func (r *Runner) discoverStartDay(ctx context.Context, earliest, finish date.Day) (date.Day, error) {
	for day := earliest; day.Before(finish); day = day.Next() {
		if err := ctx.Err(); err != nil {
			return date.Day{}, err
		}
		exists, err := r.Snapshots.Exists(ctx, day)
		if err != nil {
			return date.Day{}, err
		}
		if !exists {
			return day, nil
		}
	}
	return finish, nil
}
