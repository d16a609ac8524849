// Package scheduler drives tasks from inside the process: the poll command
// calls every cron task until it reports no more work, optionally on a
// fixed interval.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// maxIdleRounds stops a drain whose calls keep failing without progress.
const maxIdleRounds = 3

// Every runs fn immediately and then on every tick until ctx is done.
func Every(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error, logger *zap.SugaredLogger) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if err := fn(ctx); err != nil {
			logger.Errorw("scheduled run failed", "task", name, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Drain calls task until it reports no more work. Rounds that only fail are
// counted and the drain gives up after a few of them in a row, so an outage
// of an upstream service does not spin forever.
func Drain(ctx context.Context, task Task, logger *zap.SugaredLogger) (Progress, error) {
	var total Progress
	var cursor uint
	idle := 0
	logger = logger.With("task", task.Name)

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		p, err := task.Run(ctx, cursor)
		total.Processed += p.Processed
		total.Updated += p.Updated
		total.Failed += p.Failed
		total.Runtime += p.Runtime
		if err != nil {
			return total, err
		}

		if p.Processed == 0 || p.Failed == p.Processed {
			idle++
		} else {
			idle = 0
		}
		if !p.HasMore {
			break
		}
		if idle >= maxIdleRounds {
			logger.Warnw("giving up on a task that makes no progress", "rounds", idle)
			total.HasMore = true
			break
		}
		cursor = p.NextCursor
	}

	logger.Infow("task drained",
		"processed", total.Processed,
		"updated", total.Updated,
		"failed", total.Failed,
		"runtime", total.Runtime,
	)
	return total, nil
}

// DrainAll drains the tasks one after another. A failing task is logged and
// the remaining tasks still run.
func DrainAll(ctx context.Context, tasks []Task, logger *zap.SugaredLogger) error {
	for _, task := range tasks {
		if _, err := Drain(ctx, task, logger); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Errorw("task failed", "task", task.Name, "error", err)
		}
	}
	return nil
}
