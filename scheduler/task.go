package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"jobboard/budget"
	"jobboard/core"
	"jobboard/driver"
	"jobboard/enrich"
)

// Progress is what one invocation of a task reports back to its caller.
type Progress struct {
	Processed  int
	Updated    int
	Failed     int
	HasMore    bool
	NextCursor uint
	Runtime    time.Duration
}

// Task is one unit of incremental work, run under a fresh budget per call.
type Task struct {
	Name   string
	Budget time.Duration
	run    func(ctx context.Context, b *budget.Budget, cursor uint) (Progress, error)
}

func (t Task) Run(ctx context.Context, cursor uint) (Progress, error) {
	return t.run(ctx, budget.New(t.Budget), cursor)
}

// DriverTask wraps a one-company-per-call driver step. Drivers keep no
// cursor.
func DriverTask(name string, ceiling time.Duration, step func(context.Context, *budget.Budget) (driver.Report, error)) Task {
	return Task{
		Name:   name,
		Budget: ceiling,
		run: func(ctx context.Context, b *budget.Budget, _ uint) (Progress, error) {
			rep, err := step(ctx, b)
			return Progress{
				Processed: rep.Processed,
				Updated:   rep.Created + rep.Updated + rep.Closed,
				Failed:    rep.Failed,
				HasMore:   rep.HasMore,
				Runtime:   rep.Runtime,
			}, err
		},
	}
}

// AgentTask wraps an enrichment agent with its configured pacing and budget.
func AgentTask[T any](name string, agent enrich.Agent[T], cfg core.AgentConfig, logger *zap.SugaredLogger) Task {
	settings := enrich.Settings{Delay: cfg.Delay, Batch: cfg.Batch}
	return Task{
		Name:   name,
		Budget: cfg.Budget,
		run: func(ctx context.Context, b *budget.Budget, cursor uint) (Progress, error) {
			rep, err := enrich.Run(ctx, agent, b, settings, cursor, logger)
			return Progress{
				Processed:  rep.Processed,
				Updated:    rep.Updated,
				Failed:     rep.Failed,
				HasMore:    rep.HasMore,
				NextCursor: rep.NextCursor,
				Runtime:    rep.Runtime,
			}, err
		},
	}
}

// NewTask builds a task from a plain function, for callers outside the
// driver and enrich packages.
func NewTask(name string, ceiling time.Duration, run func(ctx context.Context, b *budget.Budget, cursor uint) (Progress, error)) Task {
	return Task{Name: name, Budget: ceiling, run: run}
}
