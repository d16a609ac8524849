// Package enrich fills fields that ingestion left empty by asking an LLM
// classifier, one record at a time.
//
// Every agent is additive only: a field that already holds a value is never
// written, and a record whose answer cannot be parsed stays empty so a later
// run picks it up again. One Run does as much work as its budget allows and
// reports whether more is left; callers invoke it again until HasMore is
// false.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"jobboard/budget"
	"jobboard/llm"
	"jobboard/ratelimit"
)

// Agent enriches one kind of record.
type Agent[T any] interface {
	Name() string
	// Candidates returns up to limit records with an id above after that
	// still miss the agent's field, ordered by id.
	Candidates(ctx context.Context, after uint, limit int) ([]T, error)
	ID(item T) uint
	// Enrich classifies one record and writes what it learnt. It reports
	// whether a field was written.
	Enrich(ctx context.Context, item T) (bool, error)
}

type Settings struct {
	// Delay between two Enrich calls.
	Delay time.Duration
	Batch int
}

type Report struct {
	Agent      string        `json:"agent"`
	Processed  int           `json:"processed"`
	Updated    int           `json:"updated"`
	Failed     int           `json:"failed"`
	HasMore    bool          `json:"hasMore"`
	NextCursor uint          `json:"nextCursor,omitempty"`
	Runtime    time.Duration `json:"-"`
}

// Run enriches candidates after cursor until none are left or the budget is
// exhausted. Failed records are skipped for the rest of the run; the cursor in
// the report lets the next invocation resume behind them.
func Run[T any](ctx context.Context, agent Agent[T], b *budget.Budget, s Settings, cursor uint, logger *zap.SugaredLogger) (rep Report, err error) {
	rep.Agent = agent.Name()
	logger = logger.With("agent", agent.Name())
	defer func() { rep.Runtime = b.Elapsed() }()

	batch := s.Batch
	if batch <= 0 {
		batch = 50
	}
	pacer := ratelimit.NewPacer(s.Delay)

	for !b.Exhausted() {
		items, err := agent.Candidates(ctx, cursor, batch)
		if err != nil {
			return rep, fmt.Errorf("%s: select candidates: %w", agent.Name(), err)
		}
		if len(items) == 0 {
			rep.NextCursor = 0
			logger.Infof("Backlog drained after %d records", rep.Processed)
			return rep, nil
		}

		for _, item := range items {
			if b.Exhausted() {
				break
			}
			if err := pacer.Wait(ctx); err != nil {
				rep.HasMore, rep.NextCursor = true, cursor
				return rep, err
			}

			id := agent.ID(item)
			ictx, cancel := b.Context(ctx)
			updated, err := agent.Enrich(ictx, item)
			cancel()
			cursor = id
			rep.Processed++

			switch {
			case errors.Is(err, llm.ErrNoData):
				rep.Failed++
				logger.Debugw("classifier gave no usable answer", "id", id, "error", err)
			case err != nil:
				rep.Failed++
				logger.Warnw("enrichment failed", "id", id, "error", err)
			case updated:
				rep.Updated++
			}
		}
	}

	more, err := agent.Candidates(ctx, cursor, 1)
	if err != nil {
		return rep, fmt.Errorf("%s: check backlog: %w", agent.Name(), err)
	}
	rep.HasMore = len(more) > 0
	if rep.HasMore {
		rep.NextCursor = cursor
	}
	logger.Infow("budget spent",
		"processed", rep.Processed,
		"updated", rep.Updated,
		"failed", rep.Failed,
		"has_more", rep.HasMore,
	)

	return rep, nil
}

// fillEmpty writes value into column only while the column is still empty.
func fillEmpty(db *gorm.DB, model any, id uint, column string, value any) (bool, error) {
	res := db.Model(model).
		Where("id = ?", id).
		Where(fmt.Sprintf("(%s IS NULL OR %s = '')", column, column)).
		Updates(map[string]any{
			column:       value,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
