package reconcile

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jobboard/models"
)

// DefaultChunkSize bounds the rows sent in one write statement.
const DefaultChunkSize = 500

// Reconciler writes ingested and fetched records against stored state using
// upserts on each entity's natural key.
type Reconciler struct {
	db        *gorm.DB
	logger    *zap.SugaredLogger
	chunkSize int
	now       func() time.Time
}

type Option func(*Reconciler)

func WithChunkSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func New(db *gorm.DB, logger *zap.SugaredLogger, opts ...Option) *Reconciler {
	r := &Reconciler{
		db:        db,
		logger:    logger.With("component", "reconciler"),
		chunkSize: DefaultChunkSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// pending is a row waiting for its chunk to be written. columns are the
// columns the input supplied; only those are assigned when the row already
// exists, so values written by others since the row was read survive.
type pending[T any] struct {
	index   int
	existed bool
	row     T
	columns []string
}

// upsertOn assigns columns on a conflict with target.
func upsertOn(target []clause.Column, columns []string) clause.OnConflict {
	return clause.OnConflict{Columns: target, DoUpdates: clause.AssignmentColumns(columns)}
}

// writeRows writes rows grouped by their supplied column set, one statement
// per group. Rows of one call never share a natural key.
func writeRows[T any](ctx context.Context, db *gorm.DB, target []clause.Column, rows []pending[T], res *Result, logger *zap.SugaredLogger) []pending[T] {
	var order []string
	groups := make(map[string][]pending[T])
	for _, p := range rows {
		key := strings.Join(p.columns, ",")
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}

	var written []pending[T]
	for _, key := range order {
		group := groups[key]
		written = append(written, writeChunk(ctx, db, upsertOn(target, group[0].columns), group, res, logger)...)
	}
	return written
}

// writeChunk upserts rows in one statement. When the statement fails every
// row is retried on its own so the failure is pinned to the items that
// caused it.
func writeChunk[T any](ctx context.Context, db *gorm.DB, conflict clause.OnConflict, rows []pending[T], res *Result, logger *zap.SugaredLogger) []pending[T] {
	if len(rows) == 0 {
		return nil
	}

	batch := make([]T, len(rows))
	for i := range rows {
		batch[i] = rows[i].row
	}

	err := db.WithContext(ctx).Clauses(conflict).Create(&batch).Error
	if err == nil {
		for _, p := range rows {
			count(res, p.existed)
		}
		return rows
	}

	logger.Warnw("chunk write failed, retrying rows one by one", "rows", len(rows), "error", err)

	var written []pending[T]
	for _, p := range rows {
		row := p.row
		if err := db.WithContext(ctx).Clauses(conflict).Create(&row).Error; err != nil {
			res.fail(p.index, "write failed: %v", err)
			continue
		}
		count(res, p.existed)
		written = append(written, p)
	}

	return written
}

func count(res *Result, existed bool) {
	if existed {
		res.Updated++
	} else {
		res.Created++
	}
}

func sortErrors(res *Result) {
	slices.SortStableFunc(res.Errors, func(a, b ItemError) int {
		return a.Index - b.Index
	})
}

// chunkOf splits s into slices of at most n elements.
func chunkOf[T any](s []T, n int) [][]T {
	var out [][]T
	for n > 0 && len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	if len(s) > 0 {
		out = append(out, s)
	}
	return out
}

type span[T any] struct {
	start int
	items []T
}

// spans is chunkOf with each chunk's offset into s.
func spans[T any](s []T, n int) []span[T] {
	var out []span[T]
	start := 0
	for _, part := range chunkOf(s, n) {
		out = append(out, span[T]{start: start, items: part})
		start += len(part)
	}
	return out
}

// slugsOf normalises references to other entities the way their own slugs
// are stored.
func slugsOf(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		out = append(out, models.Slugify(ref))
	}
	return out
}
