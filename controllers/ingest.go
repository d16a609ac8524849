package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"jobboard/reconcile"
)

const maxIngestBody = 16 << 20

// IngestController accepts batches from data producers. A batch is never
// aborted by a bad item: every failure is reported by index next to the
// counts of what was written.
type IngestController struct {
	Reconciler *reconcile.Reconciler
	Logger     *zap.SugaredLogger
}

func (ic IngestController) Companies(c *gin.Context) {
	ingest(c, ic.Logger, "companies", func(ctx context.Context, items []reconcile.CompanyInput, _ map[string]json.RawMessage) (reconcile.Result, error) {
		return ic.Reconciler.Companies(ctx, items)
	})
}

func (ic IngestController) Jobs(c *gin.Context) {
	ingest(c, ic.Logger, "jobs", func(ctx context.Context, items []reconcile.JobRecord, body map[string]json.RawMessage) (reconcile.Result, error) {
		var closeMissing []string
		if raw, ok := body["closeMissing"]; ok {
			if err := json.Unmarshal(raw, &closeMissing); err != nil {
				return reconcile.Result{}, fmt.Errorf("%w: closeMissing must be an array of company slugs", ErrMalformedBody)
			}
		}
		return ic.Reconciler.IngestJobs(ctx, items, closeMissing)
	})
}

func (ic IngestController) Investors(c *gin.Context) {
	ingest(c, ic.Logger, "investors", func(ctx context.Context, items []reconcile.InvestorInput, _ map[string]json.RawMessage) (reconcile.Result, error) {
		return ic.Reconciler.Investors(ctx, items)
	})
}

func (ic IngestController) Fundraises(c *gin.Context) {
	ingest(c, ic.Logger, "fundraises", func(ctx context.Context, items []reconcile.FundraiseInput, _ map[string]json.RawMessage) (reconcile.Result, error) {
		return ic.Reconciler.Fundraises(ctx, items)
	})
}

// ingest decodes the plural key of the body and hands the items to write.
// body is passed along for keys other than the plural one.
func ingest[T any](c *gin.Context, logger *zap.SugaredLogger, plural string, write func(ctx context.Context, items []T, body map[string]json.RawMessage) (reconcile.Result, error)) {
	logger = logger.With("entity", plural, "request_id", c.GetString(requestIDKey))
	if p := Producer(c); p != "" {
		logger = logger.With("producer", p)
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxIngestBody)

	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequestErr(c, fmt.Errorf("%w: %v", ErrMalformedBody, err))
		return
	}

	raw, ok := body[plural]
	if !ok {
		RespondBadRequestErr(c, fmt.Errorf("%w: missing %q", ErrMalformedBody, plural))
		return
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil || elems == nil {
		RespondBadRequestErr(c, fmt.Errorf("%w: %q must be an array", ErrMalformedBody, plural))
		return
	}

	items, indexes, res := decodeItems[T](elems)

	written, err := write(c.Request.Context(), items, body)
	if errors.Is(err, ErrMalformedBody) {
		RespondBadRequestErr(c, err)
		return
	}
	if err != nil {
		logger.Errorw("ingestion failed", "error", err)
		RespondInternalErr(c)
		return
	}
	res.Merge(written, indexes)

	logger.Infow("ingested",
		"items", len(elems),
		"created", res.Created,
		"updated", res.Updated,
		"errors", len(res.Errors),
	)
	RespondOK(c, res)
}

// decodeItems decodes every element on its own. Elements that do not decode
// become item errors; indexes maps each decoded item back to its position in
// the request.
func decodeItems[T any](elems []json.RawMessage) ([]T, []int, reconcile.Result) {
	res := reconcile.NewResult()
	items := make([]T, 0, len(elems))
	indexes := make([]int, 0, len(elems))

	for i, elem := range elems {
		var item T
		if err := json.Unmarshal(elem, &item); err != nil {
			res.Fail(i, "invalid item: "+err.Error())
			continue
		}
		items = append(items, item)
		indexes = append(indexes, i)
	}

	return items, indexes, res
}
