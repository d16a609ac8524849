package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"

	"jobboard/ats"
	"jobboard/models"
)

// JobInput is one job as supplied by a producer or an ATS feed. Fields left
// unset keep the stored value; an explicit null clears it.
type JobInput struct {
	ProviderJobID string                     `json:"providerJobId"`
	Title         models.Optional[string]    `json:"title"`
	URL           models.Optional[string]    `json:"url"`
	Location      models.Optional[string]    `json:"location"`
	Remote        models.Optional[bool]      `json:"remote"`
	Function      models.Optional[string]    `json:"function"`
	Department    models.Optional[string]    `json:"department"`
	Description   models.Optional[string]    `json:"description"`
	PostedAt      models.Optional[time.Time] `json:"postedAt"`
	Status        models.Optional[string]    `json:"status"`
	Raw           json.RawMessage            `json:"raw,omitempty"`
}

// JobRecord is a JobInput addressed to a company by slug, as posted to the
// ingestion endpoint.
type JobRecord struct {
	Company string `json:"company"`
	JobInput
}

type JobOptions struct {
	// CloseMissing closes the company's active feed jobs absent from the input.
	CloseMissing bool
	// FeedURL is stamped on every written row when set.
	FeedURL string
}

// FromFeed turns normalized feed jobs into inputs. Feed jobs are active by
// definition; function is never supplied by a feed.
func FromFeed(jobs []ats.Job) []JobInput {
	out := make([]JobInput, 0, len(jobs))
	for _, j := range jobs {
		in := JobInput{
			ProviderJobID: j.ProviderJobID,
			Title:         models.Some(j.Title),
			URL:           models.Some(j.URL),
			Location:      models.Some(j.Location),
			Remote:        models.Some(j.Remote),
			Department:    models.Some(j.Department),
			Description:   models.Some(j.Description),
			Status:        models.Some(string(models.JobActive)),
			Raw:           j.Raw,
		}
		if j.PostedAt != nil {
			in.PostedAt = models.Some(*j.PostedAt)
		}
		out = append(out, in)
	}
	return out
}

var jobKey = []clause.Column{{Name: "company_id"}, {Name: "provider_job_id"}}

// Jobs reconciles one company's jobs. Writes happen in input order, in chunks;
// a provider id repeated within the input flushes the pending chunk so no
// statement touches the same key twice.
func (r *Reconciler) Jobs(ctx context.Context, companyID uint, inputs []JobInput, opts JobOptions) (Result, error) {
	res := NewResult()
	now := r.now()
	logger := r.logger.With("company_id", companyID)

	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if id := strings.TrimSpace(in.ProviderJobID); id != "" {
			seen[id] = true
		}
	}

	for _, sp := range spans(inputs, r.chunkSize) {
		if err := r.jobChunk(ctx, companyID, sp.items, sp.start, opts, now, &res); err != nil {
			return res, err
		}
	}

	if opts.CloseMissing {
		closed, err := r.closeMissing(ctx, companyID, seen, now)
		if err != nil {
			return res, fmt.Errorf("close missing jobs for company %d: %w", companyID, err)
		}
		res.addClosed(closed)
	}

	sortErrors(&res)
	logger.Infow("jobs reconciled",
		"inputs", len(inputs),
		"created", res.Created,
		"updated", res.Updated,
		"closed", res.Closed,
		"errors", len(res.Errors),
	)

	return res, nil
}

func (r *Reconciler) jobChunk(ctx context.Context, companyID uint, inputs []JobInput, offset int, opts JobOptions, now time.Time, res *Result) error {
	var ids []string
	for _, in := range inputs {
		if id := strings.TrimSpace(in.ProviderJobID); id != "" {
			ids = append(ids, id)
		}
	}

	existing, err := models.GetJobsByProviderIDs(r.db.WithContext(ctx), companyID, ids)
	if err != nil {
		return fmt.Errorf("load existing jobs for company %d: %w", companyID, err)
	}

	var batch []pending[models.Job]
	inBatch := make(map[string]bool)
	flush := func() {
		written := writeRows(ctx, r.db, jobKey, batch, res, r.logger)
		// Later duplicates in this input build on what was just written.
		for _, p := range written {
			if p.row.ProviderJobID != nil {
				existing[*p.row.ProviderJobID] = p.row
			}
		}
		batch = batch[:0]
		inBatch = make(map[string]bool)
	}

	for i, in := range inputs {
		index := offset + i
		id := strings.TrimSpace(in.ProviderJobID)

		if id != "" && inBatch[id] {
			flush()
		}

		var prior *models.Job
		if id != "" {
			if job, ok := existing[id]; ok {
				prior = &job
			}
		}

		row, columns, err := buildJob(companyID, id, prior, in, opts.FeedURL, now)
		if err != nil {
			res.fail(index, "%v", err)
			continue
		}

		batch = append(batch, pending[models.Job]{index: index, existed: prior != nil, row: row, columns: columns})
		if id != "" {
			inBatch[id] = true
		}
	}
	flush()

	return nil
}

// buildJob applies the supplied fields of in onto the stored row, or onto a
// fresh row when there is none. It also returns the supplied columns, the
// only ones assigned when the row already exists.
func buildJob(companyID uint, providerID string, prior *models.Job, in JobInput, feedURL string, now time.Time) (models.Job, []string, error) {
	job := models.Job{CompanyID: companyID, Status: models.JobActive}
	if prior != nil {
		job = *prior
		job.ID = 0
		job.CreatedAt = time.Time{}
	}
	if providerID != "" {
		job.ProviderJobID = &providerID
	}
	var columns []string

	if in.Title.Set {
		job.Title = strings.TrimSpace(in.Title.Value)
		columns = append(columns, "title")
	}
	if job.Title == "" {
		return job, nil, fmt.Errorf("title is required")
	}

	if feedURL != "" {
		job.FeedURL = feedURL
		columns = append(columns, "feed_url")
	}
	if in.URL.Set {
		job.URL = in.URL.Value
		columns = append(columns, "url")
	}
	if in.Location.Set {
		job.Location = strings.TrimSpace(in.Location.Value)
		columns = append(columns, "location")
	}
	if in.Remote.Set {
		job.Remote = in.Remote.Value
		columns = append(columns, "remote")
	}
	if in.Function.Set {
		job.Function = nil
		if v, ok := in.Function.Get(); ok && strings.TrimSpace(v) != "" {
			fn := strings.TrimSpace(v)
			job.Function = &fn
		}
		columns = append(columns, "function")
	}
	if in.Department.Set {
		job.Department = in.Department.Value
		columns = append(columns, "department")
	}
	if in.Description.Set {
		job.Description = in.Description.Value
		columns = append(columns, "description")
	}
	if in.PostedAt.Set {
		job.PostedAt = in.PostedAt.Ptr()
		columns = append(columns, "posted_at")
	}
	if v, ok := in.Status.Get(); ok {
		switch models.JobStatus(v) {
		case models.JobActive, models.JobClosed:
			job.Status = models.JobStatus(v)
		default:
			return job, nil, fmt.Errorf("unknown status %q", v)
		}
		columns = append(columns, "status")
	}
	if len(in.Raw) > 0 {
		job.Raw = datatypes.JSON(in.Raw)
		columns = append(columns, "raw")
	}
	job.LastSeenAt = now
	job.UpdatedAt = now
	columns = append(columns, "last_seen_at", "updated_at")

	return job, columns, nil
}

func (r *Reconciler) closeMissing(ctx context.Context, companyID uint, seen map[string]bool, now time.Time) (int, error) {
	active, err := models.ActiveProviderJobs(r.db.WithContext(ctx), companyID)
	if err != nil {
		return 0, err
	}

	var stale []uint
	for providerID, id := range active {
		if !seen[providerID] {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	slices.Sort(stale)

	closed := 0
	for _, ids := range chunkOf(stale, r.chunkSize) {
		n, err := models.CloseJobs(r.db.WithContext(ctx), ids, now)
		if err != nil {
			return closed, err
		}
		closed += int(n)
	}

	r.logger.Infow("closed missing jobs", "company_id", companyID, "closed", closed)
	return closed, nil
}

// IngestJobs resolves each record's company by slug and reconciles the jobs
// company by company. closeMissing names the companies whose feed the batch
// is a full snapshot of.
func (r *Reconciler) IngestJobs(ctx context.Context, records []JobRecord, closeMissing []string) (Result, error) {
	res := NewResult()

	slugSet := make(map[string]bool)
	for _, rec := range records {
		slugSet[models.Slugify(rec.Company)] = true
	}
	for _, s := range closeMissing {
		slugSet[models.Slugify(s)] = true
	}
	delete(slugSet, "")

	slugs := maps.Keys(slugSet)
	slices.Sort(slugs)
	companies, err := models.GetCompaniesBySlugs(r.db.WithContext(ctx), slugs)
	if err != nil {
		return res, fmt.Errorf("load companies: %w", err)
	}

	type group struct {
		company models.Company
		inputs  []JobInput
		indexes []int
	}
	var order []string
	groups := make(map[string]*group)

	for i, rec := range records {
		slug := models.Slugify(rec.Company)
		if slug == "" {
			res.fail(i, "company is required")
			continue
		}
		company, ok := companies[slug]
		if !ok {
			res.fail(i, "unknown company %q", rec.Company)
			continue
		}
		g, ok := groups[slug]
		if !ok {
			g = &group{company: company}
			groups[slug] = g
			order = append(order, slug)
		}
		g.inputs = append(g.inputs, rec.JobInput)
		g.indexes = append(g.indexes, i)
	}

	closeSet := make(map[string]bool, len(closeMissing))
	for _, s := range closeMissing {
		s = models.Slugify(s)
		if _, ok := companies[s]; !ok {
			r.logger.Warnw("close missing requested for unknown company", "company", s)
			continue
		}
		closeSet[s] = true
		if _, ok := groups[s]; !ok {
			groups[s] = &group{company: companies[s]}
			order = append(order, s)
		}
	}

	for _, slug := range order {
		g := groups[slug]
		part, err := r.Jobs(ctx, g.company.ID, g.inputs, JobOptions{CloseMissing: closeSet[slug]})
		if err != nil {
			return res, err
		}
		res.Merge(part, g.indexes)
	}

	sortErrors(&res)
	return res, nil
}
