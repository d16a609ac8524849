package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm/clause"

	"jobboard/models"
)

type InvestorInput struct {
	Name     string                  `json:"name"`
	Slug     string                  `json:"slug"`
	Website  models.Optional[string] `json:"website"`
	Bio      models.Optional[string] `json:"bio"`
	Location models.Optional[string] `json:"location"`
	// Portfolio lists company slugs. Links are only ever added.
	Portfolio []string `json:"portfolio"`
}

func (in InvestorInput) key() string {
	if s := strings.TrimSpace(in.Slug); s != "" {
		return models.Slugify(s)
	}
	return models.Slugify(in.Name)
}

var investorKey = []clause.Column{{Name: "slug"}}

// Investors upserts investors by slug and adds their portfolio links. An item
// naming an unknown portfolio company is rejected as a whole.
func (r *Reconciler) Investors(ctx context.Context, inputs []InvestorInput) (Result, error) {
	res := NewResult()
	now := r.now()

	for _, sp := range spans(inputs, r.chunkSize) {
		if err := r.investorChunk(ctx, sp.items, sp.start, now, &res); err != nil {
			return res, err
		}
	}

	sortErrors(&res)
	r.logger.Infow("investors reconciled", "inputs", len(inputs), "created", res.Created, "updated", res.Updated, "errors", len(res.Errors))
	return res, nil
}

func (r *Reconciler) investorChunk(ctx context.Context, part []InvestorInput, offset int, now time.Time, res *Result) error {
	var slugs, companySlugs []string
	for _, in := range part {
		slugs = append(slugs, in.key())
		companySlugs = append(companySlugs, slugsOf(in.Portfolio)...)
	}

	var (
		existing  map[string]models.Investor
		companies map[string]models.Company
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		existing, err = models.GetInvestorsBySlugs(r.db.WithContext(gctx), slugs)
		return err
	})
	g.Go(func() error {
		var err error
		companies, err = models.GetCompaniesBySlugs(r.db.WithContext(gctx), companySlugs)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load investors and portfolio companies: %w", err)
	}

	links := make(map[string][]uint)
	var batch []pending[models.Investor]
	inBatch := make(map[string]bool)
	flush := func() error {
		written := writeRows(ctx, r.db, investorKey, batch, res, r.logger)
		batch = batch[:0]
		inBatch = make(map[string]bool)
		if len(written) == 0 {
			return nil
		}

		var writtenSlugs []string
		for _, p := range written {
			existing[p.row.Slug] = p.row
			writtenSlugs = append(writtenSlugs, p.row.Slug)
		}
		return r.linkPortfolio(ctx, writtenSlugs, links)
	}

	for i, in := range part {
		index := offset + i
		key := in.key()
		if key == "" {
			res.fail(index, "name or slug is required")
			continue
		}

		var companyIDs []uint
		var missing []string
		for _, s := range in.Portfolio {
			c, ok := companies[models.Slugify(s)]
			if !ok {
				missing = append(missing, s)
				continue
			}
			companyIDs = append(companyIDs, c.ID)
		}
		if len(missing) > 0 {
			res.fail(index, "unknown portfolio companies %v", missing)
			continue
		}

		if inBatch[key] {
			if err := flush(); err != nil {
				return err
			}
		}

		var prior *models.Investor
		if inv, ok := existing[key]; ok {
			prior = &inv
		}
		row, columns, err := buildInvestor(key, prior, in, now)
		if err != nil {
			res.fail(index, "%v", err)
			continue
		}

		batch = append(batch, pending[models.Investor]{index: index, existed: prior != nil, row: row, columns: columns})
		inBatch[key] = true
		links[key] = append(links[key], companyIDs...)
	}

	return flush()
}

func buildInvestor(key string, prior *models.Investor, in InvestorInput, now time.Time) (models.Investor, []string, error) {
	inv := models.Investor{Slug: key}
	if prior != nil {
		inv = *prior
		inv.ID = 0
		inv.CreatedAt = time.Time{}
		inv.Portfolio = nil
	}
	var columns []string

	if name := strings.TrimSpace(in.Name); name != "" {
		inv.Name = name
		columns = append(columns, "name")
	}
	if inv.Name == "" {
		return inv, nil, fmt.Errorf("name is required")
	}

	if in.Website.Set {
		inv.Website = strings.TrimSpace(in.Website.Value)
		columns = append(columns, "website")
	}
	if in.Bio.Set {
		inv.Bio = trimmedPtr(in.Bio)
		columns = append(columns, "bio")
	}
	if in.Location.Set {
		inv.Location = trimmedPtr(in.Location)
		columns = append(columns, "location")
	}
	inv.UpdatedAt = now
	columns = append(columns, "updated_at")

	return inv, columns, nil
}

// linkPortfolio adds the pending portfolio links of the given investors.
func (r *Reconciler) linkPortfolio(ctx context.Context, slugs []string, links map[string][]uint) error {
	investors, err := models.GetInvestorsBySlugs(r.db.WithContext(ctx), slugs)
	if err != nil {
		return fmt.Errorf("reload investors: %w", err)
	}

	var rows []models.InvestorCompany
	for _, s := range slugs {
		inv, ok := investors[s]
		if !ok {
			continue
		}
		for _, companyID := range links[s] {
			rows = append(rows, models.InvestorCompany{InvestorID: inv.ID, CompanyID: companyID})
		}
		delete(links, s)
	}
	if len(rows) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&rows, r.chunkSize).Error
}

// trimmedPtr maps null and blank values to nil.
func trimmedPtr(o models.Optional[string]) *string {
	v, ok := o.Get()
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return nil
	}
	return &v
}
