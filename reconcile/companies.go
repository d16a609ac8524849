package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm/clause"

	"jobboard/ats"
	"jobboard/models"
)

type CompanyInput struct {
	Name    string                  `json:"name"`
	Slug    string                  `json:"slug"`
	Website models.Optional[string] `json:"website"`
	// ATSURL is a feed URL or "none". Setting it settles detection for the
	// company; null reopens it.
	ATSURL models.Optional[string] `json:"atsUrl"`
	Status models.Optional[string] `json:"status"`
}

// key returns the company's natural key.
func (in CompanyInput) key() string {
	if s := strings.TrimSpace(in.Slug); s != "" {
		return models.Slugify(s)
	}
	return models.Slugify(in.Name)
}

var companyKey = []clause.Column{{Name: "slug"}}

// Companies upserts companies by slug.
func (r *Reconciler) Companies(ctx context.Context, inputs []CompanyInput) (Result, error) {
	res := NewResult()
	now := r.now()

	for _, sp := range spans(inputs, r.chunkSize) {
		start, part := sp.start, sp.items
		slugs := make([]string, 0, len(part))
		for _, in := range part {
			slugs = append(slugs, in.key())
		}
		existing, err := models.GetCompaniesBySlugs(r.db.WithContext(ctx), slugs)
		if err != nil {
			return res, fmt.Errorf("load existing companies: %w", err)
		}

		var batch []pending[models.Company]
		inBatch := make(map[string]bool)
		flush := func() {
			for _, p := range writeRows(ctx, r.db, companyKey, batch, &res, r.logger) {
				existing[p.row.Slug] = p.row
			}
			batch = batch[:0]
			inBatch = make(map[string]bool)
		}

		for i, in := range part {
			index := start + i
			key := in.key()
			if key == "" {
				res.fail(index, "name or slug is required")
				continue
			}
			if inBatch[key] {
				flush()
			}

			var prior *models.Company
			if c, ok := existing[key]; ok {
				prior = &c
			}

			row, columns, err := buildCompany(key, prior, in, now)
			if err != nil {
				res.fail(index, "%v", err)
				continue
			}
			batch = append(batch, pending[models.Company]{index: index, existed: prior != nil, row: row, columns: columns})
			inBatch[key] = true
		}
		flush()
	}

	sortErrors(&res)
	r.logger.Infow("companies reconciled", "inputs", len(inputs), "created", res.Created, "updated", res.Updated, "errors", len(res.Errors))
	return res, nil
}

// buildCompany returns the merged row and the supplied columns.
func buildCompany(key string, prior *models.Company, in CompanyInput, now time.Time) (models.Company, []string, error) {
	c := models.Company{Slug: key, ATSPlatform: models.ATSUnknown, Status: models.CompanyActive}
	if prior != nil {
		c = *prior
		c.ID = 0
		c.CreatedAt = time.Time{}
	}
	var columns []string

	if name := strings.TrimSpace(in.Name); name != "" {
		c.Name = name
		columns = append(columns, "name")
	}
	if c.Name == "" {
		return c, nil, fmt.Errorf("name is required")
	}

	if in.Website.Set {
		c.Website = strings.TrimSpace(in.Website.Value)
		columns = append(columns, "website")
	}

	if in.ATSURL.Set {
		feedURL := strings.TrimSpace(in.ATSURL.Value)
		switch {
		case in.ATSURL.Null || feedURL == "":
			c.ATSURL = nil
			c.ATSPlatform = models.ATSUnknown
			c.ATSAttempts = 0
		case strings.EqualFold(feedURL, models.ATSURLNone):
			none := models.ATSURLNone
			c.ATSURL = &none
			c.ATSPlatform = models.ATSNone
		default:
			canonical, p, ok := ats.MatchFeedURL(feedURL)
			if !ok {
				return c, nil, fmt.Errorf("atsUrl %q is not a supported feed URL", feedURL)
			}
			c.ATSURL = &canonical
			c.ATSPlatform = models.ATSPlatform(p)
		}
		columns = append(columns, "ats_platform", "ats_url", "ats_attempts")
	}

	if v, ok := in.Status.Get(); ok {
		switch models.CompanyStatus(v) {
		case models.CompanyActive, models.CompanyInactive:
			c.Status = models.CompanyStatus(v)
		default:
			return c, nil, fmt.Errorf("unknown status %q", v)
		}
		columns = append(columns, "status")
	}
	c.UpdatedAt = now
	columns = append(columns, "updated_at")

	return c, columns, nil
}
