package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jobboard/models"
)

type FundraiseInput struct {
	Company     string                  `json:"company"`
	RoundType   string                  `json:"roundType"`
	AnnouncedOn string                  `json:"announcedOn"`
	Amount      models.Optional[int64]  `json:"amount"`
	Currency    models.Optional[string] `json:"currency"`
	SourceURL   models.Optional[string] `json:"sourceUrl"`
	// Investor slugs. An investor listed in both is a lead.
	Leads        []string `json:"leads"`
	Participants []string `json:"participants"`
}

var fundraiseKey = []clause.Column{{Name: "company_id"}, {Name: "round_type"}, {Name: "announced_on"}}

// A participant never demotes an existing lead.
var fundraiseInvestorConflict = clause.OnConflict{
	Columns: []clause.Column{{Name: "fundraise_id"}, {Name: "investor_id"}},
	DoUpdates: clause.Set{{
		Column: clause.Column{Name: "role"},
		Value:  gorm.Expr("CASE WHEN excluded.role = ? THEN excluded.role ELSE fundraise_investors.role END", models.RoleLead),
	}},
}

// Fundraises upserts rounds on (company, round type, announced date). A second
// report of the same round overwrites the supplied scalar fields and adds its
// investors to the round; investors already linked are kept. Every investor
// of a round is also linked to the company's portfolio.
func (r *Reconciler) Fundraises(ctx context.Context, inputs []FundraiseInput) (Result, error) {
	res := NewResult()
	now := r.now()

	var companySlugs, investorSlugs []string
	for _, in := range inputs {
		companySlugs = append(companySlugs, models.Slugify(in.Company))
		investorSlugs = append(investorSlugs, slugsOf(in.Leads)...)
		investorSlugs = append(investorSlugs, slugsOf(in.Participants)...)
	}

	var (
		companies map[string]models.Company
		investors map[string]models.Investor
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		companies, err = models.GetCompaniesBySlugs(r.db.WithContext(gctx), companySlugs)
		return err
	})
	g.Go(func() error {
		var err error
		investors, err = models.GetInvestorsBySlugs(r.db.WithContext(gctx), investorSlugs)
		return err
	})
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("load companies and investors: %w", err)
	}

	for i, in := range inputs {
		company, ok := companies[models.Slugify(in.Company)]
		if !ok {
			res.fail(i, "unknown company %q", in.Company)
			continue
		}
		round := models.Slugify(in.RoundType)
		if round == "" {
			res.fail(i, "roundType is required")
			continue
		}
		announced, err := parseDate(in.AnnouncedOn)
		if err != nil {
			res.fail(i, "announcedOn: %v", err)
			continue
		}
		roles, err := investorRoles(in, investors)
		if err != nil {
			res.fail(i, "%v", err)
			continue
		}

		existed, err := r.writeFundraise(ctx, company.ID, round, announced, in, roles, now)
		if err != nil {
			res.fail(i, "write failed: %v", err)
			continue
		}
		count(&res, existed)
	}

	r.logger.Infow("fundraises reconciled", "inputs", len(inputs), "created", res.Created, "updated", res.Updated, "errors", len(res.Errors))
	return res, nil
}

func (r *Reconciler) writeFundraise(ctx context.Context, companyID uint, round string, announced time.Time, in FundraiseInput, roles map[uint]models.InvestorRole, now time.Time) (bool, error) {
	existed := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		key := tx.Model(&models.Fundraise{}).
			Where("company_id = ? AND round_type = ? AND announced_on = ?", companyID, round, announced).
			Session(&gorm.Session{})

		var prior models.Fundraise
		err := key.First(&prior).Error
		switch {
		case err == nil:
			existed = true
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		row := models.Fundraise{CompanyID: companyID, RoundType: round, AnnouncedOn: announced}
		if existed {
			row.Amount, row.Currency, row.SourceURL = prior.Amount, prior.Currency, prior.SourceURL
		}
		var columns []string
		if in.Amount.Set {
			row.Amount = in.Amount.Ptr()
			columns = append(columns, "amount")
		}
		if in.Currency.Set {
			row.Currency = strings.ToUpper(strings.TrimSpace(in.Currency.Value))
			columns = append(columns, "currency")
		}
		if in.SourceURL.Set {
			row.SourceURL = strings.TrimSpace(in.SourceURL.Value)
			columns = append(columns, "source_url")
		}
		row.UpdatedAt = now
		columns = append(columns, "updated_at")

		if err := tx.Clauses(upsertOn(fundraiseKey, columns)).Create(&row).Error; err != nil {
			return err
		}

		var saved models.Fundraise
		if err := key.First(&saved).Error; err != nil {
			return err
		}
		if len(roles) == 0 {
			return nil
		}

		links := make([]models.FundraiseInvestor, 0, len(roles))
		portfolio := make([]models.InvestorCompany, 0, len(roles))
		for investorID, role := range roles {
			links = append(links, models.FundraiseInvestor{FundraiseID: saved.ID, InvestorID: investorID, Role: role})
			portfolio = append(portfolio, models.InvestorCompany{InvestorID: investorID, CompanyID: companyID})
		}
		if err := tx.Clauses(fundraiseInvestorConflict).Create(&links).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&portfolio).Error
	})

	return existed, err
}

func investorRoles(in FundraiseInput, investors map[string]models.Investor) (map[uint]models.InvestorRole, error) {
	roles := make(map[uint]models.InvestorRole)
	var missing []string

	add := func(slugs []string, role models.InvestorRole) {
		for _, s := range slugs {
			inv, ok := investors[models.Slugify(s)]
			if !ok {
				missing = append(missing, s)
				continue
			}
			if roles[inv.ID] != models.RoleLead {
				roles[inv.ID] = role
			}
		}
	}
	add(in.Participants, models.RoleParticipant)
	add(in.Leads, models.RoleLead)

	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown investors %v", missing)
	}
	return roles, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp and returns
// midnight UTC of that day.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a date", s)
}
