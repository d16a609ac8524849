package enrich

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"jobboard/core"
	"jobboard/llm"
	"jobboard/models"
)

const investorSystemPrompt = `You research venture investors.
Reply with a single JSON object: {"bio": "<one or two sentences on the investor's focus>", "location": "<city, country of the main office>"}.
Use null for anything you cannot find. Do not add text outside the object.`

type investorProfile struct {
	Bio      *string `json:"bio"`
	Location *string `json:"location"`
}

// InvestorProfileAgent fills an investor's bio and location.
type InvestorProfileAgent struct {
	db         *gorm.DB
	classifier llm.Classifier
}

func NewInvestorProfileAgent(db *gorm.DB, classifier llm.Classifier) *InvestorProfileAgent {
	return &InvestorProfileAgent{db: db, classifier: classifier}
}

func (a *InvestorProfileAgent) Name() string { return core.AgentInvestorProfiles }

func (a *InvestorProfileAgent) ID(inv models.Investor) uint { return inv.ID }

func (a *InvestorProfileAgent) Candidates(ctx context.Context, after uint, limit int) ([]models.Investor, error) {
	var investors []models.Investor
	err := a.db.WithContext(ctx).
		Where("id > ?", after).
		Where("(bio IS NULL OR bio = '' OR location IS NULL OR location = '')").
		Where("name <> ''").
		Order("id").
		Limit(limit).
		Find(&investors).Error

	return investors, err
}

func (a *InvestorProfileAgent) Enrich(ctx context.Context, inv models.Investor) (bool, error) {
	prompt := "Investor: " + inv.Name
	if inv.Website != "" {
		prompt += "\nWebsite: " + inv.Website
	}

	answer, err := a.classifier.Classify(ctx, investorSystemPrompt, prompt)
	if err != nil {
		return false, err
	}

	profile, err := llm.ParseObject[investorProfile](answer)
	if err != nil {
		return false, err
	}

	fields := map[string]string{
		"bio":      clean(profile.Bio),
		"location": clean(profile.Location),
	}
	if fields["bio"] == "" && fields["location"] == "" {
		return false, &llm.ParseError{Raw: answer, Reason: "profile has neither bio nor location"}
	}

	db := a.db.WithContext(ctx)
	updated := false
	for _, column := range []string{"bio", "location"} {
		if fields[column] == "" {
			continue
		}
		ok, err := fillEmpty(db, &models.Investor{}, inv.ID, column, fields[column])
		if err != nil {
			return updated, err
		}
		updated = updated || ok
	}

	return updated, nil
}

// clean drops citation markers and treats "null"-like strings as missing.
func clean(s *string) string {
	if s == nil || llm.IsEmptyAnswer(*s) {
		return ""
	}
	return strings.TrimSpace(llm.CleanText(*s))
}
