package enrich

import (
	"context"

	"gorm.io/gorm"

	"jobboard/core"
	"jobboard/models"
)

// Onboarder detects and stores one company's ATS feed, reporting whether a
// feed URL was written.
type Onboarder interface {
	Onboard(ctx context.Context, company models.Company) (bool, error)
}

// ATSDiscoveryAgent runs ATS onboarding over every company whose feed URL is
// still open, paced like the other agents.
type ATSDiscoveryAgent struct {
	db          *gorm.DB
	onboarder   Onboarder
	maxAttempts int
}

func NewATSDiscoveryAgent(db *gorm.DB, onboarder Onboarder, maxAttempts int) *ATSDiscoveryAgent {
	return &ATSDiscoveryAgent{db: db, onboarder: onboarder, maxAttempts: maxAttempts}
}

func (a *ATSDiscoveryAgent) Name() string { return core.AgentATSDiscovery }

func (a *ATSDiscoveryAgent) ID(c models.Company) uint { return c.ID }

func (a *ATSDiscoveryAgent) Candidates(ctx context.Context, after uint, limit int) ([]models.Company, error) {
	var companies []models.Company
	err := a.db.WithContext(ctx).
		Where("id > ?", after).
		Scopes(models.AwaitingATS(a.maxAttempts)).
		Order("id").
		Limit(limit).
		Find(&companies).Error

	return companies, err
}

func (a *ATSDiscoveryAgent) Enrich(ctx context.Context, company models.Company) (bool, error) {
	return a.onboarder.Onboard(ctx, company)
}
