package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Investor struct {
	Generic

	Name     string  `gorm:"not null" json:"name"`
	Slug     string  `gorm:"uniqueIndex;not null" json:"slug"`
	Website  string  `json:"website,omitempty"`
	Bio      *string `json:"bio"`
	Location *string `json:"location"`

	Portfolio []InvestorCompany `json:"portfolio,omitempty"`
}

// InvestorCompany links an investor to a portfolio company.
type InvestorCompany struct {
	InvestorID uint      `gorm:"primaryKey" json:"investor_id"`
	CompanyID  uint      `gorm:"primaryKey;index" json:"company_id"`
	Company    *Company  `json:"company,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func GetInvestorBySlug(db *gorm.DB, investorSlug string) (*Investor, error) {
	var investor Investor
	err := db.Where("slug = ?", investorSlug).First(&investor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &investor, nil
}

// GetInvestorsBySlugs returns the investors found, keyed by slug.
func GetInvestorsBySlugs(db *gorm.DB, slugs []string) (map[string]Investor, error) {
	out := make(map[string]Investor, len(slugs))
	if len(slugs) == 0 {
		return out, nil
	}

	var investors []Investor
	if err := db.Where("slug IN ?", slugs).Find(&investors).Error; err != nil {
		return nil, err
	}
	for _, i := range investors {
		out[i.Slug] = i
	}

	return out, nil
}
