package models

import "time"

type InvestorRole string

const (
	RoleLead        InvestorRole = "lead"
	RoleParticipant InvestorRole = "participant"
)

// Fundraise is one funding round. (company_id, round_type, announced_on) is
// its natural key, so two same-day reports of one round are the same row.
type Fundraise struct {
	Generic

	CompanyID   uint      `gorm:"not null;uniqueIndex:idx_fundraise_key,priority:1" json:"company_id"`
	Company     *Company  `json:"company,omitempty"`
	RoundType   string    `gorm:"not null;uniqueIndex:idx_fundraise_key,priority:2" json:"round_type"`
	AnnouncedOn time.Time `gorm:"not null;uniqueIndex:idx_fundraise_key,priority:3" json:"announced_on"`

	Amount    *int64 `json:"amount"`
	Currency  string `json:"currency,omitempty"`
	SourceURL string `json:"source_url,omitempty"`

	Investors []FundraiseInvestor `json:"investors,omitempty"`
}

// FundraiseInvestor links a round to the investors that took part in it.
type FundraiseInvestor struct {
	FundraiseID uint         `gorm:"primaryKey" json:"fundraise_id"`
	InvestorID  uint         `gorm:"primaryKey;index" json:"investor_id"`
	Investor    *Investor    `json:"investor,omitempty"`
	Role        InvestorRole `gorm:"not null" json:"role"`
	CreatedAt   time.Time    `json:"created_at"`
}
