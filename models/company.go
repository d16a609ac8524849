package models

import (
	"errors"
	"time"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type ATSPlatform string

const (
	ATSGreenhouse ATSPlatform = "greenhouse"
	ATSLever      ATSPlatform = "lever"
	ATSAshby      ATSPlatform = "ashby"
	ATSNone       ATSPlatform = "none"
	ATSUnknown    ATSPlatform = "unknown"
)

// ATSURLNone is stored in Company.ATSURL once detection has settled on "no
// supported ATS". It keeps the company out of future detection runs.
const ATSURLNone = "none"

type CompanyStatus string

const (
	CompanyActive   CompanyStatus = "active"
	CompanyInactive CompanyStatus = "inactive"
)

type Company struct {
	Generic

	Name    string `gorm:"not null" json:"name"`
	Slug    string `gorm:"uniqueIndex;not null" json:"slug"`
	Website string `json:"website"`

	ATSPlatform ATSPlatform `gorm:"not null;default:unknown" json:"ats_platform"`
	// Feed URL of the company's job board, or ATSURLNone.
	ATSURL *string `json:"ats_url"`
	// Number of detection runs that ended without a feed URL.
	ATSAttempts int `gorm:"not null;default:0" json:"-"`

	Status CompanyStatus `gorm:"not null;default:active;index" json:"status"`

	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	SyncError    string     `json:"sync_error,omitempty"`
}

// Slugify derives the URL-safe natural key used for companies and investors.
func Slugify(name string) string {
	return slug.Make(name)
}

// HasSettledATS reports whether detection already decided on a feed URL or
// on the none sentinel.
func (c Company) HasSettledATS() bool {
	return c.ATSURL != nil && *c.ATSURL != ""
}

// HasFeed reports whether the company has a concrete feed URL to sync.
func (c Company) HasFeed() bool {
	return c.HasSettledATS() && *c.ATSURL != ATSURLNone
}

func GetCompanyByID(db *gorm.DB, id uint) (*Company, error) {
	var company Company
	err := db.First(&company, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &company, nil
}

func GetCompanyBySlug(db *gorm.DB, companySlug string) (*Company, error) {
	var company Company
	err := db.Where("slug = ?", companySlug).First(&company).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &company, nil
}

// GetCompaniesBySlugs returns the companies found, keyed by slug.
func GetCompaniesBySlugs(db *gorm.DB, slugs []string) (map[string]Company, error) {
	out := make(map[string]Company, len(slugs))
	if len(slugs) == 0 {
		return out, nil
	}

	var companies []Company
	if err := db.Where("slug IN ?", slugs).Find(&companies).Error; err != nil {
		return nil, err
	}
	for _, c := range companies {
		out[c.Slug] = c
	}

	return out, nil
}

// SetCompanyATS stores a detection outcome. A company whose feed URL is already
// settled is left untouched; the returned bool reports whether a row changed.
func SetCompanyATS(db *gorm.DB, companyID uint, platform ATSPlatform, feedURL string) (bool, error) {
	res := db.Model(&Company{}).
		Where("id = ? AND (ats_url IS NULL OR ats_url = '')", companyID).
		Updates(map[string]any{
			"ats_platform": platform,
			"ats_url":      feedURL,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// RecordDetectionMiss increments the miss counter of a company whose feed URL
// is still open.
func RecordDetectionMiss(db *gorm.DB, companyID uint) error {
	return db.Model(&Company{}).
		Where("id = ? AND (ats_url IS NULL OR ats_url = '')", companyID).
		Updates(map[string]any{
			"ats_attempts": gorm.Expr("ats_attempts + 1"),
			"updated_at":   time.Now(),
		}).Error
}

// MarkCompanySynced stamps the outcome of a feed sync. An empty syncErr clears
// a previous failure.
func MarkCompanySynced(db *gorm.DB, companyID uint, at time.Time, syncErr string) error {
	return db.Model(&Company{}).
		Where("id = ?", companyID).
		Updates(map[string]any{
			"last_synced_at": at,
			"sync_error":     syncErr,
		}).Error
}

// AwaitingATS selects active, named companies whose feed URL is still open
// and that have had fewer than maxAttempts detection misses.
func AwaitingATS(maxAttempts int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Where("(ats_url IS NULL OR ats_url = '')").
			Where("name <> '' AND status = ?", CompanyActive).
			Where("ats_attempts < ?", maxAttempts)
	}
}

// DueForSync selects active companies with a feed URL that have not been
// synced since before.
func DueForSync(before time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Where("ats_url IS NOT NULL AND ats_url <> '' AND ats_url <> ?", ATSURLNone).
			Where("status = ?", CompanyActive).
			Where("(last_synced_at IS NULL OR last_synced_at < ?)", before)
	}
}
