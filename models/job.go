package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobActive JobStatus = "active"
	JobClosed JobStatus = "closed"
)

// Job is one posting of a company. Jobs sourced from an ATS feed carry the
// provider's id, and (company_id, provider_job_id) is their natural key.
// Jobs without a provider id cannot be matched and are always new rows.
type Job struct {
	Generic

	CompanyID uint     `gorm:"not null;index;uniqueIndex:idx_jobs_company_provider,priority:1" json:"company_id"`
	Company   *Company `json:"company,omitempty"`

	Title         string  `gorm:"not null" json:"title"`
	ProviderJobID *string `gorm:"uniqueIndex:idx_jobs_company_provider,priority:2" json:"provider_job_id"`

	FeedURL     string     `json:"feed_url,omitempty"`
	URL         string     `json:"url,omitempty"`
	Location    string     `json:"location"`
	Remote      bool       `gorm:"not null;default:false" json:"remote"`
	Function    *string    `gorm:"index" json:"function"`
	Department  string     `json:"department,omitempty"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`

	Status     JobStatus `gorm:"not null;default:active;index" json:"status"`
	LastSeenAt time.Time `json:"last_seen_at"`

	// Provider payload the row was last built from.
	Raw datatypes.JSON `json:"-"`
}

// ActiveProviderJobs maps provider ids to row ids for the company's active
// jobs that came from a feed.
func ActiveProviderJobs(db *gorm.DB, companyID uint) (map[string]uint, error) {
	var rows []struct {
		ID            uint
		ProviderJobID string
	}

	err := db.Model(&Job{}).
		Select("id, provider_job_id").
		Where("company_id = ? AND status = ? AND provider_job_id IS NOT NULL", companyID, JobActive).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]uint, len(rows))
	for _, r := range rows {
		out[r.ProviderJobID] = r.ID
	}

	return out, nil
}

// GetJobsByProviderIDs returns the company's jobs with the given provider ids,
// keyed by provider id.
func GetJobsByProviderIDs(db *gorm.DB, companyID uint, providerIDs []string) (map[string]Job, error) {
	out := make(map[string]Job, len(providerIDs))
	if len(providerIDs) == 0 {
		return out, nil
	}

	var jobs []Job
	err := db.Where("company_id = ? AND provider_job_id IN ?", companyID, providerIDs).Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.ProviderJobID != nil {
			out[*j.ProviderJobID] = j
		}
	}

	return out, nil
}

// CloseJobs flips the given rows to closed.
func CloseJobs(db *gorm.DB, ids []uint, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res := db.Model(&Job{}).
		Where("id IN ? AND status = ?", ids, JobActive).
		Updates(map[string]any{
			"status":     JobClosed,
			"updated_at": at,
		})

	return res.RowsAffected, res.Error
}
