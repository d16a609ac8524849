package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"jobboard/models"
)

// afterNextRead runs write once, right after the next query on table, as
// another writer would between the reconciler's read and its upsert.
func afterNextRead(t *testing.T, db *gorm.DB, table string, write func(*gorm.DB) error) {
	t.Helper()
	done := false
	err := db.Callback().Query().After("gorm:query").Register("test:interleave_"+table, func(tx *gorm.DB) {
		if done || tx.Statement.Table != table {
			return
		}
		done = true
		assert.NoError(t, write(db.Session(&gorm.Session{NewDB: true})))
	})
	require.NoError(t, err)
}

func TestJobsKeepConcurrentEnrichment(t *testing.T) {
	r, db, _ := newTestReconciler(t)
	acme := createCompany(t, db, "Acme")
	feed := []JobInput{feedJob("a", "Engineer")}

	_, err := r.Jobs(context.Background(), acme.ID, feed, JobOptions{})
	require.NoError(t, err)

	afterNextRead(t, db, "jobs", func(other *gorm.DB) error {
		return other.Exec("UPDATE jobs SET function = ? WHERE provider_job_id = ?", "Engineering", "a").Error
	})

	feed[0].Title = models.Some("Senior Engineer")
	res, err := r.Jobs(context.Background(), acme.ID, feed, JobOptions{CloseMissing: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	job := jobsOf(t, db, acme.ID)["a"]
	assert.Equal(t, "Senior Engineer", job.Title)
	require.NotNil(t, job.Function, "a field the feed does not carry is left to other writers")
	assert.Equal(t, "Engineering", *job.Function)
}

func TestCompaniesKeepConcurrentlySettledFeed(t *testing.T) {
	r, db, _ := newTestReconciler(t)
	acme := createCompany(t, db, "Acme")
	feedURL := "https://api.lever.co/v0/postings/acme?mode=json"

	afterNextRead(t, db, "companies", func(other *gorm.DB) error {
		_, err := models.SetCompanyATS(other, acme.ID, models.ATSLever, feedURL)
		return err
	})

	res, err := r.Companies(context.Background(), []CompanyInput{
		{Name: "Acme", Website: models.Some("https://acme.test")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	got, err := models.GetCompanyBySlug(db, "acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://acme.test", got.Website)
	require.NotNil(t, got.ATSURL)
	assert.Equal(t, feedURL, *got.ATSURL)
	assert.Equal(t, models.ATSLever, got.ATSPlatform)
}

func TestInvestorsKeepConcurrentProfile(t *testing.T) {
	r, db, _ := newTestReconciler(t)
	_, err := r.Investors(context.Background(), []InvestorInput{{Name: "Seed Fund"}})
	require.NoError(t, err)

	afterNextRead(t, db, "investors", func(other *gorm.DB) error {
		return other.Exec("UPDATE investors SET bio = ? WHERE slug = ?", "Backs founders early.", "seed-fund").Error
	})

	_, err = r.Investors(context.Background(), []InvestorInput{{Name: "Seed Fund", Website: models.Some("https://seed.test")}})
	require.NoError(t, err)

	inv, err := models.GetInvestorBySlug(db, "seed-fund")
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, "https://seed.test", inv.Website)
	require.NotNil(t, inv.Bio)
	assert.Equal(t, "Backs founders early.", *inv.Bio)
}
