package enrich

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"jobboard/budget"
	"jobboard/core"
	"jobboard/models"
)

type classifierFunc func(prompt string) (string, error)

func (f classifierFunc) Classify(_ context.Context, _, prompt string) (string, error) {
	return f(prompt)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := core.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, core.Migrate(db))
	return db
}

func seedJobs(t *testing.T, db *gorm.DB, jobs ...models.Job) (models.Company, []models.Job) {
	t.Helper()
	company := models.Company{Name: "Acme", Slug: "acme", ATSPlatform: models.ATSUnknown, Status: models.CompanyActive}
	require.NoError(t, db.Create(&company).Error)
	for i := range jobs {
		jobs[i].CompanyID = company.ID
		if jobs[i].Status == "" {
			jobs[i].Status = models.JobActive
		}
		require.NoError(t, db.Create(&jobs[i]).Error)
	}
	return company, jobs
}

func strPtr(s string) *string { return &s }

func functionOf(t *testing.T, db *gorm.DB, id uint) *string {
	t.Helper()
	var job models.Job
	require.NoError(t, db.First(&job, id).Error)
	return job.Function
}

func settings() Settings { return Settings{Batch: 10} }

func TestJobFunctionsAdditiveOnly(t *testing.T) {
	db := newTestDB(t)
	_, jobs := seedJobs(t, db,
		models.Job{Title: "Software Engineer", Function: strPtr("Sales")},
		models.Job{Title: "Backend Engineer"},
		models.Job{Title: "Platform Engineer", Status: models.JobClosed},
		models.Job{Title: ""},
	)

	var prompts []string
	agent := NewJobFunctionAgent(db, classifierFunc(func(prompt string) (string, error) {
		prompts = append(prompts, prompt)
		return "**Engineering**", nil
	}))

	rep, err := Run[models.Job](context.Background(), agent, budget.New(time.Minute), settings(), 0, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 1, rep.Updated)
	assert.False(t, rep.HasMore)

	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Backend Engineer")
	assert.Contains(t, prompts[0], "Company: Acme")

	assert.Equal(t, "Sales", *functionOf(t, db, jobs[0].ID), "existing values are never corrected")
	assert.Equal(t, "Engineering", *functionOf(t, db, jobs[1].ID))
	assert.Nil(t, functionOf(t, db, jobs[2].ID))
	assert.Nil(t, functionOf(t, db, jobs[3].ID))
}

func TestJobFunctionsDiscardMalformedAnswers(t *testing.T) {
	db := newTestDB(t)
	_, jobs := seedJobs(t, db, models.Job{Title: "Engineer"}, models.Job{Title: "Recruiter"})

	agent := NewJobFunctionAgent(db, classifierFunc(func(prompt string) (string, error) {
		if strings.Contains(prompt, "Recruiter") {
			return "Could be People or Operations.", nil
		}
		return "", errors.New("connection reset")
	}))

	rep, err := Run[models.Job](context.Background(), agent, budget.New(time.Minute), settings(), 0, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Processed)
	assert.Equal(t, 2, rep.Failed)
	assert.Zero(t, rep.Updated)
	assert.False(t, rep.HasMore, "failed records wait for the next cycle")

	for _, j := range jobs {
		assert.Nil(t, functionOf(t, db, j.ID))
	}
}

func TestRunStopsAtBudgetAndResumes(t *testing.T) {
	db := newTestDB(t)
	var seeded []models.Job
	for i := 0; i < 5; i++ {
		seeded = append(seeded, models.Job{Title: fmt.Sprintf("Engineer %d", i)})
	}
	_, jobs := seedJobs(t, db, seeded...)

	now := time.Now()
	clock := func() time.Time { return now }
	agent := NewJobFunctionAgent(db, classifierFunc(func(string) (string, error) {
		now = now.Add(3 * time.Second)
		return "Engineering", nil
	}))

	b := budget.New(10*time.Second, budget.WithClock(clock))
	rep, err := Run[models.Job](context.Background(), agent, b, settings(), 0, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Processed)
	assert.True(t, rep.HasMore)
	assert.Equal(t, jobs[2].ID, rep.NextCursor)
	assert.Equal(t, 9*time.Second, rep.Runtime)

	b = budget.New(10*time.Second, budget.WithClock(clock))
	rep, err = Run[models.Job](context.Background(), agent, b, settings(), rep.NextCursor, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Processed)
	assert.False(t, rep.HasMore)

	var missing int64
	require.NoError(t, db.Model(&models.Job{}).Where("function IS NULL").Count(&missing).Error)
	assert.Zero(t, missing)
}

func TestRunPacesCalls(t *testing.T) {
	db := newTestDB(t)
	seedJobs(t, db, models.Job{Title: "A"}, models.Job{Title: "B"}, models.Job{Title: "C"})

	agent := NewJobFunctionAgent(db, classifierFunc(func(string) (string, error) { return "Design", nil }))

	start := time.Now()
	rep, err := Run[models.Job](context.Background(), agent, budget.New(time.Minute), Settings{Delay: 40 * time.Millisecond, Batch: 2}, 0, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Updated)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestInvestorProfilesFillOnlyEmptyFields(t *testing.T) {
	db := newTestDB(t)
	seed := models.Investor{Name: "Seed Fund", Slug: "seed-fund", Bio: strPtr("Backs founders early.")}
	done := models.Investor{Name: "Done Capital", Slug: "done-capital", Bio: strPtr("Done"), Location: strPtr("Paris")}
	bad := models.Investor{Name: "Quiet Partners", Slug: "quiet-partners"}
	require.NoError(t, db.Create(&seed).Error)
	require.NoError(t, db.Create(&done).Error)
	require.NoError(t, db.Create(&bad).Error)

	agent := NewInvestorProfileAgent(db, classifierFunc(func(prompt string) (string, error) {
		if strings.Contains(prompt, "Quiet") {
			return `{"bio": null, "location": "unknown"}`, nil
		}
		return "Sure! ```json\n{\"bio\": \"A completely different bio [2]\", \"location\": \"London, UK\"}\n```", nil
	}))

	rep, err := Run[models.Investor](context.Background(), agent, budget.New(time.Minute), settings(), 0, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Processed)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, 1, rep.Failed)

	var got models.Investor
	require.NoError(t, db.First(&got, seed.ID).Error)
	assert.Equal(t, "Backs founders early.", *got.Bio)
	require.NotNil(t, got.Location)
	assert.Equal(t, "London, UK", *got.Location)

	require.NoError(t, db.First(&got, bad.ID).Error)
	assert.Nil(t, got.Bio)
	assert.Nil(t, got.Location)
}

type stubOnboarder struct {
	seen []string
}

func (s *stubOnboarder) Onboard(_ context.Context, c models.Company) (bool, error) {
	s.seen = append(s.seen, c.Slug)
	return c.Slug == "acme", nil
}

func TestATSDiscoverySelectsOpenCompanies(t *testing.T) {
	db := newTestDB(t)
	feed := "https://api.lever.co/v0/postings/settled?mode=json"
	for _, c := range []models.Company{
		{Name: "Acme", Slug: "acme"},
		{Name: "Settled", Slug: "settled", ATSURL: &feed},
		{Name: "Tried", Slug: "tried", ATSAttempts: 2},
		{Name: "Gone", Slug: "gone", Status: models.CompanyInactive},
		{Name: "Globex", Slug: "globex"},
	} {
		c.ATSPlatform = models.ATSUnknown
		if c.Status == "" {
			c.Status = models.CompanyActive
		}
		require.NoError(t, db.Create(&c).Error)
	}

	onboarder := &stubOnboarder{}
	agent := NewATSDiscoveryAgent(db, onboarder, 2)

	rep, err := Run[models.Company](context.Background(), agent, budget.New(time.Minute), settings(), 0, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, onboarder.seen)
	assert.Equal(t, 2, rep.Processed)
	assert.Equal(t, 1, rep.Updated)
}

// deadlineAgent records the deadline each Enrich call sees.
type deadlineAgent struct {
	ids       []uint
	deadlines []time.Time
}

func (a *deadlineAgent) Name() string { return "deadline" }

func (a *deadlineAgent) Candidates(_ context.Context, after uint, limit int) ([]uint, error) {
	var out []uint
	for _, id := range a.ids {
		if id > after && len(out) < limit {
			out = append(out, id)
		}
	}
	return out, nil
}

func (a *deadlineAgent) ID(item uint) uint { return item }

func (a *deadlineAgent) Enrich(ctx context.Context, _ uint) (bool, error) {
	d, ok := ctx.Deadline()
	if !ok {
		return false, errors.New("no deadline")
	}
	a.deadlines = append(a.deadlines, d)
	return true, nil
}

func TestRunBoundsEnrichByBudget(t *testing.T) {
	agent := &deadlineAgent{ids: []uint{1, 2}}
	b := budget.New(time.Minute)
	limit := time.Now().Add(time.Minute)

	rep, err := Run[uint](context.Background(), agent, b, settings(), 0, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Updated)
	assert.Zero(t, rep.Failed)
	require.Len(t, agent.deadlines, 2)
	for _, d := range agent.deadlines {
		assert.False(t, d.After(limit), "enrichment may not outlive the budget")
	}
}

func TestRunCursorWalksPastUnclassifiableRecords(t *testing.T) {
	db := newTestDB(t)
	var seeded []models.Job
	for i := 0; i < 4; i++ {
		seeded = append(seeded, models.Job{Title: fmt.Sprintf("Mystery %d", i)})
	}
	seedJobs(t, db, seeded...)

	now := time.Now()
	clock := func() time.Time { return now }
	agent := NewJobFunctionAgent(db, classifierFunc(func(string) (string, error) {
		now = now.Add(3 * time.Second)
		return "no idea", nil
	}))

	run := func(cursor uint) Report {
		rep, err := Run[models.Job](context.Background(), agent, budget.New(10*time.Second, budget.WithClock(clock)), settings(), cursor, zap.NewNop().Sugar())
		require.NoError(t, err)
		return rep
	}

	// Without the cursor the same failures fill every budget.
	first := run(0)
	assert.Equal(t, 3, first.Failed)
	assert.True(t, first.HasMore)
	assert.Zero(t, first.Updated)
	assert.True(t, run(0).HasMore)

	resumed := run(first.NextCursor)
	assert.Equal(t, 1, resumed.Failed)
	assert.False(t, resumed.HasMore)
	assert.Zero(t, resumed.NextCursor)
}
