package enrich

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"jobboard/core"
	"jobboard/llm"
	"jobboard/models"
)

// JobFunctions are the categories a job's function is classified into.
var JobFunctions = []string{
	"Engineering",
	"Product",
	"Design",
	"Data",
	"Sales",
	"Marketing",
	"Operations",
	"Finance",
	"People",
	"Legal",
	"Customer Success",
}

// JobFunctionAgent classifies the function of active jobs that have a title
// but no function.
type JobFunctionAgent struct {
	db         *gorm.DB
	classifier llm.Classifier
	functions  []string
}

func NewJobFunctionAgent(db *gorm.DB, classifier llm.Classifier) *JobFunctionAgent {
	return &JobFunctionAgent{db: db, classifier: classifier, functions: JobFunctions}
}

func (a *JobFunctionAgent) Name() string { return core.AgentJobFunctions }

func (a *JobFunctionAgent) ID(job models.Job) uint { return job.ID }

func (a *JobFunctionAgent) Candidates(ctx context.Context, after uint, limit int) ([]models.Job, error) {
	var jobs []models.Job
	err := a.db.WithContext(ctx).
		Preload("Company").
		Where("id > ?", after).
		Where("(function IS NULL OR function = '')").
		Where("title <> '' AND status = ?", models.JobActive).
		Order("id").
		Limit(limit).
		Find(&jobs).Error

	return jobs, err
}

func (a *JobFunctionAgent) Enrich(ctx context.Context, job models.Job) (bool, error) {
	system := fmt.Sprintf(`You classify job postings by function.
Answer with exactly one of: %s.
If none fits, answer null. Do not explain.`, strings.Join(a.functions, ", "))

	prompt := "Job title: " + job.Title
	if job.Company != nil && job.Company.Name != "" {
		prompt += "\nCompany: " + job.Company.Name
	}
	if job.Department != "" {
		prompt += "\nDepartment: " + job.Department
	}

	answer, err := a.classifier.Classify(ctx, system, prompt)
	if err != nil {
		return false, err
	}

	function, err := llm.ParseCategory(answer, a.functions)
	if err != nil {
		return false, err
	}

	return fillEmpty(a.db.WithContext(ctx), &models.Job{}, job.ID, "function", function)
}
