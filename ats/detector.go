package ats

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"jobboard/llm"
)

const detectSystemPrompt = `You identify the applicant tracking system behind a company's public job board.
Answer with exactly one URL built from one of these templates, replacing {token} with the company's board token:
https://boards-api.greenhouse.io/v1/boards/{token}/jobs
https://api.lever.co/v0/postings/{token}?mode=json
https://api.ashbyhq.com/posting-api/job-board/{token}
If the company does not use Greenhouse, Lever or Ashby, or you are not certain, answer null.
Do not add any other text.`

// Detection sources.
const (
	SourceCareersPage = "careers_page"
	SourceClassifier  = "classifier"
)

type CompanyRef struct {
	Name    string
	Website string
}

// Detection is the outcome of one detection run. When Found is false, Reason
// says why and Candidate holds the rejected guess, if any.
type Detection struct {
	Found     bool
	URL       string
	Provider  Provider
	Source    string
	Jobs      []Job
	Candidate string
	Reason    string
}

// Detector guesses a company's feed URL and only reports it once the feed
// has been fetched successfully. It does not persist anything.
type Detector struct {
	classifier llm.Classifier
	adapter    *Adapter
	logger     *zap.SugaredLogger
}

func NewDetector(classifier llm.Classifier, adapter *Adapter, logger *zap.SugaredLogger) *Detector {
	return &Detector{
		classifier: classifier,
		adapter:    adapter,
		logger:     logger,
	}
}

// Detect returns an error only when the classifier could not be reached;
// every other miss is a Detection with Found set to false.
func (d *Detector) Detect(ctx context.Context, ref CompanyRef) (Detection, error) {
	if strings.TrimSpace(ref.Website) != "" {
		links, err := d.adapter.FindBoardLinks(ctx, ref.Website)
		if err != nil {
			d.logger.Debugw("careers page scan failed", "company", ref.Name, "website", ref.Website, "error", err)
		}
		for _, link := range links {
			det := d.validate(ctx, link.FeedURL, link.Provider, SourceCareersPage)
			if det.Found {
				return det, nil
			}
		}
	}

	if d.classifier == nil {
		return Detection{Reason: "no classifier configured"}, nil
	}

	prompt := fmt.Sprintf("Company: %s", strings.TrimSpace(ref.Name))
	if ref.Website != "" {
		prompt += fmt.Sprintf("\nWebsite: %s", ref.Website)
	}

	answer, err := d.classifier.Classify(ctx, detectSystemPrompt, prompt)
	if err != nil {
		return Detection{}, fmt.Errorf("classify ats for %s: %w", ref.Name, err)
	}

	if llm.IsEmptyAnswer(answer) {
		return Detection{Reason: "classifier answered null"}, nil
	}

	candidate, p, ok := FindFeedURL(answer)
	if !ok {
		return Detection{Reason: "answer matches no feed template", Candidate: llm.CleanText(answer)}, nil
	}

	return d.validate(ctx, candidate, p, SourceClassifier), nil
}

func (d *Detector) validate(ctx context.Context, candidate string, p Provider, source string) Detection {
	feed, err := d.adapter.FetchProvider(ctx, p, candidate)
	if err != nil {
		d.logger.Infow("candidate feed rejected",
			"url", candidate,
			"source", source,
			"kind", Kind(err),
			"error", err,
		)
		return Detection{
			Candidate: candidate,
			Reason:    fmt.Sprintf("candidate failed validation (%s): %v", Kind(err), err),
		}
	}

	return Detection{
		Found:    true,
		URL:      candidate,
		Provider: p,
		Source:   source,
		Jobs:     feed.Jobs,
	}
}
