// Package driver moves companies through onboarding and feed sync one
// company per call, so a cron schedule or a poll loop can drive the pipeline
// to completion within hosting time limits.
package driver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"jobboard/ats"
	"jobboard/budget"
	"jobboard/core"
	"jobboard/models"
	"jobboard/reconcile"
)

type Outcome string

const (
	OutcomeIdle        Outcome = "idle"
	OutcomeDetected    Outcome = "detected"
	OutcomeMiss        Outcome = "miss"
	OutcomeSettledNone Outcome = "settled_none"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeSynced      Outcome = "synced"
	OutcomeSyncFailed  Outcome = "sync_failed"
	OutcomeDeferred    Outcome = "deferred"
)

type Report struct {
	Processed int
	Created   int
	Updated   int
	Closed    int
	Failed    int
	HasMore   bool
	Company   string
	Outcome   Outcome
	Runtime   time.Duration
}

type Driver struct {
	db         *gorm.DB
	detector   *ats.Detector
	adapter    *ats.Adapter
	reconciler *reconcile.Reconciler
	cfg        core.DriverConfig
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func New(db *gorm.DB, detector *ats.Detector, adapter *ats.Adapter, reconciler *reconcile.Reconciler, cfg core.DriverConfig, logger *zap.SugaredLogger) *Driver {
	if cfg.MaxDetectAttempts <= 0 {
		cfg.MaxDetectAttempts = 1
	}
	return &Driver{
		db:         db,
		detector:   detector,
		adapter:    adapter,
		reconciler: reconciler,
		cfg:        cfg,
		logger:     logger.With("component", "driver"),
		now:        time.Now,
	}
}

// OnboardNext detects the ATS of one company whose feed URL is still open.
// Once a company has missed MaxDetectAttempts times it is settled on the none
// sentinel and never selected again.
func (d *Driver) OnboardNext(ctx context.Context, b *budget.Budget) (Report, error) {
	rep := Report{Outcome: OutcomeIdle}

	var companies []models.Company
	err := d.db.WithContext(ctx).
		Scopes(models.AwaitingATS(d.cfg.MaxDetectAttempts)).
		Order("ats_attempts, id").
		Limit(1).
		Find(&companies).Error
	if err != nil {
		return rep, fmt.Errorf("select company to onboard: %w", err)
	}
	if len(companies) == 0 {
		rep.Runtime = b.Elapsed()
		return rep, nil
	}

	company := companies[0]
	rep.Company = company.Slug
	if b.Exhausted() {
		rep.Outcome, rep.HasMore = OutcomeDeferred, true
		rep.Runtime = b.Elapsed()
		return rep, nil
	}

	bctx, cancel := b.Context(ctx)
	outcome, res, err := d.onboard(bctx, company)
	cancel()
	rep.Processed = 1
	rep.Outcome = outcome
	rep.Created, rep.Updated = res.Created, res.Updated
	if res.Closed != nil {
		rep.Closed = *res.Closed
	}
	if err != nil {
		rep.Failed = 1
		d.logger.Errorw("onboarding failed", "company", company.Slug, "error", err)
	}

	rep.HasMore, err = d.pending(ctx, models.AwaitingATS(d.cfg.MaxDetectAttempts))
	rep.Runtime = b.Elapsed()
	return rep, err
}

// Onboard runs detection for one company. It reports whether a feed URL was
// stored.
func (d *Driver) Onboard(ctx context.Context, company models.Company) (bool, error) {
	outcome, _, err := d.onboard(ctx, company)
	return outcome == OutcomeDetected, err
}

func (d *Driver) onboard(ctx context.Context, company models.Company) (Outcome, reconcile.Result, error) {
	res := reconcile.NewResult()
	logger := d.logger.With("company", company.Slug)
	db := d.db.WithContext(ctx)

	if company.HasSettledATS() {
		return OutcomeSkipped, res, nil
	}

	det, err := d.detector.Detect(ctx, ats.CompanyRef{Name: company.Name, Website: company.Website})
	if err != nil {
		// The classifier could not be reached; that says nothing about the company.
		return OutcomeMiss, res, err
	}

	if !det.Found {
		if err := models.RecordDetectionMiss(db, company.ID); err != nil {
			return OutcomeMiss, res, err
		}
		attempts := company.ATSAttempts + 1
		logger.Infow("no ats found", "attempt", attempts, "reason", det.Reason, "candidate", det.Candidate)

		if attempts < d.cfg.MaxDetectAttempts {
			return OutcomeMiss, res, nil
		}
		if _, err := models.SetCompanyATS(db, company.ID, models.ATSNone, models.ATSURLNone); err != nil {
			return OutcomeMiss, res, err
		}
		logger.Infow("settled on no ats", "attempts", attempts)
		return OutcomeSettledNone, res, nil
	}

	changed, err := models.SetCompanyATS(db, company.ID, models.ATSPlatform(det.Provider), det.URL)
	if err != nil {
		return OutcomeMiss, res, err
	}
	if !changed {
		logger.Infow("feed url settled concurrently, leaving it", "candidate", det.URL)
		return OutcomeSkipped, res, nil
	}
	logger.Infow("ats detected", "provider", det.Provider, "url", det.URL, "source", det.Source, "jobs", len(det.Jobs))

	res, err = d.reconciler.Jobs(ctx, company.ID, reconcile.FromFeed(det.Jobs), reconcile.JobOptions{
		CloseMissing: true,
		FeedURL:      det.URL,
	})
	if err != nil {
		return OutcomeDetected, res, err
	}

	return OutcomeDetected, res, models.MarkCompanySynced(db, company.ID, d.now(), "")
}

// SyncNext refreshes the jobs of the company with the stalest sync among
// those with a feed URL. A failed fetch is recorded on the company and never
// closes jobs.
func (d *Driver) SyncNext(ctx context.Context, b *budget.Budget) (Report, error) {
	rep := Report{Outcome: OutcomeIdle}
	due := models.DueForSync(d.now().Add(-d.cfg.SyncInterval))

	var companies []models.Company
	err := d.db.WithContext(ctx).
		Scopes(due).
		Order("last_synced_at IS NOT NULL, last_synced_at, id").
		Limit(1).
		Find(&companies).Error
	if err != nil {
		return rep, fmt.Errorf("select company to sync: %w", err)
	}
	if len(companies) == 0 {
		rep.Runtime = b.Elapsed()
		return rep, nil
	}

	company := companies[0]
	rep.Company = company.Slug
	if b.Exhausted() {
		rep.Outcome, rep.HasMore = OutcomeDeferred, true
		rep.Runtime = b.Elapsed()
		return rep, nil
	}

	rep.Processed = 1
	bctx, cancel := b.Context(ctx)
	res, err := d.sync(bctx, company)
	cancel()
	rep.Created, rep.Updated = res.Created, res.Updated
	if res.Closed != nil {
		rep.Closed = *res.Closed
	}
	rep.Outcome = OutcomeSynced
	if err != nil {
		rep.Outcome, rep.Failed = OutcomeSyncFailed, 1
		d.logger.Warnw("sync failed", "company", company.Slug, "kind", ats.Kind(err), "error", err)
	}

	rep.HasMore, err = d.pending(ctx, due)
	rep.Runtime = b.Elapsed()
	return rep, err
}

func (d *Driver) sync(ctx context.Context, company models.Company) (reconcile.Result, error) {
	db := d.db.WithContext(ctx)
	now := d.now()

	feed, err := d.adapter.Fetch(ctx, *company.ATSURL)
	if err != nil {
		if markErr := models.MarkCompanySynced(db, company.ID, now, err.Error()); markErr != nil {
			d.logger.Errorw("could not record sync error", "company", company.Slug, "error", markErr)
		}
		return reconcile.NewResult(), err
	}

	res, err := d.reconciler.Jobs(ctx, company.ID, reconcile.FromFeed(feed.Jobs), reconcile.JobOptions{
		CloseMissing: true,
		FeedURL:      feed.URL,
	})
	if err != nil {
		_ = models.MarkCompanySynced(db, company.ID, now, err.Error())
		return res, err
	}

	return res, models.MarkCompanySynced(db, company.ID, now, "")
}

func (d *Driver) pending(ctx context.Context, scope func(*gorm.DB) *gorm.DB) (bool, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&models.Company{}).Scopes(scope).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("count pending companies: %w", err)
	}
	return n > 0, nil
}
