package controllers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"jobboard/ratelimit"
)

type Router struct {
	HealthController    *HealthController
	CompaniesController *CompaniesController
	IngestController    *IngestController
	CronController      *CronController

	IngestSecret string
	CronSecret   string
	Limiter      ratelimit.RateLimiter
	Logger       *zap.SugaredLogger
}

func (r Router) RegisterRoutes(router gin.IRouter) {
	//
	// Anonymous requests
	//
	router.GET("/health", r.HealthController.Status)
	router.GET("/companies", r.CompaniesController.GetCompanies)
	router.GET("/companies/:slug/jobs", r.CompaniesController.GetCompanyJobs)

	//
	// Data producers
	//
	ingest := router.Group("/ingest", RateLimit(r.Limiter), RequireBearer(r.IngestSecret, r.Logger))
	ingest.POST("/companies", r.IngestController.Companies)
	ingest.POST("/jobs", r.IngestController.Jobs)
	ingest.POST("/investors", r.IngestController.Investors)
	ingest.POST("/fundraises", r.IngestController.Fundraises)

	//
	// Scheduler
	//
	cron := router.Group("/cron", RequireBearer(r.CronSecret, r.Logger))
	cron.GET("/:task", r.CronController.Run)
}
