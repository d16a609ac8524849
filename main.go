package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"jobboard/ats"
	"jobboard/controllers"
	"jobboard/core"
	"jobboard/driver"
	"jobboard/enrich"
	"jobboard/llm"
	"jobboard/models"
	"jobboard/ratelimit"
	"jobboard/reconcile"
	"jobboard/scheduler"
)

const usage = "usage: jobboard [serve | onboard | sync | enrich <job_functions|investor_profiles|ats_discovery> | poll]"

type app struct {
	cfg        core.Config
	db         *gorm.DB
	logger     *zap.SugaredLogger
	reconciler *reconcile.Reconciler
	tasks      map[string]scheduler.Task
	// Cron task names in the order poll drains them.
	order []string
}

func main() {
	godotenv.Load()

	logger, err := core.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := core.LoadConfig()
	if err != nil {
		logger.Fatalw("load config", "error", err)
	}
	validation := cfg.Validate()
	for _, w := range validation.Warnings {
		logger.Warn(w)
	}
	if !validation.OK() {
		logger.Fatalw("invalid config", "errors", validation.Errors)
	}

	// connect to the database
	db, err := core.InitDB()
	if err != nil {
		logger.Fatalw("connect database", "error", err)
	}

	// auto migrate the database
	if err := core.Migrate(db); err != nil {
		logger.Fatalw("migrate database", "error", err)
	}

	a := newApp(cfg, db, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// set up commands
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		err = a.serve()
	case "onboard":
		_, err = scheduler.Drain(ctx, a.tasks[controllers.TaskOnboardATS], logger)
	case "sync":
		_, err = scheduler.Drain(ctx, a.tasks[controllers.TaskSyncJobs], logger)
	case "enrich":
		err = a.enrich(ctx, os.Args[2:])
	case "poll":
		err = a.poll(ctx)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil && ctx.Err() == nil {
		logger.Fatalw("command failed", "command", command, "error", err)
	}
}

func newApp(cfg core.Config, db *gorm.DB, logger *zap.SugaredLogger) *app {
	var classifier llm.Classifier = llm.Unavailable{}
	if generator, err := llm.NewGenerator(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL); err == nil {
		classifier = generator
	} else {
		logger.Warnw("classifier disabled", "error", err)
	}

	adapter := ats.NewAdapter(logger.With("component", "ats"), ats.WithHostLimiter(ratelimit.NewHostLimiter(2, 4)))
	detector := ats.NewDetector(classifier, adapter, logger.With("component", "detector"))
	reconciler := reconcile.New(db, logger)
	d := driver.New(db, detector, adapter, reconciler, cfg.Driver, logger)

	agentLogger := func(name string) *zap.SugaredLogger { return logger.With("agent", name) }

	a := &app{
		cfg:        cfg,
		db:         db,
		logger:     logger,
		reconciler: reconciler,
		tasks: map[string]scheduler.Task{
			controllers.TaskOnboardATS: scheduler.DriverTask(controllers.TaskOnboardATS, cfg.Driver.Budget, d.OnboardNext),
			controllers.TaskSyncJobs:   scheduler.DriverTask(controllers.TaskSyncJobs, cfg.Driver.Budget, d.SyncNext),
			controllers.TaskEnrichJobFunctions: scheduler.AgentTask[models.Job](controllers.TaskEnrichJobFunctions,
				enrich.NewJobFunctionAgent(db, classifier), cfg.Agent(core.AgentJobFunctions), agentLogger(core.AgentJobFunctions)),
			controllers.TaskEnrichInvestors: scheduler.AgentTask[models.Investor](controllers.TaskEnrichInvestors,
				enrich.NewInvestorProfileAgent(db, classifier), cfg.Agent(core.AgentInvestorProfiles), agentLogger(core.AgentInvestorProfiles)),
			controllers.TaskDiscoverATS: scheduler.AgentTask[models.Company](controllers.TaskDiscoverATS,
				enrich.NewATSDiscoveryAgent(db, d, cfg.Driver.MaxDetectAttempts), cfg.Agent(core.AgentATSDiscovery), agentLogger(core.AgentATSDiscovery)),
		},
		order: []string{
			controllers.TaskOnboardATS,
			controllers.TaskSyncJobs,
			controllers.TaskEnrichJobFunctions,
			controllers.TaskEnrichInvestors,
		},
	}
	return a
}

func (a *app) serve() error {
	// set up http server
	engine := gin.New()
	if err := engine.SetTrustedProxies(nil); err != nil {
		return err
	}
	engine.Use(gin.Recovery(), controllers.RequestID, controllers.AccessLog(a.logger.With("component", "http")))

	if a.cfg.UIDomain != "" {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"https://" + a.cfg.UIDomain},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	limiter, err := a.rateLimiter()
	if err != nil {
		return err
	}

	router := controllers.Router{
		HealthController: &controllers.HealthController{DB: a.db},
		CompaniesController: &controllers.CompaniesController{
			DB:     a.db,
			Logger: a.logger.With("controller", "companies"),
		},
		IngestController: &controllers.IngestController{
			Reconciler: a.reconciler,
			Logger:     a.logger.With("controller", "ingest"),
		},
		CronController: &controllers.CronController{
			Tasks:  a.tasks,
			Logger: a.logger.With("controller", "cron"),
		},
		IngestSecret: a.cfg.IngestSecret,
		CronSecret:   a.cfg.CronSecret,
		Limiter:      limiter,
		Logger:       a.logger.With("controller", "auth"),
	}
	router.RegisterRoutes(engine)

	a.logger.Infow("listening", "port", a.cfg.Port)
	return engine.Run(":" + a.cfg.Port)
}

func (a *app) rateLimiter() (ratelimit.RateLimiter, error) {
	if a.cfg.RedisURL != "" {
		return ratelimit.NewRedisFromURL(a.cfg.RedisURL, a.cfg.RateLimitPerMinute, time.Minute, a.logger.With("component", "ratelimit"))
	}
	burst := a.cfg.RateLimitPerMinute / 4
	if burst < 1 {
		burst = 1
	}
	return ratelimit.NewMemory(a.cfg.RateLimitPerMinute, burst), nil
}

var agentTasks = map[string]string{
	core.AgentJobFunctions:     controllers.TaskEnrichJobFunctions,
	core.AgentInvestorProfiles: controllers.TaskEnrichInvestors,
	core.AgentATSDiscovery:     controllers.TaskDiscoverATS,
}

func (a *app) enrich(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("enrich needs an agent name\n%s", usage)
	}
	name, ok := agentTasks[args[0]]
	if !ok {
		return fmt.Errorf("unknown agent %q\n%s", args[0], usage)
	}
	_, err := scheduler.Drain(ctx, a.tasks[name], a.logger)
	return err
}

// poll drains the cron tasks in-process, once or every PollInterval.
func (a *app) poll(ctx context.Context) error {
	tasks := make([]scheduler.Task, 0, len(a.order))
	for _, name := range a.order {
		tasks = append(tasks, a.tasks[name])
	}

	if a.cfg.PollInterval <= 0 {
		return scheduler.DrainAll(ctx, tasks, a.logger)
	}

	scheduler.Every(ctx, a.cfg.PollInterval, "poll", func(ctx context.Context) error {
		return scheduler.DrainAll(ctx, tasks, a.logger)
	}, a.logger)
	return nil
}
