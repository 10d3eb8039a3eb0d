// Package bootstrap assembles the API process from configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/leadflow/internal/api/router"
	"github.com/wolfman30/leadflow/internal/audit"
	"github.com/wolfman30/leadflow/internal/classifier"
	appconfig "github.com/wolfman30/leadflow/internal/config"
	"github.com/wolfman30/leadflow/internal/conversation"
	"github.com/wolfman30/leadflow/internal/followup"
	"github.com/wolfman30/leadflow/internal/gateway"
	httpmiddleware "github.com/wolfman30/leadflow/internal/http/middleware"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/messaging"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
	"github.com/wolfman30/leadflow/internal/settings"
	"github.com/wolfman30/leadflow/internal/webhooks"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// App is the wired API process.
type App struct {
	Handler      http.Handler
	Orchestrator *conversation.Orchestrator
	Scheduler    *followup.Scheduler

	limiter *httpmiddleware.RateLimiter
	redis   *redis.Client
	pool    *pgxpool.Pool
	sqlDB   *sql.DB
	logger  *logging.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// Options overrides infrastructure for tests.
type Options struct {
	Redis    *redis.Client
	Registry *prometheus.Registry
}

// Build wires stores, the conversation pipeline and the HTTP router. Postgres
// and Redis are optional; missing backends fall back to in-memory stores.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	app := &App{logger: logger, redis: opts.Redis}
	if app.redis == nil {
		app.redis = BuildRedisClient(ctx, cfg, logger, true)
	}
	pool, sqlDB, err := OpenPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.pool, app.sqlDB = pool, sqlDB

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	leadMetrics := metrics.NewLeadMetrics(reg)

	var (
		leadRepo  leads.Repository
		history   messaging.Recorder
		decisions audit.Recorder
		processed webhooks.ProcessedTracker
		store     settings.Store
	)
	if pool != nil {
		leadRepo = leads.NewPostgresRepository(pool)
		history = messaging.NewStore(pool)
		decisions = audit.NewDecisionLog(sqlDB)
		processed = webhooks.NewProcessedStore(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory lead and message stores")
		leadRepo = leads.NewInMemoryRepository()
		history = messaging.NewMemoryStore()
		decisions = audit.NewMemoryLog()
		processed = webhooks.NewMemoryProcessed()
	}
	if app.redis != nil {
		store = settings.NewRedisStore(app.redis, cfg.DefaultTimezone)
	} else {
		store = settings.NewInMemoryStore(cfg.DefaultTimezone)
	}

	gw, err := gateway.New(gateway.Config{
		BaseURL: cfg.GatewayBaseURL,
		Timeout: cfg.GatewayTimeout,
		Logger:  logger,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("bootstrap: gateway client: %w", err)
	}
	dispatcher := messaging.NewDispatcher(history, gw, logger).WithMetrics(leadMetrics)

	scheduler := followup.NewScheduler(leadRepo, store, dispatcher, logger).
		WithDecisions(decisions).
		WithMetrics(leadMetrics)
	if app.redis != nil && cfg.FollowUpPersist {
		scheduler = scheduler.WithPersister(followup.NewRedisPersister(app.redis))
	}
	app.Scheduler = scheduler

	orch := conversation.NewOrchestrator(leadRepo, store, classifier.New(), dispatcher, scheduler, logger).
		WithDecisions(decisions).
		WithMetrics(leadMetrics)
	orch.SetAutomationEnabled(cfg.AutomationEnabled)
	scheduler.WithAutomation(orch.AutomationEnabled)
	app.Orchestrator = orch

	app.limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	app.Handler = router.New(&router.Config{
		Logger:              logger,
		LeadsHandler:        leads.NewHandler(leadRepo, logger),
		ConversationHandler: conversation.NewHandler(orch, history, decisions, logger),
		SettingsHandler:     settings.NewHandler(store, logger),
		WebhookHandler: webhooks.NewHandler(webhooks.Config{
			Leads:     leadRepo,
			Inbound:   orch,
			Processed: processed,
			Secret:    cfg.WebhookSecret,
			Metrics:   leadMetrics,
			Logger:    logger,
		}),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RateLimiter:        app.limiter,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HealthChecks:       app.healthChecks(),
	})
	return app, nil
}

func (a *App) healthChecks() map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	if a.pool != nil {
		checks["postgres"] = a.pool.Ping
	}
	return checks
}

// Start restores persisted follow-ups and launches background loops.
func (a *App) Start(ctx context.Context) error {
	n, err := a.Scheduler.Restore(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: restore follow-ups: %w", err)
	}
	a.logger.Info("follow-up scheduler started", "restored", n)

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.limiter.Run(runCtx)
	go func() {
		defer close(a.done)
		a.Scheduler.Run(runCtx)
	}()
	return nil
}

// Shutdown disarms follow-up timers, drains queued persistence writes and
// closes backends.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Scheduler.Stop(ctx)
	if a.cancel != nil {
		a.cancel()
		select {
		case <-a.done:
		case <-ctx.Done():
			err = errors.Join(err, ctx.Err())
		}
	}
	a.Close()
	return err
}

// Close releases database and cache connections.
func (a *App) Close() {
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
