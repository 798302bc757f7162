package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/assistant-guard/api"
	"github.com/frahmantamala/assistant-guard/internal"
	"github.com/frahmantamala/assistant-guard/internal/classifier"
	"github.com/frahmantamala/assistant-guard/internal/core/events"
	"github.com/frahmantamala/assistant-guard/internal/credential"
	"github.com/frahmantamala/assistant-guard/internal/dispatch"
	"github.com/frahmantamala/assistant-guard/internal/guard"
	"github.com/frahmantamala/assistant-guard/internal/identity"
	identityStore "github.com/frahmantamala/assistant-guard/internal/identity/postgres"
	"github.com/frahmantamala/assistant-guard/internal/metrics"
	"github.com/frahmantamala/assistant-guard/internal/notification"
	"github.com/frahmantamala/assistant-guard/internal/permission"
	permissionStore "github.com/frahmantamala/assistant-guard/internal/permission/postgres"
	"github.com/frahmantamala/assistant-guard/internal/risk"
	"github.com/frahmantamala/assistant-guard/internal/risk/eventlog"
	"github.com/frahmantamala/assistant-guard/internal/transport"
	"github.com/frahmantamala/assistant-guard/internal/transport/rest"
	"github.com/frahmantamala/assistant-guard/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

// Dependencies is the wired application. Redis, Webhook and EventLog are
// nil when not configured.
type Dependencies struct {
	Config     *internal.Config
	Gorm       *gorm.DB
	DB         *sqlx.DB
	Redis      *redis.Client
	Bus        *events.EventBus
	Tokens     *credential.TokenService
	Identity   *identity.Service
	Permission *permission.Service
	Engine     *risk.Engine
	EventLog   *eventlog.Store
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Metrics
	Webhook    *notification.WebhookNotifier
	Logger     *slog.Logger
	StartedAt  time.Time
}

func startHTTPServer() {
	cfg := mustLoadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	if _, err := api.Load(ctx); err != nil {
		deps.Logger.Error("embedded OpenAPI document is invalid", "error", err)
		os.Exit(1)
	}

	created, err := deps.Identity.EnsureAdmin(ctx, cfg.Security.AdminUsername, cfg.Security.AdminEmail, cfg.Security.AdminPassword)
	if err != nil {
		deps.Logger.Error("failed to bootstrap admin", "error", err)
		os.Exit(1)
	}
	if created {
		deps.Logger.Warn("bootstrap admin created", "username", cfg.Security.AdminUsername)
	}

	go deps.Tokens.RunPurger(ctx, cfg.Security.BlacklistPurge)

	router := chi.NewRouter()
	setupRoutes(router, deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "rate_limit", cfg.Guard.RateLimit, "classifier", cfg.Risk.Classifier.Enabled)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		deps.Logger.Info("Received signal, shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(router *chi.Mux, deps *Dependencies) {
	cfg := deps.Config
	base := transport.NewBaseHandler(deps.Logger)

	var limiter guard.Limiter
	if deps.Redis != nil {
		limiter = guard.NewRedisLimiter(deps.Redis, cfg.Guard.RateLimit, cfg.Guard.RateWindow, "guard:rate")
	} else {
		limiter = guard.NewMemoryLimiter(cfg.Guard.RateLimit, cfg.Guard.RateWindow)
	}
	lockout := guard.NewLockout(cfg.Guard.LockoutThreshold, cfg.Guard.LockoutDuration)
	g := guard.New(base, limiter, lockout, deps.Tokens, guard.Options{
		RateLimit:        cfg.Guard.RateLimit,
		RateWindow:       cfg.Guard.RateWindow,
		LockoutThreshold: cfg.Guard.LockoutThreshold,
		LockoutDuration:  cfg.Guard.LockoutDuration,
	})

	health := rest.NewHealthHandler().Add("database", deps.DB)
	if deps.Redis != nil {
		health.Add("redis", rest.PingFunc(func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		}))
	}

	h := rest.Handlers{
		Base:       base,
		Health:     health,
		Guard:      g,
		RBAC:       permission.NewRBACAuthorization(deps.Permission, base),
		Identity:   identity.NewHandler(base, deps.Identity, g),
		Permission: permission.NewHandler(base, deps.Permission),
		Risk:       risk.NewHandler(base, deps.Engine),
		Dispatch:   dispatch.NewHandler(base, deps.Dispatcher),
		OpenAPI:    api.Spec,
	}
	if deps.Metrics != nil {
		g.WithRecorder(deps.Metrics)
		h.Metrics = deps.Metrics
		h.MetricsPath = cfg.Observability.Metrics.Path
	}

	rest.RegisterAllRoutes(router, h)
}

// initializeDependencies wires everything except the HTTP layer so the
// CLI commands can share it.
func initializeDependencies(ctx context.Context, cfg *internal.Config) (*Dependencies, error) {
	lg := logger.LoggerWrapper()
	deps := &Dependencies{Config: cfg, Logger: lg, StartedAt: time.Now()}

	gdb, db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	deps.Gorm, deps.DB = gdb, db

	var blacklist credential.Blacklist = credential.NewMemoryBlacklist()
	if cfg.Guard.RedisAddr != "" {
		deps.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Guard.RedisAddr,
			Password: cfg.Guard.RedisPassword,
			DB:       cfg.Guard.RedisDB,
		})
		if err := deps.Redis.Ping(ctx).Err(); err != nil {
			lg.Warn("redis unreachable, limiter will fail open until it recovers", "addr", cfg.Guard.RedisAddr, "error", err)
		}
		blacklist = credential.NewRedisBlacklist(deps.Redis, "guard:revoked")
	}

	if cfg.Observability.Metrics.Enabled {
		deps.Metrics = metrics.New()
	}

	deps.Bus = events.NewEventBus(lg)
	deps.Tokens = credential.NewTokenService(cfg.Security.JWTSecret, cfg.Security.TokenTTL, blacklist, lg)
	deps.Identity = identity.NewService(
		identityStore.NewUserRepository(gdb),
		credential.NewHasher(cfg.Security.BCryptCost),
		deps.Tokens,
		deps.Bus,
		lg,
	)
	deps.Permission = permission.NewService(
		deps.Identity,
		permissionStore.NewOverrideRepository(gdb),
		cfg.Permission.CacheSize,
		cfg.Permission.CacheTTL,
		lg,
	)
	deps.Identity.WithRoleAuthorizer(deps.Permission)
	deps.Bus.Subscribe(events.EventTypeUserRoleChanged, deps.Permission.HandleRoleChanged)
	deps.Bus.Subscribe(events.EventTypeUserDeleted, deps.Permission.HandleUserDeleted)
	deps.Bus.Subscribe(events.EventTypeWorkflowTriggered, func(ctx context.Context, event events.Event) error {
		lg.InfoContext(ctx, "workflow triggered",
			"event_id", event.EventID(),
			"payload", event.Payload())
		return nil
	})

	deps.Engine = initRiskEngine(deps)
	deps.Dispatcher = initDispatcher(deps)

	return deps, nil
}

func initRiskEngine(deps *Dependencies) *risk.Engine {
	cfg := deps.Config
	engine := risk.NewEngine(deps.Permission, deps.Logger, risk.Options{
		RingSize:          cfg.Risk.EventRingSize,
		CommandMaxLength:  cfg.Risk.CommandMaxLength,
		ClassifierTimeout: cfg.Risk.Classifier.Timeout,
		MaxConcurrent:     cfg.Risk.Classifier.MaxConcurrent,
	}).WithActivityLog(deps.Identity)

	notifiers := notification.Fanout{notification.NewLogNotifier(deps.Logger)}
	if cfg.Notification.WebhookURL != "" {
		deps.Webhook = notification.NewWebhookNotifier(notification.WebhookConfig{
			URL:        cfg.Notification.WebhookURL,
			Timeout:    cfg.Notification.Timeout,
			RatePerSec: cfg.Notification.RatePerSec,
			Burst:      cfg.Notification.Burst,
			Workers:    cfg.Notification.Workers,
			QueueSize:  cfg.Notification.QueueSize,
		}, deps.Logger)
		notifiers = append(notifiers, deps.Webhook)
	}
	engine.WithNotifier(notifiers)

	if cfg.Risk.Classifier.Enabled {
		engine.WithClassifier(classifier.NewClient(classifier.Config{
			Endpoint: cfg.Risk.Classifier.Endpoint,
			APIKey:   cfg.Risk.Classifier.APIKey,
			Model:    cfg.Risk.Classifier.Model,
			Timeout:  cfg.Risk.Classifier.Timeout,
		}, deps.Logger))
	}
	if cfg.Risk.EventLogEnabled {
		deps.EventLog = eventlog.NewStore(deps.DB)
		engine.WithEventSink(deps.EventLog)
	}
	if deps.Metrics != nil {
		engine.WithRecorder(deps.Metrics)
	}
	return engine
}

func initDispatcher(deps *Dependencies) *dispatch.Dispatcher {
	d := dispatch.NewDispatcher(deps.Permission, deps.Engine, deps.Identity, deps.Logger)
	if deps.Metrics != nil {
		d.WithRecorder(deps.Metrics)
	}
	d.Register(dispatch.SystemInfo, dispatch.NewSystemInfo(deps.StartedAt))
	d.Register(dispatch.ManageFiles, dispatch.NewFileManager(deps.Config.Dispatch.SafeDirs))
	d.Register(dispatch.TriggerWorkflow, dispatch.NewWorkflowTrigger(deps.Bus))
	return d
}

// initDB opens gorm for the repositories and shares its pool with sqlx for
// the event log and health checks.
func initDB(cfg internal.DatabaseConfig) (*gorm.DB, *sqlx.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.GetDSN())
	default:
		dialector = sqlite.Open(cfg.GetDSN())
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return gdb, sqlx.NewDb(sqlDB, sqlDriverName(cfg.Driver)), nil
}

// Close drains background work then releases connections.
func (d *Dependencies) Close() {
	d.Bus.Wait()
	if d.Webhook != nil {
		d.Webhook.Shutdown()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("Redis close error", "error", err)
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
}
