package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"SecureAccess/api/audit"
	"SecureAccess/api/auth"
	"SecureAccess/api/authflow"
	"SecureAccess/api/cache"
	"SecureAccess/api/config"
	"SecureAccess/api/database"
	"SecureAccess/api/devices"
	"SecureAccess/api/geofence"
	"SecureAccess/api/jobs"
	"SecureAccess/api/logging"
	"SecureAccess/api/middlewares"
	"SecureAccess/api/policy"
	"SecureAccess/api/reports"
	"SecureAccess/api/seed"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const version = "1.0.0"

type Server struct {
	DB     *gorm.DB
	Router *gin.Engine
	Config config.Config
	Logger *zap.Logger

	Devices     *devices.Registry
	Fences      *geofence.Store
	PolicyStore *policy.Store
	Policy      *policy.Resolver
	AuditLog    *audit.Store
	// Audit receives login outcomes. Setup installs an AsyncRecorder unless
	// one was assigned beforehand.
	Audit       audit.Recorder
	Credentials *auth.CredentialStore
	Sessions    *auth.SessionManager
	Auth        *authflow.Orchestrator
	Reports     *reports.Reporter
	Sweeper     *jobs.Sweeper
}

// ===============================
// SERVER INITIALIZATION
// ===============================
func (server *Server) Initialize(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	logger = logging.OrNop(logger)

	db, err := database.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx, db, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Redis init (safe failure)
	if err := cache.InitFromEnv(); err != nil {
		logger.Warn("could not connect to redis, using in-process locks", zap.Error(err))
	}

	if err := server.Setup(db, cfg, logger); err != nil {
		return err
	}

	if err := server.PolicyStore.EnsureDefaults(ctx); err != nil {
		logging.Report(logger, "policy defaults not ensured", err)
	}
	acct := seed.AdminAccount{Username: cfg.AdminUsername, Password: cfg.AdminPassword, Email: cfg.AdminEmail}
	if err := seed.Admin(ctx, db, acct, logger); err != nil {
		logging.Report(logger, "error seeding admin user", err)
	}
	if cfg.SeedSampleData && !cfg.IsProduction() {
		if err := seed.Load(ctx, db, server.Fences, logger); err != nil {
			logging.Report(logger, "error seeding sample data", err)
		}
	}
	return nil
}

// Setup wires every component on top of an open, migrated database and builds
// the router.
func (server *Server) Setup(db *gorm.DB, cfg config.Config, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	server.DB = db
	server.Config = cfg
	server.Logger = logger

	sessions, err := auth.NewSessionManager(db, cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}
	server.Sessions = sessions

	server.Devices = devices.NewRegistry(db, devices.Options{
		Locker: devices.DefaultLocker(),
		Logger: logger.Named("devices"),
	})
	server.Fences = geofence.NewStore(db, logger.Named("geofence"))
	server.PolicyStore = policy.NewStore(db)
	server.Policy = policy.NewResolver(policy.NewCachedProvider(server.PolicyStore, 30*time.Second), logger.Named("policy"))
	server.AuditLog = audit.NewStore(db)
	if server.Audit == nil {
		server.Audit = audit.NewAsyncRecorder(server.AuditLog, cfg.AuditQueueSize, logger.Named("audit"))
	}
	server.Credentials = auth.NewCredentialStore(db)

	server.Auth = authflow.New(authflow.Deps{
		Fences:      server.Fences,
		Devices:     server.Devices,
		Policy:      server.Policy,
		Credentials: server.Credentials,
		Sessions:    server.Sessions,
		Audit:       server.Audit,
	}, authflow.Options{
		RequireLocation:   cfg.RequireLocation,
		RequireDevice:     cfg.RequireDevice,
		CredentialTimeout: cfg.CredentialTimeout,
		Logger:            logger.Named("authflow"),
	})

	server.Reports, err = reports.NewReporter(db)
	if err != nil {
		return err
	}
	server.Sweeper = jobs.NewSweeper(server.Devices, server.Sessions, server.Policy, logger.Named("jobs"))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	server.Router = gin.New()
	server.Router.Use(gin.Recovery())
	server.Router.Use(middlewares.RequestLogger(logger.Named("http")))
	server.Router.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))
	server.Router.Use(middlewares.RateLimitMiddleware())
	server.initializeRoutes()
	return nil
}

// Run serves until ctx is cancelled, then drains in-flight requests, stops the
// scheduler and flushes pending audit entries.
func (server *Server) Run(ctx context.Context, addr string) error {
	if err := server.Sweeper.Start(server.Config.SweepSchedule); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go server.pruneVisitors(ctx)

	errCh := make(chan error, 1)
	go func() {
		server.Logger.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		server.Logger.Warn("http shutdown", zap.Error(err))
	}
	server.Sweeper.Stop(shutdownCtx)
	if closer, ok := server.Audit.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(shutdownCtx); err != nil {
			server.Logger.Warn("audit queue not drained", zap.Error(err))
		}
	}
	return serveErr
}

// pruneVisitors keeps the rate limiter tables from growing with every client
// address ever seen.
func (server *Server) pruneVisitors(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := middlewares.PruneVisitors(10 * time.Minute); n > 0 {
				server.Logger.Debug("pruned rate limit visitors", zap.Int("count", n))
			}
		}
	}
}
