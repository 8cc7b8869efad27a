// Command server runs the outreach tracker auth core: the /auth session gateway, the /api/v1
// bearer-token API, /healthz and /metrics.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"outreach-tracker/backend/internal/audit"
	auditrepo "outreach-tracker/backend/internal/audit/repository"
	"outreach-tracker/backend/internal/cas"
	"outreach-tracker/backend/internal/config"
	"outreach-tracker/backend/internal/db"
	"outreach-tracker/backend/internal/db/migrate"
	healthhandler "outreach-tracker/backend/internal/health/handler"
	identityservice "outreach-tracker/backend/internal/identity/service"
	"outreach-tracker/backend/internal/policy/engine"
	"outreach-tracker/backend/internal/security"
	"outreach-tracker/backend/internal/server"
	sessionrepo "outreach-tracker/backend/internal/session/repository"
	sessionservice "outreach-tracker/backend/internal/session/service"
	"outreach-tracker/backend/internal/telemetry"
	otelsetup "outreach-tracker/backend/internal/telemetry/otel"
	"outreach-tracker/backend/internal/telemetry/producer"
	userrepo "outreach-tracker/backend/internal/user/repository"
	userservice "outreach-tracker/backend/internal/user/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if cfg.IsProduction() {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l.With(zap.String("service", cfg.ServiceName))
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelCfg := otelsetup.Config{Endpoint: cfg.OTLPEndpoint, ServiceName: cfg.ServiceName, Environment: cfg.Env}
	providers, err := otelsetup.NewProviders(ctx, otelCfg)
	if err != nil {
		return err
	}
	providers.SetGlobal()

	var conn *sql.DB
	if cfg.DatabaseURL != "" {
		if cfg.AutoMigrate {
			if err := migrate.Run(cfg.DatabaseURL, migrate.Up, logger); err != nil {
				return err
			}
		}
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, err = db.Open(openCtx, cfg.DatabaseURL, db.PoolConfig{MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: 30 * time.Minute})
		cancel()
		if err != nil {
			return err
		}
		defer conn.Close()
		logger.Info("database connected")
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores (single instance only)")
	}

	var (
		users    userrepo.Repository
		sessions sessionrepo.Repository
		audits   auditrepo.Repository
	)
	if conn != nil {
		users = userrepo.NewPostgresRepository(conn)
		audits = auditrepo.NewPostgresRepository(conn)
	} else {
		users = userrepo.NewMemoryRepository()
		audits = auditrepo.NewMemoryRepository()
	}
	if cfg.UsePostgresSessions() && conn != nil {
		sessions = sessionrepo.NewPostgresRepository(conn)
	} else {
		sessions = sessionrepo.NewMemoryRepository()
	}

	tokens, err := security.NewTokenIssuer(cfg.TokenSecret, cfg.JWTIssuer, cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		return err
	}
	sso, err := cas.New(cas.Config{
		URL:        cfg.CASURL,
		ServiceURL: cfg.CASServiceURL,
		DevMode:    cfg.CASDevMode,
		DevUser:    cfg.CASDevUser,
	})
	if err != nil {
		return err
	}

	authz, err := newAuthorizer(ctx, cfg.PolicyEngine)
	if err != nil {
		return err
	}

	kafkaProducer := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.KafkaTopic)
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			logger.Warn("close kafka producer", zap.Error(err))
		}
	}()
	sinks := telemetry.Multi{otelsetup.NewEventEmitter(providers.LoggerProvider)}
	if kafkaProducer != nil {
		sinks = append(sinks, kafkaProducer)
	}
	events := telemetry.NewAsync(sinks, logger)

	directory := userservice.NewDirectory(users, logger)
	auth := identityservice.NewAuthService(directory, tokens, sso, identityservice.Config{
		ForceAuth:       cfg.ForceAuth,
		LogoutReturnURL: cfg.CASLogoutReturnURL(),
	}, audit.NewLogger(audits, logger), events, logger)
	sessionMgr := sessionservice.NewManager(sessions, sessionservice.Options{
		CookieName: cfg.SessionCookieName,
		TTL:        cfg.SessionLifetime(),
		Secure:     cfg.SessionCookieSecure,
	}, logger)

	sweeper, err := sessionservice.NewSweeper(sessions, cfg.SessionSweepSchedule, logger)
	if err != nil {
		return err
	}
	sweeper.Start()

	checks := map[string]healthhandler.Checker{}
	if conn != nil {
		checks["database"] = healthhandler.DBChecker(conn)
	}
	if hc, ok := authz.(healthhandler.Checker); ok {
		checks["policy"] = hc
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.Deps{
			Auth:        auth,
			Sessions:    sessionMgr,
			Tokens:      tokens,
			Users:       directory,
			Authorizer:  authz,
			AuditRepo:   audits,
			Events:      events,
			Health:      checks,
			Metrics:     cfg.MetricsEnabled,
			Tracing:     otelCfg.Enabled(),
			ServiceName: cfg.ServiceName,
			Logger:      logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if cfg.ForceAuth {
		logger.Warn("FORCE_AUTH is enabled: /auth/login?eid= bypasses CAS")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("policy_engine", cfg.PolicyEngine),
			zap.Bool("postgres", conn != nil),
			zap.Bool("kafka", kafkaProducer != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	sweeper.Stop(shutdownCtx)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
	events.Drain(drainCtx)
	drainCancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("otel shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}

func newAuthorizer(ctx context.Context, name string) (engine.Authorizer, error) {
	if name == "opa" {
		return engine.NewOPAAuthorizer(ctx, engine.DefaultPolicy)
	}
	return engine.SetAuthorizer{}, nil
}
