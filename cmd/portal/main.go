package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/agencyhub/portal/internal/app"
	"github.com/agencyhub/portal/internal/auth"
	"github.com/agencyhub/portal/internal/directory"
	"github.com/agencyhub/portal/internal/guard"
	"github.com/agencyhub/portal/internal/i18n"
	"github.com/agencyhub/portal/internal/impersonation"
	"github.com/agencyhub/portal/internal/observability"
	"github.com/agencyhub/portal/internal/pages"
	"github.com/agencyhub/portal/internal/platform/cache"
	"github.com/agencyhub/portal/internal/platform/db"
	"github.com/agencyhub/portal/internal/rbac"
	"github.com/agencyhub/portal/internal/scope"
	"github.com/agencyhub/portal/internal/shared"
	"github.com/agencyhub/portal/internal/simulation"
	"github.com/agencyhub/portal/internal/timeout"
	"github.com/agencyhub/portal/internal/view"
	"github.com/agencyhub/portal/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "portal_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	localizer := i18n.NewLocalizer(cfg.DefaultLocale)
	metrics := observability.NewMetrics()

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}
	templates.WithLogger(logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	rbacService := rbac.NewService(rbac.NewRepository(dbpool))
	directoryService := directory.NewService(
		directory.NewRepository(dbpool),
		cache.NewJSON(redisClient, "directory", cfg.DirectoryCacheTTL),
	)

	authService := auth.NewService(auth.NewRepository(dbpool))
	provider := auth.NewProvider(authService, sessionManager, cfg.IdentityLookupBudget, logger)
	scopes := scope.NewRegistry(cfg.SessionTTL)

	idleManager, err := timeout.NewManager(ctx, cfg.Idle(), timeout.ManagerOptions{
		SignOut: provider.SignOut,
		OnEvent: func(sessionID, event string, st timeout.State) {
			if event != timeout.EventExpired && event != timeout.EventReauthRequired {
				return
			}
			if event == timeout.EventExpired {
				scopes.Delete(sessionID)
			}
			auditCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := jobClient.RecordAudit(auditCtx, shared.AuditLog{
				Action:   "session." + event,
				Entity:   "session",
				EntityID: sessionRef(sessionID),
				Meta:     map[string]any{"last_activity_at": st.LastActivityAt},
				At:       time.Now(),
			})
			if err != nil {
				logger.Warn("audit idle expiry", slog.Any("error", err))
			}
		},
		Recorder: metrics,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("init idle monitor", slog.Any("error", err))
		os.Exit(1)
	}

	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, localizer, scopes.Delete, idleManager.Release)
	timeoutHandler := timeout.NewHandler(logger, idleManager, templates, localizer)
	simulationHandler := simulation.NewHandler(logger, rbacService, localizer, jobClient, metrics)
	impersonationHandler := impersonation.NewHandler(logger, directoryService, localizer, jobClient, metrics)

	templates.Use(
		view.SessionChrome(csrfManager),
		pages.Chrome{Localizer: localizer}.Decorator(),
		simulation.BannerPresenter{Directory: directoryService, Localizer: localizer, Timeout: cfg.BannerLookupTimeout, Logger: logger}.Decorator(),
		impersonation.BannerPresenter{Directory: directoryService, Localizer: localizer, Timeout: cfg.BannerLookupTimeout, Logger: logger}.Decorator(),
		timeoutHandler.Decorator(),
	)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Localizer:      localizer,
		Scopes:         scopes,
		Guard: guard.Middleware{
			Identity:  provider,
			Localizer: localizer,
			Templates: templates,
			Logger:    logger,
			Recorder:  metrics,
		},
		AuthHandler:          authHandler,
		PagesHandler:         pages.NewHandler(logger, templates),
		SimulationHandler:    simulationHandler,
		ImpersonationHandler: impersonationHandler,
		TimeoutHandler:       timeoutHandler,
		PermissionsHandler:   rbac.NewPermissionsHandler(logger, rbacService, templates),
		JobHandler:           jobs.NewHandler(inspector, logger),
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// sessionRef identifies a session in the audit trail without storing its cookie value.
func sessionRef(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:8])
}
