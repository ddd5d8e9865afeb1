package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"session-core/internal/audit"
	auditrepo "session-core/internal/audit/repository"
	"session-core/internal/config"
	"session-core/internal/db"
	"session-core/internal/security"
	"session-core/internal/server"
	"session-core/internal/session/handler"
	sessionrepo "session-core/internal/session/repository"
	"session-core/internal/session/service"
	"session-core/internal/signingkey"
	signingkeyrepo "session-core/internal/signingkey/repository"
	"session-core/internal/telemetry/otel"
)

const (
	serviceName     = "session-core"
	sweepInterval   = time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, false)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	var sessions sessionrepo.Repository
	var keys signingkeyrepo.Repository
	var auditLogger audit.AuditLogger
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer conn.Close()
		sessions = sessionrepo.NewPostgresRepository(conn)
		keys = signingkeyrepo.NewPostgresRepository(conn)
		auditLogger = audit.NewLogger(auditrepo.NewPostgresRepository(conn), server.ClientIPFromContext, logger)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		sessions = sessionrepo.NewMemoryRepository()
		keys = signingkeyrepo.NewMemoryRepository()
	}

	refreshCodec, err := security.NewRefreshTokenCodec([]byte(cfg.RefreshTokenEncryptionKey))
	if err != nil {
		log.Fatalf("refresh token codec: %v", err)
	}

	engine := service.NewEngine(
		sessions,
		signingkey.NewManager(keys, cfg.AccessTokenSigningKeyDynamic, cfg.SigningKeyUpdateInterval()),
		refreshCodec,
		auditLogger,
		cfg.AccessTokenValidity(),
		cfg.RefreshTokenValidity(),
		cfg.EnableAntiCsrf,
		service.CookieConfig{
			Domain:          cfg.CookieDomain,
			Secure:          cfg.CookieSecure,
			SameSite:        cfg.CookieSameSite,
			AccessTokenPath: cfg.AccessTokenPath,
			RefreshPath:     cfg.RefreshAPIPath,
		})

	telemetryMW, err := otel.HTTPMiddleware(providers, serviceName)
	if err != nil {
		log.Fatalf("telemetry middleware: %v", err)
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.New(handler.NewHandler(engine, logger), logger, telemetryMW),
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go runSweeper(sweepCtx, engine, logger)

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down http server")
	stopSweeper()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
	logger.Info("http server stopped")
}

// runSweeper deletes expired sessions on a fixed interval until ctx is done.
func runSweeper(ctx context.Context, engine *service.Engine, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := engine.RemoveExpiredSessions(ctx)
			if err != nil {
				logger.Error("sweeper: removing expired sessions", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Info("sweeper: removed expired sessions", slog.Int64("count", removed))
			}
		}
	}
}
