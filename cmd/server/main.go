// Command accountd serves the account content routes and the identity core over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/accountd/internal/config"
	"github.com/and161185/accountd/internal/metrics"
	"github.com/and161185/accountd/internal/migrate"
	"github.com/and161185/accountd/internal/registry"
	"github.com/and161185/accountd/internal/repository"
	"github.com/and161185/accountd/internal/repository/postgres"
	"github.com/and161185/accountd/internal/repository/sqlite"
	httpserver "github.com/and161185/accountd/internal/server/http"
	"github.com/and161185/accountd/internal/service"
	"github.com/and161185/accountd/internal/storage"
	"github.com/and161185/accountd/internal/unique"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, opens the identity store and serves HTTP until signalled.
func main() {
	configFile := flag.String("config", "", "config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		// logger is not configured yet
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger := newLogger(cfg.Log.Level)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr),
		zap.String("db", cfg.Database.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	identities, health, closeDB, err := openIdentities(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open identity store", zap.Error(err))
	}
	defer closeDB()

	content, err := openContent(ctx, cfg)
	if err != nil {
		logger.Fatal("open content store", zap.Error(err))
	}

	clients, err := registry.NewStatic(cfg.Clients)
	if err != nil {
		logger.Fatal("client registry", zap.Error(err))
	}
	if len(clients.IDs()) == 0 {
		logger.Warn("no clients configured; content routes will reject every request")
	}

	m := metrics.New()
	guard := unique.New(
		unique.WithMaxAttempts(cfg.Generation.MaxAttempts),
		unique.WithLogger(logger.Named("unique")),
		unique.WithRecorder(m),
	)

	// Services
	authSvc := service.NewAuthService(identities, guard,
		service.WithAuthLogger(logger.Named("auth")),
		service.WithVerificationRecorder(m),
	)
	contentAccess := service.NewContentAccess(clients, logger.Named("content"), m)

	gin.SetMode(gin.ReleaseMode)
	app := httpserver.New(httpserver.Deps{
		Clients: contentAccess,
		People:  authSvc,
		Content: content,
		Metrics: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		Health:  health,
		Log:     logger.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		closeDB()
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func newLogger(level string) *zap.Logger {
	var zc zap.Config
	if level == "debug" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openIdentities returns the configured identity store, a health probe and a closer.
func openIdentities(ctx context.Context, cfg config.Config, logger *zap.Logger) (repository.IdentityRepository, func(context.Context) error, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		if err := migrate.Up(ctx, cfg.Database.DSN, logger); err != nil {
			return nil, nil, nil, err
		}
		db, err := postgres.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return postgres.NewIdentityRepo(db), db.Pool.Ping, db.Close, nil

	default:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		repo := sqlite.NewIdentityRepository(db)
		if err := repo.Init(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return repo, db.PingContext, func() { _ = db.Close() }, nil
	}
}

func openContent(ctx context.Context, cfg config.Config) (storage.Store, error) {
	if cfg.Content.Bucket != "" {
		return storage.NewS3FromConfig(ctx, storage.S3Options{
			Bucket:   cfg.Content.Bucket,
			Prefix:   cfg.Content.Prefix,
			Region:   cfg.Content.Region,
			Endpoint: cfg.Content.Endpoint,
		})
	}
	return storage.NewFS(cfg.Content.Root)
}
