package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Anuj5504/cloudbox/internal/auth"
	"github.com/Anuj5504/cloudbox/internal/config"
	"github.com/Anuj5504/cloudbox/internal/database"
	"github.com/Anuj5504/cloudbox/internal/files"
	"github.com/Anuj5504/cloudbox/internal/handlers"
	"github.com/Anuj5504/cloudbox/internal/logger"
	"github.com/Anuj5504/cloudbox/internal/storage"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("CLOUDBOX_CONFIG"), "path to a YAML config file")
	flag.Parse()

	// 1. Config and logging
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Development: cfg.Log.Development,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Database
	db, err := database.Open(cfg.Database, zl)
	if err != nil {
		zl.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db); err != nil {
			zl.Error("Failed to close database connection", zap.Error(err))
		}
	}()
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			zl.Fatal("Failed to run database migrations", zap.Error(err))
		}
	}

	// 3. Storage
	var (
		provider storage.Provider
		mediaDir string
	)
	switch cfg.Storage.Driver {
	case "minio":
		provider, err = storage.NewMinioStorage(ctx, cfg.Storage.MinIO, zl)
	default:
		provider, err = storage.NewLocalStorage(cfg.Storage.Local.BaseDir, cfg.Storage.Local.PublicURL)
		mediaDir = cfg.Storage.Local.BaseDir
	}
	if err != nil {
		zl.Fatal("Failed to initialize storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}

	// 4. Auth
	verifier, err := auth.NewVerifier(ctx, cfg.Auth, zl)
	if err != nil {
		zl.Fatal("Failed to initialize auth", zap.String("mode", cfg.Auth.Mode), zap.Error(err))
	}

	// 5. HTTP
	svc := files.NewService(files.NewStore(db), provider, files.Options{
		RootFolder:     cfg.Storage.RootFolder,
		MaxUploadBytes: cfg.Files.MaxUploadBytes,
		MaxDepth:       cfg.Files.MaxDepth,
		QuotaBytes:     cfg.Files.QuotaBytes,
	}, zl)
	e := handlers.NewRouter(handlers.NewHandler(svc, zl), verifier, handlers.RouterOptions{
		CORSOrigins:  cfg.Server.CORSOrigins,
		MaxBodyBytes: cfg.Files.MaxUploadBytes,
		MediaDir:     mediaDir,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zl.Info("Starting HTTP server", zap.String("addr", srv.Addr), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Failed to shutdown HTTP server", zap.Error(err))
	}
	zl.Info("Server stopped")
}
