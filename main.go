package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"invoice-extractor/pkg/config"
	"invoice-extractor/pkg/handlers"
	"invoice-extractor/pkg/lock"
	"invoice-extractor/pkg/logger"
	"invoice-extractor/pkg/middleware"
	"invoice-extractor/pkg/repository"
	"invoice-extractor/pkg/services/engine"
	"invoice-extractor/pkg/services/export"
	"invoice-extractor/pkg/services/extraction"
	"invoice-extractor/pkg/services/invoice"
	"invoice-extractor/pkg/services/ocr"
	"invoice-extractor/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.Init(logger.Config{Level: cfg.App.LogLevel, Format: cfg.App.LogFormat})

	db, err := repository.Open(repository.Config{
		DSN:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		LogLevel:        cfg.App.LogLevel,
	}, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, log)

	if err := repository.Migrate(db); err != nil {
		log.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	store, err := newStore(cfg.Storage, log)
	if err != nil {
		log.Error("failed to initialize document storage", "error", err)
		os.Exit(1)
	}

	locker, closeLocker := newLocker(cfg.Lock, log)
	defer closeLocker()

	// images need OCR; without Azure credentials only pdf and docx load
	var images engine.ImageReader
	if cfg.OCR.Endpoint != "" && cfg.OCR.Key != "" {
		images = ocr.NewService(cfg.OCR.Endpoint, cfg.OCR.Key, cfg.OCR.Language, log)
	} else {
		log.Warn("AZURE_VISION_ENDPOINT or AZURE_VISION_KEY not set, image uploads will fail to load")
	}
	if cfg.Engine.APIKey == "" {
		log.Warn("OPENAI_API_KEY not set, field queries will fail")
	}

	engineCfg := engine.Config{
		BaseURL:         cfg.Engine.BaseURL,
		Model:           cfg.Engine.Model,
		APIKey:          cfg.Engine.APIKey,
		QueryTimeout:    cfg.Engine.QueryTimeout,
		MaxContextChars: cfg.Engine.MaxContextChars,
		Concurrency:     cfg.Engine.QueryConcurrency,
	}.WithDefaults()
	loader := engine.NewLoader(engine.ExecRunner{Logger: log, Timeout: cfg.Engine.QueryTimeout}, cfg.Engine.PdftotextBin, images, log)
	coordinator := extraction.NewCoordinator(engine.NewOpenAI(engineCfg, loader, log), engineCfg, log)

	repo := repository.NewInvoiceRepository(db, log)
	manager := invoice.NewManager(repo, store, coordinator, locker, log)
	invoiceHandler := handlers.NewInvoiceHandler(manager, export.NewService(manager, log), handlers.UploadConfig{
		MaxBytes:          cfg.Upload.MaxBytes,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
	}, log)

	if cfg.App.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = cfg.Upload.MaxBytes
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders:   []string{middleware.RequestIDHeader, "Content-Disposition"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/health", handlers.Health(func(ctx context.Context) error {
		return repository.HealthCheck(ctx, db, 0)
	}))
	invoiceHandler.Register(r.Group("/api"))

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// extraction runs inside the request
		WriteTimeout: cfg.Engine.QueryTimeout*time.Duration(len(extraction.Fields)+1) + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting server", "port", cfg.App.Port, "storage", cfg.Storage.Backend, "model", engineCfg.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	log.Info("server exited")
}

func newStore(cfg config.StorageConfig, log *slog.Logger) (storage.Store, error) {
	if cfg.Backend == "minio" {
		s, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, log)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
	return storage.NewLocalStore(cfg.Dir, log)
}

// newLocker shares locks through Redis when configured, otherwise locks
// only guard this process.
func newLocker(cfg config.LockConfig, log *slog.Logger) (lock.Locker, func()) {
	if cfg.RedisAddr == "" {
		return lock.NewMemory(), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, falling back to in-process locks", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return lock.NewMemory(), func() {}
	}
	log.Info("using redis processing locks", "addr", cfg.RedisAddr)
	return lock.NewRedis(client, cfg.TTL, log), func() { _ = client.Close() }
}
