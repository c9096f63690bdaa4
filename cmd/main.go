package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"document-processing-platform/internal/ai"
	"document-processing-platform/internal/blob"
	"document-processing-platform/internal/catalog"
	"document-processing-platform/internal/config"
	"document-processing-platform/internal/logger"
	"document-processing-platform/internal/progresscache"
	"document-processing-platform/internal/telemetry"
	"document-processing-platform/middleware"
	"document-processing-platform/routes"
	"document-processing-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("document-processing-platform", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal("Failed to initialize tracer:", err)
		}
		defer shutdown()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	pool, err := config.NewPostgresPool(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Postgres:", err)
	}
	defer pool.Close()

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	ctx := context.Background()

	blobs, err := blob.NewStore(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize blob storage:", err)
	}

	asynqOpt, err := config.NewAsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to configure task broker:", err)
	}
	taskClient := asynq.NewClient(asynqOpt)
	defer taskClient.Close()

	cat := catalog.NewStore(pool, cfg.AnnEfSearch)
	cache := progresscache.New(rdb, cfg.ProgressTaskTTL, cfg.ResultCacheTTL)

	embedder := ai.NewEmbedder(cfg, metrics)
	synthesizer, err := ai.NewSynthesizer(ctx, cfg, metrics)
	if err != nil {
		log.Fatal("Failed to initialize synthesizer:", err)
	}
	if closer, ok := synthesizer.(io.Closer); ok {
		defer closer.Close()
	}

	retriever := services.NewRetriever(cat, embedder, metrics, cfg)
	orchestrator := services.NewChatOrchestrator(retriever, synthesizer, cfg)
	reports := services.NewReportBuilder(cat)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if cfg.TracingEnabled {
		router.Use(middleware.Tracing())
		router.Use(middleware.EnrichTrace())
	}
	router.Use(middleware.Metrics(metrics))
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.RateLimit(rdb, cfg))
	// Body cap covers a full upload batch plus multipart framing.
	router.Use(middleware.RequestSizeLimit(cfg.MaxFileSize*int64(cfg.MaxFilesPerUpload) + (1 << 20)))

	routes.Register(router, &routes.Deps{
		Cfg:      cfg,
		Catalog:  cat,
		Cache:    cache,
		Blobs:    blobs,
		Enqueuer: taskClient,
		Chat:     orchestrator,
		Reports:  reports,
		Metrics:  metrics,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Port, "blob_backend", cfg.BlobBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
