package main

import (
	"context"
	"io"
	"log"

	"github.com/hibiken/asynq"

	"document-processing-platform/internal/ai"
	"document-processing-platform/internal/blob"
	"document-processing-platform/internal/catalog"
	"document-processing-platform/internal/config"
	"document-processing-platform/internal/logger"
	"document-processing-platform/internal/progresscache"
	"document-processing-platform/internal/queue"
	"document-processing-platform/internal/telemetry"
	"document-processing-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("document-processing-worker", cfg.OTLPEndpoint)
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

	pipeline := services.NewIngestionPipeline(
		cat,
		cache,
		blobs,
		services.NewLocalParser(),
		services.NewChunkPlanner(cfg.ChunkSizeTokens, cfg.ChunkOverlapTokens),
		embedder,
		synthesizer,
		metrics,
		cfg,
	)
	processor := queue.NewTaskProcessor(pipeline)

	asynqOpt, err := config.NewAsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to configure task broker:", err)
	}

	// The reconciler shares the worker process: one enqueue client to
	// requeue orphans, one inspector to probe task liveness.
	taskClient := asynq.NewClient(asynqOpt)
	defer taskClient.Close()
	inspector := asynq.NewInspector(asynqOpt)
	defer inspector.Close()

	recon := services.NewReconciler(cat, cache, taskClient, inspector, metrics, cfg)
	if err := recon.Start(); err != nil {
		log.Fatal("Failed to start reconciler:", err)
	}
	defer recon.Stop()

	server := asynq.NewServer(
		asynqOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			RetryDelayFunc: queue.RetryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskDocumentIngest, processor.HandleDocumentIngest)

	logger.Info("Worker starting",
		"concurrency", cfg.WorkerConcurrency,
		"queues", "critical(6), default(3), low(1)",
		"reconcile_interval", cfg.ReconcileInterval.String(),
	)

	// Run blocks until SIGTERM/SIGINT, drains in-flight tasks, then
	// returns so the deferred cleanup runs.
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}

	logger.Info("Worker exited")
}
