package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"rag-document-platform/internal/app"
	"rag-document-platform/internal/config"
	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/queue"
	"rag-document-platform/internal/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer(cfg.ServiceName+"-worker", cfg.OTLPEndpoint, cfg.TraceSampleRatio)
	if err != nil {
		log.Fatal("Failed to initialize tracing:", err)
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	components, err := app.Build(context.Background(), cfg, metrics)
	if err != nil {
		log.Fatal("Failed to initialize services:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		components.Close(ctx)
	}()

	reaper := components.Reaper()
	if err := reaper.Start(); err != nil {
		log.Fatal("Failed to start stale-run reaper:", err)
	}
	defer reaper.Stop()

	// Redis options for Asynq
	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to configure task queue:", err)
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6, // 60% of workers
				queue.QueueDefault:  3, // 30% of workers
				queue.QueueLow:      1, // 10% of workers
			},
			StrictPriority:  true,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "task_type", task.Type(), "error", err)
			}),
		},
	)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	queue.NewTaskProcessor(components.Ingestor).Register(mux)

	logger.Info("Starting asynq worker",
		"concurrency", cfg.WorkerConcurrency,
		"queues", "critical(6), default(3), low(1)",
		"task_timeout", cfg.TaskTimeout.String(),
	)

	// Run blocks until SIGINT/SIGTERM
	if err := server.Run(mux); err != nil {
		logger.Error("Worker stopped", "error", err)
	}
}
