package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/labledger/api/internal/client"
	"github.com/labledger/api/internal/config"
	"github.com/labledger/api/internal/handler"
	"github.com/labledger/api/internal/ledger"
	"github.com/labledger/api/internal/middleware"
	"github.com/labledger/api/internal/model"
	"github.com/labledger/api/internal/poller"
	"github.com/labledger/api/internal/service"
	"github.com/labledger/api/internal/store"
	"github.com/labledger/api/internal/worker"
	ws "github.com/labledger/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	engineClient := client.NewEngineClient(&cfg.Engine)

	// Initialize R2 client (optional - continues if not configured)
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storage = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, using mock storage")
	}

	// Initialize ledger backend: remote node when configured, otherwise the
	// in-process emulator.
	var ledgerBackend ledger.Ledger
	if cfg.Ledger.NodeURL != "" {
		ledgerBackend = ledger.NewClient(&cfg.Ledger)
	} else {
		log.Println("Info: Ledger node not configured, using in-process emulator")
		ledgerBackend = ledger.NewEmulator()
	}

	// Initialize job store
	jobStore := store.NewRedisStore(redisClient)

	// Initialize services
	analysisService := service.NewAnalysisService(jobStore, storage, asynqClient)
	provenanceService := service.NewProvenanceService(jobStore, storage, ledgerBackend)

	// Initialize handlers
	analysisHandler := handler.NewAnalysisHandler(analysisService, provenanceService, cfg.Ledger.ProjectID)
	artifactHandler := handler.NewArtifactHandler(provenanceService)
	ledgerHandler := handler.NewLedgerHandler(provenanceService, validate)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"engine": engineClient.IsConfigured(),
				"r2":     storage != nil,
				"ledger": cfg.Ledger.NodeURL != "",
				"auth":   cfg.JWT.Secret != "",
			},
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	// Analysis routes
	analysis := api.Group("/analysis")
	analysis.Post("/submit", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerHour), analysisHandler.Submit)
	analysis.Get("/status/:jobId", analysisHandler.Status)
	analysis.Get("/result/:jobId", analysisHandler.Result)

	// Artifact routes
	artifactGroup := api.Group("/artifact")
	artifactGroup.Post("/package/:jobId", artifactHandler.Package)
	artifactGroup.Post("/verify", rateLimiter.VerifyLimit(cfg.RateLimit.VerifyPerMin), artifactHandler.Verify)

	// Ledger routes
	ledgerGroup := api.Group("/ledger", rateLimiter.LedgerLimit(cfg.RateLimit.LedgerPerHour))
	ledgerGroup.Post("/projects", ledgerHandler.CreateProject)
	ledgerGroup.Get("/projects/:projectId/log", ledgerHandler.ProjectLog)
	ledgerGroup.Get("/projects/:projectId/view/:kind", ledgerHandler.ProjectView)
	ledgerGroup.Post("/log", ledgerHandler.AppendLog)
	ledgerGroup.Get("/tx/:txId", ledgerHandler.Transaction)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Each subscriber gets a store watcher for its job: the hub pushes the
	// terminal state even when the worker runs in another process.
	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")

		watchCtx, cancel := context.WithCancel(context.Background())
		watcher := poller.New(jobStore, poller.DefaultInterval, func(job *model.Job) {
			if job.Status == model.JobStatusFailed {
				reason := "analysis failed"
				if job.Error != nil {
					reason = *job.Error
				}
				hub.BroadcastError(job.ID, "ANALYSIS_FAILED", reason)
				return
			}
			hub.BroadcastStatus(job.ID, job.Status)
		})
		watcher.Watch(jobID)
		go func() {
			if err := watcher.Run(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[Poller] Watch %s stopped: %v", jobID, err)
			}
		}()

		hub.HandleConnection(c, jobID)
		cancel()
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, analysisService, engineClient, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	analysisService *service.AnalysisService,
	engineClient *client.EngineClient,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				service.QueueAnalysis: 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	analysisWorker := worker.NewAnalysisWorker(analysisService, engineClient, hub)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeAnalysis, analysisWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
