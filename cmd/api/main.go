package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/campus-rag/backend/internal/api/handlers"
	"github.com/campus-rag/backend/internal/cache/redis"
	"github.com/campus-rag/backend/internal/ingestion"
	"github.com/campus-rag/backend/internal/llm"
	"github.com/campus-rag/backend/internal/metrics"
	"github.com/campus-rag/backend/internal/middleware/ratelimit"
	"github.com/campus-rag/backend/internal/middleware/security"
	"github.com/campus-rag/backend/internal/middleware/validation"
	"github.com/campus-rag/backend/internal/rag"
	"github.com/campus-rag/backend/internal/storage/sqlite"
	"github.com/campus-rag/backend/internal/vector/milvus"
	"github.com/campus-rag/backend/pkg/config"
	appLogger "github.com/campus-rag/backend/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Campus RAG API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	err = milvusClient.CreateCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to create collection", zap.Error(err))
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.BaseURL,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	// Redis is best-effort: without it the service runs uncached.
	var cacheClient *redis.Client
	if cfg.Redis.Enabled {
		cacheClient, err = redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSec)*time.Second,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
			cacheClient = nil
		} else {
			defer cacheClient.Close()
		}
	}

	var embedder rag.Embedder = llmClient
	if cacheClient != nil {
		embedder = redis.NewCachingEmbedder(llmClient, cacheClient)
	}

	pipeline := rag.NewPipeline(embedder, milvusClient, llmClient, rag.Config{
		TopK:               cfg.Pipeline.TopK,
		RelevanceThreshold: cfg.Pipeline.RelevanceThreshold,
		NoiseFloor:         cfg.Pipeline.NoiseFloor,
		FallbackChunks:     cfg.Pipeline.FallbackChunks,
		RerankConcurrency:  cfg.Pipeline.RerankConcurrency,
		ChunkSize:          cfg.Pipeline.ChunkSize,
		LongSegment:        cfg.Pipeline.LongSegment,
		Deep:               cfg.Pipeline.Deep,
	})

	chunker := rag.NewChunker(cfg.Pipeline.ChunkSize, cfg.Pipeline.LongSegment)
	var invalidator ingestion.AnswerInvalidator
	if cacheClient != nil {
		invalidator = cacheClient
	}
	processor := ingestion.NewProcessor(
		sqliteClient,
		milvusClient,
		llmClient,
		invalidator,
		chunker,
		cfg.Campus.Branches,
		cfg.Campus.Semesters,
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	corsOrigins := "*"
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsOrigins = strings.Join(cfg.Server.AllowedOrigins, ", ")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.Headers(security.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Development:    cfg.Logging.Level == "debug",
	}))

	rateLimiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.Server.RateLimitPerMinute,
		Logger:            appLogger.GetLogger(),
	})
	app.Use(rateLimiter.Middleware())
	defer rateLimiter.Stop()

	app.Use(validation.Middleware(validation.Config{
		Batches:       cfg.Campus.Batches,
		Branches:      cfg.Campus.Branches,
		Semesters:     cfg.Campus.Semesters,
		DocumentTypes: cfg.Campus.DocumentTypes,
		Logger:        appLogger.GetLogger(),
	}))

	queryHandler := handlers.NewQueryHandler(pipeline, cacheClient)
	documentHandler := handlers.NewDocumentHandler(processor, sqliteClient)
	wsHandler := handlers.NewWebSocketHandler(pipeline)

	api := app.Group("/api/v1")

	api.Post("/query", queryHandler.HandleQuery)

	api.Post("/documents", documentHandler.IndexDocument)
	api.Get("/documents", documentHandler.ListDocuments)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
