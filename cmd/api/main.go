package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/proactive-assistant/backend/internal/api/handlers"
	"github.com/proactive-assistant/backend/internal/cache/redis"
	"github.com/proactive-assistant/backend/internal/evaluation"
	"github.com/proactive-assistant/backend/internal/llm"
	"github.com/proactive-assistant/backend/internal/metrics"
	"github.com/proactive-assistant/backend/internal/middleware/ratelimit"
	"github.com/proactive-assistant/backend/internal/middleware/security"
	"github.com/proactive-assistant/backend/internal/middleware/validation"
	"github.com/proactive-assistant/backend/internal/pipeline"
	"github.com/proactive-assistant/backend/internal/retrieval"
	"github.com/proactive-assistant/backend/internal/selector"
	"github.com/proactive-assistant/backend/internal/snapshot"
	"github.com/proactive-assistant/backend/internal/storage/sqlite"
	"github.com/proactive-assistant/backend/pkg/config"
	appLogger "github.com/proactive-assistant/backend/pkg/logger"
	"github.com/proactive-assistant/backend/pkg/utils"
)

func main() {
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

	appLogger.Info("Starting Nudge Engine API Server")

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

	var embeddingCache llm.EmbeddingCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			embeddingCache = redisClient
		}
	}

	llmClient := llm.NewClient(llm.Options{
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		Cache:          embeddingCache,
		HashFn:         utils.HashString,
	})

	semantic := retrieval.NewSemanticStrategy(llmClient, cfg.Retrieval.MinScore)
	structured := retrieval.NewStructuredStrategy(
		retrieval.StructuredWeights{
			Category: cfg.Retrieval.CategoryWeight,
			Time:     cfg.Retrieval.TimeWeight,
			Keyword:  cfg.Retrieval.KeywordWeight,
		},
		time.Duration(cfg.Retrieval.TimeHorizonMin)*time.Minute,
	)

	strategySelector := selector.New(semantic, structured, cfg.Selector.Margin, cfg.Retrieval.TopK)

	recorder := metrics.NewRecorder()

	pipe := pipeline.New(strategySelector, llmClient, recorder, pipeline.Options{
		TopK:           cfg.Retrieval.TopK,
		PerInputToken:  cfg.Cost.PerInputToken,
		PerOutputToken: cfg.Cost.PerOutputToken,
	})

	generator := snapshot.NewGenerator(time.Now().UnixNano())
	harness := evaluation.NewHarness(pipe, llmClient, nil)

	rateLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 60,
		Logger:               appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(rateLimiter.Middleware())
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	nudgeHandler := handlers.NewNudgeHandler(pipe, generator, sqliteClient)
	benchmarkHandler := handlers.NewBenchmarkHandler(strategySelector, generator, sqliteClient, cfg.Benchmark.RunsPerQuery)
	evaluateHandler := handlers.NewEvaluateHandler(harness, sqliteClient, cfg.Evaluation.GoldenVariations)
	metricsHandler := handlers.NewMetricsHandler(recorder)
	wsHandler := handlers.NewWebSocketHandler(pipe, generator)

	api := app.Group("/api/v1")

	api.Post("/nudge", nudgeHandler.HandleNudge)
	api.Get("/nudge/history", nudgeHandler.GetHistory)
	api.Get("/nudge/:id/trace", nudgeHandler.GetTrace)

	api.Post("/benchmark", benchmarkHandler.HandleBenchmark)
	api.Get("/benchmark/history", benchmarkHandler.GetBenchmarks)
	api.Get("/benchmark/active", benchmarkHandler.GetActiveStrategy)

	api.Post("/evaluate", evaluateHandler.HandleEvaluate)
	api.Get("/evaluate/scores", evaluateHandler.GetScores)

	api.Get("/metrics/summary", metricsHandler.GetSummary)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
			"active": strategySelector.Active().Name(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/nudge", websocket.New(wsHandler.HandleConnection))

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
