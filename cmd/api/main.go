// @title Slagie API
// @version 1.0
// @description Driving-theory exams: authoring for administrators, practice attempts for students.
// @host localhost:8090
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
// @description Type 'Bearer YOUR_JWT_TOKEN' to authorize.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "slagie/cmd/api/docs"
	"slagie/internal/adapter"
	"slagie/internal/adapter/embedding"
	"slagie/internal/adapter/evaluator"
	"slagie/internal/cache"
	"slagie/internal/config"
	"slagie/internal/database"
	"slagie/internal/domain"
	"slagie/internal/handler"
	"slagie/internal/logger"
	"slagie/internal/middleware"
	"slagie/internal/repository"
	"slagie/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Initialize(cfg.Logger); err != nil {
		panic(err)
	}
	appLogger := logger.Get()
	defer logger.Sync()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	db, err := database.NewSQLXOracleDB(startCtx, cfg.GetDSN())
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	examRepository := repository.NewExamDatabaseAdapter(db)
	attemptRepository := repository.NewSQLXAttemptRepository(db)
	txManager := repository.NewTransactionManagerAdapter(db)

	// Redis is optional: without it the exam cache is a pass-through.
	var cacheAdapter domain.Cache
	if cfg.Redis.Address != "" {
		redisClient, err := cache.NewRedisClient(startCtx, cfg.Redis)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		cacheAdapter = adapter.NewRedisCacheAdapter(redisClient)
		appLogger.Info("RedisCacheAdapter initialized")
	} else {
		appLogger.Warn("Redis address not configured, exam cache disabled")
	}

	var judge domain.AnswerJudge
	if cfg.Grading.LLM.Enabled {
		judge, err = evaluator.NewOllamaJudge(cfg.Grading.LLM.Server, cfg.Grading.LLM.Model, cfg.Grading.LLM.Timeout)
		if err != nil {
			appLogger.Fatal("Failed to create LLM judge", zap.Error(err))
		}
		appLogger.Info("LLM judge enabled", zap.String("model", cfg.Grading.LLM.Model))
	} else if cfg.Grading.Embedding.Enabled {
		emb := cfg.Grading.Embedding
		judge, err = embedding.NewOllamaSimilarityJudge(emb.Server, emb.Model, emb.Threshold)
		if err != nil {
			appLogger.Fatal("Failed to create embedding judge", zap.Error(err))
		}
		appLogger.Info("Embedding judge enabled", zap.String("model", emb.Model), zap.Float64("threshold", emb.Threshold))
	}

	tokenService, err := service.NewTokenService(cfg.Auth)
	if err != nil {
		appLogger.Fatal("Failed to create TokenService", zap.Error(err))
	}

	examCache := service.NewExamCache(cacheAdapter, cfg.Exam.QuestionCacheTTL)
	examService := service.NewExamService(examRepository, txManager, examCache)
	scoringService := service.NewScoringService(
		examRepository,
		attemptRepository,
		service.NewAnswerMatcher(cfg.Grading.MaxEditDistance),
		judge,
	)

	app := fiber.New(fiber.Config{
		AppName:      "slagie",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  20 * time.Second,
		BodyLimit:    10 * 1024 * 1024,
		ErrorHandler: middleware.ErrorHandler(),
	})

	app.Use(middleware.RequestLogger())
	app.Use(cors.New(cors.Config{AllowOrigins: "*", AllowMethods: "GET,POST,PUT,DELETE,OPTIONS", AllowHeaders: "Origin,Content-Type,Accept,Authorization", MaxAge: 300}))
	app.Use(recover.New())

	app.Get("/swagger/*", swagger.HandlerDefault)

	handler.RegisterRoutes(app.Group("/api"), handler.Handlers{
		Student: handler.NewStudentHandler(examService, scoringService),
		Exam:    handler.NewExamHandler(examService, scoringService),
		Health:  handler.NewHealthHandler(db, cacheAdapter),
	}, tokenService)

	go func() {
		appLogger.Info("Starting server", zap.Int("port", cfg.Server.Port), zap.String("env", cfg.Logger.Env))
		if err := app.Listen(":" + strconv.Itoa(cfg.Server.Port)); err != nil {
			appLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	appLogger.Info("Server exited gracefully")
}
