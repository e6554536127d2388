package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"trait-consensus/internal/config"
	"trait-consensus/internal/db"
	apihttp "trait-consensus/internal/http"
	"trait-consensus/internal/llm"
	"trait-consensus/internal/repository"
	"trait-consensus/internal/service"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var (
		store     service.CheckpointStore
		traitRepo repository.TraitRepository
		limiter   service.RunRateLimiter
	)

	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()

		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("db schema", zap.Error(err))
		}
		store = repository.NewPgCheckpointRepository(pool)
		traitRepo = repository.NewPgTraitRepository(pool)
	}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			limiter = service.NewRedisRunRateLimiter(redisClient, cfg.RateLimitWindow, cfg.RateLimitMax)
			if store == nil {
				store = service.NewRedisCheckpointStore(redisClient, cfg.CheckpointTTL)
			}
		}
		cancel()
	}
	if store == nil {
		logger.Warn("no durable checkpoint store configured, using memory")
		store = service.NewMemoryCheckpointStore()
	}
	if limiter == nil {
		limiter = service.NewRunRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
	}

	rubric := service.DefaultRubric()
	if cfg.RubricFile != "" {
		rubric, err = service.LoadRubricFile(cfg.RubricFile)
		if err != nil {
			logger.Fatal("load rubric", zap.String("path", cfg.RubricFile), zap.Error(err))
		}
	}

	registry, err := llm.NewHTTPRegistry(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.EvaluatorModels, logger)
	if err != nil {
		logger.Fatal("evaluator registry", zap.Error(err))
	}
	gateway := service.NewEvaluatorGateway(registry, rubric, cfg.EvaluatorTimeout, logger)

	consensusSvc, err := service.NewConsensusService(
		gateway,
		registry.IDs(),
		store,
		traitRepo,
		service.ConsensusOptionsFromConfig(cfg),
		logger,
	)
	if err != nil {
		logger.Fatal("consensus service", zap.Error(err))
	}

	var jwtSvc *service.JWTService
	if cfg.JWTSecret != "" {
		jwtSvc = service.NewJWTService(cfg.JWTSecret, 24*time.Hour)
	} else {
		logger.Warn("jwt secret not configured, /evaluations is open")
	}

	evalHandler := apihttp.NewEvaluationHandler(consensusSvc, limiter, logger)
	router := apihttp.NewRouter(logger, evalHandler, jwtSvc)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.Strings("evaluators", registry.IDs()),
	)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
