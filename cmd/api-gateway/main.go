package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/obe-api/api/swagger"
	"github.com/noah-isme/obe-api/internal/handler"
	"github.com/noah-isme/obe-api/internal/middleware"
	"github.com/noah-isme/obe-api/internal/models"
	"github.com/noah-isme/obe-api/internal/repository"
	"github.com/noah-isme/obe-api/internal/router"
	"github.com/noah-isme/obe-api/internal/service"
	"github.com/noah-isme/obe-api/pkg/cache"
	"github.com/noah-isme/obe-api/pkg/config"
	"github.com/noah-isme/obe-api/pkg/database"
	"github.com/noah-isme/obe-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/obe-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/obe-api/pkg/middleware/requestid"
	"github.com/noah-isme/obe-api/pkg/tracing"
)

// @title OBE API
// @version 1.0.0
// @description Outcome based education results: mark normalization, CLO and PLO attainment, transcripts.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(cfg.Tracing)
	if err != nil {
		logr.Fatal("failed to init tracing", zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, idempotent replay disabled", zap.Error(err))
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	courseRepo := repository.NewCourseRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	markRepo := repository.NewMarkRepository(db)
	resultRepo := repository.NewResultRepository(db)
	outcomeRepo := repository.NewOutcomeRepository(db)
	tx := database.NewTransactor(db)

	validate := validator.New()
	metrics := service.NewMetricsService()
	authSvc := service.NewAuthService(service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret})
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Idempotency.TTL, logr, cfg.Idempotency.Enabled && redisClient != nil)
	assessmentSvc := service.NewAssessmentService(tx, courseRepo, assessmentRepo, resultRepo, markRepo, validate, logr, metrics,
		service.AssessmentConfig{StrictCreditConfig: cfg.Outcomes.StrictCreditConfig})
	markSvc := service.NewMarkService(tx, assessmentRepo, questionRepo, markRepo, resultRepo, outcomeRepo, studentRepo, validate, logr, metrics)
	outcomeSvc := service.NewOutcomeService(outcomeRepo, studentRepo, courseRepo, logr, metrics, service.OutcomeConfig{
		PassThreshold:  cfg.Outcomes.PassThreshold,
		EmptyPLOStatus: emptyPLOStatus(cfg.Outcomes.EmptyPLOPolicy),
	})
	resultSvc := service.NewResultService(studentRepo, courseRepo, resultRepo, logr)
	exportSvc := service.NewExportService(outcomeSvc, resultSvc, logr, nil, nil)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go limiter.Run(ctx.Done(), time.Minute)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(tracing.GinMiddleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	router.Register(r, router.Handlers{
		Assessments: handler.NewAssessmentHandler(assessmentSvc, logr),
		Marks:       handler.NewMarkHandler(markSvc),
		Outcomes:    handler.NewOutcomeHandler(outcomeSvc),
		Transcripts: handler.NewTranscriptHandler(resultSvc, exportSvc),
		Metrics:     handler.NewMetricsHandler(metrics, db),
	}, router.Options{
		APIPrefix:   cfg.APIPrefix,
		EnableDocs:  cfg.Env != config.EnvProduction,
		Auth:        authSvc,
		Idempotency: middleware.Idempotency(cacheSvc, logr),
		RateLimit:   limiter.Handler(),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Warn("tracing shutdown failed", zap.Error(err))
	}
}

func emptyPLOStatus(policy string) models.OutcomeStatus {
	if policy == config.EmptyPLOPending {
		return models.StatusPending
	}
	return models.StatusPassed
}
