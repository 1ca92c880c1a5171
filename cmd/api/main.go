package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codequest-edu/codequest-go-api/internal/config"
	"github.com/codequest-edu/codequest-go-api/internal/database"
	"github.com/codequest-edu/codequest-go-api/internal/handler"
	"github.com/codequest-edu/codequest-go-api/internal/middleware"
	"github.com/codequest-edu/codequest-go-api/internal/models"
	"github.com/codequest-edu/codequest-go-api/internal/repository"
	"github.com/codequest-edu/codequest-go-api/internal/router"
	"github.com/codequest-edu/codequest-go-api/internal/service"
	"github.com/codequest-edu/codequest-go-api/pkg/judge"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Problem{},
		&models.TestCase{},
		&models.Submission{},
		&models.ExamSession{},
		&models.SessionProblem{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, catalog cache disabled")
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NATSAddr)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, session events disabled")
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	judgeClient := judge.NewHTTPClient(judge.Config{
		BaseURL:         cfg.JudgeBaseURL,
		APIKey:          cfg.JudgeAPIKey,
		APIHost:         cfg.JudgeAPIHost,
		HTTPTimeout:     cfg.JudgeHTTPTimeout,
		PollInterval:    cfg.PollInterval,
		PollMaxInterval: cfg.PollMaxInterval,
		PollBackoff:     cfg.PollBackoff,
		PollMaxAttempts: cfg.PollMaxAttempts,
	}, logger)

	problemRepo := repository.NewProblemRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	sessionRepo := repository.NewExamSessionRepository(db)

	catalog := service.NewProblemCatalog(problemRepo, redisClient, cfg.CatalogCacheTTL, logger)
	executor := service.NewExecutionService(judgeClient, service.ExecutionConfig{CaseDelay: cfg.CaseDelay}, logger)
	events := service.NewSessionEventPublisher(natsConn, cfg.NATSSubjectBase, logger)
	sessionService := service.NewSessionService(sessionRepo, submissionRepo, catalog, executor, events, validate,
		service.SessionConfig{LevelDurations: cfg.LevelDurations}, logger)

	sessionHandler := handler.NewSessionHandler(sessionService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		SessionHandler: sessionHandler,
		JWTMiddleware:  middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
