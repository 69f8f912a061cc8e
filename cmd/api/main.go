package main

import (
	"context"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/grade-roster-api/internal/config"
	"github.com/noah-isme/grade-roster-api/internal/database"
	"github.com/noah-isme/grade-roster-api/internal/handler"
	"github.com/noah-isme/grade-roster-api/internal/ingest"
	"github.com/noah-isme/grade-roster-api/internal/middleware"
	"github.com/noah-isme/grade-roster-api/internal/repository"
	"github.com/noah-isme/grade-roster-api/internal/router"
	"github.com/noah-isme/grade-roster-api/internal/service"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		logger = logger.Level(level)
	}
	logger = logger.With().Str("service", cfg.AppName).Str("env", cfg.AppEnv).Logger()

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("failed to connect to database")
	}

	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL, 3*time.Second)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, record cache disabled")
		} else {
			defer redisClient.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, dataset events disabled")
		} else {
			defer natsConn.Drain()
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonFieldName)

	recordRepo := repository.NewGradeRecordRepository(db, repository.GradeRecordRepositoryOptions{
		InsertBatchSize: cfg.InsertBatchSize,
		Retention:       cfg.GenerationRetention,
	})
	transformer := ingest.NewTransformer(ingest.NewNormalizer(nil), ingest.TransformerOptions{
		StrictScoreBounds:   cfg.StrictScoreBounds,
		MaxRejectionSamples: cfg.MaxRejectionSamples,
	})
	publisher := service.NewNATSDatasetPublisher(natsConn, cfg.NATSSubject)

	ingestionService := service.NewIngestionService(recordRepo, transformer, publisher, cfg.MaxUploadMB, logger)
	recordService := service.NewGradeRecordService(recordRepo, transformer, validate, publisher, redisClient, service.GradeRecordServiceOptions{
		CacheTTL: cfg.CacheTTL,
		MaxLimit: cfg.MaxPageLimit,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.MaxUploadMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		IngestionHandler:   handler.NewIngestionHandler(ingestionService, logger),
		GradeRecordHandler: handler.NewGradeRecordHandler(recordService, cfg.DefaultPageLimit, logger),
		Store:              recordRepo,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func openDatabase(cfg config.Config) (*gorm.DB, error) {
	if cfg.DatabaseDriver == "sqlite" {
		return database.ConnectSQLite(cfg.SQLitePath)
	}

	return database.ConnectPostgres(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	})
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return field.Name
	}
	return name
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
