package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/aster/config"
	clientrepo "github.com/Ramsey-B/aster/internal/repositories/client"
	"github.com/Ramsey-B/aster/internal/repositories/household"
	"github.com/Ramsey-B/aster/internal/repositories/pendingchange"
	"github.com/Ramsey-B/aster/internal/repositories/portfolio"
	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/events"
	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/merge"
	"github.com/Ramsey-B/aster/pkg/middleware"
	"github.com/Ramsey-B/aster/pkg/processor"
	"github.com/Ramsey-B/aster/pkg/review"
	clientroutes "github.com/Ramsey-B/aster/pkg/routes/client"
	"github.com/Ramsey-B/aster/pkg/routes/health"
	pendingchangeroutes "github.com/Ramsey-B/aster/pkg/routes/pendingchange"
	"github.com/Ramsey-B/aster/pkg/startup"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	tracing.SetTracer(otel.Tracer(cfg.AppName))

	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, databaseDSN(cfg))
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	db := database.NewDatabaseInstance(sqlxDB, logger)
	db.SetPoolLimits(cfg.DatabaseMaxOpenConns, cfg.DatabaseMaxIdleConns, cfg.DatabaseConnMaxLifetime)

	if err := runMigrations(cfg, logger, sqlxDB); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	clientRepo := clientrepo.NewRepository(db, logger)
	sessionRepo := pendingchange.NewRepository(db, logger)
	spouseRepo := household.NewSpouseRepository(db, logger)
	dependentRepo := household.NewDependentRepository(db, logger)
	holdingRepo := portfolio.NewHoldingRepository(db, logger)
	profileRepo := portfolio.NewProfileRepository(db, logger)

	var producer *kafka.Producer
	var emitter review.Emitter
	if cfg.ReviewEventsEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		emitter = events.NewEmitter(producer, logger)
	}

	applier := merge.NewApplier(logger, clientRepo, spouseRepo, dependentRepo, holdingRepo, profileRepo, sessionRepo)
	reviewService := review.NewService(
		logger,
		clientRepo,
		spouseRepo,
		dependentRepo,
		holdingRepo,
		profileRepo,
		sessionRepo,
		applier,
		emitter,
		cfg.ReviewPageSize,
	)

	var consumer *kafka.Consumer
	if cfg.KafkaConsumerEnabled {
		proc := processor.NewProcessor(logger, reviewService, cfg.AutoApplyEnabled)
		consumer = kafka.NewConsumer(cfg, logger, proc.ProcessMessage)
	}

	dc, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		logger.WithError(err).Error("Failed to create dependency context")
		os.Exit(1)
	}
	mustRegister(logger, ectoinject.RegisterInstance[ectologger.Logger](dc, logger))
	mustRegister(logger, ectoinject.RegisterInstance[*review.Service](dc, reviewService))
	mustRegister(logger, ectoinject.RegisterInstance[*clientrepo.Repository](dc, clientRepo))
	mustRegister(logger, ectoinject.RegisterInstance[*pendingchange.Repository](dc, sessionRepo))

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqCtx, err := ectoinject.SetActiveContainer(c.Request().Context(), dc.GetContainerID())
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(reqCtx))
			return next(c)
		}
	})
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(echomiddleware.BodyLimit(fmt.Sprintf("%d", cfg.ExtractionMaxBodySize)))

	checker := health.NewChecker(sqlxDB, consumerHealth(consumer), os.Getenv("APP_VERSION"))
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	pendingchangeroutes.Register(api.Group("/pending-changes"))
	clientroutes.Register(api.Group("/clients"))

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&dependency{
		name: "database",
		start: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
		stop: func(ctx context.Context) error {
			return db.Close()
		},
	})
	if consumer != nil {
		boot.AddDependency(&dependency{
			name:      "kafka-consumer",
			dependsOn: []string{"database"},
			start:     consumer.Start,
			stop: func(ctx context.Context) error {
				return consumer.Stop()
			},
		})
	}
	if producer != nil {
		boot.AddDependency(&dependency{
			name: "kafka-producer",
			stop: func(ctx context.Context) error {
				return producer.Close()
			},
		})
	}
	boot.AddDependency(&dependency{
		name:      "http-server",
		dependsOn: []string{"database"},
		start: func(ctx context.Context) error {
			go func() {
				if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("HTTP server stopped")
					os.Exit(1)
				}
			}()
			return nil
		},
		stop: e.Shutdown,
	})

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}
	checker.SetReady(true)
	logger.WithFields(map[string]any{"port": cfg.Port, "app": cfg.AppName}).Info("Service started")

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	logger.Info("Shutting down")
	checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
	}
}

func newLogger(cfg config.Config) ectologger.Logger {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	var zapCfg zap.Config
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = level

	zapLogger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return zapadapter.NewZapEctoLogger(zapLogger.Named(cfg.AppName), nil)
}

func databaseDSN(cfg config.Config) string {
	parts := []string{
		"host=" + cfg.DatabaseHost,
		"port=" + cfg.DatabasePort,
		"user=" + cfg.DatabaseUserName,
		"password=" + cfg.DatabasePassword,
		"dbname=" + cfg.DatabaseName,
		"sslmode=" + cfg.DatabaseSSLMode,
	}
	return strings.Join(parts, " ")
}

func runMigrations(cfg config.Config, logger ectologger.Logger, sqlxDB *sqlx.DB) error {
	driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		return err
	}
	svc := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return svc.Migrate(cfg.DatabaseName, driver)
}

func mustRegister(logger ectologger.Logger, err error) {
	if err != nil {
		logger.WithError(err).Error("Failed to register dependency")
		os.Exit(1)
	}
}

func consumerHealth(c *kafka.Consumer) interface{ Health() bool } {
	if c == nil {
		return nil
	}
	return c
}

// dependency adapts closures to the startup interface.
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string {
	return d.name
}

func (d *dependency) DependsOn() []string {
	return d.dependsOn
}

func (d *dependency) Start(ctx context.Context) error {
	if d.start == nil {
		return nil
	}
	return d.start(ctx)
}

func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}
