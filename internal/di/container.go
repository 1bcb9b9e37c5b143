// Package di assembles the application from configuration.
package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"strivesync-backend/internal/config"
	"strivesync-backend/internal/events"
	"strivesync-backend/internal/handlers"
	"strivesync-backend/internal/infrastructure/decorators"
	"strivesync-backend/internal/infrastructure/observability"
	"strivesync-backend/internal/infrastructure/tracing"
	"strivesync-backend/internal/repository"
	"strivesync-backend/internal/repository/ddb"
	"strivesync-backend/internal/repository/memory"
	"strivesync-backend/internal/service"
	"strivesync-backend/pkg/auth"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "strivesync-backend"

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *observability.Collector
	Store      repository.Store
	Publisher  events.Publisher
	Users      *service.UserService
	Habits     *service.HabitService
	Activities *service.ActivityService
	Validator  *auth.JWTValidator
	Tracer     *tracing.TracerProvider
}

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	c := &Container{Config: cfg, Logger: logger}
	if cfg.EnableMetrics {
		c.Metrics = observability.NewCollector("strivesync")
	}

	if cfg.EnableTracing {
		tp, err := tracing.InitTracing(ctx, serviceName, cfg.Environment, cfg.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		c.Tracer = tp
	}

	schema := repository.DefaultSchema(cfg.TableName, cfg.GSI1Name, cfg.EmailIndexName)
	var base repository.Store
	c.Publisher = events.NopPublisher{}
	if cfg.UseMemoryStore {
		logger.Warn("using in-memory store; data is lost on restart")
		base = memory.NewStore(schema)
	} else {
		awsCfg, err := ProvideAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		base = ddb.NewStore(ProvideDynamoDBClient(awsCfg, cfg), schema)
		if cfg.EventBusName != "" {
			c.Publisher = events.NewEventBridgePublisher(awseventbridge.NewFromConfig(awsCfg), cfg.EventBusName, logger)
		}
	}
	c.Store = ProvideStore(base, cfg, logger, c.Metrics, c.Tracer)

	deps := service.Deps{
		Publisher: c.Publisher,
		Metrics:   c.Metrics,
		Logger:    logger,
	}
	c.Users = service.NewUserService(repository.NewUserRepository(c.Store, logger), deps)
	c.Habits = service.NewHabitService(repository.NewHabitRepository(c.Store, logger), deps)
	c.Activities = service.NewActivityService(repository.NewActivityRepository(c.Store, logger), deps)

	c.Validator, err = ProvideJWTValidator(cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("container initialized",
		zap.String("environment", cfg.Environment),
		zap.String("table", cfg.TableName),
		zap.Bool("memory_store", cfg.UseMemoryStore),
		zap.Bool("metrics", cfg.EnableMetrics),
		zap.Bool("tracing", cfg.EnableTracing))

	return c, nil
}

// Router builds the HTTP router over the container's services.
func (c *Container) Router() *chi.Mux {
	return handlers.NewRouter(handlers.RouterConfig{
		Users:          c.Users,
		Habits:         c.Habits,
		Activities:     c.Activities,
		Validator:      c.Validator,
		Metrics:        c.Metrics,
		Logger:         c.Logger,
		EnableCORS:     c.Config.EnableCORS,
		AllowedOrigins: c.Config.AllowedOrigins,
	})
}

// Handler is Router as an http.Handler.
func (c *Container) Handler() http.Handler {
	return c.Router()
}

// Shutdown flushes traces and logs.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	if c.Tracer != nil {
		if err := c.Tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	// Sync on a console returns EINVAL on Linux.
	_ = c.Logger.Sync()
	return errors.Join(errs...)
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	zapCfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", serviceName)), nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client, pointed at
// DynamoDBEndpoint when one is configured.
func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
}

// ProvideStore wraps base with the store decorators. From the outside in:
// logging, metrics, circuit breaker and tracing, so an open breaker is
// still logged and counted.
func ProvideStore(base repository.Store, cfg *config.Config, logger *zap.Logger, collector *observability.Collector, tp *tracing.TracerProvider) repository.Store {
	store := base
	if tp != nil {
		store = tracing.TraceStore(store, tp.Tracer(), cfg.TableName)
	}

	breaker := decorators.DefaultCircuitBreakerConfig("dynamodb")
	breaker.MaxRequests = cfg.BreakerMaxRequests
	breaker.Interval = cfg.BreakerInterval
	breaker.Timeout = cfg.BreakerTimeout
	breaker.FailureThreshold = cfg.BreakerFailureRate
	store = decorators.NewCircuitBreakerStore(store, breaker, logger, collector)

	if collector != nil {
		store = decorators.NewMetricsStore(store, collector)
	}

	logCfg := decorators.DefaultLoggingConfig()
	logCfg.SlowThreshold = cfg.SlowOperation
	logCfg.LogKeys = !cfg.IsProduction()
	return decorators.NewLoggingStore(store, logger, logCfg)
}

// ProvideJWTValidator builds the bearer-token validator. Without a secret
// only API Gateway authorizer claims are accepted.
func ProvideJWTValidator(cfg *config.Config, logger *zap.Logger) (*auth.JWTValidator, error) {
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set; bearer tokens will be rejected")
		return nil, nil
	}

	var audience []string
	if cfg.JWTAudience != "" {
		audience = []string{cfg.JWTAudience}
	}
	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
		Audience:      audience,
	})
	if err != nil {
		return nil, fmt.Errorf("create JWT validator: %w", err)
	}
	return validator, nil
}
