package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/deskhub/api/internal/di"
	"github.com/deskhub/api/internal/handlers"
	"github.com/deskhub/api/internal/platform/auth"
	"github.com/deskhub/api/internal/platform/config"
	pfirestore "github.com/deskhub/api/internal/platform/firestore"
	"github.com/deskhub/api/internal/platform/idempotency"
	"github.com/deskhub/api/internal/platform/jobs"
	"github.com/deskhub/api/internal/platform/observability"
	"github.com/deskhub/api/internal/repositories"
	"github.com/deskhub/api/internal/repositories/memory"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	loggerOpts := []observability.LoggerOption{
		observability.WithServiceInfo("deskhub-api", strings.TrimSpace(envValues["API_BUILD_VERSION"])),
	}
	if level := strings.TrimSpace(envValues["LOG_LEVEL"]); level != "" {
		loggerOpts = append(loggerOpts, observability.WithLevel(level))
	}
	baseLogger, err := observability.NewLogger(loggerOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)
	meter := otel.Meter("deskhub/api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	var (
		registry         repositories.Registry
		redisClient      redis.UniversalClient
		pubsubClient     *pubsub.Client
		containerOptions = []di.Option{
			di.WithLogger(logger),
			di.WithMeter(meter),
			di.WithBuildInfo(buildInfo),
		}
	)

	if strings.TrimSpace(cfg.Firestore.ProjectID) == "" {
		logger.Warn("firestore project not configured; using in-memory repositories with demo data")
		local := memory.NewRegistry(time.Now)
		spaces, bookings := demoFixtures(time.Now())
		local.Seed(spaces, bookings)
		registry = local
	} else {
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			logger.Fatal("redis address is required when firestore is configured")
		}
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		var clientOpts []option.ClientOption
		if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(file))
		}
		firestoreProvider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithClientOptions(clientOpts...))
		if _, err := firestoreProvider.Client(ctx); err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}

		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID, clientOpts...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := pubsubClient.Topic(cfg.PubSub.NotificationsTopic)
		publisher, err := jobs.NewPubSubNotificationPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise notification publisher", zap.Error(err))
		}
		containerOptions = append(containerOptions, di.WithPublisher(publisher))

		registry, err = di.NewCloudRegistry(di.CloudRegistryDeps{
			Firestore: firestoreProvider,
			Redis:     redisClient,
			Checks: []repositories.DependencyCheck{{
				Name:    "pubsub",
				Timeout: time.Second,
				Check: func(ctx context.Context) error {
					ok, err := topic.Exists(ctx)
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("topic %s not found", cfg.PubSub.NotificationsTopic)
					}
					return nil
				},
			}},
		})
		if err != nil {
			logger.Fatal("failed to initialise repositories", zap.Error(err))
		}
	}

	container, err := di.NewContainer(ctx, cfg, registry, containerOptions...)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	var idempotencyStore idempotency.Store = idempotency.NewMemoryStore()
	if redisClient != nil {
		idempotencyStore = idempotency.NewRedisStore(redisClient, idempotency.WithKeyPrefix("deskhub:idem:"))
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	authenticator, err := buildAuthenticator(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg)

	svc := container.Services
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)
	pricingHandlers := handlers.NewPricingHandlers(svc.Validator)
	spaceHandlers := handlers.NewSpaceHandlers(svc.Quotes, svc.Availability, svc.Validator)
	validationHandlers := handlers.NewValidationHandlers(svc.Validator)
	slotLockHandlers := handlers.NewSlotLockHandlers(authenticator, svc.SlotLocks,
		handlers.WithSlotLockIdempotency(idempotencyMiddleware))
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, svc.Checkout,
		handlers.WithCheckoutRedirects(cfg.Checkout.SuccessURL, cfg.Checkout.CancelURL))
	jobHandlers := handlers.NewJobHandlers(svc.Expiry)

	projectID := traceProjectID(cfg)
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(logger.Named("http"), projectID),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPricingRoutes(pricingHandlers.Routes),
		handlers.WithSpaceRoutes(spaceHandlers.Routes),
		handlers.WithValidationRoutes(validationHandlers.Routes),
		handlers.WithPublicMiddlewares(handlers.RateLimitMiddleware(cfg.RateLimits.PublicPerMinute, time.Minute, nil)),
		handlers.WithMeRoutes(handlers.CombineRegistrars(slotLockHandlers.Routes, checkoutHandlers.Routes)),
		handlers.WithInternalRoutes(jobHandlers.Routes),
	}
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}

	scheduler := jobs.NewScheduler(ctx, logger.Named("jobs"), jobs.WithJobTimeout(2*time.Minute))
	if cfg.Expiry.Enabled && svc.Expiry != nil {
		err := scheduler.Register("booking-expiry", cfg.Expiry.Schedule, func(ctx context.Context) error {
			_, err := svc.Expiry.Sweep(ctx)
			return err
		})
		if err != nil {
			logger.Fatal("failed to schedule booking expiry", zap.Error(err))
		}
	}
	scheduler.Start()

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("deskhub api listening", zap.String("environment", cfg.Security.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler stop timed out", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildAuthenticator(ctx context.Context, logger *zap.Logger, cfg config.Config) (*auth.Authenticator, error) {
	if cfg.IsLocal() && strings.TrimSpace(cfg.Firebase.ProjectID) == "" {
		logger.Warn("firebase project not configured; user routes will reject every token")
		return auth.NewAuthenticator(nil), nil
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		return nil, err
	}
	return auth.NewAuthenticator(verifier), nil
}
