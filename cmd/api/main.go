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

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/formflow/api/internal/handlers"
	"github.com/formflow/api/internal/payments"
	"github.com/formflow/api/internal/platform/config"
	pfirestore "github.com/formflow/api/internal/platform/firestore"
	"github.com/formflow/api/internal/platform/jobs"
	"github.com/formflow/api/internal/platform/observability"
	"github.com/formflow/api/internal/platform/secrets"
	"github.com/formflow/api/internal/platform/session"
	"github.com/formflow/api/internal/repositories"
	firestoreRepo "github.com/formflow/api/internal/repositories/firestore"
	"github.com/formflow/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(envValues["API_FIRESTORE_PROJECT_ID"]),
	)
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

	buildInfo := buildInfoFromEnv(envValues, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	stateRepo, err := firestoreRepo.NewStateRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise state repository", zap.Error(err))
	}

	sessionManager, err := session.NewManager(cfg.Session.SigningSecret, cfg.Session.CookieName, cfg.Session.TTL)
	if err != nil {
		logger.Fatal("failed to initialise session manager", zap.Error(err))
	}

	paymentsLogger := observability.EventLogger(logger.Named("payments"))
	providers := make(map[string]payments.Provider, 2)
	paystackProvider, err := payments.NewPaystackProvider(payments.PaystackProviderConfig{
		SecretKey: cfg.PSP.PaystackSecretKey,
		BaseURL:   cfg.PSP.PaystackBaseURL,
		Logger:    payments.PaystackLogger(paymentsLogger),
		Clock:     time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise paystack provider", zap.Error(err))
	}
	providers["paystack"] = paystackProvider

	if strings.TrimSpace(cfg.PSP.StripeAPIKey) != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.PSP.StripeAPIKey,
			Logger: paymentsLogger,
			Clock:  time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe provider", zap.Error(err))
		}
		providers["stripe"] = stripeProvider
	}

	managerOpts := []payments.ManagerOption{}
	if strings.TrimSpace(cfg.PSP.DefaultProvider) != "" {
		managerOpts = append(managerOpts, payments.WithDefaultProvider(cfg.PSP.DefaultProvider))
	}
	if len(cfg.PSP.CurrencyRoutes) > 0 {
		managerOpts = append(managerOpts, payments.WithCurrencyRoutes(cfg.PSP.CurrencyRoutes))
	}
	paymentManager, err := payments.NewManager(providers, managerOpts...)
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	var (
		pubsubClient   *pubsub.Client
		paymentTopic   *pubsub.Topic
		eventPublisher services.PaymentEventPublisher
	)
	if strings.TrimSpace(cfg.Firestore.ProjectID) != "" && strings.TrimSpace(cfg.Events.PaymentTopic) != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		paymentTopic = pubsubClient.Topic(cfg.Events.PaymentTopic)
		eventPublisher, err = jobs.NewPubSubPaymentEventPublisher(paymentTopic)
		if err != nil {
			logger.Fatal("failed to initialise payment event publisher", zap.Error(err))
		}
	} else {
		logger.Warn("payment event publishing disabled; project or topic not configured")
	}

	wizardService, err := services.NewWizardService(services.WizardServiceDeps{
		Repository: stateRepo,
		Clock:      time.Now,
		Logger:     observability.EventLogger(logger.Named("wizard")),
	})
	if err != nil {
		logger.Fatal("failed to initialise wizard service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		States:          stateRepo,
		Payments:        paymentManager,
		Events:          eventPublisher,
		Currency:        cfg.Checkout.Currency,
		ConfirmationURL: cfg.Checkout.ConfirmationURL,
		Clock:           time.Now,
		Logger:          observability.EventLogger(logger.Named("checkout")),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	systemService, err := newSystemService(firestoreClient, fetcher, paymentTopic, buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	wizardHandlers := handlers.NewWizardHandlers(wizardService)
	checkoutHandlers := handlers.NewCheckoutHandlers(checkoutService)
	healthHandlers := handlers.NewHealthHandlers(systemService)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithSessionMiddlewares(handlers.SessionMiddleware(sessionManager)),
		handlers.WithWizardRoutes(wizardHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
	)

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
		serverLogger.Info("formflow api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// requiredSecretNames collects the secret references that Load must be able
// to resolve before the server can start.
func requiredSecretNames(env map[string]string) []string {
	keys := []string{
		"API_SESSION_SIGNING_SECRET",
		"API_PSP_PAYSTACK_SECRET_KEY",
		"API_PSP_STRIPE_API_KEY",
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		value := strings.TrimSpace(env[key])
		if strings.HasPrefix(value, "secret://") {
			names = append(names, value)
		}
	}
	return names
}

func buildInfoFromEnv(env map[string]string, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	environment := strings.TrimSpace(env["API_ENVIRONMENT"])
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSystemService(client *firestore.Client, fetcher *secrets.Fetcher, topic *pubsub.Topic, build services.BuildInfo) (services.SystemService, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := t.Exists(ctx)
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
	})
}
