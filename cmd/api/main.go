package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/hallpass-app/api/internal/handlers"
	"github.com/hallpass-app/api/internal/platform/auth"
	"github.com/hallpass-app/api/internal/platform/config"
	pfirestore "github.com/hallpass-app/api/internal/platform/firestore"
	"github.com/hallpass-app/api/internal/platform/idempotency"
	"github.com/hallpass-app/api/internal/platform/jobs"
	"github.com/hallpass-app/api/internal/platform/observability"
	"github.com/hallpass-app/api/internal/platform/secrets"
	firestoreRepo "github.com/hallpass-app/api/internal/repositories/firestore"
	"github.com/hallpass-app/api/internal/services"
)

func main() {
	ctx := context.Background()

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

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithEnvironment(os.Getenv("API_SECURITY_ENVIRONMENT")),
		secrets.WithDefaultProject(os.Getenv("API_FIREBASE_PROJECT_ID")),
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
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

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

	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()
	passEventsTopic := pubsubClient.Topic(cfg.PubSub.PassEventsTopic)
	defer passEventsTopic.Stop()

	passEventPublisher, err := jobs.NewPubSubPassEventPublisher(passEventsTopic)
	if err != nil {
		logger.Fatal("failed to initialise pass event publisher", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier,
		auth.WithUserGetter(firebaseVerifier),
		auth.WithFallbackRole(auth.RoleKiosk),
	)

	var overrideAuthorizer services.OverrideAuthorizer
	pinVerifier, err := auth.NewPINVerifier(cfg.Kiosk.OverridePINHash)
	switch {
	case err == nil:
		overrideAuthorizer = pinVerifier
	case errors.Is(err, auth.ErrPINNotConfigured):
		logger.Warn("override pin not configured; override passes disabled")
	default:
		logger.Fatal("failed to initialise pin verifier", zap.Error(err))
	}

	studentRepo, err := firestoreRepo.NewStudentDirectoryRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise student repository", zap.Error(err))
	}
	rosterRepo, err := firestoreRepo.NewRosterRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise roster repository", zap.Error(err))
	}
	passRepo, err := firestoreRepo.NewPassRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise pass repository", zap.Error(err))
	}
	synonymRepo, err := firestoreRepo.NewSynonymRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise synonym repository", zap.Error(err))
	}
	unmatchedRepo, err := firestoreRepo.NewUnmatchedRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise unmatched repository", zap.Error(err))
	}
	reconciliationRepo, err := firestoreRepo.NewReconciliationRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise reconciliation repository", zap.Error(err))
	}

	suggestionService, err := services.NewSuggestionService(services.SuggestionServiceDeps{
		Rosters:           rosterRepo,
		Directory:         studentRepo,
		Logger:            logger.Named("suggestions"),
		CatchAllScope:     cfg.Kiosk.CatchAllScope,
		SuggestionLimit:   cfg.Kiosk.SuggestionLimit,
		NotFoundThreshold: cfg.Kiosk.NotFoundThreshold,
		DirectoryMinQuery: cfg.Kiosk.DirectoryMinQuery,
		DirectoryLimit:    cfg.Kiosk.DirectoryLimit,
		DebounceInterval:  cfg.Kiosk.DebounceInterval,
	})
	if err != nil {
		logger.Fatal("failed to initialise suggestion service", zap.Error(err))
	}
	defer suggestionService.Close()

	passService, err := services.NewPassService(services.PassServiceDeps{
		Passes:     passRepo,
		Students:   studentRepo,
		Synonyms:   synonymRepo,
		Unmatched:  unmatchedRepo,
		Publisher:  passEventPublisher,
		Authorizer: overrideAuthorizer,
		Logger:     logger.Named("passes"),
	})
	if err != nil {
		logger.Fatal("failed to initialise pass service", zap.Error(err))
	}

	resolutionService, err := services.NewResolutionService(services.ResolutionServiceDeps{
		Unmatched:      unmatchedRepo,
		Students:       studentRepo,
		Reconciliation: reconciliationRepo,
		Publisher:      passEventPublisher,
		Logger:         logger.Named("reconciliation"),
	})
	if err != nil {
		logger.Fatal("failed to initialise resolution service", zap.Error(err))
	}

	healthHandlers := handlers.NewHealthHandlers(map[string]handlers.ReadinessCheck{
		"firestore": func(ctx context.Context) error {
			iter := firestoreClient.Collections(ctx)
			_, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		},
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firebase.ProjectID),
		observability.RecoveryMiddleware(),
		observability.RequestLoggerMiddleware(),
	}

	passHandlers := handlers.NewPassHandlers(passService)
	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithSuggestionRoutes(handlers.NewSuggestionHandlers(suggestionService).Routes),
		handlers.WithPassRoutes(passHandlers.Routes,
			idempotencyMiddleware,
		),
		handlers.WithActivePassRoutes(passHandlers.ActiveRoutes,
			authenticator.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin),
		),
		handlers.WithReconciliationRoutes(handlers.NewReconciliationHandlers(resolutionService).Routes,
			authenticator.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin),
			idempotencyMiddleware,
		),
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
		serverLogger.Info("hallpass api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
