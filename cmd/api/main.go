package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/taskflow/internal/api"
	"example.com/taskflow/internal/auth"
	"example.com/taskflow/internal/config"
	"example.com/taskflow/internal/domain"
	"example.com/taskflow/internal/media"
	"example.com/taskflow/internal/outbox"
	"example.com/taskflow/internal/persistence/postgres"
	"example.com/taskflow/internal/persistence/sqlite"
	httptransport "example.com/taskflow/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo       domain.Repository
		dispatcher *outbox.Dispatcher
	)
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()
		repo = postgres.NewRepository(pool)

		if cfg.OutboxEnabled {
			producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
			defer producer.Close()
			registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
			dispatcher = outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
			go dispatcher.Start(ctx)
		}
	default:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open sqlite database: %v", err)
		}
		defer db.Close()
		repo = sqlite.NewRepository(db)
	}

	store, err := media.NewStore(cfg.MediaDir)
	if err != nil {
		log.Fatalf("failed to prepare media dir: %v", err)
	}

	logger := log.New(os.Stderr, "[api] ", log.LstdFlags)
	service := domain.NewService(repo,
		domain.WithLocation(loc),
		domain.WithMediaStore(store),
		domain.WithLogger(log.New(os.Stderr, "[domain] ", log.LstdFlags)),
	)
	handler := api.NewHandler(service, api.WithMaxUploadBytes(cfg.MaxUploadBytes), api.WithLogger(logger))

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle(media.URLPrefix, store.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	if cfg.AuthDisabled {
		log.Printf("authentication disabled, serving tenant %q", cfg.DefaultTenantID)
		authMiddleware = auth.NewStaticMiddleware(auth.LocalClaims(cfg.DefaultTenantID))
	}

	handlerChain := httptransport.Chain(mux,
		httptransport.Instrument(logger),
		httptransport.CORS(cfg.CORSOrigin),
		authMiddleware.Wrap,
	)

	logger.Printf("listening on %s (storage=%s)", cfg.HTTPAddress, cfg.StorageDriver)
	if err := httptransport.ListenAndServe(ctx, httptransport.DefaultServerConfig(cfg.HTTPAddress), handlerChain); err != nil {
		logger.Printf("server: %v", err)
	}
	stop()

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
