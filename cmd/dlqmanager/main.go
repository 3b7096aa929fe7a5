package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/taskflow/internal/config"
	"example.com/taskflow/internal/outbox"
	httptransport "example.com/taskflow/internal/transport/http"
)

const dlqBatchSize = 50

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := log.New(os.Stderr, "[dlq] ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	metricsDone := make(chan struct{})
	go func() {
		defer close(metricsDone)
		logger.Printf("metrics listening on %s", cfg.MetricsAddress)
		if err := httptransport.ListenAndServe(ctx, httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler()); err != nil {
			logger.Printf("metrics server: %v", err)
		}
	}()

	logger.Printf("polling every %s, quarantining after %d retries", cfg.DLQPollInterval, cfg.DLQMaxRetries)
	manager.Run(ctx, cfg.DLQPollInterval, dlqBatchSize, func(requeued int, err error) {
		switch {
		case err != nil:
			logger.Printf("pass failed: %v", err)
		case requeued > 0:
			logger.Printf("requeued %d entries", requeued)
		}
	})
	logger.Println("shutting down")
	<-metricsDone
}
