package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/taskflow/internal/config"
	"example.com/taskflow/internal/consumer"
	httptransport "example.com/taskflow/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := log.New(os.Stderr, "[consumer] ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Printf("metrics listening on %s", cfg.MetricsAddress)
		if err := httptransport.ListenAndServe(ctx, httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler()); err != nil {
			logger.Printf("metrics server: %v", err)
		}
	}()

	handler := consumer.NewAuditHandler(pool)
	for _, topic := range cfg.ConsumerTopics {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumeTopic(ctx, cfg, topic, handler, logger)
		}()
	}

	<-ctx.Done()
	logger.Println("shutting down")
	wg.Wait()
}

// consumeTopic feeds one topic of the consumer group into the audit log until ctx ends.
func consumeTopic(ctx context.Context, cfg config.Config, topic string, handler consumer.Handler, logger *log.Logger) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           topic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		ReadLagInterval: -1,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Printf("close reader (topic=%s): %v", topic, err)
		}
	}()

	proc := consumer.NewProcessor(reader, handler,
		consumer.WithLogger(logger),
		consumer.WithRetry(cfg.ConsumerAttempts, cfg.ConsumerBackoff),
	)
	logger.Printf("auditing %s as group %s", topic, cfg.ConsumerGroupID)
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("consumer for %s stopped: %v", topic, err)
	}
}
