package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/notification/internal/broadcast"
	"example.com/notification/internal/config"
	"example.com/notification/internal/consumer"
	"example.com/notification/internal/engine"
	"example.com/notification/internal/persistence/postgres"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	broadcaster := newBroadcaster(cfg)
	defer broadcaster.Close()

	sink := postgres.NewActivityLog(pool)
	eng := engine.New(sink, broadcaster, cfg.Engine)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}

	go func() {
		log.Printf("notifier metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	var wg sync.WaitGroup
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Run(ctx)
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           cfg.ActivityTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})

	proc := consumer.NewProcessor(reader, eng)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer reader.Close()

		log.Printf("notifier started (topic=%s, group=%s, transport=%s)", cfg.ActivityTopic, cfg.ConsumerGroupID, cfg.BroadcastTransport)
		if err := proc.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("consumer stopped with error (topic=%s): %v", cfg.ActivityTopic, err)
		}
	}()

	<-stop
	log.Println("notifier shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	eng.Wait()
	wg.Wait()
}

func newBroadcaster(cfg config.Config) broadcast.Broadcaster {
	if cfg.BroadcastTransport == "redis" {
		return broadcast.NewRedisBroadcaster(cfg.RedisAddress, cfg.ChannelPrefix)
	}
	return broadcast.NewKafkaBroadcaster(cfg.KafkaBrokers, cfg.ChannelPrefix)
}
