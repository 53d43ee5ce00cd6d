package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/storefront-pos/internal/config"
	"github.com/ariefcatur/storefront-pos/internal/inventory"
	kafkax "github.com/ariefcatur/storefront-pos/internal/kafka"
	"github.com/ariefcatur/storefront-pos/internal/obs"
	"github.com/ariefcatur/storefront-pos/internal/orders"
	"github.com/ariefcatur/storefront-pos/internal/postgres"
	"github.com/ariefcatur/storefront-pos/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-inventory"
	log := obs.Init(service)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &inventory.Service{
		Repo:        &orders.StockRepo{DB: db},
		Redis:       rdb,
		ServiceName: service,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, orders.TopicOrderStatusChanged, cfg.InventoryWorkers)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("inventory consumer started",
			"group", cfg.InventoryGroup, "topic", orders.TopicOrderStatusChanged, "workers", cfg.InventoryWorkers)
		if err := cons.Start(ctx, svc.HandleOrderStatusChanged); err != nil {
			log.Error("consumer exit", "err", err)
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("shutting down consumer")
	case <-ctx.Done():
	}
	cancel()
	<-done
}
