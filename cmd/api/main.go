package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ariefcatur/storefront-pos/internal/auth"
	"github.com/ariefcatur/storefront-pos/internal/cart"
	"github.com/ariefcatur/storefront-pos/internal/catalog"
	"github.com/ariefcatur/storefront-pos/internal/checkout"
	"github.com/ariefcatur/storefront-pos/internal/config"
	"github.com/ariefcatur/storefront-pos/internal/httpx"
	kafkax "github.com/ariefcatur/storefront-pos/internal/kafka"
	"github.com/ariefcatur/storefront-pos/internal/obs"
	"github.com/ariefcatur/storefront-pos/internal/orders"
	"github.com/ariefcatur/storefront-pos/internal/postgres"
	"github.com/ariefcatur/storefront-pos/internal/redisx"
	"github.com/ariefcatur/storefront-pos/internal/storage"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := obs.Init(cfg.ServiceName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	stopTracing, err := obs.InitTracing(ctx, obs.TraceConfig{
		Service:  cfg.ServiceName,
		Exporter: cfg.TraceExporter,
		Endpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		log.Error("tracing", "err", err)
		os.Exit(1)
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Error("db migrate", "err", err)
		os.Exit(1)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Object storage
	bucket, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		log.Error("storage", "err", err)
		os.Exit(1)
	}
	uploads, err := storage.NewLocal(cfg.UploadDir, "")
	if err != nil {
		log.Error("upload dir", "err", err)
		os.Exit(1)
	}

	// Kafka producers, one per topic
	created := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	created.Start(ctx)
	changed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024)
	changed.Start(ctx)

	// Identity
	accounts := &auth.Service{
		Users:    &auth.Repo{DB: db},
		Sessions: &auth.Sessions{Redis: rdb, TTL: cfg.SessionTTL},
		Tokens:   &auth.Tokens{Secret: []byte(cfg.JWTSecret), TTL: 24 * time.Hour, Issuer: cfg.ServiceName},
	}
	carts := &cart.Store{Redis: rdb}

	// A signed-out session takes its cart with it.
	stopSessions, err := accounts.Sessions.Subscribe(ctx, func(ev auth.Event) {
		if ev.Type != auth.EventSignedOut {
			return
		}
		if err := carts.Delete(context.Background(), ev.SessionID); err != nil {
			log.Warn("drop cart", "session_id", ev.SessionID, "err", err)
		}
	})
	if err != nil {
		log.Error("session events", "err", err)
		os.Exit(1)
	}
	defer stopSessions()

	// Repos & handlers
	products := &catalog.Repo{DB: db}
	orderRepo := &orders.Repo{DB: db}
	api := &httpx.API{
		Accounts: accounts,
		Catalog:  &httpx.CatalogHandler{Products: products, PageSize: cfg.CatalogPageSize},
		Cart:     &httpx.CartHandler{Carts: carts, Products: products},
		Checkout: &httpx.CheckoutHandler{
			Submitter: &checkout.Submitter{
				Orders:    orderRepo,
				Bucket:    bucket,
				Redis:     rdb,
				Publisher: created,
				Service:   cfg.ServiceName,
			},
			Carts:          carts,
			MaxUploadBytes: cfg.MaxUploadBytes,
		},
		Orders: &httpx.OrdersHandler{Orders: orderRepo, Redis: rdb, Publisher: changed, Service: cfg.ServiceName},
		Admin:  &httpx.AdminHandler{Products: products, Bucket: bucket, MaxUploadBytes: cfg.MaxUploadBytes},
		Upload: &httpx.UploadHandler{Bucket: uploads, MaxUploadBytes: cfg.MaxUploadBytes},
	}

	router := httpx.NewRouter()
	api.Mount(router)
	if local, ok := bucket.(*storage.Local); ok && strings.HasPrefix(cfg.Storage.PublicURL, "/") {
		prefix := strings.TrimRight(cfg.Storage.PublicURL, "/")
		router.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(local.Dir))))
	}

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, cfg.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// graceful shutdown
	go func() {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	created.Close() // close inbox, flush and close writer
	changed.Close()
	cancel()
	created.WaitClosed()
	changed.WaitClosed()
	_ = stopTracing(ctx2)
}
