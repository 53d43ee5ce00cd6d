// Command pos is a line-oriented point-of-sale terminal for the storefront API.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/ariefcatur/storefront-pos/internal/config"
	"github.com/ariefcatur/storefront-pos/internal/obs"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	obs.Init(cfg.ServiceName + "-pos")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Spans ride to the API in traceparent headers; only a collector gets
	// them exported, stdout belongs to the till.
	exporter := "none"
	if cfg.TraceExporter == "otlp" {
		exporter = "otlp"
	}
	stopTracing, err := obs.InitTracing(ctx, obs.TraceConfig{
		Service:  cfg.ServiceName + "-pos",
		Exporter: exporter,
		Endpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = stopTracing(context.Background()) }()

	t := newTerminal(cfg.POSAPIURL, cfg.CatalogPageSize, os.Stdout)
	if err := t.run(ctx, bufio.NewScanner(os.Stdin)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		_ = stopTracing(context.Background())
		os.Exit(1)
	}
}
