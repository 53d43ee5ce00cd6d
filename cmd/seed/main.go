package main

import (
	"context"
	"flag"
	"os"

	"github.com/ariefcatur/storefront-pos/internal/auth"
	"github.com/ariefcatur/storefront-pos/internal/catalog"
	"github.com/ariefcatur/storefront-pos/internal/config"
	"github.com/ariefcatur/storefront-pos/internal/obs"
	"github.com/ariefcatur/storefront-pos/internal/postgres"
	"github.com/ariefcatur/storefront-pos/internal/seed"
	"github.com/joho/godotenv"
)

func main() {
	path := flag.String("file", "seed.yaml", "seed file")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := obs.Init(cfg.ServiceName + "-seed")
	ctx := context.Background()

	f, err := os.Open(*path)
	if err != nil {
		log.Error("open seed file", "err", err)
		os.Exit(1)
	}
	defer f.Close()
	data, err := seed.Parse(f)
	if err != nil {
		log.Error("parse", "err", err)
		os.Exit(1)
	}

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

	s := &seed.Seeder{Catalog: &catalog.Repo{DB: db}, Users: &auth.Repo{DB: db}, Actor: "seed"}
	rep, err := s.Apply(ctx, data)
	if err != nil {
		log.Error("seed", "err", err)
		os.Exit(1)
	}
	log.Info("seeded", "categories", rep.Categories, "products", rep.Products, "users", rep.Users)
}
