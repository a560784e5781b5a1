package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/ignite/campaignsync/internal/activity"
	"github.com/ignite/campaignsync/internal/config"
	"github.com/ignite/campaignsync/internal/storage"
)

// migrate creates the settings and activity tables ahead of a deploy, so
// the server never races another instance to create them.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch cfg.Storage.Type {
	case "postgres", "sqlite":
		store, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		if s, ok := store.(*storage.SQL); ok {
			defer s.Close()
		}
		log.Printf("  ✓ %s table %s", cfg.Storage.Type, cfg.Storage.Table)
	default:
		log.Printf("  - storage type %q needs no migration", cfg.Storage.Type)
	}

	if !cfg.Activity.Enabled {
		log.Println("  - activity log disabled")
		return
	}
	logs, err := activity.Open(ctx, cfg.Activity)
	if err != nil {
		log.Fatalf("activity: %v", err)
	}
	if c, ok := logs.(interface{ Close() error }); ok {
		defer c.Close()
	}
	log.Printf("  ✓ %s activity log", cfg.Activity.Driver)
	log.Println("Migrations complete")
}
