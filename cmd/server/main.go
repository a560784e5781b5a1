package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/campaignsync/internal/bootstrap"
	"github.com/ignite/campaignsync/internal/campaign"
	"github.com/ignite/campaignsync/internal/config"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %v", addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  campaignsync server (cmd/server/main.go)                  ║")
	log.Println("║  Mailchimp campaign scheduling and send reconciliation    ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	bootstrap.ConfigureLogging(cfg.Log)
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: %s is available", addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.Close()
	log.Printf("[storage] %s backend ready", cfg.Storage.Type)
	log.Printf("[cache] %s backend ready (bucket %d minutes)", cfg.Cache.Type, cfg.Cache.TTLMinutes)
	log.Printf("[notify] publishing campaign events to %s", cfg.Notify.Type)
	if app.Content.Configured() {
		log.Printf("[content] reading posts from %s", cfg.Content.FeedURL)
	} else {
		log.Println("[content] no feed configured; content search disabled")
	}
	if cfg.Server.PublicURL == "" {
		log.Println("[webhook] PUBLIC_URL not set; Mailchimp webhooks will not be registered")
	} else {
		log.Printf("[webhook] callbacks at %s", campaign.WebhookURL(cfg.Server.PublicURL, "{audienceID}"))
	}
	if cfg.Server.AdminToken == "" {
		log.Println("[auth] ADMIN_TOKEN not set; editor endpoints are open")
	}

	server := app.Server()

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized, server is ready")

	<-done
	log.Println("Shutting down...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
