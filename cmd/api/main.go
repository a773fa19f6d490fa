package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	_ "github.com/arklim/pos-auth-gateway/gen/docs/swagger"
	"github.com/arklim/pos-auth-gateway/internal/infra/app"
	"github.com/arklim/pos-auth-gateway/internal/infra/config"
)

// @title POS Auth Gateway API
// @version 1.0
// @description Credential authentication and opaque session tokens for point-of-sale tills.
// @BasePath /
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Printf("application stopped: %v", err)
		os.Exit(1)
	}
}
