package main

import (
	"context"
	"log"

	"github.com/quiksafe/quiksafebot/internal/app"
	"github.com/quiksafe/quiksafebot/internal/config"
)

func main() {

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	a.Run(ctx)
}
