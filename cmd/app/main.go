package main

import (
	"flag"
	"log"
	"os"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/di"
	"github.com/nimazasinich/crypto-dt-source-sub019/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s symbols=%v providers=%d", cfg.Environment, cfg.Tracker.Symbols, len(cfg.Providers))

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
