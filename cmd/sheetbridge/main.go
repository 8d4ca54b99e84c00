package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/auraflow/sheetbridge/internal/auraflow"
	"github.com/auraflow/sheetbridge/internal/config"
	"github.com/auraflow/sheetbridge/internal/httpapi"
)

func main() {
	configFile := strings.TrimSpace(os.Getenv("SHEETBRIDGE_CONFIG_FILE"))
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, err := auraflow.BuildStoreFromDSN(cfg.StoreDSN)
	if err != nil {
		log.Fatalf("failed to initialize store: %v", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("store close failed: %v", closeErr)
		}
	}()

	runtime := config.NewRuntime(cfg)
	if configFile != "" {
		closeWatcher, watchErr := config.Watch(context.Background(), configFile, runtime)
		if watchErr != nil {
			log.Fatalf("failed to watch config file: %v", watchErr)
		}
		defer func() { _ = closeWatcher() }()
	}

	client := auraflow.NewSheetWebhookClient(auraflow.SheetWebhookOptions{
		UserAgent: "sheetbridge/1.0",
	})
	server := httpapi.NewServerWithConfig(store, client, runtime, httpapi.ServerConfig{
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RequestTimeout: cfg.RequestTimeout,
	})

	log.Printf("sheetbridge listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, server); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
