package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"aula/pkg/config"
	"aula/pkg/gateway"
	"aula/pkg/handlers"
	"aula/pkg/services"
	"aula/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Configuration loaded:")
	log.Printf("  Data directory: %s", cfg.DataPath)
	log.Printf("  API listen address: %s", cfg.ListenAddr)
	log.Printf("  Config file: %s", config.GetConfigFilePath())

	store := storage.NewObjectStore(cfg.DatabasePath())
	if err := store.Init(); err != nil {
		log.Fatalf("Failed to open object store: %v", err)
	}

	notes := services.NewNoteService(store)
	if err := notes.LoadNotes(); err != nil {
		log.Fatalf("Failed to load notes: %v", err)
	}

	recordings := services.NewRecordingService(cfg.BackendURL, cfg.UserID, store)
	if err := recordings.WarmCache(); err != nil {
		log.Printf("Warning: recording cache warm-up failed: %v", err)
	}

	conversations := services.NewConversationService()

	gw := startGateway(cfg)

	api := handlers.NewAPIHandlers(notes, recordings, conversations, gw)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/api", api.Routes())

	fmt.Println("Server starting on " + cfg.ListenAddr)

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Shutting down gracefully...")
		store.Close()
		os.Exit(0)
	}()

	log.Fatal(http.ListenAndServe(cfg.ListenAddr, r))
}

// startGateway brings the caching gateway through its lifecycle and,
// when an upstream is configured, serves it on its own listener
func startGateway(cfg *config.Config) *gateway.Gateway {
	upstream := cfg.UpstreamURL
	serve := upstream != ""
	if !serve {
		// The gateway still backs the cleanup endpoint; give it a
		// placeholder upstream it will never be asked to reach.
		upstream = "http://localhost" + cfg.ListenAddr
	}

	gw, err := gateway.New(gateway.Config{
		Upstream:   upstream,
		Version:    cfg.CacheVersion,
		Manifest:   []string{"/", "/manifest.json", "/app.js", "/styles.css"},
		OriginHost: "",
	}, gateway.NewCacheStorage())
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}

	if serve {
		if err := gw.Install(); err != nil {
			log.Printf("Warning: shell precache failed, serving without it: %v", err)
		}
	}
	gw.Activate()

	if cfg.AssetsDir != "" {
		if _, err := gw.WatchAssets(cfg.AssetsDir); err != nil {
			log.Printf("Warning: asset watcher unavailable: %v", err)
		}
	}

	if serve {
		go func() {
			log.Printf("Gateway serving %s on %s", upstream, cfg.GatewayAddr)
			log.Fatal(http.ListenAndServe(cfg.GatewayAddr, gw))
		}()
	}

	return gw
}
