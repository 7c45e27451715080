// Command forestd runs the forest sampling service: an HTTP API over a
// SQLite store for forest boundaries, sampling designs, stem datasets and
// grid competition runs.
//
// Usage:
//
//	forestd [flags]                  start the HTTP service
//	forestd [flags] migrate <cmd>    manage database schema migrations
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rakuri2026/forest-management-sub001/internal/api"
	"github.com/rakuri2026/forest-management-sub001/internal/config"
	"github.com/rakuri2026/forest-management-sub001/internal/store"
	"github.com/rakuri2026/forest-management-sub001/internal/version"
)

var (
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	dbPath     = flag.String("db", "", "Path to SQLite database (overrides config)")
	configPath = flag.String("config", "", "Path to JSON service config")
)

func main() {
	flag.Parse()

	log.Printf("forestd %s", version.String())

	cfg := config.EmptyServiceConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	databasePath := cfg.GetDBPath()
	if *dbPath != "" {
		databasePath = *dbPath
	}

	// Subcommand dispatch happens before the service starts so migrations
	// can run against a stopped database.
	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "migrate":
			store.RunMigrateCommand(args[1:], databasePath)
			return
		default:
			log.Fatalf("Unknown command %q (did you mean \"migrate\"?)", args[0])
		}
	}

	db, err := store.Open(databasePath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.MigrateUp(); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	addr := cfg.GetListenAddr()
	if *listen != "" {
		addr = *listen
	}

	// Create a wait group for the HTTP server routine
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (tailsql console, backup download)
		db.AttachAdminRoutes(mux)

		// create a new API server instance using the store and config
		// and mount the API handlers
		apiMux := api.NewServer(db, cfg).ServeMux()
		mux.Handle("/api/", apiMux)

		server := &http.Server{
			Addr:    addr,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("HTTP server listening on %s", addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
