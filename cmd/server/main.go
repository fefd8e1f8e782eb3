/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the reading progress & streak engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and env secrets
  2. Initialize SQLite store and load the seeded plan
  3. Create the engine and API handler
  4. Start the reminder scheduler (unless disabled)
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: reading.db)
              Use ":memory:" for an in-memory database
  -tz         Default timezone for new users (default: Asia/Singapore)
  -scheduler  Run the in-process reminder scheduler (default: true)

ENVIRONMENT:
  TELEGRAM_TOKEN  Bot token; without it, notifications go to the log
  CRON_SECRET     Shared secret for the /cron endpoints

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - api/server.go: Router configuration
  - cmd/seedplan: Plan seeding (run before first start)
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/reading-engine/api"
	"github.com/warp/reading-engine/engine"
	"github.com/warp/reading-engine/notify"
	"github.com/warp/reading-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "reading.db", "SQLite database path")
	defaultTZ := flag.String("tz", "Asia/Singapore", "default timezone for new users")
	runScheduler := flag.Bool("scheduler", true, "run the in-process reminder scheduler")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Load the seeded plan; refuse to start without a complete one.
	plan, err := engine.LoadPlan(context.Background(), store)
	if err != nil {
		log.Fatalf("Failed to load plan (run cmd/seedplan first?): %v", err)
	}

	// Initialize engine
	eng := engine.New(store, plan)
	eng.DefaultTimezone = *defaultTZ

	// Notifier: Telegram when a token is configured, log otherwise.
	var notifier notify.Notifier = notify.Log{}
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		tg, err := notify.NewTelegram(token)
		if err != nil {
			log.Fatalf("Failed to initialize telegram: %v", err)
		}
		notifier = tg
	} else {
		log.Println("TELEGRAM_TOKEN not set; notifications go to the log")
	}

	// Handler and scheduler
	handler := api.NewHandler(eng, notifier, os.Getenv("CRON_SECRET"))
	if *runScheduler {
		handler.Scheduler.Start()
		defer handler.Scheduler.Stop()
	}

	// Create server
	router := api.NewRouter(handler)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
