package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/adapters/messaging"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/adapters/outbox"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/config"
)

func main() {
	log.Println("Starting outbox relay...")

	cfg := config.LoadRelayConfig()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("relay: failed to open database: %v", err)
	}
	defer db.Close()

	broker, err := messaging.NewRabbitMQBroker(cfg.RabbitMQURL, cfg.NoticeQueueName)
	if err != nil {
		log.Fatalf("relay: failed to connect to RabbitMQ: %v", err)
	}
	defer broker.Close()
	log.Printf("relay: connected to RabbitMQ, queue %q", cfg.NoticeQueueName)

	worker := outbox.NewRelay(db, cfg.DatabaseURL, broker)

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", probe("outbox-relay", worker.IsHealthy))
	healthMux.HandleFunc("/health/ready", probe("outbox-relay", worker.IsReady))

	healthServer := &http.Server{Addr: ":8090", Handler: healthMux}
	go func() {
		log.Println("relay: health endpoints on :8090")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("relay: health server error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := worker.Start(ctx); err != nil && err != context.Canceled {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("relay: received %v, shutting down...", sig)
		cancel()
	case err := <-errChan:
		log.Printf("relay: worker failed, shutting down: %v", err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("relay: error shutting down health server: %v", err)
	}

	log.Println("relay: shutdown complete")
}

func probe(component string, check func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, httpStatus := "UP", http.StatusOK
		if !check() {
			status, httpStatus = "DOWN", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":    status,
			"component": component,
		})
	}
}
