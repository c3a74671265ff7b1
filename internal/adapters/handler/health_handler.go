package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

const probeTimeout = 5 * time.Second

// Notifier is the slice of the message broker the readiness probe needs.
type Notifier interface {
	IsHealthy() bool
}

// HealthHandler serves Kubernetes-style liveness and readiness probes for
// the kiosk API. Readiness covers every backing service a sign-in commit
// touches: the database, the remembered-device store and the notice broker.
type HealthHandler struct {
	db        *sql.DB
	devices   *redis.Client
	notifier  Notifier
	startTime time.Time
	version   string
}

func NewHealthHandler(db *sql.DB, devices *redis.Client, notifier Notifier) *HealthHandler {
	version := os.Getenv("APP_VERSION")
	if version == "" {
		version = "unknown"
	}
	return &HealthHandler{
		db:        db,
		devices:   devices,
		notifier:  notifier,
		startTime: time.Now(),
		version:   version,
	}
}

type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health confirms the process is up. No dependency checks here; a kiosk
// with a flaky database should still pass liveness.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.respond(w, http.StatusOK, map[string]interface{}{
		"status":    "UP",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
		"version":   h.version,
		"checks":    map[string]Check{"process": {Status: "UP"}},
	})
}

// Live is an alias for Health.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	h.Health(w, r)
}

// Ready reports DOWN if any backing service is unreachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := map[string]Check{
		"database":     h.checkDatabase(),
		"device_store": h.checkDeviceStore(),
		"notifier":     h.checkNotifier(),
	}

	status, httpStatus := "UP", http.StatusOK
	for _, c := range checks {
		if c.Status != "UP" {
			status, httpStatus = "DOWN", http.StatusServiceUnavailable
			break
		}
	}

	h.respond(w, httpStatus, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

func (h *HealthHandler) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("health: failed to encode response: %v", err)
	}
}

func (h *HealthHandler) checkDatabase() Check {
	if h.db == nil {
		return Check{Status: "DOWN", Message: "Database connection is not initialized"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		return Check{Status: "DOWN", Message: "Cannot connect to database"}
	}
	return Check{Status: "UP"}
}

func (h *HealthHandler) checkDeviceStore() Check {
	if h.devices == nil {
		return Check{Status: "DOWN", Message: "Device store client is not initialized"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if err := h.devices.Ping(ctx).Err(); err != nil {
		return Check{Status: "DOWN", Message: "Cannot connect to device store"}
	}
	return Check{Status: "UP"}
}

func (h *HealthHandler) checkNotifier() Check {
	if h.notifier == nil {
		return Check{Status: "DOWN", Message: "Notifier is not initialized"}
	}
	if !h.notifier.IsHealthy() {
		return Check{Status: "DOWN", Message: "Broker connection is closed"}
	}
	return Check{Status: "UP"}
}
