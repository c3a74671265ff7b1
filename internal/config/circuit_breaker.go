package config

import (
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// NewCircuitBreaker builds a breaker for one upstream dependency. The name
// identifies the dependency in state-change logs.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	// Recovery timeouts stay under the matching health probe timeouts so a
	// half-open breaker gets a chance before the pod is marked unready.
	var timeout time.Duration
	switch name {
	case "Redis-DeviceStore":
		timeout = 5 * time.Second
	case "Relay-PostgreSQL":
		timeout = 10 * time.Second
	default:
		// RabbitMQ, S3 and other remote services
		timeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[CRITICAL] Circuit Breaker %s: %s -> %s", name, from, to)
		},
	})
}
