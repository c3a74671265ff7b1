package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/lib/pq"
	"github.com/sony/gobreaker"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/config"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
)

const (
	noticeChannel = "outbox_channel"

	// Event type written by the kiosk commit transaction
	hostNoticeEventType = "host_notice"

	reconnectMin = 10 * time.Second
	reconnectMax = time.Minute

	deliverTimeout = 30 * time.Second
	sweepTimeout   = 60 * time.Second
	sweepInterval  = 90 * time.Second
	sweepBatchSize = 100

	staleAfter = 5 * time.Minute
)

// Relay drains the outbox table into RabbitMQ. Host notices are written in
// the same transaction as the sign-in record, so the kiosk flow never waits
// on the broker; the relay wakes on PostgreSQL NOTIFY and delivers them.
type Relay struct {
	db        *sql.DB
	dbURL     string
	publisher ports.HostNoticePublisher
	listener  *pq.Listener
	breaker   *gobreaker.CircuitBreaker
	lastSweep time.Time
	healthy   bool
}

func NewRelay(db *sql.DB, dbURL string, publisher ports.HostNoticePublisher) *Relay {
	return &Relay{
		db:        db,
		dbURL:     dbURL,
		publisher: publisher,
		breaker:   config.NewCircuitBreaker("Relay-PostgreSQL"),
		lastSweep: time.Now(),
		healthy:   true,
	}
}

// IsHealthy reports process liveness. An open circuit breaker is degraded
// but recoverable and should not kill the pod.
func (r *Relay) IsHealthy() bool {
	return r.healthy
}

// IsReady reports whether the relay is actually delivering notices.
func (r *Relay) IsReady() bool {
	if r.breaker.State() == gobreaker.StateOpen {
		return false
	}
	if time.Since(r.lastSweep) > staleAfter {
		return false
	}
	return r.healthy
}

// Start listens for outbox notifications and delivers notices until the
// context is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("outbox relay: listener error: %v", err)
		}
	}

	r.listener = pq.NewListener(r.dbURL, reconnectMin, reconnectMax, reportProblem)
	defer r.listener.Close()

	if err := r.listener.Listen(noticeChannel); err != nil {
		return err
	}

	log.Printf("outbox relay: listening on '%s'", noticeChannel)

	// Deliver any notices left over from before this process started.
	if err := r.sweep(ctx); err != nil {
		log.Printf("outbox relay: startup backlog sweep failed: %v", err)
	}

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("outbox relay: shutting down...")
			return ctx.Err()

		case n := <-r.listener.Notify:
			if n == nil {
				log.Println("outbox relay: connection lost, reconnecting...")
				r.healthy = false
				continue
			}
			if err := r.deliverOne(ctx, n.Extra); err != nil {
				log.Printf("outbox relay: event %s: %v", n.Extra, err)
			} else {
				r.lastSweep = time.Now()
				r.healthy = true
			}

		case <-ticker.C:
			// Ping keeps the listener connection alive; the sweep picks up
			// notifications missed during reconnects.
			go r.listener.Ping()
			if err := r.sweep(ctx); err != nil {
				log.Printf("outbox relay: periodic sweep failed: %v", err)
			} else {
				r.lastSweep = time.Now()
			}
		}
	}
}

// deliverOne claims a single notified event and publishes it.
func (r *Relay) deliverOne(ctx context.Context, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	_, err := r.breaker.Execute(func() (interface{}, error) {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()

		var id, eventType string
		var payload []byte
		err = tx.QueryRowContext(ctx, `
			SELECT id, event_type, payload
			FROM outbox_events
			WHERE id = $1 AND processed_at IS NULL
			FOR UPDATE SKIP LOCKED`, eventID).Scan(&id, &eventType, &payload)
		if err == sql.ErrNoRows {
			// Already claimed by a sweep or another relay instance.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		if err := r.publish(ctx, tx, id, eventType, payload); err != nil {
			return nil, err
		}
		if err := markProcessed(ctx, tx, id); err != nil {
			return nil, err
		}
		return nil, tx.Commit()
	})
	return err
}

// sweep claims and delivers all pending events, oldest first.
func (r *Relay) sweep(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	_, err := r.breaker.Execute(func() (interface{}, error) {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()

		rows, err := tx.QueryContext(ctx, `
			SELECT id, event_type, payload
			FROM outbox_events
			WHERE processed_at IS NULL
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED`, sweepBatchSize)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		type pending struct {
			id        string
			eventType string
			payload   []byte
		}
		var batch []pending
		for rows.Next() {
			var p pending
			if err := rows.Scan(&p.id, &p.eventType, &p.payload); err != nil {
				return nil, err
			}
			batch = append(batch, p)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

		for _, p := range batch {
			if err := r.publish(ctx, tx, p.id, p.eventType, p.payload); err != nil {
				log.Printf("outbox relay: publish %s failed: %v", p.id, err)
				continue
			}
			if err := markProcessed(ctx, tx, p.id); err != nil {
				return nil, err
			}
			log.Printf("outbox relay: delivered event %s", p.id)
		}

		return nil, tx.Commit()
	})
	return err
}

// publish decodes and forwards one event. Undecodable payloads are marked
// processed so they cannot wedge the queue.
func (r *Relay) publish(ctx context.Context, tx *sql.Tx, id, eventType string, payload []byte) error {
	if eventType != hostNoticeEventType {
		return nil
	}
	var evt ports.HostNoticeEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		log.Printf("outbox relay: discarding event %s with invalid payload: %v", id, err)
		return markProcessed(ctx, tx, id)
	}
	return r.publisher.PublishHostNotice(ctx, evt)
}

func markProcessed(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	return err
}
