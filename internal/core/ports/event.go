package ports

import (
	"context"
	"time"
)

// Host notice kinds. TrainingStarted is dispatched before the visitor begins
// mandatory training; VisitorArrived rides the sign-in commit.
const (
	NoticeVisitorArrived  = "visitor_arrived"
	NoticeTrainingStarted = "training_started"
)

// HostNoticeEvent tells a host that their visitor arrived or started
// training. Dispatch is fire-and-forget; delivery failure never blocks or
// fails the sign-in flow.
type HostNoticeEvent struct {
	Kind         string    `json:"kind"`
	SiteID       string    `json:"site_id"`
	HostID       string    `json:"host_id"`
	HostEmail    string    `json:"host_email"`
	VisitorName  string    `json:"visitor_name"`
	VisitorEmail string    `json:"visitor_email"`
	Badge        string    `json:"badge,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// HostNoticePublisher delivers host notices to the notification broker.
type HostNoticePublisher interface {
	PublishHostNotice(ctx context.Context, evt HostNoticeEvent) error
}
