package domain

import "time"

// BookingStatus follows the fixed lifecycle
// pending -> checked_in -> completed, or pending -> cancelled.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingCheckedIn BookingStatus = "checked_in"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is a pre-registered visit matched by case-insensitive email lookup.
type Booking struct {
	ID           string        `json:"id"`
	SiteID       string        `json:"site_id"`
	VisitorName  string        `json:"visitor_name"`
	VisitorEmail string        `json:"visitor_email"`
	CategoryID   string        `json:"category_id"`
	HostID       string        `json:"host_id,omitempty"`
	ScheduledAt  time.Time     `json:"scheduled_at"`
	Status       BookingStatus `json:"status"`
}
