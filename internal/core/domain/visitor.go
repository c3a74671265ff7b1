package domain

import "time"

// VisitorDraft is the transient sign-in form state. It lives only inside the
// session until a commit succeeds and is destroyed on completion or reset.
type VisitorDraft struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Company    string `json:"company"`
	CategoryID string `json:"category_id"`
	HostID     string `json:"host_id"`
	Purpose    string `json:"purpose"`
}

// Visitor is the durable person record returned by the idempotent upsert.
type Visitor struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	Company   string    `json:"company"`
	CreatedAt time.Time `json:"created_at"`
}

// CapturedPhoto is a still image whose ownership moves from the media
// capture controller to the session once taken.
type CapturedPhoto struct {
	Data        []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	CapturedAt  time.Time `json:"captured_at"`
}

// SignInRecord is the append-only record created at commit. Type is "in" for
// arrivals and "out" for departures; the badge number exists only on "in"
// records and is generated at the final commit step.
type SignInRecord struct {
	ID          string     `json:"id"`
	VisitorID   string     `json:"visitor_id"`
	SiteID      string     `json:"site_id"`
	CategoryID  string     `json:"category_id"`
	HostID      string     `json:"host_id,omitempty"`
	BookingID   string     `json:"booking_id,omitempty"`
	Badge       string     `json:"badge,omitempty"`
	Type        string     `json:"type"`
	PhotoURL    string     `json:"photo_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	SignedOutAt *time.Time `json:"signed_out_at,omitempty"`
}
