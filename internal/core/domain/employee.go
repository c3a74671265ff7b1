package domain

// Role classifies portal identities that can reach the kiosk surface.
type Role string

const (
	RoleReceptionist Role = "RECEPTIONIST"
	RoleEmployee     Role = "EMPLOYEE"
	RoleKiosk        Role = "KIOSK"
)

// Employee is a portal user who can sign in/out through the kiosk.
type Employee struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	SiteID    string `json:"site_id"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// RememberedEmployee is the single "last employee on this device" record a
// terminal persists; overwritten on every new remember-me sign-in, erased on
// explicit forget or sign-out, never expired.
type RememberedEmployee struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	SiteID    string `json:"site_id"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Operator is a receptionist identity allowed to unlock a terminal.
type Operator struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	SiteID   string `json:"site_id"`
}
