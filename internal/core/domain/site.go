package domain

// DistanceUnit selects the formatting system for proximity labels.
type DistanceUnit string

const (
	UnitMetric   DistanceUnit = "metric"
	UnitImperial DistanceUnit = "imperial"
)

// Coordinates is a WGS84 lat/lon pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SiteSettings is the per-site behavior snapshot captured at session start.
type SiteSettings struct {
	DistanceUnit      DistanceUnit `json:"distance_unit"`
	NotifyHosts       bool         `json:"notify_hosts"`
	PrintBadges       bool         `json:"print_badges"`
	TrainingValidDays int          `json:"training_valid_days"`
}

// Site is a physical location. Coordinates are optional; a site without them
// is excluded from nearest-site resolution but stays manually selectable.
type Site struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Timezone    string       `json:"timezone"`
	Settings    SiteSettings `json:"settings"`
}

// Category classifies a visitor and decides whether safety training is
// mandatory before photo capture.
type Category struct {
	ID               string `json:"id"`
	SiteID           string `json:"site_id"`
	Name             string `json:"name"`
	RequiresTraining bool   `json:"requires_training"`
}

// Host is an employee a visitor can be attached to for arrival notices.
type Host struct {
	ID       string `json:"id"`
	SiteID   string `json:"site_id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}
