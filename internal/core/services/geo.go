package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
)

const (
	earthRadiusMeters = 6371000

	// Geolocation acquisition is bounded so a hung GPS never blocks the UI.
	geoTimeout = 10 * time.Second

	metersPerMile = 1609.344
	feetPerMeter  = 3.28084
)

// Resolution is a nearest-site decision with its proximity annotation.
type Resolution struct {
	Site           domain.Site `json:"site"`
	DistanceMeters float64     `json:"distance_meters"`
	DistanceLabel  string      `json:"distance_label"`
	PlaceName      string      `json:"place_name,omitempty"`
}

// GeoResolver turns raw device coordinates into a nearest-site decision.
type GeoResolver struct {
	locator  ports.Locator
	geocoder ports.ReverseGeocoder
}

func NewGeoResolver(locator ports.Locator, geocoder ports.ReverseGeocoder) *GeoResolver {
	return &GeoResolver{locator: locator, geocoder: geocoder}
}

// Resolve acquires coordinates and picks the minimum-distance site among
// those carrying coordinates. Permission and timeout failures are reported
// as classified errors so the caller can fall back to manual selection.
func (r *GeoResolver) Resolve(ctx context.Context, sites []domain.Site) (*Resolution, error) {
	ctx, cancel := context.WithTimeout(ctx, geoTimeout)
	defer cancel()

	coords, err := r.locator.Locate(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.WrapErr(domain.Timeout, "geo.resolve", err)
		}
		if domain.IsKind(err, domain.PermissionDenied) {
			return nil, err
		}
		return nil, domain.WrapErr(domain.DeviceUnavailable, "geo.resolve", err)
	}

	site, distance, ok := Nearest(coords, sites)
	if !ok {
		return nil, domain.Errf(domain.NotFound, "geo.resolve", "no site carries coordinates")
	}

	res := &Resolution{
		Site:           site,
		DistanceMeters: distance,
		DistanceLabel:  FormatDistance(distance, site.Settings.DistanceUnit),
	}

	// Reverse geocoding is a non-critical annotation; failure is ignored.
	if r.geocoder != nil {
		if name, err := r.geocoder.PlaceName(ctx, coords); err != nil {
			log.Printf("geo: reverse geocode failed (ignored): %v", err)
		} else {
			res.PlaceName = name
		}
	}

	return res, nil
}

// Nearest returns the minimum-distance site among sites with coordinates.
// ok is false when no candidate site carries coordinates.
func Nearest(c domain.Coordinates, sites []domain.Site) (domain.Site, float64, bool) {
	var best domain.Site
	bestDist := math.MaxFloat64
	found := false
	for _, s := range sites {
		if s.Coordinates == nil {
			continue
		}
		d := Haversine(c, *s.Coordinates)
		if d < bestDist {
			best = s
			bestDist = d
			found = true
		}
	}
	return best, bestDist, found
}

// Haversine computes the great-circle distance between two coordinates in
// meters. Symmetric, and zero for identical points.
func Haversine(a, b domain.Coordinates) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// FormatDistance renders a proximity label in the site's preferred system.
// Imperial shows feet below 0.1 mi; metric shows meters below 1000 m.
func FormatDistance(meters float64, unit domain.DistanceUnit) string {
	if unit == domain.UnitImperial {
		miles := meters / metersPerMile
		if miles < 0.1 {
			return fmt.Sprintf("%.0f ft away", meters*feetPerMeter)
		}
		return fmt.Sprintf("%.1f mi away", miles)
	}
	if meters < 1000 {
		return fmt.Sprintf("%.0f m away", meters)
	}
	return fmt.Sprintf("%.1f km away", meters/1000)
}
