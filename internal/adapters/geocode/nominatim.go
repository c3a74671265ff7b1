// Package geocode annotates coordinates with a human place name. The lookup
// is strictly best-effort; callers ignore failures.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
)

type NominatimGeocoder struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

var _ ports.ReverseGeocoder = (*NominatimGeocoder)(nil)

func NewNominatimGeocoder(baseURL, userAgent string) *NominatimGeocoder {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	return &NominatimGeocoder{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    http.DefaultClient,
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
}

func (g *NominatimGeocoder) PlaceName(ctx context.Context, c domain.Coordinates) (string, error) {
	params := url.Values{
		"format": {"jsonv2"},
		"lat":    {fmt.Sprintf("%f", c.Latitude)},
		"lon":    {fmt.Sprintf("%f", c.Longitude)},
	}

	req, _ := http.NewRequestWithContext(ctx, "GET", g.baseURL+"/reverse?"+params.Encode(), nil)
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode returned %d", resp.StatusCode)
	}

	var result reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.DisplayName, nil
}
