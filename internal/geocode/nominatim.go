package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/sweep/internal/domain"
)

const nominatimZoom = "14" // Suburb-level detail

// NominatimClient resolves coordinates against a Nominatim-compatible
// reverse-geocoding endpoint.
type NominatimClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewNominatimClient creates a client for the given base URL.
func NewNominatimClient(baseURL, userAgent string) *NominatimClient {
	return &NominatimClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type nominatimResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		Suburb  string `json:"suburb"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
	Error string `json:"error"`
}

// ReverseGeocode implements domain.Geocoder.
func (c *NominatimClient) ReverseGeocode(ctx context.Context, coord domain.Coordinate) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(coord.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(coord.Lon, 'f', 6, 64))
	q.Set("zoom", nominatimZoom)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocode request failed: %s", resp.Status)
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding geocode response: %w", err)
	}
	if body.Error != "" {
		return "", fmt.Errorf("geocode error: %s", body.Error)
	}
	return placeDescription(body), nil
}

// placeDescription composes a short locality string from the address parts,
// falling back to the raw display name.
func placeDescription(r nominatimResponse) string {
	locality := r.Address.City
	if locality == "" {
		locality = r.Address.Town
	}
	if locality == "" {
		locality = r.Address.Village
	}
	if locality == "" {
		locality = r.Address.Suburb
	}

	var parts []string
	if locality != "" {
		parts = append(parts, locality)
	}
	if r.Address.Country != "" {
		parts = append(parts, r.Address.Country)
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	if r.Name != "" {
		return r.Name
	}
	return r.DisplayName
}
