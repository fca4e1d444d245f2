package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmattsson/photocurator/internal/pipeline"
	"github.com/tmattsson/photocurator/pkg/httpclient"
)

// ItemCoordinates resolves an item's GPS coordinates, as recorded by EXIF.
type ItemCoordinates interface {
	Coordinates(ctx context.Context, key string) (lat, lon *float64, ok bool, err error)
}

// GeocodingWriter persists the resolved location fields.
type GeocodingWriter interface {
	SetGeocoding(ctx context.Context, key string, city, country, address *string) error
}

// geocodeResponse is the subset of fields read from the reverse-geocoding
// endpoint's JSON response.
type geocodeResponse struct {
	City    string `json:"city"`
	Country string `json:"country"`
	Address string `json:"display_name"`
}

// NewGeocodingEnricher builds the Geocoding stage enricher. Items with no
// GPS coordinates are a no-op: geocoding has nothing to resolve. Coordinates
// resolve through a resilient HTTP call to a reverse-geocoding backend,
// since this is an outbound network suspension point rather than an offline
// dataset lookup.
func NewGeocodingEnricher(coords ItemCoordinates, writer GeocodingWriter, client *httpclient.Client, endpointURL string) pipeline.Enricher {
	return func(ctx context.Context, key string) (pipeline.EnrichOutcome, error) {
		lat, lon, ok, err := coords.Coordinates(ctx, key)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("resolving coordinates for %s: %w", key, err)
		}
		if !ok || lat == nil || lon == nil {
			return pipeline.EnrichNoop, nil
		}
		if endpointURL == "" {
			return pipeline.EnrichNoop, nil
		}

		url := fmt.Sprintf("%s?lat=%f&lon=%f", endpointURL, *lat, *lon)
		resp, err := client.Get(ctx, url)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("reverse geocoding %s: %w", key, err)
		}
		defer resp.Body.Close()

		var decoded geocodeResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("decoding geocoding response for %s: %w", key, err)
		}

		var city, country, address *string
		if decoded.City != "" {
			city = &decoded.City
		}
		if decoded.Country != "" {
			country = &decoded.Country
		}
		if decoded.Address != "" {
			address = &decoded.Address
		}
		if city == nil && country == nil && address == nil {
			return pipeline.EnrichNoop, nil
		}

		if err := writer.SetGeocoding(ctx, key, city, country, address); err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("saving geocoding for %s: %w", key, err)
		}
		return pipeline.EnrichSuccess, nil
	}
}
