// README: Address geocoding through the Google Maps Geocoding API.
package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"scrapyard/internal/types"
)

var ErrNoResult = errors.New("address not found")

type geocodeAPI interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// Geocoder resolves free-form pickup addresses to coordinates.
type Geocoder struct {
	client geocodeAPI
	region string
}

// NewGeocoder creates a Geocoder biased to region (a ccTLD such as "in").
func NewGeocoder(apiKey, region string) (*Geocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Geocoder{client: client, region: region}, nil
}

func (g *Geocoder) Geocode(ctx context.Context, address string) (types.Point, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return types.Point{}, ErrNoResult
	}
	res, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address: address,
		Region:  g.region,
	})
	if err != nil {
		return types.Point{}, fmt.Errorf("geocoding api error: %w", err)
	}
	if len(res) == 0 {
		return types.Point{}, ErrNoResult
	}
	loc := res[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}
