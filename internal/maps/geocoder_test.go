package maps

import (
	"context"
	"errors"
	"testing"

	"googlemaps.github.io/maps"
)

type fakeGeocodeAPI struct {
	req *maps.GeocodingRequest
	res []maps.GeocodingResult
	err error
}

func (f *fakeGeocodeAPI) Geocode(_ context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error) {
	f.req = r
	return f.res, f.err
}

func TestGeocodeFirstResult(t *testing.T) {
	api := &fakeGeocodeAPI{res: []maps.GeocodingResult{
		{Geometry: maps.AddressGeometry{Location: maps.LatLng{Lat: 18.5204, Lng: 73.8567}}},
		{Geometry: maps.AddressGeometry{Location: maps.LatLng{Lat: 1, Lng: 1}}},
	}}
	g := &Geocoder{client: api, region: "in"}

	pt, err := g.Geocode(context.Background(), " Shivaji Nagar, Pune ")
	if err != nil {
		t.Fatalf("geocode: %v", err)
	}
	if pt.Lat != 18.5204 || pt.Lng != 73.8567 {
		t.Errorf("point = %+v", pt)
	}
	if api.req.Address != "Shivaji Nagar, Pune" || api.req.Region != "in" {
		t.Errorf("request = %+v", api.req)
	}
}

func TestGeocodeNoResult(t *testing.T) {
	g := &Geocoder{client: &fakeGeocodeAPI{}}
	if _, err := g.Geocode(context.Background(), "nowhere"); !errors.Is(err, ErrNoResult) {
		t.Fatalf("err = %v", err)
	}
	if _, err := g.Geocode(context.Background(), "  "); !errors.Is(err, ErrNoResult) {
		t.Fatalf("blank err = %v", err)
	}
}

func TestGeocodeAPIError(t *testing.T) {
	boom := errors.New("REQUEST_DENIED")
	g := &Geocoder{client: &fakeGeocodeAPI{err: boom}}
	if _, err := g.Geocode(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
