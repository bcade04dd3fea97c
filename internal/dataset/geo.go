package dataset

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/machzqcq/oslab-go/internal/osclient"
)

// Landmark is one point of the demo geo dataset.
type Landmark struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	City     string   `json:"city"`
	State    string   `json:"state"`
	Location GeoPoint `json:"location"`
}

// GeoPoint is a lat/lon pair in the object form OpenSearch accepts for
// geo_point fields.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Landmarks returns the demo landmark set. The slice is freshly allocated.
func Landmarks() []Landmark {
	out := make([]Landmark, len(landmarks))
	copy(out, landmarks)
	return out
}

var landmarks = []Landmark{
	{1, "Statue of Liberty", "New York", "NY", GeoPoint{40.6892, -74.0445}},
	{2, "Empire State Building", "New York", "NY", GeoPoint{40.7484, -73.9857}},
	{3, "Golden Gate Bridge", "San Francisco", "CA", GeoPoint{37.8199, -122.4783}},
	{4, "Alcatraz Island", "San Francisco", "CA", GeoPoint{37.8267, -122.4233}},
	{5, "Space Needle", "Seattle", "WA", GeoPoint{47.6205, -122.3493}},
	{6, "Pike Place Market", "Seattle", "WA", GeoPoint{47.6097, -122.3422}},
	{7, "Willis Tower", "Chicago", "IL", GeoPoint{41.8789, -87.6359}},
	{8, "Millennium Park", "Chicago", "IL", GeoPoint{41.8826, -87.6226}},
	{9, "Hollywood Sign", "Los Angeles", "CA", GeoPoint{34.1341, -118.3215}},
	{10, "Santa Monica Pier", "Los Angeles", "CA", GeoPoint{34.0083, -118.4987}},
	{11, "Freedom Trail", "Boston", "MA", GeoPoint{42.3601, -71.0589}},
	{12, "Fenway Park", "Boston", "MA", GeoPoint{42.3467, -71.0972}},
	{13, "Texas State Capitol", "Austin", "TX", GeoPoint{30.2747, -97.7404}},
	{14, "Red Rocks Amphitheatre", "Denver", "CO", GeoPoint{39.6654, -105.2057}},
	{15, "South Beach", "Miami", "FL", GeoPoint{25.7826, -80.1341}},
	{16, "Gateway Arch", "St. Louis", "MO", GeoPoint{38.6247, -90.1848}},
	{17, "French Quarter", "New Orleans", "LA", GeoPoint{29.9584, -90.0644}},
	{18, "Las Vegas Strip", "Las Vegas", "NV", GeoPoint{36.1147, -115.1728}},
	{19, "Lincoln Memorial", "Washington", "DC", GeoPoint{38.8893, -77.0502}},
	{20, "Liberty Bell", "Philadelphia", "PA", GeoPoint{39.9496, -75.1503}},
}

// LandmarkMapping returns the index body for the landmark index.
func LandmarkMapping() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"index": map[string]any{
				"number_of_shards":   1,
				"number_of_replicas": 0,
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"id":       map[string]any{"type": "long"},
				"name":     map[string]any{"type": "text"},
				"city":     map[string]any{"type": "keyword"},
				"state":    map[string]any{"type": "keyword"},
				"location": map[string]any{"type": "geo_point"},
			},
		},
	}
}

// SeedLandmarks creates the landmark index (if missing) and indexes the demo
// landmarks.
func SeedLandmarks(ctx context.Context, client *osclient.Client, index string) (int, error) {
	if _, err := client.EnsureIndex(ctx, index, LandmarkMapping()); err != nil {
		return 0, fmt.Errorf("dataset: ensure index %s: %w", index, err)
	}

	for _, l := range landmarks {
		if err := indexDoc(ctx, client, index, strconv.Itoa(l.ID), l, ""); err != nil {
			return 0, fmt.Errorf("dataset: index landmark %d: %w", l.ID, err)
		}
	}
	if err := client.Refresh(ctx, index); err != nil {
		return 0, fmt.Errorf("dataset: refresh %s: %w", index, err)
	}
	return len(landmarks), nil
}

// indexDoc writes one document, optionally through a server-side ingest
// pipeline.
func indexDoc(ctx context.Context, client *osclient.Client, index, id string, doc any, pipeline string) error {
	path := "/" + url.PathEscape(index) + "/_doc/" + url.PathEscape(id)
	if pipeline != "" {
		path += "?pipeline=" + url.QueryEscape(pipeline)
	}
	return client.DoJSON(ctx, http.MethodPut, path, doc, nil)
}
