package search

// GeoDistanceQuery finds documents whose geo_point field lies within distance
// of the given origin. distance uses OpenSearch unit syntax, e.g. "5km".
func GeoDistanceQuery(field string, lat, lon float64, distance string, size int) map[string]any {
	return map[string]any{
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{
						"geo_distance": map[string]any{
							"distance": distance,
							field: map[string]any{
								"lat": lat,
								"lon": lon,
							},
						},
					},
				},
			},
		},
		"sort": []map[string]any{
			{
				"_geo_distance": map[string]any{
					field:           map[string]any{"lat": lat, "lon": lon},
					"order":         "asc",
					"unit":          "km",
					"distance_type": "arc",
				},
			},
		},
	}
}

// GeoBoundingBoxQuery finds documents whose geo_point field falls inside the
// rectangle spanned by the top-left and bottom-right corners.
func GeoBoundingBoxQuery(field string, topLat, leftLon, bottomLat, rightLon float64, size int) map[string]any {
	return map[string]any{
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{
						"geo_bounding_box": map[string]any{
							field: map[string]any{
								"top_left": map[string]any{
									"lat": topLat,
									"lon": leftLon,
								},
								"bottom_right": map[string]any{
									"lat": bottomLat,
									"lon": rightLon,
								},
							},
						},
					},
				},
			},
		},
	}
}
