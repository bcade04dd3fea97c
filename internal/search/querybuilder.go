// Package search builds OpenSearch query bodies. Builders are pure functions
// over plain maps so they can be unit tested without a cluster and fed to any
// transport.
package search

// AsYouTypeQuery builds the instant-search query used while a user is still
// typing: prefix matches rank first, fuzzy matches catch typos, and a sloppy
// phrase match rewards words appearing close together. Matching fragments are
// highlighted with <mark> tags.
func AsYouTypeQuery(query string, fields []string, size int) map[string]any {
	highlightFields := map[string]any{}
	for _, f := range fields {
		highlightFields[f] = map[string]any{}
	}

	return map[string]any{
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":  query,
							"fields": fields,
							"type":   "phrase_prefix",
							"boost":  2.0,
						},
					},
					map[string]any{
						"multi_match": map[string]any{
							"query":     query,
							"fields":    fields,
							"type":      "best_fields",
							"fuzziness": "AUTO",
						},
					},
					map[string]any{
						"multi_match": map[string]any{
							"query":  query,
							"fields": fields,
							"type":   "phrase",
							"slop":   2,
							"boost":  1.5,
						},
					},
				},
				"minimum_should_match": 1,
			},
		},
		"highlight": map[string]any{
			"fields":    highlightFields,
			"pre_tags":  []string{"<mark>"},
			"post_tags": []string{"</mark>"},
		},
	}
}

// SuggestQuery builds a lightweight prefix query for autocomplete dropdowns.
// Only the suggestion field is returned in _source.
func SuggestQuery(prefix, field string, size int) map[string]any {
	return map[string]any{
		"size":    size,
		"_source": []string{field},
		"query": map[string]any{
			"match_phrase_prefix": map[string]any{
				field: map[string]any{
					"query":          prefix,
					"max_expansions": 50,
				},
			},
		},
	}
}

// MatchQuery builds a plain match query over one field.
func MatchQuery(field, query string, size int) map[string]any {
	return map[string]any{
		"size": size,
		"query": map[string]any{
			"match": map[string]any{
				field: map[string]any{"query": query},
			},
		},
	}
}
