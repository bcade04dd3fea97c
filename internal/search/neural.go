package search

// KNNQuery builds an approximate k-nearest-neighbour query over a knn_vector
// field with an optional pre-filter. The knn clause carries its own filter so
// filtering happens before the vector walk.
func KNNQuery(field string, vector []float32, k int, filters []map[string]any) map[string]any {
	params := map[string]any{
		"vector": vector,
		"k":      k,
	}
	if len(filters) > 0 {
		params["filter"] = map[string]any{
			"bool": map[string]any{"filter": filters},
		}
	}
	return map[string]any{
		"size": k,
		"query": map[string]any{
			"knn": map[string]any{field: params},
		},
	}
}

// NeuralQuery builds a neural clause that embeds query text server-side with
// a deployed ML Commons model. Use this when ingestion ran through a
// text_embedding pipeline with the same model.
func NeuralQuery(field, queryText, modelID string, k int) map[string]any {
	return map[string]any{
		"size": k,
		"query": map[string]any{
			"neural": map[string]any{
				field: map[string]any{
					"query_text": queryText,
					"model_id":   modelID,
					"k":          k,
				},
			},
		},
	}
}

// NeuralSparseQuery builds a neural_sparse clause for sparse-encoding models.
func NeuralSparseQuery(field, queryText, modelID string, size int) map[string]any {
	return map[string]any{
		"size": size,
		"query": map[string]any{
			"neural_sparse": map[string]any{
				field: map[string]any{
					"query_text": queryText,
					"model_id":   modelID,
				},
			},
		},
	}
}

// HybridQuery combines a knn clause and a lexical match in a bool/should.
// With rrf set, an ext.rrf block asks the cluster to fuse the two rankings
// with reciprocal rank fusion (OpenSearch 2.19+).
func HybridQuery(vectorField string, vector []float32, k int, textField, queryText string, size int, rrf bool) map[string]any {
	knnClause := map[string]any{
		"knn": map[string]any{
			vectorField: map[string]any{
				"vector": vector,
				"k":      k,
			},
		},
	}
	matchClause := map[string]any{
		"match": map[string]any{
			textField: map[string]any{"query": queryText},
		},
	}

	body := map[string]any{
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"should": []map[string]any{knnClause, matchClause},
			},
		},
	}
	if rrf {
		body["ext"] = map[string]any{"rrf": map[string]any{}}
	}
	return body
}

// RerankBody wraps an existing query body with the rerank query context so a
// rerank search pipeline can re-score hits against queryText.
func RerankBody(body map[string]any, queryText string) map[string]any {
	out := make(map[string]any, len(body)+1)
	for k, v := range body {
		out[k] = v
	}
	ext := map[string]any{}
	if prev, ok := out["ext"].(map[string]any); ok {
		for k, v := range prev {
			ext[k] = v
		}
	}
	ext["rerank"] = map[string]any{
		"query_context": map[string]any{"query_text": queryText},
	}
	out["ext"] = ext
	return out
}
