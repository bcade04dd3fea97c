package ingestion

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FieldType is an OpenSearch field type inferred for a column.
type FieldType string

const (
	TypeLong    FieldType = "long"
	TypeDouble  FieldType = "double"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeText    FieldType = "text"
)

// Column describes one inferred column of an uploaded file. CLI flags and
// the server's commit request can override the inferred Type and mark the
// column for embedding before the mapping is built.
type Column struct {
	// Name is the column name as it appears in the file header.
	Name string `json:"name"`
	// Type is the inferred (or overridden) OpenSearch field type.
	Type FieldType `json:"type"`
	// Embed marks a text column whose values should also be embedded into a
	// companion knn_vector field named "<name>_embedding".
	Embed bool `json:"embed,omitempty"`
}

// inferSampleSize caps how many records are inspected per column.
const inferSampleSize = 100

// dateLayouts are tried in order when classifying string values as dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
}

// InferColumns inspects up to inferSampleSize values per column and returns
// the narrowest OpenSearch type that fits every sampled value. Columns with
// no non-empty samples default to text. The precedence is
// long > double > boolean > date > text: a column stays long only while every
// value parses as an integer, and so on down the list.
func InferColumns(records []Record, columns []string) []Column {
	out := make([]Column, 0, len(columns))

	for _, name := range columns {
		candidate := FieldType("")
		sampled := 0

		for _, rec := range records {
			if sampled >= inferSampleSize {
				break
			}
			v, ok := rec[name]
			if !ok || v == nil {
				continue
			}
			t := classify(v)
			if t == "" {
				continue
			}
			sampled++

			if candidate == "" {
				candidate = t
				continue
			}
			candidate = widen(candidate, t)
		}

		if candidate == "" {
			candidate = TypeText
		}
		out = append(out, Column{Name: name, Type: candidate})
	}

	return out
}

// classify returns the narrowest FieldType a single value fits, or "" for
// empty strings (which carry no type information).
func classify(v any) FieldType {
	switch val := v.(type) {
	case bool:
		return TypeBoolean
	case float64:
		// The JSON decoder gives us float64 for all numbers.
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return TypeLong
		}
		return TypeDouble
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return ""
		}
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			return TypeLong
		}
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return TypeDouble
		}
		switch strings.ToLower(s) {
		case "true", "false":
			return TypeBoolean
		}
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, s); err == nil {
				return TypeDate
			}
		}
		return TypeText
	default:
		return TypeText
	}
}

// widen returns the narrowest type that fits values of both a and b.
// Mixed longs and doubles stay numeric; anything else incompatible
// collapses to text.
func widen(a, b FieldType) FieldType {
	if a == b {
		return a
	}
	if (a == TypeLong && b == TypeDouble) || (a == TypeDouble && b == TypeLong) {
		return TypeDouble
	}
	return TypeText
}

// BuildMapping constructs the index creation body for the given columns.
// Text columns get a keyword sub-field so they can be aggregated and sorted.
// Columns marked Embed additionally get a "<name>_embedding" knn_vector
// field (hnsw, lucene engine) and the index is created with knn enabled.
func BuildMapping(columns []Column, dimension int) map[string]any {
	properties := map[string]any{}
	hasKNN := false

	for _, col := range columns {
		if col.Type == TypeText {
			properties[col.Name] = map[string]any{
				"type": "text",
				"fields": map[string]any{
					"keyword": map[string]any{"type": "keyword"},
				},
			}
		} else {
			properties[col.Name] = map[string]any{"type": string(col.Type)}
		}

		if col.Embed {
			hasKNN = true
			properties[col.Name+"_embedding"] = map[string]any{
				"type":      "knn_vector",
				"dimension": dimension,
				"method": map[string]any{
					"name":   "hnsw",
					"engine": "lucene",
				},
			}
		}
	}

	return map[string]any{
		"settings": map[string]any{
			"index": map[string]any{
				"knn":                hasKNN,
				"number_of_shards":   1,
				"number_of_replicas": 0,
			},
		},
		"mappings": map[string]any{
			"properties": properties,
		},
	}
}

// EmbedColumns returns the names of columns marked for embedding.
func EmbedColumns(columns []Column) []string {
	var out []string
	for _, col := range columns {
		if col.Embed {
			out = append(out, col.Name)
		}
	}
	return out
}

// ConvertRecords coerces raw string values (as produced by the CSV reader)
// into the inferred column types so the indexed documents carry real JSON
// numbers and booleans. Values that fail to convert are kept as strings and
// left for OpenSearch coercion to reject or accept.
func ConvertRecords(records []Record, columns []Column) {
	types := make(map[string]FieldType, len(columns))
	for _, col := range columns {
		types[col.Name] = col.Type
	}

	for _, rec := range records {
		for name, v := range rec {
			s, ok := v.(string)
			if !ok {
				continue
			}
			switch types[name] {
			case TypeLong:
				if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
					rec[name] = n
				}
			case TypeDouble:
				if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
					rec[name] = f
				}
			case TypeBoolean:
				if b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(s))); err == nil {
					rec[name] = b
				}
			}
		}
	}
}

// Report summarizes a parsed file for the upload preview: the inferred
// columns, the total row count, and up to previewRows sample records.
type Report struct {
	Columns []Column `json:"columns"`
	Rows    int      `json:"rows"`
	Preview []Record `json:"preview,omitempty"`
}

// NewReport parses and analyzes an uploaded file in one step.
func NewReport(records []Record, columns []string, previewRows int) Report {
	cols := InferColumns(records, columns)
	r := Report{Columns: cols, Rows: len(records)}
	if previewRows > len(records) {
		previewRows = len(records)
	}
	if previewRows > 0 {
		r.Preview = records[:previewRows]
	}
	return r
}

// ApplyOverrides replaces inferred column settings with caller-provided
// ones, matched by name. Unknown names are an error so typos in a commit
// request surface instead of silently indexing with the inferred type.
func ApplyOverrides(columns []Column, overrides []Column) ([]Column, error) {
	byName := make(map[string]int, len(columns))
	for i, col := range columns {
		byName[col.Name] = i
	}

	out := make([]Column, len(columns))
	copy(out, columns)

	for _, ov := range overrides {
		i, ok := byName[ov.Name]
		if !ok {
			return nil, fmt.Errorf("ingestion: unknown column %q in overrides", ov.Name)
		}
		if ov.Type != "" {
			out[i].Type = ov.Type
		}
		out[i].Embed = ov.Embed
	}

	return out, nil
}
