package ingestion

import (
	"strings"
	"testing"
)

// ---
// Parsing
// ---

func TestParseCSV(t *testing.T) {
	t.Parallel()

	input := "name,price,in_stock\nUSB-C Cable,9.99,true\nDesk Lamp,24,false\n"
	records, columns, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}

	if len(columns) != 3 || columns[0] != "name" || columns[2] != "in_stock" {
		t.Errorf("unexpected columns: %v", columns)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// CSV values stay raw strings until conversion.
	if records[0]["price"] != "9.99" {
		t.Errorf("expected raw string price, got %v (%T)", records[0]["price"], records[0]["price"])
	}
}

func TestParseCSV_Empty(t *testing.T) {
	t.Parallel()

	if _, _, err := ParseCSV(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestParseJSONL(t *testing.T) {
	t.Parallel()

	input := `{"name":"USB-C Cable","price":9.99}
{"name":"Desk Lamp","price":24,"rating":4.5}
`
	records, columns, err := ParseJSONL(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseJSONL failed: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// Union of keys, sorted.
	want := []string{"name", "price", "rating"}
	if len(columns) != len(want) {
		t.Fatalf("unexpected columns: %v", columns)
	}
	for i := range want {
		if columns[i] != want[i] {
			t.Errorf("columns[%d] = %q, want %q", i, columns[i], want[i])
		}
	}
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	if f, err := DetectFormat("products.csv"); err != nil || f != FormatCSV {
		t.Errorf("DetectFormat(csv) = %v, %v", f, err)
	}
	if f, err := DetectFormat("events.ndjson"); err != nil || f != FormatJSONL {
		t.Errorf("DetectFormat(ndjson) = %v, %v", f, err)
	}
	if _, err := DetectFormat("report.xlsx"); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

// ---
// Type inference
// ---

func TestInferColumns(t *testing.T) {
	t.Parallel()

	records := []Record{
		{"name": "USB-C Cable", "price": "9.99", "stock": "120", "active": "true", "added": "2024-03-01"},
		{"name": "Desk Lamp", "price": "24.50", "stock": "43", "active": "false", "added": "2024-03-05"},
	}
	columns := []string{"name", "price", "stock", "active", "added"}

	got := InferColumns(records, columns)
	want := map[string]FieldType{
		"name":   TypeText,
		"price":  TypeDouble,
		"stock":  TypeLong,
		"active": TypeBoolean,
		"added":  TypeDate,
	}
	for _, col := range got {
		if col.Type != want[col.Name] {
			t.Errorf("column %s inferred as %s, want %s", col.Name, col.Type, want[col.Name])
		}
	}
}

func TestInferColumns_MixedNumbers(t *testing.T) {
	t.Parallel()

	records := []Record{
		{"v": "1"},
		{"v": "2.5"},
	}
	got := InferColumns(records, []string{"v"})
	if got[0].Type != TypeDouble {
		t.Errorf("mixed long/double inferred as %s, want double", got[0].Type)
	}
}

func TestInferColumns_MixedIncompatible(t *testing.T) {
	t.Parallel()

	records := []Record{
		{"v": "42"},
		{"v": "hello"},
	}
	got := InferColumns(records, []string{"v"})
	if got[0].Type != TypeText {
		t.Errorf("mixed long/text inferred as %s, want text", got[0].Type)
	}
}

func TestInferColumns_EmptyColumn(t *testing.T) {
	t.Parallel()

	records := []Record{{"v": ""}, {"v": ""}}
	got := InferColumns(records, []string{"v"})
	if got[0].Type != TypeText {
		t.Errorf("empty column inferred as %s, want text", got[0].Type)
	}
}

func TestInferColumns_JSONTypes(t *testing.T) {
	t.Parallel()

	records := []Record{
		{"count": float64(3), "score": 4.5, "ok": true},
	}
	got := InferColumns(records, []string{"count", "score", "ok"})
	want := map[string]FieldType{"count": TypeLong, "score": TypeDouble, "ok": TypeBoolean}
	for _, col := range got {
		if col.Type != want[col.Name] {
			t.Errorf("column %s inferred as %s, want %s", col.Name, col.Type, want[col.Name])
		}
	}
}

// ---
// Mapping and conversion
// ---

func TestBuildMapping(t *testing.T) {
	t.Parallel()

	columns := []Column{
		{Name: "name", Type: TypeText},
		{Name: "price", Type: TypeDouble},
		{Name: "description", Type: TypeText, Embed: true},
	}
	body := BuildMapping(columns, 384)

	settings := body["settings"].(map[string]any)["index"].(map[string]any)
	if settings["knn"] != true {
		t.Error("knn should be enabled when a column is marked for embedding")
	}

	props := body["mappings"].(map[string]any)["properties"].(map[string]any)
	name := props["name"].(map[string]any)
	if name["type"] != "text" {
		t.Errorf("name type = %v", name["type"])
	}
	if _, ok := name["fields"].(map[string]any)["keyword"]; !ok {
		t.Error("text column missing keyword sub-field")
	}

	vec := props["description_embedding"].(map[string]any)
	if vec["type"] != "knn_vector" || vec["dimension"] != 384 {
		t.Errorf("unexpected vector field: %v", vec)
	}
	method := vec["method"].(map[string]any)
	if method["name"] != "hnsw" || method["engine"] != "lucene" {
		t.Errorf("unexpected knn method: %v", method)
	}
}

func TestBuildMapping_NoEmbedding(t *testing.T) {
	t.Parallel()

	body := BuildMapping([]Column{{Name: "name", Type: TypeText}}, 0)
	settings := body["settings"].(map[string]any)["index"].(map[string]any)
	if settings["knn"] != false {
		t.Error("knn should be disabled with no embedded columns")
	}
}

func TestConvertRecords(t *testing.T) {
	t.Parallel()

	records := []Record{
		{"price": "9.99", "stock": "120", "active": "true", "name": "Cable"},
	}
	columns := []Column{
		{Name: "price", Type: TypeDouble},
		{Name: "stock", Type: TypeLong},
		{Name: "active", Type: TypeBoolean},
		{Name: "name", Type: TypeText},
	}
	ConvertRecords(records, columns)

	rec := records[0]
	if rec["price"] != 9.99 {
		t.Errorf("price = %v (%T)", rec["price"], rec["price"])
	}
	if rec["stock"] != int64(120) {
		t.Errorf("stock = %v (%T)", rec["stock"], rec["stock"])
	}
	if rec["active"] != true {
		t.Errorf("active = %v (%T)", rec["active"], rec["active"])
	}
	if rec["name"] != "Cable" {
		t.Errorf("name = %v", rec["name"])
	}
}

func TestApplyOverrides(t *testing.T) {
	t.Parallel()

	inferred := []Column{
		{Name: "name", Type: TypeText},
		{Name: "description", Type: TypeText},
	}

	got, err := ApplyOverrides(inferred, []Column{{Name: "description", Embed: true}})
	if err != nil {
		t.Fatalf("ApplyOverrides failed: %v", err)
	}
	if !got[1].Embed || got[1].Type != TypeText {
		t.Errorf("override not applied: %+v", got[1])
	}
	if got[0].Embed {
		t.Error("untouched column gained Embed")
	}

	if _, err := ApplyOverrides(inferred, []Column{{Name: "nope"}}); err == nil {
		t.Error("expected error for unknown column name")
	}
}

func TestNewReport(t *testing.T) {
	t.Parallel()

	records := []Record{
		{"name": "Cable"},
		{"name": "Lamp"},
		{"name": "Mouse"},
	}
	r := NewReport(records, []string{"name"}, 2)
	if r.Rows != 3 || len(r.Preview) != 2 || len(r.Columns) != 1 {
		t.Errorf("unexpected report: %+v", r)
	}
}
