// Package ingestion implements the file ingestion pipeline. It parses
// uploaded CSV or JSONL files into records, infers an OpenSearch field type
// for each column from sampled values, builds the index mapping (including
// knn_vector fields for columns selected for embedding), and bulk-indexes
// the records. This pipeline backs both the `oslab ingest` CLI command and
// the server's upload endpoints.
package ingestion

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

// Format identifies a supported input file format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// Record is a single parsed row. CSV values are raw strings until
// ConvertRecords applies the inferred column types; JSONL values keep the
// types the JSON decoder produced.
type Record map[string]any

// DetectFormat returns the Format for a filename based on its extension.
func DetectFormat(filename string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		return FormatCSV, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("ingestion: unsupported file format %q (expected .csv or .jsonl)", ext)
	}
}

// Parse reads all records from r in the given format. It returns the records
// and the column names in first-seen order.
func Parse(r io.Reader, format Format) ([]Record, []string, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(r)
	case FormatJSONL:
		return ParseJSONL(r)
	default:
		return nil, nil, fmt.Errorf("ingestion: unknown format %q", format)
	}
}

// ParseCSV reads a CSV file with a header row. Every value is kept as a raw
// string; type conversion happens later against the inferred column types.
func ParseCSV(r io.Reader) ([]Record, []string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("ingestion: empty CSV input")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("ingestion: read CSV header: %w", err)
	}

	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.TrimSpace(name)
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("ingestion: read CSV line %d: %w", line, err)
		}

		rec := make(Record, len(columns))
		for i, col := range columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}

	return records, columns, nil
}

// ParseJSONL reads newline-delimited JSON objects. Columns are the union of
// keys across all records, sorted alphabetically for a stable report.
func ParseJSONL(r io.Reader) ([]Record, []string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		records []Record
		columns []string
		seen    = map[string]bool{}
	)

	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, nil, fmt.Errorf("ingestion: parse JSONL line %d: %w", line, err)
		}

		for col := range rec {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("ingestion: scan JSONL: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("ingestion: empty JSONL input")
	}
	sort.Strings(columns)

	return records, columns, nil
}
