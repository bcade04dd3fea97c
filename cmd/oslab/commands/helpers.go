package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/machzqcq/oslab-go/internal/osclient"
)

// newClient builds the OpenSearch client from the environment.
func newClient() (*osclient.Client, error) {
	client, err := osclient.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("connect to opensearch: %w", err)
	}
	return client, nil
}

// printJSON pretty-prints v to stdout. Used by inspection commands whose
// output is meant to be piped into jq.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// readJSONFile decodes a JSON file into out. "-" reads stdin.
func readJSONFile(path string, out any) error {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
