package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteSchemaCoversEveryChannel(t *testing.T) {
	out := filepath.Join(t.TempDir(), "schema", "protocol.json")
	if err := writeSchema(out, buildSchema()); err != nil {
		t.Fatalf("write schema: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	var doc struct {
		Title      string                     `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if doc.Title == "" {
		t.Fatalf("expected a schema title")
	}
	for _, channel := range []string{"INIT", "UPDATE", "REMOVE", "ASSIGN_ID", "LOADING", "SEND_OBJECT", "KEY_INPUT", "GET_OBJECT"} {
		if _, ok := doc.Properties[channel]; !ok {
			t.Fatalf("expected schema to describe %s", channel)
		}
	}
}
