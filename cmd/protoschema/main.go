package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"spool/server/internal/net/proto"
)

// wireProtocol groups every payload so one document describes the protocol.
type wireProtocol struct {
	Init         proto.InitPayload       `json:"INIT" jsonschema:"description=Full snapshots for newly visible entities"`
	Update       proto.UpdatePayload     `json:"UPDATE" jsonschema:"description=Per-tick changed fields grouped by type"`
	Remove       proto.RemovePayload     `json:"REMOVE" jsonschema:"description=Ids removed since the last tick"`
	AssignID     proto.AssignIDPayload   `json:"ASSIGN_ID" jsonschema:"description=Connection id and controlled entity"`
	Loading      proto.LoadingPayload    `json:"LOADING"`
	SendObject   proto.SendObjectPayload `json:"SEND_OBJECT" jsonschema:"description=Portal answer or push for a subscribed entity"`
	KeyInput     proto.KeyInput          `json:"KEY_INPUT"`
	GetObject    proto.ObjectRequest     `json:"GET_OBJECT"`
	PointerInput any                     `json:"POINTER_INPUT,omitempty" jsonschema:"description=Opaque pointer payload forwarded to the observer"`
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(new(wireProtocol))
	schema.Title = "Spool wire protocol"
	schema.Description = fmt.Sprintf("Payloads exchanged over the websocket transport, protocol version %d", proto.Version)
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
