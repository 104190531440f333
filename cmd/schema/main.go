// Command schema writes the JSON Schema of the match sync wire format.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/mysticduel/duel-server/internal/netsync"
)

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema (stdout when empty)")
	flag.Parse()

	data, err := json.MarshalIndent(buildSchemas(), "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal schema: %v\n", err)
		os.Exit(1)
	}
	data = append(data, '\n')

	if outPath == "" {
		os.Stdout.Write(data)
		return
	}
	if err := writeSchema(outPath, data); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	reflect := func(v any, title, description string) *jsonschema.Schema {
		s := reflector.Reflect(v)
		s.Title = title
		s.Description = description
		return s
	}
	return map[string]*jsonschema.Schema{
		"envelope": reflect(new(netsync.Envelope), "Sync Envelope", "Every websocket message: a type, a sequence number and a typed payload."),
		"action":   reflect(new(netsync.ActionPayload), "Action Payload", "Payload of initDeck, playCard, declareAttack and endTurn requests."),
		"state":    reflect(new(netsync.StatePayload), "State Payload", "Authoritative match snapshot with the events that produced it."),
		"reject":   reflect(new(netsync.RejectPayload), "Reject Payload", "Rules violation returned for a refused request."),
		"pause":    reflect(new(netsync.PausePayload), "Pause Payload", "Why the authority paused the match."),
	}
}

func writeSchema(outPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}
	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
