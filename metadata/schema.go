package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cfm/securedrop-client/interfaces"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaID = "inmemory://metadata.json"

// Manifest keys. Only these exact spellings are read.
const (
	keyExportMethod     = "export_method"
	keyEncryptionMethod = "encryption_method"
	keyEncryptionKey    = "encryption_key"
)

// manifestSchema requires export_method for every manifest and the LUKS
// fields only for actions that unlock a volume. Unknown properties are
// allowed. The %s is replaced by the volume-key actions.
const manifestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["export_method"],
  "properties": {
    "export_method": {"type": "string", "minLength": 1},
    "encryption_method": {"type": "string"},
    "encryption_key": {"type": "string"}
  },
  "allOf": [
    {
      "if": {
        "properties": {"export_method": {"enum": %s}},
        "required": ["export_method"]
      },
      "then": {
        "required": ["encryption_method", "encryption_key"],
        "properties": {
          "encryption_method": {"enum": ["luks"]},
          "encryption_key": {"type": "string", "minLength": 1}
        }
      }
    }
  ]
}`

var compiledSchema = sync.OnceValues(compileSchema)

func compileSchema() (*jsonschema.Schema, error) {
	var keyed []string
	for _, cmd := range interfaces.AllCommands() {
		if cmd.NeedsVolumeKey() {
			keyed = append(keyed, cmd.String())
		}
	}
	enum, err := json.Marshal(keyed)
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(schemaID, strings.NewReader(fmt.Sprintf(manifestSchema, enum))); err != nil {
		return nil, err
	}
	return compiler.Compile(schemaID)
}

// checkKeys rejects top-level keys that are repeated or that differ from a
// manifest key only by case.
func checkKeys(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		// Not an object; the schema reports it.
		return nil
	}

	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate key %q", key)
		}
		seen[key] = struct{}{}
		for _, known := range []string{keyExportMethod, keyEncryptionMethod, keyEncryptionKey} {
			if key != known && strings.EqualFold(key, known) {
				return fmt.Errorf("key %q is ambiguous with %q", key, known)
			}
		}

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return err
		}
	}
	return nil
}
