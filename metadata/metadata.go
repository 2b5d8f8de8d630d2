// Package metadata parses and validates the manifest inside an extracted
// archive and resolves it to exactly one Command.
//
// A Metadata value only exists if the manifest decoded, passed the schema
// and named a known action. Payload files are never opened here.
package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cfm/securedrop-client/interfaces"
)

// FileName is the manifest location relative to the work directory.
const FileName = "metadata.json"

// MaxSize bounds the manifest; anything larger is rejected unread.
const MaxSize = 64 << 10

// EncryptionMethodLUKS is the only supported volume encryption.
const EncryptionMethodLUKS = "luks"

var (
	ErrParse          = errors.New("metadata parse error")
	ErrSchema         = errors.New("metadata schema error")
	ErrUnknownCommand = errors.New("unknown command")
)

// Metadata is the validated manifest. Its fields are set once by Parse.
type Metadata struct {
	command          interfaces.Command
	exportMethod     string
	encryptionMethod string
	encryptionKey    string
}

// Command returns the resolved action.
func (m *Metadata) Command() interfaces.Command { return m.command }

// ExportMethod returns the action string as declared in the manifest.
func (m *Metadata) ExportMethod() string { return m.exportMethod }

// EncryptionMethod is "luks" for volume actions, empty otherwise.
func (m *Metadata) EncryptionMethod() string { return m.encryptionMethod }

// EncryptionKey is the volume passphrase for volume actions, empty otherwise.
func (m *Metadata) EncryptionKey() string { return m.encryptionKey }

// LogValue keeps the passphrase out of logs.
func (m *Metadata) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("command", m.command.String()),
		slog.String("family", string(m.command.Family())),
		slog.String("encryptionMethod", m.encryptionMethod),
		slog.Bool("hasEncryptionKey", m.encryptionKey != ""),
	)
}

// Parse reads, schema-checks and resolves the manifest in workDir.
func Parse(workDir string) (*Metadata, error) {
	data, err := readManifest(filepath.Join(workDir, FileName))
	if err != nil {
		return nil, interfaces.NewStatusError(interfaces.StatusErrorMetadataParsing, err)
	}
	return FromBytes(data)
}

// FromBytes validates a manifest already in memory.
func FromBytes(data []byte) (*Metadata, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, interfaces.NewStatusError(interfaces.StatusErrorMetadataParsing, fmt.Errorf("%w: %w", ErrParse, err))
	}
	if dec.More() {
		return nil, interfaces.NewStatusError(interfaces.StatusErrorMetadataParsing, fmt.Errorf("%w: trailing data after manifest", ErrParse))
	}

	if err := checkKeys(data); err != nil {
		return nil, interfaces.NewStatusError(interfaces.StatusErrorArchiveMetadata, fmt.Errorf("%w: %w", ErrSchema, err))
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, interfaces.NewStatusError(interfaces.StatusErrorGeneric, fmt.Errorf("compile schema: %w", err))
	}
	if err := schema.Validate(doc); err != nil {
		return nil, interfaces.NewStatusError(interfaces.StatusErrorArchiveMetadata, fmt.Errorf("%w: %w", ErrSchema, err))
	}

	// Read the fields from the document the schema accepted, by exact key.
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, interfaces.NewStatusError(interfaces.StatusErrorArchiveMetadata, fmt.Errorf("%w: manifest is not an object", ErrSchema))
	}
	exportMethod, _ := obj[keyExportMethod].(string)

	cmd, err := ResolveCommand(exportMethod)
	if err != nil {
		return nil, err
	}

	md := &Metadata{command: cmd, exportMethod: exportMethod}
	if cmd.NeedsVolumeKey() {
		md.encryptionMethod, _ = obj[keyEncryptionMethod].(string)
		md.encryptionKey, _ = obj[keyEncryptionKey].(string)
	}
	return md, nil
}

// ResolveCommand maps a declared action to its Command. Unknown actions are
// an error; there is no fallback action.
func ResolveCommand(exportMethod string) (interfaces.Command, error) {
	cmd, ok := interfaces.CommandFromString(exportMethod)
	if !ok {
		return interfaces.CommandUnknown, interfaces.NewStatusError(interfaces.StatusErrorUnknownCommand, fmt.Errorf("%w: %q", ErrUnknownCommand, exportMethod))
	}
	return cmd, nil
}

func readManifest(path string) ([]byte, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrParse, FileName)
	}
	if fi.Size() > MaxSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrParse, FileName, MaxSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrParse, FileName, MaxSize)
	}
	return data, nil
}
