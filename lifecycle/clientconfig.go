package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// clientEntry is one launcher entry in the downstream client config.
type clientEntry struct {
	Command string         `json:"command"`
	Args    []string       `json:"args"`
	Env     map[string]any `json:"env,omitempty"`
}

// clientConfigDocument is the downstream client's config file shape. Unknown
// top-level fields are preserved through Extra.
type clientConfigDocument struct {
	Servers map[string]json.RawMessage
	Extra   map[string]json.RawMessage
}

const clientServersKey = "mcpServers"

// UpsertClientEntry registers (or refreshes) this gateway's own launcher
// entry in the downstream client config. While rewriting, entries lacking
// both a command and a non-empty args array are dropped. The operation is
// idempotent.
func UpsertClientEntry(path, name, command string, args []string) error {
	if path == "" {
		return errors.New("lifecycle: client config path is empty")
	}
	if name == "" || command == "" {
		return errors.New("lifecycle: client entry name and command are required")
	}

	doc, err := loadClientConfig(path)
	if err != nil {
		return err
	}

	for key, raw := range doc.Servers {
		if key == name {
			continue
		}
		var entry clientEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			delete(doc.Servers, key)
			continue
		}
		if entry.Command == "" && len(entry.Args) == 0 {
			delete(doc.Servers, key)
		}
	}

	entry, err := json.Marshal(clientEntry{Command: command, Args: args})
	if err != nil {
		return fmt.Errorf("lifecycle: encode client entry: %w", err)
	}
	doc.Servers[name] = entry

	return saveClientConfig(path, doc)
}

// ClientEntryCommand returns the command recorded for the named entry, if
// the config and entry exist.
func ClientEntryCommand(path, name string) (string, bool, error) {
	doc, err := loadClientConfig(path)
	if err != nil {
		return "", false, err
	}
	raw, ok := doc.Servers[name]
	if !ok {
		return "", false, nil
	}
	var entry clientEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return "", false, nil
	}
	return entry.Command, entry.Command != "", nil
}

func loadClientConfig(path string) (clientConfigDocument, error) {
	doc := clientConfigDocument{
		Servers: map[string]json.RawMessage{},
		Extra:   map[string]json.RawMessage{},
	}

	// #nosec G304 -- path is the operator-configured client config location.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return doc, fmt.Errorf("lifecycle: read client config: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return doc, fmt.Errorf("lifecycle: decode client config: %w", err)
	}
	for key, value := range raw {
		if key == clientServersKey {
			if err := json.Unmarshal(value, &doc.Servers); err != nil {
				return doc, fmt.Errorf("lifecycle: decode client server map: %w", err)
			}
			continue
		}
		doc.Extra[key] = value
	}
	if doc.Servers == nil {
		doc.Servers = map[string]json.RawMessage{}
	}
	return doc, nil
}

func saveClientConfig(path string, doc clientConfigDocument) error {
	out := make(map[string]json.RawMessage, len(doc.Extra)+1)
	for key, value := range doc.Extra {
		out[key] = value
	}
	servers, err := json.Marshal(doc.Servers)
	if err != nil {
		return fmt.Errorf("lifecycle: encode client server map: %w", err)
	}
	out[clientServersKey] = servers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("lifecycle: encode client config: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("lifecycle: create client config dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("lifecycle: write temp client config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("lifecycle: replace client config: %w", err)
	}
	return nil
}

// wellKnownGatewayPaths lists locations probed when repairing a stale
// gateway path in the client config.
func wellKnownGatewayPaths() []string {
	paths := make([]string, 0, 4)
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, exe)
	}
	paths = append(paths, "/usr/local/bin/mcpgate")
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "go", "bin", "mcpgate"))
		paths = append(paths, filepath.Join(home, ".local", "bin", "mcpgate"))
	}
	return paths
}

// resolveGatewayPath probes well-known locations for a runnable gateway
// binary.
func resolveGatewayPath() (string, bool) {
	for _, candidate := range wellKnownGatewayPaths() {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}
