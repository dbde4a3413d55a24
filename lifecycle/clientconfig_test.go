package lifecycle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readConfig(t *testing.T, path string) map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return doc
}

func TestUpsertClientEntryCreatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client", "config.json")

	if err := UpsertClientEntry(path, "mcpgate", "/usr/local/bin/mcpgate", []string{"serve"}); err != nil {
		t.Fatalf("UpsertClientEntry() error = %v", err)
	}

	command, ok, err := ClientEntryCommand(path, "mcpgate")
	if err != nil {
		t.Fatalf("ClientEntryCommand() error = %v", err)
	}
	if !ok || command != "/usr/local/bin/mcpgate" {
		t.Fatalf("command = %q ok=%v, want /usr/local/bin/mcpgate", command, ok)
	}
}

func TestUpsertClientEntryDropsBrokenEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	seed := `{
  "mcpServers": {
    "broken": {"command": "", "args": []},
    "healthy": {"command": "other-gateway", "args": ["run"]}
  },
  "theme": "dark"
}`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if err := UpsertClientEntry(path, "mcpgate", "mcpgate", []string{"serve"}); err != nil {
		t.Fatalf("UpsertClientEntry() error = %v", err)
	}

	doc := readConfig(t, path)
	var servers map[string]json.RawMessage
	if err := json.Unmarshal(doc["mcpServers"], &servers); err != nil {
		t.Fatalf("Unmarshal(mcpServers) error = %v", err)
	}
	if _, found := servers["broken"]; found {
		t.Fatal("broken entry survived cleanup")
	}
	if _, found := servers["healthy"]; !found {
		t.Fatal("healthy entry was dropped")
	}
	if _, found := servers["mcpgate"]; !found {
		t.Fatal("gateway entry was not written")
	}
	if _, found := doc["theme"]; !found {
		t.Fatal("unrelated top-level field was dropped")
	}
}

func TestUpsertClientEntryIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	for i := 0; i < 2; i++ {
		if err := UpsertClientEntry(path, "mcpgate", "mcpgate", []string{"serve"}); err != nil {
			t.Fatalf("UpsertClientEntry() #%d error = %v", i, err)
		}
	}

	doc := readConfig(t, path)
	var servers map[string]clientEntry
	if err := json.Unmarshal(doc["mcpServers"], &servers); err != nil {
		t.Fatalf("Unmarshal(mcpServers) error = %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("len(servers) = %d, want 1", len(servers))
	}
}

func TestClientEntryCommandMissingConfig(t *testing.T) {
	_, ok, err := ClientEntryCommand(filepath.Join(t.TempDir(), "absent.json"), "mcpgate")
	if err != nil {
		t.Fatalf("ClientEntryCommand() error = %v", err)
	}
	if ok {
		t.Fatal("ok = true for missing config")
	}
}
