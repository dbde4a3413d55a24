package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewRejectsDuplicateIDs(t *testing.T) {
	_, err := New([]Definition{
		{ID: "github"},
		{ID: "github"},
	})
	if err == nil {
		t.Fatal("New() expected error for duplicate ids")
	}
}

func TestNewRejectsEmptyID(t *testing.T) {
	if _, err := New([]Definition{{ID: "  "}}); err == nil {
		t.Fatal("New() expected error for empty id")
	}
}

func TestAllSortedByID(t *testing.T) {
	cat, err := New([]Definition{{ID: "zeta"}, {ID: "alpha"}, {ID: "mid"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	all := cat.All()
	want := []string{"alpha", "mid", "zeta"}
	for i, def := range all {
		if def.ID != want[i] {
			t.Fatalf("All()[%d].ID = %q, want %q", i, def.ID, want[i])
		}
	}
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		want string
	}{
		{"explicit wins", Definition{ID: "github", Category: "custom"}, "custom"},
		{"known default", Definition{ID: "filesystem"}, "file_management"},
		{"falls back to id", Definition{ID: "obscure-backend"}, "obscure-backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryFor(tt.def); got != tt.want {
				t.Fatalf("CategoryFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := `backends:
  - id: fetch
    name: Fetch
    source: https://example.com/fetch.git
    runtime: python
    command: python
    args: ["-m", "mcp_server_fetch"]
    category: web
  - id: notes
    name: Notes
    source: https://example.com/notes.git
    runtime: node
    command: node
    args: ["dist/index.js"]
    required_env: [NOTES_TOKEN]
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", cat.Len())
	}

	def, ok := cat.Get("notes")
	if !ok {
		t.Fatal("Get(notes) not found")
	}
	if def.Runtime != RuntimeNode {
		t.Fatalf("Runtime = %q, want %q", def.Runtime, RuntimeNode)
	}
	if len(def.RequiredEnv) != 1 || def.RequiredEnv[0] != "NOTES_TOKEN" {
		t.Fatalf("RequiredEnv = %v, want [NOTES_TOKEN]", def.RequiredEnv)
	}
}

func TestLoadRejectsEmptyCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("backends: []\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for empty backend list")
	}
}

func TestDefaultCatalogIsValid(t *testing.T) {
	cat := Default()
	if cat.Len() == 0 {
		t.Fatal("Default() returned an empty catalog")
	}
	for _, def := range cat.All() {
		if def.Source == "" || def.Command == "" {
			t.Fatalf("definition %q is missing source or command", def.ID)
		}
	}
}
