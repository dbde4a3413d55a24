package lifecycle

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func sampleInstalls() []Installation {
	return []Installation{
		{
			BackendID:   "github",
			InstallPath: "/tmp/servers/github",
			State:       StateRunning,
			Env:         map[string]string{"GITHUB_PERSONAL_ACCESS_TOKEN": "ghp_x"},
			Log:         []string{"2026-01-01T00:00:00Z install complete"},
			InstalledAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			BackendID:   "fetch",
			InstallPath: "/tmp/servers/fetch",
			State:       StateInstalled,
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state", "installations.json"))
	ctx := context.Background()

	if err := store.Save(ctx, sampleInstalls()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Load()) = %d, want 2", len(got))
	}
	if got[0].BackendID != "fetch" || got[1].BackendID != "github" {
		t.Fatalf("order = [%s %s], want sorted by backend id", got[0].BackendID, got[1].BackendID)
	}
	if got[1].Env["GITHUB_PERSONAL_ACCESS_TOKEN"] != "ghp_x" {
		t.Fatal("env did not survive the round trip")
	}
}

func TestFileStoreLoadMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Load() = %v, want empty", got)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(SQLiteStoreConfig{
		DSN: filepath.Join(t.TempDir(), "mcpgate.db"),
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer func() {
		_ = store.Close()
	}()
	ctx := context.Background()

	if err := store.Save(ctx, sampleInstalls()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Save replaces the snapshot wholesale.
	if err := store.Save(ctx, sampleInstalls()[:1]); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(Load()) = %d, want 1", len(got))
	}
	if got[0].BackendID != "github" {
		t.Fatalf("BackendID = %q, want github", got[0].BackendID)
	}
}

func TestSQLiteStoreRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(SQLiteStoreConfig{}); err == nil {
		t.Fatal("NewSQLiteStore() expected error for empty DSN")
	}
}
