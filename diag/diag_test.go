package diag

import (
	"fmt"
	"testing"
)

func TestGitCloneErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		details    string
		wantAction string
	}{
		{"network failure", "fatal: unable to access: Could not resolve host github.com", "check_network"},
		{"auth failure", "remote: HTTP Basic: Authentication failed", "check_credentials"},
		{"stale dir", "fatal: destination path 'x' already exists and is not an empty directory", "remove_stale_dir"},
		{"missing repo", "ERROR: Repository not found", "check_source"},
		{"unclassified", "something exploded", "retry_install"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := GitCloneError("github", tt.details)
			if e.Stage != StageGitClone {
				t.Fatalf("Stage = %q, want %q", e.Stage, StageGitClone)
			}
			if len(e.Suggestions) == 0 {
				t.Fatal("no suggestions recorded")
			}
			if got := e.Suggestions[0].Action; got != tt.wantAction {
				t.Fatalf("Suggestions[0].Action = %q, want %q", got, tt.wantAction)
			}
			if e.Context["backend_id"] != "github" {
				t.Fatalf("Context[backend_id] = %q, want github", e.Context["backend_id"])
			}
		})
	}
}

func TestNpmInstallErrorPeerDeps(t *testing.T) {
	e := NpmInstallError("slack", "npm ERR! ERESOLVE unable to resolve dependency tree")
	if len(e.Suggestions) == 0 || !e.Suggestions[0].AutoFix {
		t.Fatalf("expected auto-fixable suggestion, got %+v", e.Suggestions)
	}
}

func TestToolDiscoveryErrorIsWarning(t *testing.T) {
	e := ToolDiscoveryError("memory", "context deadline exceeded")
	if e.Severity != SeverityWarning {
		t.Fatalf("Severity = %q, want %q", e.Severity, SeverityWarning)
	}
}

func TestHistoryRingEviction(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 15; i++ {
		h.Record("fetch", StartupError("fetch", fmt.Sprintf("failure %d", i)))
	}

	got := h.For("fetch")
	if len(got) != historyLimit {
		t.Fatalf("len(For()) = %d, want %d", len(got), historyLimit)
	}
	if got[0].Details != "failure 5" {
		t.Fatalf("oldest retained = %q, want %q", got[0].Details, "failure 5")
	}
	if got[len(got)-1].Details != "failure 14" {
		t.Fatalf("newest retained = %q, want %q", got[len(got)-1].Details, "failure 14")
	}
}

func TestHistoryClear(t *testing.T) {
	h := NewHistory()
	h.Record("fetch", GitCloneError("fetch", "boom"))
	h.Record("github", GitCloneError("github", "boom"))

	h.Clear("fetch")
	if len(h.For("fetch")) != 0 {
		t.Fatal("Clear() did not drop records")
	}
	if len(h.For("github")) != 1 {
		t.Fatal("Clear() affected another backend")
	}
}

func TestHistoryForReturnsCopy(t *testing.T) {
	h := NewHistory()
	h.Record("fetch", GitCloneError("fetch", "boom"))

	first := h.For("fetch")
	first[0].Details = "mutated"
	if h.For("fetch")[0].Details == "mutated" {
		t.Fatal("For() exposed internal storage")
	}
}
