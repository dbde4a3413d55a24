package control

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/relayforge/mcpgate/catalog"
	"github.com/relayforge/mcpgate/lifecycle"
)

type nopRunner struct{}

func (nopRunner) Run(_ context.Context, dir string, name string, args ...string) (string, error) {
	if name == "git" && len(args) > 0 && args[0] == "clone" {
		return "", os.MkdirAll(args[len(args)-1], 0o750)
	}
	return "", nil
}

func newTestAPI(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()

	cat, err := catalog.New([]catalog.Definition{
		{ID: "github", Name: "GitHub", Source: "https://example.com/g.git", Category: "development"},
		{ID: "fetch", Name: "Fetch", Source: "https://example.com/f.git", Category: "web"},
	})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}

	manager, err := lifecycle.NewManager(context.Background(), lifecycle.ManagerConfig{
		Catalog:     cat,
		InstallRoot: root,
		Runner:      nopRunner{},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	srv, err := NewServer(ServerConfig{
		Catalog: cat,
		Manager: manager,
		Version: "test",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv, root
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestAPI(t)
	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("body = %v", body)
	}
}

func TestListServers(t *testing.T) {
	srv, _ := newTestAPI(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/servers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Servers []serverView `json:"servers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(body.Servers) != 2 {
		t.Fatalf("len(servers) = %d, want 2", len(body.Servers))
	}
	for _, view := range body.Servers {
		if view.State != lifecycle.StateNotInstalled {
			t.Fatalf("server %s state = %q, want not_installed", view.ID, view.State)
		}
	}
}

func TestCategoriesEndpoint(t *testing.T) {
	srv, _ := newTestAPI(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/categories", "")

	var body struct {
		Categories map[string]int `json:"categories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if body.Categories["development"] != 1 || body.Categories["web"] != 1 {
		t.Fatalf("categories = %v", body.Categories)
	}
}

func TestInstallValidation(t *testing.T) {
	srv, _ := newTestAPI(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/servers/install", `{`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/servers/install", `{"server_id":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty server_id: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/servers/install", `{"server_id":"unknown"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown server: status = %d, want 404", rec.Code)
	}
}

func TestInstallAccepted(t *testing.T) {
	srv, _ := newTestAPI(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/servers/install",
		`{"server_id":"github","config":{"GITHUB_PERSONAL_ACCESS_TOKEN":"ghp_x"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if body["state"] != string(lifecycle.StateInstalling) {
		t.Fatalf("state = %v, want installing", body["state"])
	}
}

func TestStartUnknownServer(t *testing.T) {
	srv, _ := newTestAPI(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/servers/ghost/start", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStartNotInstalled(t *testing.T) {
	srv, _ := newTestAPI(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/servers/github/start", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestStopIsAlwaysSafe(t *testing.T) {
	srv, _ := newTestAPI(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/servers/github/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for no-op stop", rec.Code)
	}
}
