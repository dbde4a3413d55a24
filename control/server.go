// Package control exposes the HTTP management API consumed by GUI and
// automation collaborators. It mirrors the lifecycle manager: catalog
// browsing, install, start, and stop.
package control

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/relayforge/mcpgate/catalog"
	"github.com/relayforge/mcpgate/diag"
	"github.com/relayforge/mcpgate/lifecycle"
)

// ServerConfig controls control API dependencies.
type ServerConfig struct {
	Catalog *catalog.Catalog
	Manager *lifecycle.Manager
	Version string
	Logger  *slog.Logger
}

// Server serves the management API.
type Server struct {
	catalog *catalog.Catalog
	manager *lifecycle.Manager
	version string
	logger  *slog.Logger
}

// NewServer constructs a control API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Catalog == nil || cfg.Manager == nil {
		return nil, errors.New("control: catalog and manager are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Server{
		catalog: cfg.Catalog,
		manager: cfg.Manager,
		version: cfg.Version,
		logger:  cfg.Logger,
	}, nil
}

// Handler returns an http.Handler exposing the management API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/servers", s.handleListServers)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("POST /api/servers/install", s.handleInstall)
	mux.HandleFunc("POST /api/servers/{id}/start", s.handleStart)
	mux.HandleFunc("POST /api/servers/{id}/stop", s.handleStop)

	return mux
}

type apiErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type apiErrorResponse struct {
	Error apiErrorDetail `json:"error"`
}

// serverView merges the catalog row with the live installation record.
type serverView struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	Description    string               `json:"description,omitempty"`
	Category       string               `json:"category"`
	Runtime        catalog.Runtime      `json:"runtime"`
	ToolCount      int                  `json:"tool_count,omitempty"`
	RequiredEnv    []string             `json:"required_env,omitempty"`
	State          lifecycle.State      `json:"state"`
	InstallPath    string               `json:"install_path,omitempty"`
	HealthFailures int                  `json:"health_failures,omitempty"`
	Log            []string             `json:"log,omitempty"`
	Errors         []diag.EnhancedError `json:"errors,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         s.version,
		"running_servers": s.manager.RunningIDs(),
	})
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	views := make([]serverView, 0, s.catalog.Len())
	for _, def := range s.catalog.All() {
		view := serverView{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Category:    catalog.CategoryFor(def),
			Runtime:     def.Runtime,
			ToolCount:   def.ToolCount,
			RequiredEnv: def.RequiredEnv,
			State:       lifecycle.StateNotInstalled,
		}
		if inst, ok := s.manager.Installation(def.ID); ok {
			view.State = inst.State
			view.InstallPath = inst.InstallPath
			view.HealthFailures = inst.HealthFailures
			view.Log = inst.Log
		}
		view.Errors = s.manager.Errors().For(def.ID)
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": views})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)
	for _, def := range s.catalog.All() {
		counts[catalog.CategoryFor(def)]++
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": counts})
}

type installRequest struct {
	ServerID string            `json:"server_id"`
	Config   map[string]string `json:"config,omitempty"`
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	var req installRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON", nil)
		return
	}
	if strings.TrimSpace(req.ServerID) == "" {
		writeJSONError(w, http.StatusBadRequest, "MISSING_SERVER_ID", "server_id is required", nil)
		return
	}

	if err := s.manager.Install(r.Context(), req.ServerID, req.Config); err != nil {
		s.writeManagerError(w, err)
		return
	}
	s.logger.Info("install accepted", "backend", req.ServerID)
	writeJSON(w, http.StatusOK, map[string]any{
		"server_id": req.ServerID,
		"state":     lifecycle.StateInstalling,
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.manager.Start(r.Context(), id); err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"server_id": id,
		"state":     lifecycle.StateRunning,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.manager.Stop(r.Context(), id); err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"server_id": id,
		"state":     lifecycle.StateStopped,
	})
}

func (s *Server) writeManagerError(w http.ResponseWriter, err error) {
	if errors.Is(err, lifecycle.ErrUnknownBackend) {
		writeJSONError(w, http.StatusNotFound, "UNKNOWN_SERVER", err.Error(), nil)
		return
	}
	writeJSONError(w, http.StatusConflict, "LIFECYCLE_ERROR", err.Error(), nil)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
