package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/relayforge/mcpgate/catalog"
	"github.com/relayforge/mcpgate/diag"
)

// ErrUnknownBackend is returned when an id has no catalog definition.
var ErrUnknownBackend = errors.New("lifecycle: unknown backend")

// ManagerConfig configures a Manager. Catalog and InstallRoot are required.
type ManagerConfig struct {
	Catalog     *catalog.Catalog
	Store       Store
	InstallRoot string

	// ClientConfigPath, GatewayName, GatewayCommand, and GatewayArgs drive
	// the downstream client config upkeep. Empty values disable it.
	ClientConfigPath string
	GatewayName      string
	GatewayCommand   string
	GatewayArgs      []string

	Runner Runner
	Errors *diag.History
	Logger *slog.Logger
	Now    func() time.Time
}

// Manager owns all installation records and their process handles. Every
// mutation happens under its lock and is persisted on success.
type Manager struct {
	cfg ManagerConfig

	mu       sync.RWMutex
	installs map[string]*Installation
}

// NewManager builds a manager and hydrates its registry: from the snapshot
// store when one loads, otherwise by scanning the install root.
func NewManager(ctx context.Context, cfg ManagerConfig) (*Manager, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("lifecycle: manager requires a catalog")
	}
	if strings.TrimSpace(cfg.InstallRoot) == "" {
		return nil, errors.New("lifecycle: manager requires an install root")
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if cfg.Errors == nil {
		cfg.Errors = diag.NewHistory()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Store == nil {
		cfg.Store = NewFileStore(DefaultSnapshotPath(cfg.InstallRoot))
	}

	m := &Manager{
		cfg:      cfg,
		installs: make(map[string]*Installation),
	}

	snapshot, err := cfg.Store.Load(ctx)
	if err != nil {
		cfg.Logger.Warn("snapshot load failed, rebuilding from disk", "error", err)
		snapshot = nil
	}
	if len(snapshot) > 0 {
		m.hydrateFromSnapshot(snapshot)
	} else {
		m.hydrateFromScan()
	}
	return m, nil
}

// hydrateFromSnapshot restores persisted records. Process handles never
// survive a restart, so every running entry degrades to installed; records
// whose install directory vanished degrade to not_installed.
func (m *Manager) hydrateFromSnapshot(snapshot []Installation) {
	now := m.cfg.Now()
	for _, rec := range snapshot {
		if _, known := m.cfg.Catalog.Get(rec.BackendID); !known {
			m.cfg.Logger.Warn("dropping snapshot entry with no catalog definition", "backend", rec.BackendID)
			continue
		}
		inst := rec
		if info, err := os.Stat(inst.InstallPath); err != nil || !info.IsDir() {
			inst.State = StateNotInstalled
		} else if inst.State != StateFailed && inst.State != StateNotInstalled {
			inst.State = StateInstalled
		}
		inst.UpdatedAt = now
		m.installs[inst.BackendID] = &inst
	}
}

// hydrateFromScan reconstructs records by scanning the install root for
// directories matching catalog ids.
func (m *Manager) hydrateFromScan() {
	entries, err := os.ReadDir(m.cfg.InstallRoot)
	if err != nil {
		return
	}
	now := m.cfg.Now()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		if _, known := m.cfg.Catalog.Get(id); !known {
			continue
		}
		installPath := filepath.Join(m.cfg.InstallRoot, id)
		env, _ := ReadEnvFile(filepath.Join(installPath, envFileName))
		m.installs[id] = &Installation{
			BackendID:   id,
			InstallPath: installPath,
			State:       StateInstalled,
			Env:         env,
			InstalledAt: now,
			UpdatedAt:   now,
		}
	}
}

func (m *Manager) installPath(id string) string {
	return filepath.Join(m.cfg.InstallRoot, id)
}

func (m *Manager) validateConfig(def catalog.Definition) ValidateConfig {
	return ValidateConfig{
		Def:              def,
		InstallPath:      m.installPath(def.ID),
		ClientConfigPath: m.cfg.ClientConfigPath,
		GatewayName:      m.cfg.GatewayName,
		GatewayCommand:   m.cfg.GatewayCommand,
		GatewayArgs:      m.cfg.GatewayArgs,
	}
}

// persistLocked snapshots the registry. The caller holds the lock.
func (m *Manager) persistLocked(ctx context.Context) {
	if m.cfg.Store == nil {
		return
	}
	out := make([]Installation, 0, len(m.installs))
	for _, inst := range m.installs {
		out = append(out, inst.clone())
	}
	if err := m.cfg.Store.Save(ctx, out); err != nil {
		m.cfg.Logger.Error("snapshot save failed", "error", err)
	}
}

// Installation returns a copy of one record.
func (m *Manager) Installation(id string) (Installation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.installs[id]
	if !ok {
		return Installation{}, false
	}
	return inst.clone(), true
}

// List returns copies of all records, sorted by backend id.
func (m *Manager) List() []Installation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Installation, 0, len(m.installs))
	for _, inst := range m.installs {
		out = append(out, inst.clone())
	}
	sortInstallations(out)
	return out
}

// Running reports whether the backend currently owns a live process.
func (m *Manager) Running(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.installs[id].Running()
}

// RunningIDs returns the ids of running backends in sorted order.
func (m *Manager) RunningIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.installs))
	for id, inst := range m.installs {
		if inst.Running() {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// LaunchSpec resolves how to spawn one instance of the backend. It does not
// require the backend to be running; the ephemeral relay spawns its own
// short-lived processes from the same spec.
func (m *Manager) LaunchSpec(id string) (LaunchSpec, error) {
	def, ok := m.cfg.Catalog.Get(id)
	if !ok {
		return LaunchSpec{}, fmt.Errorf("%w: %q", ErrUnknownBackend, id)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.installs[id]
	if !ok || inst.State == StateNotInstalled || inst.State == StateInstalling {
		return LaunchSpec{}, fmt.Errorf("lifecycle: backend %q is not installed", id)
	}
	return launchSpec(def, inst.InstallPath, inst.Env), nil
}

// Errors returns the diagnostic history shared with the install pipeline.
func (m *Manager) Errors() *diag.History {
	return m.cfg.Errors
}

// Start validates and launches a backend as a long-running process. The
// record transitions to running only after a successful spawn; validation
// gets one auto-fix pass before giving up.
func (m *Manager) Start(ctx context.Context, id string) error {
	def, ok := m.cfg.Catalog.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.installs[id]
	if !ok || inst.State == StateNotInstalled {
		return fmt.Errorf("lifecycle: backend %q is not installed", id)
	}
	switch inst.State {
	case StateInstalling:
		return fmt.Errorf("lifecycle: backend %q is mid-install", id)
	case StateRunning:
		return fmt.Errorf("lifecycle: backend %q is already running", id)
	case StateFailed:
		return fmt.Errorf("lifecycle: backend %q failed to install, reinstall it first", id)
	}

	vcfg := m.validateConfig(def)
	result := Validate(vcfg)
	if !result.Valid {
		if _, err := AutoFix(ctx, m.cfg.Runner, vcfg, result.Remediations); err != nil {
			m.cfg.Logger.Warn("auto-fix failed", "backend", id, "error", err)
		}
		result = Validate(vcfg)
	}
	if !result.Valid {
		details := describeIssues(result.Issues)
		m.cfg.Errors.Record(id, diag.StartupError(id, details))
		inst.appendLog("start blocked by validation: "+details, m.cfg.Now())
		m.persistLocked(ctx)
		return fmt.Errorf("lifecycle: backend %q failed validation: %s", id, details)
	}

	spec := launchSpec(def, inst.InstallPath, inst.Env)
	// #nosec G204 -- the command comes from the injected catalog.
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	if err := cmd.Start(); err != nil {
		m.cfg.Errors.Record(id, diag.StartupError(id, err.Error()))
		inst.appendLog("start failed: "+err.Error(), m.cfg.Now())
		m.persistLocked(ctx)
		return fmt.Errorf("lifecycle: start backend %q: %w", id, err)
	}
	go func() {
		_ = cmd.Wait()
	}()

	inst.process = cmd.Process
	inst.State = StateRunning
	inst.UpdatedAt = m.cfg.Now()
	inst.appendLog(fmt.Sprintf("started pid %d", cmd.Process.Pid), m.cfg.Now())
	m.persistLocked(ctx)
	m.cfg.Logger.Info("backend started", "backend", id, "pid", cmd.Process.Pid)
	return nil
}

// Stop kills a running backend. Stopping an unknown or already stopped
// backend succeeds without effect; kill failures are logged, never fatal.
func (m *Manager) Stop(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.installs[id]
	if !ok || !inst.Running() {
		return nil
	}

	if err := inst.process.Kill(); err != nil {
		m.cfg.Logger.Warn("kill failed", "backend", id, "error", err)
		inst.appendLog("kill failed: "+err.Error(), m.cfg.Now())
	}
	inst.process = nil
	inst.State = StateStopped
	inst.UpdatedAt = m.cfg.Now()
	inst.appendLog("stopped", m.cfg.Now())
	m.persistLocked(ctx)
	m.cfg.Logger.Info("backend stopped", "backend", id)
	return nil
}

// Validate runs validation for one backend without side effects.
func (m *Manager) Validate(id string) (ValidationResult, error) {
	def, ok := m.cfg.Catalog.Get(id)
	if !ok {
		return ValidationResult{}, fmt.Errorf("%w: %q", ErrUnknownBackend, id)
	}
	return Validate(m.validateConfig(def)), nil
}

// RecordHealthFailure increments the failure counter for a running backend
// and returns the new count.
func (m *Manager) RecordHealthFailure(ctx context.Context, id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.installs[id]
	if !ok {
		return 0
	}
	inst.HealthFailures++
	inst.UpdatedAt = m.cfg.Now()
	m.persistLocked(ctx)
	return inst.HealthFailures
}

// ResetHealthFailures clears the failure counter after a healthy probe.
func (m *Manager) ResetHealthFailures(ctx context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.installs[id]
	if !ok || inst.HealthFailures == 0 {
		return
	}
	inst.HealthFailures = 0
	inst.UpdatedAt = m.cfg.Now()
	m.persistLocked(ctx)
}

func describeIssues(issues []Issue) string {
	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		parts = append(parts, issue.Description)
	}
	return strings.Join(parts, "; ")
}

func cloneEnv(env map[string]string) map[string]string {
	if env == nil {
		return map[string]string{}
	}
	return maps.Clone(env)
}
