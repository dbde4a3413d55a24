package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/relayforge/mcpgate/catalog"
	"github.com/relayforge/mcpgate/diag"
)

// Install starts an asynchronous install of a backend and returns as soon as
// the record is registered as installing. The pipeline continues in the
// background; progress lands in the record's log and the diagnostic history.
func (m *Manager) Install(ctx context.Context, id string, env map[string]string) error {
	def, err := m.beginInstall(ctx, id, env)
	if err != nil {
		return err
	}
	go m.runInstall(context.WithoutCancel(ctx), def, cloneEnv(env))
	return nil
}

// InstallWait runs the full install pipeline synchronously. It exists for
// CLI use and tests; the control API always installs asynchronously.
func (m *Manager) InstallWait(ctx context.Context, id string, env map[string]string) error {
	def, err := m.beginInstall(ctx, id, env)
	if err != nil {
		return err
	}
	m.runInstall(ctx, def, cloneEnv(env))

	inst, _ := m.Installation(id)
	if inst.State != StateInstalled {
		return fmt.Errorf("lifecycle: install of %q ended in state %s", id, inst.State)
	}
	return nil
}

// beginInstall registers the installing placeholder. A backend already
// mid-install or running rejects the request; any other state is replaced.
// Starting a fresh install clears the backend's diagnostic history.
func (m *Manager) beginInstall(ctx context.Context, id string, env map[string]string) (catalog.Definition, error) {
	def, ok := m.cfg.Catalog.Get(id)
	if !ok {
		return catalog.Definition{}, fmt.Errorf("%w: %q", ErrUnknownBackend, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, found := m.installs[id]; found {
		switch existing.State {
		case StateInstalling:
			return catalog.Definition{}, fmt.Errorf("lifecycle: backend %q is already installing", id)
		case StateRunning:
			return catalog.Definition{}, fmt.Errorf("lifecycle: stop backend %q before reinstalling", id)
		}
	}

	m.cfg.Errors.Clear(id)

	now := m.cfg.Now()
	inst := &Installation{
		BackendID:   id,
		InstallPath: m.installPath(id),
		State:       StateInstalling,
		Env:         cloneEnv(env),
		InstalledAt: now,
		UpdatedAt:   now,
	}
	inst.appendLog("install job "+uuid.NewString()+" queued", now)
	m.installs[id] = inst
	m.persistLocked(ctx)
	return def, nil
}

// runInstall executes the pipeline: wipe, clone, build, env file, validate
// with one auto-fix pass. Each stage failure records a classified error and
// lands the record in failed.
func (m *Manager) runInstall(ctx context.Context, def catalog.Definition, env map[string]string) {
	id := def.ID
	installPath := m.installPath(id)

	fail := func(stage string, rec diag.EnhancedError) {
		m.cfg.Errors.Record(id, rec)
		m.finishInstall(ctx, id, StateFailed, stage+" failed: "+rec.Details)
		m.cfg.Logger.Error("install failed", "backend", id, "stage", stage, "error", rec.Details)
	}

	m.logInstall(ctx, id, "wiping "+installPath)
	if err := os.RemoveAll(installPath); err != nil {
		fail("wipe", diag.GitCloneError(id, err.Error()))
		return
	}
	if err := os.MkdirAll(m.cfg.InstallRoot, 0o750); err != nil {
		fail("wipe", diag.GitCloneError(id, err.Error()))
		return
	}

	m.logInstall(ctx, id, "cloning "+def.Source)
	if _, err := m.cfg.Runner.Run(ctx, m.cfg.InstallRoot, "git", "clone", "--depth", "1", def.Source, installPath); err != nil {
		fail("git clone", diag.GitCloneError(id, err.Error()))
		return
	}

	switch def.Runtime {
	case catalog.RuntimeNode:
		if !m.installNode(ctx, id, installPath, fail) {
			return
		}
	case catalog.RuntimePython:
		if !m.installPython(ctx, id, installPath, fail) {
			return
		}
	}

	if len(env) > 0 {
		m.logInstall(ctx, id, "writing env file")
		if err := WriteEnvFile(filepath.Join(installPath, envFileName), env); err != nil {
			fail("env file", diag.EnvFileError(id, err.Error()))
			return
		}
	}

	vcfg := m.validateConfig(def)
	result := Validate(vcfg)
	if !result.Valid {
		m.logInstall(ctx, id, "validation failed, attempting auto-fix")
		if _, err := AutoFix(ctx, m.cfg.Runner, vcfg, result.Remediations); err != nil {
			m.cfg.Logger.Warn("auto-fix failed", "backend", id, "error", err)
		}
		result = Validate(vcfg)
	}
	if !result.Valid {
		details := describeIssues(result.Issues)
		fail("validation", diag.ValidationError(id, details))
		return
	}

	m.finishInstall(ctx, id, StateInstalled, "install complete")
	m.cfg.Logger.Info("backend installed", "backend", id)

	if m.cfg.ClientConfigPath != "" && m.cfg.GatewayName != "" && m.cfg.GatewayCommand != "" {
		if err := UpsertClientEntry(m.cfg.ClientConfigPath, m.cfg.GatewayName, m.cfg.GatewayCommand, m.cfg.GatewayArgs); err != nil {
			m.cfg.Logger.Warn("client config update failed", "error", err)
		}
	}
}

func (m *Manager) installNode(ctx context.Context, id, installPath string, fail func(string, diag.EnhancedError)) bool {
	m.logInstall(ctx, id, "installing npm dependencies")
	if _, err := m.cfg.Runner.Run(ctx, installPath, "npm", "install"); err != nil {
		fail("npm install", diag.NpmInstallError(id, err.Error()))
		return false
	}
	m.logInstall(ctx, id, "building")
	if out, err := m.cfg.Runner.Run(ctx, installPath, "npm", "run", "build"); err != nil {
		// Packages without a build script ship prebuilt output.
		if strings.Contains(strings.ToLower(out), "missing script") {
			m.logInstall(ctx, id, "no build script, skipping")
			return true
		}
		fail("npm build", diag.NpmBuildError(id, err.Error()))
		return false
	}
	return true
}

func (m *Manager) installPython(ctx context.Context, id, installPath string, fail func(string, diag.EnhancedError)) bool {
	m.logInstall(ctx, id, "creating interpreter environment")
	if _, err := m.cfg.Runner.Run(ctx, installPath, "uv", "sync"); err == nil {
		return true
	}

	m.logInstall(ctx, id, "uv unavailable, falling back to venv")
	if _, err := m.cfg.Runner.Run(ctx, installPath, "python3", "-m", "venv", ".venv"); err != nil {
		fail("interpreter env", diag.InterpreterEnvError(id, err.Error()))
		return false
	}

	pip := filepath.Join(installPath, ".venv", "bin", "pip")
	m.logInstall(ctx, id, "installing dependencies")
	if _, err := m.cfg.Runner.Run(ctx, installPath, pip, "install", "-e", "."); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(installPath, "requirements.txt")); err == nil {
		if _, err := m.cfg.Runner.Run(ctx, installPath, pip, "install", "-r", "requirements.txt"); err != nil {
			fail("dependency install", diag.DependencyInstallError(id, err.Error()))
			return false
		}
		return true
	}
	fail("dependency install", diag.DependencyInstallError(id, "no installable project or requirements.txt found"))
	return false
}

func (m *Manager) logInstall(ctx context.Context, id, line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.installs[id]
	if !ok {
		return
	}
	inst.appendLog(line, m.cfg.Now())
	m.persistLocked(ctx)
}

func (m *Manager) finishInstall(ctx context.Context, id string, state State, line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.installs[id]
	if !ok {
		return
	}
	inst.State = state
	inst.UpdatedAt = m.cfg.Now()
	inst.appendLog(line, m.cfg.Now())
	m.persistLocked(ctx)
}
