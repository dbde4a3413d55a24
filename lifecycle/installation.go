// Package lifecycle manages backend installations: install pipelines,
// validation with auto-fix, process start/stop, and registry persistence.
package lifecycle

import (
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/relayforge/mcpgate/catalog"
)

// State is the lifecycle state of one backend installation.
type State string

const (
	StateNotInstalled State = "not_installed"
	StateInstalling   State = "installing"
	StateInstalled    State = "installed"
	StateRunning      State = "running"
	StateStopped      State = "stopped"
	StateFailed       State = "failed"
)

// logLimit caps the rolling log kept per installation.
const logLimit = 50

// Installation is the mutable record for one installed backend. The process
// handle is exclusively owned while the backend runs and is never persisted.
type Installation struct {
	BackendID      string            `json:"backend_id"`
	InstallPath    string            `json:"install_path"`
	State          State             `json:"state"`
	Env            map[string]string `json:"env,omitempty"`
	Log            []string          `json:"log,omitempty"`
	InstalledAt    time.Time         `json:"installed_at,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at,omitempty"`
	HealthFailures int               `json:"health_failures,omitempty"`

	process *os.Process
}

// Running reports whether the installation currently owns a process handle.
func (inst *Installation) Running() bool {
	return inst != nil && inst.State == StateRunning && inst.process != nil
}

func (inst *Installation) appendLog(line string, now time.Time) {
	inst.Log = append(inst.Log, now.UTC().Format(time.RFC3339)+" "+line)
	if len(inst.Log) > logLimit {
		inst.Log = inst.Log[len(inst.Log)-logLimit:]
	}
}

// clone returns a copy safe to hand out; the process handle stays behind.
func (inst *Installation) clone() Installation {
	out := *inst
	out.process = nil
	out.Env = maps.Clone(inst.Env)
	out.Log = slices.Clone(inst.Log)
	return out
}

// LaunchSpec describes how to spawn one instance of a backend process. The
// ephemeral relay and the long-running Start path share it.
type LaunchSpec struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
}

// launchSpec resolves the launch command for a definition rooted at an
// install path. Interpreted backends run from their private interpreter.
func launchSpec(def catalog.Definition, installPath string, env map[string]string) LaunchSpec {
	command := def.Command
	args := slices.Clone(def.Args)
	if def.Runtime == catalog.RuntimePython {
		command = filepath.Join(installPath, ".venv", "bin", "python")
	}

	merged := os.Environ()
	for _, key := range slices.Sorted(maps.Keys(env)) {
		merged = append(merged, key+"="+env[key])
	}

	return LaunchSpec{
		Command: command,
		Args:    args,
		Dir:     installPath,
		Env:     merged,
	}
}
