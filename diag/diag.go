// Package diag provides typed failure records with heuristic remediation
// suggestions. Every install, validation, and startup stage wraps its
// failures into an EnhancedError so operators can inspect and retry without
// digging through raw tool output.
package diag

import (
	"strings"
	"time"
)

// Severity ranks how actionable a failure is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Stage identifies which pipeline step produced a failure.
type Stage string

const (
	StageGitClone          Stage = "git_clone"
	StageNpmInstall        Stage = "npm_install"
	StageNpmBuild          Stage = "npm_build"
	StageInterpreterEnv    Stage = "interpreter_env"
	StageDependencyInstall Stage = "dependency_install"
	StageEnvFile           Stage = "env_file"
	StageValidation        Stage = "validation"
	StageStartup           Stage = "startup"
	StageToolDiscovery     Stage = "tool_discovery"
)

// Suggestion is one remediation hint attached to an error. Command is
// display-only; executable remediations are modeled separately by the
// lifecycle package.
type Suggestion struct {
	Action      string `json:"action"`
	Description string `json:"description"`
	Command     string `json:"command,omitempty"`
	AutoFix     bool   `json:"auto_fix,omitempty"`
}

// EnhancedError is a structured failure record.
type EnhancedError struct {
	Stage       Stage             `json:"type"`
	Message     string            `json:"message"`
	Details     string            `json:"details,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Severity    Severity          `json:"severity"`
	Suggestions []Suggestion      `json:"suggestions,omitempty"`
}

func (e EnhancedError) Error() string {
	if e.Message == "" {
		return string(e.Stage)
	}
	return string(e.Stage) + ": " + e.Message
}

type matcher struct {
	substrings  []string
	suggestions []Suggestion
}

func newError(stage Stage, message, details string, matchers []matcher, generic []Suggestion) EnhancedError {
	e := EnhancedError{
		Stage:     stage,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		Severity:  SeverityError,
	}

	haystack := strings.ToLower(details)
	for _, m := range matchers {
		for _, needle := range m.substrings {
			if strings.Contains(haystack, needle) {
				e.Suggestions = append(e.Suggestions, m.suggestions...)
				return e
			}
		}
	}
	e.Suggestions = generic
	return e
}

// GitCloneError classifies a failed repository clone.
func GitCloneError(backendID, details string) EnhancedError {
	e := newError(StageGitClone, "failed to clone backend source", details,
		[]matcher{
			{
				substrings: []string{"could not resolve host", "connection refused", "connection timed out", "network is unreachable"},
				suggestions: []Suggestion{{
					Action:      "check_network",
					Description: "Verify network connectivity and any proxy settings, then retry the install",
				}},
			},
			{
				substrings: []string{"authentication failed", "permission denied", "403"},
				suggestions: []Suggestion{{
					Action:      "check_credentials",
					Description: "The source repository rejected the request; configure git credentials for private sources",
				}},
			},
			{
				substrings: []string{"already exists and is not an empty directory"},
				suggestions: []Suggestion{{
					Action:      "remove_stale_dir",
					Description: "Remove the stale install directory and retry",
					AutoFix:     true,
				}},
			},
			{
				substrings: []string{"repository not found", "not found"},
				suggestions: []Suggestion{{
					Action:      "check_source",
					Description: "The catalog source URL does not resolve to a repository; verify the catalog entry",
				}},
			},
		},
		[]Suggestion{{
			Action:      "retry_install",
			Description: "Retry the install; transient clone failures usually clear on a second attempt",
		}},
	)
	e.Context = map[string]string{"backend_id": backendID}
	return e
}

// NpmInstallError classifies a failed npm dependency install.
func NpmInstallError(backendID, details string) EnhancedError {
	e := newError(StageNpmInstall, "npm install failed", details,
		[]matcher{
			{
				substrings: []string{"eresolve", "peer dep"},
				suggestions: []Suggestion{{
					Action:      "legacy_peer_deps",
					Description: "Dependency resolution conflict; retry the install with --legacy-peer-deps",
					Command:     "npm install --legacy-peer-deps",
					AutoFix:     true,
				}},
			},
			{
				substrings: []string{"enoent", "no such file"},
				suggestions: []Suggestion{{
					Action:      "check_package_json",
					Description: "package.json is missing from the cloned source; the clone may be incomplete",
				}},
			},
			{
				substrings: []string{"eacces", "permission denied"},
				suggestions: []Suggestion{{
					Action:      "check_permissions",
					Description: "npm cannot write to its cache or the install directory; check directory ownership",
				}},
			},
		},
		[]Suggestion{{
			Action:      "clean_install",
			Description: "Remove node_modules and retry the dependency install",
			Command:     "npm install",
			AutoFix:     true,
		}},
	)
	e.Context = map[string]string{"backend_id": backendID}
	return e
}

// NpmBuildError classifies a failed npm build step.
func NpmBuildError(backendID, details string) EnhancedError {
	e := newError(StageNpmBuild, "npm build failed", details,
		[]matcher{
			{
				substrings: []string{"missing script"},
				suggestions: []Suggestion{{
					Action:      "skip_build",
					Description: "The package declares no build script; the backend may ship prebuilt output",
				}},
			},
			{
				substrings: []string{"tsc", "type error", "ts("},
				suggestions: []Suggestion{{
					Action:      "check_toolchain",
					Description: "TypeScript compilation failed; the pinned source revision may need a newer toolchain",
				}},
			},
		},
		[]Suggestion{{
			Action:      "rerun_build",
			Description: "Re-run the build step after reinstalling dependencies",
			Command:     "npm run build",
			AutoFix:     true,
		}},
	)
	e.Context = map[string]string{"backend_id": backendID}
	return e
}

// InterpreterEnvError classifies a failed isolated-interpreter setup.
func InterpreterEnvError(backendID, details string) EnhancedError {
	e := newError(StageInterpreterEnv, "interpreter environment setup failed", details,
		[]matcher{
			{
				substrings: []string{"uv: command not found", "uv: not found", `"uv": executable file not found`},
				suggestions: []Suggestion{{
					Action:      "fallback_venv",
					Description: "uv is not installed; fall back to python -m venv",
					Command:     "python3 -m venv .venv",
					AutoFix:     true,
				}},
			},
			{
				substrings: []string{"python: command not found", "python3: not found", `"python3": executable file not found`},
				suggestions: []Suggestion{{
					Action:      "install_python",
					Description: "No Python interpreter is available on PATH; install Python 3.10+",
				}},
			},
		},
		[]Suggestion{{
			Action:      "recreate_env",
			Description: "Delete the environment directory and recreate it",
		}},
	)
	e.Context = map[string]string{"backend_id": backendID}
	return e
}

// DependencyInstallError classifies a failed Python dependency install.
func DependencyInstallError(backendID, details string) EnhancedError {
	e := newError(StageDependencyInstall, "dependency install failed", details,
		[]matcher{
			{
				substrings: []string{"no matching distribution", "could not find a version"},
				suggestions: []Suggestion{{
					Action:      "check_python_version",
					Description: "A pinned dependency has no wheel for this interpreter version",
				}},
			},
			{
				substrings: []string{"requirements.txt", "no such file"},
				suggestions: []Suggestion{{
					Action:      "check_manifest",
					Description: "Neither an installable project nor a requirements file was found in the source",
				}},
			},
		},
		[]Suggestion{{
			Action:      "retry_install",
			Description: "Retry the dependency install; index outages are usually transient",
		}},
	)
	e.Context = map[string]string{"backend_id": backendID}
	return e
}

// EnvFileError classifies a failure writing or reading a backend env file.
func EnvFileError(backendID, details string) EnhancedError {
	e := newError(StageEnvFile, "env file operation failed", details, nil,
		[]Suggestion{{
			Action:      "check_permissions",
			Description: "Verify the install directory is writable",
		}},
	)
	e.Context = map[string]string{"backend_id": backendID}
	return e
}

// ValidationError records a post-install validation failure.
func ValidationError(backendID, details string) EnhancedError {
	e := newError(StageValidation, "backend validation failed", details, nil,
		[]Suggestion{{
			Action:      "run_autofix",
			Description: "Run validate with auto-fix enabled to repair recoverable issues",
			AutoFix:     true,
		}},
	)
	e.Context = map[string]string{"backend_id": backendID}
	return e
}

// StartupError records a failed backend launch.
func StartupError(backendID, details string) EnhancedError {
	e := newError(StageStartup, "backend failed to start", details,
		[]matcher{
			{
				substrings: []string{"executable file not found", "no such file"},
				suggestions: []Suggestion{{
					Action:      "reinstall",
					Description: "The launch command is missing; reinstall the backend",
				}},
			},
			{
				substrings: []string{"missing required env"},
				suggestions: []Suggestion{{
					Action:      "set_env",
					Description: "Provide the missing environment variables in the install config and reinstall",
				}},
			},
		},
		[]Suggestion{{
			Action:      "inspect_log",
			Description: "Inspect the backend log lines for the underlying launch failure",
		}},
	)
	e.Context = map[string]string{"backend_id": backendID}
	return e
}

// ToolDiscoveryError records a failed discovery round trip. Discovery
// failures are soft; the record exists for diagnostics only.
func ToolDiscoveryError(backendID, details string) EnhancedError {
	e := newError(StageToolDiscovery, "tool discovery failed", details,
		[]matcher{
			{
				substrings: []string{"timed out", "deadline exceeded"},
				suggestions: []Suggestion{{
					Action:      "check_backend",
					Description: "The backend did not answer the discovery handshake in time; check that it starts cleanly",
				}},
			},
		},
		[]Suggestion{{
			Action:      "restart_backend",
			Description: "Stop and start the backend, then retry discovery",
		}},
	)
	e.Severity = SeverityWarning
	e.Context = map[string]string{"backend_id": backendID}
	return e
}
