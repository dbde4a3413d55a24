package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/relayforge/mcpgate/catalog"
)

// Issue is one validation finding.
type Issue struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Field       string `json:"field,omitempty"`
}

const (
	issueSeverityError   = "error"
	issueSeverityWarning = "warning"
)

// RemediationKind tags the executable shape of a remediation.
type RemediationKind string

const (
	// RemediationRunCommand executes an argv in a working directory.
	RemediationRunCommand RemediationKind = "run_command"
	// RemediationWriteClientConfig rewrites the downstream client config
	// with this gateway's launcher entry.
	RemediationWriteClientConfig RemediationKind = "write_client_config"
	// RemediationRepairGatewayPath re-resolves the gateway binary from
	// well-known locations and rewrites the client entry.
	RemediationRepairGatewayPath RemediationKind = "repair_gateway_path"
)

// Remediation is one executable repair step. Only AutoFix remediations are
// ever executed automatically; the rest are surfaced for the operator.
type Remediation struct {
	Kind        RemediationKind `json:"kind"`
	Description string          `json:"description"`
	Dir         string          `json:"dir,omitempty"`
	Argv        []string        `json:"argv,omitempty"`
	AutoFix     bool            `json:"auto_fix,omitempty"`
}

// Command renders a display string for operators. It is never parsed back.
func (r Remediation) Command() string {
	switch r.Kind {
	case RemediationRunCommand:
		cmd := strings.Join(r.Argv, " ")
		if r.Dir != "" {
			return "cd " + r.Dir + " && " + cmd
		}
		return cmd
	case RemediationWriteClientConfig:
		return "rewrite client config"
	case RemediationRepairGatewayPath:
		return "repair gateway path"
	}
	return ""
}

// ParseCommandString splits a legacy "cd DIR && CMD ARGS..." display string
// into a working directory and argv. It exists for operator input only;
// internal remediations are constructed structured.
func ParseCommandString(s string) (dir string, argv []string) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "cd "); ok {
		if d, cmd, found := strings.Cut(rest, "&&"); found {
			dir = strings.TrimSpace(d)
			s = strings.TrimSpace(cmd)
		}
	}
	if s == "" {
		return dir, nil
	}
	return dir, strings.Fields(s)
}

// ValidationResult reports one backend's readiness to launch.
type ValidationResult struct {
	BackendID    string        `json:"backend_id"`
	Valid        bool          `json:"valid"`
	Issues       []Issue       `json:"issues,omitempty"`
	Remediations []Remediation `json:"remediations,omitempty"`
}

// ValidateConfig carries everything validation inspects.
type ValidateConfig struct {
	Def              catalog.Definition
	InstallPath      string
	ClientConfigPath string
	GatewayName      string
	GatewayCommand   string
	GatewayArgs      []string
}

// Validate inspects an installation without mutating anything. All checks
// run; findings accumulate rather than short-circuiting.
func Validate(cfg ValidateConfig) ValidationResult {
	result := ValidationResult{BackendID: cfg.Def.ID}

	info, err := os.Stat(cfg.InstallPath)
	if err != nil || !info.IsDir() {
		result.Issues = append(result.Issues, Issue{
			Type:        "missing_install_dir",
			Severity:    issueSeverityError,
			Description: fmt.Sprintf("install directory %s does not exist", cfg.InstallPath),
		})
		return result
	}

	switch cfg.Def.Runtime {
	case catalog.RuntimeNode:
		validateNode(cfg, &result)
	case catalog.RuntimePython:
		validatePython(cfg, &result)
	}

	validateEnv(cfg, &result)
	validateClientConfig(cfg, &result)

	result.Valid = true
	for _, issue := range result.Issues {
		if issue.Severity == issueSeverityError {
			result.Valid = false
			break
		}
	}
	return result
}

func validateNode(cfg ValidateConfig, result *ValidationResult) {
	if _, err := os.Stat(filepath.Join(cfg.InstallPath, "node_modules")); err != nil {
		result.Issues = append(result.Issues, Issue{
			Type:        "missing_node_modules",
			Severity:    issueSeverityError,
			Description: "node_modules is missing; dependencies were never installed",
		})
		result.Remediations = append(result.Remediations, Remediation{
			Kind:        RemediationRunCommand,
			Description: "Install npm dependencies",
			Dir:         cfg.InstallPath,
			Argv:        []string{"npm", "install"},
			AutoFix:     true,
		})
	}

	for _, arg := range cfg.Def.Args {
		if !strings.HasSuffix(arg, ".js") || filepath.IsAbs(arg) {
			continue
		}
		if _, err := os.Stat(filepath.Join(cfg.InstallPath, arg)); err != nil {
			result.Issues = append(result.Issues, Issue{
				Type:        "missing_entrypoint",
				Severity:    issueSeverityError,
				Description: fmt.Sprintf("compiled entrypoint %s is missing", arg),
				Field:       arg,
			})
			result.Remediations = append(result.Remediations, Remediation{
				Kind:        RemediationRunCommand,
				Description: "Rebuild the backend",
				Dir:         cfg.InstallPath,
				Argv:        []string{"npm", "run", "build"},
				AutoFix:     true,
			})
		}
	}
}

func validatePython(cfg ValidateConfig, result *ValidationResult) {
	interpreter := filepath.Join(cfg.InstallPath, ".venv", "bin", "python")
	if _, err := os.Stat(interpreter); err != nil {
		result.Issues = append(result.Issues, Issue{
			Type:        "missing_interpreter",
			Severity:    issueSeverityError,
			Description: "the isolated interpreter environment is missing",
			Field:       interpreter,
		})
		result.Remediations = append(result.Remediations, Remediation{
			Kind:        RemediationRunCommand,
			Description: "Recreate the interpreter environment",
			Dir:         cfg.InstallPath,
			Argv:        []string{"python3", "-m", "venv", ".venv"},
			AutoFix:     true,
		})
	}
}

func validateEnv(cfg ValidateConfig, result *ValidationResult) {
	if len(cfg.Def.RequiredEnv) == 0 {
		return
	}
	fileEnv, err := ReadEnvFile(filepath.Join(cfg.InstallPath, envFileName))
	if err != nil {
		result.Issues = append(result.Issues, Issue{
			Type:        "env_file_unreadable",
			Severity:    issueSeverityError,
			Description: err.Error(),
		})
		fileEnv = map[string]string{}
	}
	for _, key := range cfg.Def.RequiredEnv {
		if fileEnv[key] != "" {
			continue
		}
		if os.Getenv(key) != "" {
			continue
		}
		result.Issues = append(result.Issues, Issue{
			Type:        "missing_env",
			Severity:    issueSeverityError,
			Description: fmt.Sprintf("required environment variable %s is not set", key),
			Field:       key,
		})
	}
}

func validateClientConfig(cfg ValidateConfig, result *ValidationResult) {
	if cfg.ClientConfigPath == "" || cfg.GatewayName == "" {
		return
	}

	command, ok, err := ClientEntryCommand(cfg.ClientConfigPath, cfg.GatewayName)
	if err != nil || !ok {
		result.Issues = append(result.Issues, Issue{
			Type:        "missing_client_entry",
			Severity:    issueSeverityWarning,
			Description: "the downstream client config has no gateway entry",
		})
		result.Remediations = append(result.Remediations, Remediation{
			Kind:        RemediationWriteClientConfig,
			Description: "Register the gateway in the client config",
			AutoFix:     true,
		})
		return
	}

	if _, statErr := os.Stat(command); statErr != nil && !filepath.IsAbs(command) {
		// Relative commands resolve through PATH; leave them alone.
		return
	} else if statErr != nil {
		result.Issues = append(result.Issues, Issue{
			Type:        "stale_gateway_path",
			Severity:    issueSeverityWarning,
			Description: fmt.Sprintf("the client config points at %s, which no longer exists", command),
			Field:       command,
		})
		result.Remediations = append(result.Remediations, Remediation{
			Kind:        RemediationRepairGatewayPath,
			Description: "Re-resolve the gateway binary and rewrite the client entry",
			AutoFix:     true,
		})
	}
}

// AutoFix executes the auto-fixable remediations in order, stopping at the
// first failure. It returns the number applied before any failure.
func AutoFix(ctx context.Context, runner Runner, cfg ValidateConfig, remediations []Remediation) (int, error) {
	applied := 0
	for _, rem := range remediations {
		if !rem.AutoFix {
			continue
		}
		if err := applyRemediation(ctx, runner, cfg, rem); err != nil {
			return applied, fmt.Errorf("lifecycle: auto-fix %s: %w", rem.Kind, err)
		}
		applied++
	}
	return applied, nil
}

func applyRemediation(ctx context.Context, runner Runner, cfg ValidateConfig, rem Remediation) error {
	switch rem.Kind {
	case RemediationRunCommand:
		if len(rem.Argv) == 0 {
			return errors.New("empty argv")
		}
		if runner == nil {
			return errors.New("no runner configured")
		}
		_, err := runner.Run(ctx, rem.Dir, rem.Argv[0], rem.Argv[1:]...)
		return err
	case RemediationWriteClientConfig:
		return UpsertClientEntry(cfg.ClientConfigPath, cfg.GatewayName, cfg.GatewayCommand, cfg.GatewayArgs)
	case RemediationRepairGatewayPath:
		resolved, ok := resolveGatewayPath()
		if !ok {
			return errors.New("no gateway binary found at well-known paths")
		}
		return UpsertClientEntry(cfg.ClientConfigPath, cfg.GatewayName, resolved, cfg.GatewayArgs)
	}
	return fmt.Errorf("unknown remediation kind %q", rem.Kind)
}
