package lifecycle

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes external build tooling (git, npm, pip, uv) with a working
// directory. Implementations return combined output for diagnostics.
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (string, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

// Run executes one command and returns its combined output.
func (ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, error) {
	// #nosec G204 -- commands come from the injected catalog and the install
	// pipeline, not from protocol input.
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if output != "" {
			return output, fmt.Errorf("lifecycle: %s %s: %w: %s", name, strings.Join(args, " "), err, output)
		}
		return output, fmt.Errorf("lifecycle: %s %s: %w", name, strings.Join(args, " "), err)
	}
	return output, nil
}
