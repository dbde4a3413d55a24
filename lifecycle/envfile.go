package lifecycle

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
)

// envFileName is the per-install env file of KEY=VALUE lines.
const envFileName = ".env"

// WriteEnvFile writes resolved config as flat KEY=VALUE lines, sorted by key.
// Values are written unescaped; the file is only ever read back by this
// process and the backend itself.
func WriteEnvFile(path string, env map[string]string) error {
	var b strings.Builder
	for _, key := range slices.Sorted(maps.Keys(env)) {
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(env[key])
		b.WriteString("\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("lifecycle: write env file %q: %w", path, err)
	}
	return nil
}

// ReadEnvFile parses a KEY=VALUE env file. A missing file yields an empty
// map; malformed lines are skipped.
func ReadEnvFile(path string) (map[string]string, error) {
	// #nosec G304 -- path is derived from the install root.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("lifecycle: read env file %q: %w", path, err)
	}

	env := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found || strings.TrimSpace(key) == "" {
			continue
		}
		env[strings.TrimSpace(key)] = value
	}
	return env, nil
}
