package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk catalog shape.
type File struct {
	Backends []Definition `yaml:"backends"`
}

// Load reads a catalog override file.
func Load(path string) (*Catalog, error) {
	// #nosec G304 -- path is an operator-supplied local config file.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %q: %w", path, err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: parsing %q: %w", path, err)
	}
	if len(file.Backends) == 0 {
		return nil, fmt.Errorf("catalog: %q declares no backends", path)
	}
	return New(file.Backends)
}

// Default returns the built-in backend table used when no override file is
// supplied.
func Default() *Catalog {
	cat, err := New(defaultDefinitions)
	if err != nil {
		// The built-in table is validated by tests; a failure here is a
		// programming error.
		panic(err)
	}
	return cat
}

var defaultDefinitions = []Definition{
	{
		ID:          "filesystem",
		Name:        "Filesystem",
		Description: "Read, write, and search files under configured roots",
		Source:      "https://github.com/modelcontextprotocol/servers.git",
		Runtime:     RuntimeNode,
		Command:     "node",
		Args:        []string{"dist/index.js"},
		Category:    "file_management",
		ToolCount:   11,
	},
	{
		ID:          "fetch",
		Name:        "Fetch",
		Description: "Retrieve and convert web content for model consumption",
		Source:      "https://github.com/modelcontextprotocol/servers.git",
		Runtime:     RuntimePython,
		Command:     "python",
		Args:        []string{"-m", "mcp_server_fetch"},
		Category:    "web",
		ToolCount:   1,
	},
	{
		ID:          "github",
		Name:        "GitHub",
		Description: "Repository, issue, and pull-request operations",
		Source:      "https://github.com/modelcontextprotocol/servers.git",
		Runtime:     RuntimeNode,
		Command:     "node",
		Args:        []string{"dist/index.js"},
		Category:    "development",
		ToolCount:   26,
		RequiredEnv: []string{"GITHUB_PERSONAL_ACCESS_TOKEN"},
	},
	{
		ID:          "memory",
		Name:        "Memory",
		Description: "Knowledge-graph style persistent memory",
		Source:      "https://github.com/modelcontextprotocol/servers.git",
		Runtime:     RuntimeNode,
		Command:     "node",
		Args:        []string{"dist/index.js"},
		Category:    "knowledge",
		ToolCount:   9,
	},
	{
		ID:          "postgres",
		Name:        "PostgreSQL",
		Description: "Read-only SQL inspection of a PostgreSQL database",
		Source:      "https://github.com/modelcontextprotocol/servers.git",
		Runtime:     RuntimeNode,
		Command:     "node",
		Args:        []string{"dist/index.js"},
		DefaultPort: 5432,
		Category:    "database",
		ToolCount:   1,
		RequiredEnv: []string{"POSTGRES_CONNECTION_STRING"},
	},
	{
		ID:          "slack",
		Name:        "Slack",
		Description: "Channel and message operations for a Slack workspace",
		Source:      "https://github.com/modelcontextprotocol/servers.git",
		Runtime:     RuntimeNode,
		Command:     "node",
		Args:        []string{"dist/index.js"},
		Category:    "communication",
		ToolCount:   8,
		RequiredEnv: []string{"SLACK_BOT_TOKEN", "SLACK_TEAM_ID"},
	},
}
