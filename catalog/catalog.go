// Package catalog defines the immutable table of known tool backends. The
// table is loaded once at startup and injected into every component that
// needs it; nothing mutates a Catalog after construction.
package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Runtime identifies how a backend is built and launched.
type Runtime string

const (
	// RuntimeNode backends are npm projects with a compiled entrypoint.
	RuntimeNode Runtime = "node"
	// RuntimePython backends run from an isolated interpreter environment.
	RuntimePython Runtime = "python"
)

// Definition is one immutable catalog row describing an installable backend.
type Definition struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Source      string   `yaml:"source" json:"source"`
	Runtime     Runtime  `yaml:"runtime" json:"runtime"`
	Command     string   `yaml:"command" json:"command"`
	Args        []string `yaml:"args,omitempty" json:"args,omitempty"`
	DefaultPort int      `yaml:"default_port,omitempty" json:"default_port,omitempty"`
	Category    string   `yaml:"category,omitempty" json:"category,omitempty"`
	ToolCount   int      `yaml:"tool_count,omitempty" json:"tool_count,omitempty"`
	RequiredEnv []string `yaml:"required_env,omitempty" json:"required_env,omitempty"`
}

// Catalog is an immutable, id-keyed set of backend definitions.
type Catalog struct {
	defs map[string]Definition
	ids  []string
}

// New builds a catalog from definitions. Ids must be unique and non-empty.
func New(defs []Definition) (*Catalog, error) {
	byID := make(map[string]Definition, len(defs))
	ids := make([]string, 0, len(defs))
	for _, def := range defs {
		id := strings.TrimSpace(def.ID)
		if id == "" {
			return nil, errors.New("catalog: definition id is required")
		}
		if _, exists := byID[id]; exists {
			return nil, fmt.Errorf("catalog: duplicate definition id %q", id)
		}
		def.ID = id
		byID[id] = def
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return &Catalog{defs: byID, ids: ids}, nil
}

// Get returns the definition for an id.
func (c *Catalog) Get(id string) (Definition, bool) {
	if c == nil {
		return Definition{}, false
	}
	def, ok := c.defs[id]
	return def, ok
}

// IDs returns all definition ids in sorted order.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.ids)
}

// All returns definitions in id-sorted order.
func (c *Catalog) All() []Definition {
	if c == nil {
		return nil
	}
	out := make([]Definition, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.defs[id])
	}
	return out
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ids)
}

// categoryDefaults maps well-known backend ids to a display category when the
// definition does not declare one.
var categoryDefaults = map[string]string{
	"filesystem": "file_management",
	"fetch":      "web",
	"github":     "development",
	"gitlab":     "development",
	"memory":     "knowledge",
	"postgres":   "database",
	"sqlite":     "database",
	"slack":      "communication",
	"puppeteer":  "web",
	"sentry":     "monitoring",
}

// CategoryFor resolves a definition's category: explicit value first, then
// the hand-mapped default, then the backend id itself.
func CategoryFor(def Definition) string {
	if category := strings.TrimSpace(def.Category); category != "" {
		return category
	}
	if category, ok := categoryDefaults[def.ID]; ok {
		return category
	}
	return def.ID
}
