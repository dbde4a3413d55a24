// Package aggregate merges tool inventories from running backends into one
// namespace and shapes listings to fit a client's context window: filter,
// limit adjustment, pagination, and schema reduction.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/relayforge/mcpgate/catalog"
	"github.com/relayforge/mcpgate/relay"
)

// ErrToolNotFound is returned when no running backend advertises a tool.
var ErrToolNotFound = errors.New("aggregate: tool not found")

// Tool is one aggregated tool tagged with its backend of origin.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	Category    string          `json:"category,omitempty"`
	BackendID   string          `json:"backend_id"`
	BackendName string          `json:"backend_name,omitempty"`
}

// BackendDiagnostic reports one backend whose discovery failed. Discovery
// failures never fail a listing; callers see the surviving tools plus these.
type BackendDiagnostic struct {
	BackendID string `json:"backend_id"`
	Error     string `json:"error"`
}

// Meta is the listing metadata block.
type Meta struct {
	TotalCount       int  `json:"total_count"`
	ReturnedCount    int  `json:"returned_count"`
	RequestedLimit   int  `json:"requested_limit"`
	AdjustedLimit    int  `json:"adjusted_limit"`
	Offset           int  `json:"offset"`
	Simplified       bool `json:"simplified"`
	UltraMinimal     bool `json:"ultra_minimal"`
	HasMore          bool `json:"has_more"`
	ContextOptimized bool `json:"context_optimized"`
}

// ListOptions are the caller-facing listing knobs.
type ListOptions struct {
	Limit        int
	Offset       int
	Category     string
	NamePattern  string
	Simplified   bool
	UltraMinimal bool
}

// DefaultLimit applies when the caller requests no limit.
const DefaultLimit = 25

// Listing is one shaped page of tools.
type Listing struct {
	Tools       []Tool              `json:"tools"`
	Diagnostics []BackendDiagnostic `json:"diagnostics,omitempty"`
	Meta        Meta                `json:"_meta"`
}

// Category is one aggregated category with its tool count.
type Category struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Aggregator collects tools from running backends through the relay.
type Aggregator struct {
	catalog *catalog.Catalog
	relay   relay.Relay
	runner  relay.Launcher
}

// New builds an aggregator over an injected catalog, relay, and launcher.
func New(cat *catalog.Catalog, rel relay.Relay, runner relay.Launcher) *Aggregator {
	return &Aggregator{catalog: cat, relay: rel, runner: runner}
}

// Collect discovers tools from every running backend in id order. A backend
// that fails discovery contributes a diagnostic instead of failing the whole
// collection.
func (a *Aggregator) Collect(ctx context.Context) ([]Tool, []BackendDiagnostic) {
	var (
		tools []Tool
		diags []BackendDiagnostic
	)
	for _, id := range a.runner.RunningIDs() {
		descriptors, err := a.relay.Discover(ctx, id)
		if err != nil {
			diags = append(diags, BackendDiagnostic{BackendID: id, Error: err.Error()})
			continue
		}
		def, _ := a.catalog.Get(id)
		category := catalog.CategoryFor(def)
		for _, d := range descriptors {
			tools = append(tools, Tool{
				Name:        d.Name,
				Description: d.Description,
				InputSchema: d.InputSchema,
				Category:    category,
				BackendID:   id,
				BackendName: def.Name,
			})
		}
	}
	return tools, diags
}

// Filter applies the category and name filters. Category matches exactly;
// the name pattern matches case-insensitively as a substring. Both combine
// with AND, and an empty filter is the identity.
func Filter(tools []Tool, category, namePattern string) []Tool {
	if category == "" && namePattern == "" {
		return tools
	}
	needle := strings.ToLower(namePattern)
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		if category != "" && t.Category != category {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(t.Name), needle) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// AdjustLimitForContext caps the requested limit by a tier keyed to the
// filtered total, so huge inventories never flood the caller's context.
func AdjustLimitForContext(requested, totalFiltered int) int {
	if requested <= 0 {
		requested = DefaultLimit
	}
	tier := 50
	switch {
	case totalFiltered > 200:
		tier = 20
	case totalFiltered > 100:
		tier = 30
	case totalFiltered > 50:
		tier = 40
	}
	return min(requested, tier)
}

// Paginate slices one page. An offset at or past the end yields an empty
// page, never an error.
func Paginate(tools []Tool, limit, offset int) []Tool {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tools) {
		return []Tool{}
	}
	end := min(offset+limit, len(tools))
	return tools[offset:end]
}

// Shape reduces tool payloads for context-constrained callers. Simplified
// keeps the schema skeleton with each property cut to type and description;
// ultra-minimal drops the schema entirely and wins when both are set.
func Shape(tools []Tool, simplified, ultraMinimal bool) []Tool {
	if !simplified && !ultraMinimal {
		return tools
	}
	out := make([]Tool, len(tools))
	for i, t := range tools {
		shaped := t
		if ultraMinimal {
			shaped.InputSchema = nil
		} else {
			shaped.InputSchema = simplifySchema(t.InputSchema)
		}
		out[i] = shaped
	}
	return out
}

// simplifySchema keeps the top-level type and required list and reduces each
// property to its type and description. Unparseable schemas pass through.
func simplifySchema(schema json.RawMessage) json.RawMessage {
	if len(schema) == 0 {
		return nil
	}
	var full struct {
		Type       string                     `json:"type"`
		Required   []string                   `json:"required"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &full); err != nil {
		return schema
	}

	reduced := make(map[string]any, 3)
	if full.Type != "" {
		reduced["type"] = full.Type
	}
	if len(full.Required) > 0 {
		reduced["required"] = full.Required
	}
	if len(full.Properties) > 0 {
		props := make(map[string]any, len(full.Properties))
		for name, raw := range full.Properties {
			var prop struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(raw, &prop); err != nil {
				props[name] = map[string]any{}
				continue
			}
			entry := map[string]any{}
			if prop.Type != "" {
				entry["type"] = prop.Type
			}
			if prop.Description != "" {
				entry["description"] = prop.Description
			}
			props[name] = entry
		}
		reduced["properties"] = props
	}

	data, err := json.Marshal(reduced)
	if err != nil {
		return schema
	}
	return data
}

// ListTools runs the whole pipeline: collect, filter, adjust, paginate,
// shape.
func (a *Aggregator) ListTools(ctx context.Context, opts ListOptions) Listing {
	collected, diags := a.Collect(ctx)
	filtered := Filter(collected, opts.Category, opts.NamePattern)

	requested := opts.Limit
	if requested <= 0 {
		requested = DefaultLimit
	}
	adjusted := AdjustLimitForContext(requested, len(filtered))
	page := Paginate(filtered, adjusted, opts.Offset)
	shaped := Shape(page, opts.Simplified, opts.UltraMinimal)

	return Listing{
		Tools:       shaped,
		Diagnostics: diags,
		Meta: Meta{
			TotalCount:       len(filtered),
			ReturnedCount:    len(shaped),
			RequestedLimit:   requested,
			AdjustedLimit:    adjusted,
			Offset:           opts.Offset,
			Simplified:       opts.Simplified,
			UltraMinimal:     opts.UltraMinimal,
			HasMore:          opts.Offset+adjusted < len(filtered),
			ContextOptimized: adjusted != requested,
		},
	}
}

// Categories aggregates the running inventory into per-category counts.
func (a *Aggregator) Categories(ctx context.Context) ([]Category, int) {
	collected, _ := a.Collect(ctx)
	counts := make(map[string]int)
	for _, t := range collected {
		counts[t.Category]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]Category, 0, len(names))
	for _, name := range names {
		out = append(out, Category{Name: name, Count: counts[name]})
	}
	return out, len(collected)
}

// CallTool routes a call to the first running backend advertising the tool,
// in backend-id order. Duplicate names shadow deterministically.
func (a *Aggregator) CallTool(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error) {
	collected, _ := a.Collect(ctx)
	for _, t := range collected {
		if t.Name != name {
			continue
		}
		params, err := json.Marshal(map[string]any{
			"name":      name,
			"arguments": normalizeArguments(arguments),
		})
		if err != nil {
			return nil, fmt.Errorf("aggregate: encode call params: %w", err)
		}
		resp, err := a.relay.Call(ctx, t.BackendID, "tools/call", params)
		if err != nil {
			return nil, fmt.Errorf("aggregate: call %q on %q: %w", name, t.BackendID, err)
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
}

func normalizeArguments(arguments json.RawMessage) json.RawMessage {
	if len(arguments) == 0 {
		return json.RawMessage("{}")
	}
	return arguments
}
