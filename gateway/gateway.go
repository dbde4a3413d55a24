// Package gateway runs the downstream-facing JSON-RPC loop over stdio. One
// goroutine reads newline-delimited requests, dispatches them in order, and
// writes newline-delimited responses; notifications are consumed silently.
package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/relayforge/mcpgate/aggregate"
	"github.com/relayforge/mcpgate/jsonrpc"
)

// maxLineBytes bounds one protocol line. Tool arguments can carry file
// payloads, so the bound is generous.
const maxLineBytes = 10 * 1024 * 1024

const protocolVersion = "2024-11-05"

// Config configures a gateway server.
type Config struct {
	Name       string
	Version    string
	Aggregator *aggregate.Aggregator
	Logger     *slog.Logger
}

// Server is the stdio protocol loop.
type Server struct {
	cfg Config

	writeMu sync.Mutex
	out     io.Writer
}

// NewServer builds a gateway over the given transport streams.
func NewServer(cfg Config, out io.Writer) (*Server, error) {
	if cfg.Aggregator == nil {
		return nil, errors.New("gateway: aggregator is required")
	}
	if cfg.Name == "" {
		cfg.Name = "mcpgate"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Server{cfg: cfg, out: out}, nil
}

// Serve reads requests until EOF or context cancellation. Malformed lines
// answer with a parse error and never abort the loop.
func (s *Server) Serve(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		msg, err := jsonrpc.DecodeLine(line)
		if err != nil {
			s.cfg.Logger.Warn("unparseable request line", "error", err)
			s.write(jsonrpc.NewError(nil, jsonrpc.CodeParseError, "parse error"))
			continue
		}
		if msg.IsNotification() {
			s.cfg.Logger.Debug("notification consumed", "method", msg.Method)
			continue
		}
		s.write(s.dispatch(ctx, msg))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("gateway: read request stream: %w", err)
	}
	return nil
}

func (s *Server) write(msg jsonrpc.Message) {
	line, err := jsonrpc.EncodeLine(msg)
	if err != nil {
		s.cfg.Logger.Error("response encode failed", "error", err)
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(line); err != nil {
		s.cfg.Logger.Error("response write failed", "error", err)
	}
}

func (s *Server) dispatch(ctx context.Context, msg jsonrpc.Message) jsonrpc.Message {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "tools/list":
		return s.handleToolsList(ctx, msg)
	case "tools/categories":
		return s.handleToolsCategories(ctx, msg)
	case "tools/call":
		return s.handleToolsCall(ctx, msg)
	case "resources/list":
		return mustResult(msg.ID, map[string]any{"resources": []any{}})
	case "prompts/list":
		return mustResult(msg.ID, map[string]any{"prompts": []any{}})
	}
	return jsonrpc.NewError(msg.ID, jsonrpc.CodeMethodNotFound, fmt.Sprintf("method not found: %s", msg.Method))
}

func (s *Server) handleInitialize(msg jsonrpc.Message) jsonrpc.Message {
	return mustResult(msg.ID, map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo": map[string]any{
			"name":    s.cfg.Name,
			"version": s.cfg.Version,
		},
	})
}

// toolsListParams uses pointers where the default differs from the zero
// value, so an absent field and an explicit false stay distinguishable.
type toolsListParams struct {
	Limit        int    `json:"limit"`
	Offset       int    `json:"offset"`
	Category     string `json:"category"`
	NamePattern  string `json:"name_pattern"`
	Simplified   *bool  `json:"simplified"`
	UltraMinimal bool   `json:"ultra_minimal"`
}

func (s *Server) handleToolsList(ctx context.Context, msg jsonrpc.Message) jsonrpc.Message {
	var params toolsListParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return jsonrpc.NewError(msg.ID, jsonrpc.CodeInvalidParams, "invalid tools/list params")
		}
	}

	simplified := true
	if params.Simplified != nil {
		simplified = *params.Simplified
	}

	listing := s.cfg.Aggregator.ListTools(ctx, aggregate.ListOptions{
		Limit:        params.Limit,
		Offset:       params.Offset,
		Category:     params.Category,
		NamePattern:  params.NamePattern,
		Simplified:   simplified,
		UltraMinimal: params.UltraMinimal,
	})
	return mustResult(msg.ID, listing)
}

func (s *Server) handleToolsCategories(ctx context.Context, msg jsonrpc.Message) jsonrpc.Message {
	categories, total := s.cfg.Aggregator.Categories(ctx)
	return mustResult(msg.ID, map[string]any{
		"categories":  categories,
		"total_tools": total,
	})
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, msg jsonrpc.Message) jsonrpc.Message {
	var params toolsCallParams
	if err := json.Unmarshal(msg.Params, &params); err != nil || params.Name == "" {
		return jsonrpc.NewError(msg.ID, jsonrpc.CodeInvalidParams, "tools/call requires a tool name")
	}

	result, err := s.cfg.Aggregator.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		var rpcErr *jsonrpc.Error
		if errors.As(err, &rpcErr) {
			return jsonrpc.Message{JSONRPC: jsonrpc.Version, ID: msg.ID, Error: rpcErr}
		}
		if errors.Is(err, aggregate.ErrToolNotFound) {
			return jsonrpc.NewError(msg.ID, jsonrpc.CodeMethodNotFound, err.Error())
		}
		// Relay and spawn failures carry OS-level detail; that belongs in
		// the logs, not on the protocol channel.
		s.cfg.Logger.Error("tool call failed", "tool", params.Name, "error", err)
		return jsonrpc.NewError(msg.ID, jsonrpc.CodeInternalError, "tool call failed: "+params.Name)
	}
	return jsonrpc.NewRawResult(msg.ID, result)
}

func mustResult(id json.RawMessage, result any) jsonrpc.Message {
	msg, err := jsonrpc.NewResult(id, result)
	if err != nil {
		return jsonrpc.NewError(id, jsonrpc.CodeInternalError, "response encoding failed")
	}
	return msg
}
