// Package relay forwards JSON-RPC requests to tool backends by spawning a
// short-lived backend process per request. Each process receives the full
// MCP handshake and one request on stdin, answers on stdout, and exits; no
// long-lived protocol connection is ever held.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/relayforge/mcpgate/jsonrpc"
	"github.com/relayforge/mcpgate/lifecycle"
)

// ErrBackendNotRunning is returned when a relay target is not running.
var ErrBackendNotRunning = errors.New("relay: backend is not running")

// Default per-exchange deadlines. Discovery tolerates slow cold starts;
// tool calls get slightly longer for real work.
const (
	DefaultProbeTimeout    = 15 * time.Second
	DefaultDiscoverTimeout = 45 * time.Second
	DefaultCallTimeout     = 50 * time.Second
)

// handshakeRequestID is the id of the one real request in each exchange.
// The initialize request always uses id 1.
const (
	initializeRequestID int64 = 1
	handshakeRequestID  int64 = 2
)

// Launcher resolves backend launch commands and running state. The lifecycle
// manager implements it.
type Launcher interface {
	LaunchSpec(id string) (lifecycle.LaunchSpec, error)
	Running(id string) bool
	RunningIDs() []string
}

// ToolDescriptor is one tool advertised by a backend.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Relay exchanges single requests with backends.
type Relay interface {
	Discover(ctx context.Context, backendID string) ([]ToolDescriptor, error)
	Call(ctx context.Context, backendID string, method string, params json.RawMessage) (jsonrpc.Message, error)
	Probe(ctx context.Context, backendID string) error
}

// ProcessRelay spawns one backend process per exchange.
type ProcessRelay struct {
	launcher Launcher

	probeTimeout    time.Duration
	discoverTimeout time.Duration
	callTimeout     time.Duration
}

// NewProcessRelay builds a relay over the given launcher.
func NewProcessRelay(launcher Launcher) *ProcessRelay {
	return &ProcessRelay{
		launcher:        launcher,
		probeTimeout:    DefaultProbeTimeout,
		discoverTimeout: DefaultDiscoverTimeout,
		callTimeout:     DefaultCallTimeout,
	}
}

// WithTimeouts overrides the per-exchange deadlines. Zero values keep the
// defaults.
func (r *ProcessRelay) WithTimeouts(probe, discover, call time.Duration) *ProcessRelay {
	if probe > 0 {
		r.probeTimeout = probe
	}
	if discover > 0 {
		r.discoverTimeout = discover
	}
	if call > 0 {
		r.callTimeout = call
	}
	return r
}

// Discover lists the tools a running backend advertises.
func (r *ProcessRelay) Discover(ctx context.Context, backendID string) ([]ToolDescriptor, error) {
	started := time.Now()
	resp, err := r.exchange(ctx, backendID, "tools/list", nil, r.discoverTimeout)
	if err != nil {
		emitDiscoverObservation(DiscoverObservation{
			BackendID:  backendID,
			DurationMS: time.Since(started).Milliseconds(),
		})
		return nil, err
	}

	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		emitDiscoverObservation(DiscoverObservation{
			BackendID:  backendID,
			DurationMS: time.Since(started).Milliseconds(),
		})
		return nil, fmt.Errorf("relay: decode tool list from %q: %w", backendID, err)
	}

	emitDiscoverObservation(DiscoverObservation{
		BackendID:  backendID,
		ToolCount:  len(result.Tools),
		DurationMS: time.Since(started).Milliseconds(),
		Success:    true,
	})
	return result.Tools, nil
}

// Call forwards one request to a running backend and returns the backend's
// response message. A response carrying a JSON-RPC error is returned as-is,
// not as a Go error; transport failures are.
func (r *ProcessRelay) Call(ctx context.Context, backendID string, method string, params json.RawMessage) (jsonrpc.Message, error) {
	started := time.Now()
	resp, err := r.exchange(ctx, backendID, method, params, r.callTimeout)

	obs := CallObservation{
		BackendID:  backendID,
		Method:     method,
		DurationMS: time.Since(started).Milliseconds(),
	}
	switch {
	case err != nil:
		obs.ErrorCode = "transport"
	case resp.Error != nil:
		obs.ErrorCode = fmt.Sprintf("rpc_%d", resp.Error.Code)
	default:
		obs.Success = true
	}
	emitCallObservation(obs)
	return resp, err
}

// Probe checks that a running backend still answers the handshake.
func (r *ProcessRelay) Probe(ctx context.Context, backendID string) error {
	started := time.Now()
	_, err := r.exchange(ctx, backendID, "tools/list", nil, r.probeTimeout)
	emitProbeObservation(ProbeObservation{
		BackendID:  backendID,
		DurationMS: time.Since(started).Milliseconds(),
		Healthy:    err == nil,
	})
	return err
}

// exchange spawns the backend, writes the full handshake plus one request to
// stdin, then reads stdout for the response to the request id.
func (r *ProcessRelay) exchange(ctx context.Context, backendID, method string, params json.RawMessage, timeout time.Duration) (jsonrpc.Message, error) {
	if !r.launcher.Running(backendID) {
		return jsonrpc.Message{}, fmt.Errorf("%w: %q", ErrBackendNotRunning, backendID)
	}
	spec, err := r.launcher.LaunchSpec(backendID)
	if err != nil {
		return jsonrpc.Message{}, fmt.Errorf("relay: resolve launch for %q: %w", backendID, err)
	}

	script, err := handshakeScript(method, params)
	if err != nil {
		return jsonrpc.Message{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 -- the command comes from the injected catalog.
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdin = strings.NewReader(script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	// A response on stdout wins even when the process exits non-zero; the
	// exit races the pipe close after stdin is consumed.
	resp, ok := extractResponse(stdout.Bytes(), handshakeRequestID)
	if ok {
		return resp, nil
	}

	if ctx.Err() != nil {
		return jsonrpc.Message{}, fmt.Errorf("relay: backend %q timed out after %s", backendID, timeout)
	}
	if runErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return jsonrpc.Message{}, fmt.Errorf("relay: backend %q: %w: %s", backendID, runErr, detail)
		}
		return jsonrpc.Message{}, fmt.Errorf("relay: backend %q: %w", backendID, runErr)
	}
	return jsonrpc.Message{}, fmt.Errorf("relay: backend %q produced no response for %s", backendID, method)
}

// handshakeScript renders the full three-message exchange written to the
// backend's stdin: initialize, the initialized notification, then the
// request itself.
func handshakeScript(method string, params json.RawMessage) (string, error) {
	init, err := jsonrpc.NewRequest(initializeRequestID, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"clientInfo":      map[string]any{"name": "mcpgate", "version": "1.0"},
	})
	if err != nil {
		return "", fmt.Errorf("relay: build initialize: %w", err)
	}
	initialized, err := jsonrpc.NewNotification("notifications/initialized", nil)
	if err != nil {
		return "", fmt.Errorf("relay: build initialized: %w", err)
	}
	request := jsonrpc.Message{
		JSONRPC: jsonrpc.Version,
		ID:      jsonrpc.NumericID(handshakeRequestID),
		Method:  method,
		Params:  params,
	}

	var b strings.Builder
	for _, msg := range []jsonrpc.Message{init, initialized, request} {
		line, err := jsonrpc.EncodeLine(msg)
		if err != nil {
			return "", err
		}
		b.Write(line)
	}
	return b.String(), nil
}

// extractResponse finds the response to the given id in raw backend stdout.
// Well-behaved backends answer one JSON object per line, but some interleave
// log text, so a brace-matching scan backs up the line scan.
func extractResponse(output []byte, id int64) (jsonrpc.Message, bool) {
	for _, line := range bytes.Split(output, []byte("\n")) {
		if msg, ok := decodeCandidate(line, id); ok {
			return msg, true
		}
	}
	for _, candidate := range scanJSONObjects(output) {
		if msg, ok := decodeCandidate(candidate, id); ok {
			return msg, true
		}
	}
	return jsonrpc.Message{}, false
}

func decodeCandidate(data []byte, id int64) (jsonrpc.Message, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return jsonrpc.Message{}, false
	}
	msg, err := jsonrpc.DecodeLine(data)
	if err != nil {
		return jsonrpc.Message{}, false
	}
	if !msg.IDEquals(id) || !msg.IsResponse() {
		return jsonrpc.Message{}, false
	}
	return msg, true
}

// scanJSONObjects yields every balanced top-level {...} span in the input,
// tracking strings and escapes so braces inside values do not split objects.
func scanJSONObjects(data []byte) [][]byte {
	var (
		out      [][]byte
		depth    int
		start    int
		inString bool
		escaped  bool
	)
	for i, c := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				out = append(out, data[start:i+1])
			}
		}
	}
	return out
}
