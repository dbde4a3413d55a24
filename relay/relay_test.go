package relay

import (
	"context"
	"strings"
	"testing"

	"github.com/relayforge/mcpgate/jsonrpc"
	"github.com/relayforge/mcpgate/lifecycle"
)

func TestHandshakeScript(t *testing.T) {
	script, err := handshakeScript("tools/list", nil)
	if err != nil {
		t.Fatalf("handshakeScript() error = %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(script, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("script has %d lines, want 3", len(lines))
	}

	init, err := jsonrpc.DecodeLine([]byte(lines[0]))
	if err != nil {
		t.Fatalf("decode initialize: %v", err)
	}
	if init.Method != "initialize" || !init.IDEquals(1) {
		t.Fatalf("first line = %s, want initialize with id 1", lines[0])
	}

	notif, err := jsonrpc.DecodeLine([]byte(lines[1]))
	if err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if notif.Method != "notifications/initialized" || !notif.IsNotification() {
		t.Fatalf("second line = %s, want initialized notification", lines[1])
	}

	req, err := jsonrpc.DecodeLine([]byte(lines[2]))
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Method != "tools/list" || !req.IDEquals(2) {
		t.Fatalf("third line = %s, want tools/list with id 2", lines[2])
	}
}

func TestExtractResponseLineScan(t *testing.T) {
	output := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05"}}`,
		`{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"read_file"}]}}`,
	}, "\n")

	msg, ok := extractResponse([]byte(output), 2)
	if !ok {
		t.Fatal("extractResponse() did not find the response")
	}
	if !strings.Contains(string(msg.Result), "read_file") {
		t.Fatalf("Result = %s, want tool listing", msg.Result)
	}
}

func TestExtractResponseSkipsLogNoise(t *testing.T) {
	output := strings.Join([]string{
		`starting server on stdio...`,
		`{"level":"info","msg":"ready"}`,
		`{"jsonrpc":"2.0","id":1,"result":{}}`,
		`{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"nope"}}`,
	}, "\n")

	msg, ok := extractResponse([]byte(output), 2)
	if !ok {
		t.Fatal("extractResponse() did not find the response")
	}
	if msg.Error == nil || msg.Error.Code != -32601 {
		t.Fatalf("Error = %+v, want code -32601", msg.Error)
	}
}

func TestExtractResponseBraceFallback(t *testing.T) {
	// No line boundaries at all: two objects glued together after log text.
	output := `booting{"jsonrpc":"2.0","id":1,"result":{}}{"jsonrpc":"2.0","id":2,"result":{"tools":[]}}`

	msg, ok := extractResponse([]byte(output), 2)
	if !ok {
		t.Fatal("extractResponse() did not find the embedded response")
	}
	if !msg.IDEquals(2) {
		t.Fatalf("id = %s, want 2", msg.ID)
	}
}

func TestExtractResponseBracesInsideStrings(t *testing.T) {
	output := `{"jsonrpc":"2.0","id":2,"result":{"text":"a } tricky { value"}}`
	msg, ok := extractResponse([]byte(output), 2)
	if !ok {
		t.Fatal("extractResponse() failed on braces inside string values")
	}
	if !strings.Contains(string(msg.Result), "tricky") {
		t.Fatalf("Result = %s", msg.Result)
	}
}

func TestExtractResponseIgnoresRequests(t *testing.T) {
	// A message with id 2 but no result or error is not a response.
	output := `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`
	if _, ok := extractResponse([]byte(output), 2); ok {
		t.Fatal("extractResponse() accepted a request as a response")
	}
}

type scriptedLauncher struct {
	running map[string]lifecycle.LaunchSpec
}

func (l *scriptedLauncher) LaunchSpec(id string) (lifecycle.LaunchSpec, error) {
	spec, ok := l.running[id]
	if !ok {
		return lifecycle.LaunchSpec{}, ErrBackendNotRunning
	}
	return spec, nil
}

func (l *scriptedLauncher) Running(id string) bool {
	_, ok := l.running[id]
	return ok
}

func (l *scriptedLauncher) RunningIDs() []string {
	ids := make([]string, 0, len(l.running))
	for id := range l.running {
		ids = append(ids, id)
	}
	return ids
}

func TestCallNotRunning(t *testing.T) {
	r := NewProcessRelay(&scriptedLauncher{running: map[string]lifecycle.LaunchSpec{}})
	_, err := r.Call(context.Background(), "ghost", "tools/list", nil)
	if err == nil || !strings.Contains(err.Error(), "not running") {
		t.Fatalf("Call() error = %v, want not-running", err)
	}
}

func TestExchangeAgainstShellBackend(t *testing.T) {
	// A stand-in backend: consumes stdin, answers the handshake request.
	response := `{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"echo","description":"echoes"}]}}`
	launcher := &scriptedLauncher{running: map[string]lifecycle.LaunchSpec{
		"shellbot": {
			Command: "/bin/sh",
			Args:    []string{"-c", "cat > /dev/null; printf '%s\\n' '" + response + "'"},
		},
	}}
	r := NewProcessRelay(launcher)

	tools, err := r.Discover(context.Background(), "shellbot")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("tools = %+v, want [echo]", tools)
	}
}
