package jsonrpc

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestIsNotification(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"request with numeric id", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, false},
		{"request with string id", `{"jsonrpc":"2.0","id":"abc","method":"tools/list"}`, false},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, true},
		{"response", `{"jsonrpc":"2.0","id":1,"result":{}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeLine([]byte(tt.line))
			if err != nil {
				t.Fatalf("DecodeLine() error = %v", err)
			}
			if got := msg.IsNotification(); got != tt.want {
				t.Fatalf("IsNotification() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIDEquals(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"numeric match", `2`, true},
		{"quoted numeric match", `"2"`, true},
		{"numeric mismatch", `3`, false},
		{"string id", `"abc"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Message{ID: json.RawMessage(tt.id)}
			if got := msg.IDEquals(2); got != tt.want {
				t.Fatalf("IDEquals(2) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeLineRoundTrip(t *testing.T) {
	req, err := NewRequest(7, "tools/call", map[string]string{"name": "read_file"})
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}

	line, err := EncodeLine(req)
	if err != nil {
		t.Fatalf("EncodeLine() error = %v", err)
	}
	if !bytes.HasSuffix(line, []byte("\n")) {
		t.Fatal("EncodeLine() output missing trailing newline")
	}
	if bytes.Count(line, []byte("\n")) != 1 {
		t.Fatal("EncodeLine() output must be a single line")
	}

	decoded, err := DecodeLine(line)
	if err != nil {
		t.Fatalf("DecodeLine() error = %v", err)
	}
	if decoded.Method != "tools/call" {
		t.Fatalf("Method = %q, want %q", decoded.Method, "tools/call")
	}
	if !decoded.IDEquals(7) {
		t.Fatalf("id = %s, want 7", decoded.ID)
	}
}

func TestNewErrorEchoesID(t *testing.T) {
	id := json.RawMessage(`"req-9"`)
	msg := NewError(id, CodeMethodNotFound, "method not found: nope")
	if msg.JSONRPC != Version {
		t.Fatalf("JSONRPC = %q, want %q", msg.JSONRPC, Version)
	}
	if string(msg.ID) != `"req-9"` {
		t.Fatalf("ID = %s, want %s", msg.ID, id)
	}
	if msg.Error == nil || msg.Error.Code != CodeMethodNotFound {
		t.Fatalf("Error = %+v, want code %d", msg.Error, CodeMethodNotFound)
	}
}

func TestDecodeLineRejectsGarbage(t *testing.T) {
	if _, err := DecodeLine([]byte(`{not json`)); err == nil {
		t.Fatal("DecodeLine() expected error for malformed input")
	}
}

func TestHasID(t *testing.T) {
	if (Message{ID: json.RawMessage("null")}).HasID() {
		t.Fatal("HasID() = true for null id")
	}
	if !(Message{ID: json.RawMessage("0")}).HasID() {
		t.Fatal("HasID() = false for id 0")
	}
}
