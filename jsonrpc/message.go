// Package jsonrpc implements the newline-delimited JSON-RPC 2.0 envelope
// shared by the gateway request loop and the ephemeral backend relay.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the only supported JSON-RPC protocol version.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Message is a JSON-RPC 2.0 envelope. The ID is kept raw so the gateway can
// echo numeric and string ids without normalizing them.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("jsonrpc: error %d: %s", e.Code, e.Message)
}

// IsNotification reports whether the message is a request without an id.
// Notifications must never receive a response.
func (m Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IsResponse reports whether the message carries a result or an error.
func (m Message) IsResponse() bool {
	return len(m.Result) > 0 || m.Error != nil
}

// HasID reports whether the message carries a non-null id.
func (m Message) HasID() bool {
	trimmed := bytes.TrimSpace(m.ID)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// IDEquals reports whether the message id matches the given numeric id.
func (m Message) IDEquals(id int64) bool {
	trimmed := bytes.TrimSpace(m.ID)
	if len(trimmed) == 0 {
		return false
	}
	if string(trimmed) == strconv.FormatInt(id, 10) {
		return true
	}
	// Servers occasionally echo numeric ids as strings.
	var quoted string
	if err := json.Unmarshal(trimmed, &quoted); err == nil {
		parsed, err := strconv.ParseInt(quoted, 10, 64)
		return err == nil && parsed == id
	}
	return false
}

// NumericID encodes a numeric request id.
func NumericID(id int64) json.RawMessage {
	return json.RawMessage(strconv.FormatInt(id, 10))
}

// NewRequest builds a request message with a numeric id.
func NewRequest(id int64, method string, params any) (Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Message{}, err
	}
	return Message{
		JSONRPC: Version,
		ID:      NumericID(id),
		Method:  method,
		Params:  raw,
	}, nil
}

// NewNotification builds a request message without an id.
func NewNotification(method string, params any) (Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Message{}, err
	}
	return Message{
		JSONRPC: Version,
		Method:  method,
		Params:  raw,
	}, nil
}

// NewResult builds a success response echoing the request id.
func NewResult(id json.RawMessage, result any) (Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Message{}, fmt.Errorf("jsonrpc: encode result: %w", err)
	}
	return Message{
		JSONRPC: Version,
		ID:      id,
		Result:  raw,
	}, nil
}

// NewRawResult builds a success response from a pre-encoded result payload.
func NewRawResult(id json.RawMessage, result json.RawMessage) Message {
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return Message{
		JSONRPC: Version,
		ID:      id,
		Result:  result,
	}
}

// NewError builds an error response echoing the request id.
func NewError(id json.RawMessage, code int, message string) Message {
	return Message{
		JSONRPC: Version,
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	}
}

// EncodeLine marshals a message as a single protocol line including the
// trailing newline.
func EncodeLine(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: encode message: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeLine parses one protocol line into a message.
func DecodeLine(line []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(bytes.TrimSpace(line), &m); err != nil {
		return Message{}, fmt.Errorf("jsonrpc: decode message: %w", err)
	}
	return m, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: encode params: %w", err)
	}
	return raw, nil
}
