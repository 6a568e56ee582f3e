// Package rpc implements a bidirectional, newline-delimited JSON-RPC 2.0
// transport over a child process's stdio.
//
// A Peer writes one JSON document per line and runs a single reader
// goroutine that classifies every inbound line as a response, an error, a
// request or a notification. Outbound requests are correlated with their
// responses through a Correlator.
package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the JSON-RPC protocol version written on every message.
const Version = "2.0"

// JSON-RPC 2.0 standard error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ID is a JSON-RPC request id: either an integer or a string.
type ID struct {
	num      int64
	str      string
	isString bool
}

// NumberID returns an integer id.
func NumberID(n int64) ID { return ID{num: n} }

// StringID returns a string id.
func StringID(s string) ID { return ID{str: s, isString: true} }

// String renders the id for logs.
func (id ID) String() string {
	if id.isString {
		return strconv.Quote(id.str)
	}
	return strconv.FormatInt(id.num, 10)
}

// MarshalJSON writes the id as a JSON number or string.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.isString {
		return json.Marshal(id.str)
	}
	return []byte(strconv.FormatInt(id.num, 10)), nil
}

// UnmarshalJSON accepts integer and string ids.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid request id %s", data)
	}
	*id = NumberID(n)
	return nil
}

// Request is a JSON-RPC request expecting a response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Notification is a JSON-RPC message with no id and no response.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a successful JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// ErrorResponse is a failed JSON-RPC response.
type ErrorResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      ID          `json:"id"`
	Error   ErrorObject `json:"error"`
}

// ErrorObject is the error member of an ErrorResponse.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewRequest builds a request, encoding params.
func NewRequest(id ID, method string, params any) (Request, error) {
	raw, err := encodeParams(params)
	if err != nil {
		return Request{}, fmt.Errorf("failed to encode %s params: %w", method, err)
	}
	return Request{JSONRPC: Version, ID: id, Method: method, Params: raw}, nil
}

// NewNotification builds a notification, encoding params.
func NewNotification(method string, params any) (Notification, error) {
	raw, err := encodeParams(params)
	if err != nil {
		return Notification{}, fmt.Errorf("failed to encode %s params: %w", method, err)
	}
	return Notification{JSONRPC: Version, Method: method, Params: raw}, nil
}

func encodeParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}

// messageKind is the classification of an inbound line.
type messageKind int

const (
	kindInvalid messageKind = iota
	kindRequest
	kindNotification
	kindResponse
	kindError
)

// envelope decodes any JSON-RPC message shape.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id"`
	Method  *string         `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *ErrorObject    `json:"error"`
}

// classify decodes line and reports its kind. Lines that are not JSON
// objects, or are objects matching no JSON-RPC shape, are kindInvalid.
func classify(line []byte) (envelope, messageKind) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return env, kindInvalid
	}
	switch {
	case env.Method != nil && env.ID != nil:
		return env, kindRequest
	case env.Method != nil:
		return env, kindNotification
	case env.ID != nil && env.Error != nil:
		return env, kindError
	case env.ID != nil:
		return env, kindResponse
	default:
		return env, kindInvalid
	}
}
