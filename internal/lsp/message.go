package lsp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const jsonrpcVersion = "2.0"

// Message is one decoded JSON-RPC message: *Request, *Response or *Notification.
type Message interface {
	isMessage()
}

// Request is a JSON-RPC call. Outgoing requests carry numeric ids; requests
// initiated by the server may use any id form, so it is kept raw.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Notification is a JSON-RPC message with no id that expects no reply.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response answers a Request. Exactly one of Result or Error is meaningful.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the JSON-RPC error object.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (*Request) isMessage()      {}
func (*Notification) isMessage() {}
func (*Response) isMessage()     {}

// newRequest builds an outgoing request with a numeric id.
func newRequest(id int64, method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{
		JSONRPC: jsonrpcVersion,
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
		Method:  method,
		Params:  raw,
	}, nil
}

// newNotification builds an outgoing notification.
func newNotification(method string, params any) (*Notification, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Notification{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  raw,
	}, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return raw, nil
}

// NumericID returns the response id as an integer. Servers echo the id they
// received, but some stringify it, so "7" is accepted as well as 7.
func (r *Response) NumericID() (int64, bool) {
	return parseID(r.ID)
}

// IsNullResult reports whether the response carries no result value.
func (r *Response) IsNullResult() bool {
	return isNull(r.Result)
}

// serverError converts the error object into a *ServerError.
func (e *ResponseError) serverError(method string) *ServerError {
	return &ServerError{
		Method:  method,
		Code:    e.Code,
		Message: e.Message,
		Data:    e.Data,
	}
}

// envelope has the union of all message fields and is used for classification.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *ResponseError  `json:"error"`
}

// DecodeMessage parses a framed payload and classifies it by shape:
// method and id make a Request, method alone a Notification, id alone a
// Response.
func DecodeMessage(payload []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	hasID := !isNull(env.ID)
	switch {
	case env.Method != "" && hasID:
		return &Request{JSONRPC: env.JSONRPC, ID: env.ID, Method: env.Method, Params: env.Params}, nil
	case env.Method != "":
		return &Notification{JSONRPC: env.JSONRPC, Method: env.Method, Params: env.Params}, nil
	case hasID:
		return &Response{JSONRPC: env.JSONRPC, ID: env.ID, Result: env.Result, Error: env.Error}, nil
	default:
		return nil, errUnclassifiable
	}
}

var errUnclassifiable = errors.New("message has neither id nor method")

func parseID(raw json.RawMessage) (int64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
