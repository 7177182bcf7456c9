// Package servicedef contains the JSON-RPC 2.0 message shapes that the test harness exchanges
// with the service under test.
package servicedef

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// JSONRPCVersion is the protocol marker sent in every request.
const JSONRPCVersion = "2.0"

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a single JSON-RPC call. The harness never sends notifications, so ID is always set.
type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      ldvalue.Value `json:"id"`
	Method  string        `json:"method"`
	Params  ldvalue.Value `json:"params"`
}

// NewRequest builds a request with the protocol marker filled in. A null params value is
// sent as an empty object.
func NewRequest(id ldvalue.Value, method string, params ldvalue.Value) Request {
	if params.IsNull() {
		params = ldvalue.ObjectBuild().Build()
	}
	return Request{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: params}
}

// ErrorObject is the "error" member of an error-shaped response.
type ErrorObject struct {
	Code    int
	Message string
	Data    ldvalue.Value
}

type errorObjectJSON struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    *ldvalue.Value `json:"data,omitempty"`
}

func (e ErrorObject) MarshalJSON() ([]byte, error) {
	out := errorObjectJSON{Code: e.Code, Message: e.Message}
	if !e.Data.IsNull() {
		out.Data = &e.Data
	}
	return json.Marshal(out)
}

func (e *ErrorObject) UnmarshalJSON(data []byte) error {
	var in errorObjectJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	e.Code = in.Code
	e.Message = in.Message
	e.Data = ldvalue.Null()
	if in.Data != nil {
		e.Data = *in.Data
	}
	return nil
}

func (e ErrorObject) String() string {
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

// Response is a reply read back from the service. It is either success-shaped (Error is nil and
// Result carries the payload) or error-shaped (Error is non-nil).
type Response struct {
	JSONRPC string
	ID      ldvalue.Value
	Result  ldvalue.Value
	Error   *ErrorObject
}

// IsError returns true if this is an error-shaped response.
func (r Response) IsError() bool {
	return r.Error != nil
}

type successResponseJSON struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      ldvalue.Value `json:"id"`
	Result  ldvalue.Value `json:"result"`
}

type errorResponseJSON struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      ldvalue.Value `json:"id"`
	Error   *ErrorObject  `json:"error"`
}

// MarshalJSON writes whichever of the two response shapes applies, so that a success
// response never gains a spurious "error" member and vice versa.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(errorResponseJSON{JSONRPC: r.JSONRPC, ID: r.ID, Error: r.Error})
	}
	return json.Marshal(successResponseJSON{JSONRPC: r.JSONRPC, ID: r.ID, Result: r.Result})
}

// wireResponse keeps result and error raw so that we can tell an absent member from a null one.
type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ldvalue.Value   `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// ErrNotResponseShaped is returned by ParseResponse for JSON that decodes but is not
// structurally a JSON-RPC response.
var ErrNotResponseShaped = errors.New("not a JSON-RPC response")

// ParseResponse decodes one response line. Only the structural shape is checked: the value must
// be an object containing either an "error" member (an object, or null) or a "result" member. The protocol marker
// and the id are not validated.
func ParseResponse(data []byte) (Response, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return Response{}, err
	}
	if members == nil {
		return Response{}, fmt.Errorf("%w: value is null", ErrNotResponseShaped)
	}

	var wire wireResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return Response{}, err
	}
	r := Response{JSONRPC: wire.JSONRPC, ID: wire.ID}

	if _, hasError := members["error"]; hasError {
		// Any "error" member, even a null one, makes this an error response.
		e := ErrorObject{Data: ldvalue.Null()}
		if string(wire.Error) != "null" {
			if err := json.Unmarshal(wire.Error, &e); err != nil {
				return Response{}, fmt.Errorf("%w: malformed error member: %s", ErrNotResponseShaped, err)
			}
		}
		r.Error = &e
		return r, nil
	}
	if wire.Result == nil {
		return Response{}, fmt.Errorf("%w: response has neither result nor error", ErrNotResponseShaped)
	}
	r.Result = ldvalue.Parse(wire.Result)
	return r, nil
}
