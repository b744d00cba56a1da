package chiarpc

import (
	"bytes"
	"encoding/json"
)

// FailureKind classifies why a call did not produce a backend body.
type FailureKind string

const (
	FailureConnectionRefused FailureKind = "connection_refused"
	FailureTransport         FailureKind = "transport"
	FailureHTTPStatus        FailureKind = "http_status"
	FailureDecode            FailureKind = "decode"
)

type Failure struct {
	Kind    FailureKind
	Message string
}

// Result is either the backend's JSON body, untouched, or a Failure.
// Its JSON form is the body itself, or {"success":false,"error":...}.
type Result struct {
	body    json.RawMessage
	failure *Failure
}

func Success(body json.RawMessage) Result {
	return Result{body: body}
}

func Fail(kind FailureKind, message string) Result {
	if message == "" {
		message = string(kind)
	}
	return Result{failure: &Failure{Kind: kind, Message: message}}
}

func (r Result) OK() bool {
	return r.failure == nil
}

func (r Result) Body() json.RawMessage {
	return r.body
}

func (r Result) Failure() (Failure, bool) {
	if r.failure == nil {
		return Failure{}, false
	}
	return *r.failure, true
}

// BackendSucceeded is false for call failures and for bodies carrying "success": false.
func (r Result) BackendSucceeded() bool {
	if r.failure != nil {
		return false
	}
	var head struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(r.body, &head); err != nil {
		return true
	}
	return head.Success == nil || *head.Success
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.failure != nil {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}{Success: false, Error: r.failure.Message})
	}
	if len(r.body) == 0 {
		return []byte("null"), nil
	}
	return r.body, nil
}

// Text renders the result as indented JSON for tool output.
func (r Result) Text() string {
	// MarshalJSON only fails for a two-field struct of string and bool, which it cannot.
	raw, _ := r.MarshalJSON()
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}
