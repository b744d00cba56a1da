package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

const maxRPCBodyBytes int64 = 1 << 20 // 1 MiB

var nullID = json.RawMessage("null")

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`

	// Set when the peer answers a server-initiated request.
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// isNotification reports a message without an id member; it never gets a response.
func (r rpcRequest) isNotification() bool {
	return len(r.ID) == 0
}

func (r rpcRequest) isClientResponse() bool {
	return r.Method == "" && (len(r.Result) > 0 || len(r.Error) > 0)
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func newResult(id json.RawMessage, result any) *rpcResponse {
	return &rpcResponse{JSONRPC: jsonRPCVersion, ID: responseID(id), Result: result}
}

func newError(id json.RawMessage, code int, message string) *rpcResponse {
	return &rpcResponse{
		JSONRPC: jsonRPCVersion,
		ID:      responseID(id),
		Error:   &rpcError{Code: code, Message: message},
	}
}

func responseID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nullID
	}
	return id
}

// isBatch reports a JSON array payload.
func isBatch(raw []byte) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

func decodeRequest(raw []byte) (rpcRequest, *rpcResponse) {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return rpcRequest{}, newError(nil, codeParseError, "parse error")
	}
	if req.isClientResponse() {
		return req, nil
	}
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		return rpcRequest{}, newError(req.ID, codeInvalidRequest, "invalid request")
	}
	return req, nil
}

func writeRPC(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
