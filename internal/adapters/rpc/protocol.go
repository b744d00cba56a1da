package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dcarrith/chaimcp/internal/adapters/chiarpc"
	"github.com/dcarrith/chaimcp/internal/domains/operations"
	"github.com/dcarrith/chaimcp/internal/platform/metrics"
)

const serverInstructions = "Read-only access to a local Chia full node, wallet and DataLayer. " +
	"Each tool returns the backend's JSON response, or {\"success\": false, \"error\": ...} when the call failed."

// Registry is the operation set exposed as MCP tools.
type Registry interface {
	List() []operations.Operation
	Invoke(ctx context.Context, name string, args map[string]any) (chiarpc.Result, error)
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
	Capabilities    map[string]any `json:"capabilities"`
	Instructions    string         `json:"instructions,omitempty"`
}

// Protocol maps MCP JSON-RPC messages onto the registry. It holds no per-session state,
// so one instance serves every transport and session.
type Protocol struct {
	registry Registry
	info     ServerInfo
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewProtocol(registry Registry, info ServerInfo, logger *slog.Logger, m *metrics.Metrics) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}
	return &Protocol{registry: registry, info: info, logger: logger, metrics: m}
}

// Handle processes one message or batch. It returns false when nothing must be sent back
// (notifications and client responses).
func (p *Protocol) Handle(ctx context.Context, raw []byte) ([]byte, bool) {
	if isBatch(raw) {
		return p.handleBatch(ctx, raw)
	}
	resp := p.handleOne(ctx, raw)
	if resp == nil {
		return nil, false
	}
	return encodeResponse(resp), true
}

func (p *Protocol) handleBatch(ctx context.Context, raw []byte) ([]byte, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return encodeResponse(newError(nil, codeParseError, "parse error")), true
	}
	if len(items) == 0 {
		return encodeResponse(newError(nil, codeInvalidRequest, "invalid request")), true
	}
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		if resp := p.handleOne(ctx, item); resp != nil {
			out = append(out, encodeResponse(resp))
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	data, _ := json.Marshal(out)
	return data, true
}

func (p *Protocol) handleOne(ctx context.Context, raw []byte) *rpcResponse {
	req, errResp := decodeRequest(raw)
	if errResp != nil {
		return errResp
	}
	if req.isClientResponse() {
		return nil
	}
	if req.isNotification() {
		p.logger.Debug("mcp notification", "component", "mcp", "method", req.Method)
		return nil
	}
	return p.dispatch(ctx, req)
}

func (p *Protocol) dispatch(ctx context.Context, req rpcRequest) *rpcResponse {
	switch req.Method {
	case "initialize":
		return newResult(req.ID, initializeResult{
			ProtocolVersion: negotiateProtocolVersion(req.Params),
			ServerInfo:      p.info,
			Capabilities:    map[string]any{"tools": map[string]any{"listChanged": false}},
			Instructions:    serverInstructions,
		})
	case "ping":
		return newResult(req.ID, map[string]any{})
	case "tools/list":
		return newResult(req.ID, map[string]any{"tools": p.toolDescriptors()})
	case "tools/call":
		return p.callTool(ctx, req)
	default:
		return newError(req.ID, codeMethodNotFound, "method not found")
	}
}

func (p *Protocol) toolDescriptors() []toolDescriptor {
	ops := p.registry.List()
	out := make([]toolDescriptor, 0, len(ops))
	for _, op := range ops {
		out = append(out, toolDescriptor{
			Name:        op.Name,
			Description: op.Description,
			InputSchema: op.InputSchema(),
		})
	}
	return out
}

func (p *Protocol) callTool(ctx context.Context, req rpcRequest) *rpcResponse {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params))
	dec.UseNumber()
	if len(req.Params) == 0 || dec.Decode(&params) != nil || params.Name == "" {
		return newError(req.ID, codeInvalidParams, "invalid params")
	}

	requestID := requestIDFromContext(ctx)
	started := time.Now()
	// Backend calls outlive a dropped client; only the client timeout bounds them.
	res, err := p.registry.Invoke(context.WithoutCancel(ctx), params.Name, params.Arguments)
	latency := time.Since(started).Milliseconds()
	if err != nil {
		code, outcome := codeInternalError, "dispatch_error"
		message := err.Error()
		switch {
		case errors.Is(err, operations.ErrOperationNotFound):
			code, outcome = codeInvalidParams, "not_found"
			message = fmt.Sprintf("Unknown tool: %s", params.Name)
		case errors.Is(err, operations.ErrInvalidArguments):
			code, outcome = codeInvalidParams, "invalid_arguments"
		}
		p.metrics.ToolCall(params.Name, outcome)
		p.logger.Warn("tool call rejected", "component", "mcp", "request_id", requestID,
			"operation", params.Name, "outcome", outcome, "error", err, "latency_ms", latency)
		return newError(req.ID, code, message)
	}

	isError := !res.BackendSucceeded()
	outcome := "ok"
	if isError {
		outcome = "error"
	}
	p.metrics.ToolCall(params.Name, outcome)
	p.logger.Info("tool call", "component", "mcp", "request_id", requestID,
		"operation", params.Name, "outcome", outcome, "latency_ms", latency)
	return newResult(req.ID, toolResult{
		Content: []contentBlock{{Type: "text", Text: res.Text()}},
		IsError: isError,
	})
}

func encodeResponse(resp *rpcResponse) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(newError(resp.ID, codeInternalError, "internal error"))
	}
	return data
}

// isInitialize reports whether raw is a single initialize request.
func isInitialize(raw []byte) bool {
	if isBatch(raw) {
		return false
	}
	var head struct {
		Method string `json:"method"`
	}
	return json.Unmarshal(raw, &head) == nil && head.Method == "initialize"
}
