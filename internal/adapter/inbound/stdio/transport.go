// Package stdio provides the JSON-RPC transport agents speak to the
// gateway: newline-delimited JSON-RPC 2.0 messages on stdin/stdout.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/farm-gate/farmgate/internal/domain/tool"
	"github.com/farm-gate/farmgate/internal/service"
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInternalError  = -32603
)

// Transport reads tool-call requests from a stream and writes gateway
// results back. One message per line, per the MCP framing convention.
type Transport struct {
	gateway   *service.GatewayService
	approvals *service.ApprovalService
	registry  *tool.Registry
	logger    *slog.Logger
}

// NewTransport creates a stdio Transport.
func NewTransport(gateway *service.GatewayService, approvals *service.ApprovalService, registry *tool.Registry, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		gateway:   gateway,
		approvals: approvals,
		registry:  registry,
		logger:    logger,
	}
}

// Start serves requests from stdin until the context is cancelled or stdin
// closes.
func (t *Transport) Start(ctx context.Context) error {
	return t.Run(ctx, os.Stdin, os.Stdout)
}

// Run serves requests from in, writing responses to out. Exposed for tests.
func (t *Transport) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 256*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := t.handleLine(ctx, line)
		if resp == nil {
			continue
		}
		raw, err := jsonrpc.EncodeMessage(resp)
		if err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
		if _, err := out.Write(append(raw, '\n')); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}

// callParams is the JSON-RPC parameter shape for tools/call.
type callParams struct {
	ActorID   string         `json:"actor_id"`
	SessionID string         `json:"session_id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (t *Transport) handleLine(ctx context.Context, line []byte) jsonrpc.Message {
	msg, err := jsonrpc.DecodeMessage(line)
	if err != nil {
		t.logger.Warn("failed to decode message", "error", err)
		return errorResponse(jsonrpc.ID{}, codeParseError, "parse error")
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok {
		return nil
	}

	switch req.Method {
	case "tools/call":
		return t.handleToolCall(ctx, req)
	case "tools/list":
		return resultResponse(req.ID, map[string]any{"tools": t.registry.Names()})
	case "approvals/list":
		return t.handleApprovalsList(ctx, req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (t *Transport) handleToolCall(ctx context.Context, req *jsonrpc.Request) jsonrpc.Message {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidRequest, "invalid tools/call params")
	}
	if params.ActorID == "" || params.SessionID == "" || params.Name == "" {
		return errorResponse(req.ID, codeInvalidRequest, "actor_id, session_id, and name are required")
	}

	res, err := t.gateway.Execute(ctx, tool.Request{
		ActorID:   params.ActorID,
		SessionID: params.SessionID,
		ToolName:  params.Name,
		Params:    params.Arguments,
	})
	if err != nil {
		t.logger.Error("gateway execution failed",
			"tool", params.Name,
			"actor_id", params.ActorID,
			"error", err)
		return errorResponse(req.ID, codeInternalError, "internal error")
	}
	return resultResponse(req.ID, res)
}

func (t *Transport) handleApprovalsList(ctx context.Context, req *jsonrpc.Request) jsonrpc.Message {
	var params struct {
		SessionID string `json:"session_id"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, codeInvalidRequest, "invalid approvals/list params")
		}
	}
	pending, err := t.approvals.ListPending(ctx, params.SessionID)
	if err != nil {
		t.logger.Error("list approvals failed", "error", err)
		return errorResponse(req.ID, codeInternalError, "internal error")
	}
	return resultResponse(req.ID, map[string]any{"approvals": pending})
}

func resultResponse(id jsonrpc.ID, v any) *jsonrpc.Response {
	raw, err := json.Marshal(v)
	if err != nil {
		return errorResponse(id, codeInternalError, "failed to encode result")
	}
	return &jsonrpc.Response{ID: id, Result: raw}
}

func errorResponse(id jsonrpc.ID, code int64, msg string) *jsonrpc.Response {
	return &jsonrpc.Response{ID: id, Error: &jsonrpc.Error{Code: code, Message: msg}}
}
