// Package tool contains the tool-call request/result types, the violation
// taxonomy, and the handler registry the gateway dispatches through.
package tool

import (
	"context"
	"errors"
	"fmt"
)

// Violation identifies why a call was denied or gated. Violations are
// deterministic for a given policy state and are never retried.
type Violation string

const (
	ViolationPathNotAllowed          Violation = "PathNotAllowed"
	ViolationWorkspaceReadOnly       Violation = "WorkspaceReadOnly"
	ViolationSensitiveFileApproval   Violation = "SensitiveFileApprovalRequired"
	ViolationShellDisabled           Violation = "ShellDisabled"
	ViolationDomainBlocked           Violation = "DomainBlocked"
	ViolationCommandBlocked          Violation = "CommandBlocked"
	ViolationUnknownTool             Violation = "UnknownTool"
	ViolationOrgToolNotAllowed       Violation = "OrgToolNotAllowed"
	ViolationOrgActionDenied         Violation = "OrgActionDenied"
	ViolationApprovalAlreadyResolved Violation = "ApprovalAlreadyResolved"
	ViolationApprovalExpired         Violation = "ApprovalExpired"
	ViolationHandlerError            Violation = "HandlerError"
)

// ErrUnknownTool is returned when the dispatch registry has no handler for
// the requested tool name.
var ErrUnknownTool = errors.New("unknown tool")

// ErrMissingParam is returned when a required parameter is absent or not a
// string.
var ErrMissingParam = errors.New("missing parameter")

// StringParam extracts a required string parameter.
func StringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, key)
	}
	return v, nil
}

// Status is the outcome class of a gateway call.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusDenied           Status = "denied"
	StatusApprovalRequired Status = "approval_required"
	StatusError            Status = "error"
)

// Request is one tool call submitted to the gateway.
type Request struct {
	ActorID   string         `json:"actor_id"`
	SessionID string         `json:"session_id"`
	ToolName  string         `json:"tool_name"`
	Params    map[string]any `json:"params"`
}

// Result is the structured outcome of a gateway call. Exactly one of the
// optional fields is meaningful per status: Data for success, Reason and
// Violations for denied/error, ApprovalID for approval_required.
type Result struct {
	Status     Status      `json:"status"`
	Data       any         `json:"data,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Violations []Violation `json:"violations,omitempty"`
	ApprovalID string      `json:"approval_id,omitempty"`
	// Warning carries the advisory injection-detection category attached
	// to read content.
	Warning string `json:"warning,omitempty"`
}

// Denied builds a denial result.
func Denied(reason string, violations ...Violation) Result {
	return Result{Status: StatusDenied, Reason: reason, Violations: violations}
}

// Errored builds an error result.
func Errored(reason string, violations ...Violation) Result {
	return Result{Status: StatusError, Reason: reason, Violations: violations}
}

// Success builds a success result.
func Success(data any) Result {
	return Result{Status: StatusSuccess, Data: data}
}

// Warner is implemented by handler payloads that carry an advisory
// injection-detection warning. The gateway lifts the warning onto the
// result so transports expose it without unpacking the payload.
type Warner interface {
	InjectionWarning() string
}

// Handler executes one concrete tool once policy has allowed the call.
// Handler failures are wrapped as HandlerError by the gateway; they never
// escape as raw errors to the caller.
type Handler interface {
	// Invoke runs the tool with the request parameters.
	Invoke(ctx context.Context, req Request) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

// Invoke implements Handler.
func (f HandlerFunc) Invoke(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}
