// Package tools provides shared helpers for MCP tool handlers.
package tools

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jamesprial/nobreak-mcp/internal/safety"
	"github.com/mark3labs/mcp-go/mcp"
)

// JSONResult marshals v to indented JSON.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ErrorResult(fmt.Sprintf("marshaling result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// ErrorResult returns a result flagged as a tool error.
func ErrorResult(msg string) *mcp.CallToolResult {
	res := mcp.NewToolResultText("error: " + msg)
	res.IsError = true
	return res
}

// Call accumulates what the audit log records about one tool invocation.
type Call struct {
	Tool   string
	Entity string
	Params map[string]any
	Start  time.Time
}

// NewCall starts timing an invocation of tool against entity.
func NewCall(tool, entity string, params map[string]any) *Call {
	if params == nil {
		params = map[string]any{}
	}
	return &Call{Tool: tool, Entity: entity, Params: params, Start: time.Now()}
}

// Log writes the outcome to audit. A nil logger is ignored.
func (c *Call) Log(audit *safety.AuditLogger, outcome, detail string) {
	if audit == nil {
		return
	}
	_ = audit.Log(safety.AuditEntry{
		Timestamp: c.Start,
		Tool:      c.Tool,
		Entity:    c.Entity,
		Params:    c.Params,
		Outcome:   outcome,
		Detail:    detail,
		Duration:  time.Since(c.Start),
	})
}

// OK logs success and returns res.
func (c *Call) OK(audit *safety.AuditLogger, res *mcp.CallToolResult) *mcp.CallToolResult {
	c.Log(audit, safety.OutcomeOK, "")
	return res
}

// Fail logs err and returns it as a tool error.
func (c *Call) Fail(audit *safety.AuditLogger, err error) *mcp.CallToolResult {
	c.Log(audit, safety.OutcomeError, err.Error())
	return ErrorResult(err.Error())
}

// ConfirmPrompt issues a token for tool on resource and returns the prompt.
func ConfirmPrompt(confirm *safety.ConfirmationTracker, tool, resource, description string) *mcp.CallToolResult {
	token := confirm.RequestConfirmation(tool, resource)
	return mcp.NewToolResultText(fmt.Sprintf(
		"Confirmation required for %s on %q.\n\n%s\n\nTo proceed, call %s again with the same arguments and confirmation_token=%q.",
		tool, resource, description, tool, token,
	))
}
