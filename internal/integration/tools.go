package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesprial/nobreak-mcp/internal/coordinator"
	"github.com/jamesprial/nobreak-mcp/internal/entity"
	"github.com/jamesprial/nobreak-mcp/internal/nobreak"
	"github.com/jamesprial/nobreak-mcp/internal/safety"
	"github.com/jamesprial/nobreak-mcp/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Tool names.
const (
	ToolStatus    = "nobreak_status"
	ToolSensors   = "nobreak_sensors"
	ToolSwitches  = "nobreak_switches"
	ToolRefresh   = "nobreak_refresh"
	ToolBeepSet   = "nobreak_beep_set"
	ToolTestStart = "nobreak_test_start"
	ToolTestStop  = "nobreak_test_stop"
)

// DestructiveTools lists the tools that require a confirmation token. A
// battery test drops the load onto the battery.
var DestructiveTools = []string{ToolTestStart}

// StatusReport is the nobreak_status payload.
type StatusReport struct {
	Available  bool              `json:"available"`
	OnBattery  bool              `json:"on_battery"`
	Snapshot   *nobreak.Status   `json:"snapshot,omitempty"`
	LastPollAt time.Time         `json:"last_poll_at,omitzero"`
	LastError  string            `json:"last_error,omitempty"`
	Stats      coordinator.Stats `json:"stats"`
}

// Report builds the current StatusReport.
func (h *Hub) Report() StatusReport {
	r := StatusReport{Stats: h.Coordinator.Stats()}
	if st, ok := h.Coordinator.Latest(); ok {
		r.Snapshot = &st
		r.OnBattery = st.OnBattery()
	}
	if u, ok := h.Coordinator.LastUpdate(); ok {
		r.Available = u.OK()
		r.LastPollAt = u.At
		if u.Err != nil {
			r.LastError = u.Err.Error()
		}
	}
	return r
}

// Tools returns every nobreak tool registration for h.
func Tools(h *Hub, confirm *safety.ConfirmationTracker, audit *safety.AuditLogger) []tools.Registration {
	return []tools.Registration{
		toolStatus(h, audit),
		toolStates(h, audit, ToolSensors, entity.KindSensor,
			"List every nobreak sensor with its value, unit and availability."),
		toolStates(h, audit, ToolSwitches, entity.KindSwitch,
			"List the nobreak switches (beep and battery test) and whether each is on."),
		toolRefresh(h, audit),
		toolBeepSet(h, audit),
		toolTestStart(h, confirm, audit),
		toolTestStop(h, audit),
	}
}

func toolStatus(h *Hub, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(ToolStatus,
		mcp.WithDescription("Return the latest nobreak (UPS) snapshot together with polling health."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := tools.NewCall(ToolStatus, "", nil)
		return call.OK(audit, tools.JSONResult(h.Report())), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolStates(h *Hub, audit *safety.AuditLogger, name string, kind entity.Kind, desc string) tools.Registration {
	tool := mcp.NewTool(name, mcp.WithDescription(desc))

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := tools.NewCall(name, "", nil)
		return call.OK(audit, tools.JSONResult(h.States(kind))), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolRefresh(h *Hub, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(ToolRefresh,
		mcp.WithDescription("Poll the nobreak now instead of waiting for the next scheduled update."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := tools.NewCall(ToolRefresh, "", nil)

		err := h.Coordinator.Refresh(ctx)
		switch {
		case errors.Is(err, coordinator.ErrFetchInFlight):
			call.Log(audit, safety.OutcomeInFlight, "")
			return mcp.NewToolResultText("a poll is already in flight; its result will be published when it completes"), nil
		case err != nil:
			return call.Fail(audit, err), nil
		}
		return call.OK(audit, tools.JSONResult(h.Report())), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolBeepSet(h *Hub, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(ToolBeepSet,
		mcp.WithDescription("Turn the nobreak's audible alarm on or off."),
		mcp.WithBoolean("enabled",
			mcp.Required(),
			mcp.Description("true to enable the beep, false to silence it"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		enabled, err := req.RequireBool("enabled")
		call := tools.NewCall(ToolBeepSet, entity.SwitchBeep, map[string]any{"enabled": enabled})
		if err != nil {
			return call.Fail(audit, err), nil
		}

		sw, res := lookupSwitch(h, call, audit, entity.SwitchBeep)
		if sw == nil {
			return res, nil
		}
		if err := sw.Set(ctx, enabled); err != nil {
			return call.Fail(audit, err), nil
		}
		state := "off"
		if enabled {
			state = "on"
		}
		return call.OK(audit, mcp.NewToolResultText("beep turned "+state+"; the new state is reported on the next poll")), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolTestStart(h *Hub, confirm *safety.ConfirmationTracker, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(ToolTestStart,
		mcp.WithDescription("Start a battery self-test. The load runs from the battery while the test executes. Requires confirmation."),
		mcp.WithString("duration",
			mcp.Description(`"quick", "untilflat" (default) or a number of minutes between 1 and 99`),
		),
		mcp.WithString("confirmation_token",
			mcp.Description("Confirmation token returned by a prior call with the same duration"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw := req.GetString("duration", "")
		token := req.GetString("confirmation_token", "")
		call := tools.NewCall(ToolTestStart, entity.SwitchTest, map[string]any{"duration": raw})

		d, err := nobreak.ParseTestDuration(raw)
		if err != nil {
			return call.Fail(audit, err), nil
		}
		call.Params["duration"] = string(d)

		sw, res := lookupSwitch(h, call, audit, entity.SwitchTest)
		if sw == nil {
			return res, nil
		}

		if confirm.NeedsConfirmation(ToolTestStart) && !confirm.Confirm(token, ToolTestStart, string(d)) {
			call.Log(audit, safety.OutcomeConfirm, "")
			return tools.ConfirmPrompt(confirm, ToolTestStart, string(d), describeTest(d)), nil
		}

		if d == nobreak.TestUntilFlat {
			err = sw.TurnOn(ctx)
		} else {
			err = h.Client.StartTestFor(ctx, d)
		}
		if err != nil {
			return call.Fail(audit, err), nil
		}
		return call.OK(audit, mcp.NewToolResultText(fmt.Sprintf("battery test %q started", d))), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolTestStop(h *Hub, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(ToolTestStop,
		mcp.WithDescription("Abort a running battery self-test."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := tools.NewCall(ToolTestStop, entity.SwitchTest, nil)

		sw, res := lookupSwitch(h, call, audit, entity.SwitchTest)
		if sw == nil {
			return res, nil
		}
		if err := sw.TurnOff(ctx); err != nil {
			return call.Fail(audit, err), nil
		}
		return call.OK(audit, mcp.NewToolResultText("battery test stopped")), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

// lookupSwitch returns the switch, or nil and a denial result when the entity
// filter excluded it.
func lookupSwitch(h *Hub, call *tools.Call, audit *safety.AuditLogger, id string) (*entity.Switch, *mcp.CallToolResult) {
	sw, ok := h.Switch(id)
	if !ok {
		msg := fmt.Sprintf("switch %q is not enabled", id)
		call.Log(audit, safety.OutcomeDenied, msg)
		return nil, tools.ErrorResult(msg)
	}
	return sw, nil
}

func describeTest(d nobreak.TestDuration) string {
	switch d {
	case nobreak.TestQuick:
		return "This runs a quick battery test. The load is fed from the battery for a few seconds."
	case nobreak.TestUntilFlat:
		return "This runs the battery until it is flat. The load stays on battery for the whole test and may be dropped when the battery is exhausted."
	default:
		return fmt.Sprintf("This runs the load from the battery for %s minutes.", d)
	}
}
