package simulation

import (
	"context"

	"spool/server/logging"
)

const (
	// EventTickBudgetOverrun is emitted when a tick takes longer than its interval.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	// EventPluginFailed is emitted when a plugin hook errors or panics.
	EventPluginFailed logging.EventType = "simulation.plugin_failed"
	// EventUPSReport is emitted once per second with the measured update rate.
	EventUPSReport logging.EventType = "simulation.ups_report"
)

// TickBudgetPayload captures how far a tick exceeded its budget.
type TickBudgetPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
}

// PluginFailedPayload identifies the failing hook.
type PluginFailedPayload struct {
	Plugin string `json:"plugin"`
	Stage  string `json:"stage"`
	Entity string `json:"entity,omitempty"`
	Error  string `json:"error"`
}

// UPSPayload reports updates per second.
type UPSPayload struct {
	UPS         int `json:"ups"`
	Connections int `json:"connections"`
}

// TickBudgetOverrun publishes a warning when a tick runs long.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Actor:    logging.WorldRef(),
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

// PluginFailed publishes an error for an isolated plugin failure.
func PluginFailed(ctx context.Context, pub logging.Publisher, tick uint64, payload PluginFailedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPluginFailed,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: payload.Plugin, Kind: logging.EntityKindPlugin},
		Severity: logging.SeverityError,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

// UPSReport publishes the measured update rate.
func UPSReport(ctx context.Context, pub logging.Publisher, tick uint64, payload UPSPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventUPSReport,
		Tick:     tick,
		Actor:    logging.WorldRef(),
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}
