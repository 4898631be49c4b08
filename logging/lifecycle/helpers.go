package lifecycle

import (
	"context"

	"spool/server/logging"
)

const (
	// EventConnectionJoined is emitted after a connection's owner entity is registered.
	EventConnectionJoined logging.EventType = "lifecycle.connection_joined"
	// EventConnectionLeft is emitted after a connection is torn down.
	EventConnectionLeft logging.EventType = "lifecycle.connection_left"
	// EventSchedulerIdle is emitted when the tick loop stops for lack of connections.
	EventSchedulerIdle logging.EventType = "lifecycle.scheduler_idle"
	// EventSchedulerWake is emitted when the tick loop resumes.
	EventSchedulerWake logging.EventType = "lifecycle.scheduler_wake"
	// EventWorldReset is emitted when every entity is cleared and clients are re-initialised.
	EventWorldReset logging.EventType = "lifecycle.world_reset"
)

// ConnectionJoinedPayload describes the owner entity spawned for a connection.
type ConnectionJoinedPayload struct {
	ObjectType  string `json:"objectType"`
	ObjectID    string `json:"objectId"`
	Connections int    `json:"connections"`
}

// ConnectionLeftPayload captures why a connection ended.
type ConnectionLeftPayload struct {
	Reason      string `json:"reason"`
	Connections int    `json:"connections"`
}

// SchedulerPayload records the scheduler state transition.
type SchedulerPayload struct {
	Connections int `json:"connections"`
}

// ConnectionJoined publishes a join event.
func ConnectionJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ConnectionJoinedPayload, extra map[string]any) {
	publish(ctx, pub, EventConnectionJoined, logging.SeverityInfo, tick, actor, payload, extra)
}

// ConnectionLeft publishes a leave event.
func ConnectionLeft(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ConnectionLeftPayload, extra map[string]any) {
	publish(ctx, pub, EventConnectionLeft, logging.SeverityInfo, tick, actor, payload, extra)
}

// SchedulerIdle publishes the running to idle transition.
func SchedulerIdle(ctx context.Context, pub logging.Publisher, tick uint64, payload SchedulerPayload) {
	publish(ctx, pub, EventSchedulerIdle, logging.SeverityInfo, tick, logging.WorldRef(), payload, nil)
}

// SchedulerWake publishes the idle to running transition.
func SchedulerWake(ctx context.Context, pub logging.Publisher, tick uint64, payload SchedulerPayload) {
	publish(ctx, pub, EventSchedulerWake, logging.SeverityInfo, tick, logging.WorldRef(), payload, nil)
}

// WorldReset publishes a world reset.
func WorldReset(ctx context.Context, pub logging.Publisher, tick uint64, payload SchedulerPayload) {
	publish(ctx, pub, EventWorldReset, logging.SeverityWarn, tick, logging.WorldRef(), payload, nil)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}
