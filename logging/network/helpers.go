package network

import (
	"context"

	"spool/server/logging"
)

const (
	// EventSendQueueOverflow is emitted when a connection's outbound queue is full.
	EventSendQueueOverflow logging.EventType = "network.send_queue_overflow"
	// EventMalformedFrame is emitted when an inbound frame cannot be decoded.
	EventMalformedFrame logging.EventType = "network.malformed_frame"
)

// SendQueuePayload captures the overflowing queue.
type SendQueuePayload struct {
	Capacity int    `json:"capacity"`
	Channel  string `json:"channel,omitempty"`
}

// MalformedFramePayload describes a rejected inbound frame.
type MalformedFramePayload struct {
	Channel string `json:"channel,omitempty"`
	Bytes   int    `json:"bytes"`
	Error   string `json:"error"`
}

// SendQueueOverflow publishes a warning before the connection is dropped.
func SendQueueOverflow(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SendQueuePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSendQueueOverflow,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// MalformedFrame publishes a debug event for a skipped frame.
func MalformedFrame(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload MalformedFramePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMalformedFrame,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}
