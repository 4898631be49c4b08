package hub

import "go.opentelemetry.io/otel/attribute"

func tickAttributes(tick uint64, delta float64, connections, updated int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("spool.tick", int64(tick)),
		attribute.Float64("spool.delta_seconds", delta),
		attribute.Int("spool.connections", connections),
		attribute.Int("spool.updated_entities", updated),
	}
}
