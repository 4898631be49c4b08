package engine

import (
	"spool/server/internal/chunk"
	"spool/server/internal/telemetry"
	"spool/server/logging"
)

// Deps carries shared infrastructure used by the handler.
type Deps struct {
	Logger    telemetry.Logger
	Publisher logging.Publisher
}

// Config shapes the world the handler maintains.
type Config struct {
	// ChunkSize is the edge length of a spatial bucket in world units.
	ChunkSize float64
	// StaticTypes lists entity types that never enter the update pipeline.
	StaticTypes []string
}

func DefaultConfig() Config {
	return Config{ChunkSize: chunk.DefaultSize}
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = telemetry.Discard()
	}
	if d.Publisher == nil {
		d.Publisher = logging.NopPublisher()
	}
	return d
}
