package hub

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"spool/server/internal/engine"
	"spool/server/internal/net/proto"
	"spool/server/internal/telemetry"
	"spool/server/logging"
)

const (
	// DefaultTickRate is the target number of updates per second.
	DefaultTickRate = 65
	// DefaultSlack is the window before a tick boundary in which the loop
	// stops coarse waiting.
	DefaultSlack = 16 * time.Millisecond
	// DefaultCommandCapacity bounds queued input commands.
	DefaultCommandCapacity = 1024
)

// Config tunes the scheduler and connection manager.
type Config struct {
	TickRate int
	// AdaptiveIdle stops ticking while no connection is open.
	AdaptiveIdle bool
	// UPSReport logs the measured update rate once per second.
	UPSReport bool
	// SleepReport logs when the loop goes idle.
	SleepReport     bool
	Slack           time.Duration
	CommandCapacity int
	Engine          engine.Config
	Plugins         []engine.Plugin
	Codec           proto.Codec
	NewPlayer       PlayerConstructor
	Observer        Observer
}

func DefaultConfig() Config {
	return Config{
		TickRate:        DefaultTickRate,
		AdaptiveIdle:    true,
		Slack:           DefaultSlack,
		CommandCapacity: DefaultCommandCapacity,
		Engine:          engine.DefaultConfig(),
		Codec:           proto.JSONCodec{},
		NewPlayer:       DefaultPlayer,
		Observer:        NopObserver{},
	}
}

// Interval is the nominal time between ticks.
func (c Config) Interval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TickRate <= 0 {
		c.TickRate = def.TickRate
	}
	if c.Slack < 0 {
		c.Slack = 0
	}
	if c.CommandCapacity <= 0 {
		c.CommandCapacity = def.CommandCapacity
	}
	if c.Engine.ChunkSize <= 0 {
		c.Engine.ChunkSize = def.Engine.ChunkSize
	}
	if c.Codec == nil {
		c.Codec = def.Codec
	}
	if c.NewPlayer == nil {
		c.NewPlayer = def.NewPlayer
	}
	if c.Observer == nil {
		c.Observer = def.Observer
	}
	return c
}

// Deps carries shared infrastructure.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Clock     logging.Clock
	Tracer    trace.Tracer
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = telemetry.Discard()
	}
	if d.Metrics == nil {
		d.Metrics = telemetry.NewMetrics()
	}
	if d.Publisher == nil {
		d.Publisher = logging.NopPublisher()
	}
	if d.Clock == nil {
		d.Clock = logging.SystemClock{}
	}
	if d.Tracer == nil {
		d.Tracer = telemetry.Tracer(nil)
	}
	return d
}
