package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"spool/server/internal/engine"
	"spool/server/internal/hub"
	"spool/server/internal/net/proto"
	"spool/server/internal/net/ws"
	"spool/server/internal/observability"
	"spool/server/logging"
)

// Config is the process configuration read from SPOOL_* environment
// variables.
type Config struct {
	Addr      string `env:"SPOOL_ADDR" envDefault:":2000"`
	ClientDir string `env:"SPOOL_CLIENT_DIR"`

	TickRate        int           `env:"SPOOL_TPS" envDefault:"65"`
	AdaptiveIdle    bool          `env:"SPOOL_ADAPTIVE_IDLE" envDefault:"true"`
	UPSReport       bool          `env:"SPOOL_UPS_REPORT"`
	SleepReport     bool          `env:"SPOOL_SLEEP_REPORT"`
	Slack           time.Duration `env:"SPOOL_SLACK" envDefault:"16ms"`
	CommandCapacity int           `env:"SPOOL_COMMAND_CAPACITY" envDefault:"1024"`
	ChunkSize       float64       `env:"SPOOL_CHUNK_SIZE" envDefault:"600"`
	StaticTypes     []string      `env:"SPOOL_STATIC_TYPES" envSeparator:","`
	Codec           string        `env:"SPOOL_CODEC" envDefault:"json"`

	SendQueue int           `env:"SPOOL_SEND_QUEUE" envDefault:"256"`
	WriteWait time.Duration `env:"SPOOL_WRITE_WAIT" envDefault:"10s"`
	PongWait  time.Duration `env:"SPOOL_PONG_WAIT" envDefault:"60s"`

	LogSinks     []string      `env:"SPOOL_LOG_SINKS" envSeparator:"," envDefault:"console"`
	LogLevel     string        `env:"SPOOL_LOG_LEVEL" envDefault:"info"`
	LogJSONPath  string        `env:"SPOOL_LOG_JSON_PATH"`
	LogJSONFlush time.Duration `env:"SPOOL_LOG_JSON_FLUSH" envDefault:"2s"`

	OTLPEndpoint     string `env:"SPOOL_OTEL_ENDPOINT"`
	ServiceName      string `env:"SPOOL_SERVICE_NAME" envDefault:"spool-server"`
	EnablePprofTrace bool   `env:"SPOOL_PPROF"`
}

// Load parses the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Hub builds the scheduler configuration. The codec name must be known.
func (c Config) Hub() (hub.Config, error) {
	codec, err := proto.CodecByName(c.Codec)
	if err != nil {
		return hub.Config{}, err
	}
	cfg := hub.DefaultConfig()
	cfg.TickRate = c.TickRate
	cfg.AdaptiveIdle = c.AdaptiveIdle
	cfg.UPSReport = c.UPSReport
	cfg.SleepReport = c.SleepReport
	cfg.Slack = c.Slack
	cfg.CommandCapacity = c.CommandCapacity
	cfg.Codec = codec
	cfg.Engine = engine.Config{ChunkSize: c.ChunkSize, StaticTypes: c.StaticTypes}
	return cfg, nil
}

func (c Config) Socket() ws.HandlerConfig {
	cfg := ws.DefaultHandlerConfig()
	cfg.SendQueue = c.SendQueue
	cfg.WriteWait = c.WriteWait
	cfg.PongWait = c.PongWait
	return cfg
}

func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	if len(c.LogSinks) > 0 {
		cfg.EnabledSinks = c.LogSinks
	}
	cfg.MinimumSeverity = logging.ParseSeverity(c.LogLevel)
	cfg.JSON.FilePath = c.LogJSONPath
	cfg.JSON.FlushInterval = c.LogJSONFlush
	return cfg
}

func (c Config) Observability() observability.Config {
	return observability.Config{
		EnablePprofTrace: c.EnablePprofTrace,
		OTLPEndpoint:     c.OTLPEndpoint,
		ServiceName:      c.ServiceName,
	}
}
