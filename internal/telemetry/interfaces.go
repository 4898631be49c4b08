package telemetry

import (
	"io"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"spool/server/logging"
)

// InstrumentationName scopes every span the server creates.
const InstrumentationName = "spool/server"

// Logger is the plain-text logging surface used for operational messages.
type Logger interface {
	Printf(format string, args ...any)
}

type LoggerFunc func(format string, args ...any)

func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger. A nil logger discards output.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

// Discard returns a logger that drops every message.
func Discard() Logger {
	return WrapLogger(log.New(io.Discard, "", 0))
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// StandardLogger exposes the wrapped logger so the logging router can reuse
// it for sink failures.
func (l *loggerAdapter) StandardLogger() *log.Logger {
	if l == nil {
		return nil
	}
	return l.logger
}

// Metrics records counters and gauges and exposes their current values.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
	Snapshot() map[string]uint64
}

// WrapMetrics adapts the logging metrics registry.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return &metricsAdapter{metrics: metrics}
}

// NewMetrics returns a fresh in-memory registry.
func NewMetrics() Metrics {
	return WrapMetrics(&logging.Metrics{})
}

type metricsAdapter struct {
	metrics *logging.Metrics
}

func (m *metricsAdapter) Add(key string, delta uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryAdd(key, delta)
}

func (m *metricsAdapter) Store(key string, value uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryStore(key, value)
}

func (m *metricsAdapter) Snapshot() map[string]uint64 {
	if m == nil || m.metrics == nil {
		return map[string]uint64{}
	}
	return m.metrics.Snapshot()
}

// Tracer returns the server tracer from the given provider, falling back to
// the global provider when tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}
