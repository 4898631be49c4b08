package logging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"spool/server/logging"
	"spool/server/logging/sinks"
)

func TestRouterDeliversEventsAndMergesFields(t *testing.T) {
	mem := sinks.NewMemory()
	cfg := logging.DefaultConfig()
	cfg.Fields = map[string]any{"service": "spool"}
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	router := logging.NewRouter(cfg, logging.ClockFunc(func() time.Time { return fixed }), nil, []logging.NamedSink{{Name: "memory", Sink: mem}})

	router.Publish(context.Background(), logging.Event{Type: "test.event", Tick: 7, Severity: logging.SeverityInfo})
	router.Publish(context.Background(), logging.Event{Type: "test.debug", Severity: logging.SeverityDebug})

	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	events := mem.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event after severity filter, got %d", len(events))
	}
	got := events[0]
	if got.Tick != 7 || !got.Time.Equal(fixed) {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.Extra["service"] != "spool" {
		t.Fatalf("expected router fields merged, got %v", got.Extra)
	}
	if stats := router.Stats(); stats.EventsTotal != 1 {
		t.Fatalf("expected 1 routed event, got %d", stats.EventsTotal)
	}
	if router.Sink("memory") != mem {
		t.Fatalf("expected sink lookup by name")
	}
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	router.Publish(context.Background(), logging.Event{Type: "late"})
}

func TestWithFieldsKeepsEventKeys(t *testing.T) {
	mem := sinks.NewMemory()
	pub := logging.WithFields(mem, map[string]any{"conn": "a", "region": "eu"})
	pub.Publish(context.Background(), logging.Event{Type: "x", Extra: map[string]any{"conn": "b"}})

	events := mem.OfType("x")
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if events[0].Extra["conn"] != "b" || events[0].Extra["region"] != "eu" {
		t.Fatalf("unexpected extra %v", events[0].Extra)
	}
}

func TestMetricsCountersAndGauges(t *testing.T) {
	var m logging.Metrics
	m.TelemetryAdd("ticks", 2)
	m.TelemetryAdd("ticks", 3)
	m.TelemetryStore("connections", 4)
	m.TelemetryStore("connections", 1)

	snap := m.Snapshot()
	if snap["ticks"] != 5 || snap["connections"] != 1 {
		t.Fatalf("unexpected snapshot %v", snap)
	}
	keys := m.Keys()
	if len(keys) != 2 || keys[0] != "connections" || keys[1] != "ticks" {
		t.Fatalf("unexpected keys %v", keys)
	}
	var nilMetrics *logging.Metrics
	nilMetrics.TelemetryAdd("ignored", 1)
}

func TestParseSeverity(t *testing.T) {
	cases := map[string]logging.Severity{
		"debug":   logging.SeverityDebug,
		"warning": logging.SeverityWarn,
		"error":   logging.SeverityError,
		"":        logging.SeverityInfo,
	}
	for input, want := range cases {
		if got := logging.ParseSeverity(input); got != want {
			t.Fatalf("ParseSeverity(%q) = %v, want %v", input, got, want)
		}
	}
}

type failingCloseSink struct {
	logging.Sink
	err error
}

func (s failingCloseSink) Close(context.Context) error { return s.err }

func TestRouterCloseReportsSinkErrors(t *testing.T) {
	boom := errors.New("disk gone")
	router := logging.NewRouter(logging.DefaultConfig(), nil, nil, []logging.NamedSink{
		{Name: "memory", Sink: sinks.NewMemory()},
		{Name: "broken", Sink: failingCloseSink{Sink: sinks.NewMemory(), err: boom}},
	})
	if err := router.Close(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected sink close error, got %v", err)
	}
}
