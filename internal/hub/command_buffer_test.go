package hub

import (
	"testing"

	"spool/server/internal/telemetry"
)

func TestCommandBufferWraparound(t *testing.T) {
	buffer := newCommandBuffer(3, nil)
	for _, id := range []string{"a", "b", "c"} {
		if !buffer.Push(command{kind: commandKeyInput, connID: id}) {
			t.Fatalf("expected push to succeed for %s", id)
		}
	}
	if buffer.Push(command{kind: commandKeyInput, connID: "overflow"}) {
		t.Fatalf("expected input push to fail when buffer full")
	}
	drained := buffer.Drain()
	if len(drained) != 3 || drained[0].connID != "a" || drained[2].connID != "c" {
		t.Fatalf("unexpected drain order %+v", drained)
	}
	for _, id := range []string{"d", "e"} {
		buffer.Push(command{kind: commandPointerInput, connID: id})
	}
	wrapped := buffer.Drain()
	if len(wrapped) != 2 || wrapped[0].connID != "d" || wrapped[1].connID != "e" {
		t.Fatalf("unexpected order after wraparound: %+v", wrapped)
	}
}

func TestCommandBufferNeverDropsLifecycle(t *testing.T) {
	metrics := telemetry.NewMetrics()
	buffer := newCommandBuffer(2, metrics)
	buffer.Push(command{kind: commandKeyInput, connID: "1"})
	buffer.Push(command{kind: commandKeyInput, connID: "2"})
	if buffer.Push(command{kind: commandMutate}) {
		t.Fatalf("expected input overflow")
	}
	for i := 0; i < 5; i++ {
		if !buffer.Push(command{kind: commandLeave, connID: "leave"}) {
			t.Fatalf("lifecycle push %d rejected", i)
		}
	}
	if buffer.Len() != 7 {
		t.Fatalf("expected buffer to grow, len=%d", buffer.Len())
	}
	if buffer.Push(command{kind: commandKeyInput}) {
		t.Fatalf("expected input to stay bounded after growth")
	}
	drained := buffer.Drain()
	if drained[0].connID != "1" || drained[6].kind != commandLeave {
		t.Fatalf("unexpected drain %+v", drained)
	}
	snap := metrics.Snapshot()
	if snap[commandBufferOverflowMetricKey] != 2 || snap[commandBufferOccupancyMetricKey] != 0 {
		t.Fatalf("unexpected metrics %v", snap)
	}
}
