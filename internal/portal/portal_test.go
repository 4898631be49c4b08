package portal

import (
	"testing"

	"spool/server/internal/engine"
	"spool/server/internal/entity"
	"spool/server/internal/telemetry"
)

type push struct {
	conn string
	ref  entity.Ref
	snap entity.Snapshot
}

func newWiredPortal(t *testing.T) (*engine.Handler, *Portal, *[]push) {
	t.Helper()
	h := engine.NewHandler(engine.DefaultConfig(), engine.Deps{})
	var pushes []push
	p := New(h, SenderFunc(func(connID string, ref entity.Ref, snap entity.Snapshot) {
		pushes = append(pushes, push{conn: connID, ref: ref, snap: snap})
	}), telemetry.NewMetrics())
	h.AddListener(p)
	return h, p, &pushes
}

func TestRequestUnknownEntity(t *testing.T) {
	_, p, _ := newWiredPortal(t)
	snap, ok := p.Request("c1", entity.Ref{Type: entity.TypePoint, ID: "missing"})
	if ok || snap != nil {
		t.Fatalf("expected empty result, got %v %v", snap, ok)
	}
	if p.Len() != 0 {
		t.Fatalf("expected no subscription for a missing entity")
	}
}

func TestOnePushPerMutation(t *testing.T) {
	h, p, pushes := newWiredPortal(t)
	h.Add(entity.NewPoint("1", 0, 0))
	ref := entity.Ref{Type: entity.TypePoint, ID: "1"}

	snap, ok := p.Request("c1", ref)
	if !ok || snap["x"] != 0.0 || snap["color"] != "red" {
		t.Fatalf("unexpected initial snapshot %v", snap)
	}
	p.Request("c1", ref)
	if subs := p.Subscribers(ref); len(subs) != 1 {
		t.Fatalf("expected duplicate requests to subscribe once, got %v", subs)
	}

	h.Mutate(ref.Type, ref.ID, func(e entity.Entity) { e.(*entity.Point).X = 5 })
	if len(*pushes) != 1 {
		t.Fatalf("expected exactly one push, got %d", len(*pushes))
	}
	if got := (*pushes)[0]; got.conn != "c1" || got.ref != ref || got.snap["x"] != 5.0 {
		t.Fatalf("unexpected push %+v", got)
	}

	h.Update(0.016)
	if len(*pushes) != 1 {
		t.Fatalf("ticks must not push, got %d pushes", len(*pushes))
	}
}

func TestReturnObjectProjection(t *testing.T) {
	h, p, _ := newWiredPortal(t)
	obj := entity.NewObject(entity.TypeObject, "o1", entity.Snapshot{"hp": 3})
	h.Add(obj)
	snap, ok := p.Request("c1", obj.Ref())
	if !ok || snap["hp"] != 3 || snap["objectType"] != entity.TypeObject {
		t.Fatalf("unexpected projection %v", snap)
	}
}

func TestRemovalAndDisconnectPurgeSubscriptions(t *testing.T) {
	h, p, pushes := newWiredPortal(t)
	h.Add(entity.NewPoint("a", 0, 0))
	h.Add(entity.NewPoint("b", 0, 0))
	a := entity.Ref{Type: entity.TypePoint, ID: "a"}
	b := entity.Ref{Type: entity.TypePoint, ID: "b"}
	p.Request("c1", a)
	p.Request("c2", a)
	p.Request("c1", b)

	h.Remove(a.Type, a.ID)
	if len(p.Subscribers(a)) != 0 {
		t.Fatalf("expected removal to purge subscribers")
	}

	p.Disconnect("c1")
	if len(p.Subscribers(b)) != 0 || p.Len() != 0 {
		t.Fatalf("expected disconnect to drop remaining subscriptions")
	}
	h.Mutate(b.Type, b.ID, nil)
	if len(*pushes) != 0 {
		t.Fatalf("expected no pushes after unsubscribe, got %d", len(*pushes))
	}
}
