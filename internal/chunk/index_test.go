package chunk

import (
	"testing"

	"spool/server/internal/entity"
)

func TestKeyAtFloorsNegativeCoordinates(t *testing.T) {
	idx := NewIndex(100)
	cases := []struct {
		x, y float64
		want Key
	}{
		{0, 0, Key{0, 0}},
		{99.9, 0, Key{0, 0}},
		{100, 250, Key{1, 2}},
		{-0.1, -100, Key{-1, -1}},
		{-100.1, 5, Key{-2, 0}},
	}
	for _, c := range cases {
		if got := idx.KeyAt(c.x, c.y); got != c.want {
			t.Fatalf("KeyAt(%v, %v) = %v, want %v", c.x, c.y, got, c.want)
		}
	}
}

func TestAssignMovesEntityBetweenChunks(t *testing.T) {
	idx := NewIndex(100)
	p := entity.NewPoint("p1", 10, 10)

	if !idx.Assign(p) {
		t.Fatalf("expected initial assign to change membership")
	}
	if idx.Assign(p) {
		t.Fatalf("expected reassign within the same chunk to be a no-op")
	}

	p.X = 150
	if !idx.Assign(p) {
		t.Fatalf("expected assign across a boundary to change membership")
	}
	if members := idx.Members(Key{0, 0}); len(members) != 0 {
		t.Fatalf("expected old chunk to be empty, got %d members", len(members))
	}
	if members := idx.Members(Key{1, 0}); len(members) != 1 {
		t.Fatalf("expected entity in new chunk, got %d members", len(members))
	}
	if idx.Chunks() != 1 || idx.Len() != 1 {
		t.Fatalf("expected exactly one occupied chunk, got chunks=%d len=%d", idx.Chunks(), idx.Len())
	}
}

func TestRemoveEvictsEntity(t *testing.T) {
	idx := NewIndex(100)
	a := entity.NewPoint("a", 1, 1)
	b := entity.NewPoint("b", 2, 2)
	idx.Assign(a)
	idx.Assign(b)

	idx.Remove(a.Ref())
	if _, ok := idx.KeyOf(a.Ref()); ok {
		t.Fatalf("expected removed entity to have no chunk")
	}
	members := idx.Members(Key{0, 0})
	if len(members) != 1 || members[0].Ref() != b.Ref() {
		t.Fatalf("unexpected members after removal: %v", members)
	}
	idx.Remove(a.Ref())
}

func TestNeighborsOfCoversAdjacentChunks(t *testing.T) {
	idx := NewIndex(100)
	center := entity.NewPoint("center", 150, 150)
	adjacent := entity.NewPoint("adjacent", 250, 50)
	far := entity.NewPoint("far", 450, 150)
	for _, p := range []*entity.Point{center, adjacent, far} {
		idx.Assign(p)
	}

	neighbors := idx.NeighborsOf(center.Ref())
	if len(neighbors) != 1 || neighbors[0].Ref() != adjacent.Ref() {
		t.Fatalf("expected only the adjacent entity, got %v", neighbors)
	}
}

func TestAssignIgnoresUnpositionedEntities(t *testing.T) {
	idx := NewIndex(0)
	if idx.Size() != DefaultSize {
		t.Fatalf("expected default size, got %v", idx.Size())
	}
	if idx.Assign(unpositioned{}) {
		t.Fatalf("expected unpositioned entity to be ignored")
	}
}

type unpositioned struct{}

func (unpositioned) Ref() entity.Ref { return entity.Ref{Type: "GHOST", ID: "1"} }
func (unpositioned) Static() bool { return false }
func (unpositioned) InitSnapshot() entity.Snapshot { return entity.Snapshot{} }
func (unpositioned) Snapshot() entity.Snapshot { return entity.Snapshot{} }
