package chunk

import (
	"math"

	"spool/server/internal/entity"
)

// DefaultSize is the edge length of a chunk in world units.
const DefaultSize = 600.0

// Key identifies a chunk by its quantized coordinates.
type Key struct {
	X int
	Y int
}

// Index buckets positioned entities by chunk. It never owns the entities it
// references; the engine removes them explicitly.
type Index struct {
	size    float64
	cells   map[Key][]entity.Entity
	entries map[entity.Ref]Key
}

// NewIndex constructs an index with the given chunk size. Non-positive sizes
// fall back to DefaultSize.
func NewIndex(size float64) *Index {
	if size <= 0 {
		size = DefaultSize
	}
	return &Index{
		size:    size,
		cells:   make(map[Key][]entity.Entity),
		entries: make(map[entity.Ref]Key),
	}
}

// Size reports the configured chunk edge length.
func (idx *Index) Size() float64 {
	if idx == nil {
		return 0
	}
	return idx.size
}

// KeyAt quantizes a world coordinate.
func (idx *Index) KeyAt(x, y float64) Key {
	return Key{X: int(math.Floor(x / idx.size)), Y: int(math.Floor(y / idx.size))}
}

// Assign places e in the chunk matching its current position, moving it out
// of its previous chunk. It reports whether membership changed. Entities that
// are not positionable are ignored.
func (idx *Index) Assign(e entity.Entity) bool {
	if idx == nil || e == nil {
		return false
	}
	pos, ok := e.(entity.Positionable)
	if !ok {
		return false
	}
	ref := e.Ref()
	next := idx.KeyAt(pos.Position())
	prev, existed := idx.entries[ref]
	if existed && prev == next {
		return false
	}
	if existed {
		idx.removeFromCell(ref, prev)
	}
	idx.entries[ref] = next
	idx.cells[next] = append(idx.cells[next], e)
	return true
}

// Remove deletes an entity from the index.
func (idx *Index) Remove(ref entity.Ref) {
	if idx == nil {
		return
	}
	key, ok := idx.entries[ref]
	if !ok {
		return
	}
	idx.removeFromCell(ref, key)
	delete(idx.entries, ref)
}

// KeyOf returns the chunk currently holding ref.
func (idx *Index) KeyOf(ref entity.Ref) (Key, bool) {
	if idx == nil {
		return Key{}, false
	}
	key, ok := idx.entries[ref]
	return key, ok
}

// Members returns the entities in a single chunk.
func (idx *Index) Members(key Key) []entity.Entity {
	if idx == nil {
		return nil
	}
	bucket := idx.cells[key]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]entity.Entity, len(bucket))
	copy(out, bucket)
	return out
}

// Neighbors returns the entities in the chunk and the eight chunks around it.
func (idx *Index) Neighbors(key Key) []entity.Entity {
	if idx == nil {
		return nil
	}
	var out []entity.Entity
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			out = append(out, idx.cells[Key{X: key.X + dx, Y: key.Y + dy}]...)
		}
	}
	return out
}

// NeighborsOf returns the entities sharing or adjacent to ref's chunk,
// excluding ref itself.
func (idx *Index) NeighborsOf(ref entity.Ref) []entity.Entity {
	key, ok := idx.KeyOf(ref)
	if !ok {
		return nil
	}
	all := idx.Neighbors(key)
	out := all[:0]
	for _, e := range all {
		if e.Ref() != ref {
			out = append(out, e)
		}
	}
	return out
}

// Len reports the number of indexed entities.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// Chunks reports the number of occupied chunks.
func (idx *Index) Chunks() int {
	if idx == nil {
		return 0
	}
	return len(idx.cells)
}

func (idx *Index) removeFromCell(ref entity.Ref, key Key) {
	bucket := idx.cells[key]
	for i := range bucket {
		if bucket[i].Ref() != ref {
			continue
		}
		bucket[i] = bucket[len(bucket)-1]
		bucket[len(bucket)-1] = nil
		bucket = bucket[:len(bucket)-1]
		break
	}
	if len(bucket) == 0 {
		delete(idx.cells, key)
	} else {
		idx.cells[key] = bucket
	}
}
