package entity

import (
	"reflect"
	"strconv"
)

// Snapshot is the serializable field set of an entity at a point in time.
type Snapshot map[string]any

// Clone returns a shallow copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	cloned := make(Snapshot, len(s))
	for k, v := range s {
		cloned[k] = v
	}
	return cloned
}

// Changed reports whether any field of next differs from prev. A nil prev
// always counts as a change. Comparison is shallow: nested values are compared
// as whole values, never walked field by field.
func Changed(prev, next Snapshot) bool {
	if prev == nil {
		return true
	}
	if len(prev) != len(next) {
		return true
	}
	for key, value := range next {
		old, ok := prev[key]
		if !ok || !fieldEqual(old, value) {
			return true
		}
	}
	return false
}

func fieldEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// Ref addresses an entity by type tag and id.
type Ref struct {
	Type string `json:"objectType"`
	ID   string `json:"id"`
}

func (r Ref) String() string {
	return r.Type + ":" + r.ID
}

// Entity is the contract every simulation object registered with the engine
// satisfies. Optional behaviour is expressed through the capability
// interfaces below.
type Entity interface {
	Ref() Ref
	// Static entities never enter the per-tick update pipeline.
	Static() bool
	// InitSnapshot is the full projection sent when a client first learns of
	// the entity.
	InitSnapshot() Snapshot
	// Snapshot is the per-tick update projection used for diffing.
	Snapshot() Snapshot
}

// Updatable entities run their own logic once per tick.
type Updatable interface {
	Update(delta float64)
}

// Positionable entities participate in the chunk index.
type Positionable interface {
	Position() (x, y float64)
}

// Owned entities expose a projection visible only to the owning connection.
// An empty owner id means the entity has no owner-restricted projection.
type Owned interface {
	OwnerID() string
	OwnerSnapshot() Snapshot
}

// Returner entities customise the snapshot served through the object portal.
type Returner interface {
	ReturnObject() Snapshot
}

// AlwaysSender entities are included in every tick's update batch.
type AlwaysSender interface {
	AlwaysSend() bool
}

// KeyReceiver entities react to key-state toggles from their owner. SetKey
// reports whether any state changed.
type KeyReceiver interface {
	SetKey(inputID string, pressed bool) bool
}

// Base carries the state shared by all built-in variants. Variants embed it
// and delegate to its helpers when building their projections.
type Base struct {
	kind       string
	id         string
	static     bool
	alwaysSend bool
	owner      string
}

// NewBase constructs the shared entity header.
func NewBase(kind, id string) Base {
	return Base{kind: kind, id: id}
}

// Ref implements Entity.
func (b *Base) Ref() Ref {
	return Ref{Type: b.kind, ID: b.id}
}

// Static implements Entity.
func (b *Base) Static() bool {
	return b.static
}

// SetStatic marks the entity as immutable after spawn.
func (b *Base) SetStatic(static bool) {
	b.static = static
}

// AlwaysSend implements AlwaysSender.
func (b *Base) AlwaysSend() bool {
	return b.alwaysSend
}

// SetAlwaysSend forces the entity into every update batch.
func (b *Base) SetAlwaysSend(always bool) {
	b.alwaysSend = always
}

// OwnerID returns the owning connection id, if any.
func (b *Base) OwnerID() string {
	return b.owner
}

// SetOwner binds the entity to a connection.
func (b *Base) SetOwner(connID string) {
	b.owner = connID
}

// header returns the identifying fields present in every projection.
func (b *Base) header(withType bool) Snapshot {
	snap := Snapshot{"id": b.id}
	if withType {
		snap["objectType"] = b.kind
	}
	return snap
}

// NewID returns a process-unique id for entities that are not bound to a
// connection.
func NewID() string {
	return strconv.FormatUint(idSeq.Add(1), 10)
}
