package engine

import "spool/server/internal/entity"

// Batches groups snapshots by entity type. Within a type, snapshots keep the
// order the entities were registered in.
type Batches map[string][]entity.Snapshot

func (b Batches) append(kind string, snap entity.Snapshot) {
	b[kind] = append(b[kind], snap)
}

// drop removes every snapshot carrying id from the kind's batch.
func (b Batches) drop(kind, id string) {
	list, ok := b[kind]
	if !ok {
		return
	}
	kept := list[:0]
	for _, snap := range list {
		if snap["id"] != id {
			kept = append(kept, snap)
		}
	}
	if len(kept) == 0 {
		delete(b, kind)
		return
	}
	b[kind] = kept
}

// Len counts snapshots across every type.
func (b Batches) Len() int {
	n := 0
	for _, list := range b {
		n += len(list)
	}
	return n
}

// Packages is the result of one update pass.
type Packages struct {
	// General is broadcast to every connection.
	General Batches
	// Owners holds the owner-restricted projections keyed by owner id.
	Owners map[string]Batches
}

func newPackages() Packages {
	return Packages{General: Batches{}, Owners: map[string]Batches{}}
}

// Owner returns the owner batches for connID, or nil when there are none.
func (p Packages) Owner(connID string) Batches {
	return p.Owners[connID]
}

func (p Packages) drop(ref entity.Ref) {
	p.General.drop(ref.Type, ref.ID)
	for owner, batches := range p.Owners {
		batches.drop(ref.Type, ref.ID)
		if len(batches) == 0 {
			delete(p.Owners, owner)
		}
	}
}

// Removals maps entity types to removed ids in removal order.
type Removals map[string][]string
