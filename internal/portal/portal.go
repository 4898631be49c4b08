package portal

import (
	"slices"

	"spool/server/internal/entity"
	"spool/server/internal/telemetry"
)

const pushesMetricKey = "portal_pushes_total"

// Lookup resolves registered entities.
type Lookup interface {
	Get(kind, id string) (entity.Entity, bool)
}

// Sender delivers a pushed snapshot to one connection. Delivery must not block.
type Sender interface {
	SendObject(connID string, ref entity.Ref, snap entity.Snapshot)
}

// SenderFunc adapts a function into a Sender.
type SenderFunc func(connID string, ref entity.Ref, snap entity.Snapshot)

func (f SenderFunc) SendObject(connID string, ref entity.Ref, snap entity.Snapshot) {
	if f != nil {
		f(connID, ref, snap)
	}
}

// Portal tracks per-object subscriptions and pushes fresh snapshots to
// subscribers whenever an entity is mutated outside the tick. Subscriptions
// last until the entity is removed or the connection disconnects.
//
// Portal is driven from the same goroutine as the engine handler.
type Portal struct {
	lookup      Lookup
	sender      Sender
	metrics     telemetry.Metrics
	subscribers map[entity.Ref][]string
	byConn      map[string]map[entity.Ref]struct{}
}

// New constructs a portal. A nil metrics sink is allowed.
func New(lookup Lookup, sender Sender, metrics telemetry.Metrics) *Portal {
	return &Portal{
		lookup:      lookup,
		sender:      sender,
		metrics:     metrics,
		subscribers: make(map[entity.Ref][]string),
		byConn:      make(map[string]map[entity.Ref]struct{}),
	}
}

// Projection is the snapshot served for e: its ReturnObject view when it has
// one, otherwise its init snapshot.
func Projection(e entity.Entity) entity.Snapshot {
	if r, ok := e.(entity.Returner); ok {
		return r.ReturnObject()
	}
	return e.InitSnapshot()
}

// Request subscribes connID to ref and returns the current snapshot. Unknown
// entities yield (nil, false) and create no subscription.
func (p *Portal) Request(connID string, ref entity.Ref) (entity.Snapshot, bool) {
	e, ok := p.lookup.Get(ref.Type, ref.ID)
	if !ok {
		return nil, false
	}
	subs := p.subscribers[ref]
	if !slices.Contains(subs, connID) {
		p.subscribers[ref] = append(subs, connID)
		refs := p.byConn[connID]
		if refs == nil {
			refs = make(map[entity.Ref]struct{})
			p.byConn[connID] = refs
		}
		refs[ref] = struct{}{}
	}
	return Projection(e), true
}

// EntityMutated pushes e's projection to every subscriber.
func (p *Portal) EntityMutated(e entity.Entity) {
	subs := slices.Clone(p.subscribers[e.Ref()])
	if len(subs) == 0 {
		return
	}
	ref := e.Ref()
	snap := Projection(e)
	for _, connID := range subs {
		p.sender.SendObject(connID, ref, snap)
	}
	if p.metrics != nil {
		p.metrics.Add(pushesMetricKey, uint64(len(subs)))
	}
}

// EntityRemoved drops every subscription to ref.
func (p *Portal) EntityRemoved(ref entity.Ref) {
	for _, connID := range p.subscribers[ref] {
		if refs := p.byConn[connID]; refs != nil {
			delete(refs, ref)
			if len(refs) == 0 {
				delete(p.byConn, connID)
			}
		}
	}
	delete(p.subscribers, ref)
}

// Disconnect drops every subscription held by connID.
func (p *Portal) Disconnect(connID string) {
	for ref := range p.byConn[connID] {
		subs := slices.DeleteFunc(p.subscribers[ref], func(id string) bool { return id == connID })
		if len(subs) == 0 {
			delete(p.subscribers, ref)
		} else {
			p.subscribers[ref] = subs
		}
	}
	delete(p.byConn, connID)
}

// Subscribers lists the connections subscribed to ref in subscription order.
func (p *Portal) Subscribers(ref entity.Ref) []string {
	return slices.Clone(p.subscribers[ref])
}

// Len reports the number of objects with at least one subscriber.
func (p *Portal) Len() int {
	return len(p.subscribers)
}
