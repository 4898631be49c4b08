package engine

import (
	"context"
	"errors"
	"fmt"

	"spool/server/internal/chunk"
	"spool/server/internal/entity"
	"spool/server/logging/simulation"
)

var (
	// ErrNilEntity indicates Add was called without an entity.
	ErrNilEntity = errors.New("engine: entity is nil")
	// ErrDuplicateEntity indicates the (type, id) pair is already registered.
	ErrDuplicateEntity = errors.New("engine: duplicate entity")
)

// Listener observes out-of-band changes to registered entities.
type Listener interface {
	EntityMutated(e entity.Entity)
	EntityRemoved(ref entity.Ref)
}

type record struct {
	e         entity.Entity
	baseline  entity.Snapshot
	needsSend bool
}

type bucket struct {
	order   []string
	records map[string]*record
}

type pendingAdd struct {
	ref      entity.Ref
	snapshot entity.Snapshot
	// replaced marks a re-add of an entity clients already know about.
	replaced bool
}

// Handler owns every registered entity and turns their per-tick changes into
// broadcast packages. It is not safe for concurrent use; a single goroutine
// drives it.
type Handler struct {
	deps    Deps
	index   *chunk.Index
	static  map[string]bool
	types   []string
	buckets map[string]*bucket

	pendingAdds    []pendingAdd
	pendingRemoves []entity.Ref

	plugins   []pluginSlot
	failed    []bool
	listeners []Listener

	tick     uint64
	updating *Packages
}

// NewHandler constructs an empty world.
func NewHandler(cfg Config, deps Deps) *Handler {
	h := &Handler{
		deps:    deps.withDefaults(),
		index:   chunk.NewIndex(cfg.ChunkSize),
		static:  make(map[string]bool),
		buckets: make(map[string]*bucket),
	}
	for _, kind := range cfg.StaticTypes {
		h.static[kind] = true
	}
	return h
}

// Use registers a plugin. Hooks run in registration order.
func (h *Handler) Use(p Plugin) {
	if p == nil {
		return
	}
	slot := pluginSlot{plugin: p}
	slot.pre, _ = p.(PreUpdater)
	slot.post, _ = p.(PostUpdater)
	slot.tick, _ = p.(TickHook)
	h.plugins = append(h.plugins, slot)
	h.failed = append(h.failed, false)
}

// AddListener subscribes l to mutation and removal notifications.
func (h *Handler) AddListener(l Listener) {
	if l != nil {
		h.listeners = append(h.listeners, l)
	}
}

// SetStaticType excludes every entity of kind from the update pipeline.
func (h *Handler) SetStaticType(kind string, static bool) {
	if static {
		h.static[kind] = true
		return
	}
	delete(h.static, kind)
}

// Index exposes the chunk index for neighbour queries and diagnostics.
func (h *Handler) Index() *chunk.Index {
	return h.index
}

// Tick reports the number of completed update passes.
func (h *Handler) Tick() uint64 {
	return h.tick
}

// Len reports the number of registered entities.
func (h *Handler) Len() int {
	n := 0
	for _, b := range h.buckets {
		n += len(b.order)
	}
	return n
}

// Add registers e. It is announced to clients by the next broadcast.
func (h *Handler) Add(e entity.Entity) error {
	if e == nil {
		return ErrNilEntity
	}
	ref := e.Ref()
	b := h.buckets[ref.Type]
	if b == nil {
		b = &bucket{records: make(map[string]*record)}
		h.buckets[ref.Type] = b
		h.types = append(h.types, ref.Type)
	}
	if _, exists := b.records[ref.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, ref)
	}

	b.records[ref.ID] = &record{e: e, baseline: e.Snapshot()}
	b.order = append(b.order, ref.ID)
	h.index.Assign(e)

	replaced := h.cancelRemove(ref)
	h.pendingAdds = append(h.pendingAdds, pendingAdd{ref: ref, snapshot: e.InitSnapshot(), replaced: replaced})
	return nil
}

// Remove deregisters the entity. It reports false when nothing was
// registered under (kind, id).
func (h *Handler) Remove(kind, id string) bool {
	b := h.buckets[kind]
	if b == nil {
		return false
	}
	if _, ok := b.records[id]; !ok {
		return false
	}
	ref := entity.Ref{Type: kind, ID: id}

	delete(b.records, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	h.index.Remove(ref)
	if h.updating != nil {
		h.updating.drop(ref)
	}

	announced := true
	for i, add := range h.pendingAdds {
		if add.ref == ref {
			announced = add.replaced
			h.pendingAdds = append(h.pendingAdds[:i], h.pendingAdds[i+1:]...)
			break
		}
	}
	if announced {
		h.pendingRemoves = append(h.pendingRemoves, ref)
	}

	for _, l := range h.listeners {
		l.EntityRemoved(ref)
	}
	return true
}

func (h *Handler) cancelRemove(ref entity.Ref) bool {
	for i, pending := range h.pendingRemoves {
		if pending == ref {
			h.pendingRemoves = append(h.pendingRemoves[:i], h.pendingRemoves[i+1:]...)
			return true
		}
	}
	return false
}

// Get looks up a registered entity.
func (h *Handler) Get(kind, id string) (entity.Entity, bool) {
	rec := h.lookup(kind, id)
	if rec == nil {
		return nil, false
	}
	return rec.e, true
}

func (h *Handler) lookup(kind, id string) *record {
	b := h.buckets[kind]
	if b == nil {
		return nil
	}
	return b.records[id]
}

// Neighbors implements World.
func (h *Handler) Neighbors(ref entity.Ref) []entity.Entity {
	return h.index.NeighborsOf(ref)
}

// Mutate applies fn to a registered entity outside the tick, flags it for the
// next broadcast and notifies listeners.
func (h *Handler) Mutate(kind, id string, fn func(entity.Entity)) bool {
	rec := h.lookup(kind, id)
	if rec == nil {
		return false
	}
	if fn != nil {
		fn(rec.e)
	}
	rec.needsSend = true
	for _, l := range h.listeners {
		l.EntityMutated(rec.e)
	}
	return true
}

// Each visits every registered entity in registration order.
func (h *Handler) Each(fn func(entity.Entity)) {
	for _, kind := range h.types {
		b := h.buckets[kind]
		for _, id := range b.order {
			fn(b.records[id].e)
		}
	}
}

// Update advances every non-static entity by delta seconds and returns the
// packages to broadcast for this tick.
func (h *Handler) Update(delta float64) Packages {
	h.tick++
	for i := range h.failed {
		h.failed[i] = false
	}
	out := newPackages()
	h.updating = &out
	defer func() { h.updating = nil }()

	for _, kind := range h.types {
		if h.static[kind] {
			continue
		}
		b := h.buckets[kind]
		ids := append([]string(nil), b.order...)
		for _, id := range ids {
			rec := b.records[id]
			if rec == nil || rec.e.Static() {
				continue
			}
			h.updateEntity(rec, delta, out)
		}
	}

	for i, slot := range h.plugins {
		if slot.tick == nil || h.failed[i] {
			continue
		}
		err := invoke(func() error { return slot.tick.AfterUpdate(h, delta) })
		if err != nil {
			h.fail(i, StageTick, nil, err)
		}
	}
	return out
}

func (h *Handler) updateEntity(rec *record, delta float64, out Packages) {
	e := rec.e
	ref := e.Ref()

	h.runEntityHooks(StagePre, rec, delta)
	if h.lookup(ref.Type, ref.ID) != rec {
		return
	}
	if u, ok := e.(entity.Updatable); ok {
		u.Update(delta)
	}
	h.index.Assign(e)
	h.runEntityHooks(StagePost, rec, delta)
	if h.lookup(ref.Type, ref.ID) != rec {
		return
	}

	snap := e.Snapshot()
	send := rec.needsSend || entity.Changed(rec.baseline, snap)
	if as, ok := e.(entity.AlwaysSender); ok && as.AlwaysSend() {
		send = true
	}
	if send {
		out.General.append(ref.Type, snap)
	}
	if owned, ok := e.(entity.Owned); ok {
		if owner := owned.OwnerID(); owner != "" {
			if projection := owned.OwnerSnapshot(); projection != nil {
				batches := out.Owners[owner]
				if batches == nil {
					batches = Batches{}
					out.Owners[owner] = batches
				}
				batches.append(ref.Type, projection)
			}
		}
	}
	rec.baseline = snap
	rec.needsSend = false
}

func (h *Handler) runEntityHooks(stage string, rec *record, delta float64) {
	ref := rec.e.Ref()
	for i, slot := range h.plugins {
		if h.failed[i] {
			continue
		}
		var fn func() error
		switch {
		case stage == StagePre && slot.pre != nil:
			fn = func() error { return slot.pre.PreUpdate(h, rec.e, delta) }
		case stage == StagePost && slot.post != nil:
			fn = func() error { return slot.post.PostUpdate(h, rec.e, delta) }
		default:
			continue
		}
		if err := invoke(fn); err != nil {
			h.fail(i, stage, &ref, err)
		}
		if h.lookup(ref.Type, ref.ID) != rec {
			return
		}
	}
}

func (h *Handler) fail(slot int, stage string, ref *entity.Ref, err error) {
	h.failed[slot] = true
	failure := PluginFailure{
		Plugin: h.plugins[slot].plugin.Name(),
		Stage:  stage,
		Entity: ref,
		Tick:   h.tick,
		Err:    err,
	}
	h.deps.Logger.Printf("[engine] %v", failure)
	payload := simulation.PluginFailedPayload{
		Plugin: failure.Plugin,
		Stage:  stage,
		Error:  err.Error(),
	}
	if ref != nil {
		payload.Entity = ref.String()
	}
	simulation.PluginFailed(context.Background(), h.deps.Publisher, h.tick, payload)
}

// InitPackage returns the init snapshot of every registered entity grouped by
// type. When you is non-nil the matching entity carries playerFlag.
func (h *Handler) InitPackage(you *entity.Ref) Batches {
	out := Batches{}
	h.Each(func(e entity.Entity) {
		snap := e.InitSnapshot()
		ref := e.Ref()
		if you != nil && ref == *you {
			snap["playerFlag"] = true
		}
		out.append(ref.Type, snap)
	})
	return out
}

// PendingAdds returns the init snapshots of entities added since the last
// ResetPackages.
func (h *Handler) PendingAdds() Batches {
	out := Batches{}
	for _, add := range h.pendingAdds {
		out.append(add.ref.Type, add.snapshot)
	}
	return out
}

// PendingRemoves returns the ids removed since the last ResetPackages.
func (h *Handler) PendingRemoves() Removals {
	out := Removals{}
	for _, ref := range h.pendingRemoves {
		out[ref.Type] = append(out[ref.Type], ref.ID)
	}
	return out
}

func (h *Handler) SomethingToAdd() bool {
	return len(h.pendingAdds) > 0
}

func (h *Handler) SomethingToRemove() bool {
	return len(h.pendingRemoves) > 0
}

// ResetPackages clears the add and remove accumulators. Call it once per tick
// after every connection has been sent that tick's packages.
func (h *Handler) ResetPackages() {
	h.pendingAdds = h.pendingAdds[:0]
	h.pendingRemoves = h.pendingRemoves[:0]
}

// Reset removes every entity without queuing removals. Clients are expected
// to be re-initialised with a reset INIT.
func (h *Handler) Reset() {
	var refs []entity.Ref
	h.Each(func(e entity.Entity) { refs = append(refs, e.Ref()) })
	h.types = nil
	h.buckets = make(map[string]*bucket)
	h.index = chunk.NewIndex(h.index.Size())
	h.ResetPackages()
	for _, ref := range refs {
		for _, l := range h.listeners {
			l.EntityRemoved(ref)
		}
	}
}
