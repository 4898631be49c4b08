package hub

import (
	"slices"
	"time"

	"spool/server/internal/engine"
	"spool/server/internal/entity"
	"spool/server/internal/net/proto"
	"spool/server/logging"
	"spool/server/logging/lifecycle"
	"spool/server/logging/network"
	"spool/server/logging/simulation"
)

const (
	ticksMetricKey        = "hub_ticks_total"
	tickDurationMetricKey = "hub_tick_duration_ms"
	bytesSentMetricKey    = "hub_bytes_sent_total"
	messagesSentMetricKey = "hub_messages_sent_total"
	connectionsMetricKey  = "hub_connections"
	sendFailuresMetricKey = "hub_send_failures_total"
	stateMetricKey        = "hub_state"
)

func (h *Hub) join(id string, conn Conn) {
	if _, exists := h.conns[id]; exists {
		conn.Close()
		return
	}
	h.guard("connection_created", nil, func() { h.observer.OnConnectionCreated(id) })

	owner := h.newPlayer(id)
	if owner == nil {
		h.deps.Logger.Printf("[hub] player constructor returned nil for %s", id)
		conn.Close()
		return
	}
	ref := owner.Ref()
	h.guard("player_spawn", &ref, func() { h.observer.OnPlayerSpawn(id, owner) })
	if err := h.handler.Add(owner); err != nil {
		h.deps.Logger.Printf("[hub] failed to register owner for %s: %v", id, err)
		conn.Close()
		return
	}
	h.guard("registered", &ref, func() { h.observer.OnRegistered(id, owner) })

	c := &connection{id: id, conn: conn, owner: ref}
	h.conns[id] = c
	h.order = append(h.order, id)
	h.connectionsChanged()

	h.sendEnvelope(c, proto.Envelope{Type: proto.TypeInit, Data: proto.InitPayload{Objects: h.handler.InitPackage(&ref), ResetHandler: true}})
	h.sendEnvelope(c, proto.Envelope{Type: proto.TypeAssignID, Data: proto.AssignIDPayload{ClientID: id, ClientObject: ref}})

	lifecycle.ConnectionJoined(h.ctx, h.deps.Publisher, h.handler.Tick(), logging.ConnectionRef(id), lifecycle.ConnectionJoinedPayload{
		ObjectType:  ref.Type,
		ObjectID:    ref.ID,
		Connections: len(h.conns),
	}, nil)
	h.countChanged()
	h.reevaluate()
}

func (h *Hub) leave(id, reason string) {
	c, ok := h.conns[id]
	if !ok {
		return
	}
	h.handler.Remove(c.owner.Type, c.owner.ID)
	delete(h.conns, id)
	if i := slices.Index(h.order, id); i >= 0 {
		h.order = slices.Delete(h.order, i, i+1)
	}
	h.portal.Disconnect(id)
	c.conn.Close()
	h.connectionsChanged()

	if reason == "" {
		reason = "closed"
	}
	h.guard("disconnect", &c.owner, func() { h.observer.OnDisconnect(id, c.owner) })
	lifecycle.ConnectionLeft(h.ctx, h.deps.Publisher, h.handler.Tick(), logging.ConnectionRef(id), lifecycle.ConnectionLeftPayload{
		Reason:      reason,
		Connections: len(h.conns),
	}, nil)
	h.countChanged()
	h.reevaluate()
}

func (h *Hub) countChanged() {
	n := len(h.conns)
	h.guard("connection_count_changed", nil, func() { h.observer.OnConnectionCountChanged(n) })
}

// newPlayer builds a connection's owner entity. A failing constructor yields
// nil.
func (h *Hub) newPlayer(id string) entity.Entity {
	var owner entity.Entity
	h.guard("new_player", nil, func() { owner = h.cfg.NewPlayer(id) })
	return owner
}

func (h *Hub) connectionsChanged() {
	h.connCount.Store(int64(len(h.conns)))
	h.deps.Metrics.Store(connectionsMetricKey, uint64(len(h.conns)))
	players := slices.Clone(h.order)
	h.players.Store(&players)
}

// reevaluate moves the scheduler between idle and running.
func (h *Hub) reevaluate() {
	state := h.State()
	if state == StateStopped {
		return
	}
	if h.cfg.AdaptiveIdle && len(h.conns) == 0 {
		if state != StateIdle {
			h.setState(StateIdle)
			if h.cfg.SleepReport {
				h.deps.Logger.Printf("[hub] sleeping")
			}
			lifecycle.SchedulerIdle(h.ctx, h.deps.Publisher, h.handler.Tick(), lifecycle.SchedulerPayload{})
		}
		return
	}
	if state != StateRunning {
		now := h.deps.Clock.Now()
		h.lastTick = now
		h.upsWindow = now
		h.upsCount = 0
		h.setState(StateRunning)
		if h.cfg.SleepReport {
			h.deps.Logger.Printf("[hub] waking up")
		}
		lifecycle.SchedulerWake(h.ctx, h.deps.Publisher, h.handler.Tick(), lifecycle.SchedulerPayload{Connections: len(h.conns)})
	}
}

func (h *Hub) keyInput(id string, input proto.KeyInput) {
	c, ok := h.conns[id]
	if !ok {
		return
	}
	// Only a real state change counts as a mutation; other keys go to the
	// observer alone.
	if e, ok := h.handler.Get(c.owner.Type, c.owner.ID); ok {
		if receiver, ok := e.(entity.KeyReceiver); ok {
			changed := false
			h.guard("key_input", &c.owner, func() { changed = receiver.SetKey(input.InputID, input.Value) })
			if changed {
				h.handler.Mutate(c.owner.Type, c.owner.ID, nil)
			}
		}
	}
	h.guard("key_event", &c.owner, func() { h.observer.OnKeyEvent(id, input) })
}

func (h *Hub) getObject(id string, ref entity.Ref) {
	c, ok := h.conns[id]
	if !ok {
		return
	}
	snap, _ := h.portal.Request(id, ref)
	h.sendEnvelope(c, objectEnvelope(ref, snap))
}

// SendObject implements portal.Sender.
func (h *Hub) SendObject(connID string, ref entity.Ref, snap entity.Snapshot) {
	if c, ok := h.conns[connID]; ok {
		h.sendEnvelope(c, objectEnvelope(ref, snap))
	}
}

func objectEnvelope(ref entity.Ref, snap entity.Snapshot) proto.Envelope {
	return proto.Envelope{Type: proto.TypeSendObject, Data: proto.SendObjectPayload{ObjectType: ref.Type, ID: ref.ID, Object: snap}}
}

func (h *Hub) broadcastEnvelope(env proto.Envelope) {
	frame, ok := h.encode(env)
	if !ok {
		return
	}
	for _, id := range h.order {
		h.send(h.conns[id], frame)
	}
}

func (h *Hub) resetWorld() {
	h.handler.Reset()
	for _, id := range h.order {
		c := h.conns[id]
		owner := h.newPlayer(id)
		if owner == nil {
			h.drop(id)
			continue
		}
		ref := owner.Ref()
		h.guard("player_spawn", &ref, func() { h.observer.OnPlayerSpawn(id, owner) })
		if err := h.handler.Add(owner); err != nil {
			h.deps.Logger.Printf("[hub] failed to respawn owner for %s: %v", id, err)
			h.drop(id)
			continue
		}
		h.guard("registered", &ref, func() { h.observer.OnRegistered(id, owner) })
		c.owner = ref
	}
	h.handler.ResetPackages()

	reset, ok := h.encode(proto.Envelope{Type: proto.TypeReset})
	for _, id := range h.order {
		c := h.conns[id]
		if ok {
			h.send(c, reset)
		}
		ref := c.owner
		h.sendEnvelope(c, proto.Envelope{Type: proto.TypeInit, Data: proto.InitPayload{Objects: h.handler.InitPackage(&ref), ResetHandler: true}})
		h.sendEnvelope(c, proto.Envelope{Type: proto.TypeAssignID, Data: proto.AssignIDPayload{ClientID: id, ClientObject: ref}})
	}
	lifecycle.WorldReset(h.ctx, h.deps.Publisher, h.handler.Tick(), lifecycle.SchedulerPayload{Connections: len(h.conns)})
}

func (h *Hub) tick(now time.Time) {
	delta := now.Sub(h.lastTick).Seconds()
	h.lastTick = now

	ctx, span := h.deps.Tracer.Start(h.ctx, "hub.tick")
	defer span.End()
	start := time.Now()

	pkgs := h.handler.Update(delta)
	tick := h.handler.Tick()
	h.guard("tick", nil, func() { h.observer.OnTick(TickInfo{Tick: tick, Delta: delta, Handler: h.handler}) })
	h.broadcast(tick, pkgs)
	h.handler.ResetPackages()
	h.flushDropped()

	elapsed := time.Since(start)
	h.ticks.Add(1)
	h.lastTickNs.Store(elapsed.Nanoseconds())
	h.entities.Store(int64(h.handler.Len()))
	h.chunks.Store(int64(h.handler.Index().Chunks()))
	h.deps.Metrics.Add(ticksMetricKey, 1)
	h.deps.Metrics.Store(tickDurationMetricKey, uint64(elapsed.Milliseconds()))
	span.SetAttributes(tickAttributes(tick, delta, len(h.conns), pkgs.General.Len())...)

	if budget := h.cfg.Interval(); elapsed > budget {
		simulation.TickBudgetOverrun(ctx, h.deps.Publisher, tick, simulation.TickBudgetPayload{
			DurationMillis: elapsed.Milliseconds(),
			BudgetMillis:   budget.Milliseconds(),
			Ratio:          float64(elapsed) / float64(budget),
		})
	}

	h.upsCount++
	if window := now.Sub(h.upsWindow); window >= time.Second {
		ups := int(float64(h.upsCount) / window.Seconds())
		h.ups.Store(int64(ups))
		if h.cfg.UPSReport {
			h.deps.Logger.Printf("[hub] UPS: %d", ups)
		}
		simulation.UPSReport(ctx, h.deps.Publisher, tick, simulation.UPSPayload{UPS: ups, Connections: len(h.conns)})
		h.upsCount = 0
		h.upsWindow = now
	}
}

// broadcast delivers one tick to every connection: pending adds, the general
// update, the connection's owner update and pending removals, in that order.
func (h *Hub) broadcast(tick uint64, pkgs engine.Packages) {
	if len(h.order) == 0 {
		return
	}
	var initFrame, removeFrame []byte
	if h.handler.SomethingToAdd() {
		initFrame, _ = h.encode(proto.Envelope{Type: proto.TypeInit, Data: proto.InitPayload{Objects: h.handler.PendingAdds()}})
	}
	general, _ := h.encode(proto.Envelope{Type: proto.TypeUpdate, Data: proto.UpdatePayload{Objects: pkgs.General, Tick: tick}})
	if h.handler.SomethingToRemove() {
		removeFrame, _ = h.encode(proto.Envelope{Type: proto.TypeRemove, Data: proto.RemovePayload{Objects: h.handler.PendingRemoves()}})
	}

	for _, id := range h.order {
		c := h.conns[id]
		if initFrame != nil {
			h.send(c, initFrame)
		}
		if general != nil {
			h.send(c, general)
		}
		if owned := pkgs.Owner(id); len(owned) > 0 {
			h.sendEnvelope(c, proto.Envelope{Type: proto.TypeUpdate, Data: proto.UpdatePayload{Objects: owned, Owner: true, Tick: tick}})
		}
		if removeFrame != nil {
			h.send(c, removeFrame)
		}
	}
}

func (h *Hub) encode(env proto.Envelope) ([]byte, bool) {
	frame, err := h.codec.Encode(env)
	if err != nil {
		h.deps.Logger.Printf("[hub] failed to encode %s: %v", env.Type, err)
		return nil, false
	}
	return frame, true
}

func (h *Hub) sendEnvelope(c *connection, env proto.Envelope) {
	if frame, ok := h.encode(env); ok {
		h.send(c, frame)
	}
}

// send queues frame on c. A failed send marks the connection for removal at
// the next safe point; it is never torn down mid-broadcast.
func (h *Hub) send(c *connection, frame []byte) {
	if c == nil || slices.Contains(h.dropped, c.id) {
		return
	}
	if err := c.conn.Send(frame); err != nil {
		h.deps.Metrics.Add(sendFailuresMetricKey, 1)
		network.SendQueueOverflow(h.ctx, h.deps.Publisher, h.handler.Tick(), logging.ConnectionRef(c.id), network.SendQueuePayload{}, map[string]any{"error": err.Error()})
		h.drop(c.id)
		return
	}
	h.deps.Metrics.Add(messagesSentMetricKey, 1)
	h.deps.Metrics.Add(bytesSentMetricKey, uint64(len(frame)))
}

func (h *Hub) drop(id string) {
	if !slices.Contains(h.dropped, id) {
		h.dropped = append(h.dropped, id)
	}
}

func (h *Hub) flushDropped() {
	for len(h.dropped) > 0 {
		id := h.dropped[0]
		h.dropped = h.dropped[1:]
		h.leave(id, "send_failed")
	}
}
