package hub

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"spool/server/internal/engine"
	"spool/server/internal/entity"
	"spool/server/internal/net/proto"
	"spool/server/internal/portal"
	"spool/server/internal/telemetry"
)

// State is the scheduler state.
type State int32

const (
	StateStopped State = iota
	StateIdle
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// Hub owns the world and every client connection. Its exported methods are
// safe for concurrent use: they queue commands that the loop goroutine started
// by Run applies between ticks. All engine, chunk and portal state is touched
// only by that goroutine.
type Hub struct {
	cfg      Config
	deps     Deps
	observer Observer
	codec    proto.Codec

	handler *engine.Handler
	portal  *portal.Portal

	commands *commandBuffer
	wake     chan struct{}
	done     chan struct{}

	// loop-owned
	conns    map[string]*connection
	order    []string
	dropped  []string
	lastTick time.Time
	ctx      context.Context

	upsCount   int
	upsWindow  time.Time
	started    atomic.Bool
	closed     atomic.Bool
	state      atomic.Int32
	connCount  atomic.Int64
	ticks      atomic.Uint64
	ups        atomic.Int64
	entities   atomic.Int64
	chunks     atomic.Int64
	players    atomic.Pointer[[]string]
	lastTickNs atomic.Int64
}

// New constructs a hub. Call Run to start the loop.
func New(cfg Config, deps Deps) *Hub {
	cfg = cfg.withDefaults()
	deps = deps.withDefaults()
	h := &Hub{
		cfg:      cfg,
		deps:     deps,
		observer: cfg.Observer,
		codec:    cfg.Codec,
		commands: newCommandBuffer(cfg.CommandCapacity, deps.Metrics),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		conns:    make(map[string]*connection),
		ctx:      context.Background(),
	}
	h.handler = engine.NewHandler(cfg.Engine, engine.Deps{Logger: deps.Logger, Publisher: deps.Publisher})
	for _, p := range cfg.Plugins {
		h.handler.Use(p)
	}
	h.portal = portal.New(h.handler, h, deps.Metrics)
	h.handler.AddListener(h.portal)
	empty := []string{}
	h.players.Store(&empty)
	return h
}

// Codec returns the wire codec used for every frame.
func (h *Hub) Codec() proto.Codec {
	return h.codec
}

// Metrics exposes the hub's metric registry.
func (h *Hub) Metrics() telemetry.Metrics {
	return h.deps.Metrics
}

func (h *Hub) enqueue(cmd command) error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	if !h.commands.Push(cmd) {
		return ErrQueueFull
	}
	select {
	case h.wake <- struct{}{}:
	default:
	}
	return nil
}

// Join registers a new connection and returns its id. The owner entity is
// created and the init package sent once the loop applies the join.
func (h *Hub) Join(conn Conn) (string, error) {
	if conn == nil {
		return "", ErrNilConn
	}
	id := uuid.NewString()
	if err := h.enqueue(command{kind: commandJoin, connID: id, conn: conn}); err != nil {
		return "", err
	}
	return id, nil
}

// Leave tears down a connection. Unknown ids are ignored. After shutdown it
// returns ErrHubClosed; every connection has already been closed by then.
func (h *Hub) Leave(connID, reason string) error {
	return h.enqueue(command{kind: commandLeave, connID: connID, reason: reason})
}

// KeyInput toggles an input flag on the connection's owner entity.
func (h *Hub) KeyInput(connID string, input proto.KeyInput) error {
	return h.enqueue(command{kind: commandKeyInput, connID: connID, key: input})
}

// PointerInput forwards a raw pointer payload to the observer.
func (h *Hub) PointerInput(connID string, payload any) error {
	return h.enqueue(command{kind: commandPointerInput, connID: connID, pointer: payload})
}

// RequestObject subscribes the connection to an entity and answers with its
// current snapshot.
func (h *Hub) RequestObject(connID string, ref entity.Ref) error {
	return h.enqueue(command{kind: commandGetObject, connID: connID, ref: ref})
}

// Mutate applies fn to an entity between ticks. Portal subscribers receive
// the new snapshot immediately and the entity is included in the next tick.
func (h *Hub) Mutate(ref entity.Ref, fn func(entity.Entity)) error {
	return h.enqueue(command{kind: commandMutate, ref: ref, mutate: fn})
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (h *Hub) Do(ctx context.Context, fn func(*engine.Handler) error) error {
	result := make(chan error, 1)
	if err := h.enqueue(command{kind: commandDo, do: fn, result: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-h.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrHubClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spawn registers a non-connection entity.
func (h *Hub) Spawn(ctx context.Context, e entity.Entity) error {
	return h.Do(ctx, func(handler *engine.Handler) error {
		return handler.Add(e)
	})
}

// Despawn removes an entity. It reports whether the entity existed.
func (h *Hub) Despawn(ctx context.Context, ref entity.Ref) (bool, error) {
	var removed bool
	err := h.Do(ctx, func(handler *engine.Handler) error {
		removed = handler.Remove(ref.Type, ref.ID)
		return nil
	})
	return removed, err
}

// Emit broadcasts an arbitrary message to every connection.
func (h *Hub) Emit(channel string, data any) error {
	return h.enqueue(command{kind: commandBroadcast, envelope: proto.Envelope{Type: channel, Data: data}})
}

// SetLoading broadcasts the loading gate. message and percentage are optional.
func (h *Hub) SetLoading(loading bool, message *string, percentage *float64) error {
	return h.Emit(proto.TypeLoading, proto.LoadingPayload{Loading: loading, Message: message, Percentage: percentage})
}

// ResetWorld clears every entity, respawns each connection's owner entity and
// re-initialises every client.
func (h *Hub) ResetWorld() error {
	return h.enqueue(command{kind: commandReset})
}

// State reports the scheduler state.
func (h *Hub) State() State {
	return State(h.state.Load())
}

// Connections reports the number of registered connections.
func (h *Hub) Connections() int {
	return int(h.connCount.Load())
}

// Ticks reports the number of executed ticks.
func (h *Hub) Ticks() uint64 {
	return h.ticks.Load()
}

// Players lists the connected connection ids in join order.
func (h *Hub) Players() []string {
	return append([]string(nil), (*h.players.Load())...)
}

// Diagnostics is a point-in-time view of the hub for the diagnostics endpoint.
type Diagnostics struct {
	State          string            `json:"state"`
	TickRate       int               `json:"tickRate"`
	Ticks          uint64            `json:"ticks"`
	UPS            int64             `json:"ups"`
	Connections    int               `json:"connections"`
	Entities       int64             `json:"entities"`
	Chunks         int64             `json:"chunks"`
	QueuedCommands int               `json:"queuedCommands"`
	LastTickMillis int64             `json:"lastTickMillis"`
	Metrics        map[string]uint64 `json:"metrics"`
	Codec          string            `json:"codec"`
}

func (h *Hub) Diagnostics() Diagnostics {
	return Diagnostics{
		State:          h.State().String(),
		TickRate:       h.cfg.TickRate,
		Ticks:          h.Ticks(),
		UPS:            h.ups.Load(),
		Connections:    h.Connections(),
		Entities:       h.entities.Load(),
		Chunks:         h.chunks.Load(),
		QueuedCommands: h.commands.Len(),
		LastTickMillis: h.lastTickNs.Load() / int64(time.Millisecond),
		Metrics:        h.deps.Metrics.Snapshot(),
		Codec:          h.codec.Name(),
	}
}

// Run drives the loop until ctx is cancelled. Open connections are closed on
// return.
func (h *Hub) Run(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrHubRunning
	}
	h.ctx = ctx
	now := h.deps.Clock.Now()
	h.lastTick = now
	h.upsWindow = now
	h.setState(StateIdle)
	if !h.cfg.AdaptiveIdle {
		h.setState(StateRunning)
	}
	h.deps.Logger.Printf("[hub] running at %d tps (interval %s, adaptive idle %t)", h.cfg.TickRate, h.cfg.Interval(), h.cfg.AdaptiveIdle)

	for {
		h.applyCommands()
		if ctx.Err() != nil {
			return h.shutdown()
		}
		if h.State() == StateIdle {
			select {
			case <-ctx.Done():
				return h.shutdown()
			case <-h.wake:
			}
			continue
		}

		now := h.deps.Clock.Now()
		remaining := h.cfg.Interval() - now.Sub(h.lastTick)
		if remaining > 0 {
			wait := remaining
			if remaining > h.cfg.Slack && h.cfg.Slack > 0 {
				wait = remaining - h.cfg.Slack
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return h.shutdown()
			case <-h.wake:
				timer.Stop()
			case <-timer.C:
			}
			continue
		}
		h.tick(now)
	}
}

func (h *Hub) setState(next State) {
	prev := State(h.state.Swap(int32(next)))
	if prev == next {
		return
	}
	h.deps.Metrics.Store(stateMetricKey, uint64(next))
}

func (h *Hub) shutdown() error {
	h.closed.Store(true)
	close(h.done)
	for _, cmd := range h.commands.Drain() {
		switch {
		case cmd.kind == commandJoin:
			cmd.conn.Close()
		case cmd.result != nil:
			cmd.result <- ErrHubClosed
		}
	}
	for _, id := range append([]string(nil), h.order...) {
		h.leave(id, "shutdown")
	}
	h.setState(StateStopped)
	h.deps.Logger.Printf("[hub] stopped after %d ticks", h.Ticks())
	return nil
}

func (h *Hub) applyCommands() {
	for _, cmd := range h.commands.Drain() {
		h.apply(cmd)
		h.flushDropped()
	}
}

func (h *Hub) apply(cmd command) {
	switch cmd.kind {
	case commandJoin:
		h.join(cmd.connID, cmd.conn)
	case commandLeave:
		h.leave(cmd.connID, cmd.reason)
	case commandKeyInput:
		h.keyInput(cmd.connID, cmd.key)
	case commandPointerInput:
		if _, ok := h.conns[cmd.connID]; ok {
			h.guard("pointer_event", nil, func() { h.observer.OnPointerEvent(cmd.connID, cmd.pointer) })
		}
	case commandGetObject:
		h.getObject(cmd.connID, cmd.ref)
	case commandMutate:
		h.guard("mutate", &cmd.ref, func() { h.handler.Mutate(cmd.ref.Type, cmd.ref.ID, cmd.mutate) })
	case commandDo:
		err := runGuarded(func() error { return cmd.do(h.handler) })
		if cmd.result != nil {
			cmd.result <- err
		}
	case commandBroadcast:
		h.broadcastEnvelope(cmd.envelope)
	case commandReset:
		h.resetWorld()
	}
}
