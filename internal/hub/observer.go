package hub

import (
	"spool/server/internal/engine"
	"spool/server/internal/entity"
	"spool/server/internal/net/proto"
)

// TickInfo describes a completed update pass. Handler may be read and mutated
// from OnTick; it must not be retained.
type TickInfo struct {
	Tick    uint64
	Delta   float64
	Handler *engine.Handler
}

// Observer receives lifecycle callbacks from the hub loop. Every callback runs
// on the loop goroutine and must not block. Embed NopObserver to implement
// only the callbacks you need.
type Observer interface {
	OnConnectionCreated(connID string)
	// OnPlayerSpawn runs after the owner entity is built and before it is
	// registered, so the entity can still be positioned.
	OnPlayerSpawn(connID string, e entity.Entity)
	OnRegistered(connID string, e entity.Entity)
	OnDisconnect(connID string, owner entity.Ref)
	OnConnectionCountChanged(count int)
	OnKeyEvent(connID string, input proto.KeyInput)
	OnPointerEvent(connID string, payload any)
	OnTick(info TickInfo)
}

// NopObserver implements Observer with empty callbacks.
type NopObserver struct{}

func (NopObserver) OnConnectionCreated(string) {}
func (NopObserver) OnPlayerSpawn(string, entity.Entity) {}
func (NopObserver) OnRegistered(string, entity.Entity) {}
func (NopObserver) OnDisconnect(string, entity.Ref) {}
func (NopObserver) OnConnectionCountChanged(int) {}
func (NopObserver) OnKeyEvent(string, proto.KeyInput) {}
func (NopObserver) OnPointerEvent(string, any) {}
func (NopObserver) OnTick(TickInfo) {}

// PlayerConstructor builds the owner entity for a new connection.
type PlayerConstructor func(connID string) entity.Entity

// DefaultPlayer spawns an entity.Player at the origin.
func DefaultPlayer(connID string) entity.Entity {
	return entity.NewPlayer(connID, 0, 0)
}
