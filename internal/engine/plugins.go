package engine

import (
	"fmt"

	"spool/server/internal/entity"
)

// World is the read-side view of the simulation handed to plugins.
type World interface {
	Get(kind, id string) (entity.Entity, bool)
	// Neighbors returns the entities sharing or adjacent to ref's chunk.
	Neighbors(ref entity.Ref) []entity.Entity
	Tick() uint64
}

// Plugin is any externally supplied simulation behaviour. A plugin joins one
// or more stages by also implementing PreUpdater, PostUpdater or TickHook.
type Plugin interface {
	Name() string
}

// PreUpdater runs before an entity's own update.
type PreUpdater interface {
	Plugin
	PreUpdate(w World, e entity.Entity, delta float64) error
}

// PostUpdater runs after an entity's update and chunk reassignment.
type PostUpdater interface {
	Plugin
	PostUpdate(w World, e entity.Entity, delta float64) error
}

// TickHook runs once per tick after every entity has been updated.
type TickHook interface {
	Plugin
	AfterUpdate(w World, delta float64) error
}

// PluginFunc adapts a function into a handler-level hook.
type PluginFunc struct {
	Label string
	Fn    func(w World, delta float64) error
}

func (p PluginFunc) Name() string {
	return p.Label
}

func (p PluginFunc) AfterUpdate(w World, delta float64) error {
	if p.Fn == nil {
		return nil
	}
	return p.Fn(w, delta)
}

// Plugin stages.
const (
	StagePre  = "pre_update"
	StagePost = "post_update"
	StageTick = "tick"
)

// PluginFailure describes a plugin hook that returned an error or panicked.
type PluginFailure struct {
	Plugin string
	Stage  string
	Entity *entity.Ref
	Tick   uint64
	Err    error
}

func (f PluginFailure) Error() string {
	if f.Entity != nil {
		return fmt.Sprintf("plugin %s %s on %s: %v", f.Plugin, f.Stage, f.Entity, f.Err)
	}
	return fmt.Sprintf("plugin %s %s: %v", f.Plugin, f.Stage, f.Err)
}

func (f PluginFailure) Unwrap() error {
	return f.Err
}

type pluginSlot struct {
	plugin Plugin
	pre    PreUpdater
	post   PostUpdater
	tick   TickHook
}

// invoke runs fn and converts a panic into an error.
func invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("panic: %w", rerr)
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
