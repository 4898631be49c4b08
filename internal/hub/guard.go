package hub

import (
	"fmt"

	"spool/server/internal/entity"
	"spool/server/logging/simulation"
)

const (
	hookFailuresMetricKey = "hub_hook_failures_total"
	// hookPlugin names callbacks supplied by the embedding game in failure
	// events.
	hookPlugin = "observer"
)

// guard runs a callback supplied by the embedding game on the loop goroutine.
// A panic is logged, published and swallowed so the tick carries on. It
// reports whether fn completed.
func (h *Hub) guard(stage string, ref *entity.Ref, fn func()) bool {
	err := runGuarded(func() error {
		fn()
		return nil
	})
	if err == nil {
		return true
	}
	h.deps.Metrics.Add(hookFailuresMetricKey, 1)
	h.deps.Logger.Printf("[hub] %s hook failed: %v", stage, err)
	payload := simulation.PluginFailedPayload{
		Plugin: hookPlugin,
		Stage:  stage,
		Error:  err.Error(),
	}
	if ref != nil {
		payload.Entity = ref.String()
	}
	simulation.PluginFailed(h.ctx, h.deps.Publisher, h.handler.Tick(), payload)
	return false
}

func runGuarded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hub: callback panicked: %v", r)
		}
	}()
	if fn == nil {
		return nil
	}
	return fn()
}
