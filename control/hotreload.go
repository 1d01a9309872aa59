// control/hotreload.go
// Reload hooks run synchronously, in registration order, on the goroutine
// that applies the new configuration.

package control

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

type reloadHook struct {
	name string
	fn   func(Config) error
}

// ReloadHooks is an ordered set of component reload listeners.
type ReloadHooks struct {
	mu    sync.Mutex
	hooks []reloadHook
}

// NewReloadHooks returns an empty hook set.
func NewReloadHooks() *ReloadHooks { return &ReloadHooks{} }

// Register adds a hook.
func (rh *ReloadHooks) Register(name string, fn func(Config) error) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	rh.hooks = append(rh.hooks, reloadHook{name: name, fn: fn})
}

// Run calls every hook, even after a failure, and combines the errors.
func (rh *ReloadHooks) Run(cfg Config) error {
	rh.mu.Lock()
	hooks := append([]reloadHook(nil), rh.hooks...)
	rh.mu.Unlock()

	var err error
	for _, h := range hooks {
		if herr := h.fn(cfg); herr != nil {
			err = multierr.Append(err, fmt.Errorf("reload %s: %w", h.name, herr))
		}
	}
	return err
}
