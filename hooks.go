package kresolved

import "sync"

// HookKey names a (module, property) pair the way kr_module_call's open
// registry did, but as a map key instead of a dynamic-dispatch table
// indexed by raw module pointers.
type HookKey struct {
	Module   string
	Property string
}

// Hook is a user-supplied callback. It receives the resolution context
// explicitly, never via a global, plus an opaque argument/result pair so
// callers don't need a HookRegistry-specific signature per property.
type Hook func(rc *ResolutionContext, arg interface{}) (interface{}, error)

// HookRegistry maps (module, property) to a callback. It replaces the
// source's process-wide kr_module_call dispatch table; callers take a
// *HookRegistry by reference instead of reaching for a global.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[HookKey]Hook
}

// NewHookRegistry returns an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[HookKey]Hook)}
}

// Register installs callback for (module, property), replacing any
// previous registration.
func (r *HookRegistry) Register(module, property string, cb Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[HookKey{module, property}] = cb
}

// Unregister removes a callback.
func (r *HookRegistry) Unregister(module, property string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hooks, HookKey{module, property})
}

// Call invokes the callback registered for (module, property), returning
// NotFound if none is registered.
func (r *HookRegistry) Call(rc *ResolutionContext, module, property string, arg interface{}) (interface{}, error) {
	r.mu.RLock()
	cb, ok := r.hooks[HookKey{module, property}]
	r.mu.RUnlock()
	if !ok {
		return nil, Newf(NotFound, "no hook registered for %s.%s", module, property)
	}
	return cb(rc, arg)
}
