package servex

import (
	"log"
	"sync"
)

// pluginState is one of the four states spec.md §4.5 names.
type pluginState int

const (
	pluginRegistered pluginState = iota
	pluginInitializing
	pluginReady
	pluginFailed
)

// Disposer is returned by a successful Plugin.OnInit and invoked once at
// shutdown, in reverse registration order (spec.md §3 Lifecycles, §4.5).
type Disposer interface {
	Dispose() error
}

// DisposerFunc adapts a plain func() error to a Disposer.
type DisposerFunc func() error

func (f DisposerFunc) Dispose() error { return f() }

// PluginEvents is the narrow onRequest/onResponse subscription surface a
// plugin's OnInit receives, grounded on spec.md §4.5's
// `events$: {onRequest, onResponse}` — a restricted view of the Engine's
// full EventBus so plugins cannot emit on arbitrary channels.
type PluginEvents struct {
	bus *EventBus
}

func (p PluginEvents) OnRequest(fn EventHandler)  { p.bus.On(EventServerRequest, fn) }
func (p PluginEvents) OnResponse(fn EventHandler) { p.bus.On(EventServerResponse, fn) }

// PluginContext is passed to Plugin.OnInit. Scope is a plugin-private
// key/value map the plugin may use for its own bookkeeping; Server exposes
// the owning Engine so a plugin can register routes or middleware during
// init (spec.md §4.5: "onInit... may... install routes").
type PluginContext struct {
	Server *Engine
	Scope  map[string]interface{}
	Events PluginEvents
}

// Plugin is an extension unit with a lifecycle hook. OnInit may return a
// Disposer (or nil) and an error; a non-nil error moves the plugin to
// Failed without aborting the other plugins' initialization (spec.md §4.5).
type Plugin interface {
	Name() string
	OnInit(ctx *PluginContext) (Disposer, error)
}

type queuedDispatch struct {
	fn   func()
	done chan struct{}
}

// pluginEntry tracks one registered plugin's lifecycle state.
type pluginEntry struct {
	plugin Plugin
	state  pluginState
	err    error
}

// PluginManager owns the plugin registry and the init barrier described in
// spec.md §4.4/§4.5/§5: requests arriving before initialization completes
// are queued and replayed, in arrival order, once every plugin has had its
// OnInit invoked (Invariant I6).
type PluginManager struct {
	mu        sync.Mutex
	entries   []*pluginEntry
	disposers []Disposer
	state     pluginState
	queue     []queuedDispatch
	startOnce sync.Once
}

// NewPluginManager returns an empty, Registered-state manager.
func NewPluginManager() *PluginManager {
	return &PluginManager{}
}

// Register adds a plugin. Safe to call only before Start (the Engine calls
// Start lazily on first dispatch); registering after Start has no effect
// on the already-completed initialization pass.
func (m *PluginManager) Register(p Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, &pluginEntry{plugin: p, state: pluginRegistered})
}

// Start triggers initialization exactly once, in a background goroutine,
// so a slow OnInit does not block the caller (S6: two requests issued at
// t=0 and t=10ms while OnInit awaits 50ms).
func (m *PluginManager) Start(e *Engine) {
	m.startOnce.Do(func() {
		go m.initAll(e)
	})
}

func (m *PluginManager) initAll(e *Engine) {
	m.mu.Lock()
	m.state = pluginInitializing
	entries := append([]*pluginEntry(nil), m.entries...)
	m.mu.Unlock()

	for _, entry := range entries {
		entry.state = pluginInitializing
		ctx := &PluginContext{
			Server: e,
			Scope:  make(map[string]interface{}),
			Events: PluginEvents{bus: e.events},
		}
		disposer, err := entry.plugin.OnInit(ctx)
		if err != nil {
			entry.state = pluginFailed
			entry.err = err
			log.Printf("servex: plugin %q failed to initialize: %v", entry.plugin.Name(), err)
			continue
		}
		entry.state = pluginReady
		if disposer != nil {
			m.mu.Lock()
			m.disposers = append(m.disposers, disposer)
			m.mu.Unlock()
		}
	}

	m.mu.Lock()
	m.state = pluginReady
	queue := m.queue
	m.queue = nil
	m.mu.Unlock()

	for _, qd := range queue {
		qd.fn()
		close(qd.done)
	}
}

// Dispatch runs fn immediately if every plugin has finished initializing,
// or queues it to run, in arrival order, once they have (spec.md §4.4
// plugin-init barrier, Invariant P6).
func (m *PluginManager) Dispatch(fn func()) {
	m.mu.Lock()
	if m.state == pluginReady {
		m.mu.Unlock()
		fn()
		return
	}
	done := make(chan struct{})
	m.queue = append(m.queue, queuedDispatch{fn: fn, done: done})
	m.mu.Unlock()
	<-done
}

// Shutdown disposes every Ready plugin's Disposer in reverse registration
// order (spec.md §3 Lifecycles: "Plugin disposers: invoked on server
// shutdown, in reverse registration order").
func (m *PluginManager) Shutdown() {
	m.mu.Lock()
	disposers := append([]Disposer(nil), m.disposers...)
	m.mu.Unlock()

	for i := len(disposers) - 1; i >= 0; i-- {
		if err := disposers[i].Dispose(); err != nil {
			log.Printf("servex: plugin disposer returned error: %v", err)
		}
	}
}
