package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mfadhilr/toolrun/pkg/faults"
)

// Info is a read-only view of a registered plugin's state.
type Info struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	Version       string     `json:"version"`
	Priority      int        `json:"priority"`
	Enabled       bool       `json:"enabled"`
	Hooks         []string   `json:"hooks,omitempty"`
	HasMiddleware bool       `json:"has_middleware"`
	ErrorCount    int        `json:"error_count"`
	RegisteredAt  time.Time  `json:"registered_at"`
}

type record struct {
	plugin     *Plugin
	enabled    bool
	seq        int
	errorCount int
	registered time.Time
}

type hookRef struct {
	pluginID string
	fn       HookFunc
}

type middlewareRef struct {
	pluginID string
	priority int
	seq      int
	fn       MiddlewareFunc
}

// Manager holds registered plugins and runs their hook and middleware
// chains. Handler failures are absorbed here: logged, counted against the
// plugin, and skipped.
type Manager struct {
	mu         sync.RWMutex
	plugins    map[string]*record
	hooks      map[string][]hookRef
	middleware []middlewareRef
	nextSeq    int
	onFailure  func(pluginID string)
	logger     zerolog.Logger
}

// NewManager creates an empty plugin manager.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		plugins: make(map[string]*record),
		hooks:   make(map[string][]hookRef),
		logger:  logger.With().Str("component", "plugins").Logger(),
	}
}

// Register stores the plugin (enabled by default), indexes its hooks in
// registration order, and slots its middleware by priority (higher first,
// registration order among equals). The plugin's initializer runs after
// registration; its failure is logged but does not abort.
func (m *Manager) Register(ctx context.Context, p *Plugin) error {
	if err := p.check(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.plugins[p.ID]; exists {
		m.mu.Unlock()
		return &DuplicatePluginError{PluginID: p.ID}
	}

	m.nextSeq++
	seq := m.nextSeq
	m.plugins[p.ID] = &record{plugin: p, enabled: true, seq: seq, registered: time.Now()}

	for name, fn := range p.Hooks {
		m.hooks[name] = append(m.hooks[name], hookRef{pluginID: p.ID, fn: fn})
	}
	if p.Middleware != nil {
		m.middleware = append(m.middleware, middlewareRef{
			pluginID: p.ID,
			priority: p.Priority,
			seq:      seq,
			fn:       p.Middleware,
		})
		sort.SliceStable(m.middleware, func(i, j int) bool {
			if m.middleware[i].priority != m.middleware[j].priority {
				return m.middleware[i].priority > m.middleware[j].priority
			}
			return m.middleware[i].seq < m.middleware[j].seq
		})
	}
	m.mu.Unlock()

	if p.Init != nil {
		if err := safeCall(ctx, p.Init); err != nil {
			m.recordFailure(&faults.PluginError{PluginID: p.ID, Hook: "init", Err: err})
		}
	}

	m.logger.Info().
		Str("plugin", p.ID).
		Str("version", p.Version).
		Int("priority", p.Priority).
		Int("hooks", len(p.Hooks)).
		Bool("middleware", p.Middleware != nil).
		Msg("Plugin registered")

	return nil
}

// InvokeHook folds hc through every enabled plugin's handler for hookName in
// registration order. A handler replaces the context by returning a non-nil
// value; errors and panics are absorbed per handler.
func (m *Manager) InvokeHook(ctx context.Context, hookName string, hc Context) Context {
	m.mu.RLock()
	refs := append([]hookRef(nil), m.hooks[hookName]...)
	m.mu.RUnlock()

	for _, ref := range refs {
		if !m.isEnabled(ref.pluginID) {
			continue
		}
		next, err := safeHook(ctx, ref.fn, hc)
		if err != nil {
			m.recordFailure(&faults.PluginError{PluginID: ref.pluginID, Hook: hookName, Err: err})
			continue
		}
		if next != nil {
			hc = next
		}
	}
	return hc
}

// ApplyMiddleware folds req through the priority-ordered middleware chain,
// restricted to enabled plugins. Same absorb semantics as InvokeHook.
func (m *Manager) ApplyMiddleware(ctx context.Context, req *Request) *Request {
	m.mu.RLock()
	refs := append([]middlewareRef(nil), m.middleware...)
	m.mu.RUnlock()

	for _, ref := range refs {
		if !m.isEnabled(ref.pluginID) {
			continue
		}
		next, err := safeMiddleware(ctx, ref.fn, req)
		if err != nil {
			m.recordFailure(&faults.PluginError{PluginID: ref.pluginID, Err: err})
			continue
		}
		if next != nil {
			req = next
		}
	}
	return req
}

// EnablePlugin flips the flag on and invokes the plugin's OnEnable callback.
func (m *Manager) EnablePlugin(ctx context.Context, pluginID string) error {
	return m.setEnabled(ctx, pluginID, true)
}

// DisablePlugin flips the flag off and invokes OnDisable. Disabled plugins
// stay registered; their handlers are gated per call.
func (m *Manager) DisablePlugin(ctx context.Context, pluginID string) error {
	return m.setEnabled(ctx, pluginID, false)
}

// Enabled reports the flag for pluginID; ok is false for unknown plugins.
func (m *Manager) Enabled(pluginID string) (enabled, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, exists := m.plugins[pluginID]
	if !exists {
		return false, false
	}
	return rec.enabled, true
}

// List returns plugin infos sorted by registration order.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.plugins))
	for _, rec := range m.plugins {
		hooks := make([]string, 0, len(rec.plugin.Hooks))
		for name := range rec.plugin.Hooks {
			hooks = append(hooks, name)
		}
		sort.Strings(hooks)
		infos = append(infos, Info{
			ID:            rec.plugin.ID,
			Name:          rec.plugin.Name,
			Version:       rec.plugin.Version,
			Priority:      rec.plugin.Priority,
			Enabled:       rec.enabled,
			Hooks:         hooks,
			HasMiddleware: rec.plugin.Middleware != nil,
			ErrorCount:    rec.errorCount,
			RegisteredAt:  rec.registered,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return m.plugins[infos[i].ID].seq < m.plugins[infos[j].ID].seq
	})
	return infos
}

func (m *Manager) setEnabled(ctx context.Context, pluginID string, enabled bool) error {
	m.mu.Lock()
	rec, exists := m.plugins[pluginID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("plugin not found: %s", pluginID)
	}
	rec.enabled = enabled
	callback := rec.plugin.OnDisable
	hook := "disable"
	if enabled {
		callback = rec.plugin.OnEnable
		hook = "enable"
	}
	m.mu.Unlock()

	if callback != nil {
		if err := safeCall(ctx, callback); err != nil {
			m.recordFailure(&faults.PluginError{PluginID: pluginID, Hook: hook, Err: err})
		}
	}

	m.logger.Info().Str("plugin", pluginID).Bool("enabled", enabled).Msg("Plugin toggled")
	return nil
}

func (m *Manager) isEnabled(pluginID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, exists := m.plugins[pluginID]
	return exists && rec.enabled
}

// OnFailure sets a callback invoked each time a handler failure is absorbed.
func (m *Manager) OnFailure(fn func(pluginID string)) {
	m.mu.Lock()
	m.onFailure = fn
	m.mu.Unlock()
}

func (m *Manager) recordFailure(perr *faults.PluginError) {
	m.mu.Lock()
	if rec, exists := m.plugins[perr.PluginID]; exists {
		rec.errorCount++
	}
	fn := m.onFailure
	m.mu.Unlock()
	m.logger.Warn().Err(perr).Str("plugin", perr.PluginID).Msg("Plugin handler failed")
	if fn != nil {
		fn(perr.PluginID)
	}
}

func safeCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func safeHook(ctx context.Context, fn HookFunc, hc Context) (out Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, hc)
}

func safeMiddleware(ctx context.Context, fn MiddlewareFunc, req *Request) (out *Request, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, req)
}
