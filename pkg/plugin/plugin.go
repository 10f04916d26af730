// Package plugin manages runtime extensions: named hooks and a
// priority-ordered middleware chain contributed by registered plugins.
package plugin

import (
	"context"
	"fmt"
)

// Context is the value threaded through a hook invocation chain. Handlers
// receive it and may return a replacement; they must not mutate shared state.
type Context map[string]interface{}

// HookFunc transforms a hook context. Returning nil keeps the previous
// context (the identity contribution).
type HookFunc func(ctx context.Context, hc Context) (Context, error)

// Request is the invocation request threaded through the middleware chain.
type Request struct {
	ToolID   string                 `json:"tool_id"`
	Params   map[string]interface{} `json:"params"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Clone returns a shallow copy with fresh maps so middleware can rewrite
// params without aliasing the caller's bag.
func (r *Request) Clone() *Request {
	out := &Request{ToolID: r.ToolID}
	if r.Params != nil {
		out.Params = make(map[string]interface{}, len(r.Params))
		for k, v := range r.Params {
			out.Params[k] = v
		}
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// SetMetadata adds a metadata entry, allocating the map on first use.
func (r *Request) SetMetadata(key string, value interface{}) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
}

// MiddlewareFunc transforms a request before dispatch. Returning nil keeps
// the previous request.
type MiddlewareFunc func(ctx context.Context, req *Request) (*Request, error)

// Plugin is a registered extension. Hooks and Middleware are both optional;
// a plugin with neither is rejected. Lifecycle callbacks are optional and
// their failures are logged, never propagated.
type Plugin struct {
	ID         string
	Name       string
	Version    string
	Priority   int
	Hooks      map[string]HookFunc
	Middleware MiddlewareFunc

	Init      func(ctx context.Context) error
	OnEnable  func(ctx context.Context) error
	OnDisable func(ctx context.Context) error
}

func (p *Plugin) check() error {
	if p.ID == "" {
		return fmt.Errorf("plugin id cannot be empty")
	}
	if p.Version == "" {
		return fmt.Errorf("plugin %s: version cannot be empty", p.ID)
	}
	if len(p.Hooks) == 0 && p.Middleware == nil {
		return fmt.Errorf("plugin %s: must declare at least one hook or a middleware", p.ID)
	}
	for name, fn := range p.Hooks {
		if name == "" {
			return fmt.Errorf("plugin %s: hook name cannot be empty", p.ID)
		}
		if fn == nil {
			return fmt.Errorf("plugin %s: hook %s handler cannot be nil", p.ID, name)
		}
	}
	return nil
}

// DuplicatePluginError reports a plugin id collision.
type DuplicatePluginError struct {
	PluginID string
}

func (e *DuplicatePluginError) Error() string {
	return fmt.Sprintf("plugin already registered: %s", e.PluginID)
}
