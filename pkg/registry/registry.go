// Package registry indexes tool descriptors by provider and category.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mfadhilr/toolrun/pkg/schema"
)

// DefaultCategory is assigned to tools registered without a category.
const DefaultCategory = "uncategorized"

// ErrProviderNotFound is returned when a tool references an unknown provider.
var ErrProviderNotFound = errors.New("provider not found")

// DuplicateProviderError reports a provider id collision.
type DuplicateProviderError struct {
	ProviderID string
}

func (e *DuplicateProviderError) Error() string {
	return fmt.Sprintf("provider already registered: %s", e.ProviderID)
}

// DuplicateToolError reports a (providerID, toolID) collision.
type DuplicateToolError struct {
	ProviderID string
	ToolID     string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool already registered: %s/%s", e.ProviderID, e.ToolID)
}

// Handler is the execution entry point of a tool.
type Handler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Tool describes a named, versioned unit of executable capability.
type Tool struct {
	ID          string             `json:"id"`
	ProviderID  string             `json:"provider_id"`
	Version     string             `json:"version"`
	Description string             `json:"description,omitempty"`
	Category    string             `json:"category,omitempty"`
	Schema      schema.ParamSchema `json:"schema"`
	Handler     Handler            `json:"-"`
}

// Provider groups the tools it owns.
type Provider struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Tools []Tool `json:"tools,omitempty"`
}

type toolKey struct {
	providerID string
	toolID     string
}

// Registry holds tool descriptors keyed by (providerID, toolID) with a
// secondary category index. All methods are safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	providers     map[string]Provider
	providerOrder []string
	tools         map[toolKey]*Tool
	categories    map[string]map[toolKey]bool
	logger        zerolog.Logger
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		providers:  make(map[string]Provider),
		tools:      make(map[toolKey]*Tool),
		categories: make(map[string]map[toolKey]bool),
		logger:     logger.With().Str("component", "registry").Logger(),
	}
}

// RegisterProvider registers a provider and every tool it exposes. The call
// is atomic: if any tool collides, nothing is registered.
func (r *Registry) RegisterProvider(provider Provider) error {
	if provider.ID == "" {
		return fmt.Errorf("provider id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[provider.ID]; exists {
		return &DuplicateProviderError{ProviderID: provider.ID}
	}
	seen := make(map[string]bool, len(provider.Tools))
	for i := range provider.Tools {
		if seen[provider.Tools[i].ID] {
			return &DuplicateToolError{ProviderID: provider.ID, ToolID: provider.Tools[i].ID}
		}
		seen[provider.Tools[i].ID] = true
		if err := checkTool(&provider.Tools[i]); err != nil {
			return err
		}
	}

	r.providers[provider.ID] = provider
	r.providerOrder = append(r.providerOrder, provider.ID)
	for i := range provider.Tools {
		r.indexTool(provider.Tools[i], provider.ID)
	}

	r.logger.Info().
		Str("provider", provider.ID).
		Int("tools", len(provider.Tools)).
		Msg("Provider registered")

	return nil
}

// RegisterTool registers a single tool under an existing provider.
func (r *Registry) RegisterTool(tool Tool, providerID string) error {
	if err := checkTool(&tool); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[providerID]; !exists {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}
	if _, exists := r.tools[toolKey{providerID, tool.ID}]; exists {
		return &DuplicateToolError{ProviderID: providerID, ToolID: tool.ID}
	}

	r.indexTool(tool, providerID)

	r.logger.Info().
		Str("provider", providerID).
		Str("tool", tool.ID).
		Str("category", tool.Category).
		Msg("Tool registered")

	return nil
}

// GetTool returns the tool for (providerID, toolID), or nil when absent.
// With an empty providerID the first match across providers in registration
// order wins; callers needing determinism must pass a providerID.
func (r *Registry) GetTool(toolID, providerID string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if providerID != "" {
		return r.tools[toolKey{providerID, toolID}]
	}
	for _, pid := range r.providerOrder {
		if tool, ok := r.tools[toolKey{pid, toolID}]; ok {
			return tool
		}
	}
	return nil
}

// UnregisterTool removes one tool and its category index entry.
func (r *Registry) UnregisterTool(toolID, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := toolKey{providerID, toolID}
	tool, ok := r.tools[key]
	if !ok {
		return fmt.Errorf("tool not found: %s/%s", providerID, toolID)
	}
	r.dropTool(key, tool.Category)

	r.logger.Info().Str("provider", providerID).Str("tool", toolID).Msg("Tool unregistered")
	return nil
}

// UnregisterProvider removes a provider and cascades to all of its tools.
func (r *Registry) UnregisterProvider(providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[providerID]; !exists {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}
	for key, tool := range r.tools {
		if key.providerID == providerID {
			r.dropTool(key, tool.Category)
		}
	}
	delete(r.providers, providerID)
	for i, pid := range r.providerOrder {
		if pid == providerID {
			r.providerOrder = append(r.providerOrder[:i], r.providerOrder[i+1:]...)
			break
		}
	}

	r.logger.Info().Str("provider", providerID).Msg("Provider unregistered")
	return nil
}

// GetToolsByCategory returns the tools indexed under category.
func (r *Registry) GetToolsByCategory(category string) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := r.categories[category]
	tools := make([]*Tool, 0, len(keys))
	for key := range keys {
		tools = append(tools, r.tools[key])
	}
	sortTools(tools)
	return tools
}

// GetAllTools returns every registered tool.
func (r *Registry) GetAllTools() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sortTools(tools)
	return tools
}

// GetCategories returns the sorted list of non-empty categories.
func (r *Registry) GetCategories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	categories := make([]string, 0, len(r.categories))
	for category := range r.categories {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

// ToolCount returns the number of registered tools.
func (r *Registry) ToolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// indexTool stores a tool under its composite key and category. Callers hold
// the write lock.
func (r *Registry) indexTool(tool Tool, providerID string) {
	tool.ProviderID = providerID
	if tool.Category == "" {
		tool.Category = DefaultCategory
	}
	key := toolKey{providerID, tool.ID}
	r.tools[key] = &tool
	if r.categories[tool.Category] == nil {
		r.categories[tool.Category] = make(map[toolKey]bool)
	}
	r.categories[tool.Category][key] = true
}

// dropTool removes a tool and deletes its category when it becomes empty.
// Callers hold the write lock.
func (r *Registry) dropTool(key toolKey, category string) {
	delete(r.tools, key)
	if members := r.categories[category]; members != nil {
		delete(members, key)
		if len(members) == 0 {
			delete(r.categories, category)
		}
	}
}

func checkTool(tool *Tool) error {
	if tool.ID == "" {
		return fmt.Errorf("tool id cannot be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s: handler cannot be nil", tool.ID)
	}
	if err := tool.Schema.Check(); err != nil {
		return fmt.Errorf("tool %s: invalid schema: %w", tool.ID, err)
	}
	return nil
}

func sortTools(tools []*Tool) {
	sort.Slice(tools, func(i, j int) bool {
		if tools[i].ProviderID != tools[j].ProviderID {
			return tools[i].ProviderID < tools[j].ProviderID
		}
		return tools[i].ID < tools[j].ID
	})
}
