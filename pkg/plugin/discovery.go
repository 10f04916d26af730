package plugin

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Factory builds a plugin from a validated manifest. Factories are registered
// in code; manifests on disk select one by name and carry its configuration.
type Factory func(manifest *Manifest) (*Plugin, error)

// Discoverer scans a directory for *.json plugin manifests and applies them
// to a Manager: new manifests register plugins through their factories,
// existing ones have their enabled flag synced.
type Discoverer struct {
	dir     string
	loader  *ManifestLoader
	manager *Manager
	logger  zerolog.Logger

	mu        sync.RWMutex
	factories map[string]Factory
}

// NewDiscoverer creates a discoverer for dir.
func NewDiscoverer(dir string, manager *Manager, logger zerolog.Logger) *Discoverer {
	return &Discoverer{
		dir:       dir,
		loader:    NewManifestLoader(logger),
		manager:   manager,
		logger:    logger.With().Str("component", "plugin-discovery").Logger(),
		factories: make(map[string]Factory),
	}
}

// RegisterFactory makes a factory available to manifests under name.
func (d *Discoverer) RegisterFactory(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("factory name and function are required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.factories[name]; exists {
		return fmt.Errorf("factory already registered: %s", name)
	}
	d.factories[name] = factory
	return nil
}

// Scan walks the manifest directory once. Individual manifest problems are
// logged and skipped; Scan only fails when the directory itself is unreadable.
func (d *Discoverer) Scan(ctx context.Context) error {
	paths, err := filepath.Glob(filepath.Join(d.dir, "*.json"))
	if err != nil {
		return fmt.Errorf("failed to list manifest directory: %w", err)
	}

	for _, path := range paths {
		manifest, err := d.loader.LoadManifest(path)
		if err != nil {
			d.logger.Warn().Err(err).Str("path", path).Msg("Skipping invalid manifest")
			continue
		}
		d.apply(ctx, manifest)
	}
	return nil
}

func (d *Discoverer) apply(ctx context.Context, manifest *Manifest) {
	if enabled, known := d.manager.Enabled(manifest.ID); known {
		if enabled != manifest.IsEnabled() {
			var err error
			if manifest.IsEnabled() {
				err = d.manager.EnablePlugin(ctx, manifest.ID)
			} else {
				err = d.manager.DisablePlugin(ctx, manifest.ID)
			}
			if err != nil {
				d.logger.Warn().Err(err).Str("plugin", manifest.ID).Msg("Failed to sync enabled flag")
			}
		}
		return
	}

	d.mu.RLock()
	factory := d.factories[manifest.FactoryName()]
	d.mu.RUnlock()
	if factory == nil {
		d.logger.Warn().
			Str("plugin", manifest.ID).
			Str("factory", manifest.FactoryName()).
			Msg("No factory registered for manifest")
		return
	}

	p, err := factory(manifest)
	if err != nil || p == nil {
		d.logger.Warn().Err(err).Str("plugin", manifest.ID).Msg("Factory failed to build plugin")
		return
	}
	if err := d.manager.Register(ctx, p); err != nil {
		d.logger.Warn().Err(err).Str("plugin", manifest.ID).Msg("Failed to register discovered plugin")
		return
	}
	if !manifest.IsEnabled() {
		if err := d.manager.DisablePlugin(ctx, manifest.ID); err != nil {
			d.logger.Warn().Err(err).Str("plugin", manifest.ID).Msg("Failed to start plugin disabled")
		}
	}
}
