package plugin

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// Manifest is the on-disk plugin descriptor. Handlers come from a factory
// registered in code under the manifest's factory name.
type Manifest struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	Version     string         `json:"version"`
	Description string         `json:"description,omitempty"`
	Author      string         `json:"author,omitempty"`
	Priority    int            `json:"priority,omitempty"`
	Enabled     *bool          `json:"enabled,omitempty"`
	Factory     string         `json:"factory,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// IsEnabled defaults to true when the manifest omits the flag.
func (m *Manifest) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// FactoryName defaults to the plugin id.
func (m *Manifest) FactoryName() string {
	if m.Factory != "" {
		return m.Factory
	}
	return m.ID
}

// ManifestLoader loads and validates plugin manifests
type ManifestLoader struct {
	logger       zerolog.Logger
	schemaLoader gojsonschema.JSONLoader
}

// NewManifestLoader creates a new manifest loader
func NewManifestLoader(logger zerolog.Logger) *ManifestLoader {
	schemaLoader := gojsonschema.NewStringLoader(ManifestSchema)
	return &ManifestLoader{
		logger:       logger.With().Str("component", "manifest-loader").Logger(),
		schemaLoader: schemaLoader,
	}
}

// LoadManifest loads and validates a plugin manifest from a file
func (m *ManifestLoader) LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	return m.ParseManifest(data)
}

// ParseManifest parses and validates raw manifest bytes.
func (m *ManifestLoader) ParseManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}

	if err := m.validateSchema(data); err != nil {
		return nil, fmt.Errorf("manifest schema validation failed: %w", err)
	}

	m.logger.Debug().
		Str("plugin", manifest.ID).
		Str("version", manifest.Version).
		Msg("Manifest loaded")

	return &manifest, nil
}

// validateSchema validates manifest bytes against ManifestSchema.
func (m *ManifestLoader) validateSchema(data []byte) error {
	documentLoader := gojsonschema.NewBytesLoader(data)
	result, err := gojsonschema.Validate(m.schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("invalid manifest: %v", errs)
	}

	return nil
}
