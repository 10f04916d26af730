package plugin

// ManifestSchema is the JSON Schema for plugin manifest validation
const ManifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "version"],
  "properties": {
    "id": {
      "type": "string",
      "pattern": "^[a-z0-9-]+$",
      "description": "Unique plugin identifier"
    },
    "name": {
      "type": "string",
      "description": "Human-readable plugin name"
    },
    "version": {
      "type": "string",
      "pattern": "^\\d+\\.\\d+\\.\\d+$",
      "description": "Semver version"
    },
    "description": {
      "type": "string",
      "description": "Plugin description"
    },
    "author": {
      "type": "string",
      "description": "Plugin author"
    },
    "priority": {
      "type": "integer",
      "description": "Middleware priority; higher runs first"
    },
    "enabled": {
      "type": "boolean",
      "description": "Whether the plugin starts enabled"
    },
    "factory": {
      "type": "string",
      "pattern": "^[a-z0-9-]+$",
      "description": "Registered factory name; defaults to the plugin id"
    },
    "config": {
      "type": "object",
      "description": "Factory-specific configuration"
    }
  }
}`
