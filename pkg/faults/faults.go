// Package faults defines the typed failures an invocation can end with and
// maps them to a stable taxonomy with caller-facing retry guidance.
package faults

import (
	"fmt"
	"time"

	"github.com/mfadhilr/toolrun/pkg/schema"
)

// Kind is the stable failure taxonomy.
type Kind string

const (
	KindToolNotFound Kind = "TOOL_NOT_FOUND"
	KindValidation   Kind = "VALIDATION"
	KindExecution    Kind = "EXECUTION"
	KindPermission   Kind = "PERMISSION"
	KindTimeout      Kind = "TIMEOUT"
	KindPlugin       Kind = "PLUGIN"
	KindUnknown      Kind = "UNKNOWN"
)

// ToolNotFoundError reports an unknown toolID. Caller error, not retried.
type ToolNotFoundError struct {
	ToolID     string
	ProviderID string
}

func (e *ToolNotFoundError) Error() string {
	if e.ProviderID != "" {
		return fmt.Sprintf("tool not found: %s/%s", e.ProviderID, e.ToolID)
	}
	return fmt.Sprintf("tool not found: %s", e.ToolID)
}

// ValidationError reports a schema violation with field-level detail.
// Caller error, not retried.
type ValidationError struct {
	ToolID string
	Fields []schema.FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter validation failed for tool %s: %d field error(s)", e.ToolID, len(e.Fields))
}

// ExecutionError wraps a failure raised by the tool's own entry point.
// May be retried by the caller with backoff.
type ExecutionError struct {
	ToolID string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s execution failed: %v", e.ToolID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// PermissionError reports an authorization denial. Not retried; triggers the
// admin notification side channel when classified.
type PermissionError struct {
	ToolID string
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("tool %s denied: %s", e.ToolID, e.Reason)
}

// TimeoutError reports an invocation that exceeded its deadline.
// May be retried.
type TimeoutError struct {
	ToolID  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool %s timed out after %v", e.ToolID, e.Timeout)
}

// PluginError reports a middleware or hook handler failure. It is logged and
// absorbed at the plugin boundary and never surfaces as the invocation's own
// failure.
type PluginError struct {
	PluginID string
	Hook     string
	Err      error
}

func (e *PluginError) Error() string {
	if e.Hook != "" {
		return fmt.Sprintf("plugin %s hook %s failed: %v", e.PluginID, e.Hook, e.Err)
	}
	return fmt.Sprintf("plugin %s middleware failed: %v", e.PluginID, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }
