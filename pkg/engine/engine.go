// Package engine orchestrates tool invocations: resolve, middleware, cache,
// validate, execute, record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/mfadhilr/toolrun/internal/metrics"
	"github.com/mfadhilr/toolrun/pkg/cache"
	"github.com/mfadhilr/toolrun/pkg/events"
	"github.com/mfadhilr/toolrun/pkg/faults"
	"github.com/mfadhilr/toolrun/pkg/monitor"
	"github.com/mfadhilr/toolrun/pkg/plugin"
	"github.com/mfadhilr/toolrun/pkg/registry"
	"github.com/mfadhilr/toolrun/pkg/schema"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRecords = 256
)

// Result metadata keys.
const (
	MetaExecutionTimeMs = "executionTimeMs"
	MetaCacheHit        = "cacheHit"
	MetaCoalesced       = "coalesced"
	MetaInvocationID    = "invocationId"
)

// Result is produced exactly once per invocation and never mutated after
// return.
type Result struct {
	Success  bool                   `json:"success"`
	Data     interface{}            `json:"data,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Options tune a single invocation.
type Options struct {
	// ProviderID disambiguates tool lookup; without it the first provider in
	// registration order that exposes the tool wins.
	ProviderID string
	// CacheEnabled overrides the engine default when non-nil.
	CacheEnabled *bool
	// Timeout bounds the tool's execution; zero uses the engine default.
	Timeout time.Duration
}

// Policy is an allow/deny list over tool ids. Deny wins; an empty allow list
// with a non-nil policy denies by default.
type Policy struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
}

// Allows reports whether the policy permits toolID. A nil policy allows all.
func (p *Policy) Allows(toolID string) bool {
	if p == nil {
		return true
	}
	for _, denied := range p.Deny {
		if denied == toolID || denied == "*" {
			return false
		}
	}
	for _, allowed := range p.Allow {
		if allowed == toolID || allowed == "*" {
			return true
		}
	}
	return false
}

// Config wires an Engine. Registry and Classifier are required; everything
// else is optional.
type Config struct {
	Registry   *registry.Registry
	Classifier *faults.Classifier
	Cache      *cache.Manager
	Plugins    *plugin.Manager
	Monitor    *monitor.Monitor
	Events     *events.Bus
	Metrics    *metrics.Metrics
	Policy     *Policy

	// DefaultTimeout bounds executions when an invocation has no Timeout.
	DefaultTimeout time.Duration
	// MaxRecords bounds the execution record ring buffer.
	MaxRecords int
	// Coalesce collapses concurrent identical cacheable invocations into a
	// single execution; later callers await the first's result.
	Coalesce bool

	Logger zerolog.Logger
}

// Engine executes tool invocations as independent concurrent tasks.
type Engine struct {
	registry   *registry.Registry
	classifier *faults.Classifier
	cache      *cache.Manager
	plugins    *plugin.Manager
	monitor    *monitor.Monitor
	events     *events.Bus
	metrics    *metrics.Metrics
	policy     *Policy

	defaultTimeout time.Duration
	coalesce       bool
	flight         singleflight.Group

	records *recordLog
	logger  zerolog.Logger
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = defaultMaxRecords
	}

	return &Engine{
		registry:       cfg.Registry,
		classifier:     cfg.Classifier,
		cache:          cfg.Cache,
		plugins:        cfg.Plugins,
		monitor:        cfg.Monitor,
		events:         cfg.Events,
		metrics:        cfg.Metrics,
		policy:         cfg.Policy,
		defaultTimeout: cfg.DefaultTimeout,
		coalesce:       cfg.Coalesce,
		records:        newRecordLog(cfg.MaxRecords),
		logger:         cfg.Logger.With().Str("component", "engine").Logger(),
	}, nil
}

// ExecuteTool runs one invocation through the full pipeline. On success (or
// cache hit) it returns a Result; on failure it returns a classified error,
// never a raw one.
func (e *Engine) ExecuteTool(ctx context.Context, toolID string, params map[string]interface{}, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	start := time.Now()
	invocationID := uuid.New().String()

	logger := e.logger.With().
		Str("invocation", invocationID).
		Str("tool", toolID).
		Logger()

	tool := e.registry.GetTool(toolID, opts.ProviderID)
	if tool == nil {
		return nil, e.fail(ctx, logger, invocationID, toolID, opts.ProviderID, params, start,
			&faults.ToolNotFoundError{ToolID: toolID, ProviderID: opts.ProviderID})
	}

	if !e.policy.Allows(tool.ID) {
		return nil, e.fail(ctx, logger, invocationID, tool.ID, tool.ProviderID, params, start,
			&faults.PermissionError{ToolID: tool.ID, Reason: "denied by tool policy"})
	}

	req := &plugin.Request{ToolID: tool.ID, Params: params}
	if e.plugins != nil {
		req = e.plugins.ApplyMiddleware(ctx, req.Clone())
		if req.ToolID != tool.ID {
			logger.Warn().
				Str("rewritten", req.ToolID).
				Msg("Middleware tried to change the tool id; keeping the resolved one")
			req.ToolID = tool.ID
		}
	}
	params = tool.Schema.ApplyDefaults(req.Params)

	cacheEnabled := e.cache != nil && (opts.CacheEnabled == nil || *opts.CacheEnabled)
	fingerprint, fpErr := Fingerprint(tool.ProviderID, tool.ID, params)
	if fpErr != nil {
		// Without a fingerprint the invocation cannot be keyed, so it is
		// neither cached nor coalesced.
		cacheEnabled = false
		logger.Debug().Err(fpErr).Msg("Invocation is uncacheable")
	}

	if cacheEnabled {
		if data, hit := e.cache.Get(ctx, fingerprint); hit {
			retrievalMs := time.Since(start).Milliseconds()
			e.emit(events.CacheHit, map[string]interface{}{"key": fingerprint})
			if e.metrics != nil {
				e.metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
			}
			logger.Debug().Str("key", fingerprint).Msg("Cache hit")
			return e.finishResult(data, req.Metadata, invocationID, retrievalMs, true, false), nil
		}
		e.emit(events.CacheMiss, map[string]interface{}{"key": fingerprint})
		if e.metrics != nil {
			e.metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		}
	}

	if vr := schema.Validate(params, tool.Schema); !vr.Valid {
		return nil, e.fail(ctx, logger, invocationID, tool.ID, tool.ProviderID, params, start,
			&faults.ValidationError{ToolID: tool.ID, Fields: vr.Errors})
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	data, shared, err := e.execute(ctx, tool, params, fingerprint, cacheEnabled, timeout)
	if err != nil {
		return nil, e.fail(ctx, logger, invocationID, tool.ID, tool.ProviderID, params, start, err)
	}

	duration := time.Since(start)

	if cacheEnabled {
		e.cache.Set(ctx, fingerprint, data, nil)
	}

	e.records.append(Record{
		ToolID:     tool.ID,
		ProviderID: tool.ProviderID,
		Params:     params,
		Data:       data,
		Success:    true,
		StartTime:  start,
		EndTime:    start.Add(duration),
	})
	if e.monitor != nil {
		e.monitor.RecordRequest(tool.ID, duration, true)
	}
	if e.metrics != nil {
		e.metrics.InvocationsTotal.WithLabelValues(tool.ID, "success").Inc()
		e.metrics.InvocationDuration.WithLabelValues(tool.ID).Observe(duration.Seconds())
	}
	e.emit(events.ToolExecuted, map[string]interface{}{
		"toolId":          tool.ID,
		"success":         true,
		"executionTimeMs": duration.Milliseconds(),
	})

	logger.Debug().Dur("duration", duration).Bool("shared", shared).Msg("Tool executed")

	return e.finishResult(data, req.Metadata, invocationID, duration.Milliseconds(), false, shared), nil
}

// Records returns the execution log, oldest first.
func (e *Engine) Records() []Record {
	return e.records.snapshot()
}

// RecordsForTool filters the execution log by tool id.
func (e *Engine) RecordsForTool(toolID string) []Record {
	all := e.records.snapshot()
	out := make([]Record, 0, len(all))
	for _, rec := range all {
		if rec.ToolID == toolID {
			out = append(out, rec)
		}
	}
	return out
}

// execute runs the tool's entry point, coalescing identical in-flight
// cacheable invocations when enabled. shared reports whether the returned
// data came from an execution another invocation started.
func (e *Engine) execute(ctx context.Context, tool *registry.Tool, params map[string]interface{}, fingerprint string, cacheEnabled bool, timeout time.Duration) (interface{}, bool, error) {
	if !e.coalesce || !cacheEnabled {
		data, err := e.runTool(ctx, tool, params, timeout)
		return data, false, err
	}

	// The leader runs detached from any single caller's context so a
	// follower's cancellation cannot kill the shared execution.
	ch := e.flight.DoChan(fingerprint, func() (interface{}, error) {
		return e.runTool(context.Background(), tool, params, timeout)
	})

	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		e.flight.Forget(fingerprint)
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, false, &faults.ExecutionError{ToolID: tool.ID, Err: ctx.Err()}
		}
		return nil, false, &faults.TimeoutError{ToolID: tool.ID, Timeout: timeout}
	case <-time.After(timeout):
		e.flight.Forget(fingerprint)
		return nil, false, &faults.TimeoutError{ToolID: tool.ID, Timeout: timeout}
	}
}

// runTool executes the entry point under a deadline. On expiry the engine
// stops waiting and detaches; the goroutine's eventual result is dropped.
func (e *Engine) runTool(ctx context.Context, tool *registry.Tool, params map[string]interface{}, timeout time.Duration) (interface{}, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("panic: %v", r)
			}
		}()
		result, err := tool.Handler(timeoutCtx, params)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- result
		}
	}()

	select {
	case result := <-resultChan:
		return result, nil
	case err := <-errChan:
		return nil, &faults.ExecutionError{ToolID: tool.ID, Err: err}
	case <-timeoutCtx.Done():
		// A caller cancelling is not a deadline expiring.
		if errors.Is(timeoutCtx.Err(), context.Canceled) {
			return nil, &faults.ExecutionError{ToolID: tool.ID, Err: timeoutCtx.Err()}
		}
		return nil, &faults.TimeoutError{ToolID: tool.ID, Timeout: timeout}
	}
}

// fail records a failed invocation, notifies observers, and classifies err.
func (e *Engine) fail(ctx context.Context, logger zerolog.Logger, invocationID, toolID, providerID string, params map[string]interface{}, start time.Time, err error) *faults.Classified {
	duration := time.Since(start)
	classified := e.classifier.Classify(err)

	e.records.append(Record{
		ToolID:     toolID,
		ProviderID: providerID,
		Params:     params,
		Error:      classified.Message,
		Success:    false,
		StartTime:  start,
		EndTime:    start.Add(duration),
	})
	if e.monitor != nil {
		e.monitor.RecordRequest(toolID, duration, false)
	}
	if e.metrics != nil {
		e.metrics.InvocationsTotal.WithLabelValues(toolID, "error").Inc()
		e.metrics.InvocationErrors.WithLabelValues(toolID, string(classified.Kind)).Inc()
	}
	// Execution and timeout failures mean the tool actually ran.
	if classified.Kind == faults.KindExecution || classified.Kind == faults.KindTimeout {
		e.emit(events.ToolExecuted, map[string]interface{}{
			"toolId":          toolID,
			"success":         false,
			"executionTimeMs": duration.Milliseconds(),
		})
	}
	e.emit(events.ErrorRaised, map[string]interface{}{
		"kind":    string(classified.Kind),
		"message": classified.Message,
	})

	logger.Debug().
		Str("kind", string(classified.Kind)).
		Dur("duration", duration).
		Msg("Invocation failed")

	return classified
}

func (e *Engine) finishResult(data interface{}, requestMeta map[string]interface{}, invocationID string, elapsedMs int64, cacheHit, coalesced bool) *Result {
	meta := make(map[string]interface{}, len(requestMeta)+4)
	for k, v := range requestMeta {
		meta[k] = v
	}
	meta[MetaInvocationID] = invocationID
	meta[MetaExecutionTimeMs] = elapsedMs
	meta[MetaCacheHit] = cacheHit
	if coalesced {
		meta[MetaCoalesced] = true
	}
	return &Result{Success: true, Data: data, Metadata: meta}
}

func (e *Engine) emit(name string, fields map[string]interface{}) {
	if e.events != nil {
		e.events.Emit(name, fields)
	}
}
