package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfadhilr/toolrun/pkg/cache"
	"github.com/mfadhilr/toolrun/pkg/events"
	"github.com/mfadhilr/toolrun/pkg/faults"
	"github.com/mfadhilr/toolrun/pkg/monitor"
	"github.com/mfadhilr/toolrun/pkg/plugin"
	"github.com/mfadhilr/toolrun/pkg/registry"
	"github.com/mfadhilr/toolrun/pkg/schema"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func echoSchema() schema.ParamSchema {
	return schema.ParamSchema{
		Properties: map[string]schema.ParamDefinition{
			"text":   {Type: schema.TypeString, MinLength: intPtr(1)},
			"repeat": {Type: schema.TypeNumber, Default: 1},
		},
		Required: []string{"text"},
	}
}

func echoProvider(calls *int64) registry.Provider {
	return registry.Provider{
		ID: "core",
		Tools: []registry.Tool{
			{
				ID:      "echo",
				Version: "1.0.0",
				Schema:  echoSchema(),
				Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
					if calls != nil {
						atomic.AddInt64(calls, 1)
					}
					return params["text"], nil
				},
			},
		},
	}
}

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()

	cfg := Config{
		Registry:   registry.New(zerolog.Nop()),
		Classifier: faults.NewClassifier(zerolog.Nop(), nil),
		Logger:     zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func TestNew_RequiredDependencies(t *testing.T) {
	_, err := New(Config{Classifier: faults.NewClassifier(zerolog.Nop(), nil)})
	assert.Error(t, err)

	_, err = New(Config{Registry: registry.New(zerolog.Nop())})
	assert.Error(t, err)
}

func TestEngine_ExecuteTool_Success(t *testing.T) {
	var calls int64
	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(echoProvider(&calls)))
	})

	result, err := e.ExecuteTool(context.Background(), "echo", map[string]interface{}{"text": "hello"}, nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "hello", result.Data)
	assert.Equal(t, int64(1), calls)

	assert.Equal(t, false, result.Metadata[MetaCacheHit])
	assert.NotEmpty(t, result.Metadata[MetaInvocationID])
	assert.Contains(t, result.Metadata, MetaExecutionTimeMs)

	records := e.Records()
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
	assert.Equal(t, "echo", records[0].ToolID)
	assert.Equal(t, "core", records[0].ProviderID)
	assert.NotEmpty(t, records[0].ID)
	assert.NotEqual(t, result.Metadata[MetaInvocationID], records[0].ID,
		"record ids are short log ids, separate from the invocation id")
}

func TestEngine_ExecuteTool_AppliesDefaults(t *testing.T) {
	var seen map[string]interface{}
	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(registry.Provider{
			ID: "core",
			Tools: []registry.Tool{{
				ID:      "echo",
				Version: "1.0.0",
				Schema:  echoSchema(),
				Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
					seen = params
					return nil, nil
				},
			}},
		}))
	})

	_, err := e.ExecuteTool(context.Background(), "echo", map[string]interface{}{"text": "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, seen["repeat"], "declared defaults are filled before validation and execution")
}

func TestEngine_ExecuteTool_ToolNotFound(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.ExecuteTool(context.Background(), "ghost", map[string]interface{}{}, nil)
	require.Error(t, err)

	var classified *faults.Classified
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, faults.KindToolNotFound, classified.Kind)
	assert.False(t, classified.Retryable)

	records := e.Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success, "a failed lookup leaves only a failure record")
}

func TestEngine_ExecuteTool_ValidationFailure(t *testing.T) {
	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(echoProvider(nil)))
	})
	ctx := context.Background()

	_, err := e.ExecuteTool(ctx, "echo", map[string]interface{}{}, nil)
	var classified *faults.Classified
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, faults.KindValidation, classified.Kind)
	require.Len(t, classified.Fields, 1)
	assert.Equal(t, schema.CodeMissingRequired, classified.Fields[0].Code)

	_, err = e.ExecuteTool(ctx, "echo", map[string]interface{}{"text": ""}, nil)
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, faults.KindValidation, classified.Kind)
	require.Len(t, classified.Fields, 1)
	assert.Equal(t, schema.CodeMinLength, classified.Fields[0].Code)
}

func TestEngine_ExecuteTool_ExecutionError(t *testing.T) {
	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(registry.Provider{
			ID: "core",
			Tools: []registry.Tool{{
				ID:      "broken",
				Version: "1.0.0",
				Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
					return nil, errors.New("disk full")
				},
			}},
		}))
	})

	_, err := e.ExecuteTool(context.Background(), "broken", map[string]interface{}{}, nil)

	var classified *faults.Classified
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, faults.KindExecution, classified.Kind)
	assert.True(t, classified.Retryable)
	assert.Contains(t, classified.Message, "disk full")
}

func TestEngine_ExecuteTool_PanickingHandler(t *testing.T) {
	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(registry.Provider{
			ID: "core",
			Tools: []registry.Tool{{
				ID:      "crasher",
				Version: "1.0.0",
				Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
					panic("handler bug")
				},
			}},
		}))
	})

	var classified *faults.Classified
	assert.NotPanics(t, func() {
		_, err := e.ExecuteTool(context.Background(), "crasher", map[string]interface{}{}, nil)
		require.ErrorAs(t, err, &classified)
	})
	assert.Equal(t, faults.KindExecution, classified.Kind)
}

func TestEngine_ExecuteTool_Timeout(t *testing.T) {
	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(registry.Provider{
			ID: "core",
			Tools: []registry.Tool{{
				ID:      "slow",
				Version: "1.0.0",
				Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
					select {
					case <-time.After(5 * time.Second):
						return "done", nil
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				},
			}},
		}))
	})

	start := time.Now()
	_, err := e.ExecuteTool(context.Background(), "slow", map[string]interface{}{}, &Options{Timeout: 50 * time.Millisecond})
	elapsed := time.Since(start)

	var classified *faults.Classified
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, faults.KindTimeout, classified.Kind)
	assert.True(t, classified.Retryable)
	assert.Less(t, elapsed, time.Second, "the engine must stop waiting at the deadline")
}

func TestEngine_ExecuteTool_CallerCancellation(t *testing.T) {
	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(registry.Provider{
			ID: "core",
			Tools: []registry.Tool{{
				ID:      "block",
				Version: "1.0.0",
				Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				},
			}},
		}))
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := e.ExecuteTool(ctx, "block", nil, &Options{Timeout: 5 * time.Second})
	require.Error(t, err)

	var classified *faults.Classified
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, faults.KindExecution, classified.Kind, "cancellation is not a deadline expiry")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_ExecuteTool_CoalescedCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(registry.Provider{
			ID: "core",
			Tools: []registry.Tool{{
				ID:      "block",
				Version: "1.0.0",
				Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
					<-release
					return "done", nil
				},
			}},
		}))
		cfg.Cache = cache.New(cache.Config{Logger: zerolog.Nop()})
		cfg.Coalesce = true
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := e.ExecuteTool(ctx, "block", nil, &Options{Timeout: 5 * time.Second})
	require.Error(t, err)

	var classified *faults.Classified
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, faults.KindExecution, classified.Kind)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_Events_FailedExecution(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	var mu sync.Mutex
	var seen []string
	var executedSuccess interface{}
	bus.Subscribe(events.ToolExecuted, func(evt events.Event) {
		mu.Lock()
		seen = append(seen, evt.Name)
		executedSuccess = evt.Fields["success"]
		mu.Unlock()
	})
	bus.Subscribe(events.ErrorRaised, func(evt events.Event) {
		mu.Lock()
		seen = append(seen, evt.Name)
		mu.Unlock()
	})

	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(registry.Provider{
			ID: "core",
			Tools: []registry.Tool{{
				ID:      "broken",
				Version: "1.0.0",
				Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
					return nil, errors.New("boom")
				},
			}},
		}))
		cfg.Events = bus
	})
	ctx := context.Background()

	_, err := e.ExecuteTool(ctx, "broken", nil, nil)
	require.Error(t, err)

	mu.Lock()
	assert.Equal(t, []string{events.ToolExecuted, events.ErrorRaised}, seen,
		"a tool that ran and failed is still an execution")
	assert.Equal(t, false, executedSuccess)
	seen = nil
	mu.Unlock()

	// A lookup failure never executed anything.
	_, err = e.ExecuteTool(ctx, "ghost", nil, nil)
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{events.ErrorRaised}, seen)
}

func TestEngine_ExecuteTool_PolicyDenied(t *testing.T) {
	notified := make(chan struct{}, 1)
	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(echoProvider(nil)))
		cfg.Policy = &Policy{Allow: []string{"*"}, Deny: []string{"echo"}}
		cfg.Classifier = faults.NewClassifier(zerolog.Nop(), func(*faults.Classified) {
			notified <- struct{}{}
		})
	})

	_, err := e.ExecuteTool(context.Background(), "echo", map[string]interface{}{"text": "hi"}, nil)

	var classified *faults.Classified
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, faults.KindPermission, classified.Kind)

	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Fatal("permission denial must reach the admin notifier")
	}
}

func TestPolicy_Allows(t *testing.T) {
	tests := []struct {
		name   string
		policy *Policy
		toolID string
		want   bool
	}{
		{name: "nil policy allows all", policy: nil, toolID: "anything", want: true},
		{name: "wildcard allow", policy: &Policy{Allow: []string{"*"}}, toolID: "echo", want: true},
		{name: "explicit allow", policy: &Policy{Allow: []string{"echo"}}, toolID: "echo", want: true},
		{name: "not listed", policy: &Policy{Allow: []string{"echo"}}, toolID: "other", want: false},
		{name: "deny wins over allow", policy: &Policy{Allow: []string{"*"}, Deny: []string{"echo"}}, toolID: "echo", want: false},
		{name: "wildcard deny", policy: &Policy{Allow: []string{"echo"}, Deny: []string{"*"}}, toolID: "echo", want: false},
		{name: "empty allow denies", policy: &Policy{}, toolID: "echo", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Allows(tt.toolID))
		})
	}
}

func TestEngine_ExecuteTool_CacheHit(t *testing.T) {
	var calls int64
	bus := events.NewBus(zerolog.Nop())
	var mu sync.Mutex
	var seen []string
	for _, name := range []string{events.CacheHit, events.CacheMiss, events.ToolExecuted} {
		name := name
		bus.Subscribe(name, func(events.Event) {
			mu.Lock()
			seen = append(seen, name)
			mu.Unlock()
		})
	}

	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(echoProvider(&calls)))
		cfg.Cache = cache.New(cache.Config{Logger: zerolog.Nop()})
		cfg.Events = bus
	})
	ctx := context.Background()
	params := map[string]interface{}{"text": "hello"}

	first, err := e.ExecuteTool(ctx, "echo", params, nil)
	require.NoError(t, err)
	assert.Equal(t, false, first.Metadata[MetaCacheHit])

	second, err := e.ExecuteTool(ctx, "echo", params, nil)
	require.NoError(t, err)
	assert.Equal(t, true, second.Metadata[MetaCacheHit])
	assert.Equal(t, first.Data, second.Data)

	assert.Equal(t, int64(1), calls, "the cached invocation must not re-execute the handler")
	assert.Len(t, e.Records(), 1, "cache hits do not append execution records")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{events.CacheMiss, events.ToolExecuted, events.CacheHit}, seen)
}

func TestEngine_ExecuteTool_CacheDisabledPerCall(t *testing.T) {
	var calls int64
	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(echoProvider(&calls)))
		cfg.Cache = cache.New(cache.Config{Logger: zerolog.Nop()})
	})
	ctx := context.Background()
	params := map[string]interface{}{"text": "hello"}
	opts := &Options{CacheEnabled: boolPtr(false)}

	_, err := e.ExecuteTool(ctx, "echo", params, opts)
	require.NoError(t, err)
	_, err = e.ExecuteTool(ctx, "echo", params, opts)
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls)
}

func TestEngine_ExecuteTool_FailureNotCached(t *testing.T) {
	c := cache.New(cache.Config{Logger: zerolog.Nop()})
	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(registry.Provider{
			ID: "core",
			Tools: []registry.Tool{{
				ID:      "broken",
				Version: "1.0.0",
				Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
					return nil, errors.New("boom")
				},
			}},
		}))
		cfg.Cache = c
	})

	_, err := e.ExecuteTool(context.Background(), "broken", map[string]interface{}{}, nil)
	require.Error(t, err)
	assert.Equal(t, 0, c.Len(), "failures must never be cached")
}

func TestEngine_ExecuteTool_UnserializableParamsBypassCache(t *testing.T) {
	var calls int64
	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(registry.Provider{
			ID: "core",
			Tools: []registry.Tool{{
				ID:      "ping",
				Version: "1.0.0",
				Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
					atomic.AddInt64(&calls, 1)
					return "pong", nil
				},
			}},
		}))
		cfg.Cache = cache.New(cache.Config{Logger: zerolog.Nop()})
		cfg.Coalesce = true
	})
	ctx := context.Background()

	// Prime the cache with the empty bag's fingerprint.
	first, err := e.ExecuteTool(ctx, "ping", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", first.Data)

	// A bag that json.Marshal rejects has no fingerprint; it must fall
	// through to validation instead of being served the empty bag's entry.
	_, err = e.ExecuteTool(ctx, "ping", map[string]interface{}{"fn": func() {}}, nil)
	require.Error(t, err)

	var classified *faults.Classified
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, faults.KindValidation, classified.Kind)

	var verr *faults.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, schema.CodeUnknownParam, verr.Fields[0].Code)

	assert.Equal(t, int64(1), calls, "the rejected bag must not re-execute or hit the cache")

	records := e.Records()
	require.Len(t, records, 2)
	assert.True(t, records[0].Success)
	assert.False(t, records[1].Success, "the rejected bag is recorded as a failure, not a cache hit")
}

func TestEngine_ExecuteTool_MiddlewareRewritesParams(t *testing.T) {
	plugins := plugin.NewManager(zerolog.Nop())
	require.NoError(t, plugins.Register(context.Background(), &plugin.Plugin{
		ID:      "rewriter",
		Version: "1.0.0",
		Middleware: func(ctx context.Context, req *plugin.Request) (*plugin.Request, error) {
			out := req.Clone()
			out.Params["text"] = "rewritten"
			out.SetMetadata("traced", true)
			return out, nil
		},
	}))

	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(echoProvider(nil)))
		cfg.Plugins = plugins
	})

	result, err := e.ExecuteTool(context.Background(), "echo", map[string]interface{}{"text": "original"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "rewritten", result.Data)
	assert.Equal(t, true, result.Metadata["traced"], "middleware metadata surfaces on the result")
}

func TestEngine_ExecuteTool_MiddlewareCannotRetarget(t *testing.T) {
	plugins := plugin.NewManager(zerolog.Nop())
	require.NoError(t, plugins.Register(context.Background(), &plugin.Plugin{
		ID:      "hijacker",
		Version: "1.0.0",
		Middleware: func(ctx context.Context, req *plugin.Request) (*plugin.Request, error) {
			out := req.Clone()
			out.ToolID = "other"
			return out, nil
		},
	}))

	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(echoProvider(nil)))
		cfg.Plugins = plugins
	})

	result, err := e.ExecuteTool(context.Background(), "echo", map[string]interface{}{"text": "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Data, "the resolved tool executes regardless of the rewrite attempt")
}

func TestEngine_ExecuteTool_MiddlewareDoesNotMutateCallerParams(t *testing.T) {
	plugins := plugin.NewManager(zerolog.Nop())
	require.NoError(t, plugins.Register(context.Background(), &plugin.Plugin{
		ID:      "rewriter",
		Version: "1.0.0",
		Middleware: func(ctx context.Context, req *plugin.Request) (*plugin.Request, error) {
			req.Params["text"] = "mutated"
			return req, nil
		},
	}))

	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(echoProvider(nil)))
		cfg.Plugins = plugins
	})

	params := map[string]interface{}{"text": "original"}
	_, err := e.ExecuteTool(context.Background(), "echo", params, nil)
	require.NoError(t, err)
	assert.Equal(t, "original", params["text"], "the caller's bag is cloned before middleware runs")
}

func TestEngine_ExecuteTool_ProviderSelection(t *testing.T) {
	mk := func(provider string) registry.Provider {
		return registry.Provider{
			ID: provider,
			Tools: []registry.Tool{{
				ID:      "echo",
				Version: "1.0.0",
				Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
					return provider, nil
				},
			}},
		}
	}

	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(mk("first")))
		require.NoError(t, cfg.Registry.RegisterProvider(mk("second")))
	})
	ctx := context.Background()

	result, err := e.ExecuteTool(ctx, "echo", map[string]interface{}{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", result.Data)

	result, err = e.ExecuteTool(ctx, "echo", map[string]interface{}{}, &Options{ProviderID: "second"})
	require.NoError(t, err)
	assert.Equal(t, "second", result.Data)

	_, err = e.ExecuteTool(ctx, "echo", map[string]interface{}{}, &Options{ProviderID: "ghost"})
	var classified *faults.Classified
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, faults.KindToolNotFound, classified.Kind)
}

func TestEngine_ExecuteTool_Coalescing(t *testing.T) {
	var calls int64
	release := make(chan struct{})
	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(registry.Provider{
			ID: "core",
			Tools: []registry.Tool{{
				ID:      "slow",
				Version: "1.0.0",
				Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
					atomic.AddInt64(&calls, 1)
					<-release
					return "shared", nil
				},
			}},
		}))
		cfg.Cache = cache.New(cache.Config{Logger: zerolog.Nop()})
		cfg.Coalesce = true
	})
	ctx := context.Background()
	params := map[string]interface{}{"n": 1}

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.ExecuteTool(ctx, "slow", params, nil)
		}(i)
	}

	// Let both invocations join the flight before releasing the leader.
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&calls) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls, "identical concurrent invocations execute once")
	for i, result := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", result.Data)
	}
}

func TestEngine_RecordsBounded(t *testing.T) {
	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(echoProvider(nil)))
		cfg.MaxRecords = 3
	})
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c", "d", "e"} {
		_, err := e.ExecuteTool(ctx, "echo", map[string]interface{}{"text": text}, nil)
		require.NoError(t, err)
	}

	records := e.Records()
	require.Len(t, records, 3, "the execution log is a bounded ring")
	assert.Equal(t, "c", records[0].Data)
	assert.Equal(t, "e", records[2].Data)
}

func TestEngine_RecordsForTool(t *testing.T) {
	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(echoProvider(nil)))
	})
	ctx := context.Background()

	_, err := e.ExecuteTool(ctx, "echo", map[string]interface{}{"text": "hi"}, nil)
	require.NoError(t, err)
	_, err = e.ExecuteTool(ctx, "ghost", map[string]interface{}{}, nil)
	require.Error(t, err)

	echoes := e.RecordsForTool("echo")
	require.Len(t, echoes, 1)
	assert.True(t, echoes[0].Success)

	ghosts := e.RecordsForTool("ghost")
	require.Len(t, ghosts, 1)
	assert.False(t, ghosts[0].Success)
}

func TestEngine_MonitorSeesOutcomes(t *testing.T) {
	mon := monitor.New(monitor.Config{Logger: zerolog.Nop()})
	e := newTestEngine(t, func(cfg *Config) {
		require.NoError(t, cfg.Registry.RegisterProvider(echoProvider(nil)))
		cfg.Monitor = mon
	})
	ctx := context.Background()

	_, err := e.ExecuteTool(ctx, "echo", map[string]interface{}{"text": "hi"}, nil)
	require.NoError(t, err)
	_, err = e.ExecuteTool(ctx, "echo", map[string]interface{}{}, nil)
	require.Error(t, err)

	snap := mon.Snapshot()
	assert.Equal(t, int64(2), snap.RequestCount)
	assert.Equal(t, int64(1), snap.ErrorCount)
}
