package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/mfadhilr/toolrun/internal/config"
	"github.com/mfadhilr/toolrun/internal/logger"
	"github.com/mfadhilr/toolrun/internal/metrics"
	"github.com/mfadhilr/toolrun/pkg/cache"
	"github.com/mfadhilr/toolrun/pkg/engine"
	"github.com/mfadhilr/toolrun/pkg/events"
	"github.com/mfadhilr/toolrun/pkg/faults"
	"github.com/mfadhilr/toolrun/pkg/monitor"
	"github.com/mfadhilr/toolrun/pkg/plugin"
	"github.com/mfadhilr/toolrun/pkg/registry"
	"github.com/robfig/cron/v3"
)

// Daemon wires the runtime together: registry, cache, plugin pipeline,
// monitor, classifier, event bus and engine, plus the maintenance scheduler
// and the metrics endpoint.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	registry   *registry.Registry
	store      *cache.SQLiteStore
	cache      *cache.Manager
	plugins    *plugin.Manager
	discoverer *plugin.Discoverer
	watcher    *plugin.ManifestWatcher
	monitor    *monitor.Monitor
	classifier *faults.Classifier
	events     *events.Bus
	engine     *engine.Engine

	// Services
	metrics       *metrics.Metrics
	metricsServer *http.Server
	scheduler     *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Status represents daemon status
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
}

// New creates a new daemon instance
func New(cfg *config.Config) (*Daemon, error) {
	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	// Initialize core modules in dependency order
	if err := d.initializeCoreModules(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	// Initialize services
	if err := d.initializeServices(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return d, nil
}

// initializeCoreModules initializes all core modules
func (d *Daemon) initializeCoreModules() error {
	zlog := d.logger.GetZerolog()

	d.metrics = metrics.New()
	zlog.Info().Msg("Metrics registry initialized")

	d.registry = registry.New(zlog)
	zlog.Info().Msg("Tool registry initialized")

	var store cache.Store
	if d.config.Cache.Durable.Enabled {
		sqliteStore, err := cache.NewSQLiteStore(d.config.Cache.Durable.Path)
		if err != nil {
			return fmt.Errorf("failed to open durable cache store: %w", err)
		}
		d.store = sqliteStore
		store = sqliteStore
		zlog.Info().Str("path", d.config.Cache.Durable.Path).Msg("Durable cache store opened")
	}

	d.cache = cache.New(cache.Config{
		MaxEntries: d.config.Cache.MaxEntries,
		MemoryTTL:  time.Duration(d.config.Cache.MemoryTTLSeconds) * time.Second,
		DurableTTL: time.Duration(d.config.Cache.Durable.TTLSeconds) * time.Second,
		Store:      store,
		Logger:     zlog,
		OnEvict: func(key string) {
			d.metrics.CacheEvictionsTotal.Inc()
		},
	})
	zlog.Info().Int("max_entries", d.config.Cache.MaxEntries).Msg("Result cache initialized")

	d.plugins = plugin.NewManager(zlog)
	d.plugins.OnFailure(func(pluginID string) {
		d.metrics.PluginHandlerErrorsTotal.WithLabelValues(pluginID).Inc()
	})
	zlog.Info().Msg("Plugin manager initialized")

	if d.config.Plugins.Dir != "" {
		if err := os.MkdirAll(d.config.Plugins.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create plugin manifest directory: %w", err)
		}
		d.discoverer = plugin.NewDiscoverer(d.config.Plugins.Dir, d.plugins, zlog)
		zlog.Info().Str("dir", d.config.Plugins.Dir).Msg("Plugin discoverer initialized")
	}

	d.monitor = monitor.New(monitor.Config{
		Thresholds: monitor.Thresholds{
			MaxResponseTime: time.Duration(d.config.Monitor.MaxResponseTimeMs) * time.Millisecond,
			MaxErrorRate:    d.config.Monitor.MaxErrorRate,
			MaxMemoryMB:     d.config.Monitor.MaxMemoryMB,
		},
		MaxSamples: d.config.Monitor.MaxSamples,
		OnAlert: func(alert monitor.Alert) {
			d.metrics.AlertsTotal.WithLabelValues(alert.Kind).Inc()
			zlog.Warn().
				Str("kind", alert.Kind).
				Str("tool", alert.ToolID).
				Float64("value", alert.Value).
				Float64("threshold", alert.Threshold).
				Msg("Performance alert raised")
		},
		Logger: zlog,
	})
	zlog.Info().Msg("Performance monitor initialized")

	d.classifier = faults.NewClassifier(zlog, func(c *faults.Classified) {
		zlog.Warn().Str("kind", string(c.Kind)).Msg("Permission denial reported to administrator")
	})
	zlog.Info().Msg("Error classifier initialized")

	d.events = events.NewBus(zlog)
	zlog.Info().Msg("Event bus initialized")

	var policy *engine.Policy
	if d.config.Engine.Policy.Enabled {
		policy = &engine.Policy{
			Allow: d.config.Engine.Policy.Allow,
			Deny:  d.config.Engine.Policy.Deny,
		}
	}

	eng, err := engine.New(engine.Config{
		Registry:       d.registry,
		Classifier:     d.classifier,
		Cache:          d.cache,
		Plugins:        d.plugins,
		Monitor:        d.monitor,
		Events:         d.events,
		Metrics:        d.metrics,
		Policy:         policy,
		DefaultTimeout: time.Duration(d.config.Engine.DefaultTimeoutSeconds) * time.Second,
		MaxRecords:     d.config.Engine.MaxRecords,
		Coalesce:       d.config.Engine.Coalesce,
		Logger:         zlog,
	})
	if err != nil {
		return fmt.Errorf("failed to create execution engine: %w", err)
	}
	d.engine = eng
	zlog.Info().Msg("Execution engine initialized")

	return nil
}

// initializeServices initializes all services
func (d *Daemon) initializeServices() error {
	zlog := d.logger.GetZerolog()

	if d.config.Metrics.Enabled {
		addr := net.JoinHostPort(d.config.Metrics.Host, strconv.Itoa(d.config.Metrics.Port))
		mux := http.NewServeMux()
		mux.Handle("/metrics", d.metrics.Handler())
		d.metricsServer = &http.Server{
			Addr:    addr,
			Handler: mux,
		}
		zlog.Info().Str("addr", addr).Msg("Metrics server initialized")
	}

	d.scheduler = cron.New()

	sweepInterval := d.config.Cache.SweepIntervalSeconds
	if sweepInterval > 0 {
		spec := fmt.Sprintf("@every %ds", sweepInterval)
		if _, err := d.scheduler.AddFunc(spec, func() {
			removed := d.cache.Sweep()
			if removed > 0 {
				zlog.Debug().Int("removed", removed).Msg("Cache sweep completed")
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule cache sweep: %w", err)
		}
	}

	sampleInterval := d.config.Monitor.SampleIntervalSeconds
	if sampleInterval > 0 {
		spec := fmt.Sprintf("@every %ds", sampleInterval)
		if _, err := d.scheduler.AddFunc(spec, func() {
			sample := d.monitor.Sample()
			zlog.Debug().
				Float64("memory_mb", sample.MemoryMB).
				Int("goroutines", sample.Goroutines).
				Msg("Resource sample collected")
		}); err != nil {
			return fmt.Errorf("failed to schedule resource sampling: %w", err)
		}
	}

	zlog.Info().Msg("Maintenance scheduler initialized")

	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	zlog := d.logger.GetZerolog()
	zlog.Info().Msg("Starting toolrun daemon")

	// Load plugin manifests and optionally watch the directory
	if d.discoverer != nil {
		if err := d.discoverer.Scan(d.ctx); err != nil {
			zlog.Warn().Err(err).Msg("Initial plugin manifest scan failed")
		}

		if d.config.Plugins.Watch {
			watcher, err := plugin.NewManifestWatcher(d.discoverer, zlog)
			if err != nil {
				zlog.Warn().Err(err).Msg("Failed to start manifest watcher")
			} else {
				d.watcher = watcher
				zlog.Info().Msg("Manifest watcher started")
			}
		}
	}

	// Start metrics endpoint
	if d.metricsServer != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zlog.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		zlog.Info().Str("addr", d.metricsServer.Addr).Msg("Metrics server started")
	}

	// Start maintenance scheduler
	d.scheduler.Start()
	zlog.Info().Msg("Maintenance scheduler started")

	zlog.Info().Msg("Daemon started successfully - all core modules active")

	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	zlog := d.logger.GetZerolog()
	zlog.Info().Msg("Stopping toolrun daemon")

	// Stop manifest watcher
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			zlog.Error().Err(err).Msg("Failed to stop manifest watcher")
		}
	}

	// Stop maintenance scheduler and wait for running jobs
	if d.scheduler != nil {
		<-d.scheduler.Stop().Done()
	}
	zlog.Info().Msg("Maintenance scheduler stopped")

	// Stop metrics server
	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Err(err).Msg("Failed to shutdown metrics server")
		}
		cancel()
	}

	// Cancel context
	d.cancel()

	// Wait for goroutines to finish (with timeout)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zlog.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		zlog.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	// Close cache (flushes nothing; closes the durable store)
	if d.cache != nil {
		if err := d.cache.Close(); err != nil {
			zlog.Error().Err(err).Msg("Failed to close result cache")
		}
	}

	zlog.Info().Msg("Daemon stopped successfully")

	return d.logger.Close()
}

// Wait waits for the daemon to stop
func (d *Daemon) Wait() {
	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for signal
	sig := <-sigChan
	zlog := d.logger.GetZerolog()
	zlog.Info().Str("signal", sig.String()).Msg("Received signal")

	// Stop daemon
	if err := d.Stop(); err != nil {
		zlog.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// Run starts the daemon and blocks until a termination signal arrives.
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}
	d.Wait()
	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetRegistry returns the tool registry
func (d *Daemon) GetRegistry() *registry.Registry {
	return d.registry
}

// GetEngine returns the execution engine
func (d *Daemon) GetEngine() *engine.Engine {
	return d.engine
}

// GetCache returns the result cache
func (d *Daemon) GetCache() *cache.Manager {
	return d.cache
}

// GetPluginManager returns the plugin manager
func (d *Daemon) GetPluginManager() *plugin.Manager {
	return d.plugins
}

// GetDiscoverer returns the plugin discoverer, or nil when no manifest
// directory is configured.
func (d *Daemon) GetDiscoverer() *plugin.Discoverer {
	return d.discoverer
}

// GetMonitor returns the performance monitor
func (d *Daemon) GetMonitor() *monitor.Monitor {
	return d.monitor
}

// GetEventBus returns the event bus
func (d *Daemon) GetEventBus() *events.Bus {
	return d.events
}

// GetMetrics returns the metrics registry
func (d *Daemon) GetMetrics() *metrics.Metrics {
	return d.metrics
}
