package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/harun/toolkit/internal/audit"
	"github.com/harun/toolkit/internal/config"
	"github.com/harun/toolkit/internal/logger"
	"github.com/harun/toolkit/internal/metrics"
	"github.com/harun/toolkit/internal/tracing"
	"github.com/harun/toolkit/pkg/coretools"
	"github.com/harun/toolkit/pkg/toolexecutor"
)

// runtime is the wired tool stack shared by the commands.
type runtime struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	audit    *audit.Logger
	registry *toolexecutor.Registry
	executor *toolexecutor.Executor
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(o.cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (o *rootOptions) newRuntime(logOut io.Writer) (*runtime, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return buildRuntime(cfg, logOut)
}

func buildRuntime(cfg *config.Config, logOut io.Writer) (*runtime, error) {
	logCfg := logger.FromConfig(cfg.Logging)
	logCfg.Output = logOut
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	workspaceRoot := cfg.Tools.WorkspaceRoot
	if workspaceRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			workspaceRoot = wd
		}
	}

	registry := toolexecutor.NewRegistry(toolexecutor.WithRegistryLogger(log.GetZerolog()))
	if err := coretools.RegisterCoreTools(registry, coretools.Options{
		WorkspaceRoot: workspaceRoot,
		SearchURL:     cfg.Tools.SearchURL,
	}); err != nil {
		return nil, err
	}

	m := metrics.NewMetrics()
	m.RegisteredToolsActive.Set(float64(registry.Len()))

	mws := []toolexecutor.Middleware{toolexecutor.Logging(log.GetZerolog())}
	if cfg.Tracing.Enabled {
		err := tracing.InitOpenTelemetry(tracing.Options{
			ServiceName: cfg.Tracing.ServiceName,
			Version:     version,
			Exporter:    cfg.Tracing.Exporter,
			SampleRatio: cfg.Tracing.SampleRatio,
			Writer:      os.Stderr,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		mws = append(mws, tracing.Middleware())
	}

	var auditLog *audit.Logger
	if cfg.Logging.AuditFile != "" {
		auditLog, err = audit.Open(cfg.Logging.AuditFile)
		if err != nil {
			log.Close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	executor := toolexecutor.New(
		toolexecutor.WithRegistry(registry),
		toolexecutor.WithLogger(log.GetZerolog()),
		toolexecutor.WithTraceIDFunc(tracing.CurrentTraceID),
		toolexecutor.WithBackoff(toolexecutor.Backoff{
			Base: cfg.Executor.RetryBaseDelay(),
			Max:  cfg.Executor.RetryMaxDelay(),
		}),
		toolexecutor.WithDefaultTimeout(cfg.Executor.DefaultTimeout()),
		toolexecutor.WithBatchLimit(cfg.Executor.BatchLimit),
		toolexecutor.WithMiddleware(mws...),
		toolexecutor.WithObserver(m.Observe),
		toolexecutor.WithObserver(auditObserver(auditLog)),
	)

	return &runtime{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		audit:    auditLog,
		registry: registry,
		executor: executor,
	}, nil
}

// auditObserver returns nil when auditing is off so the executor skips it.
func auditObserver(a *audit.Logger) toolexecutor.Observer {
	if a == nil {
		return nil
	}
	return a.ObserveTool
}

func (rt *runtime) Close() error {
	if err := rt.audit.Close(); err != nil {
		rt.log.Warn().Err(err).Msg("Failed to close audit log")
	}
	return rt.log.Close()
}
