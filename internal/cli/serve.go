package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harun/toolkit/internal/config"
	"github.com/harun/toolkit/internal/logger"
	"github.com/harun/toolkit/internal/tracing"
	"github.com/harun/toolkit/pkg/toolhttp"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		host  string
		port  int
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool registry over HTTP",
		Long: `Serve tool discovery and remote invocation over HTTP until interrupted.
The config file is watched and the log level is reloaded when it changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			rt, err := buildRuntime(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			serverOpts := []toolhttp.Option{toolhttp.WithAudit(rt.audit)}
			if cfg.Metrics.Enabled {
				serverOpts = append(serverOpts, toolhttp.WithMetrics(rt.metrics))
			}
			server, err := toolhttp.NewServer(toolhttp.ServerOptions{
				Host:               cfg.Server.Host,
				Port:               cfg.Server.Port,
				RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
				RateLimitBurst:     cfg.Server.RateLimitBurst,
				CachePurgeSchedule: cfg.Server.CachePurgeSchedule,
				ShutdownTimeout:    time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
				SharedSecret:       cfg.Server.SharedSecret,
			}, rt.executor, rt.log.GetZerolog(), serverOpts...)
			if err != nil {
				return err
			}

			if watch {
				watcher, err := config.NewWatcher(config.NewLoader(opts.cfgFile), 0, func(newCfg *config.Config) {
					if opts.logLevel != "" {
						return
					}
					logger.SetLevel(newCfg.Logging.Level)
					rt.log.Info().Str("level", newCfg.Logging.Level).Msg("Log level reloaded")
					rt.audit.Config(context.Background(), "log_level_reloaded", map[string]interface{}{
						"level": newCfg.Logging.Level,
					})
				})
				if err != nil {
					rt.log.Warn().Err(err).Msg("Config watcher unavailable")
				} else if err := watcher.Start(); err != nil {
					rt.log.Warn().Err(err).Msg("Config watcher unavailable")
				} else {
					defer watcher.Stop()
				}
			}

			// Graceful shutdown context.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(server.Start)
			g.Go(func() error {
				<-gctx.Done()
				return server.Stop()
			})

			fmt.Fprintf(cmd.OutOrStdout(), "Serving %d tools on http://%s\n", rt.registry.Len(), cfg.Server.Addr())

			err = g.Wait()

			if cfg.Tracing.Enabled {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if terr := tracing.ShutdownOpenTelemetry(shutdownCtx); terr != nil {
					rt.log.Warn().Err(terr).Msg("Failed to flush traces")
				}
			}

			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the log level when the config file changes")
	return cmd
}
