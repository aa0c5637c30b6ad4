package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/chat-proxy/config"
	"github.com/angeloszaimis/chat-proxy/internal/healthcheck"
	"github.com/angeloszaimis/chat-proxy/internal/httpserver"
	"github.com/angeloszaimis/chat-proxy/internal/metrics"
	"github.com/angeloszaimis/chat-proxy/internal/static"
	"github.com/angeloszaimis/chat-proxy/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:          "chat-proxy",
		Short:        "Loopback front door for the agent gateway",
		Long:         "Serves the chat page and /health, and forwards everything else, WebSocket upgrades included, to the gateway on its loopback port.",
		Version:      "0.1.0",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, out)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "Path to a YAML config file")
	flags.IntP("port", "p", config.DefaultPort, "Front door port on 127.0.0.1")
	flags.IntP("gateway-port", "g", config.DefaultBackendPort, "Gateway port on 127.0.0.1")
	flags.String("page", "public/index.html", "Static chat page served at /")
	flags.String("timeout", config.DefaultTimeout, "How long to wait for gateway response headers")
	flags.String("log-level", config.LogLevelInfo, "Log level (debug, info, warn, error)")

	if err := bindFlags(v, flags); err != nil {
		panic(err)
	}

	return cmd
}

// bindFlags maps flag names onto config keys so that an explicitly set
// flag overrides the environment and the config file.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	keys := map[string]string{
		"port":         "server.port",
		"gateway-port": "backend.port",
		"page":         "static.page",
		"timeout":      "backend.timeout",
		"log-level":    "logging.level",
	}

	for name, key := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

// run serves until ctx is done. Every startup failure is returned before
// the listener accepts its first connection.
func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	// Metrics outlive the server so the final summary counts requests
	// finished during Shutdown.
	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	var background sync.WaitGroup
	defer func() {
		cancel()
		stopMetrics()
		background.Wait()
	}()

	log := logger.New(out, cfg.Logging.Level, cfg.Logging.Level == config.LogLevelDebug, cfg.Server.Environment)

	page, err := static.Load(cfg.Static.Page)
	if err != nil {
		log.Error("Failed to load chat page", slog.String("page", cfg.Static.Page), slog.Any("err", err))
		return err
	}

	metricsCollector := metrics.NewCollector(1000, log)
	metricsCollector.Start(metricsCtx)
	if interval := cfg.ReportInterval(); interval > 0 {
		background.Go(func() {
			metricsCollector.Report(metricsCtx, interval)
		})
	}

	gatewayStatus := &healthcheck.Status{}
	if interval := cfg.ProbeInterval(); interval > 0 {
		background.Go(func() {
			healthcheck.Probe(ctx, cfg.BackendAddr(), interval, gatewayStatus, metricsCollector, log)
		})
	}

	router, upgrader := setupRouter(log, cfg, page, metricsCollector)

	srv, err := httpserver.New(cfg.ListenAddr(), router)
	if err != nil {
		log.Error("Failed to create server", slog.String("addr", cfg.ListenAddr()), slog.Any("err", err))
		return err
	}
	srv.RegisterOnShutdown(upgrader.Close)

	if err := srv.Listen(); err != nil {
		log.Error("Failed to listen", slog.String("addr", cfg.ListenAddr()), slog.Any("err", err))
		return err
	}

	log.Info("Proxy listening",
		slog.String("addr", srv.Addr().String()),
		slog.Int("port", cfg.Server.Port),
		slog.Int("backend_port", cfg.Backend.Port))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		attrs := []any{}
		if healthy, ok := gatewayStatus.Healthy(); ok {
			attrs = append(attrs, slog.Bool("gateway_healthy", healthy))
		}
		log.Info("Shutting down gracefully...", attrs...)
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
		return nil
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error serving proxy", slog.Any("err", err))
		}
		return err
	}
}
