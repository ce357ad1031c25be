package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/LLIEPJIOK/service-mesh/relay/pkg/ws"
)

const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	addr              string
	metricsAddr       string
	welcome           string
	keepaliveInterval time.Duration
	idleTimeout       time.Duration
	writeTimeout      time.Duration
	maxMessageSize    int64
	logLevel          string
}

func serveCmd() *cobra.Command {
	defaults := ws.DefaultServerConfig()
	opts := serveOptions{
		addr:              ws.DefaultAddr,
		welcome:           defaults.Welcome,
		keepaliveInterval: defaults.KeepaliveInterval,
		idleTimeout:       defaults.IdleTimeout,
		writeTimeout:      defaults.WriteTimeout,
		maxMessageSize:    defaults.MaxMessageSize,
		logLevel:          "info",
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay server",
		Long: `Start the relay server.

Clients connect with a WebSocket handshake to GET /socket. Metrics are
served on a separate listener when --metrics-addr is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.addr, "addr", "a", opts.addr, "Listen address")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (disabled when empty)")
	flags.StringVar(&opts.welcome, "welcome", opts.welcome, "Welcome message sent to each new session")
	flags.DurationVar(&opts.keepaliveInterval, "keepalive", opts.keepaliveInterval, "Interval between keepalive sweeps")
	flags.DurationVar(&opts.idleTimeout, "idle-timeout", opts.idleTimeout, "Close sessions with no inbound traffic for this long (0 disables)")
	flags.DurationVar(&opts.writeTimeout, "write-timeout", opts.writeTimeout, "Per-frame write timeout (0 disables)")
	flags.Int64Var(&opts.maxMessageSize, "max-message-size", opts.maxMessageSize, "Maximum inbound message size in bytes (0 disables)")
	flags.StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level: debug, info, warn, error")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	logger, err := newLogger(opts.logLevel)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cfg := ws.DefaultServerConfig()
	cfg.Logger = logger
	cfg.Welcome = opts.welcome
	cfg.KeepaliveInterval = opts.keepaliveInterval
	cfg.IdleTimeout = opts.idleTimeout
	cfg.WriteTimeout = opts.writeTimeout
	cfg.MaxMessageSize = opts.maxMessageSize
	cfg.Metrics = ws.NewMetrics(ws.MetricsConfig{Namespace: "relay", Registry: registry})

	server := ws.NewServer(cfg)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go server.Run(ctx)

	servers := []*http.Server{{
		Addr:              opts.addr,
		Handler:           ws.NewRouter(server),
		ReadHeaderTimeout: 10 * time.Second,
	}}

	if opts.metricsAddr != "" {
		servers = append(servers, &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           ws.NewMetricsHandler(registry),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))

	for _, srv := range servers {
		go func() {
			logger.Info("listening", "addr", srv.Addr)

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("shutdown failed", "addr", srv.Addr, slog.Any("error", shutdownErr))
		}
	}

	return err
}
