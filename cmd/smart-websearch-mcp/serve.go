package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Haoran/smart-websearch-mcp/pkg/claude"
	"github.com/Haoran/smart-websearch-mcp/pkg/config"
	"github.com/Haoran/smart-websearch-mcp/pkg/mcp"
	"github.com/Haoran/smart-websearch-mcp/pkg/metrics"
	"github.com/Haoran/smart-websearch-mcp/pkg/search"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCmd builds the command tree. The root command serves, same as "serve".
func newRootCmd() (cmd *cobra.Command) {
	v := config.NewViper()

	cmd = &cobra.Command{
		Use:   "smart-websearch-mcp",
		Short: "MCP server exposing Claude-powered web search over WebSocket",
		Long: `smart-websearch-mcp answers MCP JSON-RPC requests (initialize, tools/list,
tools/call) over WebSocket or stdio. Its single tool, smart_web_search, asks
Claude to search the web and returns the findings as text.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v, envFileFlag(cmd), cmd.ErrOrStderr())
		},
	}

	addServeFlags(cmd, v)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v, envFileFlag(cmd), cmd.ErrOrStderr())
		},
	}

	addServeFlags(serveCmd, v)

	cmd.AddCommand(serveCmd)
	cmd.AddCommand(newProbeCmd())

	return cmd
}

// addServeFlags registers the server flags on cmd and binds them over the environment.
func addServeFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()

	flags.String("env-file", config.DefaultEnvFile, "dotenv file to load when present")
	flags.String("host", "", "listen host (WEBSOCKET_HOST)")
	flags.Int("port", 0, "listen port (WEBSOCKET_PORT)")
	flags.String("transport", "", "websocket or stdio (MCP_TRANSPORT)")
	flags.String("metrics-addr", "", "metrics listen address, empty string disables (METRICS_ADDR)")
	flags.String("log-level", "", "debug, info, warn or error (LOG_LEVEL)")

	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		bindChanged(cmd, v, "host", config.KeyHost)
		bindChanged(cmd, v, "port", config.KeyPort)
		bindChanged(cmd, v, "transport", config.KeyTransport)
		bindChanged(cmd, v, "metrics-addr", config.KeyMetricsAddr)
		bindChanged(cmd, v, "log-level", config.KeyLogLevel)
	}
}

// bindChanged binds a flag only when it was set, so unset flags do not mask the environment.
func bindChanged(cmd *cobra.Command, v *viper.Viper, flag string, key string) {
	f := cmd.Flags().Lookup(flag)
	if f == nil || !f.Changed {
		return
	}

	_ = v.BindPFlag(key, f)
}

func envFileFlag(cmd *cobra.Command) (path string) {
	path, _ = cmd.Flags().GetString("env-file")
	return path
}

// newLogger builds the process logger. Logs go to stderr so stdout stays free for stdio.
func newLogger(w io.Writer, level slog.Level) (logger *slog.Logger) {
	logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))

	return logger
}

// runServe loads configuration, wires the search stack, and serves until a signal arrives.
func runServe(ctx context.Context, v *viper.Viper, envFile string, logOut io.Writer) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(v, envFile)

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := newLogger(logOut, level)
	slog.SetDefault(logger)

	if err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			logger.Error("ANTHROPIC_API_KEY environment variable is not set")
		} else {
			logger.Error("invalid configuration", slog.String("error", err.Error()))
		}

		return err
	}

	client := claude.NewClient(cfg.AnthropicAPIKey, cfg.ClaudeModel, cfg.SearchMaxTokens, logger)
	logger.Info("Anthropic client initialized successfully", slog.String("model", cfg.ClaudeModel))

	adapter := search.NewAdapter(client, cfg.SearchTimeout, logger)
	dispatcher := mcp.NewDispatcher(adapter, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *metrics.Server

	if cfg.MetricsAddr != "" {
		metricsServer = metrics.NewServer(cfg.MetricsAddr, logger)

		go func() {
			metricsErr := metricsServer.Start(ctx)
			if metricsErr != nil {
				logger.ErrorContext(ctx, "metrics server error", slog.String("error", metricsErr.Error()))
			}
		}()
	}

	ready := func() {
		if metricsServer != nil {
			metricsServer.SetReady(true)
		}
	}

	logger.InfoContext(ctx, "starting MCP server", slog.String("transport", cfg.Transport))

	switch cfg.Transport {
	case config.TransportStdio:
		ready()
		err = dispatcher.RunStdio(ctx, os.Stdin, os.Stdout)

	default:
		err = dispatcher.RunWebSocket(ctx, cfg.Addr(), ready)
	}

	if err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		err = fmt.Errorf("serving %s: %w", cfg.Transport, err)
		return err
	}

	logger.Info("server stopped")
	return err
}
