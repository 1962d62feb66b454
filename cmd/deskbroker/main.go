package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"deskbroker/internal/core"
	"deskbroker/internal/observability"
	"deskbroker/internal/platform"
	"deskbroker/internal/ring"
	"deskbroker/internal/shared/logging"
)

var buildVersion = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "deskbroker",
		Short: "Context-aware desktop action broker",
	}

	root.PersistentFlags().String("db", defaultDBPath(), "path to the broker's sqlite database")
	root.PersistentFlags().String("helper-binary", "deskbroker-helper", "LLM helper executable invoked for suggest/orchestrate/analyze")
	root.PersistentFlags().String("embedding-endpoint", "", "HTTP embedding service endpoint (empty disables workflow clustering)")
	root.PersistentFlags().String("script-interpreter", "/usr/bin/env", "interpreter used for InlineScript actions, invoked as <interpreter> <script>")
	root.PersistentFlags().Bool("verbose", false, "enable debug logging")
	root.PersistentFlags().String("observability-config", defaultObservabilityConfigPath(), "path to the observability.yaml config (logging/metrics/tracing)")
	root.PersistentFlags().String("tool-server-manifest", defaultToolServerConfigPath(), "path to the tool-server manifest used to seed the local tool index at startup")

	_ = viper.BindPFlags(root.PersistentFlags())
	viper.SetEnvPrefix("DESKBROKER")
	viper.AutomaticEnv()
	viper.SetConfigName("deskbroker")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.config/deskbroker")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig()

	root.AddCommand(newServeCommand())
	root.AddCommand(newConfigCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "deskbroker.db"
	}
	return filepath.Join(home, ".local", "share", "deskbroker", "deskbroker.db")
}

func defaultObservabilityConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "observability.yaml"
	}
	return filepath.Join(home, ".config", "deskbroker", "observability.yaml")
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the broker version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(buildVersion)
		},
	}
}

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broker: foreground polling, dispatch, and the local ring control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "127.0.0.1:8743", "address for the local ring control plane (HTTP + websocket)")
	cmd.Flags().Int("metrics-port", 9743, "port serving /metrics for Prometheus scraping")
	cmd.Flags().Bool("dev-mode", false, "enable local-development-only HTTP routes (/api/logs)")
	_ = viper.BindPFlag("metrics-port", cmd.Flags().Lookup("metrics-port"))
	_ = viper.BindPFlag("dev-mode", cmd.Flags().Lookup("dev-mode"))
	return cmd
}

func runServe(ctx context.Context, addr string) error {
	if viper.GetBool("verbose") {
		logging.SetDefaultLevel(logging.LevelDebug)
	}
	log := logging.NewComponentLogger("main")

	dbPath := viper.GetString("db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	obsConfig, err := observability.LoadConfig(viper.GetString("observability-config"))
	if err != nil {
		return fmt.Errorf("load observability config: %w", err)
	}
	shutdownTracing, err := observability.InitTracing(ctx, obsConfig.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracing shutdown: %v", err)
		}
	}()

	cfg := core.Config{
		DBPath:                 dbPath,
		HelperBinary:           viper.GetString("helper-binary"),
		EmbeddingEndpoint:      viper.GetString("embedding-endpoint"),
		ScriptInterpreter:      viper.GetString("script-interpreter"),
		ToolServerManifestPath: viper.GetString("tool-server-manifest"),
	}

	watcher := platform.NewForegroundWatcher()
	sender := platform.NewKeySender()
	notifier := &loggingNotifier{log: logging.NewComponentLogger("Notifier")}

	c, err := core.New(ctx, cfg, watcher, sender, notifier)
	if err != nil {
		return fmt.Errorf("initialize core: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("shutdown: %v", err)
		}
	}()

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c.Scheduler.Start(runCtx)

	ringServer := ring.NewServer(c.Ring, func(position int) {
		appName := c.Ring.CurrentApp()
		slot, ok := c.Ring.Get(position)
		if !ok {
			return
		}
		c.Dispatch.Dispatch(runCtx, appName, *slot)
	}, viper.GetBool("dev-mode"))
	httpServer := &http.Server{Addr: addr, Handler: ringServer.Handler()}
	go func() { _ = httpServer.ListenAndServe() }()
	go ringServer.BroadcastChanges(runCtx)
	go func() {
		if err := observability.ServeMetrics(c.Registry, viper.GetInt("metrics-port")); err != nil {
			log.Warn("metrics server stopped: %v", err)
		}
	}()

	log.Info("deskbroker listening on %s", addr)
	<-runCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

type loggingNotifier struct {
	log *logging.Logger
}

func (n *loggingNotifier) Notify(appName string, position int, ok bool, message string) {
	if ok {
		n.log.Info("%s position %d succeeded: %s", appName, position, message)
		return
	}
	n.log.Warn("%s position %d failed: %s", appName, position, message)
}
