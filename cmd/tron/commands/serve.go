package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tron-run/tron/internal/agent"
	"github.com/tron-run/tron/internal/broadcast"
	"github.com/tron-run/tron/internal/config"
	"github.com/tron-run/tron/internal/eventstore"
	"github.com/tron-run/tron/internal/guardrail"
	"github.com/tron-run/tron/internal/logging"
	"github.com/tron-run/tron/internal/provider"
	"github.com/tron-run/tron/internal/rpc"
	"github.com/tron-run/tron/internal/storage"
	"github.com/tron-run/tron/internal/taskstore"
	"github.com/tron-run/tron/internal/tool"
)

var (
	servePort int
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tron RPC server",
	Long: `Start tron as a server that exposes the durable core's method
registry over HTTP: session lifecycle, agentic turns, event replay/tail,
and the supporting domain-specific methods.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	logging.Info().Str("version", Version).Msg("starting tron server")
	logging.Info().Str("directory", workDir).Msg("working directory")

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	ctx := context.Background()
	pool, err := storage.Open(ctx, storage.Options{
		Path:          cfg.Storage.Path,
		MaxOpenConns:  cfg.Storage.MaxOpenConns,
		BusyTimeoutMS: cfg.Storage.BusyTimeoutMS,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	events := eventstore.New(pool)
	tasks := taskstore.New(pool)
	tools := tool.DefaultRegistry(workDir, tasks, events)
	agents := agent.NewRegistry()
	hub := broadcast.NewHubWithQueueSize(cfg.Broadcast.QueueSize)
	defer hub.Close()

	providers := provider.NewRegistry(cfg.Provider.DefaultModel)
	if len(providers.List()) == 0 {
		logging.Warn().Msg("no provider.Driver registered: this build ships the driver contract only")
	}

	guardrails := guardrail.NewEngine()
	if err := guardrail.RegisterCoreRules(guardrails); err != nil {
		return err
	}
	if err := config.ApplyGuardrailOverrides(guardrails, cfg.Guardrail.OverridePath); err != nil {
		logging.Warn().Err(err).Msg("failed to apply guardrail overrides")
	}

	serverConfig := rpc.DefaultConfig()
	serverConfig.Port = cfg.Server.Port
	serverConfig.Directory = workDir

	srv := rpc.New(serverConfig, events, tasks, guardrails, providers, agents, tools, hub, workDir)

	go func() {
		logging.Info().
			Int("port", serverConfig.Port).
			Str("url", fmt.Sprintf("http://127.0.0.1:%d", serverConfig.Port)).
			Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("server stopped")
	return nil
}
