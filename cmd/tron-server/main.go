// Package main provides the entry point for the tron server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	port      = flag.Int("port", 0, "Server port (overrides config)")
	directory = flag.String("directory", "", "Working directory")
	version   = flag.Bool("version", false, "Print version and exit")
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("tron-server %s (%s)\n", Version, BuildTime)
		os.Exit(0)
	}

	logging.Init(logging.DefaultConfig())

	workDir := *directory
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to get working directory")
		}
	}

	logging.Info().Str("version", Version).Str("directory", workDir).Msg("starting tron server")

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		logging.Fatal().Err(err).Msg("failed to create data directories")
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	ctx := context.Background()
	pool, err := storage.Open(ctx, storage.Options{
		Path:          cfg.Storage.Path,
		MaxOpenConns:  cfg.Storage.MaxOpenConns,
		BusyTimeoutMS: cfg.Storage.BusyTimeoutMS,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open storage pool")
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
		logging.Warn().Msg("no provider.Driver registered: this build ships the driver contract only, per spec; a real deployment registers a vendor SDK-backed Driver before calling providers.Register")
	}

	guardrails := guardrail.NewEngine()
	if err := guardrail.RegisterCoreRules(guardrails); err != nil {
		logging.Fatal().Err(err).Msg("failed to register core guardrail rules")
	}
	if err := config.ApplyGuardrailOverrides(guardrails, cfg.Guardrail.OverridePath); err != nil {
		logging.Warn().Err(err).Msg("failed to apply guardrail overrides")
	}

	serverConfig := rpc.DefaultConfig()
	serverConfig.Port = cfg.Server.Port
	serverConfig.Directory = workDir

	srv := rpc.New(serverConfig, events, tasks, guardrails, providers, agents, tools, hub, workDir)

	go func() {
		logging.Info().Int("port", serverConfig.Port).Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("server stopped")
}
