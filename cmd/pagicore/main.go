// Command pagicore is the control-plane server process described in
// SPEC_FULL.md §1: it wires C1-C9 together and serves the remote-call
// surface over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pagi-systems/pagi-core/internal/action"
	"github.com/pagi-systems/pagi-core/internal/config"
	"github.com/pagi-systems/pagi-core/internal/logging"
	"github.com/pagi-systems/pagi-core/internal/memory"
	"github.com/pagi-systems/pagi-core/internal/patch"
	"github.com/pagi-systems/pagi-core/internal/registry"
	"github.com/pagi-systems/pagi-core/internal/rpc"
	"github.com/pagi-systems/pagi-core/internal/safety"
	"github.com/pagi-systems/pagi-core/internal/skills"
	"github.com/pagi-systems/pagi-core/internal/tracing"
)

func main() {
	cfg := config.LoadFromEnv()
	logger := logging.New(cfg.LogLevel, cfg.DevMode || strings.EqualFold(cfg.LogFormat, "text"))
	log := logger.WithComponent("pagicore")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.OTelEndpoint, cfg.DevMode)
	if err != nil {
		log.Error("tracing setup failed, continuing without it", map[string]interface{}{"error": err.Error()})
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	memStore := memory.NewStore(ctx, memory.Config{
		Disabled:     cfg.DisableQdrant,
		EmbeddingDim: cfg.EmbeddingDim,
		URI:          cfg.QdrantURI,
		APIKey:       cfg.QdrantAPIKey,
		RedisURL:     cfg.RedisURL,
	}, logger.WithComponent("memory"))

	allowList := skills.NewAllowList(filepath.Join(cfg.WorkerTree, "src", "skills"))
	dispatcher := skills.NewDispatcher(allowList, cfg.WorkerTree, cfg.ActionLog)

	governor := safety.NewGovernor(cfg.MaxRecursionDepth, cfg.HITLGate)

	endpoint := &action.Endpoint{
		Dispatcher:        dispatcher,
		MaxDepth:          cfg.MaxRecursionDepth,
		MockModeEnv:       cfg.MockMode,
		AllowRealDispatch: cfg.AllowRealDispatch,
		Logger:            logger.WithComponent("action"),
	}

	patchStore := patch.NewStore()
	lifecycle := patch.NewLifecycle(
		patchStore, memStore, dispatcher,
		cfg.RegistryPath, cfg.ServerTree, cfg.WorkerTree,
		patch.WithLogger(logger.WithComponent("patch")),
		patch.WithForceTestFailure(cfg.ForceTestFailure),
		patch.WithSkipApplyTest(cfg.SkipApplyTest),
		patch.WithAutoCommit(cfg.AutoCommitSelfPatch),
		patch.WithAutoEvolve(cfg.AutoEvolveSkills),
		patch.WithApproveFlagName(cfg.ApproveFlagName),
	)

	watcher := registry.NewWatcher(cfg.RegistryPath, time.Duration(cfg.WatchIntervalSeconds)*time.Second, logger.WithComponent("registry_watcher"))
	go watcher.Run(ctx)

	server := &rpc.Server{
		Governor:        governor,
		Endpoint:        endpoint,
		Memory:          memStore,
		Lifecycle:       lifecycle,
		Logger:          logger,
		ActionLog:       cfg.ActionLog,
		HITLPollSeconds: cfg.HITLPollSeconds,
	}
	handler := otelhttp.NewHandler(rpc.NewServer(server), "pagicore")

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("pagicore listening", map[string]interface{}{"addr": addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", map[string]interface{}{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	log.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}
