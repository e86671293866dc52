package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgecode/agentcore/internal/authz"
	"github.com/forgecode/agentcore/internal/broadcast"
	"github.com/forgecode/agentcore/internal/conductor"
	"github.com/forgecode/agentcore/internal/config"
	"github.com/forgecode/agentcore/internal/control"
	"github.com/forgecode/agentcore/internal/crypto"
	"github.com/forgecode/agentcore/internal/facade"
	"github.com/forgecode/agentcore/internal/llmstreamer"
	"github.com/forgecode/agentcore/internal/metrics"
	"github.com/forgecode/agentcore/internal/planning"
	"github.com/forgecode/agentcore/internal/session"
	"github.com/forgecode/agentcore/internal/storage"
	"github.com/forgecode/agentcore/internal/toolfoundry"
	"github.com/forgecode/agentcore/internal/toolfoundry/tools"
	"github.com/forgecode/agentcore/internal/tracing"
)

// runServe wires every singleton together and blocks until a shutdown
// signal is received or the server fails to start.
func runServe(ctx context.Context, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	slog.Info("starting agentcore", "version", version, "commit", commit, "debug", debug)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logOpts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		logOpts.Level = slog.LevelDebug
	}
	if cfg.LogFormat == "text" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, logOpts)))
	} else {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, logOpts)))
	}
	slog.Info("configuration loaded", "port", cfg.Port, "workspaces_root", cfg.WorkspacesRoot)

	stores, err := storage.Open(cfg.DatabaseURL, nil)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer stores.Close()
	if err := storage.Migrate(ctx, stores); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	cipher, err := crypto.New(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}

	tracer, shutdownTracer := tracing.New(tracing.Config{ServiceName: "agentcore"})
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	// Registers every collector against the default Prometheus registry;
	// promhttp.Handler below serves them.
	mtr := metrics.New()

	hub := broadcast.NewHub(slog.Default(), mtr)
	ctrl := control.NewRegistry()
	tokens := authz.NewTokenService(cfg.JWTSecretKey, cfg.AccessTokenExpireMinutes)
	resolver := authz.NewResolver(stores, cipher)

	streamer := llmstreamer.New(cfg.LLMServerURL, resolver, hub, ctrl, slog.Default(), mtr)

	sessions := session.NewManager(cfg.WorkspacesRoot, streamer, hub, ctrl, mtr)

	// The Conductor and the Tool Foundry registry it populates are
	// mutually referential: write_file's generate fallback calls back
	// into the Conductor, so the Conductor is built first against an
	// empty registry, then RegisterAll fills that same registry in.
	reg := toolfoundry.NewRegistry()
	cond := conductor.New(streamer, reg, hub, ctrl, mtr, tracer)
	tools.RegisterAll(reg, cond.GenerateFile, sessions.CreateProject)

	handler := facade.NewHandler(&facade.Config{
		Sessions:  sessions,
		Tokens:    tokens,
		Streamer:  streamer,
		Planner:   planning.New(streamer, hub, tracer),
		Conductor: cond,
		Companion: facade.NewCompanionStreamer(streamer, hub),
		Hub:       hub,
		Control:   ctrl,
		Logger:    slog.Default(),
	})

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	slog.Info("agentcore listening", "addr", server.Addr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	slog.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("agentcore stopped gracefully")
	return nil
}
