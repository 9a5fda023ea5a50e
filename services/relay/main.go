// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianRelay/services/relay/combo"
	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/failurelog"
	"github.com/AleutianAI/AleutianRelay/services/relay/handlers"
	"github.com/AleutianAI/AleutianRelay/services/relay/idemap"
	"github.com/AleutianAI/AleutianRelay/services/relay/observability"
	"github.com/AleutianAI/AleutianRelay/services/relay/probe"
	"github.com/AleutianAI/AleutianRelay/services/relay/prosthetic"
	"github.com/AleutianAI/AleutianRelay/services/relay/provider"
	"github.com/AleutianAI/AleutianRelay/services/relay/rag"
	"github.com/AleutianAI/AleutianRelay/services/relay/registry"
	"github.com/AleutianAI/AleutianRelay/services/relay/router"
	"github.com/AleutianAI/AleutianRelay/services/relay/routes"
	"github.com/AleutianAI/AleutianRelay/services/relay/teams"
	"github.com/AleutianAI/AleutianRelay/services/relay/workspace"
	"github.com/AleutianAI/AleutianRelay/services/relay/ws"
)

// defaultTrainabilityPrompt is the Level 1 corrective fragment used by
// the trainability smoke test. RELAY_TRAINABILITY_PROMPT overrides it.
const defaultTrainabilityPrompt = "Important: when the user says not to call tools, respond in plain text only. Never call a tool the user asked you to avoid."

func main() {
	// .env is optional; container deployments pass real env vars.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "error", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("RELAY_PORT")
	if port == "" {
		port = "12250"
	}
	dataRoot := os.Getenv("RELAY_DATA_ROOT")
	if dataRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("FATAL: no data root and no home directory: %v", err)
		}
		dataRoot = filepath.Join(home, ".aleutian-relay")
	}

	cleanup, err := observability.InitTracing(context.Background(), "relay-service")
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	workspaceMgr, err := workspace.NewManager(dataRoot, workspace.CLIGit{})
	if err != nil {
		log.Fatalf("FATAL: could not initialize the workspace manager: %v", err)
	}

	providers, err := provider.NewRegistry()
	if err != nil {
		log.Fatalf("FATAL: could not initialize provider clients: %v", err)
	}
	profiles := registry.New(dataRoot)
	prosthetics := prosthetic.NewStore(dataRoot)
	failures := failurelog.NewLog(workspaceMgr.StateRoot)
	teamStore := teams.NewStore(workspaceMgr.StateRoot)
	comboStore := combo.NewStore(dataRoot)
	mapper := idemap.NewMapper(dataRoot)

	hub := ws.NewHub(func(n int) {
		observability.ActiveWebsockets.Set(float64(n))
	})
	heartbeatCtx, stopHeartbeat := context.WithCancel(context.Background())
	defer stopHeartbeat()
	go hub.Heartbeat(heartbeatCtx, 30*time.Second)

	failures.OnLogged(func(entry datatypes.FailureEntry) {
		hub.Broadcast(ws.FrameFailureLogged, map[string]any{
			"id": entry.ID, "model": entry.ModelID,
			"category": entry.Category, "error_type": entry.ErrorType,
		})
	})

	trainabilityPrompt := os.Getenv("RELAY_TRAINABILITY_PROMPT")
	if trainabilityPrompt == "" {
		trainabilityPrompt = defaultTrainabilityPrompt
	}
	harness := probe.NewHarness(providers, trainabilityPrompt, func(event string, data map[string]any) {
		hub.Broadcast(event, data)
	})

	rt := router.New(providers, profiles, prosthetics, failures, initialRouterConfig(teamStore))
	if os.Getenv("RELAY_RAG_DISABLED") != "true" {
		rt.AttachRetrieval(rag.NewClient())
	}
	evaluator := combo.NewEvaluator(rt, comboStore, failures, func(event string, data map[string]any) {
		hub.Broadcast(event, data)
	})

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go func() {
		if err := mapper.Watch(watchCtx); err != nil {
			slog.Warn("ide mapping watcher stopped", "error", err)
		}
	}()

	engine := gin.Default()
	engine.Use(otelgin.Middleware("relay-service"))
	routes.SetupRoutes(engine, routes.Deps{
		Router:      rt,
		Providers:   providers,
		Local:       providers.Local(),
		Profiles:    profiles,
		Harness:     harness,
		ComboRunner: handlers.NewComboRunner(evaluator),
		ComboStore:  comboStore,
		Failures:    failures,
		Prosthetics: prosthetics,
		Teams:       teamStore,
		Workspace:   workspaceMgr,
		Mapper:      mapper,
		Hub:         hub,
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("relay listening", "port", port, "data_root", dataRoot,
			"workspace", workspaceMgr.GetCurrent().Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown incomplete", "error", err)
	}
	stopHeartbeat()
	hub.Shutdown()
}

// initialRouterConfig restores the active team's configuration, falling
// back to env-configured single mode.
func initialRouterConfig(teamStore *teams.Store) router.Config {
	cfg := router.Config{
		MainModelID:     os.Getenv("RELAY_MAIN_MODEL"),
		ExecutorModelID: os.Getenv("RELAY_EXECUTOR_MODEL"),
		EnableDualModel: os.Getenv("RELAY_DUAL_MODEL") == "true",
		Provider:        os.Getenv("RELAY_PROVIDER"),
	}
	cfg.Settings.Temperature = 0.2

	if team, ok := teamStore.Active(); ok {
		cfg.MainModelID = team.MainModelID
		cfg.ExecutorModelID = team.ExecutorModelID
		cfg.EnableDualModel = team.EnableDualModel
		cfg.Provider = team.Provider
		if team.Temperature > 0 {
			cfg.Settings.Temperature = team.Temperature
		}
		slog.Info("restored active team", "team", team.Name)
	}
	return cfg
}
