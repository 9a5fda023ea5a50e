// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianRelay/services/relay/combo"
	"github.com/AleutianAI/AleutianRelay/services/relay/observability"
	"github.com/AleutianAI/AleutianRelay/services/relay/probe"
	"github.com/AleutianAI/AleutianRelay/services/relay/provider"
	"github.com/AleutianAI/AleutianRelay/services/relay/registry"
	"github.com/AleutianAI/AleutianRelay/services/relay/router"
)

var toolyTracer = otel.Tracer("aleutian.relay.handlers")

// HandleListModels merges the serving host's live model list with any
// stored profiles, so the dashboard shows tested and untested models
// side by side.
func HandleListModels(local *provider.LocalClient, profiles *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := toolyTracer.Start(c.Request.Context(), "HandleListModels")
		defer span.End()

		models, err := local.ListModels(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("model list unavailable", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "inference host unreachable: " + err.Error()})
			return
		}

		stored, err := profiles.List()
		if err != nil {
			span.RecordError(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		profileByID := make(map[string]int, len(stored))
		for i := range stored {
			profileByID[stored[i].ModelID] = i
		}

		type modelEntry struct {
			ID         string  `json:"id"`
			MaxContext int     `json:"max_context,omitempty"`
			Tested     bool    `json:"tested"`
			Overall    float64 `json:"overall,omitempty"`
			Role       string  `json:"role,omitempty"`
		}
		out := make([]modelEntry, 0, len(models))
		for _, m := range models {
			entry := modelEntry{ID: m.ID, MaxContext: m.MaxContext}
			if i, ok := profileByID[m.ID]; ok {
				entry.Tested = true
				entry.Overall = stored[i].Overall
				entry.Role = stored[i].RecommendedRole
			}
			out = append(out, entry)
		}
		c.JSON(http.StatusOK, gin.H{"models": out})
	}
}

// ProbeRunRequest starts a profile run.
type ProbeRunRequest struct {
	ModelID      string   `json:"model_id" binding:"required"`
	Provider     string   `json:"provider"`
	Categories   []string `json:"categories"`
	IncludeSweep bool     `json:"include_sweep"`
	MaxContext   int      `json:"max_context"`
}

// HandleRunProbe kicks off a profile run in the background. Progress
// streams over the websocket hub; the finished profile lands in the
// registry.
func HandleRunProbe(harness *probe.Harness, profiles *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProbeRunRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		go func() {
			profile, err := harness.RunProfile(context.Background(), req.ModelID, req.Provider, probe.Options{
				Categories:   req.Categories,
				IncludeSweep: req.IncludeSweep,
				MaxContext:   req.MaxContext,
			})
			if err != nil {
				observability.ProbeRunsTotal.WithLabelValues("error").Inc()
				slog.Error("profile run failed", "model_id", req.ModelID, "error", err)
				return
			}
			if err := profiles.Save(profile); err != nil {
				observability.ProbeRunsTotal.WithLabelValues("error").Inc()
				slog.Error("profile not saved", "model_id", req.ModelID, "error", err)
				return
			}
			observability.ProbeRunsTotal.WithLabelValues("ok").Inc()
		}()

		c.JSON(http.StatusAccepted, gin.H{"status": "started", "model_id": req.ModelID})
	}
}

// runContextSweep runs only the latency-vs-context sweep for one model
// and merges the resulting curve into its stored profile.
func runContextSweep(harness *probe.Harness, profiles *registry.Registry, modelID, providerName string, maxContext int) {
	// An unmatched category skips every catalog probe; only the sweep
	// runs.
	profile, err := harness.RunProfile(context.Background(), modelID, providerName, probe.Options{
		Categories:   []string{probe.CategoryStrategic},
		IncludeSweep: true,
		MaxContext:   maxContext,
	})
	if err != nil {
		slog.Error("context test failed", "model_id", modelID, "error", err)
		return
	}
	if existing, ok := profiles.Get(modelID); ok {
		existing.LatencyCurve = profile.LatencyCurve
		if profile.LatencyCurve != nil {
			existing.Settings.ContextSize = profile.LatencyCurve.RecommendedContext
		}
		profile = existing
	}
	if err := profiles.Save(profile); err != nil {
		slog.Error("context test result not saved", "model_id", modelID, "error", err)
	}
}

// HandleContextTest runs the latency-vs-context sweep for a single
// model in the background.
func HandleContextTest(harness *probe.Harness, profiles *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProbeRunRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		go runContextSweep(harness, profiles, req.ModelID, req.Provider, req.MaxContext)

		c.JSON(http.StatusAccepted, gin.H{"status": "started", "model_id": req.ModelID})
	}
}

// ComboContextTestRequest sweeps both sides of a candidate pair.
type ComboContextTestRequest struct {
	MainModelID     string `json:"mainModelId" binding:"required"`
	ExecutorModelID string `json:"executorModelId" binding:"required"`
	Provider        string `json:"provider"`
}

// HandleComboContextTest runs the latency sweep for a pair's main and
// executor models in the background, sequentially so both land on the
// same inference host one at a time.
func HandleComboContextTest(harness *probe.Harness, profiles *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ComboContextTestRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		go func() {
			runContextSweep(harness, profiles, req.MainModelID, req.Provider, 0)
			if req.ExecutorModelID != req.MainModelID {
				runContextSweep(harness, profiles, req.ExecutorModelID, req.Provider, 0)
			}
		}()

		c.JSON(http.StatusAccepted, gin.H{
			"status":            "started",
			"main_model_id":     req.MainModelID,
			"executor_model_id": req.ExecutorModelID,
		})
	}
}

// HandleGetProfiles lists stored profiles.
func HandleGetProfiles(profiles *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := profiles.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"profiles": all})
	}
}

// HandleDeleteProfile removes one stored profile.
func HandleDeleteProfile(profiles *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		modelID := c.Param("modelId")
		if err := profiles.Delete(modelID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": modelID})
	}
}

// ComboRunner serializes combo evaluation runs: one at a time, stoppable.
//
// Thread Safety: safe for concurrent use.
type ComboRunner struct {
	evaluator *combo.Evaluator

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewComboRunner wraps an evaluator.
func NewComboRunner(evaluator *combo.Evaluator) *ComboRunner {
	return &ComboRunner{evaluator: evaluator}
}

// Start launches a run unless one is already in flight.
func (r *ComboRunner) Start(params combo.RunParams) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true
	observability.ComboRunsInFlight.Inc()

	go func() {
		defer func() {
			r.mu.Lock()
			r.running = false
			r.cancel = nil
			r.mu.Unlock()
			observability.ComboRunsInFlight.Dec()
		}()
		if _, err := r.evaluator.Run(ctx, params); err != nil && ctx.Err() == nil {
			slog.Error("combo run failed", "error", err)
		}
	}()
	return true
}

// Stop cancels the in-flight run, if any.
func (r *ComboRunner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// ComboRunRequest starts a combo evaluation. The dashboard sends the
// camelCase candidate lists; older scripts send the short names.
type ComboRunRequest struct {
	Mains          []string `json:"mains"`
	Executors      []string `json:"executors"`
	MainModels     []string `json:"mainModels"`
	ExecutorModels []string `json:"executorModels"`
	Provider       string   `json:"provider"`
}

// candidates merges the two accepted field spellings.
func (r ComboRunRequest) candidates() (mains, executors []string) {
	mains = r.Mains
	if len(mains) == 0 {
		mains = r.MainModels
	}
	executors = r.Executors
	if len(executors) == 0 {
		executors = r.ExecutorModels
	}
	return mains, executors
}

// HandleComboRun starts a pair-evaluation run.
func HandleComboRun(runner *ComboRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ComboRunRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		mains, executors := req.candidates()
		if len(mains) == 0 || len(executors) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mainModels and executorModels must be non-empty"})
			return
		}
		if !runner.Start(combo.RunParams{Mains: mains, Executors: executors, Provider: req.Provider}) {
			c.JSON(http.StatusConflict, gin.H{"error": "a combo run is already in progress"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "started"})
	}
}

// HandleComboStop cancels the in-flight run.
func HandleComboStop(runner *ComboRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !runner.Stop() {
			c.JSON(http.StatusNotFound, gin.H{"error": "no combo run in progress"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "stopping"})
	}
}

// HandleComboResults lists stored pair records.
func HandleComboResults(store *combo.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := store.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": records})
	}
}

// HandlePairingRecommend returns the best pairing from stored profiles.
// Accepts ?vram_limit_mb=N.
func HandlePairingRecommend(profiles *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := profiles.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var constraints combo.Constraints
		if raw := c.Query("vram_limit_mb"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "vram_limit_mb must be a non-negative integer"})
				return
			}
			constraints.VRAMLimitMB = limit
		}

		rec, err := combo.Recommend(all, constraints)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// RouterConfigRequest reconfigures the router.
type RouterConfigRequest struct {
	MainModelID     string  `json:"main_model_id"`
	ExecutorModelID string  `json:"executor_model_id"`
	EnableDualModel bool    `json:"enable_dual_model"`
	Provider        string  `json:"provider"`
	Temperature     float32 `json:"temperature"`
}

// HandleGetRouterConfig returns the current routing snapshot.
func HandleGetRouterConfig(rt *router.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, rt.Snapshot())
	}
}

// HandleSetRouterConfig swaps the routing snapshot.
func HandleSetRouterConfig(rt *router.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RouterConfigRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		cfg := rt.Snapshot()
		cfg.MainModelID = req.MainModelID
		cfg.ExecutorModelID = req.ExecutorModelID
		cfg.EnableDualModel = req.EnableDualModel
		cfg.Provider = req.Provider
		if req.Temperature > 0 {
			cfg.Settings.Temperature = req.Temperature
		}
		rt.Configure(cfg)
		c.JSON(http.StatusOK, rt.Snapshot())
	}
}

// HandleAutoSelect picks the best pair from profiles and applies it to
// the router.
func HandleAutoSelect(rt *router.Router, profiles *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		mainID, executorID, err := router.AutoSelect(profiles)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		cfg := rt.Snapshot()
		cfg.MainModelID = mainID
		cfg.ExecutorModelID = executorID
		cfg.EnableDualModel = true
		rt.Configure(cfg)
		c.JSON(http.StatusOK, gin.H{"main_model_id": mainID, "executor_model_id": executorID})
	}
}
