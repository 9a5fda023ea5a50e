// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package router dispatches chat turns across one or two models.
//
// Single mode passes the request through to one model with its original
// tools. Dual mode splits the turn: a planning call on the main model
// produces a typed intent, then either an early return (the intent is
// terminal) or an execution call on the executor model with the real
// tool schemas. The router holds no persistent state beyond its current
// configuration snapshot; profiles and prosthetics are read per turn.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/failurelog"
	"github.com/AleutianAI/AleutianRelay/services/relay/prosthetic"
	"github.com/AleutianAI/AleutianRelay/services/relay/provider"
	"github.com/AleutianAI/AleutianRelay/services/relay/registry"
)

// Turn modes.
const (
	ModeSingle = "single"
	ModeDual   = "dual"
)

// Phase names reported in TurnResult.Phases.
const (
	PhaseResponse  = "response"
	PhasePlanning  = "planning"
	PhaseExecution = "execution"
)

const defaultTurnTimeout = 120 * time.Second

// Config is the router's configuration snapshot. Swapped whole via
// Configure; never mutated in place.
type Config struct {
	MainModelID     string                    `json:"main_model_id,omitempty"`
	ExecutorModelID string                    `json:"executor_model_id,omitempty"`
	EnableDualModel bool                      `json:"enable_dual_model"`
	Provider        string                    `json:"provider,omitempty"`
	Timeout         time.Duration             `json:"timeout,omitempty"`
	Settings        datatypes.OptimalSettings `json:"settings"`
}

// dualReady reports whether the snapshot names both sides of a pair.
func (c Config) dualReady() bool {
	return c.EnableDualModel && c.MainModelID != "" && c.ExecutorModelID != ""
}

// Latency breaks a turn's wall clock down by phase.
type Latency struct {
	MainMS     int64 `json:"main_ms,omitempty"`
	ExecutorMS int64 `json:"executor_ms,omitempty"`
	TotalMS    int64 `json:"total_ms"`
}

// TurnResult is the router's answer for one turn.
type TurnResult struct {
	Mode             string             `json:"mode"`
	FinalResponse    datatypes.Message  `json:"final_response"`
	MainResponse     *datatypes.Message `json:"main_response,omitempty"`
	ExecutorResponse *datatypes.Message `json:"executor_response,omitempty"`
	ToolCalls        []datatypes.ToolCall `json:"tool_calls,omitempty"`
	Intent           *datatypes.Intent  `json:"intent,omitempty"`
	Latency          Latency            `json:"latency"`
	Phases           []string           `json:"phases"`
	// Partial marks a turn aborted by deadline after planning but before
	// execution.
	Partial bool `json:"partial,omitempty"`
	// FailedPhase names the phase whose provider call failed. The final
	// response is an empty assistant message when set; FailureDetail
	// carries the upstream diagnostic.
	FailedPhase   string `json:"failed_phase,omitempty"`
	FailureDetail string `json:"failure_detail,omitempty"`
}

// TurnParams is one inbound turn.
type TurnParams struct {
	Messages []datatypes.Message
	Tools    []datatypes.ToolDefinition
	// ModelOverride, when set, forces single mode against this model.
	ModelOverride string
	// ExtensionAddendum is appended to the executor system prompt by the
	// IDE mapper when extension tools are exposed.
	ExtensionAddendum string
}

// Router dispatches turns.
//
// Thread Safety: safe for concurrent use. Configure swaps the snapshot
// under a short lock; turns read a copy.
type Router struct {
	providers   *provider.Registry
	profiles    *registry.Registry
	prosthetics *prosthetic.Store
	failures    *failurelog.Log

	mu        sync.RWMutex
	cfg       Config
	retrieval Retriever
}

// New builds a router over its four collaborators.
func New(providers *provider.Registry, profiles *registry.Registry, prosthetics *prosthetic.Store, failures *failurelog.Log, cfg Config) *Router {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTurnTimeout
	}
	return &Router{
		providers:   providers,
		profiles:    profiles,
		prosthetics: prosthetics,
		failures:    failures,
		cfg:         cfg,
	}
}

// Configure swaps the configuration snapshot.
func (r *Router) Configure(cfg Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTurnTimeout
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	slog.Info("router reconfigured",
		"main", cfg.MainModelID, "executor", cfg.ExecutorModelID, "dual", cfg.EnableDualModel)
}

// Snapshot returns the current configuration.
func (r *Router) Snapshot() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Route runs one turn under the current configuration.
func (r *Router) Route(ctx context.Context, params TurnParams) (*TurnResult, error) {
	cfg := r.Snapshot()

	ctx, span := otel.Tracer("relay/router").Start(ctx, "router.Route")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if params.ModelOverride != "" || !cfg.dualReady() {
		result, err := r.routeSingle(ctx, cfg, params)
		if err != nil {
			span.SetStatus(codes.Error, "single-mode turn failed")
			span.RecordError(err)
		} else if result.FailedPhase != "" {
			span.SetStatus(codes.Error, "turn degraded in phase "+result.FailedPhase)
		}
		return result, err
	}

	span.SetAttributes(
		attribute.String("router.main", cfg.MainModelID),
		attribute.String("router.executor", cfg.ExecutorModelID),
	)
	result, err := r.routeDual(ctx, cfg, params)
	if err != nil {
		span.SetStatus(codes.Error, "dual-mode turn failed")
		span.RecordError(err)
	} else if result.FailedPhase != "" {
		span.SetStatus(codes.Error, "turn degraded in phase "+result.FailedPhase)
	}
	return result, err
}

// routeSingle passes the turn through to one model unchanged.
func (r *Router) routeSingle(ctx context.Context, cfg Config, params TurnParams) (*TurnResult, error) {
	modelID := params.ModelOverride
	if modelID == "" {
		modelID = cfg.MainModelID
		if modelID == "" {
			modelID = cfg.ExecutorModelID
		}
	}
	if modelID == "" {
		return nil, fmt.Errorf("no model configured for single mode")
	}

	client, err := r.providers.Resolve(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("route single: %w", err)
	}

	start := time.Now()
	resp, err := client.Call(ctx, provider.CallOptions{
		ModelID:     modelID,
		Messages:    params.Messages,
		Tools:       params.Tools,
		Temperature: &cfg.Settings.Temperature,
	})
	if err != nil {
		r.recordFailure(modelID, "", datatypes.CategoryTool, err, lastUserContent(params.Messages))
		return degradedResult(ModeSingle, PhaseResponse, nil, err, start), nil
	}

	msg, err := resp.Message()
	if err != nil {
		r.recordFailure(modelID, "", datatypes.CategoryTool, err, lastUserContent(params.Messages))
		return degradedResult(ModeSingle, PhaseResponse, nil, err, start), nil
	}
	return &TurnResult{
		Mode:          ModeSingle,
		FinalResponse: msg,
		ToolCalls:     msg.ToolCalls,
		Latency:       Latency{TotalMS: time.Since(start).Milliseconds()},
		Phases:        []string{PhaseResponse},
	}, nil
}

// routeDual runs the planning/execution split.
func (r *Router) routeDual(ctx context.Context, cfg Config, params TurnParams) (*TurnResult, error) {
	start := time.Now()
	client, err := r.providers.Resolve(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("route dual: %w", err)
	}

	// Planning call: classifier skeleton plus the main model's
	// prosthetic, no tools.
	mainProsthetic, _ := r.prosthetics.Get(cfg.MainModelID)
	planning := planningMessages(params.Messages, planningSystemPrompt(mainProsthetic.Text))
	if block := r.retrievalContext(ctx, lastUserContent(params.Messages)); block != "" {
		// Context lands between the system prompt and the transcript so
		// the planner reads it before the conversation.
		planning = append(planning[:1], append([]datatypes.Message{{Role: "system", Content: block}}, planning[1:]...)...)
	}

	planResp, err := client.Call(ctx, provider.CallOptions{
		ModelID:     cfg.MainModelID,
		Messages:    planning,
		Temperature: &cfg.Settings.Temperature,
	})
	if err != nil {
		errType := datatypes.CategoryIntent
		if ce, ok := provider.AsCallError(err); ok && ce.Kind == provider.ErrKindTimeout {
			errType = datatypes.CategoryComboPairing
		}
		r.recordFailure(cfg.MainModelID, cfg.ExecutorModelID, errType, err, lastUserContent(params.Messages))
		return degradedResult(ModeDual, PhasePlanning, nil, err, start), nil
	}
	mainLatency := planResp.LatencyMS
	mainMsg, _ := planResp.Message()

	intent, parsed := ParseIntent(planResp.Content())
	if !parsed {
		r.recordFailure(cfg.MainModelID, cfg.ExecutorModelID, datatypes.CategoryIntent,
			errors.New("planner output could not be parsed as an intent"), lastUserContent(params.Messages))
	}

	result := &TurnResult{
		Mode:         ModeDual,
		MainResponse: &mainMsg,
		Intent:       &intent,
		Latency:      Latency{MainMS: mainLatency},
		Phases:       []string{PhasePlanning},
	}

	if intent.IsTerminal() {
		final, err := r.terminalResponse(ctx, client, cfg, intent, params.Messages)
		if err != nil {
			r.recordFailure(cfg.MainModelID, cfg.ExecutorModelID, datatypes.CategoryIntent, err, lastUserContent(params.Messages))
			return degradedResult(ModeDual, PhaseResponse, result, err, start), nil
		}
		result.FinalResponse = final
		result.Latency.TotalMS = time.Since(start).Milliseconds()
		return result, nil
	}

	// Deadline check between phases: an expired deadline during planning
	// aborts before execution and returns the planning phase alone.
	if ctx.Err() != nil {
		result.Partial = true
		result.FinalResponse = mainMsg
		result.Latency.TotalMS = time.Since(start).Milliseconds()
		r.recordFailure(cfg.MainModelID, cfg.ExecutorModelID, datatypes.CategoryComboPairing,
			fmt.Errorf("main model timeout: deadline expired during planning: %w", ctx.Err()),
			lastUserContent(params.Messages))
		return result, nil
	}

	// Execution call: intent serialized as literal user content, tools
	// narrowed to the executor's enabled set.
	execProsthetic, _ := r.prosthetics.Get(cfg.ExecutorModelID)
	tools := r.executorTools(cfg.ExecutorModelID, params.Tools)

	execResp, err := client.Call(ctx, provider.CallOptions{
		ModelID: cfg.ExecutorModelID,
		Messages: []datatypes.Message{
			{Role: "system", Content: executorSystemPrompt(execProsthetic.Text, params.ExtensionAddendum)},
			{Role: "user", Content: serializeIntent(intent)},
		},
		Tools:       tools,
		ToolChoice:  "auto",
		Temperature: &cfg.Settings.Temperature,
	})
	if err != nil {
		r.recordFailure(cfg.MainModelID, cfg.ExecutorModelID, datatypes.CategoryTool, err, intent.Tool)
		return degradedResult(ModeDual, PhaseExecution, result, err, start), nil
	}

	execMsg, err := execResp.Message()
	if err != nil {
		r.recordFailure(cfg.MainModelID, cfg.ExecutorModelID, datatypes.CategoryTool, err, intent.Tool)
		return degradedResult(ModeDual, PhaseExecution, result, err, start), nil
	}

	result.ExecutorResponse = &execMsg
	result.FinalResponse = execMsg
	result.ToolCalls = execMsg.ToolCalls
	result.Latency.ExecutorMS = execResp.LatencyMS
	result.Latency.TotalMS = time.Since(start).Milliseconds()
	result.Phases = append(result.Phases, PhaseExecution)

	if intent.Action == datatypes.ActionCallTool && len(execMsg.ToolCalls) == 0 {
		r.recordFailure(cfg.MainModelID, cfg.ExecutorModelID, datatypes.CategoryTool,
			errors.New("tool_not_called: executor answered in prose despite a call_tool intent"), intent.Tool)
	}
	return result, nil
}

// degradedResult converts a failed provider call into an in-band
// response: empty assistant message, the failed phase flagged, and the
// upstream diagnostic in FailureDetail. Call failures never surface as
// errors to the handler; only configuration problems do. When a prior
// result exists (a dual turn that completed planning), its planning
// output is kept so the caller can still see the intent.
func degradedResult(mode, phase string, prior *TurnResult, err error, start time.Time) *TurnResult {
	result := prior
	if result == nil {
		result = &TurnResult{Mode: mode, Phases: []string{phase}}
	} else if len(result.Phases) == 0 || result.Phases[len(result.Phases)-1] != phase {
		result.Phases = append(result.Phases, phase)
	}
	result.FinalResponse = datatypes.Message{Role: "assistant"}
	result.FailedPhase = phase
	result.FailureDetail = err.Error()
	result.Latency.TotalMS = time.Since(start).Milliseconds()
	slog.Warn("turn degraded", "mode", mode, "phase", phase, "error", err)
	return result
}

// terminalResponse synthesizes the assistant message for respond and
// ask_clarification intents. When the planner supplied no text, a second
// no-tools call under a neutral prompt produces it.
func (r *Router) terminalResponse(ctx context.Context, client provider.Client, cfg Config, intent datatypes.Intent, messages []datatypes.Message) (datatypes.Message, error) {
	content := intent.Metadata.Response
	if intent.Action == datatypes.ActionAskClarification && intent.Metadata.Question != "" {
		content = intent.Metadata.Question
	}
	if content != "" {
		return datatypes.Message{Role: "assistant", Content: content}, nil
	}

	resp, err := client.Call(ctx, provider.CallOptions{
		ModelID:     cfg.MainModelID,
		Messages:    planningMessages(messages, neutralResponsePrompt),
		Temperature: &cfg.Settings.Temperature,
	})
	if err != nil {
		return datatypes.Message{}, fmt.Errorf("terminal response call to %s: %w", cfg.MainModelID, err)
	}
	return datatypes.Message{Role: "assistant", Content: resp.Content()}, nil
}

// executorTools intersects the request tools with the executor profile's
// enabled list. An empty profile list means no restriction.
func (r *Router) executorTools(executorID string, requested []datatypes.ToolDefinition) []datatypes.ToolDefinition {
	profile, ok := r.profiles.Get(executorID)
	if !ok || len(profile.EnabledTools) == 0 {
		return requested
	}
	enabled := make(map[string]bool, len(profile.EnabledTools))
	for _, name := range profile.EnabledTools {
		enabled[name] = true
	}
	out := make([]datatypes.ToolDefinition, 0, len(requested))
	for _, t := range requested {
		if enabled[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

// recordFailure writes to the failure log without letting journal errors
// disturb the turn.
func (r *Router) recordFailure(modelID, executorID, category string, err error, query string) {
	if r.failures == nil {
		return
	}
	if _, logErr := r.failures.LogFailure(failurelog.LogParams{
		ModelID:         modelID,
		ExecutorModelID: executorID,
		Category:        category,
		RawError:        err.Error(),
		Query:           query,
	}); logErr != nil {
		slog.Warn("failure log write skipped", "error", logErr)
	}
}

func lastUserContent(messages []datatypes.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
