// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers holds the gin handlers for every relay endpoint.
// Handlers are factories closing over their dependencies; no package
// globals beyond tracers.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianRelay/services/relay/compress"
	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/idemap"
	"github.com/AleutianAI/AleutianRelay/services/relay/observability"
	"github.com/AleutianAI/AleutianRelay/services/relay/registry"
	"github.com/AleutianAI/AleutianRelay/services/relay/router"
	"github.com/AleutianAI/AleutianRelay/services/relay/ws"
)

var chatTracer = otel.Tracer("aleutian.relay.handlers")

// HandleChatCompletions is the IDE-facing entry point. It accepts the
// OpenAI chat-completions shape, resolves the IDE from the model
// suffix, routes the turn, reconciles emitted tool calls through the
// IDE mapping, and answers in the OpenAI envelope.
func HandleChatCompletions(rt *router.Router, mapper *idemap.Mapper, profiles *registry.Registry, hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChatCompletions")
		defer span.End()

		var req datatypes.ChatCompletionRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("failed to parse chat completion request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if len(req.Messages) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no messages provided"})
			return
		}
		if req.Stream {
			// Streaming is negotiated away: IDE clients fall back to
			// non-streaming when the field is rejected.
			c.JSON(http.StatusBadRequest, gin.H{"error": "streaming is not supported"})
			return
		}

		modelID, ide := idemap.ParseModel(req.Model)

		tools := req.Tools
		addendum := ""
		cfg := rt.Snapshot()
		if executorID := cfg.ExecutorModelID; executorID != "" {
			if profile, ok := profiles.Get(executorID); ok {
				extra, add := mapper.Extensions(ide, enabledDefinitions(profile.EnabledTools, req.Tools))
				tools = append(tools, extra...)
				addendum = add
			}
		}

		params := router.TurnParams{
			Messages:          req.Messages,
			Tools:             tools,
			ExtensionAddendum: addendum,
		}
		// A bare model id (no routing alias) forces single mode against
		// that model, which is what IDE model pickers expect.
		if modelID != "" && modelID != "relay" && modelID != "auto" {
			params.ModelOverride = modelID
		}

		result, err := rt.Route(ctx, params)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			observability.TurnsTotal.WithLabelValues(modeOrUnknown(result), "error").Inc()
			slog.Error("turn failed", "model", req.Model, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		status := "ok"
		if result.FailedPhase != "" {
			// Upstream call failures arrive as a degraded in-band result;
			// the client still gets a well-formed envelope.
			status = "error"
			slog.Warn("turn degraded", "model", req.Model,
				"phase", result.FailedPhase, "detail", result.FailureDetail)
		}
		observability.TurnsTotal.WithLabelValues(result.Mode, status).Inc()
		if result.Latency.MainMS > 0 {
			observability.PlanningLatency.Observe(float64(result.Latency.MainMS) / 1000)
		}
		if result.Latency.ExecutorMS > 0 {
			observability.ExecutionLatency.Observe(float64(result.Latency.ExecutorMS) / 1000)
		}

		final := result.FinalResponse
		if len(final.ToolCalls) > 0 {
			final.ToolCalls = reconcileToolCalls(mapper, ide, final.ToolCalls, req.Tools)
		}

		if hub != nil {
			hub.Broadcast(ws.FrameSessionUpdated, map[string]any{
				"model": req.Model, "mode": result.Mode, "ide": ide,
				"total_ms": result.Latency.TotalMS, "tool_calls": len(final.ToolCalls),
			})
		}

		c.JSON(http.StatusOK, synthesizeEnvelope(req, final, result))
	}
}

// reconcileToolCalls runs emitted calls through the IDE mapping.
// Transform decisions replace the call; unknown calls pass through
// untouched so the IDE can surface them.
func reconcileToolCalls(mapper *idemap.Mapper, ide string, calls []datatypes.ToolCall, requestTools []datatypes.ToolDefinition) []datatypes.ToolCall {
	decisions := mapper.Decide(ide, calls, requestTools)
	out := make([]datatypes.ToolCall, 0, len(decisions))
	for _, d := range decisions {
		if d.Action == idemap.ActionUnknown {
			slog.Warn("model emitted unmapped tool", "tool", d.Call.Function.Name, "ide", ide)
		}
		out = append(out, d.Call)
	}
	return out
}

// synthesizeEnvelope wraps the routed turn in the OpenAI response shape.
func synthesizeEnvelope(req datatypes.ChatCompletionRequest, final datatypes.Message, result *router.TurnResult) datatypes.ChatCompletionResponse {
	finishReason := "stop"
	if len(final.ToolCalls) > 0 {
		finishReason = "tool_calls"
	}

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += compress.EstimateTokens(m.Content)
	}
	completionTokens := compress.EstimateTokens(final.Content)

	final.Source = ""
	return datatypes.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []datatypes.Choice{{
			Message:      final,
			FinishReason: finishReason,
		}},
		Usage: datatypes.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}
}

// enabledDefinitions resolves the executor's enabled tool names against
// the request's definitions, keeping whatever schemas the request
// carried.
func enabledDefinitions(enabled []string, requestTools []datatypes.ToolDefinition) []datatypes.ToolDefinition {
	if len(enabled) == 0 {
		return requestTools
	}
	byName := make(map[string]datatypes.ToolDefinition, len(requestTools))
	for _, t := range requestTools {
		byName[t.Name] = t
	}
	out := make([]datatypes.ToolDefinition, 0, len(enabled))
	for _, name := range enabled {
		if def, ok := byName[name]; ok {
			out = append(out, def)
		} else {
			out = append(out, datatypes.ToolDefinition{
				Name:       name,
				Parameters: map[string]any{"type": "object"},
			})
		}
	}
	return out
}

func modeOrUnknown(result *router.TurnResult) string {
	if result == nil {
		return "unknown"
	}
	return result.Mode
}
