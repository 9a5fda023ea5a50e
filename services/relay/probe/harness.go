// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/provider"
)

const (
	defaultProbeTimeout = 60 * time.Second

	// Each bad-output incident feeds the anti-pattern penalty axis.
	antiPatternPerIncident = 20

	// xmlFallbackScore is what a probe earns when the structured attempt
	// emitted nothing but the textual schema worked. The capability is
	// there, the native format support is not.
	xmlFallbackScore = 85
)

// ProgressFunc receives probe lifecycle events for live dashboards.
// event is one of probe_started, probe_finished, sweep_started,
// profile_complete. Must not block.
type ProgressFunc func(event string, data map[string]any)

// Options selects what a profile run covers.
type Options struct {
	// Categories filters the catalog (tool, reasoning). Empty runs all.
	Categories []string
	// Timeout bounds each individual probe call.
	Timeout time.Duration
	// IncludeSweep adds the context-latency walk.
	IncludeSweep bool
	// MaxContext caps the sweep; zero means unknown.
	MaxContext int
	// BaselineOverall, when > 0, rescales axes against a baseline model's
	// overall score.
	BaselineOverall float64
	// TrainabilityPrompt is the Level 1 corrective fragment used for the
	// trainability smoke test. Empty skips the test.
	TrainabilityPrompt string
}

// Harness runs the probe catalog against models and assembles profiles.
//
// Thread Safety: safe for concurrent use. Runs against the same model
// serialize; a second RunProfile for a model waits for the first.
type Harness struct {
	providers *provider.Registry
	progress  ProgressFunc

	// trainabilityPrompt is the Level 1 corrective fragment injected for
	// the trainability smoke test, unless a run overrides it.
	trainabilityPrompt string

	mu       sync.Mutex
	perModel map[string]*sync.Mutex
}

// NewHarness builds a harness over the provider registry. progress may
// be nil.
func NewHarness(providers *provider.Registry, trainabilityPrompt string, progress ProgressFunc) *Harness {
	return &Harness{
		providers:          providers,
		progress:           progress,
		trainabilityPrompt: trainabilityPrompt,
		perModel:           make(map[string]*sync.Mutex),
	}
}

func (h *Harness) modelLock(modelID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.perModel[modelID]
	if !ok {
		l = &sync.Mutex{}
		h.perModel[modelID] = l
	}
	return l
}

func (h *Harness) notify(event string, data map[string]any) {
	if h.progress != nil {
		h.progress(event, data)
	}
}

// RunProfile executes the selected probe families against one model and
// returns the assembled profile. The caller persists it; the harness
// holds no profile state.
func (h *Harness) RunProfile(ctx context.Context, modelID, providerName string, opts Options) (*datatypes.ModelProfile, error) {
	client, err := h.providers.Resolve(providerName)
	if err != nil {
		return nil, fmt.Errorf("run profile: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultProbeTimeout
	}

	if opts.TrainabilityPrompt == "" {
		opts.TrainabilityPrompt = h.trainabilityPrompt
	}

	lock := h.modelLock(modelID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := otel.Tracer("relay/probe").Start(ctx, "probe.RunProfile")
	span.SetAttributes(
		attribute.String("model.id", modelID),
		attribute.String("provider", client.Name()),
	)
	defer span.End()

	probes := h.selectProbes(opts.Categories)
	results := make([]datatypes.ProbeResult, 0, len(probes))
	badIncidents := 0
	start := time.Now()

	for _, p := range probes {
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "profile run canceled")
			span.RecordError(ctx.Err())
			return nil, fmt.Errorf("run profile %s: %w", modelID, ctx.Err())
		}

		h.notify("probe_started", map[string]any{"model_id": modelID, "test_name": p.Name})
		result, bad := h.runProbe(ctx, client, modelID, p, opts.Timeout)
		if bad {
			badIncidents++
		}
		results = append(results, result)
		h.notify("probe_finished", map[string]any{
			"model_id": modelID, "test_name": p.Name,
			"pass": result.Pass, "score": result.Score,
		})
	}

	trainability := h.measureTrainability(ctx, client, modelID, results, opts)
	antiPenalty := float64(badIncidents * antiPatternPerIncident)

	breakdown := Score(results, trainability, antiPenalty)
	if opts.BaselineOverall > 0 {
		breakdown = NormalizeAgainstBaseline(breakdown, opts.BaselineOverall)
	}

	profile := &datatypes.ModelProfile{
		ModelID:         modelID,
		Provider:        client.Name(),
		TestVersion:     datatypes.ProfileSchemaVersion,
		TestedAt:        time.Now().UTC(),
		Scores:          breakdown.Scores,
		Overall:         breakdown.Overall,
		RecommendedRole: breakdown.Role,
		ProbeResults:    results,
		Settings: datatypes.OptimalSettings{
			Temperature: 0.2,
		},
	}

	if opts.IncludeSweep {
		h.notify("sweep_started", map[string]any{"model_id": modelID})
		curve := runSweep(ctx, client, modelID, opts.MaxContext)
		if len(curve.Points) > 0 {
			profile.LatencyCurve = curve
			profile.Settings.ContextSize = curve.RecommendedContext
		}
	}

	slog.Info("profile run complete",
		"model_id", modelID,
		"overall", profile.Overall,
		"role", profile.RecommendedRole,
		"probes", len(results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	h.notify("profile_complete", map[string]any{
		"model_id": modelID, "overall": profile.Overall, "role": profile.RecommendedRole,
	})
	return profile, nil
}

func (h *Harness) selectProbes(categories []string) []Probe {
	all := Catalog()
	if len(categories) == 0 {
		return all
	}
	want := make(map[string]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}
	out := all[:0]
	for _, p := range all {
		if want[p.Category] {
			out = append(out, p)
		}
	}
	return out
}

// runProbe executes one probe, applying bad-output detection and the
// XML fallback where the probe allows it. The bool reports whether a
// bad-output incident occurred.
func (h *Harness) runProbe(ctx context.Context, client provider.Client, modelID string, p Probe, timeout time.Duration) (datatypes.ProbeResult, bool) {
	temp := float32(0)
	resp, err := client.Call(ctx, provider.CallOptions{
		ModelID:     modelID,
		Messages:    p.Messages,
		Tools:       p.Tools,
		ToolChoice:  p.ToolChoice,
		Temperature: &temp,
		Timeout:     timeout,
	})
	if err != nil {
		return datatypes.ProbeResult{
			TestName: p.Name,
			Error:    err.Error(),
		}, false
	}

	verdict := p.Evaluate(resp)
	issues := scanBadOutput(resp.Content(), resp.ToolCalls())
	verdict = downgrade(verdict, issues)

	if p.XMLFallback && len(resp.ToolCalls()) == 0 && !verdict.Pass {
		if fallback, ok := h.runXMLFallback(ctx, client, modelID, p, timeout); ok {
			fallback.LatencyMS += resp.LatencyMS
			return fallback, len(issues) > 0
		}
	}

	return datatypes.ProbeResult{
		TestName:   p.Name,
		Pass:       verdict.Pass,
		Score:      verdict.Score,
		LatencyMS:  resp.LatencyMS,
		Diagnostic: verdict.Diagnostic,
		ToolFormat: verdict.ToolFormat,
	}, len(issues) > 0
}

const xmlToolPreamble = `You cannot use structured tool calling. To call a tool, respond with exactly:
<tool_call>{"name": "<tool name>", "arguments": {<arguments as JSON>}}</tool_call>
Available tools:
`

// runXMLFallback retries an emit probe with a textual tool-call schema.
// A model that emits a well-formed <tool_call> block gets credit at a
// reduced score, recorded with the xml tool format.
func (h *Harness) runXMLFallback(ctx context.Context, client provider.Client, modelID string, p Probe, timeout time.Duration) (datatypes.ProbeResult, bool) {
	var b strings.Builder
	b.WriteString(xmlToolPreamble)
	for _, t := range p.Tools {
		schema, _ := json.Marshal(t.Parameters)
		fmt.Fprintf(&b, "- %s: %s %s\n", t.Name, t.Description, schema)
	}

	messages := append([]datatypes.Message{{Role: "system", Content: b.String()}}, p.Messages...)
	temp := float32(0)
	resp, err := client.Call(ctx, provider.CallOptions{
		ModelID:     modelID,
		Messages:    messages,
		Temperature: &temp,
		Timeout:     timeout,
	})
	if err != nil {
		return datatypes.ProbeResult{}, false
	}

	call, ok := parseXMLToolCall(resp.Content())
	if !ok {
		return datatypes.ProbeResult{}, false
	}

	// Re-evaluate through the probe's own evaluator by synthesizing a
	// structured response around the parsed call.
	call.ID = "xml-fallback"
	synthetic := provider.SynthesizeResponse(datatypes.Message{
		Role:      "assistant",
		ToolCalls: []datatypes.ToolCall{call},
	})
	synthetic.LatencyMS = resp.LatencyMS

	verdict := p.Evaluate(synthetic)
	if !verdict.Pass {
		return datatypes.ProbeResult{}, false
	}
	return datatypes.ProbeResult{
		TestName:   p.Name,
		Pass:       true,
		Score:      xmlFallbackScore,
		LatencyMS:  resp.LatencyMS,
		Diagnostic: "structured emit failed; textual schema succeeded",
		ToolFormat: datatypes.ToolFormatXML,
	}, true
}

// parseXMLToolCall extracts the first <tool_call> block and decodes it.
func parseXMLToolCall(content string) (datatypes.ToolCall, bool) {
	start := strings.Index(content, "<tool_call>")
	if start == -1 {
		return datatypes.ToolCall{}, false
	}
	rest := content[start+len("<tool_call>"):]
	end := strings.Index(rest, "</tool_call>")
	if end == -1 {
		return datatypes.ToolCall{}, false
	}

	var payload struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &payload); err != nil {
		return datatypes.ToolCall{}, false
	}
	if payload.Name == "" {
		return datatypes.ToolCall{}, false
	}
	args := string(payload.Arguments)
	if args == "" {
		args = "{}"
	}
	return datatypes.ToolCall{
		Type: "function",
		Function: datatypes.FunctionCall{Name: payload.Name, Arguments: args},
	}, true
}

// measureTrainability re-runs the suppression probe with the corrective
// fragment injected. A model that fails bare but complies once corrected
// is trainable; one that ignores the correction is not.
func (h *Harness) measureTrainability(ctx context.Context, client provider.Client, modelID string, results []datatypes.ProbeResult, opts Options) float64 {
	base := scoreOf(results, "tool_suppression")
	if opts.TrainabilityPrompt == "" {
		return base
	}
	if base >= 100 {
		// Nothing to correct; full compliance is full trainability.
		return 100
	}

	var suppression *Probe
	for _, p := range toolProbes() {
		if p.Name == "tool_suppression" {
			cp := p
			suppression = &cp
			break
		}
	}
	if suppression == nil {
		return base
	}

	messages := append([]datatypes.Message{{Role: "system", Content: opts.TrainabilityPrompt}}, suppression.Messages...)
	temp := float32(0)
	resp, err := client.Call(ctx, provider.CallOptions{
		ModelID:     modelID,
		Messages:    messages,
		Tools:       suppression.Tools,
		Temperature: &temp,
		Timeout:     opts.Timeout,
	})
	if err != nil {
		return base
	}
	verdict := suppression.Evaluate(resp)
	return verdict.Score
}
