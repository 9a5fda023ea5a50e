// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// Recommended roles for a profiled model.
const (
	RoleMain     = "main"
	RoleExecutor = "executor"
	RoleBoth     = "both"
	RoleNone     = "none"
)

// Tool-call formats a model was observed emitting during probing.
const (
	ToolFormatOpenAI = "openai"
	ToolFormatXML    = "xml"
	ToolFormatNone   = "none"
)

// Speed ratings derived from the context-latency sweep.
const (
	SpeedExcellent = "excellent"
	SpeedGood      = "good"
	SpeedAcceptable = "acceptable"
	SpeedSlow      = "slow"
	SpeedVerySlow  = "very_slow"
)

// ProfileSchemaVersion is the current on-disk profile document version.
const ProfileSchemaVersion = 3

// ProbeResult is the outcome of a single scripted probe. Immutable after
// creation.
type ProbeResult struct {
	TestName   string  `json:"test_name"`
	Pass       bool    `json:"pass"`
	Score      float64 `json:"score"`
	LatencyMS  int64   `json:"latency_ms"`
	Diagnostic string  `json:"diagnostic,omitempty"`
	Error      string  `json:"error,omitempty"`
	ToolFormat string  `json:"tool_format,omitempty"`
}

// RawScores holds per-axis capability scores on a 0-100 scale. Each axis
// is the mean of its constituent probes; probes that did not run drop out
// of the mean instead of contributing zero.
type RawScores struct {
	ToolAccuracy       float64 `json:"tool_accuracy"`
	IntentRecognition  float64 `json:"intent_recognition"`
	RAGUsage           float64 `json:"rag_usage"`
	Reasoning          float64 `json:"reasoning"`
	BugDetection       float64 `json:"bug_detection"`
	CodeUnderstanding  float64 `json:"code_understanding"`
	SelfCorrection     float64 `json:"self_correction"`
	Trainability       float64 `json:"trainability"`
	AntiPatternPenalty float64 `json:"anti_pattern_penalty"`

	// Sub-scores routing reads directly for auto-selection.
	ToolEmit        float64 `json:"tool_emit"`
	ToolSchema      float64 `json:"tool_schema"`
	ToolSelection   float64 `json:"tool_selection"`
	ToolSuppression float64 `json:"tool_suppression"`
}

// LatencyPoint is one (context size, latency) measurement from the sweep.
type LatencyPoint struct {
	ContextSize int   `json:"context_size"`
	LatencyMS   int64 `json:"latency_ms"`
}

// ContextLatencyCurve records how latency grows with context size, plus
// the quantities derived from the walk.
type ContextLatencyCurve struct {
	Points             []LatencyPoint `json:"points"`
	MaxUsableContext   int            `json:"max_usable_context"`
	RecommendedContext int            `json:"recommended_context"`
	MinLatencyMS       int64          `json:"min_latency_ms"`
	SpeedRating        string         `json:"speed_rating"`
}

// OptimalSettings are the operating parameters probing settled on.
type OptimalSettings struct {
	Temperature float32 `json:"temperature"`
	ContextSize int     `json:"context_size"`
}

// ModelProfile is the persisted capability profile for one model.
// Mutated only by probe completion; a profile is written whole or not at
// all, never field-by-field.
type ModelProfile struct {
	ModelID         string               `json:"model_id"`
	Provider        string               `json:"provider"`
	TestVersion     int                  `json:"test_version"`
	TestedAt        time.Time            `json:"tested_at"`
	Scores          RawScores            `json:"scores"`
	Overall         float64              `json:"overall"`
	RecommendedRole string               `json:"recommended_role"`
	OptimalPairings []string             `json:"optimal_pairings,omitempty"`
	Settings        OptimalSettings      `json:"settings"`
	EnabledTools    []string             `json:"enabled_tools,omitempty"`
	LatencyCurve    *ContextLatencyCurve `json:"latency_curve,omitempty"`
	ProbeResults    []ProbeResult        `json:"probe_results,omitempty"`
	VRAMEstimateMB  int                  `json:"vram_estimate_mb,omitempty"`
}

// Family extracts a coarse model family from the model id, e.g.
// "qwen2.5-coder-7b" -> "qwen". Used by the pairing recommender to
// reward heterogeneous pairs.
func (p *ModelProfile) Family() string {
	id := p.ModelID
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c == '-' || c == '_' || c == ':' || c == '/' || (c >= '0' && c <= '9') || c == '.' {
			return id[:i]
		}
	}
	return id
}
