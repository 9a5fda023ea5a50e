// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package combo

import (
	"math"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMainSuitability(t *testing.T) {
	s := datatypes.RawScores{
		Reasoning:         80,
		RAGUsage:          60,
		IntentRecognition: 70,
		Trainability:      90,
		SelfCorrection:    50,
	}
	// .30*80 + .25*60 + .20*70 + .15*90 + .10*50 = 71.5
	if got := MainSuitability(s); !almostEqual(got, 71.5) {
		t.Errorf("MainSuitability = %v, want 71.5", got)
	}
}

func TestExecutorSuitability(t *testing.T) {
	p := &datatypes.ModelProfile{
		ModelID: "exec",
		Scores: datatypes.RawScores{
			ToolAccuracy:       90,
			AntiPatternPenalty: 10,
			IntentRecognition:  60,
		},
		LatencyCurve: &datatypes.ContextLatencyCurve{SpeedRating: datatypes.SpeedGood},
	}
	// .50*90 + .20*(100-10) + .15*60 + .15*80 = 84
	if got := ExecutorSuitability(p); !almostEqual(got, 84) {
		t.Errorf("ExecutorSuitability = %v, want 84", got)
	}
}

func TestExecutorSuitabilityDefaultsSpeedWithoutCurve(t *testing.T) {
	p := &datatypes.ModelProfile{ModelID: "exec", Scores: datatypes.RawScores{ToolAccuracy: 80}}
	// .50*80 + .20*100 + .15*0 + .15*60 = 69 (unswept models rate acceptable)
	if got := ExecutorSuitability(p); !almostEqual(got, 69) {
		t.Errorf("ExecutorSuitability = %v, want 69", got)
	}
}

func TestScorePairCompatibilityBonuses(t *testing.T) {
	main := &datatypes.ModelProfile{
		ModelID: "qwen2.5-coder:14b",
		Scores:  datatypes.RawScores{Reasoning: 85, Trainability: 85},
	}
	exec := &datatypes.ModelProfile{
		ModelID:      "llama3.1:8b",
		Scores:       datatypes.RawScores{ToolAccuracy: 90},
		LatencyCurve: &datatypes.ContextLatencyCurve{SpeedRating: datatypes.SpeedExcellent},
	}

	rec := scorePair(main, exec)
	// 50 + complement 30 + trainable 20 + fast 15 + family 10 = 125, clamped.
	if rec.Compatibility != 100 {
		t.Errorf("Compatibility = %v, want clamped to 100", rec.Compatibility)
	}
	if len(rec.Reasons) != 4 {
		t.Errorf("Reasons = %v, want 4 bonuses explained", rec.Reasons)
	}
	if len(rec.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", rec.Warnings)
	}
	want := (rec.MainSuitability + rec.ExecutorSuitability + rec.Compatibility) / 3
	if !almostEqual(rec.Overall, want) {
		t.Errorf("Overall = %v, want mean of the three components", rec.Overall)
	}
}

func TestScorePairPenaltiesAndWarnings(t *testing.T) {
	main := &datatypes.ModelProfile{
		ModelID: "qwen2.5:7b",
		Scores:  datatypes.RawScores{Reasoning: 60},
	}
	exec := &datatypes.ModelProfile{
		ModelID:      "qwen2.5-coder:3b",
		Scores:       datatypes.RawScores{ToolAccuracy: 70, AntiPatternPenalty: 50},
		LatencyCurve: &datatypes.ContextLatencyCurve{SpeedRating: datatypes.SpeedVerySlow},
	}

	rec := scorePair(main, exec)
	// Same family, no complement, slow executor, defect warning:
	// 50 - 10 - 50/2 = 15.
	if !almostEqual(rec.Compatibility, 15) {
		t.Errorf("Compatibility = %v, want 15", rec.Compatibility)
	}
	if len(rec.Warnings) != 2 {
		t.Errorf("Warnings = %v, want slow + defect warnings", rec.Warnings)
	}
	for _, w := range rec.Warnings {
		if !strings.Contains(w, exec.ModelID) {
			t.Errorf("warning %q does not name the executor", w)
		}
	}
}

func TestRecommendPicksBestPair(t *testing.T) {
	profiles := []datatypes.ModelProfile{
		{
			ModelID: "qwen2.5-coder:14b",
			Scores:  datatypes.RawScores{Reasoning: 90, RAGUsage: 80, IntentRecognition: 80, Trainability: 85},
		},
		{
			ModelID:      "llama3.1:8b",
			Scores:       datatypes.RawScores{ToolAccuracy: 95, IntentRecognition: 70},
			LatencyCurve: &datatypes.ContextLatencyCurve{SpeedRating: datatypes.SpeedExcellent},
		},
		{
			ModelID: "gemma2:2b",
			Scores:  datatypes.RawScores{ToolAccuracy: 40, Reasoning: 30},
		},
	}

	rec, err := Recommend(profiles, Constraints{})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if rec.MainModelID != "qwen2.5-coder:14b" || rec.ExecutorModelID != "llama3.1:8b" {
		t.Errorf("pair = %s + %s, want the planner with the tool expert",
			rec.MainModelID, rec.ExecutorModelID)
	}
}

func TestRecommendHonorsVRAMConstraint(t *testing.T) {
	profiles := []datatypes.ModelProfile{
		{
			ModelID:        "big-main",
			Scores:         datatypes.RawScores{Reasoning: 95, RAGUsage: 90, IntentRecognition: 90},
			VRAMEstimateMB: 16000,
		},
		{
			ModelID:        "big-exec",
			Scores:         datatypes.RawScores{ToolAccuracy: 95},
			VRAMEstimateMB: 16000,
		},
		{
			ModelID:        "small-main",
			Scores:         datatypes.RawScores{Reasoning: 75, RAGUsage: 70, IntentRecognition: 70},
			VRAMEstimateMB: 6000,
		},
		{
			ModelID:        "small-exec",
			Scores:         datatypes.RawScores{ToolAccuracy: 85},
			VRAMEstimateMB: 6000,
		},
	}

	rec, err := Recommend(profiles, Constraints{VRAMLimitMB: 16000})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if rec.MainModelID == "big-main" && rec.ExecutorModelID == "big-exec" {
		t.Error("recommended pair exceeds the VRAM limit")
	}
	if rec.MainModelID != "small-main" || rec.ExecutorModelID != "small-exec" {
		t.Errorf("pair = %s + %s, want the pair that fits", rec.MainModelID, rec.ExecutorModelID)
	}
}

func TestRecommendErrors(t *testing.T) {
	if _, err := Recommend([]datatypes.ModelProfile{{ModelID: "only"}}, Constraints{}); err == nil {
		t.Error("single profile accepted")
	}

	profiles := []datatypes.ModelProfile{
		{ModelID: "a", VRAMEstimateMB: 9000},
		{ModelID: "b", VRAMEstimateMB: 9000},
	}
	if _, err := Recommend(profiles, Constraints{VRAMLimitMB: 10000}); err == nil {
		t.Error("impossible VRAM budget produced a recommendation")
	}
}

func TestFamilyExtraction(t *testing.T) {
	cases := []struct {
		id   string
		want string
	}{
		{"qwen2.5-coder:7b", "qwen"},
		{"llama3.1:8b", "llama"},
		{"gemma2:2b", "gemma"},
		{"mistral-7b", "mistral"},
		{"plain", "plain"},
	}
	for _, tc := range cases {
		p := datatypes.ModelProfile{ModelID: tc.id}
		if got := p.Family(); got != tc.want {
			t.Errorf("Family(%s) = %s, want %s", tc.id, got, tc.want)
		}
	}
}
