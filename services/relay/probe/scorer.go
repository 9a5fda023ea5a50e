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
	"math"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
)

// Agentic-overall axis weights. The anti-pattern penalty subtracts.
var axisWeights = map[string]float64{
	AxisToolAccuracy:      0.20,
	AxisIntentRecognition: 0.18,
	AxisRAGUsage:          0.14,
	AxisReasoning:         0.14,
	AxisBugDetection:      0.10,
	AxisCodeUnderstanding: 0.10,
	AxisSelfCorrection:    0.06,
}

const antiPatternWeight = 0.08

// Role thresholds. The recommended role is a pure function of the raw
// scores; nothing outside this file decides roles.
const (
	mainReasoningFloor = 80
	mainIntentFloor    = 60
	mainRAGFloor       = 60
	executorToolFloor  = 80
	usableOverallFloor = 60
)

// Breakdown is the scorer's full output for one profile run.
type Breakdown struct {
	Scores  datatypes.RawScores
	Overall float64
	Role    string
}

// axisByName maps probe names to their capability axis, derived from the
// catalog so the two can not drift apart.
var axisByName = func() map[string]string {
	m := make(map[string]string)
	for _, p := range Catalog() {
		m[p.Name] = p.Axis
	}
	return m
}()

// Score aggregates probe results into axis means and the weighted
// overall. Probes that did not run drop out of their axis mean rather
// than contributing zero. Trainability and the anti-pattern penalty are
// measured by the harness, not by any single probe.
func Score(results []datatypes.ProbeResult, trainability, antiPenalty float64) Breakdown {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range results {
		axis, ok := axisByName[r.TestName]
		if !ok || r.Error != "" {
			continue
		}
		sums[axis] += r.Score
		counts[axis]++
	}

	mean := func(axis string) float64 {
		if counts[axis] == 0 {
			return 0
		}
		return sums[axis] / float64(counts[axis])
	}

	scores := datatypes.RawScores{
		ToolAccuracy:       mean(AxisToolAccuracy),
		IntentRecognition:  mean(AxisIntentRecognition),
		RAGUsage:           mean(AxisRAGUsage),
		Reasoning:          mean(AxisReasoning),
		BugDetection:       mean(AxisBugDetection),
		CodeUnderstanding:  mean(AxisCodeUnderstanding),
		SelfCorrection:     mean(AxisSelfCorrection),
		Trainability:       clamp(trainability),
		AntiPatternPenalty: clamp(antiPenalty),

		ToolEmit:        scoreOf(results, "tool_emit"),
		ToolSchema:      meanOf(results, "tool_schema", "tool_schema_reorder"),
		ToolSelection:   scoreOf(results, "tool_selection"),
		ToolSuppression: scoreOf(results, "tool_suppression"),
	}

	overall := weightedOverall(scores, counts)
	return Breakdown{Scores: scores, Overall: overall, Role: recommendRole(scores, overall)}
}

// weightedOverall computes the weighted mean over axes that actually
// ran, renormalizing weights so a skipped category does not depress the
// result, then subtracts the anti-pattern penalty and clamps.
func weightedOverall(s datatypes.RawScores, counts map[string]int) float64 {
	byAxis := map[string]float64{
		AxisToolAccuracy:      s.ToolAccuracy,
		AxisIntentRecognition: s.IntentRecognition,
		AxisRAGUsage:          s.RAGUsage,
		AxisReasoning:         s.Reasoning,
		AxisBugDetection:      s.BugDetection,
		AxisCodeUnderstanding: s.CodeUnderstanding,
		AxisSelfCorrection:    s.SelfCorrection,
	}

	var sum, weightSum float64
	for axis, w := range axisWeights {
		if counts[axis] == 0 {
			continue
		}
		sum += byAxis[axis] * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}

	overall := sum/weightSum - s.AntiPatternPenalty*antiPatternWeight
	return math.Round(clamp(overall))
}

// recommendRole applies the fixed role rules to the axis scores.
func recommendRole(s datatypes.RawScores, overall float64) string {
	if overall < usableOverallFloor {
		return datatypes.RoleNone
	}
	mainOK := s.Reasoning >= mainReasoningFloor &&
		s.IntentRecognition >= mainIntentFloor &&
		s.RAGUsage >= mainRAGFloor
	executorOK := s.ToolAccuracy >= executorToolFloor

	switch {
	case mainOK && executorOK:
		return datatypes.RoleBoth
	case mainOK:
		return datatypes.RoleMain
	case executorOK:
		return datatypes.RoleExecutor
	}
	return datatypes.RoleNone
}

// NormalizeAgainstBaseline rescales axis scores when the baseline model
// itself scores below 95, so comparisons run against a ceiling a real
// model can reach. Role and overall are recomputed from the adjusted
// axes; counts are unknown here so every axis participates.
func NormalizeAgainstBaseline(b Breakdown, baselineOverall float64) Breakdown {
	if baselineOverall >= 95 || baselineOverall <= 0 {
		return b
	}
	factor := baselineOverall / 100

	s := &b.Scores
	for _, f := range []*float64{
		&s.ToolAccuracy, &s.IntentRecognition, &s.RAGUsage, &s.Reasoning,
		&s.BugDetection, &s.CodeUnderstanding, &s.SelfCorrection,
	} {
		*f = clamp(*f / factor)
	}

	counts := map[string]int{
		AxisToolAccuracy: 1, AxisIntentRecognition: 1, AxisRAGUsage: 1,
		AxisReasoning: 1, AxisBugDetection: 1, AxisCodeUnderstanding: 1,
		AxisSelfCorrection: 1,
	}
	b.Overall = weightedOverall(b.Scores, counts)
	b.Role = recommendRole(b.Scores, b.Overall)
	return b
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func scoreOf(results []datatypes.ProbeResult, name string) float64 {
	for _, r := range results {
		if r.TestName == name {
			return r.Score
		}
	}
	return 0
}

func meanOf(results []datatypes.ProbeResult, names ...string) float64 {
	var sum float64
	count := 0
	for _, name := range names {
		for _, r := range results {
			if r.TestName == name {
				sum += r.Score
				count++
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
