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

// Combo test tiers, cheapest first. The qualifying gate runs after the
// simple tier; a pair below the gate never reaches medium or complex.
const (
	TierSimple  = "simple"
	TierMedium  = "medium"
	TierComplex = "complex"
)

// ComboTestOutcome is one constituent test result inside a combo run.
type ComboTestOutcome struct {
	TestName  string  `json:"test_name"`
	Tier      string  `json:"tier"`
	Category  string  `json:"category"`
	Pass      bool    `json:"pass"`
	Score     float64 `json:"score"`
	LatencyMS int64   `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// ComboRecord is the scored result for one (main, executor) pair. The
// pair is the unique key; re-running a pair replaces its record.
type ComboRecord struct {
	MainModelID     string             `json:"main_model_id"`
	ExecutorModelID string             `json:"executor_model_id"`
	OverallScore    float64            `json:"overall_score"`
	TierScores      map[string]float64 `json:"tier_scores"`
	CategoryScores  map[string]float64 `json:"category_scores"`
	Outcomes        []ComboTestOutcome `json:"outcomes"`
	AvgLatencyMS    int64              `json:"avg_latency_ms"`
	Passed          int                `json:"passed"`
	Failed          int                `json:"failed"`
	MainExcluded    bool               `json:"main_excluded"`
	Disqualified    bool               `json:"disqualified,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
}

// Key returns the unique pair key used by the combo store.
func (r *ComboRecord) Key() string {
	return r.MainModelID + "+" + r.ExecutorModelID
}

// PairingRecommendation is the recommender's pick for one main+executor
// pair under the given constraints.
type PairingRecommendation struct {
	MainModelID         string   `json:"main_model_id"`
	ExecutorModelID     string   `json:"executor_model_id"`
	MainSuitability     float64  `json:"main_suitability"`
	ExecutorSuitability float64  `json:"executor_suitability"`
	Compatibility       float64  `json:"compatibility"`
	Overall             float64  `json:"overall"`
	Reasons             []string `json:"reasons"`
	Warnings            []string `json:"warnings"`
}
