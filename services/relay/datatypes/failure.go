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

// Failure categories.
const (
	CategoryTool         = "tool"
	CategoryRAG          = "rag"
	CategoryReasoning    = "reasoning"
	CategoryIntent       = "intent"
	CategoryBrowser      = "browser"
	CategoryComboPairing = "combo_pairing"
	CategoryUnknown      = "unknown"
)

// Classified error types. Classification is a lowercase substring match
// against the raw error text, first hit wins in rubric order.
const (
	ErrTimeout             = "timeout"
	ErrToolNotCalled       = "tool_not_called"
	ErrWrongTool           = "wrong_tool"
	ErrHallucination       = "hallucination"
	ErrParseError          = "parse_error"
	ErrRAGNotUsed          = "rag_not_used"
	ErrBadParams           = "bad_params"
	ErrFormatError         = "format_error"
	ErrIntentMisread       = "intent_misread"
	ErrMainTimeout         = "main_timeout"
	ErrPoorCoordination    = "poor_coordination"
	ErrScoreTooLow         = "score_too_low"
	ErrComboExcluded       = "combo_excluded"
	ErrQualifyingGate      = "qualifying_gate_failure"
	ErrFormatCompatibility = "format_compatibility"
	ErrUnknown             = "unknown"
)

// Pattern severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// FailureEntry is one production failure. Append-only: after creation
// only the resolution fields may change.
type FailureEntry struct {
	ID              int64     `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	ModelID         string    `json:"model_id"`
	ExecutorModelID string    `json:"executor_model_id,omitempty"`
	Category        string    `json:"category"`
	ErrorType       string    `json:"error_type"`
	Fingerprint     string    `json:"fingerprint"`
	Depth           int       `json:"depth"`
	PatternID       string    `json:"pattern_id,omitempty"`
	Resolved        bool      `json:"resolved"`
	ResolvedBy      string    `json:"resolved_by,omitempty"`
	RawError        string    `json:"raw_error,omitempty"`
	Query           string    `json:"query,omitempty"`
}

// FailurePattern is a named cluster of entries sharing category and error
// type. Derived state: re-derivable from the entries at any time.
type FailurePattern struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Severity             string    `json:"severity"`
	Count                int       `json:"count"`
	FirstSeen            time.Time `json:"first_seen"`
	LastSeen             time.Time `json:"last_seen"`
	Examples             []int64   `json:"examples,omitempty"`
	SuggestedProsthetic  string    `json:"suggested_prosthetic,omitempty"`
}

// MaxPatternExamples bounds the example list per pattern.
const MaxPatternExamples = 10
