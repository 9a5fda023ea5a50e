// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package failurelog

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	numberPattern = regexp.MustCompile(`\d+`)
	quotedPattern = regexp.MustCompile(`"[^"]*"|'[^']*'|` + "`[^`]*`")
	spacePattern  = regexp.MustCompile(`\s+`)
)

// Fingerprint normalizes a user query so near-identical failures cluster:
// lowercase, quoted literals collapsed to a placeholder, digit runs
// replaced by N, whitespace squeezed, then hashed to a short hex id.
func Fingerprint(query string) string {
	norm := strings.ToLower(strings.TrimSpace(query))
	norm = quotedPattern.ReplaceAllString(norm, `"..."`)
	norm = numberPattern.ReplaceAllString(norm, "N")
	norm = spacePattern.ReplaceAllString(norm, " ")

	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])[:16]
}

// classificationRubric maps lowercase substrings to error types. Order
// matters: first hit wins, so the more specific entries come first.
var classificationRubric = []struct {
	substring string
	errorType string
}{
	{"main model timeout", "main_timeout"},
	{"main_timeout", "main_timeout"},
	{"qualifying gate", "qualifying_gate_failure"},
	{"combo excluded", "combo_excluded"},
	{"format compatibility", "format_compatibility"},
	{"poor coordination", "poor_coordination"},
	{"score too low", "score_too_low"},
	{"timeout", "timeout"},
	{"deadline exceeded", "timeout"},
	{"tool_not_called", "tool_not_called"},
	{"no tool call", "tool_not_called"},
	{"did not call", "tool_not_called"},
	{"wrong tool", "wrong_tool"},
	{"hallucinat", "hallucination"},
	{"nonexistent tool", "hallucination"},
	{"parse", "parse_error"},
	{"invalid json", "parse_error"},
	{"rag not used", "rag_not_used"},
	{"bad param", "bad_params"},
	{"invalid param", "bad_params"},
	{"format error", "format_error"},
	{"leaked", "format_error"},
	{"intent misread", "intent_misread"},
	{"misunderstood", "intent_misread"},
}

// ClassifyError maps raw error text onto the fixed error-type rubric.
// Unmatched text classifies as unknown.
func ClassifyError(raw string) string {
	lower := strings.ToLower(raw)
	for _, rule := range classificationRubric {
		if strings.Contains(lower, rule.substring) {
			return rule.errorType
		}
	}
	return "unknown"
}
