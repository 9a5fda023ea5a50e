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
	"encoding/json"
	"strings"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
)

// Bad-output heuristics. Small local models degrade in recognizable
// ways: repetition loops, chat-template tokens leaking into content, and
// tool arguments that are not JSON. Any hit downgrades the probe score
// and feeds the anti-pattern penalty axis.

const (
	repetitionNGram     = 4  // words per shingle
	repetitionThreshold = 5  // occurrences before it counts as a loop
	badOutputScoreCap   = 40 // a downgraded probe cannot score above this
)

// leakedTokens are chat-template control strings that should have been
// consumed by the serving stack, never shown to the user.
var leakedTokens = []string{
	"<|im_end|>",
	"<|im_start|>",
	"<|endoftext|>",
	"<|eot_id|>",
	"</s>",
	"[INST]",
	"[/INST]",
}

// scanBadOutput returns a list of detected output defects, empty when
// the content is clean.
func scanBadOutput(content string, toolCalls []datatypes.ToolCall) []string {
	var issues []string

	if tok := leakedControlToken(content); tok != "" {
		issues = append(issues, "leaked control token "+tok)
	}
	if hasRepetitionLoop(content) {
		issues = append(issues, "repetition loop")
	}
	for _, tc := range toolCalls {
		if !json.Valid([]byte(tc.Function.Arguments)) {
			issues = append(issues, "malformed tool-argument JSON in "+tc.Function.Name)
			break
		}
	}
	return issues
}

func leakedControlToken(content string) string {
	for _, tok := range leakedTokens {
		if strings.Contains(content, tok) {
			return tok
		}
	}
	return ""
}

// hasRepetitionLoop shingles the content into word n-grams and flags any
// shingle repeating past the threshold. Cheap and order-insensitive;
// catches the "the the the" and looping-sentence failure modes alike.
func hasRepetitionLoop(content string) bool {
	words := strings.Fields(content)
	if len(words) < repetitionNGram*repetitionThreshold {
		return false
	}
	seen := make(map[string]int)
	for i := 0; i+repetitionNGram <= len(words); i++ {
		key := strings.ToLower(strings.Join(words[i:i+repetitionNGram], " "))
		seen[key]++
		if seen[key] >= repetitionThreshold {
			return true
		}
	}
	return false
}

// downgrade applies the bad-output cap to a verdict and rewrites its
// diagnostic to name the defects.
func downgrade(v Verdict, issues []string) Verdict {
	if len(issues) == 0 {
		return v
	}
	if v.Score > badOutputScoreCap {
		v.Score = badOutputScoreCap
	}
	v.Pass = false
	note := "bad output: " + strings.Join(issues, "; ")
	if v.Diagnostic != "" {
		v.Diagnostic += " | " + note
	} else {
		v.Diagnostic = note
	}
	return v
}
