// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compress scores transcript messages for importance and folds
// low-value stretches into short summaries, so long agent sessions fit
// a local model's context window.
package compress

import (
	"strings"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
)

// Message types assigned during scoring.
const (
	TypeToolUse   = "tool_use"
	TypeError     = "error"
	TypeCode      = "code"
	TypeQuestion  = "question"
	TypeFiller    = "filler"
	TypeStatement = "statement"
)

// MessageScore is the (score, type, reason) tuple for one message.
// Scores run 0-10.
type MessageScore struct {
	Index  int     `json:"index"`
	Score  float64 `json:"score"`
	Type   string  `json:"type"`
	Reason string  `json:"reason"`
}

const (
	shortContentChars = 20
	recencyWindow     = 10
)

var fillerPhrases = []string{
	"ok", "okay", "thanks", "thank you", "got it", "sure", "sounds good", "great", "yes", "no",
}

var errorMarkers = []string{
	"error", "exception", "traceback", "panic:", "stack trace", "failed", "fatal",
}

// ScoreMessages assigns an importance score to every message. Pure
// function of the transcript; no I/O.
func ScoreMessages(messages []datatypes.Message) []MessageScore {
	out := make([]MessageScore, len(messages))
	for i, m := range messages {
		out[i] = scoreMessage(m, i, len(messages))
	}
	return out
}

func scoreMessage(m datatypes.Message, index, total int) MessageScore {
	score := 5.0
	msgType := TypeStatement
	var reasons []string

	switch m.Role {
	case "system":
		score += 2
		reasons = append(reasons, "system instruction")
	case "user":
		score += 1
		reasons = append(reasons, "user turn")
	case "tool":
		msgType = TypeToolUse
		reasons = append(reasons, "tool result")
	}

	content := strings.TrimSpace(m.Content)
	lower := strings.ToLower(content)

	if len(m.ToolCalls) > 0 || m.ToolCallID != "" {
		score += 3
		msgType = TypeToolUse
		reasons = append(reasons, "carries tool calls")
	}
	if containsAny(lower, errorMarkers) {
		score += 2
		msgType = TypeError
		reasons = append(reasons, "error content")
	}
	if strings.Contains(content, "```") || strings.Contains(content, "func ") || strings.Contains(content, "def ") {
		score += 1
		if msgType == TypeStatement {
			msgType = TypeCode
		}
		reasons = append(reasons, "code content")
	}
	if strings.Contains(content, "?") && m.Role == "user" {
		if msgType == TypeStatement {
			msgType = TypeQuestion
		}
		reasons = append(reasons, "question")
	}
	if isFiller(lower) || len(content) < shortContentChars {
		score -= 2
		if msgType == TypeStatement {
			msgType = TypeFiller
		}
		reasons = append(reasons, "short or filler")
	}

	// Recency: the closer to the end, the more a message still matters.
	fromEnd := total - 1 - index
	if fromEnd < recencyWindow {
		score += float64(recencyWindow-fromEnd) / float64(recencyWindow) * 2
		reasons = append(reasons, "recent")
	}

	if score < 0 {
		score = 0
	} else if score > 10 {
		score = 10
	}
	return MessageScore{Index: index, Score: score, Type: msgType, Reason: strings.Join(reasons, ", ")}
}

func isFiller(lower string) bool {
	trimmed := strings.Trim(lower, ".!? ")
	for _, f := range fillerPhrases {
		if trimmed == f {
			return true
		}
	}
	return false
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
