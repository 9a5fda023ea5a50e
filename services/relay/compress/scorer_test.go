// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compress

import (
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
)

// farFromEnd places a message outside the recency window.
const farFromEnd = 100

func TestScoreMessageByKind(t *testing.T) {
	cases := []struct {
		name      string
		msg       datatypes.Message
		wantScore float64
		wantType  string
	}{
		{
			name:      "plain assistant statement",
			msg:       datatypes.Message{Role: "assistant", Content: statement},
			wantScore: 5,
			wantType:  TypeStatement,
		},
		{
			name:      "system instruction",
			msg:       datatypes.Message{Role: "system", Content: "Never commit directly to the main branch."},
			wantScore: 7,
			wantType:  TypeStatement,
		},
		{
			name:      "user question",
			msg:       datatypes.Message{Role: "user", Content: "Where is the retry logic implemented exactly?"},
			wantScore: 6,
			wantType:  TypeQuestion,
		},
		{
			name: "assistant tool call",
			msg: datatypes.Message{Role: "assistant", Content: "Reading the file now, one moment please.",
				ToolCalls: []datatypes.ToolCall{{ID: "1"}}},
			wantScore: 8,
			wantType:  TypeToolUse,
		},
		{
			name:      "error content",
			msg:       datatypes.Message{Role: "assistant", Content: "The build failed with a linker error on arm64."},
			wantScore: 7,
			wantType:  TypeError,
		},
		{
			name:      "code content",
			msg:       datatypes.Message{Role: "assistant", Content: "Use this:\n```go\nfmt.Println(\"hi\")\n```\nand rebuild."},
			wantScore: 6,
			wantType:  TypeCode,
		},
		{
			name:      "assistant filler",
			msg:       datatypes.Message{Role: "assistant", Content: "Sounds good."},
			wantScore: 3,
			wantType:  TypeFiller,
		},
		{
			name:      "user filler",
			msg:       datatypes.Message{Role: "user", Content: "thanks"},
			wantScore: 4,
			wantType:  TypeFiller,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := scoreMessage(tc.msg, 0, farFromEnd)
			if got.Score != tc.wantScore {
				t.Errorf("Score = %v (%s), want %v", got.Score, got.Reason, tc.wantScore)
			}
			if got.Type != tc.wantType {
				t.Errorf("Type = %s, want %s", got.Type, tc.wantType)
			}
		})
	}
}

func TestScoreMessageRecency(t *testing.T) {
	msg := datatypes.Message{Role: "assistant", Content: statement}

	last := scoreMessage(msg, 19, 20)
	if last.Score != 7 {
		t.Errorf("last message score = %v, want base 5 + full recency 2", last.Score)
	}
	outside := scoreMessage(msg, 5, 20)
	if outside.Score != 5 {
		t.Errorf("pre-window score = %v, want 5", outside.Score)
	}
	if !strings.Contains(last.Reason, "recent") {
		t.Errorf("Reason = %q, want recency noted", last.Reason)
	}
}

func TestScoreMessageClamps(t *testing.T) {
	// System + tool calls + error + code stacks past 10.
	loaded := datatypes.Message{
		Role:      "system",
		Content:   "The last run failed: ```panic: nil deref```; rerun with func main patched.",
		ToolCalls: []datatypes.ToolCall{{ID: "1"}},
	}
	if got := scoreMessage(loaded, 99, 100); got.Score != 10 {
		t.Errorf("Score = %v, want clamped to 10", got.Score)
	}

	// Tool-role filler bottoms out near zero, never below it.
	low := scoreMessage(datatypes.Message{Role: "assistant", Content: ""}, 0, farFromEnd)
	if low.Score < 0 {
		t.Errorf("Score = %v, want >= 0", low.Score)
	}
}

func TestScoreMessagesIndexesAlign(t *testing.T) {
	msgs := []datatypes.Message{
		{Role: "user", Content: "hello there, assistant"},
		{Role: "assistant", Content: statement},
	}
	scores := ScoreMessages(msgs)
	if len(scores) != 2 || scores[0].Index != 0 || scores[1].Index != 1 {
		t.Errorf("scores = %+v, want aligned indexes", scores)
	}
}

func TestIsFiller(t *testing.T) {
	cases := []struct {
		content string
		want    bool
	}{
		{"ok", true},
		{"OK!", true},
		{"thanks.", true},
		{"sounds good", true},
		{"the build is green", false},
	}
	for _, tc := range cases {
		if got := isFiller(strings.ToLower(tc.content)); got != tc.want {
			t.Errorf("isFiller(%q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}
