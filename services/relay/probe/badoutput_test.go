// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package probe

import (
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
)

func TestScanBadOutputLeakedTokens(t *testing.T) {
	for _, tok := range []string{"<|im_end|>", "<|eot_id|>", "</s>", "[INST]"} {
		issues := scanBadOutput("The answer is 42."+tok, nil)
		if len(issues) != 1 || !strings.Contains(issues[0], tok) {
			t.Errorf("token %s: issues = %v, want one leaked-token issue", tok, issues)
		}
	}
}

func TestScanBadOutputRepetitionLoop(t *testing.T) {
	looping := strings.Repeat("the quick brown fox jumps ", 8)
	issues := scanBadOutput(looping, nil)
	if len(issues) != 1 || issues[0] != "repetition loop" {
		t.Errorf("issues = %v, want repetition loop", issues)
	}
}

func TestScanBadOutputMalformedToolJSON(t *testing.T) {
	calls := []datatypes.ToolCall{
		{Function: datatypes.FunctionCall{Name: "ping", Arguments: `{"value": "ok"}`}},
		{Function: datatypes.FunctionCall{Name: "pong", Arguments: `{value:}`}},
	}
	issues := scanBadOutput("fine text", calls)
	if len(issues) != 1 || !strings.Contains(issues[0], "pong") {
		t.Errorf("issues = %v, want one malformed-JSON issue naming pong", issues)
	}
}

func TestScanBadOutputClean(t *testing.T) {
	calls := []datatypes.ToolCall{
		{Function: datatypes.FunctionCall{Name: "ping", Arguments: `{"value": "ok"}`}},
	}
	if issues := scanBadOutput("A perfectly ordinary reply.", calls); len(issues) != 0 {
		t.Errorf("clean output flagged: %v", issues)
	}
}

func TestHasRepetitionLoopShortContent(t *testing.T) {
	// Shorter than ngram*threshold words can never loop.
	if hasRepetitionLoop("the quick brown fox jumps over the lazy dog") {
		t.Error("short content flagged as loop")
	}
}

func TestHasRepetitionLoopVariedProse(t *testing.T) {
	varied := "Each sentence here says something different. The parser walks the tree. " +
		"Errors bubble up to the caller. Logging happens at the boundary. " +
		"Configuration comes from the environment. Tests cover the edge cases."
	if hasRepetitionLoop(varied) {
		t.Error("varied prose flagged as loop")
	}
}

func TestDowngradeCapsScoreAndFails(t *testing.T) {
	v := Verdict{Pass: true, Score: 100, Diagnostic: "clean run"}
	got := downgrade(v, []string{"repetition loop"})

	if got.Pass {
		t.Error("downgraded verdict still passes")
	}
	if got.Score != 40 {
		t.Errorf("Score = %v, want capped at 40", got.Score)
	}
	if !strings.Contains(got.Diagnostic, "clean run") || !strings.Contains(got.Diagnostic, "repetition loop") {
		t.Errorf("Diagnostic = %q, want both original and defect note", got.Diagnostic)
	}
}

func TestDowngradeKeepsLowerScore(t *testing.T) {
	got := downgrade(Verdict{Score: 20}, []string{"leaked control token </s>"})
	if got.Score != 20 {
		t.Errorf("Score = %v, want 20 kept below the cap", got.Score)
	}
}

func TestDowngradeNoIssuesIsIdentity(t *testing.T) {
	v := Verdict{Pass: true, Score: 100}
	if got := downgrade(v, nil); got != v {
		t.Errorf("downgrade with no issues changed the verdict: %+v", got)
	}
}
