// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package router

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
)

func TestParseIntentCleanJSON(t *testing.T) {
	text := `{"schema_version": 2, "action": "call_tool", "tool": "read_file", "parameters": {"path": "main.go"}}`

	intent, ok := ParseIntent(text)
	if !ok {
		t.Fatal("valid intent rejected")
	}
	if intent.Action != datatypes.ActionCallTool || intent.Tool != "read_file" {
		t.Errorf("intent = %+v", intent)
	}
	if intent.Parameters["path"] != "main.go" {
		t.Errorf("parameters = %v", intent.Parameters)
	}
}

func TestParseIntentToleratesFencesAndProse(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"markdown fence", "```json\n{\"action\": \"respond\", \"metadata\": {\"response\": \"hi\"}}\n```"},
		{"prose wrapped", `Sure, here is the classification: {"action": "respond"} Hope that helps.`},
		{"leading whitespace", "\n\n  {\"action\": \"respond\"}"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intent, ok := ParseIntent(tc.text)
			if !ok {
				t.Fatal("tolerable wrapping rejected")
			}
			if intent.Action != datatypes.ActionRespond {
				t.Errorf("Action = %s, want respond", intent.Action)
			}
		})
	}
}

func TestParseIntentDefaultsSchemaVersion(t *testing.T) {
	intent, ok := ParseIntent(`{"action": "respond"}`)
	if !ok {
		t.Fatal("intent rejected")
	}
	if intent.SchemaVersion != datatypes.IntentSchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", intent.SchemaVersion, datatypes.IntentSchemaVersion)
	}
}

func TestParseIntentFallsBack(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"no json", "the user wants the file opened"},
		{"unbalanced", `{"action": "respond"`},
		{"invalid action", `{"action": "launch_missiles"}`},
		{"empty action", `{"tool": "read_file"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intent, ok := ParseIntent(tc.text)
			if ok {
				t.Fatal("expected fallback")
			}
			if intent.Action != datatypes.ActionRespond {
				t.Errorf("fallback Action = %s, want respond", intent.Action)
			}
			if !intent.IsValid() {
				t.Error("fallback intent must be dispatchable")
			}
		})
	}
}

func TestParseIntentMultiStep(t *testing.T) {
	text := `{
	  "action": "multi_step",
	  "steps": [
	    {"tool": "search_code", "parameters": {"query": "Retry"}, "note": "locate"},
	    {"tool": "read_file", "parameters": {"path": "retry.go"}}
	  ]
	}`

	intent, ok := ParseIntent(text)
	if !ok {
		t.Fatal("multi_step intent rejected")
	}
	if len(intent.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(intent.Steps))
	}
	if intent.Steps[0].Tool != "search_code" || intent.Steps[0].Note != "locate" {
		t.Errorf("first step = %+v", intent.Steps[0])
	}
}

func TestSerializeIntentRoundTrips(t *testing.T) {
	in := datatypes.Intent{
		SchemaVersion: datatypes.IntentSchemaVersion,
		Action:        datatypes.ActionCallTool,
		Tool:          "write_file",
		Parameters:    map[string]any{"path": "a.txt"},
	}

	var out datatypes.Intent
	if err := json.Unmarshal([]byte(serializeIntent(in)), &out); err != nil {
		t.Fatalf("serialized intent not valid JSON: %v", err)
	}
	if out.Action != in.Action || out.Tool != in.Tool {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestIntentTerminality(t *testing.T) {
	cases := []struct {
		action   string
		terminal bool
	}{
		{datatypes.ActionRespond, true},
		{datatypes.ActionAskClarification, true},
		{datatypes.ActionCallTool, false},
		{datatypes.ActionMultiStep, false},
	}
	for _, tc := range cases {
		i := datatypes.Intent{Action: tc.action}
		if i.IsTerminal() != tc.terminal {
			t.Errorf("IsTerminal(%s) = %v, want %v", tc.action, i.IsTerminal(), tc.terminal)
		}
	}
}

func TestFirstJSONObjectRespectsStrings(t *testing.T) {
	raw, ok := firstJSONObject(`{"reasoning": "use {braces} carefully"} trailing`)
	if !ok {
		t.Fatal("object with braces in string rejected")
	}
	if !strings.HasSuffix(string(raw), `carefully"}`) {
		t.Errorf("extracted = %s", raw)
	}
}
