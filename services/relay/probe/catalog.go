// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package probe runs a scripted battery of synthetic interactions against
// a model and aggregates the outcomes into a capability profile.
//
// A probe is a value: a descriptor carrying the prompt, the tool set and
// an evaluator over the provider response. The catalog is a flat list;
// there is no probe class hierarchy. Expected outcomes are known up
// front, so evaluation is deterministic given the model's reply.
package probe

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/provider"
)

// Probe categories.
const (
	CategoryTool      = "tool"
	CategoryReasoning = "reasoning"
	CategoryStrategic = "strategic"
)

// Capability axes a probe feeds.
const (
	AxisToolAccuracy      = "tool_accuracy"
	AxisIntentRecognition = "intent_recognition"
	AxisRAGUsage          = "rag_usage"
	AxisReasoning         = "reasoning"
	AxisBugDetection      = "bug_detection"
	AxisCodeUnderstanding = "code_understanding"
	AxisSelfCorrection    = "self_correction"
)

// Verdict is an evaluator's judgment of one reply.
type Verdict struct {
	Pass       bool
	Score      float64
	Diagnostic string
	ToolFormat string
}

// Probe is one scripted scenario with a known expected outcome.
type Probe struct {
	Name     string
	Category string
	Axis     string

	// Tier places tool probes into the combo evaluator's cost ladder
	// (simple/medium/complex). Empty for reasoning probes.
	Tier string

	Messages   []datatypes.Message
	Tools      []datatypes.ToolDefinition
	ToolChoice string

	// Evaluate judges the reply. Must not retain resp.
	Evaluate func(resp *provider.Response) Verdict

	// XMLFallback marks probes the harness re-tries with a textual
	// tool-call schema when the structured attempt emits nothing.
	XMLFallback bool
}

func userMsg(content string) []datatypes.Message {
	return []datatypes.Message{{Role: "user", Content: content}}
}

func strParam(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func objSchema(required []string, props map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": props, "required": required}
}

var pingTool = datatypes.ToolDefinition{
	Name:        "ping",
	Description: "Echo a value back to the caller.",
	Parameters:  objSchema([]string{"value"}, map[string]any{"value": strParam("The value to echo.")}),
}

// pingToolV2 renames the fields; schema-adherence probes check the model
// follows the definition it was handed, not the one it memorized.
var pingToolV2 = datatypes.ToolDefinition{
	Name:        "ping",
	Description: "Echo a message back to the caller.",
	Parameters: objSchema([]string{"message", "timestamp"}, map[string]any{
		"message":   strParam("The message to echo."),
		"timestamp": map[string]any{"type": "number", "description": "Client timestamp."},
	}),
}

// pingToolV2Reordered is semantically identical to pingToolV2 with the
// property order flipped. Field order must not matter.
var pingToolV2Reordered = datatypes.ToolDefinition{
	Name:        "ping",
	Description: "Echo a message back to the caller.",
	Parameters: objSchema([]string{"timestamp", "message"}, map[string]any{
		"timestamp": map[string]any{"type": "number", "description": "Client timestamp."},
		"message":   strParam("The message to echo."),
	}),
}

var readFileTool = datatypes.ToolDefinition{
	Name:        "read_file",
	Description: "Read the contents of a file at the given path.",
	Parameters:  objSchema([]string{"path"}, map[string]any{"path": strParam("Filesystem path to read.")}),
}

var writeFileTool = datatypes.ToolDefinition{
	Name:        "write_file",
	Description: "Overwrite a file at the given path with new content.",
	Parameters: objSchema([]string{"path", "content"}, map[string]any{
		"path":    strParam("Filesystem path to write."),
		"content": strParam("New file content."),
	}),
}

var searchCodeTool = datatypes.ToolDefinition{
	Name:        "search_code",
	Description: "Search the codebase index for a query, rebuilding the index first.",
	Parameters:  objSchema([]string{"query"}, map[string]any{"query": strParam("Search query.")}),
}

var searchCodeCachedTool = datatypes.ToolDefinition{
	Name:        "search_code_cached",
	Description: "Search the cached codebase index for a query without rebuilding.",
	Parameters:  objSchema([]string{"query"}, map[string]any{"query": strParam("Search query.")}),
}

var createTaskTool = datatypes.ToolDefinition{
	Name:        "create_task",
	Description: "Create a tracked task with metadata.",
	Parameters: objSchema([]string{"title", "metadata"}, map[string]any{
		"title": strParam("Task title."),
		"metadata": objSchema([]string{"priority"}, map[string]any{
			"priority": strParam("One of low, medium, high."),
			"tags":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		}),
	}),
}

// Catalog returns the full probe list. The slice is rebuilt per call so
// callers may filter it destructively.
func Catalog() []Probe {
	probes := toolProbes()
	return append(probes, reasoningProbes()...)
}

// ToolProbes returns only the tool family, used by the combo evaluator.
func ToolProbes() []Probe { return toolProbes() }

func toolProbes() []Probe {
	return []Probe{
		{
			Name: "tool_emit", Category: CategoryTool, Axis: AxisToolAccuracy, Tier: datatypes.TierSimple,
			Messages: userMsg("Call the ping tool with value 'hello'."),
			Tools:    []datatypes.ToolDefinition{pingTool},
			Evaluate: func(resp *provider.Response) Verdict {
				calls := resp.ToolCalls()
				if len(calls) == 0 {
					return Verdict{Diagnostic: "no tool call emitted", ToolFormat: datatypes.ToolFormatNone}
				}
				if calls[0].Function.Name != "ping" {
					return Verdict{Score: 20, Diagnostic: "called " + calls[0].Function.Name + " instead of ping",
						ToolFormat: datatypes.ToolFormatOpenAI}
				}
				args, ok := calls[0].Function.ArgumentMap()
				if !ok {
					return Verdict{Score: 40, Diagnostic: "malformed argument JSON", ToolFormat: datatypes.ToolFormatOpenAI}
				}
				if v, _ := args["value"].(string); !strings.EqualFold(v, "hello") {
					return Verdict{Score: 60, Diagnostic: fmt.Sprintf("wrong value %v", args["value"]),
						ToolFormat: datatypes.ToolFormatOpenAI}
				}
				return Verdict{Pass: true, Score: 100, ToolFormat: datatypes.ToolFormatOpenAI}
			},
			XMLFallback: true,
		},
		{
			Name: "tool_schema", Category: CategoryTool, Axis: AxisToolAccuracy, Tier: datatypes.TierMedium,
			Messages: userMsg("Call ping with message 'hello' and timestamp 1234567890."),
			Tools:    []datatypes.ToolDefinition{pingToolV2},
			Evaluate: evaluateSchemaAdherence,
		},
		{
			Name: "tool_schema_reorder", Category: CategoryTool, Axis: AxisToolAccuracy, Tier: datatypes.TierComplex,
			Messages: userMsg("Call ping with message 'hello' and timestamp 1234567890."),
			Tools:    []datatypes.ToolDefinition{pingToolV2Reordered},
			Evaluate: evaluateSchemaAdherence,
		},
		{
			Name: "tool_selection", Category: CategoryTool, Axis: AxisToolAccuracy, Tier: datatypes.TierMedium,
			Messages: userMsg("Show me the contents of config.yaml."),
			Tools:    []datatypes.ToolDefinition{readFileTool, writeFileTool},
			Evaluate: func(resp *provider.Response) Verdict {
				calls := resp.ToolCalls()
				if len(calls) == 0 {
					return Verdict{Diagnostic: "no tool call emitted"}
				}
				switch calls[0].Function.Name {
				case "read_file":
					return Verdict{Pass: true, Score: 100, ToolFormat: datatypes.ToolFormatOpenAI}
				case "write_file":
					return Verdict{Score: 0, Diagnostic: "wrong tool: chose write_file for a read request"}
				}
				return Verdict{Score: 10, Diagnostic: "hallucinated tool " + calls[0].Function.Name}
			},
		},
		{
			Name: "tool_suppression", Category: CategoryTool, Axis: AxisToolAccuracy, Tier: datatypes.TierSimple,
			Messages: userMsg("Respond ONLY with 'OK'. Do NOT call any tools."),
			Tools:    []datatypes.ToolDefinition{pingTool},
			Evaluate: func(resp *provider.Response) Verdict {
				if len(resp.ToolCalls()) > 0 {
					return Verdict{Diagnostic: "tool_not_called constraint violated: model called a tool anyway"}
				}
				content := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Content()), `"'.`))
				if strings.EqualFold(content, "ok") {
					return Verdict{Pass: true, Score: 100, ToolFormat: datatypes.ToolFormatNone}
				}
				return Verdict{Pass: true, Score: 80,
					Diagnostic: "suppressed tools but drifted from the literal reply", ToolFormat: datatypes.ToolFormatNone}
			},
		},
		{
			Name: "tool_near_identical", Category: CategoryTool, Axis: AxisToolAccuracy, Tier: datatypes.TierComplex,
			Messages: userMsg("Using the cached index only, search the codebase for 'HandleLogin'."),
			Tools:    []datatypes.ToolDefinition{searchCodeTool, searchCodeCachedTool},
			Evaluate: func(resp *provider.Response) Verdict {
				calls := resp.ToolCalls()
				if len(calls) == 0 {
					return Verdict{Diagnostic: "no tool call emitted"}
				}
				if calls[0].Function.Name == "search_code_cached" {
					return Verdict{Pass: true, Score: 100, ToolFormat: datatypes.ToolFormatOpenAI}
				}
				return Verdict{Score: 30, Diagnostic: "missed the 'cached' qualifier"}
			},
		},
		{
			Name: "tool_multi_emit", Category: CategoryTool, Axis: AxisToolAccuracy, Tier: datatypes.TierMedium,
			Messages: userMsg("Call ping twice: once with value 'alpha' and once with value 'beta'."),
			Tools:    []datatypes.ToolDefinition{pingTool},
			Evaluate: func(resp *provider.Response) Verdict {
				calls := resp.ToolCalls()
				switch {
				case len(calls) >= 2:
					return Verdict{Pass: true, Score: 100, ToolFormat: datatypes.ToolFormatOpenAI}
				case len(calls) == 1:
					return Verdict{Score: 40, Diagnostic: "emitted one call where two were required"}
				}
				return Verdict{Diagnostic: "no tool call emitted"}
			},
		},
		{
			Name: "tool_nested_args", Category: CategoryTool, Axis: AxisToolAccuracy, Tier: datatypes.TierComplex,
			Messages: userMsg("Create a task titled 'Fix login bug' with priority high and tags ['auth', 'urgent']."),
			Tools:    []datatypes.ToolDefinition{createTaskTool},
			Evaluate: func(resp *provider.Response) Verdict {
				calls := resp.ToolCalls()
				if len(calls) == 0 {
					return Verdict{Diagnostic: "no tool call emitted"}
				}
				args, ok := calls[0].Function.ArgumentMap()
				if !ok {
					return Verdict{Score: 20, Diagnostic: "malformed argument JSON"}
				}
				meta, ok := args["metadata"].(map[string]any)
				if !ok {
					return Verdict{Score: 40, Diagnostic: "metadata not nested as an object"}
				}
				if p, _ := meta["priority"].(string); !strings.EqualFold(p, "high") {
					return Verdict{Score: 60, Diagnostic: "nested priority missing or wrong"}
				}
				return Verdict{Pass: true, Score: 100, ToolFormat: datatypes.ToolFormatOpenAI}
			},
		},
	}
}

// evaluateSchemaAdherence is shared by tool_schema and its reordered
// twin: new field names must be used, the legacy "value" field caps the
// score at 30.
func evaluateSchemaAdherence(resp *provider.Response) Verdict {
	calls := resp.ToolCalls()
	if len(calls) == 0 {
		return Verdict{Diagnostic: "no tool call emitted"}
	}
	if calls[0].Function.Name != "ping" {
		return Verdict{Score: 10, Diagnostic: "called " + calls[0].Function.Name + " instead of ping"}
	}
	args, ok := calls[0].Function.ArgumentMap()
	if !ok {
		return Verdict{Score: 20, Diagnostic: "malformed argument JSON"}
	}
	if _, legacy := args["value"]; legacy {
		return Verdict{Score: 30, Diagnostic: "used legacy field 'value' from a memorized schema"}
	}
	msg, _ := args["message"].(string)
	ts, tsOK := args["timestamp"].(float64)
	if !strings.EqualFold(msg, "hello") || !tsOK || int64(ts) != 1234567890 {
		return Verdict{Score: 60, Diagnostic: "new field names used but values wrong"}
	}
	return Verdict{Pass: true, Score: 100, ToolFormat: datatypes.ToolFormatOpenAI}
}

func reasoningProbes() []Probe {
	return []Probe{
		{
			Name: "intent_extraction", Category: CategoryReasoning, Axis: AxisIntentRecognition,
			Messages: userMsg("Extract the intent of this request as JSON with keys \"action\" and \"target\", " +
				"and respond with only the JSON: 'Please open the file main.go'"),
			Evaluate: func(resp *provider.Response) Verdict {
				obj, ok := firstJSONObject(resp.Content())
				if !ok {
					return Verdict{Diagnostic: "no JSON object in reply"}
				}
				action, _ := obj["action"].(string)
				target, _ := obj["target"].(string)
				score := 0.0
				if strings.Contains(strings.ToLower(action), "open") || strings.Contains(strings.ToLower(action), "read") {
					score += 50
				}
				if strings.Contains(target, "main.go") {
					score += 50
				}
				return Verdict{Pass: score == 100, Score: score,
					Diagnostic: fmt.Sprintf("action=%q target=%q", action, target)}
			},
		},
		{
			Name: "multi_step_planning", Category: CategoryReasoning, Axis: AxisReasoning,
			Messages: userMsg("List the steps, as a numbered list, to rename a function across a codebase. " +
				"Include finding usages before editing."),
			Evaluate: func(resp *provider.Response) Verdict {
				content := resp.Content()
				steps := countNumberedSteps(content)
				if steps < 2 {
					return Verdict{Score: 20, Diagnostic: "no ordered step list"}
				}
				lower := strings.ToLower(content)
				findIdx := strings.Index(lower, "find")
				if findIdx == -1 {
					findIdx = strings.Index(lower, "search")
				}
				editIdx := strings.Index(lower, "edit")
				if editIdx == -1 {
					editIdx = strings.Index(lower, "rename")
				}
				if findIdx >= 0 && editIdx >= 0 && findIdx < editIdx {
					return Verdict{Pass: true, Score: 100}
				}
				return Verdict{Score: 60, Diagnostic: "steps present but ordering wrong or implicit"}
			},
		},
		{
			Name: "conditional_reasoning", Category: CategoryReasoning, Axis: AxisReasoning,
			Messages: userMsg("If a file does not exist, reading it fails. The file /tmp/absent.txt does not exist. " +
				"Will reading /tmp/absent.txt succeed? Answer yes or no with one sentence of reasoning."),
			Evaluate: func(resp *provider.Response) Verdict {
				lower := strings.ToLower(resp.Content())
				if strings.Contains(lower, "no") && !strings.HasPrefix(strings.TrimSpace(lower), "yes") {
					return Verdict{Pass: true, Score: 100}
				}
				return Verdict{Diagnostic: "failed to apply the stated premise"}
			},
		},
		{
			Name: "context_continuity", Category: CategoryReasoning, Axis: AxisCodeUnderstanding,
			Messages: []datatypes.Message{
				{Role: "user", Content: "My project's entry point is cmd/server/main.go."},
				{Role: "assistant", Content: "Understood. The entry point is cmd/server/main.go."},
				{Role: "user", Content: "What file did I say the entry point was? Reply with just the path."},
			},
			Evaluate: func(resp *provider.Response) Verdict {
				if strings.Contains(resp.Content(), "cmd/server/main.go") {
					return Verdict{Pass: true, Score: 100}
				}
				return Verdict{Diagnostic: "lost the earlier turn"}
			},
		},
		{
			Name: "logical_consistency", Category: CategoryReasoning, Axis: AxisBugDetection,
			Messages: userMsg("Delete every log file, but make sure no files are deleted. " +
				"Point out any problem with this request before acting."),
			Evaluate: func(resp *provider.Response) Verdict {
				lower := strings.ToLower(resp.Content())
				for _, marker := range []string{"contradict", "conflict", "inconsistent", "impossible", "cannot both"} {
					if strings.Contains(lower, marker) {
						return Verdict{Pass: true, Score: 100}
					}
				}
				return Verdict{Diagnostic: "contradiction not flagged"}
			},
		},
		{
			Name: "explanation", Category: CategoryReasoning, Axis: AxisSelfCorrection,
			Messages: userMsg("Should configuration be stored in environment variables or hardcoded? " +
				"Give your answer and the reason for it."),
			Evaluate: func(resp *provider.Response) Verdict {
				lower := strings.ToLower(resp.Content())
				if strings.Contains(lower, "because") || strings.Contains(lower, "since") || strings.Contains(lower, "reason") {
					return Verdict{Pass: true, Score: 100}
				}
				return Verdict{Score: 40, Diagnostic: "answer given without rationale"}
			},
		},
		{
			Name: "edge_case_handling", Category: CategoryReasoning, Axis: AxisCodeUnderstanding,
			Messages: userMsg("How would you parse a user-supplied date string? " +
				"Mention what must be true of the input before parsing can succeed."),
			Evaluate: func(resp *provider.Response) Verdict {
				lower := strings.ToLower(resp.Content())
				for _, marker := range []string{"valid", "format", "if the input", "assuming", "must be"} {
					if strings.Contains(lower, marker) {
						return Verdict{Pass: true, Score: 100}
					}
				}
				return Verdict{Score: 30, Diagnostic: "no precondition acknowledged"}
			},
		},
		{
			Name: "rag_prior", Category: CategoryReasoning, Axis: AxisRAGUsage,
			Messages: userMsg("You have a semantic code-search service available. A user asks 'where is the retry " +
				"logic implemented?'. What is your first step? Answer in one sentence."),
			Evaluate: func(resp *provider.Response) Verdict {
				lower := strings.ToLower(resp.Content())
				for _, marker := range []string{"search", "query", "look up", "index"} {
					if strings.Contains(lower, marker) {
						return Verdict{Pass: true, Score: 100}
					}
				}
				return Verdict{Diagnostic: "would answer from memory instead of consulting search"}
			},
		},
	}
}

// firstJSONObject extracts and decodes the first balanced JSON object in
// text. Models wrap JSON in prose and code fences; both are tolerated.
func firstJSONObject(text string) (map[string]any, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return nil, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var obj map[string]any
				if err := json.Unmarshal([]byte(text[start:i+1]), &obj); err != nil {
					return nil, false
				}
				return obj, true
			}
		}
	}
	return nil, false
}

func countNumberedSteps(content string) int {
	count := 0
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) >= 2 && trimmed[0] >= '1' && trimmed[0] <= '9' &&
			(trimmed[1] == '.' || trimmed[1] == ')') {
			count++
		}
	}
	return count
}
