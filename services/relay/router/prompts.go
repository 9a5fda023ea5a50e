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
	"strings"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
)

// intentClassifierSkeleton is the fixed planning prompt. The main model
// sees this plus its prosthetic, never the tool schemas; tool execution
// belongs to the executor.
const intentClassifierSkeleton = `You are an intent classifier for a coding assistant. Read the conversation and decide what the user wants. Respond with ONLY a JSON object, no prose, in this shape:

{
  "schema_version": 2,
  "action": "call_tool" | "respond" | "ask_clarification" | "multi_step",
  "tool": "<tool name, when action is call_tool>",
  "parameters": { <tool parameters, when action is call_tool> },
  "steps": [ { "tool": "...", "parameters": {}, "note": "..." } ],
  "metadata": {
    "reasoning": "<one sentence on why>",
    "priority": "low" | "normal" | "high",
    "context": "<relevant conversation context>",
    "response": "<the reply text, when action is respond>",
    "question": "<the question, when action is ask_clarification>"
  }
}

Rules:
- "respond" when the user wants information you already have.
- "ask_clarification" when the request is ambiguous.
- "call_tool" when exactly one tool invocation satisfies the request.
- "multi_step" when several invocations are needed, in order, as steps.
- Never invent tool names. Never wrap the JSON in markdown fences.`

// executorPreamble frames the execution call. The executor receives the
// planner's intent as literal user content plus the real tool schemas.
const executorPreamble = `You are a tool-execution assistant. You receive a structured intent describing what to do. Carry it out using the tools available to you. Call tools with precise, schema-valid arguments. If the intent names a tool you do not have, say so instead of substituting a different tool.`

// neutralResponsePrompt backs the second no-tools call when a terminal
// intent arrives without response text.
const neutralResponsePrompt = `You are a helpful coding assistant. Answer the user directly and concisely.`

// planningSystemPrompt assembles the classifier skeleton with a model's
// prosthetic, when one exists.
func planningSystemPrompt(prostheticText string) string {
	if prostheticText == "" {
		return intentClassifierSkeleton
	}
	var b strings.Builder
	b.WriteString(intentClassifierSkeleton)
	b.WriteString("\n\nAdditional guidance for this model:\n")
	b.WriteString(prostheticText)
	return b.String()
}

// executorSystemPrompt assembles the execution preamble with the
// executor's prosthetic and any tool-extension addendum.
func executorSystemPrompt(prostheticText, extensionAddendum string) string {
	var b strings.Builder
	b.WriteString(executorPreamble)
	if prostheticText != "" {
		b.WriteString("\n\nAdditional guidance for this model:\n")
		b.WriteString(prostheticText)
	}
	if extensionAddendum != "" {
		b.WriteString("\n\n")
		b.WriteString(extensionAddendum)
	}
	return b.String()
}

// planningMessages strips tool traffic from the transcript: the planner
// sees user and system turns plus prior assistant text, never tool call
// payloads or tool results.
func planningMessages(messages []datatypes.Message, systemPrompt string) []datatypes.Message {
	out := make([]datatypes.Message, 0, len(messages)+1)
	out = append(out, datatypes.Message{Role: "system", Content: systemPrompt})
	for _, m := range messages {
		if m.Role == "tool" || len(m.ToolCalls) > 0 {
			continue
		}
		if m.Role == "system" || m.Role == "user" || m.Role == "assistant" {
			out = append(out, datatypes.Message{Role: m.Role, Content: m.Content})
		}
	}
	return out
}
