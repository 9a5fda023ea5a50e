// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the wire and persistence records shared by the
// relay service: chat messages, intents, capability profiles, failure
// entries, combo records and team documents.
//
// Records in this package are plain data. Behavior lives in the component
// packages that own them.
package datatypes

import "encoding/json"

// Message is a single chat turn in the OpenAI wire shape.
//
// Role is one of "system", "user", "assistant" or "tool". Assistant
// messages may carry ToolCalls; tool messages echo the ToolCallID they
// answer. Source is an optional tag identifying where the message came
// from (ide, router, executor) and is stripped before hitting a provider.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Source     string     `json:"source,omitempty"`
}

// ToolCall is one tool invocation emitted by a model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its raw JSON argument payload.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ArgumentMap decodes the raw arguments. A decode failure returns an
// empty map and false; callers treat that as a model-behavior failure,
// not a transport error.
func (f FunctionCall) ArgumentMap() (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(f.Arguments), &m); err != nil {
		return map[string]any{}, false
	}
	return m, true
}

// ToolDefinition is the canonical tool schema exposed to models.
// Parameters is a JSON-schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// UnmarshalJSON accepts both the flat canonical shape and the OpenAI
// wire wrapper {"type":"function","function":{...}} that IDE clients
// send.
func (t *ToolDefinition) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		Type     string `json:"type"`
		Function *struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			Parameters  map[string]any `json:"parameters"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Function != nil {
		t.Name = wrapped.Function.Name
		t.Description = wrapped.Function.Description
		t.Parameters = wrapped.Function.Parameters
		return nil
	}

	type flat ToolDefinition
	var f flat
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*t = ToolDefinition(f)
	return nil
}

// ChatCompletionRequest is the subset of the OpenAI chat-completions
// request body the relay accepts from IDE clients.
type ChatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  any              `json:"tool_choice,omitempty"`
	Temperature *float32         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
}

// ChatCompletionResponse is the OpenAI-shaped envelope the relay
// synthesizes back to the client.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage reports token accounting. The relay estimates rather than
// recounts; upstream values pass through when present.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
