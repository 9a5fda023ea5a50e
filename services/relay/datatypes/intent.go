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

// Intent actions produced by the planning model.
const (
	ActionCallTool         = "call_tool"
	ActionRespond          = "respond"
	ActionAskClarification = "ask_clarification"
	ActionMultiStep        = "multi_step"
)

// IntentSchemaVersion is bumped whenever the planner contract changes.
const IntentSchemaVersion = 2

// Intent is the typed record mediating between the planning call on the
// main model and the execution call on the executor model. It is parsed
// from the first JSON object in the planner's reply.
//
// Thread Safety: Intent is immutable once parsed.
type Intent struct {
	SchemaVersion int            `json:"schema_version"`
	Action        string         `json:"action"`
	Tool          string         `json:"tool,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Steps         []IntentStep   `json:"steps,omitempty"`
	Metadata      IntentMetadata `json:"metadata"`
}

// IntentStep is one ordered step of a multi_step intent.
type IntentStep struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Note       string         `json:"note,omitempty"`
}

// IntentMetadata carries the planner's free-text sidecar fields.
type IntentMetadata struct {
	Reasoning string `json:"reasoning,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Context   string `json:"context,omitempty"`
	Response  string `json:"response,omitempty"`
	Question  string `json:"question,omitempty"`
}

// IsValid reports whether the action is one the router can dispatch.
func (i *Intent) IsValid() bool {
	switch i.Action {
	case ActionCallTool, ActionRespond, ActionAskClarification, ActionMultiStep:
		return true
	}
	return false
}

// IsTerminal reports whether the intent short-circuits execution: the
// router answers from the planner alone and never calls the executor.
func (i *Intent) IsTerminal() bool {
	return i.Action == ActionRespond || i.Action == ActionAskClarification
}
