// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package provider implements the unified chat-completions client over
// three backend flavors: a local OpenAI-compatible inference host, the
// hosted OpenAI API, and Azure-style deployments.
//
// All flavors ride the sashabaranov/go-openai SDK; only client
// construction differs. Errors are classified into a small taxonomy
// (transport, timeout, protocol) and returned by value. Nothing in this
// package panics across the router boundary.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
)

// Provider names accepted in router configuration and team documents.
const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// ErrorKind classifies a failed call for the error-handling policy:
// transport errors may be retried once, timeouts and protocol errors
// never are.
type ErrorKind string

const (
	ErrKindTransport ErrorKind = "transport"
	ErrKindTimeout   ErrorKind = "timeout"
	ErrKindProtocol  ErrorKind = "protocol"
)

// CallError is the value-typed error every Client returns on failure.
type CallError struct {
	Kind       ErrorKind
	StatusCode int
	LatencyMS  int64
	Err        error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("provider call failed (%s): %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// AsCallError unwraps err into a *CallError if possible.
func AsCallError(err error) (*CallError, bool) {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// CallOptions describes one chat-completions call.
type CallOptions struct {
	ModelID     string
	Messages    []datatypes.Message
	Tools       []datatypes.ToolDefinition
	ToolChoice  string // "", "auto", "none", or a specific tool name
	Temperature *float32
	MaxTokens   int
	Stop        []string
	Timeout     time.Duration
}

// Response wraps the upstream envelope. Accessors surface missing or
// malformed fields as errors instead of panicking on index.
type Response struct {
	Raw       openai.ChatCompletionResponse
	LatencyMS int64
}

// Message returns choices[0].message, or an error when the upstream body
// carried no choices.
func (r *Response) Message() (datatypes.Message, error) {
	if len(r.Raw.Choices) == 0 {
		return datatypes.Message{}, fmt.Errorf("upstream response has no choices")
	}
	m := r.Raw.Choices[0].Message
	out := datatypes.Message{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, datatypes.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: datatypes.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out, nil
}

// Content returns choices[0].message.content, empty when absent.
func (r *Response) Content() string {
	if len(r.Raw.Choices) == 0 {
		return ""
	}
	return r.Raw.Choices[0].Message.Content
}

// ToolCalls returns the tool calls from choices[0], possibly empty.
func (r *Response) ToolCalls() []datatypes.ToolCall {
	msg, err := r.Message()
	if err != nil {
		return nil
	}
	return msg.ToolCalls
}

// FinishReason returns choices[0].finish_reason, empty when absent.
func (r *Response) FinishReason() string {
	if len(r.Raw.Choices) == 0 {
		return ""
	}
	return string(r.Raw.Choices[0].FinishReason)
}

// Client is the unified request/response interface to one provider.
//
// Implementations must be safe for concurrent use; the relay holds one
// client per provider and reuses it across turns.
type Client interface {
	// Call performs a single chat-completions request. The deadline is
	// min(ctx deadline, opts.Timeout). Latency is wall clock from
	// dispatch to full decode and is attached to both success and
	// CallError returns.
	Call(ctx context.Context, opts CallOptions) (*Response, error)

	// Name returns the provider name (local, openai, azure).
	Name() string
}

// SynthesizeResponse wraps an already-assembled message in the response
// envelope. Used where evaluation code consumes routed output through
// the same accessors as raw provider output.
func SynthesizeResponse(msg datatypes.Message) *Response {
	out := openai.ChatCompletionMessage{
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolType(tc.Type),
			Function: openai.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return &Response{
		Raw: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: out}},
		},
	}
}

// buildRequest converts CallOptions into the SDK request shape shared by
// all three flavors.
func buildRequest(opts CallOptions) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:     opts.ModelID,
		MaxTokens: opts.MaxTokens,
		Stop:      opts.Stop,
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}

	for _, m := range opts.Messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolType(tc.Type),
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, t := range opts.Tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	switch opts.ToolChoice {
	case "", "auto":
		if len(req.Tools) > 0 {
			req.ToolChoice = "auto"
		}
	case "none":
		req.ToolChoice = "none"
	default:
		req.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: opts.ToolChoice},
		}
	}

	return req
}
