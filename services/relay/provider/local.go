// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// templateStopSequences suppresses chat-template leakage from local
// hosts that decode past the turn boundary. Attached to every local
// call in addition to caller-supplied stops.
var templateStopSequences = []string{
	"<|im_end|>",
	"<|endoftext|>",
	"<|eot_id|>",
	"</s>",
}

// LocalClient talks to a local OpenAI-compatible inference host
// (LM Studio, llama.cpp server, vLLM).
type LocalClient struct {
	sdk     *openai.Client
	baseURL string
}

// NewLocalClient builds a client for the host named by
// LLM_SERVICE_URL_BASE, defaulting to http://localhost:1234.
func NewLocalClient() (*LocalClient, error) {
	baseURL := os.Getenv("LLM_SERVICE_URL_BASE")
	if baseURL == "" {
		baseURL = "http://localhost:1234"
	}
	baseURL = strings.TrimSuffix(strings.Trim(baseURL, "\"' "), "/")

	cfg := openai.DefaultConfig("not-needed")
	cfg.BaseURL = baseURL + "/v1"
	cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}

	return &LocalClient{
		sdk:     openai.NewClientWithConfig(cfg),
		baseURL: baseURL,
	}, nil
}

// Name implements Client.
func (l *LocalClient) Name() string { return ProviderLocal }

// Call implements Client. Local hosts get the template stop list merged
// into whatever the caller asked for.
func (l *LocalClient) Call(ctx context.Context, opts CallOptions) (*Response, error) {
	opts.Stop = mergeStops(opts.Stop, templateStopSequences)
	return doCall(ctx, l.sdk, opts)
}

// localModelInfo is the subset of the host's /v1/models entry the relay
// reads for context-size discovery.
type localModelInfo struct {
	ID            string `json:"id"`
	MaxContextLen int    `json:"max_context_length"`
	ContextLength int    `json:"context_length"`
}

// ListModels queries the host's /v1/models endpoint. Used by the probe
// harness to enumerate candidates and bound the context sweep.
func (l *LocalClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build models request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, &CallError{Kind: ErrKindTransport, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &CallError{Kind: ErrKindProtocol, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("models endpoint returned %d", resp.StatusCode)}
	}

	var body struct {
		Data []localModelInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &CallError{Kind: ErrKindProtocol, Err: fmt.Errorf("parse models body: %w", err)}
	}

	infos := make([]ModelInfo, 0, len(body.Data))
	for _, m := range body.Data {
		maxCtx := m.MaxContextLen
		if maxCtx == 0 {
			maxCtx = m.ContextLength
		}
		infos = append(infos, ModelInfo{ID: m.ID, MaxContext: maxCtx})
	}
	return infos, nil
}

// ModelInfo describes one model the local host can serve.
type ModelInfo struct {
	ID         string
	MaxContext int
}

func mergeStops(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
