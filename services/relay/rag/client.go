// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rag is the thin client for the external retrieval service.
// The relay never embeds or indexes anything itself; it forwards a
// query and threads the hits into the planning prompt.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	defaultBaseURL = "http://localhost:3002"
	queryPath      = "/api/rag/query"
	defaultTimeout = 15 * time.Second
	defaultLimit   = 5
)

// QueryFilter narrows retrieval to file types or path prefixes.
type QueryFilter struct {
	FileTypes []string `json:"fileTypes,omitempty"`
	Paths     []string `json:"paths,omitempty"`
}

// QueryRequest is the retrieval request body. Field names follow the
// retrieval service's camelCase wire format.
type QueryRequest struct {
	Query  string       `json:"query"`
	Limit  int          `json:"limit,omitempty"`
	Filter *QueryFilter `json:"filter,omitempty"`
}

// Hit is one retrieved chunk with its source location and, when the
// indexer resolved one, the enclosing symbol.
type Hit struct {
	FilePath   string  `json:"filePath"`
	StartLine  int     `json:"startLine"`
	EndLine    int     `json:"endLine"`
	Snippet    string  `json:"snippet"`
	SymbolName string  `json:"symbolName,omitempty"`
	SymbolType string  `json:"symbolType,omitempty"`
	Language   string  `json:"language"`
	Score      float64 `json:"score"`
}

// QueryResponse is the retrieval response body.
type QueryResponse struct {
	Results      []Hit  `json:"results"`
	Query        string `json:"query"`
	LatencyMS    int64  `json:"latency"`
	TotalResults int    `json:"totalResults"`
}

// Client talks to the retrieval service.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient reads RAG_SERVICE_URL, defaulting to the local service.
func NewClient() *Client {
	baseURL := os.Getenv("RAG_SERVICE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// Query retrieves chunks relevant to the query. A missing or down
// retrieval service is an error the caller may treat as "no context".
func (c *Client) Query(ctx context.Context, req QueryRequest) ([]Hit, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("rag query is empty")
	}
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal rag query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rag request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rag service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rag service returned %d: %s", resp.StatusCode, snippet)
	}

	var decoded QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode rag response: %w", err)
	}
	return decoded.Results, nil
}
