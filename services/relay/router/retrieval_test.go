// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianRelay/services/relay/rag"
)

type fakeRetriever struct {
	hits []rag.Hit
	err  error

	gotQuery string
}

func (f *fakeRetriever) Query(_ context.Context, req rag.QueryRequest) ([]rag.Hit, error) {
	f.gotQuery = req.Query
	return f.hits, f.err
}

func TestRetrievalContext(t *testing.T) {
	r := &Router{}
	retriever := &fakeRetriever{hits: []rag.Hit{
		{
			FilePath: "internal/server/retry.go", StartLine: 10, EndLine: 24,
			SymbolName: "retryWithBackoff", SymbolType: "function", Language: "go",
			Snippet: "func retryWithBackoff(...) { ... }",
		},
		{Snippet: "Retries cap at three attempts."},
	}}
	r.AttachRetrieval(retriever)

	block := r.retrievalContext(context.Background(), "where is the retry logic?")
	if retriever.gotQuery != "where is the retry logic?" {
		t.Errorf("query forwarded = %q", retriever.gotQuery)
	}
	if !strings.HasPrefix(block, "Relevant workspace context") {
		t.Errorf("block = %q, want context preamble", block)
	}
	if !strings.Contains(block, "[internal/server/retry.go:10-24 (function retryWithBackoff)]") {
		t.Errorf("block = %q, want the hit location bracketed", block)
	}
	if !strings.Contains(block, "Retries cap at three attempts.") {
		t.Errorf("block = %q, want locationless hit content", block)
	}
}

func TestHitLocation(t *testing.T) {
	cases := []struct {
		name string
		hit  rag.Hit
		want string
	}{
		{"full", rag.Hit{FilePath: "a/b.go", StartLine: 3, EndLine: 9, SymbolName: "Run", SymbolType: "method"}, "a/b.go:3-9 (method Run)"},
		{"no symbol", rag.Hit{FilePath: "a/b.go", StartLine: 3, EndLine: 9}, "a/b.go:3-9"},
		{"no lines", rag.Hit{FilePath: "a/b.go"}, "a/b.go"},
		{"symbol only", rag.Hit{SymbolName: "Run"}, "Run"},
		{"bare snippet", rag.Hit{Snippet: "text"}, ""},
	}
	for _, tc := range cases {
		if got := hitLocation(tc.hit); got != tc.want {
			t.Errorf("%s: hitLocation = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestRetrievalContextDegradesToEmpty(t *testing.T) {
	r := &Router{}

	// No retriever attached.
	if got := r.retrievalContext(context.Background(), "query"); got != "" {
		t.Errorf("context without retriever = %q, want empty", got)
	}

	// Retrieval service down.
	r.AttachRetrieval(&fakeRetriever{err: errors.New("connection refused")})
	if got := r.retrievalContext(context.Background(), "query"); got != "" {
		t.Errorf("context with failing retriever = %q, want empty", got)
	}

	// No hits.
	r.AttachRetrieval(&fakeRetriever{})
	if got := r.retrievalContext(context.Background(), "query"); got != "" {
		t.Errorf("context with no hits = %q, want empty", got)
	}

	// Empty query never reaches the service.
	forwarded := &fakeRetriever{hits: []rag.Hit{{Snippet: "x"}}}
	r.AttachRetrieval(forwarded)
	if got := r.retrievalContext(context.Background(), ""); got != "" {
		t.Errorf("context for empty query = %q, want empty", got)
	}
	if forwarded.gotQuery != "" {
		t.Error("empty query forwarded to the retrieval service")
	}
}
