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
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianRelay/services/relay/rag"
)

// retrievalLimit bounds how many chunks are threaded into a planning
// prompt. More than a few drowns the classifier skeleton.
const retrievalLimit = 3

// Retriever fetches workspace context for a query. The rag client
// satisfies it; a nil retriever disables enrichment.
type Retriever interface {
	Query(ctx context.Context, req rag.QueryRequest) ([]rag.Hit, error)
}

// AttachRetrieval enables planning-prompt enrichment. Safe to call once
// during startup, before the router serves turns.
func (r *Router) AttachRetrieval(client Retriever) {
	r.mu.Lock()
	r.retrieval = client
	r.mu.Unlock()
}

// retrievalContext fetches chunks for the user's query and formats them
// as a context message for the planner. A down or empty retrieval
// service yields "" and the turn proceeds without context.
func (r *Router) retrievalContext(ctx context.Context, query string) string {
	r.mu.RLock()
	client := r.retrieval
	r.mu.RUnlock()
	if client == nil || query == "" {
		return ""
	}

	hits, err := client.Query(ctx, rag.QueryRequest{Query: query, Limit: retrievalLimit})
	if err != nil {
		slog.Debug("retrieval skipped", "error", err)
		return ""
	}
	return formatRetrievalBlock(hits)
}

// formatRetrievalBlock renders hits into the block the planner sees.
// Each snippet leads with its source location so the planner can name
// files and symbols instead of paraphrasing them.
func formatRetrievalBlock(hits []rag.Hit) string {
	if len(hits) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant workspace context retrieved for this request:")
	for _, h := range hits {
		b.WriteString("\n\n")
		if loc := hitLocation(h); loc != "" {
			fmt.Fprintf(&b, "[%s]\n", loc)
		}
		b.WriteString(strings.TrimSpace(h.Snippet))
	}
	return b.String()
}

// hitLocation renders "path:start-end (type name)" from whatever source
// fields the retrieval service filled in.
func hitLocation(h rag.Hit) string {
	loc := h.FilePath
	if loc != "" && h.StartLine > 0 {
		loc = fmt.Sprintf("%s:%d-%d", loc, h.StartLine, h.EndLine)
	}
	if h.SymbolName != "" {
		symbol := h.SymbolName
		if h.SymbolType != "" {
			symbol = h.SymbolType + " " + h.SymbolName
		}
		if loc == "" {
			return symbol
		}
		loc += " (" + symbol + ")"
	}
	return loc
}
