// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package failurelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/storage"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	dir := t.TempDir()
	return NewLog(func() string { return dir })
}

func TestLogFailureAssignsSequentialIDs(t *testing.T) {
	log := newTestLog(t)

	for i := 1; i <= 3; i++ {
		entry, err := log.LogFailure(LogParams{
			ModelID:  "qwen2.5-coder:7b",
			Category: datatypes.CategoryTool,
			RawError: "tool_not_called: model answered in prose",
		})
		if err != nil {
			t.Fatalf("LogFailure: %v", err)
		}
		if entry.ID != int64(i) {
			t.Errorf("entry %d got ID %d", i, entry.ID)
		}
	}
}

func TestLogFailureClassifiesAndDetectsPattern(t *testing.T) {
	log := newTestLog(t)

	entry, err := log.LogFailure(LogParams{
		ModelID:  "llama3.1:8b",
		Category: datatypes.CategoryTool,
		RawError: "tool_not_called: suppression probe returned a tool call",
		Query:    "just tell me, do not call any tools",
	})
	if err != nil {
		t.Fatalf("LogFailure: %v", err)
	}
	if entry.ErrorType != datatypes.ErrToolNotCalled {
		t.Errorf("ErrorType = %s, want %s", entry.ErrorType, datatypes.ErrToolNotCalled)
	}
	if entry.PatternID != "TOOL_SUPPRESSION" {
		t.Errorf("PatternID = %s, want TOOL_SUPPRESSION", entry.PatternID)
	}
	if entry.Fingerprint == "" {
		t.Error("Fingerprint is empty")
	}
}

func TestPatternCountAndThreshold(t *testing.T) {
	log := newTestLog(t)

	for i := 0; i < 4; i++ {
		if _, err := log.LogFailure(LogParams{
			ModelID:  "llama3.1:8b",
			Category: datatypes.CategoryTool,
			RawError: "wrong tool selected",
		}); err != nil {
			t.Fatalf("LogFailure: %v", err)
		}
	}
	// A single occurrence of a different pattern should not clear the bar.
	if _, err := log.LogFailure(LogParams{
		ModelID:  "llama3.1:8b",
		Category: datatypes.CategoryIntent,
		RawError: "user intent misread",
	}); err != nil {
		t.Fatalf("LogFailure: %v", err)
	}

	above, err := log.GetPatternsAboveThreshold(3)
	if err != nil {
		t.Fatalf("GetPatternsAboveThreshold: %v", err)
	}
	if len(above) != 1 {
		t.Fatalf("patterns above threshold = %d, want 1", len(above))
	}
	if above[0].ID != "WRONG_TOOL_SELECTION" || above[0].Count != 4 {
		t.Errorf("pattern = %s count %d, want WRONG_TOOL_SELECTION count 4", above[0].ID, above[0].Count)
	}

	all, err := log.GetPatterns()
	if err != nil {
		t.Fatalf("GetPatterns: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("total patterns = %d, want 2", len(all))
	}
	if all[0].Count < all[1].Count {
		t.Error("patterns not sorted by count descending")
	}
}

func TestGetFailuresFiltersAndPaging(t *testing.T) {
	log := newTestLog(t)

	models := []string{"a", "b", "a", "a", "b"}
	for _, m := range models {
		if _, err := log.LogFailure(LogParams{
			ModelID:  m,
			Category: datatypes.CategoryTool,
			RawError: "wrong tool",
		}); err != nil {
			t.Fatalf("LogFailure: %v", err)
		}
	}

	got, err := log.GetFailures(Filters{ModelID: "a"})
	if err != nil {
		t.Fatalf("GetFailures: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("model filter returned %d entries, want 3", len(got))
	}
	// Newest first.
	if got[0].ID < got[1].ID || got[1].ID < got[2].ID {
		t.Error("entries not sorted newest first")
	}

	got, err = log.GetFailures(Filters{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("GetFailures: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("limit/offset returned %d entries, want 2", len(got))
	}
	if got[0].ID != 4 {
		t.Errorf("offset 1 first entry ID = %d, want 4", got[0].ID)
	}

	got, err = log.GetFailures(Filters{Offset: 100})
	if err != nil {
		t.Fatalf("GetFailures: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("past-the-end offset returned %d entries, want 0", len(got))
	}
}

func TestMarkResolvedSkipsUnknownIDs(t *testing.T) {
	log := newTestLog(t)

	e1, _ := log.LogFailure(LogParams{ModelID: "m", Category: datatypes.CategoryTool, RawError: "wrong tool"})
	e2, _ := log.LogFailure(LogParams{ModelID: "m", Category: datatypes.CategoryTool, RawError: "wrong tool"})

	updated, err := log.MarkResolved([]int64{e1.ID, 999}, "prosthetic-1")
	if err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}
	if updated != 1 {
		t.Errorf("updated = %d, want 1", updated)
	}

	resolved := true
	got, _ := log.GetFailures(Filters{Resolved: &resolved})
	if len(got) != 1 || got[0].ID != e1.ID {
		t.Fatalf("resolved filter returned %v, want entry %d only", got, e1.ID)
	}
	if got[0].ResolvedBy != "prosthetic-1" {
		t.Errorf("ResolvedBy = %s, want prosthetic-1", got[0].ResolvedBy)
	}

	// Resolving twice must not double-count.
	updated, _ = log.MarkResolved([]int64{e1.ID}, "prosthetic-2")
	if updated != 0 {
		t.Errorf("re-resolve updated = %d, want 0", updated)
	}
	_ = e2
}

func TestClearOldKeepsUnresolved(t *testing.T) {
	log := newTestLog(t)

	old, _ := log.LogFailure(LogParams{ModelID: "m", Category: datatypes.CategoryTool, RawError: "wrong tool"})
	stale, _ := log.LogFailure(LogParams{ModelID: "m", Category: datatypes.CategoryTool, RawError: "wrong tool"})

	// Backdate both past the cutoff, resolve only one.
	log.mu.Lock()
	doc, err := log.load()
	if err != nil {
		log.mu.Unlock()
		t.Fatalf("load: %v", err)
	}
	for i := range doc.Entries {
		doc.Entries[i].Timestamp = time.Now().UTC().AddDate(0, 0, -60)
	}
	log.mu.Unlock()

	if _, err := log.MarkResolved([]int64{old.ID}, "p"); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}

	removed, err := log.ClearOld(30)
	if err != nil {
		t.Fatalf("ClearOld: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	remaining, _ := log.GetFailures(Filters{})
	if len(remaining) != 1 || remaining[0].ID != stale.ID {
		t.Errorf("remaining = %v, want unresolved entry %d only", remaining, stale.ID)
	}
}

func TestClearForModel(t *testing.T) {
	log := newTestLog(t)

	log.LogFailure(LogParams{ModelID: "keep", Category: datatypes.CategoryTool, RawError: "wrong tool"})
	log.LogFailure(LogParams{ModelID: "drop", Category: datatypes.CategoryTool, RawError: "wrong tool"})
	log.LogFailure(LogParams{ModelID: "drop", Category: datatypes.CategoryIntent, RawError: "misunderstood"})

	removed, err := log.ClearForModel("drop")
	if err != nil {
		t.Fatalf("ClearForModel: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	remaining, _ := log.GetFailures(Filters{})
	if len(remaining) != 1 || remaining[0].ModelID != "keep" {
		t.Errorf("remaining = %v, want the keep entry only", remaining)
	}
}

func TestWorkspaceIsolation(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	current := dirA
	log := NewLog(func() string { return current })

	if _, err := log.LogFailure(LogParams{ModelID: "m", Category: datatypes.CategoryTool, RawError: "wrong tool"}); err != nil {
		t.Fatalf("LogFailure: %v", err)
	}

	// Switch workspace: the journal must come up empty.
	current = dirB
	got, err := log.GetFailures(Filters{})
	if err != nil {
		t.Fatalf("GetFailures: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("fresh workspace has %d entries, want 0", len(got))
	}

	// Switch back: the original journal is still there.
	current = dirA
	got, _ = log.GetFailures(Filters{})
	if len(got) != 1 {
		t.Errorf("original workspace has %d entries, want 1", len(got))
	}
}

func TestLogPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	log := NewLog(func() string { return dir })

	if _, err := log.LogFailure(LogParams{
		ModelID:  "m",
		Category: datatypes.CategoryTool,
		RawError: "wrong tool",
	}); err != nil {
		t.Fatalf("LogFailure: %v", err)
	}

	reopened := NewLog(func() string { return dir })
	got, err := reopened.GetFailures(Filters{})
	if err != nil {
		t.Fatalf("GetFailures after reopen: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("reopened journal has %d entries, want 1", len(got))
	}
}

func TestLoadMigratesVersionZeroDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "failure-log.json")

	// A pre-pattern, pre-stats document as an old build would write it.
	legacy := map[string]any{
		"next_id": 2,
		"entries": []map[string]any{{
			"id":         1,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"model_id":   "m",
			"category":   datatypes.CategoryTool,
			"error_type": datatypes.ErrWrongTool,
		}},
	}
	if err := storage.SaveJSON(path, legacy); err != nil {
		t.Fatalf("seed legacy doc: %v", err)
	}

	log := NewLog(func() string { return dir })
	got, err := log.GetFailures(Filters{})
	if err != nil {
		t.Fatalf("GetFailures on migrated doc: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("migrated entries = %v, want the single legacy entry", got)
	}

	// Appending after migration must continue the id sequence and persist
	// a current-version document.
	entry, err := log.LogFailure(LogParams{ModelID: "m", Category: datatypes.CategoryTool, RawError: "wrong tool"})
	if err != nil {
		t.Fatalf("LogFailure after migration: %v", err)
	}
	if entry.ID != 2 {
		t.Errorf("post-migration ID = %d, want 2", entry.ID)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("document not persisted: %v", err)
	}
}
