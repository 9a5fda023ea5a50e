// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package failurelog persists production failures per workspace and
// clusters them into recurring patterns.
//
// The journal is append-only: entries never change after creation except
// for their resolution fields. Every state-changing operation writes the
// whole document atomically (temp file + rename), so a crash never leaves
// a torn log behind.
//
// Thread Safety: all Log methods are safe for concurrent use; writes per
// workspace serialize behind one mutex.
package failurelog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/observability"
	"github.com/AleutianAI/AleutianRelay/services/relay/storage"
)

// DocumentVersion is the current failure-log document version.
const DocumentVersion = 2

// document is the persisted failure-log shape.
type document struct {
	Version  int                                  `json:"version"`
	NextID   int64                                `json:"next_id"`
	Entries  []datatypes.FailureEntry             `json:"entries"`
	Patterns map[string]*datatypes.FailurePattern `json:"patterns"`
	Stats    Stats                                `json:"stats"`
}

// Stats summarizes the journal for dashboards.
type Stats struct {
	Total      int            `json:"total"`
	Resolved   int            `json:"resolved"`
	ByCategory map[string]int `json:"by_category"`
	ByModel    map[string]int `json:"by_model"`
}

// migrations upgrade older documents. v0 -> v1 introduced patterns;
// v1 -> v2 introduced stats.
var migrations = []storage.Migration{
	func(doc map[string]any) error {
		if _, ok := doc["patterns"]; !ok {
			doc["patterns"] = map[string]any{}
		}
		return nil
	},
	func(doc map[string]any) error {
		if _, ok := doc["stats"]; !ok {
			doc["stats"] = map[string]any{}
		}
		return nil
	},
}

// StateRootFunc resolves the current per-workspace state root. Injected
// from the workspace manager so the log picks up workspace switches
// lazily on the next operation.
type StateRootFunc func() string

// Log is the per-workspace failure journal.
type Log struct {
	stateRoot StateRootFunc

	// mu serializes writes; the cache is keyed by document path so a
	// workspace switch lands on fresh state without a reload step.
	mu    sync.Mutex
	cache map[string]*document

	// onLogged fires after each persisted entry. Must not block.
	onLogged func(entry datatypes.FailureEntry)
}

// OnLogged registers a callback invoked after every appended entry,
// used to fan failures out to dashboard websockets. Call before the
// log is shared across goroutines.
func (l *Log) OnLogged(fn func(entry datatypes.FailureEntry)) {
	l.onLogged = fn
}

// NewLog builds a journal bound to the given state-root resolver.
func NewLog(stateRoot StateRootFunc) *Log {
	return &Log{
		stateRoot: stateRoot,
		cache:     make(map[string]*document),
	}
}

func (l *Log) path() string {
	return filepath.Join(l.stateRoot(), "failure-log.json")
}

// load returns the document for the current workspace, reading from disk
// on first touch. Caller must hold the lock.
func (l *Log) load() (*document, error) {
	path := l.path()
	if doc, ok := l.cache[path]; ok {
		return doc, nil
	}

	doc := &document{
		Version:  DocumentVersion,
		NextID:   1,
		Patterns: make(map[string]*datatypes.FailurePattern),
		Stats:    Stats{ByCategory: map[string]int{}, ByModel: map[string]int{}},
	}
	err := storage.LoadVersioned(path, DocumentVersion, migrations, doc)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load failure log: %w", err)
	}
	if doc.Patterns == nil {
		doc.Patterns = make(map[string]*datatypes.FailurePattern)
	}
	if doc.Stats.ByCategory == nil {
		doc.Stats.ByCategory = map[string]int{}
	}
	if doc.Stats.ByModel == nil {
		doc.Stats.ByModel = map[string]int{}
	}
	if doc.NextID == 0 {
		doc.NextID = 1
	}
	l.cache[path] = doc
	return doc, nil
}

// persist writes the document. Disk failure is logged, in-memory state
// stays consistent and the next mutation retries the write.
func (l *Log) persist(doc *document) {
	if err := storage.SaveJSON(l.path(), doc); err != nil {
		slog.Error("failure log write failed, will retry on next mutation", "error", err)
	}
}

// LogParams describes one failure to record.
type LogParams struct {
	ModelID         string
	ExecutorModelID string
	Category        string
	RawError        string
	Query           string
	Depth           int
}

// LogFailure classifies, fingerprints and appends one entry, updating the
// pattern catalog and stats, then persists.
func (l *Log) LogFailure(params LogParams) (datatypes.FailureEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return datatypes.FailureEntry{}, err
	}

	category := params.Category
	if category == "" {
		category = datatypes.CategoryUnknown
	}

	entry := datatypes.FailureEntry{
		ID:              doc.NextID,
		Timestamp:       time.Now().UTC(),
		ModelID:         params.ModelID,
		ExecutorModelID: params.ExecutorModelID,
		Category:        category,
		ErrorType:       ClassifyError(params.RawError),
		Fingerprint:     Fingerprint(params.Query),
		Depth:           params.Depth,
		RawError:        params.RawError,
		Query:           params.Query,
	}
	entry.PatternID = detectPattern(entry.Category, entry.ErrorType)

	doc.NextID++
	doc.Entries = append(doc.Entries, entry)
	doc.Stats.Total++
	doc.Stats.ByCategory[entry.Category]++
	if entry.ModelID != "" {
		doc.Stats.ByModel[entry.ModelID]++
	}

	if entry.PatternID != "" {
		l.bumpPattern(doc, entry)
	}

	l.persist(doc)
	observability.FailureLogWrites.Inc()
	if l.onLogged != nil {
		l.onLogged(entry)
	}
	return entry, nil
}

func (l *Log) bumpPattern(doc *document, entry datatypes.FailureEntry) {
	p, ok := doc.Patterns[entry.PatternID]
	if !ok {
		def, found := patternDefByID(entry.PatternID)
		if !found {
			return
		}
		p = &datatypes.FailurePattern{
			ID:        def.id,
			Name:      def.name,
			Severity:  def.severity,
			FirstSeen: entry.Timestamp,
		}
		doc.Patterns[entry.PatternID] = p
	}
	p.Count++
	p.LastSeen = entry.Timestamp
	if len(p.Examples) < datatypes.MaxPatternExamples {
		p.Examples = append(p.Examples, entry.ID)
	}
}

// Filters narrows GetFailures results. Zero values mean "no filter".
type Filters struct {
	ModelID   string
	Category  string
	PatternID string
	Resolved  *bool
	Since     time.Time
	Limit     int
	Offset    int
}

// GetFailures returns entries matching the filters, newest first.
func (l *Log) GetFailures(f Filters) ([]datatypes.FailureEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return nil, err
	}

	matched := make([]datatypes.FailureEntry, 0)
	for i := len(doc.Entries) - 1; i >= 0; i-- {
		e := doc.Entries[i]
		if f.ModelID != "" && e.ModelID != f.ModelID {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.PatternID != "" && e.PatternID != f.PatternID {
			continue
		}
		if f.Resolved != nil && e.Resolved != *f.Resolved {
			continue
		}
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		matched = append(matched, e)
	}

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []datatypes.FailureEntry{}, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

// GetPatterns returns all observed patterns sorted by count descending.
func (l *Log) GetPatterns() ([]datatypes.FailurePattern, error) {
	return l.patternsAbove(0)
}

// GetPatternsAboveThreshold returns patterns with count >= n, sorted by
// count descending. These are the patterns worth a prosthetic.
func (l *Log) GetPatternsAboveThreshold(n int) ([]datatypes.FailurePattern, error) {
	return l.patternsAbove(n)
}

func (l *Log) patternsAbove(n int) ([]datatypes.FailurePattern, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return nil, err
	}

	out := make([]datatypes.FailurePattern, 0, len(doc.Patterns))
	for _, p := range doc.Patterns {
		if p.Count >= n {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MarkResolved sets resolved on the given entry ids, recording the
// prosthetic that fixed them. Unknown ids are skipped, not errors.
func (l *Log) MarkResolved(ids []int64, prostheticID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return 0, err
	}

	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	updated := 0
	for i := range doc.Entries {
		if want[doc.Entries[i].ID] && !doc.Entries[i].Resolved {
			doc.Entries[i].Resolved = true
			doc.Entries[i].ResolvedBy = prostheticID
			doc.Stats.Resolved++
			updated++
		}
	}
	if updated > 0 {
		l.persist(doc)
	}
	return updated, nil
}

// ClearOld removes resolved entries older than the given number of days.
// Unresolved entries are kept regardless of age. Returns removed count.
func (l *Log) ClearOld(days int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	kept := doc.Entries[:0]
	removed := 0
	for _, e := range doc.Entries {
		if e.Resolved && e.Timestamp.Before(cutoff) {
			removed++
			doc.Stats.Total--
			doc.Stats.Resolved--
			doc.Stats.ByCategory[e.Category]--
			if e.ModelID != "" {
				doc.Stats.ByModel[e.ModelID]--
			}
			continue
		}
		kept = append(kept, e)
	}
	doc.Entries = kept

	if removed > 0 {
		l.persist(doc)
	}
	return removed, nil
}

// ClearForModel removes every entry for a model, typically after the
// model is retired from the registry. Returns removed count.
func (l *Log) ClearForModel(modelID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.load()
	if err != nil {
		return 0, err
	}

	kept := doc.Entries[:0]
	removed := 0
	for _, e := range doc.Entries {
		if e.ModelID == modelID {
			removed++
			doc.Stats.Total--
			if e.Resolved {
				doc.Stats.Resolved--
			}
			doc.Stats.ByCategory[e.Category]--
			doc.Stats.ByModel[e.ModelID]--
			continue
		}
		kept = append(kept, e)
	}
	doc.Entries = kept

	if removed > 0 {
		l.persist(doc)
	}
	return removed, nil
}
