// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package combo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/storage"
)

// Store persists combo records next to the profile registry, one JSON
// document for all pairs. Re-running a pair replaces its record.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	path string

	mu      sync.Mutex
	loaded  bool
	records map[string]datatypes.ComboRecord
}

type storeDoc struct {
	Version int                                `json:"version"`
	Records map[string]datatypes.ComboRecord   `json:"records"`
}

// NewStore binds the store to <dataRoot>/combo-results.json.
func NewStore(dataRoot string) *Store {
	return &Store{
		path:    filepath.Join(dataRoot, "combo-results.json"),
		records: make(map[string]datatypes.ComboRecord),
	}
}

// load reads the document on first touch. Caller must hold the lock.
func (s *Store) load() error {
	if s.loaded {
		return nil
	}
	var doc storeDoc
	err := storage.LoadJSON(s.path, &doc)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load combo results: %w", err)
	}
	if doc.Records != nil {
		s.records = doc.Records
	}
	s.loaded = true
	return nil
}

// Save upserts one pair's record.
func (s *Store) Save(record datatypes.ComboRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	s.records[record.Key()] = record
	doc := storeDoc{Version: 1, Records: s.records}
	if err := storage.SaveJSON(s.path, &doc); err != nil {
		return fmt.Errorf("persist combo results: %w", err)
	}
	return nil
}

// Get returns one pair's record.
func (s *Store) Get(mainID, executorID string) (datatypes.ComboRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return datatypes.ComboRecord{}, false
	}
	r, ok := s.records[mainID+"+"+executorID]
	return r, ok
}

// List returns all records sorted by overall score descending.
func (s *Store) List() ([]datatypes.ComboRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	out := make([]datatypes.ComboRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OverallScore != out[j].OverallScore {
			return out[i].OverallScore > out[j].OverallScore
		}
		return out[i].Key() < out[j].Key()
	})
	return out, nil
}
