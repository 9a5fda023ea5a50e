// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prosthetic stores corrective prompt fragments keyed by model.
//
// A prosthetic is learned out-of-band from observed failure patterns and
// injected into a model's system prompt at routing time. The router reads
// at most once per turn per model; reads coalesce through singleflight so
// a burst of turns against a cold store costs one disk read.
package prosthetic

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianRelay/services/relay/storage"
)

// Prosthetic is one corrective prompt fragment. Level runs 1-3; higher
// levels are more prescriptive and eat more of the prompt budget.
type Prosthetic struct {
	ModelID   string    `json:"model_id"`
	PatternID string    `json:"pattern_id,omitempty"`
	Text      string    `json:"text"`
	Level     int       `json:"level"`
	UpdatedAt time.Time `json:"updated_at"`
}

// document is the persisted prosthetics.json shape.
type document struct {
	Version     int                   `json:"version"`
	Prosthetics map[string]Prosthetic `json:"prosthetics"`
}

// Store maps modelID to its prosthetic.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	path string

	mu       sync.RWMutex
	loaded   bool
	byModel  map[string]Prosthetic
	inflight singleflight.Group
}

// NewStore binds the store to <dataRoot>/prosthetics.json.
func NewStore(dataRoot string) *Store {
	return &Store{
		path:    filepath.Join(dataRoot, "prosthetics.json"),
		byModel: make(map[string]Prosthetic),
	}
}

// Get returns the prosthetic for a model, if one exists.
func (s *Store) Get(modelID string) (Prosthetic, bool) {
	s.ensureLoaded()

	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byModel[modelID]
	return p, ok
}

// ensureLoaded reads prosthetics.json on first touch, coalescing
// concurrent cold reads into one disk hit.
func (s *Store) ensureLoaded() {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return
	}

	s.inflight.Do("load", func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.loaded {
			return nil, nil
		}
		var doc document
		err := storage.LoadJSON(s.path, &doc)
		if err != nil && !os.IsNotExist(err) {
			slog.Warn("prosthetic store unreadable, starting empty", "path", s.path, "error", err)
		}
		if doc.Prosthetics != nil {
			s.byModel = doc.Prosthetics
		}
		s.loaded = true
		return nil, nil
	})
}

// Put installs or replaces a model's prosthetic. Called by the controller
// workflow, never by the router.
func (s *Store) Put(p Prosthetic) error {
	if p.ModelID == "" {
		return fmt.Errorf("prosthetic needs a model id")
	}
	if p.Level < 1 || p.Level > 3 {
		return fmt.Errorf("prosthetic level %d out of range 1-3", p.Level)
	}
	s.ensureLoaded()

	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = time.Now().UTC()
	s.byModel[p.ModelID] = p
	return s.persist()
}

// Delete removes a model's prosthetic.
func (s *Store) Delete(modelID string) error {
	s.ensureLoaded()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byModel, modelID)
	return s.persist()
}

// persist writes the document. Caller must hold the write lock.
func (s *Store) persist() error {
	doc := document{Version: 1, Prosthetics: s.byModel}
	if err := storage.SaveJSON(s.path, &doc); err != nil {
		return fmt.Errorf("persist prosthetics: %w", err)
	}
	return nil
}
