// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package teams persists saved model-pair configurations per workspace.
// Activating a team swaps the router's configuration snapshot.
package teams

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/storage"
)

// StateRootFunc resolves the current per-workspace state root.
type StateRootFunc func() string

type document struct {
	Version  int                       `json:"version"`
	ActiveID string                    `json:"active_id,omitempty"`
	Teams    map[string]datatypes.Team `json:"teams"`
}

// Store is the per-workspace team collection.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	stateRoot StateRootFunc

	mu    sync.Mutex
	cache map[string]*document
}

// NewStore binds the store to the state-root resolver. Like the failure
// journal, the cache keys by path so a workspace switch lands on fresh
// state.
func NewStore(stateRoot StateRootFunc) *Store {
	return &Store{stateRoot: stateRoot, cache: make(map[string]*document)}
}

func (s *Store) path() string {
	return filepath.Join(s.stateRoot(), "teams.json")
}

// load returns the current workspace's document. Caller must hold the
// lock.
func (s *Store) load() (*document, error) {
	path := s.path()
	if doc, ok := s.cache[path]; ok {
		return doc, nil
	}
	doc := &document{Version: 1, Teams: make(map[string]datatypes.Team)}
	err := storage.LoadJSON(path, doc)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	if doc.Teams == nil {
		doc.Teams = make(map[string]datatypes.Team)
	}
	s.cache[path] = doc
	return doc, nil
}

func (s *Store) persist(doc *document) error {
	if err := storage.SaveJSON(s.path(), doc); err != nil {
		return fmt.Errorf("persist teams: %w", err)
	}
	return nil
}

// Create saves a new team. ID and timestamps are assigned here.
func (s *Store) Create(team datatypes.Team) (datatypes.Team, error) {
	if team.Name == "" {
		return datatypes.Team{}, fmt.Errorf("team needs a name")
	}
	if team.MainModelID == "" && team.ExecutorModelID == "" {
		return datatypes.Team{}, fmt.Errorf("team needs at least one model")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return datatypes.Team{}, err
	}

	now := time.Now().UTC()
	team.ID = uuid.NewString()
	team.CreatedAt = now
	team.UpdatedAt = now
	doc.Teams[team.ID] = team
	if err := s.persist(doc); err != nil {
		delete(doc.Teams, team.ID)
		return datatypes.Team{}, err
	}
	return team, nil
}

// Update replaces a team's mutable fields.
func (s *Store) Update(team datatypes.Team) (datatypes.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return datatypes.Team{}, err
	}

	existing, ok := doc.Teams[team.ID]
	if !ok {
		return datatypes.Team{}, fmt.Errorf("team %s not found", team.ID)
	}
	team.CreatedAt = existing.CreatedAt
	team.UpdatedAt = time.Now().UTC()
	doc.Teams[team.ID] = team
	if err := s.persist(doc); err != nil {
		doc.Teams[team.ID] = existing
		return datatypes.Team{}, err
	}
	return team, nil
}

// Delete removes a team. Deleting the active team clears the active id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Teams[id]; !ok {
		return fmt.Errorf("team %s not found", id)
	}
	delete(doc.Teams, id)
	if doc.ActiveID == id {
		doc.ActiveID = ""
	}
	return s.persist(doc)
}

// List returns all teams sorted by name.
func (s *Store) List() ([]datatypes.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]datatypes.Team, 0, len(doc.Teams))
	for _, t := range doc.Teams {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Activate marks a team active and returns it.
func (s *Store) Activate(id string) (datatypes.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return datatypes.Team{}, err
	}
	team, ok := doc.Teams[id]
	if !ok {
		return datatypes.Team{}, fmt.Errorf("team %s not found", id)
	}
	doc.ActiveID = id
	if err := s.persist(doc); err != nil {
		return datatypes.Team{}, err
	}
	return team, nil
}

// Active returns the active team, if one is set.
func (s *Store) Active() (datatypes.Team, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return datatypes.Team{}, false
	}
	if doc.ActiveID == "" {
		return datatypes.Team{}, false
	}
	team, ok := doc.Teams[doc.ActiveID]
	return team, ok
}
