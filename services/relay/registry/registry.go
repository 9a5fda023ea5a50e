// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry is the persistent store of per-model capability
// profiles. One JSON document per model under profiles/, written whole on
// probe completion and never partially updated.
//
// The registry is read-mostly: routing reads profiles on every turn,
// writes happen only when a probe run finishes. A single writer lock
// guards mutation; readers see the last completed write.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/storage"
)

// cacheTTL bounds how stale the in-memory profile cache may get when
// another process writes the profiles directory.
const cacheTTL = 30 * time.Second

// cacheEntry carries its own fill time so every read path ages
// independently of when List last swept the directory.
type cacheEntry struct {
	profile  *datatypes.ModelProfile
	cachedAt time.Time
}

// Registry owns the profiles directory.
//
// Thread Safety: safe for concurrent use.
type Registry struct {
	dir string

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New binds the registry to <dataRoot>/profiles.
func New(dataRoot string) *Registry {
	return &Registry{
		dir:   filepath.Join(dataRoot, "profiles"),
		cache: make(map[string]cacheEntry),
	}
}

// profilePath sanitizes the model id into a filename. Slashes and colons
// appear in local model ids (e.g. "lmstudio-community/qwen2.5").
func (r *Registry) profilePath(modelID string) string {
	name := strings.NewReplacer("/", "_", ":", "_", " ", "_").Replace(modelID)
	return filepath.Join(r.dir, name+".json")
}

// Save persists a completed profile atomically and refreshes the cache
// entry. Profiles are written whole; there is no partial update path.
func (r *Registry) Save(p *datatypes.ModelProfile) error {
	if p == nil || p.ModelID == "" {
		return fmt.Errorf("profile needs a model id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := storage.SaveJSON(r.profilePath(p.ModelID), p); err != nil {
		return fmt.Errorf("save profile %s: %w", p.ModelID, err)
	}
	cp := *p
	r.cache[p.ModelID] = cacheEntry{profile: &cp, cachedAt: time.Now()}
	return nil
}

// Get returns the profile for a model, or false when the model was never
// probed.
func (r *Registry) Get(modelID string) (*datatypes.ModelProfile, bool) {
	r.mu.RLock()
	if e, ok := r.cache[modelID]; ok && time.Since(e.cachedAt) < cacheTTL {
		cp := *e.profile
		r.mu.RUnlock()
		return &cp, true
	}
	r.mu.RUnlock()

	var p datatypes.ModelProfile
	err := storage.LoadJSON(r.profilePath(modelID), &p)
	if err != nil {
		return nil, false
	}

	r.mu.Lock()
	r.cache[modelID] = cacheEntry{profile: &p, cachedAt: time.Now()}
	r.mu.Unlock()

	cp := p
	return &cp, true
}

// List returns every stored profile, sorted by model id.
func (r *Registry) List() ([]datatypes.ModelProfile, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []datatypes.ModelProfile{}, nil
		}
		return nil, fmt.Errorf("read profiles dir: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	out := make([]datatypes.ModelProfile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var p datatypes.ModelProfile
		if err := storage.LoadJSON(filepath.Join(r.dir, e.Name()), &p); err != nil {
			continue
		}
		cp := p
		r.cache[p.ModelID] = cacheEntry{profile: &cp, cachedAt: now}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out, nil
}

// Delete removes a model's profile, typically when the model disappears
// from the serving host.
func (r *Registry) Delete(modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.cache, modelID)
	err := os.Remove(r.profilePath(modelID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete profile %s: %w", modelID, err)
	}
	return nil
}

// ByRole returns profiles whose recommended role matches any of the
// given roles, sorted by overall score descending.
func (r *Registry) ByRole(roles ...string) ([]datatypes.ModelProfile, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(roles))
	for _, role := range roles {
		want[role] = true
	}

	out := make([]datatypes.ModelProfile, 0, len(all))
	for _, p := range all {
		if want[p.RecommendedRole] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Overall > out[j].Overall })
	return out, nil
}
