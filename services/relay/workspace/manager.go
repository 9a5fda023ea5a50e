// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace binds the relay's mutable state (failure log, teams,
// settings) to a workspace identity derived from a filesystem path.
//
// Each workspace gets a stable hash; per-workspace stores key their data
// root off that hash, so switching workspaces switches state without the
// stores knowing about paths.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianRelay/services/relay/storage"
)

// HashLength is the number of hex characters kept from the path hash.
const HashLength = 12

// MaxRecent caps the MRU recent-workspaces list.
const MaxRecent = 10

// GitStatus is the external collaborator that reports whether a checkout
// has uncommitted changes. Injected so tests can fake it.
type GitStatus interface {
	// Dirty reports whether path is a version-control checkout with
	// uncommitted changes. Non-checkouts are never dirty.
	Dirty(path string) (bool, error)
}

// Info identifies the current workspace.
type Info struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// configDoc is the persisted workspace.json shape.
type configDoc struct {
	CurrentWorkspace string    `json:"currentWorkspace"`
	RecentWorkspaces []string  `json:"recentWorkspaces"`
	SafeMode         bool      `json:"safeMode"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Manager owns workspace.json and answers identity queries.
//
// Thread Safety: Manager is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	dataRoot string
	git      GitStatus
	doc      configDoc
}

// NewManager loads (or initializes) workspace.json under dataRoot. When
// no workspace was ever selected, the process working directory becomes
// the initial workspace.
func NewManager(dataRoot string, git GitStatus) (*Manager, error) {
	m := &Manager{dataRoot: dataRoot, git: git}

	err := storage.LoadJSON(m.configPath(), &m.doc)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load workspace config: %w", err)
		}
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine initial workspace: %w", err)
		}
		m.doc = configDoc{CurrentWorkspace: cwd, RecentWorkspaces: []string{cwd}}
		if err := m.persist(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) configPath() string {
	return filepath.Join(m.dataRoot, "workspace.json")
}

// HashPath returns the stable hash for any canonicalized path.
func HashPath(path string) string {
	canonical := filepath.Clean(path)
	if abs, err := filepath.Abs(canonical); err == nil {
		canonical = abs
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:HashLength]
}

// GetCurrent returns the current workspace path and hash.
func (m *Manager) GetCurrent() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Info{Path: m.doc.CurrentWorkspace, Hash: HashPath(m.doc.CurrentWorkspace)}
}

// Switch validates that path exists, recomputes the hash, updates the MRU
// list and persists atomically. Dependents pick up the new root lazily on
// their next read.
func (m *Manager) Switch(path string) (Info, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("workspace path %q: %w", path, err)
	}
	if !info.IsDir() {
		return Info{}, fmt.Errorf("workspace path %q is not a directory", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Info{}, fmt.Errorf("canonicalize %q: %w", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.doc.CurrentWorkspace = abs
	m.doc.RecentWorkspaces = pushRecent(m.doc.RecentWorkspaces, abs)
	if err := m.persist(); err != nil {
		return Info{}, err
	}

	slog.Info("workspace switched", "path", abs, "hash", HashPath(abs))
	return Info{Path: abs, Hash: HashPath(abs)}, nil
}

// Recent returns the MRU recent-workspaces list, current first.
func (m *Manager) Recent() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.doc.RecentWorkspaces))
	copy(out, m.doc.RecentWorkspaces)
	return out
}

// SafeMode reports whether the current workspace refuses mutating
// operations. A dirty checkout forces safe mode regardless of the stored
// flag; a git-status failure is logged and treated as clean.
func (m *Manager) SafeMode() bool {
	m.mu.RLock()
	path := m.doc.CurrentWorkspace
	flag := m.doc.SafeMode
	m.mu.RUnlock()

	if flag {
		return true
	}
	if m.git == nil {
		return false
	}
	dirty, err := m.git.Dirty(path)
	if err != nil {
		slog.Warn("git status check failed, assuming clean", "path", path, "error", err)
		return false
	}
	return dirty
}

// StateRoot returns the mutable-state root for the current workspace:
// <dataRoot>/projects/<hash>. Per-workspace stores derive their file
// paths from this.
func (m *Manager) StateRoot() string {
	return filepath.Join(m.dataRoot, "projects", m.GetCurrent().Hash)
}

// DataRoot returns the relay-wide data root (profiles, combo results,
// prosthetics live here, not per workspace).
func (m *Manager) DataRoot() string { return m.dataRoot }

// persist writes workspace.json. Caller must hold the write lock.
func (m *Manager) persist() error {
	m.doc.UpdatedAt = time.Now().UTC()
	if err := storage.SaveJSON(m.configPath(), &m.doc); err != nil {
		return fmt.Errorf("persist workspace config: %w", err)
	}
	return nil
}

func pushRecent(recent []string, path string) []string {
	out := []string{path}
	for _, p := range recent {
		if p != path {
			out = append(out, p)
		}
	}
	if len(out) > MaxRecent {
		out = out[:MaxRecent]
	}
	return out
}
