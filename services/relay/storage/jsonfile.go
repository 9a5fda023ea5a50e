// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage provides atomic JSON document persistence for the relay
// stores (failure log, capability registry, combo results, workspace
// config).
//
// Every write goes through a temp-file-then-rename so a crash mid-write
// never leaves a partial document behind. Documents carry a version field
// and are migrated forward on load.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SaveJSON atomically writes v as indented JSON to path, creating parent
// directories as needed.
func SaveJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create storage dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	// Write to temp file first for atomic operation
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0640); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		// Clean up temp file on failure
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// LoadJSON reads path into v. A missing file returns os.ErrNotExist
// unwrapped so callers can treat it as "empty store".
func LoadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Migration transforms a document from version v to v+1 in place over the
// raw decoded form. Migrations run in order until the target version.
type Migration func(doc map[string]any) error

// ErrVersionTooNew is returned when a document's version exceeds what
// this build understands.
var ErrVersionTooNew = errors.New("document version newer than this build")

// LoadVersioned reads a versioned document, applies migrations from the
// stored version up to targetVersion, then decodes into v.
//
// The migrations slice is indexed by source version: migrations[n]
// upgrades a version-n document to version n+1.
func LoadVersioned(path string, targetVersion int, migrations []Migration, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	version := 0
	if f, ok := raw["version"].(float64); ok {
		version = int(f)
	}
	if version > targetVersion {
		return fmt.Errorf("%s: version %d: %w", path, version, ErrVersionTooNew)
	}

	for version < targetVersion {
		if version >= len(migrations) || migrations[version] == nil {
			return fmt.Errorf("%s: no migration from version %d", path, version)
		}
		if err := migrations[version](raw); err != nil {
			return fmt.Errorf("%s: migrate v%d: %w", path, version, err)
		}
		version++
		raw["version"] = version
	}

	// Round-trip through JSON to decode the migrated form into v.
	migrated, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("re-marshal migrated document: %w", err)
	}
	if err := json.Unmarshal(migrated, v); err != nil {
		return fmt.Errorf("decode migrated document: %w", err)
	}
	return nil
}
