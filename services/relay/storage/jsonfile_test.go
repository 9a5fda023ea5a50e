// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testDoc struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
	Extra   string `json:"extra,omitempty"`
}

func TestSaveAndLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")

	want := testDoc{Version: 1, Name: "relay"}
	if err := SaveJSON(path, want); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}

	var got testDoc
	if err := LoadJSON(path, &got); err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}

	// No temp file left behind.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file survived the rename")
	}
}

func TestLoadJSONMissingFile(t *testing.T) {
	var doc testDoc
	err := LoadJSON(filepath.Join(t.TempDir(), "absent.json"), &doc)
	if !os.IsNotExist(err) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	if Exists(path) {
		t.Error("Exists true for missing file")
	}
	if Exists(dir) {
		t.Error("Exists true for directory")
	}
	if err := SaveJSON(path, testDoc{}); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	if !Exists(path) {
		t.Error("Exists false for regular file")
	}
}

func TestLoadVersionedMigratesForward(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := SaveJSON(path, map[string]any{"version": 0, "name": "old"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	migrations := []Migration{
		func(doc map[string]any) error {
			doc["extra"] = "from-v0"
			return nil
		},
		func(doc map[string]any) error {
			doc["name"] = doc["name"].(string) + "-v2"
			return nil
		},
	}

	var got testDoc
	if err := LoadVersioned(path, 2, migrations, &got); err != nil {
		t.Fatalf("LoadVersioned: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("migrated version = %d, want 2", got.Version)
	}
	if got.Name != "old-v2" || got.Extra != "from-v0" {
		t.Errorf("migrated doc = %+v, want both migrations applied", got)
	}
}

func TestLoadVersionedCurrentDocumentSkipsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := SaveJSON(path, testDoc{Version: 2, Name: "current"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	poison := []Migration{
		func(map[string]any) error { t.Error("migration ran on current doc"); return nil },
		func(map[string]any) error { t.Error("migration ran on current doc"); return nil },
	}

	var got testDoc
	if err := LoadVersioned(path, 2, poison, &got); err != nil {
		t.Fatalf("LoadVersioned: %v", err)
	}
	if got.Name != "current" {
		t.Errorf("Name = %s, want current", got.Name)
	}
}

func TestLoadVersionedRejectsNewerDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := SaveJSON(path, testDoc{Version: 9, Name: "future"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var got testDoc
	err := LoadVersioned(path, 2, nil, &got)
	if !errors.Is(err, ErrVersionTooNew) {
		t.Errorf("error = %v, want ErrVersionTooNew", err)
	}
}

func TestLoadVersionedMissingMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := SaveJSON(path, testDoc{Version: 0, Name: "old"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var got testDoc
	if err := LoadVersioned(path, 2, nil, &got); err == nil {
		t.Error("expected error for missing migration path")
	}
}
