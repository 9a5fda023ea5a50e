// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package combo

import (
	"testing"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
)

func TestStoreSaveAndGet(t *testing.T) {
	store := NewStore(t.TempDir())

	record := datatypes.ComboRecord{
		MainModelID:     "main-a",
		ExecutorModelID: "exec-b",
		OverallScore:    82,
		TierScores:      map[string]float64{datatypes.TierSimple: 90},
	}
	if err := store.Save(record); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok := store.Get("main-a", "exec-b")
	if !ok {
		t.Fatal("saved record not found")
	}
	if got.OverallScore != 82 || got.TierScores[datatypes.TierSimple] != 90 {
		t.Errorf("record = %+v", got)
	}

	if _, ok := store.Get("main-a", "nobody"); ok {
		t.Error("unknown pair found")
	}
}

func TestStoreRerunReplacesRecord(t *testing.T) {
	store := NewStore(t.TempDir())

	first := datatypes.ComboRecord{MainModelID: "m", ExecutorModelID: "e", OverallScore: 40}
	second := datatypes.ComboRecord{MainModelID: "m", ExecutorModelID: "e", OverallScore: 75}
	if err := store.Save(first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("records = %d, want the rerun to replace", len(list))
	}
	if list[0].OverallScore != 75 {
		t.Errorf("OverallScore = %v, want the newer run", list[0].OverallScore)
	}
}

func TestStoreListSortsByScore(t *testing.T) {
	store := NewStore(t.TempDir())

	for _, r := range []datatypes.ComboRecord{
		{MainModelID: "m1", ExecutorModelID: "e1", OverallScore: 60},
		{MainModelID: "m2", ExecutorModelID: "e2", OverallScore: 90},
		{MainModelID: "m3", ExecutorModelID: "e3", OverallScore: 75},
	} {
		if err := store.Save(r); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	wantOrder := []float64{90, 75, 60}
	for i, want := range wantOrder {
		if list[i].OverallScore != want {
			t.Errorf("list[%d].OverallScore = %v, want %v", i, list[i].OverallScore, want)
		}
	}
}

func TestStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	store := NewStore(dir)
	if err := store.Save(datatypes.ComboRecord{MainModelID: "m", ExecutorModelID: "e", OverallScore: 50}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened := NewStore(dir)
	if _, ok := reopened.Get("m", "e"); !ok {
		t.Error("record lost across instances")
	}
}
