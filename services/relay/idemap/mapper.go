// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package idemap reconciles IDE-specific tool vocabularies with the
// relay's canonical tool set.
//
// IDE clients (Continue, Cursor, Copilot Chat, Windsurf, Zed, VS Code)
// each expose their own tool names and parameter shapes. The mapper
// parses the IDE from the requested model string, loads that IDE's
// mapping table, and per emitted tool call decides whether to execute
// it as-is, transform its parameters, pass it through to the IDE, or
// flag it unknown.
package idemap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/storage"
)

// Dispositions for one tool call.
const (
	ActionExecute     = "execute"
	ActionTransform   = "transform"
	ActionPassthrough = "passthrough"
	ActionUnknown     = "unknown"
)

// knownIDEs are the recognized model-string suffixes.
var knownIDEs = map[string]bool{
	"continue": true,
	"cursor":   true,
	"copilot":  true,
	"windsurf": true,
	"zed":      true,
	"vscode":   true,
}

const (
	defaultMapping = "default"
	tableTTL       = 60 * time.Second
)

// toolRule is one entry of a mapping table.
type toolRule struct {
	// Action is execute, transform or passthrough.
	Action string `json:"action"`
	// Target names the canonical tool a mapped or transformed call
	// lands on.
	Target string `json:"target,omitempty"`
	// Transform names a registered parameter transform.
	Transform string `json:"transform,omitempty"`
}

// mappingTable is the persisted ide-mappings/<ide>.json shape.
type mappingTable struct {
	Version   int                 `json:"version"`
	Tools     map[string]toolRule `json:"tools"`
	Canonical []string            `json:"canonical,omitempty"`
}

// Decision is the mapper's disposition for one emitted tool call.
type Decision struct {
	Action string             `json:"action"`
	Call   datatypes.ToolCall `json:"call"`
	// Target is the canonical tool the call maps to, for execute and
	// transform decisions.
	Target string `json:"target,omitempty"`
}

// Mapper loads and caches per-IDE mapping tables.
//
// Thread Safety: safe for concurrent use. Tables refresh on TTL expiry
// and on filesystem change events.
type Mapper struct {
	dir string

	mu       sync.RWMutex
	tables   map[string]*mappingTable
	loadedAt map[string]time.Time
}

// NewMapper binds the mapper to <configRoot>/ide-mappings.
func NewMapper(configRoot string) *Mapper {
	return &Mapper{
		dir:      filepath.Join(configRoot, "ide-mappings"),
		tables:   make(map[string]*mappingTable),
		loadedAt: make(map[string]time.Time),
	}
}

// ParseModel splits a requested model string into the bare model id and
// its IDE suffix, if one is present. Both "model:cursor" and
// "model-cursor" are accepted.
func ParseModel(model string) (modelID, ide string) {
	for _, sep := range []string{":", "-"} {
		idx := strings.LastIndex(model, sep)
		if idx <= 0 || idx == len(model)-1 {
			continue
		}
		suffix := strings.ToLower(model[idx+1:])
		if knownIDEs[suffix] {
			return model[:idx], suffix
		}
	}
	return model, ""
}

// table returns the mapping table for an IDE, loading or refreshing as
// needed. Falls back to the default table, then to an empty one.
func (m *Mapper) table(ide string) *mappingTable {
	if ide == "" {
		ide = defaultMapping
	}

	m.mu.RLock()
	t, ok := m.tables[ide]
	fresh := ok && time.Since(m.loadedAt[ide]) < tableTTL
	m.mu.RUnlock()
	if fresh {
		return t
	}

	loaded := m.loadTable(ide)
	if loaded == nil && ide != defaultMapping {
		loaded = m.loadTable(defaultMapping)
	}
	if loaded == nil {
		loaded = &mappingTable{Version: 1, Tools: map[string]toolRule{}}
	}

	m.mu.Lock()
	m.tables[ide] = loaded
	m.loadedAt[ide] = time.Now()
	m.mu.Unlock()
	return loaded
}

func (m *Mapper) loadTable(name string) *mappingTable {
	var t mappingTable
	path := filepath.Join(m.dir, name+".json")
	if err := storage.LoadJSON(path, &t); err != nil {
		return nil
	}
	if t.Tools == nil {
		t.Tools = map[string]toolRule{}
	}
	return &t
}

// Decide classifies every emitted tool call against the IDE's table and
// the canonical tool set in the request.
func (m *Mapper) Decide(ide string, calls []datatypes.ToolCall, requestTools []datatypes.ToolDefinition) []Decision {
	t := m.table(ide)

	canonical := make(map[string]bool, len(requestTools)+len(t.Canonical))
	for _, tool := range requestTools {
		canonical[tool.Name] = true
	}
	for _, name := range t.Canonical {
		canonical[name] = true
	}

	out := make([]Decision, 0, len(calls))
	for _, call := range calls {
		out = append(out, m.decideOne(t, canonical, call))
	}
	return out
}

func (m *Mapper) decideOne(t *mappingTable, canonical map[string]bool, call datatypes.ToolCall) Decision {
	name := call.Function.Name

	if rule, ok := t.Tools[name]; ok {
		switch rule.Action {
		case ActionTransform:
			transformed, err := applyTransform(rule.Transform, call, rule.Target)
			if err != nil {
				slog.Warn("tool transform failed, passing through",
					"tool", name, "transform", rule.Transform, "error", err)
				return Decision{Action: ActionPassthrough, Call: call}
			}
			return Decision{Action: ActionTransform, Call: transformed, Target: rule.Target}
		case ActionPassthrough:
			return Decision{Action: ActionPassthrough, Call: call}
		case ActionExecute:
			target := rule.Target
			if target == "" {
				target = name
			}
			return Decision{Action: ActionExecute, Call: call, Target: target}
		}
	}

	// No rule: canonical tools execute as-is, everything else is
	// unknown.
	if canonical[name] {
		return Decision{Action: ActionExecute, Call: call, Target: name}
	}
	return Decision{Action: ActionUnknown, Call: call}
}

// applyTransform rewrites a call's parameters via a named transform.
func applyTransform(name string, call datatypes.ToolCall, target string) (datatypes.ToolCall, error) {
	fn, ok := transforms[name]
	if !ok {
		return call, fmt.Errorf("unregistered transform %q", name)
	}
	return fn(call, target)
}

type transformFunc func(call datatypes.ToolCall, target string) (datatypes.ToolCall, error)

var transforms = map[string]transformFunc{
	"find_replace_to_edits": findReplaceToEdits,
}

// findReplaceToEdits converts IDE-style {find, replace} parameters into
// the canonical edits list: {edits: [{oldText, newText}]}.
func findReplaceToEdits(call datatypes.ToolCall, target string) (datatypes.ToolCall, error) {
	args, ok := call.Function.ArgumentMap()
	if !ok {
		return call, fmt.Errorf("arguments are not a JSON object")
	}
	find, findOK := args["find"].(string)
	replace, replaceOK := args["replace"].(string)
	if !findOK || !replaceOK {
		return call, fmt.Errorf("find/replace parameters missing")
	}

	rewritten := map[string]any{
		"edits": []map[string]string{{"oldText": find, "newText": replace}},
	}
	if path, ok := args["path"].(string); ok {
		rewritten["path"] = path
	}
	data, err := json.Marshal(rewritten)
	if err != nil {
		return call, fmt.Errorf("marshal transformed arguments: %w", err)
	}

	call.Function.Name = target
	call.Function.Arguments = string(data)
	return call, nil
}

// Watch invalidates cached tables when mapping files change on disk.
// Blocks until ctx is done; run it on its own goroutine.
func (m *Mapper) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ide-mappings watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.dir); err != nil {
		// A missing directory is fine; TTL expiry still picks up files
		// created later.
		slog.Info("ide-mappings directory not watchable, relying on TTL refresh",
			"dir", m.dir, "error", err)
		<-ctx.Done()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := strings.TrimSuffix(filepath.Base(event.Name), ".json")
			m.mu.Lock()
			delete(m.tables, name)
			delete(m.loadedAt, name)
			m.mu.Unlock()
			slog.Debug("ide mapping table invalidated", "ide", name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("ide-mappings watcher error", "error", err)
		}
	}
}
