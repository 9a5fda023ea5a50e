// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package router

import (
	"encoding/json"
	"strings"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
)

// fallbackIntent is returned whenever planning output cannot be parsed.
// The turn degrades to a plain response instead of failing.
func fallbackIntent() datatypes.Intent {
	return datatypes.Intent{
		SchemaVersion: datatypes.IntentSchemaVersion,
		Action:        datatypes.ActionRespond,
		Metadata:      datatypes.IntentMetadata{Reasoning: "could not parse"},
	}
}

// ParseIntent extracts the first JSON object from planning output and
// decodes it as an intent. Models wrap JSON in prose and markdown
// fences; both are tolerated. A missing, malformed or invalid record
// yields the fallback intent and ok=false.
func ParseIntent(text string) (datatypes.Intent, bool) {
	raw, ok := firstJSONObject(text)
	if !ok {
		return fallbackIntent(), false
	}

	var intent datatypes.Intent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return fallbackIntent(), false
	}
	if intent.SchemaVersion == 0 {
		intent.SchemaVersion = datatypes.IntentSchemaVersion
	}
	if !intent.IsValid() {
		return fallbackIntent(), false
	}
	return intent, true
}

// firstJSONObject returns the first balanced top-level JSON object in
// text, respecting string literals and escapes.
func firstJSONObject(text string) ([]byte, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return nil, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := []byte(text[start : i+1])
				if !json.Valid(candidate) {
					return nil, false
				}
				return candidate, true
			}
		}
	}
	return nil, false
}

// serializeIntent renders the intent record as the executor's literal
// user content.
func serializeIntent(intent datatypes.Intent) string {
	data, err := json.MarshalIndent(intent, "", "  ")
	if err != nil {
		return intent.Action
	}
	return string(data)
}
