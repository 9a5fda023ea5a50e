// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package idemap

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
)

// Extensions computes the executor tools an IDE's mapping does not
// cover. Those are appended to the exposed tool set and described in a
// system-prompt addendum so the model knows they exist beyond what the
// IDE advertised.
func (m *Mapper) Extensions(ide string, enabledTools []datatypes.ToolDefinition) (extra []datatypes.ToolDefinition, addendum string) {
	t := m.table(ide)

	covered := make(map[string]bool, len(t.Tools)+len(t.Canonical))
	for name, rule := range t.Tools {
		covered[name] = true
		if rule.Target != "" {
			covered[rule.Target] = true
		}
	}
	for _, name := range t.Canonical {
		covered[name] = true
	}

	for _, tool := range enabledTools {
		if !covered[tool.Name] {
			extra = append(extra, tool)
		}
	}
	if len(extra) == 0 {
		return nil, ""
	}

	var b strings.Builder
	b.WriteString("Beyond the tools your IDE advertises, these additional tools are available:\n")
	for _, tool := range extra {
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
	}
	return extra, strings.TrimRight(b.String(), "\n")
}
