// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package failurelog

import "github.com/AleutianAI/AleutianRelay/services/relay/datatypes"

// patternDef is a catalog entry: the (category, errorType) key a failure
// must match, plus the pattern's identity and severity.
type patternDef struct {
	id       string
	name     string
	severity string
	category string
	errType  string
}

// patternCatalog is the fixed set of recognized failure patterns.
var patternCatalog = []patternDef{
	{"RAG_NOT_USED_BEFORE_READ", "RAG not consulted before file read", datatypes.SeverityMedium,
		datatypes.CategoryRAG, datatypes.ErrRAGNotUsed},
	{"TOOL_SUPPRESSION", "Tool call suppressed when required", datatypes.SeverityHigh,
		datatypes.CategoryTool, datatypes.ErrToolNotCalled},
	{"WRONG_TOOL_SELECTION", "Wrong tool selected", datatypes.SeverityMedium,
		datatypes.CategoryTool, datatypes.ErrWrongTool},
	{"PARAM_EXTRACTION_FAILURE", "Tool parameters extracted incorrectly", datatypes.SeverityMedium,
		datatypes.CategoryTool, datatypes.ErrBadParams},
	{"INTENT_MISUNDERSTANDING", "User intent misread by planner", datatypes.SeverityMedium,
		datatypes.CategoryIntent, datatypes.ErrIntentMisread},
	{"REASONING_FAILURE", "Multi-step reasoning breakdown", datatypes.SeverityHigh,
		datatypes.CategoryReasoning, datatypes.ErrUnknown},
	{"TOOL_HALLUCINATION", "Nonexistent tool invoked", datatypes.SeverityCritical,
		datatypes.CategoryTool, datatypes.ErrHallucination},

	// Combo-specific patterns observed during paired runs.
	{"COMBO_MAIN_TIMEOUT", "Main model timing out during planning", datatypes.SeverityHigh,
		datatypes.CategoryComboPairing, datatypes.ErrMainTimeout},
	{"COMBO_POOR_COORDINATION", "Planner and executor disagree on intent", datatypes.SeverityMedium,
		datatypes.CategoryComboPairing, datatypes.ErrPoorCoordination},
	{"COMBO_SCORE_TOO_LOW", "Pair scoring below operating floor", datatypes.SeverityMedium,
		datatypes.CategoryComboPairing, datatypes.ErrScoreTooLow},
	{"COMBO_MAIN_EXCLUDED", "Main model excluded mid-run", datatypes.SeverityHigh,
		datatypes.CategoryComboPairing, datatypes.ErrComboExcluded},
	{"COMBO_QUALIFYING_GATE", "Pair failed the qualifying gate", datatypes.SeverityLow,
		datatypes.CategoryComboPairing, datatypes.ErrQualifyingGate},
	{"COMBO_FORMAT_MISMATCH", "Tool-call format incompatibility between pair", datatypes.SeverityHigh,
		datatypes.CategoryComboPairing, datatypes.ErrFormatCompatibility},
}

// detectPattern returns the catalog pattern id for a (category, errorType)
// pair, or empty when no pattern matches.
func detectPattern(category, errorType string) string {
	for _, def := range patternCatalog {
		if def.category == category && def.errType == errorType {
			return def.id
		}
	}
	return ""
}

// patternDefByID looks up a catalog entry.
func patternDefByID(id string) (patternDef, bool) {
	for _, def := range patternCatalog {
		if def.id == id {
			return def, true
		}
	}
	return patternDef{}, false
}
