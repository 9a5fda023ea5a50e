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
	"fmt"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/registry"
)

// AutoSelect picks the best dual-model pair from stored profiles: the
// main by suppression+selection (a planner must know when NOT to act),
// the executor by emit+schema (an executor must produce valid calls).
func AutoSelect(profiles *registry.Registry) (mainID, executorID string, err error) {
	mains, err := profiles.ByRole(datatypes.RoleMain, datatypes.RoleBoth)
	if err != nil {
		return "", "", fmt.Errorf("auto-select mains: %w", err)
	}
	executors, err := profiles.ByRole(datatypes.RoleExecutor, datatypes.RoleBoth)
	if err != nil {
		return "", "", fmt.Errorf("auto-select executors: %w", err)
	}
	if len(mains) == 0 || len(executors) == 0 {
		return "", "", fmt.Errorf("auto-select needs at least one main-capable and one executor-capable profile")
	}

	best := mains[0]
	bestScore := mainSelectScore(best.Scores)
	for _, p := range mains[1:] {
		if s := mainSelectScore(p.Scores); s > bestScore {
			best, bestScore = p, s
		}
	}
	mainID = best.ModelID

	bestExec := executors[0]
	bestExecScore := executorSelectScore(bestExec.Scores)
	for _, p := range executors[1:] {
		if s := executorSelectScore(p.Scores); s > bestExecScore {
			bestExec, bestExecScore = p, s
		}
	}
	executorID = bestExec.ModelID

	return mainID, executorID, nil
}

func mainSelectScore(s datatypes.RawScores) float64 {
	return s.ToolSuppression + s.ToolSelection
}

func executorSelectScore(s datatypes.RawScores) float64 {
	return s.ToolEmit + s.ToolSchema
}
