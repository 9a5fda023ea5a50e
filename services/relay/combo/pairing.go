// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package combo

import (
	"fmt"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
)

// Suitability weights. Main models plan, so reasoning and retrieval
// dominate; executors act, so tool accuracy and speed dominate.
const (
	mainWReasoning    = 0.30
	mainWRAG          = 0.25
	mainWIntent       = 0.20
	mainWTrainability = 0.15
	mainWSelfCorr     = 0.10

	execWToolAccuracy = 0.50
	execWCleanliness  = 0.20
	execWIntent       = 0.15
	execWSpeed        = 0.15
)

// Compatibility adjustments.
const (
	bonusStrongComplement = 30
	bonusTrainableMain    = 20
	bonusFastExecutor     = 15
	penaltySlowExecutor   = 10
	bonusDifferentFamily  = 10

	antiPatternWarnLevel = 40
)

// speedBonus maps the sweep rating to the executor speed term.
var speedBonus = map[string]float64{
	datatypes.SpeedExcellent:  100,
	datatypes.SpeedGood:       80,
	datatypes.SpeedAcceptable: 60,
	datatypes.SpeedSlow:       30,
	datatypes.SpeedVerySlow:   10,
}

// Constraints bounds the recommendation search.
type Constraints struct {
	// VRAMLimitMB caps the pair's combined estimate. Zero means no cap.
	VRAMLimitMB int
}

// Recommend scores every (main, executor) pair drawn from the given
// profiles and returns the single best pairing with its reasons and
// warnings.
func Recommend(profiles []datatypes.ModelProfile, constraints Constraints) (*datatypes.PairingRecommendation, error) {
	if len(profiles) < 2 {
		return nil, fmt.Errorf("pairing needs at least two profiled models, have %d", len(profiles))
	}

	var best *datatypes.PairingRecommendation
	for i := range profiles {
		for j := range profiles {
			if i == j {
				continue
			}
			main, exec := &profiles[i], &profiles[j]
			if constraints.VRAMLimitMB > 0 &&
				main.VRAMEstimateMB+exec.VRAMEstimateMB > constraints.VRAMLimitMB {
				continue
			}
			rec := scorePair(main, exec)
			if best == nil || rec.Overall > best.Overall {
				best = rec
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no pairing fits within %d MB of VRAM", constraints.VRAMLimitMB)
	}
	return best, nil
}

// MainSuitability is the planner-fitness score for one profile.
func MainSuitability(s datatypes.RawScores) float64 {
	return mainWReasoning*s.Reasoning +
		mainWRAG*s.RAGUsage +
		mainWIntent*s.IntentRecognition +
		mainWTrainability*s.Trainability +
		mainWSelfCorr*s.SelfCorrection
}

// ExecutorSuitability is the actor-fitness score for one profile.
func ExecutorSuitability(p *datatypes.ModelProfile) float64 {
	s := p.Scores
	speed := speedBonus[datatypes.SpeedAcceptable]
	if p.LatencyCurve != nil && p.LatencyCurve.SpeedRating != "" {
		speed = speedBonus[p.LatencyCurve.SpeedRating]
	}
	return execWToolAccuracy*s.ToolAccuracy +
		execWCleanliness*(100-s.AntiPatternPenalty) +
		execWIntent*s.IntentRecognition +
		execWSpeed*speed
}

func scorePair(main, exec *datatypes.ModelProfile) *datatypes.PairingRecommendation {
	rec := &datatypes.PairingRecommendation{
		MainModelID:         main.ModelID,
		ExecutorModelID:     exec.ModelID,
		MainSuitability:     MainSuitability(main.Scores),
		ExecutorSuitability: ExecutorSuitability(exec),
	}

	compat := 50.0
	if main.Scores.Reasoning >= 70 && exec.Scores.ToolAccuracy >= 80 {
		compat += bonusStrongComplement
		rec.Reasons = append(rec.Reasons,
			fmt.Sprintf("%s plans well and %s executes tools reliably", main.ModelID, exec.ModelID))
	}
	if main.Scores.Trainability >= 80 {
		compat += bonusTrainableMain
		rec.Reasons = append(rec.Reasons,
			fmt.Sprintf("%s responds to corrective prompting", main.ModelID))
	}
	if exec.LatencyCurve != nil {
		switch exec.LatencyCurve.SpeedRating {
		case datatypes.SpeedExcellent, datatypes.SpeedGood:
			compat += bonusFastExecutor
			rec.Reasons = append(rec.Reasons,
				fmt.Sprintf("%s keeps turn latency low (%s)", exec.ModelID, exec.LatencyCurve.SpeedRating))
		case datatypes.SpeedSlow, datatypes.SpeedVerySlow:
			compat -= penaltySlowExecutor
			rec.Warnings = append(rec.Warnings,
				fmt.Sprintf("%s is %s; interactive turns will drag", exec.ModelID, exec.LatencyCurve.SpeedRating))
		}
	}
	if main.Family() != exec.Family() {
		compat += bonusDifferentFamily
		rec.Reasons = append(rec.Reasons, "different model families reduce correlated blind spots")
	}
	if exec.Scores.AntiPatternPenalty >= antiPatternWarnLevel {
		compat -= exec.Scores.AntiPatternPenalty / 2
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("%s shows output defects (penalty %.0f)", exec.ModelID, exec.Scores.AntiPatternPenalty))
	}

	if compat < 0 {
		compat = 0
	} else if compat > 100 {
		compat = 100
	}
	rec.Compatibility = compat
	rec.Overall = (rec.MainSuitability + rec.ExecutorSuitability + rec.Compatibility) / 3
	return rec
}
