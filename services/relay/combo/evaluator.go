// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package combo tests (main, executor) model pairs in dual mode and
// recommends the best pairing.
//
// Pairs run the tool-probe catalog through the real router, cheapest
// tier first. A pair that fails the qualifying gate after the simple
// tier is disqualified before the expensive tiers run. A main model
// whose planning step keeps failing is excluded mid-run and its
// remaining pairs are skipped.
package combo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/failurelog"
	"github.com/AleutianAI/AleutianRelay/services/relay/probe"
	"github.com/AleutianAI/AleutianRelay/services/relay/provider"
	"github.com/AleutianAI/AleutianRelay/services/relay/router"
)

const (
	// qualifyingGateFloor is the minimum simple-tier average a pair must
	// reach to run the medium and complex tiers.
	qualifyingGateFloor = 50.0

	// mainExclusionThreshold: planning failures before a main model is
	// excluded from the rest of the run.
	mainExclusionThreshold = 3

	comboTurnTimeout = 90 * time.Second
)

// tierOrder walks cheapest to most expensive.
var tierOrder = []string{datatypes.TierSimple, datatypes.TierMedium, datatypes.TierComplex}

// ProgressFunc receives run lifecycle events (combo_test_progress,
// combo_test_result, combo_test_main_excluded, combo_test_error,
// combo_test_completed). Must not block.
type ProgressFunc func(event string, data map[string]any)

// RunParams describes one evaluation run.
type RunParams struct {
	Mains     []string
	Executors []string
	Provider  string
}

// Evaluator runs pair evaluations through the router.
type Evaluator struct {
	router   *router.Router
	store    *Store
	failures *failurelog.Log
	progress ProgressFunc
}

// NewEvaluator wires the evaluator. progress may be nil.
func NewEvaluator(r *router.Router, store *Store, failures *failurelog.Log, progress ProgressFunc) *Evaluator {
	return &Evaluator{router: r, store: store, failures: failures, progress: progress}
}

func (e *Evaluator) notify(event string, data map[string]any) {
	if e.progress != nil {
		e.progress(event, data)
	}
}

// Run evaluates every (main, executor) pair and persists a record per
// pair. Pairs run sequentially: every call lands on the same local
// inference host, so per-model concurrency stays at one by construction.
// Returns the records in run order.
func (e *Evaluator) Run(ctx context.Context, params RunParams) ([]datatypes.ComboRecord, error) {
	if len(params.Mains) == 0 || len(params.Executors) == 0 {
		return nil, fmt.Errorf("combo run needs at least one main and one executor candidate")
	}

	ctx, span := otel.Tracer("relay/combo").Start(ctx, "combo.Run")
	span.SetAttributes(
		attribute.Int("combo.mains", len(params.Mains)),
		attribute.Int("combo.executors", len(params.Executors)),
	)
	defer span.End()

	savedCfg := e.router.Snapshot()
	defer e.router.Configure(savedCfg)

	excluded := make(map[string]bool)
	records := make([]datatypes.ComboRecord, 0, len(params.Mains)*len(params.Executors))

	for _, mainID := range params.Mains {
		planningFailures := 0
		for _, executorID := range params.Executors {
			if mainID == executorID {
				continue
			}
			if ctx.Err() != nil {
				e.notify("combo_test_error", map[string]any{"error": "run canceled"})
				return records, ctx.Err()
			}
			if excluded[mainID] {
				break
			}

			e.notify("combo_test_progress", map[string]any{
				"stage": "pair_started", "main": mainID, "executor": executorID,
			})
			record := e.evaluatePair(ctx, mainID, executorID, params.Provider, &planningFailures)
			records = append(records, record)

			if err := e.store.Save(record); err != nil {
				slog.Error("combo record not persisted", "pair", record.Key(), "error", err)
			}
			e.notify("combo_test_result", map[string]any{
				"main": mainID, "executor": executorID,
				"score": record.OverallScore, "disqualified": record.Disqualified,
			})

			if planningFailures >= mainExclusionThreshold {
				excluded[mainID] = true
				e.notify("combo_test_main_excluded", map[string]any{"main": mainID})
				e.recordComboFailure(mainID, executorID, datatypes.ErrComboExcluded,
					fmt.Sprintf("combo excluded: main %s dropped after %d planning failures", mainID, planningFailures))
			}
		}
	}

	// Remaining pairs for an excluded main get marked, not silently
	// dropped; a record exists for every pair the run touched.
	for i := range records {
		if excluded[records[i].MainModelID] {
			records[i].MainExcluded = true
			if err := e.store.Save(records[i]); err != nil {
				slog.Error("combo record not persisted", "pair", records[i].Key(), "error", err)
			}
		}
	}

	e.notify("combo_test_completed", map[string]any{"pairs": len(records)})
	return records, nil
}

// evaluatePair runs the tiered tool probes for one pair.
func (e *Evaluator) evaluatePair(ctx context.Context, mainID, executorID, providerName string, planningFailures *int) datatypes.ComboRecord {
	e.router.Configure(router.Config{
		MainModelID:     mainID,
		ExecutorModelID: executorID,
		EnableDualModel: true,
		Provider:        providerName,
		Timeout:         comboTurnTimeout,
	})

	record := datatypes.ComboRecord{
		MainModelID:     mainID,
		ExecutorModelID: executorID,
		TierScores:      make(map[string]float64),
		CategoryScores:  make(map[string]float64),
		Timestamp:       time.Now().UTC(),
	}

	byTier := make(map[string][]probe.Probe)
	for _, p := range probe.ToolProbes() {
		byTier[p.Tier] = append(byTier[p.Tier], p)
	}

	var totalLatency int64
	var totalScore float64
	ran := 0

	for _, tier := range tierOrder {
		for _, p := range byTier[tier] {
			outcome := e.runTest(ctx, p, tier, planningFailures)
			record.Outcomes = append(record.Outcomes, outcome)
			totalLatency += outcome.LatencyMS
			totalScore += outcome.Score
			ran++
			if outcome.Pass {
				record.Passed++
			} else {
				record.Failed++
			}
			e.notify("combo_test_progress", map[string]any{
				"stage": "test_finished",
				"main":  mainID, "executor": executorID,
				"test": p.Name, "tier": tier, "pass": outcome.Pass,
			})
		}
		record.TierScores[tier] = tierMean(record.Outcomes, tier)

		// Qualifying gate: a pair below the floor after the simple tier
		// never reaches medium or complex.
		if tier == datatypes.TierSimple && record.TierScores[tier] < qualifyingGateFloor {
			record.Disqualified = true
			e.recordComboFailure(mainID, executorID, datatypes.ErrQualifyingGate,
				fmt.Sprintf("qualifying gate failure: simple tier scored %.0f, floor is %.0f",
					record.TierScores[tier], qualifyingGateFloor))
			break
		}
	}

	if ran > 0 {
		record.OverallScore = totalScore / float64(ran)
		record.AvgLatencyMS = totalLatency / int64(ran)
	}
	record.CategoryScores[probe.CategoryTool] = record.OverallScore
	return record
}

// runTest runs one probe through the dual-mode router and evaluates the
// executor's output with the probe's own evaluator.
func (e *Evaluator) runTest(ctx context.Context, p probe.Probe, tier string, planningFailures *int) datatypes.ComboTestOutcome {
	outcome := datatypes.ComboTestOutcome{
		TestName: p.Name,
		Tier:     tier,
		Category: p.Category,
	}

	result, err := e.router.Route(ctx, router.TurnParams{
		Messages: p.Messages,
		Tools:    p.Tools,
	})
	if err != nil {
		outcome.Error = err.Error()
		*planningFailures++
		return outcome
	}
	if result.FailedPhase != "" {
		outcome.Error = result.FailureDetail
		outcome.LatencyMS = result.Latency.TotalMS
		if result.FailedPhase == router.PhasePlanning {
			*planningFailures++
		}
		return outcome
	}
	outcome.LatencyMS = result.Latency.TotalMS

	verdict := p.Evaluate(syntheticResponse(result))
	outcome.Pass = verdict.Pass
	outcome.Score = verdict.Score

	// Planning quality shows up as suppression/schema misses even when
	// the call itself succeeded.
	if !verdict.Pass && (p.Name == "tool_suppression" || p.Name == "tool_schema") {
		*planningFailures++
	}
	if result.Partial {
		*planningFailures++
		e.recordComboFailure(e.router.Snapshot().MainModelID, e.router.Snapshot().ExecutorModelID,
			datatypes.ErrMainTimeout, "main model timeout during planning")
	}
	return outcome
}

// recordComboFailure journals a combo failure. The rubric classifies by
// substring, so rawError must lead with the error-type phrase.
func (e *Evaluator) recordComboFailure(mainID, executorID, _ string, rawError string) {
	if e.failures == nil {
		return
	}
	if _, err := e.failures.LogFailure(failurelog.LogParams{
		ModelID:         mainID,
		ExecutorModelID: executorID,
		Category:        datatypes.CategoryComboPairing,
		RawError:        rawError,
	}); err != nil {
		slog.Warn("combo failure not journaled", "error", err)
	}
}

// syntheticResponse adapts a routed turn back into the response shape
// probe evaluators consume.
func syntheticResponse(result *router.TurnResult) *provider.Response {
	return provider.SynthesizeResponse(result.FinalResponse)
}

func tierMean(outcomes []datatypes.ComboTestOutcome, tier string) float64 {
	var sum float64
	count := 0
	for _, o := range outcomes {
		if o.Tier == tier {
			sum += o.Score
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
