// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package probe

import (
	"context"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/provider"
)

// Context-latency sweep: walk exponentially growing context sizes and
// record how long a one-turn reply takes at each. The walk stops at the
// model's max context or at the first size whose latency crosses the
// ceiling, whichever comes first.

const (
	sweepLatencyCeilingMS = 8000
	sweepCallTimeout      = 90 * time.Second

	// charsPerToken matches the token estimator used everywhere else in
	// the relay: tokens = ceil(len/4).
	charsPerToken = 4
)

var sweepSizes = []int{2048, 4096, 8192, 16384, 32768, 65536}

// Speed-rating thresholds over the curve's minimum latency.
var speedThresholds = []struct {
	belowMS int64
	rating  string
}{
	{500, datatypes.SpeedExcellent},
	{2000, datatypes.SpeedGood},
	{5000, datatypes.SpeedAcceptable},
	{10000, datatypes.SpeedSlow},
}

func speedRating(minLatencyMS int64) string {
	for _, t := range speedThresholds {
		if minLatencyMS < t.belowMS {
			return t.rating
		}
	}
	return datatypes.SpeedVerySlow
}

// fillerBlock is repeated to pad the prompt up to the target context
// size. Prose padding, not random bytes, so tokenization stays near the
// chars-per-token estimate.
const fillerBlock = "The service processes each request in order and records the outcome before moving on. "

// runSweep measures the curve for one model. maxContext of zero means
// unknown; the walk then runs the full ladder.
func runSweep(ctx context.Context, client provider.Client, modelID string, maxContext int) *datatypes.ContextLatencyCurve {
	curve := &datatypes.ContextLatencyCurve{}

	for _, size := range sweepSizes {
		if maxContext > 0 && size > maxContext {
			break
		}
		if ctx.Err() != nil {
			break
		}

		latency, err := sweepProbe(ctx, client, modelID, size)
		if err != nil {
			// A failed point ends the walk; sizes past a failure are
			// not usable either.
			break
		}
		curve.Points = append(curve.Points, datatypes.LatencyPoint{ContextSize: size, LatencyMS: latency})
		curve.MaxUsableContext = size
		if curve.MinLatencyMS == 0 || latency < curve.MinLatencyMS {
			curve.MinLatencyMS = latency
		}
		if latency >= sweepLatencyCeilingMS {
			break
		}
	}

	if len(curve.Points) == 0 {
		return curve
	}

	curve.SpeedRating = speedRating(curve.MinLatencyMS)
	curve.RecommendedContext = recommendContext(curve.Points, curve.MinLatencyMS)
	return curve
}

// recommendContext picks the largest measured size whose latency stays
// within 2x the curve minimum. Growing context past that point buys
// window at a disproportionate interactive cost.
func recommendContext(points []datatypes.LatencyPoint, minLatencyMS int64) int {
	recommended := points[0].ContextSize
	for _, p := range points {
		if p.LatencyMS <= 2*minLatencyMS && p.LatencyMS < sweepLatencyCeilingMS {
			recommended = p.ContextSize
		}
	}
	return recommended
}

// sweepProbe issues one padded-context call and returns its wall-clock
// latency.
func sweepProbe(ctx context.Context, client provider.Client, modelID string, contextSize int) (int64, error) {
	targetChars := contextSize * charsPerToken
	// Leave headroom for the chat template and the reply.
	targetChars -= 512 * charsPerToken
	if targetChars < len(fillerBlock) {
		targetChars = len(fillerBlock)
	}
	var b strings.Builder
	b.Grow(targetChars + len(fillerBlock))
	for b.Len() < targetChars {
		b.WriteString(fillerBlock)
	}

	temp := float32(0)
	resp, err := client.Call(ctx, provider.CallOptions{
		ModelID: modelID,
		Messages: []datatypes.Message{
			{Role: "system", Content: b.String()},
			{Role: "user", Content: "Reply with the single word 'pong'."},
		},
		Temperature: &temp,
		MaxTokens:   8,
		Timeout:     sweepCallTimeout,
	})
	if err != nil {
		return 0, err
	}
	return resp.LatencyMS, nil
}
