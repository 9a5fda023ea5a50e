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
	"fmt"
	"testing"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
	"github.com/AleutianAI/AleutianRelay/services/relay/provider"
)

// scriptedClient replays a fixed sequence of latencies; a negative
// latency means the call fails.
type scriptedClient struct {
	latencies []int64
	calls     int
}

func (c *scriptedClient) Call(_ context.Context, _ provider.CallOptions) (*provider.Response, error) {
	if c.calls >= len(c.latencies) {
		return nil, fmt.Errorf("unexpected call %d", c.calls)
	}
	lat := c.latencies[c.calls]
	c.calls++
	if lat < 0 {
		return nil, &provider.CallError{Kind: provider.ErrKindTransport, Err: fmt.Errorf("connection refused")}
	}
	resp := provider.SynthesizeResponse(datatypes.Message{Role: "assistant", Content: "pong"})
	resp.LatencyMS = lat
	return resp, nil
}

func (c *scriptedClient) Name() string { return provider.ProviderLocal }

func TestRunSweepFullLadder(t *testing.T) {
	client := &scriptedClient{latencies: []int64{400, 500, 700, 1100, 1900, 3500}}

	curve := runSweep(context.Background(), client, "m", 0)
	if len(curve.Points) != 6 {
		t.Fatalf("points = %d, want 6", len(curve.Points))
	}
	if curve.MaxUsableContext != 65536 {
		t.Errorf("MaxUsableContext = %d, want 65536", curve.MaxUsableContext)
	}
	if curve.MinLatencyMS != 400 {
		t.Errorf("MinLatencyMS = %d, want 400", curve.MinLatencyMS)
	}
	if curve.SpeedRating != datatypes.SpeedExcellent {
		t.Errorf("SpeedRating = %s, want excellent", curve.SpeedRating)
	}
	// Largest size within 2x the minimum: 700ms at 8192.
	if curve.RecommendedContext != 8192 {
		t.Errorf("RecommendedContext = %d, want 8192", curve.RecommendedContext)
	}
}

func TestRunSweepStopsAtLatencyCeiling(t *testing.T) {
	client := &scriptedClient{latencies: []int64{1000, 9000}}

	curve := runSweep(context.Background(), client, "m", 0)
	if len(curve.Points) != 2 {
		t.Fatalf("points = %d, want 2 (ceiling point recorded, walk stopped)", len(curve.Points))
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want walk stopped after the ceiling", client.calls)
	}
	if curve.MaxUsableContext != 4096 {
		t.Errorf("MaxUsableContext = %d, want 4096", curve.MaxUsableContext)
	}
}

func TestRunSweepHonorsMaxContext(t *testing.T) {
	client := &scriptedClient{latencies: []int64{400, 500, 700}}

	curve := runSweep(context.Background(), client, "m", 8192)
	if len(curve.Points) != 3 {
		t.Fatalf("points = %d, want 3 up to the model max", len(curve.Points))
	}
	if curve.MaxUsableContext != 8192 {
		t.Errorf("MaxUsableContext = %d, want 8192", curve.MaxUsableContext)
	}
}

func TestRunSweepStopsOnError(t *testing.T) {
	client := &scriptedClient{latencies: []int64{600, -1}}

	curve := runSweep(context.Background(), client, "m", 0)
	if len(curve.Points) != 1 {
		t.Fatalf("points = %d, want 1 before the failure", len(curve.Points))
	}
	if curve.MaxUsableContext != 2048 {
		t.Errorf("MaxUsableContext = %d, want 2048", curve.MaxUsableContext)
	}
}

func TestRunSweepEmptyOnImmediateFailure(t *testing.T) {
	client := &scriptedClient{latencies: []int64{-1}}

	curve := runSweep(context.Background(), client, "m", 0)
	if len(curve.Points) != 0 || curve.RecommendedContext != 0 || curve.SpeedRating != "" {
		t.Errorf("curve = %+v, want empty", curve)
	}
}

func TestSpeedRating(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{100, datatypes.SpeedExcellent},
		{499, datatypes.SpeedExcellent},
		{500, datatypes.SpeedGood},
		{1999, datatypes.SpeedGood},
		{2000, datatypes.SpeedAcceptable},
		{4999, datatypes.SpeedAcceptable},
		{5000, datatypes.SpeedSlow},
		{9999, datatypes.SpeedSlow},
		{10000, datatypes.SpeedVerySlow},
	}
	for _, tc := range cases {
		if got := speedRating(tc.ms); got != tc.want {
			t.Errorf("speedRating(%d) = %s, want %s", tc.ms, got, tc.want)
		}
	}
}

func TestRecommendContextPicksLargestWithinLatencyBound(t *testing.T) {
	points := []datatypes.LatencyPoint{
		{ContextSize: 2048, LatencyMS: 1000},
		{ContextSize: 4096, LatencyMS: 1500},
		{ContextSize: 8192, LatencyMS: 2100},
		{ContextSize: 16384, LatencyMS: 5000},
	}
	if got := recommendContext(points, 1000); got != 4096 {
		t.Errorf("recommendContext = %d, want 4096", got)
	}
}
