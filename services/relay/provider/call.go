// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package provider

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultCallTimeout applies when CallOptions.Timeout is zero.
const DefaultCallTimeout = 120 * time.Second

// retryBaseBackoff is the base for the single jittered retry on
// idempotent transport failures.
const retryBaseBackoff = 250 * time.Millisecond

// doCall runs one SDK call with timing, classification, and a single
// retry on transport errors. Chat completions have no side effects
// upstream, so the retry is safe.
func doCall(ctx context.Context, sdk *openai.Client, opts CallOptions) (*Response, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := buildRequest(opts)

	resp, latency, err := timedCompletion(ctx, sdk, req)
	if err == nil {
		return &Response{Raw: resp, LatencyMS: latency}, nil
	}

	ce := classify(err, latency)
	if ce.Kind == ErrKindTransport && ctx.Err() == nil {
		backoff := retryBaseBackoff + time.Duration(rand.Int63n(int64(retryBaseBackoff)))
		slog.Warn("transport error, retrying once", "model", opts.ModelID, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil, classify(ctx.Err(), latency)
		case <-time.After(backoff):
		}
		resp, latency, err = timedCompletion(ctx, sdk, req)
		if err == nil {
			return &Response{Raw: resp, LatencyMS: latency}, nil
		}
		ce = classify(err, latency)
	}
	return nil, ce
}

func timedCompletion(ctx context.Context, sdk *openai.Client, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, int64, error) {
	start := time.Now()
	resp, err := sdk.CreateChatCompletion(ctx, req)
	return resp, time.Since(start).Milliseconds(), err
}

// classify maps an SDK error onto the relay's error taxonomy.
func classify(err error, latencyMS int64) *CallError {
	ce := &CallError{Kind: ErrKindTransport, LatencyMS: latencyMS, Err: err}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		ce.Kind = ErrKindTimeout
		return ce
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		ce.Kind = ErrKindTimeout
		return ce
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		ce.StatusCode = apiErr.HTTPStatusCode
		switch {
		case apiErr.HTTPStatusCode >= 500:
			ce.Kind = ErrKindTransport
		case apiErr.HTTPStatusCode >= 400:
			ce.Kind = ErrKindProtocol
		}
		return ce
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		ce.StatusCode = reqErr.HTTPStatusCode
		if reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500 {
			ce.Kind = ErrKindProtocol
		}
		return ce
	}

	return ce
}
