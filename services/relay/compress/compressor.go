// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compress

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianRelay/services/relay/datatypes"
)

// Compression modes.
const (
	ModeConservative = "conservative"
	ModeAggressive   = "aggressive"
	ModeContextAware = "context_aware"
)

// Per-message actions decided before grouping.
const (
	actionPreserve = "preserve"
	actionCompress = "compress"
	actionDrop     = "drop"
)

const (
	defaultPreserveLastN    = 5
	defaultMaxSummaryLength = 300
	summarySnippetChars     = 80
)

// Options tunes one compression run. The zero value means conservative
// mode with defaults.
type Options struct {
	Mode string
	// PreserveLastN protects the tail of the transcript. Zero means the
	// default of 5.
	PreserveLastN int
	// PreserveToolCalls protects tool-call messages regardless of score.
	// Nil means true.
	PreserveToolCalls *bool
	// MaxSummaryLength bounds each synthesized summary. Zero means 300.
	MaxSummaryLength int
}

// Stats accounts for every input message. Preserved + Compressed +
// Dropped always equals the original length.
type Stats struct {
	Preserved        int     `json:"preserved"`
	Compressed       int     `json:"compressed"`
	Dropped          int     `json:"dropped"`
	OriginalTokens   int     `json:"original_tokens"`
	CompressedTokens int     `json:"compressed_tokens"`
	Ratio            float64 `json:"ratio"`
	DurationMS       int64   `json:"duration_ms"`
}

// Decision records what happened to one input message. Compress returns
// one decision per input, in input order, regardless of mode.
type Decision struct {
	Action         string `json:"action"`
	OriginalTokens int    `json:"original_tokens"`
	// CompressedTokens is this message's share of its group summary.
	// Set only for compressed messages.
	CompressedTokens int    `json:"compressed_tokens,omitempty"`
	Rationale        string `json:"rationale"`
}

// Result is one compression run's output.
type Result struct {
	Messages  []datatypes.Message `json:"messages"`
	Scores    []MessageScore      `json:"scores"`
	Decisions []Decision          `json:"decisions"`
	Stats     Stats               `json:"stats"`
}

// thresholds are a mode's operating parameters.
type thresholds struct {
	preserveAt float64
	dropAt     float64
	groupSize  int
}

func modeThresholds(mode string, scores []MessageScore) thresholds {
	switch mode {
	case ModeAggressive:
		return thresholds{preserveAt: 8, dropAt: 4, groupSize: 5}
	case ModeContextAware:
		med, mean := medianAndMean(scores)
		// Anchor on the run's own distribution: preserve above the
		// larger of median and mean, drop well below it.
		preserveAt := med
		if mean > preserveAt {
			preserveAt = mean
		}
		return thresholds{preserveAt: preserveAt + 1, dropAt: preserveAt - 2, groupSize: 4}
	default:
		return thresholds{preserveAt: 7, dropAt: 3, groupSize: 3}
	}
}

// EstimateTokens approximates token count as ceil(len/4), matching the
// sweep's padding math.
func EstimateTokens(content string) int {
	return (len(content) + 3) / 4
}

// Compress scores the transcript, folds consecutive low-value runs into
// summaries and drops noise, preserving the tail and tool traffic. The
// output never estimates to more tokens than the input: each group
// summary is capped at the tokens of the messages it replaces.
func Compress(messages []datatypes.Message, opts Options) *Result {
	start := time.Now()

	scores := ScoreMessages(messages)
	th := modeThresholds(opts.Mode, scores)

	preserveLastN := opts.PreserveLastN
	if preserveLastN <= 0 {
		preserveLastN = defaultPreserveLastN
	}
	preserveTools := opts.PreserveToolCalls == nil || *opts.PreserveToolCalls
	maxSummary := opts.MaxSummaryLength
	if maxSummary <= 0 {
		maxSummary = defaultMaxSummaryLength
	}

	decisions := make([]Decision, len(messages))
	for i, m := range messages {
		d := Decision{OriginalTokens: EstimateTokens(m.Content)}
		switch {
		case len(messages)-i <= preserveLastN:
			d.Action = actionPreserve
			d.Rationale = "within the preserved tail"
		case preserveTools && (len(m.ToolCalls) > 0 || m.ToolCallID != ""):
			d.Action = actionPreserve
			d.Rationale = "tool traffic"
		case scores[i].Score >= th.preserveAt:
			d.Action = actionPreserve
			d.Rationale = fmt.Sprintf("score %.1f at or above the preserve threshold %.1f", scores[i].Score, th.preserveAt)
		case scores[i].Score <= th.dropAt:
			d.Action = actionDrop
			d.Rationale = fmt.Sprintf("score %.1f at or below the drop threshold %.1f", scores[i].Score, th.dropAt)
		default:
			d.Action = actionCompress
			d.Rationale = fmt.Sprintf("mid score %.1f, folded into a group summary", scores[i].Score)
		}
		decisions[i] = d
	}

	result := &Result{Scores: scores, Decisions: decisions}
	for i := range decisions {
		result.Stats.OriginalTokens += decisions[i].OriginalTokens
	}

	// Fold consecutive same-action runs. Compress runs larger than the
	// mode's group size split into multiple groups.
	for i := 0; i < len(messages); {
		j := i
		for j < len(messages) && decisions[j].Action == decisions[i].Action {
			j++
		}
		switch decisions[i].Action {
		case actionPreserve:
			for k := i; k < j; k++ {
				result.Messages = append(result.Messages, messages[k])
				result.Stats.Preserved++
			}
		case actionDrop:
			result.Stats.Dropped += j - i
		case actionCompress:
			for k := i; k < j; k += th.groupSize {
				end := k + th.groupSize
				if end > j {
					end = j
				}
				groupTokens := 0
				for g := k; g < end; g++ {
					groupTokens += decisions[g].OriginalTokens
				}
				summary := summarizeGroup(messages[k:end], scores[k:end], maxSummary)
				// A summary longer than the run it replaces would grow the
				// transcript instead of shrinking it. Cap it at the group's
				// own token estimate; a zero-budget group gets no summary.
				if budget := groupTokens * 4; len(summary) > budget {
					summary = truncateBytes(summary, budget)
				}
				if summary != "" {
					result.Messages = append(result.Messages, datatypes.Message{
						Role:    "system",
						Content: summary,
						Source:  "compressor",
					})
				}
				spreadCompressedTokens(decisions[k:end], EstimateTokens(summary))
				result.Stats.Compressed += end - k
			}
		}
		i = j
	}

	for _, m := range result.Messages {
		result.Stats.CompressedTokens += EstimateTokens(m.Content)
	}
	if result.Stats.OriginalTokens > 0 {
		result.Stats.Ratio = float64(result.Stats.CompressedTokens) / float64(result.Stats.OriginalTokens)
	}
	result.Stats.DurationMS = time.Since(start).Milliseconds()
	return result
}

// summarizeGroup synthesizes one summary message from a compress group,
// quoting the top-3 highest-scoring members.
func summarizeGroup(group []datatypes.Message, scores []MessageScore, maxLen int) string {
	roles := make([]string, 0, len(group))
	seenRole := make(map[string]bool)
	seenType := make(map[string]bool)
	types := make([]string, 0, 4)
	for i, m := range group {
		if !seenRole[m.Role] {
			seenRole[m.Role] = true
			roles = append(roles, m.Role)
		}
		if !seenType[scores[i].Type] {
			seenType[scores[i].Type] = true
			types = append(types, scores[i].Type)
		}
	}

	order := make([]int, len(group))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return scores[order[a]].Score > scores[order[b]].Score })
	if len(order) > 3 {
		order = order[:3]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summarized %d messages [%s]; types: %s",
		len(group), strings.Join(roles, ","), strings.Join(types, ","))
	for _, idx := range order {
		snippet := strings.TrimSpace(group[idx].Content)
		snippet = strings.ReplaceAll(snippet, "\n", " ")
		if len(snippet) > summarySnippetChars {
			snippet = snippet[:summarySnippetChars] + "…"
		}
		fmt.Fprintf(&b, "; • [%s, %.0f] %s", scores[idx].Type, scores[idx].Score, snippet)
	}
	return truncateAtSentence(b.String(), maxLen)
}

// spreadCompressedTokens attributes a group summary's token estimate to
// the member decisions, front-loading the remainder.
func spreadCompressedTokens(group []Decision, summaryTokens int) {
	if len(group) == 0 {
		return
	}
	share := summaryTokens / len(group)
	rem := summaryTokens - share*len(group)
	for i := range group {
		group[i].CompressedTokens = share
		if i < rem {
			group[i].CompressedTokens++
		}
	}
}

// truncateBytes hard-cuts at n bytes, backing off any split rune. The
// summary text carries multibyte bullets, so a blind slice could leave
// invalid UTF-8 at the cut.
func truncateBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return strings.TrimSpace(cut)
}

// truncateAtSentence cuts at maxLen, backing up to the last sentence
// boundary when one exists past the halfway point.
func truncateAtSentence(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	for _, boundary := range []string{". ", "; ", "! ", "? "} {
		if idx := strings.LastIndex(cut, boundary); idx > maxLen/2 {
			return cut[:idx+1]
		}
	}
	return cut
}

func medianAndMean(scores []MessageScore) (median, mean float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	vals := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		vals[i] = s.Score
		sum += s.Score
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 0 {
		median = (vals[mid-1] + vals[mid]) / 2
	} else {
		median = vals[mid]
	}
	return median, sum / float64(len(vals))
}
