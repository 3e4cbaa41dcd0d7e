package matcher

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FallbackMatcher pairs leftover keys that are the same document under a
// changed identifier: same secondary identity and every mapped amount equal
// within tolerance.
//
// Matching is greedy. Source leftovers are visited in row order and each
// takes the first qualifying target leftover. This is not an optimal
// assignment, and the tie-break is deterministic.
type FallbackMatcher struct {
	Config *MatchingConfig
}

// NewFallbackMatcher creates a fallback matcher with the specified configuration
func NewFallbackMatcher(config *MatchingConfig) *FallbackMatcher {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &FallbackMatcher{Config: config}
}

// Resolve pairs leftovers of result in place and returns the new pairs.
// Paired keys leave the unmatched lists; only their identifier fields are
// marked DIFF, and the target identifier becomes the identifier payload.
// Without a secondary identity on both sides nothing is paired.
func (fm *FallbackMatcher) Resolve(source *SourceIndex, target *TargetIndex, layout Layout, result *MatchResult) []FallbackPair {
	if !fm.Config.EnableFallback || !layout.HasSecondary() {
		return nil
	}
	if len(result.UnmatchedSource) == 0 || len(result.UnmatchedTarget) == 0 {
		return nil
	}

	remaining := append([]string(nil), result.UnmatchedTarget...)
	var leftover []string
	var pairs []FallbackPair

	for _, sourceKey := range result.UnmatchedSource {
		candidate := fm.firstCandidate(sourceKey, remaining, source, target, layout)
		if candidate < 0 {
			leftover = append(leftover, sourceKey)
			continue
		}

		targetKey := remaining[candidate]
		remaining = append(remaining[:candidate], remaining[candidate+1:]...)
		pairs = append(pairs, FallbackPair{SourceKey: sourceKey, TargetKey: targetKey})

		sourceRow, _ := source.Row(sourceKey)
		result.mark(SideSource, sourceRow, source.Column)
		for _, row := range target.Rows(targetKey) {
			result.mark(SideTarget, row, target.Column)
		}
		result.addDiff(sourceKey, IdentifierKey, FieldDiff{
			Text:   strings.TrimSpace(target.First(targetKey).Cell(target.Column).String()),
			IsText: true,
		})
	}

	result.UnmatchedSource = leftover
	result.UnmatchedTarget = remaining
	result.Fallback = append(result.Fallback, pairs...)
	return pairs
}

// firstCandidate returns the position in remaining of the first target key
// that qualifies for sourceKey, or -1.
func (fm *FallbackMatcher) firstCandidate(sourceKey string, remaining []string, source *SourceIndex, target *TargetIndex, layout Layout) int {
	sourceID := source.Record(sourceKey).Cell(layout.SourceSecondary)
	if KeyOf(sourceID) == "" {
		return -1
	}

	values := make([]decimal.Decimal, len(layout.Fields))
	for i, field := range layout.Fields {
		values[i] = source.Value(sourceKey, field)
	}

	for i, targetKey := range remaining {
		targetID := target.First(targetKey).Cell(layout.TargetSecondary)
		if !SameIdentity(sourceID, targetID) {
			continue
		}
		if fm.amountsAgree(values, targetKey, target, layout) {
			return i
		}
	}
	return -1
}

func (fm *FallbackMatcher) amountsAgree(values []decimal.Decimal, targetKey string, target *TargetIndex, layout Layout) bool {
	for i, field := range layout.Fields {
		if !WithinTolerance(values[i], target.Aggregate(targetKey, field), fm.Config.Epsilon) {
			return false
		}
	}
	return true
}
