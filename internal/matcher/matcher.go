package matcher

import (
	"fmt"
	"strings"

	"gst-ledger-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

// Side tells which table of a section an annotation belongs to.
type Side int

const (
	SideSource Side = iota
	SideTarget
)

// String returns the string representation of Side
func (s Side) String() string {
	switch s {
	case SideSource:
		return "source"
	case SideTarget:
		return "target"
	default:
		return "unknown"
	}
}

// Annotation is a DIFF marker the engine wants placed on one field.
type Annotation struct {
	Side   Side
	Row    int
	Column int
	Kind   models.MarkKind
}

// FieldDiff is the payload written into a diff column: a signed amount for
// numeric fields, the counterpart's text for identity fields.
type FieldDiff struct {
	Amount decimal.Decimal
	Text   string
	IsText bool
}

// Value converts the payload into a cell.
func (fd FieldDiff) Value() models.Value {
	if fd.IsText {
		return models.NewText(fd.Text)
	}
	return models.NewNumber(fd.Amount)
}

// String returns the payload as text.
func (fd FieldDiff) String() string {
	if fd.IsText {
		return fd.Text
	}
	return fd.Amount.StringFixed(2)
}

// FallbackPair is a leftover source key paired with a leftover target key
// that carries the same document under a different identifier.
type FallbackPair struct {
	SourceKey string
	TargetKey string
}

// MatchResult is the outcome of matching one section. Every indexed key of
// either side ends up in exactly one of Matched, Fallback or the unmatched
// lists.
type MatchResult struct {
	Matched         []string
	Fallback        []FallbackPair
	UnmatchedSource []string
	UnmatchedTarget []string

	// Diffs holds payloads by source key, then by field key.
	Diffs       map[string]map[string]FieldDiff
	Annotations []Annotation
}

// MatchSummary provides aggregate counts about a MatchResult
type MatchSummary struct {
	Matched          int `json:"matched"`
	Clean            int `json:"clean"`
	WithDiffs        int `json:"with_diffs"`
	FallbackResolved int `json:"fallback_resolved"`
	MissingSource    int `json:"missing_source"`
	MissingTarget    int `json:"missing_target"`
	DiffFields       int `json:"diff_fields"`
}

func newMatchResult() *MatchResult {
	return &MatchResult{
		Diffs: make(map[string]map[string]FieldDiff),
	}
}

func (r *MatchResult) mark(side Side, row, column int) {
	r.Annotations = append(r.Annotations, Annotation{
		Side:   side,
		Row:    row,
		Column: column,
		Kind:   models.MarkDiff,
	})
}

func (r *MatchResult) addDiff(key, field string, diff FieldDiff) {
	fields, ok := r.Diffs[key]
	if !ok {
		fields = make(map[string]FieldDiff)
		r.Diffs[key] = fields
	}
	fields[field] = diff
}

// Summary counts the keys in each outcome.
func (r *MatchResult) Summary() MatchSummary {
	summary := MatchSummary{
		Matched:          len(r.Matched),
		FallbackResolved: len(r.Fallback),
		MissingSource:    len(r.UnmatchedSource),
		MissingTarget:    len(r.UnmatchedTarget),
	}
	for _, key := range r.Matched {
		if len(r.Diffs[key]) > 0 {
			summary.WithDiffs++
		} else {
			summary.Clean++
		}
	}
	for _, fields := range r.Diffs {
		summary.DiffFields += len(fields)
	}
	return summary
}

// String returns a short description of the result.
func (r *MatchResult) String() string {
	s := r.Summary()
	return fmt.Sprintf("MatchResult{Matched: %d, Fallback: %d, MissingSource: %d, MissingTarget: %d, DiffFields: %d}",
		s.Matched, s.FallbackResolved, s.MissingSource, s.MissingTarget, s.DiffFields)
}

// MatchEngine compares the common keys of a source and a target index.
type MatchEngine struct {
	Config *MatchingConfig
}

// NewMatchEngine creates a new match engine with the specified configuration
func NewMatchEngine(config *MatchingConfig) *MatchEngine {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &MatchEngine{Config: config}
}

// Match computes the common keys, diffs every mapped field of each common
// key and collects the keys present on one side only. Leftover lists keep
// first-seen row order.
func (me *MatchEngine) Match(source *SourceIndex, target *TargetIndex, layout Layout) *MatchResult {
	result := newMatchResult()

	for _, key := range source.Keys() {
		if !target.Has(key) {
			result.UnmatchedSource = append(result.UnmatchedSource, key)
			continue
		}
		result.Matched = append(result.Matched, key)
		me.compareKey(key, source, target, layout, result)
	}

	for _, key := range target.Keys() {
		if !source.Has(key) {
			result.UnmatchedTarget = append(result.UnmatchedTarget, key)
		}
	}

	return result
}

func (me *MatchEngine) compareKey(key string, source *SourceIndex, target *TargetIndex, layout Layout, result *MatchResult) {
	sourceRow, _ := source.Row(key)
	sourceRec := source.Table.Record(sourceRow)
	targetRows := target.Rows(key)

	if layout.HasSecondary() {
		sourceID := sourceRec.Cell(layout.SourceSecondary)
		targetID := target.Table.Record(targetRows[0]).Cell(layout.TargetSecondary)
		if !SameIdentity(sourceID, targetID) {
			result.mark(SideSource, sourceRow, layout.SourceSecondary)
			result.mark(SideTarget, targetRows[0], layout.TargetSecondary)
			result.addDiff(key, SecondaryKey, FieldDiff{
				Text:   strings.TrimSpace(targetID.String()),
				IsText: true,
			})
		}
	}

	for _, field := range layout.Fields {
		diff := target.Aggregate(key, field).Sub(source.Value(key, field))
		if !DiffExceeds(diff, me.Config.Epsilon) {
			continue
		}

		contributing := targetRows
		if field.WholeDocument {
			contributing = targetRows[:1]
		}
		for _, row := range contributing {
			result.mark(SideTarget, row, field.TargetPos)
		}
		result.mark(SideSource, sourceRow, field.SourcePos)
		result.addDiff(key, field.Key(), FieldDiff{Amount: diff})
	}
}
