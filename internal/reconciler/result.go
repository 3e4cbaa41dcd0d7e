package reconciler

import (
	"fmt"
	"time"

	"gst-ledger-reconciler/internal/aggregator"
	"gst-ledger-reconciler/pkg/errors"

	"github.com/shopspring/decimal"
)

// Result contains the outcome of one run.
type Result struct {
	RunID         string               `json:"run_id"`
	Profile       string               `json:"profile"`
	Epsilon       decimal.Decimal      `json:"epsilon"`
	Sections      []*SectionResult     `json:"sections"`
	Totals        []*aggregator.Totals `json:"totals,omitempty"`
	Warnings      []string             `json:"warnings,omitempty"`
	Preprocessing *PreprocessingStats  `json:"preprocessing,omitempty"`
	StartedAt     time.Time            `json:"started_at"`
	Duration      time.Duration        `json:"duration"`
}

// ResultSummary adds up the section counts of a run.
type ResultSummary struct {
	Sections         int `json:"sections"`
	Reconciled       int `json:"reconciled"`
	Skipped          int `json:"skipped"`
	Matched          int `json:"matched"`
	Clean            int `json:"clean"`
	WithDiffs        int `json:"with_diffs"`
	FallbackResolved int `json:"fallback_resolved"`
	MissingSource    int `json:"missing_source"`
	MissingTarget    int `json:"missing_target"`
	DiffFields       int `json:"diff_fields"`
}

// Reconciled returns the number of sections that ran to the end.
func (r *Result) Reconciled() int {
	n := 0
	for _, section := range r.Sections {
		if section.State.Completed() {
			n++
		}
	}
	return n
}

// Summary adds up the counts of every completed section.
func (r *Result) Summary() ResultSummary {
	summary := ResultSummary{Sections: len(r.Sections)}
	for _, section := range r.Sections {
		if section.Skipped() {
			summary.Skipped++
			continue
		}
		if !section.State.Completed() {
			continue
		}
		summary.Reconciled++
		summary.Matched += section.Summary.Matched
		summary.Clean += section.Summary.Clean
		summary.WithDiffs += section.Summary.WithDiffs
		summary.FallbackResolved += section.Summary.FallbackResolved
		summary.MissingSource += section.Summary.MissingSource
		summary.MissingTarget += section.Summary.MissingTarget
		summary.DiffFields += section.Summary.DiffFields
	}
	return summary
}

// Section returns the result of the section called name.
func (r *Result) Section(name string) (*SectionResult, bool) {
	for _, section := range r.Sections {
		if section.Name == name {
			return section, true
		}
	}
	return nil, false
}

// Errors collects the errors of the skipped sections, in profile order.
func (r *Result) Errors() *errors.ErrorSummary {
	var errs []*errors.ReconcilerError
	for _, section := range r.Sections {
		if section.Skipped() && section.Err != nil {
			errs = append(errs, section.Err)
		}
	}
	return errors.NewErrorSummary(errs)
}

// DiffColumns returns the diff headers written by the reconciled sections,
// keyed by source table name.
func (r *Result) DiffColumns() map[string][]string {
	columns := make(map[string][]string)
	for _, section := range r.Sections {
		if section.Skipped() || len(section.DiffColumns) == 0 {
			continue
		}
		columns[section.SourceTable] = append(columns[section.SourceTable], section.DiffColumns...)
	}
	return columns
}

// HasIssues reports whether any section found a difference, a missing
// record or was skipped.
func (r *Result) HasIssues() bool {
	s := r.Summary()
	return s.Skipped > 0 || s.WithDiffs > 0 || s.FallbackResolved > 0 || s.MissingSource > 0 || s.MissingTarget > 0
}

// String returns a short description of the result.
func (r *Result) String() string {
	s := r.Summary()
	return fmt.Sprintf("Result{RunID: %s, Profile: %s, Sections: %d/%d, Matched: %d, Fallback: %d, Missing: %d/%d}",
		r.RunID, r.Profile, s.Reconciled, s.Sections, s.Matched, s.FallbackResolved, s.MissingSource, s.MissingTarget)
}
