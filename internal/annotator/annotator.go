// Package annotator applies the outcome of a match onto the ledger tables:
// DIFF markers on disagreeing fields, MISSING on every field of records that
// have no counterpart, and diff payloads in the injected diff columns.
package annotator

import (
	"gst-ledger-reconciler/internal/matcher"
	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/pkg/logger"
)

// Stats counts what the annotator wrote.
type Stats struct {
	DiffMarks       int `json:"diff_marks"`
	MissingSource   int `json:"missing_source_records"`
	MissingTarget   int `json:"missing_target_records"`
	PayloadsWritten int `json:"payloads_written"`
}

// Annotator writes markers and diff payloads onto tables.
type Annotator struct {
	logger logger.Logger
}

// New creates an annotator logging through log, or through the global
// logger when log is nil.
func New(log logger.Logger) *Annotator {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Annotator{logger: log.WithComponent("annotator")}
}

// Annotate places the DIFF annotations of result and marks every record of
// every leftover key MISSING on its own side. Keys resolved by either
// matcher are never marked MISSING.
func (a *Annotator) Annotate(source *matcher.SourceIndex, target *matcher.TargetIndex, result *matcher.MatchResult) Stats {
	var stats Stats

	for _, ann := range result.Annotations {
		table := source.Table
		if ann.Side == matcher.SideTarget {
			table = target.Table
		}
		table.Record(ann.Row).Mark(ann.Column, ann.Kind)
		stats.DiffMarks++
	}

	for _, key := range result.UnmatchedSource {
		row, ok := source.Row(key)
		if !ok {
			continue
		}
		source.Table.Record(row).MarkAll(models.MarkMissing, source.Table.Width())
		stats.MissingSource++
	}

	for _, key := range result.UnmatchedTarget {
		for _, row := range target.Rows(key) {
			target.Table.Record(row).MarkAll(models.MarkMissing, target.Table.Width())
			stats.MissingTarget++
		}
	}

	a.logger.WithFields(logger.Fields{
		"source_table":   source.Table.Name,
		"target_table":   target.Table.Name,
		"diff_marks":     stats.DiffMarks,
		"missing_source": stats.MissingSource,
		"missing_target": stats.MissingTarget,
	}).Debug("Applied annotations")

	return stats
}

// WriteDiffs writes every payload of result into the source row of its key,
// at the diff column registered for its field key in columns. Payloads for
// a field without a diff column are skipped.
func (a *Annotator) WriteDiffs(source *matcher.SourceIndex, result *matcher.MatchResult, columns map[string]int) int {
	written := 0
	for _, key := range source.Keys() {
		fields, ok := result.Diffs[key]
		if !ok {
			continue
		}
		row, _ := source.Row(key)
		rec := source.Table.Record(row)
		for field, diff := range fields {
			pos, ok := columns[field]
			if !ok {
				a.logger.WithFields(logger.Fields{
					"table": source.Table.Name,
					"field": field,
				}).Debug("No diff column for field")
				continue
			}
			rec.Set(pos, diff.Value())
			written++
		}
	}
	return written
}
