package reconciler

import (
	"fmt"
	"strings"
	"time"

	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/internal/profile"
	"gst-ledger-reconciler/pkg/errors"
	"gst-ledger-reconciler/pkg/logger"
)

// TablePreprocessor checks and normalizes the tables a profile references
// before any section runs.
type TablePreprocessor struct {
	config *PreprocessingConfig
	logger logger.Logger
}

// PreprocessingConfig contains configuration for table preprocessing
type PreprocessingConfig struct {
	// TrimWhitespace strips surrounding whitespace from text cells.
	TrimWhitespace bool

	// NormalizeDecimalPlaces rounds every numeric cell of a mapped field to
	// this many places. -1 leaves amounts as read.
	NormalizeDecimalPlaces int32
}

// DefaultPreprocessingConfig returns a default preprocessing configuration
func DefaultPreprocessingConfig() *PreprocessingConfig {
	return &PreprocessingConfig{
		TrimWhitespace:         true,
		NormalizeDecimalPlaces: -1,
	}
}

// PreprocessingStats contains statistics about preprocessing operations
type PreprocessingStats struct {
	TablesChecked    int           `json:"tables_checked"`
	RecordsProcessed int           `json:"records_processed"`
	CellsTrimmed     int           `json:"cells_trimmed"`
	AmountsRounded   int           `json:"amounts_rounded"`
	NonNumericCells  int           `json:"non_numeric_cells"`
	DuplicateHeaders []string      `json:"duplicate_headers,omitempty"`
	ProcessingTime   time.Duration `json:"processing_time"`
}

// NewTablePreprocessor creates a new table preprocessor
func NewTablePreprocessor(config *PreprocessingConfig, log logger.Logger) *TablePreprocessor {
	if config == nil {
		config = DefaultPreprocessingConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &TablePreprocessor{
		config: config,
		logger: log.WithComponent("preprocessor"),
	}
}

// Preprocess walks every loaded table p references. A referenced table
// without a header row is a hard error. Non-numeric content in a mapped
// amount column is counted and left alone; it reads as zero.
func (tp *TablePreprocessor) Preprocess(lookup map[string]*models.LedgerTable, p *profile.Profile) (*PreprocessingStats, error) {
	start := time.Now()
	stats := &PreprocessingStats{}

	amounts := amountColumns(p)
	for _, name := range p.Tables() {
		table, ok := lookup[tableKey(name)]
		if !ok {
			continue
		}
		if table.Width() == 0 {
			return nil, errors.ParseError(errors.CodeMissingHeaderRow, "", table.Name, models.DataOffset, nil)
		}

		stats.TablesChecked++
		stats.DuplicateHeaders = append(stats.DuplicateHeaders, duplicateHeaders(table)...)
		tp.preprocessTable(table, amounts[tableKey(name)], stats)
	}

	stats.ProcessingTime = time.Since(start)
	tp.logger.WithFields(logger.Fields{
		"tables":            stats.TablesChecked,
		"records":           stats.RecordsProcessed,
		"cells_trimmed":     stats.CellsTrimmed,
		"amounts_rounded":   stats.AmountsRounded,
		"non_numeric_cells": stats.NonNumericCells,
	}).Debug("Preprocessed tables")

	for _, header := range stats.DuplicateHeaders {
		tp.logger.WithField("header", header).Warn("Header repeats, the leftmost column is used")
	}

	return stats, nil
}

func (tp *TablePreprocessor) preprocessTable(table *models.LedgerTable, amountHeaders []string, stats *PreprocessingStats) {
	amountPos := make(map[int]bool)
	for _, header := range amountHeaders {
		if pos, ok := table.ResolveHeader(header); ok {
			amountPos[pos] = true
		}
	}

	for _, rec := range table.DataRecords() {
		stats.RecordsProcessed++
		for pos, cell := range rec.Cells {
			if tp.config.TrimWhitespace && cell.Kind == models.KindText {
				if trimmed := strings.TrimSpace(cell.Text); trimmed != cell.Text {
					rec.Set(pos, models.NewText(trimmed))
					stats.CellsTrimmed++
				}
			}

			if !amountPos[pos] || cell.IsEmpty() {
				continue
			}
			if _, ok := cell.Numeric(); !ok {
				stats.NonNumericCells++
				continue
			}
			if tp.config.NormalizeDecimalPlaces >= 0 && cell.IsNumber() {
				rounded := cell.Number.Round(tp.config.NormalizeDecimalPlaces)
				if !rounded.Equal(cell.Number) {
					rec.Set(pos, models.NewNumber(rounded))
					stats.AmountsRounded++
				}
			}
		}
	}
}

// amountColumns collects the mapped field headers of every table, keyed by
// table.
func amountColumns(p *profile.Profile) map[string][]string {
	out := make(map[string][]string)
	for _, section := range p.Sections {
		for _, field := range section.Fields {
			out[tableKey(section.Source.Table)] = append(out[tableKey(section.Source.Table)], field.Source)
			out[tableKey(section.Target.Table)] = append(out[tableKey(section.Target.Table)], field.Target)
		}
	}
	return out
}

// duplicateHeaders describes every header that repeats an earlier one,
// with its one-based column number.
func duplicateHeaders(table *models.LedgerTable) []string {
	seen := make(map[string]bool)
	var dups []string
	for _, header := range table.Headers() {
		key := strings.ToLower(strings.TrimSpace(header.Name))
		if key == "" {
			continue
		}
		if seen[key] {
			dups = append(dups, fmt.Sprintf("'%s' in table '%s' (column %d)", header.Name, table.Name, header.Position+1))
		}
		seen[key] = true
	}
	return dups
}

func tableKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
