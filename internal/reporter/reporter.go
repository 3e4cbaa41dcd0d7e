// Package reporter renders reconciliation runs.
//
// Two outputs are produced. The annotated workbook (see WorkbookWriter) is
// the primary deliverable: every loaded table as a sheet with diff columns,
// highlighted DIFF and MISSING cells, and a totals row. The run report
// (see ReportGenerator) summarizes the run for the terminal or for other
// tools.
//
// Supported report formats:
//   - Console: human-readable sections for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: one line per section for spreadsheet applications
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"gst-ledger-reconciler/internal/aggregator"
	"gst-ledger-reconciler/internal/matcher"
	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/internal/reconciler"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	// Output format
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeSections      bool `json:"include_sections"`
	IncludeDuplicates    bool `json:"include_duplicates"`
	IncludeWarnings      bool `json:"include_warnings"`
	IncludeTotals        bool `json:"include_totals"`
	IncludePreprocessing bool `json:"include_preprocessing"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:               FormatConsole,
		IncludeSections:      true,
		IncludeDuplicates:    true,
		IncludeWarnings:      true,
		IncludeTotals:        true,
		IncludePreprocessing: false,
		CSVDelimiter:         ',',
		CSVHeaders:           true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid csv delimiter: %q", c.CSVDelimiter)
	}

	return nil
}

// ReportGenerator generates run reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport writes the report of result to writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.Result, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(result *reconciler.Result, writer io.Writer) error {
	fmt.Fprintf(writer, "LEDGER RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Run ID: %s\n", result.RunID)
	fmt.Fprintf(writer, "Profile: %s\n", result.Profile)
	fmt.Fprintf(writer, "Epsilon: %s\n", result.Epsilon.String())
	fmt.Fprintf(writer, "Generated: %s\n", result.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Processing Duration: %v\n\n", result.Duration)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummaryTable(result.Summary(), writer)
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeSections && len(result.Sections) > 0 {
		fmt.Fprintf(writer, "=== SECTIONS ===\n")
		for _, section := range result.Sections {
			rg.printSection(section, writer)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeTotals && len(result.Totals) > 0 {
		fmt.Fprintf(writer, "=== TOTALS ===\n")
		rg.printTotals(result.Totals, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeWarnings && len(result.Warnings) > 0 {
		fmt.Fprintf(writer, "=== WARNINGS ===\n")
		for _, warning := range result.Warnings {
			fmt.Fprintf(writer, "  - %s\n", warning)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludePreprocessing && result.Preprocessing != nil {
		fmt.Fprintf(writer, "=== PREPROCESSING STATISTICS ===\n")
		stats := result.Preprocessing
		fmt.Fprintf(writer, "Tables Checked:         %d\n", stats.TablesChecked)
		fmt.Fprintf(writer, "Records Processed:      %d\n", stats.RecordsProcessed)
		fmt.Fprintf(writer, "Cells Trimmed:          %d\n", stats.CellsTrimmed)
		fmt.Fprintf(writer, "Amounts Rounded:        %d\n", stats.AmountsRounded)
		fmt.Fprintf(writer, "Non-numeric Amounts:    %d\n", stats.NonNumericCells)
		fmt.Fprintf(writer, "Processing Time:        %v\n", stats.ProcessingTime)
	}

	return nil
}

func (rg *ReportGenerator) printSummaryTable(summary reconciler.ResultSummary, writer io.Writer) {
	fmt.Fprintf(writer, "%-30s %10s\n", "Metric", "Count")
	fmt.Fprintf(writer, "%-30s %10s\n", "------------------------------", "----------")
	fmt.Fprintf(writer, "%-30s %10d\n", "Sections", summary.Sections)
	fmt.Fprintf(writer, "%-30s %10d\n", "Sections Reconciled", summary.Reconciled)
	fmt.Fprintf(writer, "%-30s %10d\n", "Sections Skipped", summary.Skipped)
	fmt.Fprintf(writer, "%-30s %10d\n", "Matched Keys", summary.Matched)
	fmt.Fprintf(writer, "%-30s %10d (%.1f%%)\n", "  Clean", summary.Clean, calculatePercentage(summary.Clean, summary.Matched))
	fmt.Fprintf(writer, "%-30s %10d (%.1f%%)\n", "  With Differences", summary.WithDiffs, calculatePercentage(summary.WithDiffs, summary.Matched))
	fmt.Fprintf(writer, "%-30s %10d\n", "Fallback Pairs", summary.FallbackResolved)
	fmt.Fprintf(writer, "%-30s %10d\n", "Missing From Target", summary.MissingSource)
	fmt.Fprintf(writer, "%-30s %10d\n", "Missing From Source", summary.MissingTarget)
	fmt.Fprintf(writer, "%-30s %10d\n", "Fields Differing", summary.DiffFields)
}

func (rg *ReportGenerator) printSection(section *reconciler.SectionResult, writer io.Writer) {
	fmt.Fprintf(writer, "[%s] %s -> %s: %s\n", section.Name, section.SourceTable, section.TargetTable, section.State)
	if section.Skipped() {
		fmt.Fprintf(writer, "    Skipped: %s\n", section.SkipCode)
		return
	}

	s := section.Summary
	fmt.Fprintf(writer, "    Matched: %d (clean %d, with differences %d)\n", s.Matched, s.Clean, s.WithDiffs)
	fmt.Fprintf(writer, "    Fallback pairs: %d\n", s.FallbackResolved)
	fmt.Fprintf(writer, "    Missing: %d in %s only, %d in %s only\n", s.MissingSource, section.SourceTable, s.MissingTarget, section.TargetTable)
	fmt.Fprintf(writer, "    Diff cells written: %d\n", section.DiffsWrote)

	if rg.config.IncludeDuplicates {
		for _, dup := range section.Duplicates {
			fmt.Fprintf(writer, "    Duplicate key %q: %s (%d rows ignored)\n", dup.Key, dup.Reason, len(dup.Ignored()))
		}
	}
}

func (rg *ReportGenerator) printTotals(totals []*aggregator.Totals, writer io.Writer) {
	for _, t := range totals {
		fmt.Fprintf(writer, "%s (%d rows)\n", t.Table, t.Rows)
		for _, column := range sortedColumns(t) {
			fmt.Fprintf(writer, "    %-28s %18s\n", column, t.Columns[column].StringFixed(2))
		}
	}
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(result *reconciler.Result, writer io.Writer) error {
	filteredResult := rg.filterResultForOutput(result)

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(filteredResult)
}

// generateCSVReport writes one line per section
func (rg *ReportGenerator) generateCSVReport(result *reconciler.Result, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{
			"Section",
			"Source_Table",
			"Target_Table",
			"State",
			"Matched",
			"Clean",
			"With_Diffs",
			"Fallback_Resolved",
			"Missing_Source",
			"Missing_Target",
			"Diff_Fields",
			"Diffs_Written",
			"Skip_Code",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, section := range result.Sections {
		s := section.Summary
		record := []string{
			section.Name,
			section.SourceTable,
			section.TargetTable,
			section.State.String(),
			strconv.Itoa(s.Matched),
			strconv.Itoa(s.Clean),
			strconv.Itoa(s.WithDiffs),
			strconv.Itoa(s.FallbackResolved),
			strconv.Itoa(s.MissingSource),
			strconv.Itoa(s.MissingTarget),
			strconv.Itoa(s.DiffFields),
			strconv.Itoa(section.DiffsWrote),
			string(section.SkipCode),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record for section %s: %w", section.Name, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// filterResultForOutput builds the JSON document of result according to
// the configuration
func (rg *ReportGenerator) filterResultForOutput(result *reconciler.Result) map[string]interface{} {
	output := map[string]interface{}{
		"run_id":     result.RunID,
		"profile":    result.Profile,
		"epsilon":    result.Epsilon,
		"started_at": result.StartedAt,
		"duration":   result.Duration.String(),
		"summary":    result.Summary(),
	}

	if rg.config.IncludeSections {
		sections := make([]map[string]interface{}, 0, len(result.Sections))
		for _, section := range result.Sections {
			entry := map[string]interface{}{
				"name":          section.Name,
				"source_table":  section.SourceTable,
				"target_table":  section.TargetTable,
				"state":         section.State,
				"summary":       section.Summary,
				"marks":         section.Marks,
				"diffs_written": section.DiffsWrote,
				"diff_columns":  section.DiffColumns,
			}
			if section.Skipped() {
				entry["skip_code"] = section.SkipCode
			}
			if rg.config.IncludeDuplicates && len(section.Duplicates) > 0 {
				entry["duplicates"] = duplicatesForOutput(section.Duplicates)
			}
			sections = append(sections, entry)
		}
		output["sections"] = sections
	}

	if rg.config.IncludeTotals {
		output["totals"] = result.Totals
	}

	if rg.config.IncludeWarnings {
		output["warnings"] = result.Warnings
	}

	if rg.config.IncludePreprocessing && result.Preprocessing != nil {
		output["preprocessing"] = result.Preprocessing
	}

	return output
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current report configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// duplicatesForOutput lists each duplicate key with the sheet rows left out
// of matching.
func duplicatesForOutput(groups []matcher.DuplicateGroup) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(groups))
	for _, group := range groups {
		ignored := make([]int, 0, len(group.Rows))
		for _, pos := range group.Ignored() {
			ignored = append(ignored, models.SheetRow(pos)+1)
		}
		out = append(out, map[string]interface{}{
			"key":          group.Key,
			"reason":       group.Reason,
			"ignored_rows": ignored,
		})
	}
	return out
}

func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func sortedColumns(t *aggregator.Totals) []string {
	columns := make([]string, 0, len(t.Columns))
	for column := range t.Columns {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}
