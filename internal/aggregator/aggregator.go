// Package aggregator appends totals records to annotated ledger tables.
//
// Every numeric column is summed over the genuine data rows of the table,
// except the excluded identifier columns. The main value column of a note
// or invoice ledger repeats the document total on each line row, so when a
// document id column is configured that column is summed once per document.
package aggregator

import (
	"fmt"
	"sort"
	"strings"

	"gst-ledger-reconciler/internal/matcher"
	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/pkg/logger"

	"github.com/shopspring/decimal"
)

// TotalLabel is written into the label column of the totals record.
const TotalLabel = "Total"

// Spec configures the totals of one table. Column names are resolved like
// any other header.
type Spec struct {
	// Summable restricts summing to these columns. Empty means every column.
	Summable []string `json:"summable,omitempty" yaml:"summable,omitempty"`

	// Exclude lists identifier columns that must never be summed.
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`

	// MainValue is the column holding the per-document value.
	MainValue string `json:"main_value,omitempty" yaml:"main_value,omitempty"`

	// DocumentID is the column identifying the governing document.
	DocumentID string `json:"document_id,omitempty" yaml:"document_id,omitempty"`
}

// Totals is the outcome of aggregating one table.
type Totals struct {
	Table   string                     `json:"table"`
	Rows    int                        `json:"rows"`
	Columns map[string]decimal.Decimal `json:"columns"`
	Record  *models.Record             `json:"-"`
}

// Aggregator computes totals records.
type Aggregator struct {
	logger logger.Logger
}

// New creates an aggregator logging through log, or through the global
// logger when log is nil.
func New(log logger.Logger) *Aggregator {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Aggregator{logger: log.WithComponent("aggregator")}
}

// Compute builds the totals record of table without appending it.
// Configured names that do not resolve are logged and ignored.
func (a *Aggregator) Compute(table *models.LedgerTable, spec Spec) *Totals {
	log := a.logger.WithField("table", table.Name)

	excluded := make(map[int]bool)
	for _, name := range spec.Exclude {
		if pos, ok := table.ResolveHeader(name); ok {
			excluded[pos] = true
		} else {
			log.WithField("column", name).Debug("Excluded column not found")
		}
	}

	docPos := -1
	if spec.DocumentID != "" {
		if pos, ok := table.ResolveHeader(spec.DocumentID); ok {
			docPos = pos
			excluded[pos] = true
		} else {
			log.WithField("column", spec.DocumentID).Warn("Document id column not found, main value is summed per row")
		}
	}

	mainPos := -1
	if spec.MainValue != "" {
		if pos, ok := table.ResolveHeader(spec.MainValue); ok {
			mainPos = pos
		} else {
			log.WithField("column", spec.MainValue).Warn("Main value column not found")
		}
	}

	columns := a.summableColumns(table, spec, excluded, log)
	rows := dataRows(table)

	rec := &models.Record{}
	totals := &Totals{
		Table:   table.Name,
		Rows:    len(rows),
		Columns: make(map[string]decimal.Decimal),
		Record:  rec,
	}

	headers := table.HeaderNames()
	for _, pos := range columns {
		var sum decimal.Decimal
		var contributions int
		if pos == mainPos && docPos >= 0 {
			sum, contributions = sumPerDocument(rows, pos, docPos)
		} else {
			sum, contributions = sumColumn(rows, pos)
		}
		// columns nothing numeric contributed to stay blank
		if contributions == 0 {
			continue
		}
		rec.Set(pos, models.NewNumber(sum))
		totals.Columns[headers[pos]] = sum
	}

	labelPos := 0
	if docPos >= 0 {
		labelPos = docPos
	}
	if table.Width() > 0 {
		rec.Set(labelPos, models.NewText(TotalLabel))
		delete(totals.Columns, headers[labelPos])
	}

	log.WithFields(logger.Fields{
		"rows":    totals.Rows,
		"columns": len(totals.Columns),
	}).Debug("Computed totals")

	return totals
}

// Append computes the totals record of table and appends it after the last
// data record.
func (a *Aggregator) Append(table *models.LedgerTable, spec Spec) (*Totals, error) {
	for _, rec := range table.Records() {
		if rec.Kind == models.RecordTotals {
			return nil, fmt.Errorf("table %q already has a totals record", table.Name)
		}
	}
	totals := a.Compute(table, spec)
	table.AppendTotals(totals.Record)
	return totals, nil
}

func (a *Aggregator) summableColumns(table *models.LedgerTable, spec Spec, excluded map[int]bool, log logger.Logger) []int {
	var columns []int
	if len(spec.Summable) == 0 {
		for pos := 0; pos < table.Width(); pos++ {
			if !excluded[pos] {
				columns = append(columns, pos)
			}
		}
		return columns
	}

	seen := make(map[int]bool)
	for _, name := range spec.Summable {
		pos, ok := table.ResolveHeader(name)
		if !ok {
			log.WithField("column", name).Warn("Summable column not found")
			continue
		}
		if excluded[pos] || seen[pos] {
			continue
		}
		seen[pos] = true
		columns = append(columns, pos)
	}
	return columns
}

// dataRows returns the records that count towards totals: genuine data
// rows that are not pre-existing subtotal rows.
func dataRows(table *models.LedgerTable) []*models.Record {
	var rows []*models.Record
	for _, rec := range table.DataRecords() {
		if isSubtotal(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return rows
}

// isSubtotal reports whether the first non-blank cell of rec is a total label.
func isSubtotal(rec *models.Record) bool {
	for _, cell := range rec.Cells {
		if cell.IsEmpty() {
			continue
		}
		return matcher.IsTotalLabel(cell)
	}
	return false
}

func sumColumn(rows []*models.Record, pos int) (decimal.Decimal, int) {
	sum := decimal.Zero
	contributions := 0
	for _, rec := range rows {
		if v, ok := rec.Cell(pos).Numeric(); ok {
			sum = sum.Add(v)
			contributions++
		}
	}
	return sum, contributions
}

// sumPerDocument sums the first value seen for each document id. Rows with
// a blank id are their own document.
func sumPerDocument(rows []*models.Record, pos, docPos int) (decimal.Decimal, int) {
	sum := decimal.Zero
	contributions := 0
	seen := make(map[string]bool)
	for _, rec := range rows {
		v, ok := rec.Cell(pos).Numeric()
		if !ok {
			continue
		}
		doc := matcher.KeyOf(rec.Cell(docPos))
		if doc != "" {
			if seen[doc] {
				continue
			}
			seen[doc] = true
		}
		sum = sum.Add(v)
		contributions++
	}
	return sum, contributions
}

// String returns a short description of the totals.
func (t *Totals) String() string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, t.Columns[name].StringFixed(2)))
	}
	return fmt.Sprintf("Totals{Table: %s, Rows: %d, %s}", t.Table, t.Rows, strings.Join(parts, ", "))
}
