package matcher

import (
	"fmt"
	"strings"

	"gst-ledger-reconciler/internal/models"
)

// DuplicateDetectionResult represents the result of duplicate detection
type DuplicateDetectionResult struct {
	Groups []DuplicateGroup
}

// DuplicateGroup is a set of source rows sharing one normalized key. Only
// the first row is indexed; the others take no part in matching.
type DuplicateGroup struct {
	Key    string
	Rows   []int
	Reason string
}

// Ignored returns the rows left out of the index.
func (g DuplicateGroup) Ignored() []int {
	if len(g.Rows) < 2 {
		return nil
	}
	return g.Rows[1:]
}

// DetectDuplicates finds keys that repeat in the identifier column of a
// source table. Subtotal rows and blank keys are not considered.
func DetectDuplicates(table *models.LedgerTable, column int) *DuplicateDetectionResult {
	rows := make(map[string][]int)
	var order []string

	for pos, rec := range table.Records() {
		key := indexable(rec, column)
		if key == "" {
			continue
		}
		if _, seen := rows[key]; !seen {
			order = append(order, key)
		}
		rows[key] = append(rows[key], pos)
	}

	var groups []DuplicateGroup
	for _, key := range order {
		if len(rows[key]) < 2 {
			continue
		}
		groups = append(groups, DuplicateGroup{
			Key:    key,
			Rows:   rows[key],
			Reason: duplicateReason(table, rows[key]),
		})
	}

	return &DuplicateDetectionResult{Groups: groups}
}

func duplicateReason(table *models.LedgerTable, rows []int) string {
	sheetRows := make([]string, len(rows))
	for i, pos := range rows {
		// one-based, as shown by a spreadsheet application
		sheetRows[i] = fmt.Sprintf("%d", models.SheetRow(pos)+1)
	}
	return fmt.Sprintf("key repeats in table '%s' on rows %s; only row %s is reconciled",
		table.Name, strings.Join(sheetRows, ", "), sheetRows[0])
}
