package matcher

import (
	"gst-ledger-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

// SourceIndex maps each normalized key to the single source record that
// carries it. The first occurrence of a key wins; later duplicates stay in
// the table as ordinary, unindexed records.
type SourceIndex struct {
	Table  *models.LedgerTable
	Column int

	rows map[string]int
	keys []string
}

// TargetIndex maps each normalized key to every target record that carries
// it, in row order, so a document spread over several line rows is seen as
// one unit.
type TargetIndex struct {
	Table  *models.LedgerTable
	Column int

	rows map[string][]int
	keys []string
}

// indexable returns the key of the record at column, or "" when the record
// must not be indexed.
func indexable(rec *models.Record, column int) string {
	if rec.Kind != models.RecordData {
		return ""
	}
	cell := rec.Cell(column)
	if IsTotalLabel(cell) {
		return ""
	}
	return KeyOf(cell)
}

// BuildSourceIndex indexes table by the identifier at column.
func BuildSourceIndex(table *models.LedgerTable, column int) *SourceIndex {
	index := &SourceIndex{
		Table:  table,
		Column: column,
		rows:   make(map[string]int),
	}

	for pos, rec := range table.Records() {
		key := indexable(rec, column)
		if key == "" {
			continue
		}
		if _, exists := index.rows[key]; exists {
			continue
		}
		index.rows[key] = pos
		index.keys = append(index.keys, key)
	}
	return index
}

// BuildTargetIndex indexes table by the identifier at column.
func BuildTargetIndex(table *models.LedgerTable, column int) *TargetIndex {
	index := &TargetIndex{
		Table:  table,
		Column: column,
		rows:   make(map[string][]int),
	}

	for pos, rec := range table.Records() {
		key := indexable(rec, column)
		if key == "" {
			continue
		}
		if _, exists := index.rows[key]; !exists {
			index.keys = append(index.keys, key)
		}
		index.rows[key] = append(index.rows[key], pos)
	}
	return index
}

// Len returns the number of indexed keys.
func (si *SourceIndex) Len() int {
	return len(si.keys)
}

// Keys returns the indexed keys in first-seen row order.
func (si *SourceIndex) Keys() []string {
	return append([]string(nil), si.keys...)
}

// Row returns the row position of key.
func (si *SourceIndex) Row(key string) (int, bool) {
	pos, ok := si.rows[key]
	return pos, ok
}

// Has reports whether key is indexed.
func (si *SourceIndex) Has(key string) bool {
	_, ok := si.rows[key]
	return ok
}

// Record returns the record of key, or nil.
func (si *SourceIndex) Record(key string) *models.Record {
	pos, ok := si.rows[key]
	if !ok {
		return nil
	}
	return si.Table.Record(pos)
}

// Len returns the number of indexed keys.
func (ti *TargetIndex) Len() int {
	return len(ti.keys)
}

// Keys returns the indexed keys in first-seen row order.
func (ti *TargetIndex) Keys() []string {
	return append([]string(nil), ti.keys...)
}

// Rows returns the row positions of key in row order.
func (ti *TargetIndex) Rows(key string) []int {
	return ti.rows[key]
}

// Has reports whether key is indexed.
func (ti *TargetIndex) Has(key string) bool {
	_, ok := ti.rows[key]
	return ok
}

// First returns the first record of key, or nil.
func (ti *TargetIndex) First(key string) *models.Record {
	rows := ti.rows[key]
	if len(rows) == 0 {
		return nil
	}
	return ti.Table.Record(rows[0])
}

// Aggregate returns the target-side value of a field for key: the first
// row's value for a whole-document field, the sum over every row otherwise.
// Non-numeric cells count as zero.
func (ti *TargetIndex) Aggregate(key string, field ResolvedField) decimal.Decimal {
	rows := ti.rows[key]
	if len(rows) == 0 {
		return decimal.Zero
	}
	if field.WholeDocument {
		return ti.Table.Record(rows[0]).Cell(field.TargetPos).Decimal()
	}

	total := decimal.Zero
	for _, pos := range rows {
		total = total.Add(ti.Table.Record(pos).Cell(field.TargetPos).Decimal())
	}
	return total
}

// Value returns the source-side value of a field for key.
func (si *SourceIndex) Value(key string, field ResolvedField) decimal.Decimal {
	rec := si.Record(key)
	if rec == nil {
		return decimal.Zero
	}
	return rec.Cell(field.SourcePos).Decimal()
}
