// Package models holds the in-memory ledger table the reconciliation engine
// reads and annotates.
//
// A LedgerTable mirrors one sheet: a title row, a header row, then data
// records starting at DataOffset. Records are identified by their position
// and are never inserted or removed by the engine; only columns are
// inserted (see InjectColumns), and a totals record may be appended last.
package models

import (
	"fmt"
	"strings"
)

// DataOffset is the number of rows that precede the first data record:
// the title row and the header row.
const DataOffset = 2

// TotalLabel is the identifier text of pre-existing subtotal rows.
const TotalLabel = "total"

// MarkKind is the annotation attached to one field of a record.
type MarkKind int

const (
	MarkNone MarkKind = iota
	// MarkDiff flags a field whose value disagrees with the counterpart table.
	MarkDiff
	// MarkMissing flags a field of a record that has no counterpart at all.
	MarkMissing
)

// String returns the string representation of MarkKind
func (m MarkKind) String() string {
	switch m {
	case MarkNone:
		return "NONE"
	case MarkDiff:
		return "DIFF"
	case MarkMissing:
		return "MISSING"
	default:
		return "UNKNOWN"
	}
}

// RecordKind separates genuine data records from synthetic totals records.
type RecordKind int

const (
	RecordData RecordKind = iota
	RecordTotals
)

// Record is one data row. Cells and Marks are indexed by column position.
type Record struct {
	Cells []Value
	Marks []MarkKind
	Kind  RecordKind
}

// Cell returns the value at pos, or an empty value past the end of the row.
func (r *Record) Cell(pos int) Value {
	if pos < 0 || pos >= len(r.Cells) {
		return EmptyValue()
	}
	return r.Cells[pos]
}

// Set writes v at pos, growing the row when needed.
func (r *Record) Set(pos int, v Value) {
	r.grow(pos + 1)
	r.Cells[pos] = v
}

// MarkAt returns the annotation at pos.
func (r *Record) MarkAt(pos int) MarkKind {
	if pos < 0 || pos >= len(r.Marks) {
		return MarkNone
	}
	return r.Marks[pos]
}

// Mark annotates the field at pos. A weaker mark never replaces a stronger
// one (MISSING > DIFF > none), so sections sharing a table compose.
func (r *Record) Mark(pos int, kind MarkKind) {
	if pos < 0 {
		return
	}
	r.grow(pos + 1)
	if kind > r.Marks[pos] {
		r.Marks[pos] = kind
	}
}

// MarkAll annotates every field of a row that is width columns wide.
func (r *Record) MarkAll(kind MarkKind, width int) {
	r.grow(width)
	for pos := range r.Marks {
		r.Mark(pos, kind)
	}
}

// HasMark reports whether any field carries kind.
func (r *Record) HasMark(kind MarkKind) bool {
	for _, m := range r.Marks {
		if m == kind {
			return true
		}
	}
	return false
}

// IsMissing reports whether the record was marked MISSING.
func (r *Record) IsMissing() bool {
	return r.HasMark(MarkMissing)
}

func (r *Record) grow(width int) {
	for len(r.Cells) < width {
		r.Cells = append(r.Cells, EmptyValue())
	}
	for len(r.Marks) < width {
		r.Marks = append(r.Marks, MarkNone)
	}
}

func (r *Record) insertAt(pos int) {
	r.grow(pos)

	r.Cells = append(r.Cells, Value{})
	copy(r.Cells[pos+1:], r.Cells[pos:])
	r.Cells[pos] = EmptyValue()

	r.Marks = append(r.Marks, MarkNone)
	copy(r.Marks[pos+1:], r.Marks[pos:])
	r.Marks[pos] = MarkNone
}

// ColumnHeader is a header name and its position.
type ColumnHeader struct {
	Name     string
	Position int
}

// LedgerTable is one named ledger: headers plus ordered records.
type LedgerTable struct {
	Name  string
	Title string

	headers []string
	records []*Record
	index   map[string]int
}

// NewTable creates an empty table with the given header row.
func NewTable(name, title string, headers []string) *LedgerTable {
	t := &LedgerTable{
		Name:    name,
		Title:   title,
		headers: append([]string(nil), headers...),
	}
	t.reindex()
	return t
}

// normalizeHeader is the comparison form of a header name.
func normalizeHeader(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (t *LedgerTable) reindex() {
	t.index = make(map[string]int, len(t.headers))
	for pos, name := range t.headers {
		key := normalizeHeader(name)
		if key == "" {
			continue
		}
		if _, exists := t.index[key]; !exists {
			t.index[key] = pos
		}
	}
}

// ResolveHeader finds a header by case-insensitive, trimmed name. The
// leftmost column wins when a name repeats.
func (t *LedgerTable) ResolveHeader(name string) (int, bool) {
	key := normalizeHeader(name)
	if key == "" {
		return -1, false
	}
	pos, ok := t.index[key]
	return pos, ok
}

// Headers returns the header row with positions.
func (t *LedgerTable) Headers() []ColumnHeader {
	out := make([]ColumnHeader, len(t.headers))
	for pos, name := range t.headers {
		out[pos] = ColumnHeader{Name: name, Position: pos}
	}
	return out
}

// HeaderNames returns a copy of the header row.
func (t *LedgerTable) HeaderNames() []string {
	return append([]string(nil), t.headers...)
}

// Width returns the number of columns.
func (t *LedgerTable) Width() int {
	return len(t.headers)
}

// AppendRow adds a data record built from values.
func (t *LedgerTable) AppendRow(values ...Value) *Record {
	rec := &Record{Kind: RecordData}
	rec.Cells = append(rec.Cells, values...)
	rec.grow(len(t.headers))
	t.records = append(t.records, rec)
	return rec
}

// AppendTotals adds a totals record after the last record.
func (t *LedgerTable) AppendTotals(rec *Record) {
	rec.Kind = RecordTotals
	rec.grow(len(t.headers))
	t.records = append(t.records, rec)
}

// Len returns the number of records, totals included.
func (t *LedgerTable) Len() int {
	return len(t.records)
}

// Record returns the record at row position i.
func (t *LedgerTable) Record(i int) *Record {
	return t.records[i]
}

// Records returns all records in row order, totals included.
func (t *LedgerTable) Records() []*Record {
	return t.records
}

// DataRecords returns the genuine data records in row order.
func (t *LedgerTable) DataRecords() []*Record {
	out := make([]*Record, 0, len(t.records))
	for _, rec := range t.records {
		if rec.Kind == RecordData {
			out = append(out, rec)
		}
	}
	return out
}

// SheetRow converts a record position into its zero-based row on the sheet.
func SheetRow(position int) int {
	return position + DataOffset
}

// InsertColumn inserts an empty column at position at, shifting every
// column at or after it one place to the right. Marks move with their cells.
func (t *LedgerTable) InsertColumn(at int, label string) error {
	if at < 0 || at > len(t.headers) {
		return fmt.Errorf("column position %d out of range for table %q with %d columns", at, t.Name, len(t.headers))
	}

	t.headers = append(t.headers, "")
	copy(t.headers[at+1:], t.headers[at:])
	t.headers[at] = label

	for _, rec := range t.records {
		rec.insertAt(at)
	}

	t.reindex()
	return nil
}

// String returns a short description of the table.
func (t *LedgerTable) String() string {
	return fmt.Sprintf("LedgerTable{Name: %s, Columns: %d, Records: %d}", t.Name, len(t.headers), len(t.records))
}
