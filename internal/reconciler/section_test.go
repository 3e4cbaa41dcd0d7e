package reconciler

import (
	"testing"

	"gst-ledger-reconciler/internal/matcher"
	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/internal/profile"
	"gst-ledger-reconciler/pkg/errors"

	"github.com/shopspring/decimal"
)

func num(f float64) models.Value { return models.NewNumberFromFloat(f) }

func text(s string) models.Value { return models.NewText(s) }

func createSalesRegister() *models.LedgerTable {
	table := models.NewTable("Sales Register", "Sales Register FY 2024-25",
		[]string{"Invoice Number", "GSTIN", "Invoice Value", "Taxable Value"})
	table.AppendRow(text("INV001"), text("G1"), num(1000), num(1000))
	table.AppendRow(text("INV002"), text("GSTIN001"), num(500), num(500))
	table.AppendRow(text("INV003"), text("G3"), num(300), num(300))
	table.AppendRow(text("INV004"), text("G4"), num(200), num(200))
	return table
}

func createGSTR1B2B() *models.LedgerTable {
	table := models.NewTable("GSTR1 B2B", "GSTR-1 B2B",
		[]string{"GSTIN of Recipient", "Invoice Number", "Invoice Value", "Rate", "Taxable Value"})
	table.AppendRow(text("G1"), text("INV-001"), num(1000), num(5), num(600))
	table.AppendRow(text("G1"), text("INV001"), num(1000), num(18), num(400))
	table.AppendRow(text("GSTIN001"), text("INV002X"), num(500), num(18), num(500))
	table.AppendRow(text("G4"), text("INV 004"), num(210), num(18), num(210))
	table.AppendRow(text("G9"), text("INV999"), num(50), num(18), num(50))
	return table
}

func createB2BSection() profile.Section {
	return profile.Section{
		Name:   "B2B invoices",
		Source: profile.Side{Table: "Sales Register", Identifier: "Invoice Number", Secondary: "GSTIN"},
		Target: profile.Side{Table: "GSTR1 B2B", Identifier: "Invoice Number", Secondary: "GSTIN of Recipient"},
		Fields: []matcher.FieldMapping{
			{Source: "Invoice Value", Target: "Invoice Value", WholeDocument: true},
			{Source: "Taxable Value", Target: "Taxable Value"},
		},
	}
}

func TestSectionRun(t *testing.T) {
	source, target := createSalesRegister(), createGSTR1B2B()
	section := NewSection(createB2BSection(), nil, nil)

	result := section.Run(source, target)

	if result.State != StateDiffsWritten || section.State() != StateDiffsWritten {
		t.Fatalf("expected section to finish, got %s (%v)", result.State, result.Err)
	}

	expectedHeaders := []string{
		"Invoice Number", "Invoice Number Diff", "GSTIN", "GSTIN Diff",
		"Invoice Value", "Invoice Value Diff", "Taxable Value", "Taxable Value Diff",
	}
	headers := source.HeaderNames()
	if len(headers) != len(expectedHeaders) {
		t.Fatalf("expected headers %v, got %v", expectedHeaders, headers)
	}
	for i, name := range expectedHeaders {
		if headers[i] != name {
			t.Errorf("header %d: expected %q, got %q", i, name, headers[i])
		}
	}
	if target.Width() != 5 {
		t.Errorf("expected target layout untouched, got %v", target.HeaderNames())
	}

	s := result.Summary
	if s.Matched != 2 || s.Clean != 1 || s.WithDiffs != 1 || s.FallbackResolved != 1 || s.MissingSource != 1 || s.MissingTarget != 1 {
		t.Errorf("unexpected summary %+v", s)
	}

	// INV001: two line rows summing to the source taxable value
	if source.Record(0).HasMark(models.MarkDiff) || target.Record(0).HasMark(models.MarkDiff) || target.Record(1).HasMark(models.MarkDiff) {
		t.Error("expected INV001 to reconcile clean")
	}

	// INV002 re-keyed as INV002X
	inv002 := source.Record(1)
	if inv002.IsMissing() || target.Record(2).IsMissing() {
		t.Error("expected the fallback pair not to be marked missing")
	}
	if inv002.MarkAt(0) != models.MarkDiff || target.Record(2).MarkAt(1) != models.MarkDiff {
		t.Error("expected identifier fields of the fallback pair marked DIFF")
	}
	if inv002.MarkAt(4) != models.MarkNone {
		t.Error("expected amounts of the fallback pair left unmarked")
	}
	if got := inv002.Cell(1).String(); got != "INV002X" {
		t.Errorf("expected identifier diff INV002X, got %q", got)
	}

	// INV003 has no counterpart
	if !source.Record(2).IsMissing() {
		t.Error("expected INV003 marked missing")
	}
	for pos := 0; pos < source.Width(); pos++ {
		if source.Record(2).MarkAt(pos) != models.MarkMissing {
			t.Errorf("expected every field of INV003 missing, column %d is %s", pos, source.Record(2).MarkAt(pos))
		}
	}

	// INV004 differs by 10 on both amounts
	inv004 := source.Record(3)
	if !inv004.Cell(5).Decimal().Equal(decimal.NewFromInt(10)) || !inv004.Cell(7).Decimal().Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected diffs of 10, got %v and %v", inv004.Cell(5), inv004.Cell(7))
	}
	if inv004.MarkAt(4) != models.MarkDiff || inv004.MarkAt(6) != models.MarkDiff {
		t.Error("expected INV004 amounts marked DIFF")
	}
	if target.Record(3).MarkAt(2) != models.MarkDiff || target.Record(3).MarkAt(4) != models.MarkDiff {
		t.Error("expected target INV 004 amounts marked DIFF")
	}

	if !target.Record(4).IsMissing() {
		t.Error("expected INV999 marked missing")
	}

	if len(result.TextColumns) != 2 {
		t.Errorf("expected identifier and secondary diff columns as text columns, got %v", result.TextColumns)
	}
}

func TestSectionReusesDiffColumns(t *testing.T) {
	source, target := createSalesRegister(), createGSTR1B2B()

	first := NewSection(createB2BSection(), nil, nil).Run(source, target)
	width := source.Width()
	second := NewSection(createB2BSection(), nil, nil).Run(source, target)

	if first.Skipped() || second.Skipped() {
		t.Fatal("expected both runs to complete")
	}
	if source.Width() != width {
		t.Errorf("expected diff columns reused, width went from %d to %d", width, source.Width())
	}
	if len(second.DiffColumns) != 4 {
		t.Errorf("expected four diff columns, got %v", second.DiffColumns)
	}
}

func TestSectionSkippedOnMissingHeader(t *testing.T) {
	source, target := createSalesRegister(), createGSTR1B2B()
	def := createB2BSection()
	def.Fields = append(def.Fields, matcher.FieldMapping{Source: "Cess", Target: "Cess"})

	result := NewSection(def, nil, nil).Run(source, target)

	if !result.Skipped() {
		t.Fatalf("expected section skipped, got %s", result.State)
	}
	if result.SkipCode != errors.CodeMissingColumn || result.Err == nil {
		t.Errorf("expected missing column, got %s", result.SkipCode)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("expected one warning, got %v", result.Warnings)
	}
	if source.Width() != 4 {
		t.Error("expected source table untouched")
	}
	for _, rec := range source.Records() {
		if rec.HasMark(models.MarkMissing) || rec.HasMark(models.MarkDiff) {
			t.Fatal("expected no annotations on a skipped section")
		}
	}
}

func TestSectionSkippedWithoutIndexableRecords(t *testing.T) {
	source := models.NewTable("Sales Register", "", []string{"Invoice Number", "GSTIN", "Invoice Value", "Taxable Value"})
	source.AppendRow(models.EmptyValue(), text("G1"), num(10), num(10))
	source.AppendRow(text("Total"), models.EmptyValue(), num(10), num(10))

	result := NewSection(createB2BSection(), nil, nil).Run(source, createGSTR1B2B())

	if !result.Skipped() || result.SkipCode != errors.CodeNoIndexableRecords {
		t.Errorf("expected no indexable records skip, got %s %s", result.State, result.SkipCode)
	}
}

func TestSectionMissingSecondaryDisablesFallback(t *testing.T) {
	source, target := createSalesRegister(), createGSTR1B2B()
	def := createB2BSection()
	def.Target.Secondary = "Recipient GSTIN"

	result := NewSection(def, nil, nil).Run(source, target)

	if result.Skipped() {
		t.Fatalf("expected section to run, got %v", result.Err)
	}
	if result.Summary.FallbackResolved != 0 || result.Summary.MissingSource != 2 {
		t.Errorf("expected no fallback without secondary identity, got %+v", result.Summary)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("expected a secondary identity warning, got %v", result.Warnings)
	}
	if _, ok := source.ResolveHeader("GSTIN Diff"); ok {
		t.Error("expected no secondary diff column")
	}
}

func TestSectionReportsDuplicates(t *testing.T) {
	source, target := createSalesRegister(), createGSTR1B2B()
	source.AppendRow(text("inv-001"), text("G1"), num(1), num(1))

	result := NewSection(createB2BSection(), nil, nil).Run(source, target)

	if len(result.Duplicates) != 1 || result.Duplicates[0].Key != "inv001" {
		t.Fatalf("expected one duplicate group for inv001, got %+v", result.Duplicates)
	}
	dup := source.Record(4)
	if dup.HasMark(models.MarkDiff) || dup.IsMissing() {
		t.Error("expected the unindexed duplicate row left unannotated")
	}
}

func TestSectionStateNames(t *testing.T) {
	tests := []struct {
		state SectionState
		want  string
	}{
		{StateIdle, "idle"},
		{StateKeysBuilt, "keys_built"},
		{StateDiffsWritten, "diffs_written"},
		{StateSkipped, "skipped"},
		{SectionState(42), "state(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}
}
