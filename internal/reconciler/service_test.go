package reconciler

import (
	"strings"
	"testing"

	"gst-ledger-reconciler/internal/aggregator"
	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/internal/profile"
	"gst-ledger-reconciler/pkg/errors"

	"github.com/shopspring/decimal"
)

func createTestProfile() *profile.Profile {
	return &profile.Profile{
		Name:     "test",
		Sections: []profile.Section{createB2BSection()},
		Totals: []profile.Totals{
			{Table: "Sales Register", Spec: aggregator.Spec{DocumentID: "Invoice Number"}},
			{Table: "GSTR1 B2B", Spec: aggregator.Spec{
				Exclude:    []string{"Rate"},
				MainValue:  "Invoice Value",
				DocumentID: "Invoice Number",
			}},
		},
	}
}

func runService(t *testing.T, config *Config, tables []*models.LedgerTable, p *profile.Profile) (*Result, error) {
	t.Helper()
	service, err := NewService(config, nil)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return service.Run(tables, p)
}

func TestServiceRun(t *testing.T) {
	source, target := createSalesRegister(), createGSTR1B2B()

	result, err := runService(t, nil, []*models.LedgerTable{source, target}, createTestProfile())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.RunID == "" || result.Profile != "test" {
		t.Errorf("unexpected result header %s", result)
	}
	if !result.Epsilon.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("expected default epsilon, got %s", result.Epsilon)
	}

	summary := result.Summary()
	if summary.Reconciled != 1 || summary.Matched != 2 || summary.FallbackResolved != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if !result.HasIssues() {
		t.Error("expected issues to be reported")
	}

	if len(result.Totals) != 2 {
		t.Fatalf("expected two totals records, got %d", len(result.Totals))
	}

	gstr := result.Totals[1]
	if !gstr.Columns["Invoice Value"].Equal(decimal.NewFromInt(1760)) {
		t.Errorf("expected invoice value once per document (1760), got %s", gstr.Columns["Invoice Value"])
	}
	if !gstr.Columns["Taxable Value"].Equal(decimal.NewFromInt(1760)) {
		t.Errorf("expected taxable value over every line (1760), got %s", gstr.Columns["Taxable Value"])
	}
	if _, ok := gstr.Columns["Rate"]; ok {
		t.Error("expected Rate excluded")
	}

	sales := result.Totals[0]
	if !sales.Columns["Invoice Value Diff"].Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected diff column total 10, got %s", sales.Columns["Invoice Value Diff"])
	}
	if _, ok := sales.Columns["Invoice Number Diff"]; ok {
		t.Error("expected identifier diff column excluded from totals")
	}

	last := source.Record(source.Len() - 1)
	if last.Kind != models.RecordTotals || last.Cell(0).String() != aggregator.TotalLabel {
		t.Error("expected a totals record at the end of the source table")
	}

	diffColumns := result.DiffColumns()
	if len(diffColumns) != 1 || len(diffColumns["Sales Register"]) == 0 {
		t.Fatalf("expected diff columns for the source table only, got %v", diffColumns)
	}
	for _, label := range diffColumns["Sales Register"] {
		if _, ok := source.ResolveHeader(label); !ok {
			t.Errorf("diff column %q not found on the source table", label)
		}
	}
	if result.Errors().Total != 0 {
		t.Errorf("expected no section errors, got %v", result.Errors())
	}
}

func TestServiceEpsilonOverride(t *testing.T) {
	eps := decimal.NewFromInt(20)
	source, target := createSalesRegister(), createGSTR1B2B()

	result, err := runService(t, &Config{Epsilon: &eps, SkipTotals: true}, []*models.LedgerTable{source, target}, createTestProfile())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if s := result.Summary(); s.WithDiffs != 0 || s.Clean != 2 {
		t.Errorf("expected a difference of 10 within tolerance 20, got %+v", s)
	}
	if len(result.Totals) != 0 || source.Record(source.Len()-1).Kind == models.RecordTotals {
		t.Error("expected no totals")
	}
}

func TestServiceDisableFallback(t *testing.T) {
	result, err := runService(t, &Config{DisableFallback: true}, []*models.LedgerTable{createSalesRegister(), createGSTR1B2B()}, createTestProfile())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if s := result.Summary(); s.FallbackResolved != 0 || s.MissingSource != 2 || s.MissingTarget != 2 {
		t.Errorf("expected no fallback pairs, got %+v", s)
	}
}

func TestServiceSkipsAndContinues(t *testing.T) {
	p := createTestProfile()
	broken := createB2BSection()
	broken.Name = "Broken"
	broken.Source.Identifier = "Document Number"
	unknown := createB2BSection()
	unknown.Name = "Unknown"
	unknown.Target.Table = "GSTR1 B2CL"
	p.Sections = []profile.Section{broken, unknown, createB2BSection()}

	var updates []Progress
	service, err := NewService(nil, nil)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	service.AddProgressCallback(func(progress *Progress) {
		updates = append(updates, *progress)
	})

	result, err := service.Run([]*models.LedgerTable{createSalesRegister(), createGSTR1B2B()}, p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Sections) != 3 {
		t.Fatalf("expected three section results, got %d", len(result.Sections))
	}
	if result.Sections[0].SkipCode != errors.CodeMissingColumn {
		t.Errorf("expected missing column, got %s", result.Sections[0].SkipCode)
	}
	if result.Sections[1].SkipCode != errors.CodeUnknownTable {
		t.Errorf("expected unknown table, got %s", result.Sections[1].SkipCode)
	}
	if !result.Sections[2].State.Completed() {
		t.Errorf("expected last section to complete, got %s", result.Sections[2].State)
	}
	if len(result.Warnings) < 2 {
		t.Errorf("expected skip warnings, got %v", result.Warnings)
	}

	if len(updates) != 3 {
		t.Fatalf("expected a progress update per section, got %d", len(updates))
	}
	final := updates[2]
	if final.PercentComplete != 100 || final.SkippedSections != 2 || final.CompletedSections != 3 {
		t.Errorf("unexpected final progress %+v", final)
	}
}

func TestServiceNothingReconciled(t *testing.T) {
	p := createTestProfile()
	p.Sections[0].Source.Table = "Purchase Register"
	target := createGSTR1B2B()

	result, err := runService(t, nil, []*models.LedgerTable{target}, p)
	if !errors.HasCode(err, errors.CodeNothingReconciled) {
		t.Fatalf("expected nothing reconciled, got %v", err)
	}
	if result == nil || len(result.Sections) != 1 || !result.Sections[0].Skipped() {
		t.Fatalf("expected the skipped section in the result, got %+v", result)
	}
	if target.Record(target.Len()-1).Kind == models.RecordTotals {
		t.Error("expected no totals when nothing was reconciled")
	}

	summary, ok := errors.AsErrorSummary(err)
	if !ok {
		t.Fatalf("expected the skipped sections as the cause, got %v", err)
	}
	if summary.Total != 1 || !summary.HasCode(errors.CodeUnknownTable) {
		t.Errorf("unexpected section errors %+v", summary)
	}
	if summary != nil && summary.GetExitCode() != result.Errors().GetExitCode() {
		t.Error("expected the cause to match the result errors")
	}
	if len(result.DiffColumns()) != 0 {
		t.Errorf("expected no diff columns, got %v", result.DiffColumns())
	}
}

func TestServiceMissingHeaderRow(t *testing.T) {
	source := models.NewTable("Sales Register", "Sales Register", nil)

	_, err := runService(t, nil, []*models.LedgerTable{source, createGSTR1B2B()}, createTestProfile())
	if !errors.HasCode(err, errors.CodeMissingHeaderRow) {
		t.Errorf("expected missing header row, got %v", err)
	}
}

func TestServiceTableLookupIgnoresCase(t *testing.T) {
	source, target := createSalesRegister(), createGSTR1B2B()
	source.Name = "  sales register"
	target.Name = "gstr1 b2b"

	result, err := runService(t, &Config{SkipTotals: true}, []*models.LedgerTable{source, target}, createTestProfile())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Reconciled() != 1 {
		t.Errorf("expected the section to run, got %s", result)
	}
}

func TestServiceTotalsWarnings(t *testing.T) {
	p := createTestProfile()
	p.Totals = append(p.Totals, profile.Totals{Table: "GSTR1 B2CL"})

	result, err := runService(t, nil, []*models.LedgerTable{createSalesRegister(), createGSTR1B2B()}, p)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "GSTR1 B2CL") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a warning for the unloaded totals table, got %v", result.Warnings)
	}
}

func TestPreprocessorTrimsAndCounts(t *testing.T) {
	source := createSalesRegister()
	source.AppendRow(text("  INV005 "), text("G5"), text("n/a"), num(12.345))

	lookup := map[string]*models.LedgerTable{tableKey(source.Name): source}
	config := &PreprocessingConfig{TrimWhitespace: true, NormalizeDecimalPlaces: 2}

	stats, err := NewTablePreprocessor(config, nil).Preprocess(lookup, createTestProfile())
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}

	if stats.TablesChecked != 1 || stats.RecordsProcessed != 5 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.CellsTrimmed != 1 || source.Record(4).Cell(0).String() != "INV005" {
		t.Errorf("expected identifier trimmed, got %q", source.Record(4).Cell(0).String())
	}
	if stats.NonNumericCells != 1 {
		t.Errorf("expected one non-numeric amount, got %d", stats.NonNumericCells)
	}
	if stats.AmountsRounded != 1 || !source.Record(4).Cell(3).Decimal().Equal(decimal.RequireFromString("12.35")) {
		t.Errorf("expected 12.345 rounded to 12.35, got %v", source.Record(4).Cell(3))
	}
}

func TestPreprocessorReportsRepeatedHeaders(t *testing.T) {
	source := models.NewTable("Sales Register", "", []string{"Invoice Number", "GSTIN", "Invoice Value", " gstin "})
	source.AppendRow(text("INV001"), text("G1"), num(100), text("G1"))
	lookup := map[string]*models.LedgerTable{tableKey(source.Name): source}

	stats, err := NewTablePreprocessor(nil, nil).Preprocess(lookup, createTestProfile())
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}

	want := []string{"' gstin ' in table 'Sales Register' (column 4)"}
	if len(stats.DuplicateHeaders) != 1 || stats.DuplicateHeaders[0] != want[0] {
		t.Errorf("expected %v, got %v", want, stats.DuplicateHeaders)
	}
}
