package parsers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gst-ledger-reconciler/internal/aggregator"
	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// createTestWorkbook writes a workbook with an empty default sheet, a ledger
// sheet and a sheet holding only a title.
func createTestWorkbook(t *testing.T) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet("Sales Register")
	require.NoError(t, err)
	rows := [][]interface{}{
		{"Sales Register FY 2024-25"},
		{" Invoice Number ", "GSTIN", "Invoice Value", "Taxable Value"},
		{"INV-001", "27AAAPL1234C1Z5", 1180, 1000},
		{"INV-002", "29AAACR5055K1Z1", "1,200.50", "n/a"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sales Register", cell, &row))
	}

	_, err = f.NewSheet("Title Only")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Title Only", "A1", "Nothing below"))

	path := filepath.Join(t.TempDir(), "ledgers.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestXLSXLoader(t *testing.T) {
	path := createTestWorkbook(t)

	tables, err := NewXLSXLoader(nil).Load(path)
	require.NoError(t, err)
	require.Len(t, tables, 2, "empty default sheet should be skipped")

	sales := tables[0]
	assert.Equal(t, "Sales Register", sales.Name)
	assert.Equal(t, "Sales Register FY 2024-25", sales.Title)
	assert.Equal(t, []string{"Invoice Number", "GSTIN", "Invoice Value", "Taxable Value"}, sales.HeaderNames())
	require.Equal(t, 2, sales.Len())

	first := sales.Record(0)
	assert.Equal(t, "INV-001", first.Cell(0).String())
	assert.True(t, first.Cell(2).IsNumber())
	assert.True(t, first.Cell(2).Decimal().Equal(decimal.NewFromInt(1180)))

	second := sales.Record(1)
	assert.True(t, second.Cell(2).Decimal().Equal(decimal.RequireFromString("1200.50")))
	assert.Equal(t, models.KindText, second.Cell(3).Kind)

	pos, ok := sales.ResolveHeader("invoice number")
	assert.True(t, ok)
	assert.Equal(t, 0, pos)

	titleOnly := tables[1]
	assert.Equal(t, "Title Only", titleOnly.Name)
	assert.Equal(t, 0, titleOnly.Width(), "a sheet without header row has no columns")
}

func TestXLSXLoaderSheetFilter(t *testing.T) {
	path := createTestWorkbook(t)

	tables, err := NewXLSXLoader(&LoadConfig{Sheets: []string{"sales register"}}).Load(path)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "Sales Register", tables[0].Name)
}

func TestCSVLoader(t *testing.T) {
	dir := t.TempDir()
	content := "GSTR1 B2B export\n" +
		"\ufeffGSTIN of Recipient,Invoice Number,Invoice Value,Rate,Taxable Value\n" +
		"27AAAPL1234C1Z5,INV-001,1180,18,1000\n" +
		"27AAAPL1234C1Z5,INV-001,1180,5\n" +
		"29AAACR5055K1Z1,INV-002,\"1,200.50\",18,1017.37,extra\n" +
		"\n\n"
	path := writeFile(t, dir, "GSTR1 B2B.csv", content)

	tables, err := NewCSVLoader(nil).Load(path)
	require.NoError(t, err)
	require.Len(t, tables, 1)

	table := tables[0]
	assert.Equal(t, "GSTR1 B2B", table.Name)
	assert.Equal(t, "GSTR1 B2B export", table.Title)
	assert.Equal(t, 6, table.Width(), "ragged rows widen the header row")
	assert.Equal(t, "GSTIN of Recipient", table.HeaderNames()[0])
	assert.Equal(t, 3, table.Len(), "trailing blank rows are dropped")

	assert.True(t, table.Record(1).Cell(4).IsEmpty())
	assert.True(t, table.Record(2).Cell(2).Decimal().Equal(decimal.RequireFromString("1200.50")))
}

func TestCSVLoaderSemicolon(t *testing.T) {
	path := writeFile(t, t.TempDir(), "notes.csv", "Notes\nNote Number;Note Value\nCN-1;250\n")

	tables, err := NewCSVLoader(&LoadConfig{Delimiter: ';'}).Load(path)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"Note Number", "Note Value"}, tables[0].HeaderNames())
}

func TestCSVLoaderRejectsInvalidEncoding(t *testing.T) {
	path := writeFile(t, t.TempDir(), "latin.csv", "title\nname\n\xff\xfe\n")

	_, err := NewCSVLoader(nil).Load(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeFileCorrupted))
}

func TestCSVLoaderEmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.csv", "\n\n")

	tables, err := NewCSVLoader(nil).Load(path)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path string
		want interface{}
	}{
		{"a.xlsx", &XLSXLoader{}},
		{"a.XLSM", &XLSXLoader{}},
		{"a.xls", &XLSLoader{}},
		{"dir/a.csv", &CSVLoader{}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			loader, err := ForPath(tt.path, nil)
			require.NoError(t, err)
			assert.IsType(t, tt.want, loader)
		})
	}

	_, err := ForPath("a.ods", nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnsupportedFormat))
}

func TestMissingFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"absent.xlsx", "absent.xls", "absent.csv"} {
		t.Run(name, func(t *testing.T) {
			loader, err := ForPath(name, nil)
			require.NoError(t, err)

			_, err = loader.Load(filepath.Join(dir, name))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeFileNotFound), "got %v", err)
		})
	}
}

func TestXLSLoaderCorruptFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.xls", "this is not a BIFF workbook")

	_, err := NewXLSLoader(nil).Load(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeFileCorrupted), "got %v", err)
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	xlsx := createTestWorkbook(t)
	csvPath := writeFile(t, dir, "GSTR1 B2B.csv", "t\nInvoice Number,Invoice Value\nINV-001,1180\n")

	tables, err := LoadAll([]string{xlsx, csvPath}, nil)
	require.NoError(t, err)

	names := make([]string, 0, len(tables))
	for _, table := range tables {
		names = append(names, table.Name)
	}
	assert.Equal(t, []string{"Sales Register", "Title Only", "GSTR1 B2B"}, names)
}

func TestLoadAllDuplicateTableNames(t *testing.T) {
	first := writeFile(t, t.TempDir(), "Sales Register.csv", "t\nInvoice Number\nINV-1\n")
	second := writeFile(t, t.TempDir(), "sales register.csv", "t\nInvoice Number\nINV-2\n")

	_, err := LoadAll([]string{first, second}, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfigConflict))
}

func TestXLSXLoaderKeepsDates(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]interface{}{
		{"GSTR1 B2B"},
		{"Invoice Number", "Invoice Date", "Invoice Value"},
		{"INV-001", time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC), 1180},
		{"INV-002", time.Date(2024, time.April, 3, 0, 0, 0, 0, time.UTC), 590},
		{"INV-003", time.Date(2024, time.April, 4, 14, 30, 0, 0, time.UTC), 0},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(t.TempDir(), "dated.xlsx")
	require.NoError(t, f.SaveAs(path))

	tables, err := NewXLSXLoader(nil).Load(path)
	require.NoError(t, err)
	require.Len(t, tables, 1)

	table := tables[0]
	first := table.Record(0).Cell(1)
	assert.Equal(t, models.KindText, first.Kind)
	assert.Equal(t, "2024-04-02", first.String())
	assert.Equal(t, "2024-04-04 14:30:00", table.Record(2).Cell(1).String())
	assert.True(t, table.Record(0).Cell(2).IsNumber(), "amounts stay numeric")

	totals := aggregator.New(nil).Compute(table, aggregator.Spec{Exclude: []string{"Invoice Number"}})
	assert.NotContains(t, totals.Columns, "Invoice Date")
	assert.True(t, totals.Columns["Invoice Value"].Equal(decimal.NewFromInt(1770)))
}

func TestIsDateFormatCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"dd/mm/yyyy", true},
		{"[$-409]d-mmm-yy;@", true},
		{"[h]:mm:ss", true},
		{"#,##0.00", false},
		{`"Rs" #,##0.00`, false},
		{"[Red]0.00;(0.00)", false},
		{"General", false},
		{"0.00%", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, isDateFormatCode(tt.code))
		})
	}

	assert.True(t, isBuiltinDateFormat(14))
	assert.True(t, isBuiltinDateFormat(22))
	assert.False(t, isBuiltinDateFormat(4))
}
