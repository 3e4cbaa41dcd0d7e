package reporter

import (
	"fmt"
	"os"
	"strings"

	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/pkg/errors"
	"gst-ledger-reconciler/pkg/logger"

	"github.com/xuri/excelize/v2"
)

// maxSheetName is the longest sheet name a spreadsheet application accepts.
const maxSheetName = 31

// WorkbookConfig controls how annotated tables are rendered.
type WorkbookConfig struct {
	// DiffFill and MissingFill are the RGB fills of DIFF and MISSING cells.
	DiffFill    string `json:"diff_fill"`
	MissingFill string `json:"missing_fill"`

	// NumberFormat applies to numeric cells of diff columns.
	NumberFormat string `json:"number_format"`

	ColumnWidth float64 `json:"column_width"`

	// FreezeHeader keeps the title and header rows visible when scrolling.
	FreezeHeader bool `json:"freeze_header"`
}

// DefaultWorkbookConfig returns the default rendering: yellow differences,
// red missing records.
func DefaultWorkbookConfig() *WorkbookConfig {
	return &WorkbookConfig{
		DiffFill:     "FFFF00",
		MissingFill:  "FFC7CE",
		NumberFormat: "#,##0.00",
		ColumnWidth:  18,
		FreezeHeader: true,
	}
}

// WorkbookWriter saves annotated tables as one xlsx workbook, one sheet per
// table, laid out the way they were read: title row, header row, records.
type WorkbookWriter struct {
	config *WorkbookConfig
	logger logger.Logger
}

// NewWorkbookWriter creates a writer. Nil arguments use the defaults.
func NewWorkbookWriter(config *WorkbookConfig, log logger.Logger) *WorkbookWriter {
	if config == nil {
		config = DefaultWorkbookConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &WorkbookWriter{
		config: config,
		logger: log.WithComponent("workbook"),
	}
}

type cellStyle struct {
	fill   string
	bold   bool
	number bool
}

type sheetWriter struct {
	file   *excelize.File
	config *WorkbookConfig
	styles map[cellStyle]int
}

// Write renders tables into a new workbook at path. Tables without a
// header row have nothing to show and are left out. diffColumns lists the
// injected diff headers by table name; their numbers get the diff number
// format.
func (w *WorkbookWriter) Write(tables []*models.LedgerTable, diffColumns map[string][]string, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	sw := &sheetWriter{file: f, config: w.config, styles: make(map[cellStyle]int)}
	defaultSheet := f.GetSheetName(0)
	used := make(map[string]bool)
	written := 0

	diffs := make(map[string]map[string]bool, len(diffColumns))
	for table, headers := range diffColumns {
		key := foldName(table)
		if diffs[key] == nil {
			diffs[key] = make(map[string]bool)
		}
		for _, header := range headers {
			diffs[key][foldName(header)] = true
		}
	}

	for _, table := range tables {
		if table.Width() == 0 {
			w.logger.WithField("table", table.Name).Debug("Table has no header row, not written")
			continue
		}

		name := sheetName(table.Name, used)
		if written == 0 {
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return errors.FileError(errors.CodeWriteFailed, path, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return errors.FileError(errors.CodeWriteFailed, path, err)
		}

		if err := sw.writeTable(name, table, diffs[foldName(table.Name)]); err != nil {
			return errors.FileError(errors.CodeWriteFailed, path, err).WithContext("table", table.Name)
		}
		written++

		w.logger.WithFields(logger.Fields{
			"table":   table.Name,
			"sheet":   name,
			"records": table.Len(),
		}).Debug("Table written")
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		code := errors.CodeWriteFailed
		if os.IsPermission(err) {
			code = errors.CodeFilePermission
		}
		return errors.FileError(code, path, err)
	}

	w.logger.WithFields(logger.Fields{"path": path, "sheets": written}).Info("Workbook written")
	return nil
}

func (sw *sheetWriter) writeTable(sheet string, table *models.LedgerTable, diffHeaders map[string]bool) error {
	f := sw.file
	width := table.Width()

	if table.Title != "" {
		if err := f.SetCellStr(sheet, "A1", table.Title); err != nil {
			return err
		}
	}

	headers := table.HeaderNames()
	headerRow := make([]interface{}, len(headers))
	diffColumn := make([]bool, len(headers))
	for i, header := range headers {
		headerRow[i] = header
		diffColumn[i] = diffHeaders[foldName(header)]
	}
	if err := f.SetSheetRow(sheet, "A2", &headerRow); err != nil {
		return err
	}
	headerStyle, err := sw.style(cellStyle{bold: true})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 2, 2, headerStyle); err != nil {
		return err
	}

	for pos, rec := range table.Records() {
		row := models.SheetRow(pos) + 1
		cols := width
		if len(rec.Cells) > cols {
			cols = len(rec.Cells)
		}

		missing := rec.IsMissing()
		for col := 0; col < cols; col++ {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}

			value := rec.Cell(col)
			if err := sw.setValue(sheet, cell, value); err != nil {
				return err
			}

			style := cellStyle{
				bold:   rec.Kind == models.RecordTotals,
				number: value.IsNumber() && col < len(diffColumn) && diffColumn[col],
			}
			switch {
			case missing:
				style.fill = sw.config.MissingFill
			case rec.MarkAt(col) == models.MarkDiff:
				style.fill = sw.config.DiffFill
			}
			if style == (cellStyle{}) {
				continue
			}

			id, err := sw.style(style)
			if err != nil {
				return err
			}
			if err := f.SetCellStyle(sheet, cell, cell, id); err != nil {
				return err
			}
		}
	}

	lastCol, err := excelize.ColumnNumberToName(width)
	if err != nil {
		return err
	}
	if sw.config.ColumnWidth > 0 {
		if err := f.SetColWidth(sheet, "A", lastCol, sw.config.ColumnWidth); err != nil {
			return err
		}
	}
	if sw.config.FreezeHeader {
		return f.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      models.DataOffset,
			TopLeftCell: fmt.Sprintf("A%d", models.DataOffset+1),
			ActivePane:  "bottomLeft",
		})
	}
	return nil
}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// setValue writes numbers as numbers so the sheet can sum them. Numbers
// typed with leading zeros are identifiers and keep their text.
func (sw *sheetWriter) setValue(sheet, cell string, value models.Value) error {
	switch value.Kind {
	case models.KindNumber:
		if hasLeadingZero(value.Text) {
			return sw.file.SetCellStr(sheet, cell, value.Text)
		}
		return sw.file.SetCellFloat(sheet, cell, value.Number.InexactFloat64(), -1, 64)
	case models.KindText:
		return sw.file.SetCellStr(sheet, cell, value.Text)
	default:
		return nil
	}
}

func (sw *sheetWriter) style(s cellStyle) (int, error) {
	if id, ok := sw.styles[s]; ok {
		return id, nil
	}

	style := &excelize.Style{}
	if s.bold {
		style.Font = &excelize.Font{Bold: true}
	}
	if s.fill != "" {
		style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{s.fill}}
	}
	if s.number && sw.config.NumberFormat != "" {
		format := sw.config.NumberFormat
		style.CustomNumFmt = &format
	}

	id, err := sw.file.NewStyle(style)
	if err != nil {
		return 0, err
	}
	sw.styles[s] = id
	return id, nil
}

func hasLeadingZero(text string) bool {
	return len(text) > 1 && text[0] == '0' && text[1] != '.'
}

// sheetName turns a table name into a unique, valid sheet name.
func sheetName(table string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(table))
	name = strings.Trim(name, "'")
	if name == "" {
		name = "Sheet"
	}
	name = truncateRunes(name, maxSheetName)

	candidate := name
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		candidate = truncateRunes(name, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
