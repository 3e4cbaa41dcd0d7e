package parsers

import (
	"strconv"
	"strings"
	"time"

	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/pkg/errors"
	"gst-ledger-reconciler/pkg/logger"

	"github.com/xuri/excelize/v2"
)

// XLSXLoader loads Office Open XML workbooks.
type XLSXLoader struct {
	*BaseLoader
}

// NewXLSXLoader creates an XLSXLoader.
func NewXLSXLoader(config *LoadConfig) *XLSXLoader {
	return &XLSXLoader{BaseLoader: NewBaseLoader(config, "xlsx_loader")}
}

// Load returns one table per non-empty sheet, in workbook order.
func (l *XLSXLoader) Load(path string) ([]*models.LedgerTable, error) {
	if err := l.checkReadable(path); err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		l.logger.WithError(err).WithField("file_path", path).Error("Failed to open workbook")
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	defer f.Close()

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	dates := &dateCells{file: f, date1904: date1904, styles: make(map[int]bool)}

	var tables []*models.LedgerTable
	for _, sheet := range f.GetSheetList() {
		if !l.wantSheet(sheet) {
			continue
		}

		// raw values keep amounts free of display formatting
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidFormat, path, sheet, 0, err)
		}
		dates.rewrite(sheet, rows)

		if table := l.buildTable(sheet, rows); table != nil {
			tables = append(tables, table)
		}
	}

	l.logger.WithFields(logger.Fields{
		"file_path": path,
		"tables":    len(tables),
	}).Debug("Loaded workbook")

	return tables, nil
}

// dateCells turns date-formatted serial numbers back into ISO dates so they
// load as text rather than as amounts.
type dateCells struct {
	file     *excelize.File
	date1904 bool
	styles   map[int]bool
}

func (d *dateCells) rewrite(sheet string, rows [][]string) {
	for r, row := range rows {
		for c, raw := range row {
			if text, ok := d.format(sheet, r, c, raw); ok {
				row[c] = text
			}
		}
	}
}

func (d *dateCells) format(sheet string, row, col int, raw string) (string, bool) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", false
	}
	cell, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return "", false
	}
	styleID, err := d.file.GetCellStyle(sheet, cell)
	if err != nil || styleID == 0 {
		return "", false
	}

	isDate, seen := d.styles[styleID]
	if !seen {
		isDate = d.isDateStyle(styleID)
		d.styles[styleID] = isDate
	}
	if !isDate {
		return "", false
	}

	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return "", false
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format(time.DateOnly), true
	}
	return t.Format(time.DateTime), true
}

func (d *dateCells) isDateStyle(styleID int) bool {
	style, err := d.file.GetStyle(styleID)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return isDateFormatCode(*style.CustomNumFmt)
	}
	return isBuiltinDateFormat(style.NumFmt)
}

// isBuiltinDateFormat reports whether id is one of the built-in date or
// time number formats, including the East Asian ones.
func isBuiltinDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 45 && id <= 47, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode reports whether a custom number format renders a date or
// time. Quoted literals, escaped characters and bracketed sections such as
// colors and locales are ignored.
func isDateFormatCode(code string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case inQuote:
			inQuote = ch != '"'
		case inBracket:
			inBracket = ch != ']'
		case ch == '"':
			inQuote = true
		case ch == '[':
			inBracket = true
		case ch == '\\' || ch == '_' || ch == '*':
			i++
		default:
			b.WriteByte(ch)
		}
	}
	return strings.ContainsAny(strings.ToLower(b.String()), "ydhs")
}
