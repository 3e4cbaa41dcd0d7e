package parsers

import (
	"fmt"
	"os"

	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/pkg/errors"
	"gst-ledger-reconciler/pkg/logger"

	"github.com/extrame/xls"
)

// XLSLoader loads legacy BIFF8 workbooks, the format many accounting
// packages still export registers in.
type XLSLoader struct {
	*BaseLoader
}

// NewXLSLoader creates an XLSLoader.
func NewXLSLoader(config *LoadConfig) *XLSLoader {
	return &XLSLoader{BaseLoader: NewBaseLoader(config, "xls_loader")}
}

// Load returns one table per non-empty sheet, in workbook order.
func (l *XLSLoader) Load(path string) (tables []*models.LedgerTable, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, l.openError(path, err)
	}
	defer file.Close()

	// the reader panics on malformed BIFF records
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("file_path", path).Errorf("Workbook reader panicked: %v", r)
			tables = nil
			err = errors.FileError(errors.CodeFileCorrupted, path, fmt.Errorf("malformed xls workbook: %v", r))
		}
	}()

	wb, err := xls.OpenReader(file, l.config.Charset)
	if err != nil {
		l.logger.WithError(err).WithField("file_path", path).Error("Failed to open workbook")
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	if wb == nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, fmt.Errorf("no workbook stream found"))
	}

	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil || !l.wantSheet(sheet.Name) {
			continue
		}
		if table := l.buildTable(sheet.Name, readSheet(sheet)); table != nil {
			tables = append(tables, table)
		}
	}

	l.logger.WithFields(logger.Fields{
		"file_path": path,
		"tables":    len(tables),
	}).Debug("Loaded workbook")

	return tables, nil
}

// readSheet flattens a worksheet into rows of cell text. Rows the sheet does
// not define come back empty.
func readSheet(sheet *xls.WorkSheet) [][]string {
	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheetRow(sheet, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}

		cells := make([]string, 0, row.LastCol()+1)
		for c := 0; c <= row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		for len(cells) > 0 && cells[len(cells)-1] == "" {
			cells = cells[:len(cells)-1]
		}
		rows = append(rows, cells)
	}
	return rows
}

// sheetRow returns row i, or nil when the sheet has no such row.
func sheetRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}
