// Package parsers loads ledger tables from spreadsheet files.
//
// Every sheet of a workbook becomes one LedgerTable named after the sheet.
// The first row of a sheet is its title, the second its header row, and data
// starts on the third row. A CSV file holds a single table named after the
// file.
//
// Supported formats:
//   - .xlsx / .xlsm through excelize
//   - .xls (BIFF8) through extrame/xls
//   - .csv through encoding/csv
//
// Example usage:
//
//	loader, err := parsers.ForPath("sales.xlsx", nil)
//	tables, err := loader.Load("sales.xlsx")
//
//	// several files at once
//	tables, err := parsers.LoadAll([]string{"sales.xlsx", "gstr1.xls"}, nil)
package parsers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/pkg/errors"
	"gst-ledger-reconciler/pkg/logger"
)

// Loader reads every table held by one file.
type Loader interface {
	Load(path string) ([]*models.LedgerTable, error)
}

// LoadConfig holds options shared by every loader.
type LoadConfig struct {
	// Sheets restricts workbook loading to these sheet names. Empty loads all.
	Sheets []string

	// Delimiter is the CSV field separator.
	Delimiter rune

	// Charset is passed to the .xls reader.
	Charset string

	// KeepEmptyRows keeps fully blank data rows instead of dropping
	// trailing ones.
	KeepEmptyRows bool
}

// DefaultLoadConfig returns the configuration used when none is given.
func DefaultLoadConfig() *LoadConfig {
	return &LoadConfig{
		Delimiter: ',',
		Charset:   "utf-8",
	}
}

// BaseLoader carries the behaviour shared by the format loaders: sheet
// filtering, table construction and file error mapping.
type BaseLoader struct {
	config *LoadConfig
	logger logger.Logger
}

// NewBaseLoader creates a BaseLoader for component.
func NewBaseLoader(config *LoadConfig, component string) *BaseLoader {
	if config == nil {
		config = DefaultLoadConfig()
	}
	if config.Delimiter == 0 {
		config.Delimiter = ','
	}
	if config.Charset == "" {
		config.Charset = "utf-8"
	}

	log := logger.GetGlobalLogger().WithComponent(component)
	log.WithFields(logger.Fields{
		"sheets":    len(config.Sheets),
		"delimiter": string(config.Delimiter),
	}).Debug("Created loader")

	return &BaseLoader{
		config: config,
		logger: log,
	}
}

// ForPath returns the loader matching the extension of path.
func ForPath(path string, config *LoadConfig) (Loader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return NewXLSXLoader(config), nil
	case ".xls":
		return NewXLSLoader(config), nil
	case ".csv":
		return NewCSVLoader(config), nil
	default:
		return nil, errors.FileError(errors.CodeUnsupportedFormat, path,
			fmt.Errorf("unsupported file extension %q", filepath.Ext(path)))
	}
}

// LoadAll loads every file in paths. Table names must be unique across all
// files, ignoring case.
func LoadAll(paths []string, config *LoadConfig) ([]*models.LedgerTable, error) {
	log := logger.GetGlobalLogger().WithComponent("loader")

	var tables []*models.LedgerTable
	origin := make(map[string]string)

	for _, path := range paths {
		loader, err := ForPath(path, config)
		if err != nil {
			return nil, err
		}
		loaded, err := loader.Load(path)
		if err != nil {
			return nil, err
		}

		for _, table := range loaded {
			key := strings.ToLower(strings.TrimSpace(table.Name))
			if prev, exists := origin[key]; exists {
				return nil, errors.ConfigurationError(errors.CodeConfigConflict, "table", table.Name,
					fmt.Errorf("table %q is defined in both %s and %s", table.Name, prev, path)).
					WithSuggestion("rename one of the sheets so every table name is unique")
			}
			origin[key] = path
			tables = append(tables, table)
		}

		log.WithFields(logger.Fields{
			"file_path": path,
			"tables":    len(loaded),
		}).Info("Loaded tables")
	}

	return tables, nil
}

// wantSheet reports whether the sheet called name should be loaded.
func (bl *BaseLoader) wantSheet(name string) bool {
	if len(bl.config.Sheets) == 0 {
		return true
	}
	for _, sheet := range bl.config.Sheets {
		if strings.EqualFold(strings.TrimSpace(sheet), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// buildTable turns raw rows into a table: row 0 is the title, row 1 the
// header row. It returns nil for a sheet with no rows at all. A sheet with a
// title but no header row becomes a table without columns; the run rejects
// it when a section references it.
func (bl *BaseLoader) buildTable(name string, rows [][]string) *models.LedgerTable {
	if !bl.config.KeepEmptyRows {
		for len(rows) > 0 && isEmptyRow(rows[len(rows)-1]) {
			rows = rows[:len(rows)-1]
		}
	}
	if len(rows) == 0 {
		bl.logger.WithField("table", name).Debug("Skipping empty sheet")
		return nil
	}

	title := firstNonBlank(rows[0])
	if len(rows) < 2 {
		bl.logger.WithField("table", name).Warn("Sheet has no header row")
		return models.NewTable(name, title, nil)
	}

	headers := cleanHeaders(rows[1])
	width := len(headers)
	for _, row := range rows[2:] {
		if len(row) > width {
			width = len(row)
		}
	}
	for len(headers) < width {
		headers = append(headers, "")
	}

	table := models.NewTable(name, title, headers)
	for _, row := range rows[2:] {
		values := make([]models.Value, len(row))
		for i, raw := range row {
			values[i] = models.ParseCell(raw)
		}
		table.AppendRow(values...)
	}

	bl.logger.WithFields(logger.Fields{
		"table":   name,
		"columns": table.Width(),
		"records": table.Len(),
	}).Debug("Built table")

	return table
}

// openError maps an os error on path to a file error.
func (bl *BaseLoader) openError(path string, err error) error {
	bl.logger.WithError(err).WithField("file_path", path).Error("Failed to open file")

	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, path, err)
	}
	if os.IsPermission(err) {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return errors.FileError(errors.CodeFileCorrupted, path, err)
}

// checkReadable returns a file error when path cannot be opened for reading.
func (bl *BaseLoader) checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return bl.openError(path, err)
	}
	return f.Close()
}

// cleanHeaders trims whitespace and a UTF-8 byte order mark from headers.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
	}
	return cleaned
}

func isEmptyRow(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func firstNonBlank(row []string) string {
	for _, field := range row {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
