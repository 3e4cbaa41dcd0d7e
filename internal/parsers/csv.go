package parsers

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/pkg/errors"
	"gst-ledger-reconciler/pkg/logger"
)

// CSVLoader loads a single table from a CSV export. The table is named after
// the file, without its extension.
type CSVLoader struct {
	*BaseLoader
}

// NewCSVLoader creates a CSVLoader.
func NewCSVLoader(config *LoadConfig) *CSVLoader {
	return &CSVLoader{BaseLoader: NewBaseLoader(config, "csv_loader")}
}

// Load reads the whole file as one table.
func (l *CSVLoader) Load(path string) ([]*models.LedgerTable, error) {
	l.logger.WithField("file_path", path).Debug("Opening CSV file")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, l.openError(path, err)
	}
	if !utf8.Valid(data) {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, nil).
			WithSuggestion("save the file with UTF-8 encoding")
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = l.config.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		line := 0
		if perr, ok := err.(*csv.ParseError); ok {
			line = perr.Line
		}
		l.logger.WithError(err).WithField("file_path", path).Error("Failed to read CSV file")
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, "", line, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	table := l.buildTable(name, rows)
	if table == nil {
		return nil, nil
	}

	l.logger.WithFields(logger.Fields{
		"file_path": path,
		"records":   table.Len(),
	}).Debug("Loaded CSV file")

	return []*models.LedgerTable{table}, nil
}
