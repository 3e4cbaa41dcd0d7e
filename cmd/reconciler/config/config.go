package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/internal/parsers"
	"gst-ledger-reconciler/internal/reconciler"
	"gst-ledger-reconciler/internal/reporter"
	"gst-ledger-reconciler/pkg/logger"

	"github.com/shopspring/decimal"
)

// CreateLoadConfig creates the loader configuration. An empty delimiter
// keeps the comma.
func CreateLoadConfig(sheets []string, delimiter string) (*parsers.LoadConfig, error) {
	config := parsers.DefaultLoadConfig()
	config.Sheets = sheets

	if delimiter != "" {
		if delimiter == `\t` {
			delimiter = "\t"
		}
		r, size := utf8.DecodeRuneInString(delimiter)
		if size != len(delimiter) || r == '"' || r == '\n' || r == '\r' {
			return nil, fmt.Errorf("csv delimiter must be a single character, got %q", delimiter)
		}
		config.Delimiter = r
	}

	return config, nil
}

// CreateReconcilerConfig creates a service configuration. An empty epsilon
// keeps the profile tolerance.
func CreateReconcilerConfig(epsilon string, disableFallback, skipTotals bool, roundTo int) (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()

	// Apply CLI overrides
	config.DisableFallback = disableFallback
	config.SkipTotals = skipTotals
	config.Preprocessing.NormalizeDecimalPlaces = int32(roundTo)

	if strings.TrimSpace(epsilon) != "" {
		eps, err := decimal.NewFromString(strings.TrimSpace(epsilon))
		if err != nil {
			return nil, fmt.Errorf("invalid epsilon %q: %w", epsilon, err)
		}
		config.Epsilon = &eps
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string, verbose bool) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()
	config.IncludePreprocessing = verbose

	switch format {
	case "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	default:
		config.Format = reporter.OutputFormat(format)
	}

	return config
}

// CreateLoggerConfig creates the process logger configuration. Verbose
// lowers the level to debug.
func CreateLoggerConfig(level, format string, verbose bool) (*logger.Config, error) {
	config := logger.DefaultConfig()
	if level != "" {
		config.Level = logger.Level(strings.ToLower(level))
	}
	if format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}
	if verbose {
		config.Level = logger.DebugLevel
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SampleTables returns the demo ledgers written by the sample command.
// They cover a document split over two tax lines, a document re-keyed in
// the return and a document missing from the return.
func SampleTables() []*models.LedgerTable {
	num := models.NewNumberFromFloat
	text := models.NewText

	sales := models.NewTable("Sales Register", "Sales Register FY 2024-25",
		[]string{"Invoice Number", "Invoice Date", "GSTIN", "Invoice Value", "Taxable Value", "Integrated Tax"})
	sales.AppendRow(text("INV001"), text("2024-04-02"), text("27AAACB1234F1Z5"), num(1180), num(1000), num(180))
	sales.AppendRow(text("INV002"), text("2024-04-05"), text("29AAGCS5678K1Z2"), num(590), num(500), num(90))
	sales.AppendRow(text("INV003"), text("2024-04-09"), text("07AABCT9012L1Z8"), num(354), num(300), num(54))
	sales.AppendRow(text("INV004"), text("2024-04-12"), text("24AAFCK3456M1Z1"), num(236), num(200), num(36))

	b2b := models.NewTable("GSTR1 B2B", "GSTR-1 B2B Invoices April 2024",
		[]string{"GSTIN of Recipient", "Invoice Number", "Invoice Date", "Invoice Value", "Rate", "Taxable Value", "Integrated Tax"})
	b2b.AppendRow(text("27AAACB1234F1Z5"), text("INV-001"), text("02-04-2024"), num(1180), num(18), num(600), num(108))
	b2b.AppendRow(text("27AAACB1234F1Z5"), text("INV-001"), text("02-04-2024"), num(1180), num(18), num(400), num(72))
	b2b.AppendRow(text("29AAGCS5678K1Z2"), text("INV002X"), text("05-04-2024"), num(590), num(18), num(500), num(90))
	b2b.AppendRow(text("24AAFCK3456M1Z1"), text("INV 004"), text("12-04-2024"), num(246), num(18), num(210), num(36))

	b2clRegister := models.NewTable("B2CL Register", "B2C Large Invoices FY 2024-25",
		[]string{"Invoice Number", "Place Of Supply", "Invoice Value", "Taxable Value"})
	b2clRegister.AppendRow(text("CL/001"), text("33-Tamil Nadu"), num(295000), num(250000))
	b2clRegister.AppendRow(text("CL/002"), text("32-Kerala"), num(354000), num(300000))

	b2cl := models.NewTable("GSTR1 B2CL", "GSTR-1 B2CL Invoices April 2024",
		[]string{"Invoice Number", "Place Of Supply", "Invoice Value", "Rate", "Taxable Value"})
	b2cl.AppendRow(text("CL-001"), text("33-Tamil Nadu"), num(295000), num(18), num(250000))
	b2cl.AppendRow(text("CL-002"), text("32-Kerala"), num(354000), num(18), num(300000))

	return []*models.LedgerTable{sales, b2b, b2clRegister, b2cl}
}
