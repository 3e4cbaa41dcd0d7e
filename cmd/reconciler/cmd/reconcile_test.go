package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gst-ledger-reconciler/pkg/errors"
	"gst-ledger-reconciler/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xuri/excelize/v2"
)

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := filepath.Join(tmpDir, "valid.csv")
	if err := os.WriteFile(validFile, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name        string
		filePath    string
		expectError bool
	}{
		{"valid file", validFile, false},
		{"empty path", "", true},
		{"non-existent file", "/non/existent/file.csv", true},
		{"directory instead of file", tmpDir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "input file 1")

			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	if err := validateFileExists("/non/existent/file.csv", "input file 1"); !errors.HasCode(err, errors.CodeFileNotFound) {
		t.Errorf("expected file_not_found, got %v", err)
	}
}

func TestValidateReconcileFlags(t *testing.T) {
	tmpDir := t.TempDir()
	input := filepath.Join(tmpDir, "sales.csv")
	if err := os.WriteFile(input, []byte("Sales Register\nInvoice Number,Invoice Value\nINV001,100\n"), 0644); err != nil {
		t.Fatalf("failed to create input file: %v", err)
	}
	output := filepath.Join(tmpDir, "out.xlsx")

	valid := func() {
		viper.Set("input", []string{input})
		viper.Set("profile", "sales-vs-gstr1")
		viper.Set("output-file", output)
		viper.Set("report-format", "console")
		viper.Set("round", -1)
	}

	tests := []struct {
		name          string
		setupFlags    func()
		expectError   bool
		errorContains string
	}{
		{
			name:       "valid flags",
			setupFlags: valid,
		},
		{
			name: "missing input",
			setupFlags: func() {
				valid()
				viper.Set("input", []string{})
			},
			expectError:   true,
			errorContains: "input",
		},
		{
			name: "input does not exist",
			setupFlags: func() {
				valid()
				viper.Set("input", []string{filepath.Join(tmpDir, "missing.xlsx")})
			},
			expectError:   true,
			errorContains: "file not found",
		},
		{
			name: "empty profile",
			setupFlags: func() {
				valid()
				viper.Set("profile", " ")
			},
			expectError:   true,
			errorContains: "profile",
		},
		{
			name: "invalid report format",
			setupFlags: func() {
				valid()
				viper.Set("report-format", "xml")
			},
			expectError:   true,
			errorContains: "report-format",
		},
		{
			name: "workbook must be xlsx",
			setupFlags: func() {
				valid()
				viper.Set("output-file", filepath.Join(tmpDir, "out.csv"))
			},
			expectError:   true,
			errorContains: "output-file",
		},
		{
			name: "rounding out of range",
			setupFlags: func() {
				valid()
				viper.Set("round", 12)
			},
			expectError:   true,
			errorContains: "round",
		},
		{
			name: "output directory missing",
			setupFlags: func() {
				valid()
				viper.Set("report-file", filepath.Join(tmpDir, "nope", "run.json"))
			},
			expectError:   true,
			errorContains: "output directory does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			tt.setupFlags()

			err := validateReconcileFlags(&cobra.Command{}, []string{})

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				} else if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("expected error to contain '%s', got: %v", tt.errorContains, err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
	viper.Reset()
}

func TestReconcileCommandHelp(t *testing.T) {
	cmd := reconcileCmd

	for _, name := range []string{"input", "profile", "output-file", "report-format", "report-file", "epsilon", "no-fallback", "skip-totals", "progress"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("%s flag not found", name)
		}
	}

	var helpOutput bytes.Buffer
	cmd.SetOut(&helpOutput)
	cmd.Help()
	cmd.SetOut(nil)

	helpText := helpOutput.String()
	for _, section := range []string{"Usage:", "Examples:", "Flags:", "--input", "--profile", "--epsilon"} {
		if !strings.Contains(helpText, section) {
			t.Errorf("help text should contain '%s'", section)
		}
	}
}

func TestSampleAndReconcile(t *testing.T) {
	quiet, err := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Format: logger.TextFormat, Writer: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	previous := logger.GetGlobalLogger()
	logger.SetGlobalLogger(quiet)
	defer logger.SetGlobalLogger(previous)

	dir := t.TempDir()
	sampleDir = dir

	var sampleOut bytes.Buffer
	sampleCmd.SetOut(&sampleOut)
	defer sampleCmd.SetOut(nil)
	if err := runSample(sampleCmd, nil); err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	if !strings.Contains(sampleOut.String(), sampleWorkbook) {
		t.Errorf("expected sample output to name the workbook, got %q", sampleOut.String())
	}

	output := filepath.Join(dir, "reconciled.xlsx")
	report := filepath.Join(dir, "run.json")

	viper.Reset()
	defer viper.Reset()
	viper.Set("input", []string{filepath.Join(dir, sampleWorkbook)})
	viper.Set("profile", filepath.Join(dir, sampleProfile))
	viper.Set("output-file", output)
	viper.Set("report-format", "json")
	viper.Set("report-file", report)
	viper.Set("round", -1)

	if err := validateReconcileFlags(reconcileCmd, nil); err != nil {
		t.Fatalf("flags rejected: %v", err)
	}
	if err := runReconcile(reconcileCmd, nil); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var decoded struct {
		Profile string `json:"profile"`
		Summary struct {
			Reconciled       int `json:"reconciled"`
			Matched          int `json:"matched"`
			FallbackResolved int `json:"fallback_resolved"`
			MissingSource    int `json:"missing_source"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON report: %v", err)
	}
	if decoded.Profile != "sales-vs-gstr1" || decoded.Summary.Reconciled != 2 {
		t.Errorf("unexpected report header %+v", decoded)
	}
	if decoded.Summary.Matched != 4 || decoded.Summary.FallbackResolved != 1 || decoded.Summary.MissingSource != 1 {
		t.Errorf("unexpected summary %+v", decoded.Summary)
	}

	f, err := excelize.OpenFile(output)
	if err != nil {
		t.Fatalf("annotated workbook not readable: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 4 {
		t.Errorf("expected four sheets, got %v", sheets)
	}
	rows, err := f.GetRows("Sales Register")
	if err != nil {
		t.Fatalf("failed to read sheet: %v", err)
	}
	if !strings.Contains(strings.Join(rows[1], ","), "Invoice Value Diff") {
		t.Errorf("expected injected diff columns, got %v", rows[1])
	}
	if last := rows[len(rows)-1]; len(last) == 0 || last[0] != "Total" {
		t.Errorf("expected a totals row, got %v", last)
	}
}

func TestCLIErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		exitCode int
		contains []string
	}{
		{
			name:     "nil error",
			err:      nil,
			exitCode: 0,
		},
		{
			name:     "file error",
			err:      errors.FileError(errors.CodeFileNotFound, "books.xlsx", nil),
			exitCode: 2,
			contains: []string{"file not found: books.xlsx", "Suggestion:", "file_path: books.xlsx"},
		},
		{
			name: "nothing reconciled",
			err: errors.ReconciliationError(errors.CodeNothingReconciled, "reconcile", errors.NewErrorSummary([]*errors.ReconcilerError{
				errors.SectionSkipped(errors.CodeUnknownTable, "B2CL invoices", "GSTR1 B2CL", ""),
			})),
			exitCode: 5,
			contains: []string{"every section was skipped", "Skipped sections:", "table 'GSTR1 B2CL' was not loaded", "Reconciliation error help"},
		},
		{
			name: "section errors only",
			err: errors.NewErrorSummary([]*errors.ReconcilerError{
				errors.SectionSkipped(errors.CodeMissingColumn, "B2B invoices", "Sales Register", "GSTIN"),
			}),
			exitCode: 4,
			contains: []string{"header 'GSTIN' not found in table 'Sales Register'"},
		},
		{
			name:     "plain error",
			err:      fmt.Errorf("boom"),
			exitCode: 1,
			contains: []string{"Error: boom"},
		},
		{
			name:     "permission error",
			err:      os.ErrPermission,
			exitCode: 2,
			contains: []string{"Permission denied"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			handler := &CLIErrorHandler{logger: logger.GetGlobalLogger(), out: &out}

			if code := handler.HandleError(tt.err); code != tt.exitCode {
				t.Errorf("expected exit code %d, got %d", tt.exitCode, code)
			}
			for _, want := range tt.contains {
				if !strings.Contains(out.String(), want) {
					t.Errorf("expected output to contain %q, got:\n%s", want, out.String())
				}
			}
		})
	}
}

func TestListProfiles(t *testing.T) {
	var out bytes.Buffer
	if err := listProfiles(&out); err != nil {
		t.Fatalf("listProfiles failed: %v", err)
	}
	for _, want := range []string{"sales-vs-gstr1", "cdnr-vs-gstr1", "purchases-vs-gstr2b", "B2B invoices: Sales Register -> GSTR1 B2B", "whole document: Invoice Value"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected profile listing to contain %q\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := printProfileYAML(&out, "sales-vs-gstr1"); err != nil {
		t.Fatalf("printProfileYAML failed: %v", err)
	}
	if !strings.Contains(out.String(), "name: sales-vs-gstr1") {
		t.Errorf("expected profile YAML, got\n%s", out.String())
	}
}
