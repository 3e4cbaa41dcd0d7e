package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"gst-ledger-reconciler/pkg/errors"
	"gst-ledger-reconciler/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler writing to stderr
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
		out:     os.Stderr,
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}

	if summary, ok := errors.AsErrorSummary(err); ok {
		fmt.Fprintf(h.out, "Error: %s\n", summary.Error())
		h.printSummary(summary)
		return summary.GetExitCode()
	}

	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	exitCode := err.GetExitCode()
	summary, hasSummary := errors.AsErrorSummary(err.Cause)
	if hasSummary {
		h.printSummary(summary)
		if code := summary.GetExitCode(); code > exitCode {
			exitCode = code
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil && !hasSummary {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return exitCode
}

// printSummary lists every collected error, one per line.
func (h *CLIErrorHandler) printSummary(summary *errors.ErrorSummary) {
	if summary.Total == 0 {
		return
	}
	fmt.Fprintf(h.out, "\nSkipped sections:\n")
	for _, err := range summary.Errors {
		fmt.Fprintf(h.out, "  - %s\n", err.Message)
		if err.Suggestion != "" {
			fmt.Fprintf(h.out, "    %s\n", err.Suggestion)
		}
	}
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	return 1
}

func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Ledger files must be .xlsx, .xlsm, .xls or .csv
• Save workbooks that fail to open again from a spreadsheet application`

	case errors.CategoryParse:
		return `Parse error help:
• Row 1 of every sheet is the title and row 2 the header row
• Data rows start on row 3
• Save CSV files in UTF-8 encoding`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required flags have values
• Use 'reconciler reconcile --help' to see all available options`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check the table and header names in the profile against the sheets
• Use 'reconciler profiles' to list the built-in profiles
• Verify configuration file syntax if using --config`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• Every skipped section is listed with the header or table it is missing
• Check the sheet names of the input files against the profile tables`

	default:
		return `For more help:
• Use 'reconciler --help' for general help
• Use 'reconciler reconcile --help' for command-specific help`
	}
}

// Error detection helpers

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if err == syscall.ENOSPC {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
