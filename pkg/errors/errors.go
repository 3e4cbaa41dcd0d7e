// Package errors defines the categorised error type shared by the loader,
// the reconciliation engine and the CLI.
//
// Recoverable engine conditions (a section skipped because a header is
// missing, or because a table has nothing to index) are reported as
// *ReconcilerError values carrying the section and table in Context, so the
// caller can log them as warnings and keep going. Only structural problems
// and NothingReconciled are returned as hard errors.
package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategoryParse          ErrorCategory = "parse"
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound      ErrorCode = "file_not_found"
	CodeFilePermission    ErrorCode = "file_permission"
	CodeFileCorrupted     ErrorCode = "file_corrupted"
	CodeUnsupportedFormat ErrorCode = "unsupported_format"
	CodeWriteFailed       ErrorCode = "write_failed"

	// Parse errors
	CodeInvalidFormat    ErrorCode = "invalid_format"
	CodeMissingHeaderRow ErrorCode = "missing_header_row"

	// Validation errors
	CodeMissingField ErrorCode = "missing_field"
	CodeOutOfRange   ErrorCode = "out_of_range"

	// Configuration errors
	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeMissingConfig  ErrorCode = "missing_config"
	CodeConfigConflict ErrorCode = "config_conflict"
	CodeMissingColumn  ErrorCode = "missing_column"
	CodeUnknownTable   ErrorCode = "unknown_table"

	// Reconciliation errors
	CodeNoIndexableRecords ErrorCode = "no_indexable_records"
	CodeNothingReconciled  ErrorCode = "nothing_reconciled"
	CodeProcessingError    ErrorCode = "processing_error"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// IsRecoverable reports whether the error only skips one section of a run.
func (e *ReconcilerError) IsRecoverable() bool {
	switch e.Code {
	case CodeMissingColumn, CodeUnknownTable, CodeNoIndexableRecords:
		return true
	default:
		return false
	}
}

// GetExitCode returns an appropriate exit code for the error
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReconciliation, CategoryInternal:
		return 5
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(category ErrorCategory, code ErrorCode, message string, err error) *ReconcilerError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileCorrupted:
		message = fmt.Sprintf("file appears to be corrupted: %s", path)
		suggestion = "open the workbook in a spreadsheet application and save it again"
	case CodeUnsupportedFormat:
		message = fmt.Sprintf("unsupported ledger file format: %s", path)
		suggestion = "use an .xlsx, .xls or .csv file"
	case CodeWriteFailed:
		message = fmt.Sprintf("failed to write file: %s", path)
		suggestion = "check that the output directory exists and is writable"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	return build(CategoryFile, code, message, err).
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ParseError creates a parsing-related error for a sheet of a ledger file
func ParseError(code ErrorCode, file, sheet string, row int, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeMissingHeaderRow:
		message = fmt.Sprintf("sheet '%s' in %s has no header row", sheet, file)
		suggestion = "the first row must hold the title and the second row the column headers"
	case CodeInvalidFormat:
		message = fmt.Sprintf("invalid content in %s sheet '%s' at row %d", file, sheet, row)
		suggestion = "check the sheet layout and data integrity"
	default:
		message = fmt.Sprintf("parse error in %s sheet '%s'", file, sheet)
		suggestion = "check the file format and data integrity"
	}

	return build(CategoryParse, code, message, err).
		WithSuggestion(suggestion).
		WithContext("file", file).
		WithContext("sheet", sheet).
		WithContext("row", row)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return build(CategoryValidation, code, message, err).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the profile documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this setting in the profile or on the command line"
	case CodeConfigConflict:
		message = fmt.Sprintf("configuration conflict with setting '%s': %v", setting, value)
		suggestion = "resolve the conflicting settings"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return build(CategoryConfiguration, code, message, err).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// SectionSkipped creates the recoverable error that causes one reconciliation
// section to be skipped. detail names the header or table at fault.
func SectionSkipped(code ErrorCode, section, table, detail string) *ReconcilerError {
	var category ErrorCategory
	var message, suggestion string

	switch code {
	case CodeMissingColumn:
		category = CategoryConfiguration
		message = fmt.Sprintf("section '%s': header '%s' not found in table '%s'", section, detail, table)
		suggestion = "check the header spelling in the sheet or the profile"
	case CodeUnknownTable:
		category = CategoryConfiguration
		message = fmt.Sprintf("section '%s': table '%s' was not loaded", section, table)
		suggestion = "check the sheet names in the input files"
	case CodeNoIndexableRecords:
		category = CategoryReconciliation
		message = fmt.Sprintf("section '%s': table '%s' has no indexable records in column '%s'", section, table, detail)
		suggestion = "the identifier column is blank or only holds total rows"
	default:
		category = CategoryReconciliation
		message = fmt.Sprintf("section '%s' skipped for table '%s': %s", section, table, detail)
	}

	result := New(category, code, message).
		WithContext("section", section).
		WithContext("table", table)
	if detail != "" {
		result.WithContext("detail", detail)
	}
	if suggestion != "" {
		result.WithSuggestion(suggestion)
	}
	return result
}

// ReconciliationError creates a reconciliation-related error
func ReconciliationError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeNothingReconciled:
		message = fmt.Sprintf("nothing reconciled during %s: every section was skipped", operation)
		suggestion = "review the warnings above; each names the missing header or table"
	case CodeProcessingError:
		message = fmt.Sprintf("processing error during %s", operation)
		suggestion = "check the input tables and try again"
	default:
		message = fmt.Sprintf("reconciliation error during %s", operation)
		suggestion = "review the data and configuration"
	}

	return build(CategoryReconciliation, code, message, err).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeUnexpectedError:
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	default:
		message = fmt.Sprintf("internal error during %s", operation)
		suggestion = "try again or contact support if the problem persists"
	}

	return build(CategoryInternal, code, message, err).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total      int                   `json:"total"`
	ByCategory map[ErrorCategory]int `json:"by_category"`
	ByCode     map[ErrorCode]int     `json:"by_code"`
	Errors     []*ReconcilerError    `json:"errors"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*ReconcilerError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if summary.Errors == nil {
		summary.Errors = []*ReconcilerError{}
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var codes []string
	for code, count := range es.ByCode {
		codes = append(codes, fmt.Sprintf("%s: %d", code, count))
	}
	sort.Strings(codes)

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(codes, ", "))
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}

	return maxCode
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// AsErrorSummary extracts an ErrorSummary from an error chain
func AsErrorSummary(err error) (*ErrorSummary, bool) {
	var summary *ErrorSummary
	if errors.As(err, &summary) {
		return summary, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr.Code == code
	}
	return false
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return Wrap(err, category, code, message)
}
