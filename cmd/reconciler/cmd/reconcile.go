package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gst-ledger-reconciler/cmd/reconciler/config"
	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/internal/parsers"
	"gst-ledger-reconciler/internal/profile"
	"gst-ledger-reconciler/internal/reconciler"
	"gst-ledger-reconciler/internal/reporter"
	"gst-ledger-reconciler/pkg/errors"
	"gst-ledger-reconciler/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	inputFiles   []string
	profileName  string
	outputFile   string
	reportFormat string
	reportFile   string
	epsilon      string
	sheets       []string
	delimiter    string
	roundTo      int
	showProgress bool
	noFallback   bool
	skipTotals   bool
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile books-of-account ledgers against GST return ledgers",
	Long: `Reconcile loads every sheet of the input files as a ledger table and
runs the sections of a reconciliation profile over them. Each section
matches a source table against a target table by normalized document
number, compares the mapped amounts within a tolerance, pairs re-keyed
documents by secondary identity, and flags documents found on one side only.

The annotated tables are written to the output workbook:
- DIFF cells are highlighted yellow, with the difference in a "<field> Diff" column
- every cell of a record missing from the other side is highlighted red
- a bold totals row closes each table

Examples:
  # Sales register against GSTR-1 with the built-in profile
  reconciler reconcile --input sales.xlsx --input gstr1.xlsx --profile sales-vs-gstr1

  # Custom profile and a looser tolerance
  reconciler reconcile -i books.xls -i gstr2b.xlsx -p ./purchases.yaml --epsilon 1

  # JSON run report to a file, no totals rows
  reconciler reconcile -i ledgers.xlsx --report-format json --report-file run.json --skip-totals

  # Only some sheets of a large workbook
  reconciler reconcile -i filing.xlsx --sheets "Sales Register,GSTR1 B2B" --progress`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Input flags
	reconcileCmd.Flags().StringSliceVarP(&inputFiles, "input", "i", []string{}, "ledger file (.xlsx, .xls, .csv); repeat for several files (required)")
	reconcileCmd.Flags().StringVarP(&profileName, "profile", "p", "sales-vs-gstr1", "built-in profile name or path to a profile YAML file")
	reconcileCmd.Flags().StringSliceVar(&sheets, "sheets", []string{}, "only load these sheets (default: all)")
	reconcileCmd.Flags().StringVar(&delimiter, "delimiter", "", "csv field delimiter (default ',')")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "reconciled.xlsx", "annotated workbook path")
	reconcileCmd.Flags().StringVarP(&reportFormat, "report-format", "f", "console", "run report format: console, json, csv")
	reconcileCmd.Flags().StringVar(&reportFile, "report-file", "", "run report path (default: stdout)")

	// Matching flags
	reconcileCmd.Flags().StringVarP(&epsilon, "epsilon", "e", "", "amount tolerance; overrides the profile (default 0.01)")
	reconcileCmd.Flags().BoolVar(&noFallback, "no-fallback", false, "do not pair re-keyed documents by secondary identity")
	reconcileCmd.Flags().BoolVar(&skipTotals, "skip-totals", false, "do not append totals rows")
	reconcileCmd.Flags().IntVar(&roundTo, "round", -1, "round mapped amounts to this many decimal places before matching (-1 keeps them)")

	// UI flags
	reconcileCmd.Flags().BoolVar(&showProgress, "progress", false, "show progress indicators")

	// Bind flags to viper
	viper.BindPFlag("input", reconcileCmd.Flags().Lookup("input"))
	viper.BindPFlag("profile", reconcileCmd.Flags().Lookup("profile"))
	viper.BindPFlag("sheets", reconcileCmd.Flags().Lookup("sheets"))
	viper.BindPFlag("delimiter", reconcileCmd.Flags().Lookup("delimiter"))
	viper.BindPFlag("output-file", reconcileCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("report-format", reconcileCmd.Flags().Lookup("report-format"))
	viper.BindPFlag("report-file", reconcileCmd.Flags().Lookup("report-file"))
	viper.BindPFlag("epsilon", reconcileCmd.Flags().Lookup("epsilon"))
	viper.BindPFlag("no-fallback", reconcileCmd.Flags().Lookup("no-fallback"))
	viper.BindPFlag("skip-totals", reconcileCmd.Flags().Lookup("skip-totals"))
	viper.BindPFlag("round", reconcileCmd.Flags().Lookup("round"))
	viper.BindPFlag("progress", reconcileCmd.Flags().Lookup("progress"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file and environment)
	inputFiles = viper.GetStringSlice("input")
	profileName = viper.GetString("profile")
	sheets = viper.GetStringSlice("sheets")
	delimiter = viper.GetString("delimiter")
	outputFile = viper.GetString("output-file")
	reportFormat = viper.GetString("report-format")
	reportFile = viper.GetString("report-file")
	epsilon = viper.GetString("epsilon")
	noFallback = viper.GetBool("no-fallback")
	skipTotals = viper.GetBool("skip-totals")
	roundTo = viper.GetInt("round")
	showProgress = viper.GetBool("progress")

	if len(inputFiles) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "input", nil, nil).
			WithSuggestion("pass at least one ledger file with --input")
	}
	for i, input := range inputFiles {
		if err := validateFileExists(input, fmt.Sprintf("input file %d", i+1)); err != nil {
			return err
		}
	}

	if strings.TrimSpace(profileName) == "" {
		return errors.ValidationError(errors.CodeMissingField, "profile", nil, nil).
			WithSuggestion(fmt.Sprintf("use a profile file or one of: %s", strings.Join(profile.Names(), ", ")))
	}

	if !reporter.OutputFormat(reportFormat).IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report-format", reportFormat, nil).
			WithSuggestion("valid formats: console, json, csv")
	}

	if ext := strings.ToLower(filepath.Ext(outputFile)); ext != ".xlsx" {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-file", outputFile, nil).
			WithSuggestion("the annotated workbook is written as .xlsx")
	}

	if roundTo < -1 || roundTo > 10 {
		return errors.ValidationError(errors.CodeOutOfRange, "round", roundTo, nil).
			WithSuggestion("use -1 to keep amounts as read, or 0 to 10 decimal places")
	}

	// Validate output directories exist
	for _, path := range []string{outputFile, reportFile} {
		if path == "" {
			continue
		}
		dir := filepath.Dir(path)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).WithContext("input", description)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger().WithComponent("cli")

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Starting reconciliation...\n")
		fmt.Fprintf(os.Stderr, "Input files: %s\n", strings.Join(inputFiles, ", "))
		fmt.Fprintf(os.Stderr, "Profile: %s\n", profileName)
		fmt.Fprintf(os.Stderr, "Output workbook: %s\n", outputFile)
	}

	// Create configurations
	loadConfig, err := config.CreateLoadConfig(sheets, delimiter)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "delimiter", delimiter, err)
	}

	reconcilerConfig, err := config.CreateReconcilerConfig(epsilon, noFallback, skipTotals, roundTo)
	if err != nil {
		return errors.WrapIfNeeded(err, errors.CategoryConfiguration, errors.CodeInvalidConfig, "invalid reconciliation settings")
	}

	p, err := profile.Resolve(profileName)
	if err != nil {
		return err
	}

	tables, err := parsers.LoadAll(inputFiles, loadConfig)
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{"files": len(inputFiles), "tables": len(tables)}).Info("Ledgers loaded")

	service, err := reconciler.NewService(reconcilerConfig, logger.GetGlobalLogger())
	if err != nil {
		return err
	}

	if showProgress {
		service.AddProgressCallback(func(progress *reconciler.Progress) {
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %s (%.1f%% complete)",
				progress.CompletedSections, progress.TotalSections,
				progress.CurrentSection, progress.PercentComplete)
		})
	}

	result, runErr := service.Run(tables, p)
	if showProgress {
		fmt.Fprintf(os.Stderr, "\n") // New line after progress
	}
	if result == nil {
		return runErr
	}

	// Nothing was annotated when every section was skipped, so only the
	// report explaining why is written
	if runErr == nil {
		err := logger.TimedOperation("write_workbook", log, func() error {
			return reporter.NewWorkbookWriter(nil, logger.GetGlobalLogger()).Write(tables, result.DiffColumns(), outputFile)
		})
		if err != nil {
			return err
		}
	}

	if err := writeReport(result, log); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}

	if viper.GetBool("verbose") {
		printCompletion(os.Stderr, result, tables)
	}
	return nil
}

func writeReport(result *reconciler.Result, log logger.Logger) error {
	reportConfig := config.CreateReportConfig(reportFormat, viper.GetBool("verbose"))
	generator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return err
	}

	output := os.Stdout
	if reportFile != "" {
		output, err = os.Create(reportFile)
		if err != nil {
			return errors.FileError(errors.CodeWriteFailed, reportFile, err)
		}
		defer output.Close()
	}

	return generator.GenerateReportSafely(result, output)
}

func printCompletion(w io.Writer, result *reconciler.Result, tables []*models.LedgerTable) {
	summary := result.Summary()
	fmt.Fprintf(w, "\nReconciliation completed.\n")
	fmt.Fprintf(w, "Loaded %d tables, reconciled %d of %d sections.\n", len(tables), summary.Reconciled, summary.Sections)
	fmt.Fprintf(w, "Matched %d documents (%d with differences), %d paired by fallback, %d/%d missing.\n",
		summary.Matched, summary.WithDiffs, summary.FallbackResolved, summary.MissingSource, summary.MissingTarget)
	fmt.Fprintf(w, "Annotated workbook: %s\n", outputFile)
	fmt.Fprintf(w, "Processing time: %v\n", result.Duration)
}
