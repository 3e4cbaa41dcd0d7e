package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"gst-ledger-reconciler/cmd/reconciler/config"
	"gst-ledger-reconciler/internal/profile"
	"gst-ledger-reconciler/internal/reporter"
	"gst-ledger-reconciler/pkg/errors"
	"gst-ledger-reconciler/pkg/logger"

	"github.com/spf13/cobra"
)

const (
	sampleWorkbook = "gst-sample.xlsx"
	sampleProfile  = "sales-vs-gstr1.yaml"
)

var sampleDir string

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Write a demo workbook and profile",
	Long: `Sample writes a small sales register, its GSTR-1 B2B and B2CL returns,
and the matching profile. The B2B return splits one invoice over two tax
lines, re-keys another and omits a third, so a reconcile run shows a clean
match, a fallback pair, a difference and a missing document.

Example:
  reconciler sample --output-dir ./demo
  reconciler reconcile -i ./demo/gst-sample.xlsx -p ./demo/sales-vs-gstr1.yaml -o ./demo/reconciled.xlsx`,
	RunE: runSample,
}

func init() {
	rootCmd.AddCommand(sampleCmd)
	sampleCmd.Flags().StringVarP(&sampleDir, "output-dir", "d", ".", "directory for the sample files")
}

func runSample(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(sampleDir, 0o755); err != nil {
		return errors.FileError(errors.CodeWriteFailed, sampleDir, err)
	}

	workbook := filepath.Join(sampleDir, sampleWorkbook)
	if err := reporter.NewWorkbookWriter(nil, logger.GetGlobalLogger()).Write(config.SampleTables(), nil, workbook); err != nil {
		return err
	}

	p, ok := profile.Builtin("sales-vs-gstr1")
	if !ok {
		return errors.InternalError(errors.CodeUnexpectedError, "sample", fmt.Errorf("built-in profile sales-vs-gstr1 is missing"))
	}
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	profilePath := filepath.Join(sampleDir, sampleProfile)
	if err := os.WriteFile(profilePath, data, 0o644); err != nil {
		return errors.FileError(errors.CodeWriteFailed, profilePath, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nWrote %s\n", workbook, profilePath)
	return nil
}
