package cmd

import (
	"fmt"
	"os"
	"strings"

	"gst-ledger-reconciler/cmd/reconciler/config"
	"gst-ledger-reconciler/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
	version   = "dev"
	commit    = "unknown"
	date      = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "GST ledger reconciliation tool",
	Long: `Reconciler compares books-of-account ledgers against GST return
ledgers (GSTR-1, GSTR-2B) section by section. Matching documents are
compared field by field, re-keyed documents are paired by secondary
identity, and unmatched documents are flagged. The annotated tables are
written back as a workbook with diff columns and a totals row per table.

Examples:
  reconciler reconcile --input sales.xlsx --input gstr1.xlsx --profile sales-vs-gstr1 --output-file reconciled.xlsx
  reconciler reconcile --input books.xls --input gstr2b.csv --profile ./my-profile.yaml --report-format json
  reconciler profiles
  reconciler sample --output-dir ./demo
  reconciler version`,
	Version:       getVersionString(),
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in a .env file, the config file and ENV variables.
func initConfig() {
	// A missing .env file is not an error
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)

		// If a config file is specified, read it in.
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(4)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// Read environment variables that match
	viper.SetEnvPrefix("RECONCILER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := setupLogger(); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %s\n", err)
		os.Exit(4)
	}
}

func setupLogger() error {
	logConfig, err := config.CreateLoggerConfig(
		viper.GetString("log-level"),
		viper.GetString("log-format"),
		viper.GetBool("verbose"),
	)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
