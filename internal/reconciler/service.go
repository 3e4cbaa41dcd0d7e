// Package reconciler runs reconciliation profiles over loaded ledger tables.
//
// A run executes every section of a profile in order. Each section matches
// one source table against one target table, injects diff columns into the
// source, and annotates both tables in place. Sections that cannot run,
// because a header or a table is missing, are skipped with a warning and
// the run continues. When every section touching a table has finished, the
// totals pass appends one totals record per configured table.
//
// Example usage:
//
//	service, err := reconciler.NewService(reconciler.DefaultConfig(), nil)
//	service.AddProgressCallback(func(progress *reconciler.Progress) {
//		fmt.Printf("%.0f%% - %s\n", progress.PercentComplete, progress.CurrentSection)
//	})
//	result, err := service.Run(tables, p)
package reconciler

import (
	"fmt"
	"time"

	"gst-ledger-reconciler/internal/aggregator"
	"gst-ledger-reconciler/internal/matcher"
	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/internal/profile"
	"gst-ledger-reconciler/pkg/errors"
	"gst-ledger-reconciler/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config holds configuration options for the reconciliation service
type Config struct {
	// Epsilon overrides the profile tolerance when set.
	Epsilon *decimal.Decimal

	// DisableFallback turns the fallback pass off for every section.
	DisableFallback bool

	// SkipTotals leaves the tables without totals records.
	SkipTotals bool

	Preprocessing *PreprocessingConfig
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		Preprocessing: DefaultPreprocessingConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Epsilon != nil && !c.Epsilon.IsPositive() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "epsilon", c.Epsilon.String(), nil).
			WithSuggestion("epsilon must be greater than zero")
	}
	return nil
}

// Progress tracks the sections of a running reconciliation
type Progress struct {
	RunID             string        `json:"run_id"`
	TotalSections     int           `json:"total_sections"`
	CompletedSections int           `json:"completed_sections"`
	SkippedSections   int           `json:"skipped_sections"`
	CurrentSection    string        `json:"current_section"`
	PercentComplete   float64       `json:"percent_complete"`
	ElapsedTime       time.Duration `json:"elapsed_time"`
}

// ProgressCallback is called after every section
type ProgressCallback func(*Progress)

// Service runs profiles.
type Service struct {
	config     *Config
	aggregator *aggregator.Aggregator
	logger     logger.Logger

	progressCallbacks []ProgressCallback
}

// NewService creates a service. A nil log uses the global logger.
func NewService(config *Config, log logger.Logger) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Service{
		config:     config,
		aggregator: aggregator.New(log),
		logger:     log.WithComponent("reconciler"),
	}, nil
}

// AddProgressCallback adds a progress callback function
func (s *Service) AddProgressCallback(callback ProgressCallback) {
	s.progressCallbacks = append(s.progressCallbacks, callback)
}

// Run executes every section of p over tables, then the totals pass.
// Tables are annotated in place.
//
// When every section is skipped no totals are appended and the returned
// error has code nothing_reconciled; the result is still returned so the
// caller can report why.
func (s *Service) Run(tables []*models.LedgerTable, p *profile.Profile) (*Result, error) {
	if p == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "profile", nil, nil).
			WithSuggestion("provide a reconciliation profile")
	}

	matching, err := s.matchingConfig(p)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RunID:     uuid.New().String(),
		Profile:   p.Name,
		Epsilon:   matching.Epsilon,
		StartedAt: time.Now(),
	}
	op := logger.NewOperationLogger("reconcile", s.logger).
		WithField("run_id", result.RunID).
		WithField("profile", p.Name)

	lookup := make(map[string]*models.LedgerTable, len(tables))
	for _, table := range tables {
		lookup[tableKey(table.Name)] = table
	}

	prep, err := NewTablePreprocessor(s.config.Preprocessing, s.logger).Preprocess(lookup, p)
	if err != nil {
		op.Error(err, "Preprocessing failed")
		return nil, err
	}
	result.Preprocessing = prep
	for _, header := range prep.DuplicateHeaders {
		result.Warnings = append(result.Warnings, fmt.Sprintf("header %s repeats; the leftmost column is used", header))
	}
	op.Step("preprocessed", logger.Fields{"tables": prep.TablesChecked, "records": prep.RecordsProcessed})

	progress := &Progress{RunID: result.RunID, TotalSections: len(p.Sections)}
	excluded := make(map[string][]string)

	for i, def := range p.Sections {
		progress.CurrentSection = def.Name

		sectionResult := s.runSection(def, lookup, matching)
		result.Sections = append(result.Sections, sectionResult)
		result.Warnings = append(result.Warnings, sectionResult.Warnings...)

		if sectionResult.Skipped() {
			progress.SkippedSections++
			op.Warning("Section skipped", logger.Fields{"section": def.Name, "code": sectionResult.SkipCode})
		}

		sourceKey, targetKey := tableKey(def.Source.Table), tableKey(def.Target.Table)
		excluded[sourceKey] = append(excluded[sourceKey], def.Source.Identifier, def.Source.Secondary)
		excluded[sourceKey] = append(excluded[sourceKey], sectionResult.TextColumns...)
		excluded[targetKey] = append(excluded[targetKey], def.Target.Identifier, def.Target.Secondary)

		s.updateProgress(progress, i+1, result.StartedAt)
	}

	if result.Reconciled() == 0 {
		result.Duration = time.Since(result.StartedAt)
		err := errors.ReconciliationError(errors.CodeNothingReconciled, "reconcile", result.Errors()).
			WithContext("profile", p.Name).
			WithContext("sections", len(p.Sections))
		op.Error(err, "Nothing reconciled")
		return result, err
	}

	if !s.config.SkipTotals {
		s.appendTotals(p, lookup, excluded, result)
		op.Step("totals", logger.Fields{"tables": len(result.Totals)})
	}

	result.Duration = time.Since(result.StartedAt)
	op.Success(fmt.Sprintf("Reconciled %d of %d sections", result.Reconciled(), len(result.Sections)))
	return result, nil
}

func (s *Service) runSection(def profile.Section, lookup map[string]*models.LedgerTable, matching *matcher.MatchingConfig) *SectionResult {
	source, sourceOK := lookup[tableKey(def.Source.Table)]
	target, targetOK := lookup[tableKey(def.Target.Table)]
	if !sourceOK || !targetOK {
		missing := def.Source.Table
		if sourceOK {
			missing = def.Target.Table
		}
		err := errors.SectionSkipped(errors.CodeUnknownTable, def.Name, missing, "")
		s.logger.WithError(err).WithField("section", def.Name).Warn("Section skipped")
		return &SectionResult{
			Name:        def.Name,
			SourceTable: def.Source.Table,
			TargetTable: def.Target.Table,
			State:       StateSkipped,
			SkipCode:    err.Code,
			Err:         err,
			Warnings:    []string{err.Message},
		}
	}

	config := matching.Clone()
	config.EnableFallback = config.EnableFallback && def.FallbackEnabled()
	return NewSection(def, config, s.logger).Run(source, target)
}

// appendTotals appends the totals record of every configured table. The
// identity columns of the sections using a table, and their text diff
// columns, are never summed.
func (s *Service) appendTotals(p *profile.Profile, lookup map[string]*models.LedgerTable, excluded map[string][]string, result *Result) {
	for _, tot := range p.Totals {
		table, ok := lookup[tableKey(tot.Table)]
		if !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("totals: table '%s' was not loaded", tot.Table))
			s.logger.WithField("table", tot.Table).Warn("Totals table not loaded")
			continue
		}

		spec := tot.Spec
		spec.Exclude = append(append([]string(nil), spec.Exclude...), nonBlank(excluded[tableKey(tot.Table)])...)

		totals, err := s.aggregator.Append(table, spec)
		if err != nil {
			result.Warnings = append(result.Warnings, err.Error())
			s.logger.WithError(err).WithField("table", table.Name).Warn("Totals not appended")
			continue
		}
		result.Totals = append(result.Totals, totals)
	}
}

func (s *Service) matchingConfig(p *profile.Profile) (*matcher.MatchingConfig, error) {
	config := matcher.DefaultMatchingConfig()
	if s.config.Epsilon != nil {
		config.Epsilon = *s.config.Epsilon
	} else {
		eps, err := p.EpsilonValue()
		if err != nil {
			return nil, err
		}
		config.Epsilon = eps
	}
	config.EnableFallback = !s.config.DisableFallback

	if err := config.Validate(); err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryConfiguration, errors.CodeInvalidConfig, "invalid matching configuration")
	}
	return config, nil
}

func (s *Service) updateProgress(progress *Progress, completed int, start time.Time) {
	progress.CompletedSections = completed
	progress.ElapsedTime = time.Since(start)
	if progress.TotalSections > 0 {
		progress.PercentComplete = float64(completed) / float64(progress.TotalSections) * 100
	}

	for _, callback := range s.progressCallbacks {
		callback(progress)
	}
}

func nonBlank(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}
