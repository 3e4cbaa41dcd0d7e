package reconciler

import (
	"fmt"
	"strings"
	"time"

	"gst-ledger-reconciler/internal/annotator"
	"gst-ledger-reconciler/internal/matcher"
	"gst-ledger-reconciler/internal/models"
	"gst-ledger-reconciler/internal/profile"
	"gst-ledger-reconciler/pkg/errors"
	"gst-ledger-reconciler/pkg/logger"
)

// SectionState is the progress of one section through a run.
type SectionState int

const (
	StateIdle SectionState = iota
	StateKeysBuilt
	StatePrimaryMatched
	StateFallbackResolved
	StateAnnotated
	StateDiffsWritten
	StateSkipped
)

var stateNames = map[SectionState]string{
	StateIdle:             "idle",
	StateKeysBuilt:        "keys_built",
	StatePrimaryMatched:   "primary_matched",
	StateFallbackResolved: "fallback_resolved",
	StateAnnotated:        "annotated",
	StateDiffsWritten:     "diffs_written",
	StateSkipped:          "skipped",
}

func (s SectionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name in JSON and YAML output.
func (s SectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Completed reports whether the section ran to the end.
func (s SectionState) Completed() bool {
	return s == StateDiffsWritten
}

// SectionResult is the outcome of one section.
type SectionResult struct {
	Name        string               `json:"name"`
	SourceTable string               `json:"source_table"`
	TargetTable string               `json:"target_table"`
	State       SectionState         `json:"state"`
	Summary     matcher.MatchSummary `json:"summary"`
	Marks       annotator.Stats      `json:"marks"`
	DiffsWrote  int                  `json:"diffs_written"`

	// DiffColumns are the diff headers of the source table, injected or
	// reused by this section.
	DiffColumns []string `json:"diff_columns,omitempty"`

	// TextColumns lists the diff headers holding identifier text rather
	// than amounts.
	TextColumns []string `json:"-"`

	Duplicates []matcher.DuplicateGroup `json:"duplicates,omitempty"`
	Warnings   []string                 `json:"warnings,omitempty"`
	SkipCode   errors.ErrorCode         `json:"skip_code,omitempty"`
	Err        *errors.ReconcilerError  `json:"-"`
	Duration   time.Duration            `json:"duration"`
}

// Skipped reports whether the section was skipped.
func (sr *SectionResult) Skipped() bool {
	return sr.State == StateSkipped
}

// Section runs one source/target pass: build keys, inject diff columns,
// match, resolve fallbacks, annotate and write diff values.
type Section struct {
	Definition profile.Section
	Config     *matcher.MatchingConfig

	state     SectionState
	engine    *matcher.MatchEngine
	fallback  *matcher.FallbackMatcher
	annotator *annotator.Annotator
	logger    logger.Logger
}

// NewSection prepares a section. A nil config uses the matching defaults.
func NewSection(def profile.Section, config *matcher.MatchingConfig, log logger.Logger) *Section {
	if config == nil {
		config = matcher.DefaultMatchingConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Section{
		Definition: def,
		Config:     config,
		state:      StateIdle,
		engine:     matcher.NewMatchEngine(config),
		fallback:   matcher.NewFallbackMatcher(config),
		annotator:  annotator.New(log),
		logger:     log.WithComponent("section").WithField("section", def.Name),
	}
}

// State returns the current state.
func (s *Section) State() SectionState {
	return s.state
}

// Run reconciles source against target in place. When a required header or
// every indexable key is missing the section is skipped: the returned
// result is in StateSkipped, carries the cause in Err, and neither table
// has been touched.
func (s *Section) Run(source, target *models.LedgerTable) *SectionResult {
	start := time.Now()
	result := &SectionResult{
		Name:        s.Definition.Name,
		SourceTable: source.Name,
		TargetTable: target.Name,
	}
	defer func() {
		result.State = s.state
		result.Duration = time.Since(start)
	}()

	layout, warnings, err := s.resolveLayout(source, target)
	if err != nil {
		return s.skip(result, err)
	}
	result.Warnings = append(result.Warnings, warnings...)

	if err := s.checkIndexable(source, target, layout); err != nil {
		return s.skip(result, err)
	}
	s.state = StateKeysBuilt

	for _, group := range matcher.DetectDuplicates(source, layout.SourceIdentifier).Groups {
		s.logger.WithFields(logger.Fields{
			"table": source.Name,
			"key":   group.Key,
			"rows":  len(group.Rows),
		}).Warn("Duplicate key in source table")
		result.Duplicates = append(result.Duplicates, group)
		result.Warnings = append(result.Warnings, fmt.Sprintf("section '%s': %s", s.Definition.Name, group.Reason))
	}

	columns, injectErr := s.injectDiffColumns(source, layout, result)
	if injectErr != nil {
		return s.skip(result, errors.ReconciliationError(errors.CodeProcessingError, "diff_columns", injectErr))
	}

	// injection moved the source columns
	layout, _, err = s.resolveLayout(source, target)
	if err != nil {
		return s.skip(result, err)
	}
	sourceIndex := matcher.BuildSourceIndex(source, layout.SourceIdentifier)
	targetIndex := matcher.BuildTargetIndex(target, layout.TargetIdentifier)

	match := s.engine.Match(sourceIndex, targetIndex, layout)
	s.state = StatePrimaryMatched

	pairs := s.fallback.Resolve(sourceIndex, targetIndex, layout, match)
	s.state = StateFallbackResolved
	if len(pairs) > 0 {
		s.logger.WithField("pairs", len(pairs)).Debug("Fallback resolved re-keyed documents")
	}

	result.Marks = s.annotator.Annotate(sourceIndex, targetIndex, match)
	s.state = StateAnnotated

	result.DiffsWrote = s.annotator.WriteDiffs(sourceIndex, match, columns)
	s.state = StateDiffsWritten

	result.Summary = match.Summary()
	s.logger.WithFields(logger.Fields{
		"matched":        result.Summary.Matched,
		"with_diffs":     result.Summary.WithDiffs,
		"fallback":       result.Summary.FallbackResolved,
		"missing_source": result.Summary.MissingSource,
		"missing_target": result.Summary.MissingTarget,
	}).Info("Section reconciled")

	return result
}

func (s *Section) skip(result *SectionResult, err *errors.ReconcilerError) *SectionResult {
	s.state = StateSkipped
	result.Err = err
	result.SkipCode = err.Code
	result.Warnings = append(result.Warnings, err.Message)
	s.logger.WithError(err).Warn("Section skipped")
	return result
}

// resolveLayout resolves every header the section needs. The identifier
// and every mapped field are required. A configured secondary identity that
// cannot be resolved disables the cross-check and the fallback pass.
func (s *Section) resolveLayout(source, target *models.LedgerTable) (matcher.Layout, []string, *errors.ReconcilerError) {
	def := s.Definition
	layout := matcher.Layout{SourceSecondary: -1, TargetSecondary: -1}
	var warnings []string

	var ok bool
	if layout.SourceIdentifier, ok = source.ResolveHeader(def.Source.Identifier); !ok {
		return layout, nil, errors.SectionSkipped(errors.CodeMissingColumn, def.Name, source.Name, def.Source.Identifier)
	}
	if layout.TargetIdentifier, ok = target.ResolveHeader(def.Target.Identifier); !ok {
		return layout, nil, errors.SectionSkipped(errors.CodeMissingColumn, def.Name, target.Name, def.Target.Identifier)
	}

	for _, field := range def.Fields {
		resolved := matcher.ResolvedField{FieldMapping: field}
		if resolved.SourcePos, ok = source.ResolveHeader(field.Source); !ok {
			return layout, nil, errors.SectionSkipped(errors.CodeMissingColumn, def.Name, source.Name, field.Source)
		}
		if resolved.TargetPos, ok = target.ResolveHeader(field.Target); !ok {
			return layout, nil, errors.SectionSkipped(errors.CodeMissingColumn, def.Name, target.Name, field.Target)
		}
		layout.Fields = append(layout.Fields, resolved)
	}

	if def.Source.Secondary != "" && def.Target.Secondary != "" {
		sourcePos, sourceOK := source.ResolveHeader(def.Source.Secondary)
		targetPos, targetOK := target.ResolveHeader(def.Target.Secondary)
		switch {
		case sourceOK && targetOK:
			layout.SourceSecondary = sourcePos
			layout.TargetSecondary = targetPos
		case !sourceOK:
			warnings = append(warnings, s.secondaryWarning(source.Name, def.Source.Secondary))
		default:
			warnings = append(warnings, s.secondaryWarning(target.Name, def.Target.Secondary))
		}
	}

	return layout, warnings, nil
}

func (s *Section) secondaryWarning(table, header string) string {
	s.logger.WithFields(logger.Fields{
		"table":  table,
		"header": header,
	}).Warn("Secondary identity not found, cross-check and fallback disabled")
	return fmt.Sprintf("section '%s': secondary identity '%s' not found in table '%s'", s.Definition.Name, header, table)
}

func (s *Section) checkIndexable(source, target *models.LedgerTable, layout matcher.Layout) *errors.ReconcilerError {
	if matcher.BuildSourceIndex(source, layout.SourceIdentifier).Len() == 0 {
		return errors.SectionSkipped(errors.CodeNoIndexableRecords, s.Definition.Name, source.Name, s.Definition.Source.Identifier)
	}
	if matcher.BuildTargetIndex(target, layout.TargetIdentifier).Len() == 0 {
		return errors.SectionSkipped(errors.CodeNoIndexableRecords, s.Definition.Name, target.Name, s.Definition.Target.Identifier)
	}
	return nil
}

// DiffLabel is the header of the diff column that follows header.
func DiffLabel(header string) string {
	return strings.TrimSpace(header) + " Diff"
}

// injectDiffColumns adds a diff column to the right of the identifier, the
// secondary identity and every mapped field of the source table. A diff
// header the table already has, from an earlier section or an earlier run,
// is reused. It returns the final position of each diff column by field key.
func (s *Section) injectDiffColumns(source *models.LedgerTable, layout matcher.Layout, result *SectionResult) (map[string]int, error) {
	headers := source.HeaderNames()

	type wanted struct {
		key    string
		anchor int
		text   bool
	}
	want := []wanted{{key: matcher.IdentifierKey, anchor: layout.SourceIdentifier, text: true}}
	if layout.HasSecondary() {
		want = append(want, wanted{key: matcher.SecondaryKey, anchor: layout.SourceSecondary, text: true})
	}
	for _, field := range layout.Fields {
		want = append(want, wanted{key: field.Key(), anchor: field.SourcePos})
	}

	labels := make(map[string]string, len(want))
	requested := make(map[string]bool)
	var requests []models.ColumnRequest
	for _, w := range want {
		if _, seen := labels[w.key]; seen {
			continue
		}
		label := DiffLabel(headers[w.anchor])
		labels[w.key] = label
		result.DiffColumns = append(result.DiffColumns, label)
		if w.text {
			result.TextColumns = append(result.TextColumns, label)
		}
		if _, exists := source.ResolveHeader(label); exists || requested[strings.ToLower(label)] {
			continue
		}
		requested[strings.ToLower(label)] = true
		requests = append(requests, models.ColumnRequest{After: w.anchor, Label: label, FieldKey: w.key})
	}

	if _, err := source.InjectColumns(requests); err != nil {
		return nil, err
	}
	s.logger.WithFields(logger.Fields{
		"table":    source.Name,
		"injected": len(requests),
		"reused":   len(result.DiffColumns) - len(requests),
	}).Debug("Prepared diff columns")

	columns := make(map[string]int, len(labels))
	for key, label := range labels {
		pos, ok := source.ResolveHeader(label)
		if !ok {
			return nil, fmt.Errorf("diff column %q not resolvable after injection", label)
		}
		columns[key] = pos
	}
	return columns, nil
}
