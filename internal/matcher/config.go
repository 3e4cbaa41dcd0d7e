// Package matcher provides the ledger matching engine and its configuration.
//
// This package matches the records of a source ledger (an internal register)
// against a target ledger (a filed return) on a normalized document key:
//   - KeyNormalizer canonicalizes invoice and note numbers
//   - SourceIndex and TargetIndex map keys to record positions
//   - MatchEngine diffs every mapped numeric field of every common key
//   - FallbackMatcher pairs leftovers whose identifier drifted
//
// The engine never writes to a table. It returns annotations and diff
// payloads which the annotator applies afterwards.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	engine := matcher.NewMatchEngine(config)
//
//	source := matcher.BuildSourceIndex(sales, layout.SourceIdentifier)
//	target := matcher.BuildTargetIndex(gstr1, layout.TargetIdentifier)
//
//	result := engine.Match(source, target, layout)
//	matcher.NewFallbackMatcher(config).Resolve(source, target, layout, result)
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultEpsilon is the tolerance below which two amounts are equal.
var DefaultEpsilon = decimal.NewFromFloat(0.01)

// MatchingConfig holds configuration parameters for ledger matching.
type MatchingConfig struct {
	// Epsilon is the absolute tolerance for amount comparison. A difference
	// of exactly Epsilon is reported.
	Epsilon decimal.Decimal `json:"epsilon"`

	// EnableFallback turns on the secondary-identity fallback pass for
	// leftover keys.
	EnableFallback bool `json:"enable_fallback"`
}

// DefaultMatchingConfig returns a configuration with sensible defaults
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		Epsilon:        DefaultEpsilon,
		EnableFallback: true,
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if !mc.Epsilon.IsPositive() {
		return fmt.Errorf("epsilon must be positive: %s", mc.Epsilon)
	}
	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{Epsilon: %s, Fallback: %t}", mc.Epsilon, mc.EnableFallback)
}

// FieldMapping pairs a source field with its target counterpart.
type FieldMapping struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`

	// WholeDocument marks the field as already holding the per-document
	// total on every line row, so only the first target row is read.
	WholeDocument bool `json:"whole_document,omitempty" yaml:"whole_document,omitempty"`
}

// Key identifies the mapping in diff maps and column requests.
func (fm FieldMapping) Key() string {
	return fm.Source
}

// Field keys of the identity columns. Numeric fields are keyed by their
// source header name.
const (
	IdentifierKey = "@identifier"
	SecondaryKey  = "@secondary"
)

// ResolvedField is a FieldMapping with the header positions of both sides.
type ResolvedField struct {
	FieldMapping
	SourcePos int
	TargetPos int
}

// Layout holds every header position a section needs on both tables.
// Secondary positions are -1 when no secondary identity is configured.
type Layout struct {
	SourceIdentifier int
	TargetIdentifier int
	SourceSecondary  int
	TargetSecondary  int
	Fields           []ResolvedField
}

// HasSecondary reports whether both sides expose a secondary identity.
func (l Layout) HasSecondary() bool {
	return l.SourceSecondary >= 0 && l.TargetSecondary >= 0
}
