// Package profile loads reconciliation profiles: the list of sections to
// run (source table, target table, identifier and secondary identity names,
// field mappings) plus the totals to append afterwards.
//
// Profiles are YAML documents. A few GST profiles are built in; any other
// profile is read from a file.
package profile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gst-ledger-reconciler/internal/aggregator"
	"gst-ledger-reconciler/internal/matcher"
	"gst-ledger-reconciler/pkg/errors"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Profile is a named set of reconciliation sections.
type Profile struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Epsilon     string    `yaml:"epsilon,omitempty"`
	Sections    []Section `yaml:"sections"`
	Totals      []Totals  `yaml:"totals,omitempty"`
}

// Section is one source/target pass.
type Section struct {
	Name   string                 `yaml:"name"`
	Source Side                   `yaml:"source"`
	Target Side                   `yaml:"target"`
	Fields []matcher.FieldMapping `yaml:"fields"`

	// Fallback disables the secondary-identity fallback when set to false.
	Fallback *bool `yaml:"fallback,omitempty"`
}

// Side names a table and its identity columns.
type Side struct {
	Table      string `yaml:"table"`
	Identifier string `yaml:"identifier"`
	Secondary  string `yaml:"secondary,omitempty"`
}

// Totals configures the totals record of one table.
type Totals struct {
	Table           string `yaml:"table"`
	aggregator.Spec `yaml:",inline"`
}

// FallbackEnabled reports whether the fallback pass runs for the section.
func (s Section) FallbackEnabled() bool {
	return s.Fallback == nil || *s.Fallback
}

// WholeDocumentField returns the mapping flagged as the whole-document
// value, if any.
func (s Section) WholeDocumentField() (matcher.FieldMapping, bool) {
	for _, f := range s.Fields {
		if f.WholeDocument {
			return f, true
		}
	}
	return matcher.FieldMapping{}, false
}

// EpsilonValue returns the profile tolerance, or the default when unset.
func (p *Profile) EpsilonValue() (decimal.Decimal, error) {
	if strings.TrimSpace(p.Epsilon) == "" {
		return matcher.DefaultEpsilon, nil
	}
	eps, err := decimal.NewFromString(strings.TrimSpace(p.Epsilon))
	if err != nil {
		return decimal.Zero, errors.ConfigurationError(errors.CodeInvalidConfig, "epsilon", p.Epsilon, err)
	}
	return eps, nil
}

// Parse decodes and validates a profile document.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "profile", "yaml", err).
			WithSuggestion("check the profile YAML syntax")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Marshal encodes the profile as YAML.
func (p *Profile) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "encode profile", err)
	}
	if err := enc.Close(); err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "encode profile", err)
	}
	return buf.Bytes(), nil
}

// Load reads a profile from a YAML file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryConfiguration, errors.CodeInvalidConfig,
			fmt.Sprintf("invalid profile %s", path))
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

// Resolve returns the built-in profile called nameOrPath, or loads it from
// a file.
func Resolve(nameOrPath string) (*Profile, error) {
	if p, ok := Builtin(nameOrPath); ok {
		return p, nil
	}
	if _, err := os.Stat(nameOrPath); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "profile", nameOrPath, err).
			WithSuggestion(fmt.Sprintf("use a profile file or one of: %s", strings.Join(Names(), ", ")))
	}
	return Load(nameOrPath)
}

// Validate checks the structure of the profile. Header names are not
// checked here; a header that is absent from a table skips its section at
// run time.
func (p *Profile) Validate() error {
	eps, err := p.EpsilonValue()
	if err != nil {
		return err
	}
	if !eps.IsPositive() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "epsilon", p.Epsilon, nil).
			WithSuggestion("epsilon must be greater than zero")
	}

	if len(p.Sections) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "sections", nil, nil)
	}

	names := make(map[string]bool)
	for i, s := range p.Sections {
		setting := fmt.Sprintf("sections[%d]", i)
		if strings.TrimSpace(s.Name) == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, setting+".name", nil, nil)
		}
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if names[key] {
			return errors.ConfigurationError(errors.CodeConfigConflict, setting+".name", s.Name, nil).
				WithSuggestion("section names must be unique")
		}
		names[key] = true

		if err := validateSide(setting+".source", s.Source); err != nil {
			return err
		}
		if err := validateSide(setting+".target", s.Target); err != nil {
			return err
		}

		if len(s.Fields) == 0 {
			return errors.ConfigurationError(errors.CodeMissingConfig, setting+".fields", nil, nil).
				WithSuggestion("map at least one numeric field")
		}
		whole := 0
		for j, f := range s.Fields {
			if strings.TrimSpace(f.Source) == "" || strings.TrimSpace(f.Target) == "" {
				return errors.ConfigurationError(errors.CodeMissingConfig, fmt.Sprintf("%s.fields[%d]", setting, j), f, nil)
			}
			if f.WholeDocument {
				whole++
			}
		}
		if whole > 1 {
			return errors.ConfigurationError(errors.CodeConfigConflict, setting+".fields", whole, nil).
				WithSuggestion("at most one field can be the whole-document value")
		}
	}

	for i, tot := range p.Totals {
		if strings.TrimSpace(tot.Table) == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, fmt.Sprintf("totals[%d].table", i), nil, nil)
		}
	}

	return nil
}

func validateSide(setting string, side Side) error {
	if strings.TrimSpace(side.Table) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, setting+".table", nil, nil)
	}
	if strings.TrimSpace(side.Identifier) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, setting+".identifier", nil, nil)
	}
	return nil
}

// Tables returns every table name the profile references, in first-use order.
func (p *Profile) Tables() []string {
	seen := make(map[string]bool)
	var tables []string
	add := func(name string) {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		tables = append(tables, name)
	}
	for _, s := range p.Sections {
		add(s.Source.Table)
		add(s.Target.Table)
	}
	for _, tot := range p.Totals {
		add(tot.Table)
	}
	return tables
}
