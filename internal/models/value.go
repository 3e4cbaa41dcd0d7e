package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CellKind identifies what a cell holds.
type CellKind int

const (
	KindEmpty CellKind = iota
	KindNumber
	KindText
)

// String returns the string representation of CellKind
func (k CellKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Value is one field of a record: a number, a piece of text or nothing.
// Numbers read from a file keep their original text so identifiers such as
// "00125" normalize the way they were typed.
type Value struct {
	Kind   CellKind
	Number decimal.Decimal
	Text   string
}

// EmptyValue returns a blank cell.
func EmptyValue() Value {
	return Value{Kind: KindEmpty}
}

// NewNumber returns a numeric cell.
func NewNumber(d decimal.Decimal) Value {
	return Value{Kind: KindNumber, Number: d}
}

// NewNumberFromFloat returns a numeric cell from a float literal.
func NewNumberFromFloat(f float64) Value {
	return NewNumber(decimal.NewFromFloat(f))
}

// NewText returns a text cell. Blank text is stored as empty.
func NewText(s string) Value {
	if strings.TrimSpace(s) == "" {
		return EmptyValue()
	}
	return Value{Kind: KindText, Text: s}
}

// ParseCell coerces raw spreadsheet text: blank becomes empty, anything
// ParseAmount accepts becomes a number, the rest stays text.
func ParseCell(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return EmptyValue()
	}
	if d, ok := ParseAmount(trimmed); ok {
		return Value{Kind: KindNumber, Number: d, Text: trimmed}
	}
	return Value{Kind: KindText, Text: raw}
}

// IsEmpty reports whether the cell is blank.
func (v Value) IsEmpty() bool {
	return v.Kind == KindEmpty
}

// IsNumber reports whether the cell holds a number.
func (v Value) IsNumber() bool {
	return v.Kind == KindNumber
}

// String returns the cell as text.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		if v.Text != "" {
			return v.Text
		}
		return v.Number.String()
	case KindText:
		return v.Text
	default:
		return ""
	}
}

// Numeric returns the numeric content of the cell. Text cells are parsed;
// ok is false when the cell has no numeric reading.
func (v Value) Numeric() (decimal.Decimal, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Number, true
	case KindText:
		return ParseAmount(v.Text)
	default:
		return decimal.Zero, false
	}
}

// Decimal returns the numeric content of the cell, or zero for blank and
// non-numeric cells.
func (v Value) Decimal() decimal.Decimal {
	d, _ := v.Numeric()
	return d
}

var currencyPrefixes = []string{"₹", "$", "rs.", "rs", "inr"}

// ParseAmount parses a monetary amount as it appears in a register:
// thousands separators, a leading currency marker and accounting-style
// parentheses for negatives are accepted.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	lower := strings.ToLower(s)
	for _, prefix := range currencyPrefixes {
		if strings.HasPrefix(lower, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}

	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}
