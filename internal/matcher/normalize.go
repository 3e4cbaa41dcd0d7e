package matcher

import (
	"strings"

	"gst-ledger-reconciler/internal/models"
)

// NormalizeKey canonicalizes a document identifier: every character that is
// not an ASCII letter or digit is dropped and the rest is lowercased.
func NormalizeKey(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c >= 'A' && c <= 'Z':
			b.WriteByte(c + ('a' - 'A'))
		}
	}
	return b.String()
}

// KeyOf returns the normalized key of a cell.
func KeyOf(v models.Value) string {
	return NormalizeKey(v.String())
}

// SameKey reports whether two raw identifiers refer to the same document.
// The empty key never matches.
func SameKey(a, b string) bool {
	ka := NormalizeKey(a)
	return ka != "" && ka == NormalizeKey(b)
}

// IsTotalLabel reports whether a cell holds the label of a subtotal row.
func IsTotalLabel(v models.Value) bool {
	return strings.EqualFold(strings.TrimSpace(v.String()), models.TotalLabel)
}
