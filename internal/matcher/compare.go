package matcher

import (
	"gst-ledger-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

// DiffExceeds reports whether diff is large enough to be flagged. The
// boundary is inclusive: a diff of exactly eps is flagged.
func DiffExceeds(diff, eps decimal.Decimal) bool {
	return diff.Abs().GreaterThanOrEqual(eps)
}

// WithinTolerance reports whether two amounts are considered equal.
func WithinTolerance(a, b, eps decimal.Decimal) bool {
	return !DiffExceeds(b.Sub(a), eps)
}

// SameIdentity compares two secondary identity cells after normalization.
// Two blank cells agree.
func SameIdentity(a, b models.Value) bool {
	return KeyOf(a) == KeyOf(b)
}
