package models

import (
	"fmt"
	"sort"
)

// ColumnRequest asks for a derived column immediately to the right of the
// column at After. FieldKey names the request in the returned position map.
type ColumnRequest struct {
	After    int
	Label    string
	FieldKey string
}

// InjectColumns inserts the requested columns and returns the final
// position of each injected column keyed by FieldKey.
//
// Requests are applied right to left (descending After) so that inserting
// one column never moves the anchor of a request not yet applied. Ties are
// broken by label so the resulting layout does not depend on input order.
// Any header position cached before this call is stale afterwards.
func (t *LedgerTable) InjectColumns(requests []ColumnRequest) (map[string]int, error) {
	for _, req := range requests {
		if req.After < -1 || req.After >= t.Width() {
			return nil, fmt.Errorf("column request %q anchored at %d is outside table %q (%d columns)",
				req.Label, req.After, t.Name, t.Width())
		}
	}

	ordered := append([]ColumnRequest(nil), requests...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].After != ordered[j].After {
			return ordered[i].After > ordered[j].After
		}
		return ordered[i].Label > ordered[j].Label
	})

	positions := make(map[string]int, len(requests))
	for _, req := range ordered {
		at := req.After + 1
		if err := t.InsertColumn(at, req.Label); err != nil {
			return nil, err
		}
		for key, pos := range positions {
			if pos >= at {
				positions[key] = pos + 1
			}
		}
		positions[req.FieldKey] = at
	}
	return positions, nil
}
