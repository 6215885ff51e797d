// Package reconcile compares cart snapshots taken before and after a remote
// mutation. The platform is authoritative for cart contents; a diff tells the
// caller what the mutation actually did, which is not always what was asked
// (the platform may merge a new line into an existing identical one).
package reconcile

import "tester-box/internal/model"

// LineDiff describes how a cart's lines changed between two snapshots.
// Lines are matched by line id.
type LineDiff struct {
	Added   []model.CartLine // Lines present only in the later snapshot
	Removed []model.CartLine // Lines present only in the earlier snapshot
	Changed []QuantityChange // Lines in both with a different quantity
}

// QuantityChange is a line whose quantity moved.
type QuantityChange struct {
	LineID      string
	OldQuantity int
	NewQuantity int
}

// IsEmpty returns true if the snapshots hold the same lines and quantities.
func (d *LineDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// SingleAdd returns the added line when the change was exactly one new line
// and nothing else.
func (d *LineDiff) SingleAdd() (model.CartLine, bool) {
	if len(d.Added) != 1 || len(d.Removed) != 0 || len(d.Changed) != 0 {
		return model.CartLine{}, false
	}
	return d.Added[0], true
}

// DiffLines computes the line delta from before to after. A nil snapshot is
// an empty cart. Output follows snapshot line order.
func DiffLines(before, after *model.Cart) *LineDiff {
	diff := &LineDiff{}

	beforeByID := linesByID(before)
	afterByID := linesByID(after)

	if after != nil {
		for _, line := range after.Lines {
			prev, exists := beforeByID[line.ID]
			if !exists {
				diff.Added = append(diff.Added, line)
				continue
			}
			if prev.Quantity != line.Quantity {
				diff.Changed = append(diff.Changed, QuantityChange{
					LineID:      line.ID,
					OldQuantity: prev.Quantity,
					NewQuantity: line.Quantity,
				})
			}
		}
	}

	if before != nil {
		for _, line := range before.Lines {
			if _, exists := afterByID[line.ID]; !exists {
				diff.Removed = append(diff.Removed, line)
			}
		}
	}

	return diff
}

func linesByID(c *model.Cart) map[string]model.CartLine {
	if c == nil {
		return map[string]model.CartLine{}
	}
	m := make(map[string]model.CartLine, len(c.Lines))
	for _, line := range c.Lines {
		m[line.ID] = line
	}
	return m
}
