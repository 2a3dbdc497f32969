// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

// Groups freezes a session's validator-group assignment and provides the
// reverse validator -> group lookup. It is immutable after construction.
type Groups struct {
	groups      [][]ValidatorIndex
	byVal       map[ValidatorIndex]GroupIndex
	nValidators int
}

// NewGroups builds a Groups index from the ordered sequence of groups
// (each an ordered sequence of ValidatorIndex), as delivered in session
// info, plus the session's total validator count (SessionInfo.NValidators).
// Validators absent from every group (e.g. spare authorities) have no
// reverse entry but are still known, distinct from an index that does not
// exist in the session's validator vector at all.
func NewGroups(groups [][]ValidatorIndex, nValidators int) Groups {
	byVal := make(map[ValidatorIndex]GroupIndex, len(groups))
	for gi, g := range groups {
		for _, v := range g {
			byVal[v] = GroupIndex(gi)
		}
	}
	return Groups{groups: groups, byVal: byVal, nValidators: nValidators}
}

// All returns every group, indexed by GroupIndex.
func (g Groups) All() [][]ValidatorIndex {
	return g.groups
}

// Get returns the members of the group at gi, or (nil, false) if gi is
// out of range.
func (g Groups) Get(gi GroupIndex) ([]ValidatorIndex, bool) {
	if int(gi) < 0 || int(gi) >= len(g.groups) {
		return nil, false
	}
	return g.groups[gi], true
}

// ByValidatorIndex returns the group a validator belongs to, or
// (0, false) if the validator is not assigned to any group.
func (g Groups) ByValidatorIndex(v ValidatorIndex) (GroupIndex, bool) {
	gi, ok := g.byVal[v]
	return gi, ok
}

// IsKnownValidator reports whether v is within the session's validator
// vector, regardless of group assignment. Used to distinguish "index does
// not exist" (ErrValidatorUnknown) from "exists but ungrouped"
// (ErrNotInAnyGroup).
func (g Groups) IsKnownValidator(v ValidatorIndex) bool {
	return int(v) >= 0 && int(v) < g.nValidators
}
