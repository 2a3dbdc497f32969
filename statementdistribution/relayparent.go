// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

// LocalValidatorState is the local node's role at one relay-parent, valid
// only when this node is a validator in the session and assigned to a
// group at this relay-parent.
type LocalValidatorState struct {
	// Index is the local validator's index.
	Index ValidatorIndex
	// Group is the local validator's group.
	Group GroupIndex
	// Assignment is the ParaID the group is assigned to at this
	// relay-parent, if the group presently holds a core.
	Assignment   ParaID
	HasAssignment bool
	// Cluster is the direct-communication tracker for the local
	// validator's group at this relay-parent.
	Cluster *ClusterTracker
}

// PerRelayParentState is the data scoped to one active relay-parent: the
// session it belongs to, the statement store accumulating signed
// statements, and (if applicable) the local validator's role here.
type PerRelayParentState struct {
	Session SessionIndex
	Store   *StatementStore

	Local    *LocalValidatorState
	hasLocal bool
}

// NewPerRelayParentState constructs relay-parent state rooted at session,
// with groups as the StatementStore's group index. If hasLocalValidator
// is set and localIndex is assigned to a group, a LocalValidatorState
// with a fresh ClusterTracker (cap secondingLimit) is attached.
func NewPerRelayParentState(
	session SessionIndex,
	groups Groups,
	cores AvailabilityCores,
	localIndex ValidatorIndex,
	hasLocalValidator bool,
	secondingLimit int,
) (*PerRelayParentState, error) {
	s := &PerRelayParentState{
		Session: session,
		Store:   NewStatementStore(groups),
	}

	if !hasLocalValidator {
		return s, nil
	}

	localGroup, ok := groups.ByValidatorIndex(localIndex)
	if !ok {
		return s, nil
	}

	members, _ := groups.Get(localGroup)
	cluster, err := NewClusterTracker(localIndex, members, secondingLimit)
	if err != nil {
		return nil, err
	}

	local := &LocalValidatorState{
		Index:   localIndex,
		Group:   localGroup,
		Cluster: cluster,
	}
	if paraID, assigned := cores.Assignment[localGroup]; assigned {
		local.Assignment = paraID
		local.HasAssignment = true
	}

	s.Local = local
	s.hasLocal = true
	return s, nil
}

// HasLocalValidator reports whether this node is a validator assigned to
// a group at this relay-parent.
func (s *PerRelayParentState) HasLocalValidator() bool {
	return s.hasLocal
}
