// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

// PerSessionState is the session-scoped data shared by every relay-parent
// belonging to that session: the validator set, its groups, the
// authority-identity lookup, the installed grid topology (if any), and
// the local validator's index (if this node is a validator in the
// session).
type PerSessionState struct {
	Info   SessionInfo
	Groups Groups

	authorityLookup map[AuthorityID]ValidatorIndex

	// gridTopologyInstalled is false until NewGossipTopology installs one
	// for this session. Circulation does not consult it: grid targets
	// come from the GridRouter collaborator either way.
	gridTopologyInstalled bool

	// localValidator is the local validator's index in this session, if
	// this node holds one of the session's signing keys. Resolution
	// happens once, at construction, via the keystore collaborator.
	localValidator   ValidatorIndex
	hasLocalValidator bool
}

// NewPerSessionState constructs session-scoped state from info, resolving
// the local validator index via keystore.
func NewPerSessionState(info SessionInfo, keystore Keystore) *PerSessionState {
	groups := NewGroups(info.ValidatorGroups, info.NValidators)

	lookup := make(map[AuthorityID]ValidatorIndex, len(info.DiscoveryKeys))
	for i, ad := range info.DiscoveryKeys {
		lookup[ad] = ValidatorIndex(i)
	}

	s := &PerSessionState{
		Info:            info,
		Groups:          groups,
		authorityLookup: lookup,
	}

	if idx, ok := keystore.LocalValidatorIndex(info); ok {
		s.localValidator = idx
		s.hasLocalValidator = true
	}

	return s
}

// ValidatorIndexForAuthority resolves a claimed authority identity to its
// validator index within this session.
func (s *PerSessionState) ValidatorIndexForAuthority(authority AuthorityID) (ValidatorIndex, bool) {
	idx, ok := s.authorityLookup[authority]
	return idx, ok
}

// LocalValidator returns this node's validator index in the session, if
// any.
func (s *PerSessionState) LocalValidator() (ValidatorIndex, bool) {
	return s.localValidator, s.hasLocalValidator
}

// InstallGridTopology marks a grid topology as installed for this
// session, called from NewGossipTopology when this session is known.
func (s *PerSessionState) InstallGridTopology() {
	s.gridTopologyInstalled = true
}

// HasGridTopology reports whether InstallGridTopology has been called.
func (s *PerSessionState) HasGridTopology() bool {
	return s.gridTopologyInstalled
}
