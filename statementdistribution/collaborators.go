// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

import "context"

// ProtocolVersion is the validation-protocol version a peer advertises on
// connect. Only VStaging is serviced: a peer on any other version is not
// registered at connection time, and its messages are dropped at dispatch.
type ProtocolVersion uint8

const (
	ProtocolV1       ProtocolVersion = 1
	ProtocolVStaging ProtocolVersion = 2
)

// SessionInfo is the subset of runtime session data this engine needs:
// the validator set's discovery identities and group assignment. Opaque
// beyond that; the runtime collaborator is responsible for the rest.
type SessionInfo struct {
	DiscoveryKeys    []AuthorityID
	ValidatorGroups  [][]ValidatorIndex
	NValidators      int
}

// AvailabilityCores describes, per-core, the ParaID presently occupied,
// used to determine a group's assignment at a relay-parent.
type AvailabilityCores struct {
	// Assignment maps GroupIndex to the ParaID assigned to it at this
	// relay-parent, for groups presently assigned to a core.
	Assignment map[GroupIndex]ParaID
}

// RuntimeAPI is the collaborator supplying chain-state reads. All
// out-of-scope per spec §6: only the interface is specified here.
type RuntimeAPI interface {
	// SessionIndexForChild returns the session a new relay-parent belongs
	// to.
	SessionIndexForChild(ctx context.Context, relayParent Hash) (SessionIndex, error)
	// SessionInfo returns the full validator/group data for a session.
	SessionInfo(ctx context.Context, relayParent Hash, session SessionIndex) (SessionInfo, error)
	// AvailabilityCores returns the per-group assignment at relayParent.
	AvailabilityCores(ctx context.Context, relayParent Hash) (AvailabilityCores, error)
	// AllowedAncestry returns the allowed-ancestor chain for leaf under
	// the asynchronous-backing window, oldest last.
	AllowedAncestry(ctx context.Context, leaf Hash) ([]Hash, error)
}

// Keystore resolves a local signing identity, if this node is running as
// a validator.
type Keystore interface {
	// LocalValidatorIndex returns the index of the local validator within
	// session, if this node holds one of its signing keys.
	LocalValidatorIndex(session SessionInfo) (ValidatorIndex, bool)
	// Sign produces a signature over payload using the key backing
	// validatorIndex. Only ever called for the local index as resolved
	// by LocalValidatorIndex.
	Sign(validatorIndex ValidatorIndex, payload []byte) ([]byte, error)
}

// ReputationChange is a named cost or benefit applied to a peer, reported
// to the network bridge for scoring. The magnitude is opaque to this
// engine; only the name is meaningful here.
type ReputationChange struct {
	Name  string
	Value int32
}

// NetworkBridge is the collaborator responsible for wire transport and
// peer reputation.
type NetworkBridge interface {
	// SendStatement transmits a Statement message to peer.
	SendStatement(ctx context.Context, peer PeerID, relayParent Hash, statement UncheckedSignedStatement) error
	// ReportPeer applies change to peer's reputation score.
	ReportPeer(ctx context.Context, peer PeerID, change ReputationChange)
}

// Backing is the collaborator that receives candidates once they reach
// the backing threshold (minimum_votes(n) statements).
type Backing interface {
	// CandidateBacked notifies the backing subsystem that candidate at
	// relayParent has accumulated enough statements for inclusion.
	CandidateBacked(ctx context.Context, relayParent Hash, candidate CandidateHash)
}

// GridTarget is one grid-routing destination for a relay-parent, tagged
// so callers can distinguish it from a cluster target when deduplicating.
type GridTarget struct {
	Validator ValidatorIndex
}

// GridRouter is the collaborator supplying grid-routing targets and
// consuming manifest/known messages. Its topology-mesh computation and
// periodic retransmission are out of scope per spec (deliberately
// unspecified beyond this targeting contract).
type GridRouter interface {
	// Targets returns the grid-routing destinations for relayParent,
	// beyond the local cluster.
	Targets(relayParent Hash) []GridTarget
	// InstallTopology installs a new gossip topology for session. Called
	// from NewGossipTopology.
	InstallTopology(session SessionIndex, topology any)
	// HandleManifest hands off a BackedCandidateManifest message received
	// from peer. Its wire layout and mesh-propagation behavior are
	// deliberately out of scope for this engine.
	HandleManifest(peer PeerID, opaque []byte)
	// HandleKnown hands off a BackedCandidateKnown message received from
	// peer, for the same reason.
	HandleKnown(peer PeerID, opaque []byte)
}
