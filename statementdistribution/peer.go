// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

import (
	set "github.com/luxfi/statement-distribution/internal/set"
)

// peerState is one connected peer's view tracking: its explicit view
// (announced heads) and the implicit view derived from it, plus any
// authority identities it claimed on connection.
type peerState struct {
	explicitView []Hash
	implicitView set.Set[Hash]
	authorities  set.Set[AuthorityID]
	hasClaimed   bool
}

func newPeerState() *peerState {
	return &peerState{implicitView: set.NewSet[Hash](4)}
}

// knowsRelayParent reports whether we believe the peer knows relayParent,
// i.e. it lies in their derived implicit view. A relay-parent reachable
// only via a leaf we don't recognize will be invisible here, matching the
// original's conservative behavior.
func (p *peerState) knowsRelayParent(relayParent Hash) bool {
	return p.implicitView.Contains(relayParent)
}

// isAuthority reports whether the peer claimed authority as one of its
// identities on connection.
func (p *peerState) isAuthority(authority AuthorityID) bool {
	return p.hasClaimed && p.authorities.Contains(authority)
}

// setImplicitView replaces the peer's derived implicit view wholesale,
// called whenever PeerViewChange recomputes it.
func (p *peerState) setImplicitView(explicit []Hash, allowed []Hash) {
	p.explicitView = explicit
	p.implicitView = set.Of(allowed...)
}

// PeerTable is the process-wide registry of connected peers.
type PeerTable struct {
	peers map[PeerID]*peerState
	// authorities maps a claimed authority identity to the single peer
	// occupying it. First-wins: an authority already claimed by a
	// different peer is never overwritten.
	authorities map[AuthorityID]PeerID
}

// NewPeerTable constructs an empty registry.
func NewPeerTable() *PeerTable {
	return &PeerTable{
		peers:       make(map[PeerID]*peerState),
		authorities: make(map[AuthorityID]PeerID),
	}
}

// Connect registers peer with an empty view and the claimed authority
// identities that are not already occupied by a different peer. Returns
// the subset of claimed identities that were dropped as duplicates.
func (t *PeerTable) Connect(peer PeerID, claimed []AuthorityID) (dropped []AuthorityID) {
	ps := newPeerState()
	ps.hasClaimed = true
	ps.authorities = set.NewSet[AuthorityID](len(claimed))

	for _, a := range claimed {
		if existing, ok := t.authorities[a]; ok && existing != peer {
			dropped = append(dropped, a)
			continue
		}
		t.authorities[a] = peer
		ps.authorities.Add(a)
	}

	t.peers[peer] = ps
	return dropped
}

// Disconnect removes peer and frees the authority identities it occupied.
func (t *PeerTable) Disconnect(peer PeerID) {
	ps, ok := t.peers[peer]
	if !ok {
		return
	}
	for _, a := range ps.authorities.List() {
		if t.authorities[a] == peer {
			delete(t.authorities, a)
		}
	}
	delete(t.peers, peer)
}

// Get returns the peer's state, if connected.
func (t *PeerTable) Get(peer PeerID) (*peerState, bool) {
	ps, ok := t.peers[peer]
	return ps, ok
}

// UpdateView replaces peer's explicit view, along with the allowed
// relay-parent set its implicit view derives to. No-op if peer is not
// connected.
func (t *PeerTable) UpdateView(peer PeerID, explicit []Hash, allowed []Hash) {
	ps, ok := t.peers[peer]
	if !ok {
		return
	}
	ps.setImplicitView(explicit, allowed)
}

// PeerForAuthority resolves an authority identity to its occupying peer,
// if connected and claimed.
func (t *PeerTable) PeerForAuthority(authority AuthorityID) (PeerID, bool) {
	peer, ok := t.authorities[authority]
	return peer, ok
}

// KnowsRelayParent reports whether peer is connected and its implicit
// view contains relayParent.
func (t *PeerTable) KnowsRelayParent(peer PeerID, relayParent Hash) bool {
	ps, ok := t.peers[peer]
	return ok && ps.knowsRelayParent(relayParent)
}
