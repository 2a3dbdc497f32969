// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package implicitview tracks the set of relay-parents a node is actively
// considering: each active leaf plus the ancestor chain still within the
// asynchronous-backing window. The same structure, built from a peer's
// announced heads, derives what that peer is assumed to know.
package implicitview

import (
	"fmt"

	"github.com/luxfi/ids"
)

// AncestryLookup resolves the allowed ancestors for a leaf, oldest last.
// Implementations ask the runtime collaborator for the
// asynchronous-backing allowed-ancestry list. The view treats the result
// as a set; its order is not used.
type AncestryLookup func(leaf ids.ID) ([]ids.ID, error)

// leafEntry records one active leaf and the ancestor chain fetched for it.
type leafEntry struct {
	ancestors []ids.ID
}

// View is an implicit view: a set of active leaves, each carrying its own
// allowed-ancestor chain. AllAllowedRelayParents is the union of every
// leaf's chain with the leaves themselves.
type View struct {
	leaves map[ids.ID]leafEntry
	// refcount counts, for every relay-parent reachable from any leaf
	// (including the leaves themselves), how many leaves currently reach
	// it. A relay-parent is dropped from the view only when its refcount
	// falls to zero.
	refcount map[ids.ID]int
}

// New constructs an empty implicit view.
func New() *View {
	return &View{
		leaves:   make(map[ids.ID]leafEntry),
		refcount: make(map[ids.ID]int),
	}
}

// ActivateLeaf adds leaf to the view, fetching its allowed ancestors via
// lookup. Returns the set of relay-parents (ancestors, not including the
// leaf) newly reachable as a result — i.e. previously unreferenced by any
// other leaf. If lookup fails, the view is left unmodified and the error
// is returned, matching ActivateLeafFailure semantics: no partial state.
func (v *View) ActivateLeaf(leaf ids.ID, lookup AncestryLookup) ([]ids.ID, error) {
	if _, ok := v.leaves[leaf]; ok {
		return nil, nil
	}

	ancestors, err := lookup(leaf)
	if err != nil {
		return nil, fmt.Errorf("fetch allowed ancestors for leaf: %w", err)
	}

	v.leaves[leaf] = leafEntry{ancestors: ancestors}

	var newlyReachable []ids.ID
	for _, rp := range append([]ids.ID{leaf}, ancestors...) {
		if v.refcount[rp] == 0 && rp != leaf {
			newlyReachable = append(newlyReachable, rp)
		}
		v.refcount[rp]++
	}

	return newlyReachable, nil
}

// DeactivateLeaf removes leaf from the view and any ancestor no longer
// reachable from a surviving leaf. Returns the relay-parents dropped as a
// result (leaf included, if it was tracked).
func (v *View) DeactivateLeaf(leaf ids.ID) []ids.ID {
	entry, ok := v.leaves[leaf]
	if !ok {
		return nil
	}
	delete(v.leaves, leaf)

	var dropped []ids.ID
	for _, rp := range append([]ids.ID{leaf}, entry.ancestors...) {
		v.refcount[rp]--
		if v.refcount[rp] <= 0 {
			delete(v.refcount, rp)
			dropped = append(dropped, rp)
		}
	}
	return dropped
}

// Contains reports whether relayParent is presently within the view, via
// any leaf.
func (v *View) Contains(relayParent ids.ID) bool {
	return v.refcount[relayParent] > 0
}

// Leaves returns the currently active leaves, in no particular order.
func (v *View) Leaves() []ids.ID {
	out := make([]ids.ID, 0, len(v.leaves))
	for leaf := range v.leaves {
		out = append(out, leaf)
	}
	return out
}

// AllAllowedRelayParents returns the union of every leaf and its ancestor
// chain currently tracked.
func (v *View) AllAllowedRelayParents() []ids.ID {
	out := make([]ids.ID, 0, len(v.refcount))
	for rp := range v.refcount {
		out = append(out, rp)
	}
	return out
}

// KnownAllowedRelayParentsUnder returns the allowed ancestry for leaf (not
// including leaf itself), as last fetched by ActivateLeaf. The second
// return is false if leaf is not active.
func (v *View) KnownAllowedRelayParentsUnder(leaf ids.ID) ([]ids.ID, bool) {
	entry, ok := v.leaves[leaf]
	if !ok {
		return nil, false
	}
	return entry.ancestors, true
}

// PeerView derives an implicit view from a peer's explicit announced
// heads: the same reachability rule, applied with a caller-supplied
// ancestry source rather than the runtime collaborator directly, since a
// peer's ancestry is reconstructed from our own knowledge of the chain.
type PeerView struct {
	explicit []ids.ID
	implicit *View
}

// NewPeerView constructs an empty peer view.
func NewPeerView() *PeerView {
	return &PeerView{implicit: New()}
}

// Update replaces the peer's explicit view (its announced heads) with
// heads, recomputing the derived implicit view via lookup for any head not
// already tracked. Heads no longer announced are deactivated.
func (p *PeerView) Update(heads []ids.ID, lookup AncestryLookup) error {
	stillPresent := make(map[ids.ID]struct{}, len(heads))
	for _, h := range heads {
		stillPresent[h] = struct{}{}
	}
	for _, old := range p.explicit {
		if _, ok := stillPresent[old]; !ok {
			p.implicit.DeactivateLeaf(old)
		}
	}

	for _, h := range heads {
		if _, err := p.implicit.ActivateLeaf(h, lookup); err != nil {
			return err
		}
	}

	p.explicit = heads
	return nil
}

// KnowsRelayParent reports whether the peer's derived implicit view
// contains relayParent: the authoritative "may we send this peer
// statements about relayParent" predicate.
func (p *PeerView) KnowsRelayParent(relayParent ids.ID) bool {
	return p.implicit.Contains(relayParent)
}

// ExplicitView returns the peer's last-announced heads.
func (p *PeerView) ExplicitView() []ids.ID {
	return p.explicit
}
