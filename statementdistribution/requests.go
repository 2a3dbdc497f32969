// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

// requestKey identifies one outstanding candidate fetch.
type requestKey struct {
	relayParent   Hash
	candidateHash CandidateHash
}

// peerAdvertisement records that a peer advertised a candidate and
// whether it should be tried with priority (e.g. because it is a cluster
// member).
type peerAdvertisement struct {
	peer            PeerID
	clusterPriority bool
}

// RequestEntry tracks one outstanding candidate fetch: the group it
// originated from, the peers that have advertised it (in priority order),
// whether a fetch is currently in flight, and how many attempts have
// failed.
type RequestEntry struct {
	Group          GroupIndex
	peers          []peerAdvertisement
	InFlight       bool
	FailureCount   int
}

// AddPeer appends peer to this entry's advertiser list, if not already
// present.
func (r *RequestEntry) AddPeer(peer PeerID) {
	for _, p := range r.peers {
		if p.peer == peer {
			return
		}
	}
	r.peers = append(r.peers, peerAdvertisement{peer: peer})
}

// SetClusterPriority marks the most recently added peer as
// cluster-sourced, so that cluster peers are tried before grid-advertised
// ones. It is a no-op if no peer has been added yet.
func (r *RequestEntry) SetClusterPriority() {
	if len(r.peers) == 0 {
		return
	}
	r.peers[len(r.peers)-1].clusterPriority = true
}

// Peers returns the advertiser list with cluster-priority peers ordered
// first, preserving relative insertion order within each priority tier.
func (r *RequestEntry) Peers() []PeerID {
	out := make([]PeerID, 0, len(r.peers))
	for _, p := range r.peers {
		if p.clusterPriority {
			out = append(out, p.peer)
		}
	}
	for _, p := range r.peers {
		if !p.clusterPriority {
			out = append(out, p.peer)
		}
	}
	return out
}

// RequestManager is an insertion-ordered queue of outstanding candidate
// fetches, keyed by (relay-parent, candidate-hash), giving deterministic
// fetch ordering.
type RequestManager struct {
	order   []requestKey
	entries map[requestKey]*RequestEntry
}

// NewRequestManager constructs an empty manager.
func NewRequestManager() *RequestManager {
	return &RequestManager{entries: make(map[requestKey]*RequestEntry)}
}

// GetOrInsert returns the entry for (relayParent, candidateHash),
// creating one originating from group if absent.
func (m *RequestManager) GetOrInsert(relayParent Hash, candidateHash CandidateHash, group GroupIndex) *RequestEntry {
	key := requestKey{relayParent, candidateHash}
	entry, ok := m.entries[key]
	if !ok {
		entry = &RequestEntry{Group: group}
		m.entries[key] = entry
		m.order = append(m.order, key)
	}
	return entry
}

// Get returns the entry for (relayParent, candidateHash), if present.
func (m *RequestManager) Get(relayParent Hash, candidateHash CandidateHash) (*RequestEntry, bool) {
	entry, ok := m.entries[requestKey{relayParent, candidateHash}]
	return entry, ok
}

// Remove deletes the entry for (relayParent, candidateHash). Called by
// CandidateFetched once the candidate confirms; relay-parent deactivation
// uses RemoveForRelayParent instead.
func (m *RequestManager) Remove(relayParent Hash, candidateHash CandidateHash) {
	key := requestKey{relayParent, candidateHash}
	if _, ok := m.entries[key]; !ok {
		return
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// RemoveForRelayParent removes every entry rooted at relayParent. Called
// when a leaf deactivation removes that relay-parent from the implicit
// view.
func (m *RequestManager) RemoveForRelayParent(relayParent Hash) {
	for _, key := range m.order {
		if key.relayParent == relayParent {
			delete(m.entries, key)
		}
	}
	filtered := m.order[:0]
	for _, key := range m.order {
		if key.relayParent != relayParent {
			filtered = append(filtered, key)
		}
	}
	m.order = filtered
}

// Len returns the number of entries currently queued.
func (m *RequestManager) Len() int {
	return len(m.order)
}

// Outstanding returns the keys of every entry currently queued, in
// insertion order.
func (m *RequestManager) Outstanding() []struct {
	RelayParent   Hash
	CandidateHash CandidateHash
} {
	out := make([]struct {
		RelayParent   Hash
		CandidateHash CandidateHash
	}, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, struct {
			RelayParent   Hash
			CandidateHash CandidateHash
		}{key.relayParent, key.candidateHash})
	}
	return out
}
