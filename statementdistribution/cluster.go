// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

import (
	"errors"
	"fmt"

	set "github.com/luxfi/statement-distribution/internal/set"
)

// ClusterAccept is the acceptance verdict returned by ClusterTracker.CanReceive.
type ClusterAccept uint8

const (
	// ClusterAcceptOK means the message is acceptable.
	ClusterAcceptOK ClusterAccept = iota
	// ClusterAcceptWithPrejudice means the message is acceptable, but the
	// sender has previously misbehaved. Currently unused: reserved for
	// future use, since there is no misbehavior-tracking source wired to
	// ClusterTracker yet. Callers may throttle WithPrejudice senders but
	// must otherwise treat it identically to ClusterAcceptOK.
	ClusterAcceptWithPrejudice
)

// clusterEdge is a (originator, statement) pair relative to some peer: an
// entry in that peer's "sent" or "received" relation.
type clusterEdge struct {
	originator ValidatorIndex
	statement  CompactStatement
}

// ClusterTracker is a per-(relay-parent, group) knowledge matrix: for each
// cluster member it records what we believe they know, what we have sent
// them, and what we have received from them, enforcing the "at most k
// Seconded per originator" rule (k = secondingLimit) and preventing
// duplicate sends/receives.
type ClusterTracker struct {
	self  ValidatorIndex
	group set.Set[ValidatorIndex]
	// secondingLimit (k) is the per-originator cap on distinct Seconded
	// statements a cluster member may author, drawn from the
	// asynchronous-backing configuration (max candidate depth + 1). It is
	// a constructor parameter, never a hard-coded constant.
	secondingLimit int

	// knowledge[v] is the set of compact statements we believe validator v
	// knows, by virtue of having sent or received them.
	knowledge map[ValidatorIndex]set.Set[CompactStatement]
	sent      map[ValidatorIndex]set.Set[clusterEdge]
	received  map[ValidatorIndex]set.Set[clusterEdge]

	// secondedSentCount[v][originator] is the count of distinct
	// Seconded statements by originator that have been sent to v (used by
	// CanSend) — tracked separately per peer because the cap is
	// evaluated per (target, originator), not globally.
	// secondedReceivedCount is the same count for statements received
	// from v, used by CanReceive.
	secondedSentCount     map[ValidatorIndex]map[ValidatorIndex]int
	secondedReceivedCount map[ValidatorIndex]map[ValidatorIndex]int

	// secondedSeen maps a candidate hash to the validators known (via any
	// received or sent Seconded statement) to have signed it, used by
	// SendableSeconder.
	secondedSeen map[CandidateHash]set.Set[ValidatorIndex]
	// secondedSigner maps a candidate hash to the first validator observed
	// (via a sent or received Seconded statement) to have signed it.
	// SendableSeconder picks from secondedSeen instead.
	secondedSigner map[CandidateHash]ValidatorIndex
}

// ErrEmptyGroup is returned by NewClusterTracker when constructed with no
// group members: this is a construction-time invariant, not a steady-state
// error, and may fail loudly.
var ErrEmptyGroup = errors.New("cluster group must be non-empty")

// NewClusterTracker constructs a ClusterTracker for the local validator
// self, rooted at group, with secondingLimit as the per-originator
// Seconded cap (k). Fails if group is empty.
func NewClusterTracker(self ValidatorIndex, group []ValidatorIndex, secondingLimit int) (*ClusterTracker, error) {
	if len(group) == 0 {
		return nil, ErrEmptyGroup
	}

	return &ClusterTracker{
		self:                  self,
		group:                 set.Of(group...),
		secondingLimit:        secondingLimit,
		knowledge:             make(map[ValidatorIndex]set.Set[CompactStatement]),
		sent:                  make(map[ValidatorIndex]set.Set[clusterEdge]),
		received:              make(map[ValidatorIndex]set.Set[clusterEdge]),
		secondedSentCount:     make(map[ValidatorIndex]map[ValidatorIndex]int),
		secondedReceivedCount: make(map[ValidatorIndex]map[ValidatorIndex]int),
		secondedSeen:          make(map[CandidateHash]set.Set[ValidatorIndex]),
		secondedSigner:        make(map[CandidateHash]ValidatorIndex),
	}, nil
}

// Targets returns the full cluster membership (the group).
func (c *ClusterTracker) Targets() []ValidatorIndex {
	return c.group.List()
}

// Self returns the local validator this tracker is rooted at.
func (c *ClusterTracker) Self() ValidatorIndex {
	return c.self
}

// SendersForOriginator returns every cluster member permitted to forward
// originator's statements to us. Currently this is every other member of
// the group.
func (c *ClusterTracker) SendersForOriginator(originator ValidatorIndex) []ValidatorIndex {
	out := make([]ValidatorIndex, 0, c.group.Len())
	for _, v := range c.group.List() {
		if v != originator {
			out = append(out, v)
		}
	}
	return out
}

// KnowsCandidate reports whether we believe target knows anything
// (Seconded or Valid) about candidate.
func (c *ClusterTracker) KnowsCandidate(target ValidatorIndex, candidate CandidateHash) bool {
	k, ok := c.knowledge[target]
	if !ok {
		return false
	}
	return k.Contains(NewSeconded(candidate)) || k.Contains(NewValid(candidate))
}

// CanSend reports whether a message from originator may be sent to
// target.
func (c *ClusterTracker) CanSend(target, originator ValidatorIndex, statement CompactStatement) error {
	if !c.group.Contains(target) {
		return ErrClusterNotInGroup
	}
	if target == originator {
		return fmt.Errorf("%w: target equals originator", ErrClusterNotInGroup)
	}

	if sent, ok := c.sent[target]; ok && sent.Contains(clusterEdge{originator, statement}) {
		return ErrClusterDuplicate
	}

	if statement.Kind == Valid {
		if !c.KnowsCandidate(target, statement.CandidateHash) {
			return ErrClusterCandidateUnknown
		}
	}

	if statement.Kind == Seconded {
		if count := c.secondedSentCount[target][originator]; count >= c.secondingLimit {
			return ErrClusterExcessiveSeconded
		}
	}

	return nil
}

// CanReceive reports whether a message claimed to originate from
// originator, relayed by sender, may be accepted.
func (c *ClusterTracker) CanReceive(sender, originator ValidatorIndex, statement CompactStatement) (ClusterAccept, error) {
	if !c.group.Contains(sender) {
		return 0, ErrClusterNotInGroup
	}
	if sender == originator {
		return 0, fmt.Errorf("%w: sender equals originator", ErrClusterNotInGroup)
	}

	if received, ok := c.received[sender]; ok && received.Contains(clusterEdge{originator, statement}) {
		return 0, ErrClusterDuplicate
	}

	if statement.Kind == Valid {
		if _, signed := c.secondedSeen[statement.CandidateHash]; !signed {
			return 0, ErrClusterCandidateUnknown
		}
	}

	if statement.Kind == Seconded {
		if count := c.secondedReceivedCount[sender][originator]; count >= c.secondingLimit {
			return 0, ErrClusterExcessiveSeconded
		}
	}

	return ClusterAcceptOK, nil
}

// NoteSent records that statement (from originator) has been sent to
// target. Must only be called after the corresponding CanSend returned
// nil. Idempotent by virtue of set semantics.
func (c *ClusterTracker) NoteSent(target, originator ValidatorIndex, statement CompactStatement) {
	edge := clusterEdge{originator, statement}
	sent, ok := c.sent[target]
	if !ok {
		sent = set.NewSet[clusterEdge](4)
	}
	alreadySent := sent.Contains(edge)
	sent.Add(edge)
	c.sent[target] = sent

	k, ok := c.knowledge[target]
	if !ok {
		k = set.NewSet[CompactStatement](4)
	}
	k.Add(statement)
	c.knowledge[target] = k

	c.noteSecondedSeen(originator, statement)

	if statement.Kind == Seconded && !alreadySent {
		if c.secondedSentCount[target] == nil {
			c.secondedSentCount[target] = make(map[ValidatorIndex]int)
		}
		c.secondedSentCount[target][originator]++
	}
}

// NoteReceived records that statement (from originator) has been received
// from sender. Must only be called after the corresponding CanReceive
// returned a successful verdict.
func (c *ClusterTracker) NoteReceived(sender, originator ValidatorIndex, statement CompactStatement) {
	edge := clusterEdge{originator, statement}
	received, ok := c.received[sender]
	if !ok {
		received = set.NewSet[clusterEdge](4)
	}
	alreadyReceived := received.Contains(edge)
	received.Add(edge)
	c.received[sender] = received

	// We now know the originator (and ourselves) know this statement too.
	k, ok := c.knowledge[originator]
	if !ok {
		k = set.NewSet[CompactStatement](4)
	}
	k.Add(statement)
	c.knowledge[originator] = k

	c.noteSecondedSeen(originator, statement)

	if statement.Kind == Seconded && !alreadyReceived {
		if c.secondedReceivedCount[sender] == nil {
			c.secondedReceivedCount[sender] = make(map[ValidatorIndex]int)
		}
		c.secondedReceivedCount[sender][originator]++
	}
}

func (c *ClusterTracker) noteSecondedSeen(originator ValidatorIndex, statement CompactStatement) {
	if statement.Kind != Seconded {
		return
	}
	seen, ok := c.secondedSeen[statement.CandidateHash]
	if !ok {
		seen = set.NewSet[ValidatorIndex](4)
	}
	seen.Add(originator)
	c.secondedSeen[statement.CandidateHash] = seen
	if _, ok := c.secondedSigner[statement.CandidateHash]; !ok {
		c.secondedSigner[statement.CandidateHash] = originator
	}
}

// HasSeconded reports whether we believe target specifically knows
// Seconded(_, candidate) — stricter than KnowsCandidate, which also
// matches a known Valid.
func (c *ClusterTracker) HasSeconded(target ValidatorIndex, candidate CandidateHash) bool {
	k, ok := c.knowledge[target]
	if !ok {
		return false
	}
	return k.Contains(NewSeconded(candidate))
}

// SendableSeconder returns a validator v such that Seconded(_, candidate)
// was signed by v and v != self, used to bootstrap a receiver that does
// not yet know the candidate.
func (c *ClusterTracker) SendableSeconder(candidate CandidateHash) (ValidatorIndex, bool) {
	seen, ok := c.secondedSeen[candidate]
	if !ok {
		return 0, false
	}
	for _, v := range seen.List() {
		if v != c.self {
			return v, true
		}
	}
	return 0, false
}
