// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

import set "github.com/luxfi/statement-distribution/internal/set"

// CandidateReceipt is the committed candidate receipt, opaque to this
// engine beyond the fields it needs to route statements.
type CandidateReceipt struct {
	ParaID      ParaID
	RelayParent Hash
	// Payload carries the remainder of the receipt (commitments, PoV
	// hash, etc.), opaque to statement-distribution.
	Payload []byte
}

// PersistedValidationData is the validation data accompanying a
// confirmed candidate, opaque to this engine.
type PersistedValidationData struct {
	Payload []byte
}

// advertisement records one peer's claim about a candidate: the group it
// asserted, and (optionally) a claimed (ParaID, depth) pair.
type advertisement struct {
	peer          PeerID
	claimedGroup  GroupIndex
	claimedParaID ParaID
	claimedDepth  int
	hasClaim      bool
}

// candidateRecord is the Candidates registry's entry for one candidate
// hash: either unconfirmed (advertised, not yet fetched) or confirmed
// (receipt + validation data available).
type candidateRecord struct {
	confirmed bool

	// Unconfirmed fields.
	relayParent    Hash
	advertisements []advertisement

	// Confirmed fields.
	receipt        CandidateReceipt
	pvd            PersistedValidationData
	canonicalGroup GroupIndex
}

// Reckoning enumerates the peers to penalize upon candidate confirmation,
// because their prior advertisements claimed a group that disagreed with
// the canonical group.
type Reckoning struct {
	BadAdvertisers []PeerID
}

// Candidates is the process-wide registry of unconfirmed advertisements
// and confirmed receipts, keyed by candidate hash.
type Candidates struct {
	records map[CandidateHash]*candidateRecord

	// maxAdvertisementsPerPeer bounds the number of distinct unconfirmed
	// candidate hashes a single peer may advertise, preventing memory
	// exhaustion by a peer flooding unconfirmed hashes. A constructor
	// parameter, not a hard-coded constant.
	maxAdvertisementsPerPeer int
	perPeerAdvertised        map[PeerID]set.Set[CandidateHash]
}

// NewCandidates constructs an empty registry. maxAdvertisementsPerPeer
// bounds per-peer unconfirmed advertisements.
func NewCandidates(maxAdvertisementsPerPeer int) *Candidates {
	return &Candidates{
		records:                  make(map[CandidateHash]*candidateRecord),
		maxAdvertisementsPerPeer: maxAdvertisementsPerPeer,
		perPeerAdvertised:        make(map[PeerID]set.Set[CandidateHash]),
	}
}

// InsertUnconfirmed records that peer advertised hash at relayParent,
// claiming group claimedGroup and optionally (ParaID, depth) via claim.
// Fails with ErrBadAdvertisement if hash is already confirmed and
// claimedGroup disagrees with the canonical group, or if peer's
// advertisement budget is exceeded.
func (c *Candidates) InsertUnconfirmed(
	peer PeerID,
	hash CandidateHash,
	relayParent Hash,
	claimedGroup GroupIndex,
	claimedParaID ParaID,
	claimedDepth int,
	hasClaim bool,
) error {
	rec, exists := c.records[hash]
	if exists && rec.confirmed {
		if rec.canonicalGroup != claimedGroup {
			return ErrBadAdvertisement
		}
		return nil
	}

	advertised, ok := c.perPeerAdvertised[peer]
	if !ok {
		advertised = set.NewSet[CandidateHash](4)
	}
	if !advertised.Contains(hash) && advertised.Len() >= c.maxAdvertisementsPerPeer {
		return ErrBadAdvertisement
	}
	advertised.Add(hash)
	c.perPeerAdvertised[peer] = advertised

	if !exists {
		rec = &candidateRecord{relayParent: relayParent}
		c.records[hash] = rec
	}
	rec.advertisements = append(rec.advertisements, advertisement{
		peer:          peer,
		claimedGroup:  claimedGroup,
		claimedParaID: claimedParaID,
		claimedDepth:  claimedDepth,
		hasClaim:      hasClaim,
	})

	return nil
}

// ConfirmCandidate transitions hash from unconfirmed to confirmed (or
// inserts it directly as confirmed if unknown), returning a Reckoning of
// advertisers whose claim disagreed with canonicalGroup. Idempotent:
// re-confirming with identical data returns (nil, false).
func (c *Candidates) ConfirmCandidate(
	hash CandidateHash,
	receipt CandidateReceipt,
	pvd PersistedValidationData,
	canonicalGroup GroupIndex,
) (*Reckoning, bool) {
	rec, exists := c.records[hash]
	if exists && rec.confirmed {
		if rec.canonicalGroup == canonicalGroup && string(rec.receipt.Payload) == string(receipt.Payload) {
			return nil, false
		}
	}

	if !exists {
		rec = &candidateRecord{}
		c.records[hash] = rec
	}

	var reckoning Reckoning
	for _, adv := range rec.advertisements {
		if adv.claimedGroup != canonicalGroup {
			reckoning.BadAdvertisers = append(reckoning.BadAdvertisers, adv.peer)
		}
	}

	rec.confirmed = true
	rec.receipt = receipt
	rec.pvd = pvd
	rec.canonicalGroup = canonicalGroup

	return &reckoning, true
}

// ConfirmedCandidate is the read-only view of a confirmed candidate
// record returned by GetConfirmed.
type ConfirmedCandidate struct {
	Receipt        CandidateReceipt
	PVD            PersistedValidationData
	CanonicalGroup GroupIndex
}

// GetConfirmed returns the confirmed record for hash, if any.
func (c *Candidates) GetConfirmed(hash CandidateHash) (ConfirmedCandidate, bool) {
	rec, ok := c.records[hash]
	if !ok || !rec.confirmed {
		return ConfirmedCandidate{}, false
	}
	return ConfirmedCandidate{Receipt: rec.receipt, PVD: rec.pvd, CanonicalGroup: rec.canonicalGroup}, true
}

// IsConfirmed reports whether hash has a confirmed record.
func (c *Candidates) IsConfirmed(hash CandidateHash) bool {
	rec, ok := c.records[hash]
	return ok && rec.confirmed
}

// ParaID returns the confirmed candidate's shard assignment.
func (cc ConfirmedCandidate) ParaID() ParaID {
	return cc.Receipt.ParaID
}

// RelayParent returns the confirmed candidate's relay-parent.
func (cc ConfirmedCandidate) RelayParent() Hash {
	return cc.Receipt.RelayParent
}

// RemoveForRelayParents drops every candidate record (confirmed or not)
// whose relay-parent is not in stillAllowed, along with the per-peer
// advertisement-budget bookkeeping that referenced them. Called when a
// leaf deactivation removes a relay-parent from the implicit view.
func (c *Candidates) RemoveForRelayParents(stillAllowed set.Set[Hash]) {
	for hash, rec := range c.records {
		rp := rec.relayParent
		if rec.confirmed {
			rp = rec.receipt.RelayParent
		}
		if stillAllowed.Contains(rp) {
			continue
		}
		delete(c.records, hash)
		for _, adv := range rec.advertisements {
			if advertised, ok := c.perPeerAdvertised[adv.peer]; ok {
				advertised.Remove(hash)
			}
		}
	}
}
