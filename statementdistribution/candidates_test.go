// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

import (
	"testing"

	"github.com/stretchr/testify/require"

	set "github.com/luxfi/statement-distribution/internal/set"
)

func mkPeer(b byte) PeerID {
	var p PeerID
	p[0] = b
	return p
}

func mkHash(b byte) Hash {
	var h Hash
	h[0] = b
	return h
}

func TestCandidatesInsertUnconfirmedThenConfirmMismatchReckoned(t *testing.T) {
	require := require.New(t)

	c := NewCandidates(16)
	hash := mkCandidateHash(1)
	rp := mkHash(9)

	require.NoError(c.InsertUnconfirmed(mkPeer(1), hash, rp, GroupIndex(0), 0, 0, false))
	require.NoError(c.InsertUnconfirmed(mkPeer(2), hash, rp, GroupIndex(1), 0, 0, false))

	reckoning, changed := c.ConfirmCandidate(hash, CandidateReceipt{ParaID: 7, RelayParent: rp}, PersistedValidationData{}, GroupIndex(1))
	require.True(changed)
	require.ElementsMatch([]PeerID{mkPeer(1)}, reckoning.BadAdvertisers)

	require.True(c.IsConfirmed(hash))
	confirmed, ok := c.GetConfirmed(hash)
	require.True(ok)
	require.Equal(ParaID(7), confirmed.ParaID())
}

func TestCandidatesConfirmIdempotent(t *testing.T) {
	require := require.New(t)

	c := NewCandidates(16)
	hash := mkCandidateHash(1)
	receipt := CandidateReceipt{ParaID: 7, RelayParent: mkHash(9), Payload: []byte("x")}

	_, changed := c.ConfirmCandidate(hash, receipt, PersistedValidationData{}, GroupIndex(0))
	require.True(changed)

	_, changed = c.ConfirmCandidate(hash, receipt, PersistedValidationData{}, GroupIndex(0))
	require.False(changed, "re-confirming identical data must be a no-op")
}

func TestCandidatesAdvertisementAfterConfirmedChecksGroup(t *testing.T) {
	require := require.New(t)

	c := NewCandidates(16)
	hash := mkCandidateHash(1)
	rp := mkHash(9)
	_, _ = c.ConfirmCandidate(hash, CandidateReceipt{ParaID: 1, RelayParent: rp}, PersistedValidationData{}, GroupIndex(2))

	err := c.InsertUnconfirmed(mkPeer(1), hash, rp, GroupIndex(2), 0, 0, false)
	require.NoError(err)

	err = c.InsertUnconfirmed(mkPeer(1), hash, rp, GroupIndex(5), 0, 0, false)
	require.ErrorIs(err, ErrBadAdvertisement)
}

func TestCandidatesPerPeerAdvertisementBudget(t *testing.T) {
	require := require.New(t)

	c := NewCandidates(2)
	rp := mkHash(9)
	peer := mkPeer(1)

	require.NoError(c.InsertUnconfirmed(peer, mkCandidateHash(1), rp, 0, 0, 0, false))
	require.NoError(c.InsertUnconfirmed(peer, mkCandidateHash(2), rp, 0, 0, 0, false))
	err := c.InsertUnconfirmed(peer, mkCandidateHash(3), rp, 0, 0, 0, false)
	require.ErrorIs(err, ErrBadAdvertisement)
}

func TestCandidatesRemoveForRelayParents(t *testing.T) {
	require := require.New(t)

	c := NewCandidates(16)
	rpKeep := mkHash(1)
	rpDrop := mkHash(2)

	require.NoError(c.InsertUnconfirmed(mkPeer(1), mkCandidateHash(1), rpKeep, 0, 0, 0, false))
	require.NoError(c.InsertUnconfirmed(mkPeer(1), mkCandidateHash(2), rpDrop, 0, 0, 0, false))

	allowed := set.Of(rpKeep)
	c.RemoveForRelayParents(allowed)

	require.Contains(c.records, mkCandidateHash(1))
	require.NotContains(c.records, mkCandidateHash(2))
}
