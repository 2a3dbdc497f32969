// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mkCandidateHash(b byte) CandidateHash {
	var h CandidateHash
	h[0] = b
	return h
}

func TestStatementStoreInsertFreshAndRedundant(t *testing.T) {
	require := require.New(t)

	groups := NewGroups([][]ValidatorIndex{{0, 1}}, 2)
	store := NewStatementStore(groups)

	stmt := SignedStatement{Statement: NewSeconded(mkCandidateHash(1)), ValidatorIndex: 0}

	fresh, err := store.Insert(stmt)
	require.NoError(err)
	require.True(fresh)

	fresh, err = store.Insert(stmt)
	require.NoError(err)
	require.False(fresh, "replaying the identical statement must be redundant, not fresh")
}

func TestStatementStoreNotInAnyGroup(t *testing.T) {
	require := require.New(t)

	// 10 known validators, but only 0 is assigned to a group: index 9 is a
	// spare authority, known to the session but ungrouped.
	groups := NewGroups([][]ValidatorIndex{{0}}, 10)
	store := NewStatementStore(groups)

	_, err := store.Insert(SignedStatement{Statement: NewSeconded(mkCandidateHash(1)), ValidatorIndex: 9})
	require.ErrorIs(err, ErrNotInAnyGroup)
}

func TestStatementStoreValidatorUnknown(t *testing.T) {
	require := require.New(t)

	// Only 1 validator exists in the session; index 9 is out of range
	// entirely, distinct from "exists but ungrouped".
	groups := NewGroups([][]ValidatorIndex{{0}}, 1)
	store := NewStatementStore(groups)

	_, err := store.Insert(SignedStatement{Statement: NewSeconded(mkCandidateHash(1)), ValidatorIndex: 9})
	require.ErrorIs(err, ErrValidatorUnknown)
}

func TestStatementStoreExcessiveSeconded(t *testing.T) {
	require := require.New(t)

	groups := NewGroups([][]ValidatorIndex{{0}}, 1)
	store := NewStatementStore(groups)

	for i := byte(1); i <= 2; i++ {
		fresh, err := store.Insert(SignedStatement{Statement: NewSeconded(mkCandidateHash(i)), ValidatorIndex: 0})
		require.NoError(err)
		require.True(fresh)
	}

	_, err := store.Insert(SignedStatement{Statement: NewSeconded(mkCandidateHash(3)), ValidatorIndex: 0})
	require.ErrorIs(err, ErrExcessiveSeconded)

	require.Len(store.StatementsForCandidate(mkCandidateHash(1)), 1)
	require.Len(store.StatementsByGroup(0), 2)
}

func TestStatementStoreValidatorGroupIndexCached(t *testing.T) {
	require := require.New(t)

	groups := NewGroups([][]ValidatorIndex{{0, 1}, {2}}, 3)
	store := NewStatementStore(groups)

	_, ok := store.ValidatorGroupIndex(2)
	require.False(ok, "group is not cached before the first insert")

	_, err := store.Insert(SignedStatement{Statement: NewSeconded(mkCandidateHash(1)), ValidatorIndex: 2})
	require.NoError(err)

	gi, ok := store.ValidatorGroupIndex(2)
	require.True(ok)
	require.Equal(GroupIndex(1), gi)
}

func TestStatementStoreDistinctValidatorsForCandidate(t *testing.T) {
	require := require.New(t)

	groups := NewGroups([][]ValidatorIndex{{0, 1, 2}}, 3)
	store := NewStatementStore(groups)

	hash := mkCandidateHash(1)
	_, err := store.Insert(SignedStatement{Statement: NewSeconded(hash), ValidatorIndex: 0})
	require.NoError(err)
	_, err = store.Insert(SignedStatement{Statement: NewValid(hash), ValidatorIndex: 1})
	require.NoError(err)
	_, err = store.Insert(SignedStatement{Statement: NewValid(hash), ValidatorIndex: 1}) // redundant replay
	require.NoError(err)

	require.ElementsMatch([]ValidatorIndex{0, 1}, store.DistinctValidatorsForCandidate(hash))
}
