// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

import "sort"

// statementKey identifies a (validator, compact statement) pair stored by
// the StatementStore.
type statementKey struct {
	validator ValidatorIndex
	statement CompactStatement
}

// perValidatorState is cached bookkeeping kept once a validator's group is
// known, so group lookups after the first insert are O(1) and the
// seconding cap can be checked without a full scan.
type perValidatorState struct {
	group          GroupIndex
	secondedHashes map[CandidateHash]struct{}
}

// StatementStore is a deduplicated, append-only log of (validator,
// compact statement) pairs for one relay-parent, enforcing a per-validator
// cap on distinct Seconded statements.
type StatementStore struct {
	groups Groups

	entries    map[statementKey]SignedStatement
	byValidator map[ValidatorIndex]*perValidatorState
	byCandidate map[CandidateHash]map[statementKey]struct{}
}

// NewStatementStore creates an empty store scoped to one relay-parent,
// using groups to resolve validator group membership on first insert.
func NewStatementStore(groups Groups) *StatementStore {
	return &StatementStore{
		groups:      groups,
		entries:     make(map[statementKey]SignedStatement),
		byValidator: make(map[ValidatorIndex]*perValidatorState),
		byCandidate: make(map[CandidateHash]map[statementKey]struct{}),
	}
}

// Insert records statement. It returns (true, nil) if the statement was
// fresh, (false, nil) if it was already present (redundant), or
// (false, err) if the validator is unknown to the session, is not
// assigned to any group, or has already seconded two distinct candidates
// at this relay-parent.
func (s *StatementStore) Insert(statement SignedStatement) (fresh bool, err error) {
	v := statement.ValidatorIndex

	state, ok := s.byValidator[v]
	if !ok {
		gi, inGroup := s.groups.ByValidatorIndex(v)
		if !inGroup {
			if !s.groups.IsKnownValidator(v) {
				return false, ErrValidatorUnknown
			}
			return false, ErrNotInAnyGroup
		}
		state = &perValidatorState{group: gi, secondedHashes: make(map[CandidateHash]struct{})}
		s.byValidator[v] = state
	}

	key := statementKey{validator: v, statement: statement.Statement}
	if _, exists := s.entries[key]; exists {
		return false, nil
	}

	if statement.Statement.Kind == Seconded {
		if _, already := state.secondedHashes[statement.Statement.CandidateHash]; !already &&
			len(state.secondedHashes) >= 2 {
			return false, ErrExcessiveSeconded
		}
	}

	s.entries[key] = statement
	if statement.Statement.Kind == Seconded {
		state.secondedHashes[statement.Statement.CandidateHash] = struct{}{}
	}

	byCand, ok := s.byCandidate[statement.Statement.CandidateHash]
	if !ok {
		byCand = make(map[statementKey]struct{})
		s.byCandidate[statement.Statement.CandidateHash] = byCand
	}
	byCand[key] = struct{}{}

	return true, nil
}

// ValidatorStatement returns the stored signed form of (v, statement) if
// present.
func (s *StatementStore) ValidatorStatement(v ValidatorIndex, statement CompactStatement) (SignedStatement, bool) {
	signed, ok := s.entries[statementKey{validator: v, statement: statement}]
	return signed, ok
}

// ValidatorGroupIndex returns the validator's group, cached on first
// insert, or (0, false) if the validator has never been inserted.
func (s *StatementStore) ValidatorGroupIndex(v ValidatorIndex) (GroupIndex, bool) {
	state, ok := s.byValidator[v]
	if !ok {
		return 0, false
	}
	return state.group, true
}

// StatementsForCandidate enumerates every stored statement about
// candidate, sorted by validator index for deterministic iteration.
func (s *StatementStore) StatementsForCandidate(candidate CandidateHash) []SignedStatement {
	keys := s.byCandidate[candidate]
	out := make([]SignedStatement, 0, len(keys))
	for k := range keys {
		out = append(out, s.entries[k])
	}
	sortSignedStatements(out)
	return out
}

// StatementsByGroup enumerates every stored statement authored by a
// validator in group gi, sorted by validator index.
func (s *StatementStore) StatementsByGroup(gi GroupIndex) []SignedStatement {
	var out []SignedStatement
	for k, signed := range s.entries {
		if state, ok := s.byValidator[k.validator]; ok && state.group == gi {
			out = append(out, signed)
		}
	}
	sortSignedStatements(out)
	return out
}

// DistinctValidatorsForCandidate returns the set of validator indices that
// have signed any statement about candidate, used for the backing
// threshold check.
func (s *StatementStore) DistinctValidatorsForCandidate(candidate CandidateHash) []ValidatorIndex {
	keys := s.byCandidate[candidate]
	seen := make(map[ValidatorIndex]struct{}, len(keys))
	for k := range keys {
		seen[k.validator] = struct{}{}
	}
	out := make([]ValidatorIndex, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortSignedStatements(s []SignedStatement) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].ValidatorIndex != s[j].ValidatorIndex {
			return s[i].ValidatorIndex < s[j].ValidatorIndex
		}
		return s[i].Statement.Kind < s[j].Statement.Kind
	})
}
