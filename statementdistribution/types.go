// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package statementdistribution implements the v2 statement-distribution
// engine for a sharded BFT network with asynchronous backing: it sits
// between the network boundary and the backing subsystem, tracking
// Seconded/Valid statements per relay-parent, enforcing per-cluster
// anti-spam rules, and routing statements to exactly the peers that need
// them.
package statementdistribution

import (
	"fmt"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"
)

// Hash identifies a relay-chain block (a relay-parent).
type Hash = ids.ID

// CandidateHash identifies a candidate by the hash of its committed
// receipt.
type CandidateHash = ids.ID

// PeerID is the transport-level identity of a connected peer.
type PeerID = ids.NodeID

// SessionIndex identifies a session of the relay chain.
type SessionIndex uint64

// ValidatorIndex is a compact index into a session's validator vector.
type ValidatorIndex uint32

// GroupIndex is a compact index into a session's group vector.
type GroupIndex uint32

// ParaID identifies a shard ("parachain").
type ParaID uint32

// blsPublicKeyLen is the length in bytes of a compressed BLS12-381 public
// key, as returned by bls.PublicKeyToCompressedBytes.
const blsPublicKeyLen = 48

// AuthorityID is a validator's compressed BLS public discovery key, used
// as a comparable identity since *bls.PublicKey is not itself comparable.
type AuthorityID [blsPublicKeyLen]byte

// AuthorityIDFromPublicKey derives an AuthorityID from a BLS public key.
func AuthorityIDFromPublicKey(pk *bls.PublicKey) AuthorityID {
	var id AuthorityID
	copy(id[:], bls.PublicKeyToCompressedBytes(pk))
	return id
}

// PublicKey recovers the BLS public key from an AuthorityID.
func (a AuthorityID) PublicKey() (*bls.PublicKey, error) {
	return bls.PublicKeyFromCompressedBytes(a[:])
}

func (a AuthorityID) String() string {
	return fmt.Sprintf("authority(%x...)", a[:4])
}

// StatementKind distinguishes the two compact statement variants.
type StatementKind uint8

const (
	// Seconded asserts first-hand observation of a candidate.
	Seconded StatementKind = iota
	// Valid countersigns a candidate already Seconded by another group
	// member.
	Valid
)

func (k StatementKind) String() string {
	switch k {
	case Seconded:
		return "Seconded"
	case Valid:
		return "Valid"
	default:
		return "Unknown"
	}
}

// CompactStatement is the tagged value Seconded(CandidateHash) or
// Valid(CandidateHash).
type CompactStatement struct {
	Kind          StatementKind
	CandidateHash CandidateHash
}

func (s CompactStatement) String() string {
	return fmt.Sprintf("%s(%s)", s.Kind, s.CandidateHash)
}

// NewSeconded builds a Seconded compact statement.
func NewSeconded(hash CandidateHash) CompactStatement {
	return CompactStatement{Kind: Seconded, CandidateHash: hash}
}

// NewValid builds a Valid compact statement.
func NewValid(hash CandidateHash) CompactStatement {
	return CompactStatement{Kind: Valid, CandidateHash: hash}
}

// SignedStatement binds a CompactStatement to a (session, relay-parent,
// validator, signature) tuple whose signature has been verified.
type SignedStatement struct {
	Statement      CompactStatement
	SessionIndex   SessionIndex
	RelayParent    Hash
	ValidatorIndex ValidatorIndex
	Signature      *bls.Signature
}

// UncheckedSignedStatement carries identical data minus the proven-valid
// signature: it has arrived over the wire and has not yet been checked
// against the claimed originator's signing key.
type UncheckedSignedStatement struct {
	Statement      CompactStatement
	SessionIndex   SessionIndex
	RelayParent    Hash
	ValidatorIndex ValidatorIndex
	Signature      *bls.Signature
}

// SigningPayload returns the canonical bytes signed over: (session_index,
// relay_parent, compact_statement).
func SigningPayload(session SessionIndex, relayParent Hash, statement CompactStatement) []byte {
	buf := make([]byte, 0, 8+len(relayParent)+1+len(statement.CandidateHash))
	buf = appendUint64(buf, uint64(session))
	buf = append(buf, relayParent[:]...)
	buf = append(buf, byte(statement.Kind))
	buf = append(buf, statement.CandidateHash[:]...)
	return buf
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(v >> (8 * (7 - i)))
	}
	return append(buf, tmp[:]...)
}

// TryIntoChecked verifies the unchecked statement's signature against the
// claimed originator's discovery key, returning a SignedStatement on
// success.
func (u UncheckedSignedStatement) TryIntoChecked(signerKey *bls.PublicKey) (SignedStatement, bool) {
	payload := SigningPayload(u.SessionIndex, u.RelayParent, u.Statement)
	if u.Signature == nil || signerKey == nil {
		return SignedStatement{}, false
	}
	if !bls.Verify(signerKey, u.Signature, payload) {
		return SignedStatement{}, false
	}
	return SignedStatement{
		Statement:      u.Statement,
		SessionIndex:   u.SessionIndex,
		RelayParent:    u.RelayParent,
		ValidatorIndex: u.ValidatorIndex,
		Signature:      u.Signature,
	}, true
}

// AsUnchecked discards the proof of validity, for re-transmission to
// peers that must verify it themselves.
func (s SignedStatement) AsUnchecked() UncheckedSignedStatement {
	return UncheckedSignedStatement{
		Statement:      s.Statement,
		SessionIndex:   s.SessionIndex,
		RelayParent:    s.RelayParent,
		ValidatorIndex: s.ValidatorIndex,
		Signature:      s.Signature,
	}
}

// MinimumVotes is the number of statements required to consider a
// candidate backed. WARNING: must be kept in sync with the runtime's
// inclusion check.
func MinimumVotes(nValidators int) int {
	if nValidators < 2 {
		return nValidators
	}
	return 2
}
