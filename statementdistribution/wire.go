// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luxfi/crypto/bls"
)

// Wire message tags, one byte each, identifying the variant inside a
// length-prefixed frame.
const (
	wireTagStatement               byte = 0x01
	wireTagBackedCandidateManifest byte = 0x02
	wireTagBackedCandidateKnown    byte = 0x03
	wireTagV1Compatibility         byte = 0x04
)

// ErrShortFrame is returned by Decode when the supplied bytes end before a
// length-prefixed field is fully present.
var ErrShortFrame = errors.New("statement-distribution: truncated wire frame")

// ErrUnknownTag is returned by Decode when the frame's tag byte does not
// match any known variant.
var ErrUnknownTag = errors.New("statement-distribution: unknown wire tag")

// WireMessage is the v2 statement-distribution protocol message: a sum
// type over {Statement, BackedCandidateManifest, BackedCandidateKnown,
// V1Compatibility}. Only Statement is produced or consumed directly by
// this engine; BackedCandidateManifest and BackedCandidateKnown are opaque
// payloads forwarded to grid routing, and V1Compatibility is carried
// opaquely and ignored by the engine.
type WireMessage struct {
	Tag byte

	// Statement fields, valid when Tag == wireTagStatement.
	RelayParent Hash
	Statement   UncheckedSignedStatement

	// Opaque payload for the grid-routing variants and v1-compatibility
	// fallback, carried verbatim.
	Opaque []byte
}

// NewStatementMessage wraps a statement for transmission.
func NewStatementMessage(relayParent Hash, statement UncheckedSignedStatement) WireMessage {
	return WireMessage{Tag: wireTagStatement, RelayParent: relayParent, Statement: statement}
}

// IsStatement reports whether m carries a Statement variant.
func (m WireMessage) IsStatement() bool {
	return m.Tag == wireTagStatement
}

// Encode canonically serializes m as a length-prefixed frame: a 4-byte
// big-endian length, followed by a 1-byte tag and the variant's encoded
// body.
func Encode(m WireMessage) ([]byte, error) {
	var body []byte
	switch m.Tag {
	case wireTagStatement:
		body = encodeStatementBody(m.RelayParent, m.Statement)
	case wireTagBackedCandidateManifest, wireTagBackedCandidateKnown, wireTagV1Compatibility:
		body = m.Opaque
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, m.Tag)
	}

	frame := make([]byte, 4+1+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(1+len(body)))
	frame[4] = m.Tag
	copy(frame[5:], body)
	return frame, nil
}

// Decode parses a single length-prefixed frame from data, returning the
// message and the number of bytes consumed.
func Decode(data []byte) (WireMessage, int, error) {
	if len(data) < 4 {
		return WireMessage{}, 0, ErrShortFrame
	}
	length := binary.BigEndian.Uint32(data[:4])
	total := 4 + int(length)
	if len(data) < total || length < 1 {
		return WireMessage{}, 0, ErrShortFrame
	}

	tag := data[4]
	body := data[5:total]

	switch tag {
	case wireTagStatement:
		relayParent, statement, err := decodeStatementBody(body)
		if err != nil {
			return WireMessage{}, 0, err
		}
		return WireMessage{Tag: tag, RelayParent: relayParent, Statement: statement}, total, nil
	case wireTagBackedCandidateManifest, wireTagBackedCandidateKnown, wireTagV1Compatibility:
		opaque := make([]byte, len(body))
		copy(opaque, body)
		return WireMessage{Tag: tag, Opaque: opaque}, total, nil
	default:
		return WireMessage{}, 0, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}
}

// encodeStatementBody lays out relayParent (32 bytes), the statement kind
// (1 byte), the candidate hash (32 bytes), session index (8 bytes,
// big-endian), validator index (4 bytes, big-endian), and the BLS
// signature as a 2-byte length prefix followed by its compressed bytes,
// in that fixed order.
func encodeStatementBody(relayParent Hash, s UncheckedSignedStatement) []byte {
	var sigBytes []byte
	if s.Signature != nil {
		sigBytes = bls.SignatureToBytes(s.Signature)
	}

	out := make([]byte, 32+1+32+8+4+2+len(sigBytes))
	off := 0
	copy(out[off:], relayParent[:])
	off += 32
	out[off] = byte(s.Statement.Kind)
	off++
	copy(out[off:], s.Statement.CandidateHash[:])
	off += 32
	binary.BigEndian.PutUint64(out[off:], uint64(s.SessionIndex))
	off += 8
	binary.BigEndian.PutUint32(out[off:], uint32(s.ValidatorIndex))
	off += 4
	binary.BigEndian.PutUint16(out[off:], uint16(len(sigBytes)))
	off += 2
	copy(out[off:], sigBytes)
	return out
}

func decodeStatementBody(body []byte) (Hash, UncheckedSignedStatement, error) {
	const fixedLen = 32 + 1 + 32 + 8 + 4 + 2
	if len(body) < fixedLen {
		return Hash{}, UncheckedSignedStatement{}, ErrShortFrame
	}

	var relayParent Hash
	copy(relayParent[:], body[:32])
	off := 32

	kind := StatementKind(body[off])
	off++

	var candidateHash CandidateHash
	copy(candidateHash[:], body[off:off+32])
	off += 32

	session := SessionIndex(binary.BigEndian.Uint64(body[off : off+8]))
	off += 8

	validator := ValidatorIndex(binary.BigEndian.Uint32(body[off : off+4]))
	off += 4

	sigLen := int(binary.BigEndian.Uint16(body[off : off+2]))
	off += 2
	if len(body) < off+sigLen {
		return Hash{}, UncheckedSignedStatement{}, ErrShortFrame
	}

	var signature *bls.Signature
	if sigLen > 0 {
		sig, err := bls.SignatureFromBytes(body[off : off+sigLen])
		if err != nil {
			return Hash{}, UncheckedSignedStatement{}, fmt.Errorf("decode statement signature: %w", err)
		}
		signature = sig
	}

	statement := UncheckedSignedStatement{
		Statement:      CompactStatement{Kind: kind, CandidateHash: candidateHash},
		SessionIndex:   session,
		RelayParent:    relayParent,
		ValidatorIndex: validator,
		Signature:      signature,
	}
	return relayParent, statement, nil
}
