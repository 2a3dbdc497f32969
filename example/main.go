// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command example wires a three-validator statement-distribution Engine
// with in-memory collaborator doubles and walks it through activating a
// relay-parent, connecting peers, and circulating one statement.
package main

import (
	"context"
	"fmt"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/log"

	sd "github.com/luxfi/statement-distribution/statementdistribution"
)

// memoryRuntime is a fixed, single-session RuntimeAPI double: no chain to
// query, just the session and availability data handed to it at construction.
type memoryRuntime struct {
	session sd.SessionIndex
	info    sd.SessionInfo
	cores   sd.AvailabilityCores
}

func (r memoryRuntime) SessionIndexForChild(context.Context, sd.Hash) (sd.SessionIndex, error) {
	return r.session, nil
}

func (r memoryRuntime) SessionInfo(context.Context, sd.Hash, sd.SessionIndex) (sd.SessionInfo, error) {
	return r.info, nil
}

func (r memoryRuntime) AvailabilityCores(context.Context, sd.Hash) (sd.AvailabilityCores, error) {
	return r.cores, nil
}

func (r memoryRuntime) AllowedAncestry(context.Context, sd.Hash) ([]sd.Hash, error) {
	return nil, nil
}

// localKeystore resolves a single fixed validator index as local and never
// signs on its own behalf (statements here arrive pre-signed).
type localKeystore struct {
	index sd.ValidatorIndex
}

func (k localKeystore) LocalValidatorIndex(sd.SessionInfo) (sd.ValidatorIndex, bool) {
	return k.index, true
}

func (k localKeystore) Sign(sd.ValidatorIndex, []byte) ([]byte, error) {
	return nil, fmt.Errorf("local signing is out of scope for this example")
}

type loggingNetwork struct{}

func (loggingNetwork) SendStatement(_ context.Context, peer sd.PeerID, relayParent sd.Hash, statement sd.UncheckedSignedStatement) error {
	fmt.Printf("  -> sent %s about %s to peer %s\n", statement.Statement, relayParent, peer)
	return nil
}

func (loggingNetwork) ReportPeer(_ context.Context, peer sd.PeerID, change sd.ReputationChange) {
	fmt.Printf("  ! reported peer %s: %s (%d)\n", peer, change.Name, change.Value)
}

type loggingBacking struct{}

func (loggingBacking) CandidateBacked(_ context.Context, relayParent sd.Hash, candidate sd.CandidateHash) {
	fmt.Printf("  * candidate %s backed at %s\n", candidate, relayParent)
}

type noGrid struct{}

func (noGrid) Targets(sd.Hash) []sd.GridTarget     { return nil }
func (noGrid) InstallTopology(sd.SessionIndex, any) {}
func (noGrid) HandleManifest(sd.PeerID, []byte)     {}
func (noGrid) HandleKnown(sd.PeerID, []byte)        {}

type validator struct {
	name string
	sk   *bls.SecretKey
	id   sd.AuthorityID
}

func newValidator(name string) validator {
	sk, err := bls.NewSecretKey()
	if err != nil {
		panic(err)
	}
	return validator{name: name, sk: sk, id: sd.AuthorityIDFromPublicKey(sk.PublicKey())}
}

func main() {
	fmt.Println("statement-distribution example")
	fmt.Println("===============================")

	validators := []validator{newValidator("alice"), newValidator("bob"), newValidator("carol")}
	discovery := make([]sd.AuthorityID, len(validators))
	for i, v := range validators {
		discovery[i] = v.id
	}

	session := sd.SessionIndex(1)
	relayParent := idFromByte(1)

	info := sd.SessionInfo{
		DiscoveryKeys:   discovery,
		ValidatorGroups: [][]sd.ValidatorIndex{{0, 1, 2}},
		NValidators:     3,
	}

	engine := sd.NewEngine(sd.Config{
		Runtime: memoryRuntime{
			session: session,
			info:    info,
			cores:   sd.AvailabilityCores{Assignment: map[sd.GroupIndex]sd.ParaID{0: 9}},
		},
		Keystore:                 localKeystore{index: 0},
		Network:                  loggingNetwork{},
		Backing:                  loggingBacking{},
		Grid:                     noGrid{},
		Log:                      log.NewNoOpLogger(),
		SecondingLimit:           2,
		MaxAdvertisementsPerPeer: 16,
	})

	ctx := context.Background()
	if err := engine.ActivatedLeaf(ctx, relayParent); err != nil {
		panic(err)
	}

	bobPeer := idFromByte(2)
	engine.PeerConnected(sd.ProtocolVStaging, bobPeer, []sd.AuthorityID{validators[1].id})
	if err := engine.PeerViewChange(ctx, bobPeer, []sd.Hash{relayParent}); err != nil {
		panic(err)
	}

	fmt.Println("\nbob relays carol's Seconded statement:")
	candidate := idFromByte(3)
	statement := sd.NewSeconded(candidate)
	payload := sd.SigningPayload(session, relayParent, statement)
	sig, err := validators[2].sk.Sign(payload)
	if err != nil {
		panic(err)
	}
	unchecked := sd.UncheckedSignedStatement{
		Statement:      statement,
		SessionIndex:   session,
		RelayParent:    relayParent,
		ValidatorIndex: 2,
		Signature:      sig,
	}
	engine.PeerMessage(ctx, bobPeer, sd.NewStatementMessage(relayParent, unchecked))
}

func idFromByte(b byte) sd.Hash {
	var h sd.Hash
	h[0] = b
	return h
}
