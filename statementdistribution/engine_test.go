// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

import (
	"context"
	"testing"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

// fakeRuntime is a minimal RuntimeAPI collaborator backed by fixed,
// single-session in-memory state.
type fakeRuntime struct {
	session  SessionIndex
	info     SessionInfo
	cores    AvailabilityCores
	ancestry map[Hash][]Hash
}

func (r *fakeRuntime) SessionIndexForChild(context.Context, Hash) (SessionIndex, error) {
	return r.session, nil
}

func (r *fakeRuntime) SessionInfo(context.Context, Hash, SessionIndex) (SessionInfo, error) {
	return r.info, nil
}

func (r *fakeRuntime) AvailabilityCores(context.Context, Hash) (AvailabilityCores, error) {
	return r.cores, nil
}

func (r *fakeRuntime) AllowedAncestry(_ context.Context, leaf Hash) ([]Hash, error) {
	return r.ancestry[leaf], nil
}

type fakeNetwork struct {
	sent    []sentStatement
	reports []reportedPeer
}

type sentStatement struct {
	peer        PeerID
	relayParent Hash
	statement   UncheckedSignedStatement
}

type reportedPeer struct {
	peer   PeerID
	change ReputationChange
}

func (n *fakeNetwork) SendStatement(_ context.Context, peer PeerID, relayParent Hash, statement UncheckedSignedStatement) error {
	n.sent = append(n.sent, sentStatement{peer: peer, relayParent: relayParent, statement: statement})
	return nil
}

func (n *fakeNetwork) ReportPeer(_ context.Context, peer PeerID, change ReputationChange) {
	n.reports = append(n.reports, reportedPeer{peer: peer, change: change})
}

type fakeBacking struct {
	backed []CandidateHash
}

func (b *fakeBacking) CandidateBacked(_ context.Context, _ Hash, candidate CandidateHash) {
	b.backed = append(b.backed, candidate)
}

type fakeGrid struct {
	targets   []GridTarget
	installed int
}

func (g *fakeGrid) Targets(Hash) []GridTarget         { return g.targets }
func (g *fakeGrid) InstallTopology(SessionIndex, any)  { g.installed++ }
func (g *fakeGrid) HandleManifest(PeerID, []byte)      {}
func (g *fakeGrid) HandleKnown(PeerID, []byte)         {}

// validatorKey bundles a validator's signing identity for test fixtures.
type validatorKey struct {
	sk        *bls.SecretKey
	authority AuthorityID
}

func mkValidatorKey(t *testing.T) validatorKey {
	t.Helper()
	sk, err := bls.NewSecretKey()
	require.NoError(t, err)
	return validatorKey{sk: sk, authority: AuthorityIDFromPublicKey(sk.PublicKey())}
}

func signStatement(t *testing.T, k validatorKey, session SessionIndex, relayParent Hash, validator ValidatorIndex, statement CompactStatement) UncheckedSignedStatement {
	t.Helper()
	payload := SigningPayload(session, relayParent, statement)
	sig, err := k.sk.Sign(payload)
	require.NoError(t, err)
	return UncheckedSignedStatement{
		Statement:      statement,
		SessionIndex:   session,
		RelayParent:    relayParent,
		ValidatorIndex: validator,
		Signature:      sig,
	}
}

// testHarness bundles a three-validator engine (self = A, index 0) wired
// with in-memory collaborator doubles, for exercising handleIncomingStatement
// and circulate together.
type testHarness struct {
	t           *testing.T
	relayParent Hash
	session     SessionIndex
	keys        []validatorKey
	network     *fakeNetwork
	backing     *fakeBacking
	grid        *fakeGrid
	engine      *Engine
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	keys := []validatorKey{mkValidatorKey(t), mkValidatorKey(t), mkValidatorKey(t)}
	discovery := []AuthorityID{keys[0].authority, keys[1].authority, keys[2].authority}

	relayParent := mkHash(1)
	session := SessionIndex(7)

	runtime := &fakeRuntime{
		session: session,
		info: SessionInfo{
			DiscoveryKeys:   discovery,
			ValidatorGroups: [][]ValidatorIndex{{0, 1, 2}},
			NValidators:     3,
		},
		cores:    AvailabilityCores{Assignment: map[GroupIndex]ParaID{0: 5}},
		ancestry: map[Hash][]Hash{relayParent: nil},
	}

	network := &fakeNetwork{}
	backing := &fakeBacking{}
	grid := &fakeGrid{}

	engine := NewEngine(Config{
		Runtime:                  runtime,
		Keystore:                 fakeKeystore{index: 0, has: true},
		Network:                  network,
		Backing:                  backing,
		Grid:                     grid,
		Metrics:                  nil,
		Log:                      log.NewNoOpLogger(),
		SecondingLimit:           2,
		MaxAdvertisementsPerPeer: 16,
	})

	require.NoError(t, engine.ActivatedLeaf(context.Background(), relayParent))

	return &testHarness{
		t:           t,
		relayParent: relayParent,
		session:     session,
		keys:        keys,
		network:     network,
		backing:     backing,
		grid:        grid,
		engine:      engine,
	}
}

func (h *testHarness) connectAndView(validator ValidatorIndex) PeerID {
	h.t.Helper()
	peer := mkPeer(byte(10 + validator))
	h.engine.PeerConnected(ProtocolVStaging, peer, []AuthorityID{h.keys[validator].authority})
	require.NoError(h.t, h.engine.PeerViewChange(context.Background(), peer, []Hash{h.relayParent}))
	return peer
}

// TestEngineClusterForwardAcceptsAndCirculates is scenario S1: a Seconded
// statement originating from validator C (index 2), relayed through a
// connected peer claiming validator B's identity (index 1), is accepted
// and then circulated to every other connected cluster peer that knows
// the relay-parent.
func TestEngineClusterForwardAcceptsAndCirculates(t *testing.T) {
	require := require.New(t)
	h := newTestHarness(t)

	peerB := h.connectAndView(1)

	hash := mkCandidateHash(9)
	unchecked := signStatement(t, h.keys[2], h.session, h.relayParent, 2, NewSeconded(hash))

	h.engine.PeerMessage(context.Background(), peerB, NewStatementMessage(h.relayParent, unchecked))

	require.Empty(h.network.reports, "a well-formed relayed statement must not be penalized")
	require.Len(h.network.sent, 1)
	require.Equal(peerB, h.network.sent[0].peer)
	require.Equal(ValidatorIndex(2), h.network.sent[0].statement.ValidatorIndex)
	require.Equal(Seconded, h.network.sent[0].statement.Statement.Kind)
}

// TestEngineUnknownRelayParentCostsReputation is scenario S3: a statement
// about a relay-parent this node is not tracking is rejected with
// UNEXPECTED_STATEMENT_MISSING_KNOWLEDGE and never reaches the store.
func TestEngineUnknownRelayParentCostsReputation(t *testing.T) {
	require := require.New(t)
	h := newTestHarness(t)

	peerB := h.connectAndView(1)
	unknownRelayParent := mkHash(99)

	unchecked := signStatement(t, h.keys[2], h.session, unknownRelayParent, 2, NewSeconded(mkCandidateHash(1)))
	h.engine.PeerMessage(context.Background(), peerB, NewStatementMessage(unknownRelayParent, unchecked))

	require.Len(h.network.reports, 1)
	require.Equal(CostUnexpectedStatementMissingKnowledge, h.network.reports[0].change)
	require.Empty(h.network.sent)
}

// TestEngineBadSignatureCostsReputation is scenario S4: a statement whose
// signature does not verify against the claimed originator's discovery key
// is rejected with INVALID_SIGNATURE.
func TestEngineBadSignatureCostsReputation(t *testing.T) {
	require := require.New(t)
	h := newTestHarness(t)

	peerB := h.connectAndView(1)

	// Signed by validator C's key but claims to originate from a
	// different candidate hash than it actually signed.
	unchecked := signStatement(t, h.keys[2], h.session, h.relayParent, 2, NewSeconded(mkCandidateHash(1)))
	unchecked.Statement.CandidateHash = mkCandidateHash(2)

	h.engine.PeerMessage(context.Background(), peerB, NewStatementMessage(h.relayParent, unchecked))

	require.Len(h.network.reports, 1)
	require.Equal(CostInvalidSignature, h.network.reports[0].change)
}

// TestEngineDirectSelfOriginatedStatementRejected exercises the open
// question: a peer sending a Statement directly authored by themselves
// (sender == originator, no cluster relay) is rejected as unexpected,
// since grid-direct ingress is not yet implemented.
func TestEngineDirectSelfOriginatedStatementRejected(t *testing.T) {
	require := require.New(t)
	h := newTestHarness(t)

	peerC := h.connectAndView(2)
	unchecked := signStatement(t, h.keys[2], h.session, h.relayParent, 2, NewSeconded(mkCandidateHash(3)))

	h.engine.PeerMessage(context.Background(), peerC, NewStatementMessage(h.relayParent, unchecked))

	require.Len(h.network.reports, 1)
	require.Equal(CostUnexpectedStatement, h.network.reports[0].change)
	require.Empty(h.network.sent)
}

// TestEngineBackingThresholdNotifiesBacking exercises the backing-threshold
// path: once enough distinct validators have signed the same candidate, the
// Backing collaborator is notified.
func TestEngineBackingThresholdNotifiesBacking(t *testing.T) {
	require := require.New(t)
	h := newTestHarness(t)

	peerB := h.connectAndView(1)
	peerC := h.connectAndView(2)
	hash := mkCandidateHash(4)

	// C's Seconded statement relayed through B (sender B, originator C).
	secondedByC := signStatement(t, h.keys[2], h.session, h.relayParent, 2, NewSeconded(hash))
	h.engine.PeerMessage(context.Background(), peerB, NewStatementMessage(h.relayParent, secondedByC))
	require.Empty(h.backing.backed)

	// B's Valid countersignature relayed through C (sender C, originator B).
	validByB := signStatement(t, h.keys[1], h.session, h.relayParent, 1, NewValid(hash))
	h.engine.PeerMessage(context.Background(), peerC, NewStatementMessage(h.relayParent, validByB))

	require.Equal([]CandidateHash{hash}, h.backing.backed)
}

// TestEngineCandidateFetchedConfirmsAndPrunesRequest exercises the remote
// confirmation path: once a candidate advertised via a relayed statement
// has been fetched, CandidateFetched confirms it against the request's
// originating group and prunes the completed request.
func TestEngineCandidateFetchedConfirmsAndPrunesRequest(t *testing.T) {
	require := require.New(t)
	h := newTestHarness(t)

	peerB := h.connectAndView(1)
	hash := mkCandidateHash(11)

	secondedByC := signStatement(t, h.keys[2], h.session, h.relayParent, 2, NewSeconded(hash))
	h.engine.PeerMessage(context.Background(), peerB, NewStatementMessage(h.relayParent, secondedByC))

	require.False(h.engine.candidates.IsConfirmed(hash))
	_, hasRequest := h.engine.requests.Get(h.relayParent, hash)
	require.True(hasRequest, "an unconfirmed candidate advertised to us must have an outstanding request")

	receipt := CandidateReceipt{ParaID: 5, RelayParent: h.relayParent}
	err := h.engine.CandidateFetched(context.Background(), h.relayParent, hash, receipt, PersistedValidationData{})
	require.NoError(err)

	require.True(h.engine.candidates.IsConfirmed(hash))
	_, hasRequest = h.engine.requests.Get(h.relayParent, hash)
	require.False(hasRequest, "a completed fetch must prune its request entry")
}

func TestEngineCandidateFetchedRejectsUnknownRequest(t *testing.T) {
	require := require.New(t)
	h := newTestHarness(t)

	err := h.engine.CandidateFetched(context.Background(), h.relayParent, mkCandidateHash(12), CandidateReceipt{}, PersistedValidationData{})
	require.ErrorIs(err, ErrInvalidFetch)
}

func TestEnginePeerConnectedIgnoresUnservicedProtocolVersion(t *testing.T) {
	require := require.New(t)
	h := newTestHarness(t)

	peer := mkPeer(20)
	h.engine.PeerConnected(ProtocolV1, peer, []AuthorityID{h.keys[1].authority})

	_, ok := h.engine.peers.Get(peer)
	require.False(ok)
}

// TestEnginePeerDisconnectFreesAuthorityClaim verifies the first-wins /
// released-on-disconnect lifecycle (scenario S5) at the engine level.
func TestEnginePeerDisconnectFreesAuthorityClaim(t *testing.T) {
	require := require.New(t)
	h := newTestHarness(t)

	first := mkPeer(30)
	second := mkPeer(31)

	h.engine.PeerConnected(ProtocolVStaging, first, []AuthorityID{h.keys[1].authority})
	h.engine.PeerConnected(ProtocolVStaging, second, []AuthorityID{h.keys[1].authority})

	resolved, ok := h.engine.peers.PeerForAuthority(h.keys[1].authority)
	require.True(ok)
	require.Equal(first, resolved)

	h.engine.PeerDisconnected(first)
	_, ok = h.engine.peers.PeerForAuthority(h.keys[1].authority)
	require.False(ok, "disconnecting the first claimant must not hand the identity to the second")
}

func TestEngineNewGossipTopologyUnknownSessionIsNoop(t *testing.T) {
	require := require.New(t)
	h := newTestHarness(t)

	h.engine.NewGossipTopology(SessionIndex(999), struct{}{})
	require.Equal(0, h.grid.installed)

	h.engine.NewGossipTopology(h.session, struct{}{})
	require.Equal(1, h.grid.installed)
}

// TestEngineDeactivateLeafRetainsSharedAncestor is scenario S6: two leaves
// sharing an ancestor relay-parent retain that ancestor's state until both
// leaves are deactivated.
func TestEngineDeactivateLeafRetainsSharedAncestor(t *testing.T) {
	require := require.New(t)

	keys := []validatorKey{mkValidatorKey(t), mkValidatorKey(t)}
	ancestor := mkHash(1)
	leaf1 := mkHash(2)
	leaf2 := mkHash(3)

	runtime := &fakeRuntime{
		session: SessionIndex(1),
		info: SessionInfo{
			DiscoveryKeys:   []AuthorityID{keys[0].authority, keys[1].authority},
			ValidatorGroups: [][]ValidatorIndex{{0, 1}},
		},
		cores: AvailabilityCores{},
		ancestry: map[Hash][]Hash{
			leaf1: {ancestor},
			leaf2: {ancestor},
		},
	}

	engine := NewEngine(Config{
		Runtime:        runtime,
		Keystore:       fakeKeystore{},
		Network:        &fakeNetwork{},
		Backing:        &fakeBacking{},
		Grid:           &fakeGrid{},
		Log:            log.NewNoOpLogger(),
		SecondingLimit: 2,
	})

	ctx := context.Background()
	require.NoError(engine.ActivatedLeaf(ctx, leaf1))
	require.NoError(engine.ActivatedLeaf(ctx, leaf2))

	_, hasAncestor := engine.relayParents[ancestor]
	require.True(hasAncestor)

	engine.DeactivateLeaf(leaf1)
	_, hasAncestor = engine.relayParents[ancestor]
	require.True(hasAncestor, "ancestor still reachable from leaf2 must survive leaf1's deactivation")
	_, hasLeaf1 := engine.relayParents[leaf1]
	require.False(hasLeaf1)

	engine.DeactivateLeaf(leaf2)
	_, hasAncestor = engine.relayParents[ancestor]
	require.False(hasAncestor, "ancestor must be dropped once its last referencing leaf is gone")
}

// TestEngineShareLocalStatementConfirmsAndCirculates exercises the local
// share path: a locally-authored Seconded statement confirms its candidate
// and circulates to the rest of the cluster.
func TestEngineShareLocalStatementConfirmsAndCirculates(t *testing.T) {
	require := require.New(t)
	h := newTestHarness(t)

	peerB := h.connectAndView(1)

	hash := mkCandidateHash(5)
	unchecked := signStatement(t, h.keys[0], h.session, h.relayParent, 0, NewSeconded(hash))
	checked, ok := unchecked.TryIntoChecked(h.keys[0].sk.PublicKey())
	require.True(ok)

	receipt := CandidateReceipt{ParaID: 5, RelayParent: h.relayParent}
	err := h.engine.ShareLocalStatement(context.Background(), h.relayParent, checked, receipt, PersistedValidationData{})
	require.NoError(err)

	require.True(h.engine.candidates.IsConfirmed(hash))
	require.Len(h.network.sent, 1)
	require.Equal(peerB, h.network.sent[0].peer)
	require.Equal(ValidatorIndex(0), h.network.sent[0].statement.ValidatorIndex)
}

func TestEngineShareLocalStatementRejectsAssignmentMismatch(t *testing.T) {
	require := require.New(t)
	h := newTestHarness(t)

	hash := mkCandidateHash(6)
	unchecked := signStatement(t, h.keys[0], h.session, h.relayParent, 0, NewSeconded(hash))
	checked, ok := unchecked.TryIntoChecked(h.keys[0].sk.PublicKey())
	require.True(ok)

	wrongReceipt := CandidateReceipt{ParaID: 999, RelayParent: h.relayParent}
	err := h.engine.ShareLocalStatement(context.Background(), h.relayParent, checked, wrongReceipt, PersistedValidationData{})
	require.ErrorIs(err, ErrInvalidShare)
}
