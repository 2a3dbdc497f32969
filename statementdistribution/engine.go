// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/log"

	"github.com/luxfi/statement-distribution/internal/implicitview"
	set "github.com/luxfi/statement-distribution/internal/set"
)

// targetTag distinguishes a circulation target's routing path, used to
// prefer a Cluster-tagged target over a Grid-tagged one when deduplicating
// by validator index.
type targetTag uint8

const (
	tagCluster targetTag = iota
	tagGrid
)

type circulationTarget struct {
	validator ValidatorIndex
	tag       targetTag
}

// Engine owns the root statement-distribution state and handles every
// inbound event as a single-threaded cooperative task: no locking is
// required on Engine-owned state, since handlers interleave only at
// explicit suspension points (a collaborator call).
type Engine struct {
	runtime  RuntimeAPI
	keystore Keystore
	network  NetworkBridge
	backing  Backing
	grid     GridRouter
	metrics  *Metrics
	log      log.Logger

	// secondingLimit (k) is the per-originator Seconded cap handed to
	// every ClusterTracker constructed here, drawn from asynchronous
	// backing configuration (max candidate depth + 1). Never hard-coded.
	secondingLimit int
	// maxAdvertisementsPerPeer bounds the Candidates registry's per-peer
	// unconfirmed-advertisement budget.
	maxAdvertisementsPerPeer int

	peers      *PeerTable
	candidates *Candidates
	requests   *RequestManager

	ourView   *implicitview.View
	peerViews map[PeerID]*implicitview.PeerView

	relayParents    map[Hash]*PerRelayParentState
	sessions        map[SessionIndex]*PerSessionState
	sessionRefCount map[SessionIndex]int
}

// Config bundles an Engine's collaborators and tunables.
type Config struct {
	Runtime  RuntimeAPI
	Keystore Keystore
	Network  NetworkBridge
	Backing  Backing
	Grid     GridRouter
	Metrics  *Metrics
	Log      log.Logger

	SecondingLimit           int
	MaxAdvertisementsPerPeer int
}

// NewEngine constructs an Engine with empty state.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		runtime:                  cfg.Runtime,
		keystore:                 cfg.Keystore,
		network:                  cfg.Network,
		backing:                  cfg.Backing,
		grid:                     cfg.Grid,
		metrics:                  cfg.Metrics,
		log:                      cfg.Log,
		secondingLimit:           cfg.SecondingLimit,
		maxAdvertisementsPerPeer: cfg.MaxAdvertisementsPerPeer,

		peers:      NewPeerTable(),
		candidates: NewCandidates(cfg.MaxAdvertisementsPerPeer),
		requests:   NewRequestManager(),

		ourView:   implicitview.New(),
		peerViews: make(map[PeerID]*implicitview.PeerView),

		relayParents:    make(map[Hash]*PerRelayParentState),
		sessions:        make(map[SessionIndex]*PerSessionState),
		sessionRefCount: make(map[SessionIndex]int),
	}
}

func (e *Engine) reportPeer(ctx context.Context, peer PeerID, change ReputationChange) {
	e.network.ReportPeer(ctx, peer, change)
	e.metrics.onReport(change.Name)
}

// PeerConnected registers peer if it advertises the serviced protocol
// version. Claimed authority identities are bound first-wins: an identity
// already occupied by a different peer is dropped from the claim set but
// the existing binding is left untouched.
func (e *Engine) PeerConnected(version ProtocolVersion, peer PeerID, claimed []AuthorityID) {
	if version != ProtocolVStaging {
		return
	}
	e.peers.Connect(peer, claimed)
}

// PeerDisconnected removes peer and frees any authority identities it
// occupied.
func (e *Engine) PeerDisconnected(peer PeerID) {
	e.peers.Disconnect(peer)
	delete(e.peerViews, peer)
}

// NewGossipTopology installs topology for session if that session is
// known; otherwise the update is silently discarded, matching the
// original's buffering-free behavior. Retransmission of backed-candidate
// manifests to newly reachable grid peers is a TODO inherited from the
// source this was distilled from.
func (e *Engine) NewGossipTopology(session SessionIndex, topology any) {
	s, ok := e.sessions[session]
	if !ok {
		return
	}
	s.InstallGridTopology()
	e.grid.InstallTopology(session, topology)
}

// PeerViewChange updates peer's explicit view and recomputes its derived
// implicit view, the authoritative "peer knows this relay-parent"
// predicate. No retransmission is triggered here; downstream circulation
// logic pulls on demand.
func (e *Engine) PeerViewChange(ctx context.Context, peer PeerID, heads []Hash) error {
	pv, ok := e.peerViews[peer]
	if !ok {
		pv = implicitview.NewPeerView()
		e.peerViews[peer] = pv
	}

	if err := pv.Update(heads, e.ancestryLookup(ctx)); err != nil {
		e.log.Warn("failed to recompute peer implicit view", "peer", peer, "error", err)
		return fmt.Errorf("%w: %w", ErrActivateLeafFailure, err)
	}

	e.peers.UpdateView(peer, heads, pv.AllAllowedRelayParents())
	return nil
}

func (e *Engine) ancestryLookup(ctx context.Context) implicitview.AncestryLookup {
	return func(leaf Hash) ([]Hash, error) {
		return e.runtime.AllowedAncestry(ctx, leaf)
	}
}

// ActivatedLeaf activates leaf in the implicit view and constructs
// per-relay-parent (and, if needed, per-session) state for every newly
// reachable relay-parent.
func (e *Engine) ActivatedLeaf(ctx context.Context, leaf Hash) error {
	newlyAllowed, err := e.ourView.ActivateLeaf(leaf, e.ancestryLookup(ctx))
	if err != nil {
		e.log.Warn("failed to activate leaf", "leaf", leaf, "error", err)
		return fmt.Errorf("%w: %w", ErrActivateLeafFailure, err)
	}

	candidates := append([]Hash{leaf}, newlyAllowed...)
	for _, rp := range candidates {
		if _, already := e.relayParents[rp]; already {
			continue
		}
		e.buildRelayParentState(ctx, rp)
	}

	e.metrics.setRelayParentsActive(len(e.relayParents))
	e.metrics.setSessionsActive(len(e.sessions))
	return nil
}

// buildRelayParentState fetches session and availability data for rp and
// installs PerRelayParentState. Failures are JfyiErrors: logged at warn,
// no peer penalized, rp simply remains untracked.
func (e *Engine) buildRelayParentState(ctx context.Context, rp Hash) {
	session, err := e.runtime.SessionIndexForChild(ctx, rp)
	if err != nil {
		e.log.Warn("failed to fetch session index", "relayParent", rp, "error", err)
		return
	}

	sessionState, ok := e.sessions[session]
	if !ok {
		info, err := e.runtime.SessionInfo(ctx, rp, session)
		if err != nil {
			e.log.Warn("failed to fetch session info", "relayParent", rp, "session", session, "error", err)
			return
		}
		sessionState = NewPerSessionState(info, e.keystore)
		e.sessions[session] = sessionState
	}

	cores, err := e.runtime.AvailabilityCores(ctx, rp)
	if err != nil {
		e.log.Warn("failed to fetch availability cores", "relayParent", rp, "error", err)
		return
	}

	localIndex, hasLocal := sessionState.LocalValidator()
	rpState, err := NewPerRelayParentState(session, sessionState.Groups, cores, localIndex, hasLocal, e.secondingLimit)
	if err != nil {
		e.log.Warn("failed to construct relay-parent state", "relayParent", rp, "error", err)
		return
	}

	e.relayParents[rp] = rpState
	e.sessionRefCount[session]++
}

// DeactivateLeaf deactivates leaf and drops every relay-parent no longer
// reachable from a surviving leaf, along with the sessions, requests, and
// candidates tied only to those relay-parents.
func (e *Engine) DeactivateLeaf(leaf Hash) {
	dropped := e.ourView.DeactivateLeaf(leaf)
	if len(dropped) == 0 {
		return
	}

	for _, rp := range dropped {
		rpState, ok := e.relayParents[rp]
		if !ok {
			continue
		}
		delete(e.relayParents, rp)
		e.requests.RemoveForRelayParent(rp)
		e.metrics.setOutstandingRequests(e.requests.Len())

		e.sessionRefCount[rpState.Session]--
		if e.sessionRefCount[rpState.Session] <= 0 {
			delete(e.sessions, rpState.Session)
			delete(e.sessionRefCount, rpState.Session)
		}
	}

	stillAllowed := set.Of(e.ourView.AllAllowedRelayParents()...)
	e.candidates.RemoveForRelayParents(stillAllowed)

	e.metrics.setRelayParentsActive(len(e.relayParents))
	e.metrics.setSessionsActive(len(e.sessions))
}

// PeerMessage dispatches an inbound wire message by variant. Messages from
// a peer that PeerConnected did not register (including every peer on an
// unserviced protocol version) are dropped silently.
func (e *Engine) PeerMessage(ctx context.Context, peer PeerID, msg WireMessage) {
	if _, ok := e.peers.Get(peer); !ok {
		return
	}
	switch msg.Tag {
	case wireTagV1Compatibility:
		return
	case wireTagStatement:
		e.handleIncomingStatement(ctx, peer, msg.RelayParent, msg.Statement)
	case wireTagBackedCandidateManifest:
		e.grid.HandleManifest(peer, msg.Opaque)
	case wireTagBackedCandidateKnown:
		e.grid.HandleKnown(peer, msg.Opaque)
	}
}

// handleIncomingStatement implements the inbound-statement algorithm.
func (e *Engine) handleIncomingStatement(ctx context.Context, peer PeerID, relayParent Hash, unchecked UncheckedSignedStatement) {
	rpState, ok := e.relayParents[relayParent]
	if !ok {
		e.reportPeer(ctx, peer, CostUnexpectedStatementMissingKnowledge)
		return
	}

	if !rpState.HasLocalValidator() {
		e.reportPeer(ctx, peer, CostUnexpectedStatement)
		return
	}

	peerState, ok := e.peers.Get(peer)
	if !ok {
		e.reportPeer(ctx, peer, CostUnexpectedStatement)
		return
	}

	sessionState, ok := e.sessions[rpState.Session]
	if !ok {
		e.reportPeer(ctx, peer, CostUnexpectedStatementMissingKnowledge)
		return
	}

	originator := unchecked.ValidatorIndex
	senderIdx, ok := e.resolveClusterSender(rpState, sessionState, peerState, originator)
	if !ok {
		// Grid ingress is not yet implemented; see the open question this
		// inherits from the source.
		e.reportPeer(ctx, peer, CostUnexpectedStatement)
		return
	}

	if _, err := rpState.Local.Cluster.CanReceive(senderIdx, originator, unchecked.Statement); err != nil {
		switch {
		case errors.Is(err, ErrClusterExcessiveSeconded):
			e.reportPeer(ctx, peer, CostExcessiveSeconded)
		default:
			e.reportPeer(ctx, peer, CostUnexpectedStatement)
		}
		return
	}

	signerKey, err := e.originatorPublicKey(sessionState, originator)
	if err != nil {
		e.reportPeer(ctx, peer, CostUnexpectedStatement)
		return
	}

	checked, ok := unchecked.TryIntoChecked(signerKey)
	if !ok {
		e.reportPeer(ctx, peer, CostInvalidSignature)
		return
	}

	// ClusterTracker state is only committed once the StatementStore has
	// also accepted the statement: the two caps are independent (k may
	// exceed the store's hard-coded 2), so a statement CanReceive allows
	// but Store.Insert rejects must not leave a permanent NoteReceived
	// record behind. State mutations happen only after all validation
	// passes.
	fresh, err := rpState.Store.Insert(checked)
	if err != nil {
		// The cluster-level cap above is per (sender, originator); a
		// StatementStore-level rejection here reflects the store's own
		// cap of two Seconded per validator at this relay-parent (or an
		// originator outside every group) and is reported the same way.
		e.reportPeer(ctx, peer, CostExcessiveSeconded)
		return
	}
	rpState.Local.Cluster.NoteReceived(senderIdx, originator, checked.Statement)
	e.metrics.onStatement(fresh)

	originatorGroup, _ := sessionState.Groups.ByValidatorIndex(originator)
	candidateHash := checked.Statement.CandidateHash

	if err := e.candidates.InsertUnconfirmed(peer, candidateHash, relayParent, originatorGroup, 0, 0, false); err != nil {
		if errors.Is(err, ErrBadAdvertisement) {
			// Reputation penalty magnitude for a bad advertisement is
			// unspecified in the source this was distilled from; CostUnexpectedStatement
			// stands in until that magnitude is defined.
			e.reportPeer(ctx, peer, CostUnexpectedStatement)
		}
	}

	if !e.candidates.IsConfirmed(candidateHash) {
		entry := e.requests.GetOrInsert(relayParent, candidateHash, originatorGroup)
		entry.AddPeer(peer)
		entry.SetClusterPriority()
		e.metrics.setOutstandingRequests(e.requests.Len())
	}

	if !fresh {
		return
	}

	e.circulate(ctx, relayParent, rpState, sessionState, checked.Statement, originator, originatorGroup)

	if groupMembers, ok := sessionState.Groups.Get(originatorGroup); ok {
		threshold := MinimumVotes(len(groupMembers))
		if len(rpState.Store.DistinctValidatorsForCandidate(candidateHash)) >= threshold {
			e.backing.CandidateBacked(ctx, relayParent, candidateHash)
		}
	}
}

// resolveClusterSender finds the unique validator index such that the
// ClusterTracker permits them to forward originator's statements to us,
// and one of peer's claimed authority identities maps to them.
func (e *Engine) resolveClusterSender(rpState *PerRelayParentState, sessionState *PerSessionState, peerState *peerState, originator ValidatorIndex) (ValidatorIndex, bool) {
	for _, sender := range rpState.Local.Cluster.SendersForOriginator(originator) {
		if int(sender) < 0 || int(sender) >= len(sessionState.Info.DiscoveryKeys) {
			continue
		}
		authority := sessionState.Info.DiscoveryKeys[sender]
		if peerState.isAuthority(authority) {
			return sender, true
		}
	}
	return 0, false
}

func (e *Engine) originatorPublicKey(sessionState *PerSessionState, originator ValidatorIndex) (*bls.PublicKey, error) {
	if int(originator) < 0 || int(originator) >= len(sessionState.Info.DiscoveryKeys) {
		return nil, fmt.Errorf("validator index %d out of range", originator)
	}
	return sessionState.Info.DiscoveryKeys[originator].PublicKey()
}

// circulate implements send_statement_direct: it determines the cluster
// and grid targets for statement, resolves each to a connected peer whose
// implicit view includes relayParent, and emits its outbound messages in
// order — the prerequisite Seconded statements first (one batch per
// seconder), then the statement itself.
func (e *Engine) circulate(
	ctx context.Context,
	relayParent Hash,
	rpState *PerRelayParentState,
	sessionState *PerSessionState,
	statement CompactStatement,
	originator ValidatorIndex,
	canonicalGroup GroupIndex,
) {
	if rpState.Local == nil {
		return
	}
	cluster := rpState.Local.Cluster

	targets := make([]circulationTarget, 0)
	seen := set.NewSet[ValidatorIndex](8)
	for _, v := range cluster.Targets() {
		if v == cluster.Self() {
			continue
		}
		targets = append(targets, circulationTarget{validator: v, tag: tagCluster})
		seen.Add(v)
	}
	for _, gt := range e.grid.Targets(relayParent) {
		if seen.Contains(gt.Validator) {
			continue
		}
		targets = append(targets, circulationTarget{validator: gt.Validator, tag: tagGrid})
		seen.Add(gt.Validator)
	}

	// priorToBySeconder groups peers that need a prerequisite Seconded
	// statement by which validator authored it, since different targets
	// may resolve to different sendable seconders.
	priorToBySeconder := make(map[ValidatorIndex][]PeerID)
	var statementTo []PeerID

	for _, target := range targets {
		if int(target.validator) < 0 || int(target.validator) >= len(sessionState.Info.DiscoveryKeys) {
			continue
		}
		authority := sessionState.Info.DiscoveryKeys[target.validator]
		peer, ok := e.peers.PeerForAuthority(authority)
		if !ok {
			continue
		}
		if !e.peers.KnowsRelayParent(peer, relayParent) {
			continue
		}

		switch target.tag {
		case tagCluster:
			if statement.Kind == Valid && !cluster.HasSeconded(target.validator, statement.CandidateHash) {
				seconder, ok := cluster.SendableSeconder(statement.CandidateHash)
				if !ok {
					e.log.Warn("aborting circulation: authored Valid without a known Seconded",
						"relayParent", relayParent, "candidate", statement.CandidateHash)
					return
				}
				cluster.NoteSent(target.validator, seconder, NewSeconded(statement.CandidateHash))
				priorToBySeconder[seconder] = append(priorToBySeconder[seconder], peer)
			}
			if err := cluster.CanSend(target.validator, originator, statement); err == nil {
				cluster.NoteSent(target.validator, originator, statement)
				statementTo = append(statementTo, peer)
			}
		case tagGrid:
			statementTo = append(statementTo, peer)
		}
	}

	signed, ok := rpState.Store.ValidatorStatement(originator, statement)
	if !ok {
		e.log.Warn("aborting circulation: statement not present in store at send time",
			"relayParent", relayParent, "candidate", statement.CandidateHash)
		return
	}

	type priorBatch struct {
		peers    []PeerID
		seconded SignedStatement
	}
	priorBatches := make([]priorBatch, 0, len(priorToBySeconder))
	for seconder, peers := range priorToBySeconder {
		seconded, ok := rpState.Store.ValidatorStatement(seconder, NewSeconded(statement.CandidateHash))
		if !ok {
			e.log.Warn("aborting circulation: sendable seconder has no stored Seconded statement",
				"relayParent", relayParent, "candidate", statement.CandidateHash, "seconder", seconder)
			return
		}
		priorBatches = append(priorBatches, priorBatch{peers: peers, seconded: seconded})
	}
	for _, batch := range priorBatches {
		e.sendStatementBatch(ctx, batch.peers, relayParent, batch.seconded)
	}
	e.sendStatementBatch(ctx, statementTo, relayParent, signed)
}

func (e *Engine) sendStatementBatch(ctx context.Context, peers []PeerID, relayParent Hash, signed SignedStatement) {
	unchecked := signed.AsUnchecked()
	for _, peer := range peers {
		if err := e.network.SendStatement(ctx, peer, relayParent, unchecked); err != nil {
			e.log.Warn("failed to send statement", "peer", peer, "relayParent", relayParent, "error", err)
		}
	}
}

// ShareLocalStatement is invoked when the local validator wants to
// circulate a statement it authored about its own candidate (receipt and
// pvd describe that candidate; for either statement kind the receipt must
// match the local group's assignment and relayParent, and the candidate
// is confirmed against the local group).
func (e *Engine) ShareLocalStatement(
	ctx context.Context,
	relayParent Hash,
	signed SignedStatement,
	receipt CandidateReceipt,
	pvd PersistedValidationData,
) error {
	rpState, ok := e.relayParents[relayParent]
	if !ok || !rpState.HasLocalValidator() {
		return fmt.Errorf("%w: no local validator role at this relay-parent", ErrInvalidShare)
	}
	local := rpState.Local
	if signed.ValidatorIndex != local.Index {
		return fmt.Errorf("%w: validator index mismatch", ErrInvalidShare)
	}

	sessionState, ok := e.sessions[rpState.Session]
	if !ok {
		return fmt.Errorf("%w: unknown session", ErrInvalidShare)
	}

	if !local.HasAssignment || receipt.ParaID != local.Assignment || receipt.RelayParent != relayParent {
		return fmt.Errorf("%w: candidate does not match local assignment", ErrInvalidShare)
	}

	fresh, err := rpState.Store.Insert(signed)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidShare, err)
	}
	if !fresh {
		return fmt.Errorf("%w: statement already present", ErrInvalidShare)
	}
	e.metrics.onStatement(fresh)

	reckoning, _ := e.candidates.ConfirmCandidate(signed.Statement.CandidateHash, receipt, pvd, local.Group)
	if reckoning != nil {
		for _, badPeer := range reckoning.BadAdvertisers {
			e.reportPeer(ctx, badPeer, CostUnexpectedStatement)
		}
	}

	e.circulate(ctx, relayParent, rpState, sessionState, signed.Statement, local.Index, local.Group)
	return nil
}

// CandidateFetched confirms a remote group member's candidate once its
// receipt and validation data have been retrieved to satisfy an
// outstanding RequestManager entry, the dominant confirmation path for
// candidates this node did not itself second. The canonical group is the
// group the fetch request originated from; any advertiser whose earlier
// claim disagreed with it is penalized via the resulting Reckoning, and
// the completed request is pruned.
func (e *Engine) CandidateFetched(
	ctx context.Context,
	relayParent Hash,
	candidateHash CandidateHash,
	receipt CandidateReceipt,
	pvd PersistedValidationData,
) error {
	if _, ok := e.relayParents[relayParent]; !ok {
		return fmt.Errorf("%w: unknown relay-parent", ErrInvalidFetch)
	}

	entry, ok := e.requests.Get(relayParent, candidateHash)
	if !ok {
		return fmt.Errorf("%w: no outstanding request for this candidate", ErrInvalidFetch)
	}

	reckoning, _ := e.candidates.ConfirmCandidate(candidateHash, receipt, pvd, entry.Group)
	if reckoning != nil {
		for _, badPeer := range reckoning.BadAdvertisers {
			e.reportPeer(ctx, badPeer, CostUnexpectedStatement)
		}
	}

	e.requests.Remove(relayParent, candidateHash)
	e.metrics.setOutstandingRequests(e.requests.Len())
	return nil
}
