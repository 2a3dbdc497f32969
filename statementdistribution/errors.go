// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

import "errors"

// StatementStore insert errors.
var (
	// ErrValidatorUnknown is returned when the validator index does not
	// exist in the session's validator vector.
	ErrValidatorUnknown = errors.New("validator unknown")
	// ErrNotInAnyGroup is returned when the validator is not assigned to
	// any group (e.g. a spare authority).
	ErrNotInAnyGroup = errors.New("validator not in any group")
	// ErrExcessiveSeconded is returned when a validator attempts to
	// second a third distinct candidate at one relay-parent.
	ErrExcessiveSeconded = errors.New("validator seconded excessive candidates")
)

// ClusterTracker send/receive decision errors.
var (
	// ErrClusterNotInGroup is returned when the target or sender is not a
	// member of the cluster's group, or (wrapped) when it is the
	// originator itself.
	ErrClusterNotInGroup = errors.New("not in cluster group")
	// ErrClusterDuplicate is returned when the (originator, statement)
	// pair has already been sent to / received from this peer.
	ErrClusterDuplicate = errors.New("duplicate cluster message")
	// ErrClusterExcessiveSeconded is returned when the per-originator
	// seconding cap would be exceeded.
	ErrClusterExcessiveSeconded = errors.New("excessive seconded in cluster")
	// ErrClusterCandidateUnknown is returned when a Valid statement is
	// sent before any Seconded or Valid statement for the candidate is
	// known to the target, or received before the tracker has seen any
	// Seconded statement for the candidate.
	ErrClusterCandidateUnknown = errors.New("candidate unknown to cluster peer")
)

// ErrBadAdvertisement is returned by Candidates.InsertUnconfirmed when an
// advertised group disagrees with an already-confirmed canonical group, or
// when the advertising peer's advertisement budget is exhausted.
var ErrBadAdvertisement = errors.New("bad advertisement: group mismatch")

// JfyiError ("just for your information") errors: local operation could
// not complete but the engine continues; the operation that fails makes
// no change to relay-parent, session or candidate state and never
// penalizes a peer. ActivatedLeaf and
// PeerViewChange log their failure at warn and return it wrapped in
// ErrActivateLeafFailure; ShareLocalStatement and CandidateFetched return
// ErrInvalidShare and ErrInvalidFetch to the caller without logging them.
// The engine does not return the runtime and fetch sentinels: a failed
// runtime fetch while building relay-parent state is logged at warn with
// the underlying error and the relay-parent stays untracked.
var (
	ErrActivateLeafFailure    = errors.New("failed to activate leaf")
	ErrRuntimeAPIUnavailable  = errors.New("runtime API unavailable")
	ErrFetchSessionIndex      = errors.New("failed to fetch session index")
	ErrFetchSessionInfo       = errors.New("failed to fetch session info")
	ErrFetchAvailabilityCores = errors.New("failed to fetch availability cores")
	ErrInvalidShare           = errors.New("invalid local statement share")
	ErrInvalidFetch           = errors.New("invalid candidate fetch")
)
