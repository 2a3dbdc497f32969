// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statementdistribution

// Reputation cost and benefit names. Names are stable across
// implementations; magnitudes are the reputation collaborator's concern,
// not this engine's — see ReputationChange and NetworkBridge.
var (
	CostUnexpectedStatement                = ReputationChange{Name: "UNEXPECTED_STATEMENT", Value: -100}
	CostUnexpectedStatementMissingKnowledge = ReputationChange{Name: "UNEXPECTED_STATEMENT_MISSING_KNOWLEDGE", Value: -100}
	CostUnexpectedStatementUnknownCandidate = ReputationChange{Name: "UNEXPECTED_STATEMENT_UNKNOWN_CANDIDATE", Value: -100}
	CostUnexpectedStatementRemote           = ReputationChange{Name: "UNEXPECTED_STATEMENT_REMOTE", Value: -100}
	CostExcessiveSeconded                   = ReputationChange{Name: "EXCESSIVE_SECONDED", Value: -100}

	CostInvalidSignature          = ReputationChange{Name: "INVALID_SIGNATURE", Value: -500}
	CostImproperlyDecodedResponse = ReputationChange{Name: "IMPROPERLY_DECODED_RESPONSE", Value: -500}
	CostInvalidResponse           = ReputationChange{Name: "INVALID_RESPONSE", Value: -500}
	CostUnrequestedResponseStatement = ReputationChange{Name: "UNREQUESTED_RESPONSE_STATEMENT", Value: -500}

	BenefitValidResponse  = ReputationChange{Name: "VALID_RESPONSE", Value: 500}
	BenefitValidStatement = ReputationChange{Name: "VALID_STATEMENT", Value: 500}
)
