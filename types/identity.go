// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package types defines shared value types used across agentid.
package types

import "fmt"

// DIDMethod enumerates the supported Decentralized Identifier methods.
type DIDMethod string

const (
	DIDMethodKey DIDMethod = "key"
)

// KeyAlgorithm identifies the cryptographic algorithm used by a key pair.
type KeyAlgorithm string

const (
	KeyAlgorithmEd25519 KeyAlgorithm = "Ed25519"
)

// VerificationMethodType identifies the type of a DID verification method.
type VerificationMethodType string

const (
	VerificationMethodEd25519 VerificationMethodType = "Ed25519VerificationKey2020"
)

// IdentityType distinguishes identities that may issue credentials (owners)
// from identities that are typically credential subjects (agents).
type IdentityType string

const (
	IdentityOwner IdentityType = "owner"
	IdentityAgent IdentityType = "agent"
)

// ParseIdentityType maps a user-supplied string onto an IdentityType.
func ParseIdentityType(s string) (IdentityType, error) {
	switch IdentityType(s) {
	case IdentityOwner:
		return IdentityOwner, nil
	case IdentityAgent:
		return IdentityAgent, nil
	default:
		return "", &ErrInvalidArgument{Field: "type", Reason: fmt.Sprintf("unknown identity type %q", s)}
	}
}

// CredentialType identifies the kind of claim a credential makes.
type CredentialType string

const (
	CredentialOwnership  CredentialType = "ownership"
	CredentialCapability CredentialType = "capability"
)

// VCType returns the W3C type name carried in the credential's type array.
func (t CredentialType) VCType() string {
	switch t {
	case CredentialOwnership:
		return "AgentOwnershipCredential"
	case CredentialCapability:
		return "AgentCapabilityCredential"
	default:
		return ""
	}
}

// CredentialTypeFromVC is the inverse of VCType. It reports false for type
// arrays that carry neither credential kind.
func CredentialTypeFromVC(vcTypes []string) (CredentialType, bool) {
	for _, t := range vcTypes {
		switch t {
		case CredentialOwnership.VCType():
			return CredentialOwnership, true
		case CredentialCapability.VCType():
			return CredentialCapability, true
		}
	}
	return "", false
}

// Reason is the stable code attached to a failed verification. Verification
// failures are results, not errors.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonMalformedToken   Reason = "MalformedToken"
	ReasonMalformedPayload Reason = "MalformedPayload"
	ReasonInvalidSignature Reason = "InvalidSignature"
	ReasonExpired          Reason = "Expired"
	ReasonIssuerNotAllowed Reason = "IssuerNotAllowed"
	ReasonSubjectMismatch  Reason = "SubjectMismatch"
	ReasonNonceMismatch    Reason = "NonceMismatch"
	ReasonAudienceMismatch Reason = "AudienceMismatch"
	ReasonDomainMismatch   Reason = "DomainMismatch"
	ReasonDIDMismatch      Reason = "DIDMismatch"
	ReasonReplayed         Reason = "Replayed"
)
