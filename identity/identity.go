// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package identity is the DID layer of agentid. It provides the Identity
// record, did:key derivation, and the local DID resolver.
package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/aumos-ai/agentid/keys"
	"github.com/aumos-ai/agentid/types"
)

// Identity is the public metadata of a named actor controlling one key pair.
// It never carries private key material.
type Identity struct {
	// DID is derived from the identity's public key and never changes.
	DID string `json:"did"`
	// Type is owner or agent.
	Type types.IdentityType `json:"type"`
	// Name is a human-readable label. It is neither unique nor security relevant.
	Name string `json:"name"`
	// OwnerDID is set only for agents. It references an owner that existed at
	// creation time; the owner may since have been deleted.
	OwnerDID string `json:"ownerDid,omitempty"`
	// CreatedAt is the UTC creation timestamp.
	CreatedAt time.Time `json:"createdAt"`
}

// IsOwner reports whether the identity may issue credentials.
func (i *Identity) IsOwner() bool {
	return i != nil && i.Type == types.IdentityOwner
}

// Validate checks the invariants of a single record. Whether OwnerDID
// resolves is a keystore concern and is not checked here.
func (i *Identity) Validate() error {
	if _, err := ExtractPublicKeyFromKeyDID(i.DID); err != nil {
		return err
	}
	switch i.Type {
	case types.IdentityOwner:
		if i.OwnerDID != "" {
			return &types.ErrInvalidArgument{Field: "ownerDid", Reason: "owners cannot reference an owner"}
		}
	case types.IdentityAgent:
		if i.OwnerDID == "" {
			return &types.ErrInvalidArgument{Field: "ownerDid", Reason: "agents require an owner DID"}
		}
	default:
		return &types.ErrInvalidArgument{Field: "type", Reason: fmt.Sprintf("unknown identity type %q", i.Type)}
	}
	if strings.TrimSpace(i.Name) == "" {
		return &types.ErrInvalidArgument{Field: "name", Reason: "must not be empty"}
	}
	return nil
}

// New builds the Identity record for a freshly generated key pair.
func New(kp *keys.KeyPair, typ types.IdentityType, name, ownerDID string, now time.Time) (*Identity, error) {
	did, err := DeriveKeyDID(kp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("identity: derive DID: %w", err)
	}
	id := &Identity{
		DID:       did,
		Type:      typ,
		Name:      strings.TrimSpace(name),
		OwnerDID:  ownerDID,
		CreatedAt: now.UTC(),
	}
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return id, nil
}

// CheckKeyPair verifies that kp derives did.
func CheckKeyPair(did string, kp *keys.KeyPair) error {
	if kp == nil {
		return &types.ErrKeyMismatch{DID: did}
	}
	derived, err := DeriveKeyDID(kp.PublicKey)
	if err != nil || derived != did {
		return &types.ErrKeyMismatch{DID: did}
	}
	return nil
}
