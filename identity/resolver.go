// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package identity

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/aumos-ai/agentid/types"
)

// Resolver turns a DID into the public key that verifies its signatures.
// Credential and challenge verification depend on this interface so that the
// key is always recovered from the DID itself rather than from the keystore.
type Resolver interface {
	Resolve(ctx context.Context, did string) (*DIDDocument, error)
}

// KeyResolver resolves did:key DIDs locally. No network access is involved.
type KeyResolver struct{}

// NewKeyResolver constructs a KeyResolver.
func NewKeyResolver() *KeyResolver {
	return &KeyResolver{}
}

// Resolve synthesizes a DID Document from the public key encoded in a did:key.
func (r *KeyResolver) Resolve(_ context.Context, did string) (*DIDDocument, error) {
	method, err := ParseDIDMethod(did)
	if err != nil {
		return nil, fmt.Errorf("resolver: parse DID method: %w", err)
	}

	switch method {
	case types.DIDMethodKey:
		doc, err := BuildDIDDocument(did, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("resolver: build DID document: %w", err)
		}
		return doc, nil
	default:
		return nil, &types.ErrUnsupportedDIDMethod{Method: string(method)}
	}
}

// ResolvePublicKey resolves did with r and extracts its Ed25519 key.
func ResolvePublicKey(ctx context.Context, r Resolver, did string) (ed25519.PublicKey, error) {
	doc, err := r.Resolve(ctx, did)
	if err != nil {
		return nil, err
	}
	return ExtractPublicKeyFromDocument(doc)
}

// ExtractPublicKeyFromDocument extracts the first Ed25519VerificationKey2020 from a DID Document.
func ExtractPublicKeyFromDocument(doc *DIDDocument) (ed25519.PublicKey, error) {
	for _, vm := range doc.VerificationMethod {
		if vm.Type != string(types.VerificationMethodEd25519) {
			continue
		}
		if vm.PublicKeyMultibase == "" {
			continue
		}

		// publicKeyMultibase carries the multicodec header, same as the did:key itself.
		key, err := ExtractPublicKeyFromKeyDID(didKeyPrefix + vm.PublicKeyMultibase)
		if err != nil {
			return nil, fmt.Errorf("resolver: decode publicKeyMultibase: %w", err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("resolver: no Ed25519VerificationKey2020 found in DID document for %s", doc.ID)
}
