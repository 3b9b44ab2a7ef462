// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package identity

import (
	"crypto/ed25519"
	"fmt"
	"strings"
	"time"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-varint"

	"github.com/aumos-ai/agentid/types"
)

const didKeyPrefix = "did:key:"

// DIDDocument represents a W3C DID Document.
type DIDDocument struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	AssertionMethod    []string             `json:"assertionMethod"`
	Created            string               `json:"created,omitempty"`
}

// VerificationMethod is an entry in a DID Document's verificationMethod array.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// Fingerprint returns the multibase base58btc encoding of the multicodec
// prefixed Ed25519 public key. It is the method-specific part of a did:key.
func Fingerprint(publicKey ed25519.PublicKey) (string, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("did: invalid Ed25519 public key length %d", len(publicKey))
	}

	prefix := varint.ToUvarint(uint64(multicodec.Ed25519Pub))
	prefixed := make([]byte, 0, len(prefix)+len(publicKey))
	prefixed = append(prefixed, prefix...)
	prefixed = append(prefixed, publicKey...)

	encoded, err := multibase.Encode(multibase.Base58BTC, prefixed)
	if err != nil {
		return "", fmt.Errorf("did: multibase encode: %w", err)
	}
	return encoded, nil
}

// DeriveKeyDID creates a did:key DID from an Ed25519 public key. The same key
// always yields the same DID.
func DeriveKeyDID(publicKey ed25519.PublicKey) (string, error) {
	fp, err := Fingerprint(publicKey)
	if err != nil {
		return "", err
	}
	return didKeyPrefix + fp, nil
}

// KeyID returns the verification method ID for a did:key, in the
// did:key:<fp>#<fp> form.
func KeyID(did string) (string, error) {
	if _, err := ExtractPublicKeyFromKeyDID(did); err != nil {
		return "", err
	}
	return did + "#" + strings.TrimPrefix(did, didKeyPrefix), nil
}

// ParseDIDMethod extracts the method string from a DID (e.g. "key" from "did:key:...").
func ParseDIDMethod(did string) (types.DIDMethod, error) {
	parts := strings.SplitN(did, ":", 3)
	if len(parts) < 3 || parts[0] != "did" || parts[2] == "" {
		return "", &types.ErrInvalidDID{DID: did, Reason: "must have the form did:<method>:<id>"}
	}
	switch parts[1] {
	case "key":
		return types.DIDMethodKey, nil
	default:
		return "", &types.ErrUnsupportedDIDMethod{Method: parts[1]}
	}
}

// ValidateDIDSyntax checks the generic did:<method>:<id> form without
// requiring a supported method. Credential subjects may use any method.
func ValidateDIDSyntax(did string) error {
	parts := strings.SplitN(did, ":", 3)
	if len(parts) < 3 || parts[0] != "did" || parts[1] == "" || parts[2] == "" {
		return &types.ErrInvalidDID{DID: did, Reason: "must have the form did:<method>:<id>"}
	}
	if strings.ContainsAny(did, " \t\r\n") {
		return &types.ErrInvalidDID{DID: did, Reason: "must not contain whitespace"}
	}
	return nil
}

// ExtractPublicKeyFromKeyDID decodes the Ed25519 public key embedded in a did:key DID.
func ExtractPublicKeyFromKeyDID(did string) (ed25519.PublicKey, error) {
	method, err := ParseDIDMethod(did)
	if err != nil {
		return nil, err
	}
	if method != types.DIDMethodKey {
		return nil, &types.ErrInvalidDID{DID: did, Reason: "not a did:key DID"}
	}

	encoded := strings.TrimPrefix(did, didKeyPrefix)

	enc, decoded, err := multibase.Decode(encoded)
	if err != nil {
		return nil, &types.ErrInvalidDID{DID: did, Reason: fmt.Sprintf("multibase decode: %v", err)}
	}
	if enc != multibase.Base58BTC {
		return nil, &types.ErrInvalidDID{DID: did, Reason: "expected base58btc multibase encoding"}
	}

	code, n, err := varint.FromUvarint(decoded)
	if err != nil {
		return nil, &types.ErrInvalidDID{DID: did, Reason: fmt.Sprintf("read multicodec prefix: %v", err)}
	}
	if multicodec.Code(code) != multicodec.Ed25519Pub {
		return nil, &types.ErrInvalidDID{DID: did, Reason: "unexpected multicodec prefix"}
	}

	rawKey := decoded[n:]
	if len(rawKey) != ed25519.PublicKeySize {
		return nil, &types.ErrInvalidDID{DID: did, Reason: fmt.Sprintf("expected %d key bytes, got %d", ed25519.PublicKeySize, len(rawKey))}
	}

	return ed25519.PublicKey(rawKey), nil
}

// BuildDIDDocument constructs a DID Document for the given did:key. The
// created timestamp is omitted when zero.
func BuildDIDDocument(did string, created time.Time) (*DIDDocument, error) {
	vmID, err := KeyID(did)
	if err != nil {
		return nil, err
	}

	doc := &DIDDocument{
		Context: []string{
			"https://www.w3.org/ns/did/v1",
			"https://w3id.org/security/suites/ed25519-2020/v1",
		},
		ID: did,
		VerificationMethod: []VerificationMethod{
			{
				ID:                 vmID,
				Type:               string(types.VerificationMethodEd25519),
				Controller:         did,
				PublicKeyMultibase: strings.TrimPrefix(did, didKeyPrefix),
			},
		},
		Authentication:  []string{vmID},
		AssertionMethod: []string{vmID},
	}
	if !created.IsZero() {
		doc.Created = created.UTC().Format(time.RFC3339)
	}
	return doc, nil
}
