// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package credential issues and verifies agent ownership and capability
// credentials. A credential is a W3C Verifiable Credential carried in the
// "vc" claim of an EdDSA-signed JWT.
package credential

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/mitchellh/mapstructure"

	"github.com/aumos-ai/agentid/types"
)

const (
	contextCredentialsV2 = "https://www.w3.org/ns/credentials/v2"
	typeVerifiable       = "VerifiableCredential"
	tokenType            = "JWT"
)

// VC is the verifiable-credential object nested in the token's "vc" claim.
type VC struct {
	Context           []string               `json:"@context"`
	ID                string                 `json:"id,omitempty"`
	Type              []string               `json:"type"`
	Issuer            string                 `json:"issuer"`
	ValidFrom         string                 `json:"validFrom,omitempty"`
	ValidUntil        string                 `json:"validUntil,omitempty"`
	CredentialSubject map[string]interface{} `json:"credentialSubject"`
}

// Payload is the full claim set of a credential token.
type Payload struct {
	jwt.Claims
	VC VC `json:"vc"`
}

// Header is the protected header of a credential token.
type Header struct {
	Algorithm string `json:"alg"`
	KeyID     string `json:"kid,omitempty"`
	Type      string `json:"typ,omitempty"`
}

// OwnershipSubject is the typed credentialSubject of an ownership credential.
// Name and CreatedAt are descriptive hints copied from the issuer's store and
// are not authoritative.
type OwnershipSubject struct {
	ID        string `mapstructure:"id" json:"id"`
	Owner     string `mapstructure:"owner" json:"owner"`
	Name      string `mapstructure:"name" json:"name,omitempty"`
	CreatedAt string `mapstructure:"createdAt" json:"createdAt,omitempty"`
}

// CapabilitySubject is the typed credentialSubject of a capability credential.
type CapabilitySubject struct {
	ID       string   `mapstructure:"id" json:"id"`
	Scopes   []string `mapstructure:"scopes" json:"scopes"`
	Audience string   `mapstructure:"audience" json:"audience,omitempty"`
}

// Decoded is the unverified content of a token. It carries no signature or
// expiry guarantee and must never be used for a trust decision; only Verify
// produces a Verified.
type Decoded struct {
	Header  Header  `json:"header"`
	Payload Payload `json:"payload"`
}

// Verified is the content of a token whose signature, validity window and
// caller expectations have all been checked.
type Verified struct {
	Header     Header               `json:"header"`
	Payload    Payload              `json:"payload"`
	Type       types.CredentialType `json:"type"`
	Ownership  *OwnershipSubject    `json:"ownership,omitempty"`
	Capability *CapabilitySubject   `json:"capability,omitempty"`
}

// Issuer returns the iss claim.
func (v *Verified) Issuer() string { return v.Payload.Issuer }

// Subject returns the sub claim.
func (v *Verified) Subject() string { return v.Payload.Subject }

// ExpiresAt returns the exp claim, or nil when the credential never expires.
func (v *Verified) ExpiresAt() *time.Time { return expiryOf(&v.Payload) }

// Decode parses a token without checking its signature or validity window.
// Calling it never changes any state and repeated calls return equal results.
func Decode(token string) (*Decoded, error) {
	header, err := parseHeader(token)
	if err != nil {
		return nil, err
	}
	tok, err := jwt.ParseSigned(strings.TrimSpace(token))
	if err != nil {
		return nil, &types.ErrMalformedToken{Reason: err.Error()}
	}
	var payload Payload
	if err := tok.UnsafeClaimsWithoutVerification(&payload); err != nil {
		return nil, &types.ErrMalformedToken{Reason: fmt.Sprintf("decode claims: %v", err)}
	}
	return &Decoded{Header: *header, Payload: payload}, nil
}

// parseHeader performs the structural check shared by Decode and Verify: a
// three-part compact token whose header is JSON and names EdDSA.
func parseHeader(token string) (*Header, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, &types.ErrMalformedToken{Reason: "expected three dot-separated parts"}
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, &types.ErrMalformedToken{Reason: fmt.Sprintf("decode header: %v", err)}
	}
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, &types.ErrMalformedToken{Reason: fmt.Sprintf("parse header: %v", err)}
	}
	if h.Algorithm != string(jose.EdDSA) {
		return nil, &types.ErrMalformedToken{Reason: fmt.Sprintf("unsupported alg %q", h.Algorithm)}
	}
	return &h, nil
}

// typedSubject maps the credentialSubject onto the struct for the
// credential's kind.
func typedSubject(vc *VC) (types.CredentialType, *OwnershipSubject, *CapabilitySubject, error) {
	kind, ok := types.CredentialTypeFromVC(vc.Type)
	if !ok {
		return "", nil, nil, fmt.Errorf("unrecognized credential type %v", vc.Type)
	}
	switch kind {
	case types.CredentialOwnership:
		var s OwnershipSubject
		if err := decodeSubject(vc.CredentialSubject, &s); err != nil {
			return "", nil, nil, err
		}
		return kind, &s, nil, nil
	case types.CredentialCapability:
		var s CapabilitySubject
		if err := decodeSubject(vc.CredentialSubject, &s); err != nil {
			return "", nil, nil, err
		}
		if len(s.Scopes) == 0 {
			return "", nil, nil, fmt.Errorf("capability credential has no scopes")
		}
		return kind, nil, &s, nil
	default:
		return "", nil, nil, fmt.Errorf("unrecognized credential type %q", kind)
	}
}

func decodeSubject(in map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: false,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode credentialSubject: %w", err)
	}
	return nil
}

func expiryOf(p *Payload) *time.Time {
	if p.Expiry == nil {
		return nil
	}
	t := p.Expiry.Time().UTC()
	return &t
}
