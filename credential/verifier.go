// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package credential

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v3/jwt"

	"github.com/aumos-ai/agentid/identity"
	"github.com/aumos-ai/agentid/types"
)

// VerifyOptions carries the caller's expectations. Zero values impose none.
type VerifyOptions struct {
	// AllowedIssuers, when non-empty, must contain the token's issuer.
	AllowedIssuers []string
	// ExpectedSubject, when set, must equal the token's subject exactly.
	ExpectedSubject string
}

// VerificationResult is the outcome of Verifier.Verify. An invalid token is
// a result, not an error.
type VerificationResult struct {
	Valid  bool         `json:"valid"`
	Reason types.Reason `json:"reason,omitempty"`
	// Detail is a human-readable elaboration of Reason.
	Detail     string    `json:"detail,omitempty"`
	Credential *Verified `json:"credential,omitempty"`
}

// Verifier checks credential tokens. The issuer's public key is always
// recovered from the issuer DID through Resolver, never from a keystore.
type Verifier struct {
	// Resolver defaults to identity.KeyResolver.
	Resolver identity.Resolver
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewVerifier returns a Verifier resolving did:key locally.
func NewVerifier() *Verifier {
	return &Verifier{Resolver: identity.NewKeyResolver()}
}

// Verify runs the pipeline structure, signature, expiry, issuer allow-list,
// then subject, stopping at the first failure. The boundary instant exp ==
// now is still valid.
func (v *Verifier) Verify(ctx context.Context, token string, opts VerifyOptions) (*VerificationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)

	header, err := parseHeader(token)
	if err != nil {
		return reject(types.ReasonMalformedToken, err.Error()), nil
	}

	// The header is sound from here on, so any damage to the payload or
	// signature segments is reported as a signature failure.
	tok, err := jwt.ParseSigned(token)
	if err != nil {
		return reject(types.ReasonInvalidSignature, err.Error()), nil
	}
	var unverified Payload
	if err := tok.UnsafeClaimsWithoutVerification(&unverified); err != nil {
		return reject(types.ReasonInvalidSignature, "claims are not decodable"), nil
	}
	issuer := unverified.Issuer
	if header.KeyID != "" && !strings.HasPrefix(header.KeyID, issuer+"#") {
		return reject(types.ReasonInvalidSignature, "kid does not belong to issuer"), nil
	}
	pub, err := identity.ResolvePublicKey(ctx, v.resolver(), issuer)
	if err != nil {
		return reject(types.ReasonInvalidSignature, fmt.Sprintf("resolve issuer: %v", err)), nil
	}
	var payload Payload
	if err := tok.Claims(pub, &payload); err != nil {
		return reject(types.ReasonInvalidSignature, "signature does not match issuer key"), nil
	}

	now := v.clock()().UTC()
	if exp := expiryOf(&payload); exp != nil && now.After(*exp) {
		return reject(types.ReasonExpired, fmt.Sprintf("expired at %s", exp.Format(time.RFC3339))), nil
	}
	if payload.VC.ValidUntil != "" {
		until, err := time.Parse(time.RFC3339, payload.VC.ValidUntil)
		if err != nil {
			return reject(types.ReasonMalformedToken, "validUntil is not RFC 3339"), nil
		}
		if now.After(until) {
			return reject(types.ReasonExpired, fmt.Sprintf("expired at %s", until.UTC().Format(time.RFC3339))), nil
		}
	}

	if len(opts.AllowedIssuers) > 0 && !contains(opts.AllowedIssuers, payload.Issuer) {
		return reject(types.ReasonIssuerNotAllowed, fmt.Sprintf("issuer %s is not allowed", payload.Issuer)), nil
	}
	if opts.ExpectedSubject != "" && payload.Subject != opts.ExpectedSubject {
		return reject(types.ReasonSubjectMismatch, fmt.Sprintf("subject is %s", payload.Subject)), nil
	}

	kind, own, capability, err := typedSubject(&payload.VC)
	if err != nil {
		return reject(types.ReasonMalformedToken, err.Error()), nil
	}

	return &VerificationResult{
		Valid: true,
		Credential: &Verified{
			Header:     *header,
			Payload:    payload,
			Type:       kind,
			Ownership:  own,
			Capability: capability,
		},
	}, nil
}

func reject(reason types.Reason, detail string) *VerificationResult {
	return &VerificationResult{Valid: false, Reason: reason, Detail: detail}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (v *Verifier) resolver() identity.Resolver {
	if v.Resolver == nil {
		return identity.NewKeyResolver()
	}
	return v.Resolver
}

func (v *Verifier) clock() func() time.Time {
	if v.Now == nil {
		return time.Now
	}
	return v.Now
}
