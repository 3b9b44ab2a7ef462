// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package challenge implements DID challenge-response authentication. The
// signer returns the encoded payload and a detached JWS separately so the
// two can travel over different channels and be reassembled by a verifier.
package challenge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v3"

	"github.com/aumos-ai/agentid/identity"
	"github.com/aumos-ai/agentid/keys"
	"github.com/aumos-ai/agentid/types"
)

// DefaultExpiresIn is the lifetime of a signed challenge when none is given.
const DefaultExpiresIn = 120 * time.Second

// MaxExpiresIn bounds the lifetime of a challenge response.
const MaxExpiresIn = 24 * time.Hour

var payloadEncoding = base64.RawURLEncoding.Strict()

// Payload is the signed challenge. Field order is fixed, which makes the
// JSON serialization deterministic.
type Payload struct {
	Nonce     string `json:"nonce"`
	Audience  string `json:"aud,omitempty"`
	Domain    string `json:"domain,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	DID       string `json:"did"`
}

// SignOptions are the optional inputs of Signer.Sign.
type SignOptions struct {
	Audience string
	Domain   string
	// ExpiresIn defaults to DefaultExpiresIn.
	ExpiresIn time.Duration
}

// Signed is the output of Signer.Sign.
type Signed struct {
	DID       string    `json:"did"`
	KeyID     string    `json:"kid"`
	Algorithm string    `json:"alg"`
	Payload   string    `json:"payload"`
	Signature string    `json:"signature"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Signer produces challenge responses.
type Signer struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewSigner returns a Signer on the wall clock.
func NewSigner() *Signer {
	return &Signer{}
}

// Sign binds nonce, the optional audience and domain, and a validity window
// to did, and signs the result with kp.
func (s *Signer) Sign(ctx context.Context, did string, kp *keys.KeyPair, nonce string, opts SignOptions) (*Signed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if nonce == "" {
		return nil, &types.ErrInvalidArgument{Field: "challenge", Reason: "nonce must not be empty"}
	}
	expiresIn := opts.ExpiresIn
	switch {
	case expiresIn == 0:
		expiresIn = DefaultExpiresIn
	case expiresIn < time.Second:
		return nil, &types.ErrInvalidArgument{Field: "expires-in", Reason: "must be at least one second"}
	case expiresIn > MaxExpiresIn:
		return nil, &types.ErrInvalidArgument{Field: "expires-in", Reason: fmt.Sprintf("must be at most %s", MaxExpiresIn)}
	}
	if err := identity.CheckKeyPair(did, kp); err != nil {
		return nil, err
	}
	kid, err := identity.KeyID(did)
	if err != nil {
		return nil, err
	}

	now := s.clock()().UTC().Truncate(time.Second)
	exp := now.Add(expiresIn.Truncate(time.Second))
	payload := Payload{
		Nonce:     nonce,
		Audience:  opts.Audience,
		Domain:    opts.Domain,
		IssuedAt:  now.Unix(),
		ExpiresAt: exp.Unix(),
		DID:       did,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("challenge: marshal payload: %w", err)
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.EdDSA, Key: kp.PrivateKey},
		(&jose.SignerOptions{}).WithHeader(jose.HeaderKey("kid"), kid),
	)
	if err != nil {
		return nil, fmt.Errorf("challenge: create signer: %w", err)
	}
	jws, err := signer.Sign(raw)
	if err != nil {
		return nil, fmt.Errorf("challenge: sign: %w", err)
	}
	sig, err := jws.DetachedCompactSerialize()
	if err != nil {
		return nil, fmt.Errorf("challenge: serialize signature: %w", err)
	}

	return &Signed{
		DID:       did,
		KeyID:     kid,
		Algorithm: string(jose.EdDSA),
		Payload:   payloadEncoding.EncodeToString(raw),
		Signature: sig,
		CreatedAt: now,
		ExpiresAt: exp,
	}, nil
}

func (s *Signer) clock() func() time.Time {
	if s == nil || s.Now == nil {
		return time.Now
	}
	return s.Now
}

// VerifyOptions are the verifier's expectations. An empty field imposes no
// expectation.
type VerifyOptions struct {
	ExpectedNonce    string
	ExpectedAudience string
	ExpectedDomain   string
}

// Result is the outcome of Verifier.Verify.
type Result struct {
	Valid   bool         `json:"valid"`
	Reason  types.Reason `json:"reason,omitempty"`
	Detail  string       `json:"detail,omitempty"`
	Payload *Payload     `json:"payload,omitempty"`
}

// Verifier checks challenge responses. It keeps no state; see ReplayGuard
// for nonce reuse.
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

// Verify checks that signature covers the decoded payload bytes under the
// key of did, then that the payload is well formed and names did, that now
// lies in [iat, exp], and finally the nonce, audience and domain
// expectations. A did that cannot be resolved is
// an error; every other failure is a Result with Valid false.
func (v *Verifier) Verify(ctx context.Context, did, payloadEncoded, signature string, opts VerifyOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pub, err := identity.ResolvePublicKey(ctx, v.resolver(), did)
	if err != nil {
		return nil, err
	}

	raw, err := payloadEncoding.DecodeString(strings.TrimSpace(payloadEncoded))
	if err != nil {
		return reject(types.ReasonMalformedPayload, "payload is not base64url"), nil
	}

	// The signature covers the exact decoded bytes. Nothing inside them is
	// interpreted until it verifies.
	jws, err := jose.ParseDetached(strings.TrimSpace(signature), raw)
	if err != nil {
		return reject(types.ReasonMalformedPayload, fmt.Sprintf("signature is not a detached JWS: %v", err)), nil
	}
	if len(jws.Signatures) != 1 || jws.Signatures[0].Header.Algorithm != string(jose.EdDSA) {
		return reject(types.ReasonMalformedPayload, "signature must be a single EdDSA JWS"), nil
	}
	if _, err := jws.Verify(pub); err != nil {
		return reject(types.ReasonInvalidSignature, "signature does not match the DID key"), nil
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return reject(types.ReasonMalformedPayload, "payload is not a JSON object"), nil
	}
	if payload.Nonce == "" || payload.DID == "" || payload.IssuedAt == 0 || payload.ExpiresAt < payload.IssuedAt {
		return reject(types.ReasonMalformedPayload, "payload is missing required fields"), nil
	}

	if payload.DID != did {
		return reject(types.ReasonDIDMismatch, fmt.Sprintf("payload is bound to %s", payload.DID)), nil
	}

	now := v.clock()().UTC()
	iat := time.Unix(payload.IssuedAt, 0).UTC()
	exp := time.Unix(payload.ExpiresAt, 0).UTC()
	if now.Before(iat) {
		return reject(types.ReasonExpired, fmt.Sprintf("not valid before %s", iat.Format(time.RFC3339))), nil
	}
	if now.After(exp) {
		return reject(types.ReasonExpired, fmt.Sprintf("expired at %s", exp.Format(time.RFC3339))), nil
	}

	if opts.ExpectedNonce != "" && payload.Nonce != opts.ExpectedNonce {
		return reject(types.ReasonNonceMismatch, "nonce does not match"), nil
	}
	if opts.ExpectedAudience != "" && payload.Audience != opts.ExpectedAudience {
		return reject(types.ReasonAudienceMismatch, "audience does not match"), nil
	}
	if opts.ExpectedDomain != "" && payload.Domain != opts.ExpectedDomain {
		return reject(types.ReasonDomainMismatch, "domain does not match"), nil
	}

	return &Result{Valid: true, Payload: &payload}, nil
}

func reject(reason types.Reason, detail string) *Result {
	return &Result{Valid: false, Reason: reason, Detail: detail}
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
