// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/google/uuid"

	"github.com/aumos-ai/agentid/identity"
	"github.com/aumos-ai/agentid/keys"
	"github.com/aumos-ai/agentid/types"
)

// OwnershipRequest carries parameters for Issuer.IssueOwnership.
type OwnershipRequest struct {
	// Issuer must be an owner identity. Required.
	Issuer *identity.Identity
	// KeyPair is the issuer's key pair. Required.
	KeyPair *keys.KeyPair
	// Subject is the DID the credential is about. It need not be in any store.
	Subject string
	// SubjectInfo, when known, contributes the name and createdAt hints.
	SubjectInfo *identity.Identity
	// ExpiresAt is optional; nil means the credential never expires.
	ExpiresAt *time.Time
}

// CapabilityRequest carries parameters for Issuer.IssueCapability.
type CapabilityRequest struct {
	Issuer    *identity.Identity
	KeyPair   *keys.KeyPair
	Subject   string
	Scopes    []string
	Audience  string
	ExpiresAt *time.Time
}

// Issued is a freshly signed credential together with its inventory fields.
type Issued struct {
	ID        string               `json:"id"`
	Type      types.CredentialType `json:"type"`
	Issuer    string               `json:"issuer"`
	Subject   string               `json:"subject"`
	IssuedAt  time.Time            `json:"issuedAt"`
	ExpiresAt *time.Time           `json:"expiresAt,omitempty"`
	Scopes    []string             `json:"scopes,omitempty"`
	Token     string               `json:"token"`
}

// Issuer signs ownership and capability credentials.
type Issuer struct {
	// Now is the issuance clock. Defaults to time.Now.
	Now func() time.Time
}

// NewIssuer returns an Issuer on the wall clock.
func NewIssuer() *Issuer {
	return &Issuer{}
}

// IssueOwnership signs a credential asserting that the issuer owns subject.
func (i *Issuer) IssueOwnership(ctx context.Context, req OwnershipRequest) (*Issued, error) {
	if err := checkIssuer(req.Issuer, req.KeyPair); err != nil {
		return nil, err
	}
	if err := identity.ValidateDIDSyntax(req.Subject); err != nil {
		return nil, err
	}

	subject := map[string]interface{}{
		"id":    req.Subject,
		"owner": req.Issuer.DID,
	}
	if info := req.SubjectInfo; info != nil && info.DID == req.Subject {
		subject["name"] = info.Name
		subject["createdAt"] = info.CreatedAt.UTC().Format(time.RFC3339)
	}

	return i.issue(ctx, types.CredentialOwnership, req.Issuer.DID, req.Subject, "", subject, nil, req.ExpiresAt, req.KeyPair)
}

// IssueCapability signs a credential granting scopes to subject. Scopes must
// be non-empty; an expiry in the past is accepted and yields a credential
// that is already expired.
func (i *Issuer) IssueCapability(ctx context.Context, req CapabilityRequest) (*Issued, error) {
	if err := checkIssuer(req.Issuer, req.KeyPair); err != nil {
		return nil, err
	}
	if err := identity.ValidateDIDSyntax(req.Subject); err != nil {
		return nil, err
	}
	if err := validateScopes(req.Scopes); err != nil {
		return nil, err
	}

	scopes := append([]string(nil), req.Scopes...)
	subject := map[string]interface{}{
		"id":     req.Subject,
		"scopes": scopes,
	}
	if req.Audience != "" {
		subject["audience"] = req.Audience
	}

	return i.issue(ctx, types.CredentialCapability, req.Issuer.DID, req.Subject, req.Audience, subject, scopes, req.ExpiresAt, req.KeyPair)
}

func (i *Issuer) issue(
	ctx context.Context,
	kind types.CredentialType,
	issuerDID, subjectDID, audience string,
	subject map[string]interface{},
	scopes []string,
	expiresAt *time.Time,
	kp *keys.KeyPair,
) (*Issued, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// JWT dates have second precision; truncate so the inventory record
	// matches the token exactly.
	now := i.clock()().UTC().Truncate(time.Second)
	id := "urn:uuid:" + uuid.NewString()

	claims := jwt.Claims{
		ID:        id,
		Issuer:    issuerDID,
		Subject:   subjectDID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
	if audience != "" {
		claims.Audience = jwt.Audience{audience}
	}

	vc := VC{
		Context:           []string{contextCredentialsV2},
		ID:                id,
		Type:              []string{typeVerifiable, kind.VCType()},
		Issuer:            issuerDID,
		ValidFrom:         now.Format(time.RFC3339),
		CredentialSubject: subject,
	}

	var exp *time.Time
	if expiresAt != nil {
		t := expiresAt.UTC().Truncate(time.Second)
		exp = &t
		claims.Expiry = jwt.NewNumericDate(t)
		vc.ValidUntil = t.Format(time.RFC3339)
	}

	token, err := sign(issuerDID, kp, claims, vc)
	if err != nil {
		return nil, err
	}

	return &Issued{
		ID:        id,
		Type:      kind,
		Issuer:    issuerDID,
		Subject:   subjectDID,
		IssuedAt:  now,
		ExpiresAt: exp,
		Scopes:    scopes,
		Token:     token,
	}, nil
}

func sign(issuerDID string, kp *keys.KeyPair, claims jwt.Claims, vc VC) (string, error) {
	kid, err := identity.KeyID(issuerDID)
	if err != nil {
		return "", err
	}
	opts := (&jose.SignerOptions{}).WithType(tokenType).WithHeader(jose.HeaderKey("kid"), kid)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: kp.PrivateKey}, opts)
	if err != nil {
		return "", fmt.Errorf("credential: create signer: %w", err)
	}
	token, err := jwt.Signed(signer).
		Claims(claims).
		Claims(map[string]interface{}{"vc": vc}).
		CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("credential: sign token: %w", err)
	}
	return token, nil
}

// checkIssuer enforces that only owners issue, with their own key.
func checkIssuer(issuer *identity.Identity, kp *keys.KeyPair) error {
	if issuer == nil {
		return &types.ErrInvalidArgument{Field: "issuer", Reason: "must not be nil"}
	}
	if !issuer.IsOwner() {
		return &types.ErrIssuerNotOwner{DID: issuer.DID, Actual: issuer.Type}
	}
	return identity.CheckKeyPair(issuer.DID, kp)
}

func (i *Issuer) clock() func() time.Time {
	if i == nil || i.Now == nil {
		return time.Now
	}
	return i.Now
}
