// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package credential

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aumos-ai/agentid/identity"
	"github.com/aumos-ai/agentid/keys"
	"github.com/aumos-ai/agentid/types"
)

var issuedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type actor struct {
	id *identity.Identity
	kp *keys.KeyPair
}

func newActor(t *testing.T, typ types.IdentityType, name, owner string) actor {
	t.Helper()
	kp, err := keys.Generate()
	require.NoError(t, err)
	id, err := identity.New(kp, typ, name, owner, issuedAt.Add(-time.Hour))
	require.NoError(t, err)
	return actor{id: id, kp: kp}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testIssuer() *Issuer {
	return &Issuer{Now: fixedClock(issuedAt)}
}

func testVerifier(now time.Time) *Verifier {
	return &Verifier{Resolver: identity.NewKeyResolver(), Now: fixedClock(now)}
}

func TestOwnershipCredential_EndToEnd(t *testing.T) {
	ctx := context.Background()
	alice := newActor(t, types.IdentityOwner, "Alice", "")
	bot := newActor(t, types.IdentityAgent, "Bot", alice.id.DID)

	issued, err := testIssuer().IssueOwnership(ctx, OwnershipRequest{
		Issuer:      alice.id,
		KeyPair:     alice.kp,
		Subject:     bot.id.DID,
		SubjectInfo: bot.id,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(issued.ID, "urn:uuid:"))
	assert.Equal(t, types.CredentialOwnership, issued.Type)
	assert.Equal(t, issuedAt, issued.IssuedAt)
	assert.Nil(t, issued.ExpiresAt)
	assert.Len(t, strings.Split(issued.Token, "."), 3)

	res, err := testVerifier(issuedAt.Add(24*time.Hour)).Verify(ctx, issued.Token, VerifyOptions{})
	require.NoError(t, err)
	require.True(t, res.Valid, res.Detail)
	assert.Equal(t, types.ReasonNone, res.Reason)

	vc := res.Credential
	assert.Equal(t, alice.id.DID, vc.Issuer())
	assert.Equal(t, bot.id.DID, vc.Subject())
	assert.Nil(t, vc.ExpiresAt())
	assert.Equal(t, types.CredentialOwnership, vc.Type)
	assert.Equal(t, issued.ID, vc.Payload.ID)
	assert.Equal(t, "EdDSA", vc.Header.Algorithm)
	assert.Equal(t, "JWT", vc.Header.Type)

	kid, err := identity.KeyID(alice.id.DID)
	require.NoError(t, err)
	assert.Equal(t, kid, vc.Header.KeyID)

	require.NotNil(t, vc.Ownership)
	assert.Nil(t, vc.Capability)
	assert.Equal(t, bot.id.DID, vc.Ownership.ID)
	assert.Equal(t, alice.id.DID, vc.Ownership.Owner)
	assert.Equal(t, "Bot", vc.Ownership.Name)
	assert.Equal(t, bot.id.CreatedAt.Format(time.RFC3339), vc.Ownership.CreatedAt)
	assert.Equal(t, []string{"VerifiableCredential", "AgentOwnershipCredential"}, vc.Payload.VC.Type)
}

func TestCapabilityCredential_EndToEnd(t *testing.T) {
	ctx := context.Background()
	alice := newActor(t, types.IdentityOwner, "Alice", "")
	bot := newActor(t, types.IdentityAgent, "Bot", alice.id.DID)

	t.Run("valid with audience", func(t *testing.T) {
		exp := issuedAt.Add(48 * time.Hour)
		issued, err := testIssuer().IssueCapability(ctx, CapabilityRequest{
			Issuer: alice.id, KeyPair: alice.kp, Subject: bot.id.DID,
			Scopes: []string{"read", "write", "read"}, Audience: "https://api.example.com", ExpiresAt: &exp,
		})
		require.NoError(t, err)
		require.NotNil(t, issued.ExpiresAt)
		assert.Equal(t, exp, *issued.ExpiresAt)
		assert.Equal(t, []string{"read", "write", "read"}, issued.Scopes)

		res, err := testVerifier(issuedAt).Verify(ctx, issued.Token, VerifyOptions{
			AllowedIssuers:  []string{"did:key:z6Mkother", alice.id.DID},
			ExpectedSubject: bot.id.DID,
		})
		require.NoError(t, err)
		require.True(t, res.Valid, res.Detail)
		require.NotNil(t, res.Credential.Capability)
		assert.Equal(t, []string{"read", "write", "read"}, res.Credential.Capability.Scopes)
		assert.Equal(t, "https://api.example.com", res.Credential.Capability.Audience)
		assert.Equal(t, exp, *res.Credential.ExpiresAt())
		assert.Equal(t, exp.Format(time.RFC3339), res.Credential.Payload.VC.ValidUntil)
	})

	t.Run("past expiry is accepted at issuance and fails verification", func(t *testing.T) {
		past := issuedAt.Add(-24 * time.Hour)
		issued, err := testIssuer().IssueCapability(ctx, CapabilityRequest{
			Issuer: alice.id, KeyPair: alice.kp, Subject: bot.id.DID,
			Scopes: []string{"read", "write"}, ExpiresAt: &past,
		})
		require.NoError(t, err)

		res, err := testVerifier(issuedAt).Verify(ctx, issued.Token, VerifyOptions{})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, types.ReasonExpired, res.Reason)
		assert.Nil(t, res.Credential)
	})
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	alice := newActor(t, types.IdentityOwner, "Alice", "")
	exp := issuedAt.Add(time.Hour)
	issued, err := testIssuer().IssueOwnership(ctx, OwnershipRequest{
		Issuer: alice.id, KeyPair: alice.kp, Subject: "did:web:example.com", ExpiresAt: &exp,
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		now   time.Time
		valid bool
	}{
		{"before", exp.Add(-time.Second), true},
		{"exactly at expiry", exp, true},
		{"one nanosecond after", exp.Add(time.Nanosecond), false},
		{"long after", exp.Add(24 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := testVerifier(tt.now).Verify(ctx, issued.Token, VerifyOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid, res.Detail)
			if !tt.valid {
				assert.Equal(t, types.ReasonExpired, res.Reason)
			}
		})
	}
}

func TestVerify_Expectations(t *testing.T) {
	ctx := context.Background()
	alice := newActor(t, types.IdentityOwner, "Alice", "")
	bot := newActor(t, types.IdentityAgent, "Bot", alice.id.DID)
	other := newActor(t, types.IdentityOwner, "Mallory", "")

	issued, err := testIssuer().IssueOwnership(ctx, OwnershipRequest{Issuer: alice.id, KeyPair: alice.kp, Subject: bot.id.DID})
	require.NoError(t, err)

	tests := []struct {
		name   string
		opts   VerifyOptions
		reason types.Reason
	}{
		{"issuer not allowed", VerifyOptions{AllowedIssuers: []string{other.id.DID}}, types.ReasonIssuerNotAllowed},
		{"subject mismatch", VerifyOptions{ExpectedSubject: other.id.DID}, types.ReasonSubjectMismatch},
		{"issuer checked before subject", VerifyOptions{AllowedIssuers: []string{other.id.DID}, ExpectedSubject: other.id.DID}, types.ReasonIssuerNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := testVerifier(issuedAt).Verify(ctx, issued.Token, tt.opts)
			require.NoError(t, err)
			assert.False(t, res.Valid)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}

	t.Run("expired wins over expectations", func(t *testing.T) {
		past := issuedAt.Add(-time.Minute)
		expired, err := testIssuer().IssueOwnership(ctx, OwnershipRequest{Issuer: alice.id, KeyPair: alice.kp, Subject: bot.id.DID, ExpiresAt: &past})
		require.NoError(t, err)
		res, err := testVerifier(issuedAt).Verify(ctx, expired.Token, VerifyOptions{AllowedIssuers: []string{other.id.DID}})
		require.NoError(t, err)
		assert.Equal(t, types.ReasonExpired, res.Reason)
	})
}

func flipBit(t *testing.T, token string, part, byteIdx int) string {
	t.Helper()
	parts := strings.Split(token, ".")
	raw, err := base64.RawURLEncoding.DecodeString(parts[part])
	require.NoError(t, err)
	raw[byteIdx] ^= 0x01
	parts[part] = base64.RawURLEncoding.EncodeToString(raw)
	return strings.Join(parts, ".")
}

func TestVerify_Tampering(t *testing.T) {
	ctx := context.Background()
	alice := newActor(t, types.IdentityOwner, "Alice", "")
	bot := newActor(t, types.IdentityAgent, "Bot", alice.id.DID)
	issued, err := testIssuer().IssueCapability(ctx, CapabilityRequest{
		Issuer: alice.id, KeyPair: alice.kp, Subject: bot.id.DID, Scopes: []string{"read"},
	})
	require.NoError(t, err)
	v := testVerifier(issuedAt)

	parts := strings.Split(issued.Token, ".")
	for _, part := range []int{1, 2} {
		raw, err := base64.RawURLEncoding.DecodeString(parts[part])
		require.NoError(t, err)
		for i := range raw {
			tampered := flipBit(t, issued.Token, part, i)
			res, err := v.Verify(ctx, tampered, VerifyOptions{})
			require.NoError(t, err)
			require.False(t, res.Valid, "part %d byte %d", part, i)
			require.Equal(t, types.ReasonInvalidSignature, res.Reason, "part %d byte %d: %s", part, i, res.Detail)
		}
	}

	t.Run("signed by a different key", func(t *testing.T) {
		mallory := newActor(t, types.IdentityOwner, "Mallory", "")
		forged, err := testIssuer().IssueOwnership(ctx, OwnershipRequest{Issuer: mallory.id, KeyPair: mallory.kp, Subject: bot.id.DID})
		require.NoError(t, err)
		// Graft Mallory's signature onto Alice's claims.
		fp := strings.Split(forged.Token, ".")
		res, err := v.Verify(ctx, parts[0]+"."+parts[1]+"."+fp[2], VerifyOptions{})
		require.NoError(t, err)
		assert.Equal(t, types.ReasonInvalidSignature, res.Reason)
	})
}

func TestVerify_Malformed(t *testing.T) {
	ctx := context.Background()
	noneHeader := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	body := base64.RawURLEncoding.EncodeToString([]byte(`{"iss":"did:key:x"}`))

	for _, token := range []string{
		"",
		"not-a-token",
		"a.b",
		"a.b.c.d",
		"!!!.e30.sig",
		base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".e30.c2ln",
		noneHeader + "." + body + ".c2ln",
	} {
		res, err := testVerifier(issuedAt).Verify(ctx, token, VerifyOptions{})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, types.ReasonMalformedToken, res.Reason, "token %q", token)

		_, err = Decode(token)
		assert.Equal(t, types.CodeMalformedToken, types.CodeOf(err), "token %q", token)
	}
}

func TestDecode(t *testing.T) {
	ctx := context.Background()
	alice := newActor(t, types.IdentityOwner, "Alice", "")
	past := issuedAt.Add(-time.Hour)
	issued, err := testIssuer().IssueCapability(ctx, CapabilityRequest{
		Issuer: alice.id, KeyPair: alice.kp, Subject: "did:key:z6MkSomeone", Scopes: []string{"read"}, ExpiresAt: &past,
	})
	require.NoError(t, err)

	first, err := Decode(issued.Token)
	require.NoError(t, err)
	second, err := Decode(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Decoding ignores expiry and signature.
	assert.Equal(t, alice.id.DID, first.Payload.Issuer)
	assert.Equal(t, "did:key:z6MkSomeone", first.Payload.Subject)
	assert.Equal(t, past, first.Payload.Expiry.Time().UTC())
	assert.Equal(t, []string{"VerifiableCredential", "AgentCapabilityCredential"}, first.Payload.VC.Type)

	tampered := flipBit(t, issued.Token, 2, 0)
	d, err := Decode(tampered)
	require.NoError(t, err)
	assert.Equal(t, first.Payload.Issuer, d.Payload.Issuer)
}

func TestIssue_Errors(t *testing.T) {
	ctx := context.Background()
	alice := newActor(t, types.IdentityOwner, "Alice", "")
	bot := newActor(t, types.IdentityAgent, "Bot", alice.id.DID)
	iss := testIssuer()

	tests := []struct {
		name string
		run  func() error
		code types.ErrorCode
	}{
		{"agent cannot issue", func() error {
			_, err := iss.IssueOwnership(ctx, OwnershipRequest{Issuer: bot.id, KeyPair: bot.kp, Subject: alice.id.DID})
			return err
		}, types.CodeIssuerNotOwner},
		{"key pair of someone else", func() error {
			_, err := iss.IssueOwnership(ctx, OwnershipRequest{Issuer: alice.id, KeyPair: bot.kp, Subject: bot.id.DID})
			return err
		}, types.CodeKeyMismatch},
		{"subject is not a DID", func() error {
			_, err := iss.IssueOwnership(ctx, OwnershipRequest{Issuer: alice.id, KeyPair: alice.kp, Subject: "bot"})
			return err
		}, types.CodeInvalidDID},
		{"no scopes", func() error {
			_, err := iss.IssueCapability(ctx, CapabilityRequest{Issuer: alice.id, KeyPair: alice.kp, Subject: bot.id.DID})
			return err
		}, types.CodeInvalidScopes},
		{"empty scope", func() error {
			_, err := iss.IssueCapability(ctx, CapabilityRequest{Issuer: alice.id, KeyPair: alice.kp, Subject: bot.id.DID, Scopes: []string{"read", ""}})
			return err
		}, types.CodeInvalidScopes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.Equal(t, tt.code, types.CodeOf(err))
		})
	}
}

func TestParseScopes(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"read", []string{"read"}, false},
		{"read,write", []string{"read", "write"}, false},
		{" read , write ,read", []string{"read", "write", "read"}, false},
		{"tools:search,files/*", []string{"tools:search", "files/*"}, false},
		{"", nil, true},
		{"   ", nil, true},
		{"read,,write", nil, true},
		{"read,", nil, true},
		{"read write", nil, true},
		{"read;drop", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScopes(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.CodeInvalidScopes, types.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseExpiry(t *testing.T) {
	got, err := ParseExpiry("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseExpiry("2030-06-01T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 6, 1, 8, 0, 0, 0, time.UTC), *got)

	got, err = ParseExpiry("2020-01-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), *got)

	for _, bad := range []string{"tomorrow", "1h", "2030-13-01", "1700000000"} {
		_, err := ParseExpiry(bad)
		require.Error(t, err, bad)
		assert.Equal(t, types.CodeInvalidExpiry, types.CodeOf(err))
	}
}
