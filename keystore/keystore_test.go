// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package keystore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aumos-ai/agentid/identity"
	"github.com/aumos-ai/agentid/types"
)

var testKDF = KDFParams{Time: 1, MemoryKB: 1024, Threads: 1}

func encryptedConfig(dir string) Config {
	return Config{Dir: dir, Passphrase: "correct horse", KDF: testKDF, CreateIfMissing: true}
}

func plaintextConfig(dir string) Config {
	return Config{Dir: dir, Plaintext: true, CreateIfMissing: true}
}

func openStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_ConfigValidation(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing passphrase", func(t *testing.T) {
		_, err := Open(Config{Dir: dir, CreateIfMissing: true})
		require.Error(t, err)
		assert.Equal(t, types.CodeMissingPassphrase, types.CodeOf(err))
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := Open(Config{Plaintext: true})
		assert.Equal(t, types.CodeInvalidArgument, types.CodeOf(err))
	})

	t.Run("plaintext with passphrase", func(t *testing.T) {
		_, err := Open(Config{Dir: dir, Plaintext: true, Passphrase: "x", CreateIfMissing: true})
		assert.Equal(t, types.CodeInvalidArgument, types.CodeOf(err))
	})
}

func TestOpen_MissingKeystore(t *testing.T) {
	for _, cfg := range []Config{plaintextConfig(""), encryptedConfig("")} {
		t.Run(string(cfg.Mode()), func(t *testing.T) {
			parent := t.TempDir()
			cfg.Dir = filepath.Join(parent, "ks")
			cfg.CreateIfMissing = false

			_, err := Open(cfg)
			require.Error(t, err)
			var nf *types.ErrKeystoreNotFound
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, types.CodeNotFound, types.CodeOf(err))
			assert.NoDirExists(t, cfg.Dir)

			// A later encrypted or plaintext create is unaffected.
			cfg.CreateIfMissing = true
			s := openStore(t, cfg)
			assert.Equal(t, cfg.Mode(), s.Mode())

			require.NoError(t, s.Close())
			cfg.CreateIfMissing = false
			openStore(t, cfg)
		})
	}

	t.Run("no passphrase", func(t *testing.T) {
		_, err := Open(Config{Dir: filepath.Join(t.TempDir(), "ks")})
		assert.Equal(t, types.CodeNotFound, types.CodeOf(err))
	})
}

func TestOpen_EncryptionMode(t *testing.T) {
	t.Run("wrong passphrase", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, openStore(t, encryptedConfig(dir)).Close())

		cfg := encryptedConfig(dir)
		cfg.Passphrase = "wrong"
		_, err := Open(cfg)
		require.Error(t, err)
		assert.Equal(t, types.CodeInvalidPassphrase, types.CodeOf(err))
	})

	t.Run("encrypted store never reopens as plaintext", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, openStore(t, encryptedConfig(dir)).Close())

		_, err := Open(plaintextConfig(dir))
		require.Error(t, err)
		assert.Equal(t, types.CodeEncryptionModeMismatch, types.CodeOf(err))
	})

	t.Run("plaintext store rejects passphrase", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, openStore(t, plaintextConfig(dir)).Close())

		_, err := Open(encryptedConfig(dir))
		require.Error(t, err)
		assert.Equal(t, types.CodeEncryptionModeMismatch, types.CodeOf(err))
	})

	t.Run("plaintext open warns", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)
		cfg := plaintextConfig(t.TempDir())
		cfg.Logger = &logger

		s := openStore(t, cfg)
		assert.Equal(t, ModePlaintext, s.Mode())
		assert.Contains(t, buf.String(), `"level":"warn"`)
		assert.Contains(t, buf.String(), "UNENCRYPTED")
	})
}

func TestStore_IdentityLifecycle(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name string
		cfg  func(string) Config
	}{
		{"encrypted", encryptedConfig},
		{"plaintext", plaintextConfig},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			s := openStore(t, tc.cfg(dir))

			alice, err := s.CreateIdentity(ctx, CreateRequest{Type: types.IdentityOwner, Name: "Alice"})
			require.NoError(t, err)
			assert.Equal(t, types.IdentityOwner, alice.Type)
			assert.Empty(t, alice.OwnerDID)
			assert.False(t, alice.CreatedAt.IsZero())

			bot, err := s.CreateIdentity(ctx, CreateRequest{Type: types.IdentityAgent, Name: "Bot", OwnerDID: alice.DID})
			require.NoError(t, err)
			assert.Equal(t, alice.DID, bot.OwnerDID)
			assert.NotEqual(t, alice.DID, bot.DID)

			got, err := s.GetIdentity(ctx, bot.DID)
			require.NoError(t, err)
			assert.Equal(t, bot, got)

			list, err := s.ListIdentities(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, alice.DID, list[0].DID)
			assert.Equal(t, bot.DID, list[1].DID)

			kp, err := s.KeyPair(ctx, alice.DID)
			require.NoError(t, err)
			require.NoError(t, identity.CheckKeyPair(alice.DID, kp))

			require.NoError(t, s.Close())

			// Everything survives a reopen, and key material is recovered from disk.
			s2 := openStore(t, tc.cfg(dir))
			list, err = s2.ListIdentities(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, alice.DID, list[0].DID)

			kp2, err := s2.KeyPair(ctx, bot.DID)
			require.NoError(t, err)
			require.NoError(t, identity.CheckKeyPair(bot.DID, kp2))

			require.NoError(t, s2.DeleteIdentity(ctx, alice.DID))
			_, err = s2.GetIdentity(ctx, alice.DID)
			assert.Equal(t, types.CodeNotFound, types.CodeOf(err))
			_, err = s2.KeyPair(ctx, alice.DID)
			assert.Equal(t, types.CodeNotFound, types.CodeOf(err))
			_, statErr := os.Stat(keyPath(s2.Dir(), alice.DID))
			assert.True(t, os.IsNotExist(statErr))

			// No cascade: the agent keeps its dangling owner reference.
			orphan, err := s2.GetIdentity(ctx, bot.DID)
			require.NoError(t, err)
			assert.Equal(t, alice.DID, orphan.OwnerDID)

			err = s2.DeleteIdentity(ctx, alice.DID)
			assert.Equal(t, types.CodeNotFound, types.CodeOf(err))
		})
	}
}

func TestStore_CreateAgentOwnerChecks(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, plaintextConfig(t.TempDir()))

	owner, err := s.CreateIdentity(ctx, CreateRequest{Type: types.IdentityOwner, Name: "Alice"})
	require.NoError(t, err)
	agent, err := s.CreateIdentity(ctx, CreateRequest{Type: types.IdentityAgent, Name: "Bot", OwnerDID: owner.DID})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  CreateRequest
		code types.ErrorCode
	}{
		{"unknown owner", CreateRequest{Type: types.IdentityAgent, Name: "x", OwnerDID: "did:key:z6MkmissingOwner"}, types.CodeOwnerNotFound},
		{"owner is an agent", CreateRequest{Type: types.IdentityAgent, Name: "x", OwnerDID: agent.DID}, types.CodeOwnerTypeMismatch},
		{"empty name", CreateRequest{Type: types.IdentityOwner, Name: "  "}, types.CodeInvalidArgument},
		{"owner with owner", CreateRequest{Type: types.IdentityOwner, Name: "x", OwnerDID: owner.DID}, types.CodeInvalidArgument},
		{"unknown type", CreateRequest{Type: "robot", Name: "x"}, types.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateIdentity(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, types.CodeOf(err))
		})
	}

	list, err := s.ListIdentities(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestStore_KeyFilesAtRest(t *testing.T) {
	ctx := context.Background()

	t.Run("encrypted key file does not contain the seed", func(t *testing.T) {
		s := openStore(t, encryptedConfig(t.TempDir()))
		id, err := s.CreateIdentity(ctx, CreateRequest{Type: types.IdentityOwner, Name: "Alice"})
		require.NoError(t, err)
		kp, err := s.KeyPair(ctx, id.DID)
		require.NoError(t, err)

		kf, err := readKeyFile(s.Dir(), id.DID)
		require.NoError(t, err)
		assert.Empty(t, kf.Seed)
		assert.NotEmpty(t, kf.Sealed)
		assert.NotContains(t, string(kf.Sealed), string(kp.Seed()))

		info, err := os.Stat(keyPath(s.Dir(), id.DID))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("sealed key is bound to its DID", func(t *testing.T) {
		s := openStore(t, encryptedConfig(t.TempDir()))
		a, err := s.CreateIdentity(ctx, CreateRequest{Type: types.IdentityOwner, Name: "A"})
		require.NoError(t, err)
		b, err := s.CreateIdentity(ctx, CreateRequest{Type: types.IdentityOwner, Name: "B"})
		require.NoError(t, err)
		require.NoError(t, s.Close())

		// Swap A's sealed blob into B's key file.
		kfA, err := readKeyFile(s.Dir(), a.DID)
		require.NoError(t, err)
		kfB, err := readKeyFile(s.Dir(), b.DID)
		require.NoError(t, err)
		kfB.Sealed = kfA.Sealed
		require.NoError(t, writeKeyFile(s.Dir(), kfB))

		s2 := openStore(t, encryptedConfig(s.Dir()))
		_, err = s2.KeyPair(ctx, b.DID)
		require.Error(t, err)
	})

	t.Run("plaintext key file holds the seed", func(t *testing.T) {
		s := openStore(t, plaintextConfig(t.TempDir()))
		id, err := s.CreateIdentity(ctx, CreateRequest{Type: types.IdentityOwner, Name: "Alice"})
		require.NoError(t, err)
		kf, err := readKeyFile(s.Dir(), id.DID)
		require.NoError(t, err)
		assert.Len(t, kf.Seed, 32)
		assert.Empty(t, kf.Sealed)
	})
}

func TestStore_DeleteReportsStrandedKeyFile(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	cfg := plaintextConfig(t.TempDir())
	cfg.Logger = &logger
	s := openStore(t, cfg)

	id, err := s.CreateIdentity(ctx, CreateRequest{Type: types.IdentityOwner, Name: "Alice"})
	require.NoError(t, err)

	// A non-empty directory in place of the key file cannot be removed.
	path := keyPath(s.Dir(), id.DID)
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.MkdirAll(filepath.Join(path, "pinned"), 0o700))

	err = s.DeleteIdentity(ctx, id.DID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), path)

	_, err = s.GetIdentity(ctx, id.DID)
	assert.Equal(t, types.CodeNotFound, types.CodeOf(err))
}

func TestStore_KeyPairIsACopy(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, plaintextConfig(t.TempDir()))
	id, err := s.CreateIdentity(ctx, CreateRequest{Type: types.IdentityOwner, Name: "Alice"})
	require.NoError(t, err)

	kp, err := s.KeyPair(ctx, id.DID)
	require.NoError(t, err)
	kp.Zero()

	again, err := s.KeyPair(ctx, id.DID)
	require.NoError(t, err)
	require.NoError(t, identity.CheckKeyPair(id.DID, again))
}

func TestStore_CacheEviction(t *testing.T) {
	ctx := context.Background()
	cfg := plaintextConfig(t.TempDir())
	cfg.CacheSize = 1
	s := openStore(t, cfg)

	a, err := s.CreateIdentity(ctx, CreateRequest{Type: types.IdentityOwner, Name: "A"})
	require.NoError(t, err)
	b, err := s.CreateIdentity(ctx, CreateRequest{Type: types.IdentityOwner, Name: "B"})
	require.NoError(t, err)

	for _, did := range []string{a.DID, b.DID, a.DID} {
		kp, err := s.KeyPair(ctx, did)
		require.NoError(t, err)
		require.NoError(t, identity.CheckKeyPair(did, kp))
	}
}

func TestStore_Credentials(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, plaintextConfig(t.TempDir()))

	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	first := &CredentialRecord{
		ID: "urn:uuid:1", Type: types.CredentialCapability, Issuer: "did:key:a", Subject: "did:key:b",
		IssuedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), ExpiresAt: &exp,
		Scopes: []string{"read"}, Token: "tok1",
	}
	second := &CredentialRecord{ID: "urn:uuid:2", Type: types.CredentialOwnership, Token: "tok2"}

	require.NoError(t, s.SaveCredential(ctx, first))
	require.NoError(t, s.SaveCredential(ctx, second))

	got, err := s.GetCredential(ctx, "urn:uuid:1")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	list, err := s.ListCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "urn:uuid:1", list[0].ID)
	assert.Equal(t, "urn:uuid:2", list[1].ID)

	require.NoError(t, s.DeleteCredential(ctx, "urn:uuid:1"))
	_, err = s.GetCredential(ctx, "urn:uuid:1")
	assert.Equal(t, types.CodeCredentialNotFound, types.CodeOf(err))
	assert.Equal(t, types.CodeCredentialNotFound, types.CodeOf(s.DeleteCredential(ctx, "urn:uuid:1")))

	err = s.SaveCredential(ctx, &CredentialRecord{Token: "x"})
	assert.Equal(t, types.CodeInvalidArgument, types.CodeOf(err))

	require.NoError(t, s.Close())
	s2 := openStore(t, plaintextConfig(s.Dir()))
	list, err = s2.ListCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tok2", list[0].Token)
}

func TestStore_Closed(t *testing.T) {
	ctx := context.Background()
	s, err := Open(plaintextConfig(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.ListIdentities(ctx)
	assert.Equal(t, types.CodeStoreClosed, types.CodeOf(err))
	_, err = s.CreateIdentity(ctx, CreateRequest{Type: types.IdentityOwner, Name: "A"})
	assert.Equal(t, types.CodeStoreClosed, types.CodeOf(err))
	_, err = s.KeyPair(ctx, "did:key:x")
	assert.Equal(t, types.CodeStoreClosed, types.CodeOf(err))
}

func TestSession(t *testing.T) {
	dir := t.TempDir()
	sess := NewSession()
	t.Cleanup(func() { _ = sess.Close() })

	first, err := sess.Store(plaintextConfig(dir))
	require.NoError(t, err)

	// A relative path to the same directory resolves to the same handle.
	wd, err := os.Getwd()
	require.NoError(t, err)
	rel, err := filepath.Rel(wd, dir)
	require.NoError(t, err)
	again, err := sess.Store(plaintextConfig(rel))
	require.NoError(t, err)
	assert.Same(t, first, again)

	other, err := sess.Store(plaintextConfig(t.TempDir()))
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.True(t, first.isClosed())

	// Changing the mode invalidates the handle; the stored mode still wins.
	_, err = sess.Store(encryptedConfig(other.Dir()))
	assert.Equal(t, types.CodeEncryptionModeMismatch, types.CodeOf(err))
	assert.True(t, other.isClosed())

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
}
