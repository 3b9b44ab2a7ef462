// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package keystore is the on-disk Identity Store. A keystore directory holds
// index.json, with identity and credential metadata, and keys/, with one key
// file per identity. Key files are sealed with a passphrase-derived key
// unless the keystore was explicitly created in plaintext mode.
package keystore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/rs/zerolog"

	"github.com/aumos-ai/agentid/identity"
	"github.com/aumos-ai/agentid/keys"
	"github.com/aumos-ai/agentid/types"
)

// CreateRequest carries parameters for Store.CreateIdentity.
type CreateRequest struct {
	// Type is owner or agent. Required.
	Type types.IdentityType
	// Name is a human-readable label. Required.
	Name string
	// OwnerDID must reference an existing owner identity when Type is agent,
	// and must be empty otherwise.
	OwnerDID string
}

// Store is an open handle on a keystore directory. All exported methods are
// safe for concurrent use. Concurrent processes writing the same directory
// are not coordinated.
type Store struct {
	mu     sync.Mutex
	dir    string
	mode   Mode
	idx    *index
	sealer *sealer
	// cache holds unlocked key pairs keyed by DID. Evicted entries are zeroed.
	cache  gcache.Cache
	log    zerolog.Logger
	now    func() time.Time
	closed bool
}

// Open opens the keystore in cfg.Dir. A missing keystore is initialized only
// when cfg.CreateIfMissing is set; otherwise Open fails with
// ErrKeystoreNotFound before asking for a passphrase. The encryption mode of
// an existing keystore is fixed, and opening it in the other mode fails with
// ErrEncryptionModeMismatch.
func Open(cfg Config) (*Store, error) {
	if err := cfg.validateDir(); err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("keystore: resolve directory: %w", err)
	}

	s := &Store{
		dir:  dir,
		mode: cfg.Mode(),
		log:  cfg.logger().With().Str("component", "keystore").Str("dir", dir).Logger(),
		now:  cfg.clock(),
	}

	idx, err := readIndex(dir)
	if err != nil {
		return nil, err
	}
	if idx == nil && !cfg.CreateIfMissing {
		return nil, &types.ErrKeystoreNotFound{Dir: dir}
	}
	if err := cfg.validateSecret(); err != nil {
		return nil, err
	}
	if idx == nil {
		idx, err = s.initialize(cfg)
		if err != nil {
			return nil, err
		}
	} else if err := s.unlock(idx, cfg); err != nil {
		return nil, err
	}
	s.idx = idx

	zeroKeyPair := func(_, value interface{}) {
		if kp, ok := value.(*keys.KeyPair); ok {
			kp.Zero()
		}
	}
	s.cache = gcache.New(cfg.cacheSize()).
		LRU().
		EvictedFunc(zeroKeyPair).
		PurgeVisitorFunc(zeroKeyPair).
		Build()

	if s.mode == ModePlaintext {
		s.log.Warn().Msg("encryption disabled: private keys are stored UNENCRYPTED on disk")
	}
	s.log.Debug().Str("mode", string(s.mode)).Int("identities", len(idx.Identities)).Msg("keystore opened")
	return s, nil
}

func (s *Store) initialize(cfg Config) (*index, error) {
	if err := os.MkdirAll(filepath.Join(s.dir, keysDirName), 0o700); err != nil {
		return nil, fmt.Errorf("keystore: create directory: %w", err)
	}
	idx := &index{
		Version:     indexVersion,
		Identities:  []*identity.Identity{},
		Credentials: []*CredentialRecord{},
	}
	switch s.mode {
	case ModeEncrypted:
		header, sl, err := newEncryptionHeader(cfg.Passphrase, cfg.KDF)
		if err != nil {
			return nil, err
		}
		idx.Encryption = header
		s.sealer = sl
	case ModePlaintext:
		idx.Encryption = &encryptionHeader{Mode: ModePlaintext}
	}
	if err := writeIndex(s.dir, idx); err != nil {
		s.sealer.zero()
		return nil, err
	}
	s.log.Info().Str("mode", string(s.mode)).Msg("keystore initialized")
	return idx, nil
}

func (s *Store) unlock(idx *index, cfg Config) error {
	stored := idx.Encryption.Mode
	if stored != s.mode {
		return &types.ErrEncryptionModeMismatch{Stored: string(stored), Requested: string(s.mode)}
	}
	if s.mode != ModeEncrypted {
		return nil
	}
	sl, err := idx.Encryption.unlock(cfg.Passphrase)
	if err != nil {
		return err
	}
	s.sealer = sl
	return nil
}

// Dir returns the absolute keystore directory.
func (s *Store) Dir() string { return s.dir }

// Mode returns the encryption mode the keystore was created with.
func (s *Store) Mode() Mode { return s.mode }

// Close zeroes all cached key material and the derived passphrase key.
// Further calls on the handle fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cache.Purge()
	s.sealer.zero()
	s.log.Debug().Msg("keystore closed")
	return nil
}

// CreateIdentity generates a key pair, derives the DID, persists the record
// and its key material, and returns the public record.
func (s *Store) CreateIdentity(ctx context.Context, req CreateRequest) (*identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &types.ErrStoreClosed{}
	}

	if req.Type == types.IdentityAgent {
		owner := s.find(req.OwnerDID)
		if owner == nil {
			return nil, &types.ErrOwnerNotFound{DID: req.OwnerDID}
		}
		if owner.Type != types.IdentityOwner {
			return nil, &types.ErrOwnerTypeMismatch{DID: req.OwnerDID, Actual: owner.Type}
		}
	}

	kp, err := keys.Generate()
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	id, err := identity.New(kp, req.Type, req.Name, req.OwnerDID, s.now())
	if err != nil {
		kp.Zero()
		return nil, err
	}

	kf, err := s.sealKey(id.DID, kp)
	if err != nil {
		kp.Zero()
		return nil, err
	}
	// The key file is written first so the index never names a DID without key material.
	if err := writeKeyFile(s.dir, kf); err != nil {
		kp.Zero()
		return nil, err
	}
	s.idx.Identities = append(s.idx.Identities, id)
	if err := writeIndex(s.dir, s.idx); err != nil {
		s.idx.Identities = s.idx.Identities[:len(s.idx.Identities)-1]
		_ = removeKeyFile(s.dir, id.DID)
		kp.Zero()
		return nil, err
	}

	_ = s.cache.Set(id.DID, kp)
	s.log.Info().Str("did", id.DID).Str("type", string(id.Type)).Msg("identity created")
	return cloneIdentity(id), nil
}

// GetIdentity looks up an identity by exact DID match.
func (s *Store) GetIdentity(_ context.Context, did string) (*identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &types.ErrStoreClosed{}
	}
	id := s.find(did)
	if id == nil {
		return nil, &types.ErrIdentityNotFound{DID: did}
	}
	return cloneIdentity(id), nil
}

// ListIdentities returns every identity in insertion order.
func (s *Store) ListIdentities(_ context.Context) ([]*identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &types.ErrStoreClosed{}
	}
	out := make([]*identity.Identity, 0, len(s.idx.Identities))
	for _, id := range s.idx.Identities {
		out = append(out, cloneIdentity(id))
	}
	return out, nil
}

// DeleteIdentity permanently removes an identity and its key material.
// Agents referencing a deleted owner and credentials it issued are left
// untouched.
func (s *Store) DeleteIdentity(_ context.Context, did string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &types.ErrStoreClosed{}
	}
	pos := -1
	for i, id := range s.idx.Identities {
		if id.DID == did {
			pos = i
			break
		}
	}
	if pos < 0 {
		return &types.ErrIdentityNotFound{DID: did}
	}

	prev := s.idx.Identities
	s.idx.Identities = append(prev[:pos:pos], prev[pos+1:]...)
	if err := writeIndex(s.dir, s.idx); err != nil {
		s.idx.Identities = prev
		return err
	}
	s.cache.Remove(did)
	if err := removeKeyFile(s.dir, did); err != nil {
		s.log.Error().Err(err).
			Str("did", did).
			Str("path", keyPath(s.dir, did)).
			Msg("identity removed from index but its key file remains, delete it by hand")
		return err
	}
	s.log.Info().Str("did", did).Msg("identity deleted")
	return nil
}

// KeyPair returns the key pair of did for the duration of one signing
// operation. The result is a private copy; callers should Zero it when done
// and must never persist it.
func (s *Store) KeyPair(_ context.Context, did string) (*keys.KeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &types.ErrStoreClosed{}
	}
	if s.find(did) == nil {
		return nil, &types.ErrIdentityNotFound{DID: did}
	}
	if cached, err := s.cache.Get(did); err == nil {
		return cached.(*keys.KeyPair).Clone(), nil
	}

	kf, err := readKeyFile(s.dir, did)
	if err != nil {
		return nil, err
	}
	kp, err := s.openKey(kf)
	if err != nil {
		return nil, err
	}
	if err := identity.CheckKeyPair(did, kp); err != nil {
		kp.Zero()
		return nil, err
	}
	_ = s.cache.Set(did, kp)
	return kp.Clone(), nil
}

func (s *Store) sealKey(did string, kp *keys.KeyPair) (*keyFile, error) {
	seed := kp.Seed()
	defer zeroBytes(seed)

	kf := &keyFile{Version: keyFileVersion, DID: did, Algorithm: kp.Algorithm}
	switch s.mode {
	case ModeEncrypted:
		sealed, err := s.sealer.seal(seed, []byte(did))
		if err != nil {
			return nil, fmt.Errorf("keystore: seal key: %w", err)
		}
		kf.Sealed = sealed
	case ModePlaintext:
		kf.Seed = append([]byte(nil), seed...)
	}
	return kf, nil
}

func (s *Store) openKey(kf *keyFile) (*keys.KeyPair, error) {
	if kf.Algorithm != types.KeyAlgorithmEd25519 {
		return nil, fmt.Errorf("keystore: unsupported key algorithm %q for %s", kf.Algorithm, kf.DID)
	}
	switch s.mode {
	case ModeEncrypted:
		if len(kf.Sealed) == 0 {
			return nil, &types.ErrEncryptionModeMismatch{Stored: string(ModePlaintext), Requested: string(ModeEncrypted)}
		}
		seed, err := s.sealer.open(kf.Sealed, []byte(kf.DID))
		if err != nil {
			return nil, fmt.Errorf("keystore: open key for %s: %w", kf.DID, err)
		}
		defer zeroBytes(seed)
		return keys.FromSeed(seed)
	case ModePlaintext:
		if len(kf.Seed) == 0 {
			return nil, &types.ErrEncryptionModeMismatch{Stored: string(ModeEncrypted), Requested: string(ModePlaintext)}
		}
		return keys.FromSeed(kf.Seed)
	default:
		return nil, fmt.Errorf("keystore: unknown mode %q", s.mode)
	}
}

func (s *Store) find(did string) *identity.Identity {
	for _, id := range s.idx.Identities {
		if id.DID == did {
			return id
		}
	}
	return nil
}

func cloneIdentity(id *identity.Identity) *identity.Identity {
	c := *id
	return &c
}
