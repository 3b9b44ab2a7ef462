// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package keys holds the Ed25519 key material that backs every identity.
// Key pairs are generated once per identity and never regenerated.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/aumos-ai/agentid/types"
)

// KeyPair is an Ed25519 signing key pair. The private half is owned by the
// keystore and handed out only for the duration of a signing operation.
type KeyPair struct {
	Algorithm  types.KeyAlgorithm
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Generate creates a fresh Ed25519 key pair from rand.Reader.
func Generate() (*KeyPair, error) {
	return GenerateFrom(rand.Reader)
}

// GenerateFrom creates an Ed25519 key pair from the given entropy source.
func GenerateFrom(r io.Reader) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("keys: generate Ed25519 key: %w", err)
	}
	return &KeyPair{
		Algorithm:  types.KeyAlgorithmEd25519,
		PublicKey:  pub,
		PrivateKey: priv,
	}, nil
}

// FromSeed restores a key pair from its 32-byte seed.
func FromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keys: invalid Ed25519 seed length %d", len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{
		Algorithm:  types.KeyAlgorithmEd25519,
		PublicKey:  priv.Public().(ed25519.PublicKey),
		PrivateKey: priv,
	}, nil
}

// Seed returns a copy of the 32-byte seed the private key was expanded from.
func (kp *KeyPair) Seed() []byte {
	if kp == nil || len(kp.PrivateKey) != ed25519.PrivateKeySize {
		return nil
	}
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, kp.PrivateKey.Seed())
	return seed
}

// Public returns a copy of the key pair without its private half.
func (kp *KeyPair) Public() *KeyPair {
	pub := make(ed25519.PublicKey, len(kp.PublicKey))
	copy(pub, kp.PublicKey)
	return &KeyPair{Algorithm: kp.Algorithm, PublicKey: pub}
}

// Clone returns a deep copy, so the caller may Zero it independently.
func (kp *KeyPair) Clone() *KeyPair {
	out := kp.Public()
	if kp.PrivateKey != nil {
		out.PrivateKey = make(ed25519.PrivateKey, len(kp.PrivateKey))
		copy(out.PrivateKey, kp.PrivateKey)
	}
	return out
}

// Zero overwrites the private key bytes in place.
func (kp *KeyPair) Zero() {
	if kp == nil {
		return
	}
	for i := range kp.PrivateKey {
		kp.PrivateKey[i] = 0
	}
	kp.PrivateKey = nil
}

// Sign produces an Ed25519 signature over message.
func (kp *KeyPair) Sign(message []byte) ([]byte, error) {
	if kp == nil || len(kp.PrivateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keys: sign: private key not available")
	}
	return ed25519.Sign(kp.PrivateKey, message), nil
}

// Verify returns nil if the Ed25519 signature over message is valid for the given public key.
func Verify(publicKey ed25519.PublicKey, message, signature []byte) error {
	if len(publicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("keys: invalid Ed25519 public key length %d", len(publicKey))
	}
	if !ed25519.Verify(publicKey, message, signature) {
		return fmt.Errorf("keys: Ed25519 signature verification failed")
	}
	return nil
}
