// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package keystore

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/aumos-ai/agentid/types"
)

const (
	kdfArgon2id = "argon2id"
	saltSize    = 16
	checkValue  = "agentid keystore v1"
)

var errAuthFailed = errors.New("keystore: authentication failed")

// KDFParams are the argon2id cost parameters used when a new encrypted
// keystore is initialized. Existing keystores keep the parameters recorded
// in their index.
type KDFParams struct {
	Time     uint32 `json:"time"`
	MemoryKB uint32 `json:"memoryKb"`
	Threads  uint8  `json:"threads"`
}

// DefaultKDFParams returns the argon2id parameters for new keystores.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 2, MemoryKB: 64 * 1024, Threads: 1}
}

func (p KDFParams) orDefault() KDFParams {
	if p.Time == 0 || p.MemoryKB == 0 || p.Threads == 0 {
		return DefaultKDFParams()
	}
	return p
}

// encryptionHeader is persisted in the index and describes how key files
// are protected.
type encryptionHeader struct {
	Mode   Mode       `json:"mode"`
	KDF    string     `json:"kdf,omitempty"`
	Params *KDFParams `json:"params,omitempty"`
	Salt   []byte     `json:"salt,omitempty"`
	// Check is checkValue sealed under the derived key. Opening it validates
	// the passphrase once per store handle.
	Check []byte `json:"check,omitempty"`
}

// sealer holds the key derived from the passphrase for the lifetime of a
// store handle.
type sealer struct {
	key []byte
}

func newEncryptionHeader(passphrase string, params KDFParams) (*encryptionHeader, *sealer, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("keystore: generate salt: %w", err)
	}
	params = params.orDefault()
	s := &sealer{key: deriveKey(passphrase, salt, params)}
	check, err := s.seal([]byte(checkValue), []byte(kdfArgon2id))
	if err != nil {
		s.zero()
		return nil, nil, err
	}
	return &encryptionHeader{
		Mode:   ModeEncrypted,
		KDF:    kdfArgon2id,
		Params: &params,
		Salt:   salt,
		Check:  check,
	}, s, nil
}

// unlock derives the key for an existing header and validates it against
// the stored check value.
func (h *encryptionHeader) unlock(passphrase string) (*sealer, error) {
	if h.KDF != kdfArgon2id || h.Params == nil || len(h.Salt) != saltSize {
		return nil, fmt.Errorf("keystore: unsupported encryption header")
	}
	s := &sealer{key: deriveKey(passphrase, h.Salt, *h.Params)}
	plain, err := s.open(h.Check, []byte(kdfArgon2id))
	if err != nil || string(plain) != checkValue {
		s.zero()
		return nil, &types.ErrInvalidPassphrase{}
	}
	return s, nil
}

// seal returns nonce || ciphertext. aad binds the ciphertext to its context.
func (s *sealer) seal(plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keystore: generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

func (s *sealer) open(sealed, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < chacha20poly1305.NonceSizeX+aead.Overhead() {
		return nil, errAuthFailed
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, errAuthFailed
	}
	return plaintext, nil
}

func (s *sealer) zero() {
	if s == nil {
		return
	}
	zeroBytes(s.key)
	s.key = nil
}

func deriveKey(passphrase string, salt []byte, p KDFParams) []byte {
	return argon2.IDKey([]byte(passphrase), salt, p.Time, p.MemoryKB, p.Threads, chacha20poly1305.KeySize)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
