// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package keystore

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aumos-ai/agentid/types"
)

// Mode is the at-rest protection of private key material.
type Mode string

const (
	// ModeEncrypted seals every key file with a passphrase-derived key.
	ModeEncrypted Mode = "encrypted"
	// ModePlaintext stores key files unencrypted. It must be requested
	// explicitly and is never chosen as a fallback.
	ModePlaintext Mode = "plaintext"
)

// Config configures Open.
type Config struct {
	// Dir is the keystore directory. Required.
	Dir string
	// Passphrase unlocks an encrypted keystore. Required unless Plaintext is set.
	Passphrase string
	// Plaintext explicitly disables encryption at rest.
	Plaintext bool
	// CreateIfMissing initializes a new keystore in Dir when none exists.
	// Without it Open fails with ErrKeystoreNotFound and writes nothing.
	CreateIfMissing bool
	// KDF is used only when a new encrypted keystore is initialized.
	// Zero fields select DefaultKDFParams.
	KDF KDFParams
	// CacheSize bounds the number of unlocked key pairs held by a handle.
	// Defaults to 32.
	CacheSize int
	// Logger receives diagnostics. Defaults to a no-op logger.
	Logger *zerolog.Logger
	// Now is the clock used for createdAt timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Mode returns the encryption mode the configuration asks for.
func (c Config) Mode() Mode {
	if c.Plaintext {
		return ModePlaintext
	}
	return ModeEncrypted
}

func (c Config) validateDir() error {
	if strings.TrimSpace(c.Dir) == "" {
		return &types.ErrInvalidArgument{Field: "keystore", Reason: "directory must not be empty"}
	}
	return nil
}

func (c Config) validateSecret() error {
	if c.Plaintext {
		if c.Passphrase != "" {
			return &types.ErrInvalidArgument{Field: "passphrase", Reason: "must be empty when encryption is disabled"}
		}
		return nil
	}
	if c.Passphrase == "" {
		return &types.ErrMissingPassphrase{}
	}
	return nil
}

func (c Config) logger() zerolog.Logger {
	if c.Logger == nil {
		return zerolog.Nop()
	}
	return *c.Logger
}

func (c Config) clock() func() time.Time {
	if c.Now == nil {
		return time.Now
	}
	return c.Now
}

func (c Config) cacheSize() int {
	if c.CacheSize <= 0 {
		return 32
	}
	return c.CacheSize
}
