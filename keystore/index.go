// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aumos-ai/agentid/identity"
	"github.com/aumos-ai/agentid/types"
)

const (
	indexVersion   = 1
	keyFileVersion = 1
	indexFileName  = "index.json"
	keysDirName    = "keys"
)

// index is the on-disk catalogue of identities and credentials. Slices keep
// insertion order.
type index struct {
	Version     int                  `json:"version"`
	Encryption  *encryptionHeader    `json:"encryption"`
	Identities  []*identity.Identity `json:"identities"`
	Credentials []*CredentialRecord  `json:"credentials"`
}

// keyFile holds the private key seed of one identity.
type keyFile struct {
	Version   int                `json:"version"`
	DID       string             `json:"did"`
	Algorithm types.KeyAlgorithm `json:"algorithm"`
	// Sealed is nonce || ciphertext of the seed, in encrypted mode.
	Sealed []byte `json:"sealed,omitempty"`
	// Seed is the raw seed, in plaintext mode only.
	Seed []byte `json:"seed,omitempty"`
}

func indexPath(dir string) string {
	return filepath.Join(dir, indexFileName)
}

// keyPath maps a DID onto its key file. Colons are replaced so the name is
// portable.
func keyPath(dir, did string) string {
	return filepath.Join(dir, keysDirName, strings.ReplaceAll(did, ":", "_")+".json")
}

// readIndex loads the index. It returns (nil, nil) if the keystore has not
// been initialized.
func readIndex(dir string) (*index, error) {
	raw, err := os.ReadFile(indexPath(dir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: read index: %w", err)
	}
	var idx index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("keystore: parse index: %w", err)
	}
	if idx.Version != indexVersion {
		return nil, fmt.Errorf("keystore: unsupported index version %d", idx.Version)
	}
	if idx.Encryption == nil {
		return nil, fmt.Errorf("keystore: index has no encryption header")
	}
	return &idx, nil
}

func writeIndex(dir string, idx *index) error {
	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: marshal index: %w", err)
	}
	return writeFileAtomic(indexPath(dir), raw)
}

func readKeyFile(dir, did string) (*keyFile, error) {
	raw, err := os.ReadFile(keyPath(dir, did))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &types.ErrIdentityNotFound{DID: did}
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return nil, fmt.Errorf("keystore: parse key file for %s: %w", did, err)
	}
	if kf.Version != keyFileVersion || kf.DID != did {
		return nil, fmt.Errorf("keystore: key file for %s is invalid", did)
	}
	return &kf, nil
}

func writeKeyFile(dir string, kf *keyFile) error {
	raw, err := json.Marshal(kf)
	if err != nil {
		return fmt.Errorf("keystore: marshal key file: %w", err)
	}
	return writeFileAtomic(keyPath(dir, kf.DID), raw)
}

func removeKeyFile(dir, did string) error {
	path := keyPath(dir, did)
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("keystore: remove key file %s: %w", path, err)
	}
	return nil
}

// writeFileAtomic writes through a temporary file and rename so readers see
// either the old or the new content. There is no cross-process locking.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("keystore: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("keystore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("keystore: chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("keystore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("keystore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("keystore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("keystore: rename temp file: %w", err)
	}
	return nil
}
