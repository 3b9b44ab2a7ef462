// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package keystore

import (
	"fmt"
	"path/filepath"
	"sync"
)

type sessionKey struct {
	dir  string
	mode Mode
}

// Session caches one open Store across the operations of a single
// invocation, so the passphrase is derived and checked once. The cached
// handle is keyed by resolved directory and encryption mode; a request with
// a different key closes it and opens a new one.
type Session struct {
	mu    sync.Mutex
	key   sessionKey
	store *Store
}

// NewSession returns an empty Session.
func NewSession() *Session {
	return &Session{}
}

// Store returns the handle for cfg, opening it on first use.
func (s *Session) Store(cfg Config) (*Store, error) {
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("keystore: resolve directory: %w", err)
	}
	key := sessionKey{dir: dir, mode: cfg.Mode()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil && s.key == key && !s.store.isClosed() {
		return s.store, nil
	}
	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}

	store, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	s.key = key
	s.store = store
	return store, nil
}

// Close closes the cached handle, if any.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
