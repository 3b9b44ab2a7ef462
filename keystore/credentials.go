// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package keystore

import (
	"context"
	"strings"
	"time"

	"github.com/aumos-ai/agentid/types"
)

// CredentialRecord is the inventory entry for an issued credential. It is
// bookkeeping only: verification always works from Token alone.
type CredentialRecord struct {
	ID        string               `json:"id"`
	Type      types.CredentialType `json:"type"`
	Issuer    string               `json:"issuer"`
	Subject   string               `json:"subject"`
	IssuedAt  time.Time            `json:"issuedAt"`
	ExpiresAt *time.Time           `json:"expiresAt,omitempty"`
	Scopes    []string             `json:"scopes,omitempty"`
	Token     string               `json:"token"`
}

// SaveCredential appends rec to the inventory. Saving an ID twice replaces
// the earlier record in place.
func (s *Store) SaveCredential(_ context.Context, rec *CredentialRecord) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return &types.ErrInvalidArgument{Field: "credential", Reason: "id must not be empty"}
	}
	if rec.Token == "" {
		return &types.ErrInvalidArgument{Field: "credential", Reason: "token must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &types.ErrStoreClosed{}
	}

	prev := s.idx.Credentials
	next := make([]*CredentialRecord, 0, len(prev)+1)
	replaced := false
	for _, c := range prev {
		if c.ID == rec.ID {
			next = append(next, cloneRecord(rec))
			replaced = true
			continue
		}
		next = append(next, c)
	}
	if !replaced {
		next = append(next, cloneRecord(rec))
	}

	s.idx.Credentials = next
	if err := writeIndex(s.dir, s.idx); err != nil {
		s.idx.Credentials = prev
		return err
	}
	s.log.Debug().Str("id", rec.ID).Str("type", string(rec.Type)).Msg("credential saved")
	return nil
}

// GetCredential returns the inventory record with the given ID.
func (s *Store) GetCredential(_ context.Context, id string) (*CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &types.ErrStoreClosed{}
	}
	for _, c := range s.idx.Credentials {
		if c.ID == id {
			return cloneRecord(c), nil
		}
	}
	return nil, &types.ErrCredentialNotFound{ID: id}
}

// ListCredentials returns the inventory in insertion order.
func (s *Store) ListCredentials(_ context.Context) ([]*CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &types.ErrStoreClosed{}
	}
	out := make([]*CredentialRecord, 0, len(s.idx.Credentials))
	for _, c := range s.idx.Credentials {
		out = append(out, cloneRecord(c))
	}
	return out, nil
}

// DeleteCredential removes a record from the inventory. The token itself, if
// held elsewhere, remains verifiable.
func (s *Store) DeleteCredential(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &types.ErrStoreClosed{}
	}
	prev := s.idx.Credentials
	for i, c := range prev {
		if c.ID != id {
			continue
		}
		s.idx.Credentials = append(prev[:i:i], prev[i+1:]...)
		if err := writeIndex(s.dir, s.idx); err != nil {
			s.idx.Credentials = prev
			return err
		}
		s.log.Debug().Str("id", id).Msg("credential deleted")
		return nil
	}
	return &types.ErrCredentialNotFound{ID: id}
}

func cloneRecord(rec *CredentialRecord) *CredentialRecord {
	c := *rec
	if rec.ExpiresAt != nil {
		exp := *rec.ExpiresAt
		c.ExpiresAt = &exp
	}
	if rec.Scopes != nil {
		c.Scopes = append([]string(nil), rec.Scopes...)
	}
	return &c
}
