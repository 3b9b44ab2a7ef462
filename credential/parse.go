// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package credential

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aumos-ai/agentid/types"
)

var scopePattern = regexp.MustCompile(`^[A-Za-z0-9_.:*/-]+$`)

// ParseScopes splits a comma-separated scope list. Elements are trimmed;
// duplicates are kept. An empty list or an empty or malformed element fails
// with ErrInvalidScopes.
func ParseScopes(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &types.ErrInvalidScopes{Reason: "at least one scope is required"}
	}
	parts := strings.Split(raw, ",")
	scopes := make([]string, 0, len(parts))
	for _, p := range parts {
		scopes = append(scopes, strings.TrimSpace(p))
	}
	if err := validateScopes(scopes); err != nil {
		return nil, err
	}
	return scopes, nil
}

func validateScopes(scopes []string) error {
	if len(scopes) == 0 {
		return &types.ErrInvalidScopes{Reason: "at least one scope is required"}
	}
	for i, s := range scopes {
		if s == "" {
			return &types.ErrInvalidScopes{Reason: fmt.Sprintf("scope %d is empty", i+1)}
		}
		if !scopePattern.MatchString(s) {
			return &types.ErrInvalidScopes{Reason: fmt.Sprintf("scope %q contains invalid characters", s)}
		}
	}
	return nil
}

// ParseExpiry parses an absolute expiry as RFC 3339 or a YYYY-MM-DD date
// (midnight UTC). An empty value means no expiry. Past instants are accepted.
func ParseExpiry(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, &types.ErrInvalidExpiry{Value: raw}
}
