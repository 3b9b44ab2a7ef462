// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package challenge

import (
	"context"
	"sync"
	"time"

	"github.com/bluele/gcache"

	"github.com/aumos-ai/agentid/types"
)

// DefaultReplayCapacity bounds the number of consumed nonces a ReplayGuard
// remembers.
const DefaultReplayCapacity = 10000

// ReplayGuard layers single-use semantics over Verifier. A nonce accepted
// once for a DID is remembered until its challenge expires, and any later
// presentation fails with ReasonReplayed. The guard is in-memory and per
// process. When more than its capacity of unexpired nonces are held the
// least recently used ones are forgotten.
type ReplayGuard struct {
	mu       sync.Mutex
	verifier *Verifier
	clock    gcache.Clock
	consumed gcache.Cache
}

// NewReplayGuard wraps v. A nil clock uses the wall clock; it should agree
// with v.Now.
func NewReplayGuard(v *Verifier, capacity int, clock gcache.Clock) *ReplayGuard {
	if capacity <= 0 {
		capacity = DefaultReplayCapacity
	}
	if clock == nil {
		clock = gcache.NewRealClock()
	}
	return &ReplayGuard{
		verifier: v,
		clock:    clock,
		consumed: gcache.New(capacity).LRU().Clock(clock).Build(),
	}
}

// Verify verifies like Verifier.Verify and then consumes the nonce.
func (g *ReplayGuard) Verify(ctx context.Context, did, payloadEncoded, signature string, opts VerifyOptions) (*Result, error) {
	res, err := g.verifier.Verify(ctx, did, payloadEncoded, signature, opts)
	if err != nil || !res.Valid {
		return res, err
	}

	key := did + "\x00" + res.Payload.Nonce
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.consumed.Get(key); err == nil {
		return reject(types.ReasonReplayed, "nonce has already been used"), nil
	}
	// Keep the entry one second past exp so the boundary instant is covered.
	ttl := time.Unix(res.Payload.ExpiresAt, 0).Sub(g.clock.Now()) + time.Second
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := g.consumed.SetWithExpire(key, struct{}{}, ttl); err != nil {
		return nil, err
	}
	return res, nil
}
