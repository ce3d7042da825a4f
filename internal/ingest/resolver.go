package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ChannelSnapshot is one configured channel slot as exposed to API
// consumers.
type ChannelSnapshot struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// Resolver caches the radio's channel and contact tables for name
// lookups during normalization.
//
// Caches are replaced wholesale by Refresh; a failed refresh leaves the
// previous tables in place, so lookups may serve stale names but never
// partial ones.
type Resolver struct {
	mu        sync.RWMutex
	channels  map[int]string
	contacts  map[string]string // lowercase hex pubkey prefix -> name
	updatedAt time.Time
}

// NewResolver creates an empty resolver. Until the first Refresh every
// lookup misses.
func NewResolver() *Resolver {
	return &Resolver{
		channels: make(map[int]string),
		contacts: make(map[string]string),
	}
}

// Refresh replaces both caches from the live session.
func (r *Resolver) Refresh(ctx context.Context, session Session) error {
	chans, err := session.Channels(ctx)
	if err != nil {
		return fmt.Errorf("refreshing channels: %w", err)
	}
	contacts, err := session.Contacts(ctx)
	if err != nil {
		return fmt.Errorf("refreshing contacts: %w", err)
	}

	channels := make(map[int]string, len(chans))
	for _, c := range chans {
		channels[c.Index] = c.Name
	}
	byPrefix := make(map[string]string, len(contacts))
	for _, c := range contacts {
		byPrefix[c.PubKeyPrefix()] = c.Name
	}

	r.mu.Lock()
	r.channels = channels
	r.contacts = byPrefix
	r.updatedAt = time.Now().UTC()
	r.mu.Unlock()
	return nil
}

// ChannelName returns the name of a channel slot.
func (r *Resolver) ChannelName(idx int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.channels[idx]
	return name, ok
}

// ContactName returns the contact name for a lowercase hex public key
// prefix.
func (r *Resolver) ContactName(prefix string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.contacts[prefix]
	return name, ok
}

// Channels returns the cached channel table ordered by slot index.
func (r *Resolver) Channels() []ChannelSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]ChannelSnapshot, 0, len(r.channels))
	for idx, name := range r.channels {
		snapshot = append(snapshot, ChannelSnapshot{Index: idx, Name: name})
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].Index < snapshot[j].Index
	})
	return snapshot
}

// UpdatedAt returns when the caches were last refreshed, zero if never.
func (r *Resolver) UpdatedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updatedAt
}
