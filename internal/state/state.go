// Package state holds the process-wide knowledge of a crawl: which detail
// URLs have been discovered and which listings already have a record. It is
// built once from the durable files and passed to both phases.
package state

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
)

// URLStore persists discovered canonical URLs.
type URLStore interface {
	Load(ctx context.Context) ([]string, error)
	Append(urls []string) error
}

// RecordStore persists extraction attempts.
type RecordStore interface {
	EnsureHeader() error
	Append(rec listing.Record) error
	ExtractedIDs(ctx context.Context) (map[string]struct{}, error)
}

// Counts summarizes the in-memory sets.
type Counts struct {
	Discovered int `json:"discovered"`
	Extracted  int `json:"extracted"`
	Pending    int `json:"pending"`
}

// State is the discovered URL set and the extracted ID set. Every mutation
// is written to its durable store before memory is updated.
type State struct {
	urls    URLStore
	records RecordStore

	mu         sync.RWMutex
	discovered map[string]struct{}
	extracted  map[string]struct{}
}

// New returns an empty State backed by the given stores.
func New(urls URLStore, records RecordStore) *State {
	return &State{
		urls:       urls,
		records:    records,
		discovered: make(map[string]struct{}),
		extracted:  make(map[string]struct{}),
	}
}

// Load replaces the in-memory sets with the contents of the durable stores
// and makes sure the record file has its header.
func (s *State) Load(ctx context.Context) error {
	urls, err := s.urls.Load(ctx)
	if err != nil {
		return fmt.Errorf("load discovered urls: %w", err)
	}
	ids, err := s.records.ExtractedIDs(ctx)
	if err != nil {
		return fmt.Errorf("load extracted ids: %w", err)
	}
	if err := s.records.EnsureHeader(); err != nil {
		return fmt.Errorf("prepare record store: %w", err)
	}

	discovered := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		discovered[listing.Canonicalize(u)] = struct{}{}
	}
	s.mu.Lock()
	s.discovered = discovered
	s.extracted = ids
	s.mu.Unlock()
	return nil
}

// AddDiscovered canonicalizes urls, persists the ones not seen before and
// returns them sorted. Re-adding known URLs is a no-op.
func (s *State) AddDiscovered(urls []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(urls))
	var added []string
	for _, raw := range urls {
		canon := listing.Canonicalize(raw)
		if canon == "" {
			continue
		}
		if _, ok := s.discovered[canon]; ok {
			continue
		}
		if _, ok := batch[canon]; ok {
			continue
		}
		batch[canon] = struct{}{}
		added = append(added, canon)
	}
	if len(added) == 0 {
		return nil, nil
	}
	sort.Strings(added)
	if err := s.urls.Append(added); err != nil {
		return nil, fmt.Errorf("persist discovered urls: %w", err)
	}
	for _, u := range added {
		s.discovered[u] = struct{}{}
	}
	return added, nil
}

// Pending returns the frontier: discovered URLs in ascending order, capped
// at limit when limit > 0, minus those whose listing already has a record.
func (s *State) Pending(limit int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]string, 0, len(s.discovered))
	for u := range s.discovered {
		all = append(all, u)
	}
	sort.Strings(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	pending := all[:0]
	for _, u := range all {
		if _, done := s.extracted[listing.ExtractID(u)]; done {
			continue
		}
		pending = append(pending, u)
	}
	return pending
}

// RecordExtracted appends rec to the record store and marks its listing as
// extracted.
func (s *State) RecordExtracted(rec listing.Record) error {
	if err := s.records.Append(rec); err != nil {
		return fmt.Errorf("persist record: %w", err)
	}
	if id := rec.ID(); id != "" {
		s.mu.Lock()
		s.extracted[id] = struct{}{}
		s.mu.Unlock()
	}
	return nil
}

// IsExtracted reports whether the listing id already has a record.
func (s *State) IsExtracted(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.extracted[id]
	return ok
}

// DiscoveredCount returns the size of the discovered URL set.
func (s *State) DiscoveredCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.discovered)
}

// Counts returns the current set sizes.
func (s *State) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pending := 0
	for u := range s.discovered {
		if _, done := s.extracted[listing.ExtractID(u)]; !done {
			pending++
		}
	}
	return Counts{
		Discovered: len(s.discovered),
		Extracted:  len(s.extracted),
		Pending:    pending,
	}
}
