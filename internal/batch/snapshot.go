package batch

import (
	"fmt"

	"prompt-sync/internal/store"
)

// DedupMode decides when a prompt counts as already stored.
type DedupMode string

const (
	// DedupFields skips a prompt when its prefix matches any stored prefix
	// and its suffix matches any stored suffix, not necessarily of the same
	// record. Two unrelated records can together hide a new pair.
	DedupFields DedupMode = "fields"
	// DedupPair skips a prompt only when one stored record has both its
	// prefix and its suffix.
	DedupPair DedupMode = "pair"
)

// ParseDedupMode validates a mode name. The empty string means DedupFields.
func ParseDedupMode(s string) (DedupMode, error) {
	switch DedupMode(s) {
	case "", DedupFields:
		return DedupFields, nil
	case DedupPair:
		return DedupPair, nil
	}
	return "", fmt.Errorf("unknown dedup mode %q (want %s or %s)", s, DedupFields, DedupPair)
}

type pair struct{ prefix, suffix string }

// Snapshot is the in-memory view of a namespace's stored records used for
// duplicate checks.
type Snapshot struct {
	mode     DedupMode
	size     int
	prefixes map[string]struct{}
	suffixes map[string]struct{}
	pairs    map[pair]struct{}
}

// NewSnapshot indexes recs for lookups under mode.
func NewSnapshot(mode DedupMode, recs []store.Record) *Snapshot {
	s := &Snapshot{
		mode:     mode,
		prefixes: make(map[string]struct{}, len(recs)),
		suffixes: make(map[string]struct{}, len(recs)),
		pairs:    make(map[pair]struct{}, len(recs)),
	}
	for _, r := range recs {
		s.Add(r.Prefix, r.Suffix)
	}
	return s
}

// Add records a prefix/suffix pair as stored.
func (s *Snapshot) Add(prefix, suffix string) {
	s.size++
	s.prefixes[prefix] = struct{}{}
	s.suffixes[suffix] = struct{}{}
	s.pairs[pair{prefix, suffix}] = struct{}{}
}

// Len returns the number of records the snapshot was built from, plus any
// added since.
func (s *Snapshot) Len() int {
	return s.size
}

// Contains reports whether a prompt with this prefix and suffix is already
// stored. An empty snapshot contains nothing.
func (s *Snapshot) Contains(prefix, suffix string) bool {
	if s.size == 0 {
		return false
	}
	if s.mode == DedupPair {
		_, ok := s.pairs[pair{prefix, suffix}]
		return ok
	}
	_, okPrefix := s.prefixes[prefix]
	_, okSuffix := s.suffixes[suffix]
	return okPrefix && okSuffix
}
