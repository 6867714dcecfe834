// Package testutil provides deterministic helpers for tests.
package testutil

import (
	"fmt"
	"sync"
)

// IDSequence generates predictable run identifiers for tests.
//
// Production code assigns UUIDs to stored runs; substituting an IDSequence
// makes run records reproducible so tests can assert on exact IDs and
// golden output stays stable across runs.
//
// Thread-safety: all methods are safe for concurrent use.
type IDSequence struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewIDSequence creates a sequence with the given prefix. An empty prefix
// defaults to "test".
func NewIDSequence(prefix string) *IDSequence {
	if prefix == "" {
		prefix = "test"
	}
	return &IDSequence{prefix: prefix}
}

// Next returns the next identifier: "<prefix>-1", "<prefix>-2", and so on.
func (s *IDSequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("%s-%d", s.prefix, s.seq)
}

// Current returns the number of identifiers generated so far.
func (s *IDSequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Reset restarts the sequence. The next call to Next returns "<prefix>-1"
// again, so a scenario can be replayed with identical IDs.
func (s *IDSequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = 0
}
