// Package store implements the per-key entry store of one replica
// process. Every entry owns the vector clock of its latest accepted
// write and every mutation passes the causal admission gate before
// any state changes.
package store

import (
	"sync"

	"github.com/aneangel/CSE138-Assignment3/vclock"
	"github.com/pkg/errors"
)

// Variables

var (
	// ErrCausalityNotSatisfied reports that the causal history
	// required by an operation has not been observed by this
	// replica yet. The operation may be retried.
	ErrCausalityNotSatisfied = errors.New("causal dependencies not satisfied; try again later")

	// ErrKeyNotFound reports a read of an absent or deleted key.
	ErrKeyNotFound = errors.New("key does not exist")
)

// Structs

// Entry holds one value and the vector clock owning it. A nil
// Value marks a tombstone: the key was deleted but its causal
// history keeps advancing.
type Entry struct {
	Value []byte
	Clock vclock.VClock
}

// Store is the replicated key-value state of one replica process.
// Entries are created on first write and never physically purged
// while the process runs.
type Store struct {
	lock    *sync.RWMutex
	self    string
	entries map[string]*Entry
	clock   vclock.VClock
}

// Functions

// InitStore returns an empty initialized store owned by the
// replica reachable under the supplied socket address.
func InitStore(self string) *Store {

	return &Store{
		lock:    new(sync.RWMutex),
		self:    self,
		entries: make(map[string]*Entry),
		clock:   vclock.InitVClock(),
	}
}

// clockOf returns the owning clock of key, or the empty clock
// for a key never written. Callers must hold the lock.
func (s *Store) clockOf(key string) vclock.VClock {

	entry, exists := s.entries[key]
	if !exists {
		return vclock.InitVClock()
	}

	return entry.Clock
}

// Get returns the value of key together with its current owning
// clock. The read is admitted only if this replica has observed at
// least the history the caller supplies as incoming clock, absent
// and tombstoned keys behave as readable but not found.
func (s *Store) Get(key string, incoming vclock.VClock) ([]byte, vclock.VClock, error) {

	s.lock.RLock()
	defer s.lock.RUnlock()

	current := s.clockOf(key)

	if !current.AtLeast(incoming) {
		return nil, nil, ErrCausalityNotSatisfied
	}

	entry, exists := s.entries[key]
	if !exists || entry.Value == nil {
		return nil, current.Copy(), ErrKeyNotFound
	}

	value := make([]byte, len(entry.Value))
	copy(value, entry.Value)

	return value, current.Copy(), nil
}

// TryUpdate admits a client-originated write or delete of key. A
// write carrying causal metadata is rejected without any state
// change unless that metadata covers the entry's current owning
// clock. On acceptance the entry clock becomes the merge of both
// clocks advanced by one in this replica's own dimension. The
// returned flag reports whether the key existed before.
func (s *Store) TryUpdate(key string, value []byte, incoming vclock.VClock) (vclock.VClock, bool, error) {

	s.lock.Lock()
	defer s.lock.Unlock()

	current := s.clockOf(key)

	// Absent metadata means no causal precondition.
	if len(incoming) > 0 && !incoming.AtLeast(current) {
		return nil, false, ErrCausalityNotSatisfied
	}

	existed := false
	if _, exists := s.entries[key]; exists {
		existed = true
	}

	merged := current.Merge(incoming)
	merged.Incr(s.self)

	s.applyLocked(key, value, merged)

	return merged.Copy(), existed, nil
}

// ApplyReplicated admits a write already accepted by a peer
// replica. The sender's resulting clock must cover the entry's
// current owning clock, otherwise the receiver is still missing
// causally earlier writes and rejects without state change. The
// receiver adopts the merged clock as-is: the write was counted
// at its origin and counting it again would make every following
// clock of that origin appear concurrent to ours.
func (s *Store) ApplyReplicated(key string, value []byte, clock vclock.VClock) error {

	s.lock.Lock()
	defer s.lock.Unlock()

	current := s.clockOf(key)

	if !clock.AtLeast(current) {
		return ErrCausalityNotSatisfied
	}

	s.applyLocked(key, value, current.Merge(clock))

	return nil
}

// applyLocked stores value under key with the supplied owning
// clock and folds that clock into the replica-wide aggregate.
// Callers must hold the write lock.
func (s *Store) applyLocked(key string, value []byte, clock vclock.VClock) {

	var stored []byte
	if value != nil {
		stored = make([]byte, len(value))
		copy(stored, value)
	}

	s.entries[key] = &Entry{
		Value: stored,
		Clock: clock,
	}

	s.clock = s.clock.Merge(clock)
}

// Contains reports whether key currently holds a live value.
// Both absent and tombstoned keys report false.
func (s *Store) Contains(key string) bool {

	s.lock.RLock()
	defer s.lock.RUnlock()

	entry, exists := s.entries[key]

	return exists && entry.Value != nil
}

// Snapshot returns a deep copy of all entries, tombstones
// included, together with the replica-wide aggregate clock.
func (s *Store) Snapshot() (map[string]Entry, vclock.VClock) {

	s.lock.RLock()
	defer s.lock.RUnlock()

	entries := make(map[string]Entry, len(s.entries))

	for key, entry := range s.entries {

		var value []byte
		if entry.Value != nil {
			value = make([]byte, len(entry.Value))
			copy(value, entry.Value)
		}

		entries[key] = Entry{
			Value: value,
			Clock: entry.Clock.Copy(),
		}
	}

	return entries, s.clock.Copy()
}

// Install replaces the whole store state with a recovery snapshot
// pushed by a peer that kept operating while this replica was
// unreachable.
func (s *Store) Install(entries map[string]Entry, clock vclock.VClock) {

	s.lock.Lock()
	defer s.lock.Unlock()

	s.entries = make(map[string]*Entry, len(entries))

	for key, entry := range entries {

		var value []byte
		if entry.Value != nil {
			value = make([]byte, len(entry.Value))
			copy(value, entry.Value)
		}

		s.entries[key] = &Entry{
			Value: value,
			Clock: entry.Clock.Copy(),
		}
	}

	s.clock = clock.Copy()
}
