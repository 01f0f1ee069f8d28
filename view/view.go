// Package view tracks the membership of the replica group: the set
// of socket addresses this process currently believes to be alive,
// including its own. Fan-out of membership events to peers is the
// caller's concern so that view state itself stays plain.
package view

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Variables

var (
	// ErrAlreadyPresent reports an addition of a member the
	// view already contains.
	ErrAlreadyPresent = errors.New("view already contains replica")

	// ErrNoSuchReplica reports a removal of an unknown member.
	ErrNoSuchReplica = errors.New("view has no such replica")
)

// Structs

// View is the set of replica addresses known to one process.
type View struct {
	lock    *sync.RWMutex
	self    string
	members map[string]struct{}
}

// Functions

// InitView returns a view seeded with this replica's own address
// and the statically configured peers.
func InitView(self string, peers []string) *View {

	v := &View{
		lock:    new(sync.RWMutex),
		self:    self,
		members: make(map[string]struct{}),
	}

	v.members[self] = struct{}{}

	for _, peer := range peers {
		v.members[peer] = struct{}{}
	}

	return v
}

// Self returns the address of the owning replica.
func (v *View) Self() string {
	return v.self
}

// Add inserts addr into the view. Adding a member twice is
// idempotent and reported via ErrAlreadyPresent so that callers
// can suppress re-broadcasting.
func (v *View) Add(addr string) error {

	v.lock.Lock()
	defer v.lock.Unlock()

	if _, exists := v.members[addr]; exists {
		return ErrAlreadyPresent
	}

	v.members[addr] = struct{}{}

	return nil
}

// Remove deletes addr from the view and fails with
// ErrNoSuchReplica if it was not a member.
func (v *View) Remove(addr string) error {

	v.lock.Lock()
	defer v.lock.Unlock()

	if _, exists := v.members[addr]; !exists {
		return ErrNoSuchReplica
	}

	delete(v.members, addr)

	return nil
}

// Contains reports whether addr is currently a member.
func (v *View) Contains(addr string) bool {

	v.lock.RLock()
	defer v.lock.RUnlock()

	_, exists := v.members[addr]

	return exists
}

// Snapshot returns all current members in sorted order.
func (v *View) Snapshot() []string {

	v.lock.RLock()
	defer v.lock.RUnlock()

	members := make([]string, 0, len(v.members))
	for addr := range v.members {
		members = append(members, addr)
	}
	sort.Strings(members)

	return members
}

// Others returns all current members except this replica itself
// and any additionally excluded addresses, in sorted order. This
// is the broadcast target list for fan-out.
func (v *View) Others(exclude ...string) []string {

	v.lock.RLock()
	defer v.lock.RUnlock()

	excluded := make(map[string]struct{}, len(exclude)+1)
	excluded[v.self] = struct{}{}
	for _, addr := range exclude {
		excluded[addr] = struct{}{}
	}

	members := make([]string, 0, len(v.members))

	for addr := range v.members {

		if _, skip := excluded[addr]; skip {
			continue
		}

		members = append(members, addr)
	}

	sort.Strings(members)

	return members
}
